package vgraph

import (
	"encoding/hex"
	"fmt"
	"image/color"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/gogpu/vgraph/engine"
)

// Config is the environment-driven configuration of Open.
type Config struct {
	// Engine is the registered engine name, "cpu" or "hal".
	Engine string `env:"VGRAPH_ENGINE" envDefault:"cpu"`

	// Workers is the CPU engine's workgroup lane count. Zero means GOMAXPROCS.
	Workers int `env:"VGRAPH_WORKERS" envDefault:"0"`

	// ShaderDir holds <stage>.wgsl sources. Empty registers empty sources,
	// which only the CPU engine accepts.
	ShaderDir string `env:"VGRAPH_SHADER_DIR"`

	// HotReload watches ShaderDir and replaces stages when files change.
	HotReload bool `env:"VGRAPH_HOT_RELOAD" envDefault:"false"`

	PipelineCacheDir string `env:"VGRAPH_PIPELINE_CACHE_DIR"`
	SPIRV            bool   `env:"VGRAPH_SPIRV" envDefault:"false"`

	// LogLevel applies when no logger was set: debug, info, warn, error or off.
	LogLevel string `env:"VGRAPH_LOG_LEVEL" envDefault:"warn"`

	// BaseColor is the premultiplied scene background as #RRGGBBAA.
	BaseColor HexColor `env:"VGRAPH_BASE_COLOR" envDefault:"#00000000"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings that env parsing cannot.
func (c Config) Validate() error {
	if c.Engine == "" {
		return fmt.Errorf("%w: vgraph: no engine configured", engine.ErrValidation)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: vgraph: negative worker count %d", engine.ErrValidation, c.Workers)
	}
	if c.HotReload && c.ShaderDir == "" {
		return fmt.Errorf("%w: vgraph: hot reload needs a shader directory", engine.ErrValidation)
	}
	if _, _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if b := c.BaseColor; b.R > b.A || b.G > b.A || b.B > b.A {
		return fmt.Errorf("%w: vgraph: base color %s is not premultiplied", engine.ErrValidation, b)
	}
	return nil
}

// parseLevel returns the slog level for s and whether logging is on.
func parseLevel(s string) (slog.Level, bool, error) {
	switch strings.ToLower(s) {
	case "off", "none":
		return 0, false, nil
	case "debug":
		return slog.LevelDebug, true, nil
	case "", "info":
		return slog.LevelInfo, true, nil
	case "warn", "warning":
		return slog.LevelWarn, true, nil
	case "error":
		return slog.LevelError, true, nil
	}
	return 0, false, fmt.Errorf("%w: vgraph: unknown log level %q", engine.ErrValidation, s)
}

// HexColor is a color written as #RRGGBBAA or #RRGGBB.
type HexColor color.RGBA

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HexColor) UnmarshalText(text []byte) error {
	s := strings.TrimPrefix(string(text), "#")
	if len(s) != 6 && len(s) != 8 {
		return fmt.Errorf("vgraph: color %q: want #RRGGBB or #RRGGBBAA", text)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("vgraph: color %q: %w", text, err)
	}
	c := HexColor{R: b[0], G: b[1], B: b[2], A: 0xff}
	if len(b) == 4 {
		c.A = b[3]
	}
	*h = c
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (h HexColor) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h HexColor) String() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", h.R, h.G, h.B, h.A)
}

// RGBA returns the color as a color.RGBA.
func (h HexColor) RGBA() color.RGBA { return color.RGBA(h) }
