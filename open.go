package vgraph

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gogpu/vgraph/engine"
	"github.com/gogpu/vgraph/graph"
	"github.com/gogpu/vgraph/internal/logging"
	"github.com/gogpu/vgraph/shaders"

	// Register the built-in engines.
	_ "github.com/gogpu/vgraph/engine/cpu"
	_ "github.com/gogpu/vgraph/engine/hal"
)

// System bundles a shader registry, the standard stages, an engine and a
// Renderer on top of it.
type System struct {
	Registry *shaders.Registry
	Stages   *shaders.Set
	Engine   engine.Engine
	Renderer *graph.Renderer

	watcher *shaders.Watcher
}

// Open builds a System from cfg. When no logger has been set, a console
// logger at cfg.LogLevel is installed.
func Open(ctx context.Context, cfg Config, opts ...Option) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	if logging.Nop(Logger()) {
		if level, on, _ := parseLevel(cfg.LogLevel); on {
			SetLogger(NewConsoleLogger(os.Stderr, level))
		}
	}

	src := o.source
	if src == nil && cfg.ShaderDir != "" {
		src = shaders.DirSource(cfg.ShaderDir)
	}
	reg := shaders.NewRegistry()
	set, err := shaders.NewSet(reg, src)
	if err != nil {
		return nil, fmt.Errorf("vgraph: %w", err)
	}

	eng, err := engine.New(cfg.Engine, reg, engine.Config{
		Workers:          cfg.Workers,
		Provider:         o.provider,
		PipelineCacheDir: cfg.PipelineCacheDir,
		SPIRV:            cfg.SPIRV,
		Identity:         o.identity,
	})
	if err != nil {
		return nil, fmt.Errorf("vgraph: %w", err)
	}

	sys := &System{
		Registry: reg,
		Stages:   set,
		Engine:   eng,
		Renderer: graph.NewRenderer(eng, set, graph.WithBaseColor(cfg.BaseColor.RGBA())),
	}
	if cfg.HotReload {
		var wopts []shaders.WatchOption
		if o.onReload != nil {
			wopts = append(wopts, shaders.OnReload(o.onReload))
		}
		sys.watcher, err = shaders.Watch(ctx, reg, cfg.ShaderDir, wopts...)
		if err != nil {
			_ = eng.Close()
			return nil, fmt.Errorf("vgraph: watch %s: %w", cfg.ShaderDir, err)
		}
	}

	Logger().Info("vgraph: opened", "engine", eng.Name(), "stages", reg.Len(), "hot_reload", cfg.HotReload)
	return sys, nil
}

// Close stops hot reload, releases cached textures and closes the engine.
func (s *System) Close() error {
	var errs []error
	if s.watcher != nil {
		errs = append(errs, s.watcher.Close())
	}
	errs = append(errs, s.Renderer.Close(), s.Engine.Close())
	return errors.Join(errs...)
}
