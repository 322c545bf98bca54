// Package pipecache persists compiled pipeline data per device.
//
// A cache directory holds one file per device identity. Writes are atomic:
// data goes to a uniquely named temporary file that is synced and then
// renamed over the final name, so readers never observe a partial file.
// A missing or unreadable entry is never an error; callers recompile.
package pipecache

import (
	"errors"
	"fmt"
	"hash/fnv"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/gogpu/vgraph/internal/logging"
)

// DeviceIdentity names the device a blob was compiled for.
type DeviceIdentity struct {
	VendorID uint32
	DeviceID uint32
	Backend  string
	Driver   string
}

// Key returns the cache file name for id.
func Key(id DeviceIdentity) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id.Driver))
	backend := strings.ToLower(id.Backend)
	if backend == "" {
		backend = "unknown"
	}
	return fmt.Sprintf("pipeline-%04x-%04x-%s-%016x.bin", id.VendorID, id.DeviceID, sanitize(backend), h.Sum64())
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' {
			return r
		}
		return '_'
	}, s)
}

// Load returns the blob stored under key in dir.
func Load(dir, key string) ([]byte, bool) {
	path := filepath.Join(dir, key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.Logger().Info("pipecache: no cached pipelines", "path", path)
		} else {
			logging.Logger().Error("pipecache: read failed", "path", path, "error", err)
		}
		return nil, false
	}
	logging.Logger().Debug("pipecache: loaded", "path", path, "bytes", len(data))
	return data, true
}

// Store atomically replaces the blob stored under key in dir, creating dir
// if needed.
func Store(dir, key string, blob []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("pipecache: create dir: %w", err)
	}
	tmp := filepath.Join(dir, "."+key+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("pipecache: create temp: %w", err)
	}
	if _, err := f.Write(blob); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("pipecache: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("pipecache: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("pipecache: close: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, key)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("pipecache: rename: %w", err)
	}
	logging.Logger().Debug("pipecache: stored", "dir", dir, "key", key, "bytes", len(blob))
	return nil
}
