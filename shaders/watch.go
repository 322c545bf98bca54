package shaders

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/gogpu/vgraph/internal/logging"
)

// Watcher reloads stage sources from a directory whenever a <name>.wgsl file
// for a registered stage is created or written.
type Watcher struct {
	reg      *Registry
	dir      DirSource
	fsnotify *fsnotify.Watcher
	onReload func(name string)

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// OnReload is called after a stage source has been replaced.
func OnReload(fn func(name string)) WatchOption {
	return func(w *Watcher) { w.onReload = fn }
}

// Watch starts watching dir. The watcher stops when ctx is done or Close is
// called.
func Watch(ctx context.Context, reg *Registry, dir string, opts ...WatchOption) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		reg:      reg,
		dir:      DirSource(dir),
		fsnotify: fsw,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	w.wg.Add(1)
	go w.loop(ctx)
	return w, nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	log := logging.Logger()
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.reload(e.Name)
			}

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			log.Warn("shaders: watch error", "dir", string(w.dir), "err", err)

		case <-ctx.Done():
			return
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload(path string) {
	base := filepath.Base(path)
	name, ok := strings.CutSuffix(base, ".wgsl")
	if !ok {
		return
	}
	if _, known := w.reg.ID(name); !known {
		return
	}

	log := logging.Logger()
	src, err := os.ReadFile(path)
	if err != nil {
		// Editors often write through a temp file; the next event picks it up.
		log.Debug("shaders: reload read failed", "name", name, "err", err)
		return
	}
	if err := w.reg.Replace(name, string(src)); err != nil {
		log.Warn("shaders: reload failed", "name", name, "err", err)
		return
	}
	log.Info("shaders: reloaded", "name", name, "bytes", len(src))
	if w.onReload != nil {
		w.onReload(name)
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		err = w.fsnotify.Close()
	})
	return err
}
