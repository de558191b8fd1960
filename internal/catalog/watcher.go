package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Holder hands out the current catalog. Static catalogs and watched files both satisfy it.
type Holder interface {
	Current() *Catalog
}

// Static is a Holder that never changes.
type Static struct{ C *Catalog }

// Current implements Holder.
func (s Static) Current() *Catalog { return s.C }

// Watcher keeps a catalog file loaded and swaps in new versions as the file changes. A
// version that fails to load is logged and the previous catalog stays in place.
type Watcher struct {
	path     string
	logger   *slog.Logger
	debounce time.Duration
	current  atomic.Pointer[Catalog]
	onReload func(*Catalog)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher loads path once. The file must be valid at startup.
func NewWatcher(path string, logger *slog.Logger, onReload func(*Catalog)) (*Watcher, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Watcher{path: path, logger: logger, debounce: 200 * time.Millisecond, onReload: onReload}
	w.current.Store(c)
	return w, nil
}

// Current implements Holder.
func (w *Watcher) Current() *Catalog {
	return w.current.Load()
}

// Start watches the catalog's directory until ctx ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog: watcher: %w", err)
	}
	// Editors often replace the file, so watch the directory and filter by name.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		_ = fw.Close()
		return fmt.Errorf("catalog: watch %s: %w", w.path, err)
	}
	w.watcher = fw
	w.done = make(chan struct{})
	go w.run(ctx, fw, w.done)
	return nil
}

// Stop ends watching and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	fw, done := w.watcher, w.done
	w.watcher = nil
	w.mu.Unlock()
	if fw == nil {
		return
	}
	_ = fw.Close()
	<-done
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	target := filepath.Clean(w.path)
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("catalog watcher error", slog.Any("error", err))
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	c, err := Load(w.path)
	if err != nil {
		w.logger.Error("catalog reload failed", slog.String("path", w.path), slog.Any("error", err))
		return
	}
	w.current.Store(c)
	w.logger.Info("catalog reloaded", slog.String("path", w.path), slog.Int("views", len(c.Views)))
	if w.onReload != nil {
		w.onReload(c)
	}
}
