package store

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// defaultDebounce batches the burst of filesystem events an atomic save
// produces into a single reload.
const defaultDebounce = 500 * time.Millisecond

// Watcher reloads the store when another process rewrites the document file.
// Saves land as a rename into place, so the parent directory is watched and
// events for the document path are debounced before triggering a reload.
type Watcher struct {
	path     string
	store    *PatternStore
	logger   *zap.Logger
	debounce time.Duration

	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// NewWatcher creates a watcher for the document at path. A non-positive
// debounce uses the default.
func NewWatcher(path string, store *PatternStore, logger *zap.Logger, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	return &Watcher{
		path:     filepath.Clean(path),
		store:    store,
		logger:   logger,
		debounce: debounce,
		watcher:  fsw,
		stop:     make(chan struct{}),
	}, nil
}

// Start begins watching the document's directory.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	go w.run()
	return nil
}

// Stop stops the watcher and cleans up resources. Safe to call more than
// once.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		// Already stopped
		return
	default:
		close(w.stop)
		_ = w.watcher.Close()
	}
}

func (w *Watcher) run() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.store.Reload(ctx); err != nil {
		// Keep serving the previous snapshot.
		w.logger.Warn("external change could not be loaded", zap.Error(err))
		return
	}
	w.logger.Info("pattern document reloaded after external change", zap.String("path", w.path))
}
