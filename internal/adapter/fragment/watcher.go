package fragment

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"conductor/internal/domain"
	"conductor/internal/infra/logger"
)

// DefaultDebounce is how long a path must stay quiet before a change is reported.
const DefaultDebounce = 100 * time.Millisecond

// ErrNoWatchDirs is returned when the store root has no fragment directories.
var ErrNoWatchDirs = errors.New("no fragment directories to watch")

// ChangeFunc is called once per debounced fragment change.
type ChangeFunc func(kind domain.FragmentKind, name string)

// Watcher reports fragment edits under a FileStore so caches can be invalidated.
type Watcher struct {
	store    *FileStore
	onChange ChangeFunc
	debounce time.Duration
	logger   *slog.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
	done    chan struct{}
}

// NewWatcher creates a watcher over every existing kind directory of store.
func NewWatcher(store *FileStore, debounce time.Duration, onChange ChangeFunc, log *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	dirs := store.Dirs()
	if len(dirs) == 0 {
		return nil, ErrNoWatchDirs
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		store:    store,
		onChange: onChange,
		debounce: debounce,
		logger:   logger.OrDiscard(log),
		watcher:  fw,
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	for _, dir := range dirs {
		if err := w.addTree(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// addTree watches dir and its immediate subdirectories (agents/<name>/).
func (w *Watcher) addTree(dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if e.IsDir() {
			_ = w.watcher.Add(filepath.Join(dir, e.Name()))
		}
	}
	return nil
}

// Run processes events until ctx is cancelled or Close is called.
func (w *Watcher) Run(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			w.stop()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				w.stop()
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				w.stop()
				return
			}
			w.logger.Warn("fragment watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.watcher.Add(event.Name)
			return
		}
	}
	kind, name, ok := w.store.Locate(event.Name)
	if !ok {
		return
	}
	w.schedule(event.Name, kind, name)
}

// schedule resets the debounce timer for path.
func (w *Watcher) schedule(path string, kind domain.FragmentKind, name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return
		}
		delete(w.pending, path)
		w.mu.Unlock()

		w.logger.Info("fragment changed", "kind", kind, "name", name)
		if w.onChange != nil {
			w.onChange(kind, name)
		}
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

// Close stops the underlying fsnotify watcher and waits for Run to return.
func (w *Watcher) Close() error {
	err := w.watcher.Close()
	w.stop()
	select {
	case <-w.done:
	case <-time.After(time.Second):
	}
	return err
}
