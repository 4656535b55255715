// =============================================================================
// SuperAgent configuration file watcher
// =============================================================================
// Watches configuration files for changes and triggers reload callbacks.
// Uses fsnotify for cross-platform notifications, with a mtime-polling
// fallback when the OS notifier cannot be initialized.
// =============================================================================
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileWatcher watches configuration files and dispatches debounced change
// events to registered callbacks.
type FileWatcher struct {
	mu sync.RWMutex

	paths         []string
	debounceDelay time.Duration

	running   bool
	stopChan  chan struct{}
	eventChan chan FileEvent

	callbacks []func(event FileEvent)
	logger    *zap.Logger

	// lastModTimes backs the polling fallback.
	lastModTimes map[string]time.Time

	// fsWatcher is the OS-level notifier. Nil when fsnotify failed to
	// initialize (inotify watch limit exhausted, restricted sandbox);
	// Start then runs the polling loop only.
	fsWatcher *fsnotify.Watcher
}

// FileEvent is one observed change to a watched file.
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
	Error     error     `json:"error,omitempty"`
}

// FileOp classifies a file change.
type FileOp int

const (
	FileOpCreate FileOp = iota
	FileOpWrite
	FileOpRemove
	FileOpRename
	FileOpChmod
)

func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	case FileOpRename:
		return "RENAME"
	case FileOpChmod:
		return "CHMOD"
	default:
		return "UNKNOWN"
	}
}

// WatcherOption configures a FileWatcher.
type WatcherOption func(*FileWatcher)

// WithDebounceDelay sets how long to coalesce bursts of events for the
// same file before dispatching one.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		w.debounceDelay = d
	}
}

// WithWatcherLogger sets the watcher's logger.
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		w.logger = logger
	}
}

// NewFileWatcher creates a watcher over paths. The fsnotify watcher is
// created lazily in Start so construction never fails on OS limits.
func NewFileWatcher(paths []string, opts ...WatcherOption) (*FileWatcher, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("at least one path is required")
	}

	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		a, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		abs = append(abs, a)
	}

	w := &FileWatcher{
		paths:         abs,
		debounceDelay: 250 * time.Millisecond,
		stopChan:      make(chan struct{}),
		eventChan:     make(chan FileEvent, 16),
		lastModTimes:  make(map[string]time.Time),
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// OnChange registers a callback invoked for every debounced event.
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching until ctx is cancelled or Stop is called.
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.stopChan = make(chan struct{})

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("fsnotify unavailable, falling back to polling", zap.Error(err))
	} else {
		w.fsWatcher = fsw
		for _, p := range w.paths {
			// Watch the directory: editors replace files via rename,
			// which drops a watch on the file itself.
			if err := fsw.Add(filepath.Dir(p)); err != nil {
				w.logger.Warn("failed to watch directory", zap.String("path", p), zap.Error(err))
			}
		}
	}

	for _, p := range w.paths {
		if info, err := os.Stat(p); err == nil {
			w.lastModTimes[p] = info.ModTime()
		}
	}
	w.mu.Unlock()

	go w.dispatchLoop(ctx)
	if w.fsWatcher != nil {
		go w.fsNotifyLoop(ctx)
	} else {
		go w.pollLoop(ctx)
	}
	return nil
}

// Stop halts watching and releases the OS watcher.
func (w *FileWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopChan)
	if w.fsWatcher != nil {
		err := w.fsWatcher.Close()
		w.fsWatcher = nil
		return err
	}
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (w *FileWatcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// Paths returns the watched paths.
func (w *FileWatcher) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]string, len(w.paths))
	copy(out, w.paths)
	return out
}

func (w *FileWatcher) watched(path string) bool {
	for _, p := range w.paths {
		if p == path {
			return true
		}
	}
	return false
}

func (w *FileWatcher) fsNotifyLoop(ctx context.Context) {
	w.mu.RLock()
	fsw := w.fsWatcher
	w.mu.RUnlock()
	if fsw == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil || !w.watched(abs) {
				continue
			}
			w.eventChan <- FileEvent{Path: abs, Op: mapFsnotifyOp(ev.Op), Timestamp: time.Now()}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func mapFsnotifyOp(op fsnotify.Op) FileOp {
	switch {
	case op.Has(fsnotify.Create):
		return FileOpCreate
	case op.Has(fsnotify.Write):
		return FileOpWrite
	case op.Has(fsnotify.Remove):
		return FileOpRemove
	case op.Has(fsnotify.Rename):
		return FileOpRename
	default:
		return FileOpChmod
	}
}

// pollLoop checks file mtimes once per second.
func (w *FileWatcher) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.checkFiles()
		}
	}
}

func (w *FileWatcher) checkFiles() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, p := range w.paths {
		info, err := os.Stat(p)
		if err != nil {
			if _, known := w.lastModTimes[p]; known {
				delete(w.lastModTimes, p)
				w.eventChan <- FileEvent{Path: p, Op: FileOpRemove, Timestamp: time.Now()}
			}
			continue
		}
		last, known := w.lastModTimes[p]
		w.lastModTimes[p] = info.ModTime()
		if !known {
			w.eventChan <- FileEvent{Path: p, Op: FileOpCreate, Timestamp: time.Now()}
		} else if info.ModTime().After(last) {
			w.eventChan <- FileEvent{Path: p, Op: FileOpWrite, Timestamp: time.Now()}
		}
	}
}

// dispatchLoop debounces per-path bursts, then fans each surviving event
// out to the registered callbacks.
func (w *FileWatcher) dispatchLoop(ctx context.Context) {
	pending := make(map[string]FileEvent)
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		w.mu.RLock()
		callbacks := make([]func(FileEvent), len(w.callbacks))
		copy(callbacks, w.callbacks)
		w.mu.RUnlock()

		for _, ev := range pending {
			for _, cb := range callbacks {
				cb(ev)
			}
		}
		pending = make(map[string]FileEvent)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case ev := <-w.eventChan:
			pending[ev.Path] = ev
			if timer == nil {
				timer = time.NewTimer(w.debounceDelay)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounceDelay)
			}
		case <-timerC:
			flush()
			timer = nil
			timerC = nil
		}
	}
}
