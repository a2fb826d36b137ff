package manifest

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrorCallback is called when a reload fails.
type ErrorCallback func(error)

// Watcher re-applies a manifest file whenever it changes. Bursts of file
// events are debounced into one reload.
type Watcher struct {
	path          string
	applier       *Applier
	watcher       *fsnotify.Watcher
	errorCallback ErrorCallback
	logger        *zap.Logger
	debounceDelay time.Duration
	mu            sync.Mutex
	stopCh        chan struct{}
	stoppedCh     chan struct{}
	running       bool
}

// WatcherOption is a functional option for configuring the watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets the debounce delay for file changes.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = delay
	}
}

// WithLogger sets the logger for the watcher.
func WithLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithErrorCallback sets the error callback for the watcher.
func WithErrorCallback(callback ErrorCallback) WatcherOption {
	return func(w *Watcher) {
		w.errorCallback = callback
	}
}

// NewWatcher creates a watcher applying the manifest at path with applier.
func NewWatcher(path string, applier *Applier, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:          absPath,
		applier:       applier,
		watcher:       fsWatcher,
		debounceDelay: 100 * time.Millisecond,
		logger:        zap.NewNop(),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start applies the manifest once and then watches it until ctx is done or
// Stop is called. The initial load error, if any, is returned.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.ForceReload(); err != nil {
		w.setStopped()
		return err
	}

	// Watch the directory so that editors replacing the file are noticed.
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.setStopped()
		return err
	}

	w.logger.Info("Watching manifest", zap.String("path", w.path))

	go w.watch(ctx)
	return nil
}

func (w *Watcher) setStopped() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// Stop stops watching and releases the file system watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.watcher.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh

	return w.watcher.Close()
}

// watch is the main watch loop.
func (w *Watcher) watch(ctx context.Context) {
	defer close(w.stoppedCh)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Manifest watcher stopped due to context cancellation")
			return

		case <-w.stopCh:
			w.logger.Info("Manifest watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debug("Manifest changed",
				zap.String("path", event.Name),
				zap.String("op", event.Op.String()),
			)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.debounceDelay)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Manifest watcher error", zap.Error(err))
			w.report(err)
		}
	}
}

// relevant reports whether event is a write or create of the watched file.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create) != 0
}

func (w *Watcher) reload() {
	w.logger.Info("Reloading manifest", zap.String("path", w.path))
	if err := w.ForceReload(); err != nil {
		w.logger.Error("Failed to reload manifest", zap.String("path", w.path), zap.Error(err))
		w.report(err)
	}
}

func (w *Watcher) report(err error) {
	if w.errorCallback != nil {
		w.errorCallback(err)
	}
}

// ForceReload loads and applies the manifest immediately.
func (w *Watcher) ForceReload() error {
	m, err := Load(w.path)
	if err != nil {
		return err
	}
	return w.applier.Apply(m)
}
