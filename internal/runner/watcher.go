package runner

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// OutputWatcher records when each tracked instance first writes to its log.
// It watches the log directories rather than the files, since the files are
// recreated on every launch.
type OutputWatcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	dirs    map[string]bool
	byPath  map[string]*activity
	byName  map[string]*activity
	logger  *slog.Logger
	stopCh  chan struct{}
	done    chan struct{}
}

type activity struct {
	name    string
	started time.Time
	first   time.Time
}

// NewOutputWatcher creates a watcher and starts its event loop.
func NewOutputWatcher(logger *slog.Logger) (*OutputWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &OutputWatcher{
		watcher: fw,
		dirs:    make(map[string]bool),
		byPath:  make(map[string]*activity),
		byName:  make(map[string]*activity),
		logger:  logger,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.watchLoop()
	return w, nil
}

// Track starts recording output for the instance logging to path. started
// is the launch time the first write is measured from.
func (w *OutputWatcher) Track(name, path string, started time.Time) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.dirs[dir] {
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("watching %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}

	a := &activity{name: name, started: started}
	// Output written between launch and now would have no event.
	if info, err := os.Stat(abs); err == nil && info.Size() > 0 {
		a.first = time.Now()
	}
	w.byPath[abs] = a
	w.byName[name] = a
	return nil
}

// FirstOutput returns how long after launch the instance first wrote to its
// log, and false when no write has been seen.
func (w *OutputWatcher) FirstOutput(name string) (time.Duration, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	a, ok := w.byName[name]
	if !ok || a.first.IsZero() {
		return 0, false
	}
	return a.first.Sub(a.started), true
}

// Stop terminates the event loop and closes the underlying watcher.
func (w *OutputWatcher) Stop() {
	close(w.stopCh)
	<-w.done
	w.watcher.Close()
}

func (w *OutputWatcher) watchLoop() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) {
				w.recordWrite(filepath.Clean(event.Name))
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)
		case <-w.stopCh:
			return
		}
	}
}

func (w *OutputWatcher) recordWrite(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	a, ok := w.byPath[path]
	if !ok || !a.first.IsZero() {
		return
	}
	a.first = time.Now()
	w.logger.Debug("instance produced first output",
		"instance", a.name,
		"after", a.first.Sub(a.started).Round(time.Millisecond),
	)
}
