// Package watch re-runs a callback when files under a directory tree change.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is how long a path must stay quiet before it is reported.
const DefaultDebounce = 200 * time.Millisecond

// ChangeFunc receives the settled paths of one debounce window, sorted.
type ChangeFunc func(ctx context.Context, paths []string)

// Options configures a Watcher.
type Options struct {
	Dir      string
	Debounce time.Duration
	// Ignore lists paths whose events are dropped, typically the render
	// output so a rebuild does not trigger itself.
	Ignore   []string
	OnChange ChangeFunc
	Logger   *zap.Logger
}

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Batches       int
	Errors        int
	LastEventPath string
	LastEventTime time.Time
}

// Watcher watches a directory tree recursively.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	dir         string
	ignore      map[string]bool
	onChange    ChangeFunc
	log         *zap.Logger
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stopped     bool
	stats       Stats
}

// New creates a Watcher. Call Start to begin watching.
func New(opts Options) (*Watcher, error) {
	dir, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	ignore := make(map[string]bool, len(opts.Ignore))
	for _, p := range opts.Ignore {
		if abs, err := filepath.Abs(p); err == nil {
			ignore[abs] = true
		}
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	d := opts.Debounce
	if d <= 0 {
		d = DefaultDebounce
	}
	return &Watcher{
		watcher:     fw,
		dir:         dir,
		ignore:      ignore,
		onChange:    opts.OnChange,
		log:         log,
		debounceMap: make(map[string]time.Time),
		debounceDur: d,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start adds every directory under Dir and begins the event loop. It does
// not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running || w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addTree(w.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	w.log.Info("watching", zap.String("dir", w.dir))

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit. A stopped
// Watcher cannot be restarted.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	wasRunning := w.running
	w.running = false
	w.stopped = true
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}

	if err := w.watcher.Close(); err != nil {
		w.log.Error("error closing watcher", zap.Error(err))
	}
	w.log.Debug("watcher stopped")
}

// Done is closed when the event loop exits. It never closes for a Watcher
// that was not started.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.watcher.Add(p)
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.debounceDur / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watch error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.processDebouncedEvents(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	if w.ignore[event.Name] || isScratch(filepath.Base(event.Name)) {
		return
	}

	// new directories join the watch set
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.log.Warn("failed to watch new directory", zap.String("dir", event.Name), zap.Error(err))
			}
		}
	}

	w.log.Debug("file event", zap.String("op", event.Op.String()), zap.String("path", event.Name))

	w.mu.Lock()
	w.stats.Events++
	w.stats.LastEventPath = event.Name
	w.stats.LastEventTime = time.Now()
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

// processDebouncedEvents reports paths that settled past the debounce
// window. Paths still receiving events wait for the next tick.
func (w *Watcher) processDebouncedEvents(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for p, t := range w.debounceMap {
		if now.Sub(t) >= w.debounceDur {
			settled = append(settled, p)
			delete(w.debounceMap, p)
		}
	}
	if len(settled) > 0 {
		w.stats.Batches++
	}
	w.mu.Unlock()

	if len(settled) == 0 || w.onChange == nil {
		return
	}
	sort.Strings(settled)
	w.onChange(ctx, settled)
}

// isScratch matches editor swap files and render temp files.
func isScratch(name string) bool {
	return strings.HasPrefix(name, ".htmlinc-") ||
		strings.HasPrefix(name, ".#") ||
		strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp")
}
