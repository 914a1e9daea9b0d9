package avatar

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher hot-reloads the filter's pattern overlay when the YAML file
// changes on disk. A bad overlay is logged and skipped; the filter keeps
// its last good rule set.
type Watcher struct {
	watcher  *fsnotify.Watcher
	filter   *Filter
	path     string
	debounce time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	cancel context.CancelFunc
}

// NewWatcher creates a watcher for the pattern overlay at path
func NewWatcher(filter *Filter, path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// watch the directory: editors replace files instead of writing in place
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		watcher:  fw,
		filter:   filter,
		path:     path,
		debounce: 500 * time.Millisecond,
	}, nil
}

// Start begins watching until the context is cancelled or Stop is called
func (w *Watcher) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
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
				log.Printf("avatar: watch error: %v", err)
			}
		}
	}()
}

// Stop stops watching
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.watcher.Close()
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	patterns, err := LoadPatterns(w.path)
	if err != nil {
		log.Printf("avatar: keeping previous patterns, reload failed: %v", err)
		return
	}
	if err := w.filter.Reload(patterns); err != nil {
		log.Printf("avatar: keeping previous patterns, compile failed: %v", err)
		return
	}
	log.Printf("avatar: reloaded patterns from %s", w.path)
}
