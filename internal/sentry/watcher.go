package sentry

import (
	"SentinelQoS/internal/logger"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a classifier's model when its artifact is written or replaced.
type Watcher struct {
	classifier *Classifier
	watcher    *fsnotify.Watcher
	debounce   time.Duration
	onReload   func(error)
}

// NewWatcher watches the directory holding the classifier's model artifact, so
// that atomic renames into place are observed too. onReload may be nil.
func NewWatcher(c *Classifier, onReload func(error)) (*Watcher, error) {
	if c.ModelPath() == "" {
		return nil, fmt.Errorf("classifier has no model path to watch")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	dir := filepath.Dir(c.ModelPath())
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return &Watcher{classifier: c, watcher: fw, debounce: 250 * time.Millisecond, onReload: onReload}, nil
}

// Run processes file events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	target := filepath.Clean(w.classifier.ModelPath())
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.After(w.debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Log().Warnf("Model watcher error: %v", err)
		case <-pending:
			pending = nil
			err := w.classifier.Reload()
			if err != nil {
				logger.Log().Warnf("Model reload failed, keeping previous model: %v", err)
			}
			if w.onReload != nil {
				w.onReload(err)
			}
		}
	}
}
