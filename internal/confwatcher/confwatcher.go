// Package confwatcher contains a configuration file watcher.
package confwatcher

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	minInterval = 1 * time.Second
)

// ConfWatcher is a configuration file watcher.
type ConfWatcher struct {
	inner    *fsnotify.Watcher
	absPath  string
	lastSent time.Time

	// out
	signal chan struct{}
	done   chan struct{}
}

// New allocates a ConfWatcher.
func New(confPath string) (*ConfWatcher, error) {
	absPath, err := filepath.Abs(confPath)
	if err != nil {
		return nil, err
	}

	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// watch the parent directory, since text editors
	// typically rewrite files through a rename
	err = inner.Add(filepath.Dir(absPath))
	if err != nil {
		inner.Close()
		return nil, err
	}

	w := &ConfWatcher{
		inner:   inner,
		absPath: absPath,
		signal:  make(chan struct{}),
		done:    make(chan struct{}),
	}

	go w.run()

	return w, nil
}

// Close closes a ConfWatcher.
func (w *ConfWatcher) Close() {
	go func() {
		for range w.signal {
		}
	}()
	w.inner.Close()
	<-w.done
}

func (w *ConfWatcher) run() {
	defer close(w.done)

outer:
	for {
		select {
		case event, ok := <-w.inner.Events:
			if !ok {
				break outer
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			eventPath, err := filepath.Abs(event.Name)
			if err != nil || eventPath != w.absPath {
				continue
			}

			if _, err := os.Stat(w.absPath); err != nil {
				continue
			}

			now := time.Now()
			if now.Sub(w.lastSent) < minInterval {
				continue
			}
			w.lastSent = now

			// wait some additional time to let the write settle
			time.Sleep(10 * time.Millisecond)
			w.signal <- struct{}{}

		case _, ok := <-w.inner.Errors:
			if !ok {
				break outer
			}
		}
	}

	close(w.signal)
}

// Watch returns a channel that is notified when the configuration file changes.
func (w *ConfWatcher) Watch() chan struct{} {
	return w.signal
}
