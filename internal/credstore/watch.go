package credstore

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch invokes onChange whenever the credential file is created, written,
// renamed, or removed, including by another process sharing the store
// path. Local Set/Clear calls go through the filesystem too, so same- and
// cross-process changes arrive on the same path. The callback runs on the
// watcher goroutine; it must not block for long. The returned stop
// function releases the watcher and is safe to call once.
func (s *Store) Watch(onChange func()) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("credstore: create watcher: %w", err)
	}

	// Watch the directory, not the file: atomic rename replaces the inode,
	// and a file-level watch would go stale after the first Set.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("credstore: watch %s: %w", dir, err)
	}

	base := filepath.Base(s.path)
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				onChange()
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
				// Transient watch errors are not actionable here; the next
				// event (or a manual retry) re-syncs the caller.
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			_ = watcher.Close()
			<-finished
		})
	}, nil
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
