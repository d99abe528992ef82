package store

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	appLog "pcal/internal/log"
)

// WatchDebounce is how long Watch waits after the last change before
// reloading.
var WatchDebounce = 100 * time.Millisecond

// Watch reloads the store when events.csv (or additional.csv, when a field
// store is attached) changes on disk, until ctx is done. The parent
// directory is watched because saves replace the file by rename.
//
// onReload, if non-nil, is called after every successful reload.
func (s *Store) Watch(ctx context.Context, onReload func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	targets := map[string]func() error{}
	if abs, err := filepath.Abs(s.path); err == nil {
		targets[abs] = s.Reload
	}
	if s.fields != nil {
		if abs, err := filepath.Abs(s.fields.path); err == nil {
			targets[abs] = s.fields.Reload
		}
	}

	dirs := map[string]bool{}
	for p := range targets {
		dirs[filepath.Dir(p)] = true
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			return err
		}
	}

	var (
		mu       sync.Mutex
		debounce = make(map[string]*time.Timer)
	)
	defer func() {
		mu.Lock()
		for _, t := range debounce {
			t.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			reload, watched := targets[name]
			if !watched {
				continue
			}

			mu.Lock()
			if t, exists := debounce[name]; exists {
				t.Stop()
			}
			debounce[name] = time.AfterFunc(WatchDebounce, func() {
				mu.Lock()
				delete(debounce, name)
				mu.Unlock()

				if err := reload(); err != nil {
					appLog.Error("reload after file change failed", err, "path", name)
					return
				}
				appLog.Info("reloaded after file change", "path", name)
				if onReload != nil {
					onReload()
				}
			})
			mu.Unlock()

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			appLog.Warn("file watcher error", "err", err.Error())
		}
	}
}
