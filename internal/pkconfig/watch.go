package pkconfig

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of filesystem events most editors and
// config-management tools emit per save into a single reload.
const watchDebounce = 200 * time.Millisecond

// Watch re-loads configPath whenever it changes on disk and hands the
// fresh Config to onChange. Load failures (including a half-written file
// caught mid-save) go to onError and leave the running configuration
// untouched. The watch follows atomic rename-into-place saves by watching
// the parent directory rather than the file itself.
//
// The returned stop function releases the watcher; it is safe to call
// more than once.
func Watch(configPath string, onChange func(*Config), onError func(error)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("pkconfig: create watcher: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("pkconfig: watch %s: %w", dir, err)
	}

	done := make(chan struct{})
	go func() {
		var pending <-chan time.Time
		for {
			select {
			case <-done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(configPath) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				pending = time.After(watchDebounce)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			case <-pending:
				pending = nil
				cfg, err := Load(configPath)
				if err != nil {
					if onError != nil {
						onError(err)
					}
					continue
				}
				onChange(cfg)
			}
		}
	}()

	var stopped bool
	return func() {
		if stopped {
			return
		}
		stopped = true
		close(done)
		_ = watcher.Close()
	}, nil
}
