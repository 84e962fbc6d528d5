// Package filewatch runs a callback when a single file changes on disk.
//
// The parent directory is watched rather than the file, so saves that replace
// the file (write to temp, rename over) keep being seen. Bursts of events are
// coalesced: the callback runs once the file has been quiet for the debounce
// period.
package filewatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period used by callers that have no reason to
// pick another.
const DefaultDebounce = 25 * time.Millisecond

// Watch calls onChange after path is written or re-created. It blocks until
// ctx is cancelled. path must exist when Watch is called.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func()) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("filewatch: %w", err)
	}
	target := filepath.Clean(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filewatch: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("filewatch: watch %q: %w", filepath.Dir(target), err)
	}

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce <= 0 {
				onChange()
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("filewatch: watcher error", "path", target, "err", err)
		}
	}
}
