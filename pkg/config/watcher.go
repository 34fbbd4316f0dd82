package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDuration = 500 * time.Millisecond

// WatchConfig initializes a filesystem watcher for the specified files.
// It returns a channel that emits an empty struct when a change is detected
// and debounced. The watcher runs in a goroutine until the context is canceled.
// Parent directories are watched so editors that replace the file on save,
// and files created after startup, are still seen.
func WatchConfig(ctx context.Context, files ...string) <-chan struct{} {
	reloadCh := make(chan struct{}, 1) // Buffer 1 so we don't block sender

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create fsnotify watcher", "error", err)
		close(reloadCh)
		return reloadCh
	}

	targets := make(map[string]bool)
	for _, file := range files {
		absPath, err := filepath.Abs(file)
		if err != nil {
			slog.Warn("Could not resolve absolute path for watch file", "file", file)
			continue
		}
		targets[absPath] = true
		if err := watcher.Add(filepath.Dir(absPath)); err != nil {
			slog.Warn("Could not watch file", "file", file, "error", err)
		} else {
			slog.Debug("Watching configuration file", "file", file)
		}
	}

	go func() {
		var (
			mu     sync.Mutex
			timer  *time.Timer
			closed bool
		)
		defer func() {
			mu.Lock()
			closed = true
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			watcher.Close()
			close(reloadCh)
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !targets[filepath.Clean(event.Name)] {
					continue
				}
				// We only care about file modifications or recreations (like Vim/nano atomic saves)
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
					continue
				}
				name := event.Name
				mu.Lock()
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounceDuration, func() {
					mu.Lock()
					defer mu.Unlock()
					if closed {
						return
					}
					slog.Info("Configuration change detected", "file", name)
					// Non-blocking send
					select {
					case reloadCh <- struct{}{}:
					default:
					}
				})
				mu.Unlock()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Watcher encountered an error", "error", err)
			}
		}
	}()

	return reloadCh
}

// Follow reloads path on every change and hands the new config to apply.
// A config that fails to load or validate is logged and skipped, so the
// last good one stays in effect. It blocks until ctx is done.
func Follow(ctx context.Context, path string, apply func(*Config)) {
	for range WatchConfig(ctx, path) {
		cfg, err := Load(path)
		if err != nil {
			slog.Error("Config reload failed, keeping previous settings", "file", path, "error", err)
			continue
		}
		apply(cfg)
		slog.Info("Configuration reloaded", "file", path)
	}
}
