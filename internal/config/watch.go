// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// watchDebounce collapses the burst of events editors emit on save.
const watchDebounce = 100 * time.Millisecond

// Watch re-reads path whenever it changes and passes each config that loads
// and validates to onChange. Bad edits are logged and skipped. The watcher
// runs until ctx is done.
//
// The parent directory is watched rather than the file, so atomic saves
// (write to temp, rename over) are still seen.
func Watch(ctx context.Context, path string, onChange func(*Config), logger zerolog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	go func() {
		defer watcher.Close()

		var (
			timer <-chan time.Time
			t     *time.Timer
		)
		for {
			select {
			case <-ctx.Done():
				if t != nil {
					t.Stop()
				}
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if t != nil {
					t.Stop()
				}
				t = time.NewTimer(watchDebounce)
				timer = t.C

			case <-timer:
				timer = nil
				cfg, err := LoadFromPath(path)
				if err != nil {
					logger.Warn().Err(err).Str("path", path).Msg("config reload failed; keeping previous settings")
					continue
				}
				logger.Info().Str("path", path).Msg("config reloaded")
				onChange(cfg)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("config watcher error")
			}
		}
	}()
	return nil
}
