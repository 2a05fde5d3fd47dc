package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the bursts of events editors emit for one save
// (truncate + write, or write-temp + rename).
var reloadDebounce = 250 * time.Millisecond

// Watch monitors path and calls onChange with the newly loaded Config after
// each save that changes at least one section. It runs until ctx is
// cancelled.
//
// The containing directory is watched so saves that replace the file by
// rename are seen. If a reload fails (e.g. weights no longer sum to 100),
// the error is logged and the previous config remains active.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	path = filepath.Clean(path)
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	prev, err := Load(path)
	if err != nil {
		slog.Warn("config: initial load for watch failed", "path", path, "err", err)
	}
	slog.Info("config: watching for changes", "path", path)

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(reloadDebounce)

		case <-timer.C:
			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}
			changed := Changes(prev, cfg)
			if len(changed) == 0 {
				slog.Debug("config: file saved without changes", "path", path)
				continue
			}
			slog.Info("config: reloaded", "path", path, "changed", changed)
			for _, section := range changed {
				if section == "server" || section == "storage" {
					slog.Warn("config: section change takes effect on restart", "section", section)
				}
			}
			prev = cfg
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}

// Changes returns the yaml names of the top-level sections that differ
// between a and b, in declaration order. A nil a counts as all changed.
func Changes(a, b *Config) []string {
	if b == nil {
		return nil
	}
	bv := reflect.ValueOf(b).Elem()
	t := bv.Type()
	var out []string
	for i := 0; i < t.NumField(); i++ {
		if a != nil && reflect.DeepEqual(reflect.ValueOf(a).Elem().Field(i).Interface(), bv.Field(i).Interface()) {
			continue
		}
		out = append(out, t.Field(i).Tag.Get("yaml"))
	}
	return out
}
