package config

import (
	"context"
	"log/slog"

	"github.com/weathermesh/weathermesh/pkg/filewatch"
)

// Watch reloads path whenever it changes and passes the result to onChange.
// It runs until ctx is cancelled. An invalid file is logged and skipped; the
// previous config stays active.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	slog.Info("config: watching for changes", "path", path)
	return filewatch.Watch(ctx, path, filewatch.DefaultDebounce, func() {
		cfg, err := Load(path)
		if err != nil {
			slog.Error("config: reload failed, keeping previous config", "path", path, "err", err)
			return
		}
		slog.Info("config: reloaded", "path", path, "log_level", cfg.Log.Level)
		onChange(cfg)
	})
}
