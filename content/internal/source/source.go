package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/weathermesh/weathermesh/pkg/filewatch"
	"github.com/weathermesh/weathermesh/pkg/types"
)

// ErrNoID is returned when the file has no id attribute.
var ErrNoID = errors.New("source: file has no id attribute")

// Load reads and parses the station file at path.
func Load(path string) (types.Reading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %q: %w", path, err)
	}
	defer f.Close()

	r, err := types.ParseKeyValue(f)
	if err != nil {
		return nil, fmt.Errorf("source: parse %q: %w", path, err)
	}
	if r.ID() == "" {
		return nil, fmt.Errorf("%w: %q", ErrNoID, path)
	}
	return r, nil
}

// Watch calls onChange with the freshly loaded reading each time path
// changes. It runs until ctx is cancelled. A reload that fails is logged and
// skipped.
func Watch(ctx context.Context, path string, onChange func(types.Reading)) error {
	slog.Info("source: watching for changes", "path", path)
	return filewatch.Watch(ctx, path, filewatch.DefaultDebounce, func() {
		r, err := Load(path)
		if err != nil {
			slog.Error("source: reload failed, keeping previous reading", "path", path, "err", err)
			return
		}
		slog.Info("source: reloaded", "path", path, "station", r.ID())
		onChange(r)
	})
}
