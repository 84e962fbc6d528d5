package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	stationsDir = "stations"
	indexName   = "index"
)

// FS stores snapshots as files under a root directory.
type FS struct {
	root string
}

// NewFS returns a filesystem Backend rooted at dir, creating it if needed.
func NewFS(dir string) (*FS, error) {
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(filepath.Join(dir, stationsDir), 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create %q: %w", dir, err)
	}
	return &FS{root: dir}, nil
}

func (s *FS) Driver() Driver { return DriverFS }

func (s *FS) Close() error { return nil }

func (s *FS) stationPath(id string) (string, error) {
	if err := validID(id); err != nil {
		return "", err
	}
	return filepath.Join(s.root, stationsDir, id), nil
}

func (s *FS) WriteSnapshot(_ context.Context, id string, data []byte) error {
	p, err := s.stationPath(id)
	if err != nil {
		return err
	}
	return writeAtomic(p, data)
}

func (s *FS) ReadSnapshot(_ context.Context, id string) ([]byte, error) {
	p, err := s.stationPath(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %q: %w", id, err)
	}
	return data, nil
}

func (s *FS) DeleteSnapshot(_ context.Context, id string) error {
	p, err := s.stationPath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("snapshot: delete %q: %w", id, err)
	}
	return nil
}

func (s *FS) WriteIndex(_ context.Context, ids []string) error {
	return writeAtomic(filepath.Join(s.root, indexName), encodeIndex(ids))
}

func (s *FS) ReadIndex(_ context.Context) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, indexName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: read index: %w", err)
	}
	return decodeIndex(data), nil
}

func (s *FS) Purge(_ context.Context) error {
	if err := os.RemoveAll(filepath.Join(s.root, stationsDir)); err != nil {
		return fmt.Errorf("snapshot: purge stations: %w", err)
	}
	if err := os.Remove(filepath.Join(s.root, indexName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("snapshot: purge index: %w", err)
	}
	return os.MkdirAll(filepath.Join(s.root, stationsDir), 0o755)
}

// writeAtomic writes data to a temp file beside path and renames it into place.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("snapshot: create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("snapshot: write %q: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("snapshot: sync %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close %q: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("snapshot: rename %q: %w", path, err)
	}
	return nil
}
