package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/weathermesh/weathermesh/pkg/types"
	"github.com/weathermesh/weathermesh/server/internal/config"
)

// Driver identifies a concrete Backend implementation.
type Driver string

const (
	DriverFS     Driver = "fs"
	DriverSQLite Driver = "sqlite"
	DriverS3     Driver = "s3"
	DriverMemory Driver = "memory"
)

// Remote reports whether d stores snapshots over the network.
func (d Driver) Remote() bool { return d == DriverS3 }

// ErrNotFound is returned by ReadSnapshot when no snapshot exists for a station.
var ErrNotFound = errors.New("snapshot: not found")

// Backend stores encoded station snapshots and the station index.
type Backend interface {
	// WriteSnapshot replaces the snapshot for id.
	WriteSnapshot(ctx context.Context, id string, data []byte) error
	// ReadSnapshot returns the snapshot for id, or ErrNotFound.
	ReadSnapshot(ctx context.Context, id string) ([]byte, error)
	// DeleteSnapshot removes the snapshot for id. Deleting a missing snapshot is not an error.
	DeleteSnapshot(ctx context.Context, id string) error
	// WriteIndex replaces the station index with ids.
	WriteIndex(ctx context.Context, ids []string) error
	// ReadIndex returns the station index. A missing index yields no ids and no error.
	ReadIndex(ctx context.Context) ([]string, error)
	// Purge removes every snapshot and the index.
	Purge(ctx context.Context) error
	Close() error
	Driver() Driver
}

// Open constructs the Backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.SnapshotConfig) (Backend, error) {
	switch Driver(cfg.Driver) {
	case DriverFS, "":
		return NewFS(cfg.Dir)
	case DriverSQLite:
		return NewSQLite(ctx, cfg.SQLitePath)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("snapshot: unknown driver %q", cfg.Driver)
	}
}

// Encode renders a reading and its write time in the snapshot format.
func Encode(writtenAt time.Time, r types.Reading) ([]byte, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode reading: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(strconv.FormatInt(writtenAt.UnixMilli(), 10))
	buf.WriteByte('\n')
	buf.Write(body)
	return buf.Bytes(), nil
}

// Decode parses a snapshot produced by Encode.
func Decode(data []byte) (time.Time, types.Reading, error) {
	line, rest, ok := bytes.Cut(data, []byte("\n"))
	if !ok {
		return time.Time{}, nil, fmt.Errorf("snapshot: decode: missing timestamp line")
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(line)), 10, 64)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("snapshot: decode timestamp: %w", err)
	}
	r, err := types.ParseReading(rest)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("snapshot: decode reading: %w", err)
	}
	return time.UnixMilli(ms), r, nil
}

// encodeIndex renders ids one per line.
func encodeIndex(ids []string) []byte {
	var buf bytes.Buffer
	for _, id := range ids {
		buf.WriteString(id)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// decodeIndex parses an index written by encodeIndex, skipping blank lines.
func decodeIndex(data []byte) []string {
	var ids []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if id := strings.TrimSpace(sc.Text()); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// validID rejects ids that cannot be used as a file or object name.
func validID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, "/\\\n") {
		return fmt.Errorf("snapshot: invalid station id %q", id)
	}
	return nil
}
