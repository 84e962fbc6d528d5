// Package snapshot persists station readings so the aggregator can recover
// after a restart.
//
// Every driver stores two kinds of record: one snapshot per station and a
// station index listing the live ids. A snapshot is encoded the same way for
// all drivers: the first line is the write time in decimal epoch
// milliseconds and the remainder is the reading as a JSON object.
//
// Drivers:
//   - fs     - <dir>/stations/<id> files and <dir>/index, written via temp file + rename
//   - sqlite - snapshots and station_index tables (modernc.org/sqlite, no cgo)
//   - s3     - <prefix>stations/<id> and <prefix>index objects, MinIO compatible
//   - memory - in-process maps, nothing survives the process
//
// Backends are not internally serialised beyond what their storage gives;
// the aggregator calls them under its own lock.
package snapshot
