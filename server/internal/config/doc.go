// Package config loads the aggregator configuration from a YAML file.
//
// Config fields:
//   - Server.Port                 - weather protocol port (default 4567)
//   - Server.ReadTimeout          - per-connection read deadline, 0 disables (default 0)
//   - Server.Eviction.Expiry      - age at which a station expires (default 30s)
//   - Server.Eviction.Capacity    - maximum live stations (default 20)
//   - Server.Snapshot.Driver      - fs | sqlite | s3 | memory (default fs)
//   - Server.Snapshot.Dir         - fs driver root (default "data")
//   - Server.Snapshot.SQLitePath  - sqlite database file (default data/weathermesh.db)
//   - Server.Snapshot.S3          - bucket, prefix, region, endpoint, credentials env names
//   - Server.Admin.Port           - read-only admin HTTP port, 0 disables (default 0)
//   - Server.Admin.StreamInterval - WebSocket push period (default 5s)
//   - Server.Admin.Auth           - apikey | none, key_env, header (default none)
//   - Log.Level                   - debug | info | warn | error (default info)
//
// Load(path) applies defaults before unmarshalling, then validates. An empty
// path yields the defaults. Watch reloads the file on change; only Log.Level
// is meant to be applied without a restart.
package config
