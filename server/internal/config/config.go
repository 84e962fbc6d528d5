package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultPort           = 4567
	DefaultExpiry         = 30 * time.Second
	DefaultCapacity       = 20
	DefaultDriver         = "fs"
	DefaultDir            = "data"
	DefaultSQLitePath     = "data/weathermesh.db"
	DefaultS3Prefix       = "weathermesh/"
	DefaultS3Region       = "us-east-1"
	DefaultStreamInterval = 5 * time.Second
	DefaultLogLevel       = "info"
)

// Config is the root of config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig holds all aggregator settings.
type ServerConfig struct {
	// Port is the weather protocol listen port. A port given on the command
	// line takes precedence.
	Port int `yaml:"port"`

	// ReadTimeout bounds how long a connection may take to deliver its request.
	// Zero means no deadline.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	Eviction EvictionConfig `yaml:"eviction"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Admin    AdminConfig    `yaml:"admin"`
}

// EvictionConfig controls expiry and capacity eviction.
type EvictionConfig struct {
	// Expiry is how long a station stays live after its last write.
	Expiry time.Duration `yaml:"expiry"`

	// Capacity is the maximum number of live stations; the oldest are evicted
	// beyond it.
	Capacity int `yaml:"capacity"`
}

// SnapshotConfig selects and configures the persistence driver.
type SnapshotConfig struct {
	// Driver is one of: fs | sqlite | s3 | memory.
	Driver     string   `yaml:"driver"`
	Dir        string   `yaml:"dir"`
	SQLitePath string   `yaml:"sqlite_path"`
	S3         S3Config `yaml:"s3"`
}

// S3Config configures the s3 snapshot driver.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`

	// AccessKeyEnv and SecretKeyEnv name environment variables holding static
	// credentials. When empty, the default AWS credential chain is used.
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
}

// Credentials returns the static credentials resolved from the environment.
// ok is false unless both values are set.
func (c S3Config) Credentials() (accessKey, secretKey string, ok bool) {
	if c.AccessKeyEnv == "" || c.SecretKeyEnv == "" {
		return "", "", false
	}
	accessKey, secretKey = os.Getenv(c.AccessKeyEnv), os.Getenv(c.SecretKeyEnv)
	return accessKey, secretKey, accessKey != "" && secretKey != ""
}

// AdminConfig controls the read-only admin HTTP listener.
type AdminConfig struct {
	// Port is the admin listen port. Zero disables the admin surface.
	Port           int           `yaml:"port"`
	StreamInterval time.Duration `yaml:"stream_interval"`

	// Auth guards the admin endpoints.
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig controls API key authentication on the admin listener.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "X-API-Key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "X-API-Key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "X-API-Key"
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// SlogLevel maps Level onto a slog.Level.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the config file at path. An empty path returns the
// defaults. Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port: DefaultPort,
			Eviction: EvictionConfig{
				Expiry:   DefaultExpiry,
				Capacity: DefaultCapacity,
			},
			Snapshot: SnapshotConfig{
				Driver:     DefaultDriver,
				Dir:        DefaultDir,
				SQLitePath: DefaultSQLitePath,
				S3: S3Config{
					Prefix: DefaultS3Prefix,
					Region: DefaultS3Region,
				},
			},
			Admin: AdminConfig{
				StreamInterval: DefaultStreamInterval,
			},
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := cfg.Server
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range [1, 65535]", s.Port)
	}
	if s.Admin.Port < 0 || s.Admin.Port > 65535 {
		return fmt.Errorf("server.admin.port %d is out of range [0, 65535]", s.Admin.Port)
	}
	if s.Admin.Port != 0 && s.Admin.Port == s.Port {
		return fmt.Errorf("server.admin.port must differ from server.port")
	}
	if s.Admin.StreamInterval <= 0 {
		return fmt.Errorf("server.admin.stream_interval must be positive")
	}
	switch s.Admin.Auth.Mode {
	case "apikey":
		if s.Admin.Auth.KeyEnv == "" {
			return fmt.Errorf("server.admin.auth.key_env is required for apikey mode")
		}
	case "none", "":
	default:
		return fmt.Errorf("server.admin.auth.mode %q unknown: want apikey|none", s.Admin.Auth.Mode)
	}
	if s.ReadTimeout < 0 {
		return fmt.Errorf("server.read_timeout must not be negative")
	}
	if s.Eviction.Expiry <= 0 {
		return fmt.Errorf("server.eviction.expiry must be positive")
	}
	if s.Eviction.Capacity <= 0 {
		return fmt.Errorf("server.eviction.capacity must be positive")
	}
	switch s.Snapshot.Driver {
	case "fs":
		if s.Snapshot.Dir == "" {
			return fmt.Errorf("server.snapshot.dir is required for the fs driver")
		}
	case "sqlite":
		if s.Snapshot.SQLitePath == "" {
			return fmt.Errorf("server.snapshot.sqlite_path is required for the sqlite driver")
		}
	case "s3":
		if s.Snapshot.S3.Bucket == "" {
			return fmt.Errorf("server.snapshot.s3.bucket is required for the s3 driver")
		}
	case "memory":
	default:
		return fmt.Errorf("server.snapshot.driver %q unknown: want fs|sqlite|s3|memory", s.Snapshot.Driver)
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q unknown: want debug|info|warn|error", cfg.Log.Level)
	}
	return nil
}
