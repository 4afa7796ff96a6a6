// Package config loads layered configuration: defaults, a YAML file, a .env
// file, MCQREVIEW_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/conorfennell/mcqreview/internal/review"
	"github.com/conorfennell/mcqreview/internal/storage"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MCQREVIEW_"

// Config is the full application configuration.
type Config struct {
	Storage StorageConfig `koanf:"storage"`
	Redis   RedisConfig   `koanf:"redis"`
	HTTP    HTTPConfig    `koanf:"http"`
	Log     LogConfig     `koanf:"log"`
}

// StorageConfig selects the backend and the key the snapshot is stored under.
type StorageConfig struct {
	Backend string `koanf:"backend" validate:"oneof=sqlite redis file memory"`
	DSN     string `koanf:"dsn" validate:"required_if=Backend sqlite"`
	Dir     string `koanf:"dir" validate:"required_if=Backend file"`
	Key     string `koanf:"key" validate:"required"`
}

// RedisConfig holds the connection settings for the redis backend.
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db" validate:"gte=0"`
	KeyPrefix string `koanf:"key_prefix"`
}

// HTTPConfig configures the serve command.
type HTTPConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// LogConfig selects the logger output mode and level.
type LogConfig struct {
	Mode  string `koanf:"mode" validate:"oneof=dev prod"`
	Level string `koanf:"level" validate:"omitempty,oneof=debug info warn error"`
}

var defaults = map[string]any{
	"storage.backend":       string(storage.KindSQLite),
	"storage.dsn":           "mcqreview.db",
	"storage.dir":           "data",
	"storage.key":           review.DefaultSnapshotKey,
	"redis.addr":            storage.DefaultRedisOptions().Addr,
	"redis.password":        "",
	"redis.db":              0,
	"redis.key_prefix":      storage.DefaultRedisOptions().KeyPrefix,
	"http.addr":             ":8080",
	"http.shutdown_timeout": "10s",
	"log.mode":              "dev",
	"log.level":             "info",
}

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"backend":   "storage.backend",
	"db":        "storage.dsn",
	"data-dir":  "storage.dir",
	"key":       "storage.key",
	"redis":     "redis.addr",
	"addr":      "http.addr",
	"log-mode":  "log.mode",
	"log-level": "log.level",
}

// RegisterFlags adds the configuration flags to flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String("env-file", ".env", "Path to a .env file")
	flags.String("backend", string(storage.KindSQLite), "Storage backend: sqlite, redis, file or memory")
	flags.String("db", "mcqreview.db", "Path to the SQLite database file")
	flags.String("data-dir", "data", "Directory for the file backend")
	flags.String("key", review.DefaultSnapshotKey, "Identifier the snapshot is stored under")
	flags.String("redis", storage.DefaultRedisOptions().Addr, "Redis address")
	flags.String("addr", ":8080", "HTTP listen address")
	flags.String("log-mode", "dev", "Log output: dev or prod")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
}

// Load builds the configuration. flags may be nil; otherwise it should have
// been populated by RegisterFlags and parsed.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, errors.Wrapf(err, "failed to set default %s", key)
		}
	}

	if path := flagString(flags, "config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", path)
		}
	}

	// godotenv never overrides variables that are already set.
	if path := flagString(flags, "env-file"); path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Wrapf(err, "failed to load env file %s", path)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load environment")
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, errors.Wrap(err, "failed to load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for missing or out-of-range values.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	if c.Storage.Backend == string(storage.KindRedis) && c.Redis.Addr == "" {
		return errors.New("invalid configuration: redis.addr is required for the redis backend")
	}
	return nil
}

// StorageOptions converts the configuration into storage.Options.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Kind: storage.Kind(c.Storage.Backend),
		DSN:  c.Storage.DSN,
		Dir:  c.Storage.Dir,
		Redis: storage.RedisOptions{
			Addr:      c.Redis.Addr,
			Password:  c.Redis.Password,
			DB:        c.Redis.DB,
			KeyPrefix: c.Redis.KeyPrefix,
		},
	}
}

// envKey turns MCQREVIEW_STORAGE__BACKEND into storage.backend.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

func flagString(flags *pflag.FlagSet, name string) string {
	if flags == nil || flags.Lookup(name) == nil {
		return ""
	}
	v, _ := flags.GetString(name)
	return v
}
