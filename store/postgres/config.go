package postgres

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type RetryCfg struct {
	Attempts int           `koanf:"attempts"` // connection attempts before giving up
	Backoff  time.Duration `koanf:"backoff"`
}

type PoolCfg struct {
	MaxOpen     int           `koanf:"max_open"`
	MaxIdle     int           `koanf:"max_idle"`
	MaxLifetime time.Duration `koanf:"max_lifetime"`
}

type Config struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Database string `koanf:"database"`
	Schema   string `koanf:"schema"`
	SSLMode  string `koanf:"ssl_mode"`

	WriteTimeout time.Duration `koanf:"write_timeout"` // per async write
	Retry        RetryCfg      `koanf:"retry"`
	Pool         PoolCfg       `koanf:"pool"`
}

// LoadConfig merges YAML (if present) with env-vars
// (prefix `GRANARY_STORE__`, delimiter `__`).
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	sv := k.String("schema_version")
	if sv != "" && sv != "v1" {
		return Config{}, fmt.Errorf("store schema_version %q not supported (want v1)", sv)
	}

	_ = k.Load(env.Provider("GRANARY_STORE__", "__", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "GRANARY_STORE__"))
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func applyDefaults(c *Config) {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.Schema == "" {
		c.Schema = "public"
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.Retry.Attempts == 0 {
		c.Retry.Attempts = 5
	}
	if c.Retry.Backoff == 0 {
		c.Retry.Backoff = 2 * time.Second
	}
	if c.Pool.MaxOpen == 0 {
		c.Pool.MaxOpen = 50
	}
	if c.Pool.MaxIdle == 0 {
		c.Pool.MaxIdle = 10
	}
	if c.Pool.MaxLifetime == 0 {
		c.Pool.MaxLifetime = time.Hour
	}
}
