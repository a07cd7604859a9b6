// Package config loads mqlua settings from a YAML or JSON file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/mqlua/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given. Its absence is not an error.
const DefaultPath = "mqlua.yaml"

// Loader kinds.
const (
	LoaderFile  = "file"
	LoaderRedis = "redis"
)

type Config struct {
	Housekeeping bool           `mapstructure:"housekeeping"`
	Interactive  bool           `mapstructure:"interactive"`
	Log          LogConfig      `mapstructure:"log"`
	Loader       LoaderConfig   `mapstructure:"loader"`
	Limits       LimitsConfig   `mapstructure:"limits"`
	Admin        AdminConfig    `mapstructure:"admin"`
	Globals      map[string]any `mapstructure:"globals"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type LoaderConfig struct {
	Kind    string      `mapstructure:"kind"`
	BaseDir string      `mapstructure:"base_dir"`
	Cache   bool        `mapstructure:"cache"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type LimitsConfig struct {
	MaxNodes  int `mapstructure:"max_nodes"`
	MaxDepth  int `mapstructure:"max_depth"`
	MaxValues int `mapstructure:"max_values"`
}

type AdminConfig struct {
	// Addr enables the admin endpoint when non-empty.
	Addr string `mapstructure:"addr"`
}

// Default returns the built-in settings: housekeeping on, file loader,
// text logs at info.
func Default() Config {
	return Config{
		Housekeeping: true,
		Log:          LogConfig{Level: "info", Format: "text"},
		Loader: LoaderConfig{
			Kind: LoaderFile,
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Prefix:  "mqlua:program:",
				Timeout: 5 * time.Second,
			},
		},
		Limits: LimitsConfig{MaxDepth: 256, MaxValues: 1 << 20},
	}
}

// Load reads path on top of Default. A missing file yields the defaults
// when missingOK is set.
func Load(path string, missingOK bool) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && missingOK {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	raw := map[string]any{}
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &raw); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	if err := decode(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", filepath.Base(path), err)
	}
	return cfg, cfg.Validate()
}

func decode(raw map[string]any, out *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// Validate reports settings that can not work together.
func (c Config) Validate() error {
	switch c.Loader.Kind {
	case LoaderFile, LoaderRedis:
	default:
		return fmt.Errorf("unknown loader kind %q", c.Loader.Kind)
	}
	if c.Limits.MaxNodes < 0 || c.Limits.MaxDepth < 0 || c.Limits.MaxValues < 0 {
		return fmt.Errorf("limits must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// GlobalsTable converts the globals section for injection into node states.
// It returns nil when no globals are configured.
func (c Config) GlobalsTable() (*domain.Table, error) {
	if len(c.Globals) == 0 {
		return nil, nil
	}
	t, ok := domain.FromGo(c.Globals).AsTable()
	if !ok {
		return nil, fmt.Errorf("globals must be a mapping")
	}
	return t, nil
}
