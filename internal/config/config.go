// Package config provides configuration loading for the risksharing CLI.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	cerrors "github.com/risksharing/replication/internal/errors"
)

// EnvPrefix prefixes every environment override, e.g. RISKSHARING_CACHE_DIR.
const EnvPrefix = "RISKSHARING"

// Config holds the application configuration.
type Config struct {
	// Data locates the survey library
	Data DataConfig `mapstructure:"data"`

	// Cache configuration for derived datasets
	Cache CacheConfig `mapstructure:"cache"`

	// Manifest database configuration
	Manifest ManifestConfig `mapstructure:"manifest"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`

	// Seed for synthetic data; accepts base prefixes such as 0x2a
	Seed string `mapstructure:"seed"`

	// Taxonomy is an optional shock taxonomy file replacing the built-in one
	Taxonomy string `mapstructure:"taxonomy"`

	// Country whose survey data is loaded
	Country string `mapstructure:"country"`
}

// DataConfig holds survey library locations.
type DataConfig struct {
	Root    string `mapstructure:"root"`
	Library string `mapstructure:"library"`
}

// CacheConfig holds the cache store configuration.
type CacheConfig struct {
	Driver    string   `mapstructure:"driver"`
	Dir       string   `mapstructure:"dir"`
	WriteBack bool     `mapstructure:"write_back"`
	S3        S3Config `mapstructure:"s3"`
}

// S3Config holds the remote cache configuration.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	Prefix    string `mapstructure:"prefix"`
	PathStyle bool   `mapstructure:"path_style"`
}

// ManifestConfig holds the artifact manifest database configuration.
type ManifestConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Root:    ".",
			Library: filepath.Join("external_data", "LSMS_Library"),
		},
		Cache: CacheConfig{
			Driver: "fs",
			Dir:    ".",
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Manifest: ManifestConfig{
			Driver: "sqlite",
			DSN:    filepath.Join(".risksharing", "manifest.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Country: "Uganda",
	}
}

// Load loads configuration from file and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default config locations
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".risksharing"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("risksharing")
		v.SetConfigType("yaml")
	}

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file is optional
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	// Unmarshal
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("data.root", d.Data.Root)
	v.SetDefault("data.library", d.Data.Library)
	v.SetDefault("cache.driver", d.Cache.Driver)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.write_back", false)
	v.SetDefault("cache.s3.bucket", "")
	v.SetDefault("cache.s3.region", d.Cache.S3.Region)
	v.SetDefault("cache.s3.endpoint", "")
	v.SetDefault("cache.s3.prefix", "")
	v.SetDefault("cache.s3.path_style", false)
	v.SetDefault("manifest.driver", d.Manifest.Driver)
	v.SetDefault("manifest.dsn", d.Manifest.DSN)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("seed", "")
	v.SetDefault("taxonomy", "")
	v.SetDefault("country", d.Country)
}

// Validate checks drivers and the seed.
func (c *Config) Validate() error {
	switch c.Cache.Driver {
	case "fs":
	case "s3":
		if c.Cache.S3.Bucket == "" {
			return cerrors.NewInvalidConfig("cache.s3.bucket", "required when cache.driver is s3")
		}
	default:
		return cerrors.NewInvalidConfig("cache.driver", fmt.Sprintf("unknown driver %q (want fs or s3)", c.Cache.Driver))
	}
	switch c.Manifest.Driver {
	case "sqlite", "postgres", "none":
	default:
		return cerrors.NewInvalidConfig("manifest.driver", fmt.Sprintf("unknown driver %q (want sqlite, postgres or none)", c.Manifest.Driver))
	}
	if c.Manifest.Driver != "none" && c.Manifest.DSN == "" {
		return cerrors.NewInvalidConfig("manifest.dsn", "required unless manifest.driver is none")
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return cerrors.NewInvalidConfig("logging.format", fmt.Sprintf("unknown format %q (want json or console)", c.Logging.Format))
	}
	if _, _, err := c.SeedValue(); err != nil {
		return err
	}
	return nil
}

// SeedValue parses Seed. The second value is false when no seed is set.
func (c *Config) SeedValue() (int64, bool, error) {
	return ParseSeed(c.Seed)
}

// ParseSeed parses a seed string the way integer literals are written:
// decimal, or with a 0x, 0o or 0b prefix. An empty string means unset.
// Values beyond the int64 range are reduced modulo 2^64.
func ParseSeed(s string) (int64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	if n, err := strconv.ParseInt(s, 0, 64); err == nil {
		return n, true, nil
	}
	if u, err := strconv.ParseUint(s, 0, 64); err == nil && u > math.MaxInt64 {
		return int64(u), true, nil
	}
	return 0, false, cerrors.NewInvalidConfig("seed", fmt.Sprintf("%s_SEED must be an integer; got %q", EnvPrefix, s))
}

// LibraryPath returns the survey library directory, resolved against Data.Root.
func (c *Config) LibraryPath() string {
	if filepath.IsAbs(c.Data.Library) {
		return c.Data.Library
	}
	return filepath.Join(c.Data.Root, c.Data.Library)
}

// CachePath returns the local cache root, resolved against Data.Root.
func (c *Config) CachePath() string {
	if filepath.IsAbs(c.Cache.Dir) {
		return c.Cache.Dir
	}
	return filepath.Join(c.Data.Root, c.Cache.Dir)
}
