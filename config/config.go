package config

import (
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	CursorTypeBlockNumber = "block_number"
	CursorTypeTimestamp   = "timestamp"
	CursorTypePageToken   = "page_token"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

type BreakerConfig struct {
	FailureThreshold int    `mapstructure:"failure_threshold"`
	Cooldown         string `mapstructure:"cooldown"`
}

type CacheConfig struct {
	TTL           string `mapstructure:"ttl"`
	SweepInterval string `mapstructure:"sweep_interval"`
}

type CursorStoreConfig struct {
	Path string `mapstructure:"path"`
}

type StreamConfig struct {
	PageSize      int `mapstructure:"page_size"`
	DedupCapacity int `mapstructure:"dedup_capacity"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

type ProviderConfig struct {
	Name                string          `mapstructure:"name"`
	URL                 string          `mapstructure:"url"`
	Operations          []string        `mapstructure:"operations"`
	CursorTypes         []string        `mapstructure:"cursor_types"`
	PreferredCursorType string          `mapstructure:"preferred_cursor_type"`
	ReplayBlocks        uint64          `mapstructure:"replay_blocks"`
	RateLimit           RateLimitConfig `mapstructure:"rate_limit"`
}

type SourceConfig struct {
	Name      string           `mapstructure:"name"`
	Providers []ProviderConfig `mapstructure:"providers"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Breaker     BreakerConfig     `mapstructure:"breaker"`
	Cache       CacheConfig       `mapstructure:"cache"`
	CursorStore CursorStoreConfig `mapstructure:"cursor_store"`
	Stream      StreamConfig      `mapstructure:"stream"`
	Sources     []SourceConfig    `mapstructure:"sources"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("logging.level", LogLevelInfo)
	viper.SetDefault("breaker.failure_threshold", 5)
	viper.SetDefault("breaker.cooldown", "30s")
	viper.SetDefault("cache.ttl", "30s")
	viper.SetDefault("cache.sweep_interval", "1m")
	viper.SetDefault("cursor_store.path", "./data/cursors.db")
	viper.SetDefault("stream.page_size", 100)
	viper.SetDefault("stream.dedup_capacity", 500)

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Error("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

// BreakerCooldown returns the parsed cooldown. Call after Validate.
func (c *Config) BreakerCooldown() time.Duration {
	d, _ := time.ParseDuration(c.Breaker.Cooldown)
	return d
}

// CacheTTL returns the parsed cache TTL. Call after Validate.
func (c *Config) CacheTTL() time.Duration {
	d, _ := time.ParseDuration(c.Cache.TTL)
	return d
}

// CacheSweepInterval returns the parsed sweep interval. Call after Validate.
func (c *Config) CacheSweepInterval() time.Duration {
	d, _ := time.ParseDuration(c.Cache.SweepInterval)
	return d
}

func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.Required,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Breaker,
			validation.Required,
			validation.By(func(value interface{}) error {
				bc, ok := value.(BreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a BreakerConfig")
				}
				return validation.ValidateStruct(&bc,
					validation.Field(&bc.FailureThreshold,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&bc.Cooldown,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.Cache,
			validation.Required,
			validation.By(func(value interface{}) error {
				cc, ok := value.(CacheConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a CacheConfig")
				}
				return validation.ValidateStruct(&cc,
					validation.Field(&cc.TTL,
						validation.Required,
						validation.By(validateDuration),
					),
					validation.Field(&cc.SweepInterval,
						validation.Required,
						validation.By(validateDuration),
					),
				)
			}),
		),
		validation.Field(&c.CursorStore,
			validation.Required,
			validation.By(func(value interface{}) error {
				cs, ok := value.(CursorStoreConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a CursorStoreConfig")
				}
				return validation.ValidateStruct(&cs,
					validation.Field(&cs.Path, validation.Required),
				)
			}),
		),
		validation.Field(&c.Stream,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(StreamConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a StreamConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.PageSize,
						validation.Required,
						validation.Min(1),
					),
					validation.Field(&sc.DedupCapacity,
						validation.Required,
						validation.Min(1),
					),
				)
			}),
		),
		validation.Field(&c.Sources,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateSourceConfig)),
		),
	)
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}

	if port == "" {
		return validation.NewError("validation_invalid_port", "port cannot be empty")
	}

	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}

func validateDuration(value interface{}) error {
	durationStr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if _, err := time.ParseDuration(durationStr); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a valid duration (e.g., 2s, 5m, 1h)")
	}

	return nil
}

func validateSourceConfig(value interface{}) error {
	source, ok := value.(SourceConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a SourceConfig")
	}

	return validation.ValidateStruct(&source,
		validation.Field(&source.Name, validation.Required),
		validation.Field(&source.Providers,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.By(validateProviderConfig)),
		),
	)
}

func validateProviderConfig(value interface{}) error {
	p, ok := value.(ProviderConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a ProviderConfig")
	}

	if err := validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required),
		validation.Field(&p.URL,
			validation.Required,
			validation.By(validateProviderURL),
		),
		validation.Field(&p.Operations,
			validation.Required,
			validation.Length(1, 0),
		),
		validation.Field(&p.CursorTypes,
			validation.Required,
			validation.Length(1, 0),
			validation.Each(validation.In(CursorTypeBlockNumber, CursorTypeTimestamp, CursorTypePageToken)),
		),
		validation.Field(&p.PreferredCursorType,
			validation.Required,
			validation.In(CursorTypeBlockNumber, CursorTypeTimestamp, CursorTypePageToken),
		),
	); err != nil {
		return err
	}

	preferredListed := false
	for _, kind := range p.CursorTypes {
		if kind == p.PreferredCursorType {
			preferredListed = true
			break
		}
	}
	if !preferredListed {
		return validation.NewError("validation_unlisted_preferred_cursor", "preferred_cursor_type must be one of cursor_types")
	}

	if p.RateLimit.RequestsPerMinute < 0 || p.RateLimit.Burst < 0 {
		return validation.NewError("validation_invalid_rate_limit", "rate limits cannot be negative")
	}

	return nil
}

func validateProviderURL(value interface{}) error {
	providerURL, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	if providerURL == "" {
		return validation.NewError("validation_empty_url", "provider URL cannot be empty")
	}

	parsedURL, err := url.Parse(providerURL)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}

	if parsedURL.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}

	return nil
}
