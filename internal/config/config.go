package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Placeholder secrets shipped as defaults; release mode refuses to start with them.
const (
	defaultCookieSecret = "change-me-cookie-secret"
	defaultTokenSecret  = "change-me-token-secret"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`
	LogFormat  string        `mapstructure:"log_format"`
	// Backpressure picks what happens to a member whose signal queue is full: kick | drop.
	Backpressure string `mapstructure:"backpressure"`

	Token TokenConfig `mapstructure:"token"`
	Media MediaConfig `mapstructure:"media"`
	Join  JoinConfig  `mapstructure:"join"`
	Store StoreConfig `mapstructure:"store"`
	CORS  CORSConfig  `mapstructure:"cors"`
}

type TokenConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type MediaConfig struct {
	ICEServers []string `mapstructure:"ice_servers"`
}

// JoinConfig bounds join attempts per user over a sliding window.
type JoinConfig struct {
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory | postgres
	DSN    string `mapstructure:"dsn"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", defaultCookieSecret)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("backpressure", "kick")
	v.SetDefault("token.secret", defaultTokenSecret)
	v.SetDefault("token.ttl", "1h")
	v.SetDefault("media.ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("join.rate_limit", 5)
	v.SetDefault("join.rate_interval", "10s")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("cors.allowed_origins", []string{})
}

func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName when present and falls back to defaults otherwise.
// HUDDLE_* environment variables override both.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("huddle")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("store", cfg.Store.Driver).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Token.Secret == "" {
		return fmt.Errorf("token.secret is required")
	}
	if c.Mode == "release" && (c.Token.Secret == defaultTokenSecret || c.Secret == defaultCookieSecret) {
		return fmt.Errorf("secret and token.secret must be changed from their defaults in release mode")
	}
	if c.PingPeriod <= 0 {
		return fmt.Errorf("ping_period must be positive")
	}
	switch c.Backpressure {
	case "", "kick", "drop":
	default:
		return fmt.Errorf("unknown backpressure policy %q", c.Backpressure)
	}
	if c.Join.RateLimit <= 0 {
		return fmt.Errorf("join.rate_limit must be positive")
	}
	return nil
}
