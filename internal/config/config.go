package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	API     APIConfig     `mapstructure:"api"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Session SessionConfig `mapstructure:"session"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Console ConsoleConfig `mapstructure:"console"`
}

type AppConfig struct {
	Environment string `mapstructure:"environment"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type GatewayConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	CoalesceRefresh   bool    `mapstructure:"coalesce_refresh"`
}

type SessionConfig struct {
	Store     string        `mapstructure:"store"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ConsoleConfig struct {
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Every key gets a default so AutomaticEnv can override it on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "dev")
	v.SetDefault("app.metrics_addr", ":9090")
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("gateway.requests_per_second", 0)
	v.SetDefault("gateway.burst", 10)
	v.SetDefault("gateway.coalesce_refresh", false)
	v.SetDefault("session.store", StoreMemory)
	v.SetDefault("session.key_prefix", "autohead:session:")
	v.SetDefault("session.ttl", 0)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("console.username", "")
	v.SetDefault("console.password", "")
	v.SetDefault("console.poll_interval", 30*time.Second)
}

// Load reads config.yaml from . or ./config, then AUTOHEAD_* environment
// variables. A missing file is fine; a malformed one panics.
func Load() *Config {
	cfg, err := load(viper.GetViper(), ".", "./config")
	if err != nil {
		panic(err)
	}
	return cfg
}

func load(v *viper.Viper, paths ...string) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("AUTOHEAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Session.Store {
	case StoreMemory, StoreRedis:
	default:
		return errors.New("session.store must be memory or redis")
	}
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	return nil
}
