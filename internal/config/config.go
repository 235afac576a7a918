package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Market   MarketConfig   `mapstructure:"market"`
	Session  SessionConfig  `mapstructure:"session"`
	Notifier NotifierConfig `mapstructure:"notifier"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MarketConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	StreamURL      string        `mapstructure:"stream_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type NotifierConfig struct {
	RevealDelay time.Duration `mapstructure:"reveal_delay"`
	FeedBuffer  int           `mapstructure:"feed_buffer"`
	ListingTTL  time.Duration `mapstructure:"listing_ttl"`
}

func Load() (*Config, error) {
	// Set default values
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("redis.address", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("market.base_url", "http://localhost:9000")
	viper.SetDefault("market.stream_url", "ws://localhost:9000/ws/notifications")
	viper.SetDefault("market.api_key", "")
	viper.SetDefault("market.request_timeout", 10*time.Second)
	viper.SetDefault("session.ttl", 30*time.Minute)
	viper.SetDefault("notifier.reveal_delay", 500*time.Millisecond)
	viper.SetDefault("notifier.feed_buffer", 16)
	viper.SetDefault("notifier.listing_ttl", 5*time.Minute)

	// Configuration file settings
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/agromarket-notifier/")

	// Environment variable support
	viper.AutomaticEnv()

	// Environment variable mappings
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.host", "SERVER_HOST")
	viper.BindEnv("redis.address", "REDIS_ADDRESS")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")
	viper.BindEnv("market.base_url", "MARKET_BASE_URL")
	viper.BindEnv("market.stream_url", "MARKET_STREAM_URL")
	viper.BindEnv("market.api_key", "MARKET_API_KEY")
	viper.BindEnv("market.request_timeout", "MARKET_REQUEST_TIMEOUT")
	viper.BindEnv("session.ttl", "SESSION_TTL")
	viper.BindEnv("notifier.reveal_delay", "NOTIFIER_REVEAL_DELAY")
	viper.BindEnv("notifier.feed_buffer", "NOTIFIER_FEED_BUFFER")
	viper.BindEnv("notifier.listing_ttl", "NOTIFIER_LISTING_TTL")

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found, continue with defaults and environment variables
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, Redis: %s, Market: %s, Stream: %s",
		c.Server.Host,
		c.Server.Port,
		c.Redis.Address,
		c.Market.BaseURL,
		c.Market.StreamURL,
	)
}
