// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all settings for the server and the maintenance CLI.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// DatabaseURL is a PostgreSQL DSN.
	DatabaseURL string
	// RedisURL enables cross-process fan-out, presence and rate limiting.
	// Without it the server runs single-process with in-memory fan-out.
	RedisURL string

	JWTSecret        string
	TelegramBotToken string

	// MediaRoot is the directory attachment references are resolved against.
	MediaRoot string

	RecentRoomsLimit int
	MessagePageSize  int
	SendRateLimit    int
	SendRateWindow   time.Duration
	PushTimeout      time.Duration
	AllowedOrigins   []string
}

func defaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MEDIA_ROOT", "./media")
	v.SetDefault("RECENT_ROOMS_LIMIT", 20)
	v.SetDefault("MESSAGE_PAGE_SIZE", 30)
	v.SetDefault("SEND_RATE_LIMIT", 30)
	v.SetDefault("SEND_RATE_WINDOW", "1m")
	v.SetDefault("PUSH_TIMEOUT", "10s")
	v.SetDefault("ALLOWED_ORIGINS", "")
}

// Load reads the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	defaults(v)
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:             v.GetString("PORT"),
		Env:              v.GetString("ENV"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		RedisURL:         v.GetString("REDIS_URL"),
		JWTSecret:        v.GetString("JWT_SECRET"),
		TelegramBotToken: v.GetString("TELEGRAM_BOT_TOKEN"),
		MediaRoot:        v.GetString("MEDIA_ROOT"),
		RecentRoomsLimit: v.GetInt("RECENT_ROOMS_LIMIT"),
		MessagePageSize:  v.GetInt("MESSAGE_PAGE_SIZE"),
		SendRateLimit:    v.GetInt("SEND_RATE_LIMIT"),
		SendRateWindow:   v.GetDuration("SEND_RATE_WINDOW"),
		PushTimeout:      v.GetDuration("PUSH_TIMEOUT"),
	}

	for _, origin := range strings.Split(v.GetString("ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	if cfg.RecentRoomsLimit <= 0 {
		cfg.RecentRoomsLimit = 20
	}
	if cfg.MessagePageSize <= 0 {
		cfg.MessagePageSize = 30
	}

	if cfg.IsProduction() {
		switch {
		case cfg.DatabaseURL == "":
			return nil, errors.New("DATABASE_URL is required in production")
		case cfg.RedisURL == "":
			return nil, errors.New("REDIS_URL is required in production")
		case cfg.JWTSecret == "":
			return nil, errors.New("JWT_SECRET is required in production")
		}
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
