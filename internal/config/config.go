// Package config loads the revkit-tail settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIURL     string
	Token      string
	TokenType  string
	Email      string
	Password   string
	TOTPSecret string

	Heartbeat   time.Duration
	PongTimeout time.Duration
	Format      string

	MetricsAddr string
	Debug       bool
}

// Load reads an optional .env file from the working directory, then the
// process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	heartbeat, err := time.ParseDuration(getEnv("REVOLT_HEARTBEAT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("REVOLT_HEARTBEAT: %w", err)
	}
	pongTimeout, err := time.ParseDuration(getEnv("REVOLT_PONG_TIMEOUT", "0s"))
	if err != nil {
		return nil, fmt.Errorf("REVOLT_PONG_TIMEOUT: %w", err)
	}

	cfg := &Config{
		APIURL:      getEnv("REVOLT_API_URL", "https://api.revolt.chat"),
		Token:       os.Getenv("REVOLT_TOKEN"),
		TokenType:   getEnv("REVOLT_TOKEN_TYPE", "bot"),
		Email:       os.Getenv("REVOLT_EMAIL"),
		Password:    os.Getenv("REVOLT_PASSWORD"),
		TOTPSecret:  os.Getenv("REVOLT_TOTP_SECRET"),
		Heartbeat:   heartbeat,
		PongTimeout: pongTimeout,
		Format:      getEnv("REVOLT_FORMAT", "json"),
		MetricsAddr: os.Getenv("METRICS_ADDR"),
		Debug:       getEnv("REVOLT_DEBUG", "") != "",
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" && (c.Email == "" || c.Password == "") {
		return fmt.Errorf("REVOLT_TOKEN or REVOLT_EMAIL and REVOLT_PASSWORD are required")
	}

	if c.TokenType != "user" && c.TokenType != "bot" {
		return fmt.Errorf("REVOLT_TOKEN_TYPE must be user or bot")
	}

	if c.Format != "json" && c.Format != "msgpack" {
		return fmt.Errorf("REVOLT_FORMAT must be json or msgpack")
	}

	if c.Heartbeat < 0 {
		return fmt.Errorf("REVOLT_HEARTBEAT must not be negative")
	}

	if c.PongTimeout < 0 {
		return fmt.Errorf("REVOLT_PONG_TIMEOUT must not be negative")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
