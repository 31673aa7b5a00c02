// Package config reads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"

	logrustash "github.com/bshuster-repo/logrus-logstash-hook"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"social/database"
)

const defaultPort = ":9090"

type Config struct {
	Port         string
	DB           database.Options
	SecretKey    string
	SessionKey   string
	RedisAddr    string
	MediaRoot    string
	MediaURL     string
	LogLevel     string
	LogstashAddr string
}

// Load reads envFile into the process environment, without overriding
// variables already set, and builds a Config from it. A missing file is
// not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}
	return FromEnv(), nil
}

func FromEnv() Config {
	return Config{
		Port: getEnv("PORT", defaultPort),
		DB: database.Options{
			Path:     os.Getenv("DATABASE"),
			Host:     os.Getenv("DB_HOST"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     os.Getenv("DB_NAME"),
			SSLMode:  os.Getenv("DB_SSLMODE"),
			Debug:    os.Getenv("DB_DEBUG") == "true",
		},
		SecretKey:    os.Getenv("SECRET_KEY"),
		SessionKey:   os.Getenv("SESSION_KEY"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		MediaRoot:    getEnv("MEDIA_ROOT", "media"),
		MediaURL:     getEnv("MEDIA_URL", "/media"),
		LogLevel:     getEnv("LOG_LEVEL", "warn"),
		LogstashAddr: os.Getenv("LOGSTASH_ADDR"),
	}
}

// Validate fills derived defaults and rejects settings the server cannot
// start with.
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return errors.New("SECRET_KEY required")
	}
	if c.SessionKey == "" {
		c.SessionKey = c.SecretKey
	}
	if !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}
	if !strings.HasPrefix(c.MediaURL, "/") {
		return fmt.Errorf("MEDIA_URL must be an absolute path, got %q", c.MediaURL)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewLogger returns a JSON logger on stdout. When LogstashAddr is set every
// entry is also shipped there over TCP.
func (c Config) NewLogger() (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	if c.LogstashAddr != "" {
		conn, err := net.Dial("tcp", c.LogstashAddr)
		if err != nil {
			return nil, fmt.Errorf("connecting to logstash: %w", err)
		}
		logger.AddHook(logrustash.New(conn, logrustash.DefaultFormatter(logrus.Fields{"type": "social-api"})))
	}
	return logger, nil
}
