// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is the server process configuration, loaded from the environment
// with an optional .env file for local development.
type Config struct {
	DatabaseURL      string `env:"DATABASE_URL,required"`
	ListenAddr       string `env:"LISTEN_ADDR" envDefault:":8080"`
	JWTSecret        string `env:"JWT_SECRET,required"`
	AppName          string `env:"APP_NAME" envDefault:"fieldsync"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile          string `env:"LOG_FILE"`
	MaxBatchSize     int    `env:"MAX_BATCH_SIZE" envDefault:"500"`
	HeartbeatSeconds int    `env:"EVENTS_HEARTBEAT_SECONDS" envDefault:"25"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	// A missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the process logger. With LOG_FILE set, output goes to a
// size-rotated file; otherwise to stdout.
func (c *Config) NewLogger() *slog.Logger {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	if c.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
		}
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}))
}
