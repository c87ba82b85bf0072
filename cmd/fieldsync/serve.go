// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/maciejossss/spikss-sub002/fieldsync"
	"github.com/maciejossss/spikss-sub002/internal/config"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the synchronization HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	// Bounded pool acquisition: exhaustion is a hard failure surfaced to the
	// caller, not a silent retry.
	poolConfig.ConnConfig.ConnectTimeout = 10 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("create connection pool: %w", err)
	}
	defer pool.Close()

	if err := fieldsync.InitSchema(ctx, pool, logger); err != nil {
		return err
	}

	store := fieldsync.NewPgStore(pool, logger)
	broadcaster := fieldsync.NewBroadcaster(logger)
	service := fieldsync.NewSyncService(store, &fieldsync.ServiceConfig{
		AppName:      cfg.AppName,
		MaxBatchSize: cfg.MaxBatchSize,
	}, broadcaster, logger)

	jwtAuth := fieldsync.NewJWTAuth(cfg.JWTSecret, logger)
	handlers := fieldsync.NewHTTPHandlers(service, broadcaster, logger)
	if cfg.HeartbeatSeconds > 0 {
		handlers.Heartbeat = time.Duration(cfg.HeartbeatSeconds) * time.Second
	}

	server := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     fieldsync.NewRouter(handlers, jwtAuth),
		ReadTimeout: 120 * time.Second, // desktop pushes can be large
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Sync server listening", "addr", cfg.ListenAddr, "app", cfg.AppName)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		logger.Info("Shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Shutdown complete")
	return nil
}
