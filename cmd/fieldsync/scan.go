// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/maciejossss/spikss-sub002/diagnose"
)

func newScanCmd() *cobra.Command {
	var (
		localPath string
		remoteURL string
		outDir    string
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Compare the offline and shared stores and report drift",
		Long: `scan reads full entity sets from the desktop SQLite store and the shared
Postgres store, correlates them by external identifier (falling back to
natural keys), and writes per-entity JSON reports plus flattened CSV exports
for duplicates, mismatches and one-sided records. Both stores are only ever
read; it is safe to run against a live system.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), localPath, remoteURL, outDir)
		},
	}

	cmd.Flags().StringVar(&localPath, "local", "", "path to the desktop SQLite database (required)")
	cmd.Flags().StringVar(&remoteURL, "remote", "", "shared store Postgres URL (required)")
	cmd.Flags().StringVar(&outDir, "out", "reports", "output directory for JSON/CSV reports")
	_ = cmd.MarkFlagRequired("local")
	_ = cmd.MarkFlagRequired("remote")
	return cmd
}

func runScan(ctx context.Context, localPath, remoteURL, outDir string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	local, err := diagnose.OpenLocal(localPath)
	if err != nil {
		return err
	}
	defer local.Close()

	pool, err := pgxpool.New(ctx, remoteURL)
	if err != nil {
		return fmt.Errorf("connect shared store: %w", err)
	}
	defer pool.Close()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	clean := true
	for _, src := range diagnose.Sources() {
		localRows, err := diagnose.LoadLocal(ctx, local, src)
		if err != nil {
			return err
		}
		remoteRows, err := diagnose.LoadRemote(ctx, pool, src)
		if err != nil {
			return err
		}

		report := diagnose.Compare(src.Entity, localRows, remoteRows, src.Options)
		if _, err := diagnose.WriteJSON(outDir, report); err != nil {
			return err
		}
		if _, err := diagnose.WriteCSV(outDir, report); err != nil {
			return err
		}

		if report.Clean() {
			color.Green("OK    %s", report.Summary())
		} else {
			color.Red("DRIFT %s", report.Summary())
			clean = false
		}
	}

	if !clean {
		return fmt.Errorf("drift detected, see reports in %s", outDir)
	}
	fmt.Printf("stores are consistent, reports in %s\n", outDir)
	return nil
}
