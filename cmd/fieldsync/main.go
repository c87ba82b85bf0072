// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "fieldsync",
		Short: "Field-service synchronization server and diagnostics",
		Long: `fieldsync keeps the offline desktop store and the shared cloud store
consistent: it serves the batch sync and pending-change API and ships a
read-only reconciliation scanner for drift diagnostics.`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newScanCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
