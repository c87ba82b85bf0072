// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"log/slog"
)

// SyncService is the core synchronization engine. It owns the batch sync
// processors, the pending-change workflow and the order status transitions,
// all on top of a Store and a best-effort EventSink.
type SyncService struct {
	store  Store
	logger *slog.Logger
	config *ServiceConfig
	policy MergePolicy
	sink   EventSink
}

// ServiceConfig holds configuration for the sync service.
type ServiceConfig struct {
	AppName string

	// MaxBatchSize caps the number of records in a single sync batch
	// (0 = unlimited). Oversized batches are rejected wholesale so the
	// desktop client never silently drops queued records.
	MaxBatchSize int

	// MergePolicy overrides the default field classification when set.
	MergePolicy MergePolicy
}

// NewSyncService creates a sync service. A nil sink disables notifications; a
// nil logger falls back to slog.Default().
func NewSyncService(store Store, config *ServiceConfig, sink EventSink, logger *slog.Logger) *SyncService {
	if config == nil {
		config = &ServiceConfig{AppName: "fieldsync"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = NoopSink{}
	}
	policy := config.MergePolicy
	if policy == nil {
		policy = DefaultMergePolicy()
	}
	return &SyncService{
		store:  store,
		logger: logger,
		config: config,
		policy: policy,
		sink:   sink,
	}
}
