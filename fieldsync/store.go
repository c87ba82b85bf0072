// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Outcome reports whether an upsert inserted a new row or updated an existing
// one.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeUpdated  Outcome = "updated"
)

// Store is the shared-store access seam. The production implementation is
// PgStore; tests use an in-memory fake. All entity-level mutation happens
// inside WithTx so a batch either commits atomically or rolls back wholesale.
type Store interface {
	// WithTx runs fn inside a single transaction scope. The transaction
	// commits when fn returns nil and rolls back on any error, including when
	// guard checks fail partway through.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx exposes the per-transaction operations the engine needs. Every method is
// an I/O suspension point against the authoritative store.
type Tx interface {
	// EntityIDByExternalID resolves an external identifier to the shared
	// store's native id. The second return is false when nothing matches.
	EntityIDByExternalID(ctx context.Context, kind EntityKind, externalID string) (int64, bool, error)

	// EntityExists reports whether a row with the given native id exists.
	EntityExists(ctx context.Context, kind EntityKind, id int64) (bool, error)

	// EntityExternalID returns the external identifier carried by a row, with
	// false when the row is missing or was never synchronized.
	EntityExternalID(ctx context.Context, kind EntityKind, id int64) (string, bool, error)

	// InsertEntity inserts a new row with the external identifier set and
	// returns its native id.
	InsertEntity(ctx context.Context, kind EntityKind, externalID string, fields map[string]any) (int64, error)

	// UpdateEntity writes exactly the given columns of an existing row.
	UpdateEntity(ctx context.Context, kind EntityKind, id int64, fields map[string]any) error

	// Technician identity mapping (native id, alias id, username).
	TechnicianExists(ctx context.Context, id int64) (bool, error)
	TechnicianIDByAlias(ctx context.Context, aliasID int64) (int64, bool, error)
	TechnicianIDByUsername(ctx context.Context, username string) (int64, bool, error)

	// Service order specifics.
	OrderIDByNumber(ctx context.Context, number string) (int64, bool, error)
	OrderStatus(ctx context.Context, id int64) (string, error)
	ReplaceOrderParts(ctx context.Context, orderID int64, parts []PartUsage) error

	// Pending change persistence.
	InsertPendingChange(ctx context.Context, pc *PendingChange) error
	PendingChangeByID(ctx context.Context, id uuid.UUID) (*PendingChange, error)
	ListPendingChanges(ctx context.Context) ([]*PendingChange, error)
	SetPendingChangeStatus(ctx context.Context, id uuid.UUID, status string, decidedAt time.Time) error
	RejectOtherPending(ctx context.Context, kind EntityKind, entityID int64, exceptID uuid.UUID, decidedAt time.Time) (int64, error)
}
