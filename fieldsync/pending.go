// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Workflow error sentinels, mapped to stable JSON error codes at the HTTP
// boundary.
var (
	ErrPendingNotFound   = errors.New("pending change not found")
	ErrAlreadyDecided    = errors.New("pending change already decided")
	ErrEntityGone        = errors.New("target entity no longer exists")
	ErrMissingExternalID = errors.New("target entity has no external identifier")
	ErrEmptyPatch        = errors.New("patch contains no applicable fields")
	ErrUnsupportedEntity = errors.New("entity kind does not accept pending changes")
)

// PendingChange is one proposed mutation to an authoritative entity, awaiting
// human accept/reject on the desktop side.
type PendingChange struct {
	ID         uuid.UUID      `json:"id"`
	EntityKind EntityKind     `json:"entity_type"`
	EntityID   int64          `json:"entity_id"`
	Patch      map[string]any `json:"patch"`
	Fields     []string       `json:"fields"`
	Status     string         `json:"status"`
	ProposedBy string         `json:"proposed_by"`
	CreatedAt  time.Time      `json:"created_at"`
	DecidedAt  *time.Time     `json:"decided_at,omitempty"`
}

// ProposeChange records a proposed partial update from the non-authoritative
// side. The target must already carry an external identifier: if it was never
// synchronized there is nothing on the authoritative side to patch yet.
// The raw patch is normalized to canonical field names; fields the merge
// policy does not classify as descriptive are dropped.
func (s *SyncService) ProposeChange(ctx context.Context, kind EntityKind, entityID int64, rawPatch map[string]any, proposedBy string) (*PendingChange, error) {
	patch, fields := NormalizePatch(kind, rawPatch)
	if patch == nil {
		return nil, ErrUnsupportedEntity
	}
	if len(patch) == 0 {
		return nil, ErrEmptyPatch
	}

	pc := &PendingChange{
		ID:         uuid.New(),
		EntityKind: kind,
		EntityID:   entityID,
		Patch:      patch,
		Fields:     fields,
		Status:     PendingStatusPending,
		ProposedBy: proposedBy,
		CreatedAt:  time.Now().UTC(),
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		externalID, found, err := tx.EntityExternalID(ctx, kind, entityID)
		if err != nil {
			return err
		}
		if !found {
			return ErrEntityGone
		}
		if externalID == "" {
			return ErrMissingExternalID
		}
		return tx.InsertPendingChange(ctx, pc)
	})
	if err != nil {
		if errors.Is(err, ErrEntityGone) || errors.Is(err, ErrMissingExternalID) {
			return nil, err
		}
		return nil, fmt.Errorf("propose change for %s %d: %w", kind, entityID, err)
	}

	s.logger.Info("Pending change proposed",
		"id", pc.ID, "entity", kind, "entity_id", entityID,
		"fields", fields, "proposed_by", proposedBy)
	return pc, nil
}

// ListPendingChanges returns all still-pending proposals, most recent first.
func (s *SyncService) ListPendingChanges(ctx context.Context) ([]*PendingChange, error) {
	var out []*PendingChange
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.ListPendingChanges(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list pending changes: %w", err)
	}
	return out, nil
}

// AcceptChange applies a pending proposal to its target entity. The status
// transition and the entity mutation are one atomic operation: a store error
// rolls both back, so a proposal can never read accepted while the write
// failed.
//
// Acceptance also rejects every other still-pending proposal for the same
// entity, so a stale older proposal approved later cannot clobber the values
// just applied.
//
// If the target entity was deleted between proposal and review, the proposal
// is terminally rejected (persisted) and ErrEntityGone is returned.
func (s *SyncService) AcceptChange(ctx context.Context, id uuid.UUID) error {
	var (
		gone       bool
		accepted   *PendingChange
		superseded int64
	)

	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		pc, err := tx.PendingChangeByID(ctx, id)
		if err != nil {
			return err
		}
		if pc == nil {
			return ErrPendingNotFound
		}
		if pc.Status != PendingStatusPending {
			return ErrAlreadyDecided
		}

		now := time.Now().UTC()
		exists, err := tx.EntityExists(ctx, pc.EntityKind, pc.EntityID)
		if err != nil {
			return err
		}
		if !exists {
			// Commit the rejection; the caller still learns the entity is
			// gone via the flag checked after the transaction.
			gone = true
			return tx.SetPendingChangeStatus(ctx, id, PendingStatusRejected, now)
		}

		fields := s.policy.Merge(pc.EntityKind, pc.Patch)
		if err := tx.UpdateEntity(ctx, pc.EntityKind, pc.EntityID, fields); err != nil {
			return err
		}
		if err := tx.SetPendingChangeStatus(ctx, id, PendingStatusAccepted, now); err != nil {
			return err
		}
		superseded, err = tx.RejectOtherPending(ctx, pc.EntityKind, pc.EntityID, id, now)
		if err != nil {
			return err
		}
		accepted = pc
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPendingNotFound) || errors.Is(err, ErrAlreadyDecided) {
			return err
		}
		return fmt.Errorf("accept pending change %s: %w", id, err)
	}
	if gone {
		s.logger.Warn("Pending change target gone, proposal rejected", "id", id)
		return ErrEntityGone
	}

	s.logger.Info("Pending change accepted",
		"id", id, "entity", accepted.EntityKind, "entity_id", accepted.EntityID,
		"superseded", superseded)
	s.sink.Notify(string(accepted.EntityKind), map[string]any{
		"id":     accepted.EntityID,
		"fields": accepted.Fields,
	})
	return nil
}

// RejectChange marks a proposal rejected without touching the target entity.
// Rejecting an already-rejected proposal is a no-op.
func (s *SyncService) RejectChange(ctx context.Context, id uuid.UUID) error {
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		pc, err := tx.PendingChangeByID(ctx, id)
		if err != nil {
			return err
		}
		if pc == nil {
			return ErrPendingNotFound
		}
		switch pc.Status {
		case PendingStatusRejected:
			return nil // idempotent
		case PendingStatusAccepted:
			return ErrAlreadyDecided
		}
		return tx.SetPendingChangeStatus(ctx, id, PendingStatusRejected, time.Now().UTC())
	})
	if err != nil {
		if errors.Is(err, ErrPendingNotFound) || errors.Is(err, ErrAlreadyDecided) {
			return err
		}
		return fmt.Errorf("reject pending change %s: %w", id, err)
	}
	s.logger.Info("Pending change rejected", "id", id)
	return nil
}
