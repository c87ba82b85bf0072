// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"fmt"
)

// reconcile is the upsert reconciler: look the row up by external identifier,
// update if found, insert with the external identifier set otherwise. The
// fields map must already have passed through the merge policy, so applying
// the same record twice produces the same final state.
func (s *SyncService) reconcile(ctx context.Context, tx Tx, kind EntityKind, externalID string, fields map[string]any) (Outcome, error) {
	id, found, err := tx.EntityIDByExternalID(ctx, kind, externalID)
	if err != nil {
		return "", fmt.Errorf("lookup %s by external id %q: %w", kind, externalID, err)
	}
	if found {
		if err := tx.UpdateEntity(ctx, kind, id, fields); err != nil {
			return "", fmt.Errorf("update %s external id %q: %w", kind, externalID, err)
		}
		return OutcomeUpdated, nil
	}
	if _, err := tx.InsertEntity(ctx, kind, externalID, fields); err != nil {
		return "", fmt.Errorf("insert %s external id %q: %w", kind, externalID, err)
	}
	return OutcomeInserted, nil
}

// reconcileOrder upserts a service order. Lookup prefers the external
// identifier and falls back to the order number, which covers orders that
// were first created on the shared side and never carried an external id.
// insertDefaults are applied only when a new row is created; generic field
// sync must never rewrite the status of an existing order.
func (s *SyncService) reconcileOrder(ctx context.Context, tx Tx, rec *OrderRecord, fields, insertDefaults map[string]any) (Outcome, error) {
	var (
		id    int64
		found bool
		err   error
	)
	if rec.ExternalID != "" {
		id, found, err = tx.EntityIDByExternalID(ctx, KindOrder, rec.ExternalID)
		if err != nil {
			return "", fmt.Errorf("lookup order by external id %q: %w", rec.ExternalID, err)
		}
	}
	if !found && rec.OrderNumber != "" {
		id, found, err = tx.OrderIDByNumber(ctx, rec.OrderNumber)
		if err != nil {
			return "", fmt.Errorf("lookup order by number %q: %w", rec.OrderNumber, err)
		}
	}
	if found {
		if err := tx.UpdateEntity(ctx, KindOrder, id, fields); err != nil {
			return "", fmt.Errorf("update order %q: %w", rec.OrderNumber, err)
		}
		return OutcomeUpdated, nil
	}
	insert := make(map[string]any, len(fields)+len(insertDefaults))
	for k, v := range fields {
		insert[k] = v
	}
	for k, v := range insertDefaults {
		insert[k] = v
	}
	if _, err := tx.InsertEntity(ctx, KindOrder, rec.ExternalID, insert); err != nil {
		return "", fmt.Errorf("insert order %q: %w", rec.OrderNumber, err)
	}
	return OutcomeInserted, nil
}
