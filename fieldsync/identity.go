// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
)

// resolveTechnician maps a raw technician reference to the shared store's
// native id. Resolution order: exact native id, then alias id (offline-origin
// ids recorded during technician sync), then case-insensitive username.
//
// An unresolvable reference returns (nil, nil), not an error - callers decide
// whether a missing technician is fatal. For order sync it is not: an
// unassigned order is valid, an orphaned one is not.
func (s *SyncService) resolveTechnician(ctx context.Context, tx Tx, ref *TechnicianRef) (*int64, error) {
	if ref == nil {
		return nil, nil
	}

	if ref.Numeric != nil {
		n := *ref.Numeric
		exists, err := tx.TechnicianExists(ctx, n)
		if err != nil {
			return nil, err
		}
		if exists {
			return &n, nil
		}
		id, found, err := tx.TechnicianIDByAlias(ctx, n)
		if err != nil {
			return nil, err
		}
		if found {
			return &id, nil
		}
		return nil, nil
	}

	if ref.Username != "" {
		id, found, err := tx.TechnicianIDByUsername(ctx, ref.Username)
		if err != nil {
			return nil, err
		}
		if found {
			return &id, nil
		}
	}
	return nil, nil
}
