// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

// errBatchRejected aborts the batch transaction when validation found any
// conflict. No writes have happened by then; the rollback is a formality that
// keeps the all-or-nothing contract obvious.
var errBatchRejected = errors.New("batch rejected by validation")

// checkBatchSize enforces the configured batch size limit. An oversized batch
// is rejected wholesale with one conflict per record so the client cannot
// drop queued records on a partial answer.
func (s *SyncService) checkBatchSize(kind EntityKind, n int) []SyncConflict {
	if s.config.MaxBatchSize <= 0 || n <= s.config.MaxBatchSize {
		return nil
	}
	msg := fmt.Sprintf("batch too large: records=%d limit=%d", n, s.config.MaxBatchSize)
	conflicts := make([]SyncConflict, n)
	for i := range conflicts {
		conflicts[i] = conflictBatchTooLarge(kind, i, msg)
	}
	return conflicts
}

// runBatch wraps the two-phase batch protocol: validate-all inside the
// transaction, then write-all, or roll back with the full conflict list.
// Validation reads and reconciliation writes share one transaction so the
// writes see exactly the snapshot the dependency resolution was based on.
func (s *SyncService) runBatch(ctx context.Context, kind EntityKind, n int, fn func(ctx context.Context, tx Tx, result *BatchResult) error) (*BatchResult, error) {
	result := &BatchResult{}
	if conflicts := s.checkBatchSize(kind, n); conflicts != nil {
		result.Conflicts = conflicts
		return result, nil
	}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := fn(ctx, tx, result); err != nil {
			return err
		}
		if result.Rejected() {
			return errBatchRejected
		}
		return nil
	})
	if errors.Is(err, errBatchRejected) {
		s.logger.Warn("Sync batch rejected",
			"entity", kind, "records", n, "conflicts", len(result.Conflicts))
		result.Stats = UpsertStats{}
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("process %s batch: %w", kind, err)
	}

	s.logger.Info("Sync batch committed",
		"entity", kind, "records", n,
		"inserted", result.Stats.Inserted, "updated", result.Stats.Updated)
	return result, nil
}

// ProcessTechnicianBatch reconciles a batch of technician records.
// Technicians sync first in a full run; later entities resolve their assigned
// technician against rows committed here.
func (s *SyncService) ProcessTechnicianBatch(ctx context.Context, raw []map[string]any) (*BatchResult, error) {
	records := make([]TechnicianRecord, len(raw))
	for i, m := range raw {
		records[i] = NormalizeTechnician(m)
	}

	return s.runBatch(ctx, KindTechnician, len(raw), func(ctx context.Context, tx Tx, result *BatchResult) error {
		for i, rec := range records {
			if rec.ExternalID == "" {
				result.Conflicts = append(result.Conflicts, conflictMissingExternalID(KindTechnician, i))
			}
		}
		if result.Rejected() {
			return nil
		}

		for _, rec := range records {
			fields := s.policy.Merge(KindTechnician, rec.Fields)
			// Offline-origin technician ids are numeric; recording them as
			// alias ids is what lets order sync resolve a technician by the
			// id the desktop knows.
			if n, err := strconv.ParseInt(rec.ExternalID, 10, 64); err == nil {
				fields["alias_id"] = n
			}
			outcome, err := s.reconcile(ctx, tx, KindTechnician, rec.ExternalID, fields)
			if err != nil {
				return err
			}
			result.Stats.count(outcome)
		}
		return nil
	})
}

// ProcessClientBatch reconciles a batch of client records. Clients have no
// foreign relationships, so validation is purely structural.
func (s *SyncService) ProcessClientBatch(ctx context.Context, raw []map[string]any) (*BatchResult, error) {
	records := make([]ClientRecord, len(raw))
	for i, m := range raw {
		records[i] = NormalizeClient(m)
	}

	return s.runBatch(ctx, KindClient, len(raw), func(ctx context.Context, tx Tx, result *BatchResult) error {
		for i, rec := range records {
			if rec.ExternalID == "" {
				result.Conflicts = append(result.Conflicts, conflictMissingExternalID(KindClient, i))
			}
		}
		if result.Rejected() {
			return nil
		}

		for _, rec := range records {
			outcome, err := s.reconcile(ctx, tx, KindClient, rec.ExternalID, s.policy.Merge(KindClient, rec.Fields))
			if err != nil {
				return err
			}
			result.Stats.count(outcome)
		}
		return nil
	})
}

// ProcessDeviceBatch reconciles a batch of device records. A device without a
// resolvable owning client is a conflict, never an orphaned insert.
func (s *SyncService) ProcessDeviceBatch(ctx context.Context, raw []map[string]any) (*BatchResult, error) {
	records := make([]DeviceRecord, len(raw))
	for i, m := range raw {
		records[i] = NormalizeDevice(m)
	}

	return s.runBatch(ctx, KindDevice, len(raw), func(ctx context.Context, tx Tx, result *BatchResult) error {
		clientIDs := make(map[int]int64, len(records))
		for i, rec := range records {
			if rec.ExternalID == "" {
				result.Conflicts = append(result.Conflicts, conflictMissingExternalID(KindDevice, i))
				continue
			}
			if rec.ClientExternalID == "" {
				result.Conflicts = append(result.Conflicts, conflictMissingRef(KindDevice, i, rec.ExternalID, ReasonMissingClientExternalID))
				continue
			}
			clientID, found, err := tx.EntityIDByExternalID(ctx, KindClient, rec.ClientExternalID)
			if err != nil {
				return err
			}
			if !found {
				result.Conflicts = append(result.Conflicts, conflictRefNotFound(KindDevice, i, rec.ExternalID, ReasonClientNotFound, rec.ClientExternalID))
				continue
			}
			clientIDs[i] = clientID
		}
		if result.Rejected() {
			return nil
		}

		for i, rec := range records {
			fields := s.policy.Merge(KindDevice, rec.Fields)
			fields["client_id"] = clientIDs[i]
			outcome, err := s.reconcile(ctx, tx, KindDevice, rec.ExternalID, fields)
			if err != nil {
				return err
			}
			result.Stats.count(outcome)
		}
		return nil
	})
}

// ProcessOrderBatch reconciles a batch of service order records. Client and
// device resolution failures are hard batch conflicts; technician resolution
// failure is soft - the order proceeds unassigned. Operational fields pass
// through the merge policy, so an order batch can never null out
// field-completed work.
func (s *SyncService) ProcessOrderBatch(ctx context.Context, raw []map[string]any) (*BatchResult, error) {
	records := make([]OrderRecord, len(raw))
	for i, m := range raw {
		records[i] = NormalizeOrder(m)
	}

	return s.runBatch(ctx, KindOrder, len(raw), func(ctx context.Context, tx Tx, result *BatchResult) error {
		type resolved struct {
			clientID     int64
			deviceID     int64
			technicianID *int64
		}
		refs := make(map[int]resolved, len(records))

		for i := range records {
			rec := &records[i]
			if rec.OrderNumber == "" && rec.ExternalID == "" {
				result.Conflicts = append(result.Conflicts, conflictMissingOrderIdentifier(i))
				continue
			}
			if rec.ClientExternalID == "" {
				result.Conflicts = append(result.Conflicts, conflictMissingRef(KindOrder, i, rec.ExternalID, ReasonMissingClientExternalID))
				continue
			}
			if rec.DeviceExternalID == "" {
				result.Conflicts = append(result.Conflicts, conflictMissingRef(KindOrder, i, rec.ExternalID, ReasonMissingDeviceExternalID))
				continue
			}

			clientID, found, err := tx.EntityIDByExternalID(ctx, KindClient, rec.ClientExternalID)
			if err != nil {
				return err
			}
			if !found {
				result.Conflicts = append(result.Conflicts, conflictRefNotFound(KindOrder, i, rec.ExternalID, ReasonClientNotFound, rec.ClientExternalID))
				continue
			}
			deviceID, found, err := tx.EntityIDByExternalID(ctx, KindDevice, rec.DeviceExternalID)
			if err != nil {
				return err
			}
			if !found {
				result.Conflicts = append(result.Conflicts, conflictRefNotFound(KindOrder, i, rec.ExternalID, ReasonDeviceNotFound, rec.DeviceExternalID))
				continue
			}

			technicianID, err := s.resolveTechnician(ctx, tx, rec.Technician)
			if err != nil {
				return err
			}
			if rec.Technician != nil && technicianID == nil {
				s.logger.Warn("Order technician unresolved, syncing unassigned",
					"order_number", rec.OrderNumber, "external_id", rec.ExternalID)
			}
			refs[i] = resolved{clientID: clientID, deviceID: deviceID, technicianID: technicianID}
		}
		if result.Rejected() {
			return nil
		}

		for i := range records {
			rec := &records[i]
			r := refs[i]

			fields := s.policy.Merge(KindOrder, rec.Fields)
			fields["client_id"] = r.clientID
			fields["device_id"] = r.deviceID
			if r.technicianID != nil {
				fields["technician_id"] = *r.technicianID
			}
			if rec.OrderNumber != "" {
				fields["order_number"] = rec.OrderNumber
			}

			initialStatus := OrderStatusNew
			if r.technicianID != nil {
				initialStatus = OrderStatusAssigned
			}
			outcome, err := s.reconcileOrder(ctx, tx, rec, fields, map[string]any{"status": initialStatus})
			if err != nil {
				return err
			}
			result.Stats.count(outcome)
		}
		return nil
	})
}

func (st *UpsertStats) count(outcome Outcome) {
	switch outcome {
	case OutcomeInserted:
		st.Inserted++
	case OutcomeUpdated:
		st.Updated++
	}
}
