// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrOrderNotFound     = errors.New("service order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// OrderTransition is a status-transition request for a service order. Status
// transitions are the only writers of operational fields; generic field sync
// never touches them.
type OrderTransition struct {
	OrderNumber string
	Status      string
	Technician  *TechnicianRef
	StartedAt   *time.Time
	CompletedAt *time.Time
	LaborHours  *float64
	TotalCost   *float64
	WorkNotes   *string
	PhotoRefs   []string
	Parts       []PartUsage
}

// orderTransitions lists the allowed target statuses from each state.
// completed and rejected are terminal.
var orderTransitions = map[string][]string{
	OrderStatusNew:        {OrderStatusAssigned, OrderStatusInProgress},
	OrderStatusAssigned:   {OrderStatusInProgress, OrderStatusCompleted, OrderStatusRejected},
	OrderStatusInProgress: {OrderStatusCompleted, OrderStatusRejected},
}

func transitionAllowed(from, to string) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionOrder moves a service order through its lifecycle and writes the
// operational fields carried by the transition. The status change, field
// writes and used-parts replacement commit in one transaction. On success an
// accepted-change notification is emitted, best-effort.
func (s *SyncService) TransitionOrder(ctx context.Context, t *OrderTransition) error {
	if t.OrderNumber == "" {
		return ErrOrderNotFound
	}

	var orderID int64
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		id, found, err := tx.OrderIDByNumber(ctx, t.OrderNumber)
		if err != nil {
			return err
		}
		if !found {
			return ErrOrderNotFound
		}
		orderID = id

		current, err := tx.OrderStatus(ctx, id)
		if err != nil {
			return err
		}
		if !transitionAllowed(current, t.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, t.Status)
		}

		fields := map[string]any{"status": t.Status}
		if t.Technician != nil {
			technicianID, err := s.resolveTechnician(ctx, tx, t.Technician)
			if err != nil {
				return err
			}
			if technicianID != nil {
				fields["technician_id"] = *technicianID
			}
		}
		if t.StartedAt != nil {
			fields["started_at"] = t.StartedAt.UTC()
		}
		if t.CompletedAt != nil {
			fields["completed_at"] = t.CompletedAt.UTC()
		}
		if t.LaborHours != nil {
			fields["labor_hours"] = *t.LaborHours
		} else if hours := computeLaborHours(t.StartedAt, t.CompletedAt); hours != nil {
			fields["labor_hours"] = *hours
		}
		if t.TotalCost != nil {
			fields["total_cost"] = *t.TotalCost
		}
		if t.WorkNotes != nil {
			fields["work_notes"] = *t.WorkNotes
		}
		if t.PhotoRefs != nil {
			fields["photo_refs"] = t.PhotoRefs
		}

		if err := tx.UpdateEntity(ctx, KindOrder, id, fields); err != nil {
			return err
		}
		if t.Parts != nil {
			if err := tx.ReplaceOrderParts(ctx, id, t.Parts); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrInvalidTransition) {
			return err
		}
		return fmt.Errorf("transition order %q: %w", t.OrderNumber, err)
	}

	s.logger.Info("Order status transition",
		"order_number", t.OrderNumber, "status", t.Status, "parts", len(t.Parts))
	s.sink.Notify(string(KindOrder), map[string]any{
		"id":           orderID,
		"order_number": t.OrderNumber,
		"status":       t.Status,
	})
	return nil
}

// computeLaborHours derives labor hours from the start/completion pair when
// the caller did not supply an explicit value. Rounded to two decimals.
func computeLaborHours(started, completed *time.Time) *float64 {
	if started == nil || completed == nil || completed.Before(*started) {
		return nil
	}
	hours := completed.Sub(*started).Hours()
	hours = math.Round(hours*100) / 100
	return &hours
}
