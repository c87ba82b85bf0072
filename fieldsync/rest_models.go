// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"time"
)

// REST/JSON models for the HTTP API.

// BatchResponse is the success shape for a committed sync batch.
type BatchResponse struct {
	Success bool        `json:"success"`
	Stats   UpsertStats `json:"stats"`
}

// ConflictResponse is the 409 shape for a wholesale-rejected batch.
type ConflictResponse struct {
	Success   bool           `json:"success"`
	Error     string         `json:"error"`
	Conflicts []SyncConflict `json:"conflicts"`
}

// PendingChangeListResponse wraps the pending proposal list.
type PendingChangeListResponse struct {
	PendingChanges []*PendingChange `json:"pending_changes"`
}

// ProposeChangeRequest is the mobile-side proposal body.
type ProposeChangeRequest struct {
	EntityType string         `json:"entity_type"`
	EntityID   int64          `json:"entity_id"`
	Patch      map[string]any `json:"patch"`
}

// OrderStatusRequest is the body of a status-transition call.
type OrderStatusRequest struct {
	Status      string      `json:"status"`
	Technician  any         `json:"technician,omitempty"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	LaborHours  *float64    `json:"labor_hours,omitempty"`
	TotalCost   *float64    `json:"total_cost,omitempty"`
	WorkNotes   *string     `json:"work_notes,omitempty"`
	PhotoRefs   []string    `json:"photo_refs,omitempty"`
	Parts       []PartUsage `json:"parts,omitempty"`
}

// NotifyRequest is the publish body for POST /notify.
type NotifyRequest struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// OKResponse is the minimal success shape for state transitions.
type OKResponse struct {
	Success bool `json:"success"`
}

// ErrorResponse is the standardized error shape. Error is a stable code;
// Message is human-readable and never leaks internals.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
