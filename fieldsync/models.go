// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

// Normalized internal record shapes. Incoming JSON bodies are loosely typed
// and use aliased field names; normalize.go converts them into these fixed
// shapes before any resolver or reconciler logic runs. Field maps hold every
// canonical field name for the entity, with nil for absent or null values.

// TechnicianRecord is a normalized technician batch record.
type TechnicianRecord struct {
	ExternalID string
	Fields     map[string]any
}

// ClientRecord is a normalized client batch record.
type ClientRecord struct {
	ExternalID string
	Fields     map[string]any
}

// DeviceRecord is a normalized device batch record. Every device belongs to
// exactly one client, referenced by the client's external identifier.
type DeviceRecord struct {
	ExternalID       string
	ClientExternalID string
	Fields           map[string]any
}

// OrderRecord is a normalized service order batch record. Identity is the
// human-readable order number plus an optional external identifier for the
// originating desktop record.
type OrderRecord struct {
	ExternalID       string
	OrderNumber      string
	ClientExternalID string
	DeviceExternalID string
	Technician       *TechnicianRef
	Fields           map[string]any
}

// TechnicianRef is a raw technician reference as submitted by the offline
// store. A numeric value may be either a shared-store native id or an
// offline-origin alias id; a non-numeric string is treated as a username.
type TechnicianRef struct {
	Numeric  *int64
	Username string
}

// PartUsage is one used-part line item attached to a service order on
// completion.
type PartUsage struct {
	Name      string  `json:"name"`
	Code      string  `json:"code,omitempty"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// UpsertStats counts reconciliation outcomes for one accepted batch.
type UpsertStats struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

// BatchResult is the outcome of processing one batch: either stats for a
// fully committed batch, or the complete conflict list for a fully rejected
// one. The two are mutually exclusive.
type BatchResult struct {
	Stats     UpsertStats
	Conflicts []SyncConflict
}

// Rejected reports whether the batch was rejected wholesale.
func (r *BatchResult) Rejected() bool {
	return len(r.Conflicts) > 0
}
