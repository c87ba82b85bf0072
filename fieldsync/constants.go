// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

// EntityKind identifies a synchronized entity type.
type EntityKind string

const (
	KindTechnician EntityKind = "technician"
	KindClient     EntityKind = "client"
	KindDevice     EntityKind = "device"
	KindOrder      EntityKind = "service_order"
)

// Service order lifecycle statuses
const (
	OrderStatusNew        = "new"
	OrderStatusAssigned   = "assigned"
	OrderStatusInProgress = "in_progress"
	OrderStatusCompleted  = "completed"
	OrderStatusRejected   = "rejected"
)

// Pending change statuses
const (
	PendingStatusPending  = "pending"
	PendingStatusAccepted = "accepted"
	PendingStatusRejected = "rejected"
)

// Conflict reason constants
const (
	ReasonMissingExternalID       = "missing_external_id"
	ReasonMissingClientExternalID = "missing_client_external_id"
	ReasonClientNotFound          = "client_not_found"
	ReasonMissingDeviceExternalID = "missing_device_external_id"
	ReasonDeviceNotFound          = "device_not_found"
	ReasonMissingOrderIdentifier  = "missing_order_identifier"
	ReasonBadPayload              = "bad_payload"
	ReasonBatchTooLarge           = "batch_too_large"
)

// ErrCodeQueuePaused is the stable error code returned when a batch is
// rejected wholesale. The caller must fix every listed conflict and resubmit
// the whole batch; there is no partial retry of the successful subset.
const ErrCodeQueuePaused = "QUEUE_PAUSED"
