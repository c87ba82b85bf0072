// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

// SyncConflict describes why a single batch record could not be reconciled.
// Conflicts are transient report values - they are returned to the caller,
// never persisted. Each one carries the offending identifiers so the operator
// can fix the source record and resubmit.
type SyncConflict struct {
	Reason      string     `json:"reason"`
	Entity      EntityKind `json:"entity"`
	Index       int        `json:"index"`
	ExternalID  string     `json:"external_id,omitempty"`
	OrderNumber string     `json:"order_number,omitempty"`
	Ref         string     `json:"ref,omitempty"`
	Message     string     `json:"message,omitempty"`
}

// conflictMissingExternalID flags a record submitted without its own external
// identifier. Defaulting one in would silently mint duplicates, so this is a
// hard validation failure.
func conflictMissingExternalID(kind EntityKind, idx int) SyncConflict {
	return SyncConflict{
		Reason:  ReasonMissingExternalID,
		Entity:  kind,
		Index:   idx,
		Message: "record has no external identifier",
	}
}

// conflictMissingRef flags a record whose required relationship carried no
// external identifier at all.
func conflictMissingRef(kind EntityKind, idx int, externalID, reason string) SyncConflict {
	return SyncConflict{
		Reason:     reason,
		Entity:     kind,
		Index:      idx,
		ExternalID: externalID,
		Message:    "record is missing a required relationship identifier",
	}
}

// conflictRefNotFound flags a record whose relationship external identifier
// resolved to nothing in the shared store.
func conflictRefNotFound(kind EntityKind, idx int, externalID, reason, ref string) SyncConflict {
	return SyncConflict{
		Reason:     reason,
		Entity:     kind,
		Index:      idx,
		ExternalID: externalID,
		Ref:        ref,
		Message:    "referenced record does not exist in the shared store",
	}
}

// conflictMissingOrderIdentifier flags an order record carrying neither an
// order number nor an external identifier.
func conflictMissingOrderIdentifier(idx int) SyncConflict {
	return SyncConflict{
		Reason:  ReasonMissingOrderIdentifier,
		Entity:  KindOrder,
		Index:   idx,
		Message: "order has neither order number nor external identifier",
	}
}

// conflictBatchTooLarge is applied to every record when the submitted batch
// exceeds the configured size limit.
func conflictBatchTooLarge(kind EntityKind, idx int, msg string) SyncConflict {
	return SyncConflict{
		Reason:  ReasonBatchTooLarge,
		Entity:  kind,
		Index:   idx,
		Message: msg,
	}
}
