// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

// FieldClass controls how the upsert reconciler treats an incoming null for a
// field that already has a value in the shared store.
type FieldClass int

const (
	// FieldDescriptive fields (names, contact info) are fully overwritten by
	// the incoming value, including with null. The offline store is
	// authoritative for descriptive data.
	FieldDescriptive FieldClass = iota

	// FieldOperational fields (timestamps, computed costs, completion
	// artifacts) keep their existing value when the incoming value is null or
	// absent, so stale scheduling data can never erase field-completed work.
	FieldOperational
)

// MergePolicy classifies every synchronized field per entity kind. New fields
// need an explicit classification here; anything unclassified falls back to
// FieldOperational, the non-destructive side.
type MergePolicy map[EntityKind]map[string]FieldClass

// DefaultMergePolicy returns the stock field classification.
func DefaultMergePolicy() MergePolicy {
	return MergePolicy{
		KindTechnician: {
			"username":     FieldDescriptive,
			"display_name": FieldDescriptive,
			"phone":        FieldDescriptive,
			"email":        FieldDescriptive,
			"active":       FieldDescriptive,
		},
		KindClient: {
			"name":         FieldDescriptive,
			"company_name": FieldDescriptive,
			"phone":        FieldDescriptive,
			"email":        FieldDescriptive,
			"street":       FieldDescriptive,
			"city":         FieldDescriptive,
			"postal_code":  FieldDescriptive,
			"tax_id":       FieldDescriptive,
			"active":       FieldDescriptive,
		},
		KindDevice: {
			"serial_number": FieldDescriptive,
			"brand":         FieldDescriptive,
			"model":         FieldDescriptive,
			"device_type":   FieldDescriptive,
			"notes":         FieldDescriptive,
			"active":        FieldDescriptive,
		},
		KindOrder: {
			"title":        FieldDescriptive,
			"description":  FieldDescriptive,
			"priority":     FieldDescriptive,
			"scheduled_at": FieldDescriptive,
			"started_at":   FieldOperational,
			"completed_at": FieldOperational,
			"labor_hours":  FieldOperational,
			"total_cost":   FieldOperational,
			"work_notes":   FieldOperational,
			"photo_refs":   FieldOperational,
		},
	}
}

// Merge filters an incoming field map down to the columns the reconciler is
// allowed to write. Descriptive fields pass through as-is, null included;
// operational fields are dropped when null so the existing value survives.
func (p MergePolicy) Merge(kind EntityKind, incoming map[string]any) map[string]any {
	classes := p[kind]
	out := make(map[string]any, len(incoming))
	for name, value := range incoming {
		class, known := classes[name]
		if !known {
			class = FieldOperational
		}
		if class == FieldOperational && value == nil {
			continue
		}
		out[name] = value
	}
	return out
}
