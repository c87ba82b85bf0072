// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

// Package diagnose is the read-only reconciliation scanner. It compares full
// entity sets from the offline desktop store and the shared cloud store and
// reports drift: never-synced records, remote-only records, remote
// duplicates and field mismatches. It never mutates either store, so it is
// safe to run against a live system.
package diagnose

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Row is one entity row in store-agnostic form. ID is the store's native
// primary key rendered as a string.
type Row struct {
	ID         string
	ExternalID string
	Fields     map[string]any
}

// Options selects the correlation and comparison rules for one entity type.
type Options struct {
	// NaturalKeyField is the fallback correlation field used when a row
	// carries no external identifier (e.g. normalized phone number for
	// clients, serial number for devices).
	NaturalKeyField string

	// TrackedFields are compared between correlated rows.
	TrackedFields []string
}

// Stock comparison rules per entity type.
var (
	ClientCompare = Options{
		NaturalKeyField: "phone",
		TrackedFields:   []string{"name", "company_name", "phone", "email", "city", "tax_id"},
	}
	DeviceCompare = Options{
		NaturalKeyField: "serial_number",
		TrackedFields:   []string{"serial_number", "brand", "model", "device_type"},
	}
	OrderCompare = Options{
		NaturalKeyField: "order_number",
		TrackedFields:   []string{"order_number", "status"},
	}
)

// RowRef points at one row in one store, keyed by its correlation key.
type RowRef struct {
	Key        string `json:"key"`
	ID         string `json:"id"`
	ExternalID string `json:"external_id,omitempty"`
}

// Duplicate reports more than one remote row mapping to the same correlation
// key - a reconciliation bug signal.
type Duplicate struct {
	Key       string   `json:"key"`
	RemoteIDs []string `json:"remote_ids"`
}

// FieldDiff is one differing tracked field with both values side by side.
type FieldDiff struct {
	Field  string `json:"field"`
	Local  any    `json:"local"`
	Remote any    `json:"remote"`
}

// Mismatch reports correlated rows whose tracked fields differ.
type Mismatch struct {
	Key      string      `json:"key"`
	LocalID  string      `json:"local_id"`
	RemoteID string      `json:"remote_id"`
	Fields   []FieldDiff `json:"fields"`
}

// Report is the scanner output for one entity type.
type Report struct {
	EntityType  string      `json:"entity_type"`
	GeneratedAt time.Time   `json:"generated_at"`
	LocalCount  int         `json:"local_count"`
	RemoteCount int         `json:"remote_count"`
	OnlyLocal   []RowRef    `json:"only_local"`
	OnlyRemote  []RowRef    `json:"only_remote"`
	Duplicates  []Duplicate `json:"duplicates"`
	Mismatches  []Mismatch  `json:"mismatches"`
}

// Clean reports whether the scanner found no drift at all.
func (r *Report) Clean() bool {
	return len(r.OnlyLocal) == 0 && len(r.OnlyRemote) == 0 &&
		len(r.Duplicates) == 0 && len(r.Mismatches) == 0
}

// Summary renders a one-line result for operator output.
func (r *Report) Summary() string {
	return fmt.Sprintf("%s: local=%d remote=%d only_local=%d only_remote=%d duplicates=%d mismatches=%d",
		r.EntityType, r.LocalCount, r.RemoteCount,
		len(r.OnlyLocal), len(r.OnlyRemote), len(r.Duplicates), len(r.Mismatches))
}

// correlationKey builds the cross-store key for a row: external identifier
// first, then the normalized natural key, then the native id as a last
// resort (which only ever correlates a remote-only orphan back to itself).
func correlationKey(row Row, naturalField string) string {
	if row.ExternalID != "" {
		return "ext:" + row.ExternalID
	}
	if naturalField != "" {
		if natural := normalizeNatural(naturalField, row.Fields[naturalField]); natural != "" {
			return "nat:" + naturalField + ":" + natural
		}
	}
	return "id:" + row.ID
}

// normalizeNatural canonicalizes a natural-key value. Phone numbers keep
// digits only; everything else is uppercased and trimmed.
func normalizeNatural(field string, v any) string {
	s := canonicalValue(v)
	if s == "" {
		return ""
	}
	if field == "phone" {
		var b strings.Builder
		for _, r := range s {
			if r >= '0' && r <= '9' {
				b.WriteRune(r)
			}
		}
		return b.String()
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// canonicalValue renders a field value into a comparable string form.
func canonicalValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Compare correlates the two row sets and partitions the drift. Remote rows
// sharing a correlation key are reported as duplicates; the row with the
// lowest native id acts as primary for field comparison.
func Compare(entityType string, local, remote []Row, opts Options) *Report {
	report := &Report{
		EntityType:  entityType,
		GeneratedAt: time.Now().UTC(),
		LocalCount:  len(local),
		RemoteCount: len(remote),
	}

	remoteByKey := make(map[string][]Row)
	for _, row := range remote {
		key := correlationKey(row, opts.NaturalKeyField)
		remoteByKey[key] = append(remoteByKey[key], row)
	}
	for key, rows := range remoteByKey {
		if len(rows) < 2 {
			continue
		}
		sortRowsByID(rows)
		ids := make([]string, len(rows))
		for i, row := range rows {
			ids[i] = row.ID
		}
		report.Duplicates = append(report.Duplicates, Duplicate{Key: key, RemoteIDs: ids})
	}

	localByKey := make(map[string]Row, len(local))
	for _, row := range local {
		localByKey[correlationKey(row, opts.NaturalKeyField)] = row
	}

	for key, localRow := range localByKey {
		remoteRows, found := remoteByKey[key]
		if !found {
			report.OnlyLocal = append(report.OnlyLocal, RowRef{
				Key: key, ID: localRow.ID, ExternalID: localRow.ExternalID,
			})
			continue
		}
		sortRowsByID(remoteRows)
		primary := remoteRows[0]

		var diffs []FieldDiff
		for _, field := range opts.TrackedFields {
			localVal := localRow.Fields[field]
			remoteVal := primary.Fields[field]
			if canonicalValue(localVal) != canonicalValue(remoteVal) {
				diffs = append(diffs, FieldDiff{Field: field, Local: localVal, Remote: remoteVal})
			}
		}
		if len(diffs) > 0 {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Key: key, LocalID: localRow.ID, RemoteID: primary.ID, Fields: diffs,
			})
		}
	}

	for key, rows := range remoteByKey {
		if _, found := localByKey[key]; found {
			continue
		}
		sortRowsByID(rows)
		report.OnlyRemote = append(report.OnlyRemote, RowRef{
			Key: key, ID: rows[0].ID, ExternalID: rows[0].ExternalID,
		})
	}

	sort.Slice(report.OnlyLocal, func(i, j int) bool { return report.OnlyLocal[i].Key < report.OnlyLocal[j].Key })
	sort.Slice(report.OnlyRemote, func(i, j int) bool { return report.OnlyRemote[i].Key < report.OnlyRemote[j].Key })
	sort.Slice(report.Duplicates, func(i, j int) bool { return report.Duplicates[i].Key < report.Duplicates[j].Key })
	sort.Slice(report.Mismatches, func(i, j int) bool { return report.Mismatches[i].Key < report.Mismatches[j].Key })

	return report
}

// sortRowsByID orders rows by native id, numerically when possible.
func sortRowsByID(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		a, errA := strconv.ParseInt(rows[i].ID, 10, 64)
		b, errB := strconv.ParseInt(rows[j].ID, 10, 64)
		if errA == nil && errB == nil {
			return a < b
		}
		return rows[i].ID < rows[j].ID
	})
}
