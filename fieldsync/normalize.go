// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// Boundary normalization for loosely typed sync payloads. The desktop client
// has shipped several generations of field names, so every canonical field
// has a list of accepted aliases. Alias handling lives here and nowhere else;
// resolver and reconciler logic only ever sees canonical names.

var externalIDAliases = []string{"external_id", "externalId", "ext_id"}

var technicianFieldAliases = map[string][]string{
	"username":     {"username", "login", "user_name"},
	"display_name": {"display_name", "name", "full_name"},
	"phone":        {"phone", "phone_number", "tel"},
	"email":        {"email", "mail"},
	"active":       {"active", "is_active"},
}

var clientFieldAliases = map[string][]string{
	"name":         {"name", "client_name", "contact_name"},
	"company_name": {"company_name", "company", "companyName"},
	"phone":        {"phone", "phone_number", "tel"},
	"email":        {"email", "mail"},
	"street":       {"street", "address_street", "address"},
	"city":         {"city", "address_city"},
	"postal_code":  {"postal_code", "postalCode", "zip"},
	"tax_id":       {"tax_id", "nip", "vat_id"},
	"active":       {"active", "is_active"},
}

var deviceFieldAliases = map[string][]string{
	"serial_number": {"serial_number", "serialNumber", "serial"},
	"brand":         {"brand", "manufacturer"},
	"model":         {"model", "device_model"},
	"device_type":   {"device_type", "deviceType", "type"},
	"notes":         {"notes", "description"},
	"active":        {"active", "is_active"},
}

var orderFieldAliases = map[string][]string{
	"title":        {"title", "subject"},
	"description":  {"description", "problem_description", "notes"},
	"priority":     {"priority"},
	"scheduled_at": {"scheduled_at", "scheduledAt", "planned_date"},
	// Operational fields. The desktop may echo them back for orders it has
	// already completed locally; the merge policy guards them so a null can
	// never clobber field-completed work.
	"started_at":   {"started_at", "startedAt"},
	"completed_at": {"completed_at", "completedAt", "finished_at"},
	"labor_hours":  {"labor_hours", "laborHours", "work_hours"},
	"total_cost":   {"total_cost", "totalCost"},
	"work_notes":   {"work_notes", "completion_notes"},
	"photo_refs":   {"photo_refs", "photos"},
}

var (
	clientRefAliases     = []string{"client_external_id", "clientExternalId", "client_ext_id"}
	deviceRefAliases     = []string{"device_external_id", "deviceExternalId", "device_ext_id"}
	technicianRefAliases = []string{"technician", "technician_id", "assigned_to"}
	orderNumberAliases   = []string{"order_number", "orderNumber", "number"}
)

// pick returns the first aliased value present in the raw payload.
func pick(raw map[string]any, aliases []string) (any, bool) {
	for _, key := range aliases {
		if v, ok := raw[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// pickString returns the first aliased value coerced to a trimmed string.
func pickString(raw map[string]any, aliases []string) string {
	v, ok := pick(raw, aliases)
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// normalizeValue cleans up a single raw field value. Strings are trimmed and
// empty strings collapse to nil so that "" and null mean the same thing
// downstream.
func normalizeValue(v any) any {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		return s
	}
	return v
}

// normalizeFields materializes every canonical field for the given alias
// table. Fields absent from the payload come through as nil.
func normalizeFields(raw map[string]any, aliases map[string][]string) map[string]any {
	fields := make(map[string]any, len(aliases))
	for canonical, names := range aliases {
		if v, ok := pick(raw, names); ok {
			fields[canonical] = normalizeValue(v)
		} else {
			fields[canonical] = nil
		}
	}
	return fields
}

// NormalizeTechnician converts a raw technician payload into its fixed shape.
func NormalizeTechnician(raw map[string]any) TechnicianRecord {
	return TechnicianRecord{
		ExternalID: pickString(raw, externalIDAliases),
		Fields:     normalizeFields(raw, technicianFieldAliases),
	}
}

// NormalizeClient converts a raw client payload into its fixed shape.
func NormalizeClient(raw map[string]any) ClientRecord {
	return ClientRecord{
		ExternalID: pickString(raw, externalIDAliases),
		Fields:     normalizeFields(raw, clientFieldAliases),
	}
}

// NormalizeDevice converts a raw device payload into its fixed shape.
func NormalizeDevice(raw map[string]any) DeviceRecord {
	return DeviceRecord{
		ExternalID:       pickString(raw, externalIDAliases),
		ClientExternalID: pickString(raw, clientRefAliases),
		Fields:           normalizeFields(raw, deviceFieldAliases),
	}
}

// NormalizeOrder converts a raw service order payload into its fixed shape.
func NormalizeOrder(raw map[string]any) OrderRecord {
	rec := OrderRecord{
		ExternalID:       pickString(raw, externalIDAliases),
		OrderNumber:      pickString(raw, orderNumberAliases),
		ClientExternalID: pickString(raw, clientRefAliases),
		DeviceExternalID: pickString(raw, deviceRefAliases),
		Fields:           normalizeFields(raw, orderFieldAliases),
	}
	if v, ok := pick(raw, technicianRefAliases); ok {
		rec.Technician = TechnicianRefFromValue(v)
	}
	return rec
}

// TechnicianRefFromValue builds a TechnicianRef from a raw payload value.
// Numbers and numeric strings become numeric references; any other non-empty
// string is treated as a username. Returns nil when there is nothing to
// resolve.
func TechnicianRefFromValue(v any) *TechnicianRef {
	switch t := v.(type) {
	case float64:
		n := int64(t)
		return &TechnicianRef{Numeric: &n}
	case int64:
		n := t
		return &TechnicianRef{Numeric: &n}
	case int:
		n := int64(t)
		return &TechnicianRef{Numeric: &n}
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return &TechnicianRef{Numeric: &n}
		}
		return &TechnicianRef{Username: s}
	default:
		return nil
	}
}

// patchAliases maps entity kinds to the alias tables used when normalizing
// pending-change patches.
var patchAliases = map[EntityKind]map[string][]string{
	KindClient: clientFieldAliases,
	KindDevice: deviceFieldAliases,
}

// NormalizePatch converts a raw pending-change patch into canonical field
// names, keeping only fields that are actually present in the payload. The
// returned name list is sorted for stable UI display.
func NormalizePatch(kind EntityKind, raw map[string]any) (map[string]any, []string) {
	aliases, ok := patchAliases[kind]
	if !ok {
		return nil, nil
	}
	patch := make(map[string]any)
	for canonical, names := range aliases {
		if v, present := pick(raw, names); present {
			patch[canonical] = normalizeValue(v)
		}
	}
	fields := make([]string, 0, len(patch))
	for name := range patch {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	return patch, fields
}
