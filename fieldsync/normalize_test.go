// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeClientAliases(t *testing.T) {
	rec := NormalizeClient(map[string]any{
		"ext_id":       "C1",
		"contact_name": " Jan Kowalski ",
		"companyName":  "Kotłex Sp. z o.o.",
		"tel":          "600 111 222",
		"nip":          "5213017228",
		"zip":          "00-950",
	})

	require.Equal(t, "C1", rec.ExternalID)
	require.Equal(t, "Jan Kowalski", rec.Fields["name"])
	require.Equal(t, "Kotłex Sp. z o.o.", rec.Fields["company_name"])
	require.Equal(t, "600 111 222", rec.Fields["phone"])
	require.Equal(t, "5213017228", rec.Fields["tax_id"])
	require.Equal(t, "00-950", rec.Fields["postal_code"])
	// Absent fields materialize as nil so the merge policy sees them.
	require.Contains(t, rec.Fields, "email")
	require.Nil(t, rec.Fields["email"])
}

func TestNormalizeEmptyStringsCollapseToNil(t *testing.T) {
	rec := NormalizeClient(map[string]any{
		"external_id": "C1",
		"email":       "   ",
		"city":        "",
	})
	require.Nil(t, rec.Fields["email"])
	require.Nil(t, rec.Fields["city"])
}

func TestNormalizeNumericExternalID(t *testing.T) {
	// JSON numbers decode as float64; integral ids must round-trip cleanly.
	rec := NormalizeTechnician(map[string]any{"external_id": float64(17)})
	require.Equal(t, "17", rec.ExternalID)
}

func TestNormalizeOrderRefs(t *testing.T) {
	rec := NormalizeOrder(map[string]any{
		"orderNumber":      "ZL-2025-0001",
		"clientExternalId": "C1",
		"device_ext_id":    "D1",
		"assigned_to":      "jkowalski",
		"finished_at":      "2025-06-10T10:30:00Z",
	})

	require.Equal(t, "ZL-2025-0001", rec.OrderNumber)
	require.Equal(t, "C1", rec.ClientExternalID)
	require.Equal(t, "D1", rec.DeviceExternalID)
	require.NotNil(t, rec.Technician)
	require.Equal(t, "jkowalski", rec.Technician.Username)
	require.Equal(t, "2025-06-10T10:30:00Z", rec.Fields["completed_at"])
}

func TestTechnicianRefFromValue(t *testing.T) {
	ref := TechnicianRefFromValue(float64(7))
	require.NotNil(t, ref)
	require.NotNil(t, ref.Numeric)
	require.Equal(t, int64(7), *ref.Numeric)

	ref = TechnicianRefFromValue("12")
	require.NotNil(t, ref)
	require.NotNil(t, ref.Numeric)
	require.Equal(t, int64(12), *ref.Numeric)

	ref = TechnicianRefFromValue(" anowak ")
	require.NotNil(t, ref)
	require.Nil(t, ref.Numeric)
	require.Equal(t, "anowak", ref.Username)

	require.Nil(t, TechnicianRefFromValue(""))
	require.Nil(t, TechnicianRefFromValue(nil))
	require.Nil(t, TechnicianRefFromValue(true))
}

func TestNormalizePatch(t *testing.T) {
	patch, fields := NormalizePatch(KindDevice, map[string]any{
		"serialNumber": "SN-001",
		"manufacturer": "Viessmann",
		"unknown":      "dropped",
	})
	require.Equal(t, []string{"brand", "serial_number"}, fields)
	require.Equal(t, "SN-001", patch["serial_number"])
	require.Equal(t, "Viessmann", patch["brand"])
	require.NotContains(t, patch, "unknown")

	patch, fields = NormalizePatch(KindOrder, map[string]any{"title": "x"})
	require.Nil(t, patch)
	require.Nil(t, fields)
}
