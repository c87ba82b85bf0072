// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package diagnose

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompareClean(t *testing.T) {
	local := []Row{{ID: "1", ExternalID: "C1", Fields: map[string]any{"name": "Jan", "phone": "600111222"}}}
	remote := []Row{{ID: "10", ExternalID: "C1", Fields: map[string]any{"name": "Jan", "phone": "600111222"}}}

	report := Compare("client", local, remote, ClientCompare)
	require.True(t, report.Clean())
	require.Equal(t, 1, report.LocalCount)
	require.Equal(t, 1, report.RemoteCount)
}

func TestCompareDuplicatesAndMismatch(t *testing.T) {
	local := []Row{{
		ID: "1", ExternalID: "C1",
		Fields: map[string]any{"name": "Jan Kowalski", "phone": "600111222", "email": "jan@a.pl"},
	}}
	// Two remote rows claim the same external id; the lower id is primary and
	// its email differs from the local value.
	remote := []Row{
		{ID: "31", ExternalID: "C1", Fields: map[string]any{"name": "Jan Kowalski", "phone": "600111222", "email": "jan@b.pl"}},
		{ID: "12", ExternalID: "C1", Fields: map[string]any{"name": "Jan Kowalski", "phone": "600111222", "email": "jan@a.pl"}},
	}

	report := Compare("client", local, remote, ClientCompare)
	require.False(t, report.Clean())

	require.Len(t, report.Duplicates, 1)
	require.Equal(t, "ext:C1", report.Duplicates[0].Key)
	require.Equal(t, []string{"12", "31"}, report.Duplicates[0].RemoteIDs)

	// The primary (lowest id) row matches, so no mismatch is reported.
	require.Empty(t, report.Mismatches)
	require.Empty(t, report.OnlyLocal)
	require.Empty(t, report.OnlyRemote)
}

func TestCompareFieldMismatch(t *testing.T) {
	local := []Row{{
		ID: "1", ExternalID: "C1",
		Fields: map[string]any{"name": "Jan Kowalski", "email": "jan@a.pl"},
	}}
	remote := []Row{{
		ID: "12", ExternalID: "C1",
		Fields: map[string]any{"name": "Jan Kowalski", "email": "jan@b.pl"},
	}}

	report := Compare("client", local, remote, ClientCompare)
	require.Len(t, report.Mismatches, 1)

	m := report.Mismatches[0]
	require.Equal(t, "ext:C1", m.Key)
	require.Equal(t, "1", m.LocalID)
	require.Equal(t, "12", m.RemoteID)
	require.Len(t, m.Fields, 1)
	require.Equal(t, "email", m.Fields[0].Field)
	require.Equal(t, "jan@a.pl", m.Fields[0].Local)
	require.Equal(t, "jan@b.pl", m.Fields[0].Remote)
}

func TestCompareNaturalKeyFallback(t *testing.T) {
	// The local row was never synced (no external id); it correlates with the
	// remote row by normalized phone number.
	local := []Row{{ID: "1", Fields: map[string]any{"name": "Jan", "phone": "600 111 222"}}}
	remote := []Row{{ID: "10", Fields: map[string]any{"name": "Jan", "phone": "600111222"}}}

	report := Compare("client", local, remote, ClientCompare)
	require.Empty(t, report.OnlyLocal)
	require.Empty(t, report.OnlyRemote)
	// phone is tracked but canonical comparison normalizes only the key, not
	// the field value, so the spacing difference is a mismatch.
	require.Len(t, report.Mismatches, 1)
	require.Equal(t, "phone", report.Mismatches[0].Fields[0].Field)
}

func TestCompareOneSided(t *testing.T) {
	local := []Row{
		{ID: "1", ExternalID: "C1", Fields: map[string]any{"name": "Jan"}},
		{ID: "2", Fields: map[string]any{"name": "Lokalny", "phone": "500100200"}},
	}
	remote := []Row{
		{ID: "10", ExternalID: "C1", Fields: map[string]any{"name": "Jan"}},
		{ID: "11", ExternalID: "C9", Fields: map[string]any{"name": "Zdalny"}},
	}

	report := Compare("client", local, remote, ClientCompare)
	require.Len(t, report.OnlyLocal, 1)
	require.Equal(t, "nat:phone:500100200", report.OnlyLocal[0].Key)
	require.Equal(t, "2", report.OnlyLocal[0].ID)
	require.Len(t, report.OnlyRemote, 1)
	require.Equal(t, "ext:C9", report.OnlyRemote[0].Key)
}

func TestCompareSerialNumberCaseInsensitive(t *testing.T) {
	local := []Row{{ID: "1", Fields: map[string]any{"serial_number": "sn-001"}}}
	remote := []Row{{ID: "5", Fields: map[string]any{"serial_number": "SN-001"}}}

	report := Compare("device", local, remote, DeviceCompare)
	require.Empty(t, report.OnlyLocal)
	require.Empty(t, report.OnlyRemote)
}

func TestWriteReports(t *testing.T) {
	dir := t.TempDir()
	report := Compare("client",
		[]Row{{ID: "1", ExternalID: "C1", Fields: map[string]any{"name": "Jan", "email": "a@a.pl"}}},
		[]Row{
			{ID: "10", ExternalID: "C1", Fields: map[string]any{"name": "Jan", "email": "b@b.pl"}},
			{ID: "11", ExternalID: "C1", Fields: map[string]any{"name": "Jan", "email": "b@b.pl"}},
			{ID: "12", ExternalID: "C2", Fields: map[string]any{"name": "Inny"}},
		},
		ClientCompare)

	jsonPath, err := WriteJSON(dir, report)
	require.NoError(t, err)
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "client", decoded.EntityType)
	require.Len(t, decoded.Duplicates, 1)

	csvPaths, err := WriteCSV(dir, report)
	require.NoError(t, err)
	require.NotEmpty(t, csvPaths)
	for _, p := range csvPaths {
		_, err := os.Stat(p)
		require.NoError(t, err)
	}
}
