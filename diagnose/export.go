// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package diagnose

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteJSON writes the full report as <entity>_report.json in dir.
func WriteJSON(dir string, report *Report) (string, error) {
	path := filepath.Join(dir, report.EntityType+"_report.json")
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// WriteCSV writes flattened tabular exports next to the JSON report:
// one file each for duplicates, mismatches and one-sided records. Empty
// sections are skipped.
func WriteCSV(dir string, report *Report) ([]string, error) {
	var written []string

	if len(report.Duplicates) > 0 {
		rows := [][]string{{"key", "remote_id"}}
		for _, dup := range report.Duplicates {
			for _, id := range dup.RemoteIDs {
				rows = append(rows, []string{dup.Key, id})
			}
		}
		path, err := writeCSVFile(dir, report.EntityType+"_duplicates.csv", rows)
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if len(report.Mismatches) > 0 {
		rows := [][]string{{"key", "local_id", "remote_id", "field", "local_value", "remote_value"}}
		for _, mismatch := range report.Mismatches {
			for _, diff := range mismatch.Fields {
				rows = append(rows, []string{
					mismatch.Key, mismatch.LocalID, mismatch.RemoteID,
					diff.Field, canonicalValue(diff.Local), canonicalValue(diff.Remote),
				})
			}
		}
		path, err := writeCSVFile(dir, report.EntityType+"_mismatches.csv", rows)
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if len(report.OnlyLocal) > 0 || len(report.OnlyRemote) > 0 {
		rows := [][]string{{"side", "key", "id", "external_id"}}
		for _, ref := range report.OnlyLocal {
			rows = append(rows, []string{"local", ref.Key, ref.ID, ref.ExternalID})
		}
		for _, ref := range report.OnlyRemote {
			rows = append(rows, []string{"remote", ref.Key, ref.ID, ref.ExternalID})
		}
		path, err := writeCSVFile(dir, report.EntityType+"_one_sided.csv", rows)
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}

	return written, nil
}

func writeCSVFile(dir, name string, rows [][]string) (string, error) {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}
