// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package diagnose

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"
)

// EntitySource describes how to load one entity type from either store. The
// desktop SQLite schema mirrors the shared-store column names, so the same
// query text works on both sides.
type EntitySource struct {
	Entity  string
	Options Options
	columns []string
}

func (s EntitySource) query() string {
	return fmt.Sprintf("SELECT id, external_id, %s FROM %ss", strings.Join(s.columns, ", "), s.Entity)
}

// Sources lists the entity types the scanner covers.
func Sources() []EntitySource {
	return []EntitySource{
		{
			Entity:  "client",
			Options: ClientCompare,
			columns: []string{"name", "company_name", "phone", "email", "city", "tax_id"},
		},
		{
			Entity:  "device",
			Options: DeviceCompare,
			columns: []string{"serial_number", "brand", "model", "device_type"},
		},
		{
			Entity:  "service_order",
			Options: OrderCompare,
			columns: []string{"order_number", "status"},
		},
	}
}

// OpenLocal opens the offline desktop store read-only.
func OpenLocal(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open local store %s: %w", path, err)
	}
	return db, nil
}

// LoadLocal reads one entity set from the desktop SQLite store.
func LoadLocal(ctx context.Context, db *sql.DB, src EntitySource) ([]Row, error) {
	rows, err := db.QueryContext(ctx, src.query())
	if err != nil {
		return nil, fmt.Errorf("query local %ss: %w", src.Entity, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			id       int64
			external sql.NullString
		)
		vals := make([]sql.NullString, len(src.columns))
		dest := []any{&id, &external}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan local %s: %w", src.Entity, err)
		}
		out = append(out, buildRow(id, external.String, src.columns, vals))
	}
	return out, rows.Err()
}

// LoadRemote reads one entity set from the shared Postgres store.
func LoadRemote(ctx context.Context, pool *pgxpool.Pool, src EntitySource) ([]Row, error) {
	rows, err := pool.Query(ctx, src.query())
	if err != nil {
		return nil, fmt.Errorf("query remote %ss: %w", src.Entity, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			id       int64
			external *string
		)
		vals := make([]*string, len(src.columns))
		dest := []any{&id, &external}
		for i := range vals {
			dest = append(dest, &vals[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan remote %s: %w", src.Entity, err)
		}
		ext := ""
		if external != nil {
			ext = *external
		}
		strVals := make([]sql.NullString, len(vals))
		for i, v := range vals {
			if v != nil {
				strVals[i] = sql.NullString{String: *v, Valid: true}
			}
		}
		out = append(out, buildRow(id, ext, src.columns, strVals))
	}
	return out, rows.Err()
}

func buildRow(id int64, externalID string, columns []string, vals []sql.NullString) Row {
	fields := make(map[string]any, len(columns))
	for i, col := range columns {
		if vals[i].Valid {
			fields[col] = vals[i].String
		} else {
			fields[col] = nil
		}
	}
	return Row{
		ID:         strconv.FormatInt(id, 10),
		ExternalID: externalID,
		Fields:     fields,
	}
}
