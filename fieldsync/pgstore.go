// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is the production Store over the authoritative Postgres instance.
// All mutation runs under pgx.BeginTxFunc at REPEATABLE READ, so a batch sees
// one consistent snapshot from dependency resolution through the last write.
type PgStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPgStore creates a store from an existing pool. Pool lifecycle stays with
// the caller.
func NewPgStore(pool *pgxpool.Pool, logger *slog.Logger) *PgStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PgStore{pool: pool, logger: logger}
}

// WithTx implements Store.
func (s *PgStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool,
		pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadWrite},
		func(tx pgx.Tx) error {
			return fn(ctx, &pgTx{tx: tx})
		})
}

type pgTx struct {
	tx pgx.Tx
}

var entityTables = map[EntityKind]string{
	KindTechnician: "technicians",
	KindClient:     "clients",
	KindDevice:     "devices",
	KindOrder:      "service_orders",
}

// entityColumns whitelists the columns the reconciler may write per entity.
// Dynamic SQL is built from this list only; payload keys never reach the
// query text.
var entityColumns = map[EntityKind]map[string]bool{
	KindTechnician: {
		"alias_id": true, "username": true, "display_name": true,
		"phone": true, "email": true, "active": true,
	},
	KindClient: {
		"name": true, "company_name": true, "phone": true, "email": true,
		"street": true, "city": true, "postal_code": true, "tax_id": true,
		"active": true,
	},
	KindDevice: {
		"client_id": true, "serial_number": true, "brand": true, "model": true,
		"device_type": true, "notes": true, "active": true,
	},
	KindOrder: {
		"order_number": true, "client_id": true, "device_id": true,
		"technician_id": true, "status": true, "title": true,
		"description": true, "priority": true, "scheduled_at": true,
		"started_at": true, "completed_at": true, "labor_hours": true,
		"total_cost": true, "work_notes": true, "photo_refs": true,
	},
}

func tableFor(kind EntityKind) (string, error) {
	table, ok := entityTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
	return table, nil
}

// sortedColumns validates fields against the whitelist and returns the column
// names in deterministic order.
func sortedColumns(kind EntityKind, fields map[string]any) ([]string, error) {
	allowed := entityColumns[kind]
	cols := make([]string, 0, len(fields))
	for col := range fields {
		if !allowed[col] {
			return nil, fmt.Errorf("column %q is not syncable for %s", col, kind)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols, nil
}

// encodeValue adapts normalized payload values to pgx-encodable ones.
func encodeValue(v any) any {
	if items, ok := v.([]any); ok {
		strs := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				strs = append(strs, s)
			}
		}
		return strs
	}
	return v
}

// nullableText maps an empty external identifier to NULL so the unique index
// never trips over rows that legitimately have none.
func nullableText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (t *pgTx) EntityIDByExternalID(ctx context.Context, kind EntityKind, externalID string) (int64, bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, false, err
	}
	var id int64
	query := fmt.Sprintf(`SELECT id FROM %s WHERE external_id = $1`, pgx.Identifier{table}.Sanitize())
	err = t.tx.QueryRow(ctx, query, externalID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (t *pgTx) EntityExists(ctx context.Context, kind EntityKind, id int64) (bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return false, err
	}
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, pgx.Identifier{table}.Sanitize())
	if err := t.tx.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (t *pgTx) EntityExternalID(ctx context.Context, kind EntityKind, id int64) (string, bool, error) {
	table, err := tableFor(kind)
	if err != nil {
		return "", false, err
	}
	var externalID *string
	query := fmt.Sprintf(`SELECT external_id FROM %s WHERE id = $1`, pgx.Identifier{table}.Sanitize())
	err = t.tx.QueryRow(ctx, query, id).Scan(&externalID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if externalID == nil {
		return "", true, nil
	}
	return *externalID, true, nil
}

func (t *pgTx) InsertEntity(ctx context.Context, kind EntityKind, externalID string, fields map[string]any) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	cols, err := sortedColumns(kind, fields)
	if err != nil {
		return 0, err
	}

	names := []string{pgx.Identifier{"external_id"}.Sanitize()}
	placeholders := []string{"$1"}
	args := []any{nullableText(externalID)}
	for _, col := range cols {
		names = append(names, pgx.Identifier{col}.Sanitize())
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)+1))
		args = append(args, encodeValue(fields[col]))
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING id`,
		pgx.Identifier{table}.Sanitize(),
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "))

	var id int64
	if err := t.tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (t *pgTx) UpdateEntity(ctx context.Context, kind EntityKind, id int64, fields map[string]any) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	cols, err := sortedColumns(kind, fields)
	if err != nil {
		return err
	}

	sets := []string{"updated_at = now()"}
	args := []any{id}
	for _, col := range cols {
		args = append(args, encodeValue(fields[col]))
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{col}.Sanitize(), len(args)))
	}

	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $1`,
		pgx.Identifier{table}.Sanitize(), strings.Join(sets, ", "))
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s id %d does not exist", kind, id)
	}
	return nil
}

func (t *pgTx) TechnicianExists(ctx context.Context, id int64) (bool, error) {
	return t.EntityExists(ctx, KindTechnician, id)
}

func (t *pgTx) TechnicianIDByAlias(ctx context.Context, aliasID int64) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM technicians WHERE alias_id = $1`, aliasID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (t *pgTx) TechnicianIDByUsername(ctx context.Context, username string) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`SELECT id FROM technicians WHERE LOWER(username) = LOWER($1)`, username).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (t *pgTx) OrderIDByNumber(ctx context.Context, number string) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM service_orders WHERE order_number = $1`, number).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (t *pgTx) OrderStatus(ctx context.Context, id int64) (string, error) {
	var status string
	if err := t.tx.QueryRow(ctx, `SELECT status FROM service_orders WHERE id = $1`, id).Scan(&status); err != nil {
		return "", err
	}
	return status, nil
}

func (t *pgTx) ReplaceOrderParts(ctx context.Context, orderID int64, parts []PartUsage) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM order_parts WHERE order_id = $1`, orderID); err != nil {
		return err
	}
	for _, part := range parts {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO order_parts (order_id, name, code, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5)`,
			orderID, part.Name, nullableText(part.Code), part.Quantity, part.UnitPrice)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) InsertPendingChange(ctx context.Context, pc *PendingChange) error {
	payload, err := json.Marshal(pc.Patch)
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO pending_changes (id, entity_kind, entity_id, payload, fields, status, proposed_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		pc.ID, string(pc.EntityKind), pc.EntityID, payload, pc.Fields, pc.Status, pc.ProposedBy, pc.CreatedAt)
	return err
}

func (t *pgTx) PendingChangeByID(ctx context.Context, id uuid.UUID) (*PendingChange, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, entity_kind, entity_id, payload, fields, status, proposed_by, created_at, decided_at
		FROM pending_changes WHERE id = $1`, id)
	pc, err := scanPendingChange(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return pc, err
}

func (t *pgTx) ListPendingChanges(ctx context.Context) ([]*PendingChange, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, entity_kind, entity_id, payload, fields, status, proposed_by, created_at, decided_at
		FROM pending_changes
		WHERE status = 'pending'
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PendingChange
	for rows.Next() {
		pc, err := scanPendingChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

func scanPendingChange(row pgx.Row) (*PendingChange, error) {
	var (
		pc      PendingChange
		kind    string
		payload []byte
	)
	if err := row.Scan(&pc.ID, &kind, &pc.EntityID, &payload, &pc.Fields,
		&pc.Status, &pc.ProposedBy, &pc.CreatedAt, &pc.DecidedAt); err != nil {
		return nil, err
	}
	pc.EntityKind = EntityKind(kind)
	if err := json.Unmarshal(payload, &pc.Patch); err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	return &pc, nil
}

func (t *pgTx) SetPendingChangeStatus(ctx context.Context, id uuid.UUID, status string, decidedAt time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE pending_changes SET status = $2, decided_at = $3 WHERE id = $1`,
		id, status, decidedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("pending change %s does not exist", id)
	}
	return nil
}

func (t *pgTx) RejectOtherPending(ctx context.Context, kind EntityKind, entityID int64, exceptID uuid.UUID, decidedAt time.Time) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE pending_changes
		SET status = 'rejected', decided_at = $4
		WHERE entity_kind = $1 AND entity_id = $2 AND status = 'pending' AND id <> $3`,
		string(kind), entityID, exceptID, decidedAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
