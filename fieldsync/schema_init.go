// Copyright 2025 spikss authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InitSchema creates the shared-store tables if they don't exist. All DDL
// runs in one transaction. Every synchronized table carries an external_id
// column with a unique index; service orders additionally enforce a unique
// order number where one is present. An order may legitimately carry only an
// external identifier, so both identity columns are nullable with partial
// unique indexes.
func InitSchema(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	statements := []string{
		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS technicians (
			id           BIGSERIAL PRIMARY KEY,
			external_id  TEXT,
			alias_id     BIGINT,
			username     TEXT,
			display_name TEXT,
			phone        TEXT,
			email        TEXT,
			active       BOOLEAN NOT NULL DEFAULT TRUE,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		/*language=postgresql*/ `CREATE UNIQUE INDEX IF NOT EXISTS technicians_external_id_key
			ON technicians (external_id) WHERE external_id IS NOT NULL`,
		/*language=postgresql*/ `CREATE UNIQUE INDEX IF NOT EXISTS technicians_alias_id_key
			ON technicians (alias_id) WHERE alias_id IS NOT NULL`,
		/*language=postgresql*/ `CREATE UNIQUE INDEX IF NOT EXISTS technicians_username_key
			ON technicians (LOWER(username)) WHERE username IS NOT NULL`,

		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS clients (
			id           BIGSERIAL PRIMARY KEY,
			external_id  TEXT NOT NULL,
			name         TEXT,
			company_name TEXT,
			phone        TEXT,
			email        TEXT,
			street       TEXT,
			city         TEXT,
			postal_code  TEXT,
			tax_id       TEXT,
			active       BOOLEAN NOT NULL DEFAULT TRUE,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		/*language=postgresql*/ `CREATE UNIQUE INDEX IF NOT EXISTS clients_external_id_key
			ON clients (external_id)`,

		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS devices (
			id            BIGSERIAL PRIMARY KEY,
			external_id   TEXT NOT NULL,
			client_id     BIGINT NOT NULL REFERENCES clients (id),
			serial_number TEXT,
			brand         TEXT,
			model         TEXT,
			device_type   TEXT,
			notes         TEXT,
			active        BOOLEAN NOT NULL DEFAULT TRUE,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		/*language=postgresql*/ `CREATE UNIQUE INDEX IF NOT EXISTS devices_external_id_key
			ON devices (external_id)`,
		/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS devices_client_id_idx
			ON devices (client_id)`,

		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS service_orders (
			id            BIGSERIAL PRIMARY KEY,
			external_id   TEXT,
			order_number  TEXT,
			client_id     BIGINT NOT NULL REFERENCES clients (id),
			device_id     BIGINT NOT NULL REFERENCES devices (id),
			technician_id BIGINT REFERENCES technicians (id),
			status        TEXT NOT NULL DEFAULT 'new'
				CHECK (status IN ('new', 'assigned', 'in_progress', 'completed', 'rejected')),
			title         TEXT,
			description   TEXT,
			priority      TEXT,
			scheduled_at  TIMESTAMPTZ,
			started_at    TIMESTAMPTZ,
			completed_at  TIMESTAMPTZ,
			labor_hours   NUMERIC(6,2),
			total_cost    NUMERIC(10,2),
			work_notes    TEXT,
			photo_refs    TEXT[],
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		/*language=postgresql*/ `CREATE UNIQUE INDEX IF NOT EXISTS service_orders_number_key
			ON service_orders (order_number) WHERE order_number IS NOT NULL`,
		/*language=postgresql*/ `CREATE UNIQUE INDEX IF NOT EXISTS service_orders_external_id_key
			ON service_orders (external_id) WHERE external_id IS NOT NULL`,
		/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS service_orders_status_idx
			ON service_orders (status)`,

		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS order_parts (
			id         BIGSERIAL PRIMARY KEY,
			order_id   BIGINT NOT NULL REFERENCES service_orders (id) ON DELETE CASCADE,
			name       TEXT NOT NULL,
			code       TEXT,
			quantity   NUMERIC(8,2) NOT NULL DEFAULT 1,
			unit_price NUMERIC(10,2) NOT NULL DEFAULT 0
		)`,
		/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS order_parts_order_id_idx
			ON order_parts (order_id)`,

		/*language=postgresql*/ `CREATE TABLE IF NOT EXISTS pending_changes (
			id          UUID PRIMARY KEY,
			entity_kind TEXT NOT NULL,
			entity_id   BIGINT NOT NULL,
			payload     JSONB NOT NULL,
			fields      TEXT[] NOT NULL,
			status      TEXT NOT NULL DEFAULT 'pending'
				CHECK (status IN ('pending', 'accepted', 'rejected')),
			proposed_by TEXT,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			decided_at  TIMESTAMPTZ
		)`,
		/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS pending_changes_pending_idx
			ON pending_changes (status, created_at DESC)`,
		/*language=postgresql*/ `CREATE INDEX IF NOT EXISTS pending_changes_entity_idx
			ON pending_changes (entity_kind, entity_id, status)`,
	}

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("schema statement failed: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}
	logger.Debug("Shared store schema initialized")
	return nil
}
