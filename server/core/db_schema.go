// SPDX-License-Identifier: MPL-2.0

package core

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Internal config tables. sqlite is the system of record on each node; the
// state stream replays into it. last_modified drives last-write-wins when
// nodes replay the same events in different sessions.
func initDB(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dashboards (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			last_modified TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cards (
			id TEXT PRIMARY KEY,
			dashboard_id TEXT NOT NULL,
			name TEXT NOT NULL,
			queries TEXT NOT NULL DEFAULT '[]',
			script TEXT NOT NULL DEFAULT '',
			column_types TEXT NOT NULL DEFAULT '{}',
			position INTEGER NOT NULL DEFAULT 0,
			last_modified TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS cards_dashboard_idx ON cards (dashboard_id);

		CREATE TABLE IF NOT EXISTS variables (
			id TEXT PRIMARY KEY,
			dashboard_id TEXT NOT NULL,
			name TEXT NOT NULL,
			value TEXT NOT NULL DEFAULT '',
			is_expression INTEGER NOT NULL DEFAULT 0,
			options TEXT NOT NULL DEFAULT '[]',
			show_on_dashboard INTEGER NOT NULL DEFAULT 0,
			position INTEGER NOT NULL DEFAULT 0,
			last_modified TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS variables_dashboard_idx ON variables (dashboard_id);

		CREATE TABLE IF NOT EXISTS data_sources (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			dsn TEXT NOT NULL DEFAULT '',
			database TEXT NOT NULL DEFAULT '',
			last_modified TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS library (
			id TEXT PRIMARY KEY CHECK (id = 'default'),
			source TEXT NOT NULL DEFAULT '',
			last_modified TIMESTAMP NOT NULL
		);

		-- Deletes must stay idempotent across replays, so deleted ids are
		-- remembered and save events older than the tombstone are ignored.
		CREATE TABLE IF NOT EXISTS tombstones (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			deleted_at TIMESTAMP NOT NULL
		);

		CREATE TABLE IF NOT EXISTS consumer_state (
			name TEXT PRIMARY KEY,
			last_processed_stream_seq INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create internal tables: %w", err)
	}
	return nil
}

// The demo source ships with a small dataset so a fresh install has something
// to query before any external source is configured.
func initDemoDB(db *sqlx.DB) error {
	if db == nil {
		return nil
	}
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			id INTEGER,
			customer VARCHAR,
			dept VARCHAR,
			total DOUBLE,
			ordered_at TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create demo tables: %w", err)
	}
	var count int
	if err := db.Get(&count, `SELECT count(*) FROM orders`); err != nil {
		return fmt.Errorf("failed to count demo rows: %w", err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.Exec(`
		INSERT INTO orders VALUES
			(1, 'acme', 'sales', 120.50, '2026-01-05 09:30:00'),
			(2, 'globex', 'sales', 89.99, '2026-01-06 14:10:00'),
			(3, 'initech', 'marketing', 42.00, '2026-01-07 11:00:00'),
			(4, 'umbrella', 'sales', 310.25, '2026-01-08 16:45:00'),
			(5, 'hooli', 'engineering', 17.80, '2026-01-09 10:05:00');
	`)
	if err != nil {
		return fmt.Errorf("failed to seed demo rows: %w", err)
	}
	return nil
}
