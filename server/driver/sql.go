// SPDX-License-Identifier: MPL-2.0

package driver

import (
	"context"
	"fmt"

	"facet/server/pipeline"

	"github.com/jmoiron/sqlx"
)

const queryMaxRows = 3000

// sqlDriver serves the local demo store (duckdb) and any sqlx-compatible
// source. The shared flag marks the process-wide demo handle, which must not
// be closed per run.
type sqlDriver struct {
	db     *sqlx.DB
	shared bool
}

func (d *sqlDriver) Query(ctx context.Context, query string) (pipeline.QueryResult, error) {
	result := pipeline.QueryResult{Columns: []string{}, Rows: [][]any{}}
	rows, err := d.db.QueryxContext(ctx, query)
	if err != nil {
		return result, fmt.Errorf("error querying DB: %w", err)
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return result, err
	}
	result.Columns = columns
	for rows.Next() {
		row, err := rows.SliceScan()
		if err != nil {
			return result, err
		}
		for i, cell := range row {
			row[i] = formatCell(cell)
		}
		result.Rows = append(result.Rows, row)
		if len(result.Rows) >= queryMaxRows {
			// TODO: surface a truncation warning to the user
			break
		}
	}
	return result, rows.Err()
}

func (d *sqlDriver) Close() error {
	if d.shared {
		return nil
	}
	return d.db.Close()
}
