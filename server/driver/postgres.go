// SPDX-License-Identifier: MPL-2.0

package driver

import (
	"context"
	"fmt"

	"facet/server/pipeline"

	"github.com/jackc/pgx/v5"
)

// postgresDriver covers plain Postgres and Supabase sources (Supabase exposes
// a standard Postgres connection string).
type postgresDriver struct {
	conn *pgx.Conn
}

func openPostgres(ctx context.Context, dsn string) (Driver, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to postgres: %w", err)
	}
	return &postgresDriver{conn: conn}, nil
}

func (d *postgresDriver) Query(ctx context.Context, query string) (pipeline.QueryResult, error) {
	result := pipeline.QueryResult{Columns: []string{}, Rows: [][]any{}}
	rows, err := d.conn.Query(ctx, query)
	if err != nil {
		return result, fmt.Errorf("error querying postgres: %w", err)
	}
	defer rows.Close()
	for _, field := range rows.FieldDescriptions() {
		result.Columns = append(result.Columns, field.Name)
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return result, err
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = formatCell(v)
		}
		result.Rows = append(result.Rows, row)
		if len(result.Rows) >= queryMaxRows {
			break
		}
	}
	return result, rows.Err()
}

func (d *postgresDriver) Close() error {
	return d.conn.Close(context.Background())
}
