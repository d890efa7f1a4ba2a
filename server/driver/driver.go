// SPDX-License-Identifier: MPL-2.0

// Package driver runs card queries against the configured data sources and
// shapes every result into the tabular form the processing pipeline consumes.
package driver

import (
	"context"
	"fmt"
	"time"

	"facet/server/pipeline"

	"github.com/jmoiron/sqlx"
)

// Driver executes one query string against a data source. Query text arrives
// with dashboard variables already substituted.
type Driver interface {
	Query(ctx context.Context, query string) (pipeline.QueryResult, error)
	Close() error
}

// DataSource is a stored connection definition. DSN carries the
// driver-specific connection string (or base URL for rest sources).
type DataSource struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Type         string    `db:"type" json:"type"`
	DSN          string    `db:"dsn" json:"dsn"`
	Database     string    `db:"database" json:"database,omitempty"`
	LastModified time.Time `db:"last_modified" json:"lastModified"`
}

// Open connects to a data source. demo is the shared local store handle and is
// never closed by the returned driver. Every other driver owns its connection
// for the duration of one card run.
func Open(ctx context.Context, source DataSource, demo *sqlx.DB) (Driver, error) {
	switch source.Type {
	case "demo":
		return &sqlDriver{db: demo, shared: true}, nil
	case "postgres", "supabase":
		return openPostgres(ctx, source.DSN)
	case "redis":
		return openRedis(ctx, source.DSN)
	case "mongodb":
		return openMongo(ctx, source.DSN, source.Database)
	case "rest":
		return &restDriver{baseURL: source.DSN}, nil
	}
	return nil, fmt.Errorf("unknown data source type: %s", source.Type)
}

// Time values are rendered to strings at the driver boundary so type
// inference and user scripts see consistent date/datetime text.
func formatCell(v any) any {
	switch v := v.(type) {
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format(time.DateOnly)
		}
		return v.Format(time.RFC3339)
	case []byte:
		return string(v)
	}
	return v
}
