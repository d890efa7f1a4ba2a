// SPDX-License-Identifier: MPL-2.0

package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"facet/server/driver"

	"github.com/nrednav/cuid2"
)

var validSourceTypes = map[string]bool{
	"demo":     true,
	"postgres": true,
	"supabase": true,
	"redis":    true,
	"mongodb":  true,
	"rest":     true,
}

type DataSourceListResult struct {
	DataSources []driver.DataSource `json:"dataSources"`
}

type SaveDataSourcePayload struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	DSN       string    `json:"dsn"`
	Database  string    `json:"database"`
}

// SaveDataSource creates or fully replaces a connection definition. An empty
// id means create. Connectivity is not checked here; a broken DSN surfaces on
// the first card run against it.
func SaveDataSource(app *App, ctx context.Context, source driver.DataSource) (string, error) {
	source.Name = strings.TrimSpace(source.Name)
	if source.Name == "" {
		return "", fmt.Errorf("data source name is required")
	}
	if !validSourceTypes[source.Type] {
		return "", fmt.Errorf("unknown data source type: %s", source.Type)
	}
	if source.Type != "demo" && source.DSN == "" {
		return "", fmt.Errorf("data source needs a connection string")
	}
	if source.ID == "" {
		source.ID = cuid2.Generate()
	}
	err := app.SubmitState(ctx, "save_data_source", SaveDataSourcePayload{
		ID:        source.ID,
		Timestamp: time.Now(),
		Name:      source.Name,
		Type:      source.Type,
		DSN:       source.DSN,
		Database:  source.Database,
	})
	return source.ID, err
}

func HandleSaveDataSource(app *App, data []byte) bool {
	var payload SaveDataSourcePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		app.Logger.Error("failed to unmarshal save data source payload", slog.Any("error", err))
		return false
	}
	if tombstonedAfter(app, payload.ID, payload.Timestamp) {
		return true
	}
	_, err := app.Sqlite.Exec(
		`INSERT INTO data_sources (id, name, type, dsn, database, last_modified)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT(id) DO UPDATE SET
			name = $2, type = $3, dsn = $4, database = $5, last_modified = $6
		 WHERE $6 > data_sources.last_modified`,
		payload.ID, payload.Name, payload.Type, payload.DSN, payload.Database, payload.Timestamp,
	)
	if err != nil {
		app.Logger.Error("failed to upsert data source", slog.Any("error", err))
		return false
	}
	return true
}

type DeleteDataSourcePayload struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func DeleteDataSource(app *App, ctx context.Context, id string) error {
	if _, err := GetDataSource(app, ctx, id); err != nil {
		return err
	}
	return app.SubmitState(ctx, "delete_data_source", DeleteDataSourcePayload{
		ID:        id,
		Timestamp: time.Now(),
	})
}

func HandleDeleteDataSource(app *App, data []byte) bool {
	var payload DeleteDataSourcePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		app.Logger.Error("failed to unmarshal delete data source payload", slog.Any("error", err))
		return false
	}
	if err := insertTombstone(app, payload.ID, "data_source", payload.Timestamp); err != nil {
		app.Logger.Error("failed to insert data source tombstone", slog.Any("error", err))
		return false
	}
	_, err := app.Sqlite.Exec(`DELETE FROM data_sources WHERE id = $1`, payload.ID)
	if err != nil {
		app.Logger.Error("failed to delete data source", slog.Any("error", err))
		return false
	}
	return true
}

func GetDataSource(app *App, ctx context.Context, id string) (driver.DataSource, error) {
	var source driver.DataSource
	err := app.Sqlite.GetContext(ctx, &source,
		`SELECT id, name, type, dsn, database, last_modified
		 FROM data_sources WHERE id = $1`, id)
	if err != nil {
		return source, fmt.Errorf("data source not found: %w", err)
	}
	return source, nil
}

func ListDataSources(app *App, ctx context.Context) (DataSourceListResult, error) {
	sources := []driver.DataSource{}
	err := app.Sqlite.SelectContext(ctx, &sources,
		`SELECT id, name, type, dsn, database, last_modified
		 FROM data_sources
		 ORDER BY name, id`)
	if err != nil {
		err = fmt.Errorf("error listing data sources: %w", err)
	}
	return DataSourceListResult{DataSources: sources}, err
}
