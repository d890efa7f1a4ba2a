// SPDX-License-Identifier: MPL-2.0

package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// The library is a single shared JavaScript source that is prepended to every
// expression and post-processing script. Helpers defined here are available
// everywhere without per-card copies.

type Library struct {
	Source       string    `db:"source" json:"source"`
	LastModified time.Time `db:"last_modified" json:"lastModified"`
}

type SaveLibraryPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

func GetLibrary(app *App, ctx context.Context) (Library, error) {
	var lib Library
	err := app.Sqlite.GetContext(ctx, &lib,
		`SELECT source, last_modified FROM library WHERE id = 'default'`)
	if errors.Is(err, sql.ErrNoRows) {
		return Library{}, nil
	}
	if err != nil {
		return lib, fmt.Errorf("error loading library: %w", err)
	}
	return lib, nil
}

func SaveLibrary(app *App, ctx context.Context, source string) error {
	return app.SubmitState(ctx, "save_library", SaveLibraryPayload{
		Timestamp: time.Now(),
		Source:    source,
	})
}

func HandleSaveLibrary(app *App, data []byte) bool {
	var payload SaveLibraryPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		app.Logger.Error("failed to unmarshal save library payload", slog.Any("error", err))
		return false
	}
	_, err := app.Sqlite.Exec(
		`INSERT INTO library (id, source, last_modified)
		 VALUES ('default', $1, $2)
		 ON CONFLICT(id) DO UPDATE SET source = $1, last_modified = $2
		 WHERE $2 > library.last_modified`,
		payload.Source, payload.Timestamp,
	)
	if err != nil {
		app.Logger.Error("failed to save library", slog.Any("error", err))
		return false
	}
	return true
}
