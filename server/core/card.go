// SPDX-License-Identifier: MPL-2.0

package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"facet/server/pipeline"

	"github.com/nrednav/cuid2"
)

// Card is one query-driven tile on a dashboard. Queries run in order; the
// first one is the primary row set handed to the script, the rest are exposed
// to the script as named datasets. ColumnTypes holds user overrides that win
// over inference on every run.
type Card struct {
	ID           string                         `json:"id"`
	DashboardID  string                         `json:"dashboardId"`
	Name         string                         `json:"name"`
	Queries      []CardQuery                    `json:"queries"`
	Script       string                         `json:"script"`
	ColumnTypes  map[string]pipeline.ColumnType `json:"columnTypes"`
	Position     int                            `json:"position"`
	LastModified time.Time                      `json:"lastModified"`
}

type CardQuery struct {
	Name         string `json:"name"`
	DataSourceID string `json:"dataSourceId"`
	Text         string `json:"text"`
}

// cardRow is the sqlite shape. Queries and column types are JSON columns.
type cardRow struct {
	ID           string    `db:"id"`
	DashboardID  string    `db:"dashboard_id"`
	Name         string    `db:"name"`
	Queries      string    `db:"queries"`
	Script       string    `db:"script"`
	ColumnTypes  string    `db:"column_types"`
	Position     int       `db:"position"`
	LastModified time.Time `db:"last_modified"`
}

func (r cardRow) toCard() (Card, error) {
	card := Card{
		ID:           r.ID,
		DashboardID:  r.DashboardID,
		Name:         r.Name,
		Script:       r.Script,
		Position:     r.Position,
		LastModified: r.LastModified,
	}
	if err := json.Unmarshal([]byte(r.Queries), &card.Queries); err != nil {
		return card, fmt.Errorf("corrupt queries for card %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(r.ColumnTypes), &card.ColumnTypes); err != nil {
		return card, fmt.Errorf("corrupt column types for card %s: %w", r.ID, err)
	}
	return card, nil
}

type SaveCardPayload struct {
	ID          string                         `json:"id"`
	Timestamp   time.Time                      `json:"timestamp"`
	DashboardID string                         `json:"dashboardId"`
	Name        string                         `json:"name"`
	Queries     []CardQuery                    `json:"queries"`
	Script      string                         `json:"script"`
	ColumnTypes map[string]pipeline.ColumnType `json:"columnTypes"`
	Position    int                            `json:"position"`
}

// SaveCard creates or fully replaces a card. An empty id means create.
func SaveCard(app *App, ctx context.Context, card Card) (string, error) {
	card.Name = strings.TrimSpace(card.Name)
	if card.Name == "" {
		return "", fmt.Errorf("card name is required")
	}
	if len(card.Queries) == 0 {
		return "", fmt.Errorf("card needs at least one query")
	}
	if err := dashboardExists(app, ctx, card.DashboardID); err != nil {
		return "", err
	}
	if card.ID == "" {
		card.ID = cuid2.Generate()
	}
	if card.ColumnTypes == nil {
		card.ColumnTypes = map[string]pipeline.ColumnType{}
	}
	err := app.SubmitState(ctx, "save_card", SaveCardPayload{
		ID:          card.ID,
		Timestamp:   time.Now(),
		DashboardID: card.DashboardID,
		Name:        card.Name,
		Queries:     card.Queries,
		Script:      card.Script,
		ColumnTypes: card.ColumnTypes,
		Position:    card.Position,
	})
	return card.ID, err
}

func HandleSaveCard(app *App, data []byte) bool {
	var payload SaveCardPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		app.Logger.Error("failed to unmarshal save card payload", slog.Any("error", err))
		return false
	}
	if tombstonedAfter(app, payload.ID, payload.Timestamp) {
		return true
	}
	queries, err := json.Marshal(payload.Queries)
	if err != nil {
		app.Logger.Error("failed to marshal card queries", slog.Any("error", err))
		return false
	}
	columnTypes, err := json.Marshal(payload.ColumnTypes)
	if err != nil {
		app.Logger.Error("failed to marshal card column types", slog.Any("error", err))
		return false
	}
	_, err = app.Sqlite.Exec(
		`INSERT INTO cards (id, dashboard_id, name, queries, script, column_types, position, last_modified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT(id) DO UPDATE SET
			dashboard_id = $2, name = $3, queries = $4, script = $5,
			column_types = $6, position = $7, last_modified = $8
		 WHERE $8 > cards.last_modified`,
		payload.ID, payload.DashboardID, payload.Name, string(queries),
		payload.Script, string(columnTypes), payload.Position, payload.Timestamp,
	)
	if err != nil {
		app.Logger.Error("failed to upsert card", slog.Any("error", err))
		return false
	}
	return true
}

type SaveCardColumnTypesPayload struct {
	ID          string                         `json:"id"`
	Timestamp   time.Time                      `json:"timestamp"`
	ColumnTypes map[string]pipeline.ColumnType `json:"columnTypes"`
}

// SaveCardColumnTypes stores user type overrides without touching the rest of
// the card. Setting a column to currency is the main use case since inference
// never produces it.
func SaveCardColumnTypes(app *App, ctx context.Context, id string, types map[string]pipeline.ColumnType) error {
	if _, err := GetCard(app, ctx, id); err != nil {
		return err
	}
	if types == nil {
		types = map[string]pipeline.ColumnType{}
	}
	return app.SubmitState(ctx, "save_card_column_types", SaveCardColumnTypesPayload{
		ID:          id,
		Timestamp:   time.Now(),
		ColumnTypes: types,
	})
}

func HandleSaveCardColumnTypes(app *App, data []byte) bool {
	var payload SaveCardColumnTypesPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		app.Logger.Error("failed to unmarshal save card column types payload", slog.Any("error", err))
		return false
	}
	columnTypes, err := json.Marshal(payload.ColumnTypes)
	if err != nil {
		app.Logger.Error("failed to marshal column types", slog.Any("error", err))
		return false
	}
	_, err = app.Sqlite.Exec(
		`UPDATE cards SET column_types = $2, last_modified = $3
		 WHERE id = $1 AND last_modified < $3`,
		payload.ID, string(columnTypes), payload.Timestamp,
	)
	if err != nil {
		app.Logger.Error("failed to update card column types", slog.Any("error", err))
		return false
	}
	return true
}

type DeleteCardPayload struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func DeleteCard(app *App, ctx context.Context, id string) error {
	if _, err := GetCard(app, ctx, id); err != nil {
		return err
	}
	return app.SubmitState(ctx, "delete_card", DeleteCardPayload{
		ID:        id,
		Timestamp: time.Now(),
	})
}

func HandleDeleteCard(app *App, data []byte) bool {
	var payload DeleteCardPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		app.Logger.Error("failed to unmarshal delete card payload", slog.Any("error", err))
		return false
	}
	if err := insertTombstone(app, payload.ID, "card", payload.Timestamp); err != nil {
		app.Logger.Error("failed to insert card tombstone", slog.Any("error", err))
		return false
	}
	_, err := app.Sqlite.Exec(`DELETE FROM cards WHERE id = $1`, payload.ID)
	if err != nil {
		app.Logger.Error("failed to delete card", slog.Any("error", err))
		return false
	}
	return true
}

func GetCard(app *App, ctx context.Context, id string) (Card, error) {
	var row cardRow
	err := app.Sqlite.GetContext(ctx, &row,
		`SELECT id, dashboard_id, name, queries, script, column_types, position, last_modified
		 FROM cards WHERE id = $1`, id)
	if err != nil {
		return Card{}, fmt.Errorf("card not found: %w", err)
	}
	return row.toCard()
}

func ListCards(app *App, ctx context.Context, dashboardID string) ([]Card, error) {
	rows := []cardRow{}
	err := app.Sqlite.SelectContext(ctx, &rows,
		`SELECT id, dashboard_id, name, queries, script, column_types, position, last_modified
		 FROM cards WHERE dashboard_id = $1
		 ORDER BY position, id`, dashboardID)
	if err != nil {
		return nil, fmt.Errorf("error listing cards: %w", err)
	}
	cards := make([]Card, 0, len(rows))
	for _, row := range rows {
		card, err := row.toCard()
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, nil
}
