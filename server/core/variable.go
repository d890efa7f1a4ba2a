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

// variableRow is the sqlite shape. Options is a JSON column and position keeps
// the order variables are defined and resolved in.
type variableRow struct {
	ID              string    `db:"id"`
	DashboardID     string    `db:"dashboard_id"`
	Name            string    `db:"name"`
	Value           string    `db:"value"`
	IsExpression    bool      `db:"is_expression"`
	Options         string    `db:"options"`
	ShowOnDashboard bool      `db:"show_on_dashboard"`
	Position        int       `db:"position"`
	LastModified    time.Time `db:"last_modified"`
}

func (r variableRow) toVariable() (pipeline.Variable, error) {
	v := pipeline.Variable{
		ID:              r.ID,
		DashboardID:     r.DashboardID,
		Name:            r.Name,
		Value:           r.Value,
		IsExpression:    r.IsExpression,
		ShowOnDashboard: r.ShowOnDashboard,
		LastModified:    r.LastModified,
	}
	if err := json.Unmarshal([]byte(r.Options), &v.Options); err != nil {
		return v, fmt.Errorf("corrupt options for variable %s: %w", r.ID, err)
	}
	return v, nil
}

type SaveVariablePayload struct {
	ID              string                    `json:"id"`
	Timestamp       time.Time                 `json:"timestamp"`
	DashboardID     string                    `json:"dashboardId"`
	Name            string                    `json:"name"`
	Value           string                    `json:"value"`
	IsExpression    bool                      `json:"isExpression"`
	Options         []pipeline.VariableOption `json:"options"`
	ShowOnDashboard bool                      `json:"showOnDashboard"`
	Position        int                       `json:"position"`
}

// SaveVariable creates or fully replaces a dashboard variable. An empty id
// means create. Fixed request variable names are reserved.
func SaveVariable(app *App, ctx context.Context, variable pipeline.Variable, position int) (string, error) {
	variable.Name = strings.TrimSpace(variable.Name)
	if variable.Name == "" {
		return "", fmt.Errorf("variable name is required")
	}
	for _, reserved := range FixedVariableNames {
		if variable.Name == reserved {
			return "", fmt.Errorf("variable name %q is reserved", reserved)
		}
	}
	if err := dashboardExists(app, ctx, variable.DashboardID); err != nil {
		return "", err
	}
	if variable.ID == "" {
		variable.ID = cuid2.Generate()
	}
	if variable.Options == nil {
		variable.Options = []pipeline.VariableOption{}
	}
	err := app.SubmitState(ctx, "save_variable", SaveVariablePayload{
		ID:              variable.ID,
		Timestamp:       time.Now(),
		DashboardID:     variable.DashboardID,
		Name:            variable.Name,
		Value:           variable.Value,
		IsExpression:    variable.IsExpression,
		Options:         variable.Options,
		ShowOnDashboard: variable.ShowOnDashboard,
		Position:        position,
	})
	return variable.ID, err
}

func HandleSaveVariable(app *App, data []byte) bool {
	var payload SaveVariablePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		app.Logger.Error("failed to unmarshal save variable payload", slog.Any("error", err))
		return false
	}
	if tombstonedAfter(app, payload.ID, payload.Timestamp) {
		return true
	}
	options, err := json.Marshal(payload.Options)
	if err != nil {
		app.Logger.Error("failed to marshal variable options", slog.Any("error", err))
		return false
	}
	_, err = app.Sqlite.Exec(
		`INSERT INTO variables (id, dashboard_id, name, value, is_expression, options, show_on_dashboard, position, last_modified)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT(id) DO UPDATE SET
			dashboard_id = $2, name = $3, value = $4, is_expression = $5,
			options = $6, show_on_dashboard = $7, position = $8, last_modified = $9
		 WHERE $9 > variables.last_modified`,
		payload.ID, payload.DashboardID, payload.Name, payload.Value,
		payload.IsExpression, string(options), payload.ShowOnDashboard,
		payload.Position, payload.Timestamp,
	)
	if err != nil {
		app.Logger.Error("failed to upsert variable", slog.Any("error", err))
		return false
	}
	return true
}

type DeleteVariablePayload struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func DeleteVariable(app *App, ctx context.Context, id string) error {
	var count int
	err := app.Sqlite.GetContext(ctx, &count,
		`SELECT count(*) FROM variables WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to query variable: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("variable not found")
	}
	return app.SubmitState(ctx, "delete_variable", DeleteVariablePayload{
		ID:        id,
		Timestamp: time.Now(),
	})
}

func HandleDeleteVariable(app *App, data []byte) bool {
	var payload DeleteVariablePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		app.Logger.Error("failed to unmarshal delete variable payload", slog.Any("error", err))
		return false
	}
	if err := insertTombstone(app, payload.ID, "variable", payload.Timestamp); err != nil {
		app.Logger.Error("failed to insert variable tombstone", slog.Any("error", err))
		return false
	}
	_, err := app.Sqlite.Exec(`DELETE FROM variables WHERE id = $1`, payload.ID)
	if err != nil {
		app.Logger.Error("failed to delete variable", slog.Any("error", err))
		return false
	}
	return true
}

// ListVariables returns a dashboard's variables in resolution order.
func ListVariables(app *App, ctx context.Context, dashboardID string) ([]pipeline.Variable, error) {
	rows := []variableRow{}
	err := app.Sqlite.SelectContext(ctx, &rows,
		`SELECT id, dashboard_id, name, value, is_expression, options, show_on_dashboard, position, last_modified
		 FROM variables WHERE dashboard_id = $1
		 ORDER BY position, id`, dashboardID)
	if err != nil {
		return nil, fmt.Errorf("error listing variables: %w", err)
	}
	variables := make([]pipeline.Variable, 0, len(rows))
	for _, row := range rows {
		v, err := row.toVariable()
		if err != nil {
			return nil, err
		}
		variables = append(variables, v)
	}
	return variables, nil
}
