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

type Dashboard struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	LastModified time.Time `db:"last_modified" json:"lastModified"`
}

type DashboardListResult struct {
	Dashboards []Dashboard `json:"dashboards"`
}

// DashboardDetail is what the editor loads: the dashboard plus its cards and
// variables in display order.
type DashboardDetail struct {
	Dashboard Dashboard           `json:"dashboard"`
	Cards     []Card              `json:"cards"`
	Variables []pipeline.Variable `json:"variables"`
}

type CreateDashboardPayload struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name"`
}

func CreateDashboard(app *App, ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("dashboard name is required")
	}
	id := cuid2.Generate()
	err := app.SubmitState(ctx, "create_dashboard", CreateDashboardPayload{
		ID:        id,
		Timestamp: time.Now(),
		Name:      name,
	})
	return id, err
}

func HandleCreateDashboard(app *App, data []byte) bool {
	var payload CreateDashboardPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		app.Logger.Error("failed to unmarshal create dashboard payload", slog.Any("error", err))
		return false
	}
	if tombstonedAfter(app, payload.ID, payload.Timestamp) {
		return true
	}
	_, err := app.Sqlite.Exec(
		`INSERT OR IGNORE INTO dashboards (id, name, created_at, last_modified)
		 VALUES ($1, $2, $3, $3)`,
		payload.ID, payload.Name, payload.Timestamp,
	)
	if err != nil {
		app.Logger.Error("failed to insert dashboard", slog.Any("error", err))
		return false
	}
	return true
}

type RenameDashboardPayload struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Name      string    `json:"name"`
}

func RenameDashboard(app *App, ctx context.Context, id string, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("dashboard name is required")
	}
	if err := dashboardExists(app, ctx, id); err != nil {
		return err
	}
	return app.SubmitState(ctx, "rename_dashboard", RenameDashboardPayload{
		ID:        id,
		Timestamp: time.Now(),
		Name:      name,
	})
}

func HandleRenameDashboard(app *App, data []byte) bool {
	var payload RenameDashboardPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		app.Logger.Error("failed to unmarshal rename dashboard payload", slog.Any("error", err))
		return false
	}
	// Last write wins: older renames replayed out of order are no-ops.
	_, err := app.Sqlite.Exec(
		`UPDATE dashboards SET name = $2, last_modified = $3
		 WHERE id = $1 AND last_modified < $3`,
		payload.ID, payload.Name, payload.Timestamp,
	)
	if err != nil {
		app.Logger.Error("failed to rename dashboard", slog.Any("error", err))
		return false
	}
	return true
}

type DeleteDashboardPayload struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func DeleteDashboard(app *App, ctx context.Context, id string) error {
	if err := dashboardExists(app, ctx, id); err != nil {
		return err
	}
	return app.SubmitState(ctx, "delete_dashboard", DeleteDashboardPayload{
		ID:        id,
		Timestamp: time.Now(),
	})
}

func HandleDeleteDashboard(app *App, data []byte) bool {
	var payload DeleteDashboardPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		app.Logger.Error("failed to unmarshal delete dashboard payload", slog.Any("error", err))
		return false
	}
	if err := insertTombstone(app, payload.ID, "dashboard", payload.Timestamp); err != nil {
		app.Logger.Error("failed to insert dashboard tombstone", slog.Any("error", err))
		return false
	}
	// Cards and variables go with the dashboard.
	_, err := app.Sqlite.Exec(`DELETE FROM dashboards WHERE id = $1`, payload.ID)
	if err != nil {
		app.Logger.Error("failed to delete dashboard", slog.Any("error", err))
		return false
	}
	_, err = app.Sqlite.Exec(`DELETE FROM cards WHERE dashboard_id = $1`, payload.ID)
	if err != nil {
		app.Logger.Error("failed to delete dashboard cards", slog.Any("error", err))
		return false
	}
	_, err = app.Sqlite.Exec(`DELETE FROM variables WHERE dashboard_id = $1`, payload.ID)
	if err != nil {
		app.Logger.Error("failed to delete dashboard variables", slog.Any("error", err))
		return false
	}
	return true
}

func ListDashboards(app *App, ctx context.Context) (DashboardListResult, error) {
	dashboards := []Dashboard{}
	err := app.Sqlite.SelectContext(ctx, &dashboards,
		`SELECT id, name, created_at, last_modified
		 FROM dashboards
		 ORDER BY name, id`)
	if err != nil {
		err = fmt.Errorf("error listing dashboards: %w", err)
	}
	return DashboardListResult{Dashboards: dashboards}, err
}

func GetDashboard(app *App, ctx context.Context, id string) (DashboardDetail, error) {
	var detail DashboardDetail
	err := app.Sqlite.GetContext(ctx, &detail.Dashboard,
		`SELECT id, name, created_at, last_modified FROM dashboards WHERE id = $1`, id)
	if err != nil {
		return detail, fmt.Errorf("dashboard not found: %w", err)
	}
	detail.Cards, err = ListCards(app, ctx, id)
	if err != nil {
		return detail, err
	}
	detail.Variables, err = ListVariables(app, ctx, id)
	return detail, err
}

func dashboardExists(app *App, ctx context.Context, id string) error {
	var count int
	err := app.Sqlite.GetContext(ctx, &count,
		`SELECT count(*) FROM dashboards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to query dashboard: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("dashboard not found")
	}
	return nil
}
