// SPDX-License-Identifier: MPL-2.0

// Package local syncs dashboard definition files from a directory into the
// store. Dashboards can live in version control next to the deployment and
// edits on disk show up without a restart.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"facet/server/core"
	"facet/server/pipeline"

	"github.com/syncthing/notify"
)

const DASHBOARD_SUFFIX = ".dashboard.json"

// dashboardFile is the on-disk definition. IDs are required so repeated syncs
// update instead of duplicate.
type dashboardFile struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Cards     []core.Card         `json:"cards"`
	Variables []pipeline.Variable `json:"variables"`
}

type Watcher struct {
	c      chan notify.EventInfo
	logger *slog.Logger
}

// Watch loads every dashboard file in dir once and then keeps syncing on
// file writes.
func Watch(app *core.App, dir string) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	logger := app.Logger.WithGroup("local")
	w := &Watcher{logger: logger}

	if err := syncAll(app, absDir); err != nil {
		return nil, err
	}

	// Buffered so notify doesn't drop events when a sync is in flight.
	c := make(chan notify.EventInfo, 1)
	w.c = c
	if err := notify.Watch(path.Join(absDir, "..."), c, notify.Create, notify.Write); err != nil {
		return nil, err
	}
	logger.Info("Watching local dashboard files", slog.String("dir", absDir))

	go func() {
		for ei := range c {
			p := ei.Path()
			if !strings.HasSuffix(p, DASHBOARD_SUFFIX) {
				continue
			}
			if err := syncFile(app, p); err != nil {
				logger.Error("Failed to sync dashboard file", slog.String("path", p), slog.Any("error", err))
			}
		}
	}()

	return w, nil
}

func (w *Watcher) Close() {
	if w.c != nil {
		notify.Stop(w.c)
		close(w.c)
	}
}

func syncAll(app *core.App, dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, DASHBOARD_SUFFIX) {
			return nil
		}
		return syncFile(app, p)
	})
}

// syncFile upserts one dashboard definition through the regular state stream,
// so file-managed dashboards behave exactly like UI-managed ones.
func syncFile(app *core.App, p string) error {
	data, err := os.ReadFile(p)
	if err != nil {
		return err
	}
	var def dashboardFile
	if err := json.Unmarshal(data, &def); err != nil {
		return fmt.Errorf("invalid dashboard file %s: %w", p, err)
	}
	if def.ID == "" || def.Name == "" {
		return fmt.Errorf("dashboard file %s needs id and name", p)
	}

	ctx := context.Background()
	if err := core.RenameDashboard(app, ctx, def.ID, def.Name); err != nil {
		// First sync of this file: the dashboard doesn't exist yet.
		if err := app.SubmitState(ctx, "create_dashboard", core.CreateDashboardPayload{
			ID:        def.ID,
			Timestamp: time.Now(),
			Name:      def.Name,
		}); err != nil {
			return err
		}
	}
	for i, card := range def.Cards {
		if card.ID == "" {
			return fmt.Errorf("card %d in %s needs an id", i, p)
		}
		card.DashboardID = def.ID
		if card.Position == 0 {
			card.Position = i
		}
		if _, err := core.SaveCard(app, ctx, card); err != nil {
			return err
		}
	}
	for i, v := range def.Variables {
		if v.ID == "" {
			return fmt.Errorf("variable %d in %s needs an id", i, p)
		}
		v.DashboardID = def.ID
		if _, err := core.SaveVariable(app, ctx, v, i); err != nil {
			return err
		}
	}
	return nil
}
