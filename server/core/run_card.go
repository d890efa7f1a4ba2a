// SPDX-License-Identifier: MPL-2.0

package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"facet/server/driver"
	"facet/server/metrics"
	"facet/server/pipeline"
)

// RunResult is everything one card run produces. Error and Logs are part of
// the result, not an error return: a failing script is a normal outcome that
// the frontend renders next to whatever logs the script printed.
type RunResult struct {
	Columns     []string                       `json:"columns"`
	Rows        [][]any                        `json:"rows"`
	ColumnTypes map[string]pipeline.ColumnType `json:"columnTypes"`
	Logs        []string                       `json:"logs"`
	Error       string                         `json:"error,omitempty"`
	Duration    time.Duration                  `json:"duration"`
}

// RunCard executes a card end to end: resolve variables, substitute
// placeholders into each query, run the queries against their sources, feed
// the first result through the post-processing script and classify the
// output columns. overrides are user-picked values for plain variables, e.g.
// from dropdowns on the dashboard.
func RunCard(app *App, ctx context.Context, cardID string, overrides map[string]string) (RunResult, error) {
	started := time.Now()
	result, err := runCard(app, ctx, cardID, overrides)
	result.Duration = time.Since(started)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	} else if result.Error != "" {
		outcome = "script_error"
	}
	metrics.CardRuns.WithLabelValues(outcome).Inc()
	metrics.CardRunDuration.Observe(result.Duration.Seconds())
	return result, err
}

func runCard(app *App, ctx context.Context, cardID string, overrides map[string]string) (RunResult, error) {
	var result RunResult
	card, err := GetCard(app, ctx, cardID)
	if err != nil {
		return result, err
	}
	variables, err := ListVariables(app, ctx, card.DashboardID)
	if err != nil {
		return result, err
	}
	lib, err := GetLibrary(app, ctx)
	if err != nil {
		return result, err
	}

	applyOverrides(variables, overrides)
	// Fixed request variables go last so they win any name clash.
	variables = append(variables, FixedVariables(ActorFromContext(ctx))...)
	resolved := pipeline.ResolveAll(variables, lib.Source)

	results, err := runQueries(app, ctx, card, resolved, lib.Source)
	if err != nil {
		return result, err
	}

	primary := results[0]
	objects := pipeline.ToObjectArray(primary)
	// datasets holds every query's rows in card order. Element 0 is the same
	// row set the script receives as data.
	datasets := make([]any, len(results))
	datasets[0] = objects
	for i := 1; i < len(results); i++ {
		datasets[i] = pipeline.ToObjectArray(results[i])
	}

	// Resolved variables are injected directly, so scripts reference them by
	// name. Names clashing with the sandbox's own bindings are skipped.
	scriptCtx := make(map[string]any, len(resolved)+1)
	for name, value := range resolved {
		if name == "data" || name == "console" || name == "datasets" {
			continue
		}
		scriptCtx[name] = value
	}
	scriptCtx["datasets"] = datasets

	scriptResult, err := pipeline.Run(app.Logger.WithGroup("script"), objects, card.Script, scriptCtx, lib.Source)
	if err != nil {
		var scriptErr *pipeline.ScriptError
		if errors.As(err, &scriptErr) {
			// Script failures are results. Logs up to the failure are the
			// author's main debugging tool.
			return RunResult{
				Columns:     []string{},
				Rows:        [][]any{},
				ColumnTypes: map[string]pipeline.ColumnType{},
				Logs:        scriptErr.Logs,
				Error:       scriptErr.Error(),
			}, nil
		}
		return result, err
	}

	columns := scriptResult.Columns
	if columns == nil {
		// Blank script or empty output: the primary query's column order stands.
		columns = primary.Columns
	}
	shaped := pipeline.ToQueryResult(scriptResult.Data, columns)
	if len(shaped.Rows) == 0 {
		shaped.Columns = columns
	}

	inferred := pipeline.Infer(shaped)
	return RunResult{
		Columns:     shaped.Columns,
		Rows:        shaped.Rows,
		ColumnTypes: pipeline.MergeSaved(inferred, card.ColumnTypes),
		Logs:        scriptResult.Logs,
	}, nil
}

// runQueries substitutes placeholders into every query of the card and runs
// them in order. Driver connections are shared across queries hitting the
// same source and closed when the run ends.
func runQueries(app *App, ctx context.Context, card Card, resolved map[string]any, library string) ([]pipeline.QueryResult, error) {
	if len(card.Queries) == 0 {
		return nil, fmt.Errorf("card has no queries")
	}
	drivers := map[string]driver.Driver{}
	defer func() {
		for _, d := range drivers {
			if err := d.Close(); err != nil {
				app.Logger.Error("failed to close driver", slog.Any("error", err))
			}
		}
	}()

	results := make([]pipeline.QueryResult, 0, len(card.Queries))
	for i, q := range card.Queries {
		d, ok := drivers[q.DataSourceID]
		if !ok {
			source, err := GetDataSource(app, ctx, q.DataSourceID)
			if err != nil {
				return nil, err
			}
			d, err = driver.Open(ctx, source, app.Demo)
			if err != nil {
				return nil, err
			}
			drivers[q.DataSourceID] = d
		}
		text := pipeline.SubstituteWithContext(q.Text, resolved, library)
		queryResult, err := d.Query(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("query %d (%s) failed: %w", i+1, q.Name, err)
		}
		results = append(results, queryResult)
	}
	return results, nil
}

// applyOverrides replaces the stored value of plain variables with
// user-picked values. Variables restricted to an option list reject values
// outside it; expression variables cannot be overridden.
func applyOverrides(variables []pipeline.Variable, overrides map[string]string) {
	if len(overrides) == 0 {
		return
	}
	for i, v := range variables {
		value, ok := overrides[v.Name]
		if !ok || v.IsExpression {
			continue
		}
		if len(v.Options) > 0 && !optionAllowed(v.Options, value) {
			continue
		}
		variables[i].Value = value
	}
}

func optionAllowed(options []pipeline.VariableOption, value string) bool {
	for _, o := range options {
		if o.Value == value {
			return true
		}
	}
	return false
}
