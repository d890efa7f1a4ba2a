// SPDX-License-Identifier: MPL-2.0

package core

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"facet/server/pipeline"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// The demo source is backed by a plain sqlx handle, so tests can point it at
// an in-memory sqlite with seeded rows.
func setupRunTestApp(t *testing.T) *App {
	t.Helper()
	app := setupTestApp(t)

	demo, err := sqlx.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open demo sqlite: %v", err)
	}
	t.Cleanup(func() {
		demo.Close()
	})
	if _, err := demo.Exec(`CREATE TABLE orders (id INTEGER, customer TEXT, dept TEXT, total REAL)`); err != nil {
		t.Fatalf("failed to create demo table: %v", err)
	}
	if _, err := demo.Exec(`INSERT INTO orders VALUES
		(1, 'acme', 'sales', 120.5),
		(2, 'globex', 'sales', 42.0),
		(3, 'initech', 'marketing', 99.0)`); err != nil {
		t.Fatalf("failed to seed demo table: %v", err)
	}
	app.Demo = demo

	now := time.Now().UTC()
	HandleCreateDashboard(app, mustMarshal(t, CreateDashboardPayload{ID: "dash1", Timestamp: now, Name: "Sales"}))
	HandleSaveDataSource(app, mustMarshal(t, SaveDataSourcePayload{ID: "src1", Timestamp: now, Name: "Demo", Type: "demo"}))
	return app
}

func saveTestCard(t *testing.T, app *App, card SaveCardPayload) {
	t.Helper()
	if card.Timestamp.IsZero() {
		card.Timestamp = time.Now().UTC()
	}
	if !HandleSaveCard(app, mustMarshal(t, card)) {
		t.Fatal("failed to save test card")
	}
}

func TestRunCardEndToEnd(t *testing.T) {
	app := setupRunTestApp(t)
	now := time.Now().UTC()

	HandleSaveVariable(app, mustMarshal(t, SaveVariablePayload{
		ID: "var1", Timestamp: now, DashboardID: "dash1", Name: "dept", Value: "sales",
	}))
	saveTestCard(t, app, SaveCardPayload{
		ID:          "card1",
		DashboardID: "dash1",
		Name:        "Big orders",
		Queries: []CardQuery{{
			Name:         "data",
			DataSourceID: "src1",
			Text:         "SELECT customer, total FROM orders WHERE dept = '{{dept}}' ORDER BY id",
		}},
		Script: `console.log('rows', data.length);
return data.filter(function (r) { return r.total > 50; })
	.map(function (r) { return {customer: r.customer, total: r.total, big: r.total > 100}; });`,
		ColumnTypes: map[string]pipeline.ColumnType{"total": pipeline.TypeCurrency},
	})

	result, err := RunCard(app, context.Background(), "card1", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Error != "" {
		t.Fatalf("unexpected script error: %s", result.Error)
	}
	wantColumns := []string{"customer", "total", "big"}
	if len(result.Columns) != len(wantColumns) {
		t.Fatalf("expected columns %v, got %v", wantColumns, result.Columns)
	}
	for i, col := range wantColumns {
		if result.Columns[i] != col {
			t.Fatalf("expected columns %v, got %v", wantColumns, result.Columns)
		}
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected 1 row after script filter, got %d", len(result.Rows))
	}
	if result.Rows[0][0] != "acme" {
		t.Fatalf("expected acme row, got %v", result.Rows[0])
	}
	if len(result.Logs) != 1 || result.Logs[0] != "rows 2" {
		t.Fatalf("expected script log, got %v", result.Logs)
	}
	if result.ColumnTypes["total"] != pipeline.TypeCurrency {
		t.Fatalf("expected saved currency override, got %s", result.ColumnTypes["total"])
	}
	if result.ColumnTypes["customer"] != pipeline.TypeText {
		t.Fatalf("expected inferred text, got %s", result.ColumnTypes["customer"])
	}
	if result.ColumnTypes["big"] != pipeline.TypeBoolean {
		t.Fatalf("expected inferred boolean, got %s", result.ColumnTypes["big"])
	}
}

func TestRunCardBlankScriptIsIdentity(t *testing.T) {
	app := setupRunTestApp(t)
	saveTestCard(t, app, SaveCardPayload{
		ID:          "card1",
		DashboardID: "dash1",
		Name:        "Raw",
		Queries: []CardQuery{{
			Name:         "data",
			DataSourceID: "src1",
			Text:         "SELECT id, customer FROM orders ORDER BY id",
		}},
	})

	result, err := RunCard(app, context.Background(), "card1", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Rows) != 3 {
		t.Fatalf("expected all rows, got %d", len(result.Rows))
	}
	// Column order survives the object round trip via the query's own order.
	if result.Columns[0] != "id" || result.Columns[1] != "customer" {
		t.Fatalf("expected query column order, got %v", result.Columns)
	}
	if result.ColumnTypes["id"] != pipeline.TypeInteger {
		t.Fatalf("expected integer id, got %s", result.ColumnTypes["id"])
	}
}

func TestRunCardScriptFailureIsAResult(t *testing.T) {
	app := setupRunTestApp(t)
	saveTestCard(t, app, SaveCardPayload{
		ID:          "card1",
		DashboardID: "dash1",
		Name:        "Broken",
		Queries: []CardQuery{{
			Name:         "data",
			DataSourceID: "src1",
			Text:         "SELECT customer FROM orders",
		}},
		Script: "console.log('start');\nthrow new Error('boom');",
	})

	result, err := RunCard(app, context.Background(), "card1", nil)
	if err != nil {
		t.Fatalf("script failure must not be an error return: %v", err)
	}
	if result.Error != "Error: boom" {
		t.Fatalf("expected script error message, got %q", result.Error)
	}
	if len(result.Logs) != 1 || result.Logs[0] != "start" {
		t.Fatalf("expected logs up to the failure, got %v", result.Logs)
	}
	if len(result.Rows) != 0 {
		t.Fatalf("expected no rows on script failure, got %d", len(result.Rows))
	}
}

func TestRunCardOverridesRespectOptions(t *testing.T) {
	app := setupRunTestApp(t)
	now := time.Now().UTC()

	HandleSaveVariable(app, mustMarshal(t, SaveVariablePayload{
		ID: "var1", Timestamp: now, DashboardID: "dash1", Name: "dept", Value: "sales",
		Options: []pipeline.VariableOption{
			{Label: "Sales", Value: "sales"},
			{Label: "Marketing", Value: "marketing"},
		},
	}))
	saveTestCard(t, app, SaveCardPayload{
		ID:          "card1",
		DashboardID: "dash1",
		Name:        "By dept",
		Queries: []CardQuery{{
			Name:         "data",
			DataSourceID: "src1",
			Text:         "SELECT customer FROM orders WHERE dept = '{{dept}}' ORDER BY id",
		}},
	})

	result, err := RunCard(app, context.Background(), "card1", map[string]string{"dept": "marketing"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Rows) != 1 || result.Rows[0][0] != "initech" {
		t.Fatalf("expected override to switch department, got %v", result.Rows)
	}

	// A value outside the option list is ignored and the default stands.
	result, err = RunCard(app, context.Background(), "card1", map[string]string{"dept": "'; DROP TABLE orders; --"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected default department rows, got %v", result.Rows)
	}
}

func TestRunCardFixedVariablesWinNameClashes(t *testing.T) {
	app := setupRunTestApp(t)
	now := time.Now().UTC()

	// A stored variable squatting on a fixed name loses against the request.
	HandleSaveVariable(app, mustMarshal(t, SaveVariablePayload{
		ID: "var1", Timestamp: now, DashboardID: "dash1", Name: "department", Value: "marketing",
	}))
	saveTestCard(t, app, SaveCardPayload{
		ID:          "card1",
		DashboardID: "dash1",
		Name:        "Who am I",
		Queries: []CardQuery{{
			Name:         "data",
			DataSourceID: "src1",
			Text:         "SELECT '{{department}}' AS department, '{{owner}}' AS owner",
		}},
	})

	ctx := WithActor(context.Background(), Actor{Owner: "amy", Department: "sales"})
	result, err := RunCard(app, ctx, "card1", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Rows[0][0] != "sales" || result.Rows[0][1] != "amy" {
		t.Fatalf("expected request identity to win, got %v", result.Rows[0])
	}
}

func TestRunCardExtraQueriesBecomeDatasets(t *testing.T) {
	app := setupRunTestApp(t)
	saveTestCard(t, app, SaveCardPayload{
		ID:          "card1",
		DashboardID: "dash1",
		Name:        "Joined",
		Queries: []CardQuery{
			{Name: "data", DataSourceID: "src1", Text: "SELECT customer FROM orders WHERE dept = 'sales' ORDER BY id"},
			{Name: "depts", DataSourceID: "src1", Text: "SELECT DISTINCT dept FROM orders ORDER BY dept"},
		},
		// datasets is an array in query order; element 0 is data itself.
		Script: `return data.map(function (r, i) {
	return {customer: r.customer, deptCount: datasets[1].length, total: datasets.length, first: datasets[0][i].customer};
});`,
	})

	result, err := RunCard(app, context.Background(), "card1", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Error != "" {
		t.Fatalf("unexpected script error: %s", result.Error)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if result.Rows[0][1] != int64(2) {
		t.Fatalf("expected second dataset length 2, got %v", result.Rows[0][1])
	}
	if result.Rows[0][2] != int64(2) {
		t.Fatalf("expected 2 datasets, got %v", result.Rows[0][2])
	}
	if result.Rows[0][3] != "acme" {
		t.Fatalf("expected datasets[0] to be the primary rows, got %v", result.Rows[0][3])
	}
}

func TestRunCardScriptSeesVariablesByName(t *testing.T) {
	app := setupRunTestApp(t)
	now := time.Now().UTC()

	HandleSaveVariable(app, mustMarshal(t, SaveVariablePayload{
		ID: "var1", Timestamp: now, DashboardID: "dash1", Name: "dept", Value: "sales",
	}))
	saveTestCard(t, app, SaveCardPayload{
		ID:          "card1",
		DashboardID: "dash1",
		Name:        "Filtered in script",
		Queries: []CardQuery{{
			Name:         "data",
			DataSourceID: "src1",
			Text:         "SELECT customer, dept FROM orders ORDER BY id",
		}},
		// Variables are direct bindings, fixed request variables included.
		Script: `return data.filter(function (r) { return r.dept === dept; })
	.map(function (r) { return {customer: r.customer, owner: owner}; });`,
	})

	ctx := WithActor(context.Background(), Actor{Owner: "amy", Department: "sales"})
	result, err := RunCard(app, ctx, "card1", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Error != "" {
		t.Fatalf("unexpected script error: %s", result.Error)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 sales rows, got %d", len(result.Rows))
	}
	if result.Rows[0][0] != "acme" || result.Rows[0][1] != "amy" {
		t.Fatalf("expected variable bindings in script, got %v", result.Rows[0])
	}
}

func TestRunCardUsesSharedLibrary(t *testing.T) {
	app := setupRunTestApp(t)
	HandleSaveLibrary(app, mustMarshal(t, SaveLibraryPayload{
		Timestamp: time.Now().UTC(),
		Source:    "function shout(s) { return s.toUpperCase(); }",
	}))
	saveTestCard(t, app, SaveCardPayload{
		ID:          "card1",
		DashboardID: "dash1",
		Name:        "Loud",
		Queries: []CardQuery{{
			Name:         "data",
			DataSourceID: "src1",
			Text:         "SELECT customer FROM orders WHERE id = 1",
		}},
		Script: "return data.map(function (r) { return {customer: shout(r.customer)}; });",
	})

	result, err := RunCard(app, context.Background(), "card1", nil)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Error != "" {
		t.Fatalf("unexpected script error: %s", result.Error)
	}
	if result.Rows[0][0] != "ACME" {
		t.Fatalf("expected library helper to apply, got %v", result.Rows[0][0])
	}
}

func TestExportCardCSV(t *testing.T) {
	app := setupRunTestApp(t)
	saveTestCard(t, app, SaveCardPayload{
		ID:          "card1",
		DashboardID: "dash1",
		Name:        "Export",
		Queries: []CardQuery{{
			Name:         "data",
			DataSourceID: "src1",
			Text:         "SELECT customer, total FROM orders WHERE dept = 'sales' ORDER BY id",
		}},
	})

	var buf bytes.Buffer
	if err := ExportCardCSV(app, context.Background(), "card1", nil, &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "customer,total" {
		t.Fatalf("unexpected header: %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "acme,") {
		t.Fatalf("unexpected first row: %q", lines[1])
	}
}

func TestExportCardXLSX(t *testing.T) {
	app := setupRunTestApp(t)
	saveTestCard(t, app, SaveCardPayload{
		ID:          "card1",
		DashboardID: "dash1",
		Name:        "Export",
		Queries: []CardQuery{{
			Name:         "data",
			DataSourceID: "src1",
			Text:         "SELECT customer, total FROM orders ORDER BY id",
		}},
	})

	var buf bytes.Buffer
	if err := ExportCardXLSX(app, context.Background(), "card1", nil, &buf); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	// XLSX files are zip archives.
	if buf.Len() == 0 || buf.String()[:2] != "PK" {
		t.Fatal("expected a zip-formatted workbook")
	}
}
