// SPDX-License-Identifier: MPL-2.0

package driver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestSQLDriverShapesRows(t *testing.T) {
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE orders (id INTEGER, customer TEXT, total REAL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO orders VALUES (1, 'acme', 10.5), (2, 'globex', 99.0)`)
	require.NoError(t, err)

	d := &sqlDriver{db: db, shared: true}
	result, err := d.Query(context.Background(), "SELECT id, customer, total FROM orders ORDER BY id")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "customer", "total"}, result.Columns)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "acme", result.Rows[0][1])
}

func TestSQLDriverSharedHandleNotClosed(t *testing.T) {
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	d := &sqlDriver{db: db, shared: true}
	require.NoError(t, d.Close())
	// Handle still usable after driver close.
	require.NoError(t, db.Ping())
}

func TestRESTDriverArrayOfObjects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id": 1, "name": "alice"}, {"id": 2, "name": "bob"}]`))
	}))
	t.Cleanup(srv.Close)

	d := &restDriver{baseURL: srv.URL}
	result, err := d.Query(context.Background(), "/users")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"id", "name"}, result.Columns)
	assert.Len(t, result.Rows, 2)
}

func TestRESTDriverScalarArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[1, 2, 3]`))
	}))
	t.Cleanup(srv.Close)

	d := &restDriver{baseURL: srv.URL}
	result, err := d.Query(context.Background(), "/numbers")
	require.NoError(t, err)
	assert.Equal(t, []string{"value"}, result.Columns)
	assert.Len(t, result.Rows, 3)
}

func TestRESTDriverErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	d := &restDriver{baseURL: srv.URL}
	_, err := d.Query(context.Background(), "/secret")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestShapeRedisReply(t *testing.T) {
	hash := shapeRedisReply(map[any]any{"b": "2", "a": "1"})
	assert.Equal(t, []string{"key", "value"}, hash.Columns)
	assert.Equal(t, [][]any{{"a", "1"}, {"b", "2"}}, hash.Rows)

	list := shapeRedisReply([]any{"x", "y"})
	assert.Equal(t, []string{"value"}, list.Columns)
	assert.Equal(t, [][]any{{"x"}, {"y"}}, list.Rows)

	scalar := shapeRedisReply("hello")
	assert.Equal(t, [][]any{{"hello"}}, scalar.Rows)

	empty := shapeRedisReply(nil)
	assert.Empty(t, empty.Rows)
}

func TestFormatCell(t *testing.T) {
	midnight := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-01", formatCell(midnight))

	withTime := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-01T10:30:00Z", formatCell(withTime))

	assert.Equal(t, "bytes", formatCell([]byte("bytes")))
	assert.Equal(t, int64(5), formatCell(int64(5)))
}
