// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToObjectArray(t *testing.T) {
	result := QueryResult{
		Columns: []string{"id", "name"},
		Rows:    [][]any{{int64(1), "alice"}, {int64(2), "bob"}},
	}
	objects := ToObjectArray(result)
	assert.Equal(t, []map[string]any{
		{"id": int64(1), "name": "alice"},
		{"id": int64(2), "name": "bob"},
	}, objects)
}

func TestRoundTripUniformRows(t *testing.T) {
	result := QueryResult{
		Columns: []string{"id", "name", "total"},
		Rows: [][]any{
			{int64(1), "alice", 10.5},
			{int64(2), "bob", nil},
		},
	}
	assert.Equal(t, result, ToQueryResult(ToObjectArray(result), result.Columns))
}

func TestToQueryResultEmpty(t *testing.T) {
	result := ToQueryResult(nil, nil)
	assert.Equal(t, QueryResult{Columns: []string{}, Rows: [][]any{}}, result)
}

func TestToQueryResultDerivesSortedColumns(t *testing.T) {
	objects := []map[string]any{{"b": 2, "a": 1}}
	result := ToQueryResult(objects, nil)
	assert.Equal(t, []string{"a", "b"}, result.Columns)
	assert.Equal(t, [][]any{{1, 2}}, result.Rows)
}

func TestToQueryResultHeterogeneousRowsDropExtraKeys(t *testing.T) {
	// Accepted lossiness: columns come from the first row only.
	objects := []map[string]any{
		{"a": 1},
		{"a": 2, "extra": "dropped"},
		{"other": "x"},
	}
	result := ToQueryResult(objects, []string{"a"})
	assert.Equal(t, []string{"a"}, result.Columns)
	assert.Equal(t, [][]any{{1}, {2}, {nil}}, result.Rows)
}
