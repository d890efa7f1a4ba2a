// SPDX-License-Identifier: MPL-2.0

package pipeline

import "sort"

// QueryResult is the tabular shape produced by the query drivers and consumed
// by the rendering layer. Every row has exactly len(Columns) values.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// ToObjectArray converts a tabular result to the array-of-objects form the
// script sandbox and type inference work with.
func ToObjectArray(result QueryResult) []map[string]any {
	objects := make([]map[string]any, len(result.Rows))
	for i, row := range result.Rows {
		obj := make(map[string]any, len(result.Columns))
		for j, col := range result.Columns {
			if j < len(row) {
				obj[col] = row[j]
			}
		}
		objects[i] = obj
	}
	return objects
}

// ToQueryResult converts object rows back to tabular form. Column order follows
// the columns argument (usually captured from the script's return value, where
// key order is meaningful). Pass nil to derive columns from the first row's keys
// in sorted order. Rows with extra keys silently drop them and missing keys
// yield nil. That is accepted behavior for heterogeneous script output, not a
// bug to mask.
func ToQueryResult(objects []map[string]any, columns []string) QueryResult {
	if len(objects) == 0 {
		return QueryResult{Columns: []string{}, Rows: [][]any{}}
	}
	if columns == nil {
		columns = make([]string, 0, len(objects[0]))
		for k := range objects[0] {
			columns = append(columns, k)
		}
		sort.Strings(columns)
	}
	rows := make([][]any, len(objects))
	for i, obj := range objects {
		row := make([]any, len(columns))
		for j, col := range columns {
			row[j] = obj[col]
		}
		rows[i] = row
	}
	return QueryResult{Columns: columns, Rows: rows}
}
