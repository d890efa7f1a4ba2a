// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBlankScriptIsIdentity(t *testing.T) {
	data := []map[string]any{{"total": 50}, {"total": 150}}
	for _, script := range []string{"", "   ", "\n\t  \n"} {
		result, err := Run(nil, data, script, nil, "")
		require.NoError(t, err)
		assert.Equal(t, data, result.Data)
		assert.Equal(t, []string{}, result.Logs)
	}
}

func TestRunFilterScript(t *testing.T) {
	data := []map[string]any{{"total": int64(50)}, {"total": int64(150)}}
	result, err := Run(nil, data, "return data.filter(r => r.total > 100);", nil, "")
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, int64(150), result.Data[0]["total"])
	assert.Equal(t, []string{}, result.Logs)
}

func TestRunSingleExpressionWithoutReturn(t *testing.T) {
	data := []map[string]any{{"n": int64(1)}, {"n": int64(2)}}
	result, err := Run(nil, data, "data.map(r => ({n: r.n, squared: r.n * r.n}))", nil, "")
	require.NoError(t, err)
	require.Len(t, result.Data, 2)
	assert.Equal(t, int64(4), result.Data[1]["squared"])
	// Column order follows the first returned object's key order.
	assert.Equal(t, []string{"n", "squared"}, result.Columns)
}

func TestRunScriptErrorCarriesLogs(t *testing.T) {
	data := []map[string]any{{"total": int64(1)}}
	_, err := Run(nil, data, "console.log('start'); throw new Error('boom');", nil, "")
	require.Error(t, err)
	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr))
	assert.Equal(t, "Error: boom", scriptErr.Error())
	assert.Equal(t, []string{"start"}, scriptErr.Logs)
}

func TestRunNonArrayReturnIsError(t *testing.T) {
	_, err := Run(nil, nil, "return 42;", nil, "")
	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr))
	assert.Contains(t, scriptErr.Error(), "array of row objects")
}

func TestRunNonObjectFirstElementIsError(t *testing.T) {
	_, err := Run(nil, nil, "return [1, 2, 3];", nil, "")
	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr))
	assert.Contains(t, scriptErr.Error(), "array of row objects")
}

func TestRunEmptyArrayIsValid(t *testing.T) {
	result, err := Run(nil, nil, "return [];", nil, "")
	require.NoError(t, err)
	assert.Empty(t, result.Data)
}

func TestRunContextValuesInjected(t *testing.T) {
	data := []map[string]any{{"dept": "sales"}, {"dept": "ops"}}
	ctx := map[string]any{"department": "sales"}
	result, err := Run(nil, data, "return data.filter(r => r.dept === department);", ctx, "")
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "sales", result.Data[0]["dept"])
}

func TestRunDatasets(t *testing.T) {
	orders := []map[string]any{{"id": int64(1), "customer": int64(7)}}
	customers := []map[string]any{{"id": int64(7), "name": "acme"}}
	ctx := map[string]any{"datasets": []any{orders, customers}}
	script := `
		var names = {};
		datasets[1].forEach(function(c) { names[c.id] = c.name; });
		return data.map(function(o) { return {id: o.id, customer: names[o.customer]}; });
	`
	result, err := Run(nil, orders, script, ctx, "")
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "acme", result.Data[0]["customer"])
}

func TestRunLibraryHelpersAvailable(t *testing.T) {
	library := "function keep(r) { return r.n > 1; }"
	data := []map[string]any{{"n": int64(1)}, {"n": int64(2)}}
	result, err := Run(nil, data, "return data.filter(keep);", nil, library)
	require.NoError(t, err)
	require.Len(t, result.Data, 1)
}

func TestRunConsoleLogFormatting(t *testing.T) {
	script := `
		console.log('count:', 2);
		console.log({a: 1});
		console.log(function() {});
		return [];
	`
	result, err := Run(nil, nil, script, nil, "")
	require.NoError(t, err)
	require.Len(t, result.Logs, 3)
	assert.Equal(t, "count: 2", result.Logs[0])
	assert.Equal(t, "{\n  \"a\": 1\n}", result.Logs[1])
	assert.Equal(t, "[Function]", result.Logs[2])
}

func TestRunReturningInjectedDataUnchanged(t *testing.T) {
	data := []map[string]any{{"a": int64(1)}}
	result, err := Run(nil, data, "return data;", nil, "")
	require.NoError(t, err)
	assert.Equal(t, data, result.Data)
}
