// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoerceValue(t *testing.T) {
	assert.Equal(t, 42.0, CoerceValue("42"))
	assert.Equal(t, 3.14, CoerceValue("3.14"))
	assert.Equal(t, -7.0, CoerceValue("-7"))
	assert.Equal(t, true, CoerceValue("true"))
	assert.Equal(t, true, CoerceValue("TRUE"))
	assert.Equal(t, false, CoerceValue("False"))
	// Values that don't round-trip exactly stay strings.
	assert.Equal(t, "007", CoerceValue("007"))
	assert.Equal(t, "1.50", CoerceValue("1.50"))
	assert.Equal(t, "sales", CoerceValue("sales"))
	assert.Equal(t, "", CoerceValue(""))
}

func TestResolveAllPlainOnly(t *testing.T) {
	vars := []Variable{
		{Name: "department", Value: "sales"},
		{Name: "limit", Value: "100"},
		{Name: "active", Value: "true"},
	}
	resolved := ResolveAll(vars, "")
	assert.Equal(t, map[string]any{
		"department": "sales",
		"limit":      100.0,
		"active":     true,
	}, resolved)
}

func TestResolveAllLastWriteWins(t *testing.T) {
	vars := []Variable{
		{Name: "owner", Value: "alice"},
		{Name: "owner", Value: "bob"},
	}
	resolved := ResolveAll(vars, "")
	assert.Equal(t, "bob", resolved["owner"])
}

func TestResolveAllExpressionSeesPlainVariables(t *testing.T) {
	vars := []Variable{
		{Name: "limit", Value: "100"},
		{Name: "doubled", Value: "limit * 2", IsExpression: true},
	}
	resolved := ResolveAll(vars, "")
	assert.Equal(t, 200.0, resolved["doubled"])
}

func TestResolveAllExpressionsDontSeeEachOther(t *testing.T) {
	// One-pass resolution: expression variables evaluate against the plain
	// context only, so "second" sees undefined for "first".
	vars := []Variable{
		{Name: "first", Value: "1 + 1", IsExpression: true},
		{Name: "second", Value: "typeof first", IsExpression: true},
	}
	resolved := ResolveAll(vars, "")
	assert.Equal(t, int64(2), resolved["first"])
	assert.Equal(t, "undefined", resolved["second"])
}

func TestResolveAllBrokenExpressionStoresSentinel(t *testing.T) {
	vars := []Variable{
		{Name: "broken", Value: "missing.field.access", IsExpression: true},
		{Name: "fine", Value: "ok"},
	}
	resolved := ResolveAll(vars, "")
	assert.True(t, IsEvalError(resolved["broken"]))
	assert.Equal(t, "ok", resolved["fine"])
}

func TestResolveAllUsesLibrary(t *testing.T) {
	vars := []Variable{
		{Name: "greeting", Value: "greet('world')", IsExpression: true},
	}
	resolved := ResolveAll(vars, "function greet(n) { return 'hello ' + n; }")
	assert.Equal(t, "hello world", resolved["greeting"])
}
