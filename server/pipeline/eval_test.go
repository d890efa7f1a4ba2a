// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalSimpleExpression(t *testing.T) {
	v, err := Eval("1 + 1", nil, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestEvalUsesContextValues(t *testing.T) {
	v, err := Eval("region + '-' + suffix", map[string]any{"region": "emea", "suffix": "prod"}, "")
	require.NoError(t, err)
	assert.Equal(t, "emea-prod", v)
}

func TestEvalBareObjectLiteral(t *testing.T) {
	// Without the parenthesized wrapping this would parse as a block statement.
	v, err := Eval("{a: 1, b: 'x'}", nil, "")
	require.NoError(t, err)
	obj, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, int64(1), obj["a"])
	assert.Equal(t, "x", obj["b"])
}

func TestEvalMultiStatementBody(t *testing.T) {
	src := "var total = 0;\nfor (var i = 1; i <= 4; i++) { total += i; }\nreturn total;"
	v, err := Eval(src, nil, "")
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)
}

func TestEvalLibraryInScope(t *testing.T) {
	library := "function double(n) { return n * 2; }\nvar BASE = 21;"
	v, err := Eval("double(BASE)", nil, library)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
}

func TestEvalToValueSentinelOnFailure(t *testing.T) {
	v := EvalToValue("nosuchfunction()", nil, "")
	s, ok := v.(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(s, EvalErrorPrefix))
	assert.True(t, strings.HasSuffix(s, "]"))
	assert.True(t, IsEvalError(v))
}

func TestEvalToValueSentinelOnSyntaxError(t *testing.T) {
	v := EvalToValue("return ((", nil, "")
	assert.True(t, IsEvalError(v))
}

func TestEvalDeterministic(t *testing.T) {
	ctx := map[string]any{"a": 1.0, "b": 2.0, "c": 3.0, "d": 4.0}
	first, err := Eval("a + b + c + d", ctx, "")
	require.NoError(t, err)
	for range 10 {
		v, err := Eval("a + b + c + d", ctx, "")
		require.NoError(t, err)
		assert.Equal(t, first, v)
	}
}

func TestIsEvalErrorOnlyMatchesPrefix(t *testing.T) {
	assert.False(t, IsEvalError("plain string"))
	assert.False(t, IsEvalError(42))
	assert.False(t, IsEvalError(nil))
	assert.True(t, IsEvalError(EvalErrorPrefix+"boom]"))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "2", Stringify(int64(2)))
	assert.Equal(t, "2.5", Stringify(2.5))
	assert.Equal(t, "sales", Stringify("sales"))
	assert.Equal(t, "true", Stringify(true))
	assert.Equal(t, "null", Stringify(nil))
	assert.Equal(t, `{"a":1}`, Stringify(map[string]any{"a": 1}))
	assert.Equal(t, `[1,2]`, Stringify([]any{1, 2}))
}
