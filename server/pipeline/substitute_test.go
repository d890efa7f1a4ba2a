// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteVariableLookup(t *testing.T) {
	vars := []Variable{{Name: "department", Value: "sales"}}
	got := Substitute("SELECT * FROM t WHERE dept = {{department}}", vars, "")
	assert.Equal(t, "SELECT * FROM t WHERE dept = sales", got)
}

func TestSubstituteExpression(t *testing.T) {
	got := Substitute("{{1+1}}", nil, "")
	assert.Equal(t, "2", got)
}

func TestSubstituteNoPlaceholdersUnchanged(t *testing.T) {
	text := "SELECT 1; -- nothing to do {here}"
	assert.Equal(t, text, Substitute(text, nil, ""))
}

func TestSubstituteMissLeavesPlaceholder(t *testing.T) {
	got := Substitute("WHERE x = {{unknown_name}}", nil, "")
	assert.Equal(t, "WHERE x = {{unknown_name}}", got)
}

func TestSubstituteLiteralFallback(t *testing.T) {
	// "class" is a reserved word, so evaluation fails and the literal lookup
	// of the trimmed inner text kicks in.
	vars := []Variable{{Name: "class", Value: "everything"}}
	got := Substitute("mode: {{ class }}", vars, "")
	assert.Equal(t, "mode: everything", got)
}

func TestSubstituteObjectSerializedAsJSON(t *testing.T) {
	got := Substitute("payload = {{({a: 1})}}", nil, "")
	assert.Equal(t, `payload = {"a":1}`, got)
}

func TestSubstituteMultiline(t *testing.T) {
	vars := []Variable{{Name: "limit", Value: "5"}}
	got := Substitute("LIMIT {{\n  limit *\n  10\n}}", vars, "")
	assert.Equal(t, "LIMIT 50", got)
}

func TestSubstituteMultiplePlaceholders(t *testing.T) {
	vars := []Variable{
		{Name: "a", Value: "one"},
		{Name: "b", Value: "two"},
	}
	got := Substitute("{{a}} and {{b}} and {{a}}", vars, "")
	assert.Equal(t, "one and two and one", got)
}

func TestSubstituteResultNotReEvaluated(t *testing.T) {
	// A substituted value containing braces must not be treated as a new
	// placeholder.
	vars := []Variable{{Name: "tpl", Value: "{{tpl}}"}}
	got := Substitute("x = {{tpl}}", vars, "")
	assert.Equal(t, "x = {{tpl}}", got)
}

func TestSubstituteExpressionUsingVariables(t *testing.T) {
	vars := []Variable{
		{Name: "from", Value: "2024-01-01"},
		{Name: "days", Value: "7"},
	}
	got := Substitute("BETWEEN '{{from}}' AND now() - {{days * 24}}h", vars, "")
	assert.Equal(t, "BETWEEN '2024-01-01' AND now() - 168h", got)
}
