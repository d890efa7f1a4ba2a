// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"strconv"
	"strings"
	"time"
)

// Variable is a dashboard-scoped named value. Plain variables hold a literal
// string, expression variables hold JavaScript source evaluated at resolution
// time. Fixed variables (department, owner) are synthesized per request and
// never persisted.
type Variable struct {
	ID              string           `db:"id" json:"id"`
	DashboardID     string           `db:"dashboard_id" json:"dashboardId"`
	Name            string           `db:"name" json:"name"`
	Value           string           `db:"value" json:"value"`
	IsExpression    bool             `db:"is_expression" json:"isExpression"`
	Options         []VariableOption `json:"options,omitempty"`
	ShowOnDashboard bool             `db:"show_on_dashboard" json:"showOnDashboard,omitempty"`
	LastModified    time.Time        `db:"last_modified" json:"lastModified"`
}

type VariableOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// CoerceValue converts a plain variable's stored string to the value exposed to
// expressions: a number if the string round-trips exactly, a boolean for
// true/false (case-insensitive), otherwise the string itself.
func CoerceValue(s string) any {
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		if strconv.FormatFloat(n, 'f', -1, 64) == s {
			return n
		}
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// ResolveAll builds the name→value context for one evaluation pass.
// Plain variables are coerced first, in input order, so a later variable with
// the same name wins. Expression variables are then evaluated against the
// plain-only context plus the library script. Expression variables never see
// each other's resolved values; an expression referencing another expression
// variable's name sees undefined unless that name is also a plain variable.
// Evaluation failures store the [EVAL_ERROR: ...] sentinel as the value.
// No errors escape this function.
func ResolveAll(variables []Variable, library string) map[string]any {
	plain := make(map[string]any)
	var expressions []Variable
	for _, v := range variables {
		if v.IsExpression {
			expressions = append(expressions, v)
			continue
		}
		plain[v.Name] = CoerceValue(v.Value)
	}
	resolved := make(map[string]any, len(plain)+len(expressions))
	for k, v := range plain {
		resolved[k] = v
	}
	for _, v := range expressions {
		resolved[v.Name] = EvalToValue(v.Value, plain, library)
	}
	return resolved
}
