// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dop251/goja"
)

// Sentinel prefix for failed expression evaluation. Saved dashboards interpolate
// this into text, so the format is a hard contract.
const EvalErrorPrefix = "[EVAL_ERROR: "

var returnStatementRe = regexp.MustCompile(`\breturn\b`)

// Eval runs a JavaScript expression or function body against ctx.
// Inputs without an explicit return statement are wrapped as `return (<src>);`
// so bare object literals evaluate as expressions instead of blocks. The library
// script is prepended to the body so its helpers are in scope. The context keys
// become the parameter list of a fresh function, so nothing leaks between calls
// and concurrent evaluation is safe.
func Eval(src string, ctx map[string]any, library string) (any, error) {
	body := src
	if !returnStatementRe.MatchString(src) {
		body = "return (" + src + "\n);"
	}
	if library != "" {
		body = library + "\n" + body
	}
	keys := contextKeys(ctx)
	vm := goja.New()
	fn, err := vm.RunString("(function(" + strings.Join(keys, ", ") + ") {\n" + body + "\n})")
	if err != nil {
		return nil, err
	}
	call, ok := goja.AssertFunction(fn)
	if !ok {
		return nil, fmt.Errorf("expression did not compile to a function")
	}
	args := make([]goja.Value, len(keys))
	for i, k := range keys {
		args[i] = vm.ToValue(ctx[k])
	}
	result, err := call(goja.Undefined(), args...)
	if err != nil {
		return nil, err
	}
	return result.Export(), nil
}

// EvalToValue is the soft-fail wrapper around Eval. Failures become the
// EvalErrorPrefix sentinel string instead of an error so callers can degrade
// to fallback behavior by prefix-matching.
func EvalToValue(src string, ctx map[string]any, library string) any {
	v, err := Eval(src, ctx, library)
	if err != nil {
		return EvalErrorPrefix + evalErrorMessage(err) + "]"
	}
	return v
}

// IsEvalError reports whether a resolved value is the evaluation-failure sentinel.
func IsEvalError(v any) bool {
	s, ok := v.(string)
	return ok && strings.HasPrefix(s, EvalErrorPrefix)
}

// Context keys are sorted so the same (expression, context, library) triple
// always builds the same function.
func contextKeys(ctx map[string]any) []string {
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func evalErrorMessage(err error) string {
	if ex, ok := err.(*goja.Exception); ok {
		return ex.Value().String()
	}
	return err.Error()
}

// Stringify renders an evaluated value for interpolation into text.
// Objects and arrays are JSON-serialized, everything else uses plain string
// conversion.
func Stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return v
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}
