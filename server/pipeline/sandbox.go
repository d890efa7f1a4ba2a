// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dop251/goja"
)

// ScriptResult is the outcome of a successful post-processing run.
// Columns carries the key order of the first returned row object, which is the
// column order the frontend renders.
type ScriptResult struct {
	Data    []map[string]any
	Columns []string
	Logs    []string
}

// ScriptError carries the failure together with everything the script printed
// before failing. Callers must present both; partial logs are often the only
// clue to where a script went wrong.
type ScriptError struct {
	Err  error
	Logs []string
}

// Error formats runtime errors as "<ErrorName>: <message>", which is what
// goja's exception value stringifies to.
func (e *ScriptError) Error() string {
	if ex, ok := e.Err.(*goja.Exception); ok {
		return ex.Value().String()
	}
	return e.Err.Error()
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// Run executes a user-authored transformation script against data, the primary
// row set in object form. The resolved variable context is injected as
// function parameters, alongside a console facade whose log calls are mirrored
// to logger and captured for the UI. Multi-query cards pass all row sets under
// a "datasets" context key; data stays the first dataset so single-query
// scripts keep working.
//
// The script must evaluate to an array of row objects. A blank script is an
// identity transform and never enters the sandbox. There is no execution
// timeout: script authors are trusted power users.
func Run(logger *slog.Logger, data []map[string]any, script string, ctx map[string]any, library string) (ScriptResult, error) {
	if strings.TrimSpace(script) == "" {
		return ScriptResult{Data: data, Logs: []string{}}, nil
	}

	logs := []string{}
	vm := goja.New()
	console := vm.NewObject()
	err := console.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = formatLogValue(arg)
		}
		line := strings.Join(parts, " ")
		logs = append(logs, line)
		if logger != nil {
			logger.Info("script console", slog.String("line", line))
		}
		return goja.Undefined()
	})
	if err != nil {
		return ScriptResult{}, &ScriptError{Err: err, Logs: logs}
	}

	body := script
	if !returnStatementRe.MatchString(script) {
		body = "return (" + script + "\n);"
	}
	if library != "" {
		body = library + "\n" + body
	}

	keys := contextKeys(ctx)
	params := append([]string{"data", "console"}, keys...)
	fn, err := vm.RunString("(function(" + strings.Join(params, ", ") + ") {\n" + body + "\n})")
	if err != nil {
		return ScriptResult{}, &ScriptError{Err: err, Logs: logs}
	}
	call, ok := goja.AssertFunction(fn)
	if !ok {
		return ScriptResult{}, &ScriptError{Err: fmt.Errorf("script did not compile to a function"), Logs: logs}
	}
	args := make([]goja.Value, 0, len(params))
	args = append(args, vm.ToValue(data), console)
	for _, k := range keys {
		args = append(args, vm.ToValue(ctx[k]))
	}
	returned, err := call(goja.Undefined(), args...)
	if err != nil {
		return ScriptResult{}, &ScriptError{Err: err, Logs: logs}
	}

	var exported []any
	switch v := returned.Export().(type) {
	case []any:
		exported = v
	case []map[string]any:
		// Scripts that return the injected data slice untouched export as the
		// original Go type.
		exported = make([]any, len(v))
		for i, m := range v {
			exported[i] = m
		}
	default:
		return ScriptResult{}, &ScriptError{
			Err:  fmt.Errorf("script must return an array of row objects, got %s", returned.ExportType()),
			Logs: logs,
		}
	}
	processed := make([]map[string]any, len(exported))
	var columns []string
	if len(exported) > 0 {
		first, ok := exported[0].(map[string]any)
		if !ok || first == nil {
			return ScriptResult{}, &ScriptError{
				Err:  fmt.Errorf("script must return an array of row objects, first element is %T", exported[0]),
				Logs: logs,
			}
		}
		// Key order of the first row object determines column order.
		if arr, ok := returned.(*goja.Object); ok {
			if obj, ok := arr.Get("0").(*goja.Object); ok {
				columns = obj.Keys()
			}
		}
		for i, el := range exported {
			// Only the first element's shape is validated. Later non-object
			// rows render as all-nil.
			processed[i], _ = el.(map[string]any)
		}
	}
	return ScriptResult{Data: processed, Columns: columns, Logs: logs}, nil
}

// Console output formatting: functions render as a placeholder, objects and
// arrays as pretty-printed JSON, everything else via plain string conversion.
func formatLogValue(v goja.Value) string {
	if _, ok := goja.AssertFunction(v); ok {
		return "[Function]"
	}
	exported := v.Export()
	switch exported.(type) {
	case nil:
		return v.String()
	case map[string]any, []any:
		b, err := json.MarshalIndent(exported, "", "  ")
		if err == nil {
			return string(b)
		}
	}
	return v.String()
}
