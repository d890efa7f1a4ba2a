// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"regexp"
	"strings"
)

// Placeholders are matched lazily and may span multiple lines.
var placeholderRe = regexp.MustCompile(`(?s)\{\{(.+?)\}\}`)

// Substitute replaces {{expression}} placeholders in query text, titles and
// descriptions. The dashboard's variables are resolved once, then each
// placeholder is evaluated against that context. A failed evaluation falls
// back to a literal lookup of the trimmed inner text; if that also misses, the
// placeholder is left untouched. Substitution never fails and never drops text.
func Substitute(text string, variables []Variable, library string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return SubstituteWithContext(text, ResolveAll(variables, library), library)
}

// SubstituteWithContext is Substitute with an already-resolved context, for
// callers that interpolate many strings per card run. Replacement happens in a
// single pass; substituted text is never re-evaluated.
func SubstituteWithContext(text string, ctx map[string]any, library string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		inner := match[2 : len(match)-2]
		result := EvalToValue(inner, ctx, library)
		if !IsEvalError(result) {
			return Stringify(result)
		}
		if v, ok := ctx[strings.TrimSpace(inner)]; ok {
			return Stringify(v)
		}
		return match
	})
}
