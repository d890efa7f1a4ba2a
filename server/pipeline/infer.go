// SPDX-License-Identifier: MPL-2.0

package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ColumnType drives per-column formatting in the frontend.
type ColumnType string

const (
	TypeText     ColumnType = "text"
	TypeInteger  ColumnType = "integer"
	TypeDecimal  ColumnType = "decimal"
	TypeCurrency ColumnType = "currency"
	TypeBoolean  ColumnType = "boolean"
	TypeDate     ColumnType = "date"
	TypeDatetime ColumnType = "datetime"
)

// Sampling more rows than this doesn't meaningfully improve classification.
const inferSampleRows = 50

var dateOnlyRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Infer classifies every column of a result by scanning up to the first 50
// rows. Null and empty values are skipped; a column with no usable values is
// text. When a column qualifies for multiple types the most specific wins:
// datetime > date > boolean > integer > decimal > text.
func Infer(result QueryResult) map[string]ColumnType {
	types := make(map[string]ColumnType, len(result.Columns))
	if len(result.Rows) == 0 {
		for _, col := range result.Columns {
			types[col] = TypeText
		}
		return types
	}
	sample := result.Rows
	if len(sample) > inferSampleRows {
		sample = sample[:inferSampleRows]
	}
	for i, col := range result.Columns {
		types[col] = inferColumn(sample, i)
	}
	return types
}

func inferColumn(sample [][]any, index int) ColumnType {
	allInteger := true
	allDecimal := true
	allBoolean := true
	allDateLike := true
	anyDatetime := false
	sawValue := false
	for _, row := range sample {
		if index >= len(row) || row[index] == nil {
			continue
		}
		s := cellString(row[index])
		if s == "" {
			continue
		}
		sawValue = true
		if !looksLikeInteger(s) {
			allInteger = false
		}
		numeric := looksLikeDecimal(s)
		if !numeric {
			allDecimal = false
		}
		if !looksLikeBoolean(s) {
			allBoolean = false
		}
		if allDateLike {
			// Purely numeric values never count as dates.
			kind := ""
			if _, isString := row[index].(string); isString && !numeric {
				kind = dateKind(s)
			}
			switch kind {
			case "":
				allDateLike = false
			case "datetime":
				anyDatetime = true
			}
		}
	}
	if !sawValue {
		return TypeText
	}
	switch {
	case allDateLike && anyDatetime:
		return TypeDatetime
	case allDateLike:
		return TypeDate
	case allBoolean:
		return TypeBoolean
	case allInteger:
		return TypeInteger
	case allDecimal:
		return TypeDecimal
	}
	return TypeText
}

// MergeSaved reconciles freshly inferred types with previously saved user
// overrides. Saved types win, but only for columns that still exist in the new
// result; stale saved columns are dropped.
func MergeSaved(inferred, saved map[string]ColumnType) map[string]ColumnType {
	merged := make(map[string]ColumnType, len(inferred))
	for col, t := range inferred {
		if override, ok := saved[col]; ok {
			merged[col] = override
			continue
		}
		merged[col] = t
	}
	return merged
}

func cellString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func looksLikeInteger(s string) bool {
	n, err := strconv.ParseInt(s, 10, 64)
	return err == nil && strconv.FormatInt(n, 10) == s
}

func looksLikeDecimal(s string) bool {
	n, err := strconv.ParseFloat(s, 64)
	return err == nil && !strings.EqualFold(s, "nan") && !strings.Contains(strings.ToLower(s), "inf") && n == n
}

func looksLikeBoolean(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "1", "0":
		return true
	}
	return false
}

// dateKind returns "date", "datetime" or "" for a string value.
// YYYY-MM-DD exactly is a date. An explicit T separator or a space+colon time
// component means datetime. A value that parses to midnight without explicit
// markers is a date, anything else that parses is a datetime.
func dateKind(s string) string {
	if dateOnlyRe.MatchString(s) {
		return "date"
	}
	t, ok := parseDate(s)
	if !ok {
		return ""
	}
	if strings.Contains(s, "T") || (strings.Contains(s, " ") && strings.Contains(s, ":")) {
		return "datetime"
	}
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return "date"
	}
	return "datetime"
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
