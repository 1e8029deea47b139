package tablesource

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Record is one row of the third-party export. Field keys are source-defined,
// free-text column labels; there is no schema beyond what the migration
// mapper expects per entity kind.
type Record struct {
	ID          string         `json:"id"`
	Fields      map[string]any `json:"fields"`
	CreatedTime time.Time      `json:"createdTime"`
}

// Has reports whether the field is present with a non-empty value.
func (r Record) Has(key string) bool {
	v, ok := r.Fields[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s) != ""
	}
	if arr, isArr := v.([]any); isArr {
		return len(arr) > 0
	}
	return true
}

// String returns the trimmed string value of a field; non-string scalars are
// stringified, absent fields return "".
func (r Record) String(key string) string {
	v, ok := r.Fields[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		if len(t) == 0 {
			return ""
		}
		if s, isStr := t[0].(string); isStr {
			return strings.TrimSpace(s)
		}
		return ""
	default:
		return ""
	}
}

// Strings returns a field as a list. Singleton strings become a one-element
// list; non-string elements are dropped.
func (r Record) Strings(key string) []string {
	v, ok := r.Fields[key]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		return []string{s}
	case []any:
		out := make([]string, 0, len(t))
		for _, el := range t {
			if s, isStr := el.(string); isStr {
				s = strings.TrimSpace(s)
				if s != "" {
					out = append(out, s)
				}
			}
		}
		return out
	default:
		return nil
	}
}

// First returns the first element of an array field. Source status columns
// arrive as singleton arrays; plain strings are accepted too.
func (r Record) First(key string) string {
	vals := r.Strings(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// Float parses a field as a number. Absence and parse failure both return 0;
// export numerics are defaulted, never rejected.
func (r Record) Float(key string) float64 {
	v, ok := r.Fields[key]
	if !ok || v == nil {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", "."))
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
