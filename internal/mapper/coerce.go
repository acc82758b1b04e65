package mapper

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// present reports whether an attribute value counts as set: non-empty strings,
// non-zero numbers, true, and any composite value.
func present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return t != ""
		}
		return f != 0 && !math.IsNaN(f)
	case float64:
		return t != 0 && !math.IsNaN(t)
	case int:
		return t != 0
	case int64:
		return t != 0
	default:
		return true
	}
}

func firstPresent(attrs map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := attrs[k]; ok && present(v) {
			return v, true
		}
	}
	return nil, false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// leadingInt parses the integer prefix of v's string form ("42", "42abc",
// "12.7" all yield a value). It returns nil when there is no digit prefix or
// the value overflows.
func leadingInt(v any) *int64 {
	s := strings.TrimLeftFunc(stringify(v), unicode.IsSpace)

	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return nil
	}

	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

func optionalString(attrs map[string]any, keys ...string) *string {
	v, ok := firstPresent(attrs, keys...)
	if !ok {
		return nil
	}
	s := stringify(v)
	return &s
}
