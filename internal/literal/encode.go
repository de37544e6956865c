// Package literal renders decoded JSON values as SQL literals, typed by the
// destination column when its type is known.
package literal

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"dbrestore/internal/schema"
)

const null = "NULL"

// Encode returns a SQL literal for v. Values are expected to come from
// encoding/json with UseNumber; plain Go numbers are accepted too. With a nil
// type the literal is inferred from the value alone. Encode never panics and
// degrades to NULL or an empty JSON literal when a value cannot be expressed.
func Encode(v any, t *schema.ColumnType) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = null
		}
	}()

	switch {
	case t == nil:
		return encodeUntyped(v)
	case t.IsArray:
		return encodeArray(v, t.BaseType)
	case t.IsJSON:
		return encodeJSON(v, "{}")
	}
	return encodeScalar(v, t.BaseType)
}

func encodeUntyped(v any) string {
	switch val := v.(type) {
	case nil:
		return null
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case []any:
		return encodeJSON(val, "[]")
	case map[string]any:
		return encodeJSON(val, "{}")
	case string:
		return Quote(val)
	}
	if n, ok := numberText(v); ok {
		return n
	}
	if _, isNumber := asFloat(v); isNumber {
		return null
	}
	return Quote(fmt.Sprint(v))
}

func encodeJSON(v any, fallback string) string {
	if v == nil {
		return null
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "'" + fallback + "'::jsonb"
	}
	return Quote(string(raw)) + "::jsonb"
}

func encodeScalar(v any, base string) string {
	if v == nil {
		return null
	}

	switch base {
	case "integer", "bigint", "smallint":
		if n, ok := integerText(v); ok {
			return n
		}
		return null
	case "numeric", "real", "double precision":
		if n, ok := numberText(v); ok {
			return n
		}
		return null
	case "boolean":
		if b, ok := asBool(v); ok {
			if b {
				return "TRUE"
			}
			return "FALSE"
		}
		return null
	}
	return Quote(textOf(v))
}

func encodeArray(v any, base string) string {
	if v == nil {
		return null
	}

	var items []any
	switch val := v.(type) {
	case []any:
		items = val
	case string:
		// already an array literal
		if s := strings.TrimSpace(val); strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
			return Quote(s) + "::" + base + "[]"
		}
		items = []any{val}
	default:
		items = []any{val}
	}
	return Quote(arrayBody(items, base)) + "::" + base + "[]"
}

func arrayBody(items []any, base string) string {
	elems := make([]string, len(items))
	for i, item := range items {
		elems[i] = arrayElement(item, base)
	}
	return "{" + strings.Join(elems, ",") + "}"
}

func arrayElement(v any, base string) string {
	if v == nil {
		return null
	}
	if nested, ok := v.([]any); ok && base != "jsonb" {
		return arrayBody(nested, base)
	}

	switch base {
	case "integer", "bigint", "smallint":
		if n, ok := integerText(v); ok {
			return n
		}
		return null
	case "numeric", "real", "double precision":
		if n, ok := numberText(v); ok {
			return n
		}
		return null
	case "boolean":
		if b, ok := asBool(v); ok {
			return strconv.FormatBool(b)
		}
		return null
	case "jsonb":
		raw, err := json.Marshal(v)
		if err != nil {
			return quoteElement("{}")
		}
		return quoteElement(string(raw))
	}
	return quoteElement(textOf(v))
}

// Quote renders s as a standard string literal
func Quote(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// quoteElement renders one element in array-literal syntax
func quoteElement(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// numberText returns the literal text of a finite number
func numberText(v any) (string, bool) {
	switch val := v.(type) {
	case json.Number:
		return decimalText(val.String())
	case string:
		return decimalText(strings.TrimSpace(val))
	}
	f, ok := asFloat(v)
	if !ok || math.IsInf(f, 0) || math.IsNaN(f) {
		return "", false
	}
	return strconv.FormatFloat(f, 'g', -1, 64), true
}

// decimalLiteral is the numeric literal syntax both JSON and SQL accept
var decimalLiteral = regexp.MustCompile(`^-?(\d+(\.\d*)?|\.\d+)([eE][-+]?\d+)?$`)

// decimalText passes s through only when it is a plain decimal literal.
// Other finite spellings the float parser accepts (hex floats, underscores,
// a leading plus) are re-rendered in decimal so no raw input reaches the SQL.
func decimalText(s string) (string, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return "", false
	}
	if decimalLiteral.MatchString(s) {
		return s, true
	}
	return strconv.FormatFloat(f, 'g', -1, 64), true
}

// integerText returns the literal text of an integral number
func integerText(v any) (string, bool) {
	var s string
	switch val := v.(type) {
	case json.Number:
		s = val.String()
	case string:
		s = strings.TrimSpace(val)
	case bool:
		if val {
			return "1", true
		}
		return "0", true
	default:
		f, ok := asFloat(v)
		if !ok || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
			return "", false
		}
		return strconv.FormatFloat(f, 'f', 0, 64), true
	}

	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return s, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return "", false
	}
	return strconv.FormatFloat(f, 'f', 0, 64), true
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

func asBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "t", "1", "yes", "y", "on":
			return true, true
		case "false", "f", "0", "no", "n", "off":
			return false, true
		}
		return false, false
	case json.Number:
		switch val.String() {
		case "1":
			return true, true
		case "0":
			return false, true
		}
		return false, false
	}
	if f, ok := asFloat(v); ok && (f == 0 || f == 1) {
		return f == 1, true
	}
	return false, false
}

// textOf renders a value as the text a string-typed column should store
func textOf(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case []any, map[string]any:
		raw, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(raw)
	}
	if n, ok := numberText(v); ok {
		return n
	}
	return fmt.Sprint(v)
}
