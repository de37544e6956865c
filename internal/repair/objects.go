package repair

import (
	"encoding/json"
	"strings"

	"dbrestore/internal/sqlscan"
)

// WrapContextualJSON quotes bare JSON objects used as a VALUES item or as the
// right-hand side of SET col = {...}, producing '<object>'::jsonb.
func WrapContextualJSON(sql string) string {
	inValues, inSet := false, false
	return rewrite(sql, func(src string, i int) (edit, bool) {
		switch {
		case src[i] == ';':
			inValues, inSet = false, false
		case sqlscan.KeywordAt(src, i, "VALUES"):
			inValues = true
		case sqlscan.KeywordAt(src, i, "SET"):
			inSet = true
		case src[i] == '{':
			p := sqlscan.PrevNonSpace(src, i)
			if p < 0 {
				return edit{}, false
			}
			inContext := (inValues && (src[p] == '(' || src[p] == ',')) || (inSet && src[p] == '=')
			if !inContext {
				return edit{}, false
			}
			return wrapObject(src, i, jsonbLiteral)
		}
		return edit{}, false
	})
}

// WrapBareObjects quotes any remaining {...} block found in plain code
func WrapBareObjects(sql string) string {
	return rewrite(sql, func(src string, i int) (edit, bool) {
		if src[i] != '{' {
			return edit{}, false
		}
		return wrapObject(src, i, jsonbLiteral)
	})
}

// ObjectsToJSONB rewrites objects the server refused as JSON into
// to_jsonb('<text>'::text), which stores the original text as a JSON string.
// It handles bare {...} blocks and quoted '...'::jsonb literals that do not
// parse as JSON.
func ObjectsToJSONB(stmt string) (string, bool) {
	out := rewrite(stmt, func(src string, i int) (edit, bool) {
		if src[i] != '{' {
			return edit{}, false
		}
		return wrapObject(src, i, textToJSONB)
	})

	out = rewrite(out, func(src string, i int) (edit, bool) {
		if src[i] != '\'' || (i > 0 && sqlscan.IsIdentByte(src[i-1])) {
			return edit{}, false
		}
		end := quotedEnd(src, i)
		if end < 0 {
			return edit{}, false
		}
		typ, isArray, castEnd, ok := castAt(src, end)
		if !ok || isArray {
			return edit{}, false
		}
		if t := strings.ToLower(typ); t != "jsonb" && t != "json" {
			return edit{}, false
		}
		if json.Valid([]byte(unquoteLiteral(src[i:end]))) {
			return edit{}, false
		}
		return edit{start: i, end: castEnd, text: "to_jsonb(" + src[i:end] + "::text)"}, true
	})
	return out, out != stmt
}

// wrapObject replaces the balanced {...} starting at src[i] unless it directly
// follows a quote
func wrapObject(src string, i int, wrap func(obj string) string) (edit, bool) {
	if p := sqlscan.PrevNonSpace(src, i); p >= 0 && src[p] == '\'' {
		return edit{}, false
	}
	end := objectEnd(src, i)
	if end < 0 {
		return edit{}, false
	}
	return edit{start: i, end: end, text: wrap(src[i:end])}, true
}

func jsonbLiteral(obj string) string {
	return "'" + escapeLiteral(obj) + "'::jsonb"
}

func textToJSONB(obj string) string {
	return "to_jsonb('" + escapeLiteral(obj) + "'::text)"
}
