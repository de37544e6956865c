package repair

import (
	"strings"

	"dbrestore/internal/sqlscan"
)

// Words that may legally precede ARRAY in a column type ("integer ARRAY")
var arrayTypeWords = map[string]bool{
	"int": true, "integer": true, "int2": true, "int4": true, "int8": true,
	"smallint": true, "bigint": true, "text": true, "varchar": true, "varying": true,
	"char": true, "character": true, "boolean": true, "bool": true, "uuid": true,
	"numeric": true, "decimal": true, "real": true, "precision": true,
	"float4": true, "float8": true, "timestamp": true, "timestamptz": true,
	"zone": true, "date": true, "time": true, "json": true, "jsonb": true,
	"bytea": true, "inet": true,
}

// NormalizeArrays rewrites ARRAY[...] constructors into array literals,
// '{"e1","e2"}'::text[]. A trailing ::type[] cast is folded into the literal.
// An empty ARRAY[] directly after DEFAULT is left for NormalizeDDLArrays.
func NormalizeArrays(sql string) string {
	return rewrite(sql, func(src string, i int) (edit, bool) {
		if !sqlscan.KeywordAt(src, i, "ARRAY") {
			return edit{}, false
		}
		open := sqlscan.SkipSpace(src, i+len("ARRAY"))
		if open >= len(src) || src[open] != '[' {
			return edit{}, false
		}
		end := bracketEnd(src, open)
		if end < 0 {
			return edit{}, false
		}
		body := src[open+1 : end]
		if strings.TrimSpace(body) == "" && previousWord(src, i) == "default" {
			return edit{}, false
		}
		// integer ARRAY[4] is a column type with a dimension, not a constructor
		if arrayTypeWords[previousWord(src, i)] && isDimension(body) {
			return edit{}, false
		}

		typ, next := "text", end+1
		if t, isArray, castEnd, ok := castAt(src, end+1); ok && isArray {
			typ, next = t, castEnd
		}
		return edit{
			start: i,
			end:   next,
			text:  "'" + escapeLiteral(arrayBody(body)) + "'::" + typ + "[]",
		}, true
	})
}

func isDimension(body string) bool {
	body = strings.TrimSpace(body)
	for i := 0; i < len(body); i++ {
		if body[i] < '0' || body[i] > '9' {
			return false
		}
	}
	return true
}

// arrayBody renders the comma separated items of an ARRAY[...] as {e1,e2}
func arrayBody(body string) string {
	parts := splitTopLevel(body)
	elems := make([]string, 0, len(parts))
	for _, p := range parts {
		elems = append(elems, arrayElement(strings.TrimSpace(p)))
	}
	return "{" + strings.Join(elems, ",") + "}"
}

func arrayElement(e string) string {
	if strings.EqualFold(e, "NULL") {
		return "NULL"
	}

	nested := e
	if len(nested) > 5 && strings.EqualFold(nested[:5], "ARRAY") {
		nested = strings.TrimSpace(nested[5:])
	}
	if strings.HasPrefix(nested, "[") && bracketEnd(nested, 0) == len(nested)-1 {
		return arrayBody(nested[1 : len(nested)-1])
	}

	e = stripCast(e)
	if len(e) >= 2 && e[0] == '\'' && e[len(e)-1] == '\'' {
		e = unquoteLiteral(e)
	}
	return quoteElement(e)
}

// stripCast drops a trailing ::type from an element expression
func stripCast(e string) string {
	mask := sqlscan.Mask(e)
	at := -1
	for i := 0; i+1 < len(e); i++ {
		if mask[i] == sqlscan.Plain && e[i] == ':' && e[i+1] == ':' {
			at = i
		}
	}
	if at < 0 {
		return e
	}
	if _, _, end, ok := castAt(e, at); ok && end == len(e) {
		return strings.TrimSpace(e[:at])
	}
	return e
}

// previousWord returns the lower-cased identifier ending before src[i], skipping spaces
func previousWord(src string, i int) string {
	end := sqlscan.PrevNonSpace(src, i) + 1
	start := end
	for start > 0 && sqlscan.IsIdentByte(src[start-1]) {
		start--
	}
	return strings.ToLower(src[start:end])
}

// NormalizeDDLArrays fixes array column definitions: a bare ARRAY type becomes
// text[] and DEFAULT ARRAY[] (optionally cast) becomes DEFAULT '{}'::type[].
func NormalizeDDLArrays(sql string) string {
	return rewrite(sql, func(src string, i int) (edit, bool) {
		switch {
		case sqlscan.KeywordAt(src, i, "DEFAULT"):
			return emptyArrayDefault(src, i)
		case sqlscan.KeywordAt(src, i, "ARRAY"):
			return bareArrayType(src, i)
		}
		return edit{}, false
	})
}

func emptyArrayDefault(src string, i int) (edit, bool) {
	j := sqlscan.SkipSpace(src, i+len("DEFAULT"))
	if !sqlscan.KeywordAt(src, j, "ARRAY") {
		return edit{}, false
	}
	open := sqlscan.SkipSpace(src, j+len("ARRAY"))
	if open >= len(src) || src[open] != '[' {
		return edit{}, false
	}
	closing := sqlscan.SkipSpace(src, open+1)
	if closing >= len(src) || src[closing] != ']' {
		return edit{}, false
	}

	typ, end := "text", closing+1
	if t, isArray, castEnd, ok := castAt(src, closing+1); ok && isArray {
		typ, end = t, castEnd
	}
	return edit{start: i, end: end, text: "DEFAULT '{}'::" + typ + "[]"}, true
}

func bareArrayType(src string, i int) (edit, bool) {
	next := sqlscan.SkipSpace(src, i+len("ARRAY"))
	if next < len(src) && (src[next] == '[' || src[next] == '(') {
		return edit{}, false
	}
	if arrayTypeWords[previousWord(src, i)] {
		return edit{}, false
	}
	return edit{start: i, end: i + len("ARRAY"), text: "text[]"}, true
}

// CoerceArraysAggressive is the last-resort rewrite for array literals the
// server still rejects after repair. It splits every ARRAY[...] and
// '{...}'::type[] body on each comma, ignoring quoting, and quotes every
// piece. Elements that contain commas are split apart.
func CoerceArraysAggressive(stmt string) (string, bool) {
	out := rewrite(stmt, func(src string, i int) (edit, bool) {
		switch {
		case sqlscan.KeywordAt(src, i, "ARRAY"):
			open := sqlscan.SkipSpace(src, i+len("ARRAY"))
			if open >= len(src) || src[open] != '[' {
				return edit{}, false
			}
			closing := strings.IndexByte(src[open:], ']')
			if closing < 0 {
				return edit{}, false
			}
			closing += open

			typ, end := "text", closing+1
			if t, isArray, castEnd, ok := castAt(src, closing+1); ok && isArray {
				typ, end = t, castEnd
			}
			return edit{
				start: i,
				end:   end,
				text:  "'" + escapeLiteral(naiveArray(src[open+1:closing])) + "'::" + typ + "[]",
			}, true

		case src[i] == '\'' && (i == 0 || !sqlscan.IsIdentByte(src[i-1])):
			end := quotedEnd(src, i)
			if end < 0 {
				return edit{}, false
			}
			typ, isArray, castEnd, ok := castAt(src, end)
			if !ok || !isArray {
				return edit{}, false
			}
			content := strings.TrimSpace(unquoteLiteral(src[i:end]))
			if !strings.HasPrefix(content, "{") || !strings.HasSuffix(content, "}") {
				return edit{}, false
			}
			return edit{
				start: i,
				end:   castEnd,
				text:  "'" + escapeLiteral(naiveArray(content[1:len(content)-1])) + "'::" + typ + "[]",
			}, true
		}
		return edit{}, false
	})
	return out, out != stmt
}

func naiveArray(body string) string {
	if strings.TrimSpace(body) == "" {
		return "{}"
	}
	parts := strings.Split(body, ",")
	elems := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(strings.TrimSpace(p), `'"`)
		if strings.EqualFold(p, "NULL") {
			elems = append(elems, "NULL")
			continue
		}
		elems = append(elems, quoteElement(p))
	}
	return "{" + strings.Join(elems, ",") + "}"
}
