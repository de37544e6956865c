package repair

import (
	"strings"

	"dbrestore/internal/sqlscan"
)

// edit replaces src[start:end] with text
type edit struct {
	start int
	end   int
	text  string
}

// matcher inspects src at a byte that the scanner reached in plain state.
// Returning ok replaces src[e.start:e.end]; e.start may reach back over bytes
// already seen but never before the previous edit.
type matcher func(src string, i int) (e edit, ok bool)

// rewrite walks src once and applies the edits proposed by match. Scanning
// resumes in plain state right after each edit.
func rewrite(src string, match matcher) string {
	var out strings.Builder
	var sc sqlscan.Scanner
	last := 0
	changed := false

	for i := 0; i < len(src); {
		if sc.State() == sqlscan.Plain {
			if e, ok := match(src, i); ok && e.end > i {
				if e.start < last {
					e.start = last
				}
				out.WriteString(src[last:e.start])
				out.WriteString(e.text)
				last, i = e.end, e.end
				sc = sqlscan.Scanner{}
				changed = true
				continue
			}
		}
		n, _ := sc.Step(src, i)
		i += n
	}

	if !changed {
		return src
	}
	out.WriteString(src[last:])
	return out.String()
}

// bracketEnd returns the index of the ']' closing the '[' at src[open], or -1
func bracketEnd(src string, open int) int {
	var sc sqlscan.Scanner
	depth := 0
	for i := open; i < len(src); {
		n, st := sc.Step(src, i)
		if st == sqlscan.Plain {
			switch src[i] {
			case '[':
				depth++
			case ']':
				depth--
				if depth == 0 {
					return i
				}
			}
		}
		i += n
	}
	return -1
}

// objectEnd returns the index just past the '}' balancing the '{' at src[open],
// or -1. Braces inside JSON strings are ignored.
func objectEnd(src string, open int) int {
	depth := 0
	inString, escaped := false, false
	for j := open; j < len(src); j++ {
		c := src[j]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j + 1
			}
		}
	}
	return -1
}

// quotedEnd returns the index just past the standard string literal opened at
// src[open], or -1 when it is unterminated
func quotedEnd(src string, open int) int {
	for j := open + 1; j < len(src); j++ {
		if src[j] != '\'' {
			continue
		}
		if j+1 < len(src) && src[j+1] == '\'' {
			j++
			continue
		}
		return j + 1
	}
	return -1
}

// splitTopLevel splits a list on plain commas outside nested brackets and parentheses
func splitTopLevel(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}

	var parts []string
	var sc sqlscan.Scanner
	depth, start := 0, 0
	for i := 0; i < len(list); {
		n, st := sc.Step(list, i)
		if st == sqlscan.Plain {
			switch list[i] {
			case '(', '[':
				depth++
			case ')', ']':
				depth--
			case ',':
				if depth == 0 {
					parts = append(parts, list[start:i])
					start = i + 1
				}
			}
		}
		i += n
	}
	return append(parts, list[start:])
}

// castAt parses "::type" or "::type[]" starting at src[i]. It returns the type
// name without brackets, whether brackets followed, and the index after the cast.
func castAt(src string, i int) (typ string, isArray bool, end int, ok bool) {
	j := sqlscan.SkipSpace(src, i)
	if !strings.HasPrefix(src[j:], "::") {
		return "", false, i, false
	}
	j = sqlscan.SkipSpace(src, j+2)
	start := j
	for j < len(src) && (sqlscan.IsIdentByte(src[j]) || src[j] == '.') {
		j++
	}
	if j == start {
		return "", false, i, false
	}
	typ = src[start:j]

	// double precision, character varying, timestamp with time zone
	for _, tail := range []string{" precision", " varying", " with time zone", " without time zone"} {
		if len(src) >= j+len(tail) && strings.EqualFold(src[j:j+len(tail)], tail) {
			typ += src[j : j+len(tail)]
			j += len(tail)
		}
	}

	if k := sqlscan.SkipSpace(src, j); strings.HasPrefix(src[k:], "[]") {
		return typ, true, k + 2, true
	}
	return typ, false, j, true
}

// escapeLiteral doubles single quotes for a standard string literal
func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// unquoteLiteral strips the quotes of a standard string literal and undoes '' escaping
func unquoteLiteral(s string) string {
	return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
}

// quoteElement renders one array element in array-literal syntax
func quoteElement(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}
