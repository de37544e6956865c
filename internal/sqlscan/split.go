package sqlscan

import "strings"

// Split breaks a script into statements on semicolons found in plain code.
// Statements are trimmed, empty ones dropped, and file order is kept.
func Split(script string) []string {
	var statements []string
	var sc Scanner
	start := 0

	for i := 0; i < len(script); {
		n, st := sc.Step(script, i)
		if st == Plain && script[i] == ';' {
			if stmt := strings.TrimSpace(script[start:i]); stmt != "" {
				statements = append(statements, stmt)
			}
			start = i + 1
		}
		i += n
	}

	if stmt := strings.TrimSpace(script[start:]); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}

// IsEmptyStatement reports whether a statement holds nothing but whitespace
// and comments
func IsEmptyStatement(stmt string) bool {
	var sc Scanner
	for i := 0; i < len(stmt); {
		n, st := sc.Step(stmt, i)
		if st == Plain && strings.TrimSpace(stmt[i:i+n]) != "" {
			return false
		}
		if st == SingleQuote || st == DoubleQuote || st == DollarQuote {
			return false
		}
		i += n
	}
	return true
}

// LeadingWords returns up to n upper-cased words from the start of stmt.
// Comments are skipped and scanning stops at the first quoted region.
func LeadingWords(stmt string, n int) []string {
	var sc Scanner
	var b strings.Builder
	for i := 0; i < len(stmt); {
		step, st := sc.Step(stmt, i)
		if st == SingleQuote || st == DoubleQuote || st == DollarQuote {
			break
		}
		if st == Plain {
			b.WriteString(stmt[i : i+step])
		} else {
			b.WriteByte(' ')
		}
		i += step
	}

	words := strings.FieldsFunc(b.String(), func(r rune) bool {
		return r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(words) > n {
		words = words[:n]
	}
	for i, w := range words {
		words[i] = strings.ToUpper(w)
	}
	return words
}

// KeywordAt reports whether the case-insensitive keyword starts at src[i]
// as a whole word
func KeywordAt(src string, i int, keyword string) bool {
	end := i + len(keyword)
	if end > len(src) || !strings.EqualFold(src[i:end], keyword) {
		return false
	}
	if i > 0 && IsIdentByte(src[i-1]) {
		return false
	}
	return end == len(src) || !IsIdentByte(src[end])
}

// SkipSpace returns the index of the first non-whitespace byte at or after i
func SkipSpace(src string, i int) int {
	for i < len(src) && isSpace(src[i]) {
		i++
	}
	return i
}

// PrevNonSpace returns the index of the last non-whitespace byte before i, or -1
func PrevNonSpace(src string, i int) int {
	for j := i - 1; j >= 0; j-- {
		if !isSpace(src[j]) {
			return j
		}
	}
	return -1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
