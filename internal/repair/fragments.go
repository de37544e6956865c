package repair

import (
	"regexp"
	"strings"

	"dbrestore/internal/sqlscan"
)

// leakedConversation matches the start of a chat transcript array that an
// exporter accidentally serialized into the dump
var leakedConversation = regexp.MustCompile(`^\s*'?\{\s*"role"\s*:\s*"(system|user)"`)

// SanitizeFragments removes leaked conversation arrays, completes truncated
// ::te and ::tex casts, and inserts the comma missing between a cast and a
// following quoted column name.
func SanitizeFragments(sql string) string {
	return repairCasts(stripConversations(sql))
}

func stripConversations(sql string) string {
	return rewrite(sql, func(src string, i int) (edit, bool) {
		if src[i] != '[' {
			return edit{}, false
		}
		end := bracketEnd(src, i)
		if end < 0 || !leakedConversation.MatchString(src[i+1:end]) {
			return edit{}, false
		}
		start := i
		if p := sqlscan.PrevNonSpace(src, i); p >= 0 && src[p] == ',' {
			start = p
		}
		return edit{start: start, end: end + 1}, true
	})
}

func repairCasts(sql string) string {
	return rewrite(sql, func(src string, i int) (edit, bool) {
		if !strings.HasPrefix(src[i:], "::") {
			return edit{}, false
		}
		j := i + 2
		for j < len(src) && sqlscan.IsIdentByte(src[j]) {
			j++
		}
		word := src[i+2 : j]
		if word == "" {
			return edit{}, false
		}

		fixed := word
		if lw := strings.ToLower(word); lw == "te" || lw == "tex" {
			fixed = "text"
		}
		end := j
		if strings.HasPrefix(src[end:], "[]") {
			end += 2
		}
		next := sqlscan.SkipSpace(src, end)
		missingComma := next > end && next < len(src) && src[next] == '"'

		if fixed == word && !missingComma {
			return edit{}, false
		}
		text := "::" + fixed + src[j:end]
		if missingComma {
			text += ","
		}
		return edit{start: i, end: end, text: text}, true
	})
}
