// Package sqlscan provides the linear SQL scanner shared by the statement
// splitter and every literal repair pass. The scanner tracks whether a byte
// belongs to plain code, a quoted string or identifier, a comment, or a
// dollar-quoted body.
package sqlscan

import "strings"

// State is the lexical region a byte belongs to
type State uint8

const (
	Plain State = iota
	SingleQuote
	DoubleQuote
	LineComment
	BlockComment
	DollarQuote
)

func (s State) String() string {
	switch s {
	case Plain:
		return "plain"
	case SingleQuote:
		return "single-quote"
	case DoubleQuote:
		return "double-quote"
	case LineComment:
		return "line-comment"
	case BlockComment:
		return "block-comment"
	case DollarQuote:
		return "dollar-quote"
	default:
		return "unknown"
	}
}

// Scanner holds the state carried between transitions
type Scanner struct {
	state   State
	tag     string // active dollar-quote delimiter, e.g. "$fn$"
	depth   int    // block comment nesting
	escaped bool   // inside an E'...' string, where backslash escapes the next byte
}

// State returns the region the next byte will be read in
func (sc *Scanner) State() State {
	return sc.state
}

// Step consumes the token starting at src[i] and returns its length and the
// region that owns it. Opening and closing delimiters belong to the region
// they delimit, so only genuine code bytes are reported as Plain.
func (sc *Scanner) Step(src string, i int) (int, State) {
	c := src[i]
	rest := src[i:]

	switch sc.state {
	case Plain:
		switch {
		case strings.HasPrefix(rest, "--"):
			sc.state = LineComment
			return 2, LineComment
		case strings.HasPrefix(rest, "/*"):
			sc.state = BlockComment
			sc.depth = 1
			return 2, BlockComment
		case c == '\'':
			sc.state = SingleQuote
			sc.escaped = isEscapePrefix(src, i)
			return 1, SingleQuote
		case c == '"':
			sc.state = DoubleQuote
			return 1, DoubleQuote
		case c == '$':
			if tag := dollarTag(src, i); tag != "" {
				sc.state = DollarQuote
				sc.tag = tag
				return len(tag), DollarQuote
			}
		}
		return 1, Plain

	case SingleQuote:
		switch {
		case sc.escaped && c == '\\' && i+1 < len(src):
			return 2, SingleQuote
		case strings.HasPrefix(rest, "''"):
			return 2, SingleQuote
		case c == '\'':
			sc.state = Plain
			sc.escaped = false
		}
		return 1, SingleQuote

	case DoubleQuote:
		if strings.HasPrefix(rest, `""`) {
			return 2, DoubleQuote
		}
		if c == '"' {
			sc.state = Plain
		}
		return 1, DoubleQuote

	case LineComment:
		if c == '\n' {
			sc.state = Plain
		}
		return 1, LineComment

	case BlockComment:
		switch {
		case strings.HasPrefix(rest, "/*"):
			sc.depth++
			return 2, BlockComment
		case strings.HasPrefix(rest, "*/"):
			sc.depth--
			if sc.depth == 0 {
				sc.state = Plain
			}
			return 2, BlockComment
		}
		return 1, BlockComment

	case DollarQuote:
		if strings.HasPrefix(rest, sc.tag) {
			n := len(sc.tag)
			sc.state = Plain
			sc.tag = ""
			return n, DollarQuote
		}
		return 1, DollarQuote
	}
	return 1, sc.state
}

// Mask returns the owning region of every byte in src
func Mask(src string) []State {
	mask := make([]State, len(src))
	var sc Scanner
	for i := 0; i < len(src); {
		n, st := sc.Step(src, i)
		for k := i; k < i+n && k < len(src); k++ {
			mask[k] = st
		}
		i += n
	}
	return mask
}

// isEscapePrefix reports whether the quote at src[i] opens an E'...' string
func isEscapePrefix(src string, i int) bool {
	if i == 0 || (src[i-1] != 'E' && src[i-1] != 'e') {
		return false
	}
	return i < 2 || !IsIdentByte(src[i-2])
}

// dollarTag returns the $tag$ delimiter starting at src[i], or "".
// A '$' that continues an identifier or starts a positional parameter is not a tag.
func dollarTag(src string, i int) string {
	if i > 0 && IsIdentByte(src[i-1]) {
		return ""
	}
	j := i + 1
	for j < len(src) && src[j] != '$' {
		c := src[j]
		if !(c == '_' || isLetter(c) || (j > i+1 && isDigit(c))) {
			return ""
		}
		j++
	}
	if j >= len(src) {
		return ""
	}
	return src[i : j+1]
}

// IsIdentByte reports whether c can appear in an unquoted identifier
func IsIdentByte(c byte) bool {
	return c == '_' || isLetter(c) || isDigit(c) || c >= 0x80
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
