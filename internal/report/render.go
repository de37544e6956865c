package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// OutputFormat represents report output format
type OutputFormat string

const (
	FormatText     OutputFormat = "text"
	FormatJSON     OutputFormat = "json"
	FormatMarkdown OutputFormat = "markdown"
)

// ParseFormat accepts text, json, markdown (or md)
func ParseFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown output format %q", s)
}

// Render writes any JSON-serializable result. Text and markdown render only
// the summary counts and errors.
func Render(w io.Writer, title string, s *Summary, format OutputFormat) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case FormatMarkdown:
		return renderMarkdown(w, title, s)
	default:
		return renderText(w, title, s)
	}
}

func renderText(w io.Writer, title string, s *Summary) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", title)
	if s == nil {
		sb.WriteString("  nothing restored\n")
		_, err := io.WriteString(w, sb.String())
		return err
	}
	fmt.Fprintf(&sb, "  Total:     %d\n", s.Total)
	fmt.Fprintf(&sb, "  Succeeded: %d\n", s.Succeeded)
	fmt.Fprintf(&sb, "  Skipped:   %d\n", s.Skipped)
	fmt.Fprintf(&sb, "  Failed:    %d\n", s.Failed)
	if s.AggressiveFallbacks > 0 {
		fmt.Fprintf(&sb, "  Aggressive array coercions: %d (check array values)\n", s.AggressiveFallbacks)
	}
	if len(s.FirstErrors) > 0 {
		sb.WriteString("  First errors:\n")
		for _, e := range s.FirstErrors {
			fmt.Fprintf(&sb, "    - %s\n", e)
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func renderMarkdown(w io.Writer, title string, s *Summary) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", title)
	if s == nil {
		sb.WriteString("_Nothing restored._\n")
		_, err := io.WriteString(w, sb.String())
		return err
	}
	sb.WriteString("| Total | Succeeded | Skipped | Failed |\n")
	sb.WriteString("|------:|----------:|--------:|-------:|\n")
	fmt.Fprintf(&sb, "| %d | %d | %d | %d |\n", s.Total, s.Succeeded, s.Skipped, s.Failed)
	if s.AggressiveFallbacks > 0 {
		fmt.Fprintf(&sb, "\n**%d** statement(s) needed aggressive array coercion.\n", s.AggressiveFallbacks)
	}
	if len(s.FirstErrors) > 0 {
		sb.WriteString("\n### First errors\n\n")
		for _, e := range s.FirstErrors {
			fmt.Fprintf(&sb, "- `%s`\n", strings.ReplaceAll(e, "`", "'"))
		}
	}
	_, err := io.WriteString(w, sb.String())
	return err
}
