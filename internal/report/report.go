// Package report holds the per-run restore summary returned to callers
package report

import (
	"fmt"
)

// DefaultMaxErrors bounds the FirstErrors list
const DefaultMaxErrors = 10

// Status is the outcome of one statement or table
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Outcome is the result of executing one unit (a statement or a table)
type Outcome struct {
	Index  int    `json:"index"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`

	// Aggressive is set when the unit only succeeded after the last-resort
	// array coercion, which may have split elements containing commas
	Aggressive bool `json:"aggressive,omitempty"`
}

// Summary aggregates outcomes. Succeeded+Skipped+Failed always equals Total.
// It is built and returned per run and never persisted.
type Summary struct {
	Total               int      `json:"total"`
	Succeeded           int      `json:"succeeded"`
	Skipped             int      `json:"skipped"`
	Failed              int      `json:"failed"`
	FirstErrors         []string `json:"first_errors"`
	AggressiveFallbacks int      `json:"aggressive_fallbacks"`

	maxErrors int
}

// NewSummary creates an empty summary keeping at most maxErrors messages
func NewSummary(maxErrors int) *Summary {
	if maxErrors <= 0 {
		maxErrors = DefaultMaxErrors
	}
	return &Summary{FirstErrors: make([]string, 0), maxErrors: maxErrors}
}

// Record counts one outcome
func (s *Summary) Record(o Outcome) {
	s.Total++
	switch o.Status {
	case StatusSucceeded:
		s.Succeeded++
	case StatusSkipped:
		s.Skipped++
	default:
		s.Failed++
		if o.Error != "" {
			s.AddError(fmt.Sprintf("#%d: %s", o.Index, o.Error))
		}
	}
	if o.Aggressive {
		s.AggressiveFallbacks++
	}
}

// AddError appends a message unless the list is full. It does not change counts.
func (s *Summary) AddError(msg string) {
	limit := s.maxErrors
	if limit <= 0 {
		limit = DefaultMaxErrors
	}
	if len(s.FirstErrors) < limit {
		s.FirstErrors = append(s.FirstErrors, msg)
	}
}

// Merge adds the counts and errors of other into s
func (s *Summary) Merge(other *Summary) {
	if other == nil {
		return
	}
	s.Total += other.Total
	s.Succeeded += other.Succeeded
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.AggressiveFallbacks += other.AggressiveFallbacks
	for _, msg := range other.FirstErrors {
		s.AddError(msg)
	}
}

// Valid reports whether the counts add up
func (s *Summary) Valid() bool {
	return s.Succeeded+s.Skipped+s.Failed == s.Total
}

// HasFailures reports whether any unit failed
func (s *Summary) HasFailures() bool {
	return s.Failed > 0
}

func (s *Summary) String() string {
	return fmt.Sprintf("total=%d succeeded=%d skipped=%d failed=%d", s.Total, s.Succeeded, s.Skipped, s.Failed)
}
