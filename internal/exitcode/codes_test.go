package exitcode

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"dbrestore/internal/errors"
)

func TestExitWithCode_NilError(t *testing.T) {
	if code := ExitWithCode(nil); code != Success {
		t.Errorf("ExitWithCode(nil) = %d, want %d", code, Success)
	}
}

func TestExitWithCode_StructuredErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid request", errors.NewConfigError(errors.ErrCodeInvalidRequest, "bad target", ""), UsageError},
		{"database down", errors.DatabaseUnavailable("local", stderrors.New("connection refused")), Unavailable},
		{"disk full", errors.DiskFull("/tmp", 100, 10), CantCreate},
		{"invalid backup", errors.InvalidBackup("/b", "no manifest"), DataError},
		{"fatal io", errors.FatalIO("copy backup", stderrors.New("boom")), IOError},
		{"wrapped", fmt.Errorf("restore: %w", errors.InvalidBackup("/b", "x")), DataError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitWithCode(tt.err); got != tt.want {
				t.Errorf("ExitWithCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestExitWithCode_ContextErrors(t *testing.T) {
	if got := ExitWithCode(fmt.Errorf("stage: %w", context.Canceled)); got != Cancelled {
		t.Errorf("canceled = %d, want %d", got, Cancelled)
	}
	if got := ExitWithCode(context.DeadlineExceeded); got != Timeout {
		t.Errorf("deadline = %d, want %d", got, Timeout)
	}
}

func TestExitWithCode_MessagePatterns(t *testing.T) {
	tests := []struct {
		msg  string
		want int
	}{
		{"FATAL: password authentication failed for user", NoPerm},
		{"dial tcp: connection refused", Unavailable},
		{"open /x: no such file or directory", NoInput},
		{"write: no space left on device", IOError},
		{"request timed out", Timeout},
		{"something else", General},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := ExitWithCode(stderrors.New(tt.msg)); got != tt.want {
				t.Errorf("ExitWithCode(%q) = %d, want %d", tt.msg, got, tt.want)
			}
		})
	}
}
