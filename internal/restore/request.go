package restore

import (
	"fmt"

	"dbrestore/internal/errors"
	"dbrestore/internal/staging"
)

// DatabaseTarget names the database a restore writes to
type DatabaseTarget string

const (
	TargetLocal   DatabaseTarget = "local"
	TargetManaged DatabaseTarget = "managed"
	TargetProd    DatabaseTarget = "prod"
)

// Mode selects append or overwrite semantics
type Mode string

const (
	ModeAppend    Mode = "append"
	ModeOverwrite Mode = "overwrite"
)

// Request describes one restore
type Request struct {
	Source staging.SourceKind `json:"source"`
	Target DatabaseTarget     `json:"target"`
	Mode   Mode               `json:"mode"`

	// Path is the extracted directory for uploads, or the backup name
	// under BACKUP_DIR for history and incremental restores
	Path string `json:"path"`
}

// Validate checks the request fields, defaulting Mode to append
func (r *Request) Validate() error {
	if _, err := staging.ParseSourceKind(string(r.Source)); err != nil {
		return err
	}
	switch r.Target {
	case TargetLocal, TargetManaged, TargetProd:
	default:
		return invalid(fmt.Sprintf("unknown database target %q", r.Target), "Use one of: local, managed, prod")
	}
	switch r.Mode {
	case "":
		r.Mode = ModeAppend
	case ModeAppend, ModeOverwrite:
	default:
		return invalid(fmt.Sprintf("unknown mode %q", r.Mode), "Use append or overwrite")
	}
	if r.Path == "" {
		return invalid("a backup path is required", "Pass --dir for uploads or --backup for history restores")
	}
	return nil
}

// effectiveMode is the database mode actually applied. Incremental restores
// only add what is missing, so they never truncate.
func (r Request) effectiveMode() Mode {
	if r.Source == staging.SourceIncremental {
		return ModeAppend
	}
	return r.Mode
}

func invalid(msg, remediation string) error {
	return errors.NewConfigError(errors.ErrCodeInvalidRequest, msg, remediation)
}
