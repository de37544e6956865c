package errors

import (
	"errors"
	"strings"
)

// StatementClass is the outcome class of a failed SQL statement
type StatementClass int

const (
	// ClassNone means no error
	ClassNone StatementClass = iota
	// ClassRecoverable covers already-exists, does-not-exist and duplicate-key errors; skipped silently
	ClassRecoverable
	// ClassInvalidJSON is retried once after converting bare objects to jsonb
	ClassInvalidJSON
	// ClassSyntax is handled by the repair-and-retry ladder
	ClassSyntax
	// ClassOther is counted as failed
	ClassOther
)

func (c StatementClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassRecoverable:
		return "recoverable"
	case ClassInvalidJSON:
		return "invalid_json"
	case ClassSyntax:
		return "syntax"
	default:
		return "other"
	}
}

// sqlStater is implemented by *pgconn.PgError and by managed RPC errors
type sqlStater interface {
	SQLState() string
}

var recoverableStates = map[string]bool{
	"42P07": true, // duplicate_table
	"42710": true, // duplicate_object
	"42701": true, // duplicate_column
	"42P06": true, // duplicate_schema
	"42723": true, // duplicate_function
	"23505": true, // unique_violation
	"42P01": true, // undefined_table
	"42703": true, // undefined_column
	"42883": true, // undefined_function
	"42704": true, // undefined_object
	"3F000": true, // invalid_schema_name
}

// ClassifySQL maps a statement execution error onto the restore taxonomy.
// SQLSTATE codes win when present; message patterns cover errors that
// arrive as plain text from the managed RPC backend.
func ClassifySQL(err error) StatementClass {
	if err == nil {
		return ClassNone
	}

	msg := strings.ToLower(err.Error())
	code := ""
	var stater sqlStater
	if errors.As(err, &stater) {
		code = stater.SQLState()
	}

	switch {
	case recoverableStates[code]:
		return ClassRecoverable
	case isJSONMessage(msg):
		return ClassInvalidJSON
	case code == "42601", code == "22P02" && strings.Contains(msg, "array"):
		return ClassSyntax
	}

	switch {
	case strings.Contains(msg, "already exists"),
		strings.Contains(msg, "does not exist"),
		strings.Contains(msg, "duplicate key"):
		return ClassRecoverable
	case strings.Contains(msg, "syntax error"),
		strings.Contains(msg, "malformed array literal"),
		strings.Contains(msg, "unterminated quoted"):
		return ClassSyntax
	}
	return ClassOther
}

func isJSONMessage(msg string) bool {
	return strings.Contains(msg, "invalid input syntax for type json") ||
		strings.Contains(msg, "invalid json")
}
