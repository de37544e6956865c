package restore

import (
	"github.com/spf13/afero"

	"dbrestore/internal/fs"
	"dbrestore/internal/ndjson"
)

// Format is the database dump format found in a backup
type Format string

const (
	FormatNDJSON Format = "ndjson"
	FormatSQL    Format = "sql"
	FormatNone   Format = ""
)

// Detection is what DetectFormat found
type Detection struct {
	Format   Format
	Manifest *ndjson.Manifest // set for FormatNDJSON
	SQLFile  string           // set for FormatSQL
}

// DetectFormat picks the restore path for dir: a manifest.json whose format
// is ndjson selects the NDJSON engine; otherwise the first *.sql file found
// recursively, in lexical order, is restored as a legacy script.
func DetectFormat(fsys afero.Fs, dir string) (*Detection, error) {
	m, err := ndjson.ReadManifest(fsys, dir)
	if err != nil {
		return nil, err
	}
	if m != nil && m.Format == ndjson.Format {
		if err := m.Validate(dir); err != nil {
			return nil, err
		}
		return &Detection{Format: FormatNDJSON, Manifest: m}, nil
	}

	sqlFile, err := fs.FindFirst(fsys, dir, "*.sql")
	if err != nil {
		return nil, err
	}
	if sqlFile != "" {
		return &Detection{Format: FormatSQL, SQLFile: sqlFile}, nil
	}
	return &Detection{Format: FormatNone}, nil
}
