// Package ndjson restores manifest-driven logical backups: a schema script
// followed by one newline-delimited JSON file of row objects per table.
package ndjson

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"dbrestore/internal/errors"
	"dbrestore/internal/fs"
)

const (
	// Format is the manifest format value that selects this engine
	Format = "ndjson"

	ManifestFile = "manifest.json"
	SchemaFile   = "schema.clean.sql"
)

// Version accepts both "1.0" and 1 in manifests
type Version string

// UnmarshalJSON implements json.Unmarshaler
func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Version(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("version must be a string or number: %w", err)
	}
	*v = Version(n.String())
	return nil
}

// TableDescriptor names one table and its data file
type TableDescriptor struct {
	Name     string `json:"name"`
	DataFile string `json:"data_file"`
	Rows     int64  `json:"rows"`
	Columns  int    `json:"columns"`
}

// Manifest describes an NDJSON backup. Tables are restored in manifest order.
type Manifest struct {
	Format  string            `json:"format"`
	Version Version           `json:"version"`
	Tables  []TableDescriptor `json:"tables"`
}

// TableNames returns the table names in manifest order
func (m *Manifest) TableNames() []string {
	names := make([]string, len(m.Tables))
	for i, t := range m.Tables {
		names[i] = t.Name
	}
	return names
}

// Validate checks the manifest against the backup directory it came from
func (m *Manifest) Validate(dir string) error {
	if m.Format != Format {
		return fmt.Errorf("unsupported manifest format %q", m.Format)
	}
	seen := make(map[string]bool, len(m.Tables))
	for i, t := range m.Tables {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return fmt.Errorf("table %d has no name", i)
		}
		if seen[name] {
			return fmt.Errorf("table %s is listed twice", name)
		}
		seen[name] = true
		if _, err := fs.Resolve(dir, t.DataFile); err != nil {
			return fmt.Errorf("table %s: data file: %w", name, err)
		}
	}
	return nil
}

// ReadManifest loads manifest.json from dir. It reports (nil, nil) when the
// file does not exist.
func ReadManifest(fsys afero.Fs, dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	exists, err := afero.Exists(fsys, path)
	if err != nil {
		return nil, errors.FatalIO(path, err)
	}
	if !exists {
		return nil, nil
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.FatalIO(path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.InvalidBackup(dir, fmt.Sprintf("manifest.json is not valid JSON: %v", err))
	}
	return &m, nil
}

// LoadManifest reads and validates an NDJSON manifest
func LoadManifest(fsys afero.Fs, dir string) (*Manifest, error) {
	m, err := ReadManifest(fsys, dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.InvalidBackup(dir, "manifest.json not found")
	}
	if err := m.Validate(dir); err != nil {
		return nil, errors.InvalidBackup(dir, err.Error())
	}
	return m, nil
}
