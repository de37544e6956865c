package ndjson

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbrestore/internal/errors"
	"dbrestore/internal/fs"
)

func TestManifestValidate(t *testing.T) {
	tests := []struct {
		name    string
		m       Manifest
		wantErr string
	}{
		{
			name: "valid",
			m: Manifest{Format: "ndjson", Tables: []TableDescriptor{
				{Name: "users", DataFile: "users.ndjson"},
				{Name: "public.posts", DataFile: "data/posts.ndjson.gz"},
			}},
		},
		{name: "no tables", m: Manifest{Format: "ndjson"}},
		{name: "wrong format", m: Manifest{Format: "sql"}, wantErr: "unsupported manifest format"},
		{
			name:    "empty table name",
			m:       Manifest{Format: "ndjson", Tables: []TableDescriptor{{Name: " ", DataFile: "a.ndjson"}}},
			wantErr: "has no name",
		},
		{
			name: "duplicate table",
			m: Manifest{Format: "ndjson", Tables: []TableDescriptor{
				{Name: "users", DataFile: "a.ndjson"},
				{Name: "users", DataFile: "b.ndjson"},
			}},
			wantErr: "listed twice",
		},
		{
			name:    "escaping data file",
			m:       Manifest{Format: "ndjson", Tables: []TableDescriptor{{Name: "users", DataFile: "../../etc/passwd"}}},
			wantErr: "escapes",
		},
		{
			name:    "missing data file",
			m:       Manifest{Format: "ndjson", Tables: []TableDescriptor{{Name: "users"}}},
			wantErr: "empty path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate("/backup")
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestVersionAcceptsStringAndNumber(t *testing.T) {
	var m Manifest
	require.NoError(t, json.Unmarshal([]byte(`{"format":"ndjson","version":3}`), &m))
	assert.Equal(t, Version("3"), m.Version)

	require.NoError(t, json.Unmarshal([]byte(`{"format":"ndjson","version":"1.2"}`), &m))
	assert.Equal(t, Version("1.2"), m.Version)

	assert.Error(t, json.Unmarshal([]byte(`{"version":{}}`), &m))
}

func TestReadManifest(t *testing.T) {
	memFs := fs.SetupTestDir(map[string]string{
		"/good/manifest.json": usersManifest,
		"/bad/manifest.json":  `{"format":`,
		"/legacy/dump.sql":    "SELECT 1;",
	})

	m, err := ReadManifest(memFs, "/legacy")
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = ReadManifest(memFs, "/bad")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidBackup, errors.GetCode(err))

	m, err = LoadManifest(memFs, "/good")
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, m.TableNames())
	assert.Equal(t, int64(3), m.Tables[0].Rows)
	assert.Equal(t, 2, m.Tables[0].Columns)

	_, err = LoadManifest(memFs, "/legacy")
	assert.Equal(t, errors.ErrCodeInvalidBackup, errors.GetCode(err))
}
