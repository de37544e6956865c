package sqlscan

import (
	"reflect"
	"testing"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "semicolon inside string",
			script: "INSERT INTO t VALUES ('a;b');",
			want:   []string{"INSERT INTO t VALUES ('a;b')"},
		},
		{
			name:   "doubled quote does not end string",
			script: "INSERT INTO t VALUES ('it''s; fine'); SELECT 1;",
			want:   []string{"INSERT INTO t VALUES ('it''s; fine')", "SELECT 1"},
		},
		{
			name:   "escape string with backslash quote",
			script: `INSERT INTO t VALUES (E'a\';b'); SELECT 2`,
			want:   []string{`INSERT INTO t VALUES (E'a\';b')`, "SELECT 2"},
		},
		{
			name:   "backslash in standard string is literal",
			script: `SELECT 'C:\'; SELECT 3;`,
			want:   []string{`SELECT 'C:\'`, "SELECT 3"},
		},
		{
			name:   "dollar quoted function body",
			script: "CREATE FUNCTION f() RETURNS int AS $body$ BEGIN RETURN 1; END; $body$ LANGUAGE plpgsql; SELECT f();",
			want: []string{
				"CREATE FUNCTION f() RETURNS int AS $body$ BEGIN RETURN 1; END; $body$ LANGUAGE plpgsql",
				"SELECT f()",
			},
		},
		{
			name:   "anonymous dollar quote",
			script: "DO $$ BEGIN PERFORM 1; END $$;",
			want:   []string{"DO $$ BEGIN PERFORM 1; END $$"},
		},
		{
			name:   "line comment hides semicolon",
			script: "SELECT 1 -- trailing; comment\n; SELECT 2;",
			want:   []string{"SELECT 1 -- trailing; comment", "SELECT 2"},
		},
		{
			name:   "nested block comment",
			script: "SELECT /* outer /* inner; */ still; */ 1; SELECT 2;",
			want:   []string{"SELECT /* outer /* inner; */ still; */ 1", "SELECT 2"},
		},
		{
			name:   "quoted identifier with semicolon",
			script: `CREATE TABLE "odd;name" (id int);`,
			want:   []string{`CREATE TABLE "odd;name" (id int)`},
		},
		{
			name:   "positional parameter is not a dollar quote",
			script: "PREPARE p AS SELECT $1; EXECUTE p(1);",
			want:   []string{"PREPARE p AS SELECT $1", "EXECUTE p(1)"},
		},
		{
			name:   "empty statements dropped",
			script: " ;; \n SELECT 1 ;\n\n;",
			want:   []string{"SELECT 1"},
		},
		{
			name:   "no trailing semicolon",
			script: "SELECT 1; SELECT 2",
			want:   []string{"SELECT 1", "SELECT 2"},
		},
		{
			name:   "empty script",
			script: "",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Split(tt.script); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split() =\n%q\nwant\n%q", got, tt.want)
			}
		})
	}
}

func TestIsEmptyStatement(t *testing.T) {
	tests := []struct {
		stmt string
		want bool
	}{
		{"", true},
		{"   \n\t", true},
		{"-- only a comment", true},
		{"/* block */ -- and line", true},
		{"SELECT 1", false},
		{"-- comment\nSELECT 1", false},
		{"''", false},
	}
	for _, tt := range tests {
		if got := IsEmptyStatement(tt.stmt); got != tt.want {
			t.Errorf("IsEmptyStatement(%q) = %v, want %v", tt.stmt, got, tt.want)
		}
	}
}

func TestLeadingWords(t *testing.T) {
	tests := []struct {
		stmt string
		n    int
		want []string
	}{
		{"commit", 2, []string{"COMMIT"}},
		{"-- end of block\n  Rollback to savepoint a", 3, []string{"ROLLBACK", "TO", "SAVEPOINT"}},
		{"/* x */start\ttransaction;", 2, []string{"START", "TRANSACTION"}},
		{"INSERT INTO t VALUES ('begin')", 5, []string{"INSERT", "INTO", "T", "VALUES", "("}},
		{"SELECT 'a b c'", 3, []string{"SELECT"}},
		{"-- only a comment", 2, nil},
	}
	for _, tt := range tests {
		got := LeadingWords(tt.stmt, tt.n)
		if len(got) != len(tt.want) {
			t.Errorf("LeadingWords(%q) = %q, want %q", tt.stmt, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("LeadingWords(%q) = %q, want %q", tt.stmt, got, tt.want)
				break
			}
		}
	}
}

func TestKeywordAt(t *testing.T) {
	src := "select array[1], my_array[2], ARRAY"
	if !KeywordAt(src, 7, "ARRAY") {
		t.Error("expected keyword at 7")
	}
	if KeywordAt(src, 20, "ARRAY") {
		t.Error("identifier suffix must not match")
	}
	if !KeywordAt(src, len(src)-5, "array") {
		t.Error("keyword at end of input should match")
	}
}

func TestSpaceHelpers(t *testing.T) {
	src := "a  \n b"
	if got := SkipSpace(src, 1); got != 5 {
		t.Errorf("SkipSpace = %d, want 5", got)
	}
	if got := PrevNonSpace(src, 5); got != 0 {
		t.Errorf("PrevNonSpace = %d, want 0", got)
	}
	if got := PrevNonSpace("   ", 3); got != -1 {
		t.Errorf("PrevNonSpace on blanks = %d, want -1", got)
	}
}
