// Package schema resolves the live column types of a table so row values can
// be encoded as correctly typed SQL literals.
package schema

import (
	"strings"
)

// ColumnType is the semantic type of one column
type ColumnType struct {
	Name     string
	BaseType string // element type for arrays
	IsArray  bool
	IsJSON   bool
}

// SQLType returns the type as used in a cast, e.g. "integer" or "text[]"
func (c ColumnType) SQLType() string {
	if c.IsArray {
		return c.BaseType + "[]"
	}
	return c.BaseType
}

// Columns maps column name to type
type Columns map[string]ColumnType

// Lookup returns the type of a column, or nil when it is unknown
func (c Columns) Lookup(name string) *ColumnType {
	if c == nil {
		return nil
	}
	if ct, ok := c[name]; ok {
		return &ct
	}
	return nil
}

// Element type codes reported in udt_name for array columns
var arrayElementTypes = map[string]string{
	"_int4":        "integer",
	"_int8":        "bigint",
	"_int2":        "smallint",
	"_text":        "text",
	"_varchar":     "text",
	"_bpchar":      "text",
	"_bool":        "boolean",
	"_uuid":        "uuid",
	"_numeric":     "numeric",
	"_float4":      "real",
	"_float8":      "double precision",
	"_timestamptz": "timestamptz",
	"_timestamp":   "timestamp",
	"_jsonb":       "jsonb",
	"_json":        "jsonb",
}

var scalarTypes = map[string]string{
	"text":                        "text",
	"character varying":           "text",
	"character":                   "text",
	"integer":                     "integer",
	"bigint":                      "bigint",
	"smallint":                    "smallint",
	"boolean":                     "boolean",
	"uuid":                        "uuid",
	"numeric":                     "numeric",
	"real":                        "real",
	"double precision":            "double precision",
	"timestamp with time zone":    "timestamptz",
	"timestamp without time zone": "timestamp",
	"jsonb":                       "jsonb",
	"json":                        "jsonb",
}

// Resolve maps an information_schema data_type/udt_name pair onto a ColumnType.
// Unknown array element types fall back to text; unknown scalars keep the
// reported data type.
func Resolve(name, dataType, udtName string) ColumnType {
	dataType = strings.ToLower(strings.TrimSpace(dataType))
	udtName = strings.ToLower(strings.TrimSpace(udtName))

	if dataType == "array" {
		base, ok := arrayElementTypes[udtName]
		if !ok {
			base = "text"
		}
		return ColumnType{Name: name, BaseType: base, IsArray: true, IsJSON: base == "jsonb"}
	}

	base, ok := scalarTypes[dataType]
	if !ok {
		base = dataType
	}
	return ColumnType{Name: name, BaseType: base, IsJSON: base == "jsonb"}
}

// QuoteIdent quotes an identifier for use in generated SQL
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteQualified quotes a possibly schema-qualified table name
func QuoteQualified(table string) string {
	schemaName, tableName := SplitQualified(table)
	if schemaName == "" {
		return QuoteIdent(tableName)
	}
	return QuoteIdent(schemaName) + "." + QuoteIdent(tableName)
}

// SplitQualified splits "schema.table"; the schema is empty when absent
func SplitQualified(table string) (string, string) {
	if i := strings.IndexByte(table, '.'); i > 0 && i < len(table)-1 {
		return table[:i], table[i+1:]
	}
	return "", table
}
