package literal

import (
	"encoding/json"
	"math"
	"testing"

	"dbrestore/internal/schema"

	"github.com/stretchr/testify/assert"
)

func typ(dataType, udtName string) *schema.ColumnType {
	ct := schema.Resolve("c", dataType, udtName)
	return &ct
}

func TestEncodeUntyped(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"null", nil, "NULL"},
		{"true", true, "TRUE"},
		{"false", false, "FALSE"},
		{"json number", json.Number("12.5"), "12.5"},
		{"big integer keeps precision", json.Number("9007199254740993"), "9007199254740993"},
		{"hex json number rendered in decimal", json.Number("0x1p-2"), "0.25"},
		{"non-finite json number is quoted", json.Number("Inf"), "'Inf'"},
		{"float", 3.25, "3.25"},
		{"infinity", math.Inf(1), "NULL"},
		{"nan", math.NaN(), "NULL"},
		{"string", "it's", "'it''s'"},
		{"nul byte dropped", "a\x00b", "'ab'"},
		{"object", map[string]any{"k": "v'"}, `'{"k":"v''"}'::jsonb`},
		{"array", []any{json.Number("1"), "x"}, `'[1,"x"]'::jsonb`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.in, nil))
		})
	}
}

func TestEncodeScalarTypes(t *testing.T) {
	tests := []struct {
		name string
		in   any
		t    *schema.ColumnType
		want string
	}{
		{"integer", json.Number("42"), typ("integer", "int4"), "42"},
		{"integer from exponent", json.Number("1e3"), typ("integer", "int4"), "1000"},
		{"integer rejects fraction", json.Number("1.5"), typ("integer", "int4"), "NULL"},
		{"integer from string", "17", typ("bigint", "int8"), "17"},
		{"integer from garbage", "abc", typ("bigint", "int8"), "NULL"},
		{"numeric", json.Number("-0.25"), typ("numeric", "numeric"), "-0.25"},
		{"numeric from string", " 2.5 ", typ("numeric", "numeric"), "2.5"},
		{"numeric rejects nan string", "NaN", typ("double precision", "float8"), "NULL"},
		{"numeric rejects infinity string", "Inf", typ("numeric", "numeric"), "NULL"},
		{"numeric hex float rendered in decimal", "0x1p-2", typ("numeric", "numeric"), "0.25"},
		{"numeric hex json number rendered in decimal", json.Number("0x1p-2"), typ("real", "float4"), "0.25"},
		{"numeric underscores rendered in decimal", "0x1_0p0", typ("numeric", "numeric"), "16"},
		{"numeric exponent kept", json.Number("1.5E+10"), typ("numeric", "numeric"), "1.5E+10"},
		{"boolean", true, typ("boolean", "bool"), "TRUE"},
		{"boolean from string", "f", typ("boolean", "bool"), "FALSE"},
		{"boolean from number", json.Number("1"), typ("boolean", "bool"), "TRUE"},
		{"boolean from garbage", "maybe", typ("boolean", "bool"), "NULL"},
		{"uuid", "7d444840-9dc0-11d1-b245-5ffdce74fad2", typ("uuid", "uuid"), "'7d444840-9dc0-11d1-b245-5ffdce74fad2'"},
		{"timestamp", "2024-01-02T03:04:05Z", typ("timestamp with time zone", "timestamptz"), "'2024-01-02T03:04:05Z'"},
		{"text from number", json.Number("7"), typ("text", "text"), "'7'"},
		{"text from object", map[string]any{"a": true}, typ("text", "text"), `'{"a":true}'`},
		{"jsonb object", map[string]any{"a": json.Number("1")}, typ("jsonb", "jsonb"), `'{"a":1}'::jsonb`},
		{"jsonb array", []any{"x"}, typ("jsonb", "jsonb"), `'["x"]'::jsonb`},
		{"jsonb string", "plain", typ("jsonb", "jsonb"), `'"plain"'::jsonb`},
		{"jsonb null", nil, typ("jsonb", "jsonb"), "NULL"},
		{"unserializable jsonb", map[string]any{"f": math.Inf(1)}, typ("jsonb", "jsonb"), "'{}'::jsonb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.in, tt.t))
		})
	}
}

func TestEncodeArrays(t *testing.T) {
	tests := []struct {
		name string
		in   any
		t    *schema.ColumnType
		want string
	}{
		{"integers", []any{json.Number("1"), json.Number("2")}, typ("ARRAY", "_int4"), "'{1,2}'::integer[]"},
		{"integer with bad element", []any{json.Number("1"), "x"}, typ("ARRAY", "_int4"), "'{1,NULL}'::integer[]"},
		{"booleans", []any{true, false, nil}, typ("ARRAY", "_bool"), "'{true,false,NULL}'::boolean[]"},
		{"text escaping", []any{`a"b`, `c\d`, "it's", "x,y"}, typ("ARRAY", "_text"), `'{"a\"b","c\\d","it''s","x,y"}'::text[]`},
		{"jsonb elements", []any{map[string]any{"k": "v"}}, typ("ARRAY", "_jsonb"), `'{"{\"k\":\"v\"}"}'::jsonb[]`},
		{"nested", []any{[]any{json.Number("1")}, []any{json.Number("2")}}, typ("ARRAY", "_int4"), "'{{1},{2}}'::integer[]"},
		{"empty", []any{}, typ("ARRAY", "_text"), "'{}'::text[]"},
		{"scalar wrapped", "solo", typ("ARRAY", "_text"), `'{"solo"}'::text[]`},
		{"literal string passthrough", "{a,b}", typ("ARRAY", "_text"), "'{a,b}'::text[]"},
		{"unknown element type", []any{"p"}, typ("ARRAY", "_geometry"), `'{"p"}'::text[]`},
		{"null", nil, typ("ARRAY", "_text"), "NULL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.in, tt.t))
		})
	}
}

func TestEncodeNeverPanics(t *testing.T) {
	weird := []any{
		make(chan int),
		struct{ A func() }{},
		[]any{make(chan int)},
		map[string]any{"c": make(chan int)},
	}
	types := []*schema.ColumnType{nil, typ("jsonb", "jsonb"), typ("ARRAY", "_jsonb"), typ("text", "text")}

	for _, v := range weird {
		for _, ct := range types {
			assert.NotPanics(t, func() { _ = Encode(v, ct) })
		}
	}
	assert.Equal(t, "'[]'::jsonb", Encode([]any{make(chan int)}, nil))
}
