package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpert/powder/db"
	"github.com/maxpert/powder/protocol/ast"
)

func encodeOne(t *testing.T, decl string, v any) string {
	t.Helper()
	d := MapColumn("C", ParseNativeType(decl))
	s, err := encodeValue(&d, v)
	require.NoError(t, err)
	return s
}

func TestEncodeValue(t *testing.T) {
	ts := time.Date(2024, 3, 5, 10, 30, 15, 123000000, time.UTC)

	tests := []struct {
		name string
		decl string
		in   any
		want string
	}{
		{"bool true", "BOOLEAN", true, "1"},
		{"bool from int", "BOOLEAN", int64(0), "0"},
		{"bool from text", "BOOLEAN", "yes", "1"},
		{"int", "INT", int64(42), "42"},
		{"fixed rounds", "NUMBER(10,2)", "12.3456", "12.35"},
		{"fixed pads", "NUMBER(10,2)", int64(3), "3.00"},
		{"fixed from float", "NUMBER(10,1)", 2.25, "2.3"},
		{"real", "FLOAT", 2.0, "2"},
		{"real fraction", "FLOAT", 0.5, "0.5"},
		{"real from int", "DOUBLE", int64(7), "7"},
		{"text", "VARCHAR", "hello", "hello"},
		{"text from int", "VARCHAR", int64(5), "5"},
		{"date", "DATE", "1970-01-11", "10"},
		{"date from time", "DATE", ts, "19787"},
		{"time", "TIME", "01:00:02.5", "3602.500000000"},
		{"timestamp ntz", "TIMESTAMP_NTZ", ts, "1709634615.123000000"},
		{"timestamp ltz", "TIMESTAMP_LTZ", ts, "1709634615.123000000"},
		{"timestamp tz", "TIMESTAMP_TZ", ts, "1709634615.123000000 1440"},
		{"binary", "BINARY", []byte{0xde, 0xad}, "dead"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, encodeOne(t, tt.decl, tt.in))
		})
	}
}

func TestEncodeValueErrors(t *testing.T) {
	d := MapColumn("C", ParseNativeType("NUMBER(10,0)"))
	_, err := encodeValue(&d, "abc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Numeric value 'abc' is not recognized")

	d = MapColumn("C", ParseNativeType("BOOLEAN"))
	_, err = encodeValue(&d, "maybe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Boolean value 'maybe' is not recognized")
}

func TestEncodeRowsKeepsNull(t *testing.T) {
	desc := []ColumnDescriptor{
		MapColumn("A", ParseNativeType("INT")),
		MapColumn("B", ParseNativeType("VARCHAR")),
	}
	out, err := encodeRows(desc, [][]any{{int64(1), nil}, {nil, "x"}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "1", *out[0][0])
	assert.Nil(t, out[0][1])
	assert.Nil(t, out[1][0])
	assert.Equal(t, "x", *out[1][1])
}

func TestDescribeColumnsPrecedence(t *testing.T) {
	cols := []db.Column{
		{Name: "DECLARED", DeclType: "DECIMAL(10,2)"},
		{Name: "HINTED"},
		{Name: "DYNAMIC_INT"},
		{Name: "DYNAMIC_NULL"},
	}
	rows := [][]any{{"1.00", "x", nil, nil}, {"2.00", "y", int64(3), nil}}
	hints := map[string]*ast.TypeName{"HINTED": {Name: "BOOLEAN"}}

	desc := describeColumns(cols, rows, hints)
	require.Len(t, desc, 4)
	assert.Equal(t, TypeFixed, desc[0].Code)
	assert.Equal(t, int64(2), *desc[0].Scale)
	assert.Equal(t, TypeBoolean, desc[1].Code)
	assert.Equal(t, TypeFixed, desc[2].Code)
	assert.Equal(t, TypeText, desc[3].Code)
}
