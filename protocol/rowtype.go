package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/maxpert/powder/protocol/ast"
)

// TypeCode is the numeric column type drivers key their converters on.
type TypeCode int

const (
	TypeFixed        TypeCode = 0
	TypeReal         TypeCode = 1
	TypeText         TypeCode = 2
	TypeDate         TypeCode = 3
	TypeTimestamp    TypeCode = 4
	TypeVariant      TypeCode = 5
	TypeTimestampLTZ TypeCode = 6
	TypeTimestampTZ  TypeCode = 7
	TypeTimestampNTZ TypeCode = 8
	TypeObject       TypeCode = 9
	TypeArray        TypeCode = 10
	TypeBinary       TypeCode = 11
	TypeTime         TypeCode = 12
	TypeBoolean      TypeCode = 13
)

var typeWireNames = map[TypeCode]string{
	TypeFixed:        "fixed",
	TypeReal:         "real",
	TypeText:         "text",
	TypeDate:         "date",
	TypeTimestamp:    "timestamp",
	TypeVariant:      "variant",
	TypeTimestampLTZ: "timestamp_ltz",
	TypeTimestampTZ:  "timestamp_tz",
	TypeTimestampNTZ: "timestamp_ntz",
	TypeObject:       "object",
	TypeArray:        "array",
	TypeBinary:       "binary",
	TypeTime:         "time",
	TypeBoolean:      "boolean",
}

// String returns the rowtype wire name.
func (c TypeCode) String() string {
	if name, ok := typeWireNames[c]; ok {
		return name
	}
	return "text"
}

const (
	textLength   int64 = 16777216
	binaryLength int64 = 8388608
	maxPrecision       = 38
	timeScale          = 9
)

var nativeCodes = map[string]TypeCode{
	"BOOLEAN": TypeBoolean, "BOOL": TypeBoolean,

	"INT": TypeFixed, "INTEGER": TypeFixed, "BIGINT": TypeFixed, "SMALLINT": TypeFixed,
	"TINYINT": TypeFixed, "BYTEINT": TypeFixed,
	"NUMBER": TypeFixed, "DECIMAL": TypeFixed, "NUMERIC": TypeFixed, "DEC": TypeFixed,

	"FLOAT": TypeReal, "FLOAT4": TypeReal, "FLOAT8": TypeReal, "DOUBLE": TypeReal,
	"DOUBLE PRECISION": TypeReal, "REAL": TypeReal,

	"VARCHAR": TypeText, "CHAR": TypeText, "CHARACTER": TypeText, "STRING": TypeText,
	"TEXT": TypeText, "NCHAR": TypeText, "NVARCHAR": TypeText,

	"DATE":          TypeDate,
	"TIME":          TypeTime,
	"TIMESTAMP":     TypeTimestampNTZ,
	"TIMESTAMP_NTZ": TypeTimestampNTZ,
	"DATETIME":      TypeTimestampNTZ,
	"TIMESTAMP_LTZ": TypeTimestampLTZ,
	"TIMESTAMP_TZ":  TypeTimestampTZ,

	"BINARY": TypeBinary, "VARBINARY": TypeBinary, "BLOB": TypeBinary,

	"VARIANT": TypeVariant,
	"OBJECT":  TypeObject,
	"ARRAY":   TypeArray,
}

// NativeType is a declared engine column type such as DECIMAL(10,2).
type NativeType struct {
	Name string
	Args []int
}

// ParseNativeType parses a declared type. Names are case-insensitive and
// unparseable arguments are dropped; an empty declaration yields an empty
// Name, which maps to text.
func ParseNativeType(decl string) NativeType {
	decl = strings.ToUpper(strings.TrimSpace(decl))
	name, rest, hasArgs := strings.Cut(decl, "(")
	nt := NativeType{Name: strings.Join(strings.Fields(name), " ")}
	if !hasArgs {
		return nt
	}
	rest, _, _ = strings.Cut(rest, ")")
	for _, a := range strings.Split(rest, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			break
		}
		nt.Args = append(nt.Args, n)
	}
	return nt
}

func nativeFromHint(t *ast.TypeName) NativeType {
	return ParseNativeType(t.String())
}

// Code returns the wire type of t. Unknown names are text.
func (t NativeType) Code() TypeCode {
	if code, ok := nativeCodes[t.Name]; ok {
		return code
	}
	return TypeText
}

// PrecisionScale returns the fixed-point precision and scale of t.
func (t NativeType) PrecisionScale() (int, int) {
	switch t.Name {
	case "NUMBER", "DECIMAL", "NUMERIC", "DEC":
	default:
		return maxPrecision, 0
	}
	prec, scale := maxPrecision, 0
	if len(t.Args) > 0 {
		prec = t.Args[0]
	}
	if len(t.Args) > 1 {
		scale = t.Args[1]
	}
	return prec, scale
}

// ColumnDescriptor is one rowtype entry. Pointer fields are null on the wire
// when they do not apply to the type.
type ColumnDescriptor struct {
	Name       string  `json:"name"`
	Database   string  `json:"database"`
	Schema     string  `json:"schema"`
	Table      string  `json:"table"`
	Type       string  `json:"type"`
	Length     *int64  `json:"length"`
	ByteLength *int64  `json:"byteLength"`
	Precision  *int64  `json:"precision"`
	Scale      *int64  `json:"scale"`
	Nullable   bool    `json:"nullable"`
	Collation  *string `json:"collation"`

	Code TypeCode `json:"-"`
}

func int64Ptr(v int64) *int64 { return &v }

// MapColumn describes a result column of native type t.
func MapColumn(name string, t NativeType) ColumnDescriptor {
	code := t.Code()
	d := ColumnDescriptor{
		Name:     name,
		Type:     code.String(),
		Code:     code,
		Nullable: true,
	}
	switch code {
	case TypeFixed:
		prec, scale := t.PrecisionScale()
		d.Precision = int64Ptr(int64(prec))
		d.Scale = int64Ptr(int64(scale))
	case TypeText, TypeVariant, TypeObject, TypeArray:
		d.Length = int64Ptr(textLength)
		d.ByteLength = int64Ptr(textLength)
	case TypeBinary:
		d.Length = int64Ptr(binaryLength)
		d.ByteLength = int64Ptr(binaryLength)
	case TypeTime, TypeTimestampNTZ, TypeTimestampLTZ, TypeTimestampTZ:
		d.Precision = int64Ptr(0)
		d.Scale = int64Ptr(timeScale)
	}
	return d
}

// ScaleOf returns the fractional digits a fixed column is rendered with.
func (d *ColumnDescriptor) ScaleOf() int {
	if d.Scale == nil {
		return 0
	}
	return int(*d.Scale)
}

// CanonicalTypeName renders t the way DESCRIBE TABLE reports it.
func CanonicalTypeName(t NativeType) string {
	switch t.Code() {
	case TypeFixed:
		prec, scale := t.PrecisionScale()
		return fmt.Sprintf("NUMBER(%d,%d)", prec, scale)
	case TypeReal:
		return "FLOAT"
	case TypeText:
		length := textLength
		if len(t.Args) > 0 && t.Name != "STRING" && t.Name != "TEXT" {
			length = int64(t.Args[0])
		}
		return fmt.Sprintf("VARCHAR(%d)", length)
	case TypeBinary:
		return fmt.Sprintf("BINARY(%d)", binaryLength)
	case TypeTime:
		return "TIME(9)"
	case TypeTimestampNTZ:
		return "TIMESTAMP_NTZ(9)"
	case TypeTimestampLTZ:
		return "TIMESTAMP_LTZ(9)"
	case TypeTimestampTZ:
		return "TIMESTAMP_TZ(9)"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeDate:
		return "DATE"
	case TypeVariant:
		return "VARIANT"
	case TypeObject:
		return "OBJECT"
	case TypeArray:
		return "ARRAY"
	}
	return "VARCHAR(16777216)"
}
