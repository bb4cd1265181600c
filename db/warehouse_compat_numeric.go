package db

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Conversion error texts, matched by the error mapper.
const (
	numericNotRecognized = "Numeric value '%s' is not recognized"
	numericOutOfRange    = "Numeric value '%s' is out of range"
)

const maxPrecision = 38

// RegisterWarehouseNumericFuncs registers numeric conversion, arithmetic and
// hash functions
func RegisterWarehouseNumericFuncs(conn *sqlite3.SQLiteConn) error {
	return registerFuncs(conn, []compatFunc{
		{"to_decimal", toDecimal, true},
		{"try_to_decimal", tryToDecimal, true},
		{"to_double", toDouble, true},
		{"try_to_double", tryToDouble, true},
		{"div0", div0, true},
		{"sign", warehouseSign, true},
		{"trunc", warehouseTrunc, true},
		{"log", warehouseLog, true},
		{"pow", warehousePow, true},
		{"power", warehousePow, true},
		{"square", warehouseSquare, true},
		{"md5", warehouseMD5, true},
		{"sha1", warehouseSHA1, true},
		{"sha2", warehouseSHA2, true},
	})
}

func toDecimal(args ...interface{}) (interface{}, error) {
	return convertDecimal(false, args)
}

func tryToDecimal(args ...interface{}) (interface{}, error) {
	return convertDecimal(true, args)
}

// convertDecimal implements TO_DECIMAL(expr [, format] [, precision [, scale]]).
// Values are rounded half away from zero to scale. Integral results come
// back as INTEGER, the rest as REAL.
func convertDecimal(try bool, args []interface{}) (interface{}, error) {
	if len(args) == 0 {
		return nil, errors.New("to_decimal requires at least one argument")
	}
	if args[0] == nil {
		return nil, nil
	}

	prec, scale, err := precisionScale(args[1:])
	if err != nil {
		return nil, err
	}

	d, err := decimalValue(args[0])
	if err != nil {
		if try {
			return nil, nil
		}
		return nil, err
	}

	d = d.Round(int32(scale))
	if integerDigits(d) > prec-scale {
		if try {
			return nil, nil
		}
		text, _ := toText(args[0])
		return nil, fmt.Errorf(numericOutOfRange, text)
	}

	if scale == 0 {
		return d.IntPart(), nil
	}
	f, _ := d.Float64()
	return f, nil
}

func precisionScale(args []interface{}) (int, int, error) {
	// A leading format string is accepted and ignored.
	if len(args) > 0 {
		if _, ok := args[0].(string); ok {
			args = args[1:]
		}
	}

	prec, scale := maxPrecision, 0
	if len(args) > 0 {
		p, ok := toInt64(args[0])
		if !ok || p < 1 || p > maxPrecision {
			return 0, 0, fmt.Errorf("invalid precision %v", args[0])
		}
		prec = int(p)
	}
	if len(args) > 1 {
		s, ok := toInt64(args[1])
		if !ok || s < 0 || int(s) > prec {
			return 0, 0, fmt.Errorf("invalid scale %v", args[1])
		}
		scale = int(s)
	}
	return prec, scale, nil
}

func decimalValue(v interface{}) (decimal.Decimal, error) {
	switch val := v.(type) {
	case int64:
		return decimal.NewFromInt(val), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Decimal{}, fmt.Errorf(numericNotRecognized, formatFloat(val))
		}
		return decimal.NewFromFloat(val), nil
	case bool:
		if val {
			return decimal.NewFromInt(1), nil
		}
		return decimal.Zero, nil
	}

	text, _ := toText(v)
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf(numericNotRecognized, text)
	}
	return d, nil
}

func integerDigits(d decimal.Decimal) int {
	whole := d.Abs().Truncate(0)
	if whole.IsZero() {
		return 0
	}
	return len(whole.String())
}

func toDouble(v interface{}) (interface{}, error) {
	return convertDouble(false, v)
}

func tryToDouble(v interface{}) (interface{}, error) {
	return convertDouble(true, v)
}

func convertDouble(try bool, v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case float64:
		return val, nil
	case int64:
		return float64(val), nil
	}

	text, _ := toText(v)
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		if try {
			return nil, nil
		}
		return nil, fmt.Errorf(numericNotRecognized, text)
	}
	return f, nil
}

// div0 divides, returning 0 when the divisor is 0
func div0(a, b interface{}) interface{} {
	if a == nil || b == nil {
		return nil
	}
	divisor := toFloat64(b)
	if divisor == 0 {
		return int64(0)
	}
	return toFloat64(a) / divisor
}

func warehouseSign(x interface{}) interface{} {
	if x == nil {
		return nil
	}
	f := toFloat64(x)
	switch {
	case f > 0:
		return int64(1)
	case f < 0:
		return int64(-1)
	}
	return int64(0)
}

// warehouseTrunc implements TRUNC(x [, scale]) for numbers
func warehouseTrunc(x interface{}, scale ...interface{}) interface{} {
	if x == nil {
		return nil
	}
	var s int64
	if len(scale) > 0 {
		s, _ = toInt64(scale[0])
	}
	if i, ok := x.(int64); ok && s >= 0 {
		return i
	}
	pow := math.Pow(10, float64(s))
	return math.Trunc(toFloat64(x)*pow) / pow
}

// warehouseLog implements LOG(base, x)
func warehouseLog(base, x interface{}) interface{} {
	if base == nil || x == nil {
		return nil
	}
	b, v := toFloat64(base), toFloat64(x)
	if b <= 0 || b == 1 || v <= 0 {
		return nil
	}
	return math.Log(v) / math.Log(b)
}

func warehousePow(xVal, yVal interface{}) interface{} {
	if xVal == nil || yVal == nil {
		return nil
	}
	return math.Pow(toFloat64(xVal), toFloat64(yVal))
}

func warehouseSquare(x interface{}) interface{} {
	if x == nil {
		return nil
	}
	if i, ok := x.(int64); ok {
		return i * i
	}
	f := toFloat64(x)
	return f * f
}

func warehouseMD5(s string) string {
	hash := md5.Sum([]byte(s))
	return hex.EncodeToString(hash[:])
}

func warehouseSHA1(s string) string {
	hash := sha1.Sum([]byte(s))
	return hex.EncodeToString(hash[:])
}

// warehouseSHA2 implements SHA2(s [, bits]); bits defaults to 256
func warehouseSHA2(s string, bits ...interface{}) interface{} {
	n := int64(256)
	if len(bits) > 0 {
		n, _ = toInt64(bits[0])
	}
	switch n {
	case 224:
		hash := sha256.Sum224([]byte(s))
		return hex.EncodeToString(hash[:])
	case 256:
		hash := sha256.Sum256([]byte(s))
		return hex.EncodeToString(hash[:])
	case 384:
		hash := sha512.Sum384([]byte(s))
		return hex.EncodeToString(hash[:])
	case 512:
		hash := sha512.Sum512([]byte(s))
		return hex.EncodeToString(hash[:])
	default:
		return nil
	}
}

// formatFloat renders a REAL the way the warehouse displays it: plain
// digits in the everyday range, exponent notation outside it.
func formatFloat(f float64) string {
	abs := math.Abs(f)
	if abs == 0 || (abs >= 1e-4 && abs < 1e15) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
