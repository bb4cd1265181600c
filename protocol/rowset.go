package protocol

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/maxpert/powder/db"
	"github.com/maxpert/powder/protocol/ast"
)

// describeColumns builds the rowtype of a result. A column's declared type
// wins; computed columns fall back to the pipeline's hint and then to the
// dynamic type of their first non-null value.
func describeColumns(cols []db.Column, rows [][]any, hints map[string]*ast.TypeName) []ColumnDescriptor {
	out := make([]ColumnDescriptor, len(cols))
	for i, c := range cols {
		var nt NativeType
		switch {
		case c.DeclType != "":
			nt = ParseNativeType(c.DeclType)
		case hints[c.Name] != nil:
			nt = nativeFromHint(hints[c.Name])
		default:
			nt = dynamicType(rows, i)
		}
		out[i] = MapColumn(c.Name, nt)
	}
	return out
}

func dynamicType(rows [][]any, col int) NativeType {
	for _, row := range rows {
		switch row[col].(type) {
		case nil:
			continue
		case bool:
			return NativeType{Name: "BOOLEAN"}
		case int64:
			return NativeType{Name: "NUMBER", Args: []int{maxPrecision, 0}}
		case float64:
			return NativeType{Name: "FLOAT"}
		case []byte:
			return NativeType{Name: "BINARY"}
		case time.Time:
			return NativeType{Name: "TIMESTAMP_NTZ"}
		default:
			return NativeType{Name: "VARCHAR"}
		}
	}
	return NativeType{Name: "VARCHAR"}
}

// encodeRows renders every value as the string drivers parse for its
// column type. NULL stays nil.
func encodeRows(desc []ColumnDescriptor, rows [][]any) ([][]*string, error) {
	out := make([][]*string, len(rows))
	for r, row := range rows {
		enc := make([]*string, len(row))
		for c, v := range row {
			if v == nil {
				continue
			}
			s, err := encodeValue(&desc[c], v)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", desc[c].Name, err)
			}
			enc[c] = &s
		}
		out[r] = enc
	}
	return out, nil
}

func encodeValue(d *ColumnDescriptor, v any) (string, error) {
	switch d.Code {
	case TypeBoolean:
		b, err := toBool(v)
		if err != nil {
			return "", err
		}
		if b {
			return "1", nil
		}
		return "0", nil
	case TypeFixed:
		return encodeFixed(v, d.ScaleOf())
	case TypeReal:
		return encodeReal(v)
	case TypeDate:
		t, err := toTime(v)
		if err != nil {
			return "", err
		}
		days := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix() / 86400
		return strconv.FormatInt(days, 10), nil
	case TypeTime:
		t, err := toTimeOfDay(v)
		if err != nil {
			return "", err
		}
		secs := t.Hour()*3600 + t.Minute()*60 + t.Second()
		return fmt.Sprintf("%d.%09d", secs, t.Nanosecond()), nil
	case TypeTimestampNTZ, TypeTimestamp:
		t, err := toTime(v)
		if err != nil {
			return "", err
		}
		wall := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
		return epochSeconds(wall), nil
	case TypeTimestampLTZ:
		t, err := toTime(v)
		if err != nil {
			return "", err
		}
		return epochSeconds(t), nil
	case TypeTimestampTZ:
		t, err := toTime(v)
		if err != nil {
			return "", err
		}
		_, offset := t.Zone()
		return epochSeconds(t) + " " + strconv.Itoa(offset/60+1440), nil
	case TypeBinary:
		switch x := v.(type) {
		case []byte:
			return hex.EncodeToString(x), nil
		case string:
			return hex.EncodeToString([]byte(x)), nil
		}
		return "", fmt.Errorf("cannot render %T as binary", v)
	}
	return toText(v), nil
}

func toText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatReal(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format("2006-01-02 15:04:05.999999999")
	}
	return fmt.Sprint(v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	case float64:
		return x != 0, nil
	case string:
		return parseBoolText(x)
	case []byte:
		return parseBoolText(string(x))
	}
	return false, fmt.Errorf("cannot render %T as boolean", v)
}

func parseBoolText(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "on", "1":
		return true, nil
	case "false", "f", "no", "n", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("Boolean value '%s' is not recognized", s)
}

func encodeFixed(v any, scale int) (string, error) {
	var d decimal.Decimal
	switch x := v.(type) {
	case int64:
		if scale == 0 {
			return strconv.FormatInt(x, 10), nil
		}
		d = decimal.NewFromInt(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return formatReal(x), nil
		}
		d = decimal.NewFromFloat(x)
	case bool:
		if x {
			d = decimal.NewFromInt(1)
		}
	case string, []byte:
		var err error
		d, err = decimal.NewFromString(strings.TrimSpace(toText(x)))
		if err != nil {
			return "", fmt.Errorf("Numeric value '%s' is not recognized", toText(x))
		}
	default:
		return "", fmt.Errorf("cannot render %T as fixed", v)
	}
	return d.StringFixed(int32(scale)), nil
}

func encodeReal(v any) (string, error) {
	switch x := v.(type) {
	case float64:
		return formatReal(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case string, []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(toText(x)), 64)
		if err != nil {
			return "", fmt.Errorf("Numeric value '%s' is not recognized", toText(x))
		}
		return formatReal(f), nil
	}
	return "", fmt.Errorf("cannot render %T as real", v)
}

func formatReal(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func toTime(v any) (time.Time, error) {
	t, null, err := db.ParseTime(v)
	if err != nil {
		return time.Time{}, err
	}
	if null {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	return t, nil
}

var timeOfDayLayouts = []string{"15:04:05.999999999", "15:04:05", "15:04"}

func toTimeOfDay(v any) (time.Time, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		for _, layout := range timeOfDayLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
	}
	return toTime(v)
}

// epochSeconds renders t as seconds since the epoch with nine fraction
// digits.
func epochSeconds(t time.Time) string {
	secs := decimal.NewFromInt(t.Unix()).Add(decimal.New(int64(t.Nanosecond()), -9))
	return secs.StringFixed(9)
}
