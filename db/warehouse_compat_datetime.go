package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

const (
	warehouseDateLayout      = "2006-01-02"
	warehouseTimeLayout      = "15:04:05"
	warehouseTimestampLayout = "2006-01-02 15:04:05.999999999"
)

// RegisterWarehouseDateTimeFuncs registers date part and conversion functions
func RegisterWarehouseDateTimeFuncs(conn *sqlite3.SQLiteConn) error {
	return registerFuncs(conn, []compatFunc{
		{"year", datePart(func(t time.Time) int64 { return int64(t.Year()) }), true},
		{"month", datePart(func(t time.Time) int64 { return int64(t.Month()) }), true},
		{"day", datePart(func(t time.Time) int64 { return int64(t.Day()) }), true},
		{"dayofmonth", datePart(func(t time.Time) int64 { return int64(t.Day()) }), true},
		{"hour", datePart(func(t time.Time) int64 { return int64(t.Hour()) }), true},
		{"minute", datePart(func(t time.Time) int64 { return int64(t.Minute()) }), true},
		{"second", datePart(func(t time.Time) int64 { return int64(t.Second()) }), true},
		// 0=Sunday ... 6=Saturday
		{"dayofweek", datePart(func(t time.Time) int64 { return int64(t.Weekday()) }), true},
		// 1=Monday ... 7=Sunday
		{"dayofweekiso", datePart(isoWeekday), true},
		{"dayofyear", datePart(func(t time.Time) int64 { return int64(t.YearDay()) }), true},
		{"weekofyear", datePart(isoWeek), true},
		{"week", datePart(isoWeek), true},
		{"quarter", datePart(func(t time.Time) int64 { return int64((t.Month()-1)/3 + 1) }), true},
		{"last_day", lastDay, true},
		{"to_date", toDate, true},
		{"to_timestamp", toTimestamp, true},
		{"to_timestamp_ntz", toTimestamp, true},
		{"date_from_parts", dateFromParts, true},
	})
}

// ParseTime parses an engine value holding a date, time or timestamp. The
// bool result is true for NULL.
func ParseTime(value any) (time.Time, bool, error) {
	return parseDateTime(value)
}

// parseDateTime attempts to parse a date/time value in multiple formats
func parseDateTime(value interface{}) (time.Time, bool, error) {
	var str string
	switch v := value.(type) {
	case nil:
		return time.Time{}, true, nil
	case time.Time:
		return v, false, nil
	case int64:
		return time.Unix(v, 0).UTC(), false, nil
	case float64:
		sec := int64(v)
		return time.Unix(sec, int64((v-float64(sec))*1e9)).UTC(), false, nil
	case string:
		str = v
	case []byte:
		str = string(v)
	default:
		return time.Time{}, false, fmt.Errorf("invalid date type: %T", value)
	}

	str = strings.TrimSpace(str)
	if str == "" {
		return time.Time{}, true, nil
	}

	layouts := []string{
		warehouseTimestampLayout,
		warehouseDateLayout,
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999 -0700",
	}

	var lastErr error
	for _, layout := range layouts {
		if t, err := time.Parse(layout, str); err == nil {
			return t, false, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, false, fmt.Errorf("Timestamp '%s' is not recognized: %w", str, lastErr)
}

// datePart builds a NULL-propagating extractor
func datePart(part func(time.Time) int64) func(interface{}) (interface{}, error) {
	return func(value interface{}) (interface{}, error) {
		t, isNull, err := parseDateTime(value)
		if err != nil {
			return nil, err
		}
		if isNull {
			return nil, nil
		}
		return part(t), nil
	}
}

func isoWeekday(t time.Time) int64 {
	wd := int64(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func isoWeek(t time.Time) int64 {
	_, week := t.ISOWeek()
	return int64(week)
}

// lastDay returns the last day of the month for a given date
func lastDay(value interface{}) (interface{}, error) {
	t, isNull, err := parseDateTime(value)
	if err != nil || isNull {
		return nil, err
	}

	firstOfNextMonth := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	return firstOfNextMonth.AddDate(0, 0, -1).Format(warehouseDateLayout), nil
}

// toDate implements TO_DATE(expr [, format]); formats are ignored
func toDate(value interface{}, _ ...interface{}) (interface{}, error) {
	t, isNull, err := parseDateTime(value)
	if err != nil || isNull {
		return nil, err
	}
	return t.Format(warehouseDateLayout), nil
}

// toTimestamp implements TO_TIMESTAMP(expr [, format]); formats are ignored
func toTimestamp(value interface{}, _ ...interface{}) (interface{}, error) {
	t, isNull, err := parseDateTime(value)
	if err != nil || isNull {
		return nil, err
	}
	return t.Format(warehouseTimestampLayout), nil
}

func dateFromParts(year, month, day interface{}) interface{} {
	y, ok1 := toInt64(year)
	m, ok2 := toInt64(month)
	d, ok3 := toInt64(day)
	if !ok1 || !ok2 || !ok3 {
		return nil
	}
	return time.Date(int(y), time.Month(m), int(d), 0, 0, 0, 0, time.UTC).Format(warehouseDateLayout)
}
