package db

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// compatFunc is one SQLite function registration.
type compatFunc struct {
	name string
	impl interface{}
	pure bool
}

func registerFuncs(conn *sqlite3.SQLiteConn, funcs []compatFunc) error {
	for _, f := range funcs {
		if err := conn.RegisterFunc(f.name, f.impl, f.pure); err != nil {
			return fmt.Errorf("failed to register function %s: %w", f.name, err)
		}
	}
	return nil
}

// RegisterAllWarehouseFuncs registers the warehouse functions SQLite lacks.
// This is called from the SQLite driver's ConnectHook.
func RegisterAllWarehouseFuncs(conn *sqlite3.SQLiteConn) error {
	// Conversions and arithmetic (TO_DECIMAL, TO_DOUBLE, DIV0, ...)
	if err := RegisterWarehouseNumericFuncs(conn); err != nil {
		return err
	}

	// String and boolean functions (CONTAINS, SPLIT_PART, TO_BOOLEAN, ...)
	if err := RegisterWarehouseStringFuncs(conn); err != nil {
		return err
	}

	// Date part extraction (YEAR, DAYOFWEEK, LAST_DAY, ...)
	if err := RegisterWarehouseDateTimeFuncs(conn); err != nil {
		return err
	}

	return nil
}

// CanceledMessage is the error text of statements stopped by an abort.
const CanceledMessage = "SQL execution canceled"

// systemWait implements SYSTEM$WAIT(amount [, unit]). It returns early with
// an error when the statement running on the connection is canceled.
func systemWait(slot *interruptSlot) func(amount interface{}, unit ...interface{}) (string, error) {
	return func(amount interface{}, unit ...interface{}) (string, error) {
		n := toFloat64(amount)
		if n < 0 {
			return "", fmt.Errorf("Invalid argument for SYSTEM$WAIT: %v", amount)
		}

		u := "SECONDS"
		if len(unit) > 0 {
			if s, ok := unit[0].(string); ok {
				u = strings.ToUpper(strings.TrimSpace(s))
			}
		}

		var scale time.Duration
		switch u {
		case "SECONDS", "SECOND":
			scale = time.Second
		case "MILLISECONDS", "MILLISECOND":
			scale = time.Millisecond
		case "MICROSECONDS", "MICROSECOND":
			scale = time.Microsecond
		case "NANOSECONDS", "NANOSECOND":
			scale = time.Nanosecond
		case "MINUTES", "MINUTE":
			scale = time.Minute
		case "HOURS", "HOUR":
			scale = time.Hour
		default:
			return "", fmt.Errorf("Invalid time unit for SYSTEM$WAIT: %s", u)
		}

		timer := time.NewTimer(time.Duration(n * float64(scale)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-slot.get():
			return "", fmt.Errorf("%s", CanceledMessage)
		}
		return "waited " + strconv.FormatFloat(n, 'f', -1, 64) + " " + strings.ToLower(u), nil
	}
}

// toFloat64 converts interface{} to float64, handling both int64 and float64
func toFloat64(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int64:
		return float64(val)
	case int:
		return float64(val)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f
	default:
		return 0
	}
}

// toText renders a SQLite value as text, reporting false for NULL.
func toText(v interface{}) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case []byte:
		return string(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return formatFloat(val), true
	case bool:
		if val {
			return "true", true
		}
		return "false", true
	case time.Time:
		return val.Format(warehouseTimestampLayout), true
	default:
		return fmt.Sprint(val), true
	}
}

// toInt64 converts an integer argument, reporting false for NULL or
// non-numeric values.
func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case float64:
		return int64(val), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
