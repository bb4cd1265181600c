package db

import (
	"database/sql"
	"regexp"
	"strings"
	"testing"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open(SQLiteDriverName, ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	// A single connection keeps :memory: state across statements
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

type compatCase struct {
	name     string
	query    string
	expected interface{}
}

func runCompatCases(t *testing.T, db *sql.DB, tests []compatCase) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result interface{}
			if err := db.QueryRow(tt.query).Scan(&result); err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if result != tt.expected {
				t.Errorf("%s: expected %v (%T), got %v (%T)", tt.query, tt.expected, tt.expected, result, result)
			}
		})
	}
}

func expectCompatError(t *testing.T, db *sql.DB, query, contains string) {
	t.Helper()
	var result interface{}
	err := db.QueryRow(query).Scan(&result)
	if err == nil {
		t.Fatalf("%s: expected error, got %v", query, result)
	}
	if !strings.Contains(err.Error(), contains) {
		t.Errorf("%s: expected error containing %q, got %v", query, contains, err)
	}
}

func TestToDecimal(t *testing.T) {
	db := setupTestDB(t)

	runCompatCases(t, db, []compatCase{
		{"round half up", "SELECT to_decimal('12.3456', 10, 2)", 12.35},
		{"integer scale", "SELECT to_decimal('12.5')", int64(13)},
		{"negative rounds away", "SELECT to_decimal('-12.5', 10, 0)", int64(-13)},
		{"from real", "SELECT to_decimal(3.14159, 5, 3)", 3.142},
		{"from integer", "SELECT to_decimal(42, 10, 2)", float64(42)},
		{"format ignored", "SELECT to_decimal('7.25', '99.99', 4, 1)", 7.3},
		{"null", "SELECT to_decimal(NULL, 10, 2)", nil},
		{"try invalid", "SELECT try_to_decimal('abc', 10, 2)", nil},
		{"try out of range", "SELECT try_to_decimal('1234', 3, 0)", nil},
		{"try valid", "SELECT try_to_decimal('99', 3, 0)", int64(99)},
	})

	expectCompatError(t, db, "SELECT to_decimal('abc', 10, 2)", "Numeric value 'abc' is not recognized")
	expectCompatError(t, db, "SELECT to_decimal('1234', 3, 0)", "Numeric value '1234' is out of range")
	expectCompatError(t, db, "SELECT to_decimal('1', 39, 0)", "invalid precision")
}

func TestToDoubleAndDiv0(t *testing.T) {
	db := setupTestDB(t)

	runCompatCases(t, db, []compatCase{
		{"text", "SELECT to_double('1.5')", 1.5},
		{"integer", "SELECT to_double(2)", float64(2)},
		{"try invalid", "SELECT try_to_double('x')", nil},
		{"div0 by zero", "SELECT div0(10, 0)", int64(0)},
		{"div0", "SELECT div0(10, 4)", 2.5},
		{"div0 null", "SELECT div0(NULL, 4)", nil},
		{"sign", "SELECT sign(-3.5)", int64(-1)},
		{"square", "SELECT square(7)", int64(49)},
		{"log base", "SELECT round(log(2, 8), 6)", float64(3)},
		{"sha2 default", "SELECT length(sha2('abc'))", int64(64)},
		{"md5", "SELECT md5('')", "d41d8cd98f00b204e9800998ecf8427e"},
	})

	expectCompatError(t, db, "SELECT to_double('nope')", "Numeric value 'nope' is not recognized")
}

func TestToBooleanAndVarchar(t *testing.T) {
	db := setupTestDB(t)

	runCompatCases(t, db, []compatCase{
		{"yes", "SELECT to_boolean('yes')", int64(1)},
		{"off", "SELECT to_boolean('OFF')", int64(0)},
		{"number", "SELECT to_boolean(5)", int64(1)},
		{"null", "SELECT to_boolean(NULL)", nil},
		{"try invalid", "SELECT try_to_boolean('maybe')", nil},
		{"varchar int", "SELECT to_varchar(42)", "42"},
		{"varchar real", "SELECT to_varchar(1.5)", "1.5"},
		{"varchar blob", "SELECT to_varchar(x'0aff')", "0AFF"},
		{"varchar null", "SELECT to_varchar(NULL)", nil},
	})

	expectCompatError(t, db, "SELECT to_boolean('maybe')", "Boolean value 'maybe' is not recognized")
}

func TestStringPredicates(t *testing.T) {
	db := setupTestDB(t)

	runCompatCases(t, db, []compatCase{
		{"contains", "SELECT contains('snowflake', 'flake')", int64(1)},
		{"contains miss", "SELECT contains('snowflake', 'rain')", int64(0)},
		{"contains null", "SELECT contains(NULL, 'x')", nil},
		{"startswith", "SELECT startswith('snowflake', 'snow')", int64(1)},
		{"endswith", "SELECT endswith('snowflake', 'snow')", int64(0)},
		{"regexp anchored", "SELECT regexp_like('abc123', '[a-z]+')", int64(0)},
		{"regexp whole", "SELECT regexp_like('abc123', '[a-z]+[0-9]+')", int64(1)},
		{"regexp insensitive", "SELECT regexp_like('ABC', 'abc', 'i')", int64(1)},
		{"regexp operator", "SELECT 'abc' REGEXP 'a.c'", int64(1)},
	})

	expectCompatError(t, db, "SELECT regexp_like('a', '(')", "Invalid regular expression")
}

func TestStringFunctions(t *testing.T) {
	db := setupTestDB(t)

	runCompatCases(t, db, []compatCase{
		{"split part", "SELECT split_part('a.b.c', '.', 2)", "b"},
		{"split part negative", "SELECT split_part('a.b.c', '.', -1)", "c"},
		{"split part zero", "SELECT split_part('a.b.c', '.', 0)", "a"},
		{"split part beyond", "SELECT split_part('a.b.c', '.', 5)", ""},
		{"split part empty delimiter", "SELECT split_part('abc', '', 1)", "abc"},
		{"left", "SELECT left('hello', 2)", "he"},
		{"right", "SELECT right('hello', 3)", "llo"},
		{"reverse", "SELECT reverse('abc')", "cba"},
		{"lpad default", "SELECT lpad('7', 3)", "  7"},
		{"lpad", "SELECT lpad('7', 3, '0')", "007"},
		{"rpad", "SELECT rpad('ab', 5, 'xy')", "abxyx"},
		{"rpad truncates", "SELECT rpad('abcdef', 3, 'x')", "abc"},
		{"repeat", "SELECT repeat('ab', 3)", "ababab"},
		{"initcap", "SELECT initcap('hello wORLD-foo')", "Hello World-Foo"},
	})
}

func TestUUIDString(t *testing.T) {
	db := setupTestDB(t)

	var a, b string
	if err := db.QueryRow("SELECT uuid_string(), uuid_string()").Scan(&a, &b); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	pattern := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	if !pattern.MatchString(a) {
		t.Errorf("Not a v4 UUID: %s", a)
	}
	if a == b {
		t.Error("Expected distinct UUIDs")
	}
}

func TestDateTimeFunctions(t *testing.T) {
	db := setupTestDB(t)

	runCompatCases(t, db, []compatCase{
		{"year", "SELECT year('2024-03-15 10:20:30')", int64(2024)},
		{"month", "SELECT month('2024-03-15')", int64(3)},
		{"day", "SELECT day('2024-03-15')", int64(15)},
		{"hour", "SELECT hour('2024-03-15 10:20:30')", int64(10)},
		{"minute", "SELECT minute('2024-03-15 10:20:30')", int64(20)},
		{"second", "SELECT second('2024-03-15 10:20:30')", int64(30)},
		{"dayofweek sunday", "SELECT dayofweek('2024-03-17')", int64(0)},
		{"dayofweekiso sunday", "SELECT dayofweekiso('2024-03-17')", int64(7)},
		{"dayofyear", "SELECT dayofyear('2024-02-01')", int64(32)},
		{"quarter", "SELECT quarter('2024-08-01')", int64(3)},
		{"weekofyear", "SELECT weekofyear('2024-01-01')", int64(1)},
		{"last day leap", "SELECT last_day('2024-02-10')", "2024-02-29"},
		{"to date", "SELECT to_date('2024-03-15 10:20:30')", "2024-03-15"},
		{"to timestamp", "SELECT to_timestamp('2024-03-15T10:20:30Z')", "2024-03-15 10:20:30"},
		{"date from parts", "SELECT date_from_parts(2024, 13, 1)", "2025-01-01"},
		{"null", "SELECT year(NULL)", nil},
	})

	expectCompatError(t, db, "SELECT year('not a date')", "is not recognized")
}
