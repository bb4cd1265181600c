package db

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mattn/go-sqlite3"
)

const booleanNotRecognized = "Boolean value '%s' is not recognized"

var regexpCache, _ = lru.New[string, *regexp.Regexp](256)

// RegisterWarehouseStringFuncs registers string, pattern and boolean functions
func RegisterWarehouseStringFuncs(conn *sqlite3.SQLiteConn) error {
	return registerFuncs(conn, []compatFunc{
		{"to_varchar", toVarchar, true},
		{"to_boolean", toBoolean, true},
		{"try_to_boolean", tryToBoolean, true},
		{"contains", warehouseContains, true},
		{"startswith", warehouseStartsWith, true},
		{"endswith", warehouseEndsWith, true},
		{"regexp_like", regexpLike, true},
		{"regexp", regexpOperator, true},
		{"split_part", splitPart, true},
		{"uuid_string", uuidString, false},
		{"left", warehouseLeft, true},
		{"right", warehouseRight, true},
		{"reverse", warehouseReverse, true},
		{"lpad", warehouseLPad, true},
		{"rpad", warehouseRPad, true},
		{"repeat", warehouseRepeat, true},
		{"initcap", warehouseInitcap, true},
	})
}

// toVarchar implements TO_VARCHAR(expr [, format]). Formats are accepted
// and ignored; binary renders as upper-case hex.
func toVarchar(v interface{}, _ ...interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return strings.ToUpper(fmt.Sprintf("%x", b))
	}
	s, ok := toText(v)
	if !ok {
		return nil
	}
	return s
}

func toBoolean(v interface{}) (interface{}, error) {
	return convertBoolean(false, v)
}

func tryToBoolean(v interface{}) (interface{}, error) {
	return convertBoolean(true, v)
}

// convertBoolean accepts the warehouse's boolean spellings and any number
// (non-zero is true). Results are 1/0 since SQLite has no boolean type.
func convertBoolean(try bool, v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return boolInt(val), nil
	case int64:
		return boolInt(val != 0), nil
	case float64:
		return boolInt(val != 0), nil
	}

	text, _ := toText(v)
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "true", "t", "yes", "y", "on", "1":
		return int64(1), nil
	case "false", "f", "no", "n", "off", "0":
		return int64(0), nil
	}
	if try {
		return nil, nil
	}
	return nil, fmt.Errorf(booleanNotRecognized, text)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func warehouseContains(a, b interface{}) interface{} {
	s, ok1 := toText(a)
	sub, ok2 := toText(b)
	if !ok1 || !ok2 {
		return nil
	}
	return strings.Contains(s, sub)
}

func warehouseStartsWith(a, b interface{}) interface{} {
	s, ok1 := toText(a)
	prefix, ok2 := toText(b)
	if !ok1 || !ok2 {
		return nil
	}
	return strings.HasPrefix(s, prefix)
}

func warehouseEndsWith(a, b interface{}) interface{} {
	s, ok1 := toText(a)
	suffix, ok2 := toText(b)
	if !ok1 || !ok2 {
		return nil
	}
	return strings.HasSuffix(s, suffix)
}

// regexpLike implements REGEXP_LIKE(subject, pattern [, parameters]). The
// pattern must match the whole subject.
func regexpLike(subject, pattern interface{}, params ...interface{}) (interface{}, error) {
	s, ok1 := toText(subject)
	p, ok2 := toText(pattern)
	if !ok1 || !ok2 {
		return nil, nil
	}

	flags := ""
	if len(params) > 0 {
		if ps, ok := toText(params[0]); ok {
			for _, c := range ps {
				switch c {
				case 'i', 'm', 's':
					if !strings.ContainsRune(flags, c) {
						flags += string(c)
					}
				case 'c':
					flags = strings.ReplaceAll(flags, "i", "")
				}
			}
		}
	}

	expr := "^(?:" + p + ")$"
	if flags != "" {
		expr = "(?" + flags + ")" + expr
	}

	re, ok := regexpCache.Get(expr)
	if !ok {
		var err error
		re, err = regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("Invalid regular expression: '%s', %v", p, err)
		}
		regexpCache.Add(expr, re)
	}
	return re.MatchString(s), nil
}

// regexpOperator backs SQLite's "subject REGEXP pattern", which calls
// regexp(pattern, subject).
func regexpOperator(pattern, subject interface{}) (interface{}, error) {
	return regexpLike(subject, pattern)
}

// splitPart implements SPLIT_PART(string, delimiter, part). Parts count
// from 1; negative parts count from the end; 0 is treated as 1.
func splitPart(str, delim, part interface{}) interface{} {
	s, ok1 := toText(str)
	d, ok2 := toText(delim)
	n, ok3 := toInt64(part)
	if !ok1 || !ok2 || !ok3 {
		return nil
	}

	var parts []string
	if d == "" {
		parts = []string{s}
	} else {
		parts = strings.Split(s, d)
	}

	if n == 0 {
		n = 1
	}
	if n < 0 {
		n = int64(len(parts)) + n + 1
	}
	if n < 1 || n > int64(len(parts)) {
		return ""
	}
	return parts[n-1]
}

// uuidString returns a random version 4 UUID
func uuidString() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16]), nil
}

func warehouseLeft(str interface{}, length interface{}) interface{} {
	s, ok := toText(str)
	l, ok2 := toInt64(length)
	if !ok || !ok2 {
		return nil
	}

	if l <= 0 {
		return ""
	}

	runes := []rune(s)
	if l >= int64(len(runes)) {
		return s
	}
	return string(runes[:l])
}

func warehouseRight(str interface{}, length interface{}) interface{} {
	s, ok := toText(str)
	l, ok2 := toInt64(length)
	if !ok || !ok2 {
		return nil
	}

	if l <= 0 {
		return ""
	}

	runes := []rune(s)
	if l >= int64(len(runes)) {
		return s
	}
	return string(runes[len(runes)-int(l):])
}

func warehouseReverse(str interface{}) interface{} {
	s, ok := toText(str)
	if !ok {
		return nil
	}

	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}

// padArgs resolves the shared LPAD/RPAD arguments. The pad defaults to a
// single space.
func padArgs(str, length interface{}, padStr []interface{}) ([]rune, int, []rune, bool) {
	s, ok := toText(str)
	l, ok2 := toInt64(length)
	if !ok || !ok2 {
		return nil, 0, nil, false
	}

	pad := " "
	if len(padStr) > 0 {
		p, ok := toText(padStr[0])
		if !ok {
			return nil, 0, nil, false
		}
		pad = p
	}
	if l < 0 {
		l = 0
	}
	return []rune(s), int(l), []rune(pad), true
}

func warehouseLPad(str interface{}, length interface{}, padStr ...interface{}) interface{} {
	runes, targetLen, padRunes, ok := padArgs(str, length, padStr)
	if !ok {
		return nil
	}

	if len(runes) >= targetLen {
		return string(runes[:targetLen])
	}
	if len(padRunes) == 0 {
		return string(runes)
	}

	neededPad := targetLen - len(runes)
	result := make([]rune, 0, targetLen)
	for len(result) < neededPad {
		for _, r := range padRunes {
			if len(result) >= neededPad {
				break
			}
			result = append(result, r)
		}
	}

	result = append(result, runes...)
	return string(result)
}

func warehouseRPad(str interface{}, length interface{}, padStr ...interface{}) interface{} {
	runes, targetLen, padRunes, ok := padArgs(str, length, padStr)
	if !ok {
		return nil
	}

	if len(runes) >= targetLen {
		return string(runes[:targetLen])
	}
	if len(padRunes) == 0 {
		return string(runes)
	}

	result := make([]rune, len(runes), targetLen)
	copy(result, runes)

	for len(result) < targetLen {
		for _, r := range padRunes {
			if len(result) >= targetLen {
				break
			}
			result = append(result, r)
		}
	}

	return string(result)
}

func warehouseRepeat(str interface{}, count interface{}) interface{} {
	s, ok := toText(str)
	c, ok2 := toInt64(count)
	if !ok || !ok2 {
		return nil
	}

	if c <= 0 {
		return ""
	}

	if c > 1000000 {
		return nil
	}

	return strings.Repeat(s, int(c))
}

// warehouseInitcap upper-cases the first letter of every word and
// lower-cases the rest
func warehouseInitcap(str interface{}) interface{} {
	s, ok := toText(str)
	if !ok {
		return nil
	}

	var b strings.Builder
	start := true
	for _, r := range s {
		lower := strings.ToLower(string(r))
		if start {
			b.WriteString(strings.ToUpper(lower))
		} else {
			b.WriteString(lower)
		}
		start = !isWordRune(r)
	}
	return b.String()
}

func isWordRune(r rune) bool {
	return r == '_' || r == '\'' || ('0' <= r && r <= '9') || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || r > 127
}
