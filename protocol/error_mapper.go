package protocol

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/maxpert/powder/db"
	"github.com/maxpert/powder/protocol/ast"
	"github.com/maxpert/powder/protocol/query"
)

// ErrorKind classifies a failed request.
type ErrorKind int

const (
	KindEngine ErrorKind = iota
	KindSyntax
	KindObjectNotFound
	KindProtocol
	KindAborted
)

func (k ErrorKind) String() string {
	switch k {
	case KindSyntax:
		return "syntax"
	case KindObjectNotFound:
		return "object_not_found"
	case KindProtocol:
		return "protocol"
	case KindAborted:
		return "aborted"
	}
	return "engine"
}

// Warehouse error numbers and SQLSTATEs.
const (
	ErrnoStatementCount   = 8
	ErrnoInternal         = 603
	ErrnoCanceled         = 604
	ErrnoInvalidIdent     = 904
	ErrnoSyntax           = 1003
	ErrnoObjectExists     = 2002
	ErrnoObjectNotFound   = 2003
	ErrnoUseNotFound      = 2043
	ErrnoUnknownFunction  = 2140
	ErrnoNoCurrentDB      = 90105
	ErrnoTimestampFormat  = 100035
	ErrnoNumericFormat    = 100038
	ErrnoNumericRange     = 100039
	ErrnoInvalidRegexp    = 100048
	ErrnoNullConstraint   = 100072
	ErrnoBindingsMismatch = 100132

	SQLStateSyntax          = "42000"
	SQLStateNoSuchTable     = "42S02"
	SQLStateNoData          = "02000"
	SQLStateExists          = "42710"
	SQLStateUndefinedFunc   = "42601"
	SQLStateCanceled        = "57014"
	SQLStateFeature         = "0A000"
	SQLStateDataException   = "22000"
	SQLStateInvalidCast     = "22018"
	SQLStateNumericRange    = "22003"
	SQLStateDatetimeFormat  = "22007"
	SQLStateInvalidRegexp   = "2201B"
	SQLStateInternal        = "XX000"
	SQLStateInvalidBindings = "07001"
)

const compilationError = "SQL compilation error:\n"

// QueryError is the client-visible failure of a statement.
type QueryError struct {
	Kind     ErrorKind
	Errno    int
	SQLState string
	Message  string
	QueryID  string
	Line     int
	Pos      int
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%06d (%s): %s", e.Errno, e.SQLState, e.Message)
}

// Code is the zero padded errno sent as the response code.
func (e *QueryError) Code() string {
	return fmt.Sprintf("%06d", e.Errno)
}

// NameResolver recovers the client spelling of an engine object name.
type NameResolver interface {
	Resolve(engineName string) (string, bool)
}

func newQueryError(kind ErrorKind, errno int, state, msg string) *QueryError {
	return &QueryError{Kind: kind, Errno: errno, SQLState: state, Message: msg, Line: -1, Pos: -1}
}

func canceledError() *QueryError {
	return newQueryError(KindAborted, ErrnoCanceled, SQLStateCanceled, db.CanceledMessage)
}

func useNotFoundError() *QueryError {
	return newQueryError(KindObjectNotFound, ErrnoUseNotFound, SQLStateNoData,
		compilationError+"Object does not exist, or operation cannot be performed.")
}

func noCurrentDatabaseError(op string) *QueryError {
	return newQueryError(KindEngine, ErrnoNoCurrentDB, SQLStateDataException,
		fmt.Sprintf("Cannot perform %s. This session does not have a current database. Call 'USE DATABASE', or use a qualified name.", op))
}

func objectNotFoundError(name, state string) *QueryError {
	return newQueryError(KindObjectNotFound, ErrnoObjectNotFound, state,
		fmt.Sprintf(compilationError+"Object '%s' does not exist or not authorized.", name))
}

func objectExistsError(name string) *QueryError {
	return newQueryError(KindEngine, ErrnoObjectExists, SQLStateExists,
		fmt.Sprintf(compilationError+"Object '%s' already exists.", name))
}

func syntaxError(line, pos int, near string) *QueryError {
	if near == "" {
		near = "<EOF>"
	}
	e := newQueryError(KindSyntax, ErrnoSyntax, SQLStateSyntax,
		fmt.Sprintf(compilationError+"syntax error line %d at position %d unexpected '%s'.", line, pos, near))
	e.Line, e.Pos = line, pos
	return e
}

var (
	reNoSuchTable  = regexp.MustCompile(`no such (?:table|view): (?:main\.)?(.+)$`)
	reNoSuchColumn = regexp.MustCompile(`no such column: (.+)$`)
	reNoFunction   = regexp.MustCompile(`no such function: (.+)$`)
	reExists       = regexp.MustCompile(`(?:table|view|index) "?([^"\s]+)"? already exists`)
	reNear         = regexp.MustCompile(`near "([^"]*)": syntax error`)
)

// MapError converts any failure of a statement to a QueryError. names may
// be nil.
func MapError(err error, names NameResolver) *QueryError {
	if err == nil {
		return nil
	}

	var qe *QueryError
	if errors.As(err, &qe) {
		return qe
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return canceledError()
	}

	var pe *ProtocolError
	if errors.As(err, &pe) {
		return newQueryError(KindProtocol, 0, "", pe.Message)
	}

	var countErr *query.StatementCountError
	if errors.As(err, &countErr) {
		return newQueryError(KindEngine, ErrnoStatementCount, SQLStateFeature, countErr.Error())
	}

	var synErr *ast.SyntaxError
	if errors.As(err, &synErr) {
		return syntaxError(synErr.Line, synErr.Pos, synErr.Near)
	}

	var notFound *db.ObjectNotFoundError
	if errors.As(err, &notFound) {
		state := SQLStateNoSuchTable
		if notFound.Kind == db.KindDatabase || notFound.Kind == db.KindSchema {
			state = SQLStateNoData
		}
		return objectNotFoundError(notFound.Name, state)
	}

	var exists *db.ObjectExistsError
	if errors.As(err, &exists) {
		return objectExistsError(exists.Name)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrInterrupt {
			return canceledError()
		}
		if sqliteErr.ExtendedCode == sqlite3.ErrConstraintNotNull {
			return newQueryError(KindEngine, ErrnoNullConstraint, SQLStateDataException, "NULL result in a non-nullable column")
		}
	}

	return mapByMessage(err.Error(), names)
}

func mapByMessage(msg string, names NameResolver) *QueryError {
	if strings.Contains(msg, db.CanceledMessage) || strings.Contains(msg, "interrupted") {
		return canceledError()
	}
	if m := reNoSuchTable.FindStringSubmatch(msg); m != nil {
		return objectNotFoundError(clientName(m[1], names), SQLStateNoSuchTable)
	}
	if m := reNoSuchColumn.FindStringSubmatch(msg); m != nil {
		col := m[1]
		if i := strings.LastIndex(col, "."); i >= 0 {
			col = col[i+1:]
		}
		return newQueryError(KindEngine, ErrnoInvalidIdent, SQLStateSyntax,
			fmt.Sprintf("SQL compilation error: error line 0 at position -1\ninvalid identifier '%s'", strings.ToUpper(col)))
	}
	if m := reNoFunction.FindStringSubmatch(msg); m != nil {
		return newQueryError(KindEngine, ErrnoUnknownFunction, SQLStateUndefinedFunc,
			compilationError+"Unknown function "+strings.ToUpper(m[1]))
	}
	if m := reExists.FindStringSubmatch(msg); m != nil {
		return objectExistsError(clientName(m[1], names))
	}
	if m := reNear.FindStringSubmatch(msg); m != nil {
		return syntaxError(1, 0, m[1])
	}

	switch {
	case strings.Contains(msg, "NOT NULL constraint failed"):
		return newQueryError(KindEngine, ErrnoNullConstraint, SQLStateDataException, "NULL result in a non-nullable column")
	case strings.Contains(msg, "is out of range"):
		return newQueryError(KindEngine, ErrnoNumericRange, SQLStateNumericRange, compatMessage(msg, "Numeric value"))
	case strings.Contains(msg, "Numeric value") && strings.Contains(msg, "not recognized"):
		return newQueryError(KindEngine, ErrnoNumericFormat, SQLStateInvalidCast, compatMessage(msg, "Numeric value"))
	case strings.Contains(msg, "Boolean value") && strings.Contains(msg, "not recognized"):
		return newQueryError(KindEngine, ErrnoNumericFormat, SQLStateInvalidCast, compatMessage(msg, "Boolean value"))
	case strings.Contains(msg, "Timestamp") && strings.Contains(msg, "is not recognized"):
		return newQueryError(KindEngine, ErrnoTimestampFormat, SQLStateDatetimeFormat, compatMessage(msg, "Timestamp"))
	case strings.Contains(msg, "Invalid regular expression"):
		return newQueryError(KindEngine, ErrnoInvalidRegexp, SQLStateInvalidRegexp, compatMessage(msg, "Invalid regular expression"))
	}

	return newQueryError(KindEngine, ErrnoInternal, SQLStateInternal, msg)
}

// compatMessage strips driver prefixes in front of a compat function error.
func compatMessage(msg, start string) string {
	if i := strings.Index(msg, start); i > 0 {
		msg = msg[i:]
	}
	if i := strings.Index(msg, ": "); i > 0 && start == "Timestamp" {
		msg = msg[:i]
	}
	return msg
}

// clientName recovers the name a client wrote for an engine object, or
// upper-cases the engine's spelling.
func clientName(engineName string, names NameResolver) string {
	engineName = strings.Trim(engineName, `"`)
	if names != nil {
		if name, ok := names.Resolve(engineName); ok {
			return name
		}
	}
	return strings.ToUpper(engineName)
}
