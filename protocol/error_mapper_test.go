package protocol

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpert/powder/db"
	"github.com/maxpert/powder/protocol/ast"
	"github.com/maxpert/powder/protocol/query"
)

type mapResolver map[string]string

func (m mapResolver) Resolve(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

func TestMapErrorNil(t *testing.T) {
	assert.Nil(t, MapError(nil, nil))
}

func TestMapErrorPassthrough(t *testing.T) {
	original := objectExistsError("T")
	assert.Same(t, original, MapError(fmt.Errorf("wrapped: %w", original), nil))
}

func TestMapErrorTyped(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantErrno int
		wantState string
		wantKind  ErrorKind
	}{
		{
			name:      "context canceled",
			err:       context.Canceled,
			wantErrno: ErrnoCanceled,
			wantState: SQLStateCanceled,
			wantKind:  KindAborted,
		},
		{
			name:      "statement count",
			err:       &query.StatementCountError{Count: 2},
			wantErrno: ErrnoStatementCount,
			wantState: SQLStateFeature,
			wantKind:  KindEngine,
		},
		{
			name:      "syntax",
			err:       &ast.SyntaxError{Line: 1, Pos: 7, Near: "FORM"},
			wantErrno: ErrnoSyntax,
			wantState: SQLStateSyntax,
			wantKind:  KindSyntax,
		},
		{
			name:      "missing table",
			err:       &db.ObjectNotFoundError{Kind: db.KindTable, Name: "DB.S.T"},
			wantErrno: ErrnoObjectNotFound,
			wantState: SQLStateNoSuchTable,
			wantKind:  KindObjectNotFound,
		},
		{
			name:      "missing schema",
			err:       &db.ObjectNotFoundError{Kind: db.KindSchema, Name: "DB.S"},
			wantErrno: ErrnoObjectNotFound,
			wantState: SQLStateNoData,
			wantKind:  KindObjectNotFound,
		},
		{
			name:      "already exists",
			err:       &db.ObjectExistsError{Kind: db.KindDatabase, Name: "DB"},
			wantErrno: ErrnoObjectExists,
			wantState: SQLStateExists,
			wantKind:  KindEngine,
		},
		{
			name:      "interrupt",
			err:       sqlite3.Error{Code: sqlite3.ErrInterrupt},
			wantErrno: ErrnoCanceled,
			wantState: SQLStateCanceled,
			wantKind:  KindAborted,
		},
		{
			name:      "not null",
			err:       sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull},
			wantErrno: ErrnoNullConstraint,
			wantState: SQLStateDataException,
			wantKind:  KindEngine,
		},
		{
			name:      "protocol",
			err:       ErrSessionBusy,
			wantErrno: 0,
			wantState: "",
			wantKind:  KindProtocol,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qe := MapError(tt.err, nil)
			require.NotNil(t, qe)
			assert.Equal(t, tt.wantErrno, qe.Errno)
			assert.Equal(t, tt.wantState, qe.SQLState)
			assert.Equal(t, tt.wantKind, qe.Kind)
		})
	}
}

func TestMapErrorSyntaxPosition(t *testing.T) {
	qe := MapError(&ast.SyntaxError{Line: 2, Pos: 4}, nil)
	assert.Equal(t, 2, qe.Line)
	assert.Equal(t, 4, qe.Pos)
	assert.Contains(t, qe.Message, "syntax error line 2 at position 4 unexpected '<EOF>'.")
	assert.Equal(t, "001003", qe.Code())
}

func TestMapErrorMessages(t *testing.T) {
	names := mapResolver{"DB1_SCHEMA1.MISSING": "db1.schema1.missing"}

	tests := []struct {
		name        string
		msg         string
		wantErrno   int
		wantState   string
		wantMessage string
	}{
		{
			name:        "no such table resolved",
			msg:         `no such table: DB1_SCHEMA1.MISSING`,
			wantErrno:   ErrnoObjectNotFound,
			wantState:   SQLStateNoSuchTable,
			wantMessage: "Object 'db1.schema1.missing' does not exist or not authorized.",
		},
		{
			name:        "no such table unresolved",
			msg:         `no such table: main.other`,
			wantErrno:   ErrnoObjectNotFound,
			wantState:   SQLStateNoSuchTable,
			wantMessage: "Object 'OTHER' does not exist or not authorized.",
		},
		{
			name:        "no such column",
			msg:         `no such column: T.nope`,
			wantErrno:   ErrnoInvalidIdent,
			wantState:   SQLStateSyntax,
			wantMessage: "invalid identifier 'NOPE'",
		},
		{
			name:        "no such function",
			msg:         `no such function: frobnicate`,
			wantErrno:   ErrnoUnknownFunction,
			wantState:   SQLStateUndefinedFunc,
			wantMessage: "Unknown function FROBNICATE",
		},
		{
			name:        "sqlite syntax",
			msg:         `near "WHERE": syntax error`,
			wantErrno:   ErrnoSyntax,
			wantState:   SQLStateSyntax,
			wantMessage: "unexpected 'WHERE'",
		},
		{
			name:        "canceled compat",
			msg:         db.CanceledMessage,
			wantErrno:   ErrnoCanceled,
			wantState:   SQLStateCanceled,
			wantMessage: db.CanceledMessage,
		},
		{
			name:        "numeric format",
			msg:         `driver: Numeric value 'abc' is not recognized`,
			wantErrno:   ErrnoNumericFormat,
			wantState:   SQLStateInvalidCast,
			wantMessage: "Numeric value 'abc' is not recognized",
		},
		{
			name:        "fallback",
			msg:         `disk I/O error`,
			wantErrno:   ErrnoInternal,
			wantState:   SQLStateInternal,
			wantMessage: "disk I/O error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qe := MapError(errors.New(tt.msg), names)
			require.NotNil(t, qe)
			assert.Equal(t, tt.wantErrno, qe.Errno)
			assert.Equal(t, tt.wantState, qe.SQLState)
			assert.Contains(t, qe.Message, tt.wantMessage)
		})
	}
}

func TestQueryErrorFormatting(t *testing.T) {
	qe := objectNotFoundError("T", SQLStateNoSuchTable)
	assert.Equal(t, "002003", qe.Code())
	assert.Equal(t, -1, qe.Line)
	assert.Contains(t, qe.Error(), "002003 (42S02)")
}
