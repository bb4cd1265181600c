package query

import (
	"fmt"

	"github.com/maxpert/powder/protocol/ast"
)

// StatementType categorizes SQL statements for execution routing and result
// shaping.
type StatementType int

const (
	StatementUnknown StatementType = iota // 0 - means not yet classified
	StatementSelect
	StatementInsert
	StatementUpdate
	StatementDelete
	StatementDDL
	StatementCreateSchema
	StatementDropSchema
	StatementCreateDatabase
	StatementDropDatabase
	StatementUse
	StatementAlterSession
	StatementShow
	StatementDescribe
	StatementBegin
	StatementCommit
	StatementRollback
	StatementRaw
)

func (t StatementType) String() string {
	switch t {
	case StatementSelect:
		return "select"
	case StatementInsert:
		return "insert"
	case StatementUpdate:
		return "update"
	case StatementDelete:
		return "delete"
	case StatementDDL, StatementCreateSchema, StatementDropSchema, StatementCreateDatabase, StatementDropDatabase:
		return "ddl"
	case StatementUse, StatementAlterSession:
		return "session"
	case StatementShow, StatementDescribe:
		return "show"
	case StatementBegin, StatementCommit, StatementRollback:
		return "transaction"
	case StatementRaw:
		return "raw"
	}
	return "unknown"
}

// Statement type ids reported to drivers.
const (
	typeIDSelect   int64 = 0x1000
	typeIDDML      int64 = 0x3000
	typeIDInsert   int64 = 0x3100
	typeIDUpdate   int64 = 0x3200
	typeIDDelete   int64 = 0x3300
	typeIDSCL      int64 = 0x4000
	typeIDAlterSCL int64 = 0x4100
	typeIDUse      int64 = 0x4300
	typeIDTCL      int64 = 0x5000
	typeIDBegin    int64 = 0x5100
	typeIDCommit   int64 = 0x5200
	typeIDRollback int64 = 0x5300
	typeIDDDL      int64 = 0x6000
)

// TypeID returns the warehouse statementTypeId.
func (t StatementType) TypeID() int64 {
	switch t {
	case StatementSelect, StatementShow, StatementDescribe, StatementRaw:
		return typeIDSelect
	case StatementInsert:
		return typeIDInsert
	case StatementUpdate:
		return typeIDUpdate
	case StatementDelete:
		return typeIDDelete
	case StatementAlterSession:
		return typeIDAlterSCL
	case StatementUse:
		return typeIDUse
	case StatementBegin:
		return typeIDBegin
	case StatementCommit:
		return typeIDCommit
	case StatementRollback:
		return typeIDRollback
	case StatementDDL, StatementCreateSchema, StatementDropSchema, StatementCreateDatabase, StatementDropDatabase:
		return typeIDDDL
	}
	return typeIDSCL
}

// IsDML reports whether the statement changes rows.
func (t StatementType) IsDML() bool {
	return t.TypeID()&0xF000 == typeIDDML
}

// Classify maps a rewritten statement onto its StatementType.
func Classify(stmt ast.Statement) StatementType {
	switch s := stmt.(type) {
	case *ast.Query:
		return StatementSelect
	case *ast.Insert:
		return StatementInsert
	case *ast.Update:
		return StatementUpdate
	case *ast.Delete:
		return StatementDelete
	case *ast.CreateTable, *ast.CreateView, *ast.AlterTable, *ast.Truncate:
		return StatementDDL
	case *ast.CreateSchema:
		return StatementCreateSchema
	case *ast.CreateDatabase:
		return StatementCreateDatabase
	case *ast.Drop:
		switch s.Kind {
		case ast.SchemaObject:
			return StatementDropSchema
		case ast.DatabaseObject:
			return StatementDropDatabase
		}
		return StatementDDL
	case *ast.Use:
		return StatementUse
	case *ast.AlterSession:
		return StatementAlterSession
	case *ast.Show:
		return StatementShow
	case *ast.Describe:
		return StatementDescribe
	case *ast.Transaction:
		switch s.Kind {
		case ast.TxCommit:
			return StatementCommit
		case ast.TxRollback:
			return StatementRollback
		}
		return StatementBegin
	case *ast.Raw:
		return StatementRaw
	}
	return StatementUnknown
}

// StatementCountError rejects requests carrying more than one statement.
type StatementCountError struct {
	Count int
}

func (e *StatementCountError) Error() string {
	return fmt.Sprintf("Actual statement count %d did not match the desired statement count 1.", e.Count)
}

// Statement is one executable unit of a plan.
type Statement struct {
	AST  ast.Statement
	Type StatementType

	// SQL is the engine text, empty for statements the server answers
	// itself (namespace DDL, USE, SHOW, session and transaction control).
	SQL string

	// ReadOnly statements may run concurrently with each other.
	ReadOnly bool

	// Hints maps result column names to their static type.
	Hints map[string]*ast.TypeName
}

// Plan is the rewritten form of one client request.
type Plan struct {
	Statements []*Statement

	// Names maps an engine object name (upper-cased) to the name the client
	// wrote, for error messages.
	Names map[string]string

	// Rules lists the rules that changed the request.
	Rules []string

	Cached bool
}

// Main returns the statement whose result answers the request: the last
// one, since expansions only prepend.
func (p *Plan) Main() *Statement {
	return p.Statements[len(p.Statements)-1]
}

// Resolve returns the client spelling of an engine object name.
func (p *Plan) Resolve(engineName string) (string, bool) {
	if p == nil {
		return "", false
	}
	name, ok := p.Names[normalizeName(engineName)]
	return name, ok
}
