package query

import (
	"strings"

	rqlitesql "github.com/rqlite/sql"

	"github.com/maxpert/powder/protocol/ast"
)

// executedByEngine reports whether the statement is sent to SQLite. The
// others are answered from the catalog or the session.
func executedByEngine(stmt ast.Statement) bool {
	switch s := stmt.(type) {
	case *ast.Query, *ast.Insert, *ast.Update, *ast.Delete, *ast.CreateTable,
		*ast.CreateView, *ast.AlterTable, *ast.Truncate, *ast.Raw:
		return true
	case *ast.Drop:
		return s.Kind == ast.TableObject || s.Kind == ast.ViewObject
	}
	return false
}

// isReadOnly decides whether stmt may run alongside other readers. Modeled
// queries are read-only by construction; pass-through text is classified
// with the SQLite grammar, and anything it cannot parse counts as a write.
func isReadOnly(stmt ast.Statement, sqliteSQL string) bool {
	switch stmt.(type) {
	case *ast.Query:
		return true
	case *ast.Raw:
		return classifySQLite(sqliteSQL)
	}
	return false
}

func classifySQLite(sql string) bool {
	parser := rqlitesql.NewParser(strings.NewReader(sql))
	stmt, err := parser.ParseStatement()
	if err != nil {
		return false
	}
	switch s := stmt.(type) {
	case *rqlitesql.SelectStatement:
		return true
	case *rqlitesql.ExplainStatement:
		_, isSelect := s.Stmt.(*rqlitesql.SelectStatement)
		return isSelect
	}
	return false
}

func normalizeName(name string) string {
	return strings.ToUpper(name)
}

// engineName is how the engine spells a table or schema name in its
// messages: the raw parts joined by dots.
func engineName(parts []ast.Ident) string {
	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = p.Name
	}
	return strings.Join(names, ".")
}
