package transform

import (
	"github.com/maxpert/powder/protocol/ast"
)

// InformationSchema is never qualified with the session database.
const InformationSchema = "INFORMATION_SCHEMA"

// QualifyNamespaceRule resolves partial names against the session namespace:
// T becomes DB.SCHEMA.T, S.T becomes DB.S.T and schema S becomes DB.S.
// Names of common table expressions are left alone.
type QualifyNamespaceRule struct{}

func (r *QualifyNamespaceRule) Name() string  { return "QualifyNamespace" }
func (r *QualifyNamespaceRule) Priority() int { return 30 }

func (r *QualifyNamespaceRule) Apply(stmt ast.Statement, env *Env) ([]ast.Statement, error) {
	if isRaw(stmt) || env == nil || env.Database == "" {
		return nil, ErrRuleNotApplicable
	}
	switch stmt.(type) {
	case *ast.Use, *ast.Show, *ast.AlterSession, *ast.Transaction, *ast.CreateDatabase:
		return nil, ErrRuleNotApplicable
	}

	ctes := map[string]bool{}
	ast.Walk(stmt, func(n ast.Node) bool {
		if cte, ok := n.(*ast.CTE); ok {
			ctes[cte.Name.Display()] = true
		}
		return true
	})

	db := envIdent(env.Database)
	ast.Walk(stmt, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.TableName:
			qualifyTable(n, db, env.Schema, ctes)
			return false
		case *ast.SchemaName:
			if n.Origin == nil && len(n.Parts) == 1 && n.Parts[0].Display() != InformationSchema {
				n.Parts = []ast.Ident{db, n.Parts[0]}
			}
			return false
		}
		return true
	})
	return []ast.Statement{stmt}, nil
}

func qualifyTable(t *ast.TableName, db ast.Ident, schema string, ctes map[string]bool) {
	if t.Origin != nil {
		return
	}
	switch len(t.Parts) {
	case 1:
		if schema == "" || ctes[t.Parts[0].Display()] {
			return
		}
		t.Parts = []ast.Ident{db, envIdent(schema), t.Parts[0]}
	case 2:
		if t.Parts[0].Display() == InformationSchema {
			return
		}
		t.Parts = []ast.Ident{db, t.Parts[0], t.Parts[1]}
	}
}
