package transform

import (
	"github.com/maxpert/powder/protocol/ast"
)

// NamespaceSeparator joins a database and schema into one schema name.
const NamespaceSeparator = "_"

// FlattenNamespaceRule collapses the two-level database.schema namespace
// into a single schema identifier: D.S.T becomes D_S.T, schema D.S becomes
// D_S and column D.S.T.C becomes D_S.T.C. One-level names are untouched, so
// applying the rule to its own output changes nothing.
type FlattenNamespaceRule struct{}

func (r *FlattenNamespaceRule) Name() string  { return "FlattenNamespace" }
func (r *FlattenNamespaceRule) Priority() int { return 40 }

func (r *FlattenNamespaceRule) Apply(stmt ast.Statement, _ *Env) ([]ast.Statement, error) {
	switch stmt.(type) {
	case *ast.Raw, *ast.Use, *ast.Show, *ast.AlterSession, *ast.Transaction:
		return nil, ErrRuleNotApplicable
	}
	ast.Walk(stmt, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.TableName:
			if len(n.Parts) == 3 {
				n.Origin = n.Parts
				n.Parts = []ast.Ident{FlattenIdent(n.Parts[0], n.Parts[1]), n.Parts[2]}
			}
			return false
		case *ast.SchemaName:
			if len(n.Parts) == 2 {
				n.Origin = n.Parts
				n.Parts = []ast.Ident{FlattenIdent(n.Parts[0], n.Parts[1])}
			}
			return false
		case *ast.ColumnRef:
			if len(n.Parts) == 4 {
				n.Parts = []ast.Ident{FlattenIdent(n.Parts[0], n.Parts[1]), n.Parts[2], n.Parts[3]}
			}
			return false
		}
		return true
	})
	return []ast.Statement{stmt}, nil
}

// FlattenIdent joins database and schema. The result is quoted when either
// part was, so case-sensitive names stay case-sensitive.
func FlattenIdent(db, schema ast.Ident) ast.Ident {
	return ast.Ident{
		Name:   db.Name + NamespaceSeparator + schema.Name,
		Quoted: db.Quoted || schema.Quoted,
	}
}
