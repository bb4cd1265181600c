package transform

import (
	"strings"

	"github.com/maxpert/powder/protocol/ast"
)

// ProjectionAliasRule names computed result columns after the expression
// text the client wrote, upper-cased, because the engine would otherwise
// report its own rewritten text.
type ProjectionAliasRule struct{}

func (r *ProjectionAliasRule) Name() string  { return "ProjectionAlias" }
func (r *ProjectionAliasRule) Priority() int { return 50 }

func (r *ProjectionAliasRule) Apply(stmt ast.Statement, _ *Env) ([]ast.Statement, error) {
	var q *ast.Query
	switch s := stmt.(type) {
	case *ast.Query:
		q = s
	case *ast.CreateTable:
		q = s.As
	case *ast.CreateView:
		if len(s.Columns) == 0 {
			q = s.Query
		}
	}
	if q == nil {
		return nil, ErrRuleNotApplicable
	}
	sel := ast.LeftmostSelect(q)
	if sel == nil {
		return nil, ErrRuleNotApplicable
	}
	for _, item := range sel.Columns {
		ei, ok := item.(*ast.ExprItem)
		if !ok || ei.Alias != nil {
			continue
		}
		if _, isColumn := ei.Expr.(*ast.ColumnRef); isColumn {
			continue
		}
		ei.Alias = &ast.Ident{Name: strings.ToUpper(ei.Source), Quoted: true}
	}
	return []ast.Statement{stmt}, nil
}
