package transform

import (
	"github.com/maxpert/powder/protocol/ast"
)

// CurrentContextRule replaces session context functions with literals so
// the engine never needs to know about sessions.
type CurrentContextRule struct{}

func (r *CurrentContextRule) Name() string  { return "CurrentContext" }
func (r *CurrentContextRule) Priority() int { return 20 }

func (r *CurrentContextRule) Apply(stmt ast.Statement, env *Env) ([]ast.Statement, error) {
	if isRaw(stmt) || env == nil {
		return nil, ErrRuleNotApplicable
	}
	values := map[string]string{
		"CURRENT_DATABASE":  env.Database,
		"CURRENT_SCHEMA":    env.Schema,
		"CURRENT_WAREHOUSE": env.Warehouse,
		"CURRENT_ROLE":      env.Role,
		"CURRENT_USER":      env.User,
	}
	ast.RewriteExprs(stmt, func(e ast.Expr) ast.Expr {
		fc, ok := e.(*ast.FuncCall)
		if !ok || len(fc.Args) > 0 {
			return e
		}
		v, ok := values[fc.Name]
		if !ok {
			return e
		}
		if v == "" {
			return &ast.Literal{Kind: ast.NullLit, Value: "NULL"}
		}
		return &ast.Literal{Kind: ast.StringLit, Value: v}
	})
	return []ast.Statement{stmt}, nil
}
