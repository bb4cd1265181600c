package transform

import (
	"strings"

	"github.com/maxpert/powder/protocol/ast"
)

// NormalizeIdentifiersRule upper-cases unquoted identifiers, which is how the
// warehouse resolves them. Quoted identifiers keep their case.
type NormalizeIdentifiersRule struct{}

func (r *NormalizeIdentifiersRule) Name() string  { return "NormalizeIdentifiers" }
func (r *NormalizeIdentifiersRule) Priority() int { return 10 }

func (r *NormalizeIdentifiersRule) Apply(stmt ast.Statement, _ *Env) ([]ast.Statement, error) {
	if isRaw(stmt) {
		return nil, ErrRuleNotApplicable
	}
	ast.Walk(stmt, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok && !id.Quoted {
			id.Name = strings.ToUpper(id.Name)
		}
		return true
	})
	return []ast.Statement{stmt}, nil
}
