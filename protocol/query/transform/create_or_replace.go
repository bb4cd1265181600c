package transform

import (
	"github.com/maxpert/powder/protocol/ast"
)

// CreateOrReplaceRule expands CREATE OR REPLACE TABLE and VIEW into DROP IF
// EXISTS followed by a plain CREATE, since the engine has no replace form.
// Schemas and databases are replaced by the catalog in one step.
type CreateOrReplaceRule struct{}

func (r *CreateOrReplaceRule) Name() string  { return "CreateOrReplace" }
func (r *CreateOrReplaceRule) Priority() int { return 60 }

func (r *CreateOrReplaceRule) Apply(stmt ast.Statement, _ *Env) ([]ast.Statement, error) {
	var drop *ast.Drop
	switch s := stmt.(type) {
	case *ast.CreateTable:
		if !s.OrReplace {
			return nil, ErrRuleNotApplicable
		}
		s.OrReplace = false
		drop = &ast.Drop{Kind: ast.TableObject, IfExists: true, Table: s.Name}
	case *ast.CreateView:
		if !s.OrReplace {
			return nil, ErrRuleNotApplicable
		}
		s.OrReplace = false
		drop = &ast.Drop{Kind: ast.ViewObject, IfExists: true, Table: s.Name}
	default:
		return nil, ErrRuleNotApplicable
	}
	return []ast.Statement{drop, stmt}, nil
}

// InsertOverwriteRule expands INSERT OVERWRITE into DELETE followed by
// INSERT.
type InsertOverwriteRule struct{}

func (r *InsertOverwriteRule) Name() string  { return "InsertOverwrite" }
func (r *InsertOverwriteRule) Priority() int { return 61 }

func (r *InsertOverwriteRule) Apply(stmt ast.Statement, _ *Env) ([]ast.Statement, error) {
	ins, ok := stmt.(*ast.Insert)
	if !ok || !ins.Overwrite {
		return nil, ErrRuleNotApplicable
	}
	ins.Overwrite = false
	return []ast.Statement{&ast.Delete{Table: ins.Table}, ins}, nil
}
