package query

import (
	"github.com/maxpert/powder/protocol/ast"
	"github.com/maxpert/powder/protocol/query/transform"
)

// Transpiler turns warehouse SQL into a Plan of engine statements.
type Transpiler struct {
	rules transform.RuleSet
}

func NewTranspiler(rules transform.RuleSet) *Transpiler {
	if rules == nil {
		rules = transform.DefaultRules()
	}
	return &Transpiler{rules: rules}
}

// Transpile parses sql, which must hold exactly one statement, and rewrites
// it against env.
func (t *Transpiler) Transpile(sql string, env *transform.Env) (*Plan, error) {
	stmts, err := ast.ParseAll(sql)
	if err != nil {
		return nil, err
	}
	if len(stmts) != 1 {
		return nil, &StatementCountError{Count: len(stmts)}
	}

	// Names are captured before rewriting so errors can quote the client's
	// spelling; the pointers stay valid while rules mutate the tree.
	tables := make(map[*ast.TableName]string)
	schemas := make(map[*ast.SchemaName]string)
	ast.Walk(stmts[0], func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.TableName:
			tables[x] = x.Display()
		case *ast.SchemaName:
			schemas[x] = x.Display()
		}
		return true
	})

	out, applied, err := t.rules.Apply(stmts, env)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Names: make(map[string]string, len(tables)+len(schemas)),
		Rules: applied,
	}
	for tn, display := range tables {
		plan.Names[normalizeName(engineName(tn.Parts))] = display
	}
	for sn, display := range schemas {
		plan.Names[normalizeName(engineName(sn.Parts))] = display
	}

	for _, stmt := range out {
		s := &Statement{AST: stmt, Type: Classify(stmt)}
		if executedByEngine(stmt) {
			s.SQL = ast.FormatSQLite(stmt)
			s.ReadOnly = isReadOnly(stmt, s.SQL)
		}
		if q, ok := stmt.(*ast.Query); ok {
			s.Hints = inferHints(q)
		}
		plan.Statements = append(plan.Statements, s)
	}
	return plan, nil
}
