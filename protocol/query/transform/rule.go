// Package transform provides AST rewrite rules from the warehouse dialect to
// the embedded engine.
//
// Rules handle semantic differences that change the tree: namespace
// flattening, session context functions, statement expansion. Purely
// syntactic differences (function names, casts, LIMIT forms) are handled by
// the SQLite serializer in the ast package, not by rules.
package transform

import (
	"errors"
	"sort"
	"strings"

	"github.com/maxpert/powder/protocol/ast"
)

// ErrRuleNotApplicable indicates rule doesn't apply to this statement type
var ErrRuleNotApplicable = errors.New("rule not applicable")

// Env is the session context a statement is rewritten against.
type Env struct {
	Database  string
	Schema    string
	Warehouse string
	Role      string
	User      string
}

// Rule rewrites a warehouse AST for the embedded engine.
type Rule interface {
	// Name returns the rule name for logging
	Name() string

	// Priority determines rule execution order (lower runs first)
	Priority() int

	// Apply mutates stmt in place and returns the statements that replace
	// it (usually just stmt). Returns ErrRuleNotApplicable if rule doesn't
	// apply to this statement type.
	Apply(stmt ast.Statement, env *Env) ([]ast.Statement, error)
}

// RuleSet is an ordered rule registry.
type RuleSet []Rule

func (rs RuleSet) Len() int           { return len(rs) }
func (rs RuleSet) Less(i, j int) bool { return rs[i].Priority() < rs[j].Priority() }
func (rs RuleSet) Swap(i, j int)      { rs[i], rs[j] = rs[j], rs[i] }

// DefaultRules returns the full registry in execution order:
//
//	10 NormalizeIdentifiers  unquoted identifiers to upper case
//	20 CurrentContext        CURRENT_DATABASE() and friends to literals
//	30 QualifyNamespace      names resolved against the session namespace
//	40 FlattenNamespace      database.schema to database_schema
//	50 ProjectionAlias       computed columns named after their source text
//	60 CreateOrReplace       OR REPLACE to DROP IF EXISTS + CREATE
//	61 InsertOverwrite       INSERT OVERWRITE to DELETE + INSERT
func DefaultRules() RuleSet {
	rs := RuleSet{
		&InsertOverwriteRule{},
		&CreateOrReplaceRule{},
		&ProjectionAliasRule{},
		&FlattenNamespaceRule{},
		&QualifyNamespaceRule{},
		&CurrentContextRule{},
		&NormalizeIdentifiersRule{},
	}
	sort.Stable(rs)
	return rs
}

// Apply runs every rule over stmts in order. A rule returning
// ErrRuleNotApplicable leaves the statement as it is.
func (rs RuleSet) Apply(stmts []ast.Statement, env *Env) ([]ast.Statement, []string, error) {
	var applied []string
	for _, rule := range rs {
		next := make([]ast.Statement, 0, len(stmts))
		used := false
		for _, stmt := range stmts {
			out, err := rule.Apply(stmt, env)
			if errors.Is(err, ErrRuleNotApplicable) {
				next = append(next, stmt)
				continue
			}
			if err != nil {
				return nil, applied, err
			}
			used = true
			next = append(next, out...)
		}
		if used {
			applied = append(applied, rule.Name())
		}
		stmts = next
	}
	return stmts, applied, nil
}

// envIdent turns a session namespace name into an identifier. Names that
// are not all upper case must have been quoted.
func envIdent(name string) ast.Ident {
	return ast.Ident{Name: name, Quoted: name != strings.ToUpper(name)}
}

func isRaw(stmt ast.Statement) bool {
	_, ok := stmt.(*ast.Raw)
	return ok
}
