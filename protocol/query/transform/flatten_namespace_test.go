package transform

import (
	"errors"
	"testing"

	"github.com/maxpert/powder/protocol/ast"
)

func applyRule(t *testing.T, rule Rule, sql string, env *Env) []ast.Statement {
	t.Helper()
	stmt, err := ast.Parse(sql)
	if err != nil {
		t.Fatalf("parse %q: %v", sql, err)
	}
	out, err := rule.Apply(stmt, env)
	if errors.Is(err, ErrRuleNotApplicable) {
		return []ast.Statement{stmt}
	}
	if err != nil {
		t.Fatalf("apply %s to %q: %v", rule.Name(), sql, err)
	}
	return out
}

func formatAll(stmts []ast.Statement) []string {
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = ast.Format(s)
	}
	return out
}

func TestFlattenNamespaceRule_Name(t *testing.T) {
	rule := &FlattenNamespaceRule{}
	if rule.Name() != "FlattenNamespace" {
		t.Errorf("Name() = %q, want %q", rule.Name(), "FlattenNamespace")
	}
	if rule.Priority() != 40 {
		t.Errorf("Priority() = %d, want %d", rule.Priority(), 40)
	}
}

func TestFlattenNamespaceRule(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"select three part", "SELECT * FROM marts.jaffles.customers", "SELECT * FROM marts_jaffles.customers"},
		{"select two part", "SELECT * FROM jaffles.customers", "SELECT * FROM jaffles.customers"},
		{"select one part", "SELECT * FROM customers", "SELECT * FROM customers"},
		{"create schema", "CREATE SCHEMA marts.jaffles", "CREATE SCHEMA marts_jaffles"},
		{"create schema lower case", "create schema marts.jaffles", "CREATE SCHEMA marts_jaffles"},
		{"create schema one part", "CREATE SCHEMA jaffles", "CREATE SCHEMA jaffles"},
		{"drop schema", "DROP SCHEMA marts.jaffles", "DROP SCHEMA marts_jaffles"},
		{"create table", "CREATE TABLE db1.s1.t (a INT)", "CREATE TABLE db1_s1.t (a INT)"},
		{"drop table", "DROP TABLE IF EXISTS db1.s1.t", "DROP TABLE IF EXISTS db1_s1.t"},
		{"insert select", "INSERT INTO db.s.t SELECT * FROM db.s.u", "INSERT INTO db_s.t SELECT * FROM db_s.u"},
		{"alter rename", "ALTER TABLE db.s.t RENAME TO db.s.u", "ALTER TABLE db_s.t RENAME TO db_s.u"},
		{"update", "UPDATE db.s.t SET a = 1", "UPDATE db_s.t SET a = 1"},
		{"delete", "DELETE FROM db.s.t WHERE a = 1", "DELETE FROM db_s.t WHERE a = 1"},
		{"column reference", "SELECT db.s.t.a FROM db.s.t", "SELECT db_s.t.a FROM db_s.t"},
		{"join and subquery", "SELECT * FROM a.b.c JOIN (SELECT * FROM d.e.f) x ON TRUE", "SELECT * FROM a_b.c JOIN (SELECT * FROM d_e.f) AS x ON TRUE"},
		{"quoted part", `SELECT * FROM "Db".s.t`, `SELECT * FROM "Db_s".t`},
		{"describe", "DESCRIBE TABLE db.s.t", "DESCRIBE TABLE db_s.t"},
		{"use untouched", "USE SCHEMA db.s", "USE SCHEMA db.s"},
	}
	rule := &FlattenNamespaceRule{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatAll(applyRule(t, rule, tt.input, nil))
			if len(got) != 1 || got[0] != tt.want {
				t.Errorf("got %v, want %q", got, tt.want)
			}
		})
	}
}

func TestFlattenNamespaceRule_Idempotent(t *testing.T) {
	rule := &FlattenNamespaceRule{}
	for _, sql := range []string{
		"SELECT * FROM marts.jaffles.customers",
		"CREATE SCHEMA marts.jaffles",
		"DROP SCHEMA marts.jaffles",
		"SELECT db.s.t.a FROM db.s.t",
	} {
		once := applyRule(t, rule, sql, nil)
		first := ast.Format(once[0])
		twice, err := rule.Apply(once[0], nil)
		if err != nil {
			t.Fatalf("second apply: %v", err)
		}
		if got := ast.Format(twice[0]); got != first {
			t.Errorf("%q: second application changed %q to %q", sql, first, got)
		}
	}
}

func TestFlattenNamespaceRule_RecordsOrigin(t *testing.T) {
	stmts := applyRule(t, &FlattenNamespaceRule{}, "SELECT * FROM db.s.t", nil)
	ref := stmts[0].(*ast.Query).Body.(*ast.Select).From[0].(*ast.TableRef)
	if len(ref.Name.Origin) != 3 || ref.Name.Origin[0].Name != "db" {
		t.Errorf("origin = %v, want [db s t]", ref.Name.Origin)
	}
}

func TestFlattenIdent(t *testing.T) {
	got := FlattenIdent(ast.Ident{Name: "MARTS"}, ast.Ident{Name: "JAFFLES"})
	if got.Name != "MARTS_JAFFLES" || got.Quoted {
		t.Errorf("FlattenIdent = %+v", got)
	}
	got = FlattenIdent(ast.Ident{Name: "MARTS"}, ast.Ident{Name: "jaffles", Quoted: true})
	if got.Name != "MARTS_jaffles" || !got.Quoted {
		t.Errorf("FlattenIdent = %+v", got)
	}
}
