package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpert/powder/protocol/ast"
)

var testEnv = &Env{Database: "DB1", Schema: "SCHEMA1", Warehouse: "WH", Role: "SYSADMIN", User: "FAKE"}

func TestNormalizeIdentifiers(t *testing.T) {
	got := formatAll(applyRule(t, &NormalizeIdentifiersRule{}, `select a, "b" from s.t as x where x.c = 'lower'`, nil))
	assert.Equal(t, []string{`SELECT A, "b" FROM S.T AS X WHERE X.C = 'lower'`}, got)
}

func TestNormalizeIdentifiersSkipsRaw(t *testing.T) {
	stmt, err := ast.Parse("grant role r to user u")
	require.NoError(t, err)
	_, err = (&NormalizeIdentifiersRule{}).Apply(stmt, nil)
	assert.ErrorIs(t, err, ErrRuleNotApplicable)
}

func TestCurrentContext(t *testing.T) {
	got := formatAll(applyRule(t, &CurrentContextRule{},
		"SELECT CURRENT_DATABASE(), CURRENT_SCHEMA(), CURRENT_WAREHOUSE(), CURRENT_ROLE(), CURRENT_USER() FROM t WHERE x = CURRENT_DATABASE()", testEnv))
	assert.Equal(t, []string{"SELECT 'DB1', 'SCHEMA1', 'WH', 'SYSADMIN', 'FAKE' FROM t WHERE x = 'DB1'"}, got)

	got = formatAll(applyRule(t, &CurrentContextRule{}, "SELECT CURRENT_SCHEMA()", &Env{}))
	assert.Equal(t, []string{"SELECT NULL"}, got)
}

func TestQualifyNamespace(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT * FROM T", "SELECT * FROM DB1.SCHEMA1.T"},
		{"SELECT * FROM S.T", "SELECT * FROM DB1.S.T"},
		{"SELECT * FROM D.S.T", "SELECT * FROM D.S.T"},
		{"CREATE SCHEMA S", "CREATE SCHEMA DB1.S"},
		{"DROP SCHEMA D.S", "DROP SCHEMA D.S"},
		{"WITH C AS (SELECT 1) SELECT * FROM C JOIN T ON TRUE", "WITH C AS (SELECT 1) SELECT * FROM C JOIN DB1.SCHEMA1.T ON TRUE"},
		{"SELECT * FROM INFORMATION_SCHEMA.TABLES", "SELECT * FROM INFORMATION_SCHEMA.TABLES"},
		{"INSERT INTO T SELECT * FROM U", "INSERT INTO DB1.SCHEMA1.T SELECT * FROM DB1.SCHEMA1.U"},
		{"CREATE TABLE T (A INT)", "CREATE TABLE DB1.SCHEMA1.T (A INT)"},
		{"USE SCHEMA S", "USE SCHEMA S"},
	}
	for _, tt := range tests {
		got := formatAll(applyRule(t, &QualifyNamespaceRule{}, tt.in, testEnv))
		assert.Equal(t, []string{tt.want}, got, tt.in)
	}
}

func TestQualifyNamespaceWithoutDatabase(t *testing.T) {
	got := formatAll(applyRule(t, &QualifyNamespaceRule{}, "SELECT * FROM T", &Env{}))
	assert.Equal(t, []string{"SELECT * FROM T"}, got)
}

func TestQualifyNamespaceQuotesMixedCaseSession(t *testing.T) {
	got := formatAll(applyRule(t, &QualifyNamespaceRule{}, "SELECT * FROM T", &Env{Database: "myDb", Schema: "PUBLIC"}))
	assert.Equal(t, []string{`SELECT * FROM "myDb".PUBLIC.T`}, got)
}

func TestProjectionAlias(t *testing.T) {
	got := formatAll(applyRule(t, &ProjectionAliasRule{},
		"select true, 1::int, a, b + 1 as c, 'hello' from t union select 1, 2, 3, 4, 5", nil))
	assert.Equal(t, []string{`SELECT TRUE AS "TRUE", 1::INT AS "1::INT", a, b + 1 AS c, 'hello' AS "'HELLO'" FROM t UNION SELECT 1, 2, 3, 4, 5`}, got)
}

func TestCreateOrReplace(t *testing.T) {
	got := formatAll(applyRule(t, &CreateOrReplaceRule{}, "CREATE OR REPLACE TABLE t (a INT)", nil))
	assert.Equal(t, []string{"DROP TABLE IF EXISTS t", "CREATE TABLE t (a INT)"}, got)

	got = formatAll(applyRule(t, &CreateOrReplaceRule{}, "CREATE OR REPLACE VIEW v AS SELECT 1", nil))
	assert.Equal(t, []string{"DROP VIEW IF EXISTS v", "CREATE VIEW v AS SELECT 1"}, got)

	got = formatAll(applyRule(t, &CreateOrReplaceRule{}, "CREATE OR REPLACE SCHEMA d.s", nil))
	assert.Equal(t, []string{"CREATE OR REPLACE SCHEMA d.s"}, got)

	got = formatAll(applyRule(t, &CreateOrReplaceRule{}, "CREATE OR REPLACE DATABASE d", nil))
	assert.Equal(t, []string{"CREATE OR REPLACE DATABASE d"}, got)

	got = formatAll(applyRule(t, &CreateOrReplaceRule{}, "CREATE TABLE t (a INT)", nil))
	assert.Equal(t, []string{"CREATE TABLE t (a INT)"}, got)
}

func TestInsertOverwrite(t *testing.T) {
	got := formatAll(applyRule(t, &InsertOverwriteRule{}, "INSERT OVERWRITE INTO t VALUES (1)", nil))
	assert.Equal(t, []string{"DELETE FROM t", "INSERT INTO t VALUES (1)"}, got)
}

func TestDefaultRulesOrder(t *testing.T) {
	rs := DefaultRules()
	var names []string
	for i, r := range rs {
		names = append(names, r.Name())
		if i > 0 {
			assert.LessOrEqual(t, rs[i-1].Priority(), r.Priority())
		}
	}
	assert.Equal(t, []string{
		"NormalizeIdentifiers", "CurrentContext", "QualifyNamespace", "FlattenNamespace",
		"ProjectionAlias", "CreateOrReplace", "InsertOverwrite",
	}, names)
}

func TestRuleSetApply(t *testing.T) {
	stmt, err := ast.Parse("create or replace table example (x int)")
	require.NoError(t, err)

	out, applied, err := DefaultRules().Apply([]ast.Statement{stmt}, testEnv)
	require.NoError(t, err)
	assert.Equal(t, []string{"DROP TABLE IF EXISTS DB1_SCHEMA1.EXAMPLE", "CREATE TABLE DB1_SCHEMA1.EXAMPLE (X INT)"}, formatAll(out))
	assert.Contains(t, applied, "FlattenNamespace")
	assert.Contains(t, applied, "CreateOrReplace")
	assert.NotContains(t, applied, "ProjectionAlias")

	sqlite := ast.FormatSQLite(out[1])
	assert.Equal(t, `CREATE TABLE "DB1_SCHEMA1.EXAMPLE" (X INT)`, sqlite)
}

func TestRuleSetApplyIsIdempotent(t *testing.T) {
	stmt, err := ast.Parse("select * from marts.jaffles.customers c join orders o on o.id = c.id")
	require.NoError(t, err)

	once, _, err := DefaultRules().Apply([]ast.Statement{stmt}, testEnv)
	require.NoError(t, err)
	first := formatAll(once)

	twice, _, err := DefaultRules().Apply(once, testEnv)
	require.NoError(t, err)
	assert.Equal(t, first, formatAll(twice))
	assert.Equal(t, []string{"SELECT * FROM MARTS_JAFFLES.CUSTOMERS AS C JOIN DB1_SCHEMA1.ORDERS AS O ON O.ID = C.ID"}, first)
}
