package ast

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexerTokens(t *testing.T) {
	toks, err := Tokenize(`select system$wait(1), 'it''s', "Mixed" from t -- trailing`)
	require.NoError(t, err)

	var kinds []TokenKind
	var texts []string
	for _, tok := range toks {
		kinds = append(kinds, tok.Kind)
		texts = append(texts, tok.Text)
	}
	assert.Equal(t, []string{"select", "system$wait", "(", "1", ")", ",", "it's", ",", "Mixed", "from", "t", ""}, texts)
	assert.Equal(t, TokQuotedIdent, kinds[8])
	assert.Equal(t, TokString, kinds[6])
	assert.Equal(t, TokEOF, kinds[len(kinds)-1])
}

func TestLexerCastAndParams(t *testing.T) {
	toks, err := Tokenize("1::int + ? + :2")
	require.NoError(t, err)
	require.Len(t, toks, 8)
	assert.True(t, toks[1].IsOp("::"))
	assert.Equal(t, TokParam, toks[4].Kind)
	assert.Equal(t, ":2", toks[6].Text)
}

func TestLexerUnterminated(t *testing.T) {
	_, err := Tokenize("select 'abc")
	var synErr *SyntaxError
	require.True(t, errors.As(err, &synErr))
}

func TestRoundTripWarehouse(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"select a, b from t where a = 1", "SELECT a, b FROM t WHERE a = 1"},
		{"SELECT * FROM marts.jaffles.customers", "SELECT * FROM marts.jaffles.customers"},
		{"create schema marts.jaffles", "CREATE SCHEMA marts.jaffles"},
		{"drop schema if exists marts.jaffles cascade", "DROP SCHEMA IF EXISTS marts.jaffles CASCADE"},
		{
			"select true, 1::int, 2.0::float, to_decimal('12.3456',10,2), 'hello'",
			"SELECT TRUE, 1::INT, 2.0::FLOAT, TO_DECIMAL('12.3456', 10, 2), 'hello'",
		},
		{
			"create or replace table example (XBOOLEAN BOOLEAN, XINT INT, XFLOAT FLOAT, XDECIMAL DECIMAL(10,2), XVARCHAR VARCHAR)",
			"CREATE OR REPLACE TABLE example (XBOOLEAN BOOLEAN, XINT INT, XFLOAT FLOAT, XDECIMAL DECIMAL(10,2), XVARCHAR VARCHAR)",
		},
		{
			"select c.id, count(*) as n from customers c left outer join orders o on o.cid = c.id group by c.id having count(*) > 1 order by n desc nulls last limit 10",
			"SELECT c.id, COUNT(*) AS n FROM customers AS c LEFT JOIN orders AS o ON o.cid = c.id GROUP BY c.id HAVING COUNT(*) > 1 ORDER BY n DESC NULLS LAST LIMIT 10",
		},
		{
			"with x (a) as (select 1) select a from x minus select 2",
			"WITH x (a) AS (SELECT 1) SELECT a FROM x MINUS SELECT 2",
		},
		{"insert into s.t (a, b) values (1, 'x'), (?, :2)", "INSERT INTO s.t (a, b) VALUES (1, 'x'), (?, :2)"},
		{"update t set a = a + 1 where b is not null", "UPDATE t SET a = a + 1 WHERE b IS NOT NULL"},
		{"delete from db.s.t where x in (select y from u)", "DELETE FROM db.s.t WHERE x IN (SELECT y FROM u)"},
		{"alter table t rename to u", "ALTER TABLE t RENAME TO u"},
		{"alter table t add column c number(10, 2) not null default 0", "ALTER TABLE t ADD COLUMN c NUMBER(10,2) NOT NULL DEFAULT 0"},
		{"use schema db1.s1", "USE SCHEMA db1.s1"},
		{"alter session set timezone = 'UTC', query_tag = 'x'", "ALTER SESSION SET TIMEZONE = 'UTC', QUERY_TAG = 'x'"},
		{"show terse tables like 'T%' in schema db.s", "SHOW TERSE TABLES LIKE 'T%' IN SCHEMA db.s"},
		{"describe table t", "DESCRIBE TABLE t"},
		{"begin transaction", "BEGIN"},
		{"select case when a between 1 and 2 then 'x' else 'y' end from t", "SELECT CASE WHEN a BETWEEN 1 AND 2 THEN 'x' ELSE 'y' END FROM t"},
		{"select * from t where name ilike 'a%' and not exists (select 1 from u)", "SELECT * FROM t WHERE name ILIKE 'a%' AND NOT EXISTS (SELECT 1 FROM u)"},
		{"select row_number() over (partition by a order by b) from t", "SELECT ROW_NUMBER() OVER (PARTITION BY a ORDER BY b) FROM t"},
		{"select try_cast('1' as int), cast(x as varchar(10)) from t", "SELECT TRY_CAST('1' AS INT), CAST(x AS VARCHAR(10)) FROM t"},
		{"select current_date, current_database()", "SELECT CURRENT_DATE, CURRENT_DATABASE()"},
		{"select \"Quoted Col\" from \"My\".t", "SELECT \"Quoted Col\" FROM \"My\".t"},
		{"truncate table if exists t", "TRUNCATE TABLE IF EXISTS t"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			stmt, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Format(stmt))

			again, err := Parse(Format(stmt))
			require.NoError(t, err)
			assert.Equal(t, tt.want, Format(again))
		})
	}
}

func TestFormatSQLite(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SELECT * FROM MARTS_JAFFLES.CUSTOMERS", `SELECT * FROM "MARTS_JAFFLES.CUSTOMERS" AS CUSTOMERS`},
		{"SELECT c.id FROM DB_S.T c", `SELECT c.id FROM "DB_S.T" AS c`},
		{"SELECT DB_S.T.ID FROM DB_S.T", `SELECT T.ID FROM "DB_S.T" AS T`},
		{"SELECT 1::int, 2.0::float, 'x'::varchar, x::boolean", "SELECT to_decimal(1, 38, 0), CAST(2.0 AS REAL), CAST('x' AS TEXT), to_boolean(x)"},
		{"SELECT to_decimal('12.3456', 10, 2)", "SELECT to_decimal('12.3456', 10, 2)"},
		{"SELECT try_cast(a AS NUMBER(10,2)) FROM t", "SELECT try_to_decimal(a, 10, 2) FROM t"},
		{"SELECT iff(a, 1, 2), nvl(b, 0), nvl2(c, 1, 0), len(d) FROM t", "SELECT IIF(a, 1, 2), IFNULL(b, 0), IIF(c IS NOT NULL, 1, 0), LENGTH(d) FROM t"},
		{"SELECT a FROM t MINUS SELECT a FROM u", "SELECT a FROM t EXCEPT SELECT a FROM u"},
		{"(SELECT 1) UNION ALL (SELECT 2)", "SELECT 1 UNION ALL SELECT 2"},
		{"SELECT x FROM t OFFSET 5", "SELECT x FROM t LIMIT -1 OFFSET 5"},
		{"SELECT system$wait(2)", "SELECT system_wait(2)"},
		{"SELECT a / b FROM t", "SELECT CAST(a AS REAL) / b FROM t"},
		{"SELECT * FROM t WHERE n ILIKE 'a%'", "SELECT * FROM t WHERE LOWER(n) LIKE LOWER('a%')"},
		{"SELECT CURRENT_TIMESTAMP()", "SELECT CURRENT_TIMESTAMP"},
		{"SELECT a FROM t WHERE b = :1", "SELECT a FROM t WHERE b = ?1"},
		{"TRUNCATE TABLE S.T", `DELETE FROM "S.T"`},
		{"UPDATE S.T SET A = 1", `UPDATE "S.T" AS T SET A = 1`},
		{"DELETE FROM S.T WHERE A = 1", `DELETE FROM "S.T" AS T WHERE A = 1`},
		{"INSERT INTO S.T (A) VALUES (1)", `INSERT INTO "S.T" (A) VALUES (1)`},
		{"CREATE TABLE S.T (A STRING, B NUMBER(10,2))", `CREATE TABLE "S.T" (A VARCHAR, B NUMBER(10,2))`},
		{"DROP TABLE IF EXISTS S.T CASCADE", `DROP TABLE IF EXISTS "S.T"`},
		{"ALTER TABLE S.T RENAME TO S.U", `ALTER TABLE "S.T" RENAME TO "S.U"`},
		{"SELECT \"order\" FROM t", `SELECT "order" FROM t`},
		{"CREATE TABLE t (a INT DEFAULT current_timestamp())", "CREATE TABLE t (a INT DEFAULT (CURRENT_TIMESTAMP))"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			stmt, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, FormatSQLite(stmt))
		})
	}
}

func TestParseAllSplitsStatements(t *testing.T) {
	stmts, err := ParseAll("select 1; select 2;")
	require.NoError(t, err)
	require.Len(t, stmts, 2)

	_, err = Parse("select 1; select 2")
	require.Error(t, err)
}

func TestUnrecognizedStatementPassesThrough(t *testing.T) {
	for _, sql := range []string{
		"GRANT ROLE analyst TO USER bob",
		"create stage my_stage",
		"show warehouses",
		"PRAGMA table_info(t)",
	} {
		stmt, err := Parse(sql)
		require.NoError(t, err, sql)
		raw, ok := stmt.(*Raw)
		require.True(t, ok, "%s parsed as %T", sql, stmt)
		assert.Equal(t, sql, raw.SQL)
		assert.Equal(t, sql, Format(stmt))
	}
}

func TestSyntaxErrors(t *testing.T) {
	for _, sql := range []string{
		"SELECT FROM t",
		"CREATE TABLE t (",
		"SELECT * FROM a.b.c.d",
		"SELECT 1 +",
		"INSERT INTO t VALUES (1",
		"DROP TABLE",
	} {
		_, err := Parse(sql)
		var synErr *SyntaxError
		require.True(t, errors.As(err, &synErr), "%s: %v", sql, err)
	}
}

func TestSyntaxErrorPosition(t *testing.T) {
	_, err := Parse("SELECT * FORM t")
	var synErr *SyntaxError
	require.True(t, errors.As(err, &synErr))
	assert.Equal(t, 1, synErr.Line)
	assert.Equal(t, 9, synErr.Pos)
	assert.Equal(t, "FORM", synErr.Near)
}

func TestExprItemSource(t *testing.T) {
	stmt, err := Parse("select true, 1::int,  2.0::float as f, to_decimal('12.3456',10,2) from t")
	require.NoError(t, err)
	sel := stmt.(*Query).Body.(*Select)

	var sources []string
	for _, c := range sel.Columns {
		sources = append(sources, c.(*ExprItem).Source)
	}
	assert.Equal(t, []string{"true", "1::int", "2.0::float", "to_decimal('12.3456',10,2)"}, sources)
	assert.Equal(t, "f", sel.Columns[2].(*ExprItem).Alias.Name)
}

func TestQualifiedStar(t *testing.T) {
	stmt, err := Parse("select t.*, s.u.* from t, s.u")
	require.NoError(t, err)
	sel := stmt.(*Query).Body.(*Select)
	require.Len(t, sel.Columns, 2)
	assert.Len(t, sel.Columns[0].(*StarItem).Qualifier, 1)
	assert.Len(t, sel.Columns[1].(*StarItem).Qualifier, 2)
	assert.Equal(t, "SELECT t.*, s.u.* FROM t, s.u", Format(stmt))
}

func TestWalkVisitsNames(t *testing.T) {
	stmt, err := Parse(`select a.x from db.s.a join (select y from b) d on d.y = a.x where exists (select 1 from c)`)
	require.NoError(t, err)

	var tables []string
	Walk(stmt, func(n Node) bool {
		if tn, ok := n.(*TableName); ok {
			tables = append(tables, tn.Display())
		}
		return true
	})
	assert.Equal(t, []string{"DB.S.A", "B", "C"}, tables)
}

func TestWalkRewritesIdentsInPlace(t *testing.T) {
	stmt, err := Parse(`create table s.t (a int, "b" int)`)
	require.NoError(t, err)
	Walk(stmt, func(n Node) bool {
		if id, ok := n.(*Ident); ok && !id.Quoted {
			id.Name = id.Name + "_x"
		}
		return true
	})
	assert.Equal(t, `CREATE TABLE s_x.t_x (a_x INT, "b" INT)`, Format(stmt))
}

func TestCastFamily(t *testing.T) {
	assert.Equal(t, FamilyFixed, CastFamily(&TypeName{Name: "INT"}))
	assert.Equal(t, FamilyReal, CastFamily(&TypeName{Name: "DOUBLE PRECISION"}))
	assert.Equal(t, FamilyTimestamp, CastFamily(&TypeName{Name: "TIMESTAMP_NTZ", Args: []string{"9"}}))
	assert.Equal(t, FamilyText, CastFamily(&TypeName{Name: "GEOGRAPHY"}))

	p, s := FixedPrecisionScale(&TypeName{Name: "DECIMAL", Args: []string{"10", "2"}})
	assert.Equal(t, 10, p)
	assert.Equal(t, 2, s)
	p, s = FixedPrecisionScale(&TypeName{Name: "BIGINT"})
	assert.Equal(t, 38, p)
	assert.Equal(t, 0, s)
}
