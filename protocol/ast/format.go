package ast

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Dialect selects the serializer output.
type Dialect int

const (
	// Warehouse renders the tree back in the warehouse dialect.
	Warehouse Dialect = iota
	// SQLite renders the tree for the embedded engine.
	SQLite
)

// Format renders n in the warehouse dialect. Keywords come out upper-cased.
func Format(n Node) string { return FormatDialect(n, Warehouse) }

// FormatSQLite renders n for the embedded engine.
func FormatSQLite(n Node) string { return FormatDialect(n, SQLite) }

func FormatDialect(n Node, d Dialect) string {
	p := &printer{d: d}
	p.node(n)
	return p.sb.String()
}

type printer struct {
	d  Dialect
	sb strings.Builder
}

func (p *printer) w(parts ...string) {
	for _, s := range parts {
		p.sb.WriteString(s)
	}
}

func (p *printer) sqlite() bool { return p.d == SQLite }

var bareIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// sqliteKeywords are words SQLite refuses as bare identifiers.
var sqliteKeywords = map[string]bool{
	"ADD": true, "ALL": true, "ALTER": true, "AND": true, "AS": true, "AUTOINCREMENT": true,
	"BETWEEN": true, "CASE": true, "CHECK": true, "COLLATE": true, "COMMIT": true,
	"CONSTRAINT": true, "CREATE": true, "DEFAULT": true, "DEFERRABLE": true,
	"DELETE": true, "DISTINCT": true, "DROP": true, "ELSE": true, "ESCAPE": true,
	"EXCEPT": true, "EXISTS": true, "FOREIGN": true, "FROM": true, "GROUP": true,
	"HAVING": true, "IN": true, "INDEX": true, "INSERT": true, "INTERSECT": true,
	"INTO": true, "IS": true, "ISNULL": true, "JOIN": true, "LIMIT": true, "NOT": true,
	"NOTHING": true, "NOTNULL": true, "NULL": true, "ON": true, "OR": true, "ORDER": true,
	"PRIMARY": true, "REFERENCES": true, "RETURNING": true, "SELECT": true, "SET": true,
	"TABLE": true, "THEN": true, "TO": true, "TRANSACTION": true, "UNION": true,
	"UNIQUE": true, "UPDATE": true, "USING": true, "VALUES": true, "WHEN": true,
	"WHERE": true, "WINDOW": true, "WITH": true,
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (p *printer) ident(id Ident) {
	if p.sqlite() {
		if id.Quoted || !bareIdent.MatchString(id.Name) || sqliteKeywords[strings.ToUpper(id.Name)] {
			p.w(quoteIdent(id.Name))
			return
		}
		p.w(id.Name)
		return
	}
	if id.Quoted {
		p.w(quoteIdent(id.Name))
		return
	}
	p.w(id.Name)
}

func (p *printer) idents(list []Ident, sep string) {
	for i, id := range list {
		if i > 0 {
			p.w(sep)
		}
		p.ident(id)
	}
}

func (p *printer) identList(list []Ident) {
	p.w("(")
	p.idents(list, ", ")
	p.w(")")
}

// tableName renders a table reference. SQLite has no schema namespace, so a
// qualified name is stored as a single identifier holding the dotted name.
func (p *printer) tableName(t *TableName) {
	if !p.sqlite() || len(t.Parts) == 1 {
		p.idents(t.Parts, ".")
		return
	}
	names := make([]string, len(t.Parts))
	for i, part := range t.Parts {
		names[i] = part.Name
	}
	p.w(quoteIdent(strings.Join(names, ".")))
}

// tableAlias writes the explicit alias, or for SQLite the implicit alias a
// qualified name would have had.
func (p *printer) tableAlias(t *TableName, alias *Ident) {
	switch {
	case alias != nil:
		p.w(" AS ")
		p.ident(*alias)
	case p.sqlite() && len(t.Parts) > 1:
		p.w(" AS ")
		p.ident(t.Table())
	}
}

func (p *printer) node(n Node) {
	switch n := n.(type) {
	case Statement:
		p.statement(n)
	case Expr:
		p.expr(n)
	case QueryBody:
		p.body(n, false)
	case TableExpr:
		p.tableExpr(n)
	case SelectItem:
		p.selectItem(n)
	case *Ident:
		p.ident(*n)
	case *TableName:
		p.tableName(n)
	case *SchemaName:
		p.idents(n.Parts, ".")
	case *TypeName:
		p.typeName(n)
	case *ColumnDef:
		p.columnDef(n)
	default:
		p.w(fmt.Sprintf("/* %T */", n))
	}
}

// ---- statements ----

func (p *printer) statement(s Statement) {
	switch s := s.(type) {
	case *Query:
		p.query(s)
	case *CreateTable:
		p.createTable(s)
	case *CreateView:
		p.w("CREATE ")
		if s.OrReplace && !p.sqlite() {
			p.w("OR REPLACE ")
		}
		p.w("VIEW ")
		if s.IfNotExists {
			p.w("IF NOT EXISTS ")
		}
		p.tableName(s.Name)
		if len(s.Columns) > 0 {
			p.w(" ")
			p.identList(s.Columns)
		}
		p.w(" AS ")
		p.query(s.Query)
	case *CreateSchema:
		p.w("CREATE ")
		if s.OrReplace {
			p.w("OR REPLACE ")
		}
		p.w("SCHEMA ")
		if s.IfNotExists {
			p.w("IF NOT EXISTS ")
		}
		p.idents(s.Name.Parts, ".")
	case *CreateDatabase:
		p.w("CREATE ")
		if s.OrReplace {
			p.w("OR REPLACE ")
		}
		p.w("DATABASE ")
		if s.IfNotExists {
			p.w("IF NOT EXISTS ")
		}
		p.ident(s.Name)
	case *Drop:
		p.w("DROP ", s.Kind.String(), " ")
		if s.IfExists {
			p.w("IF EXISTS ")
		}
		switch {
		case s.Table != nil:
			p.tableName(s.Table)
		case s.Schema != nil:
			p.idents(s.Schema.Parts, ".")
		case s.Database != nil:
			p.ident(*s.Database)
		}
		if !p.sqlite() {
			if s.Cascade {
				p.w(" CASCADE")
			} else if s.Restrict {
				p.w(" RESTRICT")
			}
		}
	case *AlterTable:
		p.w("ALTER TABLE ")
		if s.IfExists && !p.sqlite() {
			p.w("IF EXISTS ")
		}
		p.tableName(s.Name)
		p.w(" ")
		p.alterAction(s.Action)
	case *Insert:
		p.w("INSERT ")
		if s.Overwrite && !p.sqlite() {
			p.w("OVERWRITE ")
		}
		p.w("INTO ")
		p.tableName(s.Table)
		if len(s.Columns) > 0 {
			p.w(" ")
			p.identList(s.Columns)
		}
		if s.Query != nil {
			p.w(" ")
			p.query(s.Query)
			return
		}
		p.w(" VALUES ")
		for i, row := range s.Values {
			if i > 0 {
				p.w(", ")
			}
			p.w("(")
			p.exprList(row)
			p.w(")")
		}
	case *Update:
		p.w("UPDATE ")
		p.tableName(s.Table)
		p.tableAlias(s.Table, s.Alias)
		p.w(" SET ")
		for i, a := range s.Set {
			if i > 0 {
				p.w(", ")
			}
			p.ident(a.Column)
			p.w(" = ")
			p.expr(a.Value)
		}
		if len(s.From) > 0 {
			p.w(" FROM ")
			p.tableExprs(s.From)
		}
		p.where(s.Where)
	case *Delete:
		p.w("DELETE FROM ")
		p.tableName(s.Table)
		p.tableAlias(s.Table, s.Alias)
		p.where(s.Where)
	case *Truncate:
		if p.sqlite() {
			p.w("DELETE FROM ")
			p.tableName(s.Table)
			return
		}
		p.w("TRUNCATE TABLE ")
		if s.IfExists {
			p.w("IF EXISTS ")
		}
		p.tableName(s.Table)
	case *Use:
		p.w("USE ")
		if s.Kind != "" {
			p.w(s.Kind, " ")
		}
		p.idents(s.Name, ".")
	case *AlterSession:
		if s.Unset {
			p.w("ALTER SESSION UNSET ")
		} else {
			p.w("ALTER SESSION SET ")
		}
		for i, param := range s.Params {
			if i > 0 {
				p.w(", ")
			}
			p.w(param.Name)
			if param.Value != nil {
				p.w(" = ")
				p.expr(param.Value)
			}
		}
	case *Show:
		p.w("SHOW ")
		if s.Terse {
			p.w("TERSE ")
		}
		p.w(s.Object)
		if s.Like != nil {
			p.w(" LIKE ", quoteString(*s.Like))
		}
		if s.InKind != "" || len(s.In) > 0 {
			p.w(" IN")
			if s.InKind != "" {
				p.w(" ", s.InKind)
			}
			if len(s.In) > 0 {
				p.w(" ")
				p.idents(s.In, ".")
			}
		}
	case *Describe:
		p.w("DESCRIBE ", s.Kind.String(), " ")
		p.tableName(s.Table)
	case *Transaction:
		switch s.Kind {
		case TxBegin:
			p.w("BEGIN")
		case TxCommit:
			p.w("COMMIT")
		case TxRollback:
			p.w("ROLLBACK")
		}
	case *Raw:
		p.w(s.SQL)
	default:
		panic(fmt.Sprintf("ast: unhandled statement %T", s))
	}
}

func (p *printer) where(e Expr) {
	if e != nil {
		p.w(" WHERE ")
		p.expr(e)
	}
}

func (p *printer) createTable(s *CreateTable) {
	p.w("CREATE ")
	if !p.sqlite() {
		if s.OrReplace {
			p.w("OR REPLACE ")
		}
		if s.Temporary {
			p.w("TEMPORARY ")
		}
		if s.Transient {
			p.w("TRANSIENT ")
		}
	}
	p.w("TABLE ")
	if s.IfNotExists {
		p.w("IF NOT EXISTS ")
	}
	p.tableName(s.Name)
	if len(s.Columns) > 0 && !(p.sqlite() && s.As != nil) {
		p.w(" (")
		for i, c := range s.Columns {
			if i > 0 {
				p.w(", ")
			}
			p.columnDef(c)
		}
		for _, c := range s.Constraints {
			p.w(", ")
			p.constraint(c)
		}
		p.w(")")
	}
	if s.As != nil {
		p.w(" AS ")
		p.query(s.As)
	}
}

func (p *printer) columnDef(c *ColumnDef) {
	p.ident(c.Name)
	p.w(" ")
	p.columnType(c.Type)
	if c.NotNull {
		p.w(" NOT NULL")
	}
	if c.Default != nil {
		p.w(" DEFAULT ")
		if _, lit := c.Default.(*Literal); p.sqlite() && !lit {
			p.w("(")
			p.expr(c.Default)
			p.w(")")
		} else {
			p.expr(c.Default)
		}
	}
	if c.PrimaryKey {
		p.w(" PRIMARY KEY")
	}
	if c.Unique {
		p.w(" UNIQUE")
	}
	if c.Autoincrement && !p.sqlite() {
		p.w(" AUTOINCREMENT")
	}
}

// columnType keeps declared types verbatim so the engine reports them back
// as column metadata. STRING would get numeric affinity in SQLite.
func (p *printer) columnType(t *TypeName) {
	if p.sqlite() && t.Name == "STRING" {
		p.typeName(&TypeName{Name: "VARCHAR", Args: t.Args})
		return
	}
	p.typeName(t)
}

func (p *printer) typeName(t *TypeName) {
	p.w(t.String())
}

func (p *printer) constraint(c *TableConstraint) {
	if c.Name != nil {
		p.w("CONSTRAINT ")
		p.ident(*c.Name)
		p.w(" ")
	}
	switch c.Kind {
	case PrimaryKeyConstraint:
		p.w("PRIMARY KEY ")
	case UniqueConstraint:
		p.w("UNIQUE ")
	case ForeignKeyConstraint:
		p.w("FOREIGN KEY ")
	}
	p.identList(c.Columns)
	if c.RefTable != nil {
		p.w(" REFERENCES ")
		p.tableName(c.RefTable)
		if len(c.RefColumns) > 0 {
			p.w(" ")
			p.identList(c.RefColumns)
		}
	}
}

func (p *printer) alterAction(a AlterAction) {
	switch a := a.(type) {
	case *RenameTable:
		p.w("RENAME TO ")
		p.tableName(a.To)
	case *AddColumn:
		p.w("ADD COLUMN ")
		p.columnDef(a.Column)
	case *DropColumn:
		p.w("DROP COLUMN ")
		p.ident(a.Name)
	case *RenameColumn:
		p.w("RENAME COLUMN ")
		p.ident(a.From)
		p.w(" TO ")
		p.ident(a.To)
	default:
		panic(fmt.Sprintf("ast: unhandled alter action %T", a))
	}
}

// ---- queries ----

func (p *printer) query(q *Query) {
	if q.With != nil {
		p.w("WITH ")
		if q.With.Recursive {
			p.w("RECURSIVE ")
		}
		for i, c := range q.With.CTEs {
			if i > 0 {
				p.w(", ")
			}
			p.ident(c.Name)
			if len(c.Columns) > 0 {
				p.w(" ")
				p.identList(c.Columns)
			}
			p.w(" AS (")
			p.query(c.Query)
			p.w(")")
		}
		p.w(" ")
	}
	p.body(q.Body, false)
	if len(q.OrderBy) > 0 {
		p.w(" ORDER BY ")
		p.orderItems(q.OrderBy)
	}
	if q.Limit != nil {
		p.w(" LIMIT ")
		p.expr(q.Limit)
	}
	if q.Offset != nil {
		if p.sqlite() && q.Limit == nil {
			p.w(" LIMIT -1")
		}
		p.w(" OFFSET ")
		p.expr(q.Offset)
	}
}

func simpleQuery(q *Query) bool {
	return q.With == nil && len(q.OrderBy) == 0 && q.Limit == nil && q.Offset == nil
}

// body renders a query body. SQLite rejects parenthesized compound operands,
// so nested queries are unwrapped or turned into derived tables.
func (p *printer) body(b QueryBody, operand bool) {
	switch b := b.(type) {
	case *Select:
		p.selectCore(b)
	case *SetOp:
		p.body(b.Left, true)
		switch {
		case b.Kind == Union:
			p.w(" UNION ")
		case b.Kind == Intersect:
			p.w(" INTERSECT ")
		case b.Minus && !p.sqlite():
			p.w(" MINUS ")
		default:
			p.w(" EXCEPT ")
		}
		if b.All {
			p.w("ALL ")
		}
		p.body(b.Right, true)
	case *Query:
		if !p.sqlite() {
			p.w("(")
			p.query(b)
			p.w(")")
			return
		}
		if simpleQuery(b) {
			if _, compound := b.Body.(*SetOp); !compound || !operand {
				p.body(b.Body, operand)
				return
			}
		}
		p.w("SELECT * FROM (")
		p.query(b)
		p.w(")")
	default:
		panic(fmt.Sprintf("ast: unhandled query body %T", b))
	}
}

func (p *printer) selectCore(s *Select) {
	p.w("SELECT ")
	if s.Distinct {
		p.w("DISTINCT ")
	}
	for i, c := range s.Columns {
		if i > 0 {
			p.w(", ")
		}
		p.selectItem(c)
	}
	if len(s.From) > 0 {
		p.w(" FROM ")
		p.tableExprs(s.From)
	}
	p.where(s.Where)
	if len(s.GroupBy) > 0 {
		p.w(" GROUP BY ")
		p.exprList(s.GroupBy)
	}
	if s.Having != nil {
		p.w(" HAVING ")
		p.expr(s.Having)
	}
	if s.Qualify != nil {
		p.w(" QUALIFY ")
		p.expr(s.Qualify)
	}
}

func (p *printer) selectItem(item SelectItem) {
	switch it := item.(type) {
	case *StarItem:
		qual := it.Qualifier
		if p.sqlite() && len(qual) > 1 {
			qual = qual[len(qual)-1:]
		}
		if len(qual) > 0 {
			p.idents(qual, ".")
			p.w(".")
		}
		p.w("*")
	case *ExprItem:
		p.expr(it.Expr)
		if it.Alias != nil {
			p.w(" AS ")
			p.ident(*it.Alias)
		}
	default:
		panic(fmt.Sprintf("ast: unhandled select item %T", item))
	}
}

func (p *printer) orderItems(items []*OrderItem) {
	for i, o := range items {
		if i > 0 {
			p.w(", ")
		}
		p.expr(o.Expr)
		if o.Desc {
			p.w(" DESC")
		}
		if o.NullsFirst != nil {
			if *o.NullsFirst {
				p.w(" NULLS FIRST")
			} else {
				p.w(" NULLS LAST")
			}
		}
	}
}

func (p *printer) tableExprs(list []TableExpr) {
	for i, t := range list {
		if i > 0 {
			p.w(", ")
		}
		p.tableExpr(t)
	}
}

func (p *printer) tableExpr(t TableExpr) {
	switch t := t.(type) {
	case *TableRef:
		p.tableName(t.Name)
		p.tableAlias(t.Name, t.Alias)
	case *DerivedTable:
		p.w("(")
		p.query(t.Query)
		p.w(")")
		if t.Alias != nil {
			p.w(" AS ")
			p.ident(*t.Alias)
		}
	case *Join:
		p.tableExpr(t.Left)
		p.w(" ")
		if t.Natural {
			p.w("NATURAL ")
		}
		switch t.Kind {
		case InnerJoin:
			p.w("JOIN ")
		case LeftJoin:
			p.w("LEFT JOIN ")
		case RightJoin:
			p.w("RIGHT JOIN ")
		case FullJoin:
			p.w("FULL JOIN ")
		case CrossJoin:
			p.w("CROSS JOIN ")
		}
		p.tableExpr(t.Right)
		if t.On != nil {
			p.w(" ON ")
			p.expr(t.On)
		}
		if len(t.Using) > 0 {
			p.w(" USING ")
			p.identList(t.Using)
		}
	default:
		panic(fmt.Sprintf("ast: unhandled table expression %T", t))
	}
}

// ---- expressions ----

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (p *printer) exprList(list []Expr) {
	for i, e := range list {
		if i > 0 {
			p.w(", ")
		}
		p.expr(e)
	}
}

func (p *printer) expr(e Expr) {
	switch e := e.(type) {
	case *Literal:
		switch e.Kind {
		case StringLit:
			p.w(quoteString(e.Value))
		default:
			p.w(e.Value)
		}
	case *ColumnRef:
		parts := e.Parts
		if p.sqlite() && len(parts) > 2 {
			parts = parts[len(parts)-2:]
		}
		p.idents(parts, ".")
	case *Param:
		switch {
		case e.Index == 0:
			p.w("?")
		case p.sqlite():
			p.w("?", strconv.Itoa(e.Index))
		default:
			p.w(":", strconv.Itoa(e.Index))
		}
	case *FuncCall:
		p.funcCall(e)
	case *BinaryExpr:
		p.binary(e)
	case *UnaryExpr:
		switch _, nested := e.Operand.(*UnaryExpr); {
		case e.Op == "NOT":
			p.w("NOT ")
		case nested:
			p.w(e.Op, " ")
		default:
			p.w(e.Op)
		}
		p.expr(e.Operand)
	case *Cast:
		p.cast(e)
	case *Paren:
		p.w("(")
		p.expr(e.Expr)
		p.w(")")
	case *CaseExpr:
		p.w("CASE")
		if e.Operand != nil {
			p.w(" ")
			p.expr(e.Operand)
		}
		for _, wh := range e.Whens {
			p.w(" WHEN ")
			p.expr(wh.Cond)
			p.w(" THEN ")
			p.expr(wh.Result)
		}
		if e.Else != nil {
			p.w(" ELSE ")
			p.expr(e.Else)
		}
		p.w(" END")
	case *InExpr:
		p.expr(e.Expr)
		if e.Not {
			p.w(" NOT")
		}
		p.w(" IN (")
		if e.Subquery != nil {
			p.query(e.Subquery)
		} else {
			p.exprList(e.List)
		}
		p.w(")")
	case *BetweenExpr:
		p.expr(e.Expr)
		if e.Not {
			p.w(" NOT")
		}
		p.w(" BETWEEN ")
		p.expr(e.Low)
		p.w(" AND ")
		p.expr(e.High)
	case *IsNullExpr:
		p.expr(e.Expr)
		if e.Not {
			p.w(" IS NOT NULL")
		} else {
			p.w(" IS NULL")
		}
	case *LikeExpr:
		p.like(e)
	case *Subquery:
		p.w("(")
		p.query(e.Query)
		p.w(")")
	case *ExistsExpr:
		if e.Not {
			p.w("NOT ")
		}
		p.w("EXISTS (")
		p.query(e.Query)
		p.w(")")
	default:
		panic(fmt.Sprintf("ast: unhandled expression %T", e))
	}
}

func (p *printer) binary(e *BinaryExpr) {
	op := e.Op
	if p.sqlite() {
		switch op {
		case "IS DISTINCT FROM":
			op = "IS NOT"
		case "IS NOT DISTINCT FROM":
			op = "IS"
		case "/":
			// warehouse division never truncates
			p.w("CAST(")
			p.expr(e.Left)
			p.w(" AS REAL) / ")
			p.expr(e.Right)
			return
		}
	}
	p.expr(e.Left)
	p.w(" ", op, " ")
	p.expr(e.Right)
}

func (p *printer) like(e *LikeExpr) {
	lower := p.sqlite() && e.CaseInsensitive
	wrap := func(x Expr) {
		if lower {
			p.w("LOWER(")
			p.expr(x)
			p.w(")")
			return
		}
		p.expr(x)
	}
	wrap(e.Expr)
	if e.Not {
		p.w(" NOT")
	}
	if e.CaseInsensitive && !p.sqlite() {
		p.w(" ILIKE ")
	} else {
		p.w(" LIKE ")
	}
	wrap(e.Pattern)
	if e.Escape != nil {
		p.w(" ESCAPE ")
		p.expr(e.Escape)
	}
}

// sqliteFuncNames maps warehouse function names onto engine builtins or the
// compat functions registered by the driver.
var sqliteFuncNames = map[string]string{
	"IFF":               "IIF",
	"NVL":               "IFNULL",
	"LEN":               "LENGTH",
	"CHAR_LENGTH":       "LENGTH",
	"CHARACTER_LENGTH":  "LENGTH",
	"SUBSTRING":         "SUBSTR",
	"TO_DECIMAL":        "to_decimal",
	"TO_NUMBER":         "to_decimal",
	"TO_NUMERIC":        "to_decimal",
	"TRY_TO_DECIMAL":    "try_to_decimal",
	"TRY_TO_NUMBER":     "try_to_decimal",
	"TRY_TO_NUMERIC":    "try_to_decimal",
	"TO_VARCHAR":        "to_varchar",
	"TO_CHAR":           "to_varchar",
	"TO_BOOLEAN":        "to_boolean",
	"TRY_TO_BOOLEAN":    "try_to_boolean",
	"TO_DOUBLE":         "to_double",
	"SYSTEM$WAIT":       "system_wait",
	"DIV0":              "div0",
	"REGEXP_LIKE":       "regexp_like",
	"RLIKE":             "regexp_like",
	"CONTAINS":          "contains",
	"STARTSWITH":        "startswith",
	"ENDSWITH":          "endswith",
	"SPLIT_PART":        "split_part",
	"UUID_STRING":       "uuid_string",
	"SYSDATE":           "CURRENT_TIMESTAMP",
	"GETDATE":           "CURRENT_TIMESTAMP",
	"CURRENT_DATE":      "CURRENT_DATE",
	"CURRENT_TIME":      "CURRENT_TIME",
	"CURRENT_TIMESTAMP": "CURRENT_TIMESTAMP",
	"LOCALTIMESTAMP":    "CURRENT_TIMESTAMP",
	"LOCALTIME":         "CURRENT_TIME",
}

var sqliteNiladic = map[string]bool{"CURRENT_DATE": true, "CURRENT_TIME": true, "CURRENT_TIMESTAMP": true}

func (p *printer) funcCall(f *FuncCall) {
	name := f.Name
	if p.sqlite() {
		if mapped, ok := sqliteFuncNames[name]; ok {
			name = mapped
		}
		if sqliteNiladic[name] {
			p.w(name)
			return
		}
		if f.Name == "NVL2" && len(f.Args) == 3 {
			p.w("IIF(")
			p.expr(f.Args[0])
			p.w(" IS NOT NULL, ")
			p.expr(f.Args[1])
			p.w(", ")
			p.expr(f.Args[2])
			p.w(")")
			return
		}
	} else if f.NoParens {
		p.w(name)
		return
	}
	p.w(name, "(")
	switch {
	case f.Star:
		p.w("*")
	default:
		if f.Distinct {
			p.w("DISTINCT ")
		}
		p.exprList(f.Args)
	}
	p.w(")")
	if f.Over != nil {
		p.w(" OVER (")
		if len(f.Over.PartitionBy) > 0 {
			p.w("PARTITION BY ")
			p.exprList(f.Over.PartitionBy)
		}
		if len(f.Over.OrderBy) > 0 {
			if len(f.Over.PartitionBy) > 0 {
				p.w(" ")
			}
			p.w("ORDER BY ")
			p.orderItems(f.Over.OrderBy)
		}
		p.w(")")
	}
}

func (p *printer) cast(c *Cast) {
	if !p.sqlite() {
		if c.DoubleColon {
			_, compound := c.Expr.(*BinaryExpr)
			if compound {
				p.w("(")
			}
			p.expr(c.Expr)
			if compound {
				p.w(")")
			}
			p.w("::")
			p.typeName(c.Type)
			return
		}
		if c.Try {
			p.w("TRY_CAST(")
		} else {
			p.w("CAST(")
		}
		p.expr(c.Expr)
		p.w(" AS ")
		p.typeName(c.Type)
		p.w(")")
		return
	}

	call := func(fn string, extra ...string) {
		p.w(fn, "(")
		p.expr(c.Expr)
		for _, x := range extra {
			p.w(", ", x)
		}
		p.w(")")
	}
	try := func(fn string) string {
		if c.Try {
			return "try_" + fn
		}
		return fn
	}
	switch k := CastFamily(c.Type); k {
	case FamilyFixed:
		prec, scale := FixedPrecisionScale(c.Type)
		call(try("to_decimal"), strconv.Itoa(prec), strconv.Itoa(scale))
	case FamilyBoolean:
		call(try("to_boolean"))
	case FamilyDate:
		call("date")
	case FamilyTime:
		call("time")
	case FamilyTimestamp:
		call("datetime")
	case FamilySemiStructured:
		p.expr(c.Expr)
	default:
		p.w("CAST(")
		p.expr(c.Expr)
		p.w(" AS ", sqliteAffinity[k], ")")
	}
}

// TypeFamily groups warehouse type names by how values are represented.
type TypeFamily int

const (
	FamilyText TypeFamily = iota
	FamilyFixed
	FamilyReal
	FamilyBoolean
	FamilyDate
	FamilyTime
	FamilyTimestamp
	FamilyBinary
	FamilySemiStructured
)

var sqliteAffinity = map[TypeFamily]string{
	FamilyText:   "TEXT",
	FamilyReal:   "REAL",
	FamilyBinary: "BLOB",
}

var typeFamilies = map[string]TypeFamily{
	"NUMBER": FamilyFixed, "DECIMAL": FamilyFixed, "NUMERIC": FamilyFixed, "DEC": FamilyFixed,
	"INT": FamilyFixed, "INTEGER": FamilyFixed, "BIGINT": FamilyFixed, "SMALLINT": FamilyFixed,
	"TINYINT": FamilyFixed, "BYTEINT": FamilyFixed,
	"FLOAT": FamilyReal, "FLOAT4": FamilyReal, "FLOAT8": FamilyReal, "DOUBLE": FamilyReal,
	"DOUBLE PRECISION": FamilyReal, "REAL": FamilyReal,
	"BOOLEAN": FamilyBoolean, "BOOL": FamilyBoolean,
	"DATE": FamilyDate,
	"TIME": FamilyTime,
	"TIMESTAMP": FamilyTimestamp, "DATETIME": FamilyTimestamp, "TIMESTAMP_NTZ": FamilyTimestamp,
	"TIMESTAMP_LTZ": FamilyTimestamp, "TIMESTAMP_TZ": FamilyTimestamp,
	"BINARY": FamilyBinary, "VARBINARY": FamilyBinary, "BLOB": FamilyBinary,
	"VARIANT": FamilySemiStructured, "OBJECT": FamilySemiStructured, "ARRAY": FamilySemiStructured,
}

// CastFamily classifies a declared type. Unknown names are text.
func CastFamily(t *TypeName) TypeFamily {
	if f, ok := typeFamilies[strings.ToUpper(t.Name)]; ok {
		return f
	}
	return FamilyText
}

// FixedPrecisionScale returns the precision and scale of a fixed-point
// type. Integer aliases are NUMBER(38,0); a bare NUMBER is (38,0).
func FixedPrecisionScale(t *TypeName) (int, int) {
	prec, scale := 38, 0
	switch strings.ToUpper(t.Name) {
	case "NUMBER", "DECIMAL", "NUMERIC", "DEC":
		if len(t.Args) > 0 {
			if v, err := strconv.Atoi(t.Args[0]); err == nil {
				prec = v
			}
		}
		if len(t.Args) > 1 {
			if v, err := strconv.Atoi(t.Args[1]); err == nil {
				scale = v
			}
		}
	}
	return prec, scale
}
