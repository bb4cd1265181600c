// Package ast is the warehouse SQL syntax tree.
//
// Node kinds form a closed set: every node type implements an unexported
// marker method, so only this package can add variants, and Walk plus the
// serializers switch over all of them explicitly.
package ast

import "strings"

// Node is any syntax tree node.
type Node interface {
	node()
}

// Statement is a top-level SQL statement.
type Statement interface {
	Node
	statement()
}

// Expr is a scalar expression.
type Expr interface {
	Node
	expr()
}

// TableExpr is an item of a FROM clause.
type TableExpr interface {
	Node
	tableExpr()
}

// SelectItem is one projection of a SELECT list.
type SelectItem interface {
	Node
	selectItem()
}

// QueryBody is the body of a query: a SELECT core, a set operation or a
// parenthesized query.
type QueryBody interface {
	Node
	queryBody()
}

// AlterAction is the action of an ALTER TABLE statement.
type AlterAction interface {
	Node
	alterAction()
}

// Ident is a single identifier. Quoted identifiers keep their case.
type Ident struct {
	Name   string
	Quoted bool
}

// Display renders the identifier the way the warehouse reports it in
// messages: unquoted names upper-cased, quoted names verbatim.
func (i Ident) Display() string {
	if i.Quoted {
		return i.Name
	}
	return strings.ToUpper(i.Name)
}

// Equal compares identifiers with warehouse resolution rules.
func (i Ident) Equal(o Ident) bool {
	return i.Display() == o.Display()
}

// TableName is a table or view reference of up to three parts
// (database.schema.table). Origin holds the parts as they were before the
// namespace was flattened, nil otherwise.
type TableName struct {
	Parts  []Ident
	Origin []Ident
}

func (t *TableName) Table() Ident { return t.Parts[len(t.Parts)-1] }

// Qualifier returns every part but the last.
func (t *TableName) Qualifier() []Ident { return t.Parts[:len(t.Parts)-1] }

// Display joins the display form of the parts with dots.
func (t *TableName) Display() string { return displayParts(t.Parts) }

// SchemaName is a schema reference of up to two parts (database.schema).
type SchemaName struct {
	Parts  []Ident
	Origin []Ident
}

func (s *SchemaName) Schema() Ident { return s.Parts[len(s.Parts)-1] }

func (s *SchemaName) Display() string { return displayParts(s.Parts) }

func displayParts(parts []Ident) string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.Display()
	}
	return strings.Join(out, ".")
}

// TypeName is a declared data type such as NUMBER(10,2).
type TypeName struct {
	Name string
	Args []string
}

func (t *TypeName) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	return t.Name + "(" + strings.Join(t.Args, ",") + ")"
}

// ---- statements ----

// Query is SELECT with its optional WITH, ORDER BY, LIMIT and OFFSET.
type Query struct {
	With    *With
	Body    QueryBody
	OrderBy []*OrderItem
	Limit   Expr
	Offset  Expr
}

type With struct {
	Recursive bool
	CTEs      []*CTE
}

type CTE struct {
	Name    Ident
	Columns []Ident
	Query   *Query
}

type OrderItem struct {
	Expr       Expr
	Desc       bool
	NullsFirst *bool
}

// Select is a single SELECT core.
type Select struct {
	Distinct bool
	Columns  []SelectItem
	From     []TableExpr
	Where    Expr
	GroupBy  []Expr
	Having   Expr
	Qualify  Expr
}

type SetOpKind int

const (
	Union SetOpKind = iota
	Except
	Intersect
)

// SetOp combines two query bodies. Minus records the warehouse spelling of
// EXCEPT.
type SetOp struct {
	Kind  SetOpKind
	All   bool
	Minus bool
	Left  QueryBody
	Right QueryBody
}

// StarItem is * or qualifier.*.
type StarItem struct {
	Qualifier []Ident
}

// ExprItem is a projected expression. Source is the expression text as the
// client wrote it.
type ExprItem struct {
	Expr   Expr
	Alias  *Ident
	Source string
}

// TableRef names a table in a FROM clause.
type TableRef struct {
	Name  *TableName
	Alias *Ident
}

// DerivedTable is a parenthesized subquery in a FROM clause.
type DerivedTable struct {
	Query *Query
	Alias *Ident
}

type JoinKind int

const (
	InnerJoin JoinKind = iota
	LeftJoin
	RightJoin
	FullJoin
	CrossJoin
)

type Join struct {
	Kind    JoinKind
	Natural bool
	Left    TableExpr
	Right   TableExpr
	On      Expr
	Using   []Ident
}

type ColumnDef struct {
	Name          Ident
	Type          *TypeName
	NotNull       bool
	Default       Expr
	PrimaryKey    bool
	Unique        bool
	Autoincrement bool
}

type ConstraintKind int

const (
	PrimaryKeyConstraint ConstraintKind = iota
	UniqueConstraint
	ForeignKeyConstraint
)

type TableConstraint struct {
	Name       *Ident
	Kind       ConstraintKind
	Columns    []Ident
	RefTable   *TableName
	RefColumns []Ident
}

// CreateTable is CREATE [OR REPLACE] [TEMPORARY|TRANSIENT] TABLE.
type CreateTable struct {
	OrReplace   bool
	Temporary   bool
	Transient   bool
	IfNotExists bool
	Name        *TableName
	Columns     []*ColumnDef
	Constraints []*TableConstraint
	As          *Query
}

type CreateView struct {
	OrReplace   bool
	IfNotExists bool
	Name        *TableName
	Columns     []Ident
	Query       *Query
}

type CreateSchema struct {
	OrReplace   bool
	IfNotExists bool
	Name        *SchemaName
}

type CreateDatabase struct {
	OrReplace   bool
	IfNotExists bool
	Name        Ident
}

type ObjectKind int

const (
	TableObject ObjectKind = iota
	ViewObject
	SchemaObject
	DatabaseObject
)

func (k ObjectKind) String() string {
	switch k {
	case TableObject:
		return "TABLE"
	case ViewObject:
		return "VIEW"
	case SchemaObject:
		return "SCHEMA"
	case DatabaseObject:
		return "DATABASE"
	}
	return "OBJECT"
}

// Drop removes an object. Table is set for TABLE and VIEW, Schema for
// SCHEMA, Database for DATABASE.
type Drop struct {
	Kind     ObjectKind
	IfExists bool
	Table    *TableName
	Schema   *SchemaName
	Database *Ident
	Cascade  bool
	Restrict bool
}

type AlterTable struct {
	IfExists bool
	Name     *TableName
	Action   AlterAction
}

type RenameTable struct {
	To *TableName
}

type AddColumn struct {
	Column *ColumnDef
}

type DropColumn struct {
	Name Ident
}

type RenameColumn struct {
	From Ident
	To   Ident
}

// Insert is INSERT [OVERWRITE] INTO ... VALUES | query.
type Insert struct {
	Overwrite bool
	Table     *TableName
	Columns   []Ident
	Values    [][]Expr
	Query     *Query
}

type Assignment struct {
	Column Ident
	Value  Expr
}

type Update struct {
	Table *TableName
	Alias *Ident
	Set   []*Assignment
	From  []TableExpr
	Where Expr
}

type Delete struct {
	Table *TableName
	Alias *Ident
	Where Expr
}

type Truncate struct {
	IfExists bool
	Table    *TableName
}

// Use changes the session namespace. Kind is "", DATABASE, SCHEMA,
// WAREHOUSE or ROLE.
type Use struct {
	Kind string
	Name []Ident
}

type SessionParam struct {
	Name  string
	Value Expr
}

type AlterSession struct {
	Unset  bool
	Params []*SessionParam
}

// Show lists catalog objects. Object is TABLES, SCHEMAS, DATABASES,
// VIEWS, COLUMNS or PARAMETERS.
type Show struct {
	Terse  bool
	Object string
	Like   *string
	InKind string
	In     []Ident
}

type Describe struct {
	Kind  ObjectKind
	Table *TableName
}

type TxKind int

const (
	TxBegin TxKind = iota
	TxCommit
	TxRollback
)

type Transaction struct {
	Kind TxKind
}

// Raw is a statement the parser does not model. It is passed through to the
// engine untouched.
type Raw struct {
	SQL string
}

// ---- expressions ----

type LiteralKind int

const (
	NumberLit LiteralKind = iota
	StringLit
	BoolLit
	NullLit
)

// Literal keeps the literal's source text: digits for numbers, the
// unescaped value for strings, TRUE/FALSE for booleans.
type Literal struct {
	Kind  LiteralKind
	Value string
}

// ColumnRef is a column reference of up to four parts
// (database.schema.table.column).
type ColumnRef struct {
	Parts []Ident
}

func (c *ColumnRef) Column() Ident { return c.Parts[len(c.Parts)-1] }

// Param is a bind marker: "?" (Index 0) or ":N".
type Param struct {
	Index int
}

type WindowSpec struct {
	PartitionBy []Expr
	OrderBy     []*OrderItem
}

// FuncCall is a function invocation. NoParens marks niladic forms such as
// CURRENT_DATE.
type FuncCall struct {
	Name     string
	Args     []Expr
	Star     bool
	Distinct bool
	NoParens bool
	Over     *WindowSpec
}

type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

type UnaryExpr struct {
	Op      string
	Operand Expr
}

// Cast is CAST(x AS T), TRY_CAST(x AS T) or x::T.
type Cast struct {
	Expr        Expr
	Type        *TypeName
	Try         bool
	DoubleColon bool
}

type Paren struct {
	Expr Expr
}

type When struct {
	Cond   Expr
	Result Expr
}

type CaseExpr struct {
	Operand Expr
	Whens   []*When
	Else    Expr
}

type InExpr struct {
	Expr     Expr
	Not      bool
	List     []Expr
	Subquery *Query
}

type BetweenExpr struct {
	Expr Expr
	Not  bool
	Low  Expr
	High Expr
}

type IsNullExpr struct {
	Expr Expr
	Not  bool
}

// LikeExpr is [NOT] LIKE / ILIKE with an optional ESCAPE.
type LikeExpr struct {
	Expr            Expr
	Not             bool
	CaseInsensitive bool
	Pattern         Expr
	Escape          Expr
}

type Subquery struct {
	Query *Query
}

type ExistsExpr struct {
	Not   bool
	Query *Query
}

func (*Ident) node()           {}
func (*TableName) node()       {}
func (*SchemaName) node()      {}
func (*TypeName) node()        {}
func (*Query) node()           {}
func (*With) node()            {}
func (*CTE) node()             {}
func (*OrderItem) node()       {}
func (*Select) node()          {}
func (*SetOp) node()           {}
func (*StarItem) node()        {}
func (*ExprItem) node()        {}
func (*TableRef) node()        {}
func (*DerivedTable) node()    {}
func (*Join) node()            {}
func (*ColumnDef) node()       {}
func (*TableConstraint) node() {}
func (*CreateTable) node()     {}
func (*CreateView) node()      {}
func (*CreateSchema) node()    {}
func (*CreateDatabase) node()  {}
func (*Drop) node()            {}
func (*AlterTable) node()      {}
func (*RenameTable) node()     {}
func (*AddColumn) node()       {}
func (*DropColumn) node()      {}
func (*RenameColumn) node()    {}
func (*Insert) node()          {}
func (*Assignment) node()      {}
func (*Update) node()          {}
func (*Delete) node()          {}
func (*Truncate) node()        {}
func (*Use) node()             {}
func (*SessionParam) node()    {}
func (*AlterSession) node()    {}
func (*Show) node()            {}
func (*Describe) node()        {}
func (*Transaction) node()     {}
func (*Raw) node()             {}
func (*Literal) node()         {}
func (*ColumnRef) node()       {}
func (*Param) node()           {}
func (*WindowSpec) node()      {}
func (*FuncCall) node()        {}
func (*BinaryExpr) node()      {}
func (*UnaryExpr) node()       {}
func (*Cast) node()            {}
func (*Paren) node()           {}
func (*When) node()            {}
func (*CaseExpr) node()        {}
func (*InExpr) node()          {}
func (*BetweenExpr) node()     {}
func (*IsNullExpr) node()      {}
func (*LikeExpr) node()        {}
func (*Subquery) node()        {}
func (*ExistsExpr) node()      {}

func (*Query) statement()          {}
func (*CreateTable) statement()    {}
func (*CreateView) statement()     {}
func (*CreateSchema) statement()   {}
func (*CreateDatabase) statement() {}
func (*Drop) statement()           {}
func (*AlterTable) statement()     {}
func (*Insert) statement()         {}
func (*Update) statement()         {}
func (*Delete) statement()         {}
func (*Truncate) statement()       {}
func (*Use) statement()            {}
func (*AlterSession) statement()   {}
func (*Show) statement()           {}
func (*Describe) statement()       {}
func (*Transaction) statement()    {}
func (*Raw) statement()            {}

func (*Select) queryBody() {}
func (*SetOp) queryBody()  {}
func (*Query) queryBody()  {}

func (*StarItem) selectItem() {}
func (*ExprItem) selectItem() {}

func (*TableRef) tableExpr()     {}
func (*DerivedTable) tableExpr() {}
func (*Join) tableExpr()         {}

func (*RenameTable) alterAction()  {}
func (*AddColumn) alterAction()    {}
func (*DropColumn) alterAction()   {}
func (*RenameColumn) alterAction() {}

func (*Literal) expr()     {}
func (*ColumnRef) expr()   {}
func (*Param) expr()       {}
func (*FuncCall) expr()    {}
func (*BinaryExpr) expr()  {}
func (*UnaryExpr) expr()   {}
func (*Cast) expr()        {}
func (*Paren) expr()       {}
func (*CaseExpr) expr()    {}
func (*InExpr) expr()      {}
func (*BetweenExpr) expr() {}
func (*IsNullExpr) expr()  {}
func (*LikeExpr) expr()    {}
func (*Subquery) expr()    {}
func (*ExistsExpr) expr()  {}
