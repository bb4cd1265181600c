package ast

import "fmt"

// Visitor is called for every node in depth-first order. Returning false
// skips the node's children.
type Visitor func(n Node) bool

// Walk traverses the tree rooted at n. Identifiers are visited by pointer so
// a visitor can rewrite them in place.
func Walk(n Node, v Visitor) {
	if n == nil || !v(n) {
		return
	}
	w := walker{v: v}
	w.children(n)
}

type walker struct {
	v Visitor
}

func (w walker) node(n Node) {
	if n == nil {
		return
	}
	Walk(n, w.v)
}

func (w walker) expr(e Expr) {
	if e != nil {
		Walk(e, w.v)
	}
}

func (w walker) exprs(list []Expr) {
	for _, e := range list {
		w.expr(e)
	}
}

func (w walker) idents(list []Ident) {
	for i := range list {
		Walk(&list[i], w.v)
	}
}

func (w walker) ident(id *Ident) {
	if id != nil {
		Walk(id, w.v)
	}
}

func (w walker) query(q *Query) {
	if q != nil {
		Walk(q, w.v)
	}
}

func (w walker) table(t *TableName) {
	if t != nil {
		Walk(t, w.v)
	}
}

func (w walker) tableExprs(list []TableExpr) {
	for _, t := range list {
		w.node(t)
	}
}

func (w walker) typeName(t *TypeName) {
	if t != nil {
		Walk(t, w.v)
	}
}

func (w walker) orderBy(items []*OrderItem) {
	for _, o := range items {
		Walk(o, w.v)
	}
}

func (w walker) columnDef(c *ColumnDef) {
	if c != nil {
		Walk(c, w.v)
	}
}

func (w walker) children(n Node) {
	switch n := n.(type) {
	case *Ident, *TypeName, *Literal, *Param, *Transaction, *Raw:
	case *Show:
		w.idents(n.In)
	case *TableName:
		w.idents(n.Parts)
	case *SchemaName:
		w.idents(n.Parts)
	case *ColumnRef:
		w.idents(n.Parts)

	case *Query:
		if n.With != nil {
			Walk(n.With, w.v)
		}
		w.node(n.Body)
		w.orderBy(n.OrderBy)
		w.expr(n.Limit)
		w.expr(n.Offset)
	case *With:
		for _, c := range n.CTEs {
			Walk(c, w.v)
		}
	case *CTE:
		w.ident(&n.Name)
		w.idents(n.Columns)
		w.query(n.Query)
	case *OrderItem:
		w.expr(n.Expr)
	case *Select:
		for _, c := range n.Columns {
			w.node(c)
		}
		w.tableExprs(n.From)
		w.expr(n.Where)
		w.exprs(n.GroupBy)
		w.expr(n.Having)
		w.expr(n.Qualify)
	case *SetOp:
		w.node(n.Left)
		w.node(n.Right)
	case *StarItem:
		w.idents(n.Qualifier)
	case *ExprItem:
		w.expr(n.Expr)
		w.ident(n.Alias)
	case *TableRef:
		w.table(n.Name)
		w.ident(n.Alias)
	case *DerivedTable:
		w.query(n.Query)
		w.ident(n.Alias)
	case *Join:
		w.node(n.Left)
		w.node(n.Right)
		w.expr(n.On)
		w.idents(n.Using)

	case *ColumnDef:
		w.ident(&n.Name)
		w.typeName(n.Type)
		w.expr(n.Default)
	case *TableConstraint:
		w.ident(n.Name)
		w.idents(n.Columns)
		w.table(n.RefTable)
		w.idents(n.RefColumns)
	case *CreateTable:
		w.table(n.Name)
		for _, c := range n.Columns {
			w.columnDef(c)
		}
		for _, c := range n.Constraints {
			Walk(c, w.v)
		}
		w.query(n.As)
	case *CreateView:
		w.table(n.Name)
		w.idents(n.Columns)
		w.query(n.Query)
	case *CreateSchema:
		w.node(n.Name)
	case *CreateDatabase:
		w.ident(&n.Name)
	case *Drop:
		w.table(n.Table)
		if n.Schema != nil {
			Walk(n.Schema, w.v)
		}
		w.ident(n.Database)
	case *AlterTable:
		w.table(n.Name)
		w.node(n.Action)
	case *RenameTable:
		w.table(n.To)
	case *AddColumn:
		w.columnDef(n.Column)
	case *DropColumn:
		w.ident(&n.Name)
	case *RenameColumn:
		w.ident(&n.From)
		w.ident(&n.To)
	case *Insert:
		w.table(n.Table)
		w.idents(n.Columns)
		for _, row := range n.Values {
			w.exprs(row)
		}
		w.query(n.Query)
	case *Assignment:
		w.ident(&n.Column)
		w.expr(n.Value)
	case *Update:
		w.table(n.Table)
		w.ident(n.Alias)
		for _, a := range n.Set {
			Walk(a, w.v)
		}
		w.tableExprs(n.From)
		w.expr(n.Where)
	case *Delete:
		w.table(n.Table)
		w.ident(n.Alias)
		w.expr(n.Where)
	case *Truncate:
		w.table(n.Table)
	case *Use:
		w.idents(n.Name)
	case *SessionParam:
		w.expr(n.Value)
	case *AlterSession:
		for _, p := range n.Params {
			Walk(p, w.v)
		}
	case *Describe:
		w.table(n.Table)

	case *WindowSpec:
		w.exprs(n.PartitionBy)
		w.orderBy(n.OrderBy)
	case *FuncCall:
		w.exprs(n.Args)
		if n.Over != nil {
			Walk(n.Over, w.v)
		}
	case *BinaryExpr:
		w.expr(n.Left)
		w.expr(n.Right)
	case *UnaryExpr:
		w.expr(n.Operand)
	case *Cast:
		w.expr(n.Expr)
		w.typeName(n.Type)
	case *Paren:
		w.expr(n.Expr)
	case *When:
		w.expr(n.Cond)
		w.expr(n.Result)
	case *CaseExpr:
		w.expr(n.Operand)
		for _, wh := range n.Whens {
			Walk(wh, w.v)
		}
		w.expr(n.Else)
	case *InExpr:
		w.expr(n.Expr)
		w.exprs(n.List)
		w.query(n.Subquery)
	case *BetweenExpr:
		w.expr(n.Expr)
		w.expr(n.Low)
		w.expr(n.High)
	case *IsNullExpr:
		w.expr(n.Expr)
	case *LikeExpr:
		w.expr(n.Expr)
		w.expr(n.Pattern)
		w.expr(n.Escape)
	case *Subquery:
		w.query(n.Query)
	case *ExistsExpr:
		w.query(n.Query)
	default:
		panic(fmt.Sprintf("ast: unhandled node %T", n))
	}
}

// RewriteExprs replaces every expression below root with fn(expr), top
// down. fn must return its argument when it has nothing to replace.
func RewriteExprs(root Node, fn func(Expr) Expr) {
	re := func(e Expr) Expr {
		if e == nil {
			return nil
		}
		return fn(e)
	}
	list := func(l []Expr) {
		for i := range l {
			l[i] = re(l[i])
		}
	}
	Walk(root, func(n Node) bool {
		switch n := n.(type) {
		case *Query:
			n.Limit = re(n.Limit)
			n.Offset = re(n.Offset)
		case *OrderItem:
			n.Expr = re(n.Expr)
		case *Select:
			n.Where = re(n.Where)
			list(n.GroupBy)
			n.Having = re(n.Having)
			n.Qualify = re(n.Qualify)
		case *ExprItem:
			n.Expr = re(n.Expr)
		case *Join:
			n.On = re(n.On)
		case *ColumnDef:
			n.Default = re(n.Default)
		case *Insert:
			for _, row := range n.Values {
				list(row)
			}
		case *Assignment:
			n.Value = re(n.Value)
		case *Update:
			n.Where = re(n.Where)
		case *Delete:
			n.Where = re(n.Where)
		case *SessionParam:
			n.Value = re(n.Value)
		case *WindowSpec:
			list(n.PartitionBy)
		case *FuncCall:
			list(n.Args)
		case *BinaryExpr:
			n.Left = re(n.Left)
			n.Right = re(n.Right)
		case *UnaryExpr:
			n.Operand = re(n.Operand)
		case *Cast:
			n.Expr = re(n.Expr)
		case *Paren:
			n.Expr = re(n.Expr)
		case *When:
			n.Cond = re(n.Cond)
			n.Result = re(n.Result)
		case *CaseExpr:
			n.Operand = re(n.Operand)
			n.Else = re(n.Else)
		case *InExpr:
			n.Expr = re(n.Expr)
			list(n.List)
		case *BetweenExpr:
			n.Expr = re(n.Expr)
			n.Low = re(n.Low)
			n.High = re(n.High)
		case *IsNullExpr:
			n.Expr = re(n.Expr)
		case *LikeExpr:
			n.Expr = re(n.Expr)
			n.Pattern = re(n.Pattern)
			n.Escape = re(n.Escape)
		}
		return true
	})
}

// LeftmostSelect returns the SELECT core that names a query's result
// columns.
func LeftmostSelect(q *Query) *Select {
	body := q.Body
	for {
		switch b := body.(type) {
		case *Select:
			return b
		case *SetOp:
			body = b.Left
		case *Query:
			body = b.Body
		default:
			return nil
		}
	}
}
