package ast

import (
	"fmt"
	"strconv"
	"strings"
)

// Parser is a recursive-descent parser over one statement's tokens.
type Parser struct {
	src  string
	toks []Token
	pos  int
}

// ParseAll splits sql on top-level semicolons and parses each non-empty
// statement. Statements whose leading keyword is not modeled come back as
// *Raw; statements that are modeled but malformed fail with *SyntaxError.
func ParseAll(sql string) ([]Statement, error) {
	toks, err := Tokenize(sql)
	if err != nil {
		return nil, err
	}
	eof := toks[len(toks)-1]

	var stmts []Statement
	start := 0
	for i, t := range toks {
		if !(t.IsOp(";") || t.Kind == TokEOF) {
			continue
		}
		if i > start {
			seg := make([]Token, 0, i-start+1)
			seg = append(seg, toks[start:i]...)
			seg = append(seg, Token{Kind: TokEOF, Start: t.Start, End: t.Start, Line: t.Line, Col: t.Col})
			p := &Parser{src: sql, toks: seg}
			stmt, err := p.parseStatement()
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, stmt)
		}
		start = i + 1
	}
	if len(stmts) == 0 {
		return nil, &SyntaxError{Line: eof.Line, Pos: eof.Col - 1, Msg: "empty statement"}
	}
	return stmts, nil
}

// Parse parses exactly one statement.
func Parse(sql string) (Statement, error) {
	stmts, err := ParseAll(sql)
	if err != nil {
		return nil, err
	}
	if len(stmts) != 1 {
		return nil, fmt.Errorf("expected 1 statement, got %d", len(stmts))
	}
	return stmts[0], nil
}

// ---- token helpers ----

func (p *Parser) peek() Token { return p.toks[p.pos] }

func (p *Parser) peekAt(off int) Token {
	if p.pos+off >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+off]
}

func (p *Parser) next() Token {
	t := p.toks[p.pos]
	if t.Kind != TokEOF {
		p.pos++
	}
	return t
}

func (p *Parser) prev() Token {
	if p.pos == 0 {
		return p.toks[0]
	}
	return p.toks[p.pos-1]
}

func (p *Parser) errAt(t Token, msg string) error {
	near := t.Text
	if t.Kind == TokString {
		near = "'" + t.Text + "'"
	}
	return &SyntaxError{Line: t.Line, Pos: t.Col - 1, Near: near, Msg: msg}
}

func (p *Parser) accept(kw string) bool {
	if p.peek().Is(kw) {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) acceptSeq(kws ...string) bool {
	for i, kw := range kws {
		if !p.peekAt(i).Is(kw) {
			return false
		}
	}
	p.pos += len(kws)
	return true
}

func (p *Parser) acceptOp(op string) bool {
	if p.peek().IsOp(op) {
		p.pos++
		return true
	}
	return false
}

func (p *Parser) expect(kw string) error {
	if !p.accept(kw) {
		return p.errAt(p.peek(), "expected "+kw)
	}
	return nil
}

func (p *Parser) expectOp(op string) error {
	if !p.acceptOp(op) {
		return p.errAt(p.peek(), "expected '"+op+"'")
	}
	return nil
}

func (p *Parser) expectEOF() error {
	if t := p.peek(); t.Kind != TokEOF {
		return p.errAt(t, "")
	}
	return nil
}

func (p *Parser) raw() *Raw {
	first := p.toks[0]
	last := p.toks[len(p.toks)-1]
	for i := len(p.toks) - 1; i >= 0; i-- {
		if p.toks[i].Kind != TokEOF {
			last = p.toks[i]
			break
		}
	}
	return &Raw{SQL: p.src[first.Start:last.End]}
}

// ---- identifiers and names ----

func (p *Parser) isIdentTok(t Token) bool {
	return t.Kind == TokIdent || t.Kind == TokQuotedIdent
}

func (p *Parser) parseIdent() (Ident, error) {
	t := p.peek()
	switch t.Kind {
	case TokIdent:
		p.pos++
		return Ident{Name: t.Text}, nil
	case TokQuotedIdent:
		p.pos++
		return Ident{Name: t.Text, Quoted: true}, nil
	}
	return Ident{}, p.errAt(t, "expected identifier")
}

func (p *Parser) parseIdentList() ([]Ident, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	var out []Ident
	for {
		id, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		out = append(out, id)
		if !p.acceptOp(",") {
			break
		}
	}
	return out, p.expectOp(")")
}

func (p *Parser) parseNameParts(max int) ([]Ident, error) {
	first := p.peek()
	id, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	parts := []Ident{id}
	for p.peek().IsOp(".") && p.isIdentTok(p.peekAt(1)) {
		p.pos++
		id, _ := p.parseIdent()
		parts = append(parts, id)
	}
	if len(parts) > max {
		return nil, p.errAt(first, "too many name parts")
	}
	return parts, nil
}

func (p *Parser) parseTableName() (*TableName, error) {
	parts, err := p.parseNameParts(3)
	if err != nil {
		return nil, err
	}
	return &TableName{Parts: parts}, nil
}

func (p *Parser) parseSchemaName() (*SchemaName, error) {
	parts, err := p.parseNameParts(2)
	if err != nil {
		return nil, err
	}
	return &SchemaName{Parts: parts}, nil
}

// parseAlias reads [AS] alias.
func (p *Parser) parseAlias() (*Ident, error) {
	if p.accept("AS") {
		id, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		return &id, nil
	}
	t := p.peek()
	if t.Kind == TokQuotedIdent || (t.Kind == TokIdent && !IsReserved(t.Text)) {
		id, _ := p.parseIdent()
		return &id, nil
	}
	return nil, nil
}

// ---- statements ----

func (p *Parser) parseStatement() (Statement, error) {
	t := p.peek()
	var (
		stmt Statement
		err  error
	)
	switch {
	case t.Is("SELECT"), t.Is("WITH"), t.IsOp("("):
		stmt, err = p.parseQuery()
	case t.Is("INSERT"):
		stmt, err = p.parseInsert()
	case t.Is("UPDATE"):
		stmt, err = p.parseUpdate()
	case t.Is("DELETE"):
		stmt, err = p.parseDelete()
	case t.Is("CREATE"):
		stmt, err = p.parseCreate()
	case t.Is("DROP"):
		stmt, err = p.parseDrop()
	case t.Is("ALTER"):
		stmt, err = p.parseAlter()
	case t.Is("TRUNCATE"):
		stmt, err = p.parseTruncate()
	case t.Is("USE"):
		stmt, err = p.parseUse()
	case t.Is("SHOW"):
		stmt, err = p.parseShow()
	case t.Is("DESCRIBE"), t.Is("DESC"):
		stmt, err = p.parseDescribe()
	case t.Is("BEGIN"), t.Is("START"), t.Is("COMMIT"), t.Is("ROLLBACK"):
		stmt, err = p.parseTransaction()
	default:
		return p.raw(), nil
	}
	if err != nil {
		return nil, err
	}
	if _, ok := stmt.(*Raw); ok {
		return stmt, nil
	}
	if err := p.expectEOF(); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseTransaction() (Statement, error) {
	switch t := p.next(); {
	case t.Is("BEGIN"):
		if !p.accept("TRANSACTION") {
			p.accept("WORK")
		}
		if p.accept("NAME") {
			if _, err := p.parseIdent(); err != nil {
				return nil, err
			}
		}
		return &Transaction{Kind: TxBegin}, nil
	case t.Is("START"):
		return &Transaction{Kind: TxBegin}, p.expect("TRANSACTION")
	case t.Is("COMMIT"):
		p.accept("WORK")
		return &Transaction{Kind: TxCommit}, nil
	default:
		p.accept("WORK")
		return &Transaction{Kind: TxRollback}, nil
	}
}

func (p *Parser) parseInsert() (Statement, error) {
	p.next()
	ins := &Insert{}
	ins.Overwrite = p.accept("OVERWRITE")
	if err := p.expect("INTO"); err != nil {
		return nil, err
	}
	var err error
	if ins.Table, err = p.parseTableName(); err != nil {
		return nil, err
	}
	if p.peek().IsOp("(") && !p.peekAt(1).Is("SELECT") && !p.peekAt(1).Is("WITH") {
		if ins.Columns, err = p.parseIdentList(); err != nil {
			return nil, err
		}
	}
	if p.accept("VALUES") {
		for {
			if err := p.expectOp("("); err != nil {
				return nil, err
			}
			row, err := p.parseExprList()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			ins.Values = append(ins.Values, row)
			if !p.acceptOp(",") {
				break
			}
		}
		return ins, nil
	}
	if ins.Query, err = p.parseQuery(); err != nil {
		return nil, err
	}
	return ins, nil
}

func (p *Parser) parseUpdate() (Statement, error) {
	p.next()
	up := &Update{}
	var err error
	if up.Table, err = p.parseTableName(); err != nil {
		return nil, err
	}
	if up.Alias, err = p.parseAlias(); err != nil {
		return nil, err
	}
	if err := p.expect("SET"); err != nil {
		return nil, err
	}
	for {
		parts, err := p.parseNameParts(4)
		if err != nil {
			return nil, err
		}
		if err := p.expectOp("="); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		up.Set = append(up.Set, &Assignment{Column: parts[len(parts)-1], Value: val})
		if !p.acceptOp(",") {
			break
		}
	}
	if p.accept("FROM") {
		if up.From, err = p.parseTableExprs(); err != nil {
			return nil, err
		}
	}
	if p.accept("WHERE") {
		if up.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	return up, nil
}

func (p *Parser) parseDelete() (Statement, error) {
	p.next()
	if err := p.expect("FROM"); err != nil {
		return nil, err
	}
	del := &Delete{}
	var err error
	if del.Table, err = p.parseTableName(); err != nil {
		return nil, err
	}
	if del.Alias, err = p.parseAlias(); err != nil {
		return nil, err
	}
	if p.accept("WHERE") {
		if del.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	return del, nil
}

func (p *Parser) parseTruncate() (Statement, error) {
	p.next()
	p.accept("TABLE")
	tr := &Truncate{IfExists: p.acceptSeq("IF", "EXISTS")}
	var err error
	tr.Table, err = p.parseTableName()
	return tr, err
}

func (p *Parser) parseCreate() (Statement, error) {
	p.next()
	orReplace := p.acceptSeq("OR", "REPLACE")
	p.accept("LOCAL")
	p.accept("GLOBAL")
	temporary := p.accept("TEMPORARY") || p.accept("TEMP") || p.accept("VOLATILE")
	transient := p.accept("TRANSIENT")
	p.accept("SECURE")

	switch {
	case p.accept("TABLE"):
		return p.parseCreateTable(&CreateTable{OrReplace: orReplace, Temporary: temporary, Transient: transient})
	case p.accept("VIEW"):
		return p.parseCreateView(&CreateView{OrReplace: orReplace})
	case p.accept("SCHEMA"):
		cs := &CreateSchema{OrReplace: orReplace, IfNotExists: p.acceptSeq("IF", "NOT", "EXISTS")}
		var err error
		if cs.Name, err = p.parseSchemaName(); err != nil {
			return nil, err
		}
		return cs, p.skipProperties()
	case p.accept("DATABASE"):
		cd := &CreateDatabase{OrReplace: orReplace, IfNotExists: p.acceptSeq("IF", "NOT", "EXISTS")}
		var err error
		if cd.Name, err = p.parseIdent(); err != nil {
			return nil, err
		}
		return cd, p.skipProperties()
	}
	return p.raw(), nil
}

// skipProperties consumes trailing NAME = value object properties such as
// COMMENT = 'x' or DATA_RETENTION_TIME_IN_DAYS = 1.
func (p *Parser) skipProperties() error {
	for p.peek().Kind == TokIdent {
		if p.acceptSeq("WITH", "MANAGED", "ACCESS") {
			continue
		}
		p.next()
		p.acceptOp("=")
		switch t := p.next(); t.Kind {
		case TokString, TokNumber, TokIdent:
		default:
			return p.errAt(t, "expected property value")
		}
	}
	return nil
}

func (p *Parser) parseCreateTable(ct *CreateTable) (Statement, error) {
	ct.IfNotExists = p.acceptSeq("IF", "NOT", "EXISTS")
	var err error
	if ct.Name, err = p.parseTableName(); err != nil {
		return nil, err
	}
	if p.acceptOp("(") {
		for {
			if p.startsConstraint() {
				c, err := p.parseTableConstraint()
				if err != nil {
					return nil, err
				}
				ct.Constraints = append(ct.Constraints, c)
			} else {
				col, err := p.parseColumnDef()
				if err != nil {
					return nil, err
				}
				ct.Columns = append(ct.Columns, col)
			}
			if !p.acceptOp(",") {
				break
			}
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
	}
	for p.peek().Is("COMMENT") || p.peek().Is("CLUSTER") {
		if p.acceptSeq("CLUSTER", "BY") {
			if err := p.expectOp("("); err != nil {
				return nil, err
			}
			if _, err := p.parseExprList(); err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			continue
		}
		p.next()
		p.acceptOp("=")
		if t := p.next(); t.Kind != TokString {
			return nil, p.errAt(t, "expected comment string")
		}
	}
	if p.accept("AS") {
		if ct.As, err = p.parseQuery(); err != nil {
			return nil, err
		}
	}
	if len(ct.Columns) == 0 && ct.As == nil {
		return nil, p.errAt(p.peek(), "expected column list or AS query")
	}
	return ct, nil
}

func (p *Parser) startsConstraint() bool {
	t := p.peek()
	return t.Is("CONSTRAINT") || t.Is("PRIMARY") || t.Is("UNIQUE") || t.Is("FOREIGN")
}

func (p *Parser) parseTableConstraint() (*TableConstraint, error) {
	c := &TableConstraint{}
	if p.accept("CONSTRAINT") {
		id, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		c.Name = &id
	}
	var err error
	switch {
	case p.acceptSeq("PRIMARY", "KEY"):
		c.Kind = PrimaryKeyConstraint
		c.Columns, err = p.parseIdentList()
	case p.accept("UNIQUE"):
		c.Kind = UniqueConstraint
		c.Columns, err = p.parseIdentList()
	case p.acceptSeq("FOREIGN", "KEY"):
		c.Kind = ForeignKeyConstraint
		if c.Columns, err = p.parseIdentList(); err != nil {
			return nil, err
		}
		if err := p.expect("REFERENCES"); err != nil {
			return nil, err
		}
		if c.RefTable, err = p.parseTableName(); err != nil {
			return nil, err
		}
		if p.peek().IsOp("(") {
			c.RefColumns, err = p.parseIdentList()
		}
	default:
		return nil, p.errAt(p.peek(), "expected constraint")
	}
	return c, err
}

func (p *Parser) parseColumnDef() (*ColumnDef, error) {
	name, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	col := &ColumnDef{Name: name}
	if col.Type, err = p.parseType(); err != nil {
		return nil, err
	}
	for {
		switch {
		case p.acceptSeq("NOT", "NULL"):
			col.NotNull = true
		case p.accept("NULL"):
		case p.accept("DEFAULT"):
			if col.Default, err = p.parseAdditive(); err != nil {
				return nil, err
			}
		case p.acceptSeq("PRIMARY", "KEY"):
			col.PrimaryKey = true
		case p.accept("UNIQUE"):
			col.Unique = true
		case p.accept("AUTOINCREMENT"), p.accept("IDENTITY"):
			col.Autoincrement = true
			if p.acceptOp("(") {
				if _, err := p.parseExprList(); err != nil {
					return nil, err
				}
				if err := p.expectOp(")"); err != nil {
					return nil, err
				}
			}
		case p.peek().Is("COMMENT"), p.peek().Is("COLLATE"):
			p.next()
			if t := p.next(); t.Kind != TokString {
				return nil, p.errAt(t, "expected string")
			}
		case p.accept("CONSTRAINT"):
			if _, err := p.parseIdent(); err != nil {
				return nil, err
			}
		default:
			return col, nil
		}
	}
}

func (p *Parser) parseType() (*TypeName, error) {
	t := p.peek()
	if t.Kind != TokIdent {
		return nil, p.errAt(t, "expected type name")
	}
	p.pos++
	name := t.Upper()
	switch {
	case name == "DOUBLE" && p.accept("PRECISION"):
		name = "DOUBLE PRECISION"
	case (name == "CHARACTER" || name == "CHAR") && p.accept("VARYING"):
		name = "VARCHAR"
	case name == "TIMESTAMP" && p.acceptSeq("WITH", "TIME", "ZONE"):
		name = "TIMESTAMP_TZ"
	case name == "TIMESTAMP" && p.acceptSeq("WITH", "LOCAL", "TIME", "ZONE"):
		name = "TIMESTAMP_LTZ"
	case name == "TIMESTAMP" && p.acceptSeq("WITHOUT", "TIME", "ZONE"):
		name = "TIMESTAMP_NTZ"
	}
	tn := &TypeName{Name: name}
	if p.acceptOp("(") {
		for {
			a := p.next()
			if a.Kind != TokNumber && a.Kind != TokIdent {
				return nil, p.errAt(a, "expected type argument")
			}
			tn.Args = append(tn.Args, a.Text)
			if !p.acceptOp(",") {
				break
			}
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
	}
	return tn, nil
}

func (p *Parser) parseCreateView(cv *CreateView) (Statement, error) {
	cv.IfNotExists = p.acceptSeq("IF", "NOT", "EXISTS")
	var err error
	if cv.Name, err = p.parseTableName(); err != nil {
		return nil, err
	}
	if p.peek().IsOp("(") {
		if cv.Columns, err = p.parseIdentList(); err != nil {
			return nil, err
		}
	}
	if p.accept("COMMENT") {
		p.acceptOp("=")
		if t := p.next(); t.Kind != TokString {
			return nil, p.errAt(t, "expected comment string")
		}
	}
	if err := p.expect("AS"); err != nil {
		return nil, err
	}
	if cv.Query, err = p.parseQuery(); err != nil {
		return nil, err
	}
	return cv, nil
}

func (p *Parser) parseDrop() (Statement, error) {
	p.next()
	d := &Drop{}
	switch {
	case p.accept("TABLE"):
		d.Kind = TableObject
	case p.accept("VIEW"):
		d.Kind = ViewObject
	case p.accept("SCHEMA"):
		d.Kind = SchemaObject
	case p.accept("DATABASE"):
		d.Kind = DatabaseObject
	default:
		return p.raw(), nil
	}
	d.IfExists = p.acceptSeq("IF", "EXISTS")
	var err error
	switch d.Kind {
	case TableObject, ViewObject:
		d.Table, err = p.parseTableName()
	case SchemaObject:
		d.Schema, err = p.parseSchemaName()
	case DatabaseObject:
		var id Ident
		id, err = p.parseIdent()
		d.Database = &id
	}
	if err != nil {
		return nil, err
	}
	d.Cascade = p.accept("CASCADE")
	if !d.Cascade {
		d.Restrict = p.accept("RESTRICT")
	}
	return d, nil
}

func (p *Parser) parseAlter() (Statement, error) {
	p.next()
	switch {
	case p.accept("TABLE"):
		return p.parseAlterTable()
	case p.accept("SESSION"):
		return p.parseAlterSession()
	}
	return p.raw(), nil
}

func (p *Parser) parseAlterTable() (Statement, error) {
	at := &AlterTable{IfExists: p.acceptSeq("IF", "EXISTS")}
	var err error
	if at.Name, err = p.parseTableName(); err != nil {
		return nil, err
	}
	switch {
	case p.acceptSeq("RENAME", "TO"):
		to, err := p.parseTableName()
		if err != nil {
			return nil, err
		}
		at.Action = &RenameTable{To: to}
	case p.acceptSeq("RENAME", "COLUMN"):
		from, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expect("TO"); err != nil {
			return nil, err
		}
		to, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		at.Action = &RenameColumn{From: from, To: to}
	case p.accept("ADD"):
		p.accept("COLUMN")
		col, err := p.parseColumnDef()
		if err != nil {
			return nil, err
		}
		at.Action = &AddColumn{Column: col}
	case p.accept("DROP"):
		p.accept("COLUMN")
		name, err := p.parseIdent()
		if err != nil {
			return nil, err
		}
		at.Action = &DropColumn{Name: name}
	default:
		return p.raw(), nil
	}
	return at, nil
}

func (p *Parser) parseAlterSession() (Statement, error) {
	as := &AlterSession{}
	switch {
	case p.accept("SET"):
	case p.accept("UNSET"):
		as.Unset = true
	default:
		return nil, p.errAt(p.peek(), "expected SET or UNSET")
	}
	for p.peek().Kind == TokIdent {
		name := p.next().Upper()
		param := &SessionParam{Name: name}
		if !as.Unset {
			if err := p.expectOp("="); err != nil {
				return nil, err
			}
			val, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			param.Value = val
		}
		as.Params = append(as.Params, param)
		p.acceptOp(",")
	}
	if len(as.Params) == 0 {
		return nil, p.errAt(p.peek(), "expected session parameter")
	}
	return as, nil
}

func (p *Parser) parseUse() (Statement, error) {
	p.next()
	u := &Use{}
	for _, kind := range []string{"DATABASE", "SCHEMA", "WAREHOUSE", "ROLE"} {
		if p.peek().Is(kind) && p.isIdentTok(p.peekAt(1)) {
			p.next()
			u.Kind = kind
			break
		}
	}
	var err error
	u.Name, err = p.parseNameParts(2)
	if err == nil && len(u.Name) == 2 && u.Kind != "" && u.Kind != "SCHEMA" {
		return nil, p.errAt(p.prev(), "unexpected qualified name")
	}
	return u, err
}

var showObjects = map[string]bool{
	"TABLES": true, "SCHEMAS": true, "DATABASES": true, "VIEWS": true,
	"COLUMNS": true, "PARAMETERS": true, "OBJECTS": true,
}

func (p *Parser) parseShow() (Statement, error) {
	p.next()
	s := &Show{Terse: p.accept("TERSE")}
	if t := p.peek(); t.Kind != TokIdent || !showObjects[t.Upper()] {
		return p.raw(), nil
	}
	s.Object = p.next().Upper()
	if p.accept("LIKE") {
		t := p.next()
		if t.Kind != TokString {
			return nil, p.errAt(t, "expected pattern")
		}
		like := t.Text
		s.Like = &like
	}
	if p.accept("IN") {
		for _, kind := range []string{"ACCOUNT", "DATABASE", "SCHEMA", "TABLE", "VIEW", "SESSION"} {
			if p.accept(kind) {
				s.InKind = kind
				break
			}
		}
		if p.isIdentTok(p.peek()) {
			var err error
			if s.In, err = p.parseNameParts(3); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func (p *Parser) parseDescribe() (Statement, error) {
	p.next()
	d := &Describe{Kind: TableObject}
	switch {
	case p.accept("TABLE"):
	case p.accept("VIEW"):
		d.Kind = ViewObject
	case p.peek().Is("RESULT"), p.peek().Is("SCHEMA"), p.peek().Is("DATABASE"):
		return p.raw(), nil
	}
	var err error
	d.Table, err = p.parseTableName()
	return d, err
}

// ---- queries ----

func (p *Parser) parseQuery() (*Query, error) {
	q := &Query{}
	if p.accept("WITH") {
		w := &With{Recursive: p.accept("RECURSIVE")}
		for {
			name, err := p.parseIdent()
			if err != nil {
				return nil, err
			}
			cte := &CTE{Name: name}
			if p.peek().IsOp("(") {
				if cte.Columns, err = p.parseIdentList(); err != nil {
					return nil, err
				}
			}
			if err := p.expect("AS"); err != nil {
				return nil, err
			}
			if err := p.expectOp("("); err != nil {
				return nil, err
			}
			if cte.Query, err = p.parseQuery(); err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			w.CTEs = append(w.CTEs, cte)
			if !p.acceptOp(",") {
				break
			}
		}
		q.With = w
	}

	var err error
	if q.Body, err = p.parseSetExpr(); err != nil {
		return nil, err
	}
	if p.acceptSeq("ORDER", "BY") {
		if q.OrderBy, err = p.parseOrderItems(); err != nil {
			return nil, err
		}
	}
	if p.accept("LIMIT") {
		if q.Limit, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if p.accept("OFFSET") {
		if q.Offset, err = p.parseExpr(); err != nil {
			return nil, err
		}
		if !p.accept("ROWS") {
			p.accept("ROW")
		}
	}
	if p.accept("FETCH") {
		if !p.accept("FIRST") {
			p.accept("NEXT")
		}
		if q.Limit, err = p.parsePrimary(); err != nil {
			return nil, err
		}
		if !p.accept("ROWS") {
			p.accept("ROW")
		}
		p.accept("ONLY")
	}
	return q, nil
}

func (p *Parser) parseSetExpr() (QueryBody, error) {
	left, err := p.parseSelectCore()
	if err != nil {
		return nil, err
	}
	for {
		op := &SetOp{Left: left}
		switch {
		case p.accept("UNION"):
			op.Kind = Union
		case p.accept("EXCEPT"):
			op.Kind = Except
		case p.accept("MINUS"):
			op.Kind = Except
			op.Minus = true
		case p.accept("INTERSECT"):
			op.Kind = Intersect
		default:
			return left, nil
		}
		if p.accept("ALL") {
			op.All = true
		} else {
			p.accept("DISTINCT")
		}
		if op.Right, err = p.parseSelectCore(); err != nil {
			return nil, err
		}
		left = op
	}
}

func (p *Parser) parseSelectCore() (QueryBody, error) {
	if p.acceptOp("(") {
		q, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		return q, p.expectOp(")")
	}
	if err := p.expect("SELECT"); err != nil {
		return nil, err
	}
	s := &Select{}
	if p.accept("DISTINCT") {
		s.Distinct = true
	} else {
		p.accept("ALL")
	}
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		s.Columns = append(s.Columns, item)
		if !p.acceptOp(",") {
			break
		}
	}
	var err error
	if p.accept("FROM") {
		if s.From, err = p.parseTableExprs(); err != nil {
			return nil, err
		}
	}
	if p.accept("WHERE") {
		if s.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if p.acceptSeq("GROUP", "BY") {
		if s.GroupBy, err = p.parseExprList(); err != nil {
			return nil, err
		}
	}
	if p.accept("HAVING") {
		if s.Having, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	if p.accept("QUALIFY") {
		if s.Qualify, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (p *Parser) parseSelectItem() (SelectItem, error) {
	if p.acceptOp("*") {
		return &StarItem{}, nil
	}
	// qualifier.* lookahead
	i := 0
	for p.isIdentTok(p.peekAt(i)) && p.peekAt(i + 1).IsOp(".") {
		if p.peekAt(i + 2).IsOp("*") {
			var qual []Ident
			for j := 0; j <= i; j += 2 {
				id, _ := p.parseIdent()
				qual = append(qual, id)
				p.next()
			}
			p.next()
			return &StarItem{Qualifier: qual}, nil
		}
		i += 2
	}

	start := p.peek()
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	item := &ExprItem{Expr: e, Source: p.src[start.Start:p.prev().End]}
	if item.Alias, err = p.parseAlias(); err != nil {
		return nil, err
	}
	return item, nil
}

func (p *Parser) parseOrderItems() ([]*OrderItem, error) {
	var out []*OrderItem
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		o := &OrderItem{Expr: e}
		if p.accept("DESC") {
			o.Desc = true
		} else {
			p.accept("ASC")
		}
		if p.accept("NULLS") {
			first := p.accept("FIRST")
			if !first {
				if err := p.expect("LAST"); err != nil {
					return nil, err
				}
			}
			o.NullsFirst = &first
		}
		out = append(out, o)
		if !p.acceptOp(",") {
			return out, nil
		}
	}
}

func (p *Parser) parseTableExprs() ([]TableExpr, error) {
	var out []TableExpr
	for {
		te, err := p.parseJoinedTable()
		if err != nil {
			return nil, err
		}
		out = append(out, te)
		if !p.acceptOp(",") {
			return out, nil
		}
	}
}

func (p *Parser) parseJoinKind() (JoinKind, bool, bool) {
	natural := p.accept("NATURAL")
	switch {
	case p.accept("JOIN"):
		return InnerJoin, natural, true
	case p.acceptSeq("INNER", "JOIN"):
		return InnerJoin, natural, true
	case p.acceptSeq("CROSS", "JOIN"):
		return CrossJoin, natural, true
	}
	for _, kw := range []struct {
		word string
		kind JoinKind
	}{{"LEFT", LeftJoin}, {"RIGHT", RightJoin}, {"FULL", FullJoin}} {
		if p.acceptSeq(kw.word, "JOIN") || p.acceptSeq(kw.word, "OUTER", "JOIN") {
			return kw.kind, natural, true
		}
	}
	if natural {
		p.pos--
	}
	return 0, false, false
}

func (p *Parser) parseJoinedTable() (TableExpr, error) {
	left, err := p.parseTablePrimary()
	if err != nil {
		return nil, err
	}
	for {
		kind, natural, ok := p.parseJoinKind()
		if !ok {
			return left, nil
		}
		right, err := p.parseTablePrimary()
		if err != nil {
			return nil, err
		}
		j := &Join{Kind: kind, Natural: natural, Left: left, Right: right}
		if kind != CrossJoin && !natural {
			switch {
			case p.accept("ON"):
				if j.On, err = p.parseExpr(); err != nil {
					return nil, err
				}
			case p.accept("USING"):
				if j.Using, err = p.parseIdentList(); err != nil {
					return nil, err
				}
			}
		}
		left = j
	}
}

func (p *Parser) parseTablePrimary() (TableExpr, error) {
	if p.peek().IsOp("(") && (p.peekAt(1).Is("SELECT") || p.peekAt(1).Is("WITH")) {
		p.next()
		q, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		dt := &DerivedTable{Query: q}
		dt.Alias, err = p.parseAlias()
		return dt, err
	}
	name, err := p.parseTableName()
	if err != nil {
		return nil, err
	}
	ref := &TableRef{Name: name}
	ref.Alias, err = p.parseAlias()
	return ref, err
}

// ---- expressions ----

func (p *Parser) parseExprList() ([]Expr, error) {
	var out []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if !p.acceptOp(",") {
			return out, nil
		}
	}
}

func (p *Parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept("OR") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.accept("AND") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Expr, error) {
	if p.peek().Is("NOT") && !p.peekAt(1).Is("EXISTS") {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "NOT", Operand: operand}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]bool{"=": true, "<>": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true}

func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.Kind == TokOp && comparisonOps[t.Text] {
			p.next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			left = &BinaryExpr{Op: t.Text, Left: left, Right: right}
			continue
		}
		if p.accept("IS") {
			not := p.accept("NOT")
			if p.acceptSeq("DISTINCT", "FROM") {
				right, err := p.parseAdditive()
				if err != nil {
					return nil, err
				}
				op := "IS DISTINCT FROM"
				if not {
					op = "IS NOT DISTINCT FROM"
				}
				left = &BinaryExpr{Op: op, Left: left, Right: right}
				continue
			}
			if err := p.expect("NULL"); err != nil {
				return nil, err
			}
			left = &IsNullExpr{Expr: left, Not: not}
			continue
		}

		not := false
		if t.Is("NOT") {
			nt := p.peekAt(1)
			if !(nt.Is("IN") || nt.Is("BETWEEN") || nt.Is("LIKE") || nt.Is("ILIKE")) {
				return left, nil
			}
			p.next()
			not = true
		}
		switch {
		case p.accept("IN"):
			in := &InExpr{Expr: left, Not: not}
			if err := p.expectOp("("); err != nil {
				return nil, err
			}
			if p.peek().Is("SELECT") || p.peek().Is("WITH") {
				if in.Subquery, err = p.parseQuery(); err != nil {
					return nil, err
				}
			} else if in.List, err = p.parseExprList(); err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			left = in
		case p.accept("BETWEEN"):
			b := &BetweenExpr{Expr: left, Not: not}
			if b.Low, err = p.parseAdditive(); err != nil {
				return nil, err
			}
			if err := p.expect("AND"); err != nil {
				return nil, err
			}
			if b.High, err = p.parseAdditive(); err != nil {
				return nil, err
			}
			left = b
		case p.peek().Is("LIKE"), p.peek().Is("ILIKE"):
			l := &LikeExpr{Expr: left, Not: not, CaseInsensitive: p.next().Is("ILIKE")}
			if l.Pattern, err = p.parseAdditive(); err != nil {
				return nil, err
			}
			if p.accept("ESCAPE") {
				if l.Escape, err = p.parsePrimary(); err != nil {
					return nil, err
				}
			}
			left = l
		default:
			return left, nil
		}
	}
}

func (p *Parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if !(t.IsOp("+") || t.IsOp("-") || t.IsOp("||")) {
			return left, nil
		}
		p.next()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: t.Text, Left: left, Right: right}
	}
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if !(t.IsOp("*") || t.IsOp("/") || t.IsOp("%")) {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: t.Text, Left: left, Right: right}
	}
}

func (p *Parser) parseUnary() (Expr, error) {
	if t := p.peek(); t.IsOp("-") || t.IsOp("+") {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: t.Text, Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("::") {
		tn, err := p.parseType()
		if err != nil {
			return nil, err
		}
		e = &Cast{Expr: e, Type: tn, DoubleColon: true}
	}
	return e, nil
}

var niladic = map[string]bool{
	"CURRENT_DATE": true, "CURRENT_TIME": true, "CURRENT_TIMESTAMP": true,
	"LOCALTIME": true, "LOCALTIMESTAMP": true,
}

func (p *Parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch t.Kind {
	case TokNumber:
		p.next()
		return &Literal{Kind: NumberLit, Value: t.Text}, nil
	case TokString:
		p.next()
		return &Literal{Kind: StringLit, Value: t.Text}, nil
	case TokParam:
		p.next()
		idx := 0
		if strings.HasPrefix(t.Text, ":") {
			idx, _ = strconv.Atoi(t.Text[1:])
		}
		return &Param{Index: idx}, nil
	case TokQuotedIdent:
		return p.parseColumnRef()
	case TokOp:
		if t.Text != "(" {
			break
		}
		p.next()
		if p.peek().Is("SELECT") || p.peek().Is("WITH") {
			q, err := p.parseQuery()
			if err != nil {
				return nil, err
			}
			return &Subquery{Query: q}, p.expectOp(")")
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &Paren{Expr: inner}, p.expectOp(")")
	case TokIdent:
		return p.parseIdentExpr(t)
	}
	return nil, p.errAt(t, "")
}

func (p *Parser) parseIdentExpr(t Token) (Expr, error) {
	word := t.Upper()
	nextTok := p.peekAt(1)
	switch {
	case word == "TRUE" || word == "FALSE":
		p.next()
		return &Literal{Kind: BoolLit, Value: word}, nil
	case word == "NULL":
		p.next()
		return &Literal{Kind: NullLit, Value: word}, nil
	case word == "CASE":
		p.next()
		return p.parseCase()
	case (word == "CAST" || word == "TRY_CAST") && nextTok.IsOp("("):
		p.pos += 2
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect("AS"); err != nil {
			return nil, err
		}
		tn, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return &Cast{Expr: inner, Type: tn, Try: word == "TRY_CAST"}, p.expectOp(")")
	case word == "EXISTS" && nextTok.IsOp("("):
		p.pos += 2
		q, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		return &ExistsExpr{Query: q}, p.expectOp(")")
	case word == "NOT" && nextTok.Is("EXISTS"):
		p.next()
		e, err := p.parseIdentExpr(p.peek())
		if err != nil {
			return nil, err
		}
		if ex, ok := e.(*ExistsExpr); ok {
			ex.Not = true
			return ex, nil
		}
		return &UnaryExpr{Op: "NOT", Operand: e}, nil
	case (word == "DATE" || word == "TIME" || word == "TIMESTAMP") && nextTok.Kind == TokString:
		p.pos += 2
		return &Cast{Expr: &Literal{Kind: StringLit, Value: nextTok.Text}, Type: &TypeName{Name: word}, DoubleColon: true}, nil
	case nextTok.IsOp("("):
		return p.parseFuncCall()
	case niladic[word]:
		p.next()
		return &FuncCall{Name: word, NoParens: true}, nil
	case IsReserved(word):
		return nil, p.errAt(t, "")
	}
	return p.parseColumnRef()
}

func (p *Parser) parseColumnRef() (Expr, error) {
	parts, err := p.parseNameParts(4)
	if err != nil {
		return nil, err
	}
	return &ColumnRef{Parts: parts}, nil
}

func (p *Parser) parseCase() (Expr, error) {
	c := &CaseExpr{}
	var err error
	if !p.peek().Is("WHEN") {
		if c.Operand, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	for p.accept("WHEN") {
		w := &When{}
		if w.Cond, err = p.parseExpr(); err != nil {
			return nil, err
		}
		if err := p.expect("THEN"); err != nil {
			return nil, err
		}
		if w.Result, err = p.parseExpr(); err != nil {
			return nil, err
		}
		c.Whens = append(c.Whens, w)
	}
	if len(c.Whens) == 0 {
		return nil, p.errAt(p.peek(), "expected WHEN")
	}
	if p.accept("ELSE") {
		if c.Else, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}
	return c, p.expect("END")
}

func (p *Parser) parseFuncCall() (Expr, error) {
	fc := &FuncCall{Name: p.next().Upper()}
	p.next() // (
	switch {
	case p.acceptOp(")"):
	case p.peek().IsOp("*") && p.peekAt(1).IsOp(")"):
		p.pos += 2
		fc.Star = true
	default:
		fc.Distinct = p.accept("DISTINCT")
		args, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		fc.Args = args
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
	}
	if p.accept("OVER") {
		if err := p.expectOp("("); err != nil {
			return nil, err
		}
		ws := &WindowSpec{}
		var err error
		if p.acceptSeq("PARTITION", "BY") {
			if ws.PartitionBy, err = p.parseExprList(); err != nil {
				return nil, err
			}
		}
		if p.acceptSeq("ORDER", "BY") {
			if ws.OrderBy, err = p.parseOrderItems(); err != nil {
				return nil, err
			}
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		fc.Over = ws
	}
	return fc, nil
}
