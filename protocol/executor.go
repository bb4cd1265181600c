package protocol

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/maxpert/powder/db"
	"github.com/maxpert/powder/protocol/ast"
	"github.com/maxpert/powder/protocol/query"
	"github.com/maxpert/powder/telemetry"
)

const statusOK = "Statement executed successfully."

// Binding is one bind variable of a query request. Value is a string, null,
// or an array of those for multi-row binds.
type Binding struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Request is the statement part of a query request.
type Request struct {
	SQL          string
	Bindings     map[string]Binding
	DescribeOnly bool
}

// Executor runs one request against the engine, the catalog, or the
// session.
type Executor struct {
	engine   *db.Engine
	catalog  *db.Catalog
	pipeline *query.Pipeline
}

func NewExecutor(engine *db.Engine, pipeline *query.Pipeline) *Executor {
	return &Executor{engine: engine, catalog: engine.Catalog(), pipeline: pipeline}
}

// Execute rewrites and runs req for s. Failures come back as *QueryError.
func (x *Executor) Execute(ctx context.Context, s *Session, req *Request) (*QueryResult, error) {
	start := time.Now()

	plan, err := x.pipeline.Transform(req.SQL, s.Env())
	if err != nil {
		recordQuery(query.StatementUnknown, start, err)
		return nil, MapError(err, nil)
	}
	main := plan.Main()

	res, err := x.executePlan(ctx, s, plan, req)
	recordQuery(main.Type, start, err)
	if err != nil {
		return nil, MapError(err, plan)
	}

	res.TypeID = main.Type.TypeID()
	info := s.Info()
	res.Database, res.Schema = info.Database, info.Schema
	res.Warehouse, res.Role = info.Warehouse, info.Role
	return res, nil
}

func recordQuery(t query.StatementType, start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	telemetry.QueriesTotal.With(t.String(), result).Inc()
	telemetry.QueryDurationSeconds.With(t.String()).Observe(time.Since(start).Seconds())
}

func (x *Executor) executePlan(ctx context.Context, s *Session, plan *query.Plan, req *Request) (*QueryResult, error) {
	rows, err := bindRows(req.Bindings)
	if err != nil {
		return nil, err
	}

	st := plan.Main()
	var res *QueryResult
	switch {
	case len(plan.Statements) > 1:
		res, err = x.executeExpanded(ctx, s, plan, rows)
	case req.DescribeOnly && st.Type == query.StatementSelect:
		return x.describeOnly(ctx, st)
	default:
		res, err = x.executeStatement(ctx, x.engine, s, st, rows)
	}
	if err != nil {
		return nil, err
	}

	switch {
	case st.Type.IsDML():
		telemetry.RowsAffected.Observe(float64(res.Affected))
	case st.Type == query.StatementSelect:
		telemetry.RowsReturned.Observe(float64(res.Total))
	}
	if isNamespaceDDL(st.Type) {
		x.pipeline.Purge()
	}
	return res, nil
}

// executeExpanded runs a rewritten plan in one write transaction. A failing
// last statement rolls back the expansions before it. Only the last
// statement sees the bindings.
func (x *Executor) executeExpanded(ctx context.Context, s *Session, plan *query.Plan, rows [][]any) (*QueryResult, error) {
	var res *QueryResult
	err := x.engine.InTx(ctx, func(tx *db.Tx) error {
		last := len(plan.Statements) - 1
		for _, st := range plan.Statements[:last] {
			if _, err := tx.Exec(ctx, st.SQL); err != nil {
				return err
			}
		}
		var err error
		res, err = x.executeStatement(ctx, tx, s, plan.Statements[last], rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func isNamespaceDDL(t query.StatementType) bool {
	switch t {
	case query.StatementCreateSchema, query.StatementDropSchema, query.StatementCreateDatabase, query.StatementDropDatabase:
		return true
	}
	return false
}

func (x *Executor) executeStatement(ctx context.Context, run db.Runner, s *Session, st *query.Statement, rows [][]any) (*QueryResult, error) {
	env := s.Env()

	switch stmt := st.AST.(type) {
	case *ast.Query:
		rs, err := run.Query(ctx, st.SQL, true, firstRow(rows)...)
		if err != nil {
			return nil, err
		}
		return resultFromRows(rs, st.Hints)

	case *ast.Insert:
		n, err := x.execRows(ctx, run, st.SQL, rows)
		if err != nil {
			return nil, err
		}
		return countResult(n, "number of rows inserted"), nil

	case *ast.Update:
		n, err := x.execRows(ctx, run, st.SQL, rows)
		if err != nil {
			return nil, err
		}
		return countResult(n, "number of rows updated", "number of multi-joined rows updated"), nil

	case *ast.Delete:
		n, err := x.execRows(ctx, run, st.SQL, rows)
		if err != nil {
			return nil, err
		}
		return countResult(n, "number of rows deleted"), nil

	case *ast.CreateTable:
		return x.createObject(ctx, run, env.Database, stmt.Name, stmt.IfNotExists, "CREATE TABLE", "Table", st.SQL, rows)

	case *ast.CreateView:
		return x.createObject(ctx, run, env.Database, stmt.Name, stmt.IfNotExists, "CREATE VIEW", "View", st.SQL, rows)

	case *ast.Drop:
		return x.drop(ctx, run, s, stmt, st.SQL)

	case *ast.AlterTable, *ast.Truncate:
		if _, err := run.Exec(ctx, st.SQL); err != nil {
			return nil, err
		}
		return statusResult(statusOK), nil

	case *ast.CreateSchema:
		return x.createSchema(ctx, s, stmt)

	case *ast.CreateDatabase:
		return x.createDatabase(ctx, s, stmt)

	case *ast.Use:
		return x.use(ctx, s, stmt)

	case *ast.AlterSession:
		for _, p := range stmt.Params {
			if stmt.Unset {
				s.UnsetParam(p.Name)
				continue
			}
			s.SetParam(p.Name, paramValue(p.Value))
		}
		return statusResult(statusOK), nil

	case *ast.Show:
		return x.show(ctx, s, stmt)

	case *ast.Describe:
		return x.describe(ctx, env.Database, stmt)

	case *ast.Transaction:
		return statusResult(statusOK), nil

	case *ast.Raw:
		rs, err := run.Query(ctx, st.SQL, st.ReadOnly, firstRow(rows)...)
		if err != nil {
			return nil, err
		}
		if len(rs.Columns) == 0 {
			return statusResult(statusOK), nil
		}
		return resultFromRows(rs, nil)
	}

	return nil, fmt.Errorf("unsupported statement %T", st.AST)
}

// execRows runs a DML statement once per bound row and sums the counts.
func (x *Executor) execRows(ctx context.Context, run db.Runner, sql string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return run.Exec(ctx, sql)
	}
	var total int64
	for _, args := range rows {
		n, err := run.Exec(ctx, sql, args...)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// describeOnly reports the rowtype of a query without producing rows.
func (x *Executor) describeOnly(ctx context.Context, st *query.Statement) (*QueryResult, error) {
	args := make([]any, countParams(st.AST))
	rs, err := x.engine.Query(ctx, "SELECT * FROM ("+st.SQL+") LIMIT 0", true, args...)
	if err != nil {
		return nil, err
	}
	return resultFromRows(rs, st.Hints)
}

func countParams(n ast.Node) int {
	positional, highest := 0, 0
	ast.Walk(n, func(n ast.Node) bool {
		if p, ok := n.(*ast.Param); ok {
			if p.Index == 0 {
				positional++
			} else {
				highest = max(highest, p.Index)
			}
		}
		return true
	})
	return max(positional, highest)
}

// objectTarget splits a flattened table name into database, schema and
// object. Unqualified names only resolve with a current database.
func objectTarget(tn *ast.TableName) (database, schema, name string, ok bool) {
	parts := tn.Origin
	if parts == nil {
		parts = tn.Parts
	}
	if len(parts) != 3 {
		return "", "", tn.Table().Name, false
	}
	return parts[0].Name, parts[1].Name, parts[2].Name, true
}

func (x *Executor) createObject(ctx context.Context, run db.Runner, current string, tn *ast.TableName, ifNotExists bool, op, noun, sql string, rows [][]any) (*QueryResult, error) {
	database, schema, name, ok := objectTarget(tn)
	if !ok {
		if current == "" {
			return nil, noCurrentDatabaseError(op)
		}
		return nil, &db.ObjectNotFoundError{Kind: db.KindSchema, Name: tn.Display()}
	}

	exists, err := x.catalog.SchemaExists(ctx, database, schema)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &db.ObjectNotFoundError{Kind: db.KindSchema, Name: database + "." + schema}
	}

	if ifNotExists {
		kind, err := x.catalog.ObjectKind(ctx, database, schema, name)
		if err != nil {
			return nil, err
		}
		if kind != "" {
			return statusResult(name + " already exists, statement succeeded."), nil
		}
	}

	if _, err := run.Exec(ctx, sql, firstRow(rows)...); err != nil {
		return nil, err
	}
	return statusResult(fmt.Sprintf("%s %s successfully created.", noun, name)), nil
}

func (x *Executor) drop(ctx context.Context, run db.Runner, s *Session, d *ast.Drop, sql string) (*QueryResult, error) {
	switch d.Kind {
	case ast.DatabaseObject:
		name := d.Database.Name
		if err := x.catalog.DropDatabase(ctx, name, d.IfExists); err != nil {
			return nil, err
		}
		return statusResult(name + " successfully dropped."), nil

	case ast.SchemaObject:
		database, schema, err := schemaTarget(d.Schema, s.Env().Database, "DROP SCHEMA")
		if err != nil {
			return nil, err
		}
		if err := x.catalog.DropSchema(ctx, database, schema, d.IfExists); err != nil {
			return nil, err
		}
		return statusResult(schema + " successfully dropped."), nil
	}

	name := d.Table.Table().Name
	if d.IfExists {
		if database, schema, _, ok := objectTarget(d.Table); ok {
			kind, err := x.catalog.ObjectKind(ctx, database, schema, name)
			if err != nil {
				return nil, err
			}
			if kind == "" {
				return statusResult(fmt.Sprintf("Drop statement executed successfully (%s already dropped).", name)), nil
			}
		}
	}
	if _, err := run.Exec(ctx, sql); err != nil {
		return nil, err
	}
	return statusResult(name + " successfully dropped."), nil
}

// schemaTarget resolves a schema name to database and schema.
func schemaTarget(sn *ast.SchemaName, current, op string) (string, string, error) {
	parts := sn.Origin
	if parts == nil {
		parts = sn.Parts
	}
	switch len(parts) {
	case 2:
		return parts[0].Name, parts[1].Name, nil
	case 1:
		if current == "" {
			return "", "", noCurrentDatabaseError(op)
		}
		return current, parts[0].Name, nil
	}
	return "", "", fmt.Errorf("invalid schema name %s", sn.Display())
}

func createMode(orReplace, ifNotExists bool) db.CreateMode {
	switch {
	case orReplace:
		return db.CreateOrReplace
	case ifNotExists:
		return db.CreateIfNotExists
	}
	return db.CreateStrict
}

func (x *Executor) createSchema(ctx context.Context, s *Session, cs *ast.CreateSchema) (*QueryResult, error) {
	database, schema, err := schemaTarget(cs.Name, s.Env().Database, "CREATE SCHEMA")
	if err != nil {
		return nil, err
	}

	if cs.IfNotExists && !cs.OrReplace {
		exists, err := x.catalog.SchemaExists(ctx, database, schema)
		if err != nil {
			return nil, err
		}
		if exists {
			return statusResult(schema + " already exists, statement succeeded."), nil
		}
	}

	if err := x.catalog.CreateSchema(ctx, database, schema, createMode(cs.OrReplace, cs.IfNotExists)); err != nil {
		return nil, err
	}
	s.SetNamespace(database, schema)
	log.Debug().Int64("session_id", s.ID).Str("database", database).Str("schema", schema).Msg("Schema created")
	return statusResult(fmt.Sprintf("Schema %s successfully created.", schema)), nil
}

func (x *Executor) createDatabase(ctx context.Context, s *Session, cd *ast.CreateDatabase) (*QueryResult, error) {
	name := cd.Name.Name

	if cd.IfNotExists && !cd.OrReplace {
		exists, err := x.catalog.DatabaseExists(ctx, name)
		if err != nil {
			return nil, err
		}
		if exists {
			return statusResult(name + " already exists, statement succeeded."), nil
		}
	}

	if err := x.catalog.CreateDatabase(ctx, name, createMode(cd.OrReplace, cd.IfNotExists)); err != nil {
		return nil, err
	}
	s.SetDatabase(name)
	log.Debug().Int64("session_id", s.ID).Str("database", name).Msg("Database created")
	return statusResult(fmt.Sprintf("Database %s successfully created.", name)), nil
}

func (x *Executor) use(ctx context.Context, s *Session, u *ast.Use) (*QueryResult, error) {
	names := make([]string, len(u.Name))
	for i, n := range u.Name {
		names[i] = n.Display()
	}

	switch u.Kind {
	case "WAREHOUSE":
		s.SetWarehouse(names[0])
		return statusResult(statusOK), nil
	case "ROLE":
		s.SetRole(names[0])
		return statusResult(statusOK), nil
	}

	var database, schema string
	switch {
	case len(names) == 2:
		database, schema = names[0], names[1]
	case u.Kind == "SCHEMA":
		database, schema = s.Env().Database, names[0]
		if database == "" {
			return nil, noCurrentDatabaseError("USE SCHEMA")
		}
	default:
		database = names[0]
	}

	if schema == "" {
		exists, err := x.catalog.DatabaseExists(ctx, database)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, useNotFoundError()
		}
		s.SetDatabase(database)
		return statusResult(statusOK), nil
	}

	exists, err := x.catalog.SchemaExists(ctx, database, schema)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, useNotFoundError()
	}
	s.SetNamespace(database, schema)
	return statusResult(statusOK), nil
}

func paramValue(e ast.Expr) any {
	switch v := e.(type) {
	case *ast.Literal:
		switch v.Kind {
		case ast.NumberLit:
			if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
				return n
			}
			if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
				return f
			}
		case ast.BoolLit:
			return strings.EqualFold(v.Value, "TRUE")
		case ast.NullLit:
			return nil
		}
		return v.Value
	case *ast.ColumnRef:
		return v.Column().Name
	}
	return ast.Format(e)
}

func (x *Executor) describe(ctx context.Context, current string, d *ast.Describe) (*QueryResult, error) {
	database, schema, name, ok := objectTarget(d.Table)
	if !ok {
		if current == "" {
			return nil, noCurrentDatabaseError("DESCRIBE")
		}
		return nil, &db.ObjectNotFoundError{Kind: db.KindTable, Name: d.Table.Display()}
	}

	cols, err := x.catalog.Columns(ctx, database, schema, name)
	if err != nil {
		return nil, err
	}

	rs := &db.ResultSet{Columns: varcharColumns(
		"name", "type", "kind", "null?", "default", "primary key", "unique key",
		"check", "expression", "comment", "policy name", "privacy domain",
	)}
	for _, c := range cols {
		var def any
		if c.Default != nil {
			def = *c.Default
		}
		rs.Rows = append(rs.Rows, []any{
			c.Name, CanonicalTypeName(ParseNativeType(c.Type)), "COLUMN", yesNo(!c.NotNull), def,
			yesNo(c.PrimaryKey), "N", nil, nil, nil, nil, nil,
		})
	}
	return resultFromRows(rs, nil)
}

func yesNo(b bool) string {
	if b {
		return "Y"
	}
	return "N"
}

func varcharColumns(names ...string) []db.Column {
	cols := make([]db.Column, len(names))
	for i, n := range names {
		cols[i] = db.Column{Name: n, DeclType: "VARCHAR"}
	}
	return cols
}

func resultFromRows(rs *db.ResultSet, hints map[string]*ast.TypeName) (*QueryResult, error) {
	desc := describeColumns(rs.Columns, rs.Rows, hints)
	rows, err := encodeRows(desc, rs.Rows)
	if err != nil {
		return nil, err
	}
	return &QueryResult{RowType: desc, RowSet: rows, Total: int64(len(rows))}, nil
}

func statusResult(msg string) *QueryResult {
	res, _ := resultFromRows(&db.ResultSet{
		Columns: []db.Column{{Name: "status", DeclType: "VARCHAR"}},
		Rows:    [][]any{{msg}},
	}, nil)
	return res
}

func countResult(n int64, columns ...string) *QueryResult {
	rs := &db.ResultSet{Rows: [][]any{make([]any, len(columns))}}
	for i, c := range columns {
		rs.Columns = append(rs.Columns, db.Column{Name: c, DeclType: "NUMBER(38,0)"})
		rs.Rows[0][i] = int64(0)
	}
	rs.Rows[0][0] = n
	res, _ := resultFromRows(rs, nil)
	res.Affected = n
	return res
}

func firstRow(rows [][]any) []any {
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}

// bindRows converts request bindings to engine arguments, one slice per
// row. Array values bind several rows at once.
func bindRows(bindings map[string]Binding) ([][]any, error) {
	if len(bindings) == 0 {
		return nil, nil
	}

	type column struct {
		pos    int
		values []any
		array  bool
	}
	cols := make([]column, 0, len(bindings))
	for key, b := range bindings {
		pos, err := strconv.Atoi(key)
		if err != nil {
			return nil, bindError("invalid bind position %q", key)
		}
		values, array, err := decodeBinding(b)
		if err != nil {
			return nil, err
		}
		cols = append(cols, column{pos: pos, values: values, array: array})
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].pos < cols[j].pos })

	n := 1
	for _, c := range cols {
		if c.array {
			n = len(c.values)
			break
		}
	}
	rows := make([][]any, n)
	for r := range rows {
		rows[r] = make([]any, len(cols))
		for i, c := range cols {
			switch {
			case !c.array:
				rows[r][i] = c.values[0]
			case r < len(c.values):
				rows[r][i] = c.values[r]
			default:
				return nil, bindError("bind arrays have different lengths")
			}
		}
	}
	return rows, nil
}

func bindError(format string, args ...any) *QueryError {
	return newQueryError(KindEngine, ErrnoBindingsMismatch, SQLStateInvalidBindings, fmt.Sprintf(format, args...))
}

func decodeBinding(b Binding) ([]any, bool, error) {
	raw := strings.TrimSpace(string(b.Value))
	if strings.HasPrefix(raw, "[") {
		var items []*string
		if err := json.Unmarshal(b.Value, &items); err != nil {
			return nil, false, bindError("invalid bind array: %v", err)
		}
		out := make([]any, len(items))
		for i, it := range items {
			v, err := bindValue(b.Type, it)
			if err != nil {
				return nil, false, err
			}
			out[i] = v
		}
		return out, true, nil
	}

	var item *string
	if raw != "" {
		if err := json.Unmarshal(b.Value, &item); err != nil {
			return nil, false, bindError("invalid bind value: %v", err)
		}
	}
	v, err := bindValue(b.Type, item)
	if err != nil {
		return nil, false, err
	}
	return []any{v}, false, nil
}

// bindValue converts one bound string as drivers send it: dates as epoch
// milliseconds, times and timestamps as nanoseconds.
func bindValue(typ string, s *string) (any, error) {
	if s == nil {
		return nil, nil
	}
	v := *s
	switch strings.ToUpper(typ) {
	case "FIXED":
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, nil
		}
		return v, nil
	case "REAL":
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, bindError("invalid REAL bind value %q", v)
		}
		return f, nil
	case "BOOLEAN":
		b, err := parseBoolText(v)
		if err != nil {
			return nil, bindError("invalid BOOLEAN bind value %q", v)
		}
		return b, nil
	case "DATE":
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return v, nil
		}
		return time.UnixMilli(ms).UTC().Format("2006-01-02"), nil
	case "TIME":
		ns, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return v, nil
		}
		return time.Unix(0, ns).UTC().Format("15:04:05.999999999"), nil
	case "TIMESTAMP", "TIMESTAMP_NTZ", "TIMESTAMP_LTZ", "TIMESTAMP_TZ":
		field, _, _ := strings.Cut(v, " ")
		ns, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return v, nil
		}
		return time.Unix(0, ns).UTC().Format("2006-01-02 15:04:05.999999999"), nil
	case "BINARY":
		b, err := hex.DecodeString(v)
		if err != nil {
			return nil, bindError("invalid BINARY bind value")
		}
		return b, nil
	}
	return v, nil
}
