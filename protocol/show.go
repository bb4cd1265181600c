package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/maxpert/powder/db"
	"github.com/maxpert/powder/protocol/ast"
	"github.com/maxpert/powder/protocol/query/transform"
)

const owner = "SYSADMIN"

// showScope is the part of the catalog a SHOW statement covers. Empty
// fields widen it.
type showScope struct {
	database string
	schema   string
	table    string
}

func resolveShowScope(sh *ast.Show, env *transform.Env) (showScope, error) {
	names := make([]string, len(sh.In))
	for i, n := range sh.In {
		names[i] = n.Display()
	}

	switch sh.InKind {
	case "ACCOUNT":
		return showScope{}, nil
	case "DATABASE":
		if len(names) == 0 {
			return showScope{database: env.Database}, nil
		}
		return showScope{database: names[0]}, nil
	case "SCHEMA":
		switch len(names) {
		case 0:
			return showScope{database: env.Database, schema: env.Schema}, nil
		case 1:
			if env.Database == "" {
				return showScope{}, noCurrentDatabaseError("SHOW")
			}
			return showScope{database: env.Database, schema: names[0]}, nil
		}
		return showScope{database: names[0], schema: names[1]}, nil
	case "TABLE", "VIEW":
		switch len(names) {
		case 1:
			if env.Database == "" || env.Schema == "" {
				return showScope{}, noCurrentDatabaseError("SHOW")
			}
			return showScope{database: env.Database, schema: env.Schema, table: names[0]}, nil
		case 2:
			if env.Database == "" {
				return showScope{}, noCurrentDatabaseError("SHOW")
			}
			return showScope{database: env.Database, schema: names[0], table: names[1]}, nil
		case 3:
			return showScope{database: names[0], schema: names[1], table: names[2]}, nil
		}
		return showScope{}, fmt.Errorf("SHOW %s IN %s requires a name", sh.Object, sh.InKind)
	}

	// IN without a kind: a two part name is a schema, one part a database.
	switch len(names) {
	case 1:
		return showScope{database: names[0]}, nil
	case 2:
		return showScope{database: names[0], schema: names[1]}, nil
	case 3:
		return showScope{database: names[0], schema: names[1], table: names[2]}, nil
	}
	if sh.Object == "SCHEMAS" {
		return showScope{database: env.Database}, nil
	}
	return showScope{database: env.Database, schema: env.Schema}, nil
}

func (x *Executor) show(ctx context.Context, s *Session, sh *ast.Show) (*QueryResult, error) {
	var like string
	if sh.Like != nil {
		like = *sh.Like
	}
	filter, err := db.NewNameFilter(like)
	if err != nil {
		return nil, err
	}

	if sh.Object == "PARAMETERS" {
		return showParameters(s, filter)
	}

	env := s.Env()
	scope, err := resolveShowScope(sh, env)
	if err != nil {
		return nil, err
	}

	var rs *db.ResultSet
	switch sh.Object {
	case "DATABASES":
		rs, err = x.showDatabases(ctx, env, sh.Terse, filter)
	case "SCHEMAS":
		rs, err = x.showSchemas(ctx, env, scope, sh.Terse, filter)
	case "TABLES":
		rs, err = x.showObjects(ctx, scope, db.KindTable, sh.Terse, filter)
	case "VIEWS":
		rs, err = x.showObjects(ctx, scope, db.KindView, sh.Terse, filter)
	case "OBJECTS":
		rs, err = x.showObjects(ctx, scope, "", sh.Terse, filter)
	case "COLUMNS":
		rs, err = x.showColumns(ctx, scope, filter)
	default:
		return nil, fmt.Errorf("unsupported SHOW %s", sh.Object)
	}
	if err != nil {
		return nil, err
	}
	return resultFromRows(rs, nil)
}

func showColumnsOf(created string, names ...string) []db.Column {
	cols := varcharColumns(names...)
	if created != "" {
		cols = append([]db.Column{{Name: created, DeclType: "TIMESTAMP_LTZ"}}, cols...)
	}
	return cols
}

var terseColumns = []string{"name", "kind", "database_name", "schema_name"}

func (x *Executor) showDatabases(ctx context.Context, env *transform.Env, terse bool, filter *db.NameFilter) (*db.ResultSet, error) {
	dbs, err := x.catalog.Databases(ctx, filter)
	if err != nil {
		return nil, err
	}
	rs := &db.ResultSet{}
	if terse {
		rs.Columns = showColumnsOf("created_on", terseColumns...)
	} else {
		rs.Columns = showColumnsOf("created_on", "name", "is_default", "is_current", "origin",
			"owner", "comment", "options", "retention_time", "kind")
	}
	for _, d := range dbs {
		if terse {
			rs.Rows = append(rs.Rows, []any{d.CreatedOn, d.Name, "STANDARD", nil, nil})
			continue
		}
		rs.Rows = append(rs.Rows, []any{
			d.CreatedOn, d.Name, "N", yesNo(d.Name == env.Database), "", owner, "", "", "1", "STANDARD",
		})
	}
	return rs, nil
}

func (x *Executor) showSchemas(ctx context.Context, env *transform.Env, scope showScope, terse bool, filter *db.NameFilter) (*db.ResultSet, error) {
	schemas, err := x.catalog.Schemas(ctx, scope.database, filter)
	if err != nil {
		return nil, err
	}
	rs := &db.ResultSet{}
	if terse {
		rs.Columns = showColumnsOf("created_on", terseColumns...)
	} else {
		rs.Columns = showColumnsOf("created_on", "name", "is_default", "is_current", "database_name",
			"owner", "comment", "options", "retention_time")
	}
	for _, sc := range schemas {
		if terse {
			rs.Rows = append(rs.Rows, []any{sc.CreatedOn, sc.Name, nil, sc.Database, nil})
			continue
		}
		current := sc.Database == env.Database && sc.Name == env.Schema
		rs.Rows = append(rs.Rows, []any{
			sc.CreatedOn, sc.Name, "N", yesNo(current), sc.Database, owner, "", "", "1",
		})
	}
	return rs, nil
}

func (x *Executor) showObjects(ctx context.Context, scope showScope, kind string, terse bool, filter *db.NameFilter) (*db.ResultSet, error) {
	objects, err := x.catalog.Objects(ctx, scope.database, scope.schema, kind, filter)
	if err != nil {
		return nil, err
	}
	rs := &db.ResultSet{}
	switch {
	case terse:
		rs.Columns = showColumnsOf("created_on", terseColumns...)
	case kind == db.KindView:
		rs.Columns = showColumnsOf("created_on", "name", "reserved", "database_name", "schema_name",
			"owner", "comment", "text", "is_secure", "is_materialized")
	default:
		rs.Columns = showColumnsOf("created_on", "name", "database_name", "schema_name", "kind",
			"comment", "cluster_by", "rows", "bytes", "owner", "retention_time")
		rs.Columns[7].DeclType = "NUMBER(38,0)"
		rs.Columns[8].DeclType = "NUMBER(38,0)"
	}
	for _, o := range objects {
		switch {
		case terse:
			rs.Rows = append(rs.Rows, []any{nil, o.Name, o.Kind, o.Database, o.Schema})
		case kind == db.KindView:
			rs.Rows = append(rs.Rows, []any{nil, o.Name, "", o.Database, o.Schema, owner, "", nil, "false", "false"})
		default:
			rs.Rows = append(rs.Rows, []any{nil, o.Name, o.Database, o.Schema, o.Kind, "", "", nil, nil, owner, "1"})
		}
	}
	return rs, nil
}

func (x *Executor) showColumns(ctx context.Context, scope showScope, filter *db.NameFilter) (*db.ResultSet, error) {
	var tables []db.ObjectInfo
	if scope.table != "" {
		tables = []db.ObjectInfo{{Database: scope.database, Schema: scope.schema, Name: scope.table}}
	} else {
		var err error
		tables, err = x.catalog.Objects(ctx, scope.database, scope.schema, "", nil)
		if err != nil {
			return nil, err
		}
	}

	rs := &db.ResultSet{Columns: varcharColumns("table_name", "schema_name", "column_name", "data_type",
		"null?", "default", "kind", "expression", "comment", "database_name", "autoincrement")}
	for _, t := range tables {
		cols, err := x.catalog.Columns(ctx, t.Database, t.Schema, t.Name)
		if err != nil {
			return nil, err
		}
		for _, c := range cols {
			if !filter.Match(c.Name) {
				continue
			}
			dataType, err := columnDataType(c)
			if err != nil {
				return nil, err
			}
			var def any
			if c.Default != nil {
				def = *c.Default
			}
			rs.Rows = append(rs.Rows, []any{
				t.Name, t.Schema, c.Name, dataType, strconv.FormatBool(!c.NotNull), def,
				"COLUMN", "", "", t.Database, "",
			})
		}
	}
	return rs, nil
}

// columnDataType renders the JSON type descriptor of SHOW COLUMNS.
func columnDataType(c db.ColumnInfo) (string, error) {
	d := MapColumn(c.Name, ParseNativeType(c.Type))
	out := map[string]any{
		"type":     strings.ToUpper(d.Type),
		"nullable": !c.NotNull,
	}
	if d.Precision != nil {
		out["precision"] = *d.Precision
	}
	if d.Scale != nil {
		out["scale"] = *d.Scale
	}
	if d.Length != nil {
		out["length"] = *d.Length
		out["byteLength"] = *d.ByteLength
		out["fixed"] = false
	}
	b, err := json.Marshal(out)
	return string(b), err
}

func showParameters(s *Session, filter *db.NameFilter) (*QueryResult, error) {
	rs := &db.ResultSet{Columns: varcharColumns("key", "value", "default", "level", "description", "type")}
	for _, p := range s.Parameters() {
		if !filter.Match(p.Name) {
			continue
		}
		def, hasDefault := defaultParameters[p.Name]
		level := ""
		if !hasDefault || fmt.Sprint(def) != fmt.Sprint(p.Value) {
			level = "SESSION"
		}
		var defText any
		if hasDefault {
			defText = fmt.Sprint(def)
		}
		rs.Rows = append(rs.Rows, []any{p.Name, fmt.Sprint(p.Value), defText, level, "", parameterType(p.Value)})
	}
	return resultFromRows(rs, nil)
}

func parameterType(v any) string {
	switch v.(type) {
	case bool:
		return "BOOLEAN"
	case int, int64, float64:
		return "NUMBER"
	}
	return "STRING"
}
