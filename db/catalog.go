package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/maxpert/powder/protocol/query/transform"
	"github.com/maxpert/powder/telemetry"
	"github.com/rs/zerolog/log"
)

// Catalog tables. Everything else in the file belongs to clients.
const (
	DatabasesTable = "__powder_databases"
	SchemasTable   = "__powder_schemas"
)

// DefaultSchema is created with every database.
const DefaultSchema = "PUBLIC"

// Object kinds reported by the catalog.
const (
	KindDatabase = "Database"
	KindSchema   = "Schema"
	KindTable    = "TABLE"
	KindView     = "VIEW"
)

var dialect = goqu.Dialect("sqlite3")

// ObjectNotFoundError reports a missing database, schema or table. Name is
// the dotted warehouse name.
type ObjectNotFoundError struct {
	Kind string
	Name string
}

func (e *ObjectNotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' does not exist", e.Kind, e.Name)
}

// ObjectExistsError reports a CREATE of an existing database or schema.
type ObjectExistsError struct {
	Kind string
	Name string
}

func (e *ObjectExistsError) Error() string {
	return fmt.Sprintf("%s '%s' already exists", e.Kind, e.Name)
}

type DatabaseInfo struct {
	Name      string
	CreatedOn time.Time
}

type SchemaInfo struct {
	Database  string
	Name      string
	CreatedOn time.Time
}

// ObjectInfo is a table or view stored as "DATABASE_SCHEMA.NAME".
type ObjectInfo struct {
	Database string
	Schema   string
	Name     string
	Kind     string
}

type ColumnInfo struct {
	Name       string
	Type       string
	NotNull    bool
	Default    *string
	PrimaryKey bool
}

// CreateMode is how a CREATE treats an existing object.
type CreateMode int

const (
	CreateStrict CreateMode = iota
	CreateIfNotExists
	CreateOrReplace
)

// Catalog records the warehouse databases and schemas. A schema S of
// database D is the name prefix "D_S." of the tables it holds, so the
// registry is what distinguishes an empty schema from a missing one.
type Catalog struct {
	engine *Engine
}

// FlatSchema joins a database and schema into the engine's schema prefix.
func FlatSchema(database, schema string) string {
	return database + transform.NamespaceSeparator + schema
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (c *Catalog) init(ctx context.Context) error {
	return c.engine.WithWriter(ctx, func(conn *sql.Conn) error {
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS ` + DatabasesTable + ` (
				name TEXT PRIMARY KEY,
				created_on INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS ` + SchemasTable + ` (
				database_name TEXT NOT NULL,
				schema_name TEXT NOT NULL,
				created_on INTEGER NOT NULL,
				PRIMARY KEY (database_name, schema_name)
			)`,
		}
		for _, stmt := range stmts {
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// inTx runs fn in a write transaction.
func (c *Catalog) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return c.engine.WithWriter(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// read runs fn on a pooled read connection.
func (c *Catalog) read(ctx context.Context, fn func(conn *sql.Conn) error) error {
	return c.engine.withConn(ctx, c.engine.readDB, fn)
}

// CreateDatabase registers a database together with its PUBLIC schema.
func (c *Catalog) CreateDatabase(ctx context.Context, name string, mode CreateMode) error {
	err := c.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := databaseExists(ctx, tx, name)
		if err != nil {
			return err
		}
		if exists {
			switch mode {
			case CreateIfNotExists:
				return nil
			case CreateOrReplace:
				if err := dropDatabase(ctx, tx, name); err != nil {
					return err
				}
			default:
				return &ObjectExistsError{Kind: KindDatabase, Name: name}
			}
		}
		if err := insertDatabase(ctx, tx, name); err != nil {
			return err
		}
		return insertSchema(ctx, tx, name, DefaultSchema)
	})
	recordDDL("database", err)
	return err
}

// DropDatabase removes a database, its schemas and every object in them.
func (c *Catalog) DropDatabase(ctx context.Context, name string, ifExists bool) error {
	err := c.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := databaseExists(ctx, tx, name)
		if err != nil {
			return err
		}
		if !exists {
			if ifExists {
				return nil
			}
			return &ObjectNotFoundError{Kind: KindDatabase, Name: name}
		}
		return dropDatabase(ctx, tx, name)
	})
	recordDDL("database", err)
	return err
}

// CreateSchema registers schema in an existing database.
func (c *Catalog) CreateSchema(ctx context.Context, database, schema string, mode CreateMode) error {
	err := c.inTx(ctx, func(tx *sql.Tx) error {
		ok, err := databaseExists(ctx, tx, database)
		if err != nil {
			return err
		}
		if !ok {
			return &ObjectNotFoundError{Kind: KindDatabase, Name: database}
		}

		exists, err := schemaExists(ctx, tx, database, schema)
		if err != nil {
			return err
		}
		if exists {
			switch mode {
			case CreateIfNotExists:
				return nil
			case CreateOrReplace:
				if err := dropSchema(ctx, tx, database, schema); err != nil {
					return err
				}
			default:
				return &ObjectExistsError{Kind: KindSchema, Name: database + "." + schema}
			}
		}
		return insertSchema(ctx, tx, database, schema)
	})
	recordDDL("schema", err)
	return err
}

// DropSchema removes a schema and every object in it.
func (c *Catalog) DropSchema(ctx context.Context, database, schema string, ifExists bool) error {
	err := c.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := schemaExists(ctx, tx, database, schema)
		if err != nil {
			return err
		}
		if !exists {
			if ifExists {
				return nil
			}
			return &ObjectNotFoundError{Kind: KindSchema, Name: database + "." + schema}
		}
		return dropSchema(ctx, tx, database, schema)
	})
	recordDDL("schema", err)
	return err
}

// EnsureNamespace creates database and schema when missing. schema may be
// empty.
func (c *Catalog) EnsureNamespace(ctx context.Context, database, schema string) error {
	if database == "" {
		return nil
	}
	// Logins against an existing namespace must not queue behind a running
	// write, so they are answered from the read pool.
	var present bool
	err := c.read(ctx, func(conn *sql.Conn) error {
		var err error
		if schema == "" || schema == DefaultSchema {
			present, err = databaseExists(ctx, conn, database)
		} else {
			present, err = schemaExists(ctx, conn, database, schema)
		}
		return err
	})
	if err != nil || present {
		return err
	}
	return c.inTx(ctx, func(tx *sql.Tx) error {
		exists, err := databaseExists(ctx, tx, database)
		if err != nil {
			return err
		}
		if !exists {
			log.Debug().Str("database", database).Msg("Auto-creating database")
			if err := insertDatabase(ctx, tx, database); err != nil {
				return err
			}
			if err := insertSchema(ctx, tx, database, DefaultSchema); err != nil {
				return err
			}
		}
		if schema == "" || schema == DefaultSchema {
			return nil
		}
		exists, err = schemaExists(ctx, tx, database, schema)
		if err != nil || exists {
			return err
		}
		log.Debug().Str("database", database).Str("schema", schema).Msg("Auto-creating schema")
		return insertSchema(ctx, tx, database, schema)
	})
}

func (c *Catalog) DatabaseExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := c.read(ctx, func(conn *sql.Conn) error {
		var err error
		exists, err = databaseExists(ctx, conn, name)
		return err
	})
	return exists, err
}

func (c *Catalog) SchemaExists(ctx context.Context, database, schema string) (bool, error) {
	var exists bool
	err := c.read(ctx, func(conn *sql.Conn) error {
		var err error
		exists, err = schemaExists(ctx, conn, database, schema)
		return err
	})
	return exists, err
}

// Databases lists databases whose name matches filter, ordered by name.
func (c *Catalog) Databases(ctx context.Context, filter *NameFilter) ([]DatabaseInfo, error) {
	query, args, err := dialect.From(DatabasesTable).
		Select("name", "created_on").
		Order(goqu.I("name").Asc()).
		ToSQL()
	if err != nil {
		return nil, err
	}

	var out []DatabaseInfo
	err = c.read(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var d DatabaseInfo
			var created int64
			if err := rows.Scan(&d.Name, &created); err != nil {
				return err
			}
			if !filter.Match(d.Name) {
				continue
			}
			d.CreatedOn = time.Unix(0, created).UTC()
			out = append(out, d)
		}
		return rows.Err()
	})
	return out, err
}

// Schemas lists the schemas of database (all databases when empty).
func (c *Catalog) Schemas(ctx context.Context, database string, filter *NameFilter) ([]SchemaInfo, error) {
	var out []SchemaInfo
	err := c.read(ctx, func(conn *sql.Conn) error {
		if database != "" {
			ok, err := databaseExists(ctx, conn, database)
			if err != nil {
				return err
			}
			if !ok {
				return &ObjectNotFoundError{Kind: KindDatabase, Name: database}
			}
		}
		all, err := listSchemas(ctx, conn, database)
		if err != nil {
			return err
		}
		for _, s := range all {
			if filter.Match(s.Name) {
				out = append(out, s)
			}
		}
		return nil
	})
	return out, err
}

// Objects lists tables and views (kind "" for both) in database.schema.
// Empty database or schema widen the search.
func (c *Catalog) Objects(ctx context.Context, database, schema, kind string, filter *NameFilter) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := c.read(ctx, func(conn *sql.Conn) error {
		if database != "" && schema != "" {
			ok, err := schemaExists(ctx, conn, database, schema)
			if err != nil {
				return err
			}
			if !ok {
				return &ObjectNotFoundError{Kind: KindSchema, Name: database + "." + schema}
			}
		}

		schemas, err := listSchemas(ctx, conn, database)
		if err != nil {
			return err
		}
		prefixes := make(map[string]SchemaInfo, len(schemas))
		for _, s := range schemas {
			if schema == "" || s.Name == schema {
				prefixes[FlatSchema(s.Database, s.Name)] = s
			}
		}

		objects, err := listEngineObjects(ctx, conn)
		if err != nil {
			return err
		}
		for _, o := range objects {
			if kind != "" && o.Kind != kind {
				continue
			}
			flat, name, ok := strings.Cut(o.Name, ".")
			if !ok {
				continue
			}
			s, ok := prefixes[flat]
			if !ok || !filter.Match(name) {
				continue
			}
			out = append(out, ObjectInfo{Database: s.Database, Schema: s.Name, Name: name, Kind: o.Kind})
		}
		sort.Slice(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if a.Database != b.Database {
				return a.Database < b.Database
			}
			if a.Schema != b.Schema {
				return a.Schema < b.Schema
			}
			return a.Name < b.Name
		})
		return nil
	})
	return out, err
}

// Columns describes the columns of database.schema.table in declaration
// order.
func (c *Catalog) Columns(ctx context.Context, database, schema, table string) ([]ColumnInfo, error) {
	engineName := FlatSchema(database, schema) + "." + table
	var out []ColumnInfo
	err := c.read(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, "PRAGMA table_info("+QuoteIdent(engineName)+")")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var (
				cid  int
				col  ColumnInfo
				def  sql.NullString
				nn   int
				pk   int
				decl string
			)
			if err := rows.Scan(&cid, &col.Name, &decl, &nn, &def, &pk); err != nil {
				return err
			}
			col.Type = strings.ToUpper(decl)
			col.NotNull = nn != 0
			col.PrimaryKey = pk != 0
			if def.Valid {
				col.Default = &def.String
			}
			out = append(out, col)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, &ObjectNotFoundError{Kind: KindTable, Name: database + "." + schema + "." + table}
	}
	return out, nil
}

// ObjectKind returns the kind of database.schema.name, or "" when no such
// table or view exists.
func (c *Catalog) ObjectKind(ctx context.Context, database, schema, name string) (string, error) {
	query, args, err := dialect.From("sqlite_master").
		Select("type").
		Where(goqu.Ex{
			"type": []string{"table", "view"},
			"name": FlatSchema(database, schema) + "." + name,
		}).
		ToSQL()
	if err != nil {
		return "", err
	}

	var kind string
	err = c.read(ctx, func(conn *sql.Conn) error {
		err := conn.QueryRowContext(ctx, query, args...).Scan(&kind)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	})
	return strings.ToUpper(kind), err
}

// QuoteIdent double-quotes an engine identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func databaseExists(ctx context.Context, q execer, name string) (bool, error) {
	query, args, err := dialect.From(DatabasesTable).
		Select(goqu.COUNT("*")).
		Where(goqu.Ex{"name": name}).
		ToSQL()
	if err != nil {
		return false, err
	}
	return countPositive(ctx, q, query, args)
}

func schemaExists(ctx context.Context, q execer, database, schema string) (bool, error) {
	query, args, err := dialect.From(SchemasTable).
		Select(goqu.COUNT("*")).
		Where(goqu.Ex{"database_name": database, "schema_name": schema}).
		ToSQL()
	if err != nil {
		return false, err
	}
	return countPositive(ctx, q, query, args)
}

func countPositive(ctx context.Context, q execer, query string, args []any) (bool, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return false, err
		}
	}
	return n > 0, rows.Err()
}

func insertDatabase(ctx context.Context, q execer, name string) error {
	query, args, err := dialect.Insert(DatabasesTable).
		Rows(goqu.Record{"name": name, "created_on": time.Now().UnixNano()}).
		ToSQL()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, query, args...)
	return err
}

func insertSchema(ctx context.Context, q execer, database, schema string) error {
	query, args, err := dialect.Insert(SchemasTable).
		Rows(goqu.Record{"database_name": database, "schema_name": schema, "created_on": time.Now().UnixNano()}).
		ToSQL()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, query, args...)
	return err
}

func listSchemas(ctx context.Context, q execer, database string) ([]SchemaInfo, error) {
	ds := dialect.From(SchemasTable).
		Select("database_name", "schema_name", "created_on").
		Order(goqu.I("database_name").Asc(), goqu.I("schema_name").Asc())
	if database != "" {
		ds = ds.Where(goqu.Ex{"database_name": database})
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SchemaInfo
	for rows.Next() {
		var s SchemaInfo
		var created int64
		if err := rows.Scan(&s.Database, &s.Name, &created); err != nil {
			return nil, err
		}
		s.CreatedOn = time.Unix(0, created).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

type engineObject struct {
	Name string
	Kind string
}

// listEngineObjects returns every user table and view, views first so they
// can be dropped before the tables they read.
func listEngineObjects(ctx context.Context, q execer) ([]engineObject, error) {
	query, args, err := dialect.From("sqlite_master").
		Select("name", "type").
		Where(goqu.Ex{"type": []string{"table", "view"}}).
		Order(goqu.I("type").Desc(), goqu.I("name").Asc()).
		ToSQL()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []engineObject
	for rows.Next() {
		var o engineObject
		if err := rows.Scan(&o.Name, &o.Kind); err != nil {
			return nil, err
		}
		if strings.HasPrefix(o.Name, "sqlite_") || strings.HasPrefix(o.Name, "__powder_") {
			continue
		}
		o.Kind = strings.ToUpper(o.Kind)
		out = append(out, o)
	}
	return out, rows.Err()
}

func dropSchema(ctx context.Context, q execer, database, schema string) error {
	prefix := FlatSchema(database, schema) + "."
	objects, err := listEngineObjects(ctx, q)
	if err != nil {
		return err
	}
	for _, o := range objects {
		if !strings.HasPrefix(o.Name, prefix) {
			continue
		}
		if _, err := q.ExecContext(ctx, "DROP "+o.Kind+" IF EXISTS "+QuoteIdent(o.Name)); err != nil {
			return fmt.Errorf("failed to drop %s %s: %w", strings.ToLower(o.Kind), o.Name, err)
		}
	}

	query, args, err := dialect.Delete(SchemasTable).
		Where(goqu.Ex{"database_name": database, "schema_name": schema}).
		ToSQL()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, query, args...)
	return err
}

func dropDatabase(ctx context.Context, q execer, name string) error {
	schemas, err := listSchemas(ctx, q, name)
	if err != nil {
		return err
	}
	for _, s := range schemas {
		if err := dropSchema(ctx, q, name, s.Name); err != nil {
			return err
		}
	}

	query, args, err := dialect.Delete(DatabasesTable).
		Where(goqu.Ex{"name": name}).
		ToSQL()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, query, args...)
	return err
}

func recordDDL(object string, err error) {
	result := "success"
	if err != nil {
		result = "failed"
	}
	telemetry.DDLOperationsTotal.With(object, result).Inc()
}
