package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	_ "modernc.org/sqlite" // sqlite driver loaded here
)

// Provider opens native connections for one database vendor and knows the vendor's sql dialect.
// Providers are registered by name and selected by Options.Driver.
type Provider interface {
	Open(opts Options, password string) (*sql.DB, error)
	Dialect() Dialect
}

// Dialect describes vendor-specific sql used by the access layer.
type Dialect interface {
	Name() string
	// Placeholders returns the style of bind placeholders
	Placeholders() PlaceholderStyle
	// QuoteIdent quotes a table or column identifier
	QuoteIdent(name string) string
	// BoolLiteral renders boolean as sql literal
	BoolLiteral(v bool) string
	// IsWarning reports whether err is a warning-class condition rather than a failure
	IsWarning(err error) bool
	// ColumnsQuery returns catalog query listing table columns. Result columns must be
	// name, type_name, size, decimal_size, nullable, table, schema, catalog in ordinal order.
	ColumnsQuery(schema, table string) (query string, args []any)
	// KeysQuery returns catalog query for primary key column names in key order.
	KeysQuery(schema, table string) (query string, args []any)
	// FallbackKeysQuery returns vendor query for primary keys not visible to KeysQuery.
	FallbackKeysQuery(schema, table string) (query string, args []any)
}

// PlaceholderStyle defines how positional bind variables are written.
type PlaceholderStyle int

// placeholder styles
const (
	QuestionMark PlaceholderStyle = iota // ?
	Dollar                               // $1, $2
)

var providers = struct {
	sync.RWMutex
	m map[string]Provider
}{m: map[string]Provider{
	"postgres": postgresProvider{},
	"mysql":    mysqlProvider{},
	"sqlite":   sqliteProvider{},
}}

// RegisterProvider adds or replaces a named provider.
func RegisterProvider(name string, p Provider) {
	providers.Lock()
	defer providers.Unlock()
	providers.m[strings.ToLower(name)] = p
}

// LookupProvider returns provider registered under the name.
func LookupProvider(name string) (Provider, error) {
	providers.RLock()
	defer providers.RUnlock()
	p, ok := providers.m[strings.ToLower(name)]
	if !ok {
		return nil, &Error{Kind: KindConfig, Op: "lookup provider", Name: name,
			Err: fmt.Errorf("unknown driver, supported: %s", strings.Join(providerNames(), ", "))}
	}
	return p, nil
}

func providerNames() []string {
	res := make([]string, 0, len(providers.m))
	for k := range providers.m {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}

type postgresProvider struct{}

func (postgresProvider) Dialect() Dialect { return postgresDialect{} }

// Open makes postgres connection from the url if set, or from server, database, user and password.
func (postgresProvider) Open(opts Options, password string) (*sql.DB, error) {
	dsn := opts.URL
	if dsn == "" {
		u := url.URL{Scheme: "postgres", Host: opts.Server, Path: "/" + opts.Database}
		if opts.User != "" {
			u.User = url.UserPassword(opts.User, password)
		}
		q := u.Query()
		q.Set("sslmode", "disable")
		if opts.Schema != "" {
			q.Set("search_path", opts.Schema)
		}
		u.RawQuery = q.Encode()
		dsn = u.String()
	}
	return sql.Open("postgres", dsn)
}

type mysqlProvider struct{}

func (mysqlProvider) Dialect() Dialect { return mysqlDialect{} }

// Open makes mysql connection from the url (dsn) if set, or from server, database, user and password.
func (mysqlProvider) Open(opts Options, password string) (*sql.DB, error) {
	if opts.URL != "" {
		return sql.Open("mysql", opts.URL)
	}
	cfg := mysql.NewConfig()
	cfg.User = opts.User
	cfg.Passwd = password
	cfg.Net = "tcp"
	cfg.Addr = opts.Server
	if _, _, err := net.SplitHostPort(opts.Server); err != nil && opts.Server != "" {
		cfg.Addr = net.JoinHostPort(opts.Server, "3306")
	}
	cfg.DBName = opts.Database
	cfg.ParseTime = true
	return sql.Open("mysql", cfg.FormatDSN())
}

type sqliteProvider struct{}

func (sqliteProvider) Dialect() Dialect { return sqliteDialect{} }

// Open makes sqlite connection to the url if set, otherwise to the database file. No credentials used.
func (sqliteProvider) Open(opts Options, _ string) (*sql.DB, error) {
	dsn := opts.URL
	if dsn == "" {
		dsn = opts.Database
	}
	return sql.Open("sqlite", dsn)
}

type postgresDialect struct{}

func (postgresDialect) Name() string                   { return "postgres" }
func (postgresDialect) Placeholders() PlaceholderStyle { return Dollar }
func (postgresDialect) QuoteIdent(name string) string  { return pq.QuoteIdentifier(name) }

func (postgresDialect) BoolLiteral(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

// IsWarning checks for sqlstate class 01 (warning)
func (postgresDialect) IsWarning(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code.Class() == "01" || strings.EqualFold(pe.Severity, "WARNING")
	}
	return false
}

func (postgresDialect) ColumnsQuery(schema, table string) (query string, args []any) {
	return `SELECT column_name, data_type, COALESCE(character_maximum_length, numeric_precision, 0),
		COALESCE(numeric_scale, 0), is_nullable = 'YES', table_name, table_schema, table_catalog
		FROM information_schema.columns
		WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND lower(table_name) = lower($2)
		ORDER BY ordinal_position`, []any{schema, table}
}

func (postgresDialect) KeysQuery(schema, table string) (query string, args []any) {
	return `SELECT kcu.column_name FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND lower(tc.table_name) = lower($2)
		ORDER BY kcu.ordinal_position`, []any{schema, table}
}

// FallbackKeysQuery reads pg_index directly, it also sees unique primary indexes made outside of constraints
func (postgresDialect) FallbackKeysQuery(schema, table string) (query string, args []any) {
	return `SELECT a.attname FROM pg_index i
		JOIN pg_class c ON c.oid = i.indrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = ANY(i.indkey)
		WHERE i.indisprimary AND n.nspname = COALESCE(NULLIF($1, ''), current_schema())
		  AND lower(c.relname) = lower($2)
		ORDER BY array_position(i.indkey, a.attnum)`, []any{schema, table}
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string                   { return "mysql" }
func (mysqlDialect) Placeholders() PlaceholderStyle { return QuestionMark }
func (mysqlDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (mysqlDialect) BoolLiteral(v bool) string { return numericBool(v) }

// IsWarning checks for sqlstate class 01 (warning)
func (mysqlDialect) IsWarning(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.SQLState[0] == '0' && me.SQLState[1] == '1'
	}
	return false
}

func (mysqlDialect) ColumnsQuery(schema, table string) (query string, args []any) {
	return `SELECT COLUMN_NAME, DATA_TYPE, COALESCE(CHARACTER_MAXIMUM_LENGTH, NUMERIC_PRECISION, 0),
		COALESCE(NUMERIC_SCALE, 0), IS_NULLABLE = 'YES', TABLE_NAME, TABLE_SCHEMA, TABLE_CATALOG
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, []any{schema, table}
}

func (mysqlDialect) KeysQuery(schema, table string) (query string, args []any) {
	return `SELECT COLUMN_NAME FROM information_schema.KEY_COLUMN_USAGE
		WHERE CONSTRAINT_NAME = 'PRIMARY' AND TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE())
		  AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, []any{schema, table}
}

func (mysqlDialect) FallbackKeysQuery(schema, table string) (query string, args []any) {
	return `SELECT COLUMN_NAME FROM information_schema.COLUMNS
		WHERE COLUMN_KEY = 'PRI' AND TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, []any{schema, table}
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string                   { return "sqlite" }
func (sqliteDialect) Placeholders() PlaceholderStyle { return QuestionMark }
func (sqliteDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
func (sqliteDialect) IsWarning(error) bool { return false }

func (sqliteDialect) BoolLiteral(v bool) string { return numericBool(v) }

// numericBool renders boolean as 1 or 0, for databases keeping booleans as integers
func numericBool(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func (sqliteDialect) ColumnsQuery(_, table string) (query string, args []any) {
	return `SELECT name, type, 0, 0, "notnull" = 0, ?, 'main', '' FROM pragma_table_info(?) ORDER BY cid`,
		[]any{table, table}
}

func (sqliteDialect) KeysQuery(_, table string) (query string, args []any) {
	return `SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`, []any{table}
}

// FallbackKeysQuery looks for columns of a primary key index, i.e. made by WITHOUT ROWID tables
func (sqliteDialect) FallbackKeysQuery(_, table string) (query string, args []any) {
	return `SELECT ii.name FROM pragma_index_list(?) il, pragma_index_info(il.name) ii
		WHERE il.origin = 'pk' ORDER BY ii.seqno`, []any{table}
}
