// Package db provides the query execution and row materialization engine: a connection manager owning
// exactly one connection, cursor navigation, row interpretation, grouped iteration and bindable statements.
// Nothing in this package is safe for concurrent use; a Manager and everything derived from it belongs
// to a single goroutine.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// DefaultMaxInClause is used when Options.MaxInClause is not set
const DefaultMaxInClause = 1000

// Options defines connection parameters and execution behavior of the Manager
type Options struct {
	Driver       string // provider name, i.e. postgres, mysql or sqlite
	Server       string // host[:port]
	Database     string // database name, file name for sqlite
	Schema       string // default schema for catalog lookups
	User         string
	Password     string // literal password, takes precedence over PasswordFile
	PasswordFile string // file with password, re-read on each (re)connect
	URL          string // full dsn, overrides Server/Database/User/Password if set
	MaxInClause  int    // max number of literals in a single IN (...) list
	Debug        bool   // time and log every execution
	Scrollable   bool   // open scrollable (buffered) cursors instead of forward-only
	AutoCommit   bool   // if false, statements run inside a transaction finished by Commit/Rollback
	Lazy         bool   // don't connect in New, connect on first use

	// PasswordLoader reads password from PasswordFile, default reads the file and trims spaces
	PasswordLoader func(path string) (string, error) `json:"-" yaml:"-"`
}

// Manager owns one connection and runs sql on it sequentially.
type Manager struct {
	opts     Options
	provider Provider
	dialect  Dialect

	db   *sql.DB
	conn *sql.Conn
	tx   *sql.Tx
	lazy bool // connection deferred to the first use
}

// querier is implemented by both *sql.Conn and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// New makes a Manager for the given options. Connects immediately unless opts.Lazy is set.
func New(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Driver == "" {
		return nil, &Error{Kind: KindConfig, Op: "make manager", Name: "driver", Err: fmt.Errorf("not set")}
	}
	if opts.Database == "" && opts.URL == "" {
		return nil, &Error{Kind: KindConfig, Op: "make manager", Name: "database", Err: fmt.Errorf("neither database nor url set")}
	}
	p, err := LookupProvider(opts.Driver)
	if err != nil {
		return nil, err
	}
	if opts.MaxInClause <= 0 {
		opts.MaxInClause = DefaultMaxInClause
	}
	if opts.PasswordLoader == nil {
		opts.PasswordLoader = readPasswordFile
	}

	res := &Manager{opts: opts, provider: p, dialect: p.Dialect(), lazy: opts.Lazy}
	if opts.Lazy {
		return res, nil
	}
	if err := res.connect(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

// Options returns manager's options, password excluded
func (m *Manager) Options() Options {
	res := m.opts
	res.Password = ""
	return res
}

// Dialect returns sql dialect of the connected database
func (m *Manager) Dialect() Dialect { return m.dialect }

// Identity returns a string identifying the database this manager talks to
func (m *Manager) Identity() string {
	if m.opts.URL != "" {
		return m.dialect.Name() + "|" + m.opts.URL + "|" + m.opts.Schema
	}
	return strings.Join([]string{m.dialect.Name(), m.opts.Server, m.opts.Database, m.opts.Schema}, "|")
}

// IsOpen returns true if the connection is established and not closed
func (m *Manager) IsOpen() bool { return m.conn != nil }

// ExecuteQuery runs sql and returns navigator over the result. Forward-only by default, scrollable
// if Options.Scrollable set. Caller must close the navigator.
func (m *Manager) ExecuteQuery(ctx context.Context, query string) (*Navigator, error) {
	q, err := m.querier(ctx, "execute query")
	if err != nil {
		return nil, err
	}
	defer m.timeIt(query)()
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		if m.dialect.IsWarning(err) {
			log.Printf("[WARN] query warning: %v, sql: %s", err, query)
			return newBufferedNavigator(nil, nil, nil), nil
		}
		return nil, execErr("execute query", query, err)
	}
	nav, err := m.navigator(rows, nil)
	if err != nil {
		return nil, execErr("execute query", query, err)
	}
	return nav, nil
}

// ExecuteUpdate runs dml or ddl and returns number of affected rows.
func (m *Manager) ExecuteUpdate(ctx context.Context, query string) (int64, error) {
	q, err := m.querier(ctx, "execute update")
	if err != nil {
		return 0, err
	}
	defer m.timeIt(query)()
	res, err := q.ExecContext(ctx, query)
	if err != nil {
		if m.dialect.IsWarning(err) {
			log.Printf("[WARN] update warning: %v, sql: %s", err, query)
			return 0, nil
		}
		return 0, execErr("execute update", query, err)
	}
	return affected(res), nil
}

// Execute runs sql which may produce several results, i.e. stored procedure call.
// Results are pulled one by one with Results.Next.
func (m *Manager) Execute(ctx context.Context, query string) (*Results, error) {
	q, err := m.querier(ctx, "execute")
	if err != nil {
		return nil, err
	}
	defer m.timeIt(query)()
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		if m.dialect.IsWarning(err) {
			log.Printf("[WARN] execute warning: %v, sql: %s", err, query)
			return &Results{query: query, done: true}, nil
		}
		return nil, execErr("execute", query, err)
	}
	return &Results{query: query, rows: rows, scrollable: m.opts.Scrollable}, nil
}

// Prepare makes bindable statement for the query. Caller must close it.
// The statement is prepared on the connection and outlives transactions, each execution runs it
// inside the current transaction if autocommit is off.
func (m *Manager) Prepare(ctx context.Context, query string) (*Statement, error) {
	conn, err := m.connection(ctx, "prepare statement")
	if err != nil {
		return nil, err
	}
	stmt, err := conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, execErr("prepare statement", query, err)
	}
	return newStatement(m, stmt, query), nil
}

// Commit commits current transaction. Does nothing in autocommit mode.
func (m *Manager) Commit() error {
	if !m.IsOpen() {
		return closedErr("commit")
	}
	if m.tx == nil {
		return nil
	}
	tx := m.tx
	m.tx = nil
	if err := tx.Commit(); err != nil {
		return &Error{Kind: KindExecution, Op: "commit", Err: err}
	}
	log.Printf("[DEBUG] committed transaction on %s", m.opts.Database)
	return nil
}

// Rollback aborts current transaction. Does nothing in autocommit mode.
func (m *Manager) Rollback() error {
	if !m.IsOpen() {
		return closedErr("rollback")
	}
	if m.tx == nil {
		return nil
	}
	tx := m.tx
	m.tx = nil
	if err := tx.Rollback(); err != nil {
		return &Error{Kind: KindExecution, Op: "rollback", Err: err}
	}
	log.Printf("[DEBUG] rolled back transaction on %s", m.opts.Database)
	return nil
}

// Reconnect re-establishes closed connection with stored credentials. Does nothing if connection is open.
func (m *Manager) Reconnect(ctx context.Context) error {
	if m.IsOpen() {
		return nil
	}
	log.Printf("[INFO] reconnect to %s", m.opts.Database)
	return m.connect(ctx)
}

// Close rolls back pending transaction and closes the connection. All operations fail with ErrClosed
// until Reconnect called.
func (m *Manager) Close() error {
	m.lazy = false
	if !m.IsOpen() {
		return nil
	}
	errs := new(multierror.Error)
	if m.tx != nil {
		if err := m.tx.Rollback(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("rollback: %w", err))
		}
		m.tx = nil
	}
	if err := m.conn.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close connection: %w", err))
	}
	if err := m.db.Close(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("close database: %w", err))
	}
	m.conn, m.db = nil, nil
	log.Printf("[DEBUG] connection to %s closed", m.opts.Database)
	if err := errs.ErrorOrNil(); err != nil {
		return &Error{Kind: KindConnection, Op: "close", Err: err}
	}
	return nil
}

func (m *Manager) connect(ctx context.Context) error {
	password := m.opts.Password
	if password == "" && m.opts.PasswordFile != "" {
		pw, err := m.opts.PasswordLoader(m.opts.PasswordFile)
		if err != nil {
			return &Error{Kind: KindConfig, Op: "read password file", Name: m.opts.PasswordFile, Err: err}
		}
		password = pw
	}

	db, err := m.provider.Open(m.opts, password)
	if err != nil {
		return &Error{Kind: KindConnection, Op: "open", Name: m.opts.Database, Err: err}
	}
	db.SetMaxOpenConns(1)
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return &Error{Kind: KindConnection, Op: "connect", Name: m.opts.Database, Err: err}
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		_ = db.Close()
		return &Error{Kind: KindConnection, Op: "ping", Name: m.opts.Database, Err: err}
	}
	m.db, m.conn = db, conn
	log.Printf("[DEBUG] connected to %s database %q, server %q, user %q, autocommit %v",
		m.dialect.Name(), m.opts.Database, m.opts.Server, m.opts.User, m.opts.AutoCommit)
	return nil
}

// connection returns open connection, connecting on the first use in lazy mode
func (m *Manager) connection(ctx context.Context, op string) (*sql.Conn, error) {
	if m.IsOpen() {
		return m.conn, nil
	}
	if !m.lazy {
		return nil, closedErr(op)
	}
	if err := m.connect(ctx); err != nil {
		return nil, err
	}
	m.lazy = false
	return m.conn, nil
}

// querier returns active transaction, starting one if autocommit is off, or the connection itself
func (m *Manager) querier(ctx context.Context, op string) (querier, error) {
	if _, err := m.connection(ctx, op); err != nil {
		return nil, err
	}
	if m.opts.AutoCommit {
		return m.conn, nil
	}
	if m.tx == nil {
		tx, err := m.conn.BeginTx(ctx, nil)
		if err != nil {
			return nil, &Error{Kind: KindExecution, Op: "begin transaction", Err: err}
		}
		m.tx = tx
	}
	return m.tx, nil
}

func (m *Manager) navigator(rows *sql.Rows, stmt *sql.Stmt) (*Navigator, error) {
	if !m.opts.Scrollable {
		return newStreamNavigator(rows, stmt)
	}
	cols, data, err := drain(rows)
	if err != nil {
		if stmt != nil {
			_ = stmt.Close()
		}
		return nil, err
	}
	return newBufferedNavigator(cols, data, stmt), nil
}

// timeIt returns func logging elapsed time of the execution in debug mode
func (m *Manager) timeIt(query string) func() {
	if !m.opts.Debug {
		return func() {}
	}
	st := time.Now()
	return func() {
		log.Printf("[DEBUG] executed in %.3fs: %s", time.Since(st).Seconds(), query)
	}
}

func affected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return -1
	}
	return n
}

func readPasswordFile(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted config
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
