package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-pkgz/stringutils"
	"github.com/google/uuid"
)

// Statement is a prepared statement with positional bind values. Bound values are kept for
// diagnostics and re-used by subsequent executions until re-bound.
type Statement struct {
	id    string
	m     *Manager
	stmt  *sql.Stmt
	query string
	binds []any
	bound []bool

	tx     *sql.Tx   // transaction txStmt belongs to
	txStmt *sql.Stmt // statement bound to tx, closed by database/sql when tx ends
}

func newStatement(m *Manager, stmt *sql.Stmt, query string) *Statement {
	n := CountPlaceholders(query, m.dialect.Placeholders())
	return &Statement{
		id:    uuid.New().String()[:8],
		m:     m,
		stmt:  stmt,
		query: query,
		binds: make([]any, n),
		bound: make([]bool, n),
	}
}

// SQL returns statement text
func (s *Statement) SQL() string { return s.query }

// PlaceholderCount returns number of bind positions
func (s *Statement) PlaceholderCount() int { return len(s.binds) }

// Binds returns a copy of bound values, unbound positions are nil
func (s *Statement) Binds() []any { return append([]any(nil), s.binds...) }

// Set binds v to 1-based position pos.
func (s *Statement) Set(pos int, v any) error {
	if pos < 1 || pos > len(s.binds) {
		return &Error{Kind: KindBind, Op: "bind position", SQL: s.query,
			Err: fmt.Errorf("position %d out of range [1:%d]", pos, len(s.binds))}
	}
	val, err := bindValue(v)
	if err != nil {
		return s.bindErr("bind value", pos, v, err)
	}
	s.binds[pos-1], s.bound[pos-1] = val, true
	return nil
}

// Bind binds the whole vector. Length must match placeholder count and all values must be of a
// supported type, nothing is bound otherwise.
func (s *Statement) Bind(vals []any) error {
	if len(vals) != len(s.binds) {
		return &Error{Kind: KindBind, Op: "bind", SQL: s.query, Want: len(s.binds), Got: len(vals)}
	}
	res := make([]any, len(vals))
	for i, v := range vals {
		val, err := bindValue(v)
		if err != nil {
			return s.bindErr("bind", i+1, v, err)
		}
		res[i] = val
	}
	copy(s.binds, res)
	for i := range s.bound {
		s.bound[i] = true
	}
	return nil
}

// Clear resets all bound values
func (s *Statement) Clear() {
	for i := range s.binds {
		s.binds[i], s.bound[i] = nil, false
	}
}

// ExecuteUpdate binds vals, if any passed, and executes the statement. Returns number of affected rows.
func (s *Statement) ExecuteUpdate(ctx context.Context, vals ...any) (int64, error) {
	if err := s.prepareExec("execute update", vals); err != nil {
		return 0, err
	}
	stmt, err := s.handle(ctx, "execute update")
	if err != nil {
		return 0, err
	}
	defer s.timeIt()()
	res, err := stmt.ExecContext(ctx, s.binds...)
	if err != nil {
		if s.m.dialect.IsWarning(err) {
			log.Printf("[WARN] statement %s warning: %v", s.id, err)
			return 0, nil
		}
		return 0, execErr("execute update", s.query, err)
	}
	return affected(res), nil
}

// ExecuteQuery binds vals, if any passed, and executes the statement. Caller must close the navigator,
// the statement stays open and can be executed again.
func (s *Statement) ExecuteQuery(ctx context.Context, vals ...any) (*Navigator, error) {
	if err := s.prepareExec("execute query", vals); err != nil {
		return nil, err
	}
	stmt, err := s.handle(ctx, "execute query")
	if err != nil {
		return nil, err
	}
	defer s.timeIt()()
	rows, err := stmt.QueryContext(ctx, s.binds...)
	if err != nil {
		if s.m.dialect.IsWarning(err) {
			log.Printf("[WARN] statement %s warning: %v", s.id, err)
			return newBufferedNavigator(nil, nil, nil), nil
		}
		return nil, execErr("execute query", s.query, err)
	}
	nav, err := s.m.navigator(rows, nil)
	if err != nil {
		return nil, execErr("execute query", s.query, err)
	}
	return nav, nil
}

// Close closes prepared statement
func (s *Statement) Close() error {
	if s.txStmt != nil {
		_ = s.txStmt.Close() // already closed if its transaction ended
		s.tx, s.txStmt = nil, nil
	}
	if err := s.stmt.Close(); err != nil {
		return &Error{Kind: KindExecution, Op: "close statement", SQL: s.query, Err: err}
	}
	return nil
}

func (s *Statement) prepareExec(op string, vals []any) error {
	if !s.m.IsOpen() {
		return closedErr(op)
	}
	if len(vals) > 0 {
		if err := s.Bind(vals); err != nil {
			return err
		}
	}
	for i, ok := range s.bound {
		if !ok {
			return &Error{Kind: KindBind, Op: op, SQL: s.query, Err: fmt.Errorf("position %d is not bound", i+1)}
		}
	}
	if s.m.opts.Debug {
		log.Printf("[DEBUG] statement %s: %s", s.id, s.query)
		for i, v := range stringutils.SliceToString(s.binds) {
			log.Printf("[DEBUG] statement %s bind %d: %s", s.id, i+1, v)
		}
	}
	return nil
}

// handle returns the statement to execute: the prepared one in autocommit mode, otherwise its copy
// bound to the current transaction, starting the transaction if needed
func (s *Statement) handle(ctx context.Context, op string) (*sql.Stmt, error) {
	q, err := s.m.querier(ctx, op)
	if err != nil {
		return nil, err
	}
	tx, ok := q.(*sql.Tx)
	if !ok {
		return s.stmt, nil
	}
	if s.tx != tx {
		s.tx, s.txStmt = tx, tx.StmtContext(ctx, s.stmt)
	}
	return s.txStmt, nil
}

func (s *Statement) timeIt() func() {
	if !s.m.opts.Debug {
		return func() {}
	}
	st := time.Now()
	return func() { log.Printf("[DEBUG] statement %s executed in %.3fs", s.id, time.Since(st).Seconds()) }
}

var errUnhandledType = errors.New("unhandled data type")

// bindErr makes bind error for v at 1-based position pos, keeping the cause unless v is of unsupported type
func (s *Statement) bindErr(op string, pos int, v any, err error) error {
	if errors.Is(err, errUnhandledType) {
		return &Error{Kind: KindBind, Op: op, SQL: s.query, Name: fmt.Sprintf("%T", v), Got: pos}
	}
	return &Error{Kind: KindBind, Op: op, SQL: s.query, Got: pos, Err: fmt.Errorf("position %d: %w", pos, err)}
}

// bindValue normalizes v to one of int64, float64, string, bool, time.Time, []byte or nil
func bindValue(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case int64:
		return val, nil
	case uint:
		return int64(val), nil //nolint:gosec // bind values are row data, overflow is caller's problem
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		return int64(val), nil //nolint:gosec // bind values are row data, overflow is caller's problem
	case float32:
		return float64(val), nil
	case float64:
		return val, nil
	case string:
		return val, nil
	case bool:
		return val, nil
	case time.Time:
		return val, nil
	case []byte:
		return val, nil
	case driver.Valuer:
		dv, err := val.Value()
		if err != nil {
			return nil, fmt.Errorf("can't get value of %T: %w", v, err)
		}
		return bindValue(dv)
	}
	return nil, fmt.Errorf("%w %T", errUnhandledType, v)
}

// CountPlaceholders returns number of bind positions in query. String literals, quoted identifiers
// and comments are skipped. For Dollar style the highest $n is the count.
func CountPlaceholders(query string, style PlaceholderStyle) int {
	count := 0
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(query, i, c)
		case c == '-' && i+1 < len(query) && query[i+1] == '-':
			for i < len(query) && query[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(query) && query[i+1] == '*':
			i += 2
			for i+1 < len(query) && (query[i] != '*' || query[i+1] != '/') {
				i++
			}
			i++
		case style == QuestionMark && c == '?':
			count++
		case style == Dollar && c == '$':
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			if j > i+1 {
				if n, err := strconv.Atoi(query[i+1 : j]); err == nil && n > count {
					count = n
				}
			}
			i = j - 1
		}
	}
	return count
}

// skipQuoted returns index of the closing quote; doubled quotes are escapes
func skipQuoted(s string, start int, q byte) int {
	for i := start + 1; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i
	}
	return len(s)
}
