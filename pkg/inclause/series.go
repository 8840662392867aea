package inclause

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/umputun/rowload/pkg/db"
)

// QuerySeries runs chunked statements one by one. Each ExecuteNextQuery closes the navigator returned
// by the previous call, so the series never holds more than one open cursor.
type QuerySeries struct {
	m       *db.Manager
	queries []string
	idx     int
	current *db.Navigator
}

// NewQuerySeries makes series over already rendered statements
func NewQuerySeries(m *db.Manager, queries []string) *QuerySeries {
	return &QuerySeries{m: m, queries: queries}
}

// Query adds IN condition on column to sql, splits values by manager's MaxInClause and returns
// the series of resulting queries.
func Query(m *db.Manager, sql, column string, values []any) (*QuerySeries, error) {
	f := Formatter{Max: m.Options().MaxInClause, Dialect: m.Dialect()}
	queries, err := f.CreateSQL(AddInClause(sql, column), values)
	if err != nil {
		return nil, err
	}
	log.Printf("[DEBUG] %d values split into %d queries", len(values), len(queries))
	return NewQuerySeries(m, queries), nil
}

// Len returns number of queries in the series
func (s *QuerySeries) Len() int { return len(s.queries) }

// HasNext returns true if there are queries left to run
func (s *QuerySeries) HasNext() bool { return s.idx < len(s.queries) }

// ExecuteNextQuery closes the previous navigator and runs the next query.
func (s *QuerySeries) ExecuteNextQuery(ctx context.Context) (*db.Navigator, error) {
	if err := s.closeCurrent(); err != nil {
		return nil, err
	}
	if !s.HasNext() {
		return nil, fmt.Errorf("no more queries in series of %d", len(s.queries))
	}
	query := s.queries[s.idx]
	s.idx++
	nav, err := s.m.ExecuteQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	s.current = nav
	return nav, nil
}

// Close closes the navigator of the last query, if still open
func (s *QuerySeries) Close() error {
	s.idx = len(s.queries)
	return s.closeCurrent()
}

// closeCurrent closes current navigator, ignoring already closed one
func (s *QuerySeries) closeCurrent() error {
	if s.current == nil {
		return nil
	}
	nav := s.current
	s.current = nil
	if err := nav.Close(); err != nil && !errors.Is(err, db.ErrClosed) {
		return err
	}
	return nil
}
