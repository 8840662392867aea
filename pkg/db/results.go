package db

import (
	"database/sql"
	"fmt"
)

// Result is one result of a multi-result execution, Nav is set for a result set.
// UpdateCount is always -1: database/sql reports affected rows only for Exec, not per result
// of a query, use Manager.ExecuteUpdate for statements where the count matters.
type Result struct {
	Nav         *Navigator
	UpdateCount int64
}

// IsResultSet returns true if the result has rows to navigate
func (r Result) IsResultSet() bool { return r.Nav != nil }

// Results pulls results of a statement producing several of them, one at a time.
// Pulling the next result closes the navigator of the previous one. Results without rows
// carry no update count, database/sql doesn't expose it for them.
type Results struct {
	query      string
	rows       *sql.Rows
	scrollable bool
	prev       *Navigator
	started    bool
	done       bool
}

// Next returns the next result, false if there are no more results.
func (r *Results) Next() (Result, bool, error) {
	if r.done {
		return Result{}, false, nil
	}
	if r.prev != nil {
		r.prev.closed = true // shares rows with results, invalidate only
		r.prev.gen++
		r.prev = nil
	}
	if r.started && !r.rows.NextResultSet() {
		return Result{}, false, r.finish()
	}
	r.started = true

	cols, err := r.rows.Columns()
	if err != nil {
		_ = r.finish()
		return Result{}, false, execErr("read result", r.query, err)
	}
	if len(cols) == 0 {
		return Result{UpdateCount: -1}, true, nil
	}

	nav := &Navigator{cols: cols, rows: r.rows, owner: r}
	if r.scrollable {
		data := [][]any{}
		for r.rows.Next() {
			vals, serr := scanRow(r.rows, len(cols))
			if serr != nil {
				_ = r.finish()
				return Result{}, false, execErr("read result", r.query, serr)
			}
			data = append(data, vals)
		}
		nav = newBufferedNavigator(cols, data, nil)
	}
	r.prev = nav
	return Result{Nav: nav, UpdateCount: -1}, true, nil
}

// Close closes remaining results
func (r *Results) Close() error {
	if r.done {
		return nil
	}
	return r.finish()
}

func (r *Results) finish() error {
	r.done = true
	if r.prev != nil {
		r.prev.closed = true
		r.prev = nil
	}
	if r.rows == nil {
		return nil
	}
	if err := r.rows.Err(); err != nil {
		_ = r.rows.Close()
		return execErr("read results", r.query, err)
	}
	if err := r.rows.Close(); err != nil {
		return execErr("close results", r.query, fmt.Errorf("can't close rows: %w", err))
	}
	return nil
}
