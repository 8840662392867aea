package db

import (
	"database/sql"
	"fmt"
)

// Navigator wraps a cursor over query results. Forward-only navigators stream rows from the driver,
// scrollable ones hold the whole result in memory and support any positioning.
// Row references and interpreted values are always computed against the current position.
type Navigator struct {
	cols []string
	stmt *sql.Stmt // owning statement, closed together with the cursor, optional

	// streaming cursor
	rows *sql.Rows

	// buffered (scrollable) cursor
	scrollable bool
	data       [][]any

	pos     int   // 1-based row position, 0 is before first, len(data)+1 is after last
	current []any // values of the current row, nil if not on a row
	gen     int   // incremented on each move, invalidates row references
	closed  bool
	done    bool     // forward-only cursor exhausted, pos is after last
	owner   *Results // set for navigators produced by Results, they don't own rows
}

func newStreamNavigator(rows *sql.Rows, stmt *sql.Stmt) (*Navigator, error) {
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		if stmt != nil {
			_ = stmt.Close()
		}
		return nil, fmt.Errorf("can't get columns: %w", err)
	}
	return &Navigator{cols: cols, rows: rows, stmt: stmt}, nil
}

func newBufferedNavigator(cols []string, data [][]any, stmt *sql.Stmt) *Navigator {
	return &Navigator{cols: cols, data: data, stmt: stmt, scrollable: true}
}

// drain reads all rows and closes them
func drain(rows *sql.Rows) (cols []string, data [][]any, err error) {
	defer rows.Close()
	if cols, err = rows.Columns(); err != nil {
		return nil, nil, fmt.Errorf("can't get columns: %w", err)
	}
	for rows.Next() {
		vals, err := scanRow(rows, len(cols))
		if err != nil {
			return nil, nil, err
		}
		data = append(data, vals)
	}
	if err = rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("can't read rows: %w", err)
	}
	return cols, data, nil
}

func scanRow(rows *sql.Rows, n int) ([]any, error) {
	vals := make([]any, n)
	ptrs := make([]any, n)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("can't scan row: %w", err)
	}
	for i, v := range vals {
		if b, ok := v.([]byte); ok { // driver may reuse the buffer on next scan
			vals[i] = append([]byte(nil), b...)
		}
	}
	return vals, nil
}

// Columns returns result column names
func (n *Navigator) Columns() []string {
	return append([]string(nil), n.cols...)
}

// Scrollable returns true if navigator supports backward and absolute positioning
func (n *Navigator) Scrollable() bool { return n.scrollable }

// Position returns 1-based number of the current row, 0 if before the first row and
// number of rows + 1 after the last one
func (n *Navigator) Position() int { return n.pos }

// Next moves to the next row, returns false if there are no more rows.
func (n *Navigator) Next() (bool, error) {
	if n.closed {
		return false, n.err("next", ErrClosed)
	}
	if n.scrollable {
		return n.moveTo(n.pos + 1), nil
	}
	n.gen++
	n.current = nil
	if n.done {
		return false, nil
	}
	if !n.rows.Next() {
		n.pos, n.done = n.pos+1, true
		if err := n.rows.Err(); err != nil {
			return false, n.err("next", err)
		}
		return false, nil
	}
	vals, err := scanRow(n.rows, len(n.cols))
	if err != nil {
		return false, n.err("next", err)
	}
	n.pos++
	n.current = vals
	return true, nil
}

// Previous moves to the previous row. Scrollable only.
func (n *Navigator) Previous() (bool, error) {
	if err := n.scrollCheck("previous"); err != nil {
		return false, err
	}
	return n.moveTo(n.pos - 1), nil
}

// First moves to the first row. Scrollable only.
func (n *Navigator) First() (bool, error) {
	if err := n.scrollCheck("first"); err != nil {
		return false, err
	}
	return n.moveTo(1), nil
}

// Last moves to the last row. Scrollable only.
func (n *Navigator) Last() (bool, error) {
	if err := n.scrollCheck("last"); err != nil {
		return false, err
	}
	return n.moveTo(len(n.data)), nil
}

// Absolute moves to the row number idx. Negative idx counts from the end, -1 is the last row.
// Scrollable only.
func (n *Navigator) Absolute(idx int) (bool, error) {
	if err := n.scrollCheck("absolute"); err != nil {
		return false, err
	}
	if idx < 0 {
		idx = len(n.data) + 1 + idx
		if idx < 0 {
			idx = 0
		}
	}
	return n.moveTo(idx), nil
}

// Relative moves by delta rows from the current position. Scrollable only.
func (n *Navigator) Relative(delta int) (bool, error) {
	if err := n.scrollCheck("relative"); err != nil {
		return false, err
	}
	return n.moveTo(n.pos + delta), nil
}

// BeforeFirst moves before the first row. Scrollable only.
func (n *Navigator) BeforeFirst() error {
	if err := n.scrollCheck("before first"); err != nil {
		return err
	}
	n.moveTo(0)
	return nil
}

// AfterLast moves after the last row. Scrollable only.
func (n *Navigator) AfterLast() error {
	if err := n.scrollCheck("after last"); err != nil {
		return err
	}
	n.moveTo(len(n.data) + 1)
	return nil
}

// Current returns reference to the current row. The reference is valid until the navigator moves.
func (n *Navigator) Current() *Row {
	return &Row{nav: n, gen: n.gen}
}

// Close closes the cursor and the statement produced it, if any.
func (n *Navigator) Close() error {
	if n.closed {
		return n.err("close", ErrClosed)
	}
	n.closed = true
	n.gen++
	n.current = nil
	var err error
	if n.rows != nil && n.owner == nil {
		err = n.rows.Close()
	}
	if n.stmt != nil {
		if serr := n.stmt.Close(); serr != nil && err == nil {
			err = serr
		}
	}
	if err != nil {
		return n.err("close", err)
	}
	return nil
}

// moveTo sets position in buffered data, clamped to [0, len+1]
func (n *Navigator) moveTo(pos int) bool {
	n.gen++
	switch {
	case pos <= 0:
		n.pos, n.current = 0, nil
		return false
	case pos > len(n.data):
		n.pos, n.current = len(n.data)+1, nil
		return false
	}
	n.pos, n.current = pos, n.data[pos-1]
	return true
}

func (n *Navigator) scrollCheck(op string) error {
	if n.closed {
		return n.err(op, ErrClosed)
	}
	if !n.scrollable {
		return n.err(op, ErrForwardOnly)
	}
	return nil
}

func (n *Navigator) err(op string, err error) error {
	return &Error{Kind: KindExecution, Op: "cursor " + op, Err: err}
}
