package db

import (
	"errors"
	"fmt"
)

// RowFunc converts a single row into a value. Must not keep the row after return.
type RowFunc[T any] func(row *Row) (T, error)

// GroupFuncs define conversion of a run of rows sharing the same key into a single value.
// Key and Row must be pure functions of the row, they are called once per row but callers
// should not depend on that.
type GroupFuncs[K comparable, V, T any] struct {
	Key   RowFunc[K]                       // grouping key of the row
	Row   RowFunc[V]                       // per-row value collected into the group
	Group func(key K, rows []V) (T, error) // final value made from all rows of the group
}

// Current applies fn to the navigator's current row. Not memoized, each call runs fn again.
func Current[T any](nav *Navigator, fn RowFunc[T]) (T, error) {
	return interpret(fn, nav.Current())
}

// CopyValues is a RowFunc returning copied-out values of the row
func CopyValues(row *Row) ([]any, error) { return row.Values() }

func interpret[T any](fn RowFunc[T], row *Row) (res T, err error) {
	if res, err = fn(row); err != nil {
		return res, interpretErr(err)
	}
	return res, nil
}

func interpretErr(err error) error {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindInterpret {
		return err
	}
	return &Error{Kind: KindInterpret, Op: "interpret row", Err: err}
}

// RowIterator is a forward-only single pass iterator over the navigator. It keeps one row of
// lookahead, so HasNext is answered without consuming the reported row.
type RowIterator[T any] struct {
	nav  *Navigator
	fn   RowFunc[T]
	next T
	done bool
	err  error
}

// NewRowIterator makes iterator applying fn to each row and primes it with the first row.
// A failure while priming is returned by the first Next call.
func NewRowIterator[T any](nav *Navigator, fn RowFunc[T]) *RowIterator[T] {
	res := &RowIterator[T]{nav: nav, fn: fn}
	res.advance()
	return res
}

// NewRawIterator makes iterator returning copies of row values.
func NewRawIterator(nav *Navigator) *RowIterator[[]any] {
	return NewRowIterator[[]any](nav, CopyValues)
}

// HasNext returns true if Next has a value (or an error) to return
func (it *RowIterator[T]) HasNext() bool { return !it.done || it.err != nil }

// Next returns buffered value and reads the following row into the buffer.
func (it *RowIterator[T]) Next() (res T, err error) {
	if it.err != nil {
		err, it.err = it.err, nil
		return res, err
	}
	if it.done {
		return res, &Error{Kind: KindExecution, Op: "iterate", Err: ErrNoRow}
	}
	res = it.next
	it.advance()
	return res, nil
}

// All reads remaining values
func (it *RowIterator[T]) All() ([]T, error) {
	var res []T
	for it.HasNext() {
		v, err := it.Next()
		if err != nil {
			return res, err
		}
		res = append(res, v)
	}
	return res, nil
}

// Close closes underlying navigator. Safe to call more than once.
func (it *RowIterator[T]) Close() error {
	it.done = true
	if it.nav == nil {
		return nil
	}
	nav := it.nav
	it.nav = nil
	return nav.Close()
}

func (it *RowIterator[T]) advance() {
	var zero T
	it.next = zero
	if it.nav == nil {
		it.done = true
		return
	}
	ok, err := it.nav.Next()
	if err != nil {
		it.done, it.err = true, err
		return
	}
	if !ok {
		it.done = true
		return
	}
	if it.next, err = interpret(it.fn, it.nav.Current()); err != nil {
		it.done, it.err = true, err
	}
}

// GroupIterator collapses consecutive rows with the same key into one value. The navigator must
// be ordered by the grouping key, this is not checked; unordered input produces split groups.
type GroupIterator[K comparable, V, T any] struct {
	nav *Navigator
	fns GroupFuncs[K, V, T]

	primedKey K
	primedRow V
	done      bool
	err       error // sticky, iterator can't be used after a failure
	reported  bool  // err was returned by Next at least once
}

// NewGroupIterator makes grouping iterator and primes it with the first row.
func NewGroupIterator[K comparable, V, T any](nav *Navigator, fns GroupFuncs[K, V, T]) *GroupIterator[K, V, T] {
	res := &GroupIterator[K, V, T]{nav: nav, fns: fns}
	ok, err := res.read()
	if err != nil {
		res.err = err
		return res
	}
	res.done = !ok
	return res
}

// HasNext returns true if there is one more group, or a not yet reported failure, to return
func (it *GroupIterator[K, V, T]) HasNext() bool {
	if it.err != nil {
		return !it.reported
	}
	return !it.done
}

// Next collects rows with the primed key and returns the group value. The first row with a different
// key is primed for the next call.
func (it *GroupIterator[K, V, T]) Next() (res T, err error) {
	if it.err != nil {
		it.reported = true
		return res, it.err
	}
	if it.done {
		return res, &Error{Kind: KindExecution, Op: "iterate groups", Err: ErrNoRow}
	}

	key, rows := it.primedKey, []V{it.primedRow}
	for {
		ok, err := it.read()
		if err != nil {
			it.err, it.reported = err, true
			return res, err
		}
		if !ok {
			it.done = true
			break
		}
		if it.primedKey != key {
			break
		}
		rows = append(rows, it.primedRow)
	}

	if res, err = it.fns.Group(key, rows); err != nil {
		it.err, it.reported = interpretErr(fmt.Errorf("group %v: %w", key, err)), true
		return res, it.err
	}
	return res, nil
}

// All reads remaining groups
func (it *GroupIterator[K, V, T]) All() ([]T, error) {
	var res []T
	for it.HasNext() {
		v, err := it.Next()
		if err != nil {
			return res, err
		}
		res = append(res, v)
	}
	return res, nil
}

// Err returns the failure made iterator unusable, if any
func (it *GroupIterator[K, V, T]) Err() error { return it.err }

// Close closes underlying navigator. Safe to call more than once.
func (it *GroupIterator[K, V, T]) Close() error {
	it.done = true
	if it.nav == nil {
		return nil
	}
	nav := it.nav
	it.nav = nil
	return nav.Close()
}

// read moves to the next row and primes its key and value. Returns false if the cursor is exhausted.
func (it *GroupIterator[K, V, T]) read() (bool, error) {
	if it.nav == nil {
		return false, nil
	}
	ok, err := it.nav.Next()
	if err != nil || !ok {
		return false, err
	}
	row := it.nav.Current()
	if it.primedRow, err = interpret(it.fns.Row, row); err != nil {
		return false, err
	}
	if it.primedKey, err = interpret(it.fns.Key, row); err != nil {
		return false, err
	}
	return true, nil
}
