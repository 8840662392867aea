package db

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a category of failure reported by the access layer.
type Kind int

// error kinds
const (
	KindConfig     Kind = iota + 1 // bad or missing parameter
	KindConnection                 // failed connect or use of a closed connection
	KindExecution                  // driver error while running sql
	KindBind                       // bind count mismatch or unsupported value type
	KindInterpret                  // row to object conversion failure
	KindMetadata                   // catalog lookup or key shape problem
	KindValidation                 // input row doesn't match table metadata
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindConnection:
		return "connection"
	case KindExecution:
		return "execution"
	case KindBind:
		return "bind"
	case KindInterpret:
		return "interpret"
	case KindMetadata:
		return "metadata"
	case KindValidation:
		return "validation"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// sentinel errors, usually wrapped into *Error
var (
	ErrClosed      = errors.New("connection closed")
	ErrForwardOnly = errors.New("cursor is forward-only")
	ErrStaleRow    = errors.New("row reference is no longer current")
	ErrNoRow       = errors.New("cursor is not positioned on a row")
)

// Error is the structured error returned by the access layer. Message is rendered from the typed
// fields, the underlying driver error is kept as the wrapped cause.
type Error struct {
	Kind  Kind
	Op    string // action being attempted, i.e. "execute query"
	SQL   string // failing sql text, if any
	Table string // table name for metadata and validation errors
	Name  string // column, parameter or type name
	Want  int    // expected count, position or size
	Got   int    // actual count, position or size
	Err   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	switch e.Kind {
	case KindBind:
		switch {
		case e.Name != "":
			fmt.Fprintf(&b, ": unhandled data type %s at position %d", e.Name, e.Got)
		case e.Err == nil && e.Want != e.Got:
			fmt.Fprintf(&b, ": bind count mismatch, expected %d values, got %d", e.Want, e.Got)
		}
	case KindMetadata:
		if e.Table != "" {
			fmt.Fprintf(&b, " for table %s", e.Table)
		}
		if e.Want != e.Got {
			fmt.Fprintf(&b, ": unexpected key count, expected %d, got %d", e.Want, e.Got)
		}
		if e.Name != "" {
			fmt.Fprintf(&b, ": key %s", e.Name)
		}
	case KindValidation:
		fmt.Fprintf(&b, " for table %s", e.Table)
		if e.Name != "" {
			fmt.Fprintf(&b, ": field %d doesn't match column type %s", e.Got, e.Name)
		} else if e.Want != e.Got {
			fmt.Fprintf(&b, ": field count mismatch, expected %d, got %d", e.Want, e.Got)
		}
	default:
		if e.Name != "" {
			fmt.Fprintf(&b, " %s", e.Name)
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.SQL != "" {
		fmt.Fprintf(&b, " [sql: %s]", e.SQL)
	}
	return b.String()
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether any error in err's chain is *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// IsDataError reports whether err is caused by bad input data rather than by a programming
// or environment problem.
func IsDataError(err error) bool {
	return IsKind(err, KindValidation)
}

func closedErr(op string) error {
	return &Error{Kind: KindConnection, Op: op, Err: ErrClosed}
}

func execErr(op, query string, err error) error {
	return &Error{Kind: KindExecution, Op: op, SQL: query, Err: err}
}
