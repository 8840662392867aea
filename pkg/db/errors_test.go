package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	tbl := []struct {
		name string
		err  *Error
		want string
	}{
		{"config", &Error{Kind: KindConfig, Op: "get profile", Name: "pg", Err: errors.New("not found")},
			"get profile pg: not found"},
		{"connection", &Error{Kind: KindConnection, Op: "execute query", Err: ErrClosed}, "execute query: connection closed"},
		{"execution", &Error{Kind: KindExecution, Op: "execute update", SQL: "DELETE FROM t", Err: errors.New("locked")},
			"execute update: locked [sql: DELETE FROM t]"},
		{"bind count", &Error{Kind: KindBind, Op: "bind", Want: 3, Got: 2},
			"bind: bind count mismatch, expected 3 values, got 2"},
		{"bind type", &Error{Kind: KindBind, Op: "bind", Name: "chan int", Got: 1},
			"bind: unhandled data type chan int at position 1"},
		{"metadata key count", &Error{Kind: KindMetadata, Op: "next key", Table: "foo", Want: 1, Got: 2},
			"next key for table foo: unexpected key count, expected 1, got 2"},
		{"metadata key type", &Error{Kind: KindMetadata, Op: "next key", Table: "foo", Want: 1, Got: 1, Name: "code is text, not integer"},
			"next key for table foo: key code is text, not integer"},
		{"validation count", &Error{Kind: KindValidation, Op: "validate fields", Table: "foo", Want: 4, Got: 3},
			"validate fields for table foo: field count mismatch, expected 4, got 3"},
		{"validation type", &Error{Kind: KindValidation, Op: "validate fields", Table: "foo", Name: "INTEGER", Got: 2,
			Err: errors.New("column id can't store string")},
			"validate fields for table foo: field 2 doesn't match column type INTEGER: column id can't store string"},
	}
	for _, tc := range tbl {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestIsKind(t *testing.T) {
	inner := &Error{Kind: KindValidation, Op: "validate fields", Table: "foo", Want: 1, Got: 2}
	outer := &Error{Kind: KindExecution, Op: "load", Err: fmt.Errorf("row 5: %w", inner)}

	assert.True(t, IsKind(outer, KindExecution))
	assert.True(t, IsKind(outer, KindValidation), "kind found in the chain")
	assert.False(t, IsKind(outer, KindBind))
	assert.True(t, IsKind(fmt.Errorf("wrapped: %w", inner), KindValidation))
	assert.False(t, IsKind(errors.New("plain"), KindValidation))
	assert.False(t, IsKind(nil, KindValidation))

	assert.True(t, IsDataError(outer))
	assert.False(t, IsDataError(closedErr("x")))
	assert.True(t, errors.Is(closedErr("x"), ErrClosed))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "config", KindConfig.String())
	assert.Equal(t, "validation", KindValidation.String())
	assert.Equal(t, "kind(42)", Kind(42).String())
}
