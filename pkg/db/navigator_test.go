package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNavigator_ForwardOnly(t *testing.T) {
	ctx := context.Background()
	m := prepManager(t, Options{})

	nav, err := m.ExecuteQuery(ctx, "SELECT id, grp FROM foo ORDER BY id")
	require.NoError(t, err)
	assert.False(t, nav.Scrollable())
	assert.Equal(t, []string{"id", "grp"}, nav.Columns())
	assert.Equal(t, 0, nav.Position())

	var ids []int64
	for {
		ok, err := nav.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		id, err := nav.Current().Int64(0)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6}, ids)
	assert.Equal(t, 7, nav.Position(), "after last")

	ok, err := nav.Next()
	require.NoError(t, err)
	assert.False(t, ok, "exhausted cursor stays exhausted")
	assert.Equal(t, 7, nav.Position())

	_, err = nav.Previous()
	require.ErrorIs(t, err, ErrForwardOnly)
	_, err = nav.First()
	require.ErrorIs(t, err, ErrForwardOnly)
	_, err = nav.Last()
	require.ErrorIs(t, err, ErrForwardOnly)
	_, err = nav.Absolute(1)
	require.ErrorIs(t, err, ErrForwardOnly)
	_, err = nav.Relative(-1)
	require.ErrorIs(t, err, ErrForwardOnly)
	require.ErrorIs(t, nav.BeforeFirst(), ErrForwardOnly)
	require.ErrorIs(t, nav.AfterLast(), ErrForwardOnly)

	require.NoError(t, nav.Close())
	require.ErrorIs(t, nav.Close(), ErrClosed)
	_, err = nav.Next()
	require.ErrorIs(t, err, ErrClosed)
}

func TestNavigator_Scrollable(t *testing.T) {
	ctx := context.Background()
	m := prepManager(t, Options{Scrollable: true})

	nav, err := m.ExecuteQuery(ctx, "SELECT id FROM foo ORDER BY id")
	require.NoError(t, err)
	defer nav.Close()
	require.True(t, nav.Scrollable())

	id := func() int64 {
		v, err := nav.Current().Int64(0)
		require.NoError(t, err)
		return v
	}

	ok, err := nav.Last()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(6), id())
	assert.Equal(t, 6, nav.Position())

	ok, err = nav.Previous()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(5), id())

	ok, err = nav.First()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), id())

	ok, err = nav.Previous()
	require.NoError(t, err)
	assert.False(t, ok, "before first")
	assert.Equal(t, 0, nav.Position())

	ok, err = nav.Absolute(3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), id())

	ok, err = nav.Absolute(-2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(5), id())

	ok, err = nav.Relative(-3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), id())

	ok, err = nav.Absolute(10)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 7, nav.Position(), "after last")

	ok, err = nav.Previous()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(6), id())

	require.NoError(t, nav.BeforeFirst())
	ok, err = nav.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), id())

	require.NoError(t, nav.AfterLast())
	ok, err = nav.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = nav.Current().Values()
	require.ErrorIs(t, err, ErrNoRow)
}

func TestNavigator_EmptyResult(t *testing.T) {
	ctx := context.Background()
	for _, scrollable := range []bool{false, true} {
		m := prepManager(t, Options{Scrollable: scrollable})
		nav, err := m.ExecuteQuery(ctx, "SELECT id FROM foo WHERE id > 100")
		require.NoError(t, err)
		ok, err := nav.Next()
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, []string{"id"}, nav.Columns())
		require.NoError(t, nav.Close())
	}
}

func TestRow_Stale(t *testing.T) {
	ctx := context.Background()
	for _, scrollable := range []bool{false, true} {
		m := prepManager(t, Options{Scrollable: scrollable})
		nav, err := m.ExecuteQuery(ctx, "SELECT id FROM foo ORDER BY id")
		require.NoError(t, err)

		_, err = nav.Current().Value(0)
		require.ErrorIs(t, err, ErrNoRow, "not positioned yet")

		ok, err := nav.Next()
		require.NoError(t, err)
		require.True(t, ok)
		row := nav.Current()
		vals, err := row.Values()
		require.NoError(t, err)
		assert.Equal(t, []any{int64(1)}, vals)

		ok, err = nav.Next()
		require.NoError(t, err)
		require.True(t, ok)
		_, err = row.Values()
		require.ErrorIs(t, err, ErrStaleRow, "row reference taken before move")
		assert.Equal(t, []any{int64(1)}, vals, "copied values survive the move")

		row = nav.Current()
		require.NoError(t, nav.Close())
		_, err = row.Int64(0)
		require.ErrorIs(t, err, ErrStaleRow, "row reference after close")
	}
}

func TestRow_Accessors(t *testing.T) {
	ctx := context.Background()
	m := prepManager(t, Options{})

	nav, err := m.ExecuteQuery(ctx, `SELECT id, grp, val, note, '2024-01-02 03:04:05', X'0102', 1, 'true'
		FROM foo WHERE id = 2`)
	require.NoError(t, err)
	defer nav.Close()
	ok, err := nav.Next()
	require.NoError(t, err)
	require.True(t, ok)
	row := nav.Current()

	assert.Len(t, row.Columns(), 8)

	id, err := row.Int64(0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id)

	s, err := row.String(1)
	require.NoError(t, err)
	assert.Equal(t, "a", s)

	f, err := row.Float64(2)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, f, 0.0001)

	null, err := row.IsNull(3)
	require.NoError(t, err)
	assert.True(t, null)
	s, err = row.String(3)
	require.NoError(t, err)
	assert.Empty(t, s)

	tm, err := row.Time(4)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), tm)

	b, err := row.Bytes(5)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, b)

	bl, err := row.Bool(6)
	require.NoError(t, err)
	assert.True(t, bl)
	bl, err = row.Bool(7)
	require.NoError(t, err)
	assert.True(t, bl)

	v, err := row.ValueOf("GRP")
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	_, err = row.ValueOf("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope: no such column")

	_, err = row.Value(8)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, err = row.Int64(1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "convert column grp")

	_, err = row.Time(1)
	require.Error(t, err)
}

func TestAsInt64(t *testing.T) {
	tbl := []struct {
		in      any
		want    int64
		wantErr bool
	}{
		{nil, 0, false},
		{int64(5), 5, false},
		{7, 7, false},
		{int32(8), 8, false},
		{float64(3.9), 3, false},
		{true, 1, false},
		{[]byte(" 12 "), 12, false},
		{"42", 42, false},
		{"x", 0, true},
		{struct{}{}, 0, true},
	}
	for _, tc := range tbl {
		res, err := AsInt64(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "%v", tc.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.want, res, "%v", tc.in)
	}
}
