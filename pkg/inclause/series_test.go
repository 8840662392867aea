package inclause

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/rowload/pkg/db"
)

func TestQuery(t *testing.T) {
	ctx := context.Background()
	m := prepDB(t, 2)

	s, err := Query(m, "SELECT id, name FROM foo WHERE id > 0 ORDER BY id", "id", []any{5, 1, 3, 7, 100})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, 3, s.Len())

	var ids []int64
	var prev *db.Navigator
	for s.HasNext() {
		nav, err := s.ExecuteNextQuery(ctx)
		require.NoError(t, err)
		if prev != nil {
			_, err = prev.Next()
			require.ErrorIs(t, err, db.ErrClosed, "previous navigator closed")
		}
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
		prev = nav
	}
	assert.Equal(t, []int64{1, 5, 3, 7}, ids)

	_, err = s.ExecuteNextQuery(ctx)
	require.EqualError(t, err, "no more queries in series of 3")
	require.NoError(t, s.Close())
}

func TestQuery_Booleans(t *testing.T) {
	ctx := context.Background()
	m := prepDB(t, 0)
	_, err := m.ExecuteUpdate(ctx, "CREATE TABLE flags (id INTEGER PRIMARY KEY, on_off BOOLEAN)")
	require.NoError(t, err)
	_, err = m.ExecuteUpdate(ctx, "INSERT INTO flags (id, on_off) VALUES (1, 1), (2, 0), (3, 1)")
	require.NoError(t, err)

	s, err := Query(m, "SELECT id FROM flags ORDER BY id", "on_off", []any{true})
	require.NoError(t, err)
	defer s.Close()
	nav, err := s.ExecuteNextQuery(ctx)
	require.NoError(t, err)
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
	assert.Equal(t, []int64{1, 3}, ids)
}

func TestQuery_Errors(t *testing.T) {
	ctx := context.Background()
	m := prepDB(t, 0)

	_, err := Query(m, "SELECT id FROM foo", "id", nil)
	require.EqualError(t, err, "empty value list")

	s, err := Query(m, "SELECT id FROM nope", "id", []any{1})
	require.NoError(t, err)
	_, err = s.ExecuteNextQuery(ctx)
	require.Error(t, err)
	assert.True(t, db.IsKind(err, db.KindExecution))
	assert.False(t, s.HasNext())
}

func TestQuerySeries_CloseEarly(t *testing.T) {
	ctx := context.Background()
	m := prepDB(t, 0)

	s := NewQuerySeries(m, []string{"SELECT id FROM foo WHERE id = 1", "SELECT id FROM foo WHERE id = 2"})
	nav, err := s.ExecuteNextQuery(ctx)
	require.NoError(t, err)
	require.NoError(t, nav.Close(), "navigator closed by caller")
	require.NoError(t, s.Close(), "already closed navigator ignored")
	assert.False(t, s.HasNext())

	// manager usable after the series
	n, err := m.ExecuteUpdate(ctx, "UPDATE foo SET name = 'x' WHERE id = 1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// prepDB makes sqlite database with foo table, ids 1..9
func prepDB(t *testing.T, maxIn int) *db.Manager {
	t.Helper()
	ctx := context.Background()
	m, err := db.New(ctx, db.Options{Driver: "sqlite", Database: filepath.Join(t.TempDir(), "in.db"),
		AutoCommit: true, MaxInClause: maxIn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	_, err = m.ExecuteUpdate(ctx, "CREATE TABLE foo (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	_, err = m.ExecuteUpdate(ctx, `INSERT INTO foo (id, name) VALUES (1, 'a'), (2, 'b'), (3, 'c'), (4, 'd'),
		(5, 'e'), (6, 'f'), (7, 'g'), (8, 'h'), (9, 'i')`)
	require.NoError(t, err)
	return m
}
