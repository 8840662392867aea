package meta

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/rowload/pkg/db"
)

func TestRegistry_Pooling(t *testing.T) {
	ctx := context.Background()
	m := prepDB(t)
	reg := NewRegistry()

	t1, err := reg.Table(ctx, m, "FOO")
	require.NoError(t, err)
	t2, err := reg.Table(ctx, m, "foo")
	require.NoError(t, err)
	assert.Same(t, t1, t2, "names are case-insensitive")

	e, err := reg.Table(ctx, m, "EMPTY")
	require.NoError(t, err)
	assert.NotSame(t, t1, e)
	assert.Equal(t, []string{"EMPTY", "FOO"}, reg.Tables())

	other := prepDB(t)
	t3, err := reg.Table(ctx, other, "FOO")
	require.NoError(t, err)
	assert.NotSame(t, t1, t3, "different database, different table")
}

func TestRegistry_Reconnect(t *testing.T) {
	ctx := context.Background()
	m := prepDB(t)
	reg := NewRegistry()

	tbl, err := reg.Table(ctx, m, "FOO")
	require.NoError(t, err)
	k, err := tbl.NextKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(101), k)

	require.NoError(t, m.Close())
	tbl2, err := reg.Table(ctx, m, "FOO")
	require.NoError(t, err)
	assert.True(t, m.IsOpen(), "closed connection re-opened")
	assert.Same(t, tbl, tbl2)
	k, err = tbl2.NextKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(102), k, "counter survives reconnect")
}

func TestRegistry_Rebind(t *testing.T) {
	ctx := context.Background()
	fname := filepath.Join(t.TempDir(), "rebind.db")
	m1, err := db.New(ctx, db.Options{Driver: "sqlite", Database: fname, AutoCommit: true})
	require.NoError(t, err)
	_, err = m1.ExecuteUpdate(ctx, "CREATE TABLE BAR (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	reg := NewRegistry()
	tbl, err := reg.Table(ctx, m1, "BAR")
	require.NoError(t, err)
	_, err = tbl.Columns(ctx)
	require.NoError(t, err)
	require.NoError(t, m1.Close())

	m2, err := db.New(ctx, db.Options{Driver: "sqlite", Database: fname, AutoCommit: true})
	require.NoError(t, err)
	defer m2.Close()
	tbl2, err := reg.Table(ctx, m2, "BAR")
	require.NoError(t, err)
	assert.Same(t, tbl, tbl2, "same database identity")
	assert.False(t, m1.IsOpen(), "old manager left closed")

	k, err := tbl2.NextKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), k)
}

func TestRegistry_DefaultStampColumns(t *testing.T) {
	reg := &Registry{}
	m := prepDB(t)
	tbl, err := reg.Table(context.Background(), m, "FOO")
	require.NoError(t, err)
	assert.Equal(t, DefaultStampColumns, tbl.stampCols)
}
