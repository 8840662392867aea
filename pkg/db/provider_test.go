package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupProvider(t *testing.T) {
	for _, name := range []string{"postgres", "mysql", "sqlite", "SQLite"} {
		p, err := LookupProvider(name)
		require.NoError(t, err, name)
		assert.NotNil(t, p.Dialect())
	}
	_, err := LookupProvider("db2")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindConfig))
}

type countingProvider struct {
	sqliteProvider
	opened int
}

func (p *countingProvider) Open(opts Options, password string) (*sql.DB, error) {
	p.opened++
	return p.sqliteProvider.Open(opts, password)
}

func TestRegisterProvider(t *testing.T) {
	p := &countingProvider{}
	RegisterProvider("sqlite-counting", p)
	defer func() {
		providers.Lock()
		delete(providers.m, "sqlite-counting")
		providers.Unlock()
	}()

	m, err := New(context.Background(), Options{Driver: "sqlite-counting", Database: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, 1, p.opened)
	assert.Equal(t, "sqlite", m.Dialect().Name())
}

func TestDialect_IsWarning(t *testing.T) {
	pg := postgresDialect{}
	assert.True(t, pg.IsWarning(&pq.Error{Code: "01000", Severity: "NOTICE"}))
	assert.True(t, pg.IsWarning(fmt.Errorf("wrapped: %w", &pq.Error{Code: "00000", Severity: "WARNING"})))
	assert.False(t, pg.IsWarning(&pq.Error{Code: "42P01", Severity: "ERROR"}))
	assert.False(t, pg.IsWarning(errors.New("01000")))

	my := mysqlDialect{}
	assert.True(t, my.IsWarning(&mysql.MySQLError{Number: 1265, SQLState: [5]byte{'0', '1', '0', '0', '0'}}))
	assert.False(t, my.IsWarning(&mysql.MySQLError{Number: 1146, SQLState: [5]byte{'4', '2', 'S', '0', '2'}}))
	assert.False(t, my.IsWarning(&pq.Error{Code: "01000"}))

	assert.False(t, sqliteDialect{}.IsWarning(errors.New("any")))
}

func TestDialect_QuoteIdent(t *testing.T) {
	assert.Equal(t, `"foo"`, postgresDialect{}.QuoteIdent("foo"))
	assert.Equal(t, `"fo""o"`, postgresDialect{}.QuoteIdent(`fo"o`))
	assert.Equal(t, "`fo``o`", mysqlDialect{}.QuoteIdent("fo`o"))
	assert.Equal(t, `"foo"`, sqliteDialect{}.QuoteIdent("foo"))
}

func TestDialect_BoolLiteral(t *testing.T) {
	assert.Equal(t, "TRUE", postgresDialect{}.BoolLiteral(true))
	assert.Equal(t, "FALSE", postgresDialect{}.BoolLiteral(false))
	assert.Equal(t, "1", mysqlDialect{}.BoolLiteral(true))
	assert.Equal(t, "0", mysqlDialect{}.BoolLiteral(false))
	assert.Equal(t, "1", sqliteDialect{}.BoolLiteral(true))
	assert.Equal(t, "0", sqliteDialect{}.BoolLiteral(false))
}

func TestDialect_Placeholders(t *testing.T) {
	tbl := []struct {
		d     Dialect
		style PlaceholderStyle
	}{
		{postgresDialect{}, Dollar},
		{mysqlDialect{}, QuestionMark},
		{sqliteDialect{}, QuestionMark},
	}
	for _, tc := range tbl {
		assert.Equal(t, tc.style, tc.d.Placeholders(), tc.d.Name())
		for _, fn := range []func(string, string) (string, []any){tc.d.ColumnsQuery, tc.d.KeysQuery, tc.d.FallbackKeysQuery} {
			query, args := fn("public", "foo")
			assert.Equal(t, len(args), CountPlaceholders(query, tc.style), "%s: %s", tc.d.Name(), query)
		}
	}
}
