package secrets

import (
	"context"
	"fmt"
	"log"

	"github.com/umputun/rowload/pkg/db"
)

// TableProvider keeps sealed secrets in the rowload_secrets table of a database managed by db.Manager.
// Supported drivers: sqlite, postgres, mysql.
type TableProvider struct {
	m   *db.Manager
	key []byte
}

// NewTableProvider makes the secrets table if missing
func NewTableProvider(ctx context.Context, m *db.Manager, key []byte) (*TableProvider, error) {
	if _, err := m.ExecuteUpdate(ctx, `CREATE TABLE IF NOT EXISTS rowload_secrets (skey VARCHAR(255) PRIMARY KEY, sval TEXT)`); err != nil {
		return nil, fmt.Errorf("can't make secrets table: %w", err)
	}
	if err := m.Commit(); err != nil {
		return nil, err
	}
	log.Printf("[INFO] secrets table provider on %s", m.Dialect().Name())
	return &TableProvider{m: m, key: key}, nil
}

// Get reads and opens the secret
func (p *TableProvider) Get(key string) (string, error) {
	ctx := context.Background()
	stmt, err := p.m.Prepare(ctx, p.sql("SELECT sval FROM rowload_secrets WHERE skey = ?"))
	if err != nil {
		return "", err
	}
	defer stmt.Close() //nolint:errcheck // read-only statement

	nav, err := stmt.ExecuteQuery(ctx, key)
	if err != nil {
		return "", err
	}
	defer nav.Close() //nolint:errcheck // read-only cursor
	ok, err := nav.Next()
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	sealed, err := nav.Current().String(0)
	if err != nil {
		return "", err
	}
	res, err := Open(sealed, p.key)
	if err != nil {
		return "", fmt.Errorf("can't get secret %s: %w", key, err)
	}
	return res, nil
}

// Set seals and stores the secret, replacing existing one
func (p *TableProvider) Set(key, value string) error {
	sealed, err := Seal(value, p.key)
	if err != nil {
		return fmt.Errorf("can't set secret %s: %w", key, err)
	}

	var upsert string
	switch p.m.Dialect().Name() {
	case "sqlite":
		upsert = "INSERT OR REPLACE INTO rowload_secrets (skey, sval) VALUES (?, ?)"
	case "postgres":
		upsert = "INSERT INTO rowload_secrets (skey, sval) VALUES ($1, $2) ON CONFLICT (skey) DO UPDATE SET sval = EXCLUDED.sval"
	case "mysql":
		upsert = "REPLACE INTO rowload_secrets (skey, sval) VALUES (?, ?)"
	default:
		return fmt.Errorf("unsupported database type %s", p.m.Dialect().Name())
	}

	ctx := context.Background()
	stmt, err := p.m.Prepare(ctx, upsert)
	if err != nil {
		return err
	}
	defer stmt.Close() //nolint:errcheck // statement is not reused
	if _, err = stmt.ExecuteUpdate(ctx, key, sealed); err != nil {
		return fmt.Errorf("can't store secret %s: %w", key, err)
	}
	return p.m.Commit()
}

// sql rewrites ? placeholders to $n for postgres
func (p *TableProvider) sql(query string) string {
	if p.m.Dialect().Placeholders() != db.Dollar {
		return query
	}
	res, n := make([]byte, 0, len(query)+4), 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			res = append(res, fmt.Sprintf("$%d", n)...)
			continue
		}
		res = append(res, query[i])
	}
	return string(res)
}
