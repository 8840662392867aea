package meta

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/umputun/rowload/pkg/db"
)

// DefaultStampColumns are audit columns appended by writers when auto-stamp is on
var DefaultStampColumns = []string{"created_at", "updated_at", "load_ts"}

// Registry pools Table instances by database identity and table name. Callers sharing a registry get
// the same Table for the same table, so the key counter has a single owner within the process.
// The registry must be passed explicitly to everything issuing keys for the same tables.
type Registry struct {
	StampColumns []string // audit columns excluded by ValidateFields with autoStamp, DefaultStampColumns if empty

	mu     sync.Mutex
	tables map[string]*Table
}

// NewRegistry makes an empty registry with default stamp columns
func NewRegistry() *Registry {
	return &Registry{StampColumns: DefaultStampColumns, tables: map[string]*Table{}}
}

// Table returns pooled table for the manager's database, making one on the first request.
// On reuse the table is re-bound to the passed manager and the connection is re-opened if closed.
func (r *Registry) Table(ctx context.Context, m *db.Manager, name string) (*Table, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tables == nil {
		r.tables = map[string]*Table{}
	}

	key := r.key(m, name)
	t, ok := r.tables[key]
	if !ok {
		stamps := r.StampColumns
		if len(stamps) == 0 {
			stamps = DefaultStampColumns
		}
		t = newTable(m, name, stamps)
		r.tables[key] = t
		log.Printf("[DEBUG] table %s registered for %s", name, m.Identity())
		return t, nil
	}

	if t.m != m && m.IsOpen() {
		t.m = m
	}
	if !t.m.IsOpen() {
		if err := t.m.Reconnect(ctx); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Tables returns sorted names of pooled tables
func (r *Registry) Tables() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]string, 0, len(r.tables))
	for _, t := range r.tables {
		res = append(res, t.name)
	}
	sort.Strings(res)
	return res
}

// Forget drops pooled table, the next request makes a fresh instance with a fresh key counter
func (r *Registry) Forget(m *db.Manager, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tables, r.key(m, name))
}

func (r *Registry) key(m *db.Manager, name string) string {
	return m.Identity() + "|" + strings.ToLower(name)
}
