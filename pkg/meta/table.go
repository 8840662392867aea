package meta

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/umputun/rowload/pkg/db"
)

// ErrNoDefinitions returned when catalog has no columns for the table
var ErrNoDefinitions = errors.New("no table definitions found")

// Table caches metadata of a single table and issues incremental keys.
// Metadata is read once, on the first request. The key counter is synchronized with MAX(key) once and
// then advanced in memory only, so a single writer per table is assumed for the lifetime of the instance.
type Table struct {
	name      string
	m         *db.Manager
	stampCols []string

	metadataRead bool
	columns      []ColumnDef
	keys         []ColumnDef
	incremental  bool

	keySynced bool
	lastKey   int64
}

func newTable(m *db.Manager, name string, stampCols []string) *Table {
	return &Table{name: name, m: m, stampCols: stampCols}
}

// Name returns table name
func (t *Table) Name() string { return t.name }

// Columns returns copies of column definitions in ordinal order
func (t *Table) Columns(ctx context.Context) ([]ColumnDef, error) {
	if err := t.readMetadata(ctx); err != nil {
		return nil, err
	}
	return append([]ColumnDef(nil), t.columns...), nil
}

// PrimaryKeys returns copies of primary key column definitions in key order
func (t *Table) PrimaryKeys(ctx context.Context) ([]ColumnDef, error) {
	if err := t.readMetadata(ctx); err != nil {
		return nil, err
	}
	return append([]ColumnDef(nil), t.keys...), nil
}

// IsIncremental returns true if the table has a single integer primary key
func (t *Table) IsIncremental(ctx context.Context) (bool, error) {
	if err := t.readMetadata(ctx); err != nil {
		return false, err
	}
	return t.incremental, nil
}

// KeyName returns the name of incremental key column
func (t *Table) KeyName(ctx context.Context) (string, error) {
	if err := t.checkIncremental(ctx, "key name"); err != nil {
		return "", err
	}
	return t.keys[0].Name, nil
}

// SynchronizeKey reads MAX of the incremental key once and caches it as the last issued key.
// Empty table or negative max counts as 0. Following calls do nothing.
func (t *Table) SynchronizeKey(ctx context.Context) error {
	if err := t.checkIncremental(ctx, "synchronize key"); err != nil {
		return err
	}
	if t.keySynced {
		return nil
	}

	d := t.m.Dialect()
	query := fmt.Sprintf("SELECT MAX(%s) FROM %s", d.QuoteIdent(t.keys[0].Name), t.qualifiedName())
	nav, err := t.m.ExecuteQuery(ctx, query)
	if err != nil {
		return err
	}
	defer nav.Close() //nolint:errcheck // read-only cursor

	maxKey := int64(0)
	ok, err := nav.Next()
	if err != nil {
		return err
	}
	if ok {
		if maxKey, err = nav.Current().Int64(0); err != nil {
			return err
		}
	}
	if maxKey < 0 {
		maxKey = 0
	}
	t.lastKey, t.keySynced = maxKey, true
	log.Printf("[DEBUG] key %s.%s synchronized, last key %d", t.name, t.keys[0].Name, maxKey)
	return nil
}

// NextKey returns the next incremental key, synchronizing the counter on the first call.
func (t *Table) NextKey(ctx context.Context) (int64, error) {
	if err := t.SynchronizeKey(ctx); err != nil {
		return 0, err
	}
	t.lastKey++
	return t.lastKey, nil
}

// LastKey returns the last issued (or synchronized) key, 0 if the counter wasn't synchronized
func (t *Table) LastKey() int64 { return t.lastKey }

// ValidateFields checks that values match table columns by count and type. With autoStamp, stamp
// columns are expected to be appended by the writer and excluded from the check.
// Returns error of db.KindValidation on mismatch.
func (t *Table) ValidateFields(ctx context.Context, values []any, autoStamp bool) error {
	if err := t.readMetadata(ctx); err != nil {
		return err
	}
	cols := t.columns
	if autoStamp {
		cols = t.unstampedColumns()
	}
	if len(values) != len(cols) {
		return &db.Error{Kind: db.KindValidation, Op: "validate fields", Table: t.name, Want: len(cols), Got: len(values)}
	}
	for i, c := range cols {
		if c.Accepts(values[i]) || (values[i] == nil && t.isKey(c.Name)) {
			continue
		}
		return &db.Error{Kind: db.KindValidation, Op: "validate fields", Table: t.name, Name: c.TypeName, Got: i + 1,
			Err: fmt.Errorf("column %s can't store %T", c.Name, values[i])}
	}
	return nil
}

// readMetadata fetches columns and primary keys once
func (t *Table) readMetadata(ctx context.Context) error {
	if t.metadataRead {
		return nil
	}
	schema, name := t.splitName()
	d := t.m.Dialect()

	query, args := d.ColumnsQuery(schema, name)
	cols, err := catalogQuery(ctx, t.m, query, args, readColumn)
	if err != nil {
		return &db.Error{Kind: db.KindMetadata, Op: "read columns", Table: t.name, Err: err}
	}
	if len(cols) == 0 {
		return &db.Error{Kind: db.KindMetadata, Op: "read columns", Table: t.name, Err: ErrNoDefinitions}
	}

	query, args = d.KeysQuery(schema, name)
	keyNames, err := catalogQuery(ctx, t.m, query, args, readName)
	if err != nil {
		return &db.Error{Kind: db.KindMetadata, Op: "read primary keys", Table: t.name, Err: err}
	}
	if len(keyNames) == 0 {
		query, args = d.FallbackKeysQuery(schema, name)
		if keyNames, err = catalogQuery(ctx, t.m, query, args, readName); err != nil {
			return &db.Error{Kind: db.KindMetadata, Op: "read fallback primary keys", Table: t.name, Err: err}
		}
		if len(keyNames) > 0 {
			log.Printf("[DEBUG] primary key of %s found by fallback lookup: %v", t.name, keyNames)
		}
	}

	keys := make([]ColumnDef, 0, len(keyNames))
	for _, kn := range keyNames {
		for _, c := range cols {
			if strings.EqualFold(c.Name, kn) {
				keys = append(keys, c)
				break
			}
		}
	}

	t.columns, t.keys = cols, keys
	t.incremental = len(keys) == 1 && keys[0].Type == TypeInteger
	t.metadataRead = true
	log.Printf("[DEBUG] metadata of %s: %d columns, keys %v, incremental %v", t.name, len(cols), keyNames, t.incremental)
	return nil
}

func (t *Table) checkIncremental(ctx context.Context, op string) error {
	if err := t.readMetadata(ctx); err != nil {
		return err
	}
	if t.incremental {
		return nil
	}
	e := &db.Error{Kind: db.KindMetadata, Op: op, Table: t.name, Want: 1, Got: len(t.keys)}
	if len(t.keys) == 1 {
		e.Name = t.keys[0].Name + " is " + t.keys[0].Type.String() + ", not integer"
	}
	return e
}

func (t *Table) unstampedColumns() []ColumnDef {
	res := make([]ColumnDef, 0, len(t.columns))
	for _, c := range t.columns {
		stamp := false
		for _, s := range t.stampCols {
			if strings.EqualFold(c.Name, s) {
				stamp = true
				break
			}
		}
		if !stamp {
			res = append(res, c)
		}
	}
	return res
}

func (t *Table) isKey(name string) bool {
	for _, k := range t.keys {
		if strings.EqualFold(k.Name, name) {
			return true
		}
	}
	return false
}

// splitName returns schema and table, schema from the name takes precedence over manager's schema
func (t *Table) splitName() (schema, name string) {
	if i := strings.LastIndexByte(t.name, '.'); i > 0 {
		return t.name[:i], t.name[i+1:]
	}
	return t.m.Options().Schema, t.name
}

func (t *Table) qualifiedName() string {
	d := t.m.Dialect()
	if i := strings.LastIndexByte(t.name, '.'); i > 0 {
		return d.QuoteIdent(t.name[:i]) + "." + d.QuoteIdent(t.name[i+1:])
	}
	return d.QuoteIdent(t.name)
}

func catalogQuery[T any](ctx context.Context, m *db.Manager, query string, args []any, fn db.RowFunc[T]) ([]T, error) {
	stmt, err := m.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	defer stmt.Close() //nolint:errcheck // catalog statement

	nav, err := stmt.ExecuteQuery(ctx, args...)
	if err != nil {
		return nil, err
	}
	it := db.NewRowIterator(nav, fn)
	defer it.Close() //nolint:errcheck // read-only cursor
	return it.All()
}

func readName(row *db.Row) (string, error) { return row.String(0) }

// readColumn converts catalog row (name, type_name, size, decimal_size, nullable, table, schema, catalog)
func readColumn(row *db.Row) (ColumnDef, error) {
	vals, err := row.Values()
	if err != nil {
		return ColumnDef{}, err
	}
	if len(vals) < 8 {
		return ColumnDef{}, fmt.Errorf("catalog row has %d columns, expected 8", len(vals))
	}
	res := ColumnDef{
		Name:     db.AsString(vals[0]),
		TypeName: db.AsString(vals[1]),
		Table:    db.AsString(vals[5]),
		Schema:   db.AsString(vals[6]),
		Catalog:  db.AsString(vals[7]),
	}
	res.Type = TypeOf(res.TypeName)
	size, err := db.AsInt64(vals[2])
	if err != nil {
		return ColumnDef{}, fmt.Errorf("bad size of %s: %w", res.Name, err)
	}
	decimal, err := db.AsInt64(vals[3])
	if err != nil {
		return ColumnDef{}, fmt.Errorf("bad decimal size of %s: %w", res.Name, err)
	}
	res.Size, res.DecimalSize = int(size), int(decimal)
	if res.Size == 0 {
		res.Size, res.DecimalSize = parseTypeSize(res.TypeName)
	}
	if res.Nullable, err = row.Bool(4); err != nil {
		return ColumnDef{}, fmt.Errorf("bad nullable flag of %s: %w", res.Name, err)
	}
	return res, nil
}
