package db

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Row is a read-only view of the navigator's current row. It is bound to the position it was
// taken at; once the navigator moves, every accessor returns ErrStaleRow. Copy values out with
// Values if they have to outlive the position.
type Row struct {
	nav *Navigator
	gen int
}

// Columns returns column names of the row
func (r *Row) Columns() []string { return r.nav.Columns() }

// Values returns a copy of all column values
func (r *Row) Values() ([]any, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return append([]any(nil), r.nav.current...), nil
}

// Value returns raw driver value of the column idx (0-based)
func (r *Row) Value(idx int) (any, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(r.nav.current) {
		return nil, &Error{Kind: KindExecution, Op: "read column", Want: len(r.nav.current), Got: idx,
			Err: fmt.Errorf("column index %d out of range [0:%d]", idx, len(r.nav.current))}
	}
	return r.nav.current[idx], nil
}

// Index returns 0-based index of the named column, case-insensitive
func (r *Row) Index(name string) (int, error) {
	for i, c := range r.nav.cols {
		if strings.EqualFold(c, name) {
			return i, nil
		}
	}
	return -1, &Error{Kind: KindExecution, Op: "read column", Name: name, Err: fmt.Errorf("no such column")}
}

// ValueOf returns raw driver value of the named column
func (r *Row) ValueOf(name string) (any, error) {
	idx, err := r.Index(name)
	if err != nil {
		return nil, err
	}
	return r.Value(idx)
}

// IsNull returns true if column idx is NULL
func (r *Row) IsNull(idx int) (bool, error) {
	v, err := r.Value(idx)
	if err != nil {
		return false, err
	}
	return v == nil, nil
}

// String returns column idx as string, NULL is an empty string
func (r *Row) String(idx int) (string, error) {
	v, err := r.Value(idx)
	if err != nil {
		return "", err
	}
	return AsString(v), nil
}

// Int64 returns column idx as int64, NULL is 0
func (r *Row) Int64(idx int) (int64, error) {
	v, err := r.Value(idx)
	if err != nil {
		return 0, err
	}
	res, err := AsInt64(v)
	if err != nil {
		return 0, r.convErr(idx, err)
	}
	return res, nil
}

// Float64 returns column idx as float64, NULL is 0
func (r *Row) Float64(idx int) (float64, error) {
	v, err := r.Value(idx)
	if err != nil {
		return 0, err
	}
	switch val := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case []byte:
		v = string(val)
	}
	res, err := strconv.ParseFloat(fmt.Sprint(v), 64)
	if err != nil {
		return 0, r.convErr(idx, err)
	}
	return res, nil
}

// Bool returns column idx as bool, NULL is false. Numbers are true if not zero.
func (r *Row) Bool(idx int) (bool, error) {
	v, err := r.Value(idx)
	if err != nil {
		return false, err
	}
	switch val := v.(type) {
	case nil:
		return false, nil
	case bool:
		return val, nil
	case int64:
		return val != 0, nil
	case []byte:
		v = string(val)
	}
	res, err := strconv.ParseBool(fmt.Sprint(v))
	if err != nil {
		return false, r.convErr(idx, err)
	}
	return res, nil
}

// Time returns column idx as time, NULL is zero time. Text values parsed as RFC3339 or
// "2006-01-02 15:04:05".
func (r *Row) Time(idx int) (time.Time, error) {
	v, err := r.Value(idx)
	if err != nil {
		return time.Time{}, err
	}
	switch val := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return val, nil
	case []byte:
		v = string(val)
	}
	s := fmt.Sprint(v)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02"} {
		if t, perr := time.Parse(layout, s); perr == nil {
			return t, nil
		}
	}
	return time.Time{}, r.convErr(idx, fmt.Errorf("can't parse time %q", s))
}

// Bytes returns column idx as a copy of raw bytes, NULL is nil
func (r *Row) Bytes(idx int) ([]byte, error) {
	v, err := r.Value(idx)
	if err != nil {
		return nil, err
	}
	switch val := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return append([]byte(nil), val...), nil
	case string:
		return []byte(val), nil
	}
	return []byte(fmt.Sprint(v)), nil
}

func (r *Row) check() error {
	if r.gen != r.nav.gen || r.nav.closed {
		return &Error{Kind: KindExecution, Op: "read row", Err: ErrStaleRow}
	}
	if r.nav.current == nil {
		return &Error{Kind: KindExecution, Op: "read row", Err: ErrNoRow}
	}
	return nil
}

func (r *Row) convErr(idx int, err error) error {
	name := ""
	if idx >= 0 && idx < len(r.nav.cols) {
		name = r.nav.cols[idx]
	}
	return &Error{Kind: KindExecution, Op: "convert column", Name: name, Err: err}
}

// AsString formats driver value as string, NULL is an empty string
func AsString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	}
	return fmt.Sprint(v)
}

// AsInt64 converts driver value to int64, NULL is 0
func AsInt64(v any) (int64, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		return int64(val), nil //nolint:gosec // catalog sizes and keys fit int64
	case float64:
		return int64(val), nil
	case bool:
		if val {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(val)), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	}
	return 0, fmt.Errorf("can't convert %T to int64", v)
}
