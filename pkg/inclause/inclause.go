// Package inclause splits queries with long IN (...) value lists into a series of queries with bounded
// lists, and runs them one at a time.
package inclause

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/umputun/rowload/pkg/db"
)

// Placeholder marks the place of the value list in sql passed to CreateSQL
const Placeholder = "??"

var (
	orderByRe = regexp.MustCompile(`(?i)\border\s+by\b`)
	whereRe   = regexp.MustCompile(`(?i)\bwhere\b`)
)

// AddInClause adds "<column> IN ??" condition to sql, joined with AND if there is a WHERE clause
// already or with WHERE otherwise. The condition goes before the last ORDER BY, or to the end.
func AddInClause(sql, column string) string {
	cond := " WHERE " + column + " IN " + Placeholder
	if whereRe.MatchString(sql) {
		cond = " AND " + column + " IN " + Placeholder
	}
	locs := orderByRe.FindAllStringIndex(sql, -1)
	if len(locs) == 0 {
		return strings.TrimRight(sql, " ") + cond
	}
	pos := locs[len(locs)-1][0]
	return strings.TrimRight(sql[:pos], " ") + cond + " " + sql[pos:]
}

// Formatter renders value lists into sql, no more than Max values per statement.
type Formatter struct {
	Max     int        // max values in a single list, db.DefaultMaxInClause if not positive
	Dialect db.Dialect // renders booleans, 1 and 0 if nil
}

// CreateSQL returns one sql per chunk of values with Placeholder replaced by "(v1,v2,...)".
// Text and time values are quoted, numbers are not, booleans are rendered by the dialect.
func (f Formatter) CreateSQL(sql string, values []any) ([]string, error) {
	if !strings.Contains(sql, Placeholder) {
		return nil, fmt.Errorf("no %s placeholder in %q", Placeholder, sql)
	}
	if len(values) == 0 {
		return nil, errors.New("empty value list")
	}
	maxLen := f.Max
	if maxLen <= 0 {
		maxLen = db.DefaultMaxInClause
	}

	literals := make([]string, len(values))
	for i, v := range values {
		lit, err := f.literal(v)
		if err != nil {
			return nil, &db.Error{Kind: db.KindBind, Op: "format in clause", SQL: sql, Name: fmt.Sprintf("%T", v), Got: i + 1}
		}
		literals[i] = lit
	}

	res := make([]string, 0, int(math.Ceil(float64(len(values))/float64(maxLen))))
	for start := 0; start < len(literals); start += maxLen {
		end := min(start+maxLen, len(literals))
		list := "(" + strings.Join(literals[start:end], ",") + ")"
		res = append(res, strings.Replace(sql, Placeholder, list, 1))
	}
	return res, nil
}

func (f Formatter) literal(v any) (string, error) {
	if b, ok := v.(bool); ok && f.Dialect != nil {
		return f.Dialect.BoolLiteral(b), nil
	}
	return Literal(v)
}

// Literal renders v as sql literal. Booleans are rendered as 1 and 0, which postgres doesn't accept
// for boolean columns, use Formatter with dialect for them.
func Literal(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return quote(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case bool:
		if val {
			return "1", nil
		}
		return "0", nil
	case time.Time:
		return quote(val.Format("2006-01-02 15:04:05.999999")), nil
	case fmt.Stringer:
		return quote(val.String()), nil
	}
	return "", fmt.Errorf("unhandled data type %T", v)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
