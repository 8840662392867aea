// Package meta provides table metadata used by bulk loaders: column and primary key definitions,
// the in-memory incremental key counter and validation of field vectors against the table shape.
package meta

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SQLType is a generic sql type category of a column
type SQLType int

// sql types
const (
	TypeUnknown SQLType = iota
	TypeInteger
	TypeFloat
	TypeDecimal
	TypeText
	TypeBool
	TypeTimestamp
	TypeBinary
)

func (t SQLType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeDecimal:
		return "decimal"
	case TypeText:
		return "text"
	case TypeBool:
		return "bool"
	case TypeTimestamp:
		return "timestamp"
	case TypeBinary:
		return "binary"
	}
	return "unknown"
}

// ColumnDef is a snapshot of catalog metadata for a single column
type ColumnDef struct {
	Name        string
	Type        SQLType
	TypeName    string // vendor type name as reported by catalog
	Size        int
	DecimalSize int
	Nullable    bool
	Table       string
	Schema      string
	Catalog     string
}

var typeSizeRe = regexp.MustCompile(`\(\s*(\d+)\s*(?:,\s*(\d+)\s*)?\)`)

// TypeOf maps vendor type name to SQLType
func TypeOf(typeName string) SQLType {
	t := strings.ToLower(strings.TrimSpace(typeName))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	switch {
	case t == "":
		return TypeUnknown
	case isIntegerType(t):
		return TypeInteger
	case t == "bool" || t == "boolean" || t == "bit":
		return TypeBool
	case strings.HasPrefix(t, "decimal") || strings.HasPrefix(t, "numeric") || t == "money":
		return TypeDecimal
	case strings.Contains(t, "float") || strings.Contains(t, "double") || t == "real":
		return TypeFloat
	case strings.Contains(t, "char") || strings.Contains(t, "text") || strings.Contains(t, "clob") ||
		t == "uuid" || t == "json" || t == "jsonb" || t == "enum":
		return TypeText
	case strings.Contains(t, "time") || strings.Contains(t, "date"):
		return TypeTimestamp
	case strings.Contains(t, "blob") || strings.Contains(t, "binary") || t == "bytea":
		return TypeBinary
	}
	return TypeUnknown
}

func isIntegerType(t string) bool {
	t = strings.TrimSpace(strings.TrimSuffix(t, "unsigned"))
	switch t {
	case "integer", "int2", "int4", "int8", "serial", "bigserial", "smallserial", "serial4", "serial8":
		return true
	}
	return strings.HasSuffix(t, "int") && t != "point" // int, bigint, smallint, tinyint, mediumint
}

// parseTypeSize extracts size and decimal size from type names like "varchar(20)" or "numeric(10,2)"
func parseTypeSize(typeName string) (size, decimal int) {
	m := typeSizeRe.FindStringSubmatch(typeName)
	if m == nil {
		return 0, 0
	}
	size, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		decimal, _ = strconv.Atoi(m[2])
	}
	return size, decimal
}

// Accepts checks if the value may be stored in the column. NULL is accepted for nullable columns only.
func (c ColumnDef) Accepts(v any) bool {
	if v == nil {
		return c.Nullable
	}
	switch c.Type {
	case TypeInteger:
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		}
	case TypeFloat, TypeDecimal:
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
	case TypeText:
		_, ok := v.(string)
		return ok
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeTimestamp:
		_, ok := v.(time.Time)
		return ok
	case TypeBinary:
		switch v.(type) {
		case []byte, string:
			return true
		}
	case TypeUnknown:
		return true
	}
	return false
}
