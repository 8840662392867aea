package meta

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypeOf(t *testing.T) {
	tbl := []struct {
		name string
		want SQLType
	}{
		{"INTEGER", TypeInteger},
		{"bigint", TypeInteger},
		{"int unsigned", TypeInteger},
		{"smallint", TypeInteger},
		{"int4", TypeInteger},
		{"bigserial", TypeInteger},
		{"tinyint(1)", TypeInteger},
		{"point", TypeUnknown},
		{"interval", TypeUnknown},
		{"double precision", TypeFloat},
		{"real", TypeFloat},
		{"float8", TypeFloat},
		{"numeric(10,2)", TypeDecimal},
		{"DECIMAL", TypeDecimal},
		{"money", TypeDecimal},
		{"varchar(20)", TypeText},
		{"character varying", TypeText},
		{"text", TypeText},
		{"uuid", TypeText},
		{"jsonb", TypeText},
		{"boolean", TypeBool},
		{"bit", TypeBool},
		{"timestamp without time zone", TypeTimestamp},
		{"date", TypeTimestamp},
		{"datetime", TypeTimestamp},
		{"bytea", TypeBinary},
		{"BLOB", TypeBinary},
		{"varbinary(16)", TypeBinary},
		{"", TypeUnknown},
		{"geometry", TypeUnknown},
	}
	for _, tc := range tbl {
		assert.Equal(t, tc.want, TypeOf(tc.name), tc.name)
	}
}

func TestParseTypeSize(t *testing.T) {
	tbl := []struct {
		in            string
		size, decimal int
	}{
		{"varchar(20)", 20, 0},
		{"numeric( 10 , 2 )", 10, 2},
		{"text", 0, 0},
		{"decimal(8,3) unsigned", 8, 3},
	}
	for _, tc := range tbl {
		size, decimal := parseTypeSize(tc.in)
		assert.Equal(t, tc.size, size, tc.in)
		assert.Equal(t, tc.decimal, decimal, tc.in)
	}
}

func TestColumnDef_Accepts(t *testing.T) {
	col := func(tp SQLType, nullable bool) ColumnDef { return ColumnDef{Name: "c", Type: tp, Nullable: nullable} }
	tbl := []struct {
		col  ColumnDef
		v    any
		want bool
	}{
		{col(TypeInteger, false), 1, true},
		{col(TypeInteger, false), uint8(1), true},
		{col(TypeInteger, false), 1.5, false},
		{col(TypeInteger, false), "1", false},
		{col(TypeInteger, false), nil, false},
		{col(TypeInteger, true), nil, true},
		{col(TypeFloat, false), 1, true},
		{col(TypeDecimal, false), float32(1), true},
		{col(TypeDecimal, false), "1.5", false},
		{col(TypeText, false), "s", true},
		{col(TypeText, false), []byte("s"), false},
		{col(TypeBool, false), true, true},
		{col(TypeBool, false), 1, false},
		{col(TypeTimestamp, false), time.Now(), true},
		{col(TypeTimestamp, false), "2024-01-01", false},
		{col(TypeBinary, false), []byte{1}, true},
		{col(TypeBinary, false), "s", true},
		{col(TypeBinary, false), 1, false},
		{col(TypeUnknown, false), struct{}{}, true},
	}
	for _, tc := range tbl {
		assert.Equal(t, tc.want, tc.col.Accepts(tc.v), "%s %T", tc.col.Type, tc.v)
	}
}

func TestSQLType_String(t *testing.T) {
	assert.Equal(t, "integer", TypeInteger.String())
	assert.Equal(t, "binary", TypeBinary.String())
	assert.Equal(t, "unknown", SQLType(99).String())
}
