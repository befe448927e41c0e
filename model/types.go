package model

import "strings"

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// DataType is an abstract column type, mapped to a concrete SQL type per dialect.
type DataType string

const (
	Integer DataType = "INTEGER"
	BigInt  DataType = "BIGINT"
	String  DataType = "STRING"
	Text    DataType = "TEXT"
	Boolean DataType = "BOOLEAN"
	Float   DataType = "FLOAT"
	Date    DataType = "DATE"
	JSON    DataType = "JSON"
)

var sqlTypes = map[string]map[DataType]string{
	DialectPostgres: {
		Integer: "integer",
		BigInt:  "bigint",
		String:  "varchar(255)",
		Text:    "text",
		Boolean: "boolean",
		Float:   "double precision",
		Date:    "timestamptz",
		JSON:    "jsonb",
	},
	DialectSQLite: {
		Integer: "INTEGER",
		BigInt:  "INTEGER",
		String:  "TEXT",
		Text:    "TEXT",
		Boolean: "INTEGER",
		Float:   "REAL",
		Date:    "DATETIME",
		JSON:    "TEXT",
	},
}

// SQL returns the column type for the dialect. Unknown dialects get the abstract name.
func (d DataType) SQL(dialect string) string {
	if s, ok := sqlTypes[dialect][d]; ok {
		return s
	}
	return string(d)
}

// Types is the type system handed to every Factory.
type Types struct {
	Integer DataType
	BigInt  DataType
	String  DataType
	Text    DataType
	Boolean DataType
	Float   DataType
	Date    DataType
	JSON    DataType
}

var DefaultTypes = Types{
	Integer: Integer,
	BigInt:  BigInt,
	String:  String,
	Text:    Text,
	Boolean: Boolean,
	Float:   Float,
	Date:    Date,
	JSON:    JSON,
}

// Lookup finds a type by its name, case insensitively.
func (t Types) Lookup(name string) (DataType, bool) {
	for _, d := range []DataType{t.Integer, t.BigInt, t.String, t.Text, t.Boolean, t.Float, t.Date, t.JSON} {
		if strings.EqualFold(string(d), name) {
			return d, true
		}
	}
	return "", false
}
