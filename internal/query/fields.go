// Package query provides the filter expression DSL for parsed access log
// entries. One parsed expression serves two backends: in-memory matching
// against recent entries and WHERE-clause generation for the ClickHouse
// archive.
package query

// FieldType represents the data type of a queryable field.
type FieldType int

const (
	FieldTypeString FieldType = iota
	FieldTypeInt
	FieldTypeFloat
	FieldTypeTime
)

// FieldDef defines a queryable field with its allowed operators.
type FieldDef struct {
	Name      string    // expression field name
	Column    string    // ClickHouse column name
	Type      FieldType // data type
	Operators []string  // allowed operators
}

// DefaultFields contains all queryable access log entry fields.
var DefaultFields = map[string]FieldDef{
	"client_ip": {
		Name:      "client_ip",
		Column:    "client_ip",
		Type:      FieldTypeString,
		Operators: []string{"==", "!=", "in", "contains", "startsWith"},
	},
	"method": {
		Name:      "method",
		Column:    "method",
		Type:      FieldTypeString,
		Operators: []string{"==", "!=", "in"},
	},
	"endpoint": {
		Name:      "endpoint",
		Column:    "endpoint",
		Type:      FieldTypeString,
		Operators: []string{"==", "!=", "in", "contains", "startsWith", "endsWith", "matches"},
	},
	"query": {
		Name:      "query",
		Column:    "query_params",
		Type:      FieldTypeString,
		Operators: []string{"==", "!=", "contains", "matches"},
	},
	"protocol": {
		Name:      "protocol",
		Column:    "protocol",
		Type:      FieldTypeString,
		Operators: []string{"==", "!=", "in"},
	},
	"status": {
		Name:      "status",
		Column:    "status",
		Type:      FieldTypeInt,
		Operators: []string{"==", "!=", ">=", "<=", ">", "<", "in"},
	},
	"bytes_sent": {
		Name:      "bytes_sent",
		Column:    "bytes_sent",
		Type:      FieldTypeInt,
		Operators: []string{"==", "!=", ">=", "<=", ">", "<"},
	},
	"referrer": {
		Name:      "referrer",
		Column:    "referrer",
		Type:      FieldTypeString,
		Operators: []string{"==", "!=", "contains", "startsWith", "endsWith"},
	},
	"user_agent": {
		Name:      "user_agent",
		Column:    "user_agent",
		Type:      FieldTypeString,
		Operators: []string{"==", "!=", "in", "contains", "startsWith", "endsWith", "matches"},
	},
	"host": {
		Name:      "host",
		Column:    "host",
		Type:      FieldTypeString,
		Operators: []string{"==", "!=", "in", "contains"},
	},
	"timestamp": {
		Name:      "timestamp",
		Column:    "timestamp",
		Type:      FieldTypeTime,
		Operators: []string{">=", "<=", ">", "<"},
	},
}

// IsOperatorAllowed checks if an operator is valid for a field.
func (f FieldDef) IsOperatorAllowed(op string) bool {
	for _, allowed := range f.Operators {
		if allowed == op {
			return true
		}
	}
	return false
}

// AllowedFunctions lists functions allowed in expressions.
var AllowedFunctions = map[string]bool{
	"now":      true,
	"duration": true,
}
