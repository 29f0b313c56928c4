package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr/ast"
)

// SQLBuilder converts parsed filter expressions to ClickHouse SQL.
type SQLBuilder struct {
	fields map[string]FieldDef
}

// NewSQLBuilder creates a new SQL builder.
func NewSQLBuilder(fields map[string]FieldDef) *SQLBuilder {
	return &SQLBuilder{fields: fields}
}

// BuildResult contains the generated SQL and parameters.
type BuildResult struct {
	SQL  string
	Args []any
}

// Build generates a SQL WHERE clause from a parsed query.
func (b *SQLBuilder) Build(pq *ParsedQuery) (*BuildResult, error) {
	v := &sqlVisitor{
		fields: b.fields,
		args:   make([]any, 0),
	}

	node := pq.Node()
	sql, err := v.visit(&node)
	if err != nil {
		return nil, err
	}

	return &BuildResult{
		SQL:  sql,
		Args: v.args,
	}, nil
}

// sqlVisitor traverses the AST and generates SQL.
type sqlVisitor struct {
	fields map[string]FieldDef
	args   []any
}

func (v *sqlVisitor) visit(node *ast.Node) (string, error) {
	switch n := (*node).(type) {
	case *ast.BinaryNode:
		return v.visitBinary(n)
	case *ast.UnaryNode:
		return v.visitUnary(n)
	case *ast.IdentifierNode:
		return v.visitIdentifier(n)
	case *ast.StringNode:
		return v.visitString(n)
	case *ast.IntegerNode:
		return v.visitInteger(n)
	case *ast.FloatNode:
		return v.visitFloat(n)
	case *ast.BoolNode:
		return v.visitBool(n)
	case *ast.ArrayNode:
		return v.visitArray(n)
	case *ast.ConstantNode:
		return v.visitConstant(n)
	case *ast.CallNode:
		return v.visitCall(n)
	case *ast.NilNode:
		return "NULL", nil
	default:
		return "", fmt.Errorf("unsupported node type: %T", n)
	}
}

func (v *sqlVisitor) visitBinary(n *ast.BinaryNode) (string, error) {
	if isStringMethod(n.Operator) {
		return v.handleStringMethod(n)
	}

	left, err := v.visit(&n.Left)
	if err != nil {
		return "", err
	}

	right, err := v.visit(&n.Right)
	if err != nil {
		return "", err
	}

	// The 'in' operator takes the parenthesized list directly.
	if n.Operator == "in" {
		return fmt.Sprintf("%s IN %s", left, right), nil
	}

	op, err := v.mapOperator(n.Operator)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("(%s %s %s)", left, op, right), nil
}

func (v *sqlVisitor) visitUnary(n *ast.UnaryNode) (string, error) {
	operand, err := v.visit(&n.Node)
	if err != nil {
		return "", err
	}

	switch n.Operator {
	case "not", "!":
		return fmt.Sprintf("NOT (%s)", operand), nil
	case "-":
		return fmt.Sprintf("-%s", operand), nil
	default:
		return "", fmt.Errorf("unsupported unary operator: %s", n.Operator)
	}
}

func (v *sqlVisitor) visitIdentifier(n *ast.IdentifierNode) (string, error) {
	if field, ok := v.fields[n.Value]; ok {
		return field.Column, nil
	}
	return "", fmt.Errorf("unknown field: %s", n.Value)
}

func (v *sqlVisitor) visitString(n *ast.StringNode) (string, error) {
	v.args = append(v.args, n.Value)
	return "?", nil
}

func (v *sqlVisitor) visitInteger(n *ast.IntegerNode) (string, error) {
	v.args = append(v.args, n.Value)
	return "?", nil
}

func (v *sqlVisitor) visitFloat(n *ast.FloatNode) (string, error) {
	v.args = append(v.args, n.Value)
	return "?", nil
}

func (v *sqlVisitor) visitBool(n *ast.BoolNode) (string, error) {
	if n.Value {
		return "1", nil
	}
	return "0", nil
}

func (v *sqlVisitor) visitArray(n *ast.ArrayNode) (string, error) {
	parts := make([]string, len(n.Nodes))
	for i, node := range n.Nodes {
		sql, err := v.visit(&node)
		if err != nil {
			return "", err
		}
		parts[i] = sql
	}
	return fmt.Sprintf("(%s)", strings.Join(parts, ", ")), nil
}

func (v *sqlVisitor) visitConstant(n *ast.ConstantNode) (string, error) {
	// ConstantNode appears when expr folds literal arrays, and 'in'
	// arrays become maps for fast lookup.
	switch val := n.Value.(type) {
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			v.args = append(v.args, item)
			parts[i] = "?"
		}
		return fmt.Sprintf("(%s)", strings.Join(parts, ", ")), nil
	case map[string]struct{}:
		parts := make([]string, 0, len(val))
		for key := range val {
			v.args = append(v.args, key)
			parts = append(parts, "?")
		}
		return fmt.Sprintf("(%s)", strings.Join(parts, ", ")), nil
	case map[int]struct{}:
		parts := make([]string, 0, len(val))
		for key := range val {
			v.args = append(v.args, key)
			parts = append(parts, "?")
		}
		return fmt.Sprintf("(%s)", strings.Join(parts, ", ")), nil
	case string:
		v.args = append(v.args, val)
		return "?", nil
	case int, int64, float64:
		v.args = append(v.args, val)
		return "?", nil
	case bool:
		if val {
			return "1", nil
		}
		return "0", nil
	default:
		return "", fmt.Errorf("unsupported constant type: %T", val)
	}
}

func (v *sqlVisitor) visitCall(n *ast.CallNode) (string, error) {
	callee, ok := n.Callee.(*ast.IdentifierNode)
	if !ok {
		return "", fmt.Errorf("unsupported callee type")
	}

	switch callee.Value {
	case "now":
		return "now()", nil

	case "duration":
		if len(n.Arguments) != 1 {
			return "", fmt.Errorf("duration() requires exactly 1 argument")
		}
		strNode, ok := n.Arguments[0].(*ast.StringNode)
		if !ok {
			return "", fmt.Errorf("duration() argument must be a string")
		}
		dur, err := time.ParseDuration(strNode.Value)
		if err != nil {
			return "", fmt.Errorf("invalid duration: %w", err)
		}
		return durationToInterval(dur), nil

	case "lower":
		return v.wrapCall("lower", n)
	case "upper":
		return v.wrapCall("upper", n)
	case "len":
		return v.wrapCall("length", n)

	default:
		return "", fmt.Errorf("unsupported function: %s", callee.Value)
	}
}

func (v *sqlVisitor) wrapCall(sqlFunc string, n *ast.CallNode) (string, error) {
	if len(n.Arguments) != 1 {
		return "", fmt.Errorf("%s() requires exactly 1 argument", sqlFunc)
	}
	arg, err := v.visit(&n.Arguments[0])
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s(%s)", sqlFunc, arg), nil
}

func isStringMethod(op string) bool {
	switch op {
	case "contains", "startsWith", "endsWith", "matches":
		return true
	}
	return false
}

// handleStringMethod maps expr string operators to ClickHouse functions.
func (v *sqlVisitor) handleStringMethod(n *ast.BinaryNode) (string, error) {
	left, err := v.visit(&n.Left)
	if err != nil {
		return "", err
	}

	right, err := v.visit(&n.Right)
	if err != nil {
		return "", err
	}

	switch n.Operator {
	case "contains":
		return fmt.Sprintf("position(%s, %s) > 0", left, right), nil
	case "startsWith":
		return fmt.Sprintf("startsWith(%s, %s)", left, right), nil
	case "endsWith":
		return fmt.Sprintf("endsWith(%s, %s)", left, right), nil
	case "matches":
		// Patterns were vetted at parse time.
		return fmt.Sprintf("match(%s, %s)", left, right), nil
	default:
		return "", fmt.Errorf("unknown string method: %s", n.Operator)
	}
}

// mapOperator converts expr operators to SQL operators.
func (v *sqlVisitor) mapOperator(op string) (string, error) {
	switch op {
	case "==":
		return "=", nil
	case "!=":
		return "!=", nil
	case "and", "&&":
		return "AND", nil
	case "or", "||":
		return "OR", nil
	case ">=", "<=", ">", "<":
		return op, nil
	case "-", "+", "*", "/":
		return op, nil
	default:
		return "", fmt.Errorf("unknown operator: %s", op)
	}
}

// durationToInterval converts a Go duration to a ClickHouse interval.
func durationToInterval(d time.Duration) string {
	hours := d.Hours()
	if hours >= 24 {
		return fmt.Sprintf("INTERVAL %d DAY", int(hours/24))
	}
	if hours >= 1 {
		return fmt.Sprintf("INTERVAL %d HOUR", int(hours))
	}
	if d.Minutes() >= 1 {
		return fmt.Sprintf("INTERVAL %d MINUTE", int(d.Minutes()))
	}
	return fmt.Sprintf("INTERVAL %d SECOND", int(d.Seconds()))
}
