package query

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"

	"github.com/forenx/sentinel/internal/models"
)

// reDoSPattern detects regex patterns with nested quantifiers like (a+)+,
// (a*)+ or (a|a)+ that can cause catastrophic backtracking.
var reDoSPattern = regexp.MustCompile(`\([^)]*[+*][^)]*\)[+*]|\([^)]*\|[^)]*\)[+*]`)

// ParsedQuery holds a validated and compiled filter expression.
type ParsedQuery struct {
	program *vm.Program
	node    ast.Node
	raw     string
}

// Node returns the AST root node.
func (pq *ParsedQuery) Node() ast.Node {
	return pq.node
}

// Raw returns the original expression string.
func (pq *ParsedQuery) Raw() string {
	return pq.raw
}

// Match evaluates the filter against a single entry.
func (pq *ParsedQuery) Match(entry *models.LogEntry) (bool, error) {
	result, err := expr.Run(pq.program, entryEnv(entry))
	if err != nil {
		return false, fmt.Errorf("evaluate filter: %w", err)
	}
	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("filter did not return bool: got %T", result)
	}
	return matched, nil
}

// Filter returns the entries the expression matches, preserving input
// order. The first evaluation error aborts the scan.
func (pq *ParsedQuery) Filter(entries []models.LogEntry) ([]models.LogEntry, error) {
	matched := make([]models.LogEntry, 0, len(entries))
	for i := range entries {
		ok, err := pq.Match(&entries[i])
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, entries[i])
		}
	}
	return matched, nil
}

// DSL handles filter expression parsing and validation.
type DSL struct {
	fields map[string]FieldDef
}

// NewDSL creates a parser with the given field definitions.
func NewDSL(fields map[string]FieldDef) *DSL {
	return &DSL{fields: fields}
}

// Default returns a parser over the standard entry fields.
func Default() *DSL {
	return NewDSL(DefaultFields)
}

// Parse compiles and validates an expression string.
func (d *DSL) Parse(expression string) (*ParsedQuery, error) {
	if expression == "" {
		return nil, fmt.Errorf("empty expression")
	}

	program, err := expr.Compile(
		expression,
		expr.Env(d.buildEnv()),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	node := program.Node()

	if err := d.validateAST(&node); err != nil {
		return nil, err
	}

	return &ParsedQuery{
		program: program,
		node:    node,
		raw:     expression,
	}, nil
}

// buildEnv creates the typed environment for compilation.
func (d *DSL) buildEnv() map[string]any {
	env := make(map[string]any)
	for name, field := range d.fields {
		switch field.Type {
		case FieldTypeString:
			env[name] = ""
		case FieldTypeInt:
			env[name] = 0
		case FieldTypeFloat:
			env[name] = 0.0
		case FieldTypeTime:
			env[name] = time.Time{}
		}
	}
	addFunctions(env)
	return env
}

// entryEnv creates the evaluation environment from an entry. The int
// fields must keep the same Go types as buildEnv's placeholders.
func entryEnv(entry *models.LogEntry) map[string]any {
	env := map[string]any{
		"client_ip":  entry.ClientIP,
		"method":     entry.Method,
		"endpoint":   entry.Endpoint,
		"query":      entry.QueryParams,
		"protocol":   entry.Protocol,
		"status":     entry.Status,
		"bytes_sent": int(entry.BytesSent),
		"referrer":   entry.Referrer,
		"user_agent": entry.UserAgent,
		"host":       entry.Host,
		"timestamp":  entry.Timestamp,
	}
	addFunctions(env)
	return env
}

func addFunctions(env map[string]any) {
	env["now"] = func() time.Time { return time.Now() }
	env["duration"] = func(s string) time.Duration {
		d, _ := time.ParseDuration(s)
		return d
	}
	env["contains"] = func(s, substr string) bool { return strings.Contains(s, substr) }
	env["startsWith"] = func(s, prefix string) bool { return strings.HasPrefix(s, prefix) }
	env["endsWith"] = func(s, suffix string) bool { return strings.HasSuffix(s, suffix) }
	env["matches"] = func(s, pattern string) bool {
		matched, _ := regexp.MatchString(pattern, s)
		return matched
	}
}

// validateAST walks the AST to validate fields, operators and regex use.
func (d *DSL) validateAST(node *ast.Node) error {
	v := &validationVisitor{fields: d.fields}
	ast.Walk(node, v)
	return v.err
}

// validationVisitor checks fields and operators in the AST.
type validationVisitor struct {
	fields map[string]FieldDef
	err    error
}

func (v *validationVisitor) Visit(node *ast.Node) {
	if v.err != nil {
		return
	}

	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		if _, ok := v.fields[n.Value]; !ok {
			if !AllowedFunctions[n.Value] && !isBuiltinFunction(n.Value) {
				v.err = fmt.Errorf("unknown field: %s", n.Value)
			}
		}

	case *ast.BinaryNode:
		if ident, ok := n.Left.(*ast.IdentifierNode); ok {
			if field, ok := v.fields[ident.Value]; ok {
				if !field.IsOperatorAllowed(n.Operator) {
					v.err = fmt.Errorf("operator %q not allowed for field %q", n.Operator, ident.Value)
					return
				}
			}
		}
		// Regex patterns must be literal and free of nested quantifiers,
		// for both the in-memory matcher and ClickHouse.
		if n.Operator == "matches" {
			strNode, ok := n.Right.(*ast.StringNode)
			if !ok {
				v.err = fmt.Errorf("matches requires a literal pattern")
				return
			}
			if reDoSPattern.MatchString(strNode.Value) {
				v.err = fmt.Errorf("dangerous regex pattern %q: nested quantifiers", strNode.Value)
				return
			}
			if _, err := regexp.Compile(strNode.Value); err != nil {
				v.err = fmt.Errorf("invalid regex pattern %q: %w", strNode.Value, err)
				return
			}
		}

	case *ast.MemberNode:
		v.err = fmt.Errorf("member access is not supported")

	case *ast.CallNode:
		if ident, ok := n.Callee.(*ast.IdentifierNode); ok {
			if !AllowedFunctions[ident.Value] && !isBuiltinFunction(ident.Value) {
				v.err = fmt.Errorf("function %q is not allowed", ident.Value)
			}
		}
	}
}

// isBuiltinFunction checks if a function is a built-in expr function.
func isBuiltinFunction(name string) bool {
	builtins := map[string]bool{
		"len": true, "lower": true, "upper": true, "trim": true,
		"int": true, "float": true, "string": true, "bool": true,
		"abs": true, "ceil": true, "floor": true, "round": true,
		"min": true, "max": true,
	}
	return builtins[name]
}
