// Package rules loads custom detection rules from YAML files and
// evaluates them against parsed access log entries. Each rule carries an
// expr-lang boolean expression over the entry fields; a matching entry
// produces an attack alert that joins the built-in detections.
package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/forenx/sentinel/internal/models"
)

// Rule is a single custom detection rule. Validate must be called before
// Evaluate; loading through this package does that.
type Rule struct {
	// ID is the unique identifier for the rule.
	ID string `yaml:"id"`
	// Name is a human-readable summary used as the alert details.
	Name string `yaml:"name"`
	// Attack is the alert category the rule reports.
	Attack string `yaml:"attack"`
	// Confidence is the alert confidence in (0, 1].
	Confidence float64 `yaml:"confidence"`
	// When is the expr boolean expression evaluated per entry.
	When string `yaml:"when"`
	// Details overrides Name as the alert details text.
	Details string `yaml:"details,omitempty"`
	// Enabled controls whether the rule is active.
	Enabled *bool `yaml:"enabled,omitempty"`

	attack  models.AttackType
	program *vm.Program
}

// File is the top-level YAML document for a rules file.
type File struct {
	Rules []*Rule `yaml:"rules"`
}

// IsEnabled returns whether the rule is active.
func (r *Rule) IsEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// Validate checks the rule configuration and compiles its expression.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("rule name is required for rule %q", r.ID)
	}

	attack, ok := models.ParseAttackType(strings.ToUpper(r.Attack))
	if !ok {
		return fmt.Errorf("unknown attack category %q for rule %q", r.Attack, r.ID)
	}
	r.attack = attack

	if r.Confidence <= 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence must be in (0, 1] for rule %q, got %v", r.ID, r.Confidence)
	}

	if r.When == "" {
		return fmt.Errorf("expression is required for rule %q", r.ID)
	}
	program, err := expr.Compile(r.When,
		expr.Env(sampleEnv()),
		expr.AsBool(),
	)
	if err != nil {
		return fmt.Errorf("invalid expression for rule %q: %w", r.ID, err)
	}
	r.program = program

	return nil
}

// AttackType returns the parsed alert category. Valid only after Validate.
func (r *Rule) AttackType() models.AttackType {
	return r.attack
}

// Evaluate runs the rule against one entry and builds the alert it
// produces on a match. Entries the expression rejects, and entries the
// expression cannot evaluate, report ok=false.
func (r *Rule) Evaluate(entry *models.LogEntry) (models.AttackAlert, bool) {
	if r.program == nil || !r.IsEnabled() {
		return models.AttackAlert{}, false
	}

	result, err := expr.Run(r.program, envFromEntry(entry))
	if err != nil {
		return models.AttackAlert{}, false
	}
	matched, ok := result.(bool)
	if !ok || !matched {
		return models.AttackAlert{}, false
	}

	details := r.Details
	if details == "" {
		details = r.Name
	}
	return models.AttackAlert{
		Timestamp:  entry.Timestamp,
		ClientIP:   entry.ClientIP,
		Type:       r.attack,
		Endpoint:   entry.Endpoint,
		UserAgent:  entry.UserAgent,
		StatusCode: entry.Status,
		Confidence: r.Confidence,
		Details:    details,
		RawSample:  models.TruncateSample(entry.Raw),
	}, true
}

// sampleEnv is the typed environment expressions are compiled against.
// Referencing a field outside this set is a load-time error.
func sampleEnv() map[string]any {
	return map[string]any{
		"client_ip":  "",
		"method":     "",
		"endpoint":   "",
		"query":      "",
		"protocol":   "",
		"status":     0,
		"bytes_sent": int64(0),
		"referrer":   "",
		"user_agent": "",
		"host":       "",
		"timestamp":  time.Time{},
	}
}

func envFromEntry(entry *models.LogEntry) map[string]any {
	return map[string]any{
		"client_ip":  entry.ClientIP,
		"method":     entry.Method,
		"endpoint":   entry.Endpoint,
		"query":      entry.QueryParams,
		"protocol":   entry.Protocol,
		"status":     entry.Status,
		"bytes_sent": entry.BytesSent,
		"referrer":   entry.Referrer,
		"user_agent": entry.UserAgent,
		"host":       entry.Host,
		"timestamp":  entry.Timestamp,
	}
}
