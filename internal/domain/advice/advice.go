// Package advice turns a finished assessment into driver recommendations
// using CEL rules.
package advice

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/okian/riskgate/internal/domain/model"
)

// Rule pairs a CEL condition with the message it produces.
type Rule struct {
	// ID names the rule in logs and configuration.
	ID string
	// When is a CEL expression over the rule environment. It must be boolean.
	When string
	// Message is appended to the recommendations when When holds.
	Message string
}

// DefaultRules returns the built-in recommendation rules.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:      "advanced-training",
			When:    `scores.behavior > 60.0 && scores.geographic > 60.0`,
			Message: "High-risk driver in high-risk location - consider advanced driver training",
		},
		{
			ID:      "avoid-conditions",
			When:    `scores.contextual > 70.0`,
			Message: "Avoid driving in high-risk conditions when possible",
		},
		{
			ID:      "usage-monitoring",
			When:    `scores.behavior > 70.0 && scores.geographic > 70.0 && scores.contextual > 70.0`,
			Message: "Consider usage-based insurance monitoring",
		},
		{
			ID:      "risk-mitigation",
			When:    `scores.behavior > 70.0 && scores.geographic > 70.0 && scores.contextual > 70.0`,
			Message: "Implement comprehensive risk mitigation strategies",
		},
		{
			ID:      "rising-risk",
			When:    `trend == "DEGRADING"`,
			Message: "Risk has been rising over recent trips - review recent driving habits",
		},
	}
}

type compiled struct {
	rule    Rule
	program cel.Program
}

// Advisor evaluates compiled rules. It is immutable and safe for concurrent use.
type Advisor struct {
	rules []compiled
}

// New compiles rules once. Every rule needs a unique id, a message and a
// boolean condition; any failure wraps ErrRuleCompile.
func New(rules []Rule) (*Advisor, error) {
	env, err := NewEnv()
	if err != nil {
		return nil, fmt.Errorf("advice env: %w", err)
	}

	a := &Advisor{rules: make([]compiled, 0, len(rules))}
	seen := make(map[string]struct{}, len(rules))
	for i, r := range rules {
		if strings.TrimSpace(r.ID) == "" {
			return nil, fmt.Errorf("%w: rule %d has no id", ErrRuleCompile, i)
		}
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate rule %q", ErrRuleCompile, r.ID)
		}
		seen[r.ID] = struct{}{}
		if strings.TrimSpace(r.Message) == "" {
			return nil, fmt.Errorf("%w: rule %q has no message", ErrRuleCompile, r.ID)
		}

		prg, err := compile(env, r.When)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrRuleCompile, r.ID, err)
		}
		a.rules = append(a.rules, compiled{rule: r, program: prg})
	}
	return a, nil
}

func compile(env *cel.Env, expr string) (cel.Program, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, errors.New("empty condition")
	}
	ast, iss := env.Parse(expr)
	if iss.Err() != nil {
		return nil, iss.Err()
	}
	checked, iss := env.Check(ast)
	if iss.Err() != nil {
		return nil, iss.Err()
	}
	if !reflect.DeepEqual(checked.OutputType(), cel.BoolType) {
		return nil, fmt.Errorf("condition yields %s, want bool", checked.OutputType())
	}
	return env.Program(checked)
}

// Rules returns the configured rules in evaluation order.
func (a *Advisor) Rules() []Rule {
	out := make([]Rule, len(a.rules))
	for i, c := range a.rules {
		out[i] = c.rule
	}
	return out
}

// Advise returns the messages of every rule that holds for r, in rule
// order. A rule whose evaluation errors, for example by reading a missing
// expert, does not fire.
func (a *Advisor) Advise(r *model.EnsembleResult) []string {
	if len(a.rules) == 0 {
		return nil
	}
	vars := activation(r)

	var out []string
	for _, c := range a.rules {
		val, _, err := c.program.Eval(vars)
		if err != nil || val.Value() != true {
			continue
		}
		out = append(out, c.rule.Message)
	}
	return out
}

func activation(r *model.EnsembleResult) map[string]any {
	scores := make(map[string]any, len(r.ExpertScores))
	for id, v := range r.ExpertScores {
		scores[string(id)] = v
	}
	return map[string]any{
		varScores:      scores,
		varFinalScore:  r.FinalScore,
		varSafetyScore: r.SafetyScore,
		varTier:        r.Tier,
		varTrend:       string(r.Trend.Direction),
	}
}
