package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// RuleKind identifies a transformation rule variant.
type RuleKind string

const (
	// RuleRename moves a field value from one name to another.
	RuleRename RuleKind = "rename"

	// RuleFormat reformats a field value in place.
	RuleFormat RuleKind = "format"

	// RuleDerive computes a new field from an expression over other fields.
	RuleDerive RuleKind = "derive"
)

// FormatStyle is the target style of a format rule.
type FormatStyle string

const (
	FormatUppercase FormatStyle = "uppercase"
	FormatLowercase FormatStyle = "lowercase"
	FormatDate      FormatStyle = "date"
)

// Rule is one transformation step. Rules apply in declaration order and are
// pure and total: a missing source field leaves the target field absent, it
// never fails the record.
type Rule struct {
	// Kind selects the rule variant.
	Kind RuleKind `json:"kind" yaml:"kind"`

	// From is the source field of a rename rule.
	From string `json:"from,omitempty" yaml:"from,omitempty"`

	// To is the target field of a rename rule.
	To string `json:"to,omitempty" yaml:"to,omitempty"`

	// Field is the target field of a format or derive rule.
	Field string `json:"field,omitempty" yaml:"field,omitempty"`

	// Style is the format style of a format rule.
	Style FormatStyle `json:"style,omitempty" yaml:"style,omitempty"`

	// Expr is the CEL expression of a derive rule. The record's fields are
	// bound as the map variable `fields`, e.g.
	// `fields.first_name + " " + fields.last_name`.
	Expr string `json:"expr,omitempty" yaml:"expr,omitempty"`
}

// celFieldsVar is the CEL variable name the record fields are bound to.
const celFieldsVar = "fields"

type compiledRule struct {
	rule    Rule
	program cel.Program
}

// RuleSet is an ordered, compiled list of transformation rules. Derive
// expressions compile once at construction so malformed expressions surface
// at source registration, not per record.
type RuleSet struct {
	rules []compiledRule
}

// CompileRules validates and compiles a rule list into a RuleSet. Derive
// expressions are compiled in a sandboxed CEL environment with only the
// `fields` map in scope; there is no host-language code execution.
func CompileRules(rules []Rule) (*RuleSet, error) {
	env, err := cel.NewEnv(
		cel.Variable(celFieldsVar, cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create expression environment: %w", err)
	}

	rs := &RuleSet{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		cr := compiledRule{rule: r}
		switch r.Kind {
		case RuleRename:
			if r.From == "" || r.To == "" {
				return nil, fmt.Errorf("rule %d: rename requires from and to", i)
			}
		case RuleFormat:
			if r.Field == "" {
				return nil, fmt.Errorf("rule %d: format requires a field", i)
			}
			switch r.Style {
			case FormatUppercase, FormatLowercase, FormatDate:
			default:
				return nil, fmt.Errorf("rule %d: unknown format style %q", i, r.Style)
			}
		case RuleDerive:
			if r.Field == "" || r.Expr == "" {
				return nil, fmt.Errorf("rule %d: derive requires a field and an expression", i)
			}
			ast, issues := env.Compile(r.Expr)
			if issues != nil && issues.Err() != nil {
				return nil, fmt.Errorf("rule %d: invalid derive expression: %w", i, issues.Err())
			}
			prg, err := env.Program(ast)
			if err != nil {
				return nil, fmt.Errorf("rule %d: failed to build derive program: %w", i, err)
			}
			cr.program = prg
		default:
			return nil, fmt.Errorf("rule %d: unknown rule kind %q", i, r.Kind)
		}
		rs.rules = append(rs.rules, cr)
	}
	return rs, nil
}

// Apply runs the rule set over each record in declaration order, mutating
// records in place and returning the same slice. A nil RuleSet is a no-op.
func (rs *RuleSet) Apply(records []Record) []Record {
	if rs == nil {
		return records
	}
	for _, rec := range records {
		for _, cr := range rs.rules {
			cr.apply(rec)
		}
	}
	return records
}

func (cr compiledRule) apply(rec Record) {
	r := cr.rule
	switch r.Kind {
	case RuleRename:
		if v, ok := rec[r.From]; ok {
			rec[r.To] = v
			delete(rec, r.From)
		}
	case RuleFormat:
		applyFormat(rec, r.Field, r.Style)
	case RuleDerive:
		applyDerive(rec, r.Field, cr.program)
	}
}

func applyFormat(rec Record, field string, style FormatStyle) {
	v, ok := rec[field]
	if !ok || v == nil {
		return
	}
	switch style {
	case FormatUppercase:
		if s, isStr := v.(string); isStr {
			rec[field] = strings.ToUpper(s)
		}
	case FormatLowercase:
		if s, isStr := v.(string); isStr {
			rec[field] = strings.ToLower(s)
		}
	case FormatDate:
		if t, isTime := v.(time.Time); isTime {
			rec[field] = t.Format("2006-01-02")
			return
		}
		if d, ok := coerceDate(v); ok {
			rec[field] = d.(time.Time).Format("2006-01-02")
		}
	}
}

// applyDerive evaluates the compiled expression against the record's fields.
// Evaluation errors (typically a reference to an absent field) leave the
// target absent for that record.
func applyDerive(rec Record, field string, prg cel.Program) {
	fields := make(map[string]any, len(rec))
	for k, v := range rec {
		if k == ProvenanceKey {
			continue
		}
		fields[k] = v
	}

	out, _, err := prg.Eval(map[string]any{celFieldsVar: fields})
	if err != nil {
		return
	}
	rec[field] = out.Value()
}
