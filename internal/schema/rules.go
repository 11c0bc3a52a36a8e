package schema

import (
	"fmt"
	"sort"
)

// Rule produces the new value of one field. Every rule in a set reads the
// same pre-migration document and never sees another rule's output.
type Rule interface {
	Apply(src Document) (any, error)
}

type constRule struct{ value any }

func (c constRule) Apply(Document) (any, error) { return c.value, nil }

// Const sets a field to a literal.
func Const(v any) Rule { return constRule{value: v} }

// FuncRule adapts a fallible function into a Rule.
type FuncRule func(src Document) (any, error)

func (f FuncRule) Apply(src Document) (any, error) { return f(src) }

// Func adapts an infallible function into a Rule.
func Func(fn func(src Document) any) Rule {
	return FuncRule(func(src Document) (any, error) { return fn(src), nil })
}

// MultiRule computes several interdependent fields at once. The returned keys
// must not overlap with single-field rules or other multi rules of the set.
type MultiRule func(src Document) (Document, error)

// RuleSet is the edge From -> To of one schema's migration graph.
type RuleSet struct {
	Name   string
	Schema string
	From   Version
	To     Version
	Fields map[string]Rule
	Multi  []MultiRule
}

func (rs *RuleSet) validate() error {
	if rs.Schema == "" {
		return fmt.Errorf("%w: %q has no schema name", ErrInvalidRuleSet, rs.Name)
	}
	if rs.From == rs.To {
		return fmt.Errorf("%w: %q maps %s onto itself", ErrInvalidRuleSet, rs.Name, rs.From)
	}
	for field, rule := range rs.Fields {
		if rule == nil {
			return fmt.Errorf("%w: %q field %q has no rule", ErrInvalidRuleSet, rs.Name, field)
		}
	}
	for i, m := range rs.Multi {
		if m == nil {
			return fmt.Errorf("%w: %q multi rule %d is nil", ErrInvalidRuleSet, rs.Name, i)
		}
	}
	return nil
}

// apply evaluates every rule against src and writes results into out.
// Single-field rules run in sorted field order, multi rules in declaration
// order after them.
func (rs *RuleSet) apply(src, out Document) error {
	fields := make([]string, 0, len(rs.Fields))
	for f := range rs.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	written := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		v, err := rs.Fields[f].Apply(src)
		if err != nil {
			return fmt.Errorf("%w: %s field %q: %v", ErrRuleFailed, rs.Name, f, err)
		}
		out[f] = v
		written[f] = struct{}{}
	}
	for i, m := range rs.Multi {
		res, err := m(src)
		if err != nil {
			return fmt.Errorf("%w: %s multi rule %d: %v", ErrRuleFailed, rs.Name, i, err)
		}
		for k, v := range res {
			if _, dup := written[k]; dup {
				return fmt.Errorf("%w: %s writes %q twice", ErrRuleFailed, rs.Name, k)
			}
			out[k] = v
			written[k] = struct{}{}
		}
	}
	return nil
}

func (rs *RuleSet) String() string {
	return fmt.Sprintf("%s[%s %s->%s]", rs.Name, rs.Schema, rs.From, rs.To)
}
