// Package targeting evaluates audience rules against a subject and its
// request context.
package targeting

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"splitEngine/business/bucketing"
	"splitEngine/domain"
)

// Matches evaluates rule for subjectID. Order: excludeIds, includeIds, leaf
// predicates (all must hold), audience percentage.
func Matches(rule domain.Targeting, campaignKey, subjectID string, attrs map[string]any) bool {
	if slices.Contains(rule.ExcludeIDs, subjectID) {
		return false
	}

	if slices.Contains(rule.IncludeIDs, subjectID) {
		return true
	}

	for _, p := range rule.Rules {
		if !EvalPredicate(p, attrs) {
			return false
		}
	}

	if rule.Percentage != nil && *rule.Percentage < 100 {
		return bucketing.Bucket(bucketing.AudienceSeed(campaignKey), subjectID)*100 < *rule.Percentage
	}

	return true
}

// EvalPredicate reports whether a single leaf holds. A missing attribute makes
// every operator false, including the negative ones.
func EvalPredicate(p domain.Predicate, attrs map[string]any) bool {
	actual, ok := attrs[p.Attribute]
	if !ok || actual == nil {
		return false
	}

	switch p.Operator {
	case domain.OpEquals:
		return equal(actual, p.Value)
	case domain.OpNotEquals:
		return !equal(actual, p.Value)
	case domain.OpContains:
		return contains(actual, p.Value)
	case domain.OpGreaterThan:
		c, ok := compare(actual, p.Value)
		return ok && c > 0
	case domain.OpLessThan:
		c, ok := compare(actual, p.Value)
		return ok && c < 0
	case domain.OpIn:
		return inList(actual, p.Value)
	case domain.OpNotIn:
		list, ok := p.Value.([]any)
		if !ok {
			if ss, isStrings := p.Value.([]string); isStrings {
				return !slices.ContainsFunc(ss, func(s string) bool { return equal(actual, s) })
			}
			return false
		}
		return !slices.ContainsFunc(list, func(v any) bool { return equal(actual, v) })
	}
	return false
}

// Validate rejects rule sets the evaluator cannot interpret.
func Validate(rule domain.Targeting) error {
	if rule.Percentage != nil && (*rule.Percentage < 0 || *rule.Percentage > 100) {
		return errors.Join(domain.ErrInvalidConfiguration, errors.New("audience percentage must be between 0 and 100"))
	}
	for i, p := range rule.Rules {
		if p.Attribute == "" {
			return errors.Join(domain.ErrInvalidConfiguration, fmt.Errorf("rule %d: attribute is required", i))
		}
		if !p.Operator.Valid() {
			return errors.Join(domain.ErrInvalidConfiguration, fmt.Errorf("rule %d: unknown operator %q", i, p.Operator))
		}
		if p.Operator == domain.OpIn || p.Operator == domain.OpNotIn {
			if !isList(p.Value) {
				return errors.Join(domain.ErrInvalidConfiguration, fmt.Errorf("rule %d: %s requires a list value", i, p.Operator))
			}
		}
	}
	return nil
}

func isList(v any) bool {
	switch v.(type) {
	case []any, []string:
		return true
	}
	return false
}

func inList(actual, value any) bool {
	switch list := value.(type) {
	case []any:
		return slices.ContainsFunc(list, func(v any) bool { return equal(actual, v) })
	case []string:
		return slices.ContainsFunc(list, func(v string) bool { return equal(actual, v) })
	}
	return false
}

func contains(actual, value any) bool {
	switch a := actual.(type) {
	case string:
		s, ok := value.(string)
		return ok && strings.Contains(a, s)
	case []any:
		return slices.ContainsFunc(a, func(v any) bool { return equal(v, value) })
	case []string:
		return slices.ContainsFunc(a, func(v string) bool { return equal(v, value) })
	}
	return false
}

func equal(a, b any) bool {
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// compare orders numbers numerically and strings lexically.
func compare(a, b any) (int, bool) {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
