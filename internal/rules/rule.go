package rules

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"onboardline/internal/domain"
	"onboardline/internal/responses"
)

// Rule pairs a pure predicate with a pure item generator. Rules are created
// once at startup and shared read-only.
type Rule struct {
	ID           string
	Name         string
	Description  string
	ResponseKeys []string
	Priority     int
	Condition    func(r responses.Responses) bool
	Generate     func(r responses.Responses, c domain.GenerationContext) []domain.Item
}

// PredicateFailure is reported when a rule's condition or generator panics.
type PredicateFailure struct {
	RuleID string
	Stage  string
	Cause  any
}

func (e *PredicateFailure) Error() string {
	return fmt.Sprintf("rule %s: %s failed: %v", e.RuleID, e.Stage, e.Cause)
}

// Evaluate runs the rule's condition. A panicking condition is reported as a
// PredicateFailure and counts as non-matching.
func Evaluate(rule Rule, r responses.Responses) (matched bool, err error) {
	if rule.Condition == nil {
		return false, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			matched = false
			err = &PredicateFailure{RuleID: rule.ID, Stage: "condition", Cause: rec}
		}
	}()
	return rule.Condition(r), nil
}

func generate(rule Rule, r responses.Responses, c domain.GenerationContext) (items []domain.Item, err error) {
	if rule.Generate == nil {
		return nil, nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			items = nil
			err = &PredicateFailure{RuleID: rule.ID, Stage: "generate", Cause: rec}
		}
	}()
	return rule.Generate(r, c), nil
}

// SortByPriority returns a copy ordered by priority descending. Rules with
// equal priority keep their registry order.
func SortByPriority(in []Rule) []Rule {
	out := append([]Rule(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// Synthesizer turns rule matches into a flat candidate list.
type Synthesizer struct {
	Logger *zap.Logger
}

func (s Synthesizer) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

// Synthesize evaluates rules in priority order and concatenates the items of
// every matching rule. No deduplication happens here.
func (s Synthesizer) Synthesize(set []Rule, r responses.Responses, c domain.GenerationContext) []domain.Item {
	var out []domain.Item
	for _, rule := range SortByPriority(set) {
		ok, err := Evaluate(rule, r)
		if err != nil {
			s.logger().Warn("rule condition failed", zap.String("rule_id", rule.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		items, err := generate(rule, r, c)
		if err != nil {
			s.logger().Warn("rule generator failed", zap.String("rule_id", rule.ID), zap.Error(err))
			continue
		}
		for _, it := range items {
			out = append(out, stamp(it, rule, c))
		}
	}
	return out
}

func stamp(it domain.Item, rule Rule, c domain.GenerationContext) domain.Item {
	it = it.Clone()
	it.SourceType = domain.SourceRule
	it.SourceID = c.SessionID
	meta := map[string]any{
		"ruleId":       rule.ID,
		"ruleName":     rule.Name,
		"responseKeys": append([]string(nil), rule.ResponseKeys...),
		"triggeredAt":  c.CompletionTimestamp.UTC().Format(time.RFC3339),
	}
	for k, v := range it.SourceMetadata {
		if _, taken := meta[k]; !taken {
			meta[k] = v
		}
	}
	it.SourceMetadata = meta
	return it
}
