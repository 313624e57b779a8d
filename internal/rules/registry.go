package rules

import (
	"fmt"
	"strings"
	"sync"
)

const (
	SetWebDesign   = "web_design"
	SetVoiceAI     = "voice_ai"
	SetSoftwareDev = "software_dev"
	SetGeneric     = "generic"
)

// RuleSet is a named group of rules scoped to a family of project types.
type RuleSet struct {
	Name     string
	Keywords []string
	Rules    []Rule
}

// Registry is immutable after New returns.
type Registry struct {
	sets    []RuleSet
	generic RuleSet
}

// New validates rule id uniqueness across all sets and builds a registry.
// Typed sets are matched in the given order; generic is always appended.
func New(generic RuleSet, typed ...RuleSet) (*Registry, error) {
	seen := map[string]string{}
	all := append(append([]RuleSet(nil), typed...), generic)
	for _, set := range all {
		for _, r := range set.Rules {
			if r.ID == "" {
				return nil, fmt.Errorf("rule set %s contains a rule without id", set.Name)
			}
			if prev, dup := seen[r.ID]; dup {
				return nil, fmt.Errorf("duplicate rule id %s in sets %s and %s", r.ID, prev, set.Name)
			}
			seen[r.ID] = set.Name
		}
	}
	reg := &Registry{generic: copySet(generic)}
	for _, set := range typed {
		reg.sets = append(reg.sets, copySet(set))
	}
	return reg, nil
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the built-in registry, built on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		reg, err := New(genericSet(), webDesignSet(), voiceAISet(), softwareDevSet())
		if err != nil {
			panic(err)
		}
		defaultReg = reg
	})
	return defaultReg
}

// NormalizeLabel lower-cases a project type label and strips whitespace and hyphens.
func NormalizeLabel(label string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '-':
			return -1
		}
		return r
	}, strings.ToLower(label))
}

// MatchSets returns the names of the typed sets a label routes to, followed by generic.
func (g *Registry) MatchSets(label string) []string {
	norm := NormalizeLabel(label)
	var names []string
	for _, set := range g.sets {
		if matches(norm, set.Keywords) {
			names = append(names, set.Name)
		}
	}
	return append(names, g.generic.Name)
}

// ForProjectType returns the rules for a label in registry order. Unmatched
// labels get only the generic rules.
func (g *Registry) ForProjectType(label string) []Rule {
	norm := NormalizeLabel(label)
	var out []Rule
	for _, set := range g.sets {
		if matches(norm, set.Keywords) {
			out = append(out, set.Rules...)
		}
	}
	return append(out, g.generic.Rules...)
}

// Sets returns copies of every set, generic last.
func (g *Registry) Sets() []RuleSet {
	out := make([]RuleSet, 0, len(g.sets)+1)
	for _, set := range g.sets {
		out = append(out, copySet(set))
	}
	return append(out, copySet(g.generic))
}

// Lookup finds a rule by id.
func (g *Registry) Lookup(id string) (Rule, bool) {
	for _, set := range g.Sets() {
		for _, r := range set.Rules {
			if r.ID == id {
				return r, true
			}
		}
	}
	return Rule{}, false
}

func matches(norm string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(norm, kw) {
			return true
		}
	}
	return false
}

func copySet(s RuleSet) RuleSet {
	return RuleSet{
		Name:     s.Name,
		Keywords: append([]string(nil), s.Keywords...),
		Rules:    append([]Rule(nil), s.Rules...),
	}
}
