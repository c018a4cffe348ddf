// Package fallback resolves a canned reply for an utterance when the remote
// responder cannot. Rules are evaluated top-to-bottom and the first match wins.
package fallback

import "strings"

// Predicate reports whether a rule applies. It receives the lower-cased utterance.
type Predicate func(lowered string) bool

// Rule pairs a predicate with the reply it produces.
type Rule struct {
	Name  string
	Match Predicate
	Reply string
}

// Keywords matches when the utterance contains any of the given words,
// compared case-insensitively.
func Keywords(words ...string) Predicate {
	lowered := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			lowered = append(lowered, w)
		}
	}

	return func(s string) bool {
		for _, w := range lowered {
			if strings.Contains(s, w) {
				return true
			}
		}
		return false
	}
}

// Resolver is an ordered rule table with a catch-all reply.
type Resolver struct {
	rules    []Rule
	catchAll string
}

// New builds a resolver. catchAll is returned when no rule matches.
func New(catchAll string, rules ...Rule) *Resolver {
	return &Resolver{rules: rules, catchAll: catchAll}
}

// Match returns the first rule matching utterance.
func (r *Resolver) Match(utterance string) (Rule, bool) {
	lowered := strings.ToLower(utterance)
	for _, rule := range r.rules {
		if rule.Match != nil && rule.Match(lowered) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Resolve returns the reply for utterance. It never returns an empty string
// unless the catch-all itself is empty.
func (r *Resolver) Resolve(utterance string) string {
	if rule, ok := r.Match(utterance); ok {
		return rule.Reply
	}
	return r.catchAll
}

// Rules returns a copy of the rule table.
func (r *Resolver) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// CatchAll returns the reply used when nothing matches.
func (r *Resolver) CatchAll() string {
	return r.catchAll
}

// Spec is the declarative, config-friendly form of a keyword rule.
type Spec struct {
	Name     string   `yaml:"name"     json:"name"`
	Keywords []string `yaml:"keywords" json:"keywords"`
	Reply    string   `yaml:"reply"    json:"reply"`
}

// FromSpecs builds a keyword resolver from declarative rules.
func FromSpecs(catchAll string, specs []Spec) *Resolver {
	rules := make([]Rule, 0, len(specs))
	for _, s := range specs {
		rules = append(rules, Rule{Name: s.Name, Match: Keywords(s.Keywords...), Reply: s.Reply})
	}
	return New(catchAll, rules...)
}
