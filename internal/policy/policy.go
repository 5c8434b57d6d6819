// Package policy decides whether a content item is eligible for submission.
package policy

import (
	"github.com/spunwebtech/wayback-submitter/internal/archive"
)

// Config is the eligibility configuration, loaded once per operation.
type Config struct {
	Enabled        bool
	AllowedTypes   []string
	SubmitOnUpdate bool
}

// Override is an injected predicate consulted last; it lets host systems
// veto a submission without modifying the built-in rules. A nil Override
// allows everything.
type Override func(item archive.ContentItem) bool

// Policy evaluates the eligibility rules. It is pure: no I/O, no side
// effects beyond reading its inputs.
type Policy struct {
	override Override
}

// New constructs a Policy with an optional override predicate.
func New(override Override) *Policy {
	return &Policy{override: override}
}

// ShouldSubmit applies the rules in order, short-circuiting on the first
// failure: enabled, allowed type, per-item exclusion, override.
func (p *Policy) ShouldSubmit(item archive.ContentItem, cfg Config) bool {
	if !cfg.Enabled {
		return false
	}
	if !containsType(cfg.AllowedTypes, item.Type) {
		return false
	}
	if item.Excluded {
		return false
	}
	if p.override != nil && !p.override(item) {
		return false
	}
	return true
}

func containsType(types []string, t string) bool {
	for _, allowed := range types {
		if allowed == t {
			return true
		}
	}
	return false
}
