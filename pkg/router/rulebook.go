package router

import (
	"fmt"
	"regexp"

	"github.com/pario-ai/glimpse/pkg/config"
	"github.com/pario-ai/glimpse/pkg/models"
)

// Rule answers a recognized window with a fixed response.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Answer  string
}

// Rulebook is an ordered list of rules; the first match wins.
type Rulebook struct {
	rules []Rule
}

// NewRulebook compiles rules from configuration.
func NewRulebook(cfgs []config.RuleConfig) (*Rulebook, error) {
	rb := &Rulebook{rules: make([]Rule, 0, len(cfgs))}
	for _, c := range cfgs {
		re, err := regexp.Compile(c.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", c.Name, err)
		}
		rb.rules = append(rb.rules, Rule{Name: c.Name, Pattern: re, Answer: c.Answer})
	}
	return rb, nil
}

// Match returns the first rule whose pattern matches the window title.
func (rb *Rulebook) Match(p *models.Payload) (Rule, bool) {
	if rb == nil {
		return Rule{}, false
	}
	for _, r := range rb.rules {
		if r.Pattern.MatchString(p.WindowTitle) {
			return r, true
		}
	}
	return Rule{}, false
}

// Len returns the number of rules.
func (rb *Rulebook) Len() int {
	if rb == nil {
		return 0
	}
	return len(rb.rules)
}
