// Package scanners implements the four built-in detectors: pii,
// secrets, toxicity and prompt-injection. Each scanner compiles an
// immutable rule table at construction and is stateless afterwards.
package scanners

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/llm-shield/shield/internal/shield"
)

// confidenceStep is how much a rule's confidence grows per additional
// match beyond the first, up to the category ceiling.
const confidenceStep = 0.02

// Rule is one detection pattern in a scanner's table.
type Rule struct {
	Label      string
	Pattern    *regexp.Regexp
	Severity   shield.Severity
	Confidence float64

	// Validate rejects pattern matches that fail semantic checks, such
	// as a credit card number failing Luhn. Nil accepts every match.
	Validate func(match string) bool

	// Mask produces the display form of a match when redaction is on.
	// Nil leaves the match verbatim.
	Mask func(match string) string
}

// matchRules runs a rule table over text and builds the scan result.
// Rules are evaluated in table order; a match overlapping a span already
// accepted by an earlier rule is dropped, so table order doubles as
// priority. Accepted matches are grouped by rule label into one risk
// factor each, with confidence growing monotonically with match count
// up to ceiling.
func matchRules(category string, rules []Rule, text string, redact bool, ceiling float64, started time.Time) *shield.ScanResult {
	var (
		entities []shield.Entity
		spans    [][2]int
	)
	counts := make(map[string]int)

	for _, rule := range rules {
		locs := rule.Pattern.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			if overlapsAny(spans, loc[0], loc[1]) {
				continue
			}

			match := text[loc[0]:loc[1]]
			if rule.Validate != nil && !rule.Validate(match) {
				continue
			}

			display := match
			if redact && rule.Mask != nil {
				display = rule.Mask(match)
			}

			entities = append(entities, shield.Entity{
				Type:       rule.Label,
				Text:       display,
				Start:      loc[0],
				End:        loc[1],
				Confidence: rule.Confidence,
			})
			spans = append(spans, [2]int{loc[0], loc[1]})
			counts[rule.Label]++
		}
	}

	var factors []shield.RiskFactor
	for _, rule := range rules {
		n := counts[rule.Label]
		if n == 0 {
			continue
		}

		confidence := rule.Confidence + confidenceStep*float64(n-1)
		if confidence > ceiling {
			confidence = ceiling
		}

		factors = append(factors, shield.RiskFactor{
			Type:        category,
			Description: fmt.Sprintf("detected %d %s value(s)", n, rule.Label),
			Severity:    rule.Severity,
			Confidence:  confidence,
			Metadata: map[string]string{
				"rule":  rule.Label,
				"count": strconv.Itoa(n),
			},
		})
	}

	sanitized := text
	if redact && len(entities) > 0 {
		sanitized = shield.Redact(text, entities)
	}

	return shield.NewResult(sanitized, entities, factors, started)
}

// overlapsAny reports whether [start, end) intersects any accepted span.
func overlapsAny(spans [][2]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && end > s[0] {
			return true
		}
	}
	return false
}

// compileCustomRules turns user-supplied patterns into rules, failing
// on the first invalid pattern or severity.
func compileCustomRules(custom []CustomRule) ([]Rule, error) {
	var rules []Rule
	for _, c := range custom {
		if c.Label == "" {
			return nil, fmt.Errorf("custom rule with empty label")
		}

		pattern, err := regexp.Compile(c.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern for custom rule %q: %w", c.Label, err)
		}

		severity, err := shield.ParseSeverity(c.Severity)
		if err != nil {
			return nil, fmt.Errorf("invalid severity for custom rule %q: %w", c.Label, err)
		}

		confidence := c.Confidence
		if confidence <= 0 || confidence > 1 {
			return nil, fmt.Errorf("invalid confidence for custom rule %q: %v", c.Label, c.Confidence)
		}

		rules = append(rules, Rule{
			Label:      c.Label,
			Pattern:    pattern,
			Severity:   severity,
			Confidence: confidence,
			Mask:       maskSecret,
		})
	}
	return rules, nil
}

// CustomRule is a user-supplied detection pattern, validated at
// scanner construction.
type CustomRule struct {
	Label      string  `yaml:"label" mapstructure:"label"`
	Pattern    string  `yaml:"pattern" mapstructure:"pattern"`
	Severity   string  `yaml:"severity" mapstructure:"severity"`
	Confidence float64 `yaml:"confidence" mapstructure:"confidence"`
}
