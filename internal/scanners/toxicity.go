package scanners

import (
	"regexp"
	"strings"
	"time"

	"github.com/llm-shield/shield/internal/shield"
)

// toxicityConfidenceCeiling caps risk factor confidence growth for
// toxicity rules.
const toxicityConfidenceCeiling = 0.95

// defaultAllowList holds lowercased match texts that are dropped even
// when a rule fires, covering compounds that embed an offensive word
// without being one.
var defaultAllowList = []string{
	"scunthorpe",
	"shitake",
	"mishit",
}

// ToxicityConfig configures the toxicity scanner.
type ToxicityConfig struct {
	// AllowList extends the built-in allow-list with additional
	// lowercased terms to ignore.
	AllowList []string `yaml:"allow_list" mapstructure:"allow_list"`
}

// DefaultToxicityConfig returns the config used by the presets.
func DefaultToxicityConfig() ToxicityConfig {
	return ToxicityConfig{}
}

// Toxicity detects profanity, insults, threats and identity-based
// hostility. It flags but never masks: the sanitized text is always the
// input unchanged, and entities carry the verbatim match.
type Toxicity struct {
	rules []Rule
}

// NewToxicity creates a toxicity scanner from the given config.
func NewToxicity(cfg ToxicityConfig) (*Toxicity, error) {
	allowed := make(map[string]bool)
	for _, term := range defaultAllowList {
		allowed[term] = true
	}
	for _, term := range cfg.AllowList {
		allowed[strings.ToLower(term)] = true
	}

	notAllowed := func(match string) bool {
		return !allowed[strings.ToLower(match)]
	}

	rules := toxicityRules()
	for i := range rules {
		rules[i].Validate = notAllowed
	}

	return &Toxicity{rules: rules}, nil
}

// Name returns the scanner category.
func (t *Toxicity) Name() string { return "toxicity" }

// Scan runs the toxicity rule table over text. Redaction is always off
// for this category.
func (t *Toxicity) Scan(text string) *shield.ScanResult {
	return matchRules(t.Name(), t.rules, text, false, toxicityConfidenceCeiling, time.Now())
}

// toxicityRules builds the built-in toxicity rule table. The profanity
// pattern expands to the whole surrounding word so that compounds like
// "shitake" surface as the full word and the allow-list can clear them.
func toxicityRules() []Rule {
	return []Rule{
		{
			Label:      "threat",
			Pattern:    regexp.MustCompile(`(?i)\b(?:(?:kill|hurt|destroy|murder|beat)\s+(?:you|him|her|them|yourself)|you(?:'re| are) dead|i(?:'ll| will) (?:find|get|hurt|kill) you)\b`),
			Severity:   shield.SeverityCritical,
			Confidence: 0.90,
		},
		{
			Label:      "profanity",
			Pattern:    regexp.MustCompile(`(?i)\b[a-z]*(?:fuck|shit|bitch|cunt)[a-z]*\b`),
			Severity:   shield.SeverityHigh,
			Confidence: 0.80,
		},
		{
			Label:      "insult",
			Pattern:    regexp.MustCompile(`(?i)\b(?:idiot|stupid|moron|imbecile|dumbass|asshole|pathetic|worthless|useless)\b`),
			Severity:   shield.SeverityMedium,
			Confidence: 0.60,
		},
		{
			Label:      "identity_hate",
			Pattern:    regexp.MustCompile(`(?i)\b(?:i\s+)?hate\s+(?:you|them|all of you|everyone|those people)\b`),
			Severity:   shield.SeverityHigh,
			Confidence: 0.70,
		},
	}
}
