package scanners

import (
	"regexp"
	"time"

	"github.com/llm-shield/shield/internal/shield"
)

// injectionConfidenceCeiling caps risk factor confidence growth for
// injection rules.
const injectionConfidenceCeiling = 0.98

// InjectionConfig configures the prompt-injection scanner.
type InjectionConfig struct {
	// DisableJailbreak drops the jailbreak rule group, for deployments
	// that tolerate persona-switching prompts.
	DisableJailbreak bool `yaml:"disable_jailbreak" mapstructure:"disable_jailbreak"`

	// DisableRoleManipulation drops the role-manipulation rule group,
	// for applications whose legitimate prompts assign roles.
	DisableRoleManipulation bool `yaml:"disable_role_manipulation" mapstructure:"disable_role_manipulation"`
}

// DefaultInjectionConfig returns the config used by the presets.
func DefaultInjectionConfig() InjectionConfig {
	return InjectionConfig{}
}

// Injection detects prompt-injection attempts: instruction overrides,
// system prompt extraction, jailbreak phrases, role manipulation and
// delimiter smuggling. Matches are reported but never masked.
type Injection struct {
	rules []Rule
}

// NewInjection creates a prompt-injection scanner from the given config.
func NewInjection(cfg InjectionConfig) (*Injection, error) {
	var rules []Rule
	for _, rule := range injectionRules() {
		if cfg.DisableJailbreak && rule.Label == "jailbreak" {
			continue
		}
		if cfg.DisableRoleManipulation && rule.Label == "role_manipulation" {
			continue
		}
		rules = append(rules, rule)
	}

	return &Injection{rules: rules}, nil
}

// Name returns the scanner category.
func (i *Injection) Name() string { return "prompt-injection" }

// Scan runs the injection rule table over text. Redaction is always
// off for this category.
func (i *Injection) Scan(text string) *shield.ScanResult {
	return matchRules(i.Name(), i.rules, text, false, injectionConfidenceCeiling, time.Now())
}

// injectionRules builds the built-in injection rule table.
func injectionRules() []Rule {
	return []Rule{
		{
			Label:      "instruction_override",
			Pattern:    regexp.MustCompile(`(?i)(?:\b(?:ignore|disregard|forget|override)\s+(?:all\s+|any\s+)?(?:the\s+)?(?:previous|prior|above|earlier)\s+(?:instructions?|prompts?|rules?|directions?|context)\b|\b(?:ignore|disregard)\s+the\s+above\b|\bnew\s+instructions?\s*:)`),
			Severity:   shield.SeverityCritical,
			Confidence: 0.95,
		},
		{
			Label:      "system_prompt_attack",
			Pattern:    regexp.MustCompile(`(?i)\b(?:reveal|show|print|display|repeat|output|leak)\b[^.!?]{0,40}\b(?:system\s+prompt|hidden\s+prompt|your\s+(?:initial\s+|original\s+)?(?:instructions|prompt))\b`),
			Severity:   shield.SeverityHigh,
			Confidence: 0.90,
		},
		{
			Label:      "jailbreak",
			Pattern:    regexp.MustCompile(`(?i)\b(?:jailbreak|dan\s+mode|developer\s+mode|do\s+anything\s+now|without\s+(?:any\s+)?(?:restrictions|limitations|filters)|no\s+(?:longer\s+|more\s+)?restrictions|unrestricted\s+(?:ai|mode))\b`),
			Severity:   shield.SeverityCritical,
			Confidence: 0.85,
		},
		{
			Label:      "role_manipulation",
			Pattern:    regexp.MustCompile(`(?i)\b(?:you\s+are\s+now|act\s+as|pretend\s+(?:to\s+be|you\s+are)|roleplay\s+as|simulate\s+(?:a|an|being)|from\s+now\s+on\s+you)\b`),
			Severity:   shield.SeverityHigh,
			Confidence: 0.80,
		},
		{
			Label:      "delimiter_injection",
			Pattern:    regexp.MustCompile("(?im)^\\s*(?:-{3,}|={3,}|#{3,}|`{3,})\\s*(?:system|instructions?|admin)\\b"),
			Severity:   shield.SeverityMedium,
			Confidence: 0.70,
		},
	}
}
