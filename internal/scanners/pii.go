package scanners

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/llm-shield/shield/internal/shield"
)

// piiConfidenceCeiling caps risk factor confidence growth for PII rules.
const piiConfidenceCeiling = 0.99

// PIIConfig configures the PII scanner.
type PIIConfig struct {
	// Detectors lists the rule labels to enable. Empty or ["all"]
	// enables every built-in rule. Unknown labels are rejected.
	Detectors []string `yaml:"detectors" mapstructure:"detectors"`

	// Redact controls whether entity text is masked and whether the
	// sanitized text carries bracketed tags in place of matches.
	Redact bool `yaml:"redact" mapstructure:"redact"`
}

// DefaultPIIConfig returns the config used by the presets: all
// detectors enabled, redaction on.
func DefaultPIIConfig() PIIConfig {
	return PIIConfig{Detectors: []string{"all"}, Redact: true}
}

// PII detects personally identifiable information: credit cards, SSNs,
// email addresses, phone numbers, IP addresses and ID documents.
type PII struct {
	rules  []Rule
	redact bool
}

// NewPII creates a PII scanner from the given config.
func NewPII(cfg PIIConfig) (*PII, error) {
	all := piiRules()

	rules, err := selectRules(all, cfg.Detectors)
	if err != nil {
		return nil, fmt.Errorf("failed to configure pii scanner: %w", err)
	}

	return &PII{rules: rules, redact: cfg.Redact}, nil
}

// Name returns the scanner category.
func (p *PII) Name() string { return "pii" }

// Scan runs the PII rule table over text.
func (p *PII) Scan(text string) *shield.ScanResult {
	return matchRules(p.Name(), p.rules, text, p.redact, piiConfidenceCeiling, time.Now())
}

// selectRules filters a rule table down to the requested labels.
func selectRules(all []Rule, detectors []string) ([]Rule, error) {
	if len(detectors) == 0 {
		return all, nil
	}

	enabled := make(map[string]bool)
	for _, name := range detectors {
		if name == "all" {
			return all, nil
		}

		found := false
		for _, rule := range all {
			if rule.Label == name {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown detector: %s", name)
		}
		enabled[name] = true
	}

	var rules []Rule
	for _, rule := range all {
		if enabled[rule.Label] {
			rules = append(rules, rule)
		}
	}
	return rules, nil
}

// piiRules builds the built-in PII rule table. Order matters: earlier
// rules win overlapping spans, so credit cards claim digit runs before
// the phone rule can.
func piiRules() []Rule {
	return []Rule{
		{
			Label:      "credit_card",
			Pattern:    regexp.MustCompile(`\b(?:4\d{3}|5[1-5]\d{2}|6(?:011|5\d{2}))[-\s]?(?:\d{4}[-\s]?){2}\d{4}\b`),
			Severity:   shield.SeverityCritical,
			Confidence: 0.99,
			Validate:   validLuhn,
			Mask:       maskLastFour,
		},
		{
			Label:      "ssn",
			Pattern:    regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
			Severity:   shield.SeverityHigh,
			Confidence: 0.85,
			Validate:   validSSN,
			Mask:       maskLastFour,
		},
		{
			Label:      "email",
			Pattern:    regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
			Severity:   shield.SeverityMedium,
			Confidence: 0.95,
			Validate:   validEmail,
			Mask:       maskEmail,
		},
		{
			Label:      "phone",
			Pattern:    regexp.MustCompile(`(?:\+1[-.\s]?)?\(?\b\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
			Severity:   shield.SeverityMedium,
			Confidence: 0.90,
			Mask:       maskLastFour,
		},
		{
			Label:      "ip_address",
			Pattern:    regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\.){3}(?:25[0-5]|2[0-4]\d|1\d\d|[1-9]?\d)\b`),
			Severity:   shield.SeverityLow,
			Confidence: 0.90,
			Mask:       maskAll,
		},
		{
			Label:      "passport",
			Pattern:    regexp.MustCompile(`\b[A-Z]{1,2}\d{7}\b`),
			Severity:   shield.SeverityHigh,
			Confidence: 0.70,
			Mask:       maskAll,
		},
		{
			Label:      "drivers_license",
			Pattern:    regexp.MustCompile(`\b[A-Z]\d{8,12}\b`),
			Severity:   shield.SeverityMedium,
			Confidence: 0.70,
			Mask:       maskAll,
		},
	}
}

// validLuhn checks the Luhn checksum over the digits of a candidate
// card number, ignoring separators.
func validLuhn(match string) bool {
	var digits []int
	for _, r := range match {
		if r >= '0' && r <= '9' {
			digits = append(digits, int(r-'0'))
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	for i := 0; i < len(digits); i++ {
		d := digits[len(digits)-1-i]
		if i%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}

// validSSN rejects area codes that the SSA never issues: 000, 666 and
// anything 900 or above.
func validSSN(match string) bool {
	if len(match) < 3 {
		return false
	}
	area := match[:3]
	if area == "000" || area == "666" {
		return false
	}
	return area < "900"
}

// validEmail requires an @ with a dot somewhere after it.
func validEmail(match string) bool {
	at := strings.Index(match, "@")
	if at <= 0 {
		return false
	}
	return strings.Contains(match[at:], ".")
}

// maskEmail keeps the first two characters of the local part and the
// full domain: "jo***@example.com".
func maskEmail(match string) string {
	at := strings.Index(match, "@")
	if at <= 0 {
		return maskAll(match)
	}

	local := match[:at]
	if len(local) > 2 {
		local = local[:2]
	}
	return local + "***" + match[at:]
}

// maskLastFour hides everything except the last four characters.
func maskLastFour(match string) string {
	if len(match) <= 4 {
		return strings.Repeat("*", len(match))
	}
	return strings.Repeat("*", len(match)-4) + match[len(match)-4:]
}

// maskAll hides the entire match.
func maskAll(match string) string {
	return strings.Repeat("*", len(match))
}
