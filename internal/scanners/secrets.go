package scanners

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/llm-shield/shield/internal/shield"
)

// secretsConfidenceCeiling caps risk factor confidence growth for
// secret rules.
const secretsConfidenceCeiling = 0.99

// SecretsConfig configures the secrets scanner.
type SecretsConfig struct {
	// CustomRules extends the built-in table. Invalid patterns are
	// rejected at construction.
	CustomRules []CustomRule `yaml:"custom_rules" mapstructure:"custom_rules"`

	// Redact controls masking of entity text and tag replacement in
	// the sanitized text.
	Redact bool `yaml:"redact" mapstructure:"redact"`
}

// DefaultSecretsConfig returns the config used by the presets.
func DefaultSecretsConfig() SecretsConfig {
	return SecretsConfig{Redact: true}
}

// Secrets detects leaked credentials: cloud and API keys, tokens,
// private key material, signed JWTs and connection strings with
// embedded passwords. Detection is pure pattern matching; the vendor
// prefixes are distinctive enough that no further validation runs.
type Secrets struct {
	rules  []Rule
	redact bool
}

// NewSecrets creates a secrets scanner from the given config.
func NewSecrets(cfg SecretsConfig) (*Secrets, error) {
	rules := secretRules()

	custom, err := compileCustomRules(cfg.CustomRules)
	if err != nil {
		return nil, fmt.Errorf("failed to configure secrets scanner: %w", err)
	}
	rules = append(rules, custom...)

	return &Secrets{rules: rules, redact: cfg.Redact}, nil
}

// Name returns the scanner category.
func (s *Secrets) Name() string { return "secrets" }

// Scan runs the secret rule table over text.
func (s *Secrets) Scan(text string) *shield.ScanResult {
	return matchRules(s.Name(), s.rules, text, s.redact, secretsConfidenceCeiling, time.Now())
}

// secretRules builds the built-in secret rule table.
func secretRules() []Rule {
	return []Rule{
		{
			Label:      "aws_access_key",
			Pattern:    regexp.MustCompile(`\b(?:AKIA|ABIA|ACCA|ASIA)[0-9A-Z]{16}\b`),
			Severity:   shield.SeverityCritical,
			Confidence: 0.95,
			Mask:       maskSecret,
		},
		{
			Label:      "aws_secret_key",
			Pattern:    regexp.MustCompile(`(?i)\baws_secret_access_key\b\s*[:=]\s*["']?[A-Za-z0-9/+=]{40}["']?`),
			Severity:   shield.SeverityCritical,
			Confidence: 0.90,
			Mask:       maskSecret,
		},
		{
			Label:      "github_token",
			Pattern:    regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,251}\b`),
			Severity:   shield.SeverityCritical,
			Confidence: 0.95,
			Mask:       maskSecret,
		},
		{
			Label:      "gitlab_token",
			Pattern:    regexp.MustCompile(`\bglpat-[A-Za-z0-9_-]{20,}`),
			Severity:   shield.SeverityCritical,
			Confidence: 0.95,
			Mask:       maskSecret,
		},
		{
			Label:      "slack_token",
			Pattern:    regexp.MustCompile(`\bxox[baprs]-[0-9A-Za-z-]{10,}`),
			Severity:   shield.SeverityHigh,
			Confidence: 0.95,
			Mask:       maskSecret,
		},
		{
			Label:      "slack_webhook",
			Pattern:    regexp.MustCompile(`https://hooks\.slack\.com/services/T[A-Za-z0-9_]+/B[A-Za-z0-9_]+/[A-Za-z0-9_]+`),
			Severity:   shield.SeverityHigh,
			Confidence: 0.95,
			Mask:       maskSecret,
		},
		{
			Label:      "stripe_key",
			Pattern:    regexp.MustCompile(`\bsk_(?:test|live)_[0-9a-zA-Z]{24,}\b`),
			Severity:   shield.SeverityCritical,
			Confidence: 0.95,
			Mask:       maskSecret,
		},
		{
			Label:      "anthropic_key",
			Pattern:    regexp.MustCompile(`\bsk-ant-api\d{2}-[A-Za-z0-9_-]{24,}`),
			Severity:   shield.SeverityCritical,
			Confidence: 0.95,
			Mask:       maskSecret,
		},
		{
			Label:      "openai_key",
			Pattern:    regexp.MustCompile(`\bsk-[A-Za-z0-9]{48}\b`),
			Severity:   shield.SeverityCritical,
			Confidence: 0.95,
			Mask:       maskSecret,
		},
		{
			Label:      "huggingface_token",
			Pattern:    regexp.MustCompile(`\bhf_[A-Za-z0-9]{34,}\b`),
			Severity:   shield.SeverityHigh,
			Confidence: 0.95,
			Mask:       maskSecret,
		},
		{
			Label:      "google_api_key",
			Pattern:    regexp.MustCompile(`\bAIza[0-9A-Za-z_-]{35}`),
			Severity:   shield.SeverityCritical,
			Confidence: 0.95,
			Mask:       maskSecret,
		},
		{
			Label:      "jwt",
			Pattern:    regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`),
			Severity:   shield.SeverityHigh,
			Confidence: 0.90,
			Mask:       maskSecret,
		},
		{
			Label:      "private_key",
			Pattern:    regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`),
			Severity:   shield.SeverityCritical,
			Confidence: 0.99,
			Mask:       maskSecret,
		},
		{
			Label:      "database_url",
			Pattern:    regexp.MustCompile(`\b(?:postgres(?:ql)?|mysql|mongodb(?:\+srv)?|redis)://[^\s:@/]+:[^\s@]+@[^\s"']+`),
			Severity:   shield.SeverityHigh,
			Confidence: 0.90,
			Mask:       maskSecret,
		},
	}
}

// maskSecret fully hides short values; longer ones keep the first and
// last four characters around a fixed-width mask so a leaked key can
// still be identified without being usable.
func maskSecret(match string) string {
	if len(match) <= 8 {
		return strings.Repeat("*", len(match))
	}
	return match[:4] + "********" + match[len(match)-4:]
}
