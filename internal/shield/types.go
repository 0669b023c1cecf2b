package shield

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity ranks how dangerous a finding is.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = [...]string{"none", "low", "medium", "high", "critical"}

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	if s < SeverityNone || s > SeverityCritical {
		return "unknown"
	}
	return severityNames[s]
}

// Weight returns the scoring weight of the severity, in [0, 1].
func (s Severity) Weight() float64 {
	switch s {
	case SeverityLow:
		return 0.25
	case SeverityMedium:
		return 0.5
	case SeverityHigh:
		return 0.75
	case SeverityCritical:
		return 1.0
	default:
		return 0
	}
}

// ParseSeverity converts a severity name to its Severity value.
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if n == name {
			return Severity(i), nil
		}
	}
	return SeverityNone, fmt.Errorf("unknown severity: %s", name)
}

// MarshalJSON encodes the severity as its string name.
func (s Severity) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a severity from its string name.
func (s *Severity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSeverity(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Entity is a single detected span of sensitive or malicious text.
// Start and End are byte offsets into the scanned text. Text holds
// either the raw match or a masked form, depending on the scanner's
// redact setting.
type Entity struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Confidence float64 `json:"confidence"`
}

// RiskFactor summarizes all matches of one detection rule. Type is the
// scanner category; Metadata carries the rule label and match count.
type RiskFactor struct {
	Type        string            `json:"type"`
	Description string            `json:"description"`
	Severity    Severity          `json:"severity"`
	Confidence  float64           `json:"confidence"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ScanResult is the outcome of scanning one piece of text.
type ScanResult struct {
	SanitizedText string            `json:"sanitized_text"`
	IsValid       bool              `json:"is_valid"`
	RiskScore     float64           `json:"risk_score"`
	Entities      []Entity          `json:"entities"`
	RiskFactors   []RiskFactor      `json:"risk_factors"`
	Severity      Severity          `json:"severity"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Duration      time.Duration     `json:"duration_ns"`
}

// Scanner inspects text and reports what it finds. Implementations are
// stateless after construction and safe for concurrent use; anything
// that can fail (bad custom pattern, out-of-range setting) must fail in
// the constructor, never during a scan.
type Scanner interface {
	Name() string
	Scan(text string) *ScanResult
}
