package shield

import (
	"sort"
	"strings"
	"time"
)

// RiskScore computes the aggregate risk for a set of risk factors: the
// mean of severity weight times confidence, clamped to [0, 1]. An empty
// set scores zero.
func RiskScore(factors []RiskFactor) float64 {
	if len(factors) == 0 {
		return 0
	}

	var sum float64
	for _, f := range factors {
		sum += f.Severity.Weight() * f.Confidence
	}

	score := sum / float64(len(factors))
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// MaxSeverity returns the highest severity among the factors, or
// SeverityNone when there are none.
func MaxSeverity(factors []RiskFactor) Severity {
	max := SeverityNone
	for _, f := range factors {
		if f.Severity > max {
			max = f.Severity
		}
	}
	return max
}

// Redact replaces each entity's span in text with a bracketed uppercase
// tag derived from the entity type, e.g. "[SSN]" or "[AWS_ACCESS_KEY]".
// Spans are applied in descending start order so earlier offsets stay
// valid while later spans are rewritten. Malformed or overlapping spans
// are skipped.
func Redact(text string, entities []Entity) string {
	if len(entities) == 0 {
		return text
	}

	sorted := make([]Entity, len(entities))
	copy(sorted, entities)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start > sorted[j].Start
	})

	result := text
	lastStart := len(text) + 1
	for _, e := range sorted {
		if e.Start < 0 || e.End > len(text) || e.Start >= e.End {
			continue
		}
		if e.End > lastStart {
			continue
		}
		tag := "[" + strings.ToUpper(e.Type) + "]"
		result = result[:e.Start] + tag + result[e.End:]
		lastStart = e.Start
	}

	return result
}

// NewResult assembles a ScanResult from accepted entities and factors,
// computing the derived fields: IsValid holds exactly when there are no
// risk factors, RiskScore is the weighted mean over factors, Severity
// is the maximum factor severity, and Duration is measured from started.
func NewResult(sanitized string, entities []Entity, factors []RiskFactor, started time.Time) *ScanResult {
	if entities == nil {
		entities = []Entity{}
	}
	if factors == nil {
		factors = []RiskFactor{}
	}

	return &ScanResult{
		SanitizedText: sanitized,
		IsValid:       len(factors) == 0,
		RiskScore:     RiskScore(factors),
		Entities:      entities,
		RiskFactors:   factors,
		Severity:      MaxSeverity(factors),
		Duration:      time.Since(started),
	}
}
