package shield

import (
	"encoding/json"
	"testing"
)

func TestSeverityOrdering(t *testing.T) {
	ordered := []Severity{SeverityNone, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

	for i := 1; i < len(ordered); i++ {
		if ordered[i-1] >= ordered[i] {
			t.Errorf("expected %s < %s", ordered[i-1], ordered[i])
		}
	}
}

func TestSeverityWeight(t *testing.T) {
	tests := []struct {
		severity Severity
		weight   float64
	}{
		{SeverityNone, 0},
		{SeverityLow, 0.25},
		{SeverityMedium, 0.5},
		{SeverityHigh, 0.75},
		{SeverityCritical, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.severity.String(), func(t *testing.T) {
			if got := tt.severity.Weight(); got != tt.weight {
				t.Errorf("Weight() = %v, want %v", got, tt.weight)
			}
		})
	}
}

func TestParseSeverity(t *testing.T) {
	t.Run("valid names", func(t *testing.T) {
		for _, name := range []string{"none", "low", "medium", "high", "critical"} {
			severity, err := ParseSeverity(name)
			if err != nil {
				t.Fatalf("ParseSeverity(%q) returned error: %v", name, err)
			}
			if severity.String() != name {
				t.Errorf("round trip mismatch: %q -> %q", name, severity.String())
			}
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		if _, err := ParseSeverity("fatal"); err == nil {
			t.Error("expected error for unknown severity name")
		}
	})
}

func TestSeverityJSON(t *testing.T) {
	data, err := json.Marshal(SeverityHigh)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `"high"` {
		t.Errorf("marshal = %s, want %q", data, `"high"`)
	}

	var severity Severity
	if err := json.Unmarshal([]byte(`"critical"`), &severity); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if severity != SeverityCritical {
		t.Errorf("unmarshal = %v, want %v", severity, SeverityCritical)
	}
}
