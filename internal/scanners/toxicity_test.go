package scanners

import (
	"testing"
)

func newToxicityTest(t *testing.T) *Toxicity {
	t.Helper()
	scanner, err := NewToxicity(DefaultToxicityConfig())
	if err != nil {
		t.Fatalf("NewToxicity failed: %v", err)
	}
	return scanner
}

func TestToxicityDetection(t *testing.T) {
	scanner := newToxicityTest(t)

	tests := []struct {
		name  string
		text  string
		label string
	}{
		{"threat", "I will find you and hurt you", "threat"},
		{"profanity", "what the fuck is this", "profanity"},
		{"insult", "you absolute idiot", "insult"},
		{"identity hate", "I hate all of you", "identity_hate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scanner.Scan(tt.text)
			if result.IsValid {
				t.Fatalf("expected invalid result for %q", tt.text)
			}

			var found bool
			for _, e := range result.Entities {
				if e.Type == tt.label {
					found = true
				}
			}
			if !found {
				t.Errorf("no %s entity, got %+v", tt.label, result.Entities)
			}
		})
	}
}

func TestToxicityNeverMasks(t *testing.T) {
	scanner := newToxicityTest(t)

	text := "you are an idiot"
	result := scanner.Scan(text)
	if result.SanitizedText != text {
		t.Errorf("sanitized text changed: %q", result.SanitizedText)
	}
	for _, e := range result.Entities {
		if e.Text != text[e.Start:e.End] {
			t.Errorf("entity text %q does not match span %q", e.Text, text[e.Start:e.End])
		}
	}
}

func TestToxicityAllowList(t *testing.T) {
	t.Run("built-in terms pass", func(t *testing.T) {
		scanner := newToxicityTest(t)

		for _, text := range []string{
			"the shitake mushrooms were great",
			"he lives in Scunthorpe",
			"that was a mishit off the tee",
		} {
			result := scanner.Scan(text)
			if !result.IsValid {
				t.Errorf("allow-listed text flagged: %q (%+v)", text, result.Entities)
			}
		}
	})

	t.Run("custom terms extend the list", func(t *testing.T) {
		scanner, err := NewToxicity(ToxicityConfig{AllowList: []string{"Shitfield"}})
		if err != nil {
			t.Fatalf("NewToxicity failed: %v", err)
		}

		result := scanner.Scan("welcome to shitfield")
		if !result.IsValid {
			t.Errorf("custom allow-listed term flagged: %+v", result.Entities)
		}
	})

	t.Run("plain profanity still flagged", func(t *testing.T) {
		scanner := newToxicityTest(t)

		result := scanner.Scan("this is shit")
		if result.IsValid {
			t.Error("expected profanity to be flagged")
		}
	})
}

func TestToxicityCleanText(t *testing.T) {
	scanner := newToxicityTest(t)

	result := scanner.Scan("thank you for your help, that was lovely")
	if !result.IsValid {
		t.Errorf("expected valid result, got %+v", result.RiskFactors)
	}
	if result.RiskScore != 0 {
		t.Errorf("RiskScore = %v, want 0", result.RiskScore)
	}
}
