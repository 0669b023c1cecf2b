package pipeline

import (
	"testing"
	"time"
)

func TestBuilderValidation(t *testing.T) {
	tests := []struct {
		name    string
		builder *Builder
		wantErr bool
	}{
		{"defaults are valid", NewBuilder(), false},
		{"threshold below zero", NewBuilder().WithShortCircuitThreshold(-0.1), true},
		{"threshold above one", NewBuilder().WithShortCircuitThreshold(1.1), true},
		{"threshold at bounds", NewBuilder().WithShortCircuitThreshold(1.0), false},
		{"concurrency below one", NewBuilder().WithMaxConcurrent(0), true},
		{"negative max length", NewBuilder().WithMaxLength(-1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			if (err != nil) != tt.wantErr {
				t.Errorf("Build error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParsePreset(t *testing.T) {
	for _, name := range []string{"strict", "standard", "permissive"} {
		preset, err := ParsePreset(name)
		if err != nil {
			t.Errorf("ParsePreset(%q) returned error: %v", name, err)
		}
		if string(preset) != name {
			t.Errorf("ParsePreset(%q) = %q", name, preset)
		}
	}

	if _, err := ParsePreset("paranoid"); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestFromPresetScannerSets(t *testing.T) {
	tests := []struct {
		preset Preset
		input  []string
		output []string
	}{
		{PresetStrict,
			[]string{"prompt-injection", "secrets", "pii", "toxicity"},
			[]string{"pii", "secrets", "toxicity"}},
		{PresetStandard,
			[]string{"prompt-injection", "secrets", "pii"},
			[]string{"pii", "secrets"}},
		{PresetPermissive,
			[]string{"secrets"},
			[]string{}},
	}

	for _, tt := range tests {
		t.Run(string(tt.preset), func(t *testing.T) {
			s, err := FromPreset(tt.preset, nil)
			if err != nil {
				t.Fatalf("FromPreset failed: %v", err)
			}

			if got := s.InputScanners(); !equalStrings(got, tt.input) {
				t.Errorf("input scanners = %v, want %v", got, tt.input)
			}
			if got := s.OutputScanners(); !equalStrings(got, tt.output) {
				t.Errorf("output scanners = %v, want %v", got, tt.output)
			}
		})
	}
}

func TestFromPresetPolicy(t *testing.T) {
	strict, err := FromPreset(PresetStrict, nil)
	if err != nil {
		t.Fatalf("FromPreset failed: %v", err)
	}
	if cfg := strict.Config(); cfg.ShortCircuitThreshold != 0.7 || cfg.Parallel {
		t.Errorf("strict policy = %+v, want sequential with threshold 0.7", cfg)
	}

	permissive, err := FromPreset(PresetPermissive, nil)
	if err != nil {
		t.Fatalf("FromPreset failed: %v", err)
	}
	if cfg := permissive.Config(); cfg.ShortCircuitThreshold != 1.0 || cfg.MaxConcurrent != 8 {
		t.Errorf("permissive policy = %+v, want threshold 1.0 and concurrency 8", cfg)
	}
}

func TestPresetCacheTTL(t *testing.T) {
	tests := []struct {
		preset Preset
		ttl    time.Duration
	}{
		{PresetStandard, 5 * time.Minute},
		{PresetPermissive, 10 * time.Minute},
		{PresetStrict, 0},
	}

	for _, tt := range tests {
		if got := tt.preset.CacheTTL(); got != tt.ttl {
			t.Errorf("%s CacheTTL = %v, want %v", tt.preset, got, tt.ttl)
		}
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
