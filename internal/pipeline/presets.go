package pipeline

import (
	"fmt"
	"time"

	"github.com/llm-shield/shield/internal/config"
	"github.com/llm-shield/shield/internal/logger"
	"github.com/llm-shield/shield/internal/scanners"
)

// Preset names a built-in pipeline profile.
type Preset string

const (
	// PresetStrict runs every scanner on both sides, sequentially and
	// deterministically, and short-circuits early at 0.7.
	PresetStrict Preset = "strict"

	// PresetStandard is the recommended default: injection, secrets
	// and pii on input, pii and secrets on output, parallel with
	// threshold 0.9.
	PresetStandard Preset = "standard"

	// PresetPermissive only watches for leaked secrets in prompts and
	// never scans outputs.
	PresetPermissive Preset = "permissive"
)

// ParsePreset converts a preset name to its Preset value.
func ParsePreset(name string) (Preset, error) {
	switch Preset(name) {
	case PresetStrict, PresetStandard, PresetPermissive:
		return Preset(name), nil
	}
	return "", fmt.Errorf("unknown preset: %s", name)
}

// CacheTTL returns how long scan results for this preset may be cached.
// Zero disables caching.
func (p Preset) CacheTTL() time.Duration {
	switch p {
	case PresetStandard:
		return 5 * time.Minute
	case PresetPermissive:
		return 10 * time.Minute
	default:
		return 0
	}
}

// FromPreset builds a Shield with the preset's scanner sets and policy,
// using default scanner configs.
func FromPreset(preset Preset, log *logger.Logger) (*Shield, error) {
	set, err := defaultScanners()
	if err != nil {
		return nil, err
	}
	return assemble(preset, set, NewBuilder().WithLogger(log))
}

// New builds a Shield from the application configuration: the preset
// picks the scanner sets, scanner tuning and policy come from cfg.
func New(cfg config.PipelineConfig, log *logger.Logger) (*Shield, error) {
	preset, err := ParsePreset(cfg.Preset)
	if err != nil {
		return nil, err
	}

	set, err := buildScanners(cfg)
	if err != nil {
		return nil, err
	}

	builder := NewBuilder().
		WithLogger(log).
		WithShortCircuitThreshold(cfg.ShortCircuitThreshold).
		WithParallel(cfg.Parallel).
		WithMaxConcurrent(cfg.MaxConcurrent).
		WithMaxLength(cfg.MaxLength)

	return assembleScanners(preset, set, builder)
}

// scannerSet holds one instance of each built-in scanner.
type scannerSet struct {
	injection *scanners.Injection
	secrets   *scanners.Secrets
	pii       *scanners.PII
	toxicity  *scanners.Toxicity
}

func defaultScanners() (*scannerSet, error) {
	return buildScanners(config.PipelineConfig{
		Redact:       true,
		PIIDetectors: []string{"all"},
	})
}

func buildScanners(cfg config.PipelineConfig) (*scannerSet, error) {
	injection, err := scanners.NewInjection(scanners.InjectionConfig{
		DisableJailbreak:        cfg.DisableJailbreakRules,
		DisableRoleManipulation: cfg.DisableRolePlayRules,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create injection scanner: %w", err)
	}

	secrets, err := scanners.NewSecrets(scanners.SecretsConfig{
		CustomRules: cfg.CustomSecretRules,
		Redact:      cfg.Redact,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create secrets scanner: %w", err)
	}

	pii, err := scanners.NewPII(scanners.PIIConfig{
		Detectors: cfg.PIIDetectors,
		Redact:    cfg.Redact,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pii scanner: %w", err)
	}

	toxicity, err := scanners.NewToxicity(scanners.ToxicityConfig{
		AllowList: cfg.ToxicityAllowList,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create toxicity scanner: %w", err)
	}

	return &scannerSet{
		injection: injection,
		secrets:   secrets,
		pii:       pii,
		toxicity:  toxicity,
	}, nil
}

// assemble applies the preset's full policy on top of the scanner sets.
func assemble(preset Preset, set *scannerSet, builder *Builder) (*Shield, error) {
	switch preset {
	case PresetStrict:
		builder.
			WithShortCircuitThreshold(0.7).
			WithParallel(false).
			WithMaxConcurrent(1)
	case PresetStandard:
		builder.
			WithShortCircuitThreshold(0.9).
			WithParallel(true).
			WithMaxConcurrent(4)
	case PresetPermissive:
		builder.
			WithShortCircuitThreshold(1.0).
			WithParallel(true).
			WithMaxConcurrent(8)
	default:
		return nil, fmt.Errorf("unknown preset: %s", preset)
	}

	return assembleScanners(preset, set, builder)
}

// assembleScanners wires the preset's scanner sets into the builder
// without touching its policy.
func assembleScanners(preset Preset, set *scannerSet, builder *Builder) (*Shield, error) {
	switch preset {
	case PresetStrict:
		builder.
			WithInputScanners(set.injection, set.secrets, set.pii, set.toxicity).
			WithOutputScanners(set.pii, set.secrets, set.toxicity)
	case PresetStandard:
		builder.
			WithInputScanners(set.injection, set.secrets, set.pii).
			WithOutputScanners(set.pii, set.secrets)
	case PresetPermissive:
		builder.WithInputScanners(set.secrets)
	default:
		return nil, fmt.Errorf("unknown preset: %s", preset)
	}

	return builder.Build()
}
