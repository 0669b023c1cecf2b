package pipeline

import (
	"fmt"

	"github.com/llm-shield/shield/internal/logger"
	"github.com/llm-shield/shield/internal/shield"
)

// Builder assembles a Shield from scanner lists and a policy. All
// validation happens in Build, so a half-configured builder can be
// passed around freely.
type Builder struct {
	input  []shield.Scanner
	output []shield.Scanner
	cfg    Config
	log    *logger.Logger
}

// NewBuilder returns a builder preloaded with the standard policy:
// threshold 0.9, parallel execution, concurrency 4.
func NewBuilder() *Builder {
	return &Builder{
		cfg: Config{
			ShortCircuitThreshold: 0.9,
			Parallel:              true,
			MaxConcurrent:         4,
		},
	}
}

// WithInputScanners appends scanners to the input (prompt) list.
func (b *Builder) WithInputScanners(scanners ...shield.Scanner) *Builder {
	b.input = append(b.input, scanners...)
	return b
}

// WithOutputScanners appends scanners to the output list.
func (b *Builder) WithOutputScanners(scanners ...shield.Scanner) *Builder {
	b.output = append(b.output, scanners...)
	return b
}

// WithShortCircuitThreshold sets the merged-risk threshold that stops
// further scanners.
func (b *Builder) WithShortCircuitThreshold(threshold float64) *Builder {
	b.cfg.ShortCircuitThreshold = threshold
	return b
}

// WithParallel toggles batched concurrent execution.
func (b *Builder) WithParallel(parallel bool) *Builder {
	b.cfg.Parallel = parallel
	return b
}

// WithMaxConcurrent sets the scanner batch size for parallel execution.
func (b *Builder) WithMaxConcurrent(n int) *Builder {
	b.cfg.MaxConcurrent = n
	return b
}

// WithMaxLength sets the default truncation length, 0 meaning none.
func (b *Builder) WithMaxLength(n int) *Builder {
	b.cfg.MaxLength = n
	return b
}

// WithLogger sets the pipeline logger.
func (b *Builder) WithLogger(log *logger.Logger) *Builder {
	b.log = log
	return b
}

// Build validates the policy and returns the Shield.
func (b *Builder) Build() (*Shield, error) {
	if b.cfg.ShortCircuitThreshold < 0 || b.cfg.ShortCircuitThreshold > 1 {
		return nil, fmt.Errorf("short-circuit threshold must be in [0, 1], got %v", b.cfg.ShortCircuitThreshold)
	}
	if b.cfg.MaxConcurrent < 1 {
		return nil, fmt.Errorf("max concurrent must be at least 1, got %d", b.cfg.MaxConcurrent)
	}
	if b.cfg.MaxLength < 0 {
		return nil, fmt.Errorf("max length must not be negative, got %d", b.cfg.MaxLength)
	}

	log := b.log
	if log == nil {
		log = logger.Nop()
	}

	return &Shield{
		input:  b.input,
		output: b.output,
		cfg:    b.cfg,
		logger: log,
	}, nil
}
