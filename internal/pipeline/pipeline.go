// Package pipeline orchestrates scanners over prompts and outputs,
// applying the short-circuit and concurrency policy and merging the
// per-scanner results into one.
package pipeline

import (
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/llm-shield/shield/internal/logger"
	"github.com/llm-shield/shield/internal/shield"
)

// Options carries per-call overrides for a scan.
type Options struct {
	// MaxLength truncates the text before scanning when positive,
	// overriding the pipeline-level setting.
	MaxLength int
}

// Config is the pipeline execution policy.
type Config struct {
	// ShortCircuitThreshold stops running further scanners once the
	// merged risk score reaches it. Must be in [0, 1]; 1.0 effectively
	// disables short-circuiting below a maxed-out score.
	ShortCircuitThreshold float64

	// Parallel runs scanners in batches of MaxConcurrent goroutines.
	// Sequential execution checks the threshold after every scanner
	// and is fully deterministic.
	Parallel bool

	MaxConcurrent int
	MaxLength     int
}

// Shield runs ordered scanner lists over prompts and model outputs.
type Shield struct {
	input  []shield.Scanner
	output []shield.Scanner
	cfg    Config
	logger *logger.Logger
}

// Config returns the pipeline's execution policy.
func (s *Shield) Config() Config { return s.cfg }

// InputScanners returns the names of the configured input scanners.
func (s *Shield) InputScanners() []string { return scannerNames(s.input) }

// OutputScanners returns the names of the configured output scanners.
func (s *Shield) OutputScanners() []string { return scannerNames(s.output) }

func scannerNames(scanners []shield.Scanner) []string {
	names := make([]string, len(scanners))
	for i, sc := range scanners {
		names[i] = sc.Name()
	}
	return names
}

// ScanPrompt scans user input before it reaches the model.
func (s *Shield) ScanPrompt(text string, opts *Options) *shield.ScanResult {
	return s.scan(s.input, text, opts)
}

// ScanOutput scans model output before it reaches the user.
func (s *Shield) ScanOutput(text string, opts *Options) *shield.ScanResult {
	return s.scan(s.output, text, opts)
}

// ScanPromptAndOutput scans both sides of one exchange. When the prompt
// is invalid and its risk score reaches the short-circuit threshold the
// output scan is skipped entirely; the returned output result is a
// valid zero-risk sentinel tagged with skip metadata.
func (s *Shield) ScanPromptAndOutput(prompt, output string, opts *Options) (*shield.ScanResult, *shield.ScanResult) {
	promptResult := s.ScanPrompt(prompt, opts)

	if !promptResult.IsValid && promptResult.RiskScore >= s.cfg.ShortCircuitThreshold {
		s.logger.Debug("Output scan skipped",
			zap.Float64("prompt_risk_score", promptResult.RiskScore),
			zap.Float64("threshold", s.cfg.ShortCircuitThreshold),
		)
		return promptResult, skipResult(output)
	}

	return promptResult, s.ScanOutput(output, opts)
}

// ScanBatch scans each text as a prompt. Results are returned in input
// order regardless of execution order.
func (s *Shield) ScanBatch(texts []string, opts *Options) []*shield.ScanResult {
	results := make([]*shield.ScanResult, len(texts))

	if !s.cfg.Parallel || s.cfg.MaxConcurrent <= 1 {
		for i, text := range texts {
			results[i] = s.ScanPrompt(text, opts)
		}
		return results
	}

	sem := make(chan struct{}, s.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = s.ScanPrompt(text, opts)
		}(i, text)
	}
	wg.Wait()

	return results
}

// scan runs the scanner list over text and merges the results.
func (s *Shield) scan(scanners []shield.Scanner, text string, opts *Options) *shield.ScanResult {
	started := time.Now()
	text = truncate(text, s.maxLength(opts))

	if len(scanners) == 0 {
		result := shield.NewResult(text, nil, nil, started)
		result.Metadata = map[string]string{"scanners": "0"}
		return result
	}

	var results []*shield.ScanResult
	if s.cfg.Parallel && s.cfg.MaxConcurrent > 1 {
		for offset := 0; offset < len(scanners); offset += s.cfg.MaxConcurrent {
			end := offset + s.cfg.MaxConcurrent
			if end > len(scanners) {
				end = len(scanners)
			}
			batch := scanners[offset:end]

			batchResults := make([]*shield.ScanResult, len(batch))
			var wg sync.WaitGroup
			for i, sc := range batch {
				wg.Add(1)
				go func(i int, sc shield.Scanner) {
					defer wg.Done()
					batchResults[i] = sc.Scan(text)
				}(i, sc)
			}
			wg.Wait()

			results = append(results, batchResults...)
			if s.shortCircuit(results, scanners[end:]) {
				break
			}
		}
	} else {
		for i, sc := range scanners {
			results = append(results, sc.Scan(text))
			if s.shortCircuit(results, scanners[i+1:]) {
				break
			}
		}
	}

	return s.merge(text, results, started)
}

// shortCircuit reports whether the merged risk so far has reached the
// threshold with scanners still remaining.
func (s *Shield) shortCircuit(results []*shield.ScanResult, remaining []shield.Scanner) bool {
	if len(remaining) == 0 {
		return false
	}

	risk := maxRisk(results)
	if risk < s.cfg.ShortCircuitThreshold {
		return false
	}

	s.logger.Debug("Scan short-circuited",
		zap.Float64("risk_score", risk),
		zap.Float64("threshold", s.cfg.ShortCircuitThreshold),
		zap.Int("skipped_scanners", len(remaining)),
	)
	return true
}

func maxRisk(results []*shield.ScanResult) float64 {
	risk := 0.0
	for _, r := range results {
		if r.RiskScore > risk {
			risk = r.RiskScore
		}
	}
	return risk
}

// merge combines per-scanner results into one. Cross-scanner risk is
// the maximum scanner score, not a mean: one certain finding must not
// be diluted by clean scanners. Entities are deduplicated by
// (start, end, type) with the first scanner winning; the sanitized text
// comes from the last scanner in execution order that changed it.
func (s *Shield) merge(text string, results []*shield.ScanResult, started time.Time) *shield.ScanResult {
	type spanKey struct {
		start, end int
		entityType string
	}
	seen := make(map[spanKey]bool)

	entities := []shield.Entity{}
	factors := []shield.RiskFactor{}
	risk := 0.0
	severity := shield.SeverityNone
	sanitized := text

	for _, r := range results {
		factors = append(factors, r.RiskFactors...)

		for _, e := range r.Entities {
			key := spanKey{e.Start, e.End, e.Type}
			if seen[key] {
				continue
			}
			seen[key] = true
			entities = append(entities, e)
		}

		if r.RiskScore > risk {
			risk = r.RiskScore
		}
		if r.Severity > severity {
			severity = r.Severity
		}
		if r.SanitizedText != text {
			sanitized = r.SanitizedText
		}
	}

	valid := len(factors) == 0
	if valid {
		risk = 0
	}

	return &shield.ScanResult{
		SanitizedText: sanitized,
		IsValid:       valid,
		RiskScore:     risk,
		Entities:      entities,
		RiskFactors:   factors,
		Severity:      severity,
		Metadata:      map[string]string{"scanners": strconv.Itoa(len(results))},
		Duration:      time.Since(started),
	}
}

func (s *Shield) maxLength(opts *Options) int {
	if opts != nil && opts.MaxLength > 0 {
		return opts.MaxLength
	}
	return s.cfg.MaxLength
}

// truncate cuts text to at most max bytes without splitting a rune.
func truncate(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// skipResult builds the sentinel returned for a skipped output scan.
func skipResult(text string) *shield.ScanResult {
	result := shield.NewResult(text, nil, nil, time.Now())
	result.Metadata = map[string]string{
		"skipped":     "true",
		"skip_reason": "prompt risk score reached short-circuit threshold",
	}
	return result
}
