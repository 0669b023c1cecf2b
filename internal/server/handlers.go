package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/llm-shield/shield/internal/pipeline"
	"github.com/llm-shield/shield/internal/shield"
)

// maxBatchSize bounds one batch request.
const maxBatchSize = 100

type scanRequest struct {
	Text      string `json:"text"`
	MaxLength int    `json:"max_length,omitempty"`
}

type pairScanRequest struct {
	Prompt    string `json:"prompt"`
	Output    string `json:"output"`
	MaxLength int    `json:"max_length,omitempty"`
}

type batchScanRequest struct {
	Texts     []string `json:"texts"`
	MaxLength int      `json:"max_length,omitempty"`
}

type pairScanResponse struct {
	Prompt *shield.ScanResult `json:"prompt"`
	Output *shield.ScanResult `json:"output"`
}

type batchScanResponse struct {
	Results []*shield.ScanResult `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo reports the pipeline configuration
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	cfg := s.shield.Config()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":                    "llm-shield",
		"version":                 "0.1.0",
		"preset":                  s.config.Pipeline.Preset,
		"input_scanners":          s.shield.InputScanners(),
		"output_scanners":         s.shield.OutputScanners(),
		"short_circuit_threshold": cfg.ShortCircuitThreshold,
		"parallel":                cfg.Parallel,
		"max_concurrent":          cfg.MaxConcurrent,
		"cache_enabled":           s.cache != nil,
		"store_enabled":           s.store != nil,
	})
}

// handleStats reports runtime counters and backend statistics
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":           time.Since(s.started).Round(time.Second).String(),
		"total_scans":      s.totalScans.Load(),
		"total_detections": s.totalDetections.Load(),
		"websocket":        s.hub.GetStats(),
	}

	if s.cache != nil {
		if cacheStats, err := s.cache.Stats(r.Context()); err == nil {
			stats["cache"] = cacheStats
		}
	}
	if s.store != nil {
		if storeStats, err := s.store.GetStats(r.Context()); err == nil {
			stats["store"] = storeStats
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleEvents returns recently persisted detections, newest first
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "event store is not enabled"})
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = n
	}

	events, err := s.store.RecentEvents(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to query recent events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to query events"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}

// handleScanPrompt scans user input before it reaches a model
func (s *Server) handleScanPrompt(w http.ResponseWriter, r *http.Request) {
	s.handleScan(w, r, "prompt", s.shield.ScanPrompt)
}

// handleScanOutput scans model output before it reaches a user
func (s *Server) handleScanOutput(w http.ResponseWriter, r *http.Request) {
	s.handleScan(w, r, "output", s.shield.ScanOutput)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request, role string, scan func(string, *pipeline.Options) *shield.ScanResult) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "text must not be empty"})
		return
	}

	requestID := requestIDFrom(r.Context())
	log := s.logger.WithRequestID(requestID)

	// Per-call overrides disable the cache: a truncated scan of the
	// same text is a different result.
	cacheable := s.cache != nil && req.MaxLength == 0
	if cacheable {
		if result, ok := s.cache.Get(r.Context(), role, req.Text); ok {
			writeJSON(w, http.StatusOK, result)
			return
		}
	}

	var opts *pipeline.Options
	if req.MaxLength > 0 {
		opts = &pipeline.Options{MaxLength: req.MaxLength}
	}

	result := scan(req.Text, opts)
	s.recordResult(requestID, role, clientIPFrom(r), result)
	log.LogScan(role, result)

	if cacheable {
		if err := s.cache.Set(r.Context(), role, req.Text, result); err != nil {
			log.Debug("Failed to cache scan result", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// handleScanPair scans a prompt and its model output in one call
func (s *Server) handleScanPair(w http.ResponseWriter, r *http.Request) {
	var req pairScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "prompt must not be empty"})
		return
	}

	var opts *pipeline.Options
	if req.MaxLength > 0 {
		opts = &pipeline.Options{MaxLength: req.MaxLength}
	}

	requestID := requestIDFrom(r.Context())
	clientIP := clientIPFrom(r)

	promptResult, outputResult := s.shield.ScanPromptAndOutput(req.Prompt, req.Output, opts)
	s.recordResult(requestID, "prompt", clientIP, promptResult)
	s.recordResult(requestID, "output", clientIP, outputResult)

	log := s.logger.WithRequestID(requestID)
	log.LogScan("prompt", promptResult)
	log.LogScan("output", outputResult)

	writeJSON(w, http.StatusOK, pairScanResponse{
		Prompt: promptResult,
		Output: outputResult,
	})
}

// handleScanBatch scans up to maxBatchSize texts as prompts
func (s *Server) handleScanBatch(w http.ResponseWriter, r *http.Request) {
	var req batchScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if len(req.Texts) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "texts must not be empty"})
		return
	}
	if len(req.Texts) > maxBatchSize {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: fmt.Sprintf("batch size %d exceeds limit %d", len(req.Texts), maxBatchSize),
		})
		return
	}

	var opts *pipeline.Options
	if req.MaxLength > 0 {
		opts = &pipeline.Options{MaxLength: req.MaxLength}
	}

	requestID := requestIDFrom(r.Context())
	clientIP := clientIPFrom(r)

	results := s.shield.ScanBatch(req.Texts, opts)
	for _, result := range results {
		s.recordDetection(requestID, "prompt", clientIP, result)
	}

	// One insert for the whole batch instead of a write per detection.
	if s.store != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := s.store.RecordBatch(ctx, requestID, "prompt", clientIP, results); err != nil {
				s.logger.Warn("Failed to persist batch security events", zap.Error(err))
			}
		}()
	}

	writeJSON(w, http.StatusOK, batchScanResponse{Results: results})
}

// recordResult updates counters and fans an invalid result out to the
// event hub and the store.
func (s *Server) recordResult(requestID, role, clientIP string, result *shield.ScanResult) {
	if !s.recordDetection(requestID, role, clientIP, result) {
		return
	}

	if s.store != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.store.RecordResult(ctx, requestID, role, clientIP, result); err != nil {
				s.logger.Warn("Failed to persist security event", zap.Error(err))
			}
		}()
	}
}

// recordDetection updates the scan counters and broadcasts an invalid
// result to the event hub, reporting whether it was a detection.
func (s *Server) recordDetection(requestID, role, clientIP string, result *shield.ScanResult) bool {
	s.totalScans.Add(1)
	if result.IsValid {
		return false
	}
	s.totalDetections.Add(1)

	s.hub.BroadcastDetection(requestID, role, clientIP, result)
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
