// Package store persists detection events to PostgreSQL for audit and
// dashboard queries. Only labels, scores and counts are stored, never
// the scanned text.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/llm-shield/shield/internal/shield"
)

// Store handles security event storage in PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Config contains database configuration
type Config struct {
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// SecurityEvent is one persisted detection
type SecurityEvent struct {
	ID          int64          `db:"id" json:"id"`
	RequestID   string         `db:"request_id" json:"request_id"`
	Role        string         `db:"role" json:"role"`
	ClientIP    string         `db:"client_ip" json:"client_ip"`
	RiskScore   float64        `db:"risk_score" json:"risk_score"`
	Severity    string         `db:"severity" json:"severity"`
	Rules       pq.StringArray `db:"rules" json:"rules"`
	EntityCount int            `db:"entity_count" json:"entity_count"`
	FactorCount int            `db:"factor_count" json:"factor_count"`
	DurationMS  float64        `db:"duration_ms" json:"duration_ms"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}

// EventStats summarizes stored events
type EventStats struct {
	TotalEvents   int64   `db:"total_events" json:"total_events"`
	AvgRiskScore  float64 `db:"avg_risk_score" json:"avg_risk_score"`
	CriticalCount int64   `db:"critical_count" json:"critical_count"`
	HighCount     int64   `db:"high_count" json:"high_count"`
}

const schema = `
CREATE TABLE IF NOT EXISTS security_events (
	id           BIGSERIAL PRIMARY KEY,
	request_id   TEXT NOT NULL,
	role         TEXT NOT NULL,
	client_ip    TEXT NOT NULL DEFAULT '',
	risk_score   DOUBLE PRECISION NOT NULL,
	severity     TEXT NOT NULL,
	rules        TEXT[] NOT NULL DEFAULT '{}',
	entity_count INTEGER NOT NULL DEFAULT 0,
	factor_count INTEGER NOT NULL DEFAULT 0,
	duration_ms  DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_security_events_created_at ON security_events (created_at);
CREATE INDEX IF NOT EXISTS idx_security_events_severity ON security_events (severity);`

// NewStore creates a new security event store
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	store := &Store{
		db:     db,
		logger: logger,
	}

	if err := store.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	logger.Info("Event store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)),
		zap.Int("max_open_conns", config.MaxOpenConns),
		zap.Int("max_idle_conns", config.MaxIdleConns))

	return store, nil
}

// initialize checks the database connection and ensures the schema
func (s *Store) initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	return nil
}

// Insert persists one security event
func (s *Store) Insert(ctx context.Context, event *SecurityEvent) error {
	query := `
		INSERT INTO security_events (request_id, role, client_ip, risk_score, severity, rules, entity_count, factor_count, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		event.RequestID,
		event.Role,
		event.ClientIP,
		event.RiskScore,
		event.Severity,
		event.Rules,
		event.EntityCount,
		event.FactorCount,
		event.DurationMS,
	).Scan(&event.ID, &event.CreatedAt)

	if err != nil {
		s.logger.Error("Failed to insert security event",
			zap.Error(err),
			zap.String("request_id", event.RequestID),
			zap.String("severity", event.Severity))
		return fmt.Errorf("failed to insert security event: %w", err)
	}

	s.logger.Debug("Security event inserted",
		zap.Int64("id", event.ID),
		zap.String("severity", event.Severity))

	return nil
}

// BatchInsert persists multiple security events efficiently
func (s *Store) BatchInsert(ctx context.Context, events []*SecurityEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}

	start := time.Now()

	valueStrings := make([]string, 0, len(events))
	valueArgs := make([]interface{}, 0, len(events)*9)

	for i, event := range events {
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			i*9+1, i*9+2, i*9+3, i*9+4, i*9+5, i*9+6, i*9+7, i*9+8, i*9+9))
		valueArgs = append(valueArgs,
			event.RequestID,
			event.Role,
			event.ClientIP,
			event.RiskScore,
			event.Severity,
			event.Rules,
			event.EntityCount,
			event.FactorCount,
			event.DurationMS,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO security_events (request_id, role, client_ip, risk_score, severity, rules, entity_count, factor_count, duration_ms)
		VALUES %s`,
		strings.Join(valueStrings, ","))

	res, err := s.db.ExecContext(ctx, query, valueArgs...)
	if err != nil {
		s.logger.Error("Batch insert failed", zap.Error(err))
		return 0, fmt.Errorf("batch insert failed: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		inserted = int64(len(events))
	}

	s.logger.Info("Batch insert completed",
		zap.Int64("inserted", inserted),
		zap.Duration("duration", time.Since(start)))

	return inserted, nil
}

// NewEvent builds a SecurityEvent from a scan result. Only rule labels
// and counts are carried over, never the scanned text.
func NewEvent(requestID, role, clientIP string, result *shield.ScanResult) *SecurityEvent {
	rules := make([]string, 0, len(result.RiskFactors))
	for _, f := range result.RiskFactors {
		rules = append(rules, f.Metadata["rule"])
	}

	return &SecurityEvent{
		RequestID:   requestID,
		Role:        role,
		ClientIP:    clientIP,
		RiskScore:   result.RiskScore,
		Severity:    result.Severity.String(),
		Rules:       rules,
		EntityCount: len(result.Entities),
		FactorCount: len(result.RiskFactors),
		DurationMS:  float64(result.Duration.Nanoseconds()) / 1e6,
	}
}

// RecordResult persists an invalid scan result as a security event.
// Valid results are not stored.
func (s *Store) RecordResult(ctx context.Context, requestID, role, clientIP string, result *shield.ScanResult) error {
	if result == nil || result.IsValid {
		return nil
	}
	return s.Insert(ctx, NewEvent(requestID, role, clientIP, result))
}

// RecordBatch persists every invalid result of a batch scan in one
// insert. Valid results are not stored.
func (s *Store) RecordBatch(ctx context.Context, requestID, role, clientIP string, results []*shield.ScanResult) (int64, error) {
	events := make([]*SecurityEvent, 0, len(results))
	for _, result := range results {
		if result == nil || result.IsValid {
			continue
		}
		events = append(events, NewEvent(requestID, role, clientIP, result))
	}
	return s.BatchInsert(ctx, events)
}

// GetStats returns aggregate statistics over stored events
func (s *Store) GetStats(ctx context.Context) (*EventStats, error) {
	query := `
		SELECT
			COUNT(*) AS total_events,
			COALESCE(AVG(risk_score), 0) AS avg_risk_score,
			COUNT(*) FILTER (WHERE severity = 'critical') AS critical_count,
			COUNT(*) FILTER (WHERE severity = 'high') AS high_count
		FROM security_events`

	var stats EventStats
	if err := s.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("failed to get event stats: %w", err)
	}

	return &stats, nil
}

// RecentEvents returns the most recent events, newest first
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]*SecurityEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, request_id, role, client_ip, risk_score, severity, rules, entity_count, factor_count, duration_ms, created_at
		FROM security_events
		ORDER BY created_at DESC
		LIMIT $1`

	var events []*SecurityEvent
	if err := s.db.SelectContext(ctx, &events, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}

	return events, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL masks the password in a database URL for logging
func maskDatabaseURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if idx := strings.LastIndex(userPart, ":"); idx > strings.Index(userPart, "//") {
				return userPart[:idx+1] + "***@" + strings.Join(parts[1:], "@")
			}
		}
	}
	return url
}
