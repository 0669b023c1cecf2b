package events

import "time"

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeScanDetection represents a scan that found risk factors
	EventTypeScanDetection EventType = "scan_detection"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// ScanDetectionEvent describes an invalid scan result. It carries rule
// labels and scores only, never the matched text.
type ScanDetectionEvent struct {
	RequestID   string   `json:"request_id"`
	Role        string   `json:"role"`
	ClientIP    string   `json:"client_ip"`
	RiskScore   float64  `json:"risk_score"`
	Severity    string   `json:"severity"`
	Rules       []string `json:"rules"`
	EntityCount int      `json:"entity_count"`
	FactorCount int      `json:"factor_count"`
	DurationMS  float64  `json:"duration_ms"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalScans       int64  `json:"total_scans"`
	TotalDetections  int64  `json:"total_detections"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
	Message  string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events []EventType  `json:"events"`
	Filter *EventFilter `json:"filter,omitempty"`
}

// EventFilter represents filtering options for detection events
type EventFilter struct {
	MinSeverity string   `json:"min_severity,omitempty"`
	Roles       []string `json:"roles,omitempty"`
}
