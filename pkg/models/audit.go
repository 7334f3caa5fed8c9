package models

import "time"

// AuditConfig controls the chat-turn audit log.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
	// IncludeQueries stores the user's query text alongside the decision.
	IncludeQueries bool `yaml:"include_queries"`
}

// AuditEntry records how one chat turn was answered.
type AuditEntry struct {
	RequestID  string    `json:"request_id"`
	UserHash   string    `json:"user_hash"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	Query      string    `json:"query,omitempty"`
	StatusCode int       `json:"status_code"`
	LatencyMs  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditQueryOpts filters audit log queries.
type AuditQueryOpts struct {
	RequestID string
	UserHash  string
	Reason    string
	Since     time.Time
	Limit     int
}

// AuditStat is a count of turns per decision reason per day.
type AuditStat struct {
	Day    string `json:"day"`
	Reason string `json:"reason"`
	Count  int64  `json:"count"`
}
