package models

import "time"

// AuditConfig controls the message journal.
type AuditConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
	// Targets records the article URL or clip title with each entry.
	Targets       bool   `yaml:"targets"`
}

// AuditEntry is one handled message.
type AuditEntry struct {
	MessageID string    `json:"messageId"`
	Type      string    `json:"type"`
	Target    string    `json:"target,omitempty"`
	Code      string    `json:"code,omitempty"`
	Error     string    `json:"error,omitempty"`
	LatencyMs int64     `json:"latencyMs"`
	CreatedAt time.Time `json:"createdAt"`
}

// Succeeded reports whether the message was answered without error.
func (e AuditEntry) Succeeded() bool { return e.Code == "" }

// AuditQueryOpts filters Query results.
type AuditQueryOpts struct {
	MessageID  string
	Type       string
	FailedOnly bool
	Since      time.Time
	Limit      int
}

// AuditStat is a per-type, per-day count.
type AuditStat struct {
	Type   string `json:"type"`
	Day    string `json:"day"`
	Count  int64  `json:"count"`
	Failed int64  `json:"failed"`
}
