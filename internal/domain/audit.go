package domain

import (
	"time"
)

// RiskScore is the fraud classifier's output for one transaction: the
// probability of the positive class scaled to 0-100 and rounded to one
// decimal. Derived, never persisted independently of its audit.
type RiskScore struct {
	Row     int     `json:"row"`
	Percent float64 `json:"percent"`
}

// IssueTable is one anomaly detector's output: the subset of rows it
// flagged, tagged with the detector label. A row may appear in several
// tables; detectors do not deduplicate across each other.
type IssueTable struct {
	Label string `json:"label"`
	Rows  Ledger `json:"rows"`
}

// Audit is the complete artifact for one ledger audit run. All sections are
// independent views over the same ledger snapshot; scoring and opinion may
// be absent (degraded) without invalidating the rest.
type Audit struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	Digest    string    `json:"digest"`
	Timestamp time.Time `json:"timestamp"`

	Summary string             `json:"summary"`
	Ratios  map[string]float64 `json:"ratios"`

	Findings []Finding    `json:"findings"`
	Issues   []IssueTable `json:"issues"`
	RedFlags []IssueTable `json:"redFlags"`

	Scores []RiskScore `json:"scores,omitempty"`
	// ScoreError carries the degradation reason when scoring was
	// unavailable (e.g. missing model artifact).
	ScoreError string `json:"scoreError,omitempty"`

	Opinion string `json:"opinion,omitempty"`

	// BreachScore is the severity-weighted sum over findings, used by
	// alerting.
	BreachScore float64 `json:"breachScore"`

	Metadata AuditMetadata `json:"metadata"`
}

// AuditMetadata records processing information for one run.
type AuditMetadata struct {
	TraceID        string `json:"traceId"`
	Transactions   int    `json:"transactions"`
	RulesEvaluated int    `json:"rulesEvaluated"`
	RulesMs        int64  `json:"rulesMs"`
	AnomaliesMs    int64  `json:"anomaliesMs"`
	ScoringMs      int64  `json:"scoringMs"`
	TotalMs        int64  `json:"totalMs"`
	CacheHit       bool   `json:"cacheHit,omitempty"`
	EngineVersion  string `json:"engineVersion"`
}

// MaxRisk returns the highest risk percentage in the audit, or 0.
func (a *Audit) MaxRisk() float64 {
	var max float64
	for _, s := range a.Scores {
		if s.Percent > max {
			max = s.Percent
		}
	}
	return max
}

// HasSeverity reports whether any finding carries the given severity.
func (a *Audit) HasSeverity(sev Severity) bool {
	for _, f := range a.Findings {
		if f.Severity == sev {
			return true
		}
	}
	return false
}
