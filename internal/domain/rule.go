package domain

// Severity of a compliance rule.
type Severity string

// Severity levels, ordered Low < Med < High.
const (
	SeverityLow  Severity = "Low"
	SeverityMed  Severity = "Med"
	SeverityHigh Severity = "High"
)

// Weight maps a severity onto the contribution it makes to the weighted
// breach score reported in the audit summary.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityHigh:
		return 1.0
	case SeverityMed:
		return 0.6
	case SeverityLow:
		return 0.3
	default:
		return 0.0
	}
}

// RuleConfig is a declarative, persistable compliance rule. Expression is a
// CEL predicate over a single ledger row; a rule triggers when any row
// matches, and the matching rows are the rule's evidence sample.
type RuleConfig struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenantId,omitempty"`
	Standard    string   `json:"standard"`
	Clause      string   `json:"clause"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	Version     string   `json:"version"`

	// CEL expression evaluated per row. Must return bool.
	Expression string `json:"expression"`

	Enabled bool `json:"enabled"`
}

// Finding documents one triggered rule. A rule that cleanly evaluates to
// false produces no Finding; silence means pass.
type Finding struct {
	RuleID   string   `json:"ruleId"`
	Standard string   `json:"standard"`
	Clause   string   `json:"clause"`
	Severity Severity `json:"severity"`

	// Detail is "<N> offending rows", "Breach detected" when the sampler
	// returned nothing, or "[Engine Error] <msg>" when the rule itself
	// failed.
	Detail string `json:"detail"`

	// Evidence rows justifying the finding (empty for engine errors).
	Sample Ledger `json:"sample,omitempty"`

	// Enrichment from the legal knowledge base; zero-valued when the rule
	// id has no knowledge base entry.
	LawStandard    string `json:"lawStandard,omitempty"`
	Jurisdiction   string `json:"jurisdiction,omitempty"`
	LawDescription string `json:"lawDescription,omitempty"`
	Applicability  string `json:"applicability,omitempty"`
}

// Enriched reports whether knowledge base metadata was merged in.
func (f Finding) Enriched() bool {
	return f.LawStandard != "" || f.Jurisdiction != ""
}

// KBEntry is one legal knowledge base record, keyed by rule id. The
// knowledge base is loaded once per process and read-only afterwards.
type KBEntry struct {
	RuleID       string `json:"ruleId"`
	LawStandard  string `json:"lawStandard"`
	Jurisdiction string `json:"jurisdiction"`
	Description  string `json:"description"`
	// Applicability describes which entity types the provision binds.
	Applicability string `json:"applicability"`
	// Automatable marks provisions a rule can test mechanically.
	Automatable bool `json:"automatable"`
}
