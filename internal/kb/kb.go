// Package kb loads the legal knowledge base: a versioned, append-only
// reference dataset mapping rule ids to legal/standard citation metadata.
package kb

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// KnowledgeBase is a read-only rule-id index over legal citation entries.
// Loaded once per process; safe to share across concurrent audits without
// locking since it is never mutated after load.
type KnowledgeBase struct {
	entries map[string]domain.KBEntry
}

// file is the on-disk shape of the knowledge base.
type file struct {
	Version string           `json:"version"`
	Entries []domain.KBEntry `json:"entries"`
}

// Load reads and validates the knowledge base. Malformed entries fail
// loudly here rather than per evaluation.
func Load(path string) (*KnowledgeBase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading knowledge base: %w", err)
	}
	return Parse(data)
}

// Parse builds a knowledge base from raw JSON.
func Parse(data []byte) (*KnowledgeBase, error) {
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing knowledge base: %w", err)
	}

	entries := make(map[string]domain.KBEntry, len(f.Entries))
	for i, e := range f.Entries {
		if e.RuleID == "" {
			return nil, fmt.Errorf("knowledge base entry %d: missing ruleId", i)
		}
		if e.LawStandard == "" || e.Jurisdiction == "" {
			return nil, fmt.Errorf("knowledge base entry %q: missing lawStandard or jurisdiction", e.RuleID)
		}
		if _, dup := entries[e.RuleID]; dup {
			return nil, fmt.Errorf("knowledge base entry %q: duplicate ruleId", e.RuleID)
		}
		entries[e.RuleID] = e
	}

	return &KnowledgeBase{entries: entries}, nil
}

// Empty returns a knowledge base with no entries. Findings evaluated
// against it simply carry no enrichment fields.
func Empty() *KnowledgeBase {
	return &KnowledgeBase{entries: map[string]domain.KBEntry{}}
}

// Lookup returns the entry for a rule id. A miss is not an error; the
// caller emits its finding without enrichment.
func (k *KnowledgeBase) Lookup(ruleID string) (domain.KBEntry, bool) {
	e, ok := k.entries[ruleID]
	return e, ok
}

// Len returns the number of entries.
func (k *KnowledgeBase) Len() int {
	return len(k.entries)
}
