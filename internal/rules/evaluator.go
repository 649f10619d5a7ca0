package rules

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/kb"
)

// Evaluator runs the catalogue against a ledger. Each rule is evaluated in
// isolation: one rule's failure becomes an engine-error finding and never
// stops its siblings.
type Evaluator struct {
	engine     *Engine
	knowledge  *kb.KnowledgeBase
	maxWorkers int
}

// NewEvaluator creates an evaluator. The knowledge base may be kb.Empty()
// when no legal metadata is available; findings then carry no enrichment.
func NewEvaluator(engine *Engine, knowledge *kb.KnowledgeBase, maxWorkers int) *Evaluator {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}
	if knowledge == nil {
		knowledge = kb.Empty()
	}
	return &Evaluator{
		engine:     engine,
		knowledge:  knowledge,
		maxWorkers: maxWorkers,
	}
}

// RuleCount returns the size of the current catalogue.
func (e *Evaluator) RuleCount() int {
	return len(e.engine.Catalogue())
}

// Evaluate runs every catalogue rule over the ledger and returns the
// findings in catalogue order. A rule whose check cleanly evaluates to
// false emits nothing; silence means pass. The result is deterministic for
// a given ledger and catalogue.
func (e *Evaluator) Evaluate(ctx context.Context, l domain.Ledger) []domain.Finding {
	catalogue := e.engine.Catalogue()
	if len(catalogue) == 0 {
		return nil
	}

	type slot struct {
		finding   domain.Finding
		triggered bool
	}
	slots := make([]slot, len(catalogue))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range catalogue {
		wg.Add(1)
		go func(idx int, r Rule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			f, triggered := e.evaluateRule(r, l)
			slots[idx] = slot{finding: f, triggered: triggered}
		}(i, rule)
	}

	wg.Wait()

	findings := make([]domain.Finding, 0, len(catalogue))
	for _, s := range slots {
		if s.triggered {
			findings = append(findings, s.finding)
		}
	}
	return findings
}

// evaluateRule runs one rule with full fault containment. Panics and errors
// from the rule's own predicate are converted into an engine-error finding
// with the rule's declared severity.
func (e *Evaluator) evaluateRule(rule Rule, l domain.Ledger) (finding domain.Finding, triggered bool) {
	finding = domain.Finding{
		RuleID:   rule.ID,
		Standard: rule.Standard,
		Clause:   rule.Clause,
		Severity: rule.Severity,
	}

	defer func() {
		if r := recover(); r != nil {
			finding.Detail = fmt.Sprintf("[Engine Error] %v", r)
			finding.Sample = nil
			e.enrich(&finding)
			triggered = true
		}
	}()

	ok, err := rule.Check(l)
	if err != nil {
		finding.Detail = fmt.Sprintf("[Engine Error] %v", err)
		e.enrich(&finding)
		return finding, true
	}
	if !ok {
		return finding, false
	}

	sample := rule.Sample(l)
	if len(sample) > 0 {
		finding.Detail = fmt.Sprintf("%d offending rows", len(sample))
		finding.Sample = sample
	} else {
		// check true but no evidence rows: tolerated, but it usually
		// signals a rule-authoring bug.
		finding.Detail = "Breach detected"
		slog.Warn("rule check triggered with empty sample",
			"rule_id", rule.ID,
		)
	}

	e.enrich(&finding)
	return finding, true
}

// enrich merges legal knowledge base metadata into the finding. Absence of
// an entry is not an error.
func (e *Evaluator) enrich(f *domain.Finding) {
	entry, ok := e.knowledge.Lookup(f.RuleID)
	if !ok {
		return
	}
	f.LawStandard = entry.LawStandard
	f.Jurisdiction = entry.Jurisdiction
	f.LawDescription = entry.Description
	f.Applicability = entry.Applicability
}

// FilterByStandard keeps findings whose standard matches the selected
// jurisdiction display label. A pure post-processing step: idempotent and
// side-effect free.
func FilterByStandard(findings []domain.Finding, label string) []domain.Finding {
	if label == "" {
		return findings
	}
	out := make([]domain.Finding, 0, len(findings))
	for _, f := range findings {
		if strings.Contains(f.Standard, label) || f.Jurisdiction == label {
			out = append(out, f)
		}
	}
	return out
}
