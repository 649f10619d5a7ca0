// Package audit orchestrates one full ledger audit: compliance rules,
// statistical anomaly checks and fraud scoring run concurrently over the
// same immutable ledger snapshot, then the narrative opinion and the
// assembled artifact are produced. Scoring and opinion are degradable;
// the statistical sections are not.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/anomaly"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/opinion"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/statements"
)

// EngineVersion identifies the audit pipeline in artifact metadata.
const EngineVersion = "kestrel-1.0"

// Orchestrator wires the analysis components into one pipeline. Repository,
// cache and bus are optional: the offline CLI runs with all three nil.
type Orchestrator struct {
	evaluator *rules.Evaluator

	// scorer is nil when the model artifact could not be loaded; audits
	// then carry ScoreError instead of scores.
	scorer *fraud.Scorer

	generator *opinion.Generator

	repo  domain.Repository
	cache domain.Cache
	bus   domain.EventBus

	cfg domain.AuditConfig
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithScorer attaches the fraud scorer.
func WithScorer(s *fraud.Scorer) Option {
	return func(o *Orchestrator) { o.scorer = s }
}

// WithGenerator attaches the narrative opinion generator.
func WithGenerator(g *opinion.Generator) Option {
	return func(o *Orchestrator) { o.generator = g }
}

// WithRepository attaches audit persistence.
func WithRepository(r domain.Repository) Option {
	return func(o *Orchestrator) { o.repo = r }
}

// WithCache attaches the digest-keyed audit cache.
func WithCache(c domain.Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithEventBus attaches lifecycle event publishing.
func WithEventBus(b domain.EventBus) Option {
	return func(o *Orchestrator) { o.bus = b }
}

// NewOrchestrator creates an orchestrator around the rule evaluator, which
// is the only mandatory component.
func NewOrchestrator(evaluator *rules.Evaluator, cfg domain.AuditConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		evaluator: evaluator,
		cfg:       cfg,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Digest returns the content digest of a ledger: identical row content
// yields an identical digest regardless of upload metadata.
func Digest(l domain.Ledger) string {
	h := sha256.New()
	for _, tx := range l {
		fmt.Fprintf(h, "%s|%s|%.4f\n", tx.Date.Format(time.RFC3339), tx.Description, tx.Amount)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Run executes the full audit pipeline over the ledger. jurisdiction, when
// non-empty, filters the compliance findings by standard label after
// evaluation. Returns an error only when the ledger itself is unusable.
func (o *Orchestrator) Run(ctx context.Context, tenantID string, l domain.Ledger, jurisdiction string) (*domain.Audit, error) {
	start := time.Now()

	if len(l) == 0 {
		return nil, domain.ErrEmptyLedger
	}

	digest := Digest(l)
	if cached := o.lookupCached(ctx, tenantID, digest); cached != nil {
		return cached, nil
	}

	audit := &domain.Audit{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Digest:    digest,
		Timestamp: time.Now().UTC(),
	}

	var (
		wg          sync.WaitGroup
		rulesMs     int64
		anomaliesMs int64
		scoringMs   int64
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.Now()
		audit.Findings = o.evaluator.Evaluate(ctx, l)
		rulesMs = time.Since(t).Milliseconds()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.Now()
		audit.Summary, audit.Issues = anomaly.RunAudit(l)
		audit.RedFlags = anomaly.RedFlags(l)
		audit.Ratios = statements.RatiosFloat(l)
		anomaliesMs = time.Since(t).Milliseconds()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.Now()
		if o.scorer == nil {
			audit.ScoreError = domain.ErrModelUnavailable.Error()
		} else {
			audit.Scores = o.scorer.Score(l)
		}
		scoringMs = time.Since(t).Milliseconds()
	}()

	wg.Wait()

	if jurisdiction != "" {
		audit.Findings = rules.FilterByStandard(audit.Findings, jurisdiction)
	}
	audit.BreachScore = breachScore(audit.Findings)

	if o.generator != nil {
		prompt := opinion.BuildPrompt(audit.Summary, audit.Ratios, audit.Findings, jurisdiction)
		audit.Opinion = o.generator.Generate(ctx, prompt)
	}

	audit.Metadata = domain.AuditMetadata{
		TraceID:        traceIDFromContext(ctx),
		Transactions:   len(l),
		RulesEvaluated: o.evaluator.RuleCount(),
		RulesMs:        rulesMs,
		AnomaliesMs:    anomaliesMs,
		ScoringMs:      scoringMs,
		TotalMs:        time.Since(start).Milliseconds(),
		EngineVersion:  EngineVersion,
	}

	o.storeCached(ctx, tenantID, digest, audit)
	o.persist(ctx, tenantID, audit)
	o.publish(ctx, tenantID, audit)

	return audit, nil
}

// breachScore is the severity-weighted sum over triggered findings.
func breachScore(findings []domain.Finding) float64 {
	var score float64
	for _, f := range findings {
		score += f.Severity.Weight()
	}
	return score
}

// ShouldAlert reports whether the audit crosses an alerting threshold:
// either any transaction scored at or above the configured risk percent,
// or a high-severity compliance breach was found.
func (o *Orchestrator) ShouldAlert(a *domain.Audit) bool {
	if o.cfg.AlertRiskPercent > 0 && a.MaxRisk() >= o.cfg.AlertRiskPercent {
		return true
	}
	return a.HasSeverity(domain.SeverityHigh)
}

func (o *Orchestrator) lookupCached(ctx context.Context, tenantID, digest string) *domain.Audit {
	if o.cache == nil {
		return nil
	}
	data, err := o.cache.Get(ctx, tenantID, cacheKey(digest))
	if err != nil || data == nil {
		return nil
	}
	var audit domain.Audit
	if err := json.Unmarshal(data, &audit); err != nil {
		slog.Warn("discarding malformed cached audit", "digest", digest, "error", err)
		return nil
	}
	audit.Metadata.CacheHit = true
	return &audit
}

func (o *Orchestrator) storeCached(ctx context.Context, tenantID, digest string, audit *domain.Audit) {
	if o.cache == nil {
		return
	}
	data, err := json.Marshal(audit)
	if err != nil {
		return
	}
	ttl := time.Duration(o.cfg.CacheTTLSecs) * time.Second
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if err := o.cache.Set(ctx, tenantID, cacheKey(digest), data, ttl); err != nil {
		slog.Warn("audit cache store failed", "digest", digest, "error", err)
	}
}

func (o *Orchestrator) persist(ctx context.Context, tenantID string, audit *domain.Audit) {
	if o.repo == nil {
		return
	}
	if err := o.repo.SaveAudit(ctx, tenantID, audit); err != nil {
		slog.Error("audit persistence failed",
			"audit_id", audit.ID,
			"tenant_id", tenantID,
			"error", err,
		)
	}
}

func (o *Orchestrator) publish(ctx context.Context, tenantID string, audit *domain.Audit) {
	if o.bus == nil {
		return
	}
	payload, err := json.Marshal(audit)
	if err != nil {
		return
	}
	if err := o.bus.Publish(ctx, tenantID, domain.TopicAuditCompleted, payload); err != nil {
		slog.Warn("audit completed event not published", "audit_id", audit.ID, "error", err)
	}
	if o.ShouldAlert(audit) {
		if err := o.bus.Publish(ctx, tenantID, domain.TopicAuditAlert, payload); err != nil {
			slog.Warn("audit alert event not published", "audit_id", audit.ID, "error", err)
		}
	}
}

func cacheKey(digest string) string {
	return "audit:" + digest
}

// traceIDFromContext extracts the otel trace id when a span is active.
func traceIDFromContext(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
