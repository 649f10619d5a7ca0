package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/kb"
	"github.com/opensource-finance/kestrel/internal/rules"
)

func mkTx(row int, date string, desc string, amount float64) domain.Transaction {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return domain.Transaction{Row: row, Date: d, Description: desc, Amount: amount}
}

func newTestOrchestrator(t *testing.T, cfg domain.AuditConfig, opts ...Option) *Orchestrator {
	t.Helper()
	engine, err := rules.NewEngine()
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	evaluator := rules.NewEvaluator(engine, kb.Empty(), 4)
	return NewOrchestrator(evaluator, cfg, opts...)
}

func TestDigest(t *testing.T) {
	a := domain.Ledger{
		mkTx(0, "2024-01-02", "Sale", 100),
		mkTx(1, "2024-01-03", "Rent", -50),
	}
	b := domain.Ledger{
		mkTx(0, "2024-01-02", "Sale", 100),
		mkTx(1, "2024-01-03", "Rent", -50),
	}
	if Digest(a) != Digest(b) {
		t.Error("identical content produced different digests")
	}

	c := domain.Ledger{
		mkTx(0, "2024-01-02", "Sale", 100),
		mkTx(1, "2024-01-03", "Rent", -50.01),
	}
	if Digest(a) == Digest(c) {
		t.Error("different content produced the same digest")
	}
}

func TestRunEmptyLedger(t *testing.T) {
	o := newTestOrchestrator(t, domain.AuditConfig{})
	if _, err := o.Run(context.Background(), "t1", nil, ""); !errors.Is(err, domain.ErrEmptyLedger) {
		t.Errorf("got %v, want ErrEmptyLedger", err)
	}
}

func TestRunAssemblesArtifact(t *testing.T) {
	o := newTestOrchestrator(t, domain.AuditConfig{})

	l := domain.Ledger{
		mkTx(0, "2024-01-02", "Product sales", 1000),
		mkTx(1, "2024-01-03", "Sales refund", -100),
	}

	result, err := o.Run(context.Background(), "t1", l, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.ID == "" || result.TenantID != "t1" || result.Digest != Digest(l) {
		t.Errorf("identity = %s/%s/%s", result.ID, result.TenantID, result.Digest)
	}
	if result.Summary == "" {
		t.Error("summary empty")
	}
	if result.Ratios["Total Revenue"] != 1000 {
		t.Errorf("ratios = %v", result.Ratios)
	}
	if len(result.Findings) == 0 {
		t.Fatal("no findings for a negative-revenue ledger")
	}

	// Breach score is the severity-weighted sum over findings.
	var want float64
	for _, f := range result.Findings {
		want += f.Severity.Weight()
	}
	if result.BreachScore != want {
		t.Errorf("breach score = %v, want %v", result.BreachScore, want)
	}

	// No scorer attached: degraded scoring is reported, not invented.
	if result.ScoreError != domain.ErrModelUnavailable.Error() {
		t.Errorf("score error = %q", result.ScoreError)
	}
	if len(result.Scores) != 0 {
		t.Errorf("scores present without a model: %v", result.Scores)
	}

	md := result.Metadata
	if md.Transactions != 2 {
		t.Errorf("transactions = %d", md.Transactions)
	}
	if md.RulesEvaluated != 10 {
		t.Errorf("rules evaluated = %d", md.RulesEvaluated)
	}
	if md.EngineVersion != EngineVersion {
		t.Errorf("engine version = %q", md.EngineVersion)
	}
	if md.CacheHit {
		t.Error("first run reported a cache hit")
	}
}

func TestRunJurisdictionFilter(t *testing.T) {
	o := newTestOrchestrator(t, domain.AuditConfig{})

	// Triggers IFRS15_NEGREV only; a Pakistan filter leaves nothing.
	l := domain.Ledger{
		mkTx(0, "2024-01-02", "Product sales", 1000),
		mkTx(1, "2024-01-03", "Sales refund", -10),
	}

	result, err := o.Run(context.Background(), "t1", l, "Pakistan")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Findings) != 0 {
		t.Errorf("filtered findings = %v", result.Findings)
	}
	if result.BreachScore != 0 {
		t.Errorf("breach score after filter = %v", result.BreachScore)
	}
}

func TestRunCacheHit(t *testing.T) {
	c := cache.NewLRUCache(100)
	o := newTestOrchestrator(t, domain.AuditConfig{CacheTTLSecs: 60}, WithCache(c))

	l := domain.Ledger{
		mkTx(0, "2024-01-02", "Sale", 100),
	}

	first, err := o.Run(context.Background(), "t1", l, "")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	second, err := o.Run(context.Background(), "t1", l, "")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if !second.Metadata.CacheHit {
		t.Fatal("second run not served from cache")
	}
	if second.ID != first.ID || second.Digest != first.Digest {
		t.Errorf("cached artifact differs: %s vs %s", second.ID, first.ID)
	}
}

func TestRunCacheIsTenantScoped(t *testing.T) {
	c := cache.NewLRUCache(100)
	o := newTestOrchestrator(t, domain.AuditConfig{CacheTTLSecs: 60}, WithCache(c))

	l := domain.Ledger{mkTx(0, "2024-01-02", "Sale", 100)}

	a, err := o.Run(context.Background(), "tenant-a", l, "")
	if err != nil {
		t.Fatalf("run a: %v", err)
	}
	b, err := o.Run(context.Background(), "tenant-b", l, "")
	if err != nil {
		t.Fatalf("run b: %v", err)
	}

	if b.Metadata.CacheHit {
		t.Error("tenant-b served tenant-a's cached audit")
	}
	if a.ID == b.ID {
		t.Error("tenants shared an audit id")
	}
}

func TestShouldAlert(t *testing.T) {
	o := newTestOrchestrator(t, domain.AuditConfig{AlertRiskPercent: 80})

	cases := []struct {
		name  string
		audit domain.Audit
		want  bool
	}{
		{
			name:  "quiet",
			audit: domain.Audit{Scores: []domain.RiskScore{{Percent: 12}}},
			want:  false,
		},
		{
			name:  "risk over threshold",
			audit: domain.Audit{Scores: []domain.RiskScore{{Percent: 85}}},
			want:  true,
		},
		{
			name:  "risk at threshold",
			audit: domain.Audit{Scores: []domain.RiskScore{{Percent: 80}}},
			want:  true,
		},
		{
			name:  "high severity finding",
			audit: domain.Audit{Findings: []domain.Finding{{RuleID: "X", Severity: domain.SeverityHigh}}},
			want:  true,
		},
		{
			name:  "medium severity only",
			audit: domain.Audit{Findings: []domain.Finding{{RuleID: "X", Severity: domain.SeverityMed}}},
			want:  false,
		},
	}

	for _, tc := range cases {
		if got := o.ShouldAlert(&tc.audit); got != tc.want {
			t.Errorf("%s: ShouldAlert = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRunPublishesEvents(t *testing.T) {
	b := bus.NewChannelBus(10)
	defer b.Close()

	completed := make(chan *domain.Message, 1)
	alerts := make(chan *domain.Message, 1)

	ctx := context.Background()
	if _, err := b.Subscribe(ctx, "t1", domain.TopicAuditCompleted, func(ctx context.Context, msg *domain.Message) error {
		completed <- msg
		return nil
	}); err != nil {
		t.Fatalf("subscribe completed: %v", err)
	}
	if _, err := b.Subscribe(ctx, "t1", domain.TopicAuditAlert, func(ctx context.Context, msg *domain.Message) error {
		alerts <- msg
		return nil
	}); err != nil {
		t.Fatalf("subscribe alert: %v", err)
	}

	o := newTestOrchestrator(t, domain.AuditConfig{}, WithEventBus(b))

	// High-severity negative revenue triggers the alert path.
	l := domain.Ledger{
		mkTx(0, "2024-01-02", "Product sales", 1000),
		mkTx(1, "2024-01-03", "Sales refund", -10),
	}

	if _, err := o.Run(ctx, "t1", l, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case msg := <-completed:
		if msg.Topic != domain.TopicAuditCompleted {
			t.Errorf("topic = %s", msg.Topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no completed event")
	}

	select {
	case <-alerts:
	case <-time.After(2 * time.Second):
		t.Fatal("no alert event for a high-severity breach")
	}
}
