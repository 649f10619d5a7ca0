// Package worker provides async ledger processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/audit"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ledger"
)

// Worker consumes submitted ledgers from the EventBus and runs the full
// audit pipeline on each. The orchestrator handles persistence, caching
// and result events; the worker only normalizes the payload and invokes
// it.
type Worker struct {
	bus          domain.EventBus
	orchestrator *audit.Orchestrator

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = global worker)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, orchestrator *audit.Orchestrator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:          bus,
		orchestrator: orchestrator,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins processing submitted ledgers for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for
// testing/dev). In production, subscribe per tenant or use wildcards.
func (w *Worker) startGlobalWorker() error {
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicLedgerSubmitted, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts a worker for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicLedgerSubmitted, func(ctx context.Context, msg *domain.Message) error {
		return w.processLedger(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicLedgerSubmitted,
	)

	return nil
}

// handleMessage handles messages from the global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processLedger(ctx, msg.TenantID, msg)
}

// LedgerMessage is the payload for an asynchronously submitted ledger.
type LedgerMessage struct {
	TenantID     string               `json:"tenantId"`
	TraceID      string               `json:"traceId,omitempty"`
	Jurisdiction string               `json:"jurisdiction,omitempty"`
	Records      []domain.RecordInput `json:"records"`
}

// processLedger normalizes the submitted rows and runs the audit.
func (w *Worker) processLedger(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var lm LedgerMessage
	if err := json.Unmarshal(msg.Payload, &lm); err != nil {
		slog.Error("failed to parse ledger message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if lm.TenantID != "" {
		tenantID = lm.TenantID
	}

	l := ledger.FromRecords(lm.Records)
	if err := ledger.Validate(l); err != nil {
		slog.Error("submitted ledger rejected",
			"message_id", msg.ID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	result, err := w.orchestrator.Run(ctx, tenantID, l, lm.Jurisdiction)
	if err != nil {
		slog.Error("audit run failed",
			"message_id", msg.ID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	slog.Info("ledger processed",
		"audit_id", result.ID,
		"tenant_id", tenantID,
		"transactions", result.Metadata.Transactions,
		"findings", len(result.Findings),
		"breach_score", result.BreachScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
