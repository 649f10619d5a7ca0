package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/audit"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/kb"
	"github.com/opensource-finance/kestrel/internal/ledger"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// Handler holds dependencies for API handlers.
type Handler struct {
	repo         domain.Repository
	cache        domain.Cache
	bus          domain.EventBus
	engine       *rules.Engine
	orchestrator *audit.Orchestrator
	scorer       *fraud.Scorer
	knowledge    *kb.KnowledgeBase
	version      string
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		repo:         deps.Repo,
		cache:        deps.Cache,
		bus:          deps.Bus,
		engine:       deps.Engine,
		orchestrator: deps.Orchestrator,
		scorer:       deps.Scorer,
		knowledge:    deps.Knowledge,
		version:      deps.Version,
	}
}

// LedgerRequest is the request body for POST /audit, /score and /explain.
type LedgerRequest struct {
	Records      []domain.RecordInput `json:"records"`
	Jurisdiction string               `json:"jurisdiction,omitempty"`

	// Row selects the transaction to explain (POST /explain only).
	Row int `json:"row,omitempty"`
}

// normalize coerces the submitted records into a validated ledger.
func (req *LedgerRequest) normalize() (domain.Ledger, error) {
	l := ledger.FromRecords(req.Records)
	if err := ledger.Validate(l); err != nil {
		return nil, err
	}
	return l, nil
}

// Audit handles POST /audit: runs the full pipeline over the submitted
// ledger and returns the complete artifact.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req LedgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	l, err := req.normalize()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "ledger rejected: " + err.Error(),
		})
		return
	}

	result, err := h.orchestrator.Run(ctx, tenantID, l, req.Jurisdiction)
	if err != nil {
		slog.Error("audit run failed", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "audit failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// AuditAsync handles POST /audit/async: the ledger is published to the
// event bus for a worker to process, and the caller gets a 202 with the
// content digest to poll on.
func (h *Handler) AuditAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.bus == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "event bus not available",
		})
		return
	}

	var req LedgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	// Reject unusable ledgers before queueing
	l, err := req.normalize()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "ledger rejected: " + err.Error(),
		})
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"tenantId":     tenantID,
		"traceId":      GetTraceID(ctx),
		"jurisdiction": req.Jurisdiction,
		"records":      req.Records,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode ledger",
		})
		return
	}

	if err := h.bus.Publish(ctx, tenantID, domain.TopicLedgerSubmitted, payload); err != nil {
		slog.Error("failed to publish ledger", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to queue ledger",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "queued",
		"digest": audit.Digest(l),
	})
}

// GetAudit handles GET /audits/{id}.
func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	auditID := chi.URLParam(r, "id")

	if auditID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "audit id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	result, err := h.repo.GetAudit(ctx, tenantID, auditID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("failed to get audit", "id", auditID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "audit not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListAudits handles GET /audits.
func (h *Handler) ListAudits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	audits, err := h.repo.ListAudits(ctx, tenantID, limit)
	if err != nil {
		slog.Error("failed to list audits", "tenant_id", tenantID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list audits",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"audits": audits,
		"count":  len(audits),
	})
}

// ScoreResponse is the response for POST /score.
type ScoreResponse struct {
	Scores []domain.RiskScore `json:"scores"`
	Count  int                `json:"count"`
}

// Score handles POST /score: per-transaction fraud risk without the rest
// of the audit pipeline.
func (h *Handler) Score(w http.ResponseWriter, r *http.Request) {
	if h.scorer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": domain.ErrModelUnavailable.Error(),
		})
		return
	}

	var req LedgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	l, err := req.normalize()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "ledger rejected: " + err.Error(),
		})
		return
	}

	scores := h.scorer.Score(l)
	writeJSON(w, http.StatusOK, ScoreResponse{Scores: scores, Count: len(scores)})
}

// ExplainResponse is the response for POST /explain.
type ExplainResponse struct {
	Row         int    `json:"row"`
	Explanation string `json:"explanation"`
}

// Explain handles POST /explain: the natural-language risk explanation
// for one transaction of the submitted ledger.
func (h *Handler) Explain(w http.ResponseWriter, r *http.Request) {
	if h.scorer == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": domain.ErrModelUnavailable.Error(),
		})
		return
	}

	var req LedgerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	l, err := req.normalize()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "ledger rejected: " + err.Error(),
		})
		return
	}

	explanation, err := h.scorer.Explain(l, req.Row)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, ExplainResponse{Row: req.Row, Explanation: explanation})
}

// RuleSummary is the JSON view of one catalogue rule.
type RuleSummary struct {
	ID          string          `json:"id"`
	Standard    string          `json:"standard"`
	Clause      string          `json:"clause"`
	Description string          `json:"description"`
	Severity    domain.Severity `json:"severity"`
}

// ListRules returns the full catalogue: built-in rules plus loaded custom
// rules, in evaluation order.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	catalogue := h.engine.Catalogue()
	summaries := make([]RuleSummary, len(catalogue))
	for i, rule := range catalogue {
		summaries[i] = RuleSummary{
			ID:          rule.ID,
			Standard:    rule.Standard,
			Clause:      rule.Clause,
			Description: rule.Description,
			Severity:    rule.Severity,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  summaries,
		"count":  len(summaries),
		"custom": h.engine.CustomRulesCount(),
	})
}

// GetRule retrieves a catalogue rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	for _, rule := range h.engine.Catalogue() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, RuleSummary{
				ID:          rule.ID,
				Standard:    rule.Standard,
				Clause:      rule.Clause,
				Description: rule.Description,
				Severity:    rule.Severity,
			})
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a custom rule.
type CreateRuleRequest struct {
	ID          string          `json:"id"`
	Standard    string          `json:"standard"`
	Clause      string          `json:"clause,omitempty"`
	Description string          `json:"description,omitempty"`
	Severity    domain.Severity `json:"severity"`
	Expression  string          `json:"expression"`
	Enabled     bool            `json:"enabled"`
}

// CreateRule validates and creates a custom rule. The CEL expression is
// compiled before anything is persisted; rules are saved globally
// (tenant_id = "*") so they apply to all tenants.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Standard == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, standard, and expression are required",
		})
		return
	}

	severity := req.Severity
	if severity == "" {
		severity = domain.SeverityMed
	}

	ruleConfig := &domain.RuleConfig{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Standard:    req.Standard,
		Clause:      req.Clause,
		Description: req.Description,
		Severity:    severity,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.engine.LoadRule(ruleConfig); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	// Persist to repository (global tenant ID)
	if h.repo != nil {
		if err := h.repo.SaveRuleConfig(ctx, GlobalTenantID, ruleConfig); err != nil {
			slog.Error("failed to save rule config", "id", ruleConfig.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", ruleConfig.ID, "standard", ruleConfig.Standard)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule": ruleConfig,
	})
}

// DeleteRule soft-deletes a custom rule and reloads the engine.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.DeleteRuleConfig(ctx, GlobalTenantID, ruleID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Error("failed to delete rule", "id", ruleID, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "rule not found",
		})
		return
	}

	// Auto-reload the engine so the deleted rule stops evaluating
	if configs, err := h.repo.ListRuleConfigs(ctx, GlobalTenantID); err != nil {
		slog.Error("failed to reload rules after delete", "error", err)
	} else if err := h.engine.ReloadRules(configs); err != nil {
		slog.Error("failed to reload rules after delete", "error", err)
	}

	slog.Info("rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rule deleted and engine reloaded",
	})
}

// ReloadRules reloads all custom rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListRuleConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// GetKBEntry handles GET /kb/{ruleID}: the legal provision backing a rule.
func (h *Handler) GetKBEntry(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleID")

	if ruleID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "rule id is required",
		})
		return
	}

	entry, ok := h.knowledge.Lookup(ruleID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no knowledge base entry for rule",
		})
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	scoring := "available"
	if h.scorer == nil {
		scoring = "unavailable"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"scoring": scoring,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
