// Kestrel - Ledger auditing that deploys in 60 seconds.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/audit"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/config"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/kb"
	"github.com/opensource-finance/kestrel/internal/opinion"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	logLevel := parseLogLevel(cfg.Logging.Level)
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Load legal knowledge base. A missing file degrades enrichment, it
	// does not prevent startup.
	knowledge, err := kb.Load(cfg.KnowledgeBase.Path)
	if err != nil {
		slog.Warn("legal knowledge base unavailable, findings will not be enriched",
			"path", cfg.KnowledgeBase.Path,
			"error", err,
		)
		knowledge = kb.Empty()
	} else {
		slog.Info("legal knowledge base loaded", "entries", knowledge.Len())
	}

	// Load fraud model. Absence is a reported degradation: audits still
	// run, scoring endpoints return 503.
	var scorer *fraud.Scorer
	if s, err := fraud.Open(cfg.Model.Path); err != nil {
		slog.Warn("fraud model unavailable, running with scoring degraded",
			"path", cfg.Model.Path,
			"error", err,
		)
	} else {
		scorer = s
		slog.Info("fraud model loaded", "path", cfg.Model.Path)
	}

	// Initialize Rule Engine with the built-in catalogue
	engine, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	// Load custom rules from database (added via POST /rules)
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load custom rules", "error", err)
		os.Exit(1)
	}

	evaluator := rules.NewEvaluator(engine, knowledge, 10)
	slog.Info("rule engine initialized",
		"catalogue_size", evaluator.RuleCount(),
		"custom_rules", engine.CustomRulesCount(),
	)

	// Initialize the audit orchestrator
	generator := opinion.NewGenerator(cfg.Opinion)
	orchestrator := audit.NewOrchestrator(evaluator, cfg.Audit,
		audit.WithScorer(scorer),
		audit.WithGenerator(generator),
		audit.WithRepository(repo),
		audit.WithCache(cacheImpl),
		audit.WithEventBus(busImpl),
	)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, orchestrator)

		var tenantIDs []string
		if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
			tenantIDs = strings.Split(envTenants, ",")
		}

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Dependencies{
		Repo:         repo,
		Cache:        cacheImpl,
		Bus:          busImpl,
		Engine:       engine,
		Orchestrator: orchestrator,
		Scorer:       scorer,
		Knowledge:    knowledge,
		Version:      Version,
	})

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// loadRulesFromDatabase loads custom rules into the engine alongside the
// built-in catalogue. Custom rules are configured via POST /rules.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListRuleConfigs(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Built-in catalogue still applies; customs can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading custom rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║        Ledger Auditing Engine             ║")
	fmt.Println("  ║      Eyes on every ledger line.           ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /audit             - Audit a ledger")
	fmt.Println("    POST /audit/async       - Queue a ledger for async auditing")
	fmt.Println("    GET  /audits            - List recent audits")
	fmt.Println("    GET  /audits/{id}       - Get audit by ID")
	fmt.Println("    POST /score             - Score transactions for fraud risk")
	fmt.Println("    POST /explain           - Explain one transaction's risk")
	fmt.Println("    GET  /rules             - List the rule catalogue")
	fmt.Println("    POST /rules             - Create a custom rule")
	fmt.Println("    POST /rules/reload      - Hot-reload custom rules")
	fmt.Println("    GET  /kb/{ruleID}       - Legal provision behind a rule")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println()
}
