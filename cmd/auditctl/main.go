// auditctl - offline ledger auditing from the command line.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0
//
// Usage:
//
//	auditctl -csv ledger.csv [-jurisdiction Pakistan] [-model fraud_model.json] [-kb legal_kb.json] [-json]
//
// Runs the full audit pipeline locally: no server, no database, no event
// bus. The narrative opinion is skipped unless -opinion is set.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/opensource-finance/kestrel/internal/audit"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fraud"
	"github.com/opensource-finance/kestrel/internal/kb"
	"github.com/opensource-finance/kestrel/internal/ledger"
	"github.com/opensource-finance/kestrel/internal/opinion"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/statements"
)

func main() {
	csvPath := flag.String("csv", "", "path to the ledger CSV (required)")
	jurisdiction := flag.String("jurisdiction", "", "filter findings by standard label, e.g. Pakistan or IFRS")
	modelPath := flag.String("model", "./fraud_model.json", "path to the fraud model artifact")
	kbPath := flag.String("kb", "./legal_kb.json", "path to the legal knowledge base")
	asJSON := flag.Bool("json", false, "emit the full audit artifact as JSON")
	withOpinion := flag.Bool("opinion", false, "generate the narrative opinion via ollama")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	if *csvPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	f, err := os.Open(*csvPath)
	if err != nil {
		fatal("open ledger: %v", err)
	}
	defer f.Close()

	l, err := ledger.ReadCSV(f)
	if err != nil {
		fatal("read ledger: %v", err)
	}

	knowledge, err := kb.Load(*kbPath)
	if err != nil {
		slog.Warn("knowledge base unavailable", "path", *kbPath, "error", err)
		knowledge = kb.Empty()
	}

	var scorer *fraud.Scorer
	if s, err := fraud.Open(*modelPath); err != nil {
		slog.Warn("fraud model unavailable, scoring degraded", "path", *modelPath, "error", err)
	} else {
		scorer = s
	}

	engine, err := rules.NewEngine()
	if err != nil {
		fatal("rule engine: %v", err)
	}
	defer engine.Close()

	evaluator := rules.NewEvaluator(engine, knowledge, 10)

	opts := []audit.Option{audit.WithScorer(scorer)}
	if *withOpinion {
		cfg := domain.DefaultConfig().Opinion
		opts = append(opts, audit.WithGenerator(opinion.NewGenerator(cfg)))
	}

	orchestrator := audit.NewOrchestrator(evaluator, domain.AuditConfig{}, opts...)

	result, err := orchestrator.Run(context.Background(), "local", l, *jurisdiction)
	if err != nil {
		fatal("audit: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fatal("encode: %v", err)
		}
		return
	}

	printReport(result, l)
}

func printReport(a *domain.Audit, l domain.Ledger) {
	fmt.Println("=== Summary ===")
	fmt.Println(a.Summary)
	fmt.Println()

	fmt.Println("=== Ratios ===")
	keys := make([]string, 0, len(a.Ratios))
	for k := range a.Ratios {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-16s %14.2f\n", k, a.Ratios[k])
	}
	fmt.Println()

	fmt.Printf("=== Compliance Findings (%d, breach score %.1f) ===\n", len(a.Findings), a.BreachScore)
	for _, f := range a.Findings {
		fmt.Printf("  [%s] %s %s - %s (%s)\n", f.Severity, f.Standard, f.Clause, f.Detail, f.RuleID)
		if f.Enriched() {
			fmt.Printf("      %s / %s: %s\n", f.LawStandard, f.Jurisdiction, f.LawDescription)
		}
	}
	fmt.Println()

	printTables("Audit Issues", a.Issues)
	printTables("Red Flags", a.RedFlags)

	if a.ScoreError != "" {
		fmt.Printf("=== Fraud Risk ===\n  unavailable: %s\n\n", a.ScoreError)
	} else if len(a.Scores) > 0 {
		top := make([]domain.RiskScore, len(a.Scores))
		copy(top, a.Scores)
		sort.Slice(top, func(i, j int) bool { return top[i].Percent > top[j].Percent })
		if len(top) > 10 {
			top = top[:10]
		}
		fmt.Println("=== Fraud Risk (top transactions) ===")
		for _, s := range top {
			tx := l[s.Row]
			fmt.Printf("  %5.1f%%  row %-4d %s  %12.2f  %s\n",
				s.Percent, s.Row, tx.Date.Format("2006-01-02"), tx.Amount, tx.Description)
		}
		fmt.Println()
	}

	bs := statements.Estimate(l)
	fmt.Println("=== Balance Sheet Estimate ===")
	fmt.Printf("  Revenue %14s\n", bs.Revenue.StringFixed(2))
	fmt.Printf("  Expense %14s\n", bs.Expense.StringFixed(2))
	fmt.Printf("  Cash    %14s\n", bs.Cash.StringFixed(2))
	fmt.Printf("  Equity  %14s\n", bs.Equity.StringFixed(2))
	fmt.Println()

	if a.Opinion != "" {
		fmt.Println("=== Audit Opinion ===")
		fmt.Println(a.Opinion)
		fmt.Println()
	}

	fmt.Printf("audit %s completed in %dms (%d rules)\n",
		a.ID, a.Metadata.TotalMs, a.Metadata.RulesEvaluated)
}

func printTables(title string, tables []domain.IssueTable) {
	fmt.Printf("=== %s (%d) ===\n", title, len(tables))
	for _, t := range tables {
		fmt.Printf("  %s: %d rows\n", t.Label, len(t.Rows))
		limit := len(t.Rows)
		if limit > 5 {
			limit = 5
		}
		for _, tx := range t.Rows[:limit] {
			fmt.Printf("    row %-4d %s  %12.2f  %s\n",
				tx.Row, tx.Date.Format("2006-01-02"), tx.Amount, tx.Description)
		}
		if len(t.Rows) > limit {
			fmt.Printf("    ... %d more\n", len(t.Rows)-limit)
		}
	}
	fmt.Println()
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "auditctl: "+format+"\n", args...)
	os.Exit(1)
}
