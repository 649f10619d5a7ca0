// Package rules provides the CEL-Go based compliance rule engine: the
// built-in catalogue, custom declarative rules, and the evaluator that runs
// them over a ledger with per-rule fault isolation.
package rules

import (
	"fmt"
	"math"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Rule is one compliance check: identity and citation plus a paired
// predicate and evidence sampler. Check reports whether the condition
// occurs anywhere in the ledger; Sample narrows to the rows justifying a
// positive Check. Rules are immutable once built and must not depend on
// any other rule's result.
type Rule struct {
	ID          string
	Standard    string
	Clause      string
	Description string
	Severity    domain.Severity

	Check  func(domain.Ledger) (bool, error)
	Sample func(domain.Ledger) domain.Ledger
}

// Engine compiles rule expressions and assembles the evaluation catalogue.
// Custom rules loaded from the repository are appended after the built-ins.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	builtin  []Rule
	custom   map[string]*compiledCustom
	// order preserves custom rule insertion order for deterministic output.
	order []string
}

type compiledCustom struct {
	config  *domain.RuleConfig
	program cel.Program
}

// NewEngine creates a rule engine with the row-predicate CEL environment.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("abs_amount", cel.DoubleType),
		// abs_int is the rounded magnitude, for modulo tests.
		cel.Variable("abs_int", cel.IntType),
		cel.Variable("description", cel.StringType),
		// weekday is Monday=0 .. Sunday=6.
		cel.Variable("weekday", cel.IntType),
		// total_revenue is a ledger-level constant: the sum of positive amounts.
		cel.Variable("total_revenue", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{
		env:    env,
		custom: make(map[string]*compiledCustom),
	}
	e.builtin, err = e.compileBuiltins()
	if err != nil {
		return nil, err
	}
	return e, nil
}

// activation builds the CEL variable bindings for one row.
func activation(tx domain.Transaction, totalRevenue float64) map[string]any {
	// time.Weekday has Sunday=0; shift to Monday=0 so weekend is 5 and 6.
	weekday := (int(tx.Date.Weekday()) + 6) % 7
	abs := math.Abs(tx.Amount)
	return map[string]any{
		"amount":        tx.Amount,
		"abs_amount":    abs,
		"abs_int":       int64(math.Round(abs)),
		"description":   tx.Description,
		"weekday":       int64(weekday),
		"total_revenue": totalRevenue,
	}
}

// matchRows evaluates a compiled row predicate over every row and returns
// the matching row indexes.
func matchRows(program cel.Program, l domain.Ledger) ([]int, error) {
	totalRevenue := l.TotalRevenue()
	var idx []int
	for _, tx := range l {
		out, _, err := program.Eval(activation(tx, totalRevenue))
		if err != nil {
			return nil, err
		}
		b, ok := out.(types.Bool)
		if !ok {
			return nil, fmt.Errorf("expression returned %s, want bool", out.Type().TypeName())
		}
		if bool(b) {
			idx = append(idx, tx.Row)
		}
	}
	return idx, nil
}

// rowRule builds a Rule whose Check and Sample are both driven by the same
// compiled row predicate, keeping the check/sample pairing contract by
// construction.
func rowRule(id, standard, clause, description string, severity domain.Severity, program cel.Program) Rule {
	return Rule{
		ID:          id,
		Standard:    standard,
		Clause:      clause,
		Description: description,
		Severity:    severity,
		Check: func(l domain.Ledger) (bool, error) {
			idx, err := matchRows(program, l)
			if err != nil {
				return false, err
			}
			return len(idx) > 0, nil
		},
		Sample: func(l domain.Ledger) domain.Ledger {
			idx, err := matchRows(program, l)
			if err != nil {
				return nil
			}
			return l.Rows(idx)
		},
	}
}

// compile compiles a row-predicate expression and enforces a bool output.
func (e *Engine) compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression must return bool, got %s", ast.OutputType())
	}
	return e.env.Program(ast)
}

// ValidateRule compiles a custom rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.RuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	if cfg.ID == "" {
		return fmt.Errorf("rule id is required")
	}
	if _, err := e.compile(cfg.Expression); err != nil {
		return fmt.Errorf("rule %s: %w", cfg.ID, err)
	}
	return nil
}

// LoadRule compiles and loads a custom rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RuleConfig) error {
	program, err := e.compile(cfg.Expression)
	if err != nil {
		return fmt.Errorf("failed to compile rule %s: %w", cfg.ID, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.custom[cfg.ID]; !exists {
		e.order = append(e.order, cfg.ID)
	}
	e.custom[cfg.ID] = &compiledCustom{config: cfg, program: program}
	return nil
}

// LoadRules compiles and loads multiple enabled custom rules.
func (e *Engine) LoadRules(configs []*domain.RuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules clears all custom rules and loads new ones. Enables
// hot-reloading from the repository.
func (e *Engine) ReloadRules(configs []*domain.RuleConfig) error {
	fresh := make(map[string]*compiledCustom)
	var order []string
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		program, err := e.compile(cfg.Expression)
		if err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", cfg.ID, err)
		}
		if _, exists := fresh[cfg.ID]; !exists {
			order = append(order, cfg.ID)
		}
		fresh[cfg.ID] = &compiledCustom{config: cfg, program: program}
	}

	e.mu.Lock()
	e.custom = fresh
	e.order = order
	e.mu.Unlock()
	return nil
}

// CustomRulesCount returns the number of loaded custom rules.
func (e *Engine) CustomRulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.custom)
}

// GetLoadedRules returns the currently loaded custom rule configurations.
func (e *Engine) GetLoadedRules() []*domain.RuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*domain.RuleConfig, 0, len(e.custom))
	for _, id := range e.order {
		out = append(out, e.custom[id].config)
	}
	return out
}

// Catalogue assembles the evaluation catalogue: the static built-ins in
// definition order, then custom rules in load order. The slice is built
// fresh per call; no state survives between evaluations.
func (e *Engine) Catalogue() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	catalogue := make([]Rule, len(e.builtin), len(e.builtin)+len(e.custom))
	copy(catalogue, e.builtin)
	for _, id := range e.order {
		c := e.custom[id]
		catalogue = append(catalogue, rowRule(
			c.config.ID,
			c.config.Standard,
			c.config.Clause,
			c.config.Description,
			c.config.Severity,
			c.program,
		))
	}
	return catalogue
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.custom = make(map[string]*compiledCustom)
	e.order = nil
	return nil
}
