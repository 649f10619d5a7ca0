package rules

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// builtinSpec is one built-in declarative rule definition.
type builtinSpec struct {
	id          string
	standard    string
	clause      string
	description string
	severity    domain.Severity
	// expression is a CEL row predicate; empty means the rule is defined
	// in Go (cross-row conditions the row environment cannot express).
	expression string
}

// builtinSpecs is the static, versioned catalogue. New rules are added by
// appending definitions; no rule may depend on evaluation order or on any
// other rule's result.
var builtinSpecs = []builtinSpec{
	// ───────── IFRS ─────────
	{
		id:          "IFRS15_NEGREV",
		standard:    "IFRS-15",
		clause:      "9",
		description: "Revenue recorded as negative",
		severity:    domain.SeverityHigh,
		expression:  `description.matches(r'(?i)revenue|sales|income') && amount < 0.0`,
	},
	{
		id:          "IFRS16_LEASE_DESC",
		standard:    "IFRS-16",
		clause:      "24",
		description: "Potential lease expenses found",
		severity:    domain.SeverityMed,
		expression:  `description.matches(r'(?i)lease')`,
	},

	// ───────── US GAAP ─────────
	{
		id:          "ASC606_UNEARNED",
		standard:    "US-GAAP ASC-606",
		clause:      "45-1",
		description: "Line item indicates unearned revenue",
		severity:    domain.SeverityMed,
		expression:  `description.matches(r'(?i)unearned')`,
	},
	{
		id:          "GAAP_RND_NUMBERS",
		standard:    "US-GAAP",
		clause:      "240",
		description: "Rounded amounts indicating potential fraud",
		severity:    domain.SeverityHigh,
		// Roundness is always tested on the magnitude.
		expression: `abs_int % 1000 == 0 && abs_amount > 20000.0`,
	},

	// ───────── ISA ─────────
	{
		id:          "ISA240_ROUNDED",
		standard:    "ISA-240",
		clause:      "32(a)",
		description: "Rounded cash withdrawals > 20,000",
		severity:    domain.SeverityHigh,
		expression:  `amount < 0.0 && abs_int % 1000 == 0 && abs_amount > 20000.0`,
	},
	{
		id:          "ISA500_MISSING_DESC",
		standard:    "ISA-500",
		clause:      "A12",
		description: "Transactions missing descriptions",
		severity:    domain.SeverityHigh,
		expression:  `description.matches(r'^\s*$')`,
	},
	{
		id:          "ISA530_SAME_AMOUNT_DUPES",
		standard:    "ISA-530",
		clause:      "B9",
		description: "Duplicate amounts with same description",
		severity:    domain.SeverityMed,
		// cross-row; implemented in Go, see duplicateAmountDesc
	},

	// ───────── Local (Pakistan FBR) ─────────
	{
		id:          "PK_FBR_500K",
		standard:    "Pakistan FBR",
		clause:      "SRO-586(2017)",
		description: "Single payment > 500,000 must be documented",
		severity:    domain.SeverityMed,
		expression:  `abs_amount > 500000.0`,
	},
	{
		id:          "PK_FBR_WEEKEND_TXNS",
		standard:    "Pakistan FBR",
		clause:      "2022 Circular",
		description: "Transactions recorded on weekends",
		severity:    domain.SeverityLow,
		expression:  `weekday >= 5`,
	},

	// ───────── Materiality ─────────
	{
		id:          "MAT_EXP_5PCT",
		standard:    "ISA-320",
		clause:      "10",
		description: "Single expense >5% of total revenue",
		severity:    domain.SeverityLow,
		expression:  `amount < 0.0 && abs_amount > 0.05 * total_revenue`,
	},
}

// compileBuiltins compiles the static catalogue once at engine
// construction. A compile failure here is a programming error in a
// built-in definition.
func (e *Engine) compileBuiltins() ([]Rule, error) {
	out := make([]Rule, 0, len(builtinSpecs))
	for _, spec := range builtinSpecs {
		if spec.expression == "" {
			out = append(out, goRule(spec))
			continue
		}
		program, err := e.compile(spec.expression)
		if err != nil {
			return nil, fmt.Errorf("built-in rule %s: %w", spec.id, err)
		}
		out = append(out, rowRule(spec.id, spec.standard, spec.clause, spec.description, spec.severity, program))
	}
	return out, nil
}

// goRule dispatches the Go-defined built-ins.
func goRule(spec builtinSpec) Rule {
	var match func(domain.Ledger) []int
	switch spec.id {
	case "ISA530_SAME_AMOUNT_DUPES":
		match = duplicateAmountDesc
	default:
		match = func(domain.Ledger) []int { return nil }
	}

	return Rule{
		ID:          spec.id,
		Standard:    spec.standard,
		Clause:      spec.clause,
		Description: spec.description,
		Severity:    spec.severity,
		Check: func(l domain.Ledger) (bool, error) {
			return len(match(l)) > 0, nil
		},
		Sample: func(l domain.Ledger) domain.Ledger {
			return l.Rows(match(l))
		},
	}
}

// duplicateAmountDesc returns every row sharing its (amount, description)
// pair with at least one other row (keep-all semantics).
func duplicateAmountDesc(l domain.Ledger) []int {
	count := make(map[string]int, len(l))
	key := func(tx domain.Transaction) string {
		return fmt.Sprintf("%.4f|%s", tx.Amount, tx.Description)
	}
	for _, tx := range l {
		count[key(tx)]++
	}
	var idx []int
	for _, tx := range l {
		if count[key(tx)] > 1 {
			idx = append(idx, tx.Row)
		}
	}
	return idx
}
