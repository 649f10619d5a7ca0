// Package statements derives monthly financial statements and headline
// ratios from a normalized ledger. All monetary figures use decimal
// arithmetic and are rounded to 2 decimal places; float drift from summing
// many rows never reaches the reported statements.
package statements

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const monthLayout = "2006-01"

// IncomeLine is one month of the income statement. Expense keeps its
// natural negative sign; NetProfit = Revenue + Expense. GrossMargin is
// NetProfit over Revenue, 0 when the month has no revenue.
type IncomeLine struct {
	Month       string          `json:"month"`
	Revenue     decimal.Decimal `json:"revenue"`
	Expense     decimal.Decimal `json:"expense"`
	NetProfit   decimal.Decimal `json:"netProfit"`
	GrossMargin decimal.Decimal `json:"grossMargin"`
}

// CashFlowLine is one month of the cash flow statement. Outflow is
// negative; Net = Inflow + Outflow.
type CashFlowLine struct {
	Month   string          `json:"month"`
	Inflow  decimal.Decimal `json:"inflow"`
	Outflow decimal.Decimal `json:"outflow"`
	Net     decimal.Decimal `json:"net"`
}

// BalanceSheet is the single-snapshot estimate derivable from a flat
// ledger: Revenue = sum of positives, Expense = |sum of negatives|,
// Cash = net sum, Equity = Revenue - Expense.
type BalanceSheet struct {
	Revenue decimal.Decimal `json:"revenue"`
	Expense decimal.Decimal `json:"expense"`
	Cash    decimal.Decimal `json:"cash"`
	Equity  decimal.Decimal `json:"equity"`
}

// monthBuckets accumulates ledger amounts into per-month positive and
// negative totals, returning the sorted month keys.
func monthBuckets(l domain.Ledger) ([]string, map[string]decimal.Decimal, map[string]decimal.Decimal) {
	pos := make(map[string]decimal.Decimal)
	neg := make(map[string]decimal.Decimal)
	seen := make(map[string]bool)

	for _, tx := range l {
		m := tx.Date.Format(monthLayout)
		seen[m] = true
		amt := decimal.NewFromFloat(tx.Amount)
		if tx.Amount > 0 {
			pos[m] = pos[m].Add(amt)
		} else if tx.Amount < 0 {
			neg[m] = neg[m].Add(amt)
		}
	}

	months := make([]string, 0, len(seen))
	for m := range seen {
		months = append(months, m)
	}
	sort.Strings(months)
	return months, pos, neg
}

// IncomeStatement returns one line per calendar month in chronological
// order.
func IncomeStatement(l domain.Ledger) []IncomeLine {
	months, pos, neg := monthBuckets(l)

	out := make([]IncomeLine, 0, len(months))
	for _, m := range months {
		revenue := pos[m]
		expense := neg[m]
		net := revenue.Add(expense)

		margin := decimal.Zero
		if !revenue.IsZero() {
			margin = net.Div(revenue)
		}

		out = append(out, IncomeLine{
			Month:       m,
			Revenue:     revenue.Round(2),
			Expense:     expense.Round(2),
			NetProfit:   net.Round(2),
			GrossMargin: margin.Round(2),
		})
	}
	return out
}

// CashFlow returns one line per calendar month in chronological order.
func CashFlow(l domain.Ledger) []CashFlowLine {
	months, pos, neg := monthBuckets(l)

	out := make([]CashFlowLine, 0, len(months))
	for _, m := range months {
		inflow := pos[m]
		outflow := neg[m]
		out = append(out, CashFlowLine{
			Month:   m,
			Inflow:  inflow.Round(2),
			Outflow: outflow.Round(2),
			Net:     inflow.Add(outflow).Round(2),
		})
	}
	return out
}

// Estimate builds the balance-sheet estimate over the whole ledger.
func Estimate(l domain.Ledger) BalanceSheet {
	var revenue, expense, cash decimal.Decimal
	for _, tx := range l {
		amt := decimal.NewFromFloat(tx.Amount)
		cash = cash.Add(amt)
		if tx.Amount > 0 {
			revenue = revenue.Add(amt)
		} else if tx.Amount < 0 {
			expense = expense.Add(amt)
		}
	}
	expense = expense.Abs()

	return BalanceSheet{
		Revenue: revenue.Round(2),
		Expense: expense.Round(2),
		Cash:    cash.Round(2),
		Equity:  revenue.Sub(expense).Round(2),
	}
}

// Ratios returns the headline figures shown alongside the audit summary.
// Keys are display labels; values are rounded to 2 decimal places.
func Ratios(l domain.Ledger) map[string]decimal.Decimal {
	bs := Estimate(l)
	return map[string]decimal.Decimal{
		"Total Revenue":  bs.Revenue,
		"Total Expenses": bs.Expense,
		"Net Profit":     bs.Cash,
	}
}

// RatiosFloat is Ratios converted to float64 for the audit artifact and
// the opinion prompt.
func RatiosFloat(l domain.Ledger) map[string]float64 {
	out := make(map[string]float64, 3)
	for k, v := range Ratios(l) {
		out[k] = v.InexactFloat64()
	}
	return out
}
