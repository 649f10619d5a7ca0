// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"time"
)

// Transaction is one canonicalized ledger row.
// Row is the positional identifier assigned at normalization time and is
// carried through every derived table (scores, findings samples, flags) so
// independently computed views stay correlated within one audit run.
type Transaction struct {
	Row         int       `json:"row"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
}

// Ledger is the canonicalized sequence of transactions, sorted ascending by
// date. All core components treat it as an immutable snapshot.
type Ledger []Transaction

// TotalRevenue sums all positive amounts.
func (l Ledger) TotalRevenue() float64 {
	var sum float64
	for _, tx := range l {
		if tx.Amount > 0 {
			sum += tx.Amount
		}
	}
	return sum
}

// TotalExpenses sums all negative amounts (the result is <= 0).
func (l Ledger) TotalExpenses() float64 {
	var sum float64
	for _, tx := range l {
		if tx.Amount < 0 {
			sum += tx.Amount
		}
	}
	return sum
}

// Net sums all amounts.
func (l Ledger) Net() float64 {
	var sum float64
	for _, tx := range l {
		sum += tx.Amount
	}
	return sum
}

// Rows returns the subset of the ledger whose Row index is in idx,
// preserving ledger order.
func (l Ledger) Rows(idx []int) Ledger {
	if len(idx) == 0 {
		return nil
	}
	want := make(map[int]bool, len(idx))
	for _, i := range idx {
		want[i] = true
	}
	out := make(Ledger, 0, len(idx))
	for _, tx := range l {
		if want[tx.Row] {
			out = append(out, tx)
		}
	}
	return out
}

// RecordInput is a raw uploaded row before normalization. Date is kept as
// text so the normalizer owns all coercion and drop decisions.
type RecordInput struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}
