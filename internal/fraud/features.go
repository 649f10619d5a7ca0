// Package fraud derives model features from a ledger and scores each
// transaction with the trained classifier artifact, including additive
// per-feature attributions for explanations.
package fraud

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// FeatureWidth is the fixed input width of the trained classifier:
// Time, Amount, and the 28 reserved latent slots V1..V28. The trained
// weights assume the reserved slots are always zero at inference time, so
// this width must never change and the slots must never carry real signal
// without retraining.
const FeatureWidth = 30

// FeatureNames returns the feature vector layout in column order.
func FeatureNames() []string {
	names := make([]string, 0, FeatureWidth)
	names = append(names, "Time", "Amount")
	for i := 1; i <= 28; i++ {
		names = append(names, fmt.Sprintf("V%d", i))
	}
	return names
}

// Derive maps a ledger into one fixed-width feature vector per transaction,
// preserving row order. Pure function of the ledger:
//   - Time: seconds between the row and the earliest date in the ledger
//     (rows with a zero date contribute 0)
//   - Amount: absolute amount
//   - V1..V28: neutral 0.0
func Derive(l domain.Ledger) [][]float64 {
	out := make([][]float64, len(l))
	if len(l) == 0 {
		return out
	}

	min := l[0].Date
	for _, tx := range l {
		if !tx.Date.IsZero() && (min.IsZero() || tx.Date.Before(min)) {
			min = tx.Date
		}
	}

	for i, tx := range l {
		row := make([]float64, FeatureWidth)
		if !tx.Date.IsZero() && !min.IsZero() {
			row[0] = tx.Date.Sub(min).Seconds()
		}
		row[1] = math.Abs(tx.Amount)
		out[i] = row
	}
	return out
}
