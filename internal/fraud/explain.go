package fraud

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// attributionFloor is the minimum absolute contribution a feature must
// carry to appear in an explanation.
const attributionFloor = 0.01

// topFeatures is how many attributions an explanation names at most.
const topFeatures = 3

// glossary maps feature names onto human-readable reasons. Unmapped names
// pass through as-is.
var glossary = map[string]string{
	"Amount": "large amount",
	"Time":   "date anomaly",
	"V1":     "unusual pattern (V1)",
	"V2":     "unusual pattern (V2)",
	"V3":     "unusual pattern (V3)",
}

// Attributions returns the signed per-feature contribution matrix for the
// ledger, one row per transaction in ledger order. For the logistic layer
// the contribution of feature i is exactly coefficient_i x scaled_i, an
// additive decomposition of the pre-sigmoid score. Computed once for the
// whole ledger; callers explaining many rows should index into this rather
// than recomputing per row.
func (s *Scorer) Attributions(l domain.Ledger) [][]float64 {
	features := Derive(l)
	out := make([][]float64, len(l))
	for i := range l {
		scaled := s.model.scale(features[i])
		contrib := make([]float64, len(scaled))
		for j, v := range scaled {
			contrib[j] = s.model.Coefficients[j] * v
		}
		out[i] = contrib
	}
	return out
}

// Explain composes a natural-language explanation for a single row.
func (s *Scorer) Explain(l domain.Ledger, row int) (string, error) {
	if row < 0 || row >= len(l) {
		return "", fmt.Errorf("%w: %d", domain.ErrRowOutOfRange, row)
	}
	scores := s.Score(l)
	attributions := s.Attributions(l)
	return composeExplanation(scores[row].Percent, attributions[row]), nil
}

// ExplainAll returns one explanation per row, computing scores and
// attributions in a single pass over the ledger.
func (s *Scorer) ExplainAll(l domain.Ledger) []string {
	scores := s.Score(l)
	attributions := s.Attributions(l)
	out := make([]string, len(l))
	for i := range l {
		out[i] = composeExplanation(scores[i].Percent, attributions[i])
	}
	return out
}

// composeExplanation selects the dominant attributions and renders the
// explanation sentence.
func composeExplanation(riskPercent float64, contributions []float64) string {
	names := FeatureNames()

	order := make([]int, len(contributions))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return abs(contributions[order[a]]) > abs(contributions[order[b]])
	})

	var reasons []string
	for _, i := range order {
		if len(reasons) == topFeatures {
			break
		}
		if abs(contributions[i]) <= attributionFloor {
			break
		}
		name := names[i]
		if mapped, ok := glossary[name]; ok {
			name = mapped
		}
		reasons = append(reasons, name)
	}

	if len(reasons) == 0 {
		return fmt.Sprintf("This transaction was flagged as %.1f%% risk (no dominant feature detected).", riskPercent)
	}
	return fmt.Sprintf("This transaction was flagged as %.1f%% risk due to: %s.", riskPercent, strings.Join(reasons, ", "))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
