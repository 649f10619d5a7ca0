package fraud

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Model is the serialized classifier artifact: a standard scaler followed
// by a logistic layer over the fixed-width feature vector. Loaded once per
// process and read-only afterwards; scoring is deterministic given the same
// artifact and input.
type Model struct {
	Version      string    `json:"version"`
	Features     []string  `json:"features"`
	Means        []float64 `json:"means"`
	Stds         []float64 `json:"stds"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// LoadModel reads the classifier artifact from disk. A missing or
// unreadable artifact is a fatal, user-visible condition for scoring: it
// yields ErrModelUnavailable, never a fabricated default score.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: malformed artifact %s: %v", domain.ErrModelUnavailable, path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}
	return &m, nil
}

func (m *Model) validate() error {
	if len(m.Features) != FeatureWidth {
		return fmt.Errorf("artifact has %d features, want %d", len(m.Features), FeatureWidth)
	}
	if len(m.Means) != FeatureWidth || len(m.Stds) != FeatureWidth || len(m.Coefficients) != FeatureWidth {
		return fmt.Errorf("artifact scaler/coefficient widths do not match feature width %d", FeatureWidth)
	}
	return nil
}

// scale applies the standard scaler to one feature vector. A zero std
// (constant training column, e.g. the reserved V slots) scales to 0.
func (m *Model) scale(features []float64) []float64 {
	scaled := make([]float64, len(features))
	for i, v := range features {
		if m.Stds[i] > 0 {
			scaled[i] = (v - m.Means[i]) / m.Stds[i]
		}
	}
	return scaled
}

// probability returns the positive-class probability for one scaled vector.
func (m *Model) probability(scaled []float64) float64 {
	z := m.Intercept
	for i, v := range scaled {
		z += m.Coefficients[i] * v
	}
	return 1.0 / (1.0 + math.Exp(-z))
}

// Scorer applies the trained model to ledgers.
type Scorer struct {
	model *Model
}

// NewScorer creates a scorer around a loaded model.
func NewScorer(model *Model) *Scorer {
	return &Scorer{model: model}
}

// Open loads the artifact at path and returns a ready scorer.
func Open(path string) (*Scorer, error) {
	model, err := LoadModel(path)
	if err != nil {
		return nil, err
	}
	return NewScorer(model), nil
}

// Score returns the fraud risk per transaction as a percentage in [0,100],
// rounded to one decimal, preserving row identity. An empty ledger yields
// an empty slice without error.
func (s *Scorer) Score(l domain.Ledger) []domain.RiskScore {
	features := Derive(l)
	scores := make([]domain.RiskScore, len(l))
	for i, tx := range l {
		prob := s.model.probability(s.model.scale(features[i]))
		scores[i] = domain.RiskScore{
			Row:     tx.Row,
			Percent: roundPercent(prob * 100),
		}
	}
	return scores
}

// roundPercent rounds to one decimal place.
func roundPercent(p float64) float64 {
	return math.Round(p*10) / 10
}
