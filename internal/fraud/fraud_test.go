package fraud

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// newTestModel builds a minimal valid artifact: identity scaling on Time
// and Amount, zero weight everywhere except where the test sets one.
func newTestModel() *Model {
	m := &Model{
		Version:      "test",
		Features:     FeatureNames(),
		Means:        make([]float64, FeatureWidth),
		Stds:         make([]float64, FeatureWidth),
		Coefficients: make([]float64, FeatureWidth),
		Intercept:    0,
	}
	m.Stds[0] = 1 // Time
	m.Stds[1] = 1 // Amount
	return m
}

func mkTx(row int, date string, desc string, amount float64) domain.Transaction {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return domain.Transaction{Row: row, Date: d, Description: desc, Amount: amount}
}

func TestFeatureNames(t *testing.T) {
	names := FeatureNames()
	if len(names) != FeatureWidth {
		t.Fatalf("len = %d, want %d", len(names), FeatureWidth)
	}
	if names[0] != "Time" || names[1] != "Amount" || names[2] != "V1" || names[29] != "V28" {
		t.Errorf("layout = %v", names[:3])
	}
}

func TestDerive(t *testing.T) {
	l := domain.Ledger{
		mkTx(0, "2024-01-01", "first", -50),
		mkTx(1, "2024-01-02", "second", 120),
	}

	features := Derive(l)
	if len(features) != 2 {
		t.Fatalf("rows = %d", len(features))
	}
	if features[0][0] != 0 {
		t.Errorf("earliest row Time = %v, want 0", features[0][0])
	}
	if features[1][0] != 86400 {
		t.Errorf("next-day Time = %v, want 86400", features[1][0])
	}
	if features[0][1] != 50 {
		t.Errorf("Amount = %v, want |−50| = 50", features[0][1])
	}
	for i := 2; i < FeatureWidth; i++ {
		if features[0][i] != 0 {
			t.Fatalf("reserved slot %d carries signal: %v", i, features[0][i])
		}
	}
}

func TestDeriveEmptyLedger(t *testing.T) {
	if got := Derive(nil); len(got) != 0 {
		t.Errorf("Derive(nil) = %v", got)
	}
}

func TestScore(t *testing.T) {
	m := newTestModel()
	m.Coefficients[1] = 0.1 // Amount only
	scorer := NewScorer(m)

	l := domain.Ledger{
		mkTx(0, "2024-01-01", "zero", 0),
		mkTx(1, "2024-01-01", "ten", 10),
		mkTx(2, "2024-01-01", "huge", 1e6),
	}

	scores := scorer.Score(l)
	if len(scores) != 3 {
		t.Fatalf("scores = %d", len(scores))
	}

	// sigmoid(0) = 0.5, sigmoid(1) ~ 0.7311, sigmoid(100000) -> 1.
	want := []float64{50.0, 73.1, 100.0}
	for i, s := range scores {
		if s.Row != i {
			t.Errorf("score %d row = %d", i, s.Row)
		}
		if s.Percent != want[i] {
			t.Errorf("score %d = %v, want %v", i, s.Percent, want[i])
		}
		if s.Percent < 0 || s.Percent > 100 {
			t.Errorf("score %d out of bounds: %v", i, s.Percent)
		}
	}
}

func TestScoreEmptyLedger(t *testing.T) {
	scorer := NewScorer(newTestModel())
	if got := scorer.Score(nil); len(got) != 0 {
		t.Errorf("Score(nil) = %v", got)
	}
}

func TestScoreDeterministic(t *testing.T) {
	m := newTestModel()
	m.Coefficients[1] = 0.02
	scorer := NewScorer(m)

	l := domain.Ledger{mkTx(0, "2024-01-01", "row", 333.33)}
	a := scorer.Score(l)
	b := scorer.Score(l)
	if a[0].Percent != b[0].Percent {
		t.Errorf("same input scored differently: %v vs %v", a[0].Percent, b[0].Percent)
	}
}

func TestExplainDominantFeature(t *testing.T) {
	m := newTestModel()
	m.Coefficients[1] = 0.1
	scorer := NewScorer(m)

	l := domain.Ledger{mkTx(0, "2024-01-01", "big", 10)}

	got, err := scorer.Explain(l, 0)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	want := "This transaction was flagged as 73.1% risk due to: large amount."
	if got != want {
		t.Errorf("explanation = %q, want %q", got, want)
	}
}

func TestExplainFallback(t *testing.T) {
	scorer := NewScorer(newTestModel()) // all-zero coefficients

	l := domain.Ledger{mkTx(0, "2024-01-01", "flat", 10)}

	got, err := scorer.Explain(l, 0)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if !strings.Contains(got, "(no dominant feature detected)") {
		t.Errorf("explanation = %q, want fallback", got)
	}
	if !strings.HasPrefix(got, "This transaction was flagged as 50.0% risk") {
		t.Errorf("explanation = %q, want 50.0%% risk prefix", got)
	}
}

func TestExplainAttributionOrdering(t *testing.T) {
	m := newTestModel()
	m.Coefficients[0] = 0.01 // Time
	m.Coefficients[1] = 0.1  // Amount
	scorer := NewScorer(m)

	// One day after the anchor: Time contribution 864 dwarfs Amount 0.5.
	l := domain.Ledger{
		mkTx(0, "2024-01-01", "anchor", 5),
		mkTx(1, "2024-01-02", "late", 5),
	}

	got, err := scorer.Explain(l, 1)
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	ti := strings.Index(got, "date anomaly")
	ai := strings.Index(got, "large amount")
	if ti < 0 || ai < 0 || ti > ai {
		t.Errorf("explanation = %q, want date anomaly before large amount", got)
	}
}

func TestExplainRowOutOfRange(t *testing.T) {
	scorer := NewScorer(newTestModel())
	l := domain.Ledger{mkTx(0, "2024-01-01", "only", 1)}

	if _, err := scorer.Explain(l, 5); !errors.Is(err, domain.ErrRowOutOfRange) {
		t.Errorf("Explain(5) = %v, want ErrRowOutOfRange", err)
	}
	if _, err := scorer.Explain(l, -1); !errors.Is(err, domain.ErrRowOutOfRange) {
		t.Errorf("Explain(-1) = %v, want ErrRowOutOfRange", err)
	}
}

func TestExplainAll(t *testing.T) {
	m := newTestModel()
	m.Coefficients[1] = 0.1
	scorer := NewScorer(m)

	l := domain.Ledger{
		mkTx(0, "2024-01-01", "a", 10),
		mkTx(1, "2024-01-01", "b", 0),
	}

	got := scorer.ExplainAll(l)
	if len(got) != 2 {
		t.Fatalf("explanations = %d", len(got))
	}
	if !strings.Contains(got[0], "large amount") {
		t.Errorf("row 0 = %q", got[0])
	}
	if !strings.Contains(got[1], "no dominant feature") {
		t.Errorf("row 1 = %q", got[1])
	}
}

func TestLoadModelMissingFile(t *testing.T) {
	_, err := LoadModel(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("got %v, want ErrModelUnavailable", err)
	}
}

func TestLoadModelMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadModel(path); !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("got %v, want ErrModelUnavailable", err)
	}
}

func TestLoadModelWrongWidth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	artifact := `{
		"version": "test",
		"features": ["Time", "Amount"],
		"means": [0, 0],
		"stds": [1, 1],
		"coefficients": [0, 0],
		"intercept": 0
	}`
	if err := os.WriteFile(path, []byte(artifact), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadModel(path); !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("got %v, want ErrModelUnavailable", err)
	}
}

func TestOpenMissingArtifact(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "absent.json")); !errors.Is(err, domain.ErrModelUnavailable) {
		t.Errorf("Open = %v, want ErrModelUnavailable", err)
	}
}
