// Package anomaly implements the statistical and heuristic ledger checks:
// duplicates, date gaps, outliers, weekend entries, rounded cash and
// missing descriptions. Every detector is a pure function over the ledger
// returning its own tagged subset; a row may appear under several detectors
// and no deduplication happens across detector types.
package anomaly

import (
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Detector labels.
const (
	LabelDuplicate   = "Duplicate"
	LabelDateGap     = "Date gap"
	LabelOutlier     = "Outlier"
	LabelWeekend     = "Weekend"
	LabelRoundedCash = "Rounded cash"
	LabelMissingDesc = "Missing desc"
)

// maxGap is the largest tolerated gap between consecutive entries.
const maxGap = 30 * 24 * time.Hour

// Duplicates returns every row sharing its (date, description, amount)
// triple with at least one other row. Keep-all semantics: both occurrences
// are flagged, not just the second.
func Duplicates(l domain.Ledger) domain.Ledger {
	count := make(map[string]int, len(l))
	key := func(tx domain.Transaction) string {
		return fmt.Sprintf("%s|%s|%.4f", tx.Date.Format("2006-01-02"), tx.Description, tx.Amount)
	}
	for _, tx := range l {
		count[key(tx)]++
	}
	var out domain.Ledger
	for _, tx := range l {
		if count[key(tx)] > 1 {
			out = append(out, tx)
		}
	}
	return out
}

// DateGaps returns rows whose gap to the immediately preceding row exceeds
// 30 days. The ledger is already date-sorted by the normalization contract.
func DateGaps(l domain.Ledger) domain.Ledger {
	var out domain.Ledger
	for i := 1; i < len(l); i++ {
		if l[i].Date.Sub(l[i-1].Date) > maxGap {
			out = append(out, l[i])
		}
	}
	return out
}

// Outliers returns rows whose amount lies more than 3 population standard
// deviations from the ledger mean. Mean and deviation are recomputed per
// call over the whole ledger; not robust to extreme skew.
func Outliers(l domain.Ledger) domain.Ledger {
	if len(l) < 2 {
		return nil
	}

	var sum float64
	for _, tx := range l {
		sum += tx.Amount
	}
	mean := sum / float64(len(l))

	var sq float64
	for _, tx := range l {
		d := tx.Amount - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(l)))
	if std == 0 {
		return nil
	}

	var out domain.Ledger
	for _, tx := range l {
		if tx.Amount > mean+3*std || tx.Amount < mean-3*std {
			out = append(out, tx)
		}
	}
	return out
}

// Weekend returns rows dated on a Saturday or Sunday.
func Weekend(l domain.Ledger) domain.Ledger {
	var out domain.Ledger
	for _, tx := range l {
		if wd := tx.Date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			out = append(out, tx)
		}
	}
	return out
}

// RoundedCash returns negative amounts whose magnitude is a multiple of
// 1000 and exceeds 20,000: the structuring pattern. Roundness is tested on
// the magnitude.
func RoundedCash(l domain.Ledger) domain.Ledger {
	var out domain.Ledger
	for _, tx := range l {
		if tx.Amount >= 0 {
			continue
		}
		magnitude := math.Abs(tx.Amount)
		if magnitude > 20000 && math.Mod(magnitude, 1000) == 0 {
			out = append(out, tx)
		}
	}
	return out
}

// MissingDescription returns rows with a blank or whitespace-only
// description.
func MissingDescription(l domain.Ledger) domain.Ledger {
	var out domain.Ledger
	for _, tx := range l {
		if isBlank(tx.Description) {
			out = append(out, tx)
		}
	}
	return out
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

// RunAudit executes the core audit checks (duplicates, date gaps,
// outliers) and returns the summary line plus the non-empty issue tables.
func RunAudit(l domain.Ledger) (string, []domain.IssueTable) {
	var issues []domain.IssueTable
	for _, check := range []struct {
		label  string
		detect func(domain.Ledger) domain.Ledger
	}{
		{LabelDuplicate, Duplicates},
		{LabelDateGap, DateGaps},
		{LabelOutlier, Outliers},
	} {
		if rows := check.detect(l); len(rows) > 0 {
			issues = append(issues, domain.IssueTable{Label: check.label, Rows: rows})
		}
	}

	summary := fmt.Sprintf("Txns %d, Rev %.0f, Exp %.0f, Issues %d",
		len(l), l.TotalRevenue(), l.TotalExpenses(), len(issues))
	return summary, issues
}

// RedFlags executes the red-flag detectors (weekend, rounded cash, missing
// description) and returns the non-empty flag tables.
func RedFlags(l domain.Ledger) []domain.IssueTable {
	var flags []domain.IssueTable
	for _, check := range []struct {
		label  string
		detect func(domain.Ledger) domain.Ledger
	}{
		{LabelWeekend, Weekend},
		{LabelRoundedCash, RoundedCash},
		{LabelMissingDesc, MissingDescription},
	} {
		if rows := check.detect(l); len(rows) > 0 {
			flags = append(flags, domain.IssueTable{Label: check.label, Rows: rows})
		}
	}
	return flags
}
