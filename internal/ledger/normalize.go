// Package ledger canonicalizes uploaded transaction data into the three-column
// contract (date, description, amount) every core component consumes.
package ledger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// columnAliases maps common upload header spellings onto canonical names.
var columnAliases = map[string]string{
	"transaction_date": "date",
	"trans_date":       "date",
	"details":          "description",
	"desc":             "description",
	"value":            "amount",
	"amt":              "amount",
}

// dateLayouts are tried in order when coercing date cells.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"01/02/2006",
}

// CanonicalColumn maps an upload header onto its canonical column name.
// Unknown headers map to themselves, lowercased and trimmed.
func CanonicalColumn(header string) string {
	h := strings.ToLower(strings.TrimSpace(header))
	if canonical, ok := columnAliases[h]; ok {
		return canonical
	}
	return h
}

// ParseDate coerces a date cell. Returns a zero time and false when no
// layout matches.
func ParseDate(cell string) (time.Time, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseAmount coerces an amount cell, tolerating thousands separators and
// surrounding currency noise. Returns false when the cell is not numeric.
func ParseAmount(cell string) (float64, bool) {
	cell = strings.TrimSpace(cell)
	cell = strings.ReplaceAll(cell, ",", "")
	cell = strings.TrimPrefix(cell, "$")
	if cell == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FromRecords normalizes raw records into a Ledger: rows whose date fails
// coercion are dropped, the rest are sorted ascending by date and assigned
// their stable Row index.
func FromRecords(records []domain.RecordInput) domain.Ledger {
	out := make(domain.Ledger, 0, len(records))
	for _, rec := range records {
		date, ok := ParseDate(rec.Date)
		if !ok {
			continue
		}
		out = append(out, domain.Transaction{
			Date:        date,
			Description: rec.Description,
			Amount:      rec.Amount,
		})
	}
	return finalize(out)
}

// finalize sorts by date (stable, so same-date rows keep upload order) and
// assigns positional row identifiers.
func finalize(l domain.Ledger) domain.Ledger {
	sort.SliceStable(l, func(i, j int) bool {
		return l[i].Date.Before(l[j].Date)
	})
	for i := range l {
		l[i].Row = i
	}
	return l
}

// Validate fails fast when a normalized ledger cannot feed the core
// components.
func Validate(l domain.Ledger) error {
	if len(l) == 0 {
		return domain.ErrEmptyLedger
	}
	for _, tx := range l {
		if tx.Date.IsZero() {
			return fmt.Errorf("%w: row %d has no date", domain.ErrMissingColumns, tx.Row)
		}
	}
	return nil
}
