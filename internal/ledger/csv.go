package ledger

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ReadCSV reads an uploaded CSV ledger. The header row is canonicalized
// through the alias table; the file must expose date, description and
// amount columns or the read fails with ErrMissingColumns. Data rows whose
// date or amount fail coercion are dropped, matching the upload front door
// contract.
func ReadCSV(r io.Reader) (domain.Ledger, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cols := map[string]int{}
	for i, h := range header {
		cols[CanonicalColumn(h)] = i
	}
	for _, required := range []string{"date", "description", "amount"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("%w: no %q column", domain.ErrMissingColumns, required)
		}
	}

	var out domain.Ledger
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}

		cell := func(name string) string {
			i := cols[name]
			if i >= len(record) {
				return ""
			}
			return record[i]
		}

		date, ok := ParseDate(cell("date"))
		if !ok {
			continue
		}
		amount, ok := ParseAmount(cell("amount"))
		if !ok {
			continue
		}

		out = append(out, domain.Transaction{
			Date:        date,
			Description: cell("description"),
			Amount:      amount,
		})
	}

	return finalize(out), nil
}
