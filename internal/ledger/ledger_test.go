package ledger

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestCanonicalColumn(t *testing.T) {
	cases := map[string]string{
		"Date":             "date",
		"transaction_date": "date",
		"TRANS_DATE":       "date",
		"Details":          "description",
		"desc":             "description",
		"Amount":           "amount",
		"amt":              "amount",
		"Value":            "amount",
		" custom ":         "custom",
	}
	for in, want := range cases {
		if got := CanonicalColumn(in); got != want {
			t.Errorf("CanonicalColumn(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseDateLayouts(t *testing.T) {
	cases := []struct {
		cell string
		want time.Time
	}{
		{"2024-03-15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"2024/03/15", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"15-03-2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"03/15/2024", time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"2024-03-15 10:30:00", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)},
		{"2024-03-15T10:30:00Z", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, ok := ParseDate(tc.cell)
		if !ok {
			t.Errorf("ParseDate(%q) failed, want %v", tc.cell, tc.want)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("ParseDate(%q) = %v, want %v", tc.cell, got, tc.want)
		}
	}
}

func TestParseDateRejectsGarbage(t *testing.T) {
	for _, cell := range []string{"", "   ", "not-a-date", "2024-13-99"} {
		if _, ok := ParseDate(cell); ok {
			t.Errorf("ParseDate(%q) succeeded, want failure", cell)
		}
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		cell string
		want float64
	}{
		{"100", 100},
		{"-250.75", -250.75},
		{"1,500,000.00", 1500000},
		{"$42.50", 42.5},
		{" $1,000 ", 1000},
	}
	for _, tc := range cases {
		got, ok := ParseAmount(tc.cell)
		if !ok {
			t.Errorf("ParseAmount(%q) failed", tc.cell)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseAmount(%q) = %v, want %v", tc.cell, got, tc.want)
		}
	}

	for _, cell := range []string{"", "abc", "12.3.4"} {
		if _, ok := ParseAmount(cell); ok {
			t.Errorf("ParseAmount(%q) succeeded, want failure", cell)
		}
	}
}

func TestFromRecordsSortsAndAssignsRows(t *testing.T) {
	l := FromRecords([]domain.RecordInput{
		{Date: "2024-03-01", Description: "later", Amount: 100},
		{Date: "2024-01-01", Description: "earlier", Amount: -50},
		{Date: "garbage", Description: "dropped", Amount: 7},
		{Date: "2024-02-01", Description: "middle", Amount: 25},
	})

	if len(l) != 3 {
		t.Fatalf("got %d rows, want 3 (bad date dropped)", len(l))
	}
	wantOrder := []string{"earlier", "middle", "later"}
	for i, desc := range wantOrder {
		if l[i].Description != desc {
			t.Errorf("row %d = %q, want %q", i, l[i].Description, desc)
		}
		if l[i].Row != i {
			t.Errorf("row %d has Row = %d", i, l[i].Row)
		}
	}
}

func TestFromRecordsStableOnSameDate(t *testing.T) {
	l := FromRecords([]domain.RecordInput{
		{Date: "2024-01-01", Description: "first", Amount: 1},
		{Date: "2024-01-01", Description: "second", Amount: 2},
	})
	if l[0].Description != "first" || l[1].Description != "second" {
		t.Errorf("same-date rows reordered: %q, %q", l[0].Description, l[1].Description)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(nil); !errors.Is(err, domain.ErrEmptyLedger) {
		t.Errorf("Validate(nil) = %v, want ErrEmptyLedger", err)
	}

	l := FromRecords([]domain.RecordInput{{Date: "2024-01-01", Description: "ok", Amount: 1}})
	if err := Validate(l); err != nil {
		t.Errorf("Validate(valid) = %v", err)
	}
}

func TestReadCSV(t *testing.T) {
	csv := strings.Join([]string{
		"Transaction_Date,Details,Amount",
		"2024-01-05,Sales invoice,\"1,200.00\"",
		"2024-01-02,Office rent,-800",
		"bad-date,dropped,50",
		"2024-01-10,,$-300",
	}, "\n")

	l, err := ReadCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(l) != 3 {
		t.Fatalf("got %d rows, want 3", len(l))
	}
	if l[0].Description != "Office rent" || l[0].Amount != -800 {
		t.Errorf("first row = %+v, want Office rent -800", l[0])
	}
	if l[1].Amount != 1200 {
		t.Errorf("aliased amount column = %v, want 1200", l[1].Amount)
	}
	if l[2].Amount != -300 {
		t.Errorf("currency-prefixed amount = %v, want -300", l[2].Amount)
	}
}

func TestReadCSVMissingColumns(t *testing.T) {
	csv := "Date,Amount\n2024-01-01,100\n"
	_, err := ReadCSV(strings.NewReader(csv))
	if !errors.Is(err, domain.ErrMissingColumns) {
		t.Errorf("ReadCSV without description = %v, want ErrMissingColumns", err)
	}
}
