package anomaly

import (
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func mkTx(row int, date string, desc string, amount float64) domain.Transaction {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return domain.Transaction{Row: row, Date: d, Description: desc, Amount: amount}
}

func TestDuplicatesKeepAll(t *testing.T) {
	l := domain.Ledger{
		mkTx(0, "2024-01-05", "Rent", -800),
		mkTx(1, "2024-01-05", "Rent", -800),
		mkTx(2, "2024-01-06", "Rent", -800), // different date, not a dupe
		mkTx(3, "2024-01-07", "Utilities", -90),
	}

	got := Duplicates(l)
	if len(got) != 2 {
		t.Fatalf("flagged %d rows, want both occurrences", len(got))
	}
	if got[0].Row != 0 || got[1].Row != 1 {
		t.Errorf("rows = %d, %d", got[0].Row, got[1].Row)
	}
}

func TestDuplicatesTrio(t *testing.T) {
	l := domain.Ledger{
		mkTx(0, "2024-01-05", "Fee", -10),
		mkTx(1, "2024-01-05", "Fee", -10),
		mkTx(2, "2024-01-05", "Fee", -10),
	}
	if got := Duplicates(l); len(got) != 3 {
		t.Errorf("flagged %d rows of a trio, want 3", len(got))
	}
}

func TestDateGaps(t *testing.T) {
	l := domain.Ledger{
		mkTx(0, "2024-01-01", "a", 1),
		mkTx(1, "2024-01-20", "b", 1),
		mkTx(2, "2024-03-15", "c", 1),
	}

	got := DateGaps(l)
	if len(got) != 1 {
		t.Fatalf("flagged %d gaps, want 1", len(got))
	}
	// The later row of the oversized gap is the one flagged.
	if got[0].Row != 2 {
		t.Errorf("flagged row %d, want 2", got[0].Row)
	}
}

func TestDateGapsExactThirtyDaysTolerated(t *testing.T) {
	l := domain.Ledger{
		mkTx(0, "2024-01-01", "a", 1),
		mkTx(1, "2024-01-31", "b", 1),
	}
	if got := DateGaps(l); len(got) != 0 {
		t.Errorf("30-day gap flagged: %v", got)
	}
}

func TestOutliers(t *testing.T) {
	// 20 unremarkable rows plus one far outside 3 sigma.
	var l domain.Ledger
	for i := 0; i < 20; i++ {
		l = append(l, mkTx(i, "2024-01-02", fmt.Sprintf("txn %d", i), 100+float64(i)))
	}
	l = append(l, mkTx(20, "2024-01-03", "spike", 100000))

	got := Outliers(l)
	if len(got) != 1 || got[0].Row != 20 {
		t.Errorf("outliers = %+v, want only the spike", got)
	}
}

func TestOutliersDegenerate(t *testing.T) {
	if got := Outliers(domain.Ledger{mkTx(0, "2024-01-01", "one", 5)}); got != nil {
		t.Errorf("single row produced outliers: %v", got)
	}

	constant := domain.Ledger{
		mkTx(0, "2024-01-01", "a", 5),
		mkTx(1, "2024-01-02", "b", 5),
		mkTx(2, "2024-01-03", "c", 5),
	}
	if got := Outliers(constant); got != nil {
		t.Errorf("zero-deviation ledger produced outliers: %v", got)
	}
}

func TestWeekend(t *testing.T) {
	l := domain.Ledger{
		mkTx(0, "2024-01-05", "friday", 1),
		mkTx(1, "2024-01-06", "saturday", 1),
		mkTx(2, "2024-01-07", "sunday", 1),
		mkTx(3, "2024-01-08", "monday", 1),
	}

	got := Weekend(l)
	if len(got) != 2 || got[0].Row != 1 || got[1].Row != 2 {
		t.Errorf("weekend rows = %+v", got)
	}
}

func TestRoundedCash(t *testing.T) {
	l := domain.Ledger{
		mkTx(0, "2024-01-02", "flagged", -25000),
		mkTx(1, "2024-01-03", "not round", -25500),
		mkTx(2, "2024-01-04", "below threshold", -15000),
		mkTx(3, "2024-01-05", "inflow ignored", 30000),
		mkTx(4, "2024-01-08", "boundary", -20000),
	}

	got := RoundedCash(l)
	if len(got) != 1 || got[0].Row != 0 {
		t.Errorf("rounded cash = %+v, want only row 0", got)
	}
}

func TestMissingDescription(t *testing.T) {
	l := domain.Ledger{
		mkTx(0, "2024-01-02", "", 1),
		mkTx(1, "2024-01-03", "  \t ", 1),
		mkTx(2, "2024-01-04", "real", 1),
	}

	got := MissingDescription(l)
	if len(got) != 2 || got[0].Row != 0 || got[1].Row != 1 {
		t.Errorf("missing descriptions = %+v", got)
	}
}

func TestRunAudit(t *testing.T) {
	l := domain.Ledger{
		mkTx(0, "2024-01-02", "Sale", 1000),
		mkTx(1, "2024-01-02", "Sale", 1000), // duplicate pair
		mkTx(2, "2024-03-15", "Late entry", -400),
	}

	summary, issues := RunAudit(l)

	want := "Txns 3, Rev 2000, Exp -400, Issues 2"
	if summary != want {
		t.Errorf("summary = %q, want %q", summary, want)
	}

	if len(issues) != 2 {
		t.Fatalf("issue tables = %d, want duplicate and date gap", len(issues))
	}
	if issues[0].Label != LabelDuplicate || len(issues[0].Rows) != 2 {
		t.Errorf("first table = %s/%d", issues[0].Label, len(issues[0].Rows))
	}
	if issues[1].Label != LabelDateGap || len(issues[1].Rows) != 1 {
		t.Errorf("second table = %s/%d", issues[1].Label, len(issues[1].Rows))
	}
}

func TestRunAuditCleanLedger(t *testing.T) {
	l := domain.Ledger{
		mkTx(0, "2024-01-02", "a", 10),
		mkTx(1, "2024-01-10", "b", -5),
	}
	summary, issues := RunAudit(l)
	if len(issues) != 0 {
		t.Errorf("clean ledger produced tables: %+v", issues)
	}
	if summary != "Txns 2, Rev 10, Exp -5, Issues 0" {
		t.Errorf("summary = %q", summary)
	}
}

func TestRedFlags(t *testing.T) {
	l := domain.Ledger{
		mkTx(0, "2024-01-06", "saturday run", -25000), // weekend AND rounded
		mkTx(1, "2024-01-08", "", 10),
	}

	flags := RedFlags(l)
	if len(flags) != 3 {
		t.Fatalf("flag tables = %d, want 3", len(flags))
	}
	if flags[0].Label != LabelWeekend || len(flags[0].Rows) != 1 {
		t.Errorf("weekend table = %s/%d", flags[0].Label, len(flags[0].Rows))
	}
	if flags[1].Label != LabelRoundedCash || flags[1].Rows[0].Row != 0 {
		t.Errorf("rounded table = %+v", flags[1])
	}
	if flags[2].Label != LabelMissingDesc || flags[2].Rows[0].Row != 1 {
		t.Errorf("missing-desc table = %+v", flags[2])
	}
}
