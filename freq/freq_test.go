package freq

import (
	"strings"
	"testing"

	"github.com/csvengine/core/csvio"
)

func TestTableRowsBasic(t *testing.T) {
	tbl := NewTable()
	opts := DefaultOptions()
	for _, v := range []string{"a", "a", "b"} {
		tbl.Observe(v, opts)
	}
	rows := tbl.Rows(opts)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Value != "a" || rows[0].Count != 2 {
		t.Fatalf("expected top row a/2, got %+v", rows[0])
	}
}

func TestTableRowsOtherBucket(t *testing.T) {
	// Scenario from the end-to-end spec: h1 = a,a,a,a,b,(empty),(empty)
	// with limit 1 collapses the tail (b + NULL) into "Other (3)".
	tbl := NewTable()
	opts := DefaultOptions()
	opts.Limit = 1
	for _, v := range []string{"a", "a", "a", "a", "b", "", ""} {
		tbl.Observe(v, opts)
	}
	rows := tbl.Rows(opts)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows (top + other), got %d: %+v", len(rows), rows)
	}
	if rows[0].Value != "a" || rows[0].Count != 4 {
		t.Fatalf("expected a/4 as top row, got %+v", rows[0])
	}
	if rows[1].Value != "Other (3)" || rows[1].Count != 3 {
		t.Fatalf("expected Other (3)/3, got %+v", rows[1])
	}
	wantPct := 57.14286
	if diff := rows[0].Percentage - wantPct; diff > 0.001 || diff < -0.001 {
		t.Fatalf("expected percentage ~%v, got %v", wantPct, rows[0].Percentage)
	}
}

func TestTableNoNullsExcludesFromDenominator(t *testing.T) {
	tbl := NewTable()
	opts := DefaultOptions()
	opts.NoNulls = true
	for _, v := range []string{"a", "a", "", ""} {
		tbl.Observe(v, opts)
	}
	rows := tbl.Rows(opts)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row (nulls excluded), got %d", len(rows))
	}
	if rows[0].Percentage != 100 {
		t.Fatalf("expected 100%% of non-excluded rows, got %v", rows[0].Percentage)
	}
}

func TestTableMergeCommutative(t *testing.T) {
	opts := DefaultOptions()
	a, b := NewTable(), NewTable()
	for _, v := range []string{"x", "x", "y"} {
		a.Observe(v, opts)
	}
	for _, v := range []string{"y", "z"} {
		b.Observe(v, opts)
	}
	a.Merge(b)
	rows := a.Rows(opts)
	total := uint64(0)
	for _, r := range rows {
		total += r.Count
	}
	if total != 5 {
		t.Fatalf("expected merged total 5, got %d", total)
	}
}

func TestRunCountsAcrossBatches(t *testing.T) {
	data := "h1,h2\na,1\na,2\nb,3\n"
	r := csvio.NewReader(strings.NewReader(data), csvio.NewReaderConfig())
	if _, err := r.Headers(); err != nil {
		t.Fatalf("unexpected error reading header: %v", err)
	}
	tables, total, err := Run(r, []int{0}, Options{BatchSize: 1, Jobs: 1, PctDecPlaces: 5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 data rows, got %d", total)
	}
	rows := tables[0].Rows(Options{PctDecPlaces: 5})
	if len(rows) != 2 {
		t.Fatalf("expected 2 distinct values, got %d: %+v", len(rows), rows)
	}
}
