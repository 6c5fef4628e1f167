package output

import (
	"encoding/json"
	"testing"
	"time"
)

func TestReportSummaryNoErrors(t *testing.T) {
	r := NewReport("stats", "dev", time.Now())
	r.Rows = RowCounts{In: 10, Out: 10}
	got := r.Summary()
	want := "stats: 10 rows in, 10 rows out, 0 skipped (0ms)"
	if len(got) < len(want)-6 { // duration varies; compare shape not exact ms
		t.Fatalf("unexpected summary shape: %q", got)
	}
}

func TestReportAddWarningAndErrorThreadSafe(t *testing.T) {
	r := NewReport("frequency", "dev", time.Now())
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(i int) {
			r.AddWarning("cache", "miss", i)
			r.AddError("parse", "bad row", i)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	if len(r.Warnings) != 10 || len(r.Errors) != 10 {
		t.Fatalf("expected 10 warnings and 10 errors, got %d/%d", len(r.Warnings), len(r.Errors))
	}
}

func TestReportToJSONRoundTrip(t *testing.T) {
	r := NewReport("stats", "dev", time.Now())
	r.Rows = RowCounts{In: 5, Out: 5}
	data, err := r.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	var out Report
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Rows.In != 5 {
		t.Fatalf("expected rows.in 5, got %d", out.Rows.In)
	}
}
