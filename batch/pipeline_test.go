package batch

import (
	"bytes"
	"strconv"
	"strings"
	"testing"

	"github.com/csvengine/core/csvio"
)

func upperTransform(_ int64, row []string) ([]string, bool, error) {
	out := make([]string, len(row))
	for i, f := range row {
		out[i] = strings.ToUpper(strings.TrimSpace(f))
	}
	return out, true, nil
}

func TestRunMapChain(t *testing.T) {
	input := "name\n   John  \nMary\n"
	r := csvio.NewReader(strings.NewReader(input), csvio.NewReaderConfig())
	if _, err := r.Headers(); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	w := csvio.NewWriter(&buf, csvio.NewWriterConfig())
	if err := w.WriteStrings([]string{"name"}); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	cfg.Jobs = 4
	res, err := Run(r, w, upperTransform, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.RowsIn != 2 || res.RowsOut != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	want := "name\nJOHN\nMARY\n"
	if buf.String() != want {
		t.Fatalf("got %q want %q", buf.String(), want)
	}
}

func filterNumberGT14(_ int64, row []string) ([]string, bool, error) {
	n, err := strconv.Atoi(strings.TrimSpace(row[1]))
	if err != nil {
		return nil, false, err
	}
	return row, n > 14, nil
}

func TestRunFilter(t *testing.T) {
	input := "letter,number\na,13\nb,24\nc,72\nd,7\n"
	r := csvio.NewReader(strings.NewReader(input), csvio.NewReaderConfig())
	if _, err := r.Headers(); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	w := csvio.NewWriter(&buf, csvio.NewWriterConfig())
	if err := w.WriteStrings([]string{"letter", "number"}); err != nil {
		t.Fatal(err)
	}

	res, err := Run(r, w, filterNumberGT14, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if res.RowsOut != 2 || res.Skipped != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	want := "letter,number\nb,24\nc,72\n"
	if buf.String() != want {
		t.Fatalf("got %q want %q", buf.String(), want)
	}
}

// TestRunOrderPreservedAcrossWorkerCounts exercises the batched-pipeline
// order invariant: output order must equal input order regardless of J.
func TestRunOrderPreservedAcrossWorkerCounts(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("n\n")
	const rows = 500
	for i := 0; i < rows; i++ {
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString("\n")
	}
	input := sb.String()

	identity := func(_ int64, row []string) ([]string, bool, error) { return row, true, nil }

	for _, jobs := range []int{1, 2, 8, 16} {
		r := csvio.NewReader(strings.NewReader(input), csvio.NewReaderConfig())
		if _, err := r.Headers(); err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		w := csvio.NewWriter(&buf, csvio.NewWriterConfig())

		cfg := DefaultConfig()
		cfg.Jobs = jobs
		cfg.BatchSize = 37 // deliberately not a multiple of row count
		if _, err := Run(r, w, identity, cfg); err != nil {
			t.Fatal(err)
		}

		got := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
		if len(got) != rows {
			t.Fatalf("jobs=%d: expected %d rows, got %d", jobs, rows, len(got))
		}
		for i, v := range got {
			if v != strconv.Itoa(i) {
				t.Fatalf("jobs=%d: row %d out of order: got %q", jobs, i, v)
			}
		}
	}
}

// TestRunTransformReceivesInputOrderIndex exercises the per-record idx
// argument: it must equal the record's true input-order position even
// when multiple workers complete out of order.
func TestRunTransformReceivesInputOrderIndex(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("n\n")
	const rows = 200
	for i := 0; i < rows; i++ {
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString("\n")
	}
	r := csvio.NewReader(strings.NewReader(sb.String()), csvio.NewReaderConfig())
	if _, err := r.Headers(); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	w := csvio.NewWriter(&buf, csvio.NewWriterConfig())

	checkIdx := func(idx int64, row []string) ([]string, bool, error) {
		n, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, false, err
		}
		if int64(n) != idx {
			t.Fatalf("row %q got idx %d, want %d", row[0], idx, n)
		}
		return row, true, nil
	}

	cfg := DefaultConfig()
	cfg.Jobs = 8
	cfg.BatchSize = 31
	res, err := Run(r, w, checkIdx, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.RowsOut != rows {
		t.Fatalf("expected %d rows out, got %d", rows, res.RowsOut)
	}
}

func TestRunAbortsAfterMaxErrors(t *testing.T) {
	input := "n\nx\ny\nz\n1\n"
	r := csvio.NewReader(strings.NewReader(input), csvio.NewReaderConfig())
	if _, err := r.Headers(); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	w := csvio.NewWriter(&buf, csvio.NewWriterConfig())

	parseInt := func(_ int64, row []string) ([]string, bool, error) {
		if _, err := strconv.Atoi(row[0]); err != nil {
			return nil, false, err
		}
		return row, true, nil
	}

	cfg := DefaultConfig()
	cfg.MaxErrors = 2
	cfg.BatchSize = 1
	res, err := Run(r, w, parseInt, cfg)
	if err == nil {
		t.Fatal("expected abort error")
	}
	if !res.Aborted {
		t.Fatal("expected Result.Aborted to be true")
	}
}
