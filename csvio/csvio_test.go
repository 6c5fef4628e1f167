package csvio

import (
	"bytes"
	"strings"
	"testing"
)

func readAll(t *testing.T, data string, cfg ReaderConfig) [][]string {
	t.Helper()
	r := NewReader(strings.NewReader(data), cfg)
	var rows [][]string
	for {
		outcome := r.ReadRecord()
		if outcome == Eof {
			break
		}
		if outcome == Err {
			t.Fatalf("unexpected parse error: %v", r.Err())
		}
		rows = append(rows, append([]string(nil), r.Current().Strings()...))
	}
	return rows
}

func TestReadRecordBasic(t *testing.T) {
	rows := readAll(t, "a,b,c\n1,2,3\n", NewReaderConfig())
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "a" || rows[1][2] != "3" {
		t.Fatalf("unexpected fields: %v", rows)
	}
}

func TestReadRecordQuotedAndEscaped(t *testing.T) {
	rows := readAll(t, `"hello, world","she said ""hi""",3`+"\n", NewReaderConfig())
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	want := []string{"hello, world", `she said "hi"`, "3"}
	for i, w := range want {
		if rows[0][i] != w {
			t.Fatalf("field %d: got %q want %q", i, rows[0][i], w)
		}
	}
}

func TestReadRecordCRLF(t *testing.T) {
	rows := readAll(t, "a,b\r\n1,2\r\n", NewReaderConfig())
	if len(rows) != 2 || rows[1][1] != "2" {
		t.Fatalf("unexpected rows: %v", rows)
	}
}

func TestReadRecordFlexiblePadsShort(t *testing.T) {
	cfg := NewReaderConfig()
	cfg.Flexible = true
	r := NewReader(strings.NewReader("a,b,c\n1,2\n3,4,5,6\n"), cfg)
	if _, err := r.Headers(); err != nil {
		t.Fatal(err)
	}
	outcome := r.ReadRecord()
	if outcome != HasRow {
		t.Fatalf("expected HasRow, got %v", outcome)
	}
	rec := r.Current()
	if rec.Len() != 3 {
		t.Fatalf("expected padded length 3, got %d", rec.Len())
	}
	if v, _ := rec.Field(2); string(v) != "" {
		t.Fatalf("expected empty padded field, got %q", v)
	}
	outcome = r.ReadRecord()
	if outcome != HasRow {
		t.Fatalf("expected HasRow, got %v", outcome)
	}
	if r.Current().Len() != 4 {
		t.Fatalf("expected unpadded longer record to pass through, got %d fields", r.Current().Len())
	}
}

func TestReadRecordStrictMismatchIsFatal(t *testing.T) {
	r := NewReader(strings.NewReader("a,b,c\n1,2\n"), NewReaderConfig())
	if _, err := r.Headers(); err != nil {
		t.Fatal(err)
	}
	if outcome := r.ReadRecord(); outcome != Err {
		t.Fatalf("expected Err for mismatched field count, got %v", outcome)
	}
	var pe *ParseError
	if e, ok := r.Err().(*ParseError); ok {
		pe = e
	} else {
		t.Fatalf("expected *ParseError, got %T", r.Err())
	}
	if pe.Kind != ErrFieldCountMismatch {
		t.Fatalf("expected ErrFieldCountMismatch, got %v", pe.Kind)
	}
}

func TestWriteRecordRoundTrip(t *testing.T) {
	data := "name,note\nJohn,\"hi, there\"\nMary,plain\n"
	r := NewReader(strings.NewReader(data), NewReaderConfig())
	var buf bytes.Buffer
	w := NewWriter(&buf, NewWriterConfig())
	for {
		outcome := r.ReadRecord()
		if outcome == Eof {
			break
		}
		if outcome == Err {
			t.Fatal(r.Err())
		}
		if err := w.WriteRecord(r.Current().Clone()); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	r2 := NewReader(strings.NewReader(buf.String()), NewReaderConfig())
	r1 := NewReader(strings.NewReader(data), NewReaderConfig())
	for {
		o1 := r1.ReadRecord()
		o2 := r2.ReadRecord()
		if o1 != o2 {
			t.Fatalf("outcome mismatch: %v vs %v", o1, o2)
		}
		if o1 == Eof {
			break
		}
		a := r1.Current().Strings()
		b := r2.Current().Strings()
		if len(a) != len(b) {
			t.Fatalf("field count mismatch: %v vs %v", a, b)
		}
		for i := range a {
			if a[i] != b[i] {
				t.Fatalf("field %d mismatch: %q vs %q", i, a[i], b[i])
			}
		}
	}
}

func TestSafeNames(t *testing.T) {
	names := SafeNames([]string{"first name", "first name", "1id", "class"}, map[string]bool{"class": true})
	want := []string{"first_name", "first_name_1", "1id", "class_"}
	for i, w := range want {
		if names[i] != w {
			t.Fatalf("name %d: got %q want %q", i, names[i], w)
		}
	}
}

func TestDetectDelimiter(t *testing.T) {
	data := "a\tb\tc\n1\t2\t3\n4\t5\t6\n"
	if got := DetectDelimiter([]byte(data), 10); got != '\t' {
		t.Fatalf("expected tab delimiter, got %q", got)
	}
}
