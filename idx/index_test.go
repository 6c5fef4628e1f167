package idx

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/csvengine/core/csvio"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBuildAndSeekMatchesSequentialScan(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("id,name\n")
	rows := 100
	for i := 0; i < rows; i++ {
		sb.WriteString(strings.Repeat("x", i%5))
		sb.WriteString(",row")
		sb.WriteString(strconv.Itoa(i))
		sb.WriteString("\n")
	}
	path := writeTempCSV(t, sb.String())

	cfg := csvio.NewReaderConfig()
	ix, err := Build(path, cfg, true)
	if err != nil {
		t.Fatal(err)
	}
	if ix.Len() != uint64(rows) {
		t.Fatalf("expected %d offsets, got %d", rows, ix.Len())
	}

	off, err := ix.Seek(50)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := ReadAt(path, off, cfg)
	if err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	seq := csvio.NewReader(f, cfg)
	if _, err := seq.Headers(); err != nil {
		t.Fatal(err)
	}
	var want *csvio.Record
	for i := 0; i <= 50; i++ {
		if seq.ReadRecord() != csvio.HasRow {
			t.Fatal("sequential scan ran out of rows early")
		}
		if i == 50 {
			want = seq.Current().Clone()
		}
	}
	if rec.Strings()[1] != want.Strings()[1] {
		t.Fatalf("seek mismatch: got %v want %v", rec.Strings(), want.Strings())
	}
}

func TestIsStaleAfterTruncate(t *testing.T) {
	path := writeTempCSV(t, "a,b\n1,2\n3,4\n5,6\n")
	cfg := csvio.NewReaderConfig()
	if _, err := Build(path, cfg, true); err != nil {
		t.Fatal(err)
	}
	if IsStale(path) {
		t.Fatal("freshly built index should not be stale")
	}
	if err := os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !IsStale(path) {
		t.Fatal("index should be stale after source shrank")
	}
}
