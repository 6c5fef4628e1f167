package script

import (
	"strings"
	"testing"

	"github.com/csvengine/core/csvio"
)

func headerOf(t *testing.T, names ...string) *csvio.HeaderIndex {
	t.Helper()
	r := csvio.NewReader(strings.NewReader(strings.Join(names, ",")+"\n"), csvio.NewReaderConfig())
	h, err := r.Headers()
	if err != nil {
		t.Fatalf("building header: %v", err)
	}
	return csvio.NewHeaderIndex(h)
}

func TestFilterMode(t *testing.T) {
	header := headerOf(t, "letter", "number")
	rt, err := NewRuntime("", "number > 14", "", header, Options{FilterMode: true})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	rows := [][]string{{"a", "13"}, {"b", "24"}, {"c", "72"}, {"d", "7"}}
	var kept [][]string
	for i, row := range rows {
		_, keep := rt.Eval(int64(i), row)
		if keep {
			kept = append(kept, row)
		}
	}
	if len(kept) != 2 || kept[0][0] != "b" || kept[1][0] != "c" {
		t.Fatalf("unexpected kept rows: %v", kept)
	}
}

func TestMapModeErrorSentinel(t *testing.T) {
	header := headerOf(t, "n")
	rt, err := NewRuntime("", "1 / n", "", header, Options{NewColumns: []string{"inv"}})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	out, keep := rt.Eval(0, []string{"not-a-number"})
	if !keep {
		t.Fatal("map mode must always keep the row")
	}
	if out[len(out)-1] != ErrorSentinel {
		t.Fatalf("expected error sentinel, got %v", out)
	}
	if rt.Errors() != 1 {
		t.Fatalf("expected 1 tracked error, got %d", rt.Errors())
	}
}

func TestRandomAccessDetection(t *testing.T) {
	header := headerOf(t, "n")
	rt, err := NewRuntime("", "_INDEX = _IDX + 1; n", "", header, Options{})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	if !rt.RandomAccess() {
		t.Fatal("expected random-access mode to be detected from _INDEX reference")
	}
}

// TestRandomAccessSeekPropagation drives Eval/NextSeek across several
// rows to confirm a MAIN-side assignment to _INDEX is actually visible
// back on the runtime after expr.Run returns — the mechanism the
// random-access loop depends on to ever terminate.
func TestRandomAccessSeekPropagation(t *testing.T) {
	header := headerOf(t, "n")
	rt, err := NewRuntime("", "_INDEX = _IDX + 2; n", "", header, Options{})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	rt.SetRowCount(10)

	var seeks []int64
	idx := int64(0)
	for {
		rt.Eval(idx, []string{"1"})
		seek, ok := rt.NextSeek()
		if !ok {
			break
		}
		seeks = append(seeks, seek)
		idx = seek
	}
	// _IDX is 1-based (row 0 sees _IDX 1), so from row 0 MAIN seeks to
	// 3, then 6, then 9; 12 is past the row count and ends the loop.
	want := []int64{3, 6, 9}
	if len(seeks) != len(want) {
		t.Fatalf("expected seek sequence %v, got %v", want, seeks)
	}
	for i, s := range seeks {
		if s != want[i] {
			t.Fatalf("expected seek sequence %v, got %v", want, seeks)
		}
	}
}

// TestRandomAccessSeekStopsOnNegativeIndex confirms the "negative means
// done" convention actually halts the loop rather than hanging forever.
func TestRandomAccessSeekStopsOnNegativeIndex(t *testing.T) {
	header := headerOf(t, "n")
	rt, err := NewRuntime("", "_INDEX = -1; n", "", header, Options{})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	rt.SetRowCount(10)
	rt.Eval(0, []string{"1"})
	if _, ok := rt.NextSeek(); ok {
		t.Fatal("expected NextSeek ok=false after MAIN assigns a negative _INDEX")
	}
}

func TestInsertHelperQueuesMailbox(t *testing.T) {
	header := headerOf(t, "n")
	rt, err := NewRuntime("", `insert("aux", n)`, "", header, Options{})
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	rt.Eval(0, []string{"5"})
	mail := rt.Mailbox()
	if len(mail) != 1 || mail[0][0] != "aux" || mail[0][1] != "5" {
		t.Fatalf("unexpected mailbox contents: %v", mail)
	}
}
