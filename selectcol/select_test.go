package selectcol

import (
	"strings"
	"testing"

	"github.com/csvengine/core/csvio"
)

func headerOf(names ...string) *csvio.HeaderIndex {
	return csvio.NewHeaderIndex(headerRecord(names))
}

func headerRecord(names []string) *csvio.Record {
	r := csvio.NewReader(strings.NewReader(strings.Join(names, ",")+"\n"), csvio.NewReaderConfig())
	h, err := r.Headers()
	if err != nil {
		panic(err)
	}
	return h
}

func TestResolveNamesAndIndices(t *testing.T) {
	h := headerOf("id", "name", "email")
	sel, err := Resolve("name,1", h, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := Selection{1, 0}
	if !equalSel(sel, want) {
		t.Fatalf("got %v want %v", sel, want)
	}
}

func TestResolveRangeAndNegation(t *testing.T) {
	h := headerOf("a", "b", "c", "d")
	sel, err := Resolve("2-3", h, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !equalSel(sel, Selection{1, 2}) {
		t.Fatalf("got %v", sel)
	}
	sel, err = Resolve("!2-3", h, 4)
	if err != nil {
		t.Fatal(err)
	}
	if !equalSel(sel, Selection{0, 3}) {
		t.Fatalf("got %v", sel)
	}
}

func TestResolveAllColumnsToken(t *testing.T) {
	h := headerOf("a", "b")
	sel, err := Resolve("1-", h, 2)
	if err != nil {
		t.Fatal(err)
	}
	if !equalSel(sel, Selection{0, 1}) {
		t.Fatalf("got %v", sel)
	}
}

func TestResolveUnknownName(t *testing.T) {
	h := headerOf("a", "b")
	if _, err := Resolve("nope", h, 2); err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func TestResolveOutOfRangeIndex(t *testing.T) {
	if _, err := Resolve("5", nil, 2); err == nil {
		t.Fatal("expected error for out-of-range index")
	}
}

func TestResolveReversedRangeSameEndpoint(t *testing.T) {
	sel, err := Resolve("2-2", nil, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !equalSel(sel, Selection{1}) {
		t.Fatalf("got %v", sel)
	}
}

func equalSel(a, b Selection) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
