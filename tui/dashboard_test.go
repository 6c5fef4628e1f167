package tui

import "testing"

func TestPostDropsOldestWhenFull(t *testing.T) {
	d := NewDashboard("test")
	d.Post(Update{RowsProcessed: 1})
	d.Post(Update{RowsProcessed: 2}) // buffer size 1: should replace, not block
	u := <-d.updates
	if u.RowsProcessed != 2 {
		t.Fatalf("expected latest update to survive, got %+v", u)
	}
}

func TestRenderDoesNotPanicOnZeroElapsed(t *testing.T) {
	d := NewDashboard("test")
	d.render(Update{RowsProcessed: 10})
}
