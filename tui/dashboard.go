// Package tui implements the optional live progress dashboard shown
// while a streaming command (stats/frequency/script) runs, gated by
// the PROGRESSBAR environment variable.
package tui

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Update is one progress tick posted by the batch pipeline after each
// batch boundary.
type Update struct {
	RowsProcessed uint64
	Elapsed       time.Duration
	Warnings      int
	Errors        int
	Done          bool
	Summary       string
}

// Dashboard is a tview application that renders Updates as they
// arrive on its channel. It never blocks the pipeline: Post drops the
// oldest pending update rather than applying backpressure, since a
// stale progress readout is harmless but a stalled pipeline is not.
type Dashboard struct {
	app          *tview.Application
	progressView *tview.TextView
	statusBar    *tview.TextView

	updates chan Update
	done    atomic.Bool
}

// NewDashboard builds a single-page progress view: one text panel for
// the running counters, one status bar for the quit hint.
func NewDashboard(title string) *Dashboard {
	d := &Dashboard{
		app:     tview.NewApplication(),
		updates: make(chan Update, 1),
	}

	d.progressView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(false).
		SetWrap(false)
	d.progressView.SetBorder(true).SetTitle(fmt.Sprintf(" %s ", title)).SetTitleAlign(tview.AlignCenter)

	d.statusBar = tview.NewTextView().
		SetDynamicColors(true).
		SetText("[yellow]Running...[white] | Press 'q' to quit")

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(d.progressView, 0, 1, true).
		AddItem(d.statusBar, 1, 0, false)

	d.app.SetRoot(layout, true)
	d.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'q', 'Q':
			d.app.Stop()
			return nil
		}
		return event
	})

	return d
}

// Post queues one progress update, dropping the pending one if the
// buffer is already full — the dashboard only ever shows the latest
// state, never a backlog.
func (d *Dashboard) Post(u Update) {
	select {
	case d.updates <- u:
	default:
		select {
		case <-d.updates:
		default:
		}
		select {
		case d.updates <- u:
		default:
		}
	}
}

// Run drains updates on a background goroutine, which stops after a
// Done update, and blocks on the tview event loop until the user quits
// or Stop is called.
func (d *Dashboard) Run() error {
	go func() {
		for u := range d.updates {
			u := u
			d.app.QueueUpdateDraw(func() { d.render(u) })
			if u.Done {
				return
			}
		}
	}()
	return d.app.Run()
}

// Stop requests the dashboard's event loop to exit.
func (d *Dashboard) Stop() {
	d.app.Stop()
	close(d.updates)
}

func (d *Dashboard) render(u Update) {
	rate := float64(0)
	if u.Elapsed > 0 {
		rate = float64(u.RowsProcessed) / u.Elapsed.Seconds()
	}
	text := fmt.Sprintf(
		"[green]Rows processed:[white] %d\n[green]Elapsed:[white] %s\n[green]Rate:[white] %.0f rows/sec\n[yellow]Warnings:[white] %d\n[red]Errors:[white] %d",
		u.RowsProcessed, u.Elapsed.Round(time.Millisecond), rate, u.Warnings, u.Errors,
	)
	d.progressView.SetText(text)
	if u.Done {
		d.statusBar.SetText(fmt.Sprintf("[green]%s[white] | Press 'q' to quit", u.Summary))
	}
}
