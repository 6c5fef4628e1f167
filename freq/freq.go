// Package freq implements the frequency engine: per-column value-count
// tables built by the same batched parallel scan the statistics engine
// uses, merged under a mutex at each batch boundary.
package freq

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/alphadose/haxmap"
	"github.com/csvengine/core/csvio"
)

// nullLabel is the rendered bucket value for null (empty) fields.
const nullLabel = "(NULL)"

// Options controls one frequency run.
type Options struct {
	IgnoreCase bool
	NoNulls    bool
	// Limit: 0 = unlimited, >0 = top-Limit by count with the tail
	// collapsed into one "Other" bucket, <0 = top-|Limit| with the tail
	// collapsed into "Other" only when at least |Limit| distinct values
	// remain in it (otherwise the tail is listed individually).
	Limit int
	// OtherMinCount: when the summed count of the collapsed tail is
	// below this, the Other bucket is dropped rather than synthesized
	// (the tail's rows are simply not reported). 0 disables this check.
	OtherMinCount int
	OtherText     string
	OtherSorted   bool // sort the Other tail's candidates by value, not count, before deciding the cut
	Asc           bool
	PctDecPlaces  int
	BatchSize     int
	Jobs          int
}

// DefaultOptions matches the engine's documented defaults.
func DefaultOptions() Options {
	return Options{OtherText: "Other", PctDecPlaces: 5, BatchSize: 50_000, Jobs: runtime.NumCPU()}
}

// Table is one column's mergeable value-count monoid.
type Table struct {
	counts     map[string]uint64
	wide       *haxmap.Map[string, uint64]
	Total      uint64 // rows scanned, including excluded nulls
	Excluded   uint64 // nulls excluded by NoNulls
}

const wideThreshold = 100_000

// NewTable returns an empty Table.
func NewTable() *Table { return &Table{counts: make(map[string]uint64)} }

// Observe folds one field value into the table.
func (t *Table) Observe(value string, opts Options) {
	t.Total++
	if value == "" {
		if opts.NoNulls {
			t.Excluded++
			return
		}
		t.observe("")
		return
	}
	if opts.IgnoreCase {
		value = strings.ToLower(value)
	}
	t.observe(value)
}

func (t *Table) observe(key string) {
	if t.wide != nil {
		cur, _ := t.wide.Get(key)
		t.wide.Set(key, cur+1)
		return
	}
	t.counts[key]++
	if len(t.counts) > wideThreshold {
		t.wide = haxmap.New[string, uint64](1 << 17)
		for k, c := range t.counts {
			t.wide.Set(k, c)
		}
		t.counts = nil
	}
}

func (t *Table) plainCounts() map[string]uint64 {
	if t.wide == nil {
		return t.counts
	}
	out := make(map[string]uint64, t.wide.Len())
	t.wide.ForEach(func(k string, v uint64) bool {
		out[k] = v
		return true
	})
	return out
}

// Merge folds other into t.
func (t *Table) Merge(other *Table) {
	t.Total += other.Total
	t.Excluded += other.Excluded
	for k, c := range other.plainCounts() {
		t.observeN(k, c)
	}
}

func (t *Table) observeN(key string, n uint64) {
	if t.wide != nil {
		cur, _ := t.wide.Get(key)
		t.wide.Set(key, cur+n)
		return
	}
	t.counts[key] += n
	if len(t.counts) > wideThreshold {
		t.wide = haxmap.New[string, uint64](1 << 17)
		for k, c := range t.counts {
			t.wide.Set(k, c)
		}
		t.counts = nil
	}
}

// valuePair is a bucket key/count pair mid-way through ranking.
type valuePair struct {
	key   string
	count uint64
}

// Row is one rendered frequency-table row.
type Row struct {
	Value      string
	Count      uint64
	Percentage float64
}

// Rows renders the table's sorted, limit-and-Other-bucketed rows.
func (t *Table) Rows(opts Options) []Row {
	counts := t.plainCounts()
	pairs := make([]valuePair, 0, len(counts))
	for k, c := range counts {
		pairs = append(pairs, valuePair{k, c})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if opts.OtherSorted {
			return pairs[i].key < pairs[j].key
		}
		if pairs[i].count != pairs[j].count {
			if opts.Asc {
				return pairs[i].count < pairs[j].count
			}
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].key < pairs[j].key
	})

	denom := float64(t.Total - t.Excluded)

	toRow := func(p valuePair) Row {
		label := p.key
		if label == "" {
			label = nullLabel
		}
		pct := 0.0
		if denom > 0 {
			pct = float64(p.count) / denom * 100
		}
		return Row{Value: label, Count: p.count, Percentage: round(pct, opts.PctDecPlaces)}
	}

	if opts.Limit == 0 || len(pairs) <= abs(opts.Limit) {
		rows := make([]Row, len(pairs))
		for i, p := range pairs {
			rows[i] = toRow(p)
		}
		return rows
	}

	n := abs(opts.Limit)
	top, tail := pairs[:n], pairs[n:]

	if opts.Limit > 0 {
		return append(mapRows(top, toRow), otherRow(tail, opts, denom))
	}

	// Negative limit: only collapse the tail into Other when at least
	// |Limit| distinct values remain in it; otherwise list the tail
	// individually.
	if len(tail) < n {
		rows := mapRows(top, toRow)
		for _, p := range tail {
			rows = append(rows, toRow(p))
		}
		return rows
	}
	return append(mapRows(top, toRow), otherRow(tail, opts, denom))
}

func mapRows(pairs []valuePair, toRow func(valuePair) Row) []Row {
	out := make([]Row, len(pairs))
	for i, p := range pairs {
		out[i] = toRow(p)
	}
	return out
}

func otherRow(tail []valuePair, opts Options, denom float64) Row {
	var sum uint64
	for _, p := range tail {
		sum += p.count
	}
	if opts.OtherMinCount > 0 && sum < uint64(opts.OtherMinCount) {
		// Below the secondary threshold: the Other bucket is not
		// synthesized. The caller still gets a Row so callers that
		// always expect one entry per tail keep working, but its value
		// is empty to signal "drop me" — CSVRows filters it out.
		return Row{}
	}
	pct := 0.0
	if denom > 0 {
		pct = float64(sum) / denom * 100
	}
	label := opts.OtherText
	if label == "" {
		label = "Other"
	}
	label = fmt.Sprintf("%s (%d)", label, sum)
	return Row{Value: label, Count: sum, Percentage: round(pct, opts.PctDecPlaces)}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func round(v float64, places int) float64 {
	s := strconv.FormatFloat(v, 'f', places, 64)
	out, _ := strconv.ParseFloat(s, 64)
	return out
}

// CSVRows renders field's rows as CSV string slices, with the
// "field,value,count,percentage" column order, dropping a synthesized
// Other row that fell under Options.OtherMinCount.
func CSVRows(field string, rows []Row, opts Options) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		if r.Value == "" && r.Count == 0 {
			continue
		}
		out = append(out, []string{
			field, r.Value, strconv.FormatUint(r.Count, 10),
			strconv.FormatFloat(r.Percentage, 'f', opts.PctDecPlaces, 64),
		})
	}
	return out
}

// AllUniqueRow is the synthetic single row emitted in place of a full
// per-value table when the stats cache reports the column's
// cardinality equals the row count.
func AllUniqueRow(field string) []string {
	return []string{field, "ALL_UNIQUE", "", ""}
}

// Run performs the batched parallel scan over r, building one Table
// per selected column index, mirroring the statistics engine's
// fold/merge-at-batch-boundary concurrency model.
func Run(r *csvio.Reader, cols []int, opts Options) ([]*Table, uint64, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50_000
	}
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.NumCPU()
	}

	tables := make([]*Table, len(cols))
	for i := range tables {
		tables[i] = NewTable()
	}
	var mu sync.Mutex
	var totalRows uint64
	batchBuf := make([][]string, 0, opts.BatchSize)

	for {
		batchBuf = batchBuf[:0]
		for len(batchBuf) < opts.BatchSize {
			outcome := r.ReadRecord()
			if outcome == csvio.Err {
				return nil, totalRows, fmt.Errorf("reading record %d: %w", totalRows+1, r.Err())
			}
			if outcome == csvio.Eof {
				break
			}
			batchBuf = append(batchBuf, r.Current().Strings())
			totalRows++
		}
		if len(batchBuf) == 0 {
			break
		}

		local := foldBatch(batchBuf, cols, opts)
		mu.Lock()
		for i, t := range local {
			tables[i].Merge(t)
		}
		mu.Unlock()

		if len(batchBuf) < opts.BatchSize {
			break
		}
	}

	return tables, totalRows, nil
}

func foldBatch(rows [][]string, cols []int, opts Options) []*Table {
	result := make([]*Table, len(cols))
	for i := range result {
		result[i] = NewTable()
	}
	if opts.Jobs <= 1 || len(rows) <= 1 {
		for _, row := range rows {
			observeRow(result, row, cols, opts)
		}
		return result
	}

	chunk := (len(rows) + opts.Jobs - 1) / opts.Jobs
	var wg sync.WaitGroup
	var mu sync.Mutex
	var workerResults [][]*Table
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		wg.Add(1)
		go func(rows [][]string) {
			defer wg.Done()
			local := make([]*Table, len(cols))
			for i := range local {
				local[i] = NewTable()
			}
			for _, row := range rows {
				observeRow(local, row, cols, opts)
			}
			mu.Lock()
			workerResults = append(workerResults, local)
			mu.Unlock()
		}(rows[start:end])
	}
	wg.Wait()

	for _, wr := range workerResults {
		for i, t := range wr {
			result[i].Merge(t)
		}
	}
	return result
}

func observeRow(tables []*Table, row []string, cols []int, opts Options) {
	for i, col := range cols {
		var v string
		if col >= 0 && col < len(row) {
			v = row[col]
		}
		tables[i].Observe(v, opts)
	}
}
