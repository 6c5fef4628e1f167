package stats

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/csvengine/core/csvio"
)

// Report is one row of the stats output: one Accumulator's computed
// fields, rounded and sentineled per the engine's output contract.
type Report struct {
	Field      string
	Type       string
	Sum        string
	Min        string
	Max        string
	Range      string
	MinLength  uint64
	MaxLength  uint64
	Mean       string
	StdDev     string
	Variance   string
	NullCount  uint64
	Sparsity   string
	Median     string
	Q1         string
	Q2Median   string
	Q3         string
	IQR        string
	Cardinality string
	Mode       string
	Antimode   string
}

// EngineConfig controls the stats engine's streaming pass.
type EngineConfig struct {
	Batch   BatchParams
	Options Options
	// TypesOnly elides numeric-only columns from the report; the field
	// and type columns are still emitted.
	TypesOnly bool
}

// BatchParams carries the batch size / worker count knobs shared with
// the batch pipeline's own Config, without importing that package just
// for its type (the stats engine folds records directly rather than
// going through batch.Run, since it needs per-column accumulator
// threading that a generic Transform closure can't express).
type BatchParams struct {
	BatchSize int
	Jobs      int
}

// DefaultEngineConfig mirrors the pipeline's own defaults (50,000 /
// NumCPU) plus the statistics engine's documented defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Batch:   BatchParams{BatchSize: 50_000, Jobs: runtime.NumCPU()},
		Options: DefaultOptions(),
	}
}

// Run performs the streaming phase-1 pass over r, maintaining one
// Accumulator per column. Records are read in batches; each batch is
// split across cfg.Batch.Jobs workers, each of which folds its share of
// the batch into thread-local accumulators, which are then merged into
// the shared accumulators under a mutex at the batch boundary —
// contention is O(batches), not O(records), matching the engine's
// concurrency model.
func Run(r *csvio.Reader, header *csvio.Record, cfg EngineConfig) ([]*Accumulator, uint64, error) {
	cfg = normalizeEngineConfig(cfg)
	numCols := header.Len()
	if numCols == 0 {
		numCols = 1
	}

	shared := make([]*Accumulator, numCols)
	for i := range shared {
		shared[i] = NewAccumulator(cfg.Options)
	}
	var mu sync.Mutex

	var totalRows uint64
	batchBuf := make([][]string, 0, cfg.Batch.BatchSize)

	for {
		batchBuf = batchBuf[:0]
		for len(batchBuf) < cfg.Batch.BatchSize {
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

		local := foldBatch(batchBuf, numCols, cfg.Options, cfg.Batch.Jobs)

		mu.Lock()
		for i, acc := range local {
			shared[i].Merge(acc)
		}
		mu.Unlock()

		if len(batchBuf) < cfg.Batch.BatchSize {
			break
		}
	}

	return shared, totalRows, nil
}

func normalizeEngineConfig(cfg EngineConfig) EngineConfig {
	if cfg.Batch.BatchSize <= 0 {
		cfg.Batch.BatchSize = 50_000
	}
	if cfg.Batch.Jobs <= 0 {
		cfg.Batch.Jobs = runtime.NumCPU()
	}
	if cfg.Options.DecimalPlaces <= 0 {
		cfg.Options.DecimalPlaces = 4
	}
	return cfg
}

// foldBatch splits rows across jobs workers, each building its own
// per-column accumulator vector (thread-local, no shared mutation
// inside a worker), then merges the per-worker vectors into one
// batch-local result before returning to the caller's batch-boundary
// merge step.
func foldBatch(rows [][]string, numCols int, opts Options, jobs int) []*Accumulator {
	result := make([]*Accumulator, numCols)
	for i := range result {
		result[i] = NewAccumulator(opts)
	}
	if jobs <= 1 || len(rows) <= 1 {
		for _, row := range rows {
			observeRow(result, row, numCols)
		}
		return result
	}

	chunk := (len(rows) + jobs - 1) / jobs
	workerResults := make([][]*Accumulator, 0, jobs)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		wg.Add(1)
		go func(rows [][]string) {
			defer wg.Done()
			local := make([]*Accumulator, numCols)
			for i := range local {
				local[i] = NewAccumulator(opts)
			}
			for _, row := range rows {
				observeRow(local, row, numCols)
			}
			mu.Lock()
			workerResults = append(workerResults, local)
			mu.Unlock()
		}(rows[start:end])
	}
	wg.Wait()

	for _, wr := range workerResults {
		for i, acc := range wr {
			result[i].Merge(acc)
		}
	}
	return result
}

func observeRow(accs []*Accumulator, row []string, numCols int) {
	for i := 0; i < numCols; i++ {
		var field []byte
		if i < len(row) {
			field = []byte(row[i])
		}
		accs[i].Observe(field)
	}
}
