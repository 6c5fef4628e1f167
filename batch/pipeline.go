package batch

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/csvengine/core/csvio"
)

// ErrorSentinel is folded into a record's field(s) when a per-record
// transform fails, per the engine's record-level error policy: never
// fatal on its own, always counted.
const ErrorSentinel = "<ERROR>"

// Transform computes the per-record map/filter operation applied by the
// pipeline. idx is the record's 0-based position in the input stream,
// in input order regardless of which worker executes it. Returning
// keep=false drops the record (the "filter" case); returning an error
// causes the output fields to be folded to ErrorSentinel rather than
// aborting the run, and increments the pipeline's error counter.
type Transform func(idx int64, row []string) (out []string, keep bool, err error)

// Config controls batch size and worker count. Zero values are replaced
// with the documented defaults (50,000 / NumCPU) by Run.
type Config struct {
	BatchSize int
	Jobs      int
	// MaxErrors is the number of record-level transform errors tolerated
	// before the run aborts; 0 disables the limit (see Result.Aborted).
	MaxErrors int
	// OnBatch, when non-nil, is called after each batch boundary with
	// the running Result — the sole hook a progress dashboard needs,
	// since it must never sit on the hot path itself. Called from the
	// reader/writer goroutine, never concurrently.
	OnBatch func(Result)
}

// DefaultConfig returns batch size 50,000 and Jobs = runtime.NumCPU().
func DefaultConfig() Config {
	return Config{BatchSize: 50_000, Jobs: runtime.NumCPU(), MaxErrors: 100}
}

func (c Config) normalized() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 50_000
	}
	if c.Jobs <= 0 {
		c.Jobs = runtime.NumCPU()
	}
	return c
}

// Result summarizes one pipeline run.
type Result struct {
	RowsIn     uint64
	RowsOut    uint64
	Skipped    uint64
	Errors     uint64
	Aborted    bool
	AbortedErr error
}

// Run drives the read→batch→parallel-map→ordered-write loop described
// in the component design: it repeatedly fills a batch from r up to
// cfg.BatchSize records, applies fn to every record in the batch across
// cfg.Jobs workers, and writes kept results to w in input order before
// proceeding to the next batch. The input batch buffer is drawn from a
// pool and reused across iterations; the output slices are allocated
// afresh by applyBatch for every batch and are not reused.
func Run(r *csvio.Reader, w *csvio.Writer, fn Transform, cfg Config) (Result, error) {
	cfg = cfg.normalized()
	pools := NewPools(cfg.BatchSize, 8)

	var res Result
	in := pools.GetBatch()
	defer pools.ReturnBatch(in)

	for {
		in = in[:0]
		for len(in) < cfg.BatchSize {
			outcome := r.ReadRecord()
			if outcome == Err {
				return res, fmt.Errorf("reading record %d: %w", res.RowsIn+1, r.Err())
			}
			if outcome == Eof {
				break
			}
			in = append(in, r.Current().Strings())
			res.RowsIn++
		}
		if len(in) == 0 {
			break
		}

		base := int64(res.RowsIn) - int64(len(in))
		out, keep, errCount := applyBatch(in, fn, cfg.Jobs, base)
		res.Errors += errCount
		if cfg.MaxErrors > 0 && res.Errors > uint64(cfg.MaxErrors) {
			res.Aborted = true
			res.AbortedErr = fmt.Errorf("record-level error count %d exceeds --max-errors %d", res.Errors, cfg.MaxErrors)
			return res, res.AbortedErr
		}

		for i, row := range out {
			if !keep[i] {
				res.Skipped++
				continue
			}
			if err := w.WriteRecord(stringsToRecord(row)); err != nil {
				return res, fmt.Errorf("writing record: %w", err)
			}
			res.RowsOut++
		}

		if cfg.OnBatch != nil {
			cfg.OnBatch(res)
		}

		if len(in) < cfg.BatchSize {
			break
		}
	}
	if err := w.Flush(); err != nil {
		return res, err
	}
	return res, nil
}

// applyBatch fans the batch out across workers, preserving input order
// in the returned slices by writing each worker's results directly into
// its pre-sized slot rather than through a results channel — the same
// "batch then single barrier" idiom used for merging per-worker
// accumulators at a batch boundary elsewhere in this engine. base is
// the input-order index of in[0], so every fn call receives the
// record's true global position regardless of which worker runs it.
func applyBatch(in RecordBatch, fn Transform, jobs int, base int64) (out [][]string, keep []bool, errCount uint64) {
	n := len(in)
	out = make([][]string, n)
	keep = make([]bool, n)
	errFlags := make([]bool, n)

	if jobs <= 1 || n <= 1 {
		for i, row := range in {
			o, k, err := fn(base+int64(i), row)
			if err != nil {
				o = foldError(row)
				errFlags[i] = true
				k = true
			}
			out[i], keep[i] = o, k
		}
	} else {
		var wg sync.WaitGroup
		chunk := (n + jobs - 1) / jobs
		for start := 0; start < n; start += chunk {
			end := start + chunk
			if end > n {
				end = n
			}
			wg.Add(1)
			go func(start, end int) {
				defer wg.Done()
				for i := start; i < end; i++ {
					o, k, err := fn(base+int64(i), in[i])
					if err != nil {
						o = foldError(in[i])
						errFlags[i] = true
						k = true
					}
					out[i], keep[i] = o, k
				}
			}(start, end)
		}
		wg.Wait()
	}

	for _, f := range errFlags {
		if f {
			errCount++
		}
	}
	return out, keep, errCount
}

func foldError(row []string) []string {
	out := make([]string, len(row))
	for i := range out {
		out[i] = ErrorSentinel
	}
	return out
}

func stringsToRecord(fields []string) *csvio.Record {
	return csvio.NewRecordFromStrings(fields)
}

const (
	Eof = csvio.Eof
	Err = csvio.Err
)
