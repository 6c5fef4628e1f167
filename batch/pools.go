// Package batch implements the read→batch→parallel-map→ordered-write
// pipeline shared by every transforming command, plus the sync.Pool
// buffer pools that amortize allocation across batches.
package batch

import "sync"

// RecordBatch is a reusable, order-preserving slice of string-slice
// records (one []string per row) passed through the pipeline.
type RecordBatch = [][]string

// Pools holds sync.Pool instances for the buffer kinds the pipeline
// churns through every batch: input record batches, output record
// batches, and per-worker scratch field slices. Generalizes the
// per-kind Get/Return pool idiom used elsewhere in this codebase for
// request/string/IP slice pooling.
type Pools struct {
	batches sync.Pool
	fields  sync.Pool
}

// NewPools constructs a Pools sized for batches of roughly batchSize
// rows and records with roughly fieldsHint columns.
func NewPools(batchSize, fieldsHint int) *Pools {
	p := &Pools{}
	p.batches.New = func() any {
		return make(RecordBatch, 0, batchSize)
	}
	p.fields.New = func() any {
		return make([]string, 0, fieldsHint)
	}
	return p
}

// GetBatch returns a zero-length RecordBatch with spare capacity.
func (p *Pools) GetBatch() RecordBatch {
	b := p.batches.Get().(RecordBatch)
	return b[:0]
}

// ReturnBatch releases a RecordBatch back to the pool. Callers must not
// use b after calling ReturnBatch.
func (p *Pools) ReturnBatch(b RecordBatch) {
	p.batches.Put(b) //nolint:staticcheck // reused by value, not pointer
}

// GetFields returns a zero-length []string with spare capacity for
// building a transformed record without allocating per row. Run itself
// does not call it.
func (p *Pools) GetFields() []string {
	f := p.fields.Get().([]string)
	return f[:0]
}

// ReturnFields releases a []string back to the pool.
func (p *Pools) ReturnFields(f []string) {
	p.fields.Put(f) //nolint:staticcheck
}
