// Package csvio implements byte-accurate RFC-4180-ish CSV parsing and
// writing: configurable delimiter, quote character, comment prefix,
// flexible-record mode, and trim policy. It is the lowest layer of the
// engine — every higher-level component (selectcol, batch, stats, freq,
// script) consumes csvio.Record values.
package csvio

import "strconv"

// Record is an ordered sequence of byte fields backed by a single
// contiguous slab. Fields are sub-slices of the slab, so a record can be
// reused across reads without per-field allocation: Reader.ReadRecord
// resets the slab length and re-slices into it.
type Record struct {
	fields [][]byte
}

// Len returns the number of fields in the record.
func (r *Record) Len() int {
	return len(r.fields)
}

// Field returns the raw bytes of the field at 0-based position i.
// It returns nil, false if i is out of range.
func (r *Record) Field(i int) ([]byte, bool) {
	if i < 0 || i >= len(r.fields) {
		return nil, false
	}
	return r.fields[i], true
}

// Bytes returns all fields as a slice. Callers must not retain the
// returned slice across the next ReadRecord call on the same buffer.
func (r *Record) Bytes() [][]byte {
	return r.fields
}

// Strings materializes every field as a string (one allocation per
// field). Used by text-mode operations that must retain values beyond
// the lifetime of the underlying slab (e.g. frequency tables, stats
// accumulators holding retained samples).
func (r *Record) Strings() []string {
	out := make([]string, len(r.fields))
	for i, f := range r.fields {
		out[i] = string(f)
	}
	return out
}

// Clone returns an independent copy of the record whose byte slices do
// not alias the reader's internal slab.
func (r *Record) Clone() *Record {
	fields := make([][]byte, len(r.fields))
	var total int
	for _, f := range r.fields {
		total += len(f)
	}
	slab := make([]byte, total)
	var off int
	for i, f := range r.fields {
		n := copy(slab[off:], f)
		fields[i] = slab[off : off+n]
		off += n
	}
	return &Record{fields: fields}
}

// NewRecordFromStrings builds a standalone Record from plain strings,
// for callers (batch pipeline, script runtime) that produce rows as
// []string rather than consuming them from a Reader.
func NewRecordFromStrings(fields []string) *Record {
	rec := &Record{fields: make([][]byte, len(fields))}
	for i, f := range fields {
		rec.fields[i] = []byte(f)
	}
	return rec
}

// reset truncates the field list without releasing backing capacity, so
// the slice header is reused across ReadRecord calls.
func (r *Record) reset() {
	r.fields = r.fields[:0]
}

// appendField appends a new field view onto the record.
func (r *Record) appendField(b []byte) {
	r.fields = append(r.fields, b)
}

// HeaderIndex maps header names to 0-based positions, used by the
// selection resolver and by script record views that support
// get_by_name.
type HeaderIndex struct {
	positions map[string]int
	names     []string
}

// NewHeaderIndex builds a lookup from a materialized header Record.
// Duplicate names are kept at their first-seen position; callers that
// need every occurrence should consult Names() directly and disambiguate
// by position.
func NewHeaderIndex(header *Record) *HeaderIndex {
	hi := &HeaderIndex{
		positions: make(map[string]int, header.Len()),
		names:     header.Strings(),
	}
	for i, name := range hi.names {
		if _, ok := hi.positions[name]; !ok {
			hi.positions[name] = i
		}
	}
	return hi
}

// Position returns the 0-based column position for name, if present.
func (hi *HeaderIndex) Position(name string) (int, bool) {
	i, ok := hi.positions[name]
	return i, ok
}

// Names returns the header names in column order.
func (hi *HeaderIndex) Names() []string {
	return hi.names
}

// Len returns the number of header columns.
func (hi *HeaderIndex) Len() int {
	return len(hi.names)
}

// SafeNames derives filesystem/identifier-safe column names: every
// byte that is not an ASCII letter or digit becomes an underscore (so a
// multi-byte UTF-8 rune yields one underscore per byte), duplicates are
// disambiguated with a numeric suffix, and names colliding with
// reserved gets a trailing underscore.
func SafeNames(names []string, reserved map[string]bool) []string {
	seen := make(map[string]int, len(names))
	out := make([]string, len(names))
	for i, n := range names {
		safe := make([]byte, 0, len(n))
		for _, c := range []byte(n) {
			if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
				safe = append(safe, c)
			} else {
				safe = append(safe, '_')
			}
		}
		if len(safe) == 0 {
			safe = []byte("_")
		}
		name := string(safe)
		if reserved != nil && reserved[name] {
			name += "_"
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = name + "_" + strconv.Itoa(n+1)
		} else {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}
