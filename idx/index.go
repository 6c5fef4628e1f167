// Package idx implements the byte-offset index file: a sibling file
// next to a CSV input that maps record number to byte offset, enabling
// O(1) seeks and O(1) row counts. Creation and staleness handling mirror
// the atomic temp-file-plus-rename persistence idiom used elsewhere in
// this engine for the stats cache.
package idx

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/csvengine/core/csvio"
)

const suffix = ".idx"

// Index is an in-memory view of a loaded or freshly built index file:
// a dense array of record-start byte offsets (post-header) plus the
// trailing record count.
type Index struct {
	offsets []uint64
}

// Path returns the sibling index path for a source CSV path.
func Path(sourcePath string) string {
	return sourcePath + suffix
}

// Len returns the number of indexed records.
func (ix *Index) Len() uint64 {
	return uint64(len(ix.offsets))
}

// LastRow returns the last valid 0-based record index, or -1 if empty.
func (ix *Index) LastRow() int64 {
	if len(ix.offsets) == 0 {
		return -1
	}
	return int64(len(ix.offsets)) - 1
}

// Seek returns the byte offset of record n (0-based), or an error if n
// is out of range.
func (ix *Index) Seek(n uint64) (uint64, error) {
	if n >= uint64(len(ix.offsets)) {
		return 0, fmt.Errorf("record %d out of range [0,%d)", n, len(ix.offsets))
	}
	return ix.offsets[n], nil
}

// Build scans sourcePath sequentially with the given reader config,
// recording the starting byte offset of every record after the header
// (if hasHeader), and writes the result atomically to Path(sourcePath).
func Build(sourcePath string, cfg csvio.ReaderConfig, hasHeader bool) (*Index, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s for indexing: %w", sourcePath, err)
	}
	defer f.Close()

	r := csvio.NewReader(f, cfg)
	if hasHeader {
		if _, err := r.Headers(); err != nil {
			return nil, fmt.Errorf("reading header of %s: %w", sourcePath, err)
		}
	}

	// csvio.Reader does not expose a per-call "offset before this
	// record" hook, so the index builder re-scans with its own
	// lightweight offset-tracking loop rather than threading that state
	// through the hot-path Reader.
	offsets, err := scanOffsets(sourcePath, cfg, hasHeader)
	if err != nil {
		return nil, err
	}

	if err := writeAtomic(Path(sourcePath), offsets); err != nil {
		return nil, err
	}
	return &Index{offsets: offsets}, nil
}

// scanOffsets performs a byte-position-tracking scan independent of the
// buffered csvio.Reader so offsets are exact file positions rather than
// bufio-relative counts.
func scanOffsets(sourcePath string, cfg csvio.ReaderConfig, hasHeader bool) ([]uint64, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	br := bufio.NewReaderSize(f, 64*1024)

	var pos uint64
	skipLine := func() error {
		for {
			b, err := br.ReadByte()
			if err != nil {
				return err
			}
			pos++
			if b == '\n' {
				return nil
			}
		}
	}

	if hasHeader {
		if err := skipLine(); err != nil {
			return nil, nil
		}
	}

	var offsets []uint64
	recordStart := pos
	inQuotes := false
	sawByte := false
	for {
		b, err := br.ReadByte()
		if err != nil {
			if sawByte {
				offsets = append(offsets, recordStart)
			}
			break
		}
		sawByte = true
		pos++
		switch {
		case b == cfg.Quote:
			inQuotes = !inQuotes
		case b == '\n' && !inQuotes:
			offsets = append(offsets, recordStart)
			recordStart = pos
			sawByte = false
		}
	}
	return offsets, nil
}

func writeAtomic(path string, offsets []uint64) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp index file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpName)
	}()

	buf := bufio.NewWriter(tmp)
	var scratch [8]byte
	for _, off := range offsets {
		binary.LittleEndian.PutUint64(scratch[:], off)
		if _, err := buf.Write(scratch[:]); err != nil {
			return err
		}
	}
	binary.LittleEndian.PutUint64(scratch[:], uint64(len(offsets)))
	if _, err := buf.Write(scratch[:]); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Load reads an existing index file and checks only its own layout (a
// length that is a multiple of 8 and a trailer count that matches the
// number of offsets). It does not compare the index against the source
// file; IsStale does that, and LoadOrBuild rebuilds when it reports true.
func Load(sourcePath string) (*Index, error) {
	path := Path(sourcePath)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < 8 || len(data)%8 != 0 {
		return nil, fmt.Errorf("corrupt index file %s: length %d not a multiple of 8", path, len(data))
	}
	n := len(data)/8 - 1
	count := binary.LittleEndian.Uint64(data[n*8:])
	if uint64(n) != count {
		return nil, fmt.Errorf("corrupt index file %s: trailer count %d disagrees with %d offsets", path, count, n)
	}
	offsets := make([]uint64, n)
	for i := 0; i < n; i++ {
		offsets[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	return &Index{offsets: offsets}, nil
}

// IsStale reports whether the on-disk index for sourcePath is missing,
// corrupt, or whose recorded offsets are inconsistent with the current
// file's length (the last offset plus trailer bookkeeping must not
// exceed the current file size).
func IsStale(sourcePath string) bool {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return true
	}
	ix, err := Load(sourcePath)
	if err != nil {
		return true
	}
	if len(ix.offsets) == 0 {
		return false
	}
	return ix.offsets[len(ix.offsets)-1] >= uint64(info.Size())
}

// LoadOrBuild returns a valid index for sourcePath, transparently
// rebuilding it if missing or stale.
func LoadOrBuild(sourcePath string, cfg csvio.ReaderConfig, hasHeader bool) (*Index, error) {
	if !IsStale(sourcePath) {
		if ix, err := Load(sourcePath); err == nil {
			return ix, nil
		}
	}
	return Build(sourcePath, cfg, hasHeader)
}

// ReadAt reads the single record starting at byte offset off from
// sourcePath using cfg, returning it as a cloned Record independent of
// any reader's internal slab.
func ReadAt(sourcePath string, off uint64, cfg csvio.ReaderConfig) (*csvio.Record, error) {
	f, err := os.Open(sourcePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if _, err := f.Seek(int64(off), 0); err != nil {
		return nil, err
	}
	r := csvio.NewReader(f, cfg)
	outcome := r.ReadRecord()
	if outcome == Err {
		return nil, r.Err()
	}
	if outcome == Eof {
		return nil, fmt.Errorf("no record at offset %d", off)
	}
	return r.Current().Clone(), nil
}

const (
	// Eof and Err re-exported for ReadAt's local comparisons; aliasing
	// keeps this package from importing csvio's outcome constants twice.
	Eof = csvio.Eof
	Err = csvio.Err
)
