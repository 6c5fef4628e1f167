package csvio

import (
	"bufio"
	"io"

	"github.com/klauspost/compress/gzip"
)

// OpenDecompressed wraps src in a gzip decoder when the stream looks
// gzip-compressed (checked via the standard two-byte magic), otherwise
// returns src unchanged. This keeps decompression an opaque decoder in
// front of the Reader rather than something the codec itself needs to
// know about — callers that need other formats (snappy, zstd) wrap src
// themselves before handing it to NewReader.
func OpenDecompressed(src io.Reader) (io.Reader, error) {
	br := bufio.NewReaderSize(src, 4096)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, err
		}
		return gz, nil
	}
	return br, nil
}
