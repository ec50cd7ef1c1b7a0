package compress

import (
	"compress/flate"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// blockSize is the size of the []byte span NextBlock hands back per call.
const blockSize = 64 * 1024

// StreamDecoder decompresses a frame incrementally: callers Feed it
// compressed bytes in whatever chunks they have on hand - a single read, a
// network packet, a sub-block - and drain decoded output with NextBlock.
// Feed hands bytes over synchronously through an io.Pipe and blocks until
// NextBlock, running on another goroutine, consumes them; nothing requires
// the caller to have the whole frame in memory at once.
type StreamDecoder struct {
	algo   Algorithm
	want   uint64
	got    uint64
	pr     *io.PipeReader
	pw     *io.PipeWriter
	reader io.ReadCloser
	zr     *zstd.Decoder
}

// NewStreamDecoder starts decoding a frame whose header has already been
// parsed out of the caller's buffer with decodeHeader; feed it the bytes
// that follow the header via Feed.
func NewStreamDecoder(algo Algorithm, decodedSize uint64) (*StreamDecoder, error) {
	d := &StreamDecoder{algo: algo, want: decodedSize}

	switch algo {
	case None:
		d.pr, d.pw = io.Pipe()
		d.reader = d.pr
	case Deflate:
		d.pr, d.pw = io.Pipe()
		d.reader = flate.NewReader(d.pr)
	case Lzfse:
		d.pr, d.pw = io.Pipe()
		zr, err := zstd.NewReader(d.pr)
		if err != nil {
			return nil, fmt.Errorf("compress: zstd stream reader: %w", err)
		}
		d.zr = zr
	default:
		return nil, ErrUnknownAlgorithm
	}

	return d, nil
}

// Feed appends more compressed bytes to the stream. It may block until a
// concurrent NextBlock call drains enough output to make room, mirroring
// io.Pipe's synchronous handoff.
func (d *StreamDecoder) Feed(p []byte) error {
	_, err := d.pw.Write(p)
	return err
}

// Close signals that no further input will arrive; a subsequent NextBlock
// call will drain whatever is left and then return io.EOF.
func (d *StreamDecoder) Close() error {
	return d.pw.Close()
}

// NextBlock decodes and returns up to blockSize bytes of plaintext, or
// (nil, io.EOF) once the frame is fully drained. It returns
// ErrDecodedSizeMismatch if the stream ends with fewer or more bytes than
// the frame header promised.
func (d *StreamDecoder) NextBlock() ([]byte, error) {
	buf := make([]byte, blockSize)

	var n int
	var err error
	if d.zr != nil {
		n, err = d.zr.Read(buf)
	} else {
		n, err = d.reader.Read(buf)
	}

	d.got += uint64(n)

	if err == io.EOF {
		if n == 0 {
			if d.got != d.want {
				return nil, ErrDecodedSizeMismatch
			}
			return nil, io.EOF
		}
		return buf[:n], nil
	}
	if err != nil {
		return nil, fmt.Errorf("compress: stream decode: %w", err)
	}

	return buf[:n], nil
}
