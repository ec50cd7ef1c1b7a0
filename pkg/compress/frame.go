package compress

import (
	"encoding/binary"
	"fmt"
)

// Algorithm is the algo_nibble tag carried in a frame header (§4.8).
type Algorithm byte

const (
	// None stores the payload uncompressed.
	None Algorithm = 0
	// Deflate compresses the payload with RFC 1951 deflate.
	Deflate Algorithm = 1
	// Lzfse is the wire tag for the original's Apple-LZFSE-compressed
	// payload. No LZFSE implementation exists anywhere in this module's
	// dependency corpus, so this tag is instead backed by zstd (see
	// compress.go) - the tag's meaning ("the high-ratio alternative
	// codec") is preserved even though the concrete algorithm changed.
	Lzfse Algorithm = 2
)

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case Deflate:
		return "deflate"
	case Lzfse:
		return "lzfse"
	default:
		return fmt.Sprintf("algorithm(%d)", byte(a))
	}
}

// sizeWidthBytes maps a size_width_nibble to the number of little-endian
// bytes used to encode the decoded payload size.
var sizeWidthBytes = [4]int{1, 2, 4, 8}

func sizeWidthCodeFor(n uint64) byte {
	switch {
	case n <= 1<<8-1:
		return 0
	case n <= 1<<16-1:
		return 1
	case n <= 1<<32-1:
		return 2
	default:
		return 3
	}
}

// header is the decoded form of a frame's `[algo_nibble | size_width_nibble]`
// leading byte plus its little-endian decoded-size field.
type header struct {
	algo        Algorithm
	decodedSize uint64
}

// encodeHeader appends the frame header for algo/decodedSize to buf.
func encodeHeader(buf []byte, algo Algorithm, decodedSize uint64) []byte {
	widthCode := sizeWidthCodeFor(decodedSize)
	tag := byte(algo&0x0F) | (widthCode << 4)
	buf = append(buf, tag)

	width := sizeWidthBytes[widthCode]
	var sizeBuf [8]byte
	binary.LittleEndian.PutUint64(sizeBuf[:], decodedSize)
	return append(buf, sizeBuf[:width]...)
}

// decodeHeader reads a frame header from the front of buf, returning the
// header and the number of bytes it consumed.
func decodeHeader(buf []byte) (header, int, error) {
	if len(buf) < 1 {
		return header{}, 0, ErrTruncatedHeader
	}

	tag := buf[0]
	algo := Algorithm(tag & 0x0F)
	widthCode := tag >> 4
	if int(widthCode) >= len(sizeWidthBytes) {
		return header{}, 0, ErrTruncatedHeader
	}

	width := sizeWidthBytes[widthCode]
	if len(buf) < 1+width {
		return header{}, 0, ErrTruncatedHeader
	}

	var sizeBuf [8]byte
	copy(sizeBuf[:], buf[1:1+width])
	decodedSize := binary.LittleEndian.Uint64(sizeBuf[:])

	return header{algo: algo, decodedSize: decodedSize}, 1 + width, nil
}
