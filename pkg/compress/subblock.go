package compress

import (
	"encoding/binary"
	"fmt"
)

// SubBlockSize is the uncompressed chunk size a large blob is split into
// before each chunk is compressed independently (§4.8), so a consumer can
// seek directly to sub-block N without decompressing everything before it.
const SubBlockSize = 256 * 1024

// EncodeSubBlocks splits data into SubBlockSize chunks, compresses each
// independently under algo, and concatenates them as
// `[4-byte big-endian length][compressed chunk]...`.
func EncodeSubBlocks(algo Algorithm, data []byte) ([]byte, error) {
	var out []byte

	for off := 0; off < len(data) || len(data) == 0; off += SubBlockSize {
		end := off + SubBlockSize
		if end > len(data) {
			end = len(data)
		}

		framed, err := Compress(algo, data[off:end])
		if err != nil {
			return nil, err
		}

		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(framed)))
		out = append(out, lenBuf[:]...)
		out = append(out, framed...)

		if len(data) == 0 {
			break
		}
	}

	return out, nil
}

// SubBlockOffsets locates every sub-block within an EncodeSubBlocks stream,
// returning the byte range of each compressed (length-prefixed) chunk within
// buf - the building block for random-offset extraction.
func SubBlockOffsets(buf []byte) ([][2]int, error) {
	var spans [][2]int

	pos := 0
	for pos < len(buf) {
		if pos+4 > len(buf) {
			return nil, fmt.Errorf("compress: truncated sub-block length prefix at offset %d", pos)
		}

		n := int(binary.BigEndian.Uint32(buf[pos : pos+4]))
		start := pos + 4
		end := start + n
		if end > len(buf) {
			return nil, fmt.Errorf("compress: truncated sub-block payload at offset %d", start)
		}

		spans = append(spans, [2]int{start, end})
		pos = end
	}

	return spans, nil
}

// DecodeSubBlock decompresses the sub-block at logical index i within an
// EncodeSubBlocks stream, without touching any other sub-block.
func DecodeSubBlock(buf []byte, i int) ([]byte, error) {
	spans, err := SubBlockOffsets(buf)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= len(spans) {
		return nil, fmt.Errorf("compress: sub-block index %d out of range (%d sub-blocks)", i, len(spans))
	}

	span := spans[i]
	return Decompress(buf[span[0]:span[1]])
}
