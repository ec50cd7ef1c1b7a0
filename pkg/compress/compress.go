package compress

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Compress frames data under algo: `[algo_nibble|size_width_nibble][size][payload]`.
func Compress(algo Algorithm, data []byte) ([]byte, error) {
	payload, err := encodePayload(algo, data)
	if err != nil {
		return nil, err
	}

	out := encodeHeader(make([]byte, 0, len(payload)+9), algo, uint64(len(data)))
	return append(out, payload...), nil
}

func encodePayload(algo Algorithm, data []byte) ([]byte, error) {
	switch algo {
	case None:
		return data, nil
	case Deflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("compress: deflate writer: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("compress: deflate write: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("compress: deflate close: %w", err)
		}
		return buf.Bytes(), nil
	case Lzfse:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("compress: zstd writer: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	default:
		return nil, ErrUnknownAlgorithm
	}
}

// Decompress fully decodes a frame produced by Compress, verifying the
// decoded size matches the header's claim.
func Decompress(framed []byte) ([]byte, error) {
	h, n, err := decodeHeader(framed)
	if err != nil {
		return nil, err
	}
	payload := framed[n:]

	decoded, err := decodePayload(h.algo, payload)
	if err != nil {
		return nil, err
	}
	if uint64(len(decoded)) != h.decodedSize {
		return nil, ErrDecodedSizeMismatch
	}

	return decoded, nil
}

func decodePayload(algo Algorithm, payload []byte) ([]byte, error) {
	switch algo {
	case None:
		return payload, nil
	case Deflate:
		r := flate.NewReader(bytes.NewReader(payload))
		defer r.Close()
		return io.ReadAll(r)
	case Lzfse:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("compress: zstd reader: %w", err)
		}
		defer dec.Close()
		return dec.DecodeAll(payload, nil)
	default:
		return nil, ErrUnknownAlgorithm
	}
}
