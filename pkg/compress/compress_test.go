package compress

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompress_roundTrips(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 500)

	for _, algo := range []Algorithm{None, Deflate, Lzfse} {
		framed, err := Compress(algo, data)
		require.NoError(t, err, algo)

		got, err := Decompress(framed)
		require.NoError(t, err, algo)
		require.Equal(t, data, got, algo)
	}
}

func TestCompress_deflateShrinksRepetitiveInput(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 64*1024)

	framed, err := Compress(Deflate, data)
	require.NoError(t, err)
	require.Less(t, len(framed), len(data)/4)
}

func TestDecompress_rejectsUnknownAlgorithm(t *testing.T) {
	framed := encodeHeader(nil, Algorithm(0x0F), 0)
	_, err := Decompress(framed)
	require.ErrorIs(t, err, ErrUnknownAlgorithm)
}

func TestStreamDecoder_acceptsArbitrarilySplitInput(t *testing.T) {
	data := bytes.Repeat([]byte("streaming payload split across many small feeds "), 2000)

	framed, err := Compress(Deflate, data)
	require.NoError(t, err)

	h, n, err := decodeHeader(framed)
	require.NoError(t, err)
	payload := framed[n:]

	dec, err := NewStreamDecoder(h.algo, h.decodedSize)
	require.NoError(t, err)

	go func() {
		for off := 0; off < len(payload); off += 7 {
			end := off + 7
			if end > len(payload) {
				end = len(payload)
			}
			_ = dec.Feed(payload[off:end])
		}
		_ = dec.Close()
	}()

	var out bytes.Buffer
	for {
		block, err := dec.NextBlock()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out.Write(block)
	}

	require.Equal(t, data, out.Bytes())
}

func TestSubBlocks_randomOffsetExtraction(t *testing.T) {
	data := bytes.Repeat([]byte("sub-block content "), 100000) // > 256 KiB, multiple sub-blocks

	encoded, err := EncodeSubBlocks(Deflate, data)
	require.NoError(t, err)

	spans, err := SubBlockOffsets(encoded)
	require.NoError(t, err)
	require.Greater(t, len(spans), 1)

	for i := range spans {
		start := i * SubBlockSize
		end := start + SubBlockSize
		if end > len(data) {
			end = len(data)
		}

		got, err := DecodeSubBlock(encoded, i)
		require.NoError(t, err)
		require.Equal(t, data[start:end], got)
	}
}
