package compress

import "errors"

var (
	// ErrUnknownAlgorithm is returned when a frame header names an
	// algo_nibble this package does not implement.
	ErrUnknownAlgorithm = errors.New("compress: unknown algorithm")

	// ErrTruncatedHeader is returned when fewer bytes than the header
	// declares are available to decode it.
	ErrTruncatedHeader = errors.New("compress: truncated frame header")

	// ErrDecodedSizeMismatch is returned when a fully drained stream
	// produced a different number of bytes than its header promised.
	ErrDecodedSizeMismatch = errors.New("compress: decoded size mismatch")
)
