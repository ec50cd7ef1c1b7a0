package crypto

import "errors"

var (
	// ErrDecryptionFailed is returned when a page's ciphertext authenticates
	// against neither the current nor the previous IV/HMAC slot.
	ErrDecryptionFailed = errors.New("crypto: page failed to authenticate")

	// ErrIVExhausted is returned by WritePage when bumping the IV to avoid
	// an HMAC first-4-byte collision with the previous slot didn't resolve
	// within the retry budget (see ivCollisionRetryLimit).
	ErrIVExhausted = errors.New("crypto: could not find a non-colliding IV")

	// ErrInvalidKeySize reports a key that isn't exactly 32 bytes (AES-256).
	// New and NewFromKeys take fixed [32]byte keys and never return it.
	ErrInvalidKeySize = errors.New("crypto: key must be 32 bytes")
)
