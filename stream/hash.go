package stream

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Fingerprint is a BLAKE3-256 digest of decoded file content. Two files
// with the same text have the same fingerprint regardless of compression.
type Fingerprint [32]byte

// FingerprintBytes computes the fingerprint of data.
func FingerprintBytes(data []byte) Fingerprint {
	return Fingerprint(blake3.Sum256(data))
}

// String returns the fingerprint as lowercase hex.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}
