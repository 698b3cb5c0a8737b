package serialization

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeChecksum computes the SHA-256 checksum of the data section.
func ComputeChecksum(data []byte) [ChecksumSize]byte {
	return sha256.Sum256(data)
}

// ValidateChecksum compares a computed checksum against the stored one.
// Returns an error wrapping ErrChecksumMismatch if they differ.
func ValidateChecksum(computed, stored [ChecksumSize]byte) error {
	if computed != stored {
		return fmt.Errorf("%w: stored %s, computed %s", ErrChecksumMismatch,
			hex.EncodeToString(stored[:8]), hex.EncodeToString(computed[:8]))
	}
	return nil
}
