package layout

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

// HashSize is the size of the checksum.
const HashSize = sha256.Size

// Hash represents hash.
type Hash [HashSize]byte

// Checksum computes checksum of bytes.
func Checksum(b []byte) Hash {
	return sha256.Sum256(b)
}

// VerifyChecksum verifies that checksum of provided data matches the expected one.
func VerifyChecksum(what string, p []byte, expectedChecksum Hash) error {
	checksum := Checksum(p)
	if checksum == expectedChecksum {
		return nil
	}
	return errors.Errorf("checksum mismatch for %s, computed: %s, expected: %s",
		what, hex.EncodeToString(checksum[:]), hex.EncodeToString(expectedChecksum[:]))
}
