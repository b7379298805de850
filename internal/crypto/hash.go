package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Hash returns the SHA-256 digest of data as lowercase hex. Used for
// submission integrity tagging and form definition fingerprints; independent
// of the payload cipher.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity reports whether data hashes to the given hex digest.
// The comparison is constant-time.
func VerifyIntegrity(data []byte, digest string) bool {
	sum := Hash(data)
	return subtle.ConstantTimeCompare([]byte(sum), []byte(digest)) == 1
}
