// Package crypto provides at-rest confidentiality and integrity for
// collection payloads: a keystream cipher for opaque payload strings, master
// key lifecycle over a pluggable secret store, and content hashing.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"github.com/Mahmud-Aminu/odk-surverlens-sub000/pkg/types"
)

// ivSize is the per-message initialization vector length in bytes. The IV is
// random per Encrypt call and prefixes the token as 2*ivSize hex characters.
const ivSize = 16

// Cipher encrypts and decrypts payload strings with a keystream derived from
// a process-wide master key. The scheme is a digest in counter mode:
// block(i) = SHA-256(key ‖ IV ‖ i), XORed against the plaintext, so
// ciphertext length equals plaintext length and there is no padding.
//
// The scheme carries no authentication tag. Decrypt rejects output that is
// not valid UTF-8, which is the only integrity signal it offers; callers that
// need tamper evidence pair it with Hash/VerifyIntegrity.
type Cipher struct {
	keys *Keychain
}

// NewCipher returns a Cipher drawing its master key from the given keychain.
func NewCipher(keys *Keychain) *Cipher {
	return &Cipher{keys: keys}
}

// Encrypt encrypts plaintext and returns the token hex(IV) ‖ hex(ciphertext).
// A fresh random IV is generated per call, so encrypting the same plaintext
// twice yields different tokens that both decrypt correctly.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	key, err := c.keys.MasterKey()
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generating IV: %w", err)
	}

	data := []byte(plaintext)
	stream := keystream(key, iv, len(data))
	for i := range data {
		data[i] ^= stream[i]
	}

	return hex.EncodeToString(iv) + hex.EncodeToString(data), nil
}

// Decrypt splits the IV from the token, regenerates the keystream, and
// recovers the plaintext. Malformed tokens and output that fails to decode
// as UTF-8 text return errors wrapping types.ErrDecryptFailed; garbage is
// never returned as a partial result.
func (c *Cipher) Decrypt(token string) (string, error) {
	if len(token) < 2*ivSize || len(token)%2 != 0 {
		return "", fmt.Errorf("%w: token length %d", types.ErrMalformedToken, len(token))
	}

	iv, err := hex.DecodeString(token[:2*ivSize])
	if err != nil {
		return "", fmt.Errorf("%w: bad IV: %v", types.ErrMalformedToken, err)
	}
	data, err := hex.DecodeString(token[2*ivSize:])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext: %v", types.ErrMalformedToken, err)
	}

	key, err := c.keys.MasterKey()
	if err != nil {
		return "", err
	}

	stream := keystream(key, iv, len(data))
	for i := range data {
		data[i] ^= stream[i]
	}

	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: recovered bytes are not valid text", types.ErrDecryptFailed)
	}
	return string(data), nil
}

// keystream derives at least n bytes from (key, iv) by hashing
// key ‖ iv ‖ counter for successive big-endian 8-byte counters.
func keystream(key, iv []byte, n int) []byte {
	out := make([]byte, 0, n+sha256.Size)
	var counter [8]byte
	for block := uint64(0); len(out) < n; block++ {
		binary.BigEndian.PutUint64(counter[:], block)
		h := sha256.New()
		h.Write(key)
		h.Write(iv)
		h.Write(counter[:])
		out = h.Sum(out)
	}
	return out[:n]
}
