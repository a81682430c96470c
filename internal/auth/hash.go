package auth

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// DigestToken hashes an opaque token before it is used as a storage key, so a
// leaked cache never exposes live magic links. Keyed with the signing secret;
// falls back to the unkeyed digest only if the key exceeds blake2b's limit.
func DigestToken(secret, token string) string {
	key := []byte(secret)
	if len(key) > 64 {
		key = key[:64]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		sum := blake2b.Sum256([]byte(token))
		return hex.EncodeToString(sum[:])
	}
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}
