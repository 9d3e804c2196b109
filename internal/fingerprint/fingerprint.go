package fingerprint

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// DigestLength is the number of hex characters in a Digest.
const DigestLength = sha256.Size * 2

// ErrInvalidDigest indicates that a stored digest is not a lowercase SHA-256 hex string.
var ErrInvalidDigest = errors.New("fingerprint: invalid digest")

// Digest is the lowercase hex SHA-256 of a document's content.
type Digest string

// Compute fingerprints the exact bytes of content. No normalization is applied,
// so any single-character change yields a different digest.
func Compute(content string) Digest {
	sum := sha256.Sum256([]byte(content))
	return Digest(hex.EncodeToString(sum[:]))
}

// ParseDigest validates a stored digest value.
func ParseDigest(raw string) (Digest, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) != DigestLength {
		return "", fmt.Errorf("%w: expected %d characters, got %d", ErrInvalidDigest, DigestLength, len(trimmed))
	}
	if strings.ToLower(trimmed) != trimmed {
		return "", fmt.Errorf("%w: not lowercase", ErrInvalidDigest)
	}
	if _, err := hex.DecodeString(trimmed); err != nil {
		return "", fmt.Errorf("%w: not hex", ErrInvalidDigest)
	}
	return Digest(trimmed), nil
}

// Matches recomputes the digest of content and compares it with d in constant time.
func (d Digest) Matches(content string) bool {
	recomputed := Compute(content)
	return subtle.ConstantTimeCompare([]byte(d), []byte(recomputed)) == 1
}

// String returns the hex digest.
func (d Digest) String() string {
	return string(d)
}

// Short returns the first 12 characters for log lines.
func (d Digest) Short() string {
	if len(d) <= 12 {
		return string(d)
	}
	return string(d[:12])
}
