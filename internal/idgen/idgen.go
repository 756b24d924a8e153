// Package idgen provides ID generation: cryptographically random IDs for
// audit records and monotonic zero-padded sequences for session-scoped
// entities such as transactions.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
)

// WithPrefix generates a random ID with a prefix (e.g. "asmt_", "req_").
// Result is prefix + 24 hex chars (12 random bytes).
func WithPrefix(prefix string) string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return prefix + hex.EncodeToString(b)
}

// Hex generates a random hex string of the given byte length.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// Sequence issues monotonic, zero-padded IDs such as "TXN-000001".
// The zero padding keeps lexicographic order aligned with issue order,
// so sequence IDs sort correctly as plain strings.
type Sequence struct {
	prefix string
	width  int
	n      atomic.Uint64
}

// NewSequence creates a sequence with the given prefix and pad width.
func NewSequence(prefix string, width int) *Sequence {
	if width <= 0 {
		width = 6
	}
	return &Sequence{prefix: prefix, width: width}
}

// Next returns the next ID in the sequence, starting at 1.
func (s *Sequence) Next() string {
	n := s.n.Add(1)
	return fmt.Sprintf("%s%0*d", s.prefix, s.width, n)
}

// Reset rewinds the sequence to zero. Used when a session is cleared.
func (s *Sequence) Reset() {
	s.n.Store(0)
}
