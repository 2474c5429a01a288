// Package token generates opaque job tokens.
package token

import (
	"encoding/base32"
	"encoding/binary"
	"time"

	"github.com/google/uuid"
)

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// New returns a token with a time-derived prefix and a random suffix,
// collision-resistant for the lifetime of the process: a little-endian
// unix-nanosecond timestamp, base32-encoded, followed by "-" and the first 8
// characters of a random UUID. Tokens do not sort in creation order.
func New() string {
	return NewAt(time.Now())
}

// NewAt builds a token as New does, using at as the time component. Exposed
// for deterministic tests.
func NewAt(at time.Time) string {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(at.UnixNano()))
	return encoding.EncodeToString(buf[:]) + "-" + uuid.NewString()[:8]
}
