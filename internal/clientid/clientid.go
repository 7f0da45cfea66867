// Package clientid defines the 16-byte identifier every session and
// every sender on the wire is known by.
package clientid

import (
	"fmt"

	"github.com/google/uuid"
)

// Len is the wire length of a ClientId, in bytes.
const Len = 16

// ID is a 128-bit client identifier. It is carried on the wire as raw
// bytes and printed as a UUID for logs and diagnostics.
type ID [Len]byte

// New generates a fresh random ClientId, the same way the original
// backend mints one with uuid.uuid4() on startup.
func New() ID {
	var id ID
	u := uuid.New()
	copy(id[:], u[:])
	return id
}

// FromBytes copies exactly Len bytes into a ClientId. It returns an
// error if b is not exactly Len bytes long.
func FromBytes(b []byte) (ID, error) {
	var id ID
	if len(b) != Len {
		return id, fmt.Errorf("clientid: want %d bytes, got %d", Len, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Bytes returns the ClientId's wire representation.
func (id ID) Bytes() []byte {
	b := make([]byte, Len)
	copy(b, id[:])
	return b
}

// String renders the ClientId as a canonical UUID.
func (id ID) String() string {
	return uuid.UUID(id).String()
}
