package utils

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var objectIDCounter uint32

// GenerateID generates a 12-byte ObjectID-like string (24 hex characters).
// Message IDs use it so they sort by creation time.
func GenerateID() string {
	var b [12]byte
	binary.BigEndian.PutUint32(b[0:4], uint32(time.Now().Unix()))
	_, _ = rand.Read(b[4:9])
	c := atomic.AddUint32(&objectIDCounter, 1) % 0xFFFFFF
	b[9] = byte(c >> 16)
	b[10] = byte(c >> 8)
	b[11] = byte(c)
	return hex.EncodeToString(b[:])
}

// NewCallID returns a tool call id for providers that do not assign one.
func NewCallID() string {
	return "call_" + uuid.NewString()
}

// NewSessionID returns a short random session identifier used for log grouping.
func NewSessionID() string {
	return uuid.NewString()[:8]
}
