// Package id issues the identifiers the server hands to clients: time-ordered
// numeric ids for sessions, query ids in the warehouse's dashed form, and
// opaque session tokens.
package id

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Bit allocation of a 64-bit id:
//   - 42 bits for wall time in milliseconds (~139 years from epoch)
//   - 6 bits for node ID (64 nodes max)
//   - 16 bits for a per-millisecond counter (~65k ids per ms)
const (
	CounterBits = 16
	CounterMask = (1 << CounterBits) - 1
	NodeIDBits  = 6
	NodeIDMask  = (1 << NodeIDBits) - 1
	shiftBits   = NodeIDBits + CounterBits
)

// Generator provides unique, roughly time-ordered ids.
type Generator interface {
	NextID() uint64
}

// Clock is a Generator that never hands out the same id twice and never
// goes backwards, even when the wall clock does. Thread-safe.
type Clock struct {
	nodeID  uint64
	salt    uint64
	mu      sync.Mutex
	lastMS  int64
	counter uint64
	now     func() time.Time
}

// NewClock creates a generator for nodeID (only the low 6 bits are used).
func NewClock(nodeID uint64) *Clock {
	var b [8]byte
	rand.Read(b[:])
	return &Clock{
		nodeID: nodeID & NodeIDMask,
		salt:   binary.BigEndian.Uint64(b[:]),
		now:    time.Now,
	}
}

// NextID generates a unique 64-bit id.
// Format: (physical_ms << 22) | (node_id << 16) | counter
func (c *Clock) NextID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ms := c.now().UnixMilli()
	if ms > c.lastMS {
		c.lastMS = ms
		c.counter = 0
	}

	// Counter exhausted for this millisecond: borrow the next one. lastMS
	// may run ahead of the wall clock until it catches up.
	if c.counter > CounterMask {
		c.lastMS++
		c.counter = 0
	}

	id := uint64(c.lastMS)<<shiftBits | c.nodeID<<CounterBits | c.counter
	c.counter++
	return id
}

// Time returns the millisecond an id was issued in.
func Time(id uint64) time.Time {
	return time.UnixMilli(int64(id >> shiftBits))
}

// NextQueryID returns a query id in the warehouse's 8-4-4-4-12 hex form.
// Ids from one Clock sort lexically in issue order.
func (c *Clock) NextQueryID() string {
	return FormatQueryID(c.NextID(), c.salt)
}

// FormatQueryID renders id and a per-process salt as a dashed query id.
func FormatQueryID(id, salt uint64) string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		id>>32, (id>>16)&0xffff, id&0xffff, salt>>48, salt&0xffffffffffff)
}

// Token returns a random opaque token of n bytes, hex encoded.
func Token(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
