// Package id provides centralized ID generation for the sandbox runner.
//
// Two identifier families exist on the wire:
//   - Request IDs: opaque correlation tokens pairing an outbound proxied
//     call with its eventual response. They must be unguessable-unique for
//     the lifetime of the channel, so they are random 128-bit UUIDs.
//   - Timer IDs: host-owned periodic trigger records keyed by a
//     sandbox-issued identifier. They are ULIDs prefixed with the
//     coordinator's logical name (weather_*, statistics_*) so logs on both
//     sides of the channel stay readable.
//
// Design Principles:
//   - Prefixed types: name prefixes make IDs debuggable in host logs
//   - Type safety: separate Go types prevent ID misuse across tables
//   - Zero conflicts: correlation IDs never collide with timer IDs
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// RequestID identifies a correlated outbound proxy call.
type RequestID string

// TimerID identifies a host-owned periodic update timer.
type TimerID string

// RequestPrefix marks correlation tokens in logs.
const RequestPrefix = "req"

// Generator generates ULIDs with optional prefixes.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator backed by crypto/rand.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Useful for testing with deterministic entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewRequestID generates a correlation token for one outbound proxy call.
// UUIDv4 carries 122 random bits, enough that a stale or duplicate response
// can never satisfy the wrong waiter.
func NewRequestID() RequestID {
	return RequestID(fmt.Sprintf("%s_%s", RequestPrefix, uuid.NewString()))
}

// NewTimerID generates a timer registration ID for the named coordinator.
func NewTimerID(name string) TimerID {
	return TimerID(Default().GenerateWithPrefix(name))
}

// String methods for ID types.
func (id RequestID) String() string { return string(id) }
func (id TimerID) String() string   { return string(id) }

// IsValid checks whether a timer ID carries the expected name prefix.
func (id TimerID) IsValid(name string) bool {
	prefixed := name + "_"
	if len(id) <= len(prefixed) {
		return false
	}
	if string(id[:len(prefixed)]) != prefixed {
		return false
	}
	_, err := ulid.Parse(string(id[len(prefixed):]))
	return err == nil
}
