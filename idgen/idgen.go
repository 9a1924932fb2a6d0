// Package idgen provides pluggable ID generation for locator records.
//
// Stores and services take a Generator so tests can swap in a
// deterministic sequence.
package idgen

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// Time-sortable, so event listings ordered by ID follow recording order.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Sequence returns a Generator yielding prefix1, prefix2, ... Intended for tests.
func Sequence(prefix string) Generator {
	var n atomic.Int64
	return func() string {
		return prefix + strconv.FormatInt(n.Add(1), 10)
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// Event is the generator used for recorded event IDs.
var Event Generator = Prefixed("evt_", Default)

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string (optionally prefixed, e.g. "evt_…") and
// returns it unchanged.
func Parse(s string) (string, error) {
	raw := s
	if i := len(s) - 36; i > 0 {
		raw = s[i:]
	}
	if _, err := uuid.Parse(raw); err != nil {
		return "", fmt.Errorf("idgen: invalid id %q: %w", s, err)
	}
	return s, nil
}
