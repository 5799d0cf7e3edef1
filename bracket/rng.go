// Package bracket implements the deterministic, consensus-safe bracket
// construction and advancement algorithms for single-elimination
// tournaments: a counter-mode RNG, the seeded-shuffle bracket builder, and
// the round-advancement scheduler.
package bracket

import (
	"encoding/binary"

	"github.com/tolelom/tolchain/crypto"
)

// RNG produces integers uniform in [0, n) from a 32-byte seed using
// counter-mode SHA-256. Every node that shares the same seed produces the
// identical output stream regardless of platform, which is required because
// the bracket shuffle must be bit-exact across the whole validator set.
type RNG struct {
	seed    [32]byte
	counter uint64
	buffer  []byte
	cursor  int
}

// NewRNG creates an RNG seeded with the given 32 bytes of per-block
// entropy (the host's dynamic-global-properties randomness field).
func NewRNG(seed [32]byte) *RNG {
	return &RNG{seed: seed}
}

// refill computes H(seed || counter_be) and resets the read cursor.
func (r *RNG) refill() {
	var counterBuf [8]byte
	binary.BigEndian.PutUint64(counterBuf[:], r.counter)
	r.counter++

	buf := make([]byte, 0, len(r.seed)+len(counterBuf))
	buf = append(buf, r.seed[:]...)
	buf = append(buf, counterBuf[:]...)
	r.buffer = crypto.HashBytes(buf)
	r.cursor = 0
}

// nextWord draws the next little-endian uint64 from the hash stream,
// refilling the buffer whenever it is exhausted.
func (r *RNG) nextWord() uint64 {
	if r.cursor+8 > len(r.buffer) {
		r.refill()
	}
	v := binary.LittleEndian.Uint64(r.buffer[r.cursor : r.cursor+8])
	r.cursor += 8
	return v
}

// Next returns a value uniform in [0, n). n must be > 0. Draws are rejected
// via modulo-bias-free rejection sampling: any draw >= floor(2^64/n)*n is
// discarded and redrawn.
func (r *RNG) Next(n uint32) uint32 {
	if n == 0 {
		panic("bracket: RNG.Next called with n == 0")
	}
	// rem = 2^64 mod n, so floor(2^64/n)*n = 2^64 - rem.
	rem := -uint64(n) % uint64(n)
	for {
		draw := r.nextWord()
		if draw <= ^uint64(0)-rem {
			return uint32(draw % uint64(n))
		}
	}
}
