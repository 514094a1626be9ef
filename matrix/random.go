package matrix

import (
	"encoding/binary"
	"math/rand/v2"

	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/util/random"
	"go.dedis.ch/kyber/v4/xof/blake2xb"
)

const seedSize = 32

// Source is a deterministic stream of 64-bit values expanded from a seed
// with the BLAKE2Xb extendable-output function. It implements
// math/rand/v2.Source.
type Source struct {
	xof  kyber.XOF
	seed []byte
	buf  [8]byte
}

// NewSource returns the stream of seed. Equal seeds give equal streams.
func NewSource(seed []byte) *Source {
	s := &Source{seed: append([]byte(nil), seed...)}
	s.xof = blake2xb.New(s.seed)
	return s
}

// NewRandomSource returns a stream seeded from the system randomness.
func NewRandomSource() *Source {
	seed := make([]byte, seedSize)
	random.New().XORKeyStream(seed, seed)
	return NewSource(seed)
}

// Seed returns the seed the stream was expanded from.
func (s *Source) Seed() []byte {
	return append([]byte(nil), s.seed...)
}

func (s *Source) Uint64() uint64 {
	if _, err := s.xof.Read(s.buf[:]); err != nil {
		// BLAKE2Xb only fails once 2^32 blocks have been read.
		panic(err)
	}
	return binary.LittleEndian.Uint64(s.buf[:])
}

// RandN returns a rows×cols matrix of standard normal values drawn from src.
func RandN(rows, cols int, src rand.Source) *Dense {
	r := rand.New(src)
	m := New(rows, cols)
	for i := range m.data {
		m.data[i] = r.NormFloat64()
	}
	return m
}
