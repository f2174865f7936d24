// Package rng provides the single sequential random stream a game session
// draws from. Every draw (dice, land effects, star promotion, measurement)
// consumes the same stream, so a session is replayable from its seed and the
// ordered list of inputs.
package rng

import "math/rand/v2"

// splitMix is a splitmix64 source. Its whole state is one word, which keeps
// snapshots trivial.
type splitMix struct {
	state uint64
}

func (s *splitMix) Uint64() uint64 {
	s.state += 0x9e3779b97f4a7c15
	z := s.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Stream is a seedable random stream. It is not safe for concurrent use; it
// belongs to the goroutine that owns the session.
type Stream struct {
	src   *splitMix
	r     *rand.Rand
	draws uint64
}

func New(seed int64) *Stream {
	src := &splitMix{state: uint64(seed)}
	return &Stream{src: src, r: rand.New(src)}
}

// Restore rebuilds a stream from a value previously returned by State.
func Restore(state, draws uint64) *Stream {
	src := &splitMix{state: state}
	return &Stream{src: src, r: rand.New(src), draws: draws}
}

// State returns the raw generator word and the number of draws so far.
func (s *Stream) State() (state, draws uint64) { return s.src.state, s.draws }

func (s *Stream) Uint64() uint64 {
	s.draws++
	return s.r.Uint64()
}

// Bits returns n uniformly distributed low bits (n <= 64).
func (s *Stream) Bits(n uint) uint64 {
	if n == 0 {
		return 0
	}
	v := s.Uint64()
	if n >= 64 {
		return v
	}
	return v >> (64 - n)
}

// IntN returns a uniform value in [0,n). It panics if n <= 0.
func (s *Stream) IntN(n int) int {
	s.draws++
	return s.r.IntN(n)
}

// Float64 returns a uniform value in [0,1).
func (s *Stream) Float64() float64 {
	s.draws++
	return s.r.Float64()
}
