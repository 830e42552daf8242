package game

import (
	crand "crypto/rand"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"sync"
)

const (
	MIN_MULTIPLIER  = 1.00
	MULTIPLIER_STEP = 0.01
	MIN_CRASH_POINT = 1.50
	MAX_CRASH_POINT = 10.00
)

// CrashSampler draws the crash point of a new round.
type CrashSampler interface {
	Sample() float64
}

// SamplerFunc adapts a function to CrashSampler.
type SamplerFunc func() float64

func (f SamplerFunc) Sample() float64 { return f() }

// UniformSampler draws crash points uniformly from [1.50, 10.00) and rounds
// them to two decimals.
type UniformSampler struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewUniformSampler seeds a ChaCha8 source from crypto/rand.
func NewUniformSampler() *UniformSampler {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		// crypto/rand only fails on a broken platform; fall back to the runtime source.
		binary.LittleEndian.PutUint64(seed[:], rand.Uint64())
	}
	return &UniformSampler{r: rand.New(rand.NewChaCha8(seed))}
}

// NewSeededSampler returns a reproducible sampler.
func NewSeededSampler(seed1, seed2 uint64) *UniformSampler {
	return &UniformSampler{r: rand.New(rand.NewPCG(seed1, seed2))}
}

func (s *UniformSampler) Sample() float64 {
	s.mu.Lock()
	u := s.r.Float64()
	s.mu.Unlock()
	return roundMultiplier(MIN_CRASH_POINT + u*(MAX_CRASH_POINT-MIN_CRASH_POINT))
}

// roundMultiplier rounds to two decimals.
func roundMultiplier(v float64) float64 {
	return math.Round(v*100) / 100
}

// nextMultiplier advances the multiplier by one step.
func nextMultiplier(current float64) float64 {
	return roundMultiplier(current + MULTIPLIER_STEP)
}
