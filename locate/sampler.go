package locate

import (
	"math/rand"
	"time"
)

// IndexSampler supplies the random indices RANSAC draws its minimal samples from.
// NextIndex must return a value in [0, n).
type IndexSampler interface {
	NextIndex(n int) int
}

// RandSampler is an IndexSampler backed by math/rand.
type RandSampler struct {
	rng *rand.Rand
}

// NewRandSampler returns a sampler seeded with seed. Identical seeds give
// identical index sequences.
func NewRandSampler(seed int64) *RandSampler {
	return &RandSampler{rng: rand.New(rand.NewSource(seed))}
}

// NewRandSamplerFrom wraps an existing generator.
func NewRandSamplerFrom(rng *rand.Rand) *RandSampler {
	return &RandSampler{rng: rng}
}

// NewTimeSeededSampler seeds from the wall clock; use it only where
// reproducibility does not matter.
func NewTimeSeededSampler() *RandSampler {
	return NewRandSampler(time.Now().UnixNano())
}

// NextIndex implements IndexSampler.
func (s *RandSampler) NextIndex(n int) int {
	return s.rng.Intn(n)
}

// drawPair draws two distinct indices in [0, n) uniformly without replacement.
func drawPair(s IndexSampler, n int) (int, int) {
	a := s.NextIndex(n)
	b := s.NextIndex(n - 1)
	if b >= a {
		b++
	}
	return a, b
}
