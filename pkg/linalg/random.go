package linalg

import "math/rand"

// UniRand draws uniformly from (0, 1].
func UniRand(rng *rand.Rand) float64 {
	return 1 - rng.Float64()
}

// Randn draws an approximately normal value: the mean of ten uniforms on
// (-1, 1]. Its standard deviation is about 0.18, which sets the scale of
// every random initialization in the models.
func Randn(rng *rand.Rand) float64 {
	var s float64
	for i := 0; i < 10; i++ {
		s += 2*UniRand(rng) - 1
	}
	return s / 10
}

// FillRandn fills v with scale * Randn(rng).
func (x Vector) FillRandn(rng *rand.Rand, scale float64) {
	for i := range x {
		x[i] = scale * Randn(rng)
	}
}

// Sample draws an index from the distribution p by inverting its cumulative
// sum. Rounding can leave the total just under the draw; the last index is
// returned then.
func Sample(rng *rand.Rand, p Vector) int {
	r := UniRand(rng)
	var cum float64
	for i, v := range p {
		cum += v
		if cum >= r {
			return i
		}
	}
	return len(p) - 1
}
