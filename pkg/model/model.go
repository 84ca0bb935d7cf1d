package model

import (
	"fmt"
	"math/rand"
)

// Initialization schemes accepted by Initialize.
const (
	InitGaussian = "gaussian"
	InitDiagonal = "diagonal"
)

// Trainable is the capability set the training schedulers and diagnostics
// need from a parameter set.
type Trainable interface {
	// ResetGradients zeroes the accumulated gradients and clears the
	// touched sets.
	ResetGradients()
	// Update applies param -= gamma*grad to always-present parameters and
	// to touched sparse entries.
	Update(gamma float64)
	// PickDeltas draws random perturbation directions.
	PickDeltas()
	// AddDeltas applies param += gamma*delta.
	AddDeltas(gamma float64)
	// GradTDelta returns the inner product of gradient and direction.
	GradTDelta() float64
	// Checkpoint snapshots the parameters and returns a function that
	// restores them.
	Checkpoint() (restore func())
}

var (
	_ Trainable = (*Conditional)(nil)
	_ Trainable = (*Hierarchical)(nil)
)

func checkInit(init string) error {
	switch init {
	case InitGaussian, InitDiagonal:
		return nil
	}
	return fmt.Errorf("unknown init %q (want %s or %s)", init, InitGaussian, InitDiagonal)
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}
