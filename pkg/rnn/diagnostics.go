package rnn

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"tinyrnn/pkg/model"
)

// Gradient check sweep: GradientSteps magnitudes spaced geometrically from
// 10^minPow to 10^maxPow.
const (
	GradientSteps = 30
	minPow        = -7.0
	maxPow        = 2.0
)

// StepSizes returns the perturbation magnitudes used by the gradient check.
func StepSizes() []float64 {
	c := math.Pow(10, (maxPow-minPow)/(GradientSteps-1))
	t := -minPow / math.Log10(c)
	out := make([]float64, GradientSteps)
	for i := range out {
		out[i] = math.Pow(c, float64(i)-t)
	}
	return out
}

// gradientCheck compares, for random directions δ and step sizes γ, the
// realized loss change E(θ+γδ)-E(θ) with the linear prediction γ·gᵗδ. It
// returns one row of ratios per direction; a correct gradient gives ratios
// near 1 for small γ until rounding takes over. Parameters are restored
// before returning.
func gradientCheck(m model.Trainable, loss func() float64, directions int, log *logrus.Logger) [][]float64 {
	restore := m.Checkpoint()
	defer restore()

	initial := loss()
	steps := StepSizes()
	out := make([][]float64, directions)
	for j := range out {
		restore()
		m.PickDeltas()
		row := make([]float64, len(steps))
		for i, gamma := range steps {
			m.AddDeltas(gamma)
			diff := loss() - initial
			lin := gamma * m.GradTDelta()
			m.AddDeltas(-gamma)
			row[i] = diff / lin
		}
		out[j] = row
		log.WithFields(logrus.Fields{
			"direction": j,
			"ratios":    formatRow(row),
		}).Info("gradient check")
	}
	return out
}

// lineSearch applies steps updates of size gamma along the current gradient
// and records the loss after each one. Parameters are restored afterwards.
func lineSearch(m model.Trainable, loss func() float64, steps int, gamma float64, log *logrus.Logger) []float64 {
	restore := m.Checkpoint()
	defer restore()

	out := make([]float64, steps)
	for i := range out {
		m.Update(gamma)
		out[i] = loss()
	}
	log.WithFields(logrus.Fields{
		"gamma":   gamma,
		"entropy": formatRow(out),
	}).Info("line search")
	return out
}

func formatRow(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprintf("%+.3f", x)
	}
	return strings.Join(parts, " ")
}
