// Package model holds the learned parameters of the recurrent language
// models together with their gradients and finite-difference directions.
package model

import (
	"fmt"
	"math/rand"

	"tinyrnn/pkg/linalg"
)

// Param is a weight matrix with its gradient and perturbation buffers. G and
// D always have W's shape.
type Param struct {
	W, G, D *linalg.Matrix
}

// NewParam allocates a zeroed rows x cols parameter.
func NewParam(rows, cols int) *Param {
	return &Param{
		W: linalg.NewMatrix(rows, cols),
		G: linalg.NewMatrix(rows, cols),
		D: linalg.NewMatrix(rows, cols),
	}
}

// Clone deep-copies W and G. The clone's direction buffer is zero.
func (p *Param) Clone() *Param {
	return &Param{W: p.W.Clone(), G: p.G.Clone(), D: linalg.NewMatrix(p.W.Rows, p.W.Cols)}
}

// CopyFrom overwrites W and G with o's values.
func (p *Param) CopyFrom(o *Param) {
	if !p.W.SameShape(o.W) {
		panic(fmt.Sprintf("model: CopyFrom: shape mismatch %dx%d vs %dx%d", p.W.Rows, p.W.Cols, o.W.Rows, o.W.Cols))
	}
	p.W.Copy(o.W)
	p.G.Copy(o.G)
}

func (p *Param) ResetGradient() { p.G.Fill(0) }

// Update applies W -= gamma*G.
func (p *Param) Update(gamma float64) { p.W.AddInPlace(-gamma, p.G) }

// PickDelta draws a fresh random direction.
func (p *Param) PickDelta(rng *rand.Rand, scale float64) { p.D.FillRandn(rng, scale) }

// AddDelta applies W += gamma*D.
func (p *Param) AddDelta(gamma float64) { p.W.AddInPlace(gamma, p.D) }

func (p *Param) GradTDelta() float64 { return p.G.DotProduct(p.D) }

// rowSet records the rows of an embedding matrix that received gradient
// since the last reset, in first-touched order.
type rowSet struct {
	mark []bool
	rows []int
}

func newRowSet(n int) rowSet {
	return rowSet{mark: make([]bool, n)}
}

func (s *rowSet) add(i int) {
	if !s.mark[i] {
		s.mark[i] = true
		s.rows = append(s.rows, i)
	}
}

func (s *rowSet) clear() {
	for _, i := range s.rows {
		s.mark[i] = false
	}
	s.rows = s.rows[:0]
}

func (s *rowSet) copyFrom(o *rowSet) {
	s.clear()
	for _, i := range o.rows {
		s.add(i)
	}
}

// resetRows zeroes the gradient rows listed in s.
func (p *Param) resetRows(s *rowSet) {
	for _, i := range s.rows {
		p.G.FillRow(i, 0)
	}
}

// updateRows applies W -= gamma*G on the rows listed in s only.
func (p *Param) updateRows(gamma float64, s *rowSet) {
	for _, i := range s.rows {
		p.W.AddRowFrom(i, -gamma, p.G)
	}
}

func (p *Param) gradTDeltaRows(s *rowSet) float64 {
	var sum float64
	for _, i := range s.rows {
		sum += p.G.DotRow(i, p.D)
	}
	return sum
}
