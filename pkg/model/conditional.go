package model

import (
	"math/rand"

	"tinyrnn/pkg/linalg"
)

// Conditional is the character model whose output matrix is chosen by the
// symbol history preceding each token.
type Conditional struct {
	Hidden  int
	Symbols int

	R *Param // Hidden x Hidden recurrence
	A *Param // Symbols x Hidden embedding, one row per symbol
	U *Table[string]

	rows rowSet
	rng  *rand.Rand
}

// NewConditional allocates a zeroed model. Output matrices are created on
// first use of their history key, filled from rng.
func NewConditional(hidden, symbols int, rng *rand.Rand) *Conditional {
	if rng == nil {
		rng = newRand(1)
	}
	m := &Conditional{
		Hidden:  hidden,
		Symbols: symbols,
		R:       NewParam(hidden, hidden),
		A:       NewParam(symbols, hidden),
		rows:    newRowSet(symbols),
		rng:     rng,
	}
	m.U = NewTable[string](symbols, hidden, func(w *linalg.Matrix) { w.FillRandn(m.rng, 1) })
	return m
}

// Initialize fills the always-present weights.
func (m *Conditional) Initialize(init string) error {
	if err := checkInit(init); err != nil {
		return err
	}
	if init == InitDiagonal {
		m.R.W.FillRandn(m.rng, 0.01)
		m.R.W.SetDiag(0.95)
	} else {
		m.R.W.FillRandn(m.rng, 1)
	}
	m.A.W.FillRandn(m.rng, 1)
	m.ResetGradients()
	return nil
}

// AddHistory creates the output matrix for key if it does not exist yet.
func (m *Conditional) AddHistory(key string) { m.U.Add(key) }

// Output returns the output parameter for key, creating it on first access.
func (m *Conditional) Output(key string) *Param { return m.U.Get(key) }

// Touch records that key and embedding row x received gradient.
func (m *Conditional) Touch(key string, x int) {
	m.U.Touch(key)
	m.rows.add(x)
}

// TouchedRows returns the embedding rows touched since the last reset.
func (m *Conditional) TouchedRows() []int {
	return append([]int(nil), m.rows.rows...)
}

func (m *Conditional) NumContexts() int { return m.U.Len() }

func (m *Conditional) ResetGradients() {
	m.R.ResetGradient()
	m.A.resetRows(&m.rows)
	m.rows.clear()
	m.U.ResetGradients()
}

func (m *Conditional) ResetDeltas() {
	m.R.D.Fill(0)
	m.A.D.Fill(0)
	m.U.each(func(p *Param) { p.D.Fill(0) })
}

func (m *Conditional) Update(gamma float64) {
	m.R.Update(gamma)
	m.A.updateRows(gamma, &m.rows)
	m.U.Update(gamma)
}

func (m *Conditional) PickDeltas() {
	m.R.PickDelta(m.rng, 1)
	m.A.PickDelta(m.rng, 1)
	m.U.each(func(p *Param) { p.PickDelta(m.rng, 1) })
}

func (m *Conditional) AddDeltas(gamma float64) {
	m.R.AddDelta(gamma)
	m.A.AddDelta(gamma)
	m.U.each(func(p *Param) { p.AddDelta(gamma) })
}

func (m *Conditional) GradTDelta() float64 {
	return m.R.GradTDelta() + m.A.gradTDeltaRows(&m.rows) + m.U.GradTDelta()
}

// CopyFrom deep-copies o's weights, gradients and touched sets into m and
// rebuilds the history table to contain exactly o's keys.
func (m *Conditional) CopyFrom(o *Conditional) {
	m.R.CopyFrom(o.R)
	m.A.CopyFrom(o.A)
	m.U.CopyFrom(o.U)
	m.rows.copyFrom(&o.rows)
}

// Clone returns an independent copy sharing m's random source.
func (m *Conditional) Clone() *Conditional {
	c := NewConditional(m.Hidden, m.Symbols, m.rng)
	c.CopyFrom(m)
	return c
}

func (m *Conditional) Checkpoint() func() {
	saved := m.Clone()
	return func() { m.CopyFrom(saved) }
}
