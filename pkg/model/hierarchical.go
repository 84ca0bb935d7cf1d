package model

import "math/rand"

// WordOutputThreshold is the mixing weight at or below which the word-level
// softmax is skipped entirely.
const WordOutputThreshold = 0.01

// Hierarchical is the word model with an inner character chain per word.
// Word ids index the restricted input vocabulary (rows of Aw) and the
// restricted output vocabulary (rows of Uw); id 0 is the fallback bucket.
type Hierarchical struct {
	WordHidden  int
	CharHidden  int
	InputWords  int
	OutputWords int
	Chars       int
	// Alpha weights the word entropy against the character entropy.
	Alpha float64

	Rw *Param // WordHidden x WordHidden
	Aw *Param // InputWords x WordHidden
	Uw *Param // OutputWords x WordHidden
	Rc *Param // CharHidden x CharHidden
	Ac *Param // Chars x CharHidden
	Uc *Param // Chars x CharHidden
	Q  *Param // CharHidden x WordHidden, word to character coupling

	words rowSet
	rng   *rand.Rand
}

// HierarchicalSize groups the dimensions of a Hierarchical model.
type HierarchicalSize struct {
	WordHidden, CharHidden  int
	InputWords, OutputWords int
	Chars                   int
}

func NewHierarchical(size HierarchicalSize, alpha float64, rng *rand.Rand) *Hierarchical {
	if rng == nil {
		rng = newRand(1)
	}
	return &Hierarchical{
		WordHidden:  size.WordHidden,
		CharHidden:  size.CharHidden,
		InputWords:  size.InputWords,
		OutputWords: size.OutputWords,
		Chars:       size.Chars,
		Alpha:       alpha,
		Rw:          NewParam(size.WordHidden, size.WordHidden),
		Aw:          NewParam(size.InputWords, size.WordHidden),
		Uw:          NewParam(size.OutputWords, size.WordHidden),
		Rc:          NewParam(size.CharHidden, size.CharHidden),
		Ac:          NewParam(size.Chars, size.CharHidden),
		Uc:          NewParam(size.Chars, size.CharHidden),
		Q:           NewParam(size.CharHidden, size.WordHidden),
		words:       newRowSet(size.InputWords),
		rng:         rng,
	}
}

func (m *Hierarchical) Size() HierarchicalSize {
	return HierarchicalSize{
		WordHidden:  m.WordHidden,
		CharHidden:  m.CharHidden,
		InputWords:  m.InputWords,
		OutputWords: m.OutputWords,
		Chars:       m.Chars,
	}
}

// WordOutputEnabled reports whether the word-level softmax takes part in the
// loss.
func (m *Hierarchical) WordOutputEnabled() bool {
	return m.Alpha > WordOutputThreshold
}

// dense returns the parameters that are reset and updated in full. Aw is
// handled row by row.
func (m *Hierarchical) dense() []*Param {
	ps := []*Param{m.Rw, m.Rc, m.Ac, m.Uc, m.Q}
	if m.WordOutputEnabled() {
		ps = append(ps, m.Uw)
	}
	return ps
}

func (m *Hierarchical) all() []*Param {
	return []*Param{m.Rw, m.Aw, m.Uw, m.Rc, m.Ac, m.Uc, m.Q}
}

func (m *Hierarchical) Initialize(init string) error {
	if err := checkInit(init); err != nil {
		return err
	}
	if init == InitDiagonal {
		m.Rw.W.FillRandn(m.rng, 0.001)
		m.Rw.W.SetDiag(0.95)
		m.Rc.W.FillRandn(m.rng, 0.001)
		m.Rc.W.SetDiag(0.95)
	} else {
		m.Rw.W.FillRandn(m.rng, 1)
		m.Rc.W.FillRandn(m.rng, 1)
	}
	for _, p := range []*Param{m.Aw, m.Uw, m.Ac, m.Uc, m.Q} {
		p.W.FillRandn(m.rng, 1)
	}
	for _, p := range m.all() {
		p.ResetGradient()
	}
	m.words.clear()
	m.ResetDeltas()
	return nil
}

// TouchWord records that embedding row w received gradient.
func (m *Hierarchical) TouchWord(w int) { m.words.add(w) }

// TouchedWords returns the embedding rows touched since the last reset.
func (m *Hierarchical) TouchedWords() []int {
	return append([]int(nil), m.words.rows...)
}

func (m *Hierarchical) ResetGradients() {
	for _, p := range m.dense() {
		p.ResetGradient()
	}
	m.Aw.resetRows(&m.words)
	m.words.clear()
}

func (m *Hierarchical) ResetDeltas() {
	for _, p := range m.all() {
		p.D.Fill(0)
	}
}

func (m *Hierarchical) Update(gamma float64) {
	for _, p := range m.dense() {
		p.Update(gamma)
	}
	m.Aw.updateRows(gamma, &m.words)
}

func (m *Hierarchical) PickDeltas() {
	for _, p := range m.all() {
		p.PickDelta(m.rng, 0.1)
	}
}

func (m *Hierarchical) AddDeltas(gamma float64) {
	for _, p := range m.all() {
		p.AddDelta(gamma)
	}
}

func (m *Hierarchical) GradTDelta() float64 {
	var s float64
	for _, p := range m.dense() {
		s += p.GradTDelta()
	}
	return s + m.Aw.gradTDeltaRows(&m.words)
}

func (m *Hierarchical) CopyFrom(o *Hierarchical) {
	mine, theirs := m.all(), o.all()
	for i := range mine {
		mine[i].CopyFrom(theirs[i])
	}
	m.Alpha = o.Alpha
	m.words.copyFrom(&o.words)
}

func (m *Hierarchical) Clone() *Hierarchical {
	c := NewHierarchical(m.Size(), m.Alpha, m.rng)
	c.CopyFrom(m)
	return c
}

func (m *Hierarchical) Checkpoint() func() {
	saved := m.Clone()
	return func() { m.CopyFrom(saved) }
}
