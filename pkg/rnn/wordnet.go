package rnn

import (
	"time"

	"github.com/sirupsen/logrus"

	"tinyrnn/pkg/cell"
	"tinyrnn/pkg/linalg"
	"tinyrnn/pkg/model"
)

// WordStats accumulates the entropies of one pass of the hierarchical model.
type WordStats struct {
	// WordBits is the summed word-level entropy.
	WordBits float64
	// CharBits is the summed entropy of the character chains.
	CharBits float64
	Words    int
	// Chars counts predicted characters: every letter plus one word
	// boundary per word.
	Chars   int
	Elapsed time.Duration
}

// WordModelEntropy is the word-level entropy per word.
func (s WordStats) WordModelEntropy() float64 { return s.WordBits / float64(s.Words) }

// WordEntropy is the character-chain entropy per word.
func (s WordStats) WordEntropy() float64 { return s.CharBits / float64(s.Words) }

// CharEntropy is the character-chain entropy per character.
func (s WordStats) CharEntropy() float64 { return s.CharBits / float64(s.Chars) }

// Loss mixes the per-word entropies with weight alpha.
func (s WordStats) Loss(alpha float64) float64 {
	return alpha*s.WordModelEntropy() + (1-alpha)*s.WordEntropy()
}

// GeneratedWord is one sampled word and whether it belongs to the input
// vocabulary.
type GeneratedWord struct {
	Text  string
	Known bool
}

// WordNet trains the hierarchical word/character model.
type WordNet struct {
	Model    *model.Hierarchical
	Schedule *Schedule

	opts  Options
	log   *logrus.Logger
	cells []*cell.Word
	gen   *cell.Word

	first, firstChar       linalg.Vector
	last, lastChar         linalg.Vector
	lastLambda, lastCharMu linalg.Vector
	step                   int
}

func NewWordNet(m *model.Hierarchical, sentinel int, opts Options) *WordNet {
	opts = opts.withDefaults()
	n := &WordNet{
		Model:      m,
		Schedule:   NewSchedule(opts.LearningRate, opts.Shrink, opts.MinRateFraction),
		opts:       opts,
		log:        opts.Logger,
		gen:        cell.NewWord(m, opts.Backend, sentinel),
		first:      linalg.NewVector(m.WordHidden),
		firstChar:  linalg.NewVector(m.CharHidden),
		last:       linalg.NewVector(m.WordHidden),
		lastChar:   linalg.NewVector(m.CharHidden),
		lastLambda: linalg.NewVector(m.WordHidden),
		lastCharMu: linalg.NewVector(m.CharHidden),
	}
	for t := 0; t < opts.T; t++ {
		n.cells = append(n.cells, cell.NewWord(m, opts.Backend, sentinel))
	}
	return n
}

func (n *WordNet) T() int { return n.opts.T }

func (n *WordNet) Reset() {
	for _, v := range []linalg.Vector{n.first, n.firstChar, n.last, n.lastChar, n.lastLambda, n.lastCharMu} {
		v.Fill(0)
	}
	n.step = 0
}

// prev returns the word and character hidden states feeding slot t.
func (n *WordNet) prev(t int) (linalg.Vector, linalg.Vector) {
	if t == 0 {
		return n.first, n.firstChar
	}
	c := n.cells[t-1]
	return c.H, c.LastChar()
}

func (n *WordNet) advance(w, next int, spelling []int, train bool, s *WordStats) {
	c := n.cells[n.step]
	c.Load(w, next, spelling)
	H, h := n.prev(n.step)
	wb, cb := c.Forward(H, h)
	s.WordBits += wb
	s.CharBits += cb
	s.Chars += c.Positions()
	s.Words++
	n.step++
	if n.step == n.opts.T {
		if train {
			n.backward()
		}
		lastCell := n.cells[n.opts.T-1]
		n.first.Copy(lastCell.H)
		n.firstChar.Copy(lastCell.LastChar())
		n.step = 0
	}
}

func (n *WordNet) accumulate() {
	T := n.opts.T
	for t := T - 1; t >= 0; t-- {
		H, h := n.prev(t)
		HNext, lambdaNext, h0, mu0 := n.last, n.lastLambda, n.lastChar, n.lastCharMu
		if t < T-1 {
			nc := n.cells[t+1]
			HNext, lambdaNext, h0, mu0 = nc.H, nc.Lambda, nc.FirstChar(), nc.FirstMu()
		}
		n.cells[t].Backward(H, h, HNext, lambdaNext, h0, mu0)
	}
}

func (n *WordNet) backward() {
	n.Model.ResetGradients()
	n.accumulate()
	n.Model.Update(n.Schedule.Rate() / float64(n.opts.T))
	n.Model.ResetGradients()
}

func (n *WordNet) pass(src WordSource, train bool) WordStats {
	src.Reset()
	n.Reset()
	var s WordStats
	total := src.Len()
	start := time.Now()
	for i := 0; i < total; i++ {
		if n.opts.Verbose && i > 0 && i%n.opts.ReportEvery == 0 {
			elapsed := time.Since(start)
			n.log.WithFields(logrus.Fields{
				"train":              train,
				"token":              i,
				"tokens":             total,
				"char_entropy":       s.CharEntropy(),
				"word_entropy":       s.WordEntropy(),
				"word_model_entropy": s.WordModelEntropy(),
				"loss":               s.Loss(n.Model.Alpha),
				"elapsed":            elapsed.Round(time.Millisecond),
				"words_per_s":        float64(i) / elapsed.Seconds(),
				"chars_per_s":        float64(s.Chars) / elapsed.Seconds(),
			}).Info("progress")
		}
		w, next, spelling := src.Next()
		n.advance(w, next, spelling, train, &s)
	}
	s.Elapsed = time.Since(start)
	return s
}

// Train runs one epoch over src with updates at every window boundary.
func (n *WordNet) Train(src WordSource) WordStats { return n.pass(src, true) }

// Eval measures src without touching parameters. Carried state is reset
// first.
func (n *WordNet) Eval(src WordSource) WordStats { return n.pass(src, false) }

// Generate samples count words after a random seed word, starting from the
// currently carried hidden state. The seed word is returned first.
func (n *WordNet) Generate(src WordSource, count int) []GeneratedWord {
	rng := n.opts.Rand
	id, seed := src.RandomWord(rng)
	out := []GeneratedWord{{Text: seed, Known: id != 0}}

	H := n.first.Clone()
	h := n.firstChar.Clone()
	for i := 0; i < count; i++ {
		chars := n.gen.Generate(id, H, h, rng)
		runes := make([]rune, len(chars))
		for j, c := range chars {
			runes[j] = src.Char(c)
		}
		text := string(runes)
		H.Copy(n.gen.H)
		h.Copy(n.gen.LastChar())
		id = src.WordID(text)
		out = append(out, GeneratedWord{Text: text, Known: id != 0})
	}
	return out
}

func (n *WordNet) fill(src WordSource) {
	src.Reset()
	n.Reset()
	for t := 0; t < n.opts.T; t++ {
		w, next, spelling := src.Next()
		c := n.cells[t]
		c.Load(w, next, spelling)
		H, h := n.prev(t)
		c.Forward(H, h)
	}
	n.Model.ResetGradients()
	n.accumulate()
}

// windowLoss recomputes the mixed loss of the loaded window.
func (n *WordNet) windowLoss() float64 {
	alpha := n.Model.Alpha
	var loss float64
	for t, c := range n.cells {
		H, h := n.prev(t)
		wb, cb := c.Forward(H, h)
		loss += alpha*wb + (1-alpha)*cb
	}
	return loss
}

// GradientCheck loads the first window of src and returns the
// finite-difference ratios for the given number of random directions.
func (n *WordNet) GradientCheck(src WordSource, directions int) [][]float64 {
	n.fill(src)
	defer n.finishDiagnostic()
	return gradientCheck(n.Model, n.windowLoss, directions, n.log)
}

// LineSearch loads the first window of src and reports its loss after each
// of steps updates of size gamma.
func (n *WordNet) LineSearch(src WordSource, steps int, gamma float64) []float64 {
	n.fill(src)
	defer n.finishDiagnostic()
	return lineSearch(n.Model, n.windowLoss, steps, gamma, n.log)
}

func (n *WordNet) finishDiagnostic() {
	n.Model.ResetGradients()
	n.Reset()
}
