package rnn

import (
	"time"

	"github.com/sirupsen/logrus"

	"tinyrnn/pkg/cell"
	"tinyrnn/pkg/linalg"
	"tinyrnn/pkg/model"
)

// CharNet trains the conditional character model.
type CharNet struct {
	Model    *model.Conditional
	Schedule *Schedule

	opts  Options
	log   *logrus.Logger
	cells []*cell.Char
	gen   *cell.Char

	first      linalg.Vector // hidden state carried into the window
	last       linalg.Vector // right boundary hidden state, always zero
	lastLambda linalg.Vector // right boundary sensitivity, always zero
	step       int
}

func NewCharNet(m *model.Conditional, opts Options) *CharNet {
	opts = opts.withDefaults()
	n := &CharNet{
		Model:      m,
		Schedule:   NewSchedule(opts.LearningRate, opts.Shrink, opts.MinRateFraction),
		opts:       opts,
		log:        opts.Logger,
		gen:        cell.NewChar(m, opts.Backend),
		first:      linalg.NewVector(m.Hidden),
		last:       linalg.NewVector(m.Hidden),
		lastLambda: linalg.NewVector(m.Hidden),
	}
	for t := 0; t < opts.T; t++ {
		n.cells = append(n.cells, cell.NewChar(m, opts.Backend))
	}
	return n
}

// T returns the truncation length.
func (n *CharNet) T() int { return n.opts.T }

// Reset zeroes the carried state and starts a new window.
func (n *CharNet) Reset() {
	n.first.Fill(0)
	n.last.Fill(0)
	n.lastLambda.Fill(0)
	n.step = 0
}

func (n *CharNet) prevHidden(t int) linalg.Vector {
	if t == 0 {
		return n.first
	}
	return n.cells[t-1].H
}

func (n *CharNet) forward(x, next int, key string, train bool) float64 {
	e := n.cells[n.step].Forward(x, next, key, n.prevHidden(n.step))
	n.step++
	if n.step == n.opts.T {
		if train {
			n.backward()
		}
		n.first.Copy(n.cells[n.opts.T-1].H)
		n.step = 0
	}
	return e
}

// accumulate sweeps the window in reverse, adding every cell's gradient.
func (n *CharNet) accumulate() {
	T := n.opts.T
	for t := T - 1; t >= 0; t-- {
		hNext, lambdaNext := n.last, n.lastLambda
		if t < T-1 {
			hNext, lambdaNext = n.cells[t+1].H, n.cells[t+1].Lambda
		}
		n.cells[t].Backward(n.prevHidden(t), hNext, lambdaNext)
	}
}

func (n *CharNet) backward() {
	n.Model.ResetGradients()
	n.accumulate()
	n.Model.Update(n.Schedule.Rate() / float64(n.opts.T))
	n.Model.ResetGradients()
}

// Train runs one epoch over src with updates at every window boundary and
// returns the average entropy in bits per character.
func (n *CharNet) Train(src CharSource) (float64, time.Duration) {
	src.Reset()
	n.Reset()
	total := src.Len()
	var entropy float64
	start := time.Now()
	for i := 0; i < total; i++ {
		if n.opts.Verbose && i > 0 && i%n.opts.ReportEvery == 0 {
			elapsed := time.Since(start)
			n.log.WithFields(logrus.Fields{
				"token":        i,
				"tokens":       total,
				"entropy":      entropy / float64(i),
				"elapsed":      elapsed.Round(time.Millisecond),
				"sec_per_pass": elapsed.Seconds() / float64(i) * float64(total),
				"chars_per_s":  float64(i) / elapsed.Seconds(),
			}).Info("train progress")
		}
		now, next, key := src.Next()
		entropy += n.forward(now, next, key, true)
	}
	return entropy / float64(total), time.Since(start)
}

// Eval returns the average entropy over src without touching parameters.
// Carried state is reset first.
func (n *CharNet) Eval(src CharSource) float64 {
	src.Reset()
	n.Reset()
	total := src.Len()
	var entropy float64
	for i := 0; i < total; i++ {
		if n.opts.Verbose && i > 0 && i%n.opts.ReportEvery == 0 {
			n.log.WithFields(logrus.Fields{
				"token":   i,
				"tokens":  total,
				"entropy": entropy / float64(i),
			}).Info("eval progress")
		}
		now, next, key := src.Next()
		entropy += n.forward(now, next, key, false)
	}
	return entropy / float64(total)
}

// Entropies returns the per-token entropies of an evaluation pass.
func (n *CharNet) Entropies(src CharSource) []float64 {
	src.Reset()
	n.Reset()
	out := make([]float64, src.Len())
	for i := range out {
		now, next, key := src.Next()
		out[i] = n.forward(now, next, key, false)
	}
	return out
}

// Probabilities calls visit with the predicted probability of every next
// token in src.
func (n *CharNet) Probabilities(src CharSource, visit func(next int, p float64)) {
	src.Reset()
	n.Reset()
	for i := 0; i < src.Len(); i++ {
		now, next, key := src.Next()
		p := n.cells[n.step].Probability(now, next, key, n.prevHidden(n.step))
		n.step++
		if n.step == n.opts.T {
			n.first.Copy(n.cells[n.opts.T-1].H)
			n.step = 0
		}
		visit(next, p)
	}
}

// Generate samples length characters starting from a random symbol and the
// currently carried hidden state.
func (n *CharNet) Generate(src CharSource, length int) string {
	rng := n.opts.Rand
	h := n.first.Clone()
	ct := rng.Intn(src.NumSymbols())
	var history, out []rune
	for i := 0; i < length; i++ {
		ch := src.Symbol(ct)
		out = append(out, ch)
		history = append(history, ch)
		if len(history) > src.Order() {
			history = history[1:]
		}
		ct = n.gen.Generate(ct, src.Context(history), h, rng)
		h.Copy(n.gen.H)
	}
	return string(out)
}

// fill loads the first T tokens of src into the window without crossing the
// boundary, so the window's gradient can be inspected.
func (n *CharNet) fill(src CharSource) {
	src.Reset()
	n.Reset()
	for t := 0; t < n.opts.T; t++ {
		now, next, key := src.Next()
		n.cells[t].Forward(now, next, key, n.prevHidden(t))
	}
	n.Model.ResetGradients()
	n.accumulate()
}

// windowEntropy recomputes the summed entropy of the loaded window.
func (n *CharNet) windowEntropy() float64 {
	var e float64
	for t, c := range n.cells {
		e += c.Entropy(n.prevHidden(t))
	}
	return e
}

// GradientCheck loads the first window of src, computes its gradient and
// returns the finite-difference ratios for the given number of random
// directions. The model is left as it was.
func (n *CharNet) GradientCheck(src CharSource, directions int) [][]float64 {
	n.fill(src)
	defer n.finishDiagnostic()
	return gradientCheck(n.Model, n.windowEntropy, directions, n.log)
}

// LineSearch loads the first window of src and reports its entropy after
// each of steps updates of size gamma. The model is left as it was.
func (n *CharNet) LineSearch(src CharSource, steps int, gamma float64) []float64 {
	n.fill(src)
	defer n.finishDiagnostic()
	return lineSearch(n.Model, n.windowEntropy, steps, gamma, n.log)
}

func (n *CharNet) finishDiagnostic() {
	n.Model.ResetGradients()
	n.Reset()
}
