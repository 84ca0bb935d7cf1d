// Package cell implements single-timestep forward and backward passes of the
// recurrent language models. A cell keeps the activations of its window slot
// so the scheduler can run the backward sweep after the forward passes.
package cell

import (
	"math"
	"math/rand"

	"tinyrnn/pkg/linalg"
	"tinyrnn/pkg/model"
)

// Char is one timestep of the conditional character model.
type Char struct {
	m  *model.Conditional
	be linalg.Backend

	X, Next int
	Key     string

	H      linalg.Vector // hidden state
	Y      linalg.Vector // distribution over the next symbol
	Lambda linalg.Vector // sensitivity handed to the previous timestep

	d  linalg.Vector
	mu linalg.Vector
}

func NewChar(m *model.Conditional, be linalg.Backend) *Char {
	return &Char{
		m:      m,
		be:     be,
		H:      linalg.NewVector(m.Hidden),
		Y:      linalg.NewVector(m.Symbols),
		Lambda: linalg.NewVector(m.Hidden),
		d:      linalg.NewVector(m.Symbols),
		mu:     linalg.NewVector(m.Hidden),
	}
}

func (c *Char) activate(hPrev linalg.Vector) {
	c.H.Row(c.m.A.W, c.X)
	c.be.MatrixVector(c.H, 1, c.m.R.W, hPrev, 1)
	c.H.Sigmoid()
	u := c.m.Output(c.Key)
	c.be.MatrixVector(c.Y, 1, u.W, c.H, 0)
	c.Y.SoftMax()
}

// Forward loads the token and returns its cross-entropy in bits. The output
// matrix for key is created on first use.
func (c *Char) Forward(x, next int, key string, hPrev linalg.Vector) float64 {
	c.X, c.Next, c.Key = x, next, key
	c.activate(hPrev)
	return -math.Log2(c.Y[c.Next])
}

// Entropy recomputes the forward pass for the stored token against the
// current parameters.
func (c *Char) Entropy(hPrev linalg.Vector) float64 {
	c.activate(hPrev)
	return -math.Log2(c.Y[c.Next])
}

// Probability returns the predicted probability of next.
func (c *Char) Probability(x, next int, key string, hPrev linalg.Vector) float64 {
	c.X, c.Next, c.Key = x, next, key
	c.activate(hPrev)
	return c.Y[c.Next]
}

// Backward accumulates this timestep's gradients and sets Lambda. hNext and
// lambdaNext belong to the following timestep, or are zero at the window's
// right edge.
func (c *Char) Backward(hPrev, hNext, lambdaNext linalg.Vector) {
	c.mu.Copy(hNext)
	c.mu.SigmoidDerivativeFactor()
	c.mu.TimesInPlace(lambdaNext)

	c.d.OneHotMinus(c.Next, c.Y)
	c.d.Scale(1 / math.Ln2)

	u := c.m.Output(c.Key)
	c.be.MatrixTVector(c.Lambda, 1, u.W, c.d, 0)
	c.be.MatrixTVector(c.Lambda, 1, c.m.R.W, c.mu, 1)

	c.mu.Copy(c.H)
	c.mu.SigmoidDerivativeFactor()
	c.mu.TimesInPlace(c.Lambda)

	c.m.Touch(c.Key, c.X)
	c.be.OuterAccumulate(u.G, -1, c.d, c.H)
	c.be.OuterAccumulate(c.m.R.G, -1, c.mu, hPrev)
	c.m.A.G.AddRow(c.X, -1, c.mu)
}

// Generate runs a forward step from symbol x and samples the next symbol.
func (c *Char) Generate(x int, key string, hPrev linalg.Vector, rng *rand.Rand) int {
	c.X, c.Key = x, key
	c.activate(hPrev)
	return linalg.Sample(rng, c.Y)
}
