package cell

import (
	"math"
	"math/rand"
	"testing"

	"tinyrnn/pkg/linalg"
	"tinyrnn/pkg/model"
)

const eps = 1e-6

// numericGrad perturbs w[k] and returns the central difference of f.
func numericGrad(w *linalg.Matrix, k int, f func() float64) float64 {
	orig := w.Data[k]
	w.Data[k] = orig + eps
	up := f()
	w.Data[k] = orig - eps
	down := f()
	w.Data[k] = orig
	return (up - down) / (2 * eps)
}

func closeEnough(a, b float64) bool {
	return math.Abs(a-b) <= 1e-5*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func randomHidden(rng *rand.Rand, n int) linalg.Vector {
	v := linalg.NewVector(n)
	for i := range v {
		v[i] = rng.Float64()
	}
	return v
}

func TestCharBackwardMatchesFiniteDifferences(t *testing.T) {
	for _, be := range []linalg.Backend{linalg.Loop, linalg.BLAS} {
		rng := rand.New(rand.NewSource(17))
		m := model.NewConditional(5, 4, rng)
		if err := m.Initialize(model.InitGaussian); err != nil {
			t.Fatal(err)
		}
		c := NewChar(m, be)
		hPrev := randomHidden(rng, 5)
		zero := linalg.NewVector(5)

		c.Forward(2, 3, "ab", hPrev)
		m.ResetGradients()
		c.Backward(hPrev, zero, zero)

		entropy := func() float64 { return c.Entropy(hPrev) }
		u := m.Output("ab")
		for _, p := range []struct {
			name string
			w, g *linalg.Matrix
		}{
			{"R", m.R.W, m.R.G},
			{"A", m.A.W, m.A.G},
			{"U", u.W, u.G},
		} {
			for k := range p.w.Data {
				want := numericGrad(p.w, k, entropy)
				if got := p.g.Data[k]; !closeEnough(got, want) {
					t.Errorf("%v %s[%d]: analytic %.8g, numeric %.8g", be, p.name, k, got, want)
				}
			}
		}
	}
}

func TestCharLambdaIsNegativeHiddenGradient(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	m := model.NewConditional(3, 3, rng)
	if err := m.Initialize(model.InitGaussian); err != nil {
		t.Fatal(err)
	}
	c := NewChar(m, linalg.Loop)
	hPrev := randomHidden(rng, 3)
	zero := linalg.NewVector(3)
	c.Forward(0, 1, "x", hPrev)
	c.Backward(hPrev, zero, zero)

	// With no successor, Lambda = -dE/dh. Check it through hPrev:
	// dE/dhPrev = -Rᵗ (h(1-h) ⊙ Lambda).
	mu := c.H.Clone()
	mu.SigmoidDerivativeFactor()
	mu.TimesInPlace(c.Lambda)
	want := linalg.NewVector(3)
	linalg.Loop.MatrixTVector(want, -1, m.R.W, mu, 0)

	for k := range hPrev {
		orig := hPrev[k]
		hPrev[k] = orig + eps
		up := c.Entropy(hPrev)
		hPrev[k] = orig - eps
		down := c.Entropy(hPrev)
		hPrev[k] = orig
		if got := (up - down) / (2 * eps); !closeEnough(got, want[k]) {
			t.Errorf("dE/dhPrev[%d]: numeric %.8g, analytic %.8g", k, got, want[k])
		}
	}
}

func TestCharProbabilityIsDistribution(t *testing.T) {
	m := model.NewConditional(4, 6, rand.New(rand.NewSource(2)))
	if err := m.Initialize(model.InitGaussian); err != nil {
		t.Fatal(err)
	}
	c := NewChar(m, linalg.Loop)
	h := linalg.NewVector(4)
	var sum float64
	for next := 0; next < 6; next++ {
		sum += c.Probability(1, next, "k", h)
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("probabilities sum to %v", sum)
	}
}

func newTestWordModel(t *testing.T, alpha float64, seed int64) *model.Hierarchical {
	t.Helper()
	size := model.HierarchicalSize{WordHidden: 4, CharHidden: 3, InputWords: 5, OutputWords: 4, Chars: 6}
	m := model.NewHierarchical(size, alpha, rand.New(rand.NewSource(seed)))
	if err := m.Initialize(model.InitGaussian); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestWordBackwardMatchesFiniteDifferences(t *testing.T) {
	for _, alpha := range []float64{0.5, 0} {
		m := newTestWordModel(t, alpha, 21)
		rng := rand.New(rand.NewSource(22))
		c := NewWord(m, linalg.Loop, 0)
		HPrev := randomHidden(rng, 4)
		hPrev := randomHidden(rng, 3)
		zw, zc := linalg.NewVector(4), linalg.NewVector(3)

		c.Load(3, 2, []int{1, 4, 5})
		c.Forward(HPrev, hPrev)
		m.ResetGradients()
		c.Backward(HPrev, hPrev, zw, zw, zc, zc)

		loss := func() float64 {
			w, ch := c.Forward(HPrev, hPrev)
			return alpha*w + (1-alpha)*ch
		}
		params := map[string]*model.Param{
			"Rw": m.Rw, "Aw": m.Aw, "Rc": m.Rc, "Ac": m.Ac, "Uc": m.Uc, "Q": m.Q,
		}
		if m.WordOutputEnabled() {
			params["Uw"] = m.Uw
		}
		for name, p := range params {
			for k := range p.W.Data {
				want := numericGrad(p.W, k, loss)
				if got := p.G.Data[k]; !closeEnough(got, want) {
					t.Errorf("alpha=%v %s[%d]: analytic %.8g, numeric %.8g", alpha, name, k, got, want)
				}
			}
		}
	}
}

func TestWordForwardSkipsWordOutput(t *testing.T) {
	m := newTestWordModel(t, 0.01, 5)
	c := NewWord(m, linalg.Loop, 0)
	c.Load(1, 1, []int{2})
	wordBits, charBits := c.Forward(linalg.NewVector(4), linalg.NewVector(3))
	if wordBits != 0 {
		t.Errorf("word entropy %v with word output disabled", wordBits)
	}
	if charBits <= 0 {
		t.Errorf("char entropy %v", charBits)
	}
	if c.Positions() != 2 {
		t.Errorf("Positions = %d, want 2", c.Positions())
	}
}

func TestWordBuffersGrow(t *testing.T) {
	m := newTestWordModel(t, 0.5, 6)
	c := NewWord(m, linalg.Loop, 0)
	c.Load(0, 0, []int{1})
	c.Forward(linalg.NewVector(4), linalg.NewVector(3))
	long := make([]int, 40)
	for i := range long {
		long[i] = 1 + i%5
	}
	c.Load(0, 0, long)
	if _, ch := c.Forward(linalg.NewVector(4), linalg.NewVector(3)); math.IsNaN(ch) {
		t.Fatal("NaN entropy on long word")
	}
	if len(c.LastChar()) != 3 {
		t.Errorf("LastChar length %d", len(c.LastChar()))
	}
}

func TestWordGenerateStopsAtSentinel(t *testing.T) {
	m := newTestWordModel(t, 0.5, 9)
	c := NewWord(m, linalg.Loop, 0)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		chars := c.Generate(1, linalg.NewVector(4), linalg.NewVector(3), rng)
		if len(chars) >= MaxGeneratedChars {
			t.Fatalf("generated %d chars", len(chars))
		}
		for _, ch := range chars {
			if ch == 0 {
				t.Fatal("sentinel inside generated word")
			}
		}
	}
}
