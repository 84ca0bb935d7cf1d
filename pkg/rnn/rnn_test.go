package rnn

import (
	"io"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"tinyrnn/pkg/data"
	"tinyrnn/pkg/linalg"
	"tinyrnn/pkg/model"
)

const stream = "abcdeabcdeeabdcbaeda"

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func charCorpus(t *testing.T, text string, order int) *data.CharCorpus {
	t.Helper()
	c := data.NewCharCorpus(order, 0)
	if err := c.Read(strings.NewReader(text)); err != nil {
		t.Fatal(err)
	}
	return c
}

func charModel(t *testing.T, hidden, symbols int, seed int64) *model.Conditional {
	t.Helper()
	m := model.NewConditional(hidden, symbols, rand.New(rand.NewSource(seed)))
	if err := m.Initialize(model.InitGaussian); err != nil {
		t.Fatal(err)
	}
	return m
}

func charNet(m *model.Conditional, T int, be linalg.Backend) *CharNet {
	return NewCharNet(m, Options{T: T, LearningRate: 0.1, Backend: be, Logger: quietLogger()})
}

func TestEvalIsDeterministic(t *testing.T) {
	run := func() float64 {
		src := charCorpus(t, stream, 2)
		m := charModel(t, 6, src.NumSymbols(), 99)
		return charNet(m, 5, linalg.Loop).Eval(src)
	}
	a, b := run(), run()
	if a != b {
		t.Fatalf("eval not reproducible: %v vs %v", a, b)
	}
	if math.IsNaN(a) || a <= 0 {
		t.Fatalf("entropy %v", a)
	}
}

func TestForwardIndependentOfWindow(t *testing.T) {
	src := charCorpus(t, stream, 2)
	m := charModel(t, 6, src.NumSymbols(), 7)
	e5 := charNet(m, 5, linalg.Loop).Entropies(src)
	e10 := charNet(m, 10, linalg.Loop).Entropies(src)
	if len(e5) != len(e10) {
		t.Fatalf("lengths %d vs %d", len(e5), len(e10))
	}
	for i := range e5 {
		if e5[i] != e10[i] {
			t.Errorf("token %d: T=5 %v, T=10 %v", i, e5[i], e10[i])
		}
	}
}

func TestBackendsGiveSameEval(t *testing.T) {
	src := charCorpus(t, stream, 2)
	m := charModel(t, 9, src.NumSymbols(), 3)
	loop := charNet(m, 5, linalg.Loop).Eval(src)
	blas := charNet(m, 5, linalg.BLAS).Eval(src)
	if math.Abs(loop-blas) > 1e-9 {
		t.Errorf("loop %v, blas %v", loop, blas)
	}
}

// checkRatios asserts that the ratios for step sizes between 1e-5 and 1e-3
// are within 5% of one.
func checkRatios(t *testing.T, ratios [][]float64) {
	t.Helper()
	steps := StepSizes()
	for j, row := range ratios {
		for i, r := range row {
			if steps[i] < 1e-5 || steps[i] > 1e-3 {
				continue
			}
			if math.Abs(r-1) > 0.05 {
				t.Errorf("direction %d, gamma %.2e: ratio %v", j, steps[i], r)
			}
		}
	}
}

func TestCharGradientCheck(t *testing.T) {
	src := charCorpus(t, stream, 2)
	m := charModel(t, 4, src.NumSymbols(), 11)
	n := charNet(m, 5, linalg.Loop)
	before := m.R.W.Clone()

	ratios := n.GradientCheck(src, 3)
	if len(ratios) != 3 || len(ratios[0]) != GradientSteps {
		t.Fatalf("shape %dx%d", len(ratios), len(ratios[0]))
	}
	checkRatios(t, ratios)

	for i := range before.Data {
		if before.Data[i] != m.R.W.Data[i] {
			t.Fatal("gradient check did not restore parameters")
		}
	}
}

func TestStepSizes(t *testing.T) {
	s := StepSizes()
	if math.Abs(s[0]-1e-7) > 1e-20 || math.Abs(s[len(s)-1]-100) > 1e-9 {
		t.Errorf("range [%g, %g], want [1e-7, 1e2]", s[0], s[len(s)-1])
	}
}

func TestStickyLearningRate(t *testing.T) {
	s := NewSchedule(0.1, 2, 1e-4)
	if s.Observe(5.0) {
		t.Fatal("first observation shrank the rate")
	}
	if !s.Observe(5.2) {
		t.Fatal("regression did not shrink the rate")
	}
	if got := s.Rate(); math.Abs(got-0.05) > 1e-15 {
		t.Fatalf("rate %v after shrink, want 0.05", got)
	}
	prev := s.Rate()
	for _, loss := range []float64{4.0, 3.0, 2.0} {
		s.Observe(loss)
		if s.Rate() >= prev {
			t.Fatalf("rate %v did not keep shrinking after improvement", s.Rate())
		}
		prev = s.Rate()
	}
}

func TestLearningRateFloor(t *testing.T) {
	s := NewSchedule(1, 10, 1e-3)
	s.Observe(1)
	for i := 0; i < 10; i++ {
		s.Observe(2)
	}
	if s.Rate() != 1e-3 {
		t.Errorf("rate %v, want floor 1e-3", s.Rate())
	}
}

func TestImprovementTolerance(t *testing.T) {
	s := NewSchedule(0.1, 2, 1e-4)
	s.Observe(5.0)
	if s.Observe(4.99) || s.Shrinking() {
		t.Error("a clear improvement shrank the rate")
	}

	s = NewSchedule(0.1, 2, 1e-4)
	s.Observe(5.0)
	if !s.Observe(4.999) {
		t.Error("an improvement smaller than the tolerance kept the rate")
	}
}

func TestTrainLeavesUnusedContexts(t *testing.T) {
	src := charCorpus(t, stream, 2)
	m := charModel(t, 5, src.NumSymbols(), 5)
	unused := m.Output("zz")
	before := unused.W.Clone()

	n := charNet(m, 4, linalg.Loop)
	n.Train(src)

	for i := range before.Data {
		if unused.W.Data[i] != before.Data[i] {
			t.Fatal("context never seen in training was modified")
		}
	}
	if m.NumContexts() < 2 {
		t.Errorf("training created only %d contexts", m.NumContexts())
	}
}

func TestTrainingReducesEntropy(t *testing.T) {
	text := strings.Repeat("abcab_", 40)
	src := charCorpus(t, text, 3)
	m := charModel(t, 8, src.NumSymbols(), 13)
	n := charNet(m, 6, linalg.Loop)

	before := n.Eval(src)
	for e := 0; e < 8; e++ {
		n.Train(src)
	}
	after := n.Eval(src)
	if after >= before {
		t.Errorf("entropy did not drop: %v -> %v", before, after)
	}
}

func TestWindowOfOne(t *testing.T) {
	src := charCorpus(t, stream, 2)
	m := charModel(t, 4, src.NumSymbols(), 1)
	n := charNet(m, 1, linalg.Loop)
	avg, _ := n.Train(src)
	if math.IsNaN(avg) {
		t.Fatal("NaN entropy with T=1")
	}
}

func TestLineSearchRestores(t *testing.T) {
	src := charCorpus(t, stream, 2)
	m := charModel(t, 4, src.NumSymbols(), 17)
	n := charNet(m, 5, linalg.Loop)
	before := m.A.W.Clone()

	out := n.LineSearch(src, 20, 0.001)
	if len(out) != 20 {
		t.Fatalf("len %d", len(out))
	}
	if out[len(out)-1] >= out[0] {
		t.Errorf("small steps along the gradient did not descend: %v -> %v", out[0], out[len(out)-1])
	}
	for i := range before.Data {
		if before.Data[i] != m.A.W.Data[i] {
			t.Fatal("line search did not restore parameters")
		}
	}
}

func TestProbabilitiesMatchEntropy(t *testing.T) {
	src := charCorpus(t, stream, 2)
	m := charModel(t, 5, src.NumSymbols(), 23)
	n := charNet(m, 5, linalg.Loop)
	want := n.Entropies(src)
	i := 0
	n.Probabilities(src, func(next int, p float64) {
		if got := -math.Log2(p); math.Abs(got-want[i]) > 1e-12 {
			t.Errorf("token %d: -log2 p = %v, entropy %v", i, got, want[i])
		}
		i++
	})
	if i != src.Len() {
		t.Errorf("visited %d tokens, want %d", i, src.Len())
	}
}

func TestCharGenerate(t *testing.T) {
	src := charCorpus(t, stream, 2)
	m := charModel(t, 5, src.NumSymbols(), 29)
	n := charNet(m, 5, linalg.Loop)
	out := []rune(n.Generate(src, 50))
	if len(out) != 50 {
		t.Fatalf("generated %d runes", len(out))
	}
	for _, r := range out {
		if !strings.ContainsRune(stream, r) {
			t.Errorf("generated rune %q outside the vocabulary", r)
		}
	}
}

const words = "the_cat_sat_on_the_mat_and_the_dog_sat_on_the_cat_"

func wordSetup(t *testing.T, alpha float64, T int) (*data.WordCorpus, *WordNet) {
	t.Helper()
	src, err := data.ReadWords(strings.NewReader(words), 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	size := model.HierarchicalSize{
		WordHidden:  5,
		CharHidden:  4,
		InputWords:  src.InputSize(),
		OutputWords: src.OutputSize(),
		Chars:       src.NumChars(),
	}
	m := model.NewHierarchical(size, alpha, rand.New(rand.NewSource(31)))
	if err := m.Initialize(model.InitGaussian); err != nil {
		t.Fatal(err)
	}
	n := NewWordNet(m, src.Sentinel(), Options{
		T:               T,
		LearningRate:    0.005,
		Shrink:          1.5,
		MinRateFraction: 1e-6,
		Logger:          quietLogger(),
	})
	return src, n
}

func TestWordGradientCheck(t *testing.T) {
	for _, alpha := range []float64{0.5, 0} {
		src, n := wordSetup(t, alpha, 3)
		checkRatios(t, n.GradientCheck(src, 2))
	}
}

func TestWordWindowOfOne(t *testing.T) {
	src, n := wordSetup(t, 0.5, 1)
	s := n.Train(src)
	if s.Words != src.Len() || math.IsNaN(s.CharEntropy()) {
		t.Errorf("stats %+v", s)
	}
}

func TestWordEvalCounts(t *testing.T) {
	src, n := wordSetup(t, 0.5, 4)
	s := n.Eval(src)
	if s.Words != 13 {
		t.Errorf("Words = %d, want 13", s.Words)
	}
	// Every word contributes its letters plus the closing boundary.
	wantChars := len(strings.ReplaceAll(words, "_", "")) + 13
	if s.Chars != wantChars {
		t.Errorf("Chars = %d, want %d", s.Chars, wantChars)
	}
	if s.WordModelEntropy() <= 0 || s.CharEntropy() <= 0 {
		t.Errorf("entropies %v %v", s.WordModelEntropy(), s.CharEntropy())
	}
	again := n.Eval(src)
	if again.WordBits != s.WordBits || again.CharBits != s.CharBits {
		t.Error("eval changed the model or depends on carried state")
	}
}

func TestWordTrainingReducesLoss(t *testing.T) {
	src, n := wordSetup(t, 0.5, 4)
	n.Schedule = NewSchedule(0.2, 1.5, 1e-6)
	before := n.Eval(src).Loss(0.5)
	for e := 0; e < 20; e++ {
		n.Train(src)
	}
	if after := n.Eval(src).Loss(0.5); after >= before {
		t.Errorf("loss did not drop: %v -> %v", before, after)
	}
}

func TestWordGenerate(t *testing.T) {
	src, n := wordSetup(t, 0.5, 4)
	out := n.Generate(src, 20)
	if len(out) != 21 {
		t.Fatalf("generated %d words, want seed plus 20", len(out))
	}
	for _, w := range out[1:] {
		if strings.ContainsRune(w.Text, '_') {
			t.Errorf("word %q contains the separator", w.Text)
		}
		if w.Known != (src.WordID(w.Text) != data.Unknown) {
			t.Errorf("word %q known flag %v", w.Text, w.Known)
		}
	}
}
