package linalg

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const tol = 1e-9

func randomVector(rng *rand.Rand, n int) Vector {
	v := NewVector(n)
	for i := range v {
		v[i] = 2*rng.Float64() - 1
	}
	return v
}

func randomMatrix(rng *rand.Rand, rows, cols int) *Matrix {
	m := NewMatrix(rows, cols)
	for i := range m.Data {
		m.Data[i] = 2*rng.Float64() - 1
	}
	return m
}

func TestSoftMaxSumsToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	inputs := []Vector{
		{0},
		{1, 2, 3},
		{-1000, 0, 1000},
		{700, 701, 702, 703},
		randomVector(rng, 37),
	}
	for _, in := range inputs {
		x := in.Clone()
		x.SoftMax()
		if s := floats.Sum(x); math.Abs(s-1) > tol {
			t.Errorf("softmax(%v) sums to %.15f", in, s)
		}
		for i, p := range x {
			if p < 0 || math.IsNaN(p) {
				t.Errorf("softmax(%v)[%d] = %v", in, i, p)
			}
		}
	}
}

func TestSoftMaxShiftInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	x := randomVector(rng, 20)
	base := x.Clone()
	base.SoftMax()
	for _, c := range []float64{-50, -1, 0.5, 3, 250} {
		shifted := x.Clone()
		for i := range shifted {
			shifted[i] += c
		}
		shifted.SoftMax()
		if !floats.EqualApprox(base, shifted, tol) {
			t.Errorf("shift %v changed softmax: %v vs %v", c, base, shifted)
		}
	}
}

func TestSigmoidDerivativeFactor(t *testing.T) {
	x := Vector{-2, 0, 3}
	x.Sigmoid()
	want := make([]float64, len(x))
	for i, a := range x {
		want[i] = a * (1 - a)
	}
	x.SigmoidDerivativeFactor()
	if !floats.EqualApprox(x, want, tol) {
		t.Errorf("got %v, want %v", x, want)
	}
	if math.Abs(x[1]-0.25) > tol {
		t.Errorf("derivative at 0 = %v, want 0.25", x[1])
	}
}

var shapes = []struct{ rows, cols int }{
	{1, 1}, {3, 5}, {8, 8}, {9, 17}, {16, 3}, {23, 41},
}

func TestAdjointConsistency(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, b := range []Backend{Loop, BLAS} {
		for _, s := range shapes {
			m := randomMatrix(rng, s.rows, s.cols)
			v := randomVector(rng, s.cols)
			w := randomVector(rng, s.rows)
			mv := NewVector(s.rows)
			b.MatrixVector(mv, 1, m, v, 0)
			mtw := NewVector(s.cols)
			b.MatrixTVector(mtw, 1, m, w, 0)
			if lhs, rhs := mv.Dot(w), v.Dot(mtw); math.Abs(lhs-rhs) > 1e-10 {
				t.Errorf("%v %dx%d: (Mv).w = %v, v.(Mᵗw) = %v", b, s.rows, s.cols, lhs, rhs)
			}
		}
	}
}

func TestBackendsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for _, s := range shapes {
		m := randomMatrix(rng, s.rows, s.cols)
		x := randomVector(rng, s.cols)
		xt := randomVector(rng, s.rows)
		y0 := randomVector(rng, s.rows)
		yt0 := randomVector(rng, s.cols)

		for _, c := range []struct{ a, d float64 }{{1, 0}, {0.5, 1}, {-2, 0.3}} {
			yl, yb := y0.Clone(), y0.Clone()
			Loop.MatrixVector(yl, c.a, m, x, c.d)
			BLAS.MatrixVector(yb, c.a, m, x, c.d)
			if !floats.EqualApprox(yl, yb, tol) {
				t.Errorf("MatrixVector %dx%d a=%v d=%v: loop %v blas %v", s.rows, s.cols, c.a, c.d, yl, yb)
			}

			ytl, ytb := yt0.Clone(), yt0.Clone()
			Loop.MatrixTVector(ytl, c.a, m, xt, c.d)
			BLAS.MatrixTVector(ytb, c.a, m, xt, c.d)
			if !floats.EqualApprox(ytl, ytb, tol) {
				t.Errorf("MatrixTVector %dx%d a=%v d=%v: loop %v blas %v", s.rows, s.cols, c.a, c.d, ytl, ytb)
			}
		}

		ml, mb := m.Clone(), m.Clone()
		Loop.OuterAccumulate(ml, -1.5, xt, x)
		BLAS.OuterAccumulate(mb, -1.5, xt, x)
		if !floats.EqualApprox(ml.Data, mb.Data, tol) {
			t.Errorf("OuterAccumulate %dx%d disagrees", s.rows, s.cols)
		}
	}
}

func TestMatrixVectorMatchesGonum(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	m := randomMatrix(rng, 13, 10)
	x := randomVector(rng, 10)
	var want mat.VecDense
	want.MulVec(m.Dense(), mat.NewVecDense(len(x), x))

	got := NewVector(13)
	got.Fill(math.NaN())
	Loop.MatrixVector(got, 1, m, x, 0)
	if !floats.EqualApprox(got, want.RawVector().Data, tol) {
		t.Errorf("got %v, want %v", got, want.RawVector().Data)
	}

	var wantT mat.VecDense
	xt := randomVector(rng, 13)
	wantT.MulVec(m.Dense().T(), mat.NewVecDense(len(xt), xt))
	gotT := NewVector(10)
	Loop.MatrixTVector(gotT, 1, m, xt, 0)
	if !floats.EqualApprox(gotT, wantT.RawVector().Data, tol) {
		t.Errorf("transposed: got %v, want %v", gotT, wantT.RawVector().Data)
	}
}

func TestShapeMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on shape mismatch")
		}
	}()
	Loop.MatrixVector(NewVector(2), 1, NewMatrix(3, 2), NewVector(2), 0)
}

func TestRowColumn(t *testing.T) {
	m := &Matrix{Rows: 2, Cols: 3, Data: []float64{1, 2, 3, 4, 5, 6}}
	r := NewVector(3)
	r.Row(m, 1)
	if !floats.Equal(r, []float64{4, 5, 6}) {
		t.Errorf("row 1 = %v", r)
	}
	c := NewVector(2)
	c.Column(m, 2)
	if !floats.Equal(c, []float64{3, 6}) {
		t.Errorf("column 2 = %v", c)
	}
	r[0] = 100
	if m.At(1, 0) != 4 {
		t.Error("Row must copy, not alias")
	}
}

func TestSample(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p := Vector{0, 0.25, 0, 0.75}
	counts := make([]int, len(p))
	for i := 0; i < 4000; i++ {
		counts[Sample(rng, p)]++
	}
	if counts[0] != 0 || counts[2] != 0 {
		t.Errorf("sampled zero-probability entries: %v", counts)
	}
	if frac := float64(counts[3]) / 4000; math.Abs(frac-0.75) > 0.05 {
		t.Errorf("index 3 drawn %.3f of the time, want ~0.75", frac)
	}
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		name    string
		want    Backend
		wantErr bool
	}{
		{"loop", Loop, false},
		{"BLAS", BLAS, false},
		{"", Loop, false},
		{"true", BLAS, false},
		{"false", Loop, false},
		{"gpu", Loop, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBackend(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
	if _, err := ParseBackend("auto"); err != nil {
		t.Errorf("auto: %v", err)
	}
}
