// Package autodiff builds a gorgonia graph of one conditional timestep and
// differentiates it symbolically. It serves as an independent reference for
// the hand-written backward pass in package cell.
package autodiff

import (
	"fmt"
	"math"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"tinyrnn/pkg/cell"
	"tinyrnn/pkg/linalg"
	"tinyrnn/pkg/model"
)

// CharGrads holds the entropy of one timestep, in bits, and its gradient
// with respect to every input of the step.
type CharGrads struct {
	Entropy float64
	U       *linalg.Matrix // output matrix of the context
	R       *linalg.Matrix
	A       linalg.Vector // input row of the current symbol
	HPrev   linalg.Vector
}

func matrixNode(g *gorgonia.ExprGraph, name string, m *linalg.Matrix) *gorgonia.Node {
	backing := append([]float64(nil), m.Data...)
	return gorgonia.NewMatrix(g, tensor.Float64,
		gorgonia.WithShape(m.Rows, m.Cols),
		gorgonia.WithName(name),
		gorgonia.WithValue(tensor.New(tensor.WithShape(m.Rows, m.Cols), tensor.WithBacking(backing))),
	)
}

func vectorNode(g *gorgonia.ExprGraph, name string, v linalg.Vector) *gorgonia.Node {
	backing := append([]float64(nil), v...)
	return gorgonia.NewVector(g, tensor.Float64,
		gorgonia.WithShape(len(v)),
		gorgonia.WithName(name),
		gorgonia.WithValue(tensor.New(tensor.WithShape(len(v)), tensor.WithBacking(backing))),
	)
}

func gradOf(n *gorgonia.Node) ([]float64, error) {
	v, err := n.Grad()
	if err != nil {
		return nil, fmt.Errorf("gradient of %s: %w", n.Name(), err)
	}
	data, ok := v.Data().([]float64)
	if !ok {
		return nil, fmt.Errorf("gradient of %s: unexpected type %T", n.Name(), v.Data())
	}
	return append([]float64(nil), data...), nil
}

// CharStep evaluates one step of the conditional model, from symbol x with
// context key to symbol next, and returns the reference gradients. The
// model is only read, apart from the lazy creation of key's output matrix.
func CharStep(m *model.Conditional, x, next int, key string, hPrev linalg.Vector) (*CharGrads, error) {
	g := gorgonia.NewGraph()

	row := linalg.NewVector(m.Hidden)
	row.Row(m.A.W, x)
	target := linalg.NewVector(m.Symbols)
	target[next] = 1

	U := matrixNode(g, "U", m.Output(key).W)
	R := matrixNode(g, "R", m.R.W)
	a := vectorNode(g, "a", row)
	hp := vectorNode(g, "hPrev", hPrev)
	t := vectorNode(g, "target", target)

	h := gorgonia.Must(gorgonia.Sigmoid(gorgonia.Must(gorgonia.Add(a, gorgonia.Must(gorgonia.Mul(R, hp))))))
	z := gorgonia.Must(gorgonia.Mul(U, h))
	logZ := gorgonia.Must(gorgonia.Log(gorgonia.Must(gorgonia.Sum(gorgonia.Must(gorgonia.Exp(z))))))
	picked := gorgonia.Must(gorgonia.Sum(gorgonia.Must(gorgonia.HadamardProd(t, z))))
	nats := gorgonia.Must(gorgonia.Sub(logZ, picked))
	cost := gorgonia.Must(gorgonia.Mul(nats, gorgonia.NewConstant(1/math.Ln2)))

	learnables := gorgonia.Nodes{U, R, a, hp}
	if _, err := gorgonia.Grad(cost, learnables...); err != nil {
		return nil, fmt.Errorf("building gradient graph: %w", err)
	}
	vm := gorgonia.NewTapeMachine(g, gorgonia.BindDualValues(learnables...))
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		return nil, fmt.Errorf("running graph: %w", err)
	}

	entropy, ok := cost.Value().Data().(float64)
	if !ok {
		return nil, fmt.Errorf("cost: unexpected type %T", cost.Value().Data())
	}
	out := &CharGrads{
		Entropy: entropy,
		U:       linalg.NewMatrix(m.Symbols, m.Hidden),
		R:       linalg.NewMatrix(m.Hidden, m.Hidden),
	}
	var err error
	if out.U.Data, err = gradOf(U); err != nil {
		return nil, err
	}
	if out.R.Data, err = gradOf(R); err != nil {
		return nil, err
	}
	if out.A, err = gradOf(a); err != nil {
		return nil, err
	}
	if out.HPrev, err = gradOf(hp); err != nil {
		return nil, err
	}
	return out, nil
}

// CharReport is the largest absolute disagreement between the hand-written
// cell and the reference graph, per quantity.
type CharReport struct {
	Entropy, U, R, A, HPrev float64
}

// Max is the largest of the differences.
func (r CharReport) Max() float64 {
	return max(r.Entropy, r.U, r.R, r.A, r.HPrev)
}

func maxAbsDiff(a, b []float64) float64 {
	var d float64
	for i := range a {
		d = max(d, math.Abs(a[i]-b[i]))
	}
	return d
}

// CheckChar runs the hand-written forward and backward pass of one
// timestep on a copy of m and compares it with CharStep.
func CheckChar(m *model.Conditional, be linalg.Backend, x, next int, key string, hPrev linalg.Vector) (CharReport, error) {
	ref, err := CharStep(m, x, next, key, hPrev)
	if err != nil {
		return CharReport{}, err
	}

	work := m.Clone()
	work.ResetGradients()
	c := cell.NewChar(work, be)
	zero := linalg.NewVector(work.Hidden)
	e := c.Forward(x, next, key, hPrev)
	c.Backward(hPrev, zero, zero)

	// Lambda is -dE/dh; push it through the sigmoid and R to reach hPrev.
	mu := c.H.Clone()
	mu.SigmoidDerivativeFactor()
	mu.TimesInPlace(c.Lambda)
	dhPrev := linalg.NewVector(work.Hidden)
	be.MatrixTVector(dhPrev, -1, work.R.W, mu, 0)

	row := linalg.NewVector(work.Hidden)
	row.Row(work.A.G, x)

	return CharReport{
		Entropy: math.Abs(e - ref.Entropy),
		U:       maxAbsDiff(work.Output(key).G.Data, ref.U.Data),
		R:       maxAbsDiff(work.R.G.Data, ref.R.Data),
		A:       maxAbsDiff(row, ref.A),
		HPrev:   maxAbsDiff(dhPrev, ref.HPrev),
	}, nil
}
