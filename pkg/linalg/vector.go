// Package linalg provides the dense vector and matrix primitives used by the
// recurrent models. Buffers are plain row-major float64 slices owned by a
// single holder. Shape mismatches are programmer bugs and panic.
package linalg

import (
	"fmt"
	"math"
)

// Vector is a fixed-length dense vector.
type Vector []float64

// NewVector returns a zeroed vector of length n.
func NewVector(n int) Vector {
	return make(Vector, n)
}

func mustSameLen(op string, a, b Vector) {
	if len(a) != len(b) {
		panic(fmt.Sprintf("linalg: %s: length mismatch %d vs %d", op, len(a), len(b)))
	}
}

// Fill sets every entry to v.
func (x Vector) Fill(v float64) {
	for i := range x {
		x[i] = v
	}
}

// Copy overwrites x with the contents of src.
func (x Vector) Copy(src Vector) {
	mustSameLen("Copy", x, src)
	copy(x, src)
}

// Clone returns an independent copy.
func (x Vector) Clone() Vector {
	out := make(Vector, len(x))
	copy(out, x)
	return out
}

func (x Vector) Scale(a float64) {
	for i := range x {
		x[i] *= a
	}
}

func (x Vector) Dot(y Vector) float64 {
	mustSameLen("Dot", x, y)
	var s float64
	for i, v := range x {
		s += v * y[i]
	}
	return s
}

// AddInPlace computes x += a*y.
func (x Vector) AddInPlace(a float64, y Vector) {
	mustSameLen("AddInPlace", x, y)
	for i, v := range y {
		x[i] += a * v
	}
}

// TimesInPlace multiplies x elementwise by y.
func (x Vector) TimesInPlace(y Vector) {
	mustSameLen("TimesInPlace", x, y)
	for i, v := range y {
		x[i] *= v
	}
}

func (x Vector) Norm2() float64 {
	return math.Sqrt(x.Dot(x))
}

func (x Vector) Max() float64 {
	m := math.Inf(-1)
	for _, v := range x {
		if v > m {
			m = v
		}
	}
	return m
}

// Sigmoid applies the logistic function elementwise.
func (x Vector) Sigmoid() {
	for i, v := range x {
		x[i] = 1 / (1 + math.Exp(-v))
	}
}

// SigmoidDerivativeFactor replaces every activation a with a*(1-a), the
// derivative of the logistic function expressed in terms of its output.
func (x Vector) SigmoidDerivativeFactor() {
	for i, v := range x {
		x[i] = v * (1 - v)
	}
}

// SoftMax normalizes x into a probability distribution. The maximum is
// subtracted before exponentiation so large logits cannot overflow.
func (x Vector) SoftMax() {
	if len(x) == 0 {
		return
	}
	m := x.Max()
	var sum float64
	for i, v := range x {
		e := math.Exp(v - m)
		x[i] = e
		sum += e
	}
	for i := range x {
		x[i] /= sum
	}
}

// Row copies row i of m into x.
func (x Vector) Row(m *Matrix, i int) {
	if len(x) != m.Cols {
		panic(fmt.Sprintf("linalg: Row: vector length %d, matrix cols %d", len(x), m.Cols))
	}
	m.mustRow("Row", i)
	copy(x, m.Data[i*m.Cols:(i+1)*m.Cols])
}

// Column copies column j of m into x.
func (x Vector) Column(m *Matrix, j int) {
	if len(x) != m.Rows {
		panic(fmt.Sprintf("linalg: Column: vector length %d, matrix rows %d", len(x), m.Rows))
	}
	if j < 0 || j >= m.Cols {
		panic(fmt.Sprintf("linalg: Column: index %d out of range [0,%d)", j, m.Cols))
	}
	for i := range x {
		x[i] = m.Data[i*m.Cols+j]
	}
}

// AddVectors sets x = a + b.
func (x Vector) AddVectors(a, b Vector) {
	mustSameLen("AddVectors", x, a)
	mustSameLen("AddVectors", x, b)
	for i := range x {
		x[i] = a[i] + b[i]
	}
}

// TimesVectors sets x = a ⊙ b.
func (x Vector) TimesVectors(a, b Vector) {
	mustSameLen("TimesVectors", x, a)
	mustSameLen("TimesVectors", x, b)
	for i := range x {
		x[i] = a[i] * b[i]
	}
}

// OneHotMinus sets x = e_k - p, the softmax cross-entropy error for target k.
func (x Vector) OneHotMinus(k int, p Vector) {
	mustSameLen("OneHotMinus", x, p)
	if k < 0 || k >= len(x) {
		panic(fmt.Sprintf("linalg: OneHotMinus: index %d out of range [0,%d)", k, len(x)))
	}
	for i, v := range p {
		x[i] = -v
	}
	x[k] += 1
}
