package linalg

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Matrix is a dense Rows x Cols matrix stored row-major in Data.
type Matrix struct {
	Rows, Cols int
	Data       []float64
}

// NewMatrix returns a zeroed rows x cols matrix.
func NewMatrix(rows, cols int) *Matrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("linalg: NewMatrix: negative shape %dx%d", rows, cols))
	}
	return &Matrix{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

func (m *Matrix) mustSameShape(op string, o *Matrix) {
	if m.Rows != o.Rows || m.Cols != o.Cols {
		panic(fmt.Sprintf("linalg: %s: shape mismatch %dx%d vs %dx%d", op, m.Rows, m.Cols, o.Rows, o.Cols))
	}
}

func (m *Matrix) mustRow(op string, i int) {
	if i < 0 || i >= m.Rows {
		panic(fmt.Sprintf("linalg: %s: row %d out of range [0,%d)", op, i, m.Rows))
	}
}

// SameShape reports whether m and o have identical dimensions.
func (m *Matrix) SameShape(o *Matrix) bool {
	return m.Rows == o.Rows && m.Cols == o.Cols
}

// At returns element (i, j).
func (m *Matrix) At(i, j int) float64 {
	return m.Data[i*m.Cols+j]
}

// Set assigns element (i, j).
func (m *Matrix) Set(i, j int, v float64) {
	m.Data[i*m.Cols+j] = v
}

// RowView returns row i as a slice sharing m's storage.
func (m *Matrix) RowView(i int) Vector {
	m.mustRow("RowView", i)
	return Vector(m.Data[i*m.Cols : (i+1)*m.Cols])
}

// Dense wraps m's storage in a gonum matrix without copying.
func (m *Matrix) Dense() *mat.Dense {
	return mat.NewDense(m.Rows, m.Cols, m.Data)
}

func (m *Matrix) Fill(v float64) {
	for i := range m.Data {
		m.Data[i] = v
	}
}

// FillRandn fills m with scale * Randn(rng).
func (m *Matrix) FillRandn(rng *rand.Rand, scale float64) {
	for i := range m.Data {
		m.Data[i] = scale * Randn(rng)
	}
}

// FillRandom fills m with scale * UniRand(rng).
func (m *Matrix) FillRandom(rng *rand.Rand, scale float64) {
	for i := range m.Data {
		m.Data[i] = scale * UniRand(rng)
	}
}

// SetDiag overwrites the main diagonal with v.
func (m *Matrix) SetDiag(v float64) {
	n := min(m.Rows, m.Cols)
	for i := 0; i < n; i++ {
		m.Data[i*m.Cols+i] = v
	}
}

// AddDiag adds v to the main diagonal.
func (m *Matrix) AddDiag(v float64) {
	n := min(m.Rows, m.Cols)
	for i := 0; i < n; i++ {
		m.Data[i*m.Cols+i] += v
	}
}

// Copy overwrites m with src. Shapes must match.
func (m *Matrix) Copy(src *Matrix) {
	m.mustSameShape("Copy", src)
	copy(m.Data, src.Data)
}

func (m *Matrix) Clone() *Matrix {
	out := NewMatrix(m.Rows, m.Cols)
	copy(out.Data, m.Data)
	return out
}

func (m *Matrix) Scale(a float64) {
	for i := range m.Data {
		m.Data[i] *= a
	}
}

// Frobenius returns the Frobenius norm.
func (m *Matrix) Frobenius() float64 {
	var s float64
	for _, v := range m.Data {
		s += v * v
	}
	return math.Sqrt(s)
}

// DotProduct returns the elementwise inner product sum(m .* o).
func (m *Matrix) DotProduct(o *Matrix) float64 {
	m.mustSameShape("DotProduct", o)
	var s float64
	for i, v := range m.Data {
		s += v * o.Data[i]
	}
	return s
}

// AddInPlace computes m += a*o.
func (m *Matrix) AddInPlace(a float64, o *Matrix) {
	m.mustSameShape("AddInPlace", o)
	for i, v := range o.Data {
		m.Data[i] += a * v
	}
}

// AddRow computes row_i(m) += a*v.
func (m *Matrix) AddRow(i int, a float64, v Vector) {
	if len(v) != m.Cols {
		panic(fmt.Sprintf("linalg: AddRow: vector length %d, matrix cols %d", len(v), m.Cols))
	}
	m.RowView(i).AddInPlace(a, v)
}

// AddRowFrom computes row_i(m) += a*row_i(o).
func (m *Matrix) AddRowFrom(i int, a float64, o *Matrix) {
	m.mustSameShape("AddRowFrom", o)
	m.RowView(i).AddInPlace(a, o.RowView(i))
}

// FillRow sets every entry of row i to v.
func (m *Matrix) FillRow(i int, v float64) {
	m.RowView(i).Fill(v)
}

// DotRow returns the inner product of row i of m and row i of o.
func (m *Matrix) DotRow(i int, o *Matrix) float64 {
	m.mustSameShape("DotRow", o)
	return m.RowView(i).Dot(o.RowView(i))
}

// AddColumn computes column_j(m) += a*v.
func (m *Matrix) AddColumn(j int, a float64, v Vector) {
	if len(v) != m.Rows {
		panic(fmt.Sprintf("linalg: AddColumn: vector length %d, matrix rows %d", len(v), m.Rows))
	}
	if j < 0 || j >= m.Cols {
		panic(fmt.Sprintf("linalg: AddColumn: column %d out of range [0,%d)", j, m.Cols))
	}
	for i, x := range v {
		m.Data[i*m.Cols+j] += a * x
	}
}
