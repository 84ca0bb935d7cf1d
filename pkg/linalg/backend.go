package linalg

import (
	"fmt"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

// Backend selects the implementation of the matrix-vector kernels. Both
// implementations produce the same results up to floating-point rounding.
type Backend int

const (
	// Loop runs the 8-way unrolled Go loops.
	Loop Backend = iota
	// BLAS delegates to gonum's blas64 routines.
	BLAS
)

func (b Backend) String() string {
	switch b {
	case Loop:
		return "loop"
	case BLAS:
		return "blas"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// ParseBackend maps a name to a Backend; "true" and "false" select BLAS and
// Loop. "auto" picks BLAS on CPUs with vector FMA support and Loop
// everywhere else.
func ParseBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "loop", "manual", "false":
		return Loop, nil
	case "blas", "true":
		return BLAS, nil
	case "auto":
		return DetectBackend(), nil
	}
	return Loop, fmt.Errorf("unknown backend %q (want loop, blas or auto)", name)
}

// DetectBackend probes the host CPU.
func DetectBackend() Backend {
	if cpuid.CPU.Supports(cpuid.AVX2, cpuid.FMA3) || cpuid.CPU.Supports(cpuid.ASIMD) {
		return BLAS
	}
	return Loop
}

// CPUSummary describes the host CPU for run banners.
func CPUSummary() string {
	return fmt.Sprintf("%s (%d cores, avx2=%t fma3=%t)",
		cpuid.CPU.BrandName, cpuid.CPU.PhysicalCores,
		cpuid.CPU.Supports(cpuid.AVX2), cpuid.CPU.Supports(cpuid.FMA3))
}

func general(m *Matrix) blas64.General {
	return blas64.General{Rows: m.Rows, Cols: m.Cols, Stride: m.Cols, Data: m.Data}
}

func vec(x Vector) blas64.Vector {
	return blas64.Vector{N: len(x), Inc: 1, Data: x}
}

func empty(m *Matrix) bool {
	return m.Rows == 0 || m.Cols == 0
}

// MatrixVector computes y = a*M*x + d*y.
func (b Backend) MatrixVector(y Vector, a float64, m *Matrix, x Vector, d float64) {
	if len(x) != m.Cols || len(y) != m.Rows {
		panic(fmt.Sprintf("linalg: MatrixVector: %dx%d matrix, x %d, y %d", m.Rows, m.Cols, len(x), len(y)))
	}
	if b == BLAS && !empty(m) {
		blas64.Gemv(blas.NoTrans, a, general(m), vec(x), d, vec(y))
		return
	}
	gemvLoop(y, a, m, x, d)
}

// MatrixTVector computes y = a*Mᵗ*x + d*y.
func (b Backend) MatrixTVector(y Vector, a float64, m *Matrix, x Vector, d float64) {
	if len(x) != m.Rows || len(y) != m.Cols {
		panic(fmt.Sprintf("linalg: MatrixTVector: %dx%d matrix, x %d, y %d", m.Rows, m.Cols, len(x), len(y)))
	}
	if b == BLAS && !empty(m) {
		blas64.Gemv(blas.Trans, a, general(m), vec(x), d, vec(y))
		return
	}
	gemvTLoop(y, a, m, x, d)
}

// OuterAccumulate computes M += a*u*vᵗ.
func (b Backend) OuterAccumulate(m *Matrix, a float64, u, v Vector) {
	if len(u) != m.Rows || len(v) != m.Cols {
		panic(fmt.Sprintf("linalg: OuterAccumulate: %dx%d matrix, u %d, v %d", m.Rows, m.Cols, len(u), len(v)))
	}
	if b == BLAS && !empty(m) {
		blas64.Ger(a, vec(u), vec(v), general(m))
		return
	}
	gerLoop(m, a, u, v)
}

// scaleInto sets y = d*y, treating d == 0 as an overwrite so stale values
// (including NaN) never leak into the result.
func scaleInto(y Vector, d float64) {
	switch d {
	case 1:
	case 0:
		y.Fill(0)
	default:
		y.Scale(d)
	}
}

// gemvLoop walks eight rows at a time with independent accumulators.
func gemvLoop(y Vector, a float64, m *Matrix, x Vector, d float64) {
	n := m.Cols
	i := 0
	for ; i+8 <= m.Rows; i += 8 {
		r0 := m.Data[i*n : (i+1)*n]
		r1 := m.Data[(i+1)*n : (i+2)*n]
		r2 := m.Data[(i+2)*n : (i+3)*n]
		r3 := m.Data[(i+3)*n : (i+4)*n]
		r4 := m.Data[(i+4)*n : (i+5)*n]
		r5 := m.Data[(i+5)*n : (i+6)*n]
		r6 := m.Data[(i+6)*n : (i+7)*n]
		r7 := m.Data[(i+7)*n : (i+8)*n]
		var s0, s1, s2, s3, s4, s5, s6, s7 float64
		for j, v := range x {
			s0 += r0[j] * v
			s1 += r1[j] * v
			s2 += r2[j] * v
			s3 += r3[j] * v
			s4 += r4[j] * v
			s5 += r5[j] * v
			s6 += r6[j] * v
			s7 += r7[j] * v
		}
		y[i] = a*s0 + dy(d, y[i])
		y[i+1] = a*s1 + dy(d, y[i+1])
		y[i+2] = a*s2 + dy(d, y[i+2])
		y[i+3] = a*s3 + dy(d, y[i+3])
		y[i+4] = a*s4 + dy(d, y[i+4])
		y[i+5] = a*s5 + dy(d, y[i+5])
		y[i+6] = a*s6 + dy(d, y[i+6])
		y[i+7] = a*s7 + dy(d, y[i+7])
	}
	for ; i < m.Rows; i++ {
		r := m.Data[i*n : (i+1)*n]
		var s float64
		for j, v := range x {
			s += r[j] * v
		}
		y[i] = a*s + dy(d, y[i])
	}
}

func dy(d, y float64) float64 {
	if d == 0 {
		return 0
	}
	return d * y
}

// gemvTLoop accumulates the transposed product row by row: each row of M is
// contiguous, so row i contributes a*x[i]*row_i to y as an unrolled axpy.
func gemvTLoop(y Vector, a float64, m *Matrix, x Vector, d float64) {
	scaleInto(y, d)
	n := m.Cols
	for i, xi := range x {
		c := a * xi
		if c == 0 {
			continue
		}
		axpy8(y, c, m.Data[i*n:(i+1)*n])
	}
}

func gerLoop(m *Matrix, a float64, u, v Vector) {
	n := m.Cols
	for i, ui := range u {
		c := a * ui
		if c == 0 {
			continue
		}
		axpy8(Vector(m.Data[i*n:(i+1)*n]), c, v)
	}
}

// axpy8 computes y += c*x with the loop unrolled eight ways.
func axpy8(y Vector, c float64, x []float64) {
	j := 0
	for ; j+8 <= len(x); j += 8 {
		y[j] += c * x[j]
		y[j+1] += c * x[j+1]
		y[j+2] += c * x[j+2]
		y[j+3] += c * x[j+3]
		y[j+4] += c * x[j+4]
		y[j+5] += c * x[j+5]
		y[j+6] += c * x[j+6]
		y[j+7] += c * x[j+7]
	}
	for ; j < len(x); j++ {
		y[j] += c * x[j]
	}
}
