package models

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrUndefinedPixelFormat is returned when a frame timeline has no usable pixel format
	ErrUndefinedPixelFormat = errors.New("frame pixel format undefined")

	// ErrFrameSize is returned when a frame buffer does not match its format
	ErrFrameSize = errors.New("frame size does not match format")
)

// Matrix4 is a row-major 4x4 transform as stored in a matrix timeline element
type Matrix4 [16]float64

// Identity4 returns the 4x4 identity transform
func Identity4() Matrix4 {
	return Matrix4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Matrix is a matrix output backed by a gonum dense matrix.
// Like Image, its identity is stable and only its values change.
type Matrix struct {
	dense *mat.Dense

	// Modified counts how many times the values have been written
	Modified uint64
}

// NewMatrix creates an identity matrix output
func NewMatrix() *Matrix {
	id := Identity4()
	return &Matrix{dense: mat.NewDense(4, 4, id[:])}
}

// SetMatrix overwrites the matrix values in place
func (m *Matrix) SetMatrix(values Matrix4) {
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m.dense.Set(i, j, values[i*4+j])
		}
	}
	m.Modified++
}

// At returns the value at row i, column j
func (m *Matrix) At(i, j int) float64 {
	return m.dense.At(i, j)
}

// Dense returns a read-only view of the underlying matrix
func (m *Matrix) Dense() mat.Matrix {
	return m.dense
}

// Values returns a copy of the matrix in row-major order
func (m *Matrix) Values() Matrix4 {
	var out Matrix4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[i*4+j] = m.dense.At(i, j)
		}
	}
	return out
}
