// Package spatialmath defines the affine transform math shared by the graph and the constraint evaluator.
package spatialmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats/scalar"
)

const degToRad = math.Pi / 180

// singularEpsilon is the determinant magnitude below which a matrix is treated as non-invertible.
const singularEpsilon = 1e-12

// ErrSingularMatrix is returned when inverting a matrix whose determinant is (numerically) zero.
var ErrSingularMatrix = errors.New("matrix is singular and cannot be inverted")

// Matrix is a 4x4 affine transform using the column-vector convention: a point p maps to M*p and the
// translation lives in the fourth column.
type Matrix struct {
	mgl64.Mat4
}

// Identity returns the identity transform.
func Identity() Matrix {
	return Matrix{mgl64.Ident4()}
}

// NewTranslationMatrix returns a transform that only translates by v.
func NewTranslationMatrix(v r3.Vector) Matrix {
	return Matrix{mgl64.Translate3D(v.X, v.Y, v.Z)}
}

// NewMatrixFromTRS composes translate * rotate * scale. Rotation is given in degrees and applied
// in X, then Y, then Z order.
func NewMatrixFromTRS(translate, rotateDegrees, scale r3.Vector) Matrix {
	rot := mgl64.HomogRotate3DZ(rotateDegrees.Z * degToRad).Mul4(
		mgl64.HomogRotate3DY(rotateDegrees.Y * degToRad).Mul4(
			mgl64.HomogRotate3DX(rotateDegrees.X * degToRad)))
	m := mgl64.Translate3D(translate.X, translate.Y, translate.Z).
		Mul4(rot).
		Mul4(mgl64.Scale3D(scale.X, scale.Y, scale.Z))
	return Matrix{m}
}

// NewMatrixFromRows builds a matrix from row-major values.
func NewMatrixFromRows(rows [4][4]float64) Matrix {
	var m mgl64.Mat4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			m.Set(r, c, rows[r][c])
		}
	}
	return Matrix{m}
}

// Mul returns m*other, i.e. other is applied first.
func (m Matrix) Mul(other Matrix) Matrix {
	return Matrix{m.Mat4.Mul4(other.Mat4)}
}

// Translation returns the translation component of the transform.
func (m Matrix) Translation() r3.Vector {
	return r3.Vector{X: m.At(0, 3), Y: m.At(1, 3), Z: m.At(2, 3)}
}

// TransformPoint maps p through the affine transform.
func (m Matrix) TransformPoint(p r3.Vector) r3.Vector {
	out := m.Mat4.Mul4x1(mgl64.Vec4{p.X, p.Y, p.Z, 1})
	return r3.Vector{X: out[0], Y: out[1], Z: out[2]}
}

// Inverse returns the inverse transform, or ErrSingularMatrix.
func (m Matrix) Inverse() (Matrix, error) {
	det := m.Det()
	if math.Abs(det) < singularEpsilon || math.IsNaN(det) {
		return Matrix{}, errors.Wrapf(ErrSingularMatrix, "determinant %g", det)
	}
	return Matrix{m.Inv()}, nil
}

// IsFinite reports whether every element is a finite number.
func (m Matrix) IsFinite() bool {
	for _, v := range m.Mat4 {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Rows returns the matrix as row-major values.
func (m Matrix) Rows() [4][4]float64 {
	var rows [4][4]float64
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			rows[r][c] = m.At(r, c)
		}
	}
	return rows
}

// MatrixAlmostEqual compares two matrices element-wise within the given absolute or relative tolerance.
func MatrixAlmostEqual(a, b Matrix, tol float64) bool {
	for i := range a.Mat4 {
		if !scalar.EqualWithinAbsOrRel(a.Mat4[i], b.Mat4[i], tol, tol) {
			return false
		}
	}
	return true
}

// R3VectorAlmostEqual compares two vectors component-wise within the given absolute or relative tolerance.
func R3VectorAlmostEqual(a, b r3.Vector, tol float64) bool {
	return scalar.EqualWithinAbsOrRel(a.X, b.X, tol, tol) &&
		scalar.EqualWithinAbsOrRel(a.Y, b.Y, tol, tol) &&
		scalar.EqualWithinAbsOrRel(a.Z, b.Z, tol, tol)
}

// IsFiniteVector reports whether every component of v is finite.
func IsFiniteVector(v r3.Vector) bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
