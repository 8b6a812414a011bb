package l2frames

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// MatrixValidationTolerance is the tolerance for checking rotation matrix validity
const MatrixValidationTolerance = 0.01

// Point is a Cartesian point in meters.
type Point struct {
	X, Y, Z float64
}

// Pose is a 4×4 homogeneous transform.
// T is row-major: [m00,m01,m02,m03, m10,m11,m12,m13, m20,m21,m22,m23, m30,m31,m32,m33]
type Pose struct {
	T [16]float64
}

// IdentityPose returns the identity transform.
func IdentityPose() Pose {
	return Pose{T: [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}}
}

// PoseFromRows builds a pose from a 3×4 row-major matrix (12 values) or a
// full 4×4 one (16 values). A 3×4 matrix gets the [0 0 0 1] bottom row.
func PoseFromRows(values []float64) (Pose, error) {
	p := IdentityPose()
	switch len(values) {
	case 12, 16:
		copy(p.T[:], values)
	default:
		return Pose{}, fmt.Errorf("pose needs 12 or 16 values, got %d", len(values))
	}
	return p, nil
}

// Apply applies the transform to point (x,y,z).
func (p Pose) Apply(x, y, z float64) (wx, wy, wz float64) {
	T := p.T
	wx = T[0]*x + T[1]*y + T[2]*z + T[3]
	wy = T[4]*x + T[5]*y + T[6]*z + T[7]
	wz = T[8]*x + T[9]*y + T[10]*z + T[11]
	return
}

// ApplyPoint applies the transform to a Point.
func (p Pose) ApplyPoint(pt Point) Point {
	x, y, z := p.Apply(pt.X, pt.Y, pt.Z)
	return Point{X: x, Y: y, Z: z}
}

// Mul returns p·q, the transform that applies q first and then p.
func (p Pose) Mul(q Pose) Pose {
	var out mat.Dense
	out.Mul(p.Dense(), q.Dense())
	return poseFromDense(&out)
}

// Inverse returns the inverse transform. Singular matrices are an error.
func (p Pose) Inverse() (Pose, error) {
	var inv mat.Dense
	if err := inv.Inverse(p.Dense()); err != nil {
		return Pose{}, fmt.Errorf("invert pose: %w", err)
	}
	return poseFromDense(&inv), nil
}

// Dense returns the pose as a 4×4 gonum matrix. The matrix owns its data.
func (p Pose) Dense() *mat.Dense {
	data := p.T
	return mat.NewDense(4, 4, data[:])
}

// Translation returns the translation column.
func (p Pose) Translation() Point {
	return Point{X: p.T[3], Y: p.T[7], Z: p.T[11]}
}

func poseFromDense(m mat.Matrix) Pose {
	var p Pose
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			p.T[r*4+c] = m.At(r, c)
		}
	}
	return p
}

// IsValidTransformMatrix checks if a 4x4 matrix is a valid rigid transform.
// A valid rigid transform has:
// 1. Orthonormal rotation submatrix (det ≈ 1)
// 2. Last row is [0 0 0 1]
func IsValidTransformMatrix(T [16]float64) bool {
	r00, r01, r02 := T[0], T[1], T[2]
	r10, r11, r12 := T[4], T[5], T[6]
	r20, r21, r22 := T[8], T[9], T[10]

	// Check determinant ≈ 1 (proper rotation, not reflection)
	det := r00*(r11*r22-r12*r21) - r01*(r10*r22-r12*r20) + r02*(r10*r21-r11*r20)
	if math.Abs(det-1.0) > MatrixValidationTolerance {
		return false
	}

	if T[12] != 0 || T[13] != 0 || T[14] != 0 || math.Abs(T[15]-1.0) > 0.001 {
		return false
	}

	return true
}
