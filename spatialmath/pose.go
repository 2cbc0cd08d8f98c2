// Package spatialmath defines spatial mathematical operations on rigid poses.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// OrientationTolerance is how far the norm of an orientation quaternion may stray from 1 before
// a pose is rejected.
const OrientationTolerance = 1e-6

// Pose is an immutable rigid transform made of a position and a unit quaternion orientation.
// The zero value is not a valid pose; construct poses with NewPose.
type Pose struct {
	point       r3.Vector
	orientation quat.Number
}

// NewPose validates and returns a pose. The orientation is renormalized after validation so
// that small drift in the input does not accumulate.
func NewPose(point r3.Vector, orientation quat.Number) (Pose, error) {
	if err := validatePoint(point); err != nil {
		return Pose{}, err
	}
	if err := validateOrientation(orientation); err != nil {
		return Pose{}, err
	}
	return Pose{point: point, orientation: Normalize(orientation)}, nil
}

// NewZeroPose returns the identity pose at the origin.
func NewZeroPose() Pose {
	return Pose{orientation: quat.Number{Real: 1}}
}

// NewPoseFromPoint returns a pose at the given point with no rotation.
func NewPoseFromPoint(point r3.Vector) (Pose, error) {
	return NewPose(point, quat.Number{Real: 1})
}

// NewPoseFromAxisAngle returns a pose whose orientation is the given axis angle.
func NewPoseFromAxisAngle(point r3.Vector, aa *R4AA) (Pose, error) {
	return NewPose(point, aa.ToQuat())
}

// Point returns the position of the pose.
func (p Pose) Point() r3.Vector {
	return p.point
}

// Orientation returns the unit quaternion orientation of the pose.
func (p Pose) Orientation() quat.Number {
	return p.orientation
}

// Validate reports whether p could have been produced by NewPose.
func (p Pose) Validate() error {
	if err := validatePoint(p.point); err != nil {
		return err
	}
	return validateOrientation(p.orientation)
}

// Transform applies the pose to a point expressed in the pose's frame.
func (p Pose) Transform(v r3.Vector) r3.Vector {
	return rotate(p.orientation, v).Add(p.point)
}

// String implements fmt.Stringer.
func (p Pose) String() string {
	q := p.orientation
	return fmt.Sprintf("{X:%.6g Y:%.6g Z:%.6g | W:%.6g I:%.6g J:%.6g K:%.6g}",
		p.point.X, p.point.Y, p.point.Z, q.Real, q.Imag, q.Jmag, q.Kmag)
}

// Compose returns the pose obtained by applying b in the frame of a.
func Compose(a, b Pose) Pose {
	return Pose{
		point:       a.Transform(b.point),
		orientation: Normalize(quat.Mul(a.orientation, b.orientation)),
	}
}

// PoseInverse returns the inverse transform of p.
func PoseInverse(p Pose) Pose {
	inv := quat.Conj(p.orientation)
	return Pose{
		point:       rotate(inv, p.point).Mul(-1),
		orientation: inv,
	}
}

// PoseBetween returns the pose which, composed onto a, yields b.
func PoseBetween(a, b Pose) Pose {
	return Compose(PoseInverse(a), b)
}

// PoseAlmostEqual returns whether two poses are equal to within tol in both position and orientation.
func PoseAlmostEqual(a, b Pose, tol float64) bool {
	return a.point.Sub(b.point).Norm() < tol && QuaternionAlmostEqual(a.orientation, b.orientation, tol)
}

func rotate(q quat.Number, v r3.Vector) r3.Vector {
	rotated := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: rotated.Imag, Y: rotated.Jmag, Z: rotated.Kmag}
}

func validatePoint(v r3.Vector) error {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return newValidationError("position", "coordinates must be finite, got %v", v)
		}
	}
	return nil
}

func validateOrientation(q quat.Number) error {
	if quat.IsNaN(q) || quat.IsInf(q) {
		return newValidationError("orientation", "components must be finite, got %v", q)
	}
	if n := quat.Abs(q); math.Abs(n-1) > OrientationTolerance {
		return newValidationError("orientation", "quaternion norm %v is not 1 within %v", n, OrientationTolerance)
	}
	return nil
}
