package spatialmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Norm returns the norm of the quaternion's imaginary part, i.e. the sqrt of the squares of the imaginary parts.
func Norm(q quat.Number) float64 {
	return math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
}

// Flip will multiply a quaternion by -1, returning a quaternion representing the same orientation but in the opposing octant.
func Flip(q quat.Number) quat.Number {
	return quat.Number{Real: -q.Real, Imag: -q.Imag, Jmag: -q.Jmag, Kmag: -q.Kmag}
}

// Dot returns the four dimensional inner product of two quaternions.
func Dot(p, q quat.Number) float64 {
	return p.Real*q.Real + p.Imag*q.Imag + p.Jmag*q.Jmag + p.Kmag*q.Kmag
}

// Normalize scales q to unit length. The zero quaternion is returned unchanged.
func Normalize(q quat.Number) quat.Number {
	l := quat.Abs(q)
	if l == 0 {
		return q
	}
	return quat.Scale(1/l, q)
}

// NearestRepresentative returns whichever of q and -q lies in the same hemisphere of S^3 as ref.
// q and -q describe the same rotation.
func NearestRepresentative(ref, q quat.Number) quat.Number {
	if Dot(ref, q) < 0 {
		return Flip(q)
	}
	return q
}

// QuatBetween returns the rotation taking p onto q, expressed in p's frame.
func QuatBetween(p, q quat.Number) quat.Number {
	return quat.Mul(quat.Conj(p), NearestRepresentative(p, q))
}

// GeodesicAngle returns the angle in radians, in [0, pi], of the smallest rotation taking p onto q.
func GeodesicAngle(p, q quat.Number) float64 {
	rel := QuatBetween(p, q)
	return 2 * math.Atan2(Norm(rel), math.Abs(rel.Real))
}

// QuaternionAlmostEqual is an equality test that will return true if the two quaternions describe
// the same rotation to within the given tolerance.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	b = NearestRepresentative(a, b)
	return math.Abs(a.Real-b.Real) < tol &&
		math.Abs(a.Imag-b.Imag) < tol &&
		math.Abs(a.Jmag-b.Jmag) < tol &&
		math.Abs(a.Kmag-b.Kmag) < tol
}
