package spatialmath

import (
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// UniformQuaternion draws a rotation uniformly distributed with respect to the Haar measure.
// See Shoemake, "Uniform random rotations", Graphics Gems III (1992).
func UniformQuaternion(rng *rand.Rand) quat.Number {
	s := rng.Float64()
	s1 := math.Sqrt(1 - s)
	s2 := math.Sqrt(s)
	t1 := 2 * math.Pi * rng.Float64()
	t2 := 2 * math.Pi * rng.Float64()
	return quat.Number{
		Real: math.Cos(t2) * s2,
		Imag: math.Sin(t1) * s1,
		Jmag: math.Cos(t1) * s1,
		Kmag: math.Sin(t2) * s2,
	}
}

// UniformDirection draws a unit vector uniformly distributed on the 2-sphere.
func UniformDirection(rng *rand.Rand) r3.Vector {
	for {
		v := r3.Vector{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
		if n := v.Norm(); n > 1e-12 {
			return v.Mul(1 / n)
		}
	}
}
