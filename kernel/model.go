// Package kernel estimates and samples probability densities over rigid poses. A density is a
// weighted sum of product kernels, each the product of a von Mises-Fisher kernel on orientation
// and an isotropic kernel on position, centered on an observed pose.
package kernel

import (
	"math"

	"go.viam.com/posekde/spatialmath"
)

// Model is the product kernel shared by every estimator and classifier built on it. It is
// immutable and safe for concurrent use.
type Model struct {
	kappa     float64
	sigma     float64
	family    TranslationalKernel
	tolerance float64

	transPeak float64
	radius    float64
}

// NewModel validates cfg and returns the kernel it describes.
func NewModel(cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Model{
		kappa:     cfg.RotationalBandwidth,
		sigma:     cfg.TranslationalBandwidth,
		family:    cfg.TranslationalKernel,
		tolerance: valueOr(cfg.TruncationTolerance, defaultTruncationTolerance),
	}
	if m.family == "" {
		m.family = Gaussian
	}

	switch m.family {
	case Box:
		m.transPeak = 3 / (4 * math.Pi * m.sigma * m.sigma * m.sigma)
		m.radius = m.sigma
	default:
		m.transPeak = math.Pow(2*math.Pi*m.sigma*m.sigma, -1.5)
		// exp(-r^2 / 2sigma^2) == tolerance
		m.radius = m.sigma * math.Sqrt(2*math.Log(1/m.tolerance))
	}
	if math.IsInf(m.transPeak, 0) || m.transPeak == 0 {
		return nil, newConfigurationError("translational_bandwidth",
			"%v produces a kernel that cannot be represented", m.sigma)
	}
	return m, nil
}

// RotationalBandwidth returns kappa.
func (m *Model) RotationalBandwidth() float64 {
	return m.kappa
}

// TranslationalBandwidth returns sigma.
func (m *Model) TranslationalBandwidth() float64 {
	return m.sigma
}

// Family returns the translational kernel family.
func (m *Model) Family() TranslationalKernel {
	return m.family
}

// TruncationTolerance returns the relative kernel value below which neighbors are ignored.
func (m *Model) TruncationTolerance() float64 {
	return m.tolerance
}

// SupportRadius is the translational distance beyond which the translational kernel is at most
// TruncationTolerance times its peak. For the box family the kernel is exactly zero beyond it.
func (m *Model) SupportRadius() float64 {
	return m.radius
}

// Distance returns the rotational distance, the geodesic angle in [0, pi] between the two
// orientations, and the Euclidean distance between the two positions.
func (m *Model) Distance(p, q spatialmath.Pose) (rot, trans float64) {
	return spatialmath.GeodesicAngle(p.Orientation(), q.Orientation()), p.Point().Distance(q.Point())
}

// Evaluate returns the product kernel value k(p, q). It is symmetric in its arguments and
// maximal when p and q coincide.
func (m *Model) Evaluate(p, q spatialmath.Pose) float64 {
	rot, trans := m.Distance(p, q)
	return m.RotationalValue(rot) * m.TranslationalValue(trans)
}

// RotationalValue is the antipodally symmetric von Mises-Fisher kernel on unit quaternions,
// exp(kappa*(cos(theta/2)-1)) + exp(-kappa*(cos(theta/2)+1)), for a geodesic angle theta.
// The first term is written with the half angle sine so it stays exact near theta = 0.
// The value is not normalized; it is 1 + exp(-2 kappa) at theta = 0.
func (m *Model) RotationalValue(theta float64) float64 {
	s := math.Sin(theta / 4)
	return math.Exp(-2*m.kappa*s*s) + math.Exp(-m.kappa*(math.Cos(theta/2)+1))
}

// TranslationalValue is the normalized translational density at distance d from the center.
func (m *Model) TranslationalValue(d float64) float64 {
	switch m.family {
	case Box:
		if d > m.sigma {
			return 0
		}
		return m.transPeak
	default:
		return m.transPeak * math.Exp(-d*d/(2*m.sigma*m.sigma))
	}
}
