package kernel

import (
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/stat/distuv"

	"go.viam.com/posekde/spatialmath"
)

// Sampler draws poses from the density of an Estimator. A Sampler owns its random source and
// must not be shared between goroutines; create one per sampling stream. Two samplers created
// with identically seeded sources produce identical sequences.
type Sampler struct {
	model      *Model
	collection *Collection
	metrics    *Metrics

	rng    *rand.Rand
	pick   distuv.Categorical
	offset distuv.Normal
	beta   distuv.Beta
	wood   woodParams
}

// NewSampler returns a sampler drawing from src.
func (e *Estimator) NewSampler(src rand.Source) (*Sampler, error) {
	if e.collection.Len() == 0 {
		return nil, ErrEmptyModel
	}
	if src == nil {
		return nil, newConfigurationError("random_source", "a random source is required")
	}
	weights := make([]float64, e.collection.Len())
	for i, o := range e.collection.observations {
		weights[i] = o.Weight
	}
	return &Sampler{
		model:      e.model,
		collection: e.collection,
		metrics:    e.metrics,
		rng:        rand.New(src),
		pick:       distuv.NewCategorical(weights, src),
		offset:     distuv.Normal{Mu: 0, Sigma: e.model.sigma, Src: src},
		beta:       distuv.Beta{Alpha: 1.5, Beta: 1.5, Src: src},
		wood:       newWoodParams(e.model.kappa),
	}, nil
}

// Sample draws one pose. An observation is chosen with probability equal to its weight, then its
// position is perturbed by a draw from the translational kernel and its orientation by a draw
// from the von Mises-Fisher distribution centered on it.
func (s *Sampler) Sample() (spatialmath.Pose, error) {
	if s == nil || s.collection.Len() == 0 {
		return spatialmath.Pose{}, ErrEmptyModel
	}
	base := s.collection.observations[int(s.pick.Rand())].Pose

	delta, rejections := s.rotationOffset()
	orientation := spatialmath.Normalize(quat.Mul(base.Orientation(), delta))
	s.metrics.sampled(rejections)
	return spatialmath.NewPose(base.Point().Add(s.translationOffset()), orientation)
}

// SampleN draws n poses.
func (s *Sampler) SampleN(n int) ([]spatialmath.Pose, error) {
	if n < 0 {
		return nil, newConfigurationError("n", "cannot draw a negative number of samples")
	}
	out := make([]spatialmath.Pose, 0, n)
	for i := 0; i < n; i++ {
		p, err := s.Sample()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Resample draws n poses and returns them as a new collection in which every pose has weight 1/n.
func (s *Sampler) Resample(n int) (*Collection, error) {
	if n <= 0 {
		return nil, newConfigurationError("n", "at least one sample is required, got %d", n)
	}
	poses, err := s.SampleN(n)
	if err != nil {
		return nil, err
	}
	observations := make([]Observation, n)
	for i, p := range poses {
		observations[i] = Observation{Pose: p, Weight: 1 / float64(n)}
	}
	return NewCollection(observations)
}

func (s *Sampler) translationOffset() r3.Vector {
	switch s.model.family {
	case Box:
		// Uniform in the ball: the radius of a uniform point has density proportional to r^2.
		r := s.model.sigma * math.Cbrt(s.rng.Float64())
		return spatialmath.UniformDirection(s.rng).Mul(r)
	default:
		return r3.Vector{X: s.offset.Rand(), Y: s.offset.Rand(), Z: s.offset.Rand()}
	}
}

// woodParams are the constants of Wood's rejection sampler for the von Mises-Fisher
// distribution on the 3-sphere.
// See Wood, "Simulation of the von Mises Fisher distribution", Comm. Stat. (1994).
type woodParams struct {
	kappa float64
	b     float64
	x0    float64
	c     float64
}

func newWoodParams(kappa float64) woodParams {
	// (sqrt(4k^2 + 9) - 2k) / 3, rearranged to avoid cancellation at large kappa.
	b := 3 / (2*kappa + math.Sqrt(4*kappa*kappa+9))
	x0 := (1 - b) / (1 + b)
	return woodParams{
		kappa: kappa,
		b:     b,
		x0:    x0,
		c:     kappa*x0 + 3*math.Log(1-x0*x0),
	}
}

// rotationOffset draws a unit quaternion with density proportional to exp(kappa * w), where w is
// its real part, and reports how many proposals were rejected.
func (s *Sampler) rotationOffset() (quat.Number, int) {
	p := s.wood
	rejections := 0
	var w float64
	for {
		z := s.beta.Rand()
		w = (1 - (1+p.b)*z) / (1 - (1-p.b)*z)
		u := s.rng.Float64()
		if p.kappa*w+3*math.Log(1-p.x0*w)-p.c >= math.Log(u) {
			break
		}
		rejections++
	}
	v := spatialmath.UniformDirection(s.rng).Mul(math.Sqrt(math.Max(0, 1-w*w)))
	return quat.Number{Real: w, Imag: v.X, Jmag: v.Y, Kmag: v.Z}, rejections
}
