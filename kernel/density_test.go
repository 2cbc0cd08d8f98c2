package kernel

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.viam.com/test"

	"go.viam.com/posekde/logging"
	"go.viam.com/posekde/spatialmath"
)

func newTestEstimator(t *testing.T, m *Model, observations []Observation) *Estimator {
	t.Helper()
	c, err := NewCollection(observations)
	test.That(t, err, test.ShouldBeNil)
	e, err := NewEstimator(m, c, WithLogger(logging.NewTestLogger(t)))
	test.That(t, err, test.ShouldBeNil)
	return e
}

func randomObservations(t *testing.T, rng *rand.Rand, n int, scale float64) []Observation {
	t.Helper()
	observations := make([]Observation, n)
	for i := range observations {
		observations[i] = Observation{randomPose(t, rng, scale), 0.1 + rng.Float64()}
	}
	return observations
}

func TestEvaluateThreePoses(t *testing.T) {
	m := newTestModel(t, 10, 0.5)
	observations := []Observation{
		{newTestPose(t, 0, 0, 0, identity), 1},
		{newTestPose(t, 1, 0, 0, identity), 1},
		{newTestPose(t, 10, 0, 0, identity), 1},
	}
	e := newTestEstimator(t, m, observations)

	atOrigin := newTestPose(t, 0, 0, 0, identity)
	test.That(t, len(e.Collection().Neighbors(atOrigin, m.SupportRadius())), test.ShouldEqual, 2)
	v, err := e.Evaluate(atOrigin)
	test.That(t, err, test.ShouldBeNil)
	peak := m.TranslationalValue(0) * m.RotationalValue(0)
	test.That(t, v, test.ShouldAlmostEqual, peak*(1+math.Exp(-2))/3, 1e-12)
	far := m.Evaluate(atOrigin, observations[2].Pose) / 3
	test.That(t, far/v, test.ShouldBeLessThanOrEqualTo, m.TruncationTolerance())
	brute, err := e.BruteForceEvaluate(atOrigin)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, math.Abs(v-brute)/brute, test.ShouldBeLessThanOrEqualTo, m.TruncationTolerance())

	atTen := newTestPose(t, 10, 0, 0, identity)
	neighbors := e.Collection().Neighbors(atTen, m.SupportRadius())
	test.That(t, len(neighbors), test.ShouldEqual, 1)
	test.That(t, neighbors[0].Index, test.ShouldEqual, 2)
	v, err = e.Evaluate(atTen)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldAlmostEqual, peak/3, 1e-12)
	near := (m.Evaluate(atTen, observations[0].Pose) + m.Evaluate(atTen, observations[1].Pose)) / 3
	test.That(t, near/v, test.ShouldBeLessThanOrEqualTo, m.TruncationTolerance())
}

func TestEvaluateMatchesBruteForceWhenNothingIsTruncated(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	for _, family := range []TranslationalKernel{Gaussian, Box} {
		m, err := NewModel(Config{RotationalBandwidth: 4, TranslationalBandwidth: 4, TranslationalKernel: family})
		test.That(t, err, test.ShouldBeNil)
		// Every observation lies within one unit of the origin, well inside the support radius.
		e := newTestEstimator(t, m, randomObservations(t, rng, 200, 0.5))
		for i := 0; i < 50; i++ {
			query := randomPose(t, rng, 0.5)
			v, err := e.Evaluate(query)
			test.That(t, err, test.ShouldBeNil)
			brute, err := e.BruteForceEvaluate(query)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, v, test.ShouldBeGreaterThan, 0)
			test.That(t, math.Abs(v-brute)/brute, test.ShouldBeLessThan, 1e-9)
		}
	}
}

func TestEvaluateTruncationError(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	m := newTestModel(t, 2, 0.3)
	e := newTestEstimator(t, m, randomObservations(t, rng, 500, 3))
	for i := 0; i < 50; i++ {
		query := e.Collection().At(rng.IntN(500)).Pose
		v, err := e.Evaluate(query)
		test.That(t, err, test.ShouldBeNil)
		brute, err := e.BruteForceEvaluate(query)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, v, test.ShouldBeLessThanOrEqualTo, brute*(1+1e-12))
		// Each excluded term is below tolerance times the largest possible term.
		bound := m.TruncationTolerance() * m.TranslationalValue(0) * m.RotationalValue(0)
		test.That(t, brute-v, test.ShouldBeLessThanOrEqualTo, bound)
	}
}

func TestEvaluateInvariantUnderReordering(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	m := newTestModel(t, 6, 0.8)
	observations := randomObservations(t, rng, 100, 2)
	shuffled := append([]Observation(nil), observations...)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	a := newTestEstimator(t, m, observations)
	b := newTestEstimator(t, m, shuffled)
	for i := 0; i < 100; i++ {
		query := randomPose(t, rng, 2.5)
		va, err := a.Evaluate(query)
		test.That(t, err, test.ShouldBeNil)
		vb, err := b.Evaluate(query)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, va, test.ShouldBeGreaterThanOrEqualTo, 0)
		test.That(t, vb, test.ShouldAlmostEqual, va, 1e-12*math.Max(1, va))
	}
}

func TestEvaluateStrategies(t *testing.T) {
	m := newTestModel(t, 10, 0.5)
	e := newTestEstimator(t, m, []Observation{
		{newTestPose(t, 0, 0, 0, identity), 1},
		{newTestPose(t, 0.5, 0, 0, identity), 3},
	})
	query := newTestPose(t, 0, 0, 0, identity)
	k0 := m.Evaluate(query, e.Collection().At(0).Pose)
	k1 := m.Evaluate(query, e.Collection().At(1).Pose)

	v, err := e.EvaluateWith(query, WeightedSum)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldAlmostEqual, 0.25*k0+0.75*k1, 1e-12)
	v, err = e.EvaluateWith(query, Sum)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldAlmostEqual, k0+k1, 1e-12)
	v, err = e.EvaluateWith(query, Max)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldEqual, k0)
	test.That(t, Max.String(), test.ShouldEqual, "max")
}

func TestEvaluateExcluding(t *testing.T) {
	m := newTestModel(t, 10, 0.5)
	e := newTestEstimator(t, m, []Observation{
		{newTestPose(t, 0, 0, 0, identity), 1},
		{newTestPose(t, 0.5, 0, 0, identity), 1},
		{newTestPose(t, 0, 0.5, 0, identity), 2},
	})
	query := e.Collection().At(0).Pose
	v, err := e.EvaluateExcluding(query, 0)
	test.That(t, err, test.ShouldBeNil)
	expected := (0.25*m.Evaluate(query, e.Collection().At(1).Pose) + 0.5*m.Evaluate(query, e.Collection().At(2).Pose)) / 0.75
	test.That(t, v, test.ShouldAlmostEqual, expected, 1e-12)

	_, err = e.EvaluateExcluding(query, 3)
	test.That(t, err, test.ShouldNotBeNil)

	single := newTestEstimator(t, m, []Observation{{query, 1}})
	v, err = single.EvaluateExcluding(query, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldEqual, 0.0)
}

func TestEvaluateErrors(t *testing.T) {
	m := newTestModel(t, 10, 0.5)
	_, err := NewEstimator(nil, nil)
	var confErr *ConfigurationError
	test.That(t, errors.As(err, &confErr), test.ShouldBeTrue)

	empty, err := NewEstimator(m, &Collection{})
	test.That(t, err, test.ShouldBeNil)
	query := spatialmath.NewZeroPose()
	_, err = empty.Evaluate(query)
	test.That(t, errors.Is(err, ErrEmptyModel), test.ShouldBeTrue)
	_, err = empty.BruteForceEvaluate(query)
	test.That(t, errors.Is(err, ErrEmptyModel), test.ShouldBeTrue)
	_, err = empty.EvaluateAll(context.Background(), []spatialmath.Pose{query})
	test.That(t, errors.Is(err, ErrEmptyModel), test.ShouldBeTrue)
	_, err = empty.NewSampler(rand.NewPCG(1, 2))
	test.That(t, errors.Is(err, ErrEmptyModel), test.ShouldBeTrue)

	e := newTestEstimator(t, m, []Observation{{query, 1}})
	_, err = e.Evaluate(spatialmath.Pose{})
	var valErr *ValidationError
	test.That(t, errors.As(err, &valErr), test.ShouldBeTrue)

	// A bad query does not disturb later ones.
	v, err := e.Evaluate(query)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, v, test.ShouldBeGreaterThan, 0)
}

func TestEvaluateAll(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	m := newTestModel(t, 5, 0.6)
	c, err := NewCollection(randomObservations(t, rng, 200, 2))
	test.That(t, err, test.ShouldBeNil)
	metrics := NewMetrics(prometheus.NewRegistry())
	e, err := NewEstimator(m, c, WithMetrics(metrics), WithLogger(logging.NewTestLogger(t)))
	test.That(t, err, test.ShouldBeNil)

	queries := make([]spatialmath.Pose, 257)
	for i := range queries {
		queries[i] = randomPose(t, rng, 2)
	}
	values, err := e.EvaluateAll(context.Background(), queries)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, values, test.ShouldHaveLength, len(queries))
	for i, q := range queries {
		v, err := e.Evaluate(q)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, values[i], test.ShouldEqual, v)
	}
	test.That(t, testutil.ToFloat64(metrics.Evaluations), test.ShouldEqual, float64(2*len(queries)))

	queries[100] = spatialmath.Pose{}
	_, err = e.EvaluateAll(context.Background(), queries)
	var valErr *ValidationError
	test.That(t, errors.As(err, &valErr), test.ShouldBeTrue)
	test.That(t, testutil.ToFloat64(metrics.EvaluationFailures), test.ShouldEqual, 1.0)
}
