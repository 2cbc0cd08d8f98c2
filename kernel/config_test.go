package kernel

import (
	"errors"
	"testing"
	"time"

	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.viam.com/test"
)

func TestConfigFromAttributes(t *testing.T) {
	conf, err := ConfigFromAttributes(map[string]interface{}{
		"rotational_bandwidth":    20.0,
		"translational_bandwidth": 0.5,
		"translational_kernel":    "box",
		"max_iterations":          50.0,
		"regularization":          0.0,
		"time_budget":             "2s",
		"random_seed":             7.0,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.RotationalBandwidth, test.ShouldEqual, 20.0)
	test.That(t, conf.TranslationalBandwidth, test.ShouldEqual, 0.5)
	test.That(t, conf.TranslationalKernel, test.ShouldEqual, Box)
	test.That(t, conf.MaxIterations, test.ShouldNotBeNil)
	test.That(t, *conf.MaxIterations, test.ShouldEqual, 50)
	test.That(t, conf.TruncationTolerance, test.ShouldBeNil)
	test.That(t, conf.LearningRate, test.ShouldBeNil)
	test.That(t, conf.ConvergenceTolerance, test.ShouldBeNil)
	test.That(t, conf.TimeBudget, test.ShouldEqual, 2*time.Second)
	test.That(t, conf.Regularization, test.ShouldNotBeNil)
	test.That(t, *conf.Regularization, test.ShouldEqual, 0.0)
	test.That(t, conf.RandomSeed, test.ShouldNotBeNil)
	test.That(t, *conf.RandomSeed, test.ShouldEqual, uint64(7))

	tc, err := conf.Training()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tc, test.ShouldResemble, TrainingConfig{
		LearningRate:         defaultLearningRate,
		Regularization:       0,
		MaxIterations:        50,
		ConvergenceTolerance: defaultConvergenceTolerance,
		TimeBudget:           2 * time.Second,
	})
}

func TestConfigFromAttributesUnknownKey(t *testing.T) {
	_, err := ConfigFromAttributes(map[string]interface{}{
		"rotational_bandwidth":    20.0,
		"translational_bandwidth": 0.5,
		"bandwidth":               1.0,
	})
	var confErr *ConfigurationError
	test.That(t, errors.As(err, &confErr), test.ShouldBeTrue)
	test.That(t, confErr.Field, test.ShouldEqual, "bandwidth")
}

func TestConfigValidate(t *testing.T) {
	test.That(t, Config{RotationalBandwidth: 1, TranslationalBandwidth: 1}.Validate(), test.ShouldBeNil)

	err := Config{
		RotationalBandwidth:    0,
		TranslationalBandwidth: -1,
		TranslationalKernel:    "triangle",
		TruncationTolerance:    lo.ToPtr(1.0),
		LearningRate:           lo.ToPtr(-1.0),
		Regularization:         lo.ToPtr(-0.1),
		MaxIterations:          lo.ToPtr(-5),
		ConvergenceTolerance:   lo.ToPtr(-1.0),
		TimeBudget:             -time.Second,
	}.Validate()
	test.That(t, err, test.ShouldNotBeNil)

	fields := map[string]bool{}
	for _, e := range multierr.Errors(err) {
		var confErr *ConfigurationError
		test.That(t, errors.As(e, &confErr), test.ShouldBeTrue)
		fields[confErr.Field] = true
	}
	test.That(t, fields, test.ShouldResemble, map[string]bool{
		"rotational_bandwidth":    true,
		"translational_bandwidth": true,
		"translational_kernel":    true,
		"truncation_tolerance":    true,
		"learning_rate":           true,
		"regularization":          true,
		"max_iterations":          true,
		"convergence_tolerance":   true,
		"time_budget":             true,
	})
}

func TestTrainingDefaults(t *testing.T) {
	tc, err := Config{RotationalBandwidth: 1, TranslationalBandwidth: 1}.Training()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tc.LearningRate, test.ShouldEqual, defaultLearningRate)
	test.That(t, tc.Regularization, test.ShouldEqual, defaultRegularization)
	test.That(t, tc.MaxIterations, test.ShouldEqual, defaultMaxIterations)
	test.That(t, tc.ConvergenceTolerance, test.ShouldEqual, defaultConvergenceTolerance)
	test.That(t, tc.TimeBudget, test.ShouldEqual, time.Duration(0))
	test.That(t, tc.Validate(), test.ShouldBeNil)

	test.That(t, TrainingConfig{}.Validate(), test.ShouldNotBeNil)
}

func TestConfigRejectsPresentZeros(t *testing.T) {
	for _, field := range []string{
		"truncation_tolerance",
		"learning_rate",
		"max_iterations",
		"convergence_tolerance",
	} {
		t.Run(field, func(t *testing.T) {
			_, err := ConfigFromAttributes(map[string]interface{}{
				"rotational_bandwidth":    1.0,
				"translational_bandwidth": 1.0,
				field:                     0.0,
			})
			test.That(t, err, test.ShouldNotBeNil)
			errs := multierr.Errors(err)
			test.That(t, errs, test.ShouldHaveLength, 1)
			var confErr *ConfigurationError
			test.That(t, errors.As(errs[0], &confErr), test.ShouldBeTrue)
			test.That(t, confErr.Field, test.ShouldEqual, field)
		})
	}

	_, err := NewModel(Config{RotationalBandwidth: 1, TranslationalBandwidth: 1, TruncationTolerance: lo.ToPtr(0.0)})
	var confErr *ConfigurationError
	test.That(t, errors.As(err, &confErr), test.ShouldBeTrue)

	_, err = Config{RotationalBandwidth: 1, TranslationalBandwidth: 1, MaxIterations: lo.ToPtr(0)}.Training()
	test.That(t, errors.As(err, &confErr), test.ShouldBeTrue)
}

func TestConfigPresentValuesOverrideDefaults(t *testing.T) {
	tc, err := Config{
		RotationalBandwidth:    1,
		TranslationalBandwidth: 1,
		LearningRate:           lo.ToPtr(0.1),
		MaxIterations:          lo.ToPtr(7),
		ConvergenceTolerance:   lo.ToPtr(1e-3),
	}.Training()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tc.LearningRate, test.ShouldEqual, 0.1)
	test.That(t, tc.MaxIterations, test.ShouldEqual, 7)
	test.That(t, tc.ConvergenceTolerance, test.ShouldEqual, 1e-3)

	m, err := NewModel(Config{RotationalBandwidth: 1, TranslationalBandwidth: 1, TruncationTolerance: lo.ToPtr(1e-3)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.TruncationTolerance(), test.ShouldEqual, 1e-3)
}
