package kernel

import (
	"math"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// TranslationalKernel names the shape of the translational factor of the product kernel.
type TranslationalKernel string

// The supported translational kernel families.
const (
	// Gaussian is a normalized isotropic Gaussian with standard deviation sigma.
	Gaussian TranslationalKernel = "gaussian"
	// Box is a uniform density over the ball of radius sigma.
	Box TranslationalKernel = "box"
)

const (
	defaultTruncationTolerance  = 1e-6
	defaultLearningRate         = 0.5
	defaultRegularization       = 1e-3
	defaultMaxIterations        = 1000
	defaultConvergenceTolerance = 1e-6
)

// Config holds the kernel bandwidths and the training options. Optional fields are pointers:
// nil means absent and is replaced by a default, while a present value must be valid.
type Config struct {
	// Concentration of the rotational kernel (kappa).
	RotationalBandwidth float64 `json:"rotational_bandwidth"`
	// Spread of the translational kernel (sigma), in the same units as positions.
	TranslationalBandwidth float64             `json:"translational_bandwidth"`
	TranslationalKernel    TranslationalKernel `json:"translational_kernel,omitempty"`
	// Relative kernel value below which a neighbor is dropped from a sum.
	TruncationTolerance *float64 `json:"truncation_tolerance,omitempty"`

	LearningRate         *float64 `json:"learning_rate,omitempty"`
	Regularization       *float64 `json:"regularization,omitempty"`
	MaxIterations        *int     `json:"max_iterations,omitempty"`
	ConvergenceTolerance *float64 `json:"convergence_tolerance,omitempty"`
	// Zero means no wall-clock limit.
	TimeBudget time.Duration `json:"time_budget,omitempty"`

	RandomSeed *uint64 `json:"random_seed,omitempty"`
}

// TrainingConfig is the fully defaulted set of options used to fit a classifier.
type TrainingConfig struct {
	LearningRate         float64
	Regularization       float64
	MaxIterations        int
	ConvergenceTolerance float64
	// Zero means no wall-clock limit.
	TimeBudget time.Duration
}

// ConfigFromAttributes decodes a configuration from a generic attribute map such as one read
// from a JSON file. Unknown keys are rejected.
func ConfigFromAttributes(attributes map[string]interface{}) (Config, error) {
	var conf Config
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "json",
		Result:     &conf,
		Metadata:   &md,
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return Config{}, errors.Wrap(err, "cannot decode kernel configuration")
	}
	for _, key := range md.Unused {
		err = multierr.Append(err, newConfigurationError(key, "unknown option"))
	}
	if err != nil {
		return Config{}, err
	}
	return conf, conf.Validate()
}

// Validate returns every problem with the configuration combined into one error.
func (c Config) Validate() error {
	var err error
	if !positive(c.RotationalBandwidth) {
		err = multierr.Append(err, newConfigurationError("rotational_bandwidth",
			"must be a finite number greater than zero, got %v", c.RotationalBandwidth))
	}
	if !positive(c.TranslationalBandwidth) {
		err = multierr.Append(err, newConfigurationError("translational_bandwidth",
			"must be a finite number greater than zero, got %v", c.TranslationalBandwidth))
	}
	switch c.TranslationalKernel {
	case "", Gaussian, Box:
	default:
		err = multierr.Append(err, newConfigurationError("translational_kernel",
			"unknown kernel family %q, must be %q or %q", c.TranslationalKernel, Gaussian, Box))
	}
	if c.TruncationTolerance != nil && !(*c.TruncationTolerance > 0 && *c.TruncationTolerance < 1) {
		err = multierr.Append(err, newConfigurationError("truncation_tolerance",
			"must be in (0, 1), got %v", *c.TruncationTolerance))
	}
	return multierr.Append(err, c.validateTraining())
}

func (c Config) validateTraining() error {
	var err error
	if c.LearningRate != nil && !positive(*c.LearningRate) {
		err = multierr.Append(err, newConfigurationError("learning_rate",
			"must be greater than zero, got %v", *c.LearningRate))
	}
	if c.Regularization != nil && !(*c.Regularization >= 0 && !math.IsInf(*c.Regularization, 1)) {
		err = multierr.Append(err, newConfigurationError("regularization",
			"must be a finite number no less than zero, got %v", *c.Regularization))
	}
	if c.MaxIterations != nil && *c.MaxIterations <= 0 {
		err = multierr.Append(err, newConfigurationError("max_iterations",
			"must be greater than zero, got %d", *c.MaxIterations))
	}
	if c.ConvergenceTolerance != nil && !positive(*c.ConvergenceTolerance) {
		err = multierr.Append(err, newConfigurationError("convergence_tolerance",
			"must be greater than zero, got %v", *c.ConvergenceTolerance))
	}
	if c.TimeBudget < 0 {
		err = multierr.Append(err, newConfigurationError("time_budget",
			"must not be negative, got %v", c.TimeBudget))
	}
	return err
}

// Training returns the training options with defaults filled in for absent values.
func (c Config) Training() (TrainingConfig, error) {
	if err := c.validateTraining(); err != nil {
		return TrainingConfig{}, err
	}
	return TrainingConfig{
		LearningRate:         valueOr(c.LearningRate, defaultLearningRate),
		Regularization:       valueOr(c.Regularization, defaultRegularization),
		MaxIterations:        valueOr(c.MaxIterations, defaultMaxIterations),
		ConvergenceTolerance: valueOr(c.ConvergenceTolerance, defaultConvergenceTolerance),
		TimeBudget:           c.TimeBudget,
	}, nil
}

// Validate checks a training configuration built by hand rather than through Config.Training.
func (tc TrainingConfig) Validate() error {
	var err error
	if !positive(tc.LearningRate) {
		err = multierr.Append(err, newConfigurationError("learning_rate",
			"must be greater than zero, got %v", tc.LearningRate))
	}
	if !(tc.Regularization >= 0) || math.IsInf(tc.Regularization, 1) {
		err = multierr.Append(err, newConfigurationError("regularization",
			"must be a finite number no less than zero, got %v", tc.Regularization))
	}
	if tc.MaxIterations <= 0 {
		err = multierr.Append(err, newConfigurationError("max_iterations",
			"must be greater than zero, got %d", tc.MaxIterations))
	}
	if !positive(tc.ConvergenceTolerance) {
		err = multierr.Append(err, newConfigurationError("convergence_tolerance",
			"must be greater than zero, got %v", tc.ConvergenceTolerance))
	}
	if tc.TimeBudget < 0 {
		err = multierr.Append(err, newConfigurationError("time_budget",
			"must not be negative, got %v", tc.TimeBudget))
	}
	return err
}

// valueOr returns *v, or def when the option is absent.
func valueOr[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1)
}
