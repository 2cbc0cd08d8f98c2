package kernel

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/posekde/spatialmath"
)

// ErrEmptyModel is returned when evaluating or sampling a collection which holds no observations.
var ErrEmptyModel = errors.New("kernel collection has no observations")

// ValidationError is returned for malformed poses.
type ValidationError = spatialmath.ValidationError

// ConfigurationError describes an invalid bandwidth, weight or training option.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration for %q: %s", e.Field, e.Reason)
}

func newConfigurationError(field, format string, args ...interface{}) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NonConvergenceError is returned when training stops on its iteration cap or time budget before
// the gradient falls below the convergence tolerance. The best weights found are still installed.
type NonConvergenceError struct {
	Iterations   int
	GradientNorm float64
	Tolerance    float64
	Elapsed      time.Duration
	OutOfTime    bool
}

func (e *NonConvergenceError) Error() string {
	reason := "iteration cap"
	if e.OutOfTime {
		reason = "time budget"
	}
	return fmt.Sprintf("training stopped by %s after %d iterations (%v): gradient norm %g > tolerance %g",
		reason, e.Iterations, e.Elapsed, e.GradientNorm, e.Tolerance)
}
