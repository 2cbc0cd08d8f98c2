package classifier

import (
	"math"
	"time"

	"go.viam.com/posekde/kernel"
)

// TrainResult describes a finished training run.
type TrainResult struct {
	Iterations int
	// Loss is the regularized mean cross entropy of the installed weights.
	Loss float64
	// GradientNorm is the largest absolute gradient component at the last iteration.
	GradientNorm float64
	Converged    bool
	Elapsed      time.Duration
}

// Train fits the weights by full batch gradient descent on the mean cross entropy plus an L2
// penalty on the non-bias coefficients, starting from zero. It stops when the largest gradient
// component is at most cfg.ConvergenceTolerance.
//
// If the iteration cap or time budget runs out first, the weights with the lowest loss seen are
// installed, a warning is logged and a *kernel.NonConvergenceError is returned alongside the
// result. The classifier can still be used.
func (c *Classifier) Train(cfg kernel.TrainingConfig) (TrainResult, error) {
	if err := cfg.Validate(); err != nil {
		return TrainResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.clock.Now()
	classes := len(c.labels)
	weights := zeroWeights(classes)
	grad := zeroWeights(classes)

	best := zeroWeights(classes)
	bestLoss := math.Inf(1)
	var (
		result    TrainResult
		outOfTime bool
	)
	for {
		loss, gradNorm := c.gradient(weights, cfg.Regularization, grad)
		if loss < bestLoss {
			bestLoss = loss
			copyWeights(best, weights)
		}
		result.GradientNorm = gradNorm
		if gradNorm <= cfg.ConvergenceTolerance {
			result.Converged = true
			copyWeights(best, weights)
			bestLoss = loss
			break
		}
		if result.Iterations >= cfg.MaxIterations {
			break
		}
		if cfg.TimeBudget > 0 && c.clock.Now().Sub(start) >= cfg.TimeBudget {
			outOfTime = true
			break
		}

		for k := range weights {
			for d := range weights[k] {
				weights[k][d] -= cfg.LearningRate * grad[k][d]
			}
		}
		result.Iterations++
		if result.Iterations%100 == 0 {
			c.logger.Debugw("training", "iteration", result.Iterations, "loss", loss, "gradient_norm", gradNorm)
		}
	}

	c.weights = best
	c.trained = true
	c.converged = result.Converged
	result.Loss = bestLoss
	result.Elapsed = c.clock.Now().Sub(start)
	c.metrics.ObserveTraining(result.Iterations, result.Elapsed.Seconds(), result.Converged)

	if result.Converged {
		c.logger.Infow("training converged", "iterations", result.Iterations, "loss", result.Loss)
		return result, nil
	}
	c.logger.Warnw("training did not converge, using best weights found",
		"iterations", result.Iterations, "loss", result.Loss, "gradient_norm", result.GradientNorm)
	return result, &kernel.NonConvergenceError{
		Iterations:   result.Iterations,
		GradientNorm: result.GradientNorm,
		Tolerance:    cfg.ConvergenceTolerance,
		Elapsed:      result.Elapsed,
		OutOfTime:    outOfTime,
	}
}

// gradient writes the gradient of the objective at weights into grad and returns the objective
// and the largest absolute gradient component.
func (c *Classifier) gradient(weights [][]float64, lambda float64, grad [][]float64) (float64, float64) {
	n := float64(len(c.features))
	bias := len(c.labels)
	for k := range grad {
		for d := range grad[k] {
			grad[k][d] = 0
			if d != bias {
				grad[k][d] = lambda * weights[k][d]
			}
		}
	}

	loss := 0.
	for i, x := range c.features {
		scores := linearScores(weights, x)
		probs := softmax(scores)
		y := c.samples[i].class
		loss -= math.Log(math.Max(probs[y], math.SmallestNonzeroFloat64)) / n
		for k := range grad {
			residual := probs[k]
			if k == y {
				residual--
			}
			for d, v := range x {
				grad[k][d] += residual * v / n
			}
		}
	}
	for k := range weights {
		for d := 0; d < bias; d++ {
			loss += lambda / 2 * weights[k][d] * weights[k][d]
		}
	}

	norm := 0.
	for _, row := range grad {
		for _, g := range row {
			norm = math.Max(norm, math.Abs(g))
		}
	}
	return loss, norm
}

func copyWeights(dst, src [][]float64) {
	for k := range src {
		copy(dst[k], src[k])
	}
}
