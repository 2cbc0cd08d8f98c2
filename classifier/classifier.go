// Package classifier trains a multinomial logistic regression over kernel density features. Each
// class label owns a collection of observed poses, and the features of a pose are its kernel
// densities against every class.
package classifier

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/posekde/kernel"
	"go.viam.com/posekde/logging"
	"go.viam.com/posekde/spatialmath"
)

// ErrNotTrained is returned when scoring with a classifier that has never been trained.
var ErrNotTrained = errors.New("classifier has not been trained")

// Classifier scores poses against a set of labeled kernel densities. Train must not race with
// itself; scoring is safe for concurrent use and waits for a running Train.
type Classifier struct {
	model      *kernel.Model
	labels     []string
	estimators []*kernel.Estimator

	samples  []sample
	scaler   featureScaler
	features [][]float64

	logger  logging.Logger
	metrics *kernel.Metrics
	clock   clock.Clock

	mu sync.RWMutex
	// weights[k] holds one coefficient per class feature followed by the bias of class k.
	weights   [][]float64
	trained   bool
	converged bool
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the logger used for training progress.
func WithLogger(logger logging.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics that evaluation and training record into.
func WithMetrics(metrics *kernel.Metrics) Option {
	return func(c *Classifier) {
		c.metrics = metrics
	}
}

// WithClock sets the clock the training time budget is measured on.
func WithClock(clk clock.Clock) Option {
	return func(c *Classifier) {
		c.clock = clk
	}
}

// Prediction is the class distribution of a query.
type Prediction struct {
	Label         string
	Probabilities map[string]float64
}

// New builds one kernel collection per label and computes the training features. At least two
// labels are required, each with at least two observations of positive weight.
func New(model *kernel.Model, labeled map[string][]kernel.Observation, opts ...Option) (*Classifier, error) {
	if model == nil {
		return nil, &kernel.ConfigurationError{Field: "model", Reason: "a kernel model is required"}
	}
	if len(labeled) < 2 {
		return nil, &kernel.ConfigurationError{
			Field:  "labels",
			Reason: "at least two labeled collections are required",
		}
	}

	c := &Classifier{model: model, labels: lo.Keys(labeled)}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Global().Sublogger("classifier")
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	slices.Sort(c.labels)

	for class, label := range c.labels {
		col, err := kernel.NewCollection(labeled[label])
		if err != nil {
			return nil, errors.Wrapf(err, "label %q", label)
		}
		// Leave-one-out features of a class need a second observation carrying weight.
		if n := lo.CountBy(col.Observations(), func(o kernel.Observation) bool { return o.Weight > 0 }); n < 2 {
			return nil, &kernel.ConfigurationError{
				Field:  "labels",
				Reason: fmt.Sprintf("label %q has %d observations with positive weight, at least two are required", label, n),
			}
		}
		est, err := kernel.NewEstimator(model, col,
			kernel.WithLogger(c.logger), kernel.WithMetrics(c.metrics))
		if err != nil {
			return nil, err
		}
		c.estimators = append(c.estimators, est)
		for i := 0; i < col.Len(); i++ {
			c.samples = append(c.samples, sample{pose: col.At(i).Pose, class: class, index: i})
		}
	}

	raw, err := trainingFeatures(c.estimators, c.samples)
	if err != nil {
		return nil, err
	}
	c.scaler = newFeatureScaler(raw)
	c.features = make([][]float64, len(raw))
	for i, f := range raw {
		c.features[i] = c.scaler.transform(f)
	}
	c.weights = zeroWeights(len(c.labels))
	c.logger.Debugw("built classifier", "labels", c.labels, "samples", len(c.samples))
	return c, nil
}

// Labels returns the class labels in sorted order.
func (c *Classifier) Labels() []string {
	return slices.Clone(c.labels)
}

// Weights returns a copy of the fitted coefficients, one row per label in Labels order. Each row
// holds a coefficient per class feature followed by a bias.
func (c *Classifier) Weights() [][]float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([][]float64, len(c.weights))
	for k, row := range c.weights {
		out[k] = slices.Clone(row)
	}
	return out
}

// Converged reports whether the last training run met its convergence tolerance.
func (c *Classifier) Converged() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.converged
}

// Classify returns the highest scoring label for query and its decision margin, the difference
// between its linear score and the runner up's. For two labels the margin is the log odds.
func (c *Classifier) Classify(query spatialmath.Pose) (string, float64, error) {
	scores, err := c.scores(query)
	if err != nil {
		return "", 0, err
	}
	best, second := 0, 1
	if scores[second] > scores[best] {
		best, second = second, best
	}
	for k := 2; k < len(scores); k++ {
		switch {
		case scores[k] > scores[best]:
			best, second = k, best
		case scores[k] > scores[second]:
			second = k
		}
	}
	return c.labels[best], scores[best] - scores[second], nil
}

// Predict returns the softmax probability of every label for query.
func (c *Classifier) Predict(query spatialmath.Pose) (Prediction, error) {
	scores, err := c.scores(query)
	if err != nil {
		return Prediction{}, err
	}
	probs := softmax(scores)
	out := Prediction{Probabilities: make(map[string]float64, len(probs))}
	best := 0
	for k, p := range probs {
		out.Probabilities[c.labels[k]] = p
		if p > probs[best] {
			best = k
		}
	}
	out.Label = c.labels[best]
	return out, nil
}

func (c *Classifier) scores(query spatialmath.Pose) ([]float64, error) {
	raw, err := queryFeatures(c.estimators, query)
	if err != nil {
		return nil, err
	}
	x := c.scaler.transform(raw)

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.trained {
		return nil, ErrNotTrained
	}
	return linearScores(c.weights, x), nil
}

func zeroWeights(classes int) [][]float64 {
	w := make([][]float64, classes)
	for k := range w {
		w[k] = make([]float64, classes+1)
	}
	return w
}

func linearScores(weights [][]float64, x []float64) []float64 {
	scores := make([]float64, len(weights))
	for k, row := range weights {
		for d, v := range x {
			scores[k] += row[d] * v
		}
	}
	return scores
}

// softmax is computed relative to the largest score so that no exponential overflows.
func softmax(scores []float64) []float64 {
	top := slices.Max(scores)
	out := make([]float64, len(scores))
	sum := 0.
	for k, s := range scores {
		out[k] = math.Exp(s - top)
		sum += out[k]
	}
	for k := range out {
		out[k] /= sum
	}
	return out
}
