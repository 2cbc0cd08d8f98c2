package kernel

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"go.viam.com/posekde/logging"
	"go.viam.com/posekde/spatialmath"
	"go.viam.com/posekde/utils"
)

// Strategy selects how the kernel values of the neighbors of a query are combined.
type Strategy int

const (
	// WeightedSum is the kernel density: the weighted sum of kernel values divided by the total weight.
	WeightedSum Strategy = iota
	// Sum adds the kernel values, ignoring weights.
	Sum
	// Max returns the largest kernel value, ignoring weights.
	Max
)

func (s Strategy) String() string {
	switch s {
	case WeightedSum:
		return "weighted_sum"
	case Sum:
		return "sum"
	case Max:
		return "max"
	}
	return "unknown"
}

// Estimator evaluates and samples the kernel density of a collection. It holds no mutable state;
// all methods may be called concurrently.
type Estimator struct {
	model      *Model
	collection *Collection
	logger     logging.Logger
	metrics    *Metrics
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithLogger sets the logger used by the estimator.
func WithLogger(logger logging.Logger) Option {
	return func(e *Estimator) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics the estimator records into.
func WithMetrics(metrics *Metrics) Option {
	return func(e *Estimator) {
		e.metrics = metrics
	}
}

// NewEstimator binds a model to a collection. An empty collection is accepted; evaluating or
// sampling it fails with ErrEmptyModel.
func NewEstimator(model *Model, collection *Collection, opts ...Option) (*Estimator, error) {
	if model == nil {
		return nil, newConfigurationError("model", "a kernel model is required")
	}
	if collection == nil {
		collection = &Collection{}
	}
	e := &Estimator{model: model, collection: collection}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Global().Sublogger("kernel")
	}
	return e, nil
}

// Model returns the kernel model.
func (e *Estimator) Model() *Model {
	return e.model
}

// Collection returns the observations the density is built on.
func (e *Estimator) Collection() *Collection {
	return e.collection
}

// Evaluate returns the kernel density at query. Only observations within the model's support
// radius of the query contribute.
func (e *Estimator) Evaluate(query spatialmath.Pose) (float64, error) {
	return e.EvaluateWith(query, WeightedSum)
}

// EvaluateWith combines the kernel values of the neighbors of query according to strategy.
func (e *Estimator) EvaluateWith(query spatialmath.Pose, strategy Strategy) (float64, error) {
	if err := e.checkQuery(query); err != nil {
		return 0, err
	}
	neighbors := e.collection.Neighbors(query, e.model.SupportRadius())
	value := 0.
	for _, n := range neighbors {
		k := e.model.Evaluate(query, n.Pose)
		switch strategy {
		case Max:
			value = math.Max(value, k)
		case Sum:
			value += k
		default:
			value += n.Weight * k
		}
	}
	e.metrics.evaluated(len(neighbors))
	if strategy == WeightedSum {
		value /= e.collection.TotalWeight()
	}
	return value, nil
}

// EvaluateExcluding is Evaluate computed as if the observation at index were absent from the
// collection, with the remaining weights renormalized. It is zero when that observation carries
// all of the weight.
func (e *Estimator) EvaluateExcluding(query spatialmath.Pose, index int) (float64, error) {
	if err := e.checkQuery(query); err != nil {
		return 0, err
	}
	if index < 0 || index >= e.collection.Len() {
		return 0, errors.Errorf("observation index %d out of range [0, %d)", index, e.collection.Len())
	}
	neighbors := e.collection.Neighbors(query, e.model.SupportRadius())
	value := 0.
	for _, n := range neighbors {
		if n.Index == index {
			continue
		}
		value += n.Weight * e.model.Evaluate(query, n.Pose)
	}
	e.metrics.evaluated(len(neighbors))
	remaining := e.collection.TotalWeight() - e.collection.At(index).Weight
	if remaining <= 0 {
		return 0, nil
	}
	return value / remaining, nil
}

// BruteForceEvaluate is Evaluate without the neighbor truncation: every observation contributes.
func (e *Estimator) BruteForceEvaluate(query spatialmath.Pose) (float64, error) {
	if err := e.checkQuery(query); err != nil {
		return 0, err
	}
	value := 0.
	for _, o := range e.collection.observations {
		value += o.Weight * e.model.Evaluate(query, o.Pose)
	}
	e.metrics.evaluated(e.collection.Len())
	return value / e.collection.TotalWeight(), nil
}

// EvaluateAll evaluates the density at every query in parallel. The result at index i is the
// density at queries[i]. The first invalid query fails the whole batch.
func (e *Estimator) EvaluateAll(ctx context.Context, queries []spatialmath.Pose) ([]float64, error) {
	if e.collection.Len() == 0 {
		e.metrics.evaluationFailed()
		return nil, ErrEmptyModel
	}
	out := make([]float64, len(queries))
	err := utils.GroupWorkParallel(ctx, len(queries), func(groupNum, groupSize, from, to int) utils.MemberWorkFunc {
		return func(memberNum, workNum int) error {
			v, err := e.Evaluate(queries[workNum])
			if err != nil {
				return errors.Wrapf(err, "query %d", workNum)
			}
			out[workNum] = v
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debugw("evaluated density", "queries", len(queries), "observations", e.collection.Len())
	return out, nil
}

func (e *Estimator) checkQuery(query spatialmath.Pose) error {
	if e.collection.Len() == 0 {
		e.metrics.evaluationFailed()
		return ErrEmptyModel
	}
	if err := query.Validate(); err != nil {
		e.metrics.evaluationFailed()
		return err
	}
	return nil
}
