package kernel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for density estimation and classifier training. A nil
// *Metrics records nothing.
type Metrics struct {
	// Evaluation metrics
	Evaluations        prometheus.Counter
	EvaluationFailures prometheus.Counter
	NeighborsVisited   prometheus.Histogram

	// Sampling metrics
	SamplesDrawn      prometheus.Counter
	RotationRejection prometheus.Counter

	// Training metrics
	TrainingIterations     prometheus.Counter
	TrainingNonConvergence prometheus.Counter
	TrainingDuration       prometheus.Histogram
}

// NewMetrics creates the metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Evaluations: factory.NewCounter(prometheus.CounterOpts{
			Name: "posekde_evaluations_total",
			Help: "Total number of density evaluations",
		}),
		EvaluationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "posekde_evaluation_failures_total",
			Help: "Total number of density evaluations rejected because of an invalid query or empty model",
		}),
		NeighborsVisited: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "posekde_evaluation_neighbors",
			Help:    "Number of observations inside the support radius per evaluation",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		SamplesDrawn: factory.NewCounter(prometheus.CounterOpts{
			Name: "posekde_samples_total",
			Help: "Total number of poses drawn from densities",
		}),
		RotationRejection: factory.NewCounter(prometheus.CounterOpts{
			Name: "posekde_rotation_rejections_total",
			Help: "Total number of rejected proposals in the von Mises-Fisher rotation sampler",
		}),
		TrainingIterations: factory.NewCounter(prometheus.CounterOpts{
			Name: "posekde_training_iterations_total",
			Help: "Total number of gradient descent iterations run by classifiers",
		}),
		TrainingNonConvergence: factory.NewCounter(prometheus.CounterOpts{
			Name: "posekde_training_nonconvergence_total",
			Help: "Total number of classifier trainings that stopped before converging",
		}),
		TrainingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "posekde_training_duration_seconds",
			Help:    "Classifier training duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
	}
}

func (m *Metrics) evaluated(neighbors int) {
	if m == nil {
		return
	}
	m.Evaluations.Inc()
	m.NeighborsVisited.Observe(float64(neighbors))
}

func (m *Metrics) evaluationFailed() {
	if m == nil {
		return
	}
	m.EvaluationFailures.Inc()
}

func (m *Metrics) sampled(rejections int) {
	if m == nil {
		return
	}
	m.SamplesDrawn.Inc()
	m.RotationRejection.Add(float64(rejections))
}

// ObserveTraining records the outcome of one classifier training run.
func (m *Metrics) ObserveTraining(iterations int, seconds float64, converged bool) {
	if m == nil {
		return
	}
	m.TrainingIterations.Add(float64(iterations))
	m.TrainingDuration.Observe(seconds)
	if !converged {
		m.TrainingNonConvergence.Inc()
	}
}
