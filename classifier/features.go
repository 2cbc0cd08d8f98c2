package classifier

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/posekde/kernel"
	"go.viam.com/posekde/spatialmath"
	"go.viam.com/posekde/utils"
)

// sample is one training observation: its pose, its class, and its index within the collection of
// that class.
type sample struct {
	pose  spatialmath.Pose
	class int
	index int
}

// trainingFeatures returns, for every sample, its kernel density against each class. A sample is
// left out of the density of its own class.
func trainingFeatures(estimators []*kernel.Estimator, samples []sample) ([][]float64, error) {
	features := make([][]float64, len(samples))
	for i := range features {
		features[i] = make([]float64, len(estimators))
	}

	var g errgroup.Group
	g.SetLimit(utils.ParallelFactor)
	for class, est := range estimators {
		g.Go(func() error {
			for i, s := range samples {
				var v float64
				var err error
				if s.class == class {
					v, err = est.EvaluateExcluding(s.pose, s.index)
				} else {
					v, err = est.Evaluate(s.pose)
				}
				if err != nil {
					return errors.Wrapf(err, "feature %d of sample %d", class, i)
				}
				features[i][class] = v
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return features, nil
}

// queryFeatures returns the kernel density of query against each class.
func queryFeatures(estimators []*kernel.Estimator, query spatialmath.Pose) ([]float64, error) {
	out := make([]float64, len(estimators))
	for class, est := range estimators {
		v, err := est.Evaluate(query)
		if err != nil {
			return nil, err
		}
		out[class] = v
	}
	return out, nil
}

// featureScaler standardizes features to zero mean and unit deviation using statistics of the
// training set.
type featureScaler struct {
	mean   []float64
	stddev []float64
}

func newFeatureScaler(features [][]float64) featureScaler {
	dims := len(features[0])
	fs := featureScaler{mean: make([]float64, dims), stddev: make([]float64, dims)}
	for _, f := range features {
		for d, v := range f {
			fs.mean[d] += v
		}
	}
	for d := range fs.mean {
		fs.mean[d] /= float64(len(features))
	}
	for _, f := range features {
		for d, v := range f {
			diff := v - fs.mean[d]
			fs.stddev[d] += diff * diff
		}
	}
	for d := range fs.stddev {
		fs.stddev[d] = math.Sqrt(fs.stddev[d] / float64(len(features)))
		// Constant features are only centered.
		if fs.stddev[d] < 1e-300 {
			fs.stddev[d] = 1
		}
	}
	return fs
}

// transform returns the standardized features followed by a constant 1 for the bias.
func (fs featureScaler) transform(features []float64) []float64 {
	out := make([]float64, len(features)+1)
	for d, v := range features {
		out[d] = (v - fs.mean[d]) / fs.stddev[d]
	}
	out[len(features)] = 1
	return out
}
