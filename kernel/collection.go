package kernel

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/posekde/pointcloud"
	"go.viam.com/posekde/spatialmath"
)

// Observation is a pose with a non-negative weight.
type Observation struct {
	Pose   spatialmath.Pose
	Weight float64
}

// Neighbor is an observation returned by a spatial query on a Collection.
type Neighbor struct {
	Observation
	// Index is the position of the observation in the collection.
	Index int
	// Distance is the translational distance to the query.
	Distance float64
}

// Collection is an immutable weighted set of poses with a KD tree over their positions. Weights
// are normalized to sum to one. The zero value is an empty collection: every query on it
// returns nothing and estimators built on it fail with ErrEmptyModel.
type Collection struct {
	observations []Observation
	index        *pointcloud.KDTree
	// Sum of the weights as given, before normalization.
	mass float64
}

// NewCollection validates the observations and builds a collection over them. The input slice
// is copied.
func NewCollection(observations []Observation) (*Collection, error) {
	if len(observations) == 0 {
		return nil, newConfigurationError("observations", "at least one observation is required")
	}
	mass := 0.
	for i, o := range observations {
		if math.IsNaN(o.Weight) || o.Weight < 0 || math.IsInf(o.Weight, 1) {
			return nil, newConfigurationError("weight", "observation %d has invalid weight %v", i, o.Weight)
		}
		if err := o.Pose.Validate(); err != nil {
			return nil, errors.Wrapf(err, "observation %d", i)
		}
		mass += o.Weight
	}
	if !(mass > 0) || math.IsInf(mass, 1) {
		return nil, newConfigurationError("weight", "total weight must be finite and greater than zero, got %v", mass)
	}

	c := &Collection{observations: make([]Observation, len(observations)), mass: mass}
	points := make([]r3.Vector, len(observations))
	for i, o := range observations {
		c.observations[i] = Observation{Pose: o.Pose, Weight: o.Weight / mass}
		points[i] = o.Pose.Point()
	}
	c.index = pointcloud.NewKDTree(points)
	return c, nil
}

// Len returns the number of observations.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.observations)
}

// At returns the i-th observation with its normalized weight.
func (c *Collection) At(i int) Observation {
	return c.observations[i]
}

// Observations returns a copy of the observations with their normalized weights.
func (c *Collection) Observations() []Observation {
	if c == nil {
		return nil
	}
	return append([]Observation(nil), c.observations...)
}

// TotalWeight returns the sum of the normalized weights: 1, or 0 for an empty collection.
func (c *Collection) TotalWeight() float64 {
	if c.Len() == 0 {
		return 0
	}
	return 1
}

// Index returns the KD tree over the observation positions. IDs in its results are observation
// indices.
func (c *Collection) Index() *pointcloud.KDTree {
	if c == nil || c.index == nil {
		return pointcloud.NewKDTree(nil)
	}
	return c.index
}

// Neighbors returns every observation whose position lies within radius of the query position,
// in no particular order. Orientation plays no part in the query.
func (c *Collection) Neighbors(query spatialmath.Pose, radius float64) []Neighbor {
	if c.Len() == 0 {
		return nil
	}
	found := c.index.RadiusNearestNeighbors(query.Point(), radius)
	out := make([]Neighbor, 0, len(found))
	for _, n := range found {
		out = append(out, Neighbor{Observation: c.observations[n.ID], Index: n.ID, Distance: n.Distance})
	}
	return out
}

// Moments summarizes the spread of a collection.
type Moments struct {
	// Mean has the weighted mean position and the normalized weighted sum of the
	// sign-aligned orientations.
	Mean spatialmath.Pose
	// TranslationalDeviation is the weighted root mean square distance to the mean position.
	TranslationalDeviation float64
	// RotationalDeviation is the weighted root mean square geodesic angle to the mean orientation.
	RotationalDeviation float64
}

// Moments returns the weighted mean pose and deviations of the collection.
func (c *Collection) Moments() (Moments, error) {
	if c.Len() == 0 {
		return Moments{}, ErrEmptyModel
	}

	// Align every orientation with the heaviest one so that q and -q do not cancel.
	ref := c.observations[0]
	for _, o := range c.observations[1:] {
		if o.Weight > ref.Weight {
			ref = o
		}
	}
	var center r3.Vector
	var sum quat.Number
	for _, o := range c.observations {
		center = center.Add(o.Pose.Point().Mul(o.Weight))
		q := spatialmath.NearestRepresentative(ref.Pose.Orientation(), o.Pose.Orientation())
		sum = quat.Add(sum, quat.Scale(o.Weight, q))
	}
	mean, err := spatialmath.NewPose(center, spatialmath.Normalize(sum))
	if err != nil {
		return Moments{}, err
	}

	var transVar, rotVar float64
	for _, o := range c.observations {
		d := o.Pose.Point().Distance(center)
		theta := spatialmath.GeodesicAngle(mean.Orientation(), o.Pose.Orientation())
		transVar += o.Weight * d * d
		rotVar += o.Weight * theta * theta
	}
	return Moments{
		Mean:                   mean,
		TranslationalDeviation: math.Sqrt(transVar),
		RotationalDeviation:    math.Sqrt(rotVar),
	}, nil
}

// Transform returns a new collection with every observation moved by the rigid transform t.
func (c *Collection) Transform(t spatialmath.Pose) (*Collection, error) {
	if c.Len() == 0 {
		return nil, ErrEmptyModel
	}
	moved := make([]Observation, len(c.observations))
	for i, o := range c.observations {
		moved[i] = Observation{Pose: spatialmath.Compose(t, o.Pose), Weight: o.Weight}
	}
	return NewCollection(moved)
}

// Union returns a new collection of the observations of both c and other. Each observation keeps
// the weight it was given at construction, so the result is the collection that would have been
// built from the concatenated inputs.
func (c *Collection) Union(other *Collection) (*Collection, error) {
	all := make([]Observation, 0, c.Len()+other.Len())
	for _, col := range []*Collection{c, other} {
		for _, o := range col.Observations() {
			all = append(all, Observation{Pose: o.Pose, Weight: o.Weight * col.mass})
		}
	}
	return NewCollection(all)
}
