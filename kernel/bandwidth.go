package kernel

import (
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
)

// DefaultBandwidthNeighbors is the neighbor rank used by SuggestTranslationalBandwidth when
// none is given.
const DefaultBandwidthNeighbors = 8

// SuggestTranslationalBandwidth returns the median, over all observations, of the distance to
// the k-th nearest other observation. Collections with k or fewer observations use the farthest
// neighbor instead. A k of zero or less means DefaultBandwidthNeighbors.
//
// The result is a rough starting point for sigma and nothing more.
func SuggestTranslationalBandwidth(c *Collection, k int) (float64, error) {
	if c.Len() < 2 {
		return 0, newConfigurationError("observations", "at least two observations are needed to suggest a bandwidth")
	}
	if k <= 0 {
		k = DefaultBandwidthNeighbors
	}

	distances := make(stats.Float64Data, 0, c.Len())
	for _, o := range c.observations {
		// The observation itself is its own nearest neighbor.
		found := c.index.KNearestNeighbors(o.Pose.Point(), k+1)
		distances = append(distances, found[len(found)-1].Distance)
	}
	median, err := stats.Median(distances)
	if err != nil {
		return 0, errors.Wrap(err, "cannot take median neighbor distance")
	}
	if median <= 0 {
		return 0, newConfigurationError("observations",
			"the %d-th neighbor of most observations is at distance zero", k)
	}
	return median, nil
}
