package pointcloud

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// Neighbor is a point returned by a KDTree query. ID is the point's position in the slice the
// tree was built from.
type Neighbor struct {
	ID       int
	Point    r3.Vector
	Distance float64
}

// KDTree is a balanced, read-only KD tree over a fixed set of points. It is safe for concurrent
// queries once constructed.
type KDTree struct {
	tree *kdtree.Tree
	size int
	meta MetaData
}

// NewKDTree builds a tree over points. The input slice is not retained. An empty input yields a
// tree which answers every query with no results.
func NewKDTree(points []r3.Vector) *KDTree {
	kd := &KDTree{size: len(points), meta: NewMetaData()}
	if len(points) == 0 {
		return kd
	}
	pts := make(indexedPoints, 0, len(points))
	for i, p := range points {
		pts = append(pts, indexedPoint{p: p, id: i})
		kd.meta.Merge(p)
	}
	kd.tree = kdtree.New(pts, false)
	return kd
}

// Len returns the number of points in the tree.
func (kd *KDTree) Len() int {
	return kd.size
}

// MetaData returns the bounds and centroid of the indexed points.
func (kd *KDTree) MetaData() MetaData {
	return kd.meta
}

// RadiusNearestNeighbors returns every point whose distance to p is at most r, in no particular order.
func (kd *KDTree) RadiusNearestNeighbors(p r3.Vector, r float64) []Neighbor {
	if kd.tree == nil || r < 0 || math.IsNaN(r) {
		return nil
	}
	found := kd.withinSquared(p, r*r)
	out := make([]Neighbor, 0, len(found))
	for _, f := range found {
		out = append(out, f.neighbor())
	}
	return out
}

// KNearestNeighbors returns the k points closest to p ordered by increasing distance. Points at
// equal distance are ordered by insertion index.
func (kd *KDTree) KNearestNeighbors(p r3.Vector, k int) []Neighbor {
	if kd.tree == nil || k <= 0 {
		return nil
	}
	if k > kd.size {
		k = kd.size
	}
	keeper := kdtree.NewNKeeper(k)
	kd.tree.NearestSet(keeper, indexedPoint{p: p, id: -1})

	// The kth distance bounds the answer. Gather everything inside it so that ties at the
	// boundary resolve by insertion index rather than by tree layout.
	kth := 0.
	for _, c := range keeper.Heap {
		if c.Comparable != nil && c.Dist > kth {
			kth = c.Dist
		}
	}
	found := kd.withinSquared(p, kth)
	sort.Slice(found, func(i, j int) bool {
		if found[i].sqDist != found[j].sqDist {
			return found[i].sqDist < found[j].sqDist
		}
		return found[i].id < found[j].id
	})
	if len(found) > k {
		found = found[:k]
	}
	out := make([]Neighbor, 0, len(found))
	for _, f := range found {
		out = append(out, f.neighbor())
	}
	return out
}

type match struct {
	indexedPoint
	sqDist float64
}

func (m match) neighbor() Neighbor {
	return Neighbor{ID: m.id, Point: m.p, Distance: math.Sqrt(m.sqDist)}
}

func (kd *KDTree) withinSquared(p r3.Vector, sqRadius float64) []match {
	keeper := kdtree.NewDistKeeper(sqRadius)
	kd.tree.NearestSet(keeper, indexedPoint{p: p, id: -1})
	found := make([]match, 0, keeper.Len())
	for _, c := range keeper.Heap {
		// The keeper's sentinel has no comparable and survives when a point lies exactly on the radius.
		if c.Comparable == nil {
			continue
		}
		found = append(found, match{indexedPoint: c.Comparable.(indexedPoint), sqDist: c.Dist})
	}
	return found
}

// indexedPoint is a point tagged with its insertion index, satisfying kdtree.Comparable.
type indexedPoint struct {
	p  r3.Vector
	id int
}

func coord(v r3.Vector, d kdtree.Dim) float64 {
	switch d {
	case 0:
		return v.X
	case 1:
		return v.Y
	case 2:
		return v.Z
	default:
		panic("illegal dimension")
	}
}

// Compare returns the signed distance of p from the plane through c perpendicular to dimension d.
func (ip indexedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return coord(ip.p, d) - coord(c.(indexedPoint).p, d)
}

// Dims returns the number of dimensions of the point.
func (ip indexedPoint) Dims() int {
	return 3
}

// Distance returns the squared euclidean distance between the points.
func (ip indexedPoint) Distance(c kdtree.Comparable) float64 {
	return ip.p.Sub(c.(indexedPoint).p).Norm2()
}

// indexedPoints satisfies kdtree.Interface.
type indexedPoints []indexedPoint

func (pts indexedPoints) Index(i int) kdtree.Comparable {
	return pts[i]
}

func (pts indexedPoints) Len() int {
	return len(pts)
}

func (pts indexedPoints) Pivot(d kdtree.Dim) int {
	pl := plane{dim: d, pts: pts}
	return kdtree.Partition(pl, kdtree.MedianOfMedians(pl))
}

func (pts indexedPoints) Slice(start, end int) kdtree.Interface {
	return pts[start:end]
}

// plane sorts points along a single dimension, satisfying kdtree.SortSlicer.
type plane struct {
	dim kdtree.Dim
	pts indexedPoints
}

func (pl plane) Len() int {
	return len(pl.pts)
}

func (pl plane) Less(i, j int) bool {
	return coord(pl.pts[i].p, pl.dim) < coord(pl.pts[j].p, pl.dim)
}

func (pl plane) Swap(i, j int) {
	pl.pts[i], pl.pts[j] = pl.pts[j], pl.pts[i]
}

func (pl plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{dim: pl.dim, pts: pl.pts[start:end]}
}
