// Package pointcloud holds three-dimensional point sets and the KD tree used to answer
// neighborhood queries over them.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// MetaData is data about what's stored in the point cloud.
type MetaData struct {
	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64

	// TotalX, TotalY, TotalZ accumulate coordinates for the centroid.
	TotalX, TotalY, TotalZ float64

	count int
}

// NewMetaData returns meta data for an empty cloud.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64,
		MinY: math.MaxFloat64,
		MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64,
		MaxY: -math.MaxFloat64,
		MaxZ: -math.MaxFloat64,
	}
}

// Merge includes the given point in the meta data.
func (meta *MetaData) Merge(v r3.Vector) {
	meta.count++

	if v.X > meta.MaxX {
		meta.MaxX = v.X
	}
	if v.Y > meta.MaxY {
		meta.MaxY = v.Y
	}
	if v.Z > meta.MaxZ {
		meta.MaxZ = v.Z
	}

	if v.X < meta.MinX {
		meta.MinX = v.X
	}
	if v.Y < meta.MinY {
		meta.MinY = v.Y
	}
	if v.Z < meta.MinZ {
		meta.MinZ = v.Z
	}

	meta.TotalX += v.X
	meta.TotalY += v.Y
	meta.TotalZ += v.Z
}

// Size returns the number of merged points.
func (meta *MetaData) Size() int {
	return meta.count
}

// Center returns the centroid of the merged points, or the origin when there are none.
func (meta *MetaData) Center() r3.Vector {
	if meta.count == 0 {
		return r3.Vector{}
	}
	n := float64(meta.count)
	return r3.Vector{X: meta.TotalX / n, Y: meta.TotalY / n, Z: meta.TotalZ / n}
}

// Extent returns the length of the diagonal of the axis aligned bounding box.
func (meta *MetaData) Extent() float64 {
	if meta.count == 0 {
		return 0
	}
	return r3.Vector{X: meta.MaxX - meta.MinX, Y: meta.MaxY - meta.MinY, Z: meta.MaxZ - meta.MinZ}.Norm()
}
