package domain

import (
	"errors"
	"math"
)

type Point struct {
	X float64
	Y float64
}

// BBox is an axis-aligned bounding box in the catalog's coordinate system.
type BBox struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

func (b BBox) Validate() error {
	for _, v := range []float64{b.MinX, b.MinY, b.MaxX, b.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("bbox coordinates must be finite")
		}
	}
	if b.MaxX < b.MinX || b.MaxY < b.MinY {
		return errors.New("bbox max must not be below min")
	}
	return nil
}

// Extend grows b so that it covers p.
func (b BBox) Extend(p Point) BBox {
	return BBox{
		MinX: math.Min(b.MinX, p.X),
		MinY: math.Min(b.MinY, p.Y),
		MaxX: math.Max(b.MaxX, p.X),
		MaxY: math.Max(b.MaxY, p.Y),
	}
}

// Intersects reports whether b and o overlap. With touches set, sharing only
// an edge or corner counts as overlap; otherwise the interiors must overlap.
func (b BBox) Intersects(o BBox, touches bool) bool {
	if touches {
		return b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY
	}
	return b.MinX < o.MaxX && o.MinX < b.MaxX && b.MinY < o.MaxY && o.MinY < b.MaxY
}

// Contains reports whether p lies in b. Points on the boundary count only
// with touches set.
func (b BBox) Contains(p Point, touches bool) bool {
	if touches {
		return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
	}
	return p.X > b.MinX && p.X < b.MaxX && p.Y > b.MinY && p.Y < b.MaxY
}

// Area is a materialized reference area: the file it was written to and its
// bounding box.
type Area struct {
	Path string
	BBox BBox
}
