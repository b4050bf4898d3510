// Package geometry maps barcode coordinates from camera-frame pixels to
// overlay pixels under an object-fit: cover layout.
package geometry

import "math"

// Point is a 2D point in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle in pixels.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Area returns the rectangle's area, or 0 for an empty rectangle.
func (r Rect) Area() float64 {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height
}

// Inset shrinks r by d on every side. The result may be empty.
func (r Rect) Inset(d float64) Rect {
	return Rect{X: r.X + d, Y: r.Y + d, Width: r.Width - 2*d, Height: r.Height - 2*d}
}

// Contains reports whether p lies in r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.X+r.Width && p.Y >= r.Y && p.Y <= r.Y+r.Height
}

// Center returns the rectangle's center.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Corners returns the rectangle as a clockwise 4-point polygon.
func (r Rect) Corners() []Point {
	return []Point{
		{X: r.X, Y: r.Y},
		{X: r.X + r.Width, Y: r.Y},
		{X: r.X + r.Width, Y: r.Y + r.Height},
		{X: r.X, Y: r.Y + r.Height},
	}
}

// Bounds returns the smallest rectangle containing all points.
func Bounds(points []Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// Centroid returns the arithmetic mean of points.
func Centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var c Point
	for _, p := range points {
		c.X += p.X
		c.Y += p.Y
	}
	n := float64(len(points))
	return Point{X: c.X / n, Y: c.Y / n}
}

// Transform is a uniform scale followed by a translation.
type Transform struct {
	Scale   float64
	OffsetX float64
	OffsetY float64
}

// Cover returns the transform that scales a media rectangle to fully cover
// a container rectangle, centering the overflow. With unknown media size
// (zero or negative) it returns the zero Transform; callers are expected
// to skip mapping in that case.
func Cover(containerW, containerH, mediaW, mediaH float64) Transform {
	if mediaW <= 0 || mediaH <= 0 {
		return Transform{}
	}
	scale := math.Max(containerW/mediaW, containerH/mediaH)
	return Transform{
		Scale:   scale,
		OffsetX: (containerW - mediaW*scale) / 2,
		OffsetY: (containerH - mediaH*scale) / 2,
	}
}

// Map transforms p from media space into container space.
func (t Transform) Map(p Point) Point {
	return Point{X: p.X*t.Scale + t.OffsetX, Y: p.Y*t.Scale + t.OffsetY}
}

// MapPolygon transforms every point of poly.
func (t Transform) MapPolygon(poly []Point) []Point {
	out := make([]Point, len(poly))
	for i, p := range poly {
		out[i] = t.Map(p)
	}
	return out
}

// MapRect transforms r. The scale is uniform so the result stays axis-aligned.
func (t Transform) MapRect(r Rect) Rect {
	o := t.Map(Point{X: r.X, Y: r.Y})
	return Rect{X: o.X, Y: o.Y, Width: r.Width * t.Scale, Height: r.Height * t.Scale}
}
