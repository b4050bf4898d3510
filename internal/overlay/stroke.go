package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"

	"github.com/asean-events/checkin-station/internal/geometry"
)

// discSides is the number of sides of the polygon standing in for a round join.
const discSides = 16

// strokePolygon draws the closed outline of pts with the given width,
// compositing c over dst. The rasterizer covers only the outline's
// bounding box. Segments and round joins are wound alike, so pixels where
// they overlap are covered once.
func strokePolygon(z *vector.Rasterizer, dst *image.RGBA, pts []geometry.Point, width float64, c color.RGBA) {
	if len(pts) < 2 || width <= 0 {
		return
	}
	half := width / 2

	b := geometry.Bounds(pts)
	area := image.Rect(
		int(math.Floor(b.X-half))-1,
		int(math.Floor(b.Y-half))-1,
		int(math.Ceil(b.X+b.Width+half))+1,
		int(math.Ceil(b.Y+b.Height+half))+1,
	).Intersect(dst.Bounds())
	if area.Empty() {
		return
	}

	z.Reset(area.Dx(), area.Dy())
	z.DrawOp = draw.Over

	ox, oy := float64(area.Min.X), float64(area.Min.Y)
	local := make([]geometry.Point, len(pts))
	for i, p := range pts {
		local[i] = geometry.Point{X: p.X - ox, Y: p.Y - oy}
	}

	for i := range local {
		a := local[i]
		next := local[(i+1)%len(local)]
		addSegment(z, a, next, half)
		addDisc(z, a, half)
	}

	z.Draw(dst, area, image.NewUniform(c), image.Point{})
}

// addSegment adds the rectangle of the given half width around a-b.
func addSegment(z *vector.Rasterizer, a, b geometry.Point, half float64) {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	nx, ny := -dy/length*half, dx/length*half
	addPolygon(z, []geometry.Point{
		{X: a.X + nx, Y: a.Y + ny},
		{X: b.X + nx, Y: b.Y + ny},
		{X: b.X - nx, Y: b.Y - ny},
		{X: a.X - nx, Y: a.Y - ny},
	})
}

func addDisc(z *vector.Rasterizer, center geometry.Point, radius float64) {
	pts := make([]geometry.Point, discSides)
	for i := range pts {
		angle := 2 * math.Pi * float64(i) / discSides
		pts[i] = geometry.Point{
			X: center.X + radius*math.Cos(angle),
			Y: center.Y + radius*math.Sin(angle),
		}
	}
	addPolygon(z, pts)
}

// addPolygon adds pts as a closed path, always wound the same way so that
// overlapping shapes add up instead of cancelling.
func addPolygon(z *vector.Rasterizer, pts []geometry.Point) {
	if signedArea(pts) < 0 {
		for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
			pts[i], pts[j] = pts[j], pts[i]
		}
	}
	z.MoveTo(float32(pts[0].X), float32(pts[0].Y))
	for _, p := range pts[1:] {
		z.LineTo(float32(p.X), float32(p.Y))
	}
	z.ClosePath()
}

func signedArea(pts []geometry.Point) float64 {
	var sum float64
	for i := range pts {
		a := pts[i]
		b := pts[(i+1)%len(pts)]
		sum += a.X*b.Y - b.X*a.Y
	}
	return sum / 2
}

// strokeRect draws an axis-aligned border of the given width centred on
// the edges of rect. The four bands do not overlap.
func strokeRect(dst *image.RGBA, rect image.Rectangle, width int, c color.RGBA) {
	if width <= 0 || rect.Empty() {
		return
	}
	half := width / 2
	outer := image.Rect(rect.Min.X-half, rect.Min.Y-half, rect.Max.X+width-half, rect.Max.Y+width-half)
	inner := image.Rect(rect.Min.X+width-half, rect.Min.Y+width-half, rect.Max.X-half, rect.Max.Y-half)

	src := image.NewUniform(c)
	if inner.Empty() {
		draw.Draw(dst, outer, src, image.Point{}, draw.Over)
		return
	}

	bands := []image.Rectangle{
		image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, inner.Min.Y),
		image.Rect(outer.Min.X, inner.Max.Y, outer.Max.X, outer.Max.Y),
		image.Rect(outer.Min.X, inner.Min.Y, inner.Min.X, inner.Max.Y),
		image.Rect(inner.Max.X, inner.Min.Y, outer.Max.X, inner.Max.Y),
	}
	for _, band := range bands {
		draw.Draw(dst, band, src, image.Point{}, draw.Over)
	}
}
