// Package aim decides whether a detected barcode is aligned with the
// capture frame. Everything here is a pure function of one detection tick.
package aim

import (
	"github.com/asean-events/checkin-station/internal/geometry"
	"github.com/asean-events/checkin-station/internal/models"
)

// Barcode is one detector result in native camera-frame pixels. Either
// CornerPoints holds a quadrilateral (4+ points) or BoundingBox is set.
type Barcode struct {
	BoundingBox  *geometry.Rect
	CornerPoints []geometry.Point
	RawValue     string
}

// Candidate is a Barcode mapped into overlay space.
type Candidate struct {
	Polygon  []geometry.Point
	Bounds   geometry.Rect
	Centroid geometry.Point
}

// Area is the mapped bounding-box area.
func (c Candidate) Area() float64 {
	return c.Bounds.Area()
}

// Map converts b into overlay space using t. The polygon is the corner
// quadrilateral when the detector supplied one, else the bounding box.
// ok is false when b carries no usable geometry.
func Map(b Barcode, t geometry.Transform) (Candidate, bool) {
	var poly []geometry.Point
	switch {
	case len(b.CornerPoints) >= 4:
		poly = t.MapPolygon(b.CornerPoints)
	case b.BoundingBox != nil:
		poly = t.MapRect(*b.BoundingBox).Corners()
	case len(b.CornerPoints) > 0:
		poly = t.MapRect(geometry.Bounds(b.CornerPoints)).Corners()
	default:
		return Candidate{}, false
	}

	bounds := geometry.Bounds(poly)
	return Candidate{
		Polygon:  poly,
		Bounds:   bounds,
		Centroid: geometry.Centroid(poly),
	}, true
}

// SelectLargest returns the candidate with the greatest mapped area. On a
// tie the earlier candidate wins. It returns nil for an empty slice.
func SelectLargest(candidates []Candidate) *Candidate {
	var best *Candidate
	for i := range candidates {
		if best == nil || candidates[i].Area() > best.Area() {
			best = &candidates[i]
		}
	}
	return best
}

// Classify returns the aim state for one tick. A candidate is aligned when
// its centroid lies in frame shrunk by margin on every side, edges
// included. A nil or degenerate candidate counts as no detection.
func Classify(candidate *Candidate, frame geometry.Rect, margin float64) models.AimState {
	if candidate == nil || candidate.Bounds.Empty() {
		return models.AimSearching
	}
	if frame.Inset(margin).Contains(candidate.Centroid) {
		return models.AimAligned
	}
	return models.AimDetected
}
