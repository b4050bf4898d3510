package aim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asean-events/checkin-station/internal/geometry"
	"github.com/asean-events/checkin-station/internal/models"
)

func square(cx, cy, half float64) Candidate {
	r := geometry.Rect{X: cx - half, Y: cy - half, Width: 2 * half, Height: 2 * half}
	return Candidate{Polygon: r.Corners(), Bounds: r, Centroid: r.Center()}
}

func TestClassify_NoCandidate(t *testing.T) {
	frame := geometry.Rect{X: 50, Y: 50, Width: 200, Height: 200}
	assert.Equal(t, models.AimSearching, Classify(nil, frame, 10))
}

func TestClassify_DegenerateCandidate(t *testing.T) {
	frame := geometry.Rect{X: 50, Y: 50, Width: 200, Height: 200}
	c := Candidate{
		Polygon:  []geometry.Point{{X: 100, Y: 100}, {X: 200, Y: 100}},
		Bounds:   geometry.Rect{X: 100, Y: 100, Width: 100, Height: 0},
		Centroid: geometry.Point{X: 150, Y: 100},
	}
	assert.Equal(t, models.AimSearching, Classify(&c, frame, 10))
}

func TestClassify_MarginBoundary(t *testing.T) {
	// Shrunk frame spans x,y in [60, 240].
	frame := geometry.Rect{X: 50, Y: 50, Width: 200, Height: 200}
	const margin = 10

	tests := []struct {
		name     string
		cx, cy   float64
		expected models.AimState
	}{
		{"center", 150, 150, models.AimAligned},
		{"on left edge", 60, 150, models.AimAligned},
		{"just inside left edge", 60.01, 150, models.AimAligned},
		{"just outside left edge", 59.99, 150, models.AimDetected},
		{"on bottom edge", 150, 240, models.AimAligned},
		{"just outside bottom edge", 150, 240.01, models.AimDetected},
		{"inside frame but within margin", 55, 150, models.AimDetected},
		{"far away", 400, 400, models.AimDetected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := square(tt.cx, tt.cy, 20)
			assert.Equal(t, tt.expected, Classify(&c, frame, margin))
		})
	}
}

func TestSelectLargest_IndependentOfOrder(t *testing.T) {
	small := square(10, 10, 5)
	medium := square(100, 100, 20)
	large := square(300, 300, 40)

	orders := [][]Candidate{
		{small, medium, large},
		{large, small, medium},
		{medium, large, small},
	}
	for _, order := range orders {
		best := SelectLargest(order)
		require.NotNil(t, best)
		assert.Equal(t, large.Bounds, best.Bounds)
	}

	assert.Nil(t, SelectLargest(nil))
}

func TestSelectLargest_TieKeepsFirst(t *testing.T) {
	a := square(10, 10, 5)
	b := square(50, 50, 5)

	best := SelectLargest([]Candidate{a, b})
	require.NotNil(t, best)
	assert.Equal(t, a.Centroid, best.Centroid)
}

func TestMap(t *testing.T) {
	tr := geometry.Cover(640, 480, 1280, 960) // scale 0.5, no offset

	t.Run("corner points", func(t *testing.T) {
		b := Barcode{CornerPoints: []geometry.Point{{X: 100, Y: 100}, {X: 300, Y: 100}, {X: 300, Y: 300}, {X: 100, Y: 300}}}
		c, ok := Map(b, tr)
		require.True(t, ok)
		assert.Len(t, c.Polygon, 4)
		assert.Equal(t, geometry.Rect{X: 50, Y: 50, Width: 100, Height: 100}, c.Bounds)
		assert.Equal(t, geometry.Point{X: 100, Y: 100}, c.Centroid)
		assert.InDelta(t, 10000, c.Area(), 1e-9)
	})

	t.Run("bounding box", func(t *testing.T) {
		b := Barcode{BoundingBox: &geometry.Rect{X: 200, Y: 200, Width: 40, Height: 80}}
		c, ok := Map(b, tr)
		require.True(t, ok)
		assert.Equal(t, geometry.Rect{X: 100, Y: 100, Width: 20, Height: 40}, c.Bounds)
		assert.Len(t, c.Polygon, 4)
	})

	t.Run("partial corner points fall back to bounds", func(t *testing.T) {
		b := Barcode{CornerPoints: []geometry.Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 0, Y: 100}}}
		c, ok := Map(b, tr)
		require.True(t, ok)
		assert.Equal(t, geometry.Rect{X: 0, Y: 0, Width: 50, Height: 50}, c.Bounds)
	})

	t.Run("no geometry", func(t *testing.T) {
		_, ok := Map(Barcode{RawValue: "x"}, tr)
		assert.False(t, ok)
	})
}
