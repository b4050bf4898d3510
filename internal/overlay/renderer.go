// Package overlay paints the scanner overlay: a dimming mask with a clear
// capture window and the outline of the detected barcode.
package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/image/vector"

	"github.com/asean-events/checkin-station/internal/aim"
	"github.com/asean-events/checkin-station/internal/geometry"
	"github.com/asean-events/checkin-station/internal/models"
)

// DefaultInset is the distance in CSS pixels between the host edges and
// the capture frame.
const DefaultInset = 48

var (
	maskColor    = color.RGBA{A: 140}
	frameColor   = color.RGBA{R: 200, G: 200, B: 200, A: 200}
	alignedColor = color.RGBA{R: 34, G: 197, B: 94, A: 255}
	detectColor  = color.RGBA{R: 6, G: 182, B: 212, A: 255}
)

// Renderer owns the overlay surface. The surface is sized in device
// pixels; all geometry it receives is in CSS pixels.
type Renderer struct {
	inset  float64
	logger *zap.Logger

	mu     sync.Mutex
	cssW   float64
	cssH   float64
	dpr    float64
	frame  geometry.Rect
	canvas *image.RGBA
	raster *vector.Rasterizer
}

// NewRenderer creates a renderer with no surface. Call Resize once the
// host size is known.
func NewRenderer(inset float64, logger *zap.Logger) *Renderer {
	if inset <= 0 {
		inset = DefaultInset
	}
	return &Renderer{
		inset:  inset,
		dpr:    1,
		raster: vector.NewRasterizer(0, 0),
		logger: logger,
	}
}

// Resize matches the surface to a host of cssW x cssH CSS pixels at the
// given device pixel ratio and recomputes the capture frame. A
// non-positive size drops the surface.
func (r *Renderer) Resize(cssW, cssH, dpr float64) {
	if dpr <= 0 {
		dpr = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.dpr = dpr
	if cssW <= 0 || cssH <= 0 {
		r.cssW, r.cssH = 0, 0
		r.frame = geometry.Rect{}
		r.canvas = nil
		return
	}

	r.cssW, r.cssH = cssW, cssH
	r.frame = captureFrame(cssW, cssH, r.inset)

	w := int(math.Round(cssW * dpr))
	h := int(math.Round(cssH * dpr))
	r.canvas = image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))

	r.logger.Debug("Overlay resized",
		zap.Float64("css_width", cssW),
		zap.Float64("css_height", cssH),
		zap.Float64("dpr", dpr),
	)
}

// captureFrame insets the host by inset, clamped to a quarter of each side
// so the frame always keeps a positive size.
func captureFrame(w, h, inset float64) geometry.Rect {
	ix := math.Min(inset, w/4)
	iy := math.Min(inset, h/4)
	return geometry.Rect{X: ix, Y: iy, Width: w - 2*ix, Height: h - 2*iy}
}

// Size returns the host size in CSS pixels.
func (r *Renderer) Size() (float64, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cssW, r.cssH
}

// CaptureFrame returns the capture frame in CSS pixels.
func (r *Renderer) CaptureFrame() geometry.Rect {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frame
}

// deviceSize returns the surface size in device pixels, zero without a surface.
func (r *Renderer) deviceSize() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.canvas == nil {
		return 0, 0
	}
	b := r.canvas.Bounds()
	return b.Dx(), b.Dy()
}

// Render repaints the overlay for one tick. Without a surface it does nothing.
func (r *Renderer) Render(candidate *aim.Candidate, state models.AimState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.canvas == nil {
		return
	}
	dst := r.canvas
	bounds := dst.Bounds()

	draw.Draw(dst, bounds, image.NewUniform(maskColor), image.Point{}, draw.Src)

	window := r.toDevice(r.frame)
	draw.Draw(dst, window, image.Transparent, image.Point{}, draw.Src)
	strokeRect(dst, window, max(1, int(math.Round(2*r.dpr))), frameColor)

	if candidate == nil || len(candidate.Polygon) < 2 {
		return
	}

	var c color.RGBA
	switch state {
	case models.AimAligned:
		c = alignedColor
	case models.AimDetected:
		c = detectColor
	default:
		return
	}

	poly := r.scale(candidate.Polygon)
	strokePolygon(r.raster, dst, poly, 12*r.dpr, withAlpha(c, 70))
	strokePolygon(r.raster, dst, poly, 4*r.dpr, c)
}

func (r *Renderer) scale(pts []geometry.Point) []geometry.Point {
	out := make([]geometry.Point, len(pts))
	for i, p := range pts {
		out[i] = geometry.Point{X: p.X * r.dpr, Y: p.Y * r.dpr}
	}
	return out
}

func (r *Renderer) toDevice(rect geometry.Rect) image.Rectangle {
	return image.Rect(
		int(math.Round(rect.X*r.dpr)),
		int(math.Round(rect.Y*r.dpr)),
		int(math.Round((rect.X+rect.Width)*r.dpr)),
		int(math.Round((rect.Y+rect.Height)*r.dpr)),
	)
}

// Snapshot returns a copy of the surface, or nil without one.
func (r *Renderer) Snapshot() *image.RGBA {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.canvas == nil {
		return nil
	}
	cp := image.NewRGBA(r.canvas.Bounds())
	copy(cp.Pix, r.canvas.Pix)
	return cp
}

// PNG encodes the surface.
func (r *Renderer) PNG() ([]byte, error) {
	img := r.Snapshot()
	if img == nil {
		return nil, fmt.Errorf("overlay has no surface")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode overlay: %w", err)
	}
	return buf.Bytes(), nil
}

func withAlpha(c color.RGBA, a uint8) color.RGBA {
	// image.RGBA stores premultiplied colors.
	return color.RGBA{
		R: uint8(uint32(c.R) * uint32(a) / 255),
		G: uint8(uint32(c.G) * uint32(a) / 255),
		B: uint8(uint32(c.B) * uint32(a) / 255),
		A: a,
	}
}
