// Package detect runs the live barcode detection loop that drives the aim
// state and the overlay highlight while a scan session is active.
package detect

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/asean-events/checkin-station/internal/aim"
	"github.com/asean-events/checkin-station/internal/camera"
	"github.com/asean-events/checkin-station/internal/geometry"
)

// Detector finds barcodes in a frame, reporting their geometry in frame pixels.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]aim.Barcode, error)
}

// NullDetector stands in when no detection capability is available. It
// never reports a barcode, which keeps the aim state at searching.
type NullDetector struct{}

// Detect always returns no barcodes.
func (NullDetector) Detect(context.Context, image.Image) ([]aim.Barcode, error) {
	return nil, nil
}

// ZXingDetector locates QR codes with gozxing.
type ZXingDetector struct {
	mu     sync.Mutex
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

// NewZXingDetector creates a gozxing-backed detector.
func NewZXingDetector() *ZXingDetector {
	return &ZXingDetector{
		reader: qrcode.NewQRCodeReader(),
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_POSSIBLE_FORMATS: []gozxing.BarcodeFormat{gozxing.BarcodeFormat_QR_CODE},
		},
	}
}

// Detect returns at most one barcode: the QR code gozxing locks onto.
// Points are relative to the frame's top-left corner.
func (d *ZXingDetector) Detect(ctx context.Context, img image.Image) ([]aim.Barcode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("failed to binarize frame: %w", err)
	}

	d.mu.Lock()
	result, err := d.reader.Decode(bmp, d.hints)
	d.mu.Unlock()
	if err != nil {
		if camera.IsTransient(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to detect barcode: %w", err)
	}

	return []aim.Barcode{{CornerPoints: qrCorners(result.GetResultPoints()), RawValue: result.GetText()}}, nil
}

// finderOffset is the distance in modules from a finder pattern centre to
// the outer edge of the symbol.
const finderOffset = 3.5

// qrCorners turns the finder pattern centres gozxing reports (bottom-left,
// top-left, top-right, then an optional alignment pattern) into the four
// outer corners of the symbol, clockwise from top-left.
func qrCorners(points []gozxing.ResultPoint) []geometry.Point {
	raw := make([]geometry.Point, 0, len(points))
	for _, p := range points {
		if p == nil {
			continue
		}
		raw = append(raw, geometry.Point{X: p.GetX(), Y: p.GetY()})
	}
	if len(raw) < 3 || len(raw) != len(points) {
		return raw
	}

	bl, tl, tr := raw[0], raw[1], raw[2]
	ux, uy := tr.X-tl.X, tr.Y-tl.Y
	vx, vy := bl.X-tl.X, bl.Y-tl.Y
	lu, lv := math.Hypot(ux, uy), math.Hypot(vx, vy)
	if lu == 0 || lv == 0 {
		return raw
	}

	module := moduleSize(points[:3])
	if module <= 0 {
		// Version 1 spacing: finder centres sit 14 modules apart.
		module = (lu + lv) / 2 / 14
	}
	du := geometry.Point{X: ux / lu * finderOffset * module, Y: uy / lu * finderOffset * module}
	dv := geometry.Point{X: vx / lv * finderOffset * module, Y: vy / lv * finderOffset * module}

	topLeft := geometry.Point{X: tl.X - du.X - dv.X, Y: tl.Y - du.Y - dv.Y}
	topRight := geometry.Point{X: tr.X + du.X - dv.X, Y: tr.Y + du.Y - dv.Y}
	bottomLeft := geometry.Point{X: bl.X - du.X + dv.X, Y: bl.Y - du.Y + dv.Y}
	bottomRight := geometry.Point{
		X: topRight.X + bottomLeft.X - topLeft.X,
		Y: topRight.Y + bottomLeft.Y - topLeft.Y,
	}
	return []geometry.Point{topLeft, topRight, bottomRight, bottomLeft}
}

// moduleSize averages the module size estimated for each finder pattern,
// zero when the points carry no estimate.
func moduleSize(points []gozxing.ResultPoint) float64 {
	type estimator interface {
		GetEstimatedModuleSize() float64
	}
	var sum float64
	for _, p := range points {
		e, ok := p.(estimator)
		if !ok {
			return 0
		}
		sum += e.GetEstimatedModuleSize()
	}
	return sum / float64(len(points))
}

// New returns the detector named by kind: "zxing", or "none" for the null detector.
func New(kind string) (Detector, error) {
	switch kind {
	case "zxing", "":
		return NewZXingDetector(), nil
	case "none":
		return NullDetector{}, nil
	default:
		return nil, fmt.Errorf("unknown barcode detector %q", kind)
	}
}
