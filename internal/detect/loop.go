package detect

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/asean-events/checkin-station/internal/aim"
	"github.com/asean-events/checkin-station/internal/camera"
	"github.com/asean-events/checkin-station/internal/geometry"
	"github.com/asean-events/checkin-station/internal/models"
)

// DefaultInterval is the detection cadence.
const DefaultInterval = 140 * time.Millisecond

// Viewport is the overlay the detections are mapped onto.
type Viewport interface {
	// Size returns the host size in CSS pixels.
	Size() (width, height float64)

	// CaptureFrame returns the target rectangle in CSS pixels.
	CaptureFrame() geometry.Rect
}

// Sink receives the chosen candidate (nil when none) and its aim state
// once per tick. It must not call Loop.Stop.
type Sink func(candidate *aim.Candidate, state models.AimState)

// Options configures a Loop.
type Options struct {
	Video    camera.Video
	Detector Detector
	Viewport Viewport
	Sink     Sink
	Margin   float64
	Interval time.Duration
}

// Loop polls the video for frames and classifies the most prominent
// barcode. Ticks are strictly sequential: the next one is armed only after
// the previous one has settled.
type Loop struct {
	opts   Options
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLoop creates a stopped loop.
func NewLoop(opts Options, logger *zap.Logger) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Detector == nil {
		opts.Detector = NullDetector{}
	}
	return &Loop{opts: opts, logger: logger}
}

// Start begins ticking. Starting a running loop is a no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.done = make(chan struct{})

	go l.run(ctx, l.done)
}

// Stop halts the loop and waits for an in-progress tick to finish, so no
// tick fires after it returns. It is safe to call more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (l *Loop) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(l.opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		l.tick(ctx)
		if ctx.Err() != nil {
			return
		}
		timer.Reset(l.opts.Interval)
	}
}

// tick runs one detection pass. It reports whether the sink was called.
func (l *Loop) tick(ctx context.Context) bool {
	if l.opts.Video == nil {
		return false
	}
	img := l.opts.Video.Frame()
	if img == nil || img.Bounds().Empty() {
		return false
	}

	barcodes, err := l.opts.Detector.Detect(ctx, img)
	if err != nil {
		l.logger.Debug("Barcode detection failed", zap.Error(err))
		return false
	}
	if ctx.Err() != nil {
		return false
	}

	width, height := l.opts.Viewport.Size()
	b := img.Bounds()
	transform := geometry.Cover(width, height, float64(b.Dx()), float64(b.Dy()))

	candidates := make([]aim.Candidate, 0, len(barcodes))
	for _, bc := range barcodes {
		if c, ok := aim.Map(bc, transform); ok {
			candidates = append(candidates, c)
		}
	}

	best := aim.SelectLargest(candidates)
	state := aim.Classify(best, l.opts.Viewport.CaptureFrame(), l.opts.Margin)
	if state == models.AimSearching {
		best = nil
	}

	l.opts.Sink(best, state)
	return true
}
