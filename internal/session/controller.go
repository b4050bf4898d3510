// Package session owns the scanner lifecycle: it opens the decode stream,
// runs the detector loop against the overlay, and funnels every decoded,
// typed or failed scan through the verification client.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/asean-events/checkin-station/internal/aim"
	"github.com/asean-events/checkin-station/internal/camera"
	"github.com/asean-events/checkin-station/internal/detect"
	"github.com/asean-events/checkin-station/internal/models"
	"github.com/asean-events/checkin-station/internal/verify"
)

var (
	// ErrClosed is returned once the controller has been closed.
	ErrClosed = errors.New("scanner closed")

	// ErrBusy is returned while a verification is in flight.
	ErrBusy = errors.New("verification in progress")

	// ErrUnknownDevice is returned when selecting a device that is not listed.
	ErrUnknownDevice = errors.New("unknown camera device")
)

// Stream is the continuous-decode primitive.
type Stream interface {
	ListVideoInputDevices(ctx context.Context) ([]camera.DeviceInfo, error)
	DecodeFromDevice(ctx context.Context, deviceID string, cb camera.DecodeCallback) (*camera.Controls, error)
}

// Overlay is the surface the detector loop maps onto and paints.
type Overlay interface {
	detect.Viewport
	Render(candidate *aim.Candidate, state models.AimState)
}

// Verifier resolves codes and delivers outcomes.
type Verifier interface {
	Verify(ctx context.Context, sessionID, code string, eventID int64, source models.ScanSource) verify.Outcome
	Deliver(ctx context.Context, d verify.Delivery) verify.Outcome
}

// Options tunes a Controller.
type Options struct {
	Margin   float64
	Interval time.Duration
	Now      func() time.Time
}

// Controller drives one scanner view. Callbacks from the decode stream and
// the detector loop carry the generation they were started with; anything
// that arrives after the generation moved on is dropped.
type Controller struct {
	stream   Stream
	detector detect.Detector
	overlay  Overlay
	verifier Verifier
	opts     Options
	logger   *zap.Logger

	inflight *semaphore.Weighted

	mu         sync.Mutex
	generation uint64
	sessionID  string
	status     models.ScanStatus
	aim        models.AimState
	deviceID   string
	event      *models.Event
	outcome    *verify.Outcome
	controls   *camera.Controls
	loop       *detect.Loop
	closed     bool
}

// NewController creates an idle controller.
func NewController(stream Stream, detector detect.Detector, overlay Overlay, verifier Verifier, opts Options, logger *zap.Logger) *Controller {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if detector == nil {
		detector = detect.NullDetector{}
	}
	return &Controller{
		stream:   stream,
		detector: detector,
		overlay:  overlay,
		verifier: verifier,
		opts:     opts,
		logger:   logger,
		inflight: semaphore.NewWeighted(1),
		status:   models.StatusIdle,
		aim:      models.AimIdle,
	}
}

// Start opens the camera and begins scanning. Precondition and camera
// failures are delivered as results rather than returned; starting while
// scanning or verifying is a no-op.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.status == models.StatusScanning || c.status == models.StatusVerifying {
		c.mu.Unlock()
		return nil
	}

	c.sessionID = uuid.NewString()
	if msg := c.preconditionLocked(); msg != "" {
		d := c.deliveryLocked(models.SourcePrecondition, "", msg)
		c.mu.Unlock()
		c.reject(ctx, d)
		return nil
	}

	c.generation++
	gen := c.generation
	c.status = models.StatusScanning
	c.aim = models.AimSearching
	c.outcome = nil
	sessionID, deviceID, eventID := c.sessionID, c.deviceID, c.event.ID
	c.mu.Unlock()

	controls, err := c.stream.DecodeFromDevice(ctx, deviceID, func(text string, err error) {
		c.onDecode(gen, eventID, text, err)
	})
	if err != nil {
		c.cameraFault(ctx, gen, err)
		return nil
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		controls.Stop()
		return nil
	}
	loop := detect.NewLoop(detect.Options{
		Video:    controls.Video(),
		Detector: c.detector,
		Viewport: c.overlay,
		Sink:     c.sink(gen),
		Margin:   c.opts.Margin,
		Interval: c.opts.Interval,
	}, c.logger)
	c.controls, c.loop = controls, loop
	loop.Start()
	c.mu.Unlock()

	go c.watch(gen, controls)

	c.logger.Info("Scanning started",
		zap.String("session_id", sessionID),
		zap.String("device_id", controls.Track().DeviceID()),
		zap.Int64("event_id", eventID),
	)
	return nil
}

// Stop ends scanning and releases the camera. It is safe to call at any
// time and more than once. A verification already in flight still settles.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.generation++
	loop, controls := c.detachLocked()
	c.aim = models.AimIdle
	if c.status == models.StatusScanning {
		c.status = models.StatusIdle
	}
	c.mu.Unlock()

	c.teardown(loop, controls)
}

// SubmitCode verifies an operator-typed code, bypassing the camera.
func (c *Controller) SubmitCode(ctx context.Context, code string) (verify.Outcome, error) {
	code = strings.TrimSpace(code)

	if !c.inflight.TryAcquire(1) {
		return verify.Outcome{}, ErrBusy
	}
	defer c.inflight.Release(1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return verify.Outcome{}, ErrClosed
	}
	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
	}

	msg := c.preconditionLocked()
	source := models.SourcePrecondition
	if msg == "" && code == "" {
		msg, source = verify.MsgEmptyCode, models.SourceManual
	}
	if msg != "" {
		d := c.deliveryLocked(source, code, msg)
		c.mu.Unlock()
		return c.reject(ctx, d), nil
	}

	c.generation++
	loop, controls := c.detachLocked()
	c.status = models.StatusVerifying
	c.aim = models.AimIdle
	c.outcome = nil
	sessionID, eventID := c.sessionID, c.event.ID
	c.mu.Unlock()

	c.teardown(loop, controls)

	outcome := c.verifier.Verify(context.WithoutCancel(ctx), sessionID, code, eventID, models.SourceManual)
	c.settle(outcome)
	return outcome, nil
}

// ScanAgain clears the displayed result and starts a new session.
func (c *Controller) ScanAgain(ctx context.Context) error {
	c.mu.Lock()
	if c.status == models.StatusVerifying {
		c.mu.Unlock()
		return ErrBusy
	}
	c.outcome = nil
	c.status = models.StatusIdle
	c.mu.Unlock()

	c.Stop()
	return c.Start(ctx)
}

// SelectEvent sets the event codes are verified against. A running scan is
// stopped since it was started for the previous event.
func (c *Controller) SelectEvent(event models.Event) {
	c.mu.Lock()
	scanning := c.status == models.StatusScanning
	c.event = &event
	c.mu.Unlock()

	if scanning {
		c.Stop()
	}
	c.logger.Info("Event selected", zap.Int64("event_id", event.ID), zap.String("title", event.Title))
}

// SelectDevice switches the camera. A running scan is restarted on the new
// device.
func (c *Controller) SelectDevice(ctx context.Context, deviceID string) error {
	devices, err := c.Devices(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, d := range devices {
		if d.ID == deviceID {
			found = true
			break
		}
	}
	if !found {
		return ErrUnknownDevice
	}

	c.mu.Lock()
	scanning := c.status == models.StatusScanning
	c.deviceID = deviceID
	c.mu.Unlock()

	if scanning {
		c.Stop()
		return c.Start(ctx)
	}
	return nil
}

// Devices lists the video inputs.
func (c *Controller) Devices(ctx context.Context) ([]camera.DeviceInfo, error) {
	return c.stream.ListVideoInputDevices(ctx)
}

// Snapshot returns the state read by the operator UI.
func (c *Controller) Snapshot() models.ScannerState {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := models.ScannerState{
		SessionID: c.sessionID,
		Status:    c.status,
		Aim:       c.aim,
		Hint:      c.aim.Hint(),
		DeviceID:  c.deviceID,
	}
	if c.event != nil {
		phase := c.event.PhaseAt(c.opts.Now())
		state.Event = &models.EventSelection{Event: *c.event, Phase: phase}
		state.CanStart = phase == models.PhaseOngoing
	}
	if c.outcome != nil {
		view := c.outcome.View
		state.Result = &view
	}
	return state
}

// Close stops scanning for good.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.Stop()
	return nil
}

func (c *Controller) onDecode(gen uint64, eventID int64, text string, err error) {
	if err != nil {
		if camera.IsTransient(err) {
			return
		}
		c.cameraFault(context.Background(), gen, err)
		return
	}
	if text == "" {
		return
	}

	if !c.inflight.TryAcquire(1) {
		c.logger.Debug("Dropped decode while verifying")
		return
	}
	defer c.inflight.Release(1)

	c.mu.Lock()
	if c.generation != gen || c.status != models.StatusScanning {
		c.mu.Unlock()
		return
	}
	c.generation++
	loop, controls := c.detachLocked()
	c.status = models.StatusVerifying
	c.aim = models.AimIdle
	sessionID := c.sessionID
	c.mu.Unlock()

	c.teardown(loop, controls)

	outcome := c.verifier.Verify(context.Background(), sessionID, text, eventID, models.SourceCamera)
	c.settle(outcome)
}

// cameraFault aborts the scan of generation gen with a camera error result.
func (c *Controller) cameraFault(ctx context.Context, gen uint64, err error) {
	c.mu.Lock()
	if c.generation != gen || c.status != models.StatusScanning {
		c.mu.Unlock()
		return
	}
	c.generation++
	loop, controls := c.detachLocked()
	c.aim = models.AimIdle
	d := c.deliveryLocked(models.SourceCameraError, "", cameraMessage(err))
	c.mu.Unlock()

	c.logger.Warn("Camera fault", zap.String("session_id", d.SessionID), zap.Error(err))
	c.teardown(loop, controls)
	c.reject(ctx, d)
}

// watch reports a stream that ended without being stopped by us, e.g. a
// revoked camera.
func (c *Controller) watch(gen uint64, controls *camera.Controls) {
	<-controls.Done()
	c.cameraFault(context.Background(), gen, camera.ErrTrackStopped)
}

func (c *Controller) sink(gen uint64) detect.Sink {
	return func(candidate *aim.Candidate, state models.AimState) {
		c.mu.Lock()
		if c.generation != gen || c.status != models.StatusScanning {
			c.mu.Unlock()
			return
		}
		c.aim = state
		c.mu.Unlock()

		c.overlay.Render(candidate, state)
	}
}

func (c *Controller) reject(ctx context.Context, d verify.Delivery) verify.Outcome {
	outcome := c.verifier.Deliver(ctx, d)
	c.settle(outcome)
	return outcome
}

func (c *Controller) settle(outcome verify.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.outcome = &outcome
	c.aim = models.AimIdle
	if outcome.Result != nil && outcome.Result.OK {
		c.status = models.StatusSuccess
	} else {
		c.status = models.StatusError
	}
}

func (c *Controller) preconditionLocked() string {
	if c.event == nil {
		return verify.MsgNoEvent
	}
	switch c.event.PhaseAt(c.opts.Now()) {
	case models.PhaseUpcoming:
		return verify.MsgEventUpcoming
	case models.PhaseClosed:
		return verify.MsgEventClosed
	}
	return ""
}

func (c *Controller) deliveryLocked(source models.ScanSource, code, msg string) verify.Delivery {
	d := verify.Delivery{
		SessionID: c.sessionID,
		Code:      code,
		Source:    source,
		Result:    models.Failure(msg),
	}
	if c.event != nil {
		id := c.event.ID
		d.EventID = &id
	}
	return d
}

func (c *Controller) detachLocked() (*detect.Loop, *camera.Controls) {
	loop, controls := c.loop, c.controls
	c.loop, c.controls = nil, nil
	return loop, controls
}

// teardown must run without c.mu held: Loop.Stop waits for a tick whose
// sink takes the lock.
func (c *Controller) teardown(loop *detect.Loop, controls *camera.Controls) {
	if loop != nil {
		loop.Stop()
	}
	if controls != nil {
		controls.Stop()
	}
	c.overlay.Render(nil, models.AimIdle)
}

func cameraMessage(err error) string {
	switch {
	case errors.Is(err, camera.ErrPermissionDenied):
		return verify.MsgCameraDenied
	case errors.Is(err, camera.ErrNoCamera):
		return verify.MsgCameraNotFound
	default:
		return verify.MsgCameraFailed
	}
}
