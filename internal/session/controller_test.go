package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/asean-events/checkin-station/internal/aim"
	"github.com/asean-events/checkin-station/internal/camera"
	"github.com/asean-events/checkin-station/internal/detect"
	"github.com/asean-events/checkin-station/internal/geometry"
	"github.com/asean-events/checkin-station/internal/models"
	"github.com/asean-events/checkin-station/internal/overlay"
	"github.com/asean-events/checkin-station/internal/upstream"
	"github.com/asean-events/checkin-station/internal/verify"
)

const deviceID = "cam-1"

// MockEndpoint implements verify.Endpoint for testing
type MockEndpoint struct {
	mock.Mock
}

func (m *MockEndpoint) Scan(ctx context.Context, req models.ScanRequest) (*models.VerificationResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.VerificationResult), args.Error(1)
}

// MockFeedback implements verify.Feedback for testing
type MockFeedback struct {
	mock.Mock
}

func (m *MockFeedback) Success(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockFeedback) Error(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type fakeDecoder struct{}

func (fakeDecoder) Decode(image.Image) (string, error) {
	return "", fmt.Errorf("%w: empty frame", camera.ErrNotFound)
}

type fixture struct {
	hub        *camera.Hub
	endpoint   *MockEndpoint
	feedback   *MockFeedback
	renderer   *overlay.Renderer
	controller *Controller
}

func newFixture(t *testing.T, decoder func() camera.Decoder, detector detect.Detector) *fixture {
	t.Helper()
	logger := zap.NewNop()

	hub := camera.NewHub(logger)
	hub.Register(deviceID, "Front desk")

	endpoint := new(MockEndpoint)
	feedback := new(MockFeedback)
	feedback.On("Success", mock.Anything).Return(nil).Maybe()
	feedback.On("Error", mock.Anything).Return(nil).Maybe()

	renderer := overlay.NewRenderer(overlay.DefaultInset, logger)
	renderer.Resize(640, 480, 1)

	verifier := verify.NewClient(endpoint, feedback, nil, verify.Options{Timeout: time.Second}, logger)
	c := NewController(camera.NewReader(hub, decoder, logger), detector, renderer, verifier,
		Options{Margin: 8, Interval: 10 * time.Millisecond}, logger)
	t.Cleanup(func() { _ = c.Close() })

	return &fixture{hub: hub, endpoint: endpoint, feedback: feedback, renderer: renderer, controller: c}
}

func defaultFixture(t *testing.T) *fixture {
	return newFixture(t, func() camera.Decoder { return fakeDecoder{} }, detect.NullDetector{})
}

func eventAround(start, end time.Duration) models.Event {
	now := time.Now()
	s, e := now.Add(start), now.Add(end)
	return models.Event{ID: 7, Title: "Opening Ceremony", StartsAt: &s, EndsAt: &e}
}

func ongoingEvent() models.Event {
	return eventAround(-time.Hour, time.Hour)
}

func generation(c *Controller) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func requireResult(t *testing.T, state models.ScannerState) *models.ResultView {
	t.Helper()
	require.NotNil(t, state.Result)
	return state.Result
}

func TestStart_NoEventSelected(t *testing.T) {
	f := defaultFixture(t)

	require.NoError(t, f.controller.Start(context.Background()))

	state := f.controller.Snapshot()
	result := requireResult(t, state)
	assert.False(t, result.OK)
	assert.Equal(t, verify.MsgNoEvent, result.Message)
	assert.Equal(t, models.StatusError, state.Status)
	assert.Equal(t, models.AimIdle, state.Aim)
	assert.False(t, state.CanStart)
	assert.Equal(t, 0, streams(f.hub, deviceID))
	f.feedback.AssertNumberOfCalls(t, "Error", 1)
	f.endpoint.AssertNotCalled(t, "Scan", mock.Anything, mock.Anything)
}

func TestStart_EventNotOngoing(t *testing.T) {
	tests := []struct {
		name    string
		event   models.Event
		message string
	}{
		{"upcoming", eventAround(time.Hour, 2*time.Hour), verify.MsgEventUpcoming},
		{"closed", eventAround(-3*time.Hour, -time.Hour), verify.MsgEventClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := defaultFixture(t)
			f.controller.SelectEvent(tt.event)

			assert.False(t, f.controller.Snapshot().CanStart)
			require.NoError(t, f.controller.Start(context.Background()))

			result := requireResult(t, f.controller.Snapshot())
			assert.False(t, result.OK)
			assert.Equal(t, tt.message, result.Message)
			assert.Equal(t, 0, streams(f.hub, deviceID))
			f.feedback.AssertNumberOfCalls(t, "Error", 1)
		})
	}
}

func TestStartStop(t *testing.T) {
	f := defaultFixture(t)
	f.controller.SelectEvent(ongoingEvent())

	require.NoError(t, f.controller.Start(context.Background()))

	state := f.controller.Snapshot()
	assert.Equal(t, models.StatusScanning, state.Status)
	assert.Equal(t, models.AimSearching, state.Aim)
	assert.True(t, state.CanStart)
	assert.NotEmpty(t, state.SessionID)
	assert.Nil(t, state.Result)
	assert.Equal(t, 1, streams(f.hub, deviceID))

	// Starting again does not open a second track.
	require.NoError(t, f.controller.Start(context.Background()))
	assert.Equal(t, 1, streams(f.hub, deviceID))

	f.controller.Stop()
	f.controller.Stop()

	state = f.controller.Snapshot()
	assert.Equal(t, models.StatusIdle, state.Status)
	assert.Equal(t, models.AimIdle, state.Aim)
	assert.Equal(t, 0, streams(f.hub, deviceID))
}

func TestStop_NeverStarted(t *testing.T) {
	f := defaultFixture(t)

	f.controller.Stop()
	f.controller.Stop()

	state := f.controller.Snapshot()
	assert.Equal(t, models.StatusIdle, state.Status)
	assert.Equal(t, models.AimIdle, state.Aim)
	assert.Equal(t, 0, streams(f.hub, deviceID))
}

func TestDecode_SingleFlight(t *testing.T) {
	f := defaultFixture(t)
	f.controller.SelectEvent(ongoingEvent())
	require.NoError(t, f.controller.Start(context.Background()))
	gen := generation(f.controller)

	entered := make(chan struct{})
	release := make(chan struct{})
	f.endpoint.On("Scan", mock.Anything, models.ScanRequest{Code: "QR123", EventID: 7}).
		Return(&models.VerificationResult{OK: true, Message: "Checked in"}, nil).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).Once()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.controller.onDecode(gen, 7, "QR123", nil)
	}()

	<-entered
	assert.Equal(t, models.StatusVerifying, f.controller.Snapshot().Status)
	assert.Equal(t, 0, streams(f.hub, deviceID))

	f.controller.onDecode(gen, 7, "QR123", nil)
	_, err := f.controller.SubmitCode(context.Background(), "QR123")
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, f.controller.ScanAgain(context.Background()), ErrBusy)

	close(release)
	wg.Wait()

	f.endpoint.AssertNumberOfCalls(t, "Scan", 1)
	state := f.controller.Snapshot()
	assert.Equal(t, models.StatusSuccess, state.Status)
	assert.Equal(t, "Verified", requireResult(t, state).Title)
}

func TestDecode_StaleCallbackIgnored(t *testing.T) {
	f := defaultFixture(t)
	f.controller.SelectEvent(ongoingEvent())
	require.NoError(t, f.controller.Start(context.Background()))
	gen := generation(f.controller)

	f.controller.Stop()
	f.controller.onDecode(gen, 7, "QR123", nil)
	f.controller.onDecode(gen, 7, "", errors.New("stream broke"))

	f.endpoint.AssertNotCalled(t, "Scan", mock.Anything, mock.Anything)
	assert.Equal(t, models.StatusIdle, f.controller.Snapshot().Status)
}

func TestDecode_Errors(t *testing.T) {
	f := defaultFixture(t)
	f.controller.SelectEvent(ongoingEvent())
	require.NoError(t, f.controller.Start(context.Background()))
	gen := generation(f.controller)

	f.controller.onDecode(gen, 7, "", fmt.Errorf("%w: no finder pattern", camera.ErrNotFound))
	assert.Equal(t, models.StatusScanning, f.controller.Snapshot().Status)

	f.controller.onDecode(gen, 7, "", errors.New("sensor unplugged"))

	state := f.controller.Snapshot()
	assert.Equal(t, models.StatusError, state.Status)
	assert.Equal(t, models.AimIdle, state.Aim)
	assert.Equal(t, verify.MsgCameraFailed, requireResult(t, state).Message)
	assert.Equal(t, 0, streams(f.hub, deviceID))
}

func TestStart_CameraErrors(t *testing.T) {
	t.Run("permission denied", func(t *testing.T) {
		f := defaultFixture(t)
		require.NoError(t, f.hub.Revoke(deviceID))
		f.controller.SelectEvent(ongoingEvent())

		require.NoError(t, f.controller.Start(context.Background()))

		state := f.controller.Snapshot()
		assert.Equal(t, models.StatusError, state.Status)
		assert.Equal(t, models.AimIdle, state.Aim)
		result := requireResult(t, state)
		assert.False(t, result.OK)
		assert.Equal(t, verify.MsgCameraDenied, result.Message)
		f.feedback.AssertNumberOfCalls(t, "Error", 1)
	})

	t.Run("no camera", func(t *testing.T) {
		logger := zap.NewNop()
		feedback := new(MockFeedback)
		feedback.On("Error", mock.Anything).Return(nil)
		renderer := overlay.NewRenderer(0, logger)
		verifier := verify.NewClient(new(MockEndpoint), feedback, nil, verify.Options{}, logger)
		c := NewController(camera.NewReader(camera.NewHub(logger), nil, logger), nil, renderer, verifier, Options{}, logger)
		defer c.Close()

		c.SelectEvent(ongoingEvent())
		require.NoError(t, c.Start(context.Background()))

		assert.Equal(t, verify.MsgCameraNotFound, requireResult(t, c.Snapshot()).Message)
	})

	t.Run("revoked while scanning", func(t *testing.T) {
		f := defaultFixture(t)
		f.controller.SelectEvent(ongoingEvent())
		require.NoError(t, f.controller.Start(context.Background()))

		require.NoError(t, f.hub.Revoke(deviceID))

		assert.Eventually(t, func() bool {
			return f.controller.Snapshot().Status == models.StatusError
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, verify.MsgCameraFailed, requireResult(t, f.controller.Snapshot()).Message)
	})
}

func TestSubmitCode(t *testing.T) {
	t.Run("server unreachable", func(t *testing.T) {
		f := defaultFixture(t)
		f.controller.SelectEvent(ongoingEvent())
		require.NoError(t, f.controller.Start(context.Background()))
		f.endpoint.On("Scan", mock.Anything, mock.Anything).Return(nil, upstream.ErrUnreachable)

		outcome, err := f.controller.SubmitCode(context.Background(), "  QR999 ")
		require.NoError(t, err)

		assert.False(t, outcome.Result.OK)
		assert.Equal(t, verify.MsgServerUnreachable, outcome.Result.Message)
		assert.Equal(t, 0, streams(f.hub, deviceID))
		assert.Equal(t, models.StatusError, f.controller.Snapshot().Status)
		f.endpoint.AssertCalled(t, "Scan", mock.Anything, models.ScanRequest{Code: "QR999", EventID: 7})
		f.feedback.AssertNumberOfCalls(t, "Error", 1)
	})

	t.Run("no event", func(t *testing.T) {
		f := defaultFixture(t)

		outcome, err := f.controller.SubmitCode(context.Background(), "QR123")
		require.NoError(t, err)
		assert.Equal(t, verify.MsgNoEvent, outcome.Result.Message)
		f.endpoint.AssertNotCalled(t, "Scan", mock.Anything, mock.Anything)
	})

	t.Run("blank code", func(t *testing.T) {
		f := defaultFixture(t)
		f.controller.SelectEvent(ongoingEvent())

		outcome, err := f.controller.SubmitCode(context.Background(), "   ")
		require.NoError(t, err)
		assert.Equal(t, verify.MsgEmptyCode, outcome.Result.Message)
	})
}

func TestScanAgain(t *testing.T) {
	f := defaultFixture(t)
	require.NoError(t, f.controller.Start(context.Background()))
	first := f.controller.Snapshot()
	require.NotNil(t, first.Result)

	f.controller.SelectEvent(ongoingEvent())
	require.NoError(t, f.controller.ScanAgain(context.Background()))

	state := f.controller.Snapshot()
	assert.Nil(t, state.Result)
	assert.Equal(t, models.StatusScanning, state.Status)
	assert.NotEqual(t, first.SessionID, state.SessionID)
	assert.Equal(t, 1, streams(f.hub, deviceID))
}

func TestSelectDevice(t *testing.T) {
	f := defaultFixture(t)
	f.hub.Register("cam-2", "Side door")

	assert.ErrorIs(t, f.controller.SelectDevice(context.Background(), "cam-9"), ErrUnknownDevice)

	f.controller.SelectEvent(ongoingEvent())
	require.NoError(t, f.controller.Start(context.Background()))
	assert.Equal(t, 1, streams(f.hub, deviceID))

	require.NoError(t, f.controller.SelectDevice(context.Background(), "cam-2"))
	assert.Equal(t, 0, streams(f.hub, deviceID))
	assert.Equal(t, 1, streams(f.hub, "cam-2"))
	assert.Equal(t, "cam-2", f.controller.Snapshot().DeviceID)
}

func TestSink_UpdatesAim(t *testing.T) {
	f := defaultFixture(t)
	f.controller.SelectEvent(ongoingEvent())
	require.NoError(t, f.controller.Start(context.Background()))
	gen := generation(f.controller)

	candidate := &aim.Candidate{
		Polygon: geometry.Rect{X: 300, Y: 220, Width: 40, Height: 40}.Corners(),
		Bounds:  geometry.Rect{X: 300, Y: 220, Width: 40, Height: 40},
	}
	f.controller.sink(gen)(candidate, models.AimAligned)
	assert.Equal(t, models.AimAligned, f.controller.Snapshot().Aim)

	f.controller.Stop()
	f.controller.sink(gen)(candidate, models.AimDetected)
	assert.Equal(t, models.AimIdle, f.controller.Snapshot().Aim)
}

func TestClose(t *testing.T) {
	f := defaultFixture(t)
	f.controller.SelectEvent(ongoingEvent())
	require.NoError(t, f.controller.Start(context.Background()))

	require.NoError(t, f.controller.Close())
	require.NoError(t, f.controller.Close())

	assert.Equal(t, 0, streams(f.hub, deviceID))
	assert.ErrorIs(t, f.controller.Start(context.Background()), ErrClosed)
}

func TestEndToEnd_CameraScan(t *testing.T) {
	f := newFixture(t,
		func() camera.Decoder { return camera.NewZXingDecoder() },
		detect.NewZXingDetector(),
	)
	f.controller.SelectEvent(ongoingEvent())

	scannedAt := "2026-01-01T10:00:00Z"
	f.endpoint.On("Scan", mock.Anything, models.ScanRequest{Code: "QR123", EventID: 7}).Return(&models.VerificationResult{
		OK:          true,
		Message:     "Checked in",
		Participant: &models.Participant{ID: 1, FullName: "Jane Doe"},
		ScannedAt:   &scannedAt,
	}, nil).Once()

	require.NoError(t, f.controller.Start(context.Background()))

	frame, err := qrcode.NewQRCodeWriter().Encode("QR123", gozxing.BarcodeFormat_QR_CODE, 300, 300, nil)
	require.NoError(t, err)
	require.NoError(t, f.hub.Push(deviceID, frame))

	assert.Eventually(t, func() bool {
		return f.controller.Snapshot().Status == models.StatusSuccess
	}, 2*time.Second, 10*time.Millisecond)

	state := f.controller.Snapshot()
	result := requireResult(t, state)
	assert.Equal(t, "Verified", result.Title)
	assert.Equal(t, "Jane Doe", result.ParticipantName)
	assert.Equal(t, "Jan 1, 2026 10:00:00 AM UTC", result.ScannedAt)
	assert.Equal(t, models.AimIdle, state.Aim)
	assert.Equal(t, 0, streams(f.hub, deviceID))
	f.feedback.AssertNumberOfCalls(t, "Success", 1)
	f.endpoint.AssertNumberOfCalls(t, "Scan", 1)
}

// streams returns the number of tracks open on the device.
func streams(hub *camera.Hub, deviceID string) int {
	devices, _ := hub.Devices(context.Background())
	for _, d := range devices {
		if d.ID == deviceID {
			return d.Streams
		}
	}
	return 0
}
