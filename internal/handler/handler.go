// Package handler provides the operator HTTP API of the check-in station.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/asean-events/checkin-station/internal/cache"
	"github.com/asean-events/checkin-station/internal/camera"
	"github.com/asean-events/checkin-station/internal/database"
	"github.com/asean-events/checkin-station/internal/feedback"
	"github.com/asean-events/checkin-station/internal/models"
	"github.com/asean-events/checkin-station/internal/session"
	"github.com/asean-events/checkin-station/internal/verify"
)

// maxFrameBytes bounds one pushed camera frame.
const maxFrameBytes = 8 << 20

// Scanner is the scan session the API drives.
type Scanner interface {
	Start(ctx context.Context) error
	Stop()
	SubmitCode(ctx context.Context, code string) (verify.Outcome, error)
	ScanAgain(ctx context.Context) error
	SelectEvent(event models.Event)
	SelectDevice(ctx context.Context, deviceID string) error
	Devices(ctx context.Context) ([]camera.DeviceInfo, error)
	Snapshot() models.ScannerState
}

// Devices is the registry camera frames are pushed into.
type Devices interface {
	Register(id, label string) camera.DeviceInfo
	Revoke(id string) error
	PushEncoded(deviceID string, data []byte) error
}

// Overlay is the rendered overlay surface.
type Overlay interface {
	Resize(cssW, cssH, dpr float64)
	PNG() ([]byte, error)
}

// Cues exposes the last rendered feedback cue.
type Cues interface {
	LastCue() (feedback.Cue, bool)
}

// EventSource lists the events of the check-in API.
type EventSource interface {
	Events(ctx context.Context) ([]models.Event, error)
}

// DevicesResponse wraps the video inputs in the API response.
type DevicesResponse struct {
	Data []camera.DeviceInfo `json:"data"`
}

// DeviceResponse wraps one video input in the API response.
type DeviceResponse struct {
	Data camera.DeviceInfo `json:"data"`
}

// Dependencies are the collaborators of a Handler. Cache and Journal are
// optional.
type Dependencies struct {
	Scanner Scanner
	Devices Devices
	Overlay Overlay
	Cues    Cues
	Events  EventSource
	Cache   cache.Cache
	Journal database.Repository
	Now     func() time.Time
}

// Handler provides HTTP handlers for the scanner station.
type Handler struct {
	deps   Dependencies
	logger *zap.Logger
}

// NewHandler creates a new station handler.
func NewHandler(deps Dependencies, logger *zap.Logger) *Handler {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Handler{
		deps:   deps,
		logger: logger,
	}
}

// RegisterRoutes registers the handler routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/events", h.ListEvents)

	scanner := rg.Group("/scanner")
	scanner.GET("/devices", h.ListDevices)
	scanner.POST("/devices", h.RegisterDevice)
	scanner.POST("/devices/:id/frames", h.PushFrame)
	scanner.DELETE("/devices/:id", h.RevokeDevice)

	scanner.PUT("/event", h.SelectEvent)
	scanner.PUT("/device", h.SelectDevice)
	scanner.PUT("/viewport", h.Resize)

	scanner.POST("/start", h.Start)
	scanner.POST("/stop", h.Stop)
	scanner.POST("/manual", h.SubmitCode)
	scanner.POST("/again", h.ScanAgain)

	scanner.GET("/state", h.State)
	scanner.GET("/overlay.png", h.OverlayPNG)
	scanner.GET("/cue.wav", h.CueWAV)
	scanner.GET("/journal", h.Journal)
}

// ListEvents returns the events with their phase at the current time.
// @Summary List events
// @Description List check-in events with their phase at the current time
// @Tags events
// @Produce json
// @Success 200 {object} models.EventsResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /api/v1/events [get]
func (h *Handler) ListEvents(c *gin.Context) {
	events, _, err := h.loadEvents(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load events", zap.Error(err))
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "upstream_error",
			Message: "failed to retrieve events",
		})
		return
	}

	now := h.deps.Now()
	data := make([]models.EventSelection, 0, len(events))
	for _, e := range events {
		data = append(data, models.EventSelection{Event: e, Phase: e.PhaseAt(now)})
	}
	c.JSON(http.StatusOK, models.EventsResponse{Data: data})
}

// loadEvents reads the event list from the cache, falling back to the
// check-in API. cached reports whether the list came from the cache.
func (h *Handler) loadEvents(ctx context.Context) (events []models.Event, cached bool, err error) {
	if h.deps.Cache != nil {
		events, found, err := h.deps.Cache.GetEvents(ctx)
		if err == nil && found {
			h.logger.Debug("Returning cached events")
			return events, true, nil
		}
	}

	events, err = h.fetchEvents(ctx)
	return events, false, err
}

// refreshEvents drops the cached list and fetches it again.
func (h *Handler) refreshEvents(ctx context.Context) ([]models.Event, error) {
	if err := h.deps.Cache.Invalidate(ctx); err != nil {
		h.logger.Warn("Failed to invalidate events cache", zap.Error(err))
	}
	return h.fetchEvents(ctx)
}

func (h *Handler) fetchEvents(ctx context.Context) ([]models.Event, error) {
	events, err := h.deps.Events.Events(ctx)
	if err != nil {
		return nil, err
	}

	if h.deps.Cache != nil {
		_ = h.deps.Cache.SetEvents(ctx, events)
	}
	return events, nil
}

func findEvent(events []models.Event, id int64) (models.Event, bool) {
	for _, e := range events {
		if e.ID == id {
			return e, true
		}
	}
	return models.Event{}, false
}

// ListDevices enumerates the video inputs.
// @Summary List cameras
// @Description Enumerate the registered video inputs
// @Tags devices
// @Produce json
// @Success 200 {object} DevicesResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/scanner/devices [get]
func (h *Handler) ListDevices(c *gin.Context) {
	devices, err := h.deps.Scanner.Devices(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list devices", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to list cameras",
		})
		return
	}
	c.JSON(http.StatusOK, DevicesResponse{Data: devices})
}

// RegisterDevice adds a camera, or re-grants a revoked one.
// @Summary Register camera
// @Description Register a video input or grant access to a revoked one
// @Tags devices
// @Accept json
// @Produce json
// @Param device body models.RegisterDeviceRequest true "Camera"
// @Success 201 {object} DeviceResponse
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/scanner/devices [post]
func (h *Handler) RegisterDevice(c *gin.Context) {
	var req models.RegisterDeviceRequest
	if !h.bind(c, &req) {
		return
	}

	info := h.deps.Devices.Register(req.ID, req.Label)
	c.JSON(http.StatusCreated, DeviceResponse{Data: info})
}

// PushFrame feeds one JPEG or PNG frame to the device's open tracks.
// @Summary Push camera frame
// @Description Feed one encoded frame to the camera's open streams
// @Tags devices
// @Accept image/jpeg,image/png
// @Produce json
// @Param id path string true "Camera ID"
// @Success 202
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 413 {object} models.ErrorResponse
// @Router /api/v1/scanner/devices/{id}/frames [post]
func (h *Handler) PushFrame(c *gin.Context) {
	id := c.Param("id")

	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxFrameBytes))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
			Error:   "invalid_request",
			Message: fmt.Sprintf("frame exceeds maximum size of %d bytes", maxFrameBytes),
		})
		return
	}

	if err := h.deps.Devices.PushEncoded(id, data); err != nil {
		if errors.Is(err, camera.ErrNoCamera) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "not_found",
				Message: "camera not found",
			})
			return
		}
		h.logger.Debug("Rejected frame", zap.String("device_id", id), zap.Error(err))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	c.Status(http.StatusAccepted)
}

// RevokeDevice withdraws camera access for the device.
// @Summary Revoke camera
// @Description Withdraw access to a camera, ending its open streams
// @Tags devices
// @Produce json
// @Param id path string true "Camera ID"
// @Success 204
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/scanner/devices/{id} [delete]
func (h *Handler) RevokeDevice(c *gin.Context) {
	if err := h.deps.Devices.Revoke(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "camera not found",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// SelectEvent selects the event codes are verified against.
// @Summary Select event
// @Description Select the event scanned codes are checked in to
// @Tags scanner
// @Accept json
// @Produce json
// @Param event body models.SelectEventRequest true "Event selection"
// @Success 200 {object} models.StateResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /api/v1/scanner/event [put]
func (h *Handler) SelectEvent(c *gin.Context) {
	var req models.SelectEventRequest
	if !h.bind(c, &req) {
		return
	}

	ctx := c.Request.Context()
	events, cached, err := h.loadEvents(ctx)
	if err == nil && cached {
		if _, found := findEvent(events, req.EventID); !found {
			// The cached list may predate the event.
			h.logger.Debug("Event not in cached list, refreshing", zap.Int64("event_id", req.EventID))
			events, err = h.refreshEvents(ctx)
		}
	}
	if err != nil {
		h.logger.Error("Failed to load events", zap.Error(err))
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "upstream_error",
			Message: "failed to retrieve events",
		})
		return
	}

	if event, found := findEvent(events, req.EventID); found {
		h.deps.Scanner.SelectEvent(event)
		h.state(c, http.StatusOK)
		return
	}

	c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "not_found",
		Message: "event not found",
	})
}

// SelectDevice switches the scanning camera.
// @Summary Select camera
// @Description Switch the camera used for scanning
// @Tags scanner
// @Accept json
// @Produce json
// @Param device body models.SelectDeviceRequest true "Camera selection"
// @Success 200 {object} models.StateResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/scanner/device [put]
func (h *Handler) SelectDevice(c *gin.Context) {
	var req models.SelectDeviceRequest
	if !h.bind(c, &req) {
		return
	}

	if err := h.deps.Scanner.SelectDevice(c.Request.Context(), req.DeviceID); err != nil {
		if errors.Is(err, session.ErrUnknownDevice) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "not_found",
				Message: "camera not found",
			})
			return
		}
		h.fail(c, err)
		return
	}
	h.state(c, http.StatusOK)
}

// Resize reports the overlay host size.
// @Summary Resize overlay
// @Description Report the overlay host size and device pixel ratio
// @Tags scanner
// @Accept json
// @Param viewport body models.ViewportRequest true "Viewport"
// @Success 204
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/scanner/viewport [put]
func (h *Handler) Resize(c *gin.Context) {
	var req models.ViewportRequest
	if !h.bind(c, &req) {
		return
	}

	h.deps.Overlay.Resize(req.Width, req.Height, req.DPR)
	c.Status(http.StatusNoContent)
}

// Start opens the camera and starts scanning.
// @Summary Start scanning
// @Description Open the selected camera and start decoding
// @Tags scanner
// @Produce json
// @Success 200 {object} models.StateResponse
// @Failure 500 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/v1/scanner/start [post]
func (h *Handler) Start(c *gin.Context) {
	if err := h.deps.Scanner.Start(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	h.state(c, http.StatusOK)
}

// Stop stops scanning.
// @Summary Stop scanning
// @Description Release the camera and clear the overlay
// @Tags scanner
// @Produce json
// @Success 200 {object} models.StateResponse
// @Router /api/v1/scanner/stop [post]
func (h *Handler) Stop(c *gin.Context) {
	h.deps.Scanner.Stop()
	h.state(c, http.StatusOK)
}

// SubmitCode verifies an operator-typed code.
// @Summary Submit code
// @Description Verify a code typed by the operator
// @Tags scanner
// @Accept json
// @Produce json
// @Param code body models.ManualCodeRequest true "Code"
// @Success 200 {object} models.StateResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/v1/scanner/manual [post]
func (h *Handler) SubmitCode(c *gin.Context) {
	var req models.ManualCodeRequest
	if !h.bind(c, &req) {
		return
	}

	if _, err := h.deps.Scanner.SubmitCode(c.Request.Context(), req.Code); err != nil {
		h.fail(c, err)
		return
	}
	h.state(c, http.StatusOK)
}

// ScanAgain closes the result and restarts scanning.
// @Summary Scan again
// @Description Close the result and restart scanning
// @Tags scanner
// @Produce json
// @Success 200 {object} models.StateResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/v1/scanner/again [post]
func (h *Handler) ScanAgain(c *gin.Context) {
	if err := h.deps.Scanner.ScanAgain(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	h.state(c, http.StatusOK)
}

// State returns the scanner state.
// @Summary Scanner state
// @Description Status, aim, hint and result of the scan session
// @Tags scanner
// @Produce json
// @Success 200 {object} models.StateResponse
// @Router /api/v1/scanner/state [get]
func (h *Handler) State(c *gin.Context) {
	h.state(c, http.StatusOK)
}

// OverlayPNG returns the rendered overlay.
// @Summary Overlay image
// @Description The rendered overlay surface
// @Tags scanner
// @Produce png
// @Success 200 {file} binary
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/scanner/overlay.png [get]
func (h *Handler) OverlayPNG(c *gin.Context) {
	data, err := h.deps.Overlay.PNG()
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "overlay has not been sized",
		})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", data)
}

// CueWAV returns the last feedback cue as WAV audio. The haptic pattern is
// sent in milliseconds in the X-Vibration header.
// @Summary Feedback cue
// @Description The last feedback cue as WAV audio
// @Tags scanner
// @Produce audio/wav
// @Success 200 {file} binary
// @Header 200 {string} X-Cue-Kind "success or error"
// @Header 200 {string} X-Vibration "Haptic pattern in milliseconds"
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/scanner/cue.wav [get]
func (h *Handler) CueWAV(c *gin.Context) {
	cue, ok := h.deps.Cues.LastCue()
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "no cue has been played",
		})
		return
	}

	pattern := make([]string, 0, len(cue.Vibration))
	for _, d := range cue.Vibration {
		pattern = append(pattern, strconv.FormatInt(d.Milliseconds(), 10))
	}
	data, err := feedback.EncodeWAV(cue.Clip)
	if err != nil {
		h.logger.Error("Failed to encode cue", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to encode cue",
		})
		return
	}

	c.Header("X-Cue-Kind", string(cue.Kind))
	c.Header("X-Vibration", strings.Join(pattern, ","))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "audio/wav", data)
}

// Journal returns the most recent verification outcomes.
// @Summary Scan journal
// @Description Most recent verification outcomes, newest first
// @Tags journal
// @Produce json
// @Param limit query int false "Maximum entries" default(50)
// @Success 200 {object} models.JournalResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Failure 503 {object} models.ErrorResponse
// @Router /api/v1/scanner/journal [get]
func (h *Handler) Journal(c *gin.Context) {
	if h.deps.Journal == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error:   "unavailable",
			Message: "scan journal is not configured",
		})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "limit must be a number",
		})
		return
	}

	entries, err := h.deps.Journal.Recent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to read journal", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to read scan journal",
		})
		return
	}
	c.JSON(http.StatusOK, models.JournalResponse{Data: entries})
}

func (h *Handler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		h.logger.Warn("Invalid request", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return false
	}
	return true
}

func (h *Handler) state(c *gin.Context, status int) {
	c.JSON(status, models.StateResponse{Data: h.deps.Scanner.Snapshot()})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrBusy):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "busy",
			Message: "a verification is already in progress",
		})
	case errors.Is(err, session.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Error:   "unavailable",
			Message: "scanner is shutting down",
		})
	default:
		h.logger.Error("Scanner request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "scanner request failed",
		})
	}
}
