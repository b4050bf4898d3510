// Package verify resolves scanned codes against the check-in API. Every
// outcome, camera-sourced, typed, or a local failure, passes through
// Client so it gets the same feedback cue, journal entry and dialog model.
package verify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/asean-events/checkin-station/internal/models"
)

// User-facing messages for locally synthesized failures.
const (
	MsgNoEvent           = "Please select an event before scanning."
	MsgEventUpcoming     = "This event has not started yet. Scanning opens when it begins."
	MsgEventClosed       = "This event has already ended. Scanning is closed."
	MsgEmptyCode         = "Please enter a QR code."
	MsgCameraDenied      = "Camera permission was denied. Please allow camera access and try again."
	MsgCameraNotFound    = "No camera was found on this device."
	MsgCameraFailed      = "Unable to access the camera. Please try again."
	MsgServerUnreachable = "Unable to reach the server. Please try again."
	MsgTimeout           = "Verification timed out. Please try again."
)

// DefaultTimeout bounds one verification round-trip.
const DefaultTimeout = 15 * time.Second

// Endpoint is the remote verification endpoint.
type Endpoint interface {
	Scan(ctx context.Context, req models.ScanRequest) (*models.VerificationResult, error)
}

// Feedback plays the success and error cues.
type Feedback interface {
	Success(ctx context.Context) error
	Error(ctx context.Context) error
}

// Journal records delivered outcomes.
type Journal interface {
	Record(ctx context.Context, entry *models.JournalEntry) error
}

// Delivery describes one outcome handed to the funnel.
type Delivery struct {
	SessionID string
	EventID   *int64
	Code      string
	Source    models.ScanSource
	Result    *models.VerificationResult
}

// Outcome is what the result dialog displays.
type Outcome struct {
	Result *models.VerificationResult
	View   models.ResultView
}

// Options configures a Client.
type Options struct {
	Timeout  time.Duration
	Location *time.Location
	Now      func() time.Time
}

// Client is the verification funnel.
type Client struct {
	endpoint Endpoint
	feedback Feedback
	journal  Journal
	opts     Options
	logger   *zap.Logger
}

// NewClient creates a funnel. feedback and journal may be nil.
func NewClient(endpoint Endpoint, feedback Feedback, journal Journal, opts Options, logger *zap.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		endpoint: endpoint,
		feedback: feedback,
		journal:  journal,
		opts:     opts,
		logger:   logger,
	}
}

// Verify posts code for eventID and delivers the outcome. It never fails:
// transport and decoding errors become local failure results.
func (c *Client) Verify(ctx context.Context, sessionID, code string, eventID int64, source models.ScanSource) Outcome {
	result := c.scan(ctx, code, eventID)
	return c.Deliver(ctx, Delivery{
		SessionID: sessionID,
		EventID:   &eventID,
		Code:      code,
		Source:    source,
		Result:    result,
	})
}

func (c *Client) scan(ctx context.Context, code string, eventID int64) *models.VerificationResult {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	result, err := c.endpoint.Scan(ctx, models.ScanRequest{Code: code, EventID: eventID})
	if err == nil && result != nil {
		return result
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.logger.Warn("Verification timed out", zap.Int64("event_id", eventID), zap.Duration("timeout", c.opts.Timeout))
		return models.Failure(MsgTimeout)
	}
	c.logger.Error("Verification failed", zap.Int64("event_id", eventID), zap.Error(err))
	return models.Failure(MsgServerUnreachable)
}

// Deliver plays the cue for the result, journals it and returns the
// dialog model. A nil result is delivered as a generic failure.
func (c *Client) Deliver(ctx context.Context, d Delivery) Outcome {
	if d.Result == nil {
		d.Result = models.Failure(MsgServerUnreachable)
	}

	if c.feedback != nil {
		var err error
		if d.Result.OK {
			err = c.feedback.Success(ctx)
		} else {
			err = c.feedback.Error(ctx)
		}
		if err != nil {
			c.logger.Debug("Feedback cue failed", zap.Error(err))
		}
	}

	if c.journal != nil {
		if err := c.journal.Record(ctx, journalEntry(d, c.opts.Now())); err != nil {
			c.logger.Warn("Failed to journal verification", zap.Error(err))
		}
	}

	c.logger.Info("Verification delivered",
		zap.String("session_id", d.SessionID),
		zap.String("source", string(d.Source)),
		zap.Bool("ok", d.Result.OK),
	)

	return Outcome{
		Result: d.Result,
		View:   BuildView(d.Result, c.opts.Location, c.opts.Now()),
	}
}

func journalEntry(d Delivery, now time.Time) *models.JournalEntry {
	entry := &models.JournalEntry{
		SessionID: d.SessionID,
		EventID:   d.EventID,
		Code:      d.Code,
		Source:    d.Source,
		OK:        d.Result.OK,
		Message:   d.Result.Message,
		CreatedAt: now.UTC(),
	}
	if d.Result.Participant != nil {
		id := d.Result.Participant.ID
		entry.ParticipantID = &id
	}
	return entry
}
