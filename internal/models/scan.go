// Package models contains the data models for the application.
package models

import (
	"time"
)

// AimState describes where a detected barcode sits relative to the capture frame.
type AimState string

const (
	AimIdle      AimState = "idle"
	AimSearching AimState = "searching"
	AimDetected  AimState = "detected"
	AimAligned   AimState = "aligned"
)

// Hint returns the operator-facing hint text for the aim state.
func (s AimState) Hint() string {
	switch s {
	case AimSearching:
		return "Point the camera at a QR code"
	case AimDetected:
		return "QR code found, center it inside the frame"
	case AimAligned:
		return "Hold steady..."
	default:
		return "Press Start to open the camera"
	}
}

// ScanStatus is the state of a scan session.
type ScanStatus string

const (
	StatusIdle      ScanStatus = "idle"
	StatusScanning  ScanStatus = "scanning"
	StatusVerifying ScanStatus = "verifying"
	StatusSuccess   ScanStatus = "success"
	StatusError     ScanStatus = "error"
)

// ScanSource records how a code (or a failure) reached the verification funnel.
type ScanSource string

const (
	SourceCamera       ScanSource = "camera"
	SourceManual       ScanSource = "manual"
	SourcePrecondition ScanSource = "precondition"
	SourceCameraError  ScanSource = "camera_error"
)

// Participant is the participant summary returned by the verification endpoint.
type Participant struct {
	ID             int64   `json:"id"`
	FullName       string  `json:"full_name"`
	DisplayID      *string `json:"display_id,omitempty"`
	QRPayload      *string `json:"qr_payload,omitempty"`
	QRToken        *string `json:"qr_token,omitempty"`
	CountryCode    *string `json:"country_code,omitempty"`
	Email          *string `json:"email,omitempty"`
	Country        *string `json:"country,omitempty"`
	CountryFlagURL *string `json:"country_flag_url,omitempty"`
	UserType       *string `json:"user_type,omitempty"`
	IsVerified     *bool   `json:"is_verified,omitempty"`
}

// EventRef is a short reference to an event inside a verification result.
type EventRef struct {
	ID       int64   `json:"id"`
	Title    string  `json:"title"`
	StartsAt *string `json:"starts_at,omitempty"`
}

// VerificationResult is the response of the verification endpoint, or a
// locally synthesized failure shaped the same way.
type VerificationResult struct {
	OK               bool         `json:"ok"`
	Message          string       `json:"message"`
	Participant      *Participant `json:"participant,omitempty"`
	QRDataURL        *string      `json:"qr_data_url,omitempty"`
	RegisteredEvents []EventRef   `json:"registered_events,omitempty"`
	CheckedInEvent   *EventRef    `json:"checked_in_event,omitempty"`
	AlreadyCheckedIn bool         `json:"already_checked_in,omitempty"`
	ScannedAt        *string      `json:"scanned_at,omitempty"`
}

// Failure builds a local failure result carrying message.
func Failure(message string) *VerificationResult {
	return &VerificationResult{OK: false, Message: message}
}

// ScanRequest is the body posted to the verification endpoint.
type ScanRequest struct {
	Code    string `json:"code"`
	EventID int64  `json:"event_id"`
}

// JournalEntry is one delivered verification outcome recorded by the station.
type JournalEntry struct {
	ID            string     `json:"id"`
	SessionID     string     `json:"session_id"`
	EventID       *int64     `json:"event_id,omitempty"`
	Code          string     `json:"code,omitempty"`
	Source        ScanSource `json:"source"`
	OK            bool       `json:"ok"`
	Message       string     `json:"message"`
	ParticipantID *int64     `json:"participant_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
