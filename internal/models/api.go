package models

// ResultView is the result dialog model derived from a VerificationResult.
// Optional elements are omitted when the server did not supply them.
type ResultView struct {
	OK                bool     `json:"ok"`
	Title             string   `json:"title"`
	Message           string   `json:"message"`
	ParticipantName   string   `json:"participant_name,omitempty"`
	DisplayID         string   `json:"display_id,omitempty"`
	Country           string   `json:"country,omitempty"`
	CountryFlagURL    string   `json:"country_flag_url,omitempty"`
	UserType          string   `json:"user_type,omitempty"`
	CheckedInEvent    string   `json:"checked_in_event,omitempty"`
	RegisteredEvents  []string `json:"registered_events,omitempty"`
	AlreadyCheckedIn  bool     `json:"already_checked_in,omitempty"`
	ScannedAt         string   `json:"scanned_at,omitempty"`
	ScannedAtRelative string   `json:"scanned_at_relative,omitempty"`
	QRDataURL         string   `json:"qr_data_url,omitempty"`
}

// ScannerState is the snapshot of the scanner read by the operator UI.
type ScannerState struct {
	SessionID string          `json:"session_id"`
	Status    ScanStatus      `json:"status"`
	Aim       AimState        `json:"aim"`
	Hint      string          `json:"hint"`
	DeviceID  string          `json:"device_id,omitempty"`
	Event     *EventSelection `json:"event,omitempty"`
	CanStart  bool            `json:"can_start"`
	Result    *ResultView     `json:"result,omitempty"`
}

// SelectEventRequest is the body of the event selection endpoint.
type SelectEventRequest struct {
	EventID int64 `json:"event_id" binding:"required"`
}

// SelectDeviceRequest is the body of the device selection endpoint.
type SelectDeviceRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
}

// RegisterDeviceRequest is the body of the device registration endpoint.
type RegisterDeviceRequest struct {
	ID    string `json:"id" binding:"required,max=128"`
	Label string `json:"label" binding:"max=256"`
}

// ViewportRequest reports the overlay host size in CSS pixels.
type ViewportRequest struct {
	Width  float64 `json:"width" binding:"required,gt=0"`
	Height float64 `json:"height" binding:"required,gt=0"`
	DPR    float64 `json:"dpr"`
}

// ManualCodeRequest is the body of the manual code entry endpoint.
type ManualCodeRequest struct {
	Code string `json:"code" binding:"required,max=512"`
}

// StateResponse wraps the scanner state in the API response.
type StateResponse struct {
	Data ScannerState `json:"data"`
}

// JournalResponse wraps journal entries in the API response.
type JournalResponse struct {
	Data []JournalEntry `json:"data"`
}

// ErrorResponse represents an error response from the API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
