package models

import (
	"time"
)

// EventPhase is the lifecycle phase of an event relative to now.
type EventPhase string

const (
	PhaseUpcoming EventPhase = "upcoming"
	PhaseOngoing  EventPhase = "ongoing"
	PhaseClosed   EventPhase = "closed"
)

// Valid reports whether p is one of the known phases.
func (p EventPhase) Valid() bool {
	return p == PhaseUpcoming || p == PhaseOngoing || p == PhaseClosed
}

// Event is an entry of the event list supplied by the check-in API.
type Event struct {
	ID       int64      `json:"id"`
	Title    string     `json:"title"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
	IsActive *bool      `json:"is_active,omitempty"`
	Phase    EventPhase `json:"phase,omitempty"`
}

// PhaseAt returns the phase of the event at now. A phase supplied by the
// server wins; otherwise it is derived from the active flag and the
// start/end timestamps. Calendar days are compared in now's location.
func (e Event) PhaseAt(now time.Time) EventPhase {
	if e.Phase.Valid() {
		return e.Phase
	}
	if e.IsActive != nil && !*e.IsActive {
		return PhaseClosed
	}
	if e.StartsAt == nil {
		return PhaseOngoing
	}

	start := *e.StartsAt
	if now.Before(start) {
		return PhaseUpcoming
	}
	if e.EndsAt != nil {
		if !now.After(*e.EndsAt) {
			return PhaseOngoing
		}
		return PhaseClosed
	}
	if sameDay(start.In(now.Location()), now) {
		return PhaseOngoing
	}
	return PhaseClosed
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// EventSelection is the operator-chosen event together with its phase.
type EventSelection struct {
	Event Event      `json:"event"`
	Phase EventPhase `json:"phase"`
}

// EventsResponse wraps the event list in the API response.
type EventsResponse struct {
	Data []EventSelection `json:"data"`
}
