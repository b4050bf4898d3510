package verify

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/asean-events/checkin-station/internal/models"
)

const scannedAtLayout = "Jan 2, 2006 3:04:05 PM MST"

// BuildView derives the dialog model from a result. Absent optional fields
// leave their element out.
func BuildView(r *models.VerificationResult, loc *time.Location, now time.Time) models.ResultView {
	v := models.ResultView{
		OK:               r.OK,
		Title:            "Not Verified",
		Message:          r.Message,
		AlreadyCheckedIn: r.AlreadyCheckedIn,
	}
	if r.OK {
		v.Title = "Verified"
	}

	if p := r.Participant; p != nil {
		v.ParticipantName = p.FullName
		v.DisplayID = deref(p.DisplayID)
		v.Country = deref(p.Country)
		v.CountryFlagURL = deref(p.CountryFlagURL)
		v.UserType = deref(p.UserType)
	}
	if r.CheckedInEvent != nil {
		v.CheckedInEvent = r.CheckedInEvent.Title
	}
	for _, e := range r.RegisteredEvents {
		if e.Title != "" {
			v.RegisteredEvents = append(v.RegisteredEvents, e.Title)
		}
	}
	v.QRDataURL = deref(r.QRDataURL)

	if s := deref(r.ScannedAt); s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			v.ScannedAt = t.In(loc).Format(scannedAtLayout)
			v.ScannedAtRelative = humanize.RelTime(t, now, "ago", "from now")
		} else {
			v.ScannedAt = s
		}
	}
	return v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
