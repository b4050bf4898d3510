package upstream

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/asean-events/checkin-station/internal/models"
)

var errNoMessage = errors.New("response has no message")

// parseScanResult reads a scan response. Only ok and message decide the
// outcome; every other part is read field by field and dropped when its
// shape is unexpected. The names of dropped parts are returned.
func parseScanResult(body []byte) (*models.VerificationResult, []string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, nil, err
	}

	message, ok := decode[string](fields["message"])
	if !ok {
		return nil, nil, errNoMessage
	}

	var dropped []string
	check := func(name string, present, fine bool) {
		if present && !fine {
			dropped = append(dropped, name)
		}
	}

	result := &models.VerificationResult{Message: message}

	result.OK, ok = flexBool(fields["ok"])
	check("ok", has(fields, "ok"), ok)

	if raw := fields["participant"]; !isNull(raw) {
		result.Participant, ok = parseParticipant(raw)
		check("participant", true, ok)
	}

	result.QRDataURL, ok = optString(fields["qr_data_url"])
	check("qr_data_url", has(fields, "qr_data_url"), ok)

	result.ScannedAt, ok = optString(fields["scanned_at"])
	check("scanned_at", has(fields, "scanned_at"), ok)

	result.AlreadyCheckedIn, ok = flexBool(fields["already_checked_in"])
	check("already_checked_in", has(fields, "already_checked_in"), ok)

	if raw := fields["checked_in_event"]; !isNull(raw) {
		if ref, fine := parseEventRef(raw); fine {
			result.CheckedInEvent = &ref
		} else {
			dropped = append(dropped, "checked_in_event")
		}
	}

	if raw := fields["registered_events"]; !isNull(raw) {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			dropped = append(dropped, "registered_events")
		}
		for _, item := range items {
			ref, fine := parseEventRef(item)
			if !fine {
				dropped = append(dropped, "registered_events[]")
				continue
			}
			result.RegisteredEvents = append(result.RegisteredEvents, ref)
		}
	}

	return result, dropped, nil
}

func parseParticipant(raw json.RawMessage) (*models.Participant, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false
	}

	p := &models.Participant{}
	p.ID, _ = flexInt(fields["id"])
	p.FullName, _ = decode[string](fields["full_name"])
	p.DisplayID, _ = optString(fields["display_id"])
	p.QRPayload, _ = optString(fields["qr_payload"])
	p.QRToken, _ = optString(fields["qr_token"])
	p.CountryCode, _ = optString(fields["country_code"])
	p.Email, _ = optString(fields["email"])
	p.Country, _ = optString(fields["country"])
	p.CountryFlagURL, _ = optString(fields["country_flag_url"])
	p.UserType, _ = optString(fields["user_type"])
	if raw := fields["is_verified"]; !isNull(raw) {
		if v, ok := flexBool(raw); ok {
			p.IsVerified = &v
		}
	}
	return p, true
}

func parseEventRef(raw json.RawMessage) (models.EventRef, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return models.EventRef{}, false
	}
	title, ok := decode[string](fields["title"])
	if !ok {
		return models.EventRef{}, false
	}
	ref := models.EventRef{Title: title}
	ref.ID, _ = flexInt(fields["id"])
	ref.StartsAt, _ = optString(fields["starts_at"])
	return ref, true
}

func decode[T any](raw json.RawMessage) (T, bool) {
	var v T
	if isNull(raw) {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false
	}
	return v, true
}

// optString reads an optional string. Absent and null are fine and nil.
func optString(raw json.RawMessage) (*string, bool) {
	if isNull(raw) {
		return nil, true
	}
	s, ok := decode[string](raw)
	if !ok {
		return nil, false
	}
	return &s, true
}

// flexBool accepts true/false, 0/1 and their string forms. Absent and
// null read as false.
func flexBool(raw json.RawMessage) (bool, bool) {
	if isNull(raw) {
		return false, true
	}
	if b, ok := decode[bool](raw); ok {
		return b, true
	}
	if n, ok := decode[float64](raw); ok {
		return n != 0, true
	}
	if s, ok := decode[string](raw); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		return b, err == nil
	}
	return false, false
}

// flexInt accepts a JSON number or a numeric string.
func flexInt(raw json.RawMessage) (int64, bool) {
	if n, ok := decode[json.Number](raw); ok {
		v, err := n.Int64()
		return v, err == nil
	}
	if s, ok := decode[string](raw); ok {
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		return v, err == nil
	}
	return 0, false
}

func has(fields map[string]json.RawMessage, name string) bool {
	_, ok := fields[name]
	return ok
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
