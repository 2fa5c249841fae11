package models

import "time"

// DraftVersion is the serialization version of Draft. Bump it when the
// field layout changes so stale persisted drafts can be discarded on
// load instead of being misread.
const DraftVersion = 2

// Draft is the session-scoped aggregate tracking an in-progress
// reservation. It is persisted across restarts and mutated only
// through the DraftService setters, one field group per setter.
type Draft struct {
	Version   int       `json:"version"`
	SessionID string    `json:"session_id"`
	UpdatedAt time.Time `json:"updated_at"`

	// Match selection group. Survives everything except Reset.
	SportID    string `json:"sport_id,omitempty"`
	HomeTeamID string `json:"home_team_id,omitempty"`
	AwayTeamID string `json:"away_team_id,omitempty"`
	MatchID    string `json:"match_id,omitempty"`

	// Venue booking group. AvailableStarts is the slot set of the last
	// availability query; a start outside it is never sent to the hold
	// endpoint.
	VenueID         string      `json:"venue_id,omitempty"`
	CourtID         string      `json:"court_id,omitempty"`
	ScheduledAt     time.Time   `json:"scheduled_at,omitempty"`
	DurationMin     int         `json:"duration_min,omitempty"`
	EstimatedPrice  int64       `json:"estimated_price,omitempty"`
	Currency        string      `json:"currency,omitempty"`
	BookingID       string      `json:"booking_id,omitempty"`
	AvailableStarts []time.Time `json:"available_starts,omitempty"`

	// Hold group. Mutually exclusive with BookingID for one flow:
	// confirming a booking clears these in the same write that sets
	// the booking fields.
	HoldID        string    `json:"hold_id,omitempty"`
	HoldExpiresAt time.Time `json:"hold_expires_at,omitempty"`
	SelectedStart time.Time `json:"selected_start,omitempty"`
	SelectedEnd   time.Time `json:"selected_end,omitempty"`

	// Payment group.
	PaymentID     string `json:"payment_id,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
}

// NewDraft returns an empty draft for a session.
func NewDraft(sessionID string) *Draft {
	return &Draft{
		Version:       DraftVersion,
		SessionID:     sessionID,
		PaymentStatus: PaymentNoIntent,
	}
}

// HasActiveHold reports whether the draft carries a hold that has not
// locally expired. Local expiry is advisory; a 409 from the backend is
// the authoritative signal.
func (d *Draft) HasActiveHold(now time.Time) bool {
	return d.HoldID != "" && now.Before(d.HoldExpiresAt)
}

// SlotOffered reports whether the start was part of the last
// availability result.
func (d *Draft) SlotOffered(start time.Time) bool {
	for _, s := range d.AvailableStarts {
		if s.Equal(start) {
			return true
		}
	}
	return false
}

// ClearHoldGroup zeroes the hold fields and the slot selection,
// leaving every other group untouched.
func (d *Draft) ClearHoldGroup() {
	d.HoldID = ""
	d.HoldExpiresAt = time.Time{}
	d.SelectedStart = time.Time{}
	d.SelectedEnd = time.Time{}
}

// VenueBookingPatch is a partial update of the venue booking group.
// Nil fields are left as they are.
type VenueBookingPatch struct {
	VenueID         *string
	CourtID         *string
	ScheduledAt     *time.Time
	DurationMin     *int
	EstimatedPrice  *int64
	Currency        *string
	BookingID       *string
	AvailableStarts *[]time.Time
}

// Apply merges the patch into the draft's venue booking group.
func (p VenueBookingPatch) Apply(d *Draft) {
	if p.VenueID != nil {
		d.VenueID = *p.VenueID
	}
	if p.CourtID != nil {
		d.CourtID = *p.CourtID
	}
	if p.ScheduledAt != nil {
		d.ScheduledAt = *p.ScheduledAt
	}
	if p.DurationMin != nil {
		d.DurationMin = *p.DurationMin
	}
	if p.EstimatedPrice != nil {
		d.EstimatedPrice = *p.EstimatedPrice
	}
	if p.Currency != nil {
		d.Currency = *p.Currency
	}
	if p.BookingID != nil {
		d.BookingID = *p.BookingID
	}
	if p.AvailableStarts != nil {
		d.AvailableStarts = *p.AvailableStarts
	}
}
