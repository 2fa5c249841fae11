package models

import "time"

// Slot is a candidate start/end window returned by the availability
// endpoint. Slots are never stored beyond the query result that
// produced them.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Court is the bookable resource. HourlyRate is expressed in the
// currency's minor units (whole pesos for COP).
type Court struct {
	ID         string `json:"id"`
	VenueID    string `json:"venue_id"`
	Name       string `json:"name"`
	VenueName  string `json:"venue_name"`
	HourlyRate int64  `json:"hourly_rate"`
	Currency   string `json:"currency"`
}

// Hold is a short-lived exclusive claim on one slot. ExpiresAt always
// carries the server-issued value; it is never computed locally.
type Hold struct {
	ID          string    `json:"id"`
	CourtID     string    `json:"court_id"`
	MatchID     string    `json:"match_id,omitempty"`
	Start       time.Time `json:"start"`
	DurationMin int       `json:"duration_min"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Active reports whether the hold is still inside its TTL window at
// the given instant. This is advisory; the server is the arbiter.
func (h *Hold) Active(now time.Time) bool {
	return h != nil && h.ID != "" && now.Before(h.ExpiresAt)
}

type Booking struct {
	ID          string    `json:"id"`
	MatchID     string    `json:"match_id,omitempty"`
	CourtID     string    `json:"court_id"`
	VenueID     string    `json:"venue_id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	DurationMin int       `json:"duration_min"`
	Price       int64     `json:"price"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"` // CONFIRMED, CANCELLED, COMPLETED
	PaidAt      time.Time `json:"paid_at,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type PaymentIntent struct {
	ID           string `json:"payment_id"`
	BookingID    string `json:"booking_id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

// PaymentConfirmation is the backend's answer to the confirm call.
type PaymentConfirmation struct {
	PaymentID string `json:"payment_id"`
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
}

// CardDetails is the minimal card input handed to the external
// processor's client library. The processor itself validates it.
type CardDetails struct {
	CardholderName string
	Number         string
	ExpMonth       int
	ExpYear        int
	CVC            string
}

// ProcessorResult is what the processor's confirmation step reports
// back before the backend confirmation call is made.
type ProcessorResult struct {
	Status        string // succeeded, requires_payment_method, ...
	DeclineReason string
}

// AvailabilityResult is one day's free slots for a court/duration.
type AvailabilityResult struct {
	CourtID     string `json:"court_id"`
	VenueID     string `json:"venue_id"`
	Timezone    string `json:"timezone"`
	Date        string `json:"date"` // YYYY-MM-DD
	DurationMin int    `json:"duration_min"`
	Slots       []Slot `json:"slots"`
}
