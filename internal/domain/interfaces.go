package domain

import (
	"context"
	"time"

	"courtflow/internal/models"
	"courtflow/internal/remote"
)

// BookingBackend is the remote booking service. The server is the sole
// arbiter of slot exclusivity; this client never assumes its local view
// is authoritative.
type BookingBackend interface {
	GetAvailability(ctx context.Context, courtID string, date time.Time, durationMin int) (*models.AvailabilityResult, error)
	CreateHold(ctx context.Context, courtID string, req remote.CreateHoldRequest) (*models.Hold, error)
	CancelHold(ctx context.Context, courtID, holdID string) error
	ConfirmBooking(ctx context.Context, req remote.ConfirmBookingRequest) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	ListBookings(ctx context.Context) ([]*models.Booking, error)
	CancelBooking(ctx context.Context, bookingID string) error
	CreatePaymentIntent(ctx context.Context, bookingID string) (*models.PaymentIntent, error)
	ConfirmPayment(ctx context.Context, paymentID string) (*models.PaymentConfirmation, error)
}

// DraftRepository persists the per-session draft aggregate.
// Get returns (nil, nil) when no draft exists.
type DraftRepository interface {
	Get(ctx context.Context, sessionID string) (*models.Draft, error)
	Save(ctx context.Context, draft *models.Draft) error
	Clear(ctx context.Context, sessionID string) error
}

// CardProcessor is the external payment processor's client-side
// confirmation step (card entry, 3-D Secure). Injected so the
// orchestration around it stays testable.
type CardProcessor interface {
	ConfirmCardPayment(ctx context.Context, clientSecret string, card models.CardDetails) (*models.ProcessorResult, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// ConfirmTask is a backend payment confirmation that must be re-driven
// after the processor already captured the charge.
type ConfirmTask struct {
	ID          int64
	PaymentID   string
	BookingID   string
	SessionID   string
	Status      string
	RetryCount  int
	LastError   string
	CreatedAt   time.Time
	ProcessedAt *time.Time
	NextRetryAt *time.Time
}

// ConfirmQueue is the durable queue feeding the payment confirm
// worker.
type ConfirmQueue interface {
	EnqueueConfirmTask(ctx context.Context, task *ConfirmTask) error
	GetPendingConfirmTasks(ctx context.Context, limit int) ([]ConfirmTask, error)
	UpdateConfirmTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// DraftManager is the single mutation surface of the draft aggregate.
// Every component touches only the field group its setter owns.
type DraftManager interface {
	Get(ctx context.Context, sessionID string) (*models.Draft, error)
	SetMatch(ctx context.Context, sessionID, sportID, homeTeamID, awayTeamID, matchID string) error
	SetVenueBooking(ctx context.Context, sessionID string, patch models.VenueBookingPatch) error
	SetHold(ctx context.Context, sessionID string, hold *models.Hold, selectedEnd time.Time) error
	ClearHold(ctx context.Context, sessionID string) error
	ConfirmVenueBooking(ctx context.Context, sessionID string, patch models.VenueBookingPatch) error
	SetPaymentState(ctx context.Context, sessionID, paymentID, state string) error
	Reset(ctx context.Context, sessionID string) error
}
