package service

import (
	"context"
	"time"

	"courtflow/internal/countdown"
	"courtflow/internal/domain"
	"courtflow/internal/events"
	"courtflow/internal/metrics"
	"courtflow/internal/models"
	"courtflow/internal/remote"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReservationFlow drives a session from slot selection to a confirmed
// booking. Hold acquisition and booking confirmation are chained in
// one call; the hold is only observable on its own when the confirm
// leg fails transiently.
type ReservationFlow struct {
	backend           domain.BookingBackend
	drafts            domain.DraftManager
	eventBus          domain.EventPublisher
	maxAdvanceDays    int
	countdownInterval time.Duration
	logger            *zerolog.Logger
	now               func() time.Time
}

func NewReservationFlow(backend domain.BookingBackend, drafts domain.DraftManager, eventBus domain.EventPublisher, maxAdvanceDays int, logger *zerolog.Logger) *ReservationFlow {
	if maxAdvanceDays <= 0 {
		maxAdvanceDays = 365
	}
	return &ReservationFlow{
		backend:           backend,
		drafts:            drafts,
		eventBus:          eventBus,
		maxAdvanceDays:    maxAdvanceDays,
		countdownInterval: time.Second,
		logger:            logger,
		now:               time.Now,
	}
}

// FlowResult is the outcome of one flow transition. Message carries
// the user-facing Spanish text when the transition did not advance.
type FlowResult struct {
	Step      string
	Hold      *models.Hold
	Booking   *models.Booking
	Countdown *countdown.Countdown
	Message   string
}

// ValidateBookingDate accepts today through the advance window,
// comparing calendar days so the clock time on either side is
// irrelevant.
func (f *ReservationFlow) ValidateBookingDate(date time.Time) error {
	today := dayOf(f.now())
	day := dayOf(date)

	if day.Before(today) {
		return ErrPastDate
	}
	if day.After(today.AddDate(0, 0, f.maxAdvanceDays)) {
		return ErrDateTooFar
	}
	return nil
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// LoadAvailability fetches the free slots for a court, date and
// duration and records the query parameters in the draft. The price
// estimate is recomputed here so a duration change can never show a
// stale amount.
func (f *ReservationFlow) LoadAvailability(ctx context.Context, sessionID string, court *models.Court, date time.Time, durationMin int) (*models.AvailabilityResult, error) {
	if !models.DurationAllowed(durationMin) {
		return nil, ErrInvalidDuration
	}
	if err := f.ValidateBookingDate(date); err != nil {
		return nil, err
	}

	// A new query invalidates any hold taken for the previous
	// date/duration. Cancel is best effort; server expiry is the net.
	draft, err := f.drafts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if draft != nil && draft.HoldID != "" {
		if err := f.backend.CancelHold(ctx, draft.CourtID, draft.HoldID); err != nil {
			f.logger.Warn().Err(err).Str("hold_id", draft.HoldID).Msg("hold cancel failed, will expire server-side")
		}
		f.publishHoldEvent(events.EventHoldReleased, draft, draft.HoldID, "availability requery")
		if err := f.drafts.ClearHold(ctx, sessionID); err != nil {
			return nil, err
		}
	}

	result, err := f.backend.GetAvailability(ctx, court.ID, date, durationMin)
	if err != nil {
		return nil, err
	}

	currency := court.Currency
	if currency == "" {
		currency = models.DefaultCurrency
	}
	price := models.CalculatePrice(court.HourlyRate, durationMin)

	starts := make([]time.Time, 0, len(result.Slots))
	for _, slot := range result.Slots {
		starts = append(starts, slot.Start)
	}

	// The previous selection belongs to the previous query's slot set;
	// it is cleared in the same write that records the new one.
	var noSelection time.Time
	patch := models.VenueBookingPatch{
		VenueID:         &court.VenueID,
		CourtID:         &court.ID,
		DurationMin:     &durationMin,
		EstimatedPrice:  &price,
		Currency:        &currency,
		ScheduledAt:     &noSelection,
		AvailableStarts: &starts,
	}
	if err := f.drafts.SetVenueBooking(ctx, sessionID, patch); err != nil {
		return nil, err
	}

	return result, nil
}

// SelectSlot records the chosen start time. The start must be one of
// the slots the last availability query offered. No hold is taken yet.
func (f *ReservationFlow) SelectSlot(ctx context.Context, sessionID string, slot models.Slot) error {
	if slot.Start.Before(f.now()) {
		return ErrPastDate
	}

	draft, err := f.drafts.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if draft == nil || !draft.SlotOffered(slot.Start) {
		return ErrSlotUnavailable
	}

	start := slot.Start
	return f.drafts.SetVenueBooking(ctx, sessionID, models.VenueBookingPatch{ScheduledAt: &start})
}

// AcquireAndConfirm takes a hold on the selected slot and immediately
// chains into the booking confirmation. A conflict on either leg is a
// handled outcome, not an error: the selection is discarded and the
// session drops back to selecting.
func (f *ReservationFlow) AcquireAndConfirm(ctx context.Context, sessionID string) (*FlowResult, error) {
	draft, err := f.drafts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if draft == nil || draft.CourtID == "" || draft.ScheduledAt.IsZero() {
		return nil, ErrNoSelection
	}
	if !models.DurationAllowed(draft.DurationMin) {
		return nil, ErrInvalidDuration
	}
	if !draft.SlotOffered(draft.ScheduledAt) {
		return nil, ErrSlotUnavailable
	}

	req := remote.CreateHoldRequest{
		MatchID:     draft.MatchID,
		Start:       draft.ScheduledAt,
		DurationMin: draft.DurationMin,
		// The key lets the server collapse a retried create after a
		// network failure into the original hold.
		IdempotencyKey: uuid.NewString(),
	}

	hold, err := f.backend.CreateHold(ctx, draft.CourtID, req)
	if err != nil {
		if remote.IsConflict(err) {
			metrics.IncHoldConflict()
			f.publishHoldEvent(events.EventHoldConflict, draft, "", "slot taken")
			if err := f.clearSelection(ctx, sessionID); err != nil {
				return nil, err
			}
			return &FlowResult{Step: models.StepSelecting, Message: MsgSlotTaken}, nil
		}
		return nil, err
	}

	metrics.IncHoldCreated()
	f.publishHold(events.EventHoldCreated, sessionID, hold)

	selectedEnd := hold.Start.Add(time.Duration(draft.DurationMin) * time.Minute)
	if err := f.drafts.SetHold(ctx, sessionID, hold, selectedEnd); err != nil {
		return nil, err
	}

	cd := countdown.New(hold.ExpiresAt, f.countdownInterval)

	result, err := f.confirm(ctx, sessionID, draft, hold)
	if err != nil {
		cd.Stop()
		return nil, err
	}
	if result.Step == models.StepConfirmed || result.Step == models.StepSelecting {
		cd.Stop()
	} else {
		result.Countdown = cd
	}
	return result, nil
}

// RetryConfirm re-drives the confirmation leg for a session holding a
// slot. The local expiry check is advisory and only avoids a request
// that is certain to fail; the server remains the arbiter.
func (f *ReservationFlow) RetryConfirm(ctx context.Context, sessionID string) (*FlowResult, error) {
	draft, err := f.drafts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if draft == nil || draft.HoldID == "" {
		return nil, ErrNoHold
	}

	if !draft.HasActiveHold(f.now()) {
		metrics.IncHoldExpired()
		f.publishHoldEvent(events.EventHoldExpired, draft, draft.HoldID, "expired locally")
		if err := f.clearSelection(ctx, sessionID); err != nil {
			return nil, err
		}
		return &FlowResult{Step: models.StepSelecting, Message: MsgHoldExpired}, nil
	}

	hold := holdFromDraft(draft)
	return f.confirm(ctx, sessionID, draft, hold)
}

func (f *ReservationFlow) confirm(ctx context.Context, sessionID string, draft *models.Draft, hold *models.Hold) (*FlowResult, error) {
	req := remote.ConfirmBookingRequest{
		HoldID:   hold.ID,
		Price:    draft.EstimatedPrice,
		Currency: draft.Currency,
	}

	booking, err := f.backend.ConfirmBooking(ctx, req)
	if err != nil {
		if remote.IsConflict(err) {
			// The hold was consumed or expired server-side.
			metrics.IncHoldConflict()
			f.publishHoldEvent(events.EventHoldConflict, draft, hold.ID, "stale hold")
			if err := f.clearSelection(ctx, sessionID); err != nil {
				return nil, err
			}
			return &FlowResult{Step: models.StepSelecting, Message: MsgHoldExpired}, nil
		}
		if remote.IsRetryable(err) {
			f.logger.Warn().Err(err).Str("session_id", sessionID).Str("hold_id", hold.ID).Msg("booking confirm failed, hold kept")
			return &FlowResult{Step: models.StepConfirming, Hold: hold, Message: MsgBackendDown}, nil
		}
		return nil, err
	}

	if !booking.Start.Equal(hold.Start) || booking.DurationMin != hold.DurationMin {
		f.logger.Warn().
			Str("booking_id", booking.ID).
			Str("hold_id", hold.ID).
			Time("booking_start", booking.Start).
			Time("hold_start", hold.Start).
			Msg("booking does not match held slot")
	}

	// The hold may have been cleared while the request was in flight
	// (countdown ran out, session abandoned). A response for a hold the
	// draft no longer carries is stale and must not be applied.
	current, err := f.drafts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if current == nil || current.HoldID != hold.ID {
		f.logger.Warn().
			Str("booking_id", booking.ID).
			Str("hold_id", hold.ID).
			Msg("confirm response for a released hold, discarding")
		return &FlowResult{Step: models.StepSelecting, Message: MsgHoldExpired}, nil
	}

	patch := models.VenueBookingPatch{BookingID: &booking.ID}
	if err := f.drafts.ConfirmVenueBooking(ctx, sessionID, patch); err != nil {
		return nil, err
	}

	metrics.IncBookingConfirmed()
	f.publishBooking(events.EventBookingConfirmed, sessionID, booking)

	return &FlowResult{Step: models.StepConfirmed, Booking: booking}, nil
}

// HandleExpiry reacts to a local countdown running out. The hold ID
// guard keeps a late timer of an abandoned hold from clearing a newer
// one.
func (f *ReservationFlow) HandleExpiry(ctx context.Context, sessionID, holdID string) error {
	draft, err := f.drafts.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if draft == nil || draft.HoldID != holdID {
		return nil
	}

	metrics.IncHoldExpired()
	f.publishHoldEvent(events.EventHoldExpired, draft, holdID, "countdown expired")
	return f.clearSelection(ctx, sessionID)
}

// Abandon releases the session's hold. The cancel request is best
// effort: the hold expires on its own server-side, so a failure here
// only delays the slot's return to the pool.
func (f *ReservationFlow) Abandon(ctx context.Context, sessionID string) error {
	draft, err := f.drafts.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if draft == nil {
		return nil
	}

	if draft.HoldID != "" {
		if err := f.backend.CancelHold(ctx, draft.CourtID, draft.HoldID); err != nil {
			f.logger.Warn().Err(err).Str("hold_id", draft.HoldID).Msg("hold cancel failed, will expire server-side")
		}
		f.publishHoldEvent(events.EventHoldReleased, draft, draft.HoldID, "abandoned")
	}

	return f.clearSelection(ctx, sessionID)
}

// Resume re-validates a persisted draft after a restart and reports
// where the session actually stands. Drafts are never trusted blindly:
// a recorded booking is re-fetched and a recorded hold is re-checked
// against its expiry.
func (f *ReservationFlow) Resume(ctx context.Context, sessionID string) (*FlowResult, error) {
	draft, err := f.drafts.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return &FlowResult{Step: models.StepSelecting}, nil
	}

	if draft.BookingID != "" {
		booking, err := f.backend.GetBooking(ctx, draft.BookingID)
		if err != nil {
			if remote.IsRetryable(err) {
				return nil, err
			}
			// The booking is gone; start over.
			if err := f.drafts.Reset(ctx, sessionID); err != nil {
				return nil, err
			}
			return &FlowResult{Step: models.StepSelecting}, nil
		}
		if !booking.PaidAt.IsZero() || booking.Status == models.BookingCancelled {
			// Nothing left to drive for this booking.
			if err := f.drafts.Reset(ctx, sessionID); err != nil {
				return nil, err
			}
			return &FlowResult{Step: models.StepSelecting}, nil
		}
		return &FlowResult{Step: models.StepConfirmed, Booking: booking}, nil
	}

	if draft.HoldID != "" {
		if !draft.HasActiveHold(f.now()) {
			metrics.IncHoldExpired()
			f.publishHoldEvent(events.EventHoldExpired, draft, draft.HoldID, "expired while away")
			if err := f.clearSelection(ctx, sessionID); err != nil {
				return nil, err
			}
			return &FlowResult{Step: models.StepSelecting, Message: MsgHoldExpired}, nil
		}
		hold := holdFromDraft(draft)
		cd := countdown.New(hold.ExpiresAt, f.countdownInterval)
		return &FlowResult{Step: models.StepConfirming, Hold: hold, Countdown: cd}, nil
	}

	return &FlowResult{Step: models.StepSelecting}, nil
}

// clearSelection drops the hold group and the chosen start time,
// leaving sport, teams and court untouched.
func (f *ReservationFlow) clearSelection(ctx context.Context, sessionID string) error {
	if err := f.drafts.ClearHold(ctx, sessionID); err != nil {
		return err
	}
	var zero time.Time
	return f.drafts.SetVenueBooking(ctx, sessionID, models.VenueBookingPatch{ScheduledAt: &zero})
}

func holdFromDraft(draft *models.Draft) *models.Hold {
	return &models.Hold{
		ID:          draft.HoldID,
		CourtID:     draft.CourtID,
		MatchID:     draft.MatchID,
		Start:       draft.SelectedStart,
		DurationMin: draft.DurationMin,
		ExpiresAt:   draft.HoldExpiresAt,
	}
}

func (f *ReservationFlow) publishHold(eventType, sessionID string, hold *models.Hold) {
	if f.eventBus == nil {
		return
	}
	payload := events.HoldEventPayload{
		SessionID:   sessionID,
		HoldID:      hold.ID,
		CourtID:     hold.CourtID,
		Start:       hold.Start,
		DurationMin: hold.DurationMin,
		ExpiresAt:   hold.ExpiresAt,
	}
	if err := f.eventBus.PublishJSON(eventType, payload); err != nil {
		f.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func (f *ReservationFlow) publishHoldEvent(eventType string, draft *models.Draft, holdID, reason string) {
	if f.eventBus == nil {
		return
	}
	payload := events.HoldEventPayload{
		SessionID: draft.SessionID,
		HoldID:    holdID,
		CourtID:   draft.CourtID,
		Start:     draft.ScheduledAt,
		Reason:    reason,
	}
	if err := f.eventBus.PublishJSON(eventType, payload); err != nil {
		f.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}

func (f *ReservationFlow) publishBooking(eventType, sessionID string, booking *models.Booking) {
	if f.eventBus == nil {
		return
	}
	payload := events.BookingEventPayload{
		SessionID: sessionID,
		BookingID: booking.ID,
		CourtID:   booking.CourtID,
		Start:     booking.Start,
		Price:     booking.Price,
		Currency:  booking.Currency,
		Status:    booking.Status,
	}
	if err := f.eventBus.PublishJSON(eventType, payload); err != nil {
		f.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
