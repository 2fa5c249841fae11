package service

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"courtflow/internal/events"
	"courtflow/internal/models"
	"courtflow/internal/remote"
	"courtflow/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newFlow(backend *mockBackend) (*ReservationFlow, *DraftService, *events.EventBus) {
	logger := zerolog.New(io.Discard)
	drafts := NewDraftService(repository.NewMemoryDraftRepository(time.Hour), &logger)
	bus := events.NewEventBus()
	flow := NewReservationFlow(backend, drafts, bus, 90, &logger)
	flow.countdownInterval = 5 * time.Millisecond
	return flow, drafts, bus
}

func testCourt() *models.Court {
	return &models.Court{
		ID:         "court-1",
		VenueID:    "venue-1",
		Name:       "Cancha 1",
		HourlyRate: 60000,
		Currency:   "COP",
	}
}

func seedSelection(t *testing.T, drafts *DraftService, start time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, drafts.SetMatch(ctx, "sess", "futbol", "home", "away", "match-1"))

	venueID, courtID := "venue-1", "court-1"
	duration := 90
	price := int64(90000)
	currency := "COP"
	starts := []time.Time{start}
	require.NoError(t, drafts.SetVenueBooking(ctx, "sess", models.VenueBookingPatch{
		VenueID:         &venueID,
		CourtID:         &courtID,
		DurationMin:     &duration,
		EstimatedPrice:  &price,
		Currency:        &currency,
		ScheduledAt:     &start,
		AvailableStarts: &starts,
	}))
}

func TestLoadAvailability(t *testing.T) {
	backend := new(mockBackend)
	flow, drafts, _ := newFlow(backend)
	ctx := context.Background()
	date := time.Now().AddDate(0, 0, 3)

	t.Run("InvalidDuration", func(t *testing.T) {
		_, err := flow.LoadAvailability(ctx, "sess", testCourt(), date, 45)
		assert.ErrorIs(t, err, ErrInvalidDuration)
	})

	t.Run("PastDate", func(t *testing.T) {
		_, err := flow.LoadAvailability(ctx, "sess", testCourt(), time.Now().AddDate(0, 0, -3), 60)
		assert.ErrorIs(t, err, ErrPastDate)
	})

	t.Run("DateTooFar", func(t *testing.T) {
		_, err := flow.LoadAvailability(ctx, "sess", testCourt(), time.Now().AddDate(0, 0, 120), 60)
		assert.ErrorIs(t, err, ErrDateTooFar)
	})

	t.Run("Success", func(t *testing.T) {
		avail := &models.AvailabilityResult{CourtID: "court-1", Slots: []models.Slot{{Start: date}}}
		backend.On("GetAvailability", ctx, "court-1", date, 90).Return(avail, nil).Once()

		got, err := flow.LoadAvailability(ctx, "sess", testCourt(), date, 90)
		require.NoError(t, err)
		assert.Len(t, got.Slots, 1)

		draft, err := drafts.Get(ctx, "sess")
		require.NoError(t, err)
		assert.Equal(t, "court-1", draft.CourtID)
		assert.Equal(t, 90, draft.DurationMin)
		// 90 minutes at 60000/h.
		assert.Equal(t, int64(90000), draft.EstimatedPrice)
		assert.Equal(t, "COP", draft.Currency)
		backend.AssertExpectations(t)
	})

	t.Run("RequeryClearsSelection", func(t *testing.T) {
		slot := date.Truncate(time.Hour)
		avail := &models.AvailabilityResult{CourtID: "court-1", Slots: []models.Slot{{Start: slot}}}
		backend.On("GetAvailability", ctx, "court-1", date, 90).Return(avail, nil).Once()
		_, err := flow.LoadAvailability(ctx, "sess", testCourt(), date, 90)
		require.NoError(t, err)
		require.NoError(t, flow.SelectSlot(ctx, "sess", models.Slot{Start: slot}))

		// A different duration means a different slot set; the old
		// selection must not survive into it.
		backend.On("GetAvailability", ctx, "court-1", date, 60).Return(&models.AvailabilityResult{CourtID: "court-1"}, nil).Once()
		_, err = flow.LoadAvailability(ctx, "sess", testCourt(), date, 60)
		require.NoError(t, err)

		draft, err := drafts.Get(ctx, "sess")
		require.NoError(t, err)
		assert.True(t, draft.ScheduledAt.IsZero())
		assert.Empty(t, draft.AvailableStarts)
		backend.AssertExpectations(t)
	})

	t.Run("RequeryReleasesHold", func(t *testing.T) {
		hold := &models.Hold{ID: "hold-9", CourtID: "court-1", Start: date, DurationMin: 90, ExpiresAt: time.Now().Add(5 * time.Minute)}
		require.NoError(t, drafts.SetHold(ctx, "sess", hold, date.Add(90*time.Minute)))

		backend.On("CancelHold", ctx, "court-1", "hold-9").Return(nil).Once()
		avail := &models.AvailabilityResult{CourtID: "court-1"}
		backend.On("GetAvailability", ctx, "court-1", date, 60).Return(avail, nil).Once()

		_, err := flow.LoadAvailability(ctx, "sess", testCourt(), date, 60)
		require.NoError(t, err)

		draft, err := drafts.Get(ctx, "sess")
		require.NoError(t, err)
		assert.Empty(t, draft.HoldID)
		backend.AssertExpectations(t)
	})
}

func TestValidateBookingDateCalendarDays(t *testing.T) {
	backend := new(mockBackend)
	flow, _, _ := newFlow(backend)
	now := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	flow.now = func() time.Time { return now }

	// Yesterday is past even when its clock time is later than now.
	assert.ErrorIs(t, flow.ValidateBookingDate(time.Date(2026, 8, 31, 22, 0, 0, 0, time.UTC)), ErrPastDate)

	// Earlier today is still today.
	assert.NoError(t, flow.ValidateBookingDate(time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)))

	assert.NoError(t, flow.ValidateBookingDate(now.AddDate(0, 0, 90)))
	assert.ErrorIs(t, flow.ValidateBookingDate(now.AddDate(0, 0, 91)), ErrDateTooFar)
}

func TestSelectSlot(t *testing.T) {
	backend := new(mockBackend)
	flow, drafts, _ := newFlow(backend)
	ctx := context.Background()
	start := time.Now().Add(24 * time.Hour).Truncate(time.Hour)

	err := flow.SelectSlot(ctx, "sess", models.Slot{Start: time.Now().Add(-time.Hour)})
	assert.ErrorIs(t, err, ErrPastDate)

	// Nothing offered yet: any selection is rejected.
	err = flow.SelectSlot(ctx, "sess", models.Slot{Start: start})
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	avail := &models.AvailabilityResult{CourtID: "court-1", Slots: []models.Slot{{Start: start}}}
	backend.On("GetAvailability", mock.Anything, "court-1", mock.Anything, 90).Return(avail, nil).Once()
	_, err = flow.LoadAvailability(ctx, "sess", testCourt(), start, 90)
	require.NoError(t, err)

	// A start the last query never offered does not become a selection.
	err = flow.SelectSlot(ctx, "sess", models.Slot{Start: start.Add(3 * time.Hour)})
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	require.NoError(t, flow.SelectSlot(ctx, "sess", models.Slot{Start: start}))

	draft, err := drafts.Get(ctx, "sess")
	require.NoError(t, err)
	assert.True(t, draft.ScheduledAt.Equal(start))
	backend.AssertExpectations(t)
}

func TestAcquireRejectsUnofferedStart(t *testing.T) {
	backend := new(mockBackend)
	flow, drafts, _ := newFlow(backend)
	ctx := context.Background()
	start := time.Now().Add(24 * time.Hour)
	seedSelection(t, drafts, start)

	// Force a selection outside the offered set, as a stale or tampered
	// draft would carry.
	offPlan := start.Add(3 * time.Hour)
	require.NoError(t, drafts.SetVenueBooking(ctx, "sess", models.VenueBookingPatch{ScheduledAt: &offPlan}))

	_, err := flow.AcquireAndConfirm(ctx, "sess")
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	backend.AssertNotCalled(t, "CreateHold", mock.Anything, mock.Anything, mock.Anything)
}

func TestAcquireAndConfirmSuccess(t *testing.T) {
	backend := new(mockBackend)
	flow, drafts, bus := newFlow(backend)
	ctx := context.Background()
	start := time.Now().Add(24 * time.Hour)
	seedSelection(t, drafts, start)

	var confirmed int
	bus.Subscribe(events.EventBookingConfirmed, func(_ *events.Event) error { confirmed++; return nil })

	hold := &models.Hold{ID: "hold-1", CourtID: "court-1", Start: start, DurationMin: 90, ExpiresAt: time.Now().Add(2 * time.Minute)}
	backend.On("CreateHold", ctx, "court-1", mock.MatchedBy(func(req remote.CreateHoldRequest) bool {
		return req.DurationMin == 90 && req.MatchID == "match-1" && req.IdempotencyKey != ""
	})).Return(hold, nil).Once()

	booking := &models.Booking{ID: "bk-1", CourtID: "court-1", Start: start, Price: 90000, Currency: "COP", Status: models.BookingConfirmed}
	backend.On("ConfirmBooking", ctx, remote.ConfirmBookingRequest{HoldID: "hold-1", Price: 90000, Currency: "COP"}).Return(booking, nil).Once()

	result, err := flow.AcquireAndConfirm(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, models.StepConfirmed, result.Step)
	require.NotNil(t, result.Booking)
	assert.Equal(t, "bk-1", result.Booking.ID)
	assert.Nil(t, result.Countdown)
	assert.Equal(t, 1, confirmed)

	draft, err := drafts.Get(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, "bk-1", draft.BookingID)
	assert.Empty(t, draft.HoldID)
	backend.AssertExpectations(t)
}

func TestAcquireAndConfirmNoSelection(t *testing.T) {
	backend := new(mockBackend)
	flow, _, _ := newFlow(backend)

	_, err := flow.AcquireAndConfirm(context.Background(), "sess")
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestAcquireHoldConflict(t *testing.T) {
	backend := new(mockBackend)
	flow, drafts, bus := newFlow(backend)
	ctx := context.Background()
	start := time.Now().Add(24 * time.Hour)
	seedSelection(t, drafts, start)

	var conflicts int
	bus.Subscribe(events.EventHoldConflict, func(_ *events.Event) error { conflicts++; return nil })

	backend.On("CreateHold", ctx, "court-1", mock.Anything).
		Return(nil, fmt.Errorf("create hold: %w", remote.ErrConflict)).Once()

	result, err := flow.AcquireAndConfirm(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, models.StepSelecting, result.Step)
	assert.Equal(t, MsgSlotTaken, result.Message)
	assert.Equal(t, 1, conflicts)

	// The selection is dropped but the match survives.
	draft, err := drafts.Get(ctx, "sess")
	require.NoError(t, err)
	assert.True(t, draft.ScheduledAt.IsZero())
	assert.Empty(t, draft.HoldID)
	assert.Equal(t, "futbol", draft.SportID)
	assert.Equal(t, "court-1", draft.CourtID)
	backend.AssertExpectations(t)
}

func TestConfirmStaleHold(t *testing.T) {
	backend := new(mockBackend)
	flow, drafts, _ := newFlow(backend)
	ctx := context.Background()
	start := time.Now().Add(24 * time.Hour)
	seedSelection(t, drafts, start)

	hold := &models.Hold{ID: "hold-1", CourtID: "court-1", Start: start, DurationMin: 90, ExpiresAt: time.Now().Add(2 * time.Minute)}
	backend.On("CreateHold", ctx, "court-1", mock.Anything).Return(hold, nil).Once()
	backend.On("ConfirmBooking", ctx, mock.Anything).
		Return(nil, fmt.Errorf("confirm: %w", remote.ErrConflict)).Once()

	result, err := flow.AcquireAndConfirm(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, models.StepSelecting, result.Step)
	assert.Equal(t, MsgHoldExpired, result.Message)

	draft, err := drafts.Get(ctx, "sess")
	require.NoError(t, err)
	assert.Empty(t, draft.HoldID)
	backend.AssertExpectations(t)
}

func TestConfirmAfterHoldClearedInFlight(t *testing.T) {
	backend := new(mockBackend)
	flow, drafts, _ := newFlow(backend)
	ctx := context.Background()
	start := time.Now().Add(24 * time.Hour)
	seedSelection(t, drafts, start)

	hold := &models.Hold{ID: "hold-1", CourtID: "court-1", Start: start, DurationMin: 90, ExpiresAt: time.Now().Add(2 * time.Minute)}
	backend.On("CreateHold", ctx, "court-1", mock.Anything).Return(hold, nil).Once()

	// The hold is released (expiry, abandon) while the confirm response
	// is still in flight. The late response must not be applied.
	booking := &models.Booking{ID: "bk-1", CourtID: "court-1", Status: models.BookingConfirmed}
	backend.On("ConfirmBooking", ctx, mock.Anything).
		Run(func(mock.Arguments) { require.NoError(t, drafts.ClearHold(ctx, "sess")) }).
		Return(booking, nil).Once()

	result, err := flow.AcquireAndConfirm(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, models.StepSelecting, result.Step)
	assert.Equal(t, MsgHoldExpired, result.Message)

	draft, err := drafts.Get(ctx, "sess")
	require.NoError(t, err)
	assert.Empty(t, draft.BookingID)
	backend.AssertExpectations(t)
}

func TestConfirmTransientThenRetry(t *testing.T) {
	backend := new(mockBackend)
	flow, drafts, _ := newFlow(backend)
	ctx := context.Background()
	start := time.Now().Add(24 * time.Hour)
	seedSelection(t, drafts, start)

	hold := &models.Hold{ID: "hold-1", CourtID: "court-1", Start: start, DurationMin: 90, ExpiresAt: time.Now().Add(2 * time.Minute)}
	backend.On("CreateHold", ctx, "court-1", mock.Anything).Return(hold, nil).Once()
	backend.On("ConfirmBooking", ctx, mock.Anything).
		Return(nil, fmt.Errorf("confirm: %w", remote.ErrTransient)).Once()

	result, err := flow.AcquireAndConfirm(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, models.StepConfirming, result.Step)
	assert.Equal(t, MsgBackendDown, result.Message)
	require.NotNil(t, result.Countdown)
	result.Countdown.Stop()

	// The hold survived; the retry converts it.
	booking := &models.Booking{ID: "bk-9", CourtID: "court-1", Status: models.BookingConfirmed}
	backend.On("ConfirmBooking", ctx, remote.ConfirmBookingRequest{HoldID: "hold-1", Price: 90000, Currency: "COP"}).Return(booking, nil).Once()

	result, err = flow.RetryConfirm(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, models.StepConfirmed, result.Step)

	draft, err := drafts.Get(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, "bk-9", draft.BookingID)
	backend.AssertExpectations(t)
}

func TestRetryConfirmLocallyExpired(t *testing.T) {
	backend := new(mockBackend)
	flow, drafts, bus := newFlow(backend)
	ctx := context.Background()
	start := time.Now().Add(24 * time.Hour)
	seedSelection(t, drafts, start)

	var expired int
	bus.Subscribe(events.EventHoldExpired, func(_ *events.Event) error { expired++; return nil })

	hold := &models.Hold{ID: "hold-1", CourtID: "court-1", Start: start, ExpiresAt: time.Now().Add(-time.Second)}
	require.NoError(t, drafts.SetHold(ctx, "sess", hold, start.Add(90*time.Minute)))

	// No backend call is made for a hold that is certainly gone.
	result, err := flow.RetryConfirm(ctx, "sess")
	require.NoError(t, err)
	assert.Equal(t, models.StepSelecting, result.Step)
	assert.Equal(t, MsgHoldExpired, result.Message)
	assert.Equal(t, 1, expired)
	backend.AssertNotCalled(t, "ConfirmBooking", mock.Anything, mock.Anything)
}

func TestHandleExpiryGuard(t *testing.T) {
	backend := new(mockBackend)
	flow, drafts, _ := newFlow(backend)
	ctx := context.Background()
	start := time.Now().Add(24 * time.Hour)
	seedSelection(t, drafts, start)

	hold := &models.Hold{ID: "hold-2", CourtID: "court-1", Start: start, ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, drafts.SetHold(ctx, "sess", hold, start.Add(time.Hour)))

	// A stale timer for an older hold must not clear the current one.
	require.NoError(t, flow.HandleExpiry(ctx, "sess", "hold-1"))
	draft, _ := drafts.Get(ctx, "sess")
	assert.Equal(t, "hold-2", draft.HoldID)

	require.NoError(t, flow.HandleExpiry(ctx, "sess", "hold-2"))
	draft, _ = drafts.Get(ctx, "sess")
	assert.Empty(t, draft.HoldID)
}

func TestAbandon(t *testing.T) {
	backend := new(mockBackend)
	flow, drafts, _ := newFlow(backend)
	ctx := context.Background()
	start := time.Now().Add(24 * time.Hour)
	seedSelection(t, drafts, start)

	hold := &models.Hold{ID: "hold-1", CourtID: "court-1", Start: start, ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, drafts.SetHold(ctx, "sess", hold, start.Add(time.Hour)))

	// Cancel failures are tolerated; the hold expires server-side.
	backend.On("CancelHold", ctx, "court-1", "hold-1").Return(fmt.Errorf("cancel: %w", remote.ErrTransient)).Once()

	require.NoError(t, flow.Abandon(ctx, "sess"))

	draft, err := drafts.Get(ctx, "sess")
	require.NoError(t, err)
	assert.Empty(t, draft.HoldID)
	assert.True(t, draft.ScheduledAt.IsZero())
	backend.AssertExpectations(t)
}

func TestResume(t *testing.T) {
	ctx := context.Background()

	t.Run("NoDraft", func(t *testing.T) {
		backend := new(mockBackend)
		flow, _, _ := newFlow(backend)

		result, err := flow.Resume(ctx, "sess")
		require.NoError(t, err)
		assert.Equal(t, models.StepSelecting, result.Step)
	})

	t.Run("BookingUnpaid", func(t *testing.T) {
		backend := new(mockBackend)
		flow, drafts, _ := newFlow(backend)
		bookingID := "bk-1"
		require.NoError(t, drafts.ConfirmVenueBooking(ctx, "sess", models.VenueBookingPatch{BookingID: &bookingID}))

		booking := &models.Booking{ID: "bk-1", Status: models.BookingConfirmed}
		backend.On("GetBooking", ctx, "bk-1").Return(booking, nil).Once()

		result, err := flow.Resume(ctx, "sess")
		require.NoError(t, err)
		assert.Equal(t, models.StepConfirmed, result.Step)
		assert.Equal(t, "bk-1", result.Booking.ID)
	})

	t.Run("BookingAlreadyPaid", func(t *testing.T) {
		backend := new(mockBackend)
		flow, drafts, _ := newFlow(backend)
		bookingID := "bk-2"
		require.NoError(t, drafts.ConfirmVenueBooking(ctx, "sess", models.VenueBookingPatch{BookingID: &bookingID}))

		booking := &models.Booking{ID: "bk-2", Status: models.BookingConfirmed, PaidAt: time.Now()}
		backend.On("GetBooking", ctx, "bk-2").Return(booking, nil).Once()

		result, err := flow.Resume(ctx, "sess")
		require.NoError(t, err)
		assert.Equal(t, models.StepSelecting, result.Step)

		draft, err := flow.drafts.Get(ctx, "sess")
		require.NoError(t, err)
		assert.Nil(t, draft)
	})

	t.Run("BookingGone", func(t *testing.T) {
		backend := new(mockBackend)
		flow, drafts, _ := newFlow(backend)
		bookingID := "bk-3"
		require.NoError(t, drafts.ConfirmVenueBooking(ctx, "sess", models.VenueBookingPatch{BookingID: &bookingID}))

		backend.On("GetBooking", ctx, "bk-3").Return(nil, fmt.Errorf("get: %w", remote.ErrNotFound)).Once()

		result, err := flow.Resume(ctx, "sess")
		require.NoError(t, err)
		assert.Equal(t, models.StepSelecting, result.Step)
	})

	t.Run("ActiveHold", func(t *testing.T) {
		backend := new(mockBackend)
		flow, drafts, _ := newFlow(backend)
		start := time.Now().Add(24 * time.Hour)
		seedSelection(t, drafts, start)
		hold := &models.Hold{ID: "hold-1", CourtID: "court-1", Start: start, ExpiresAt: time.Now().Add(time.Minute)}
		require.NoError(t, drafts.SetHold(ctx, "sess", hold, start.Add(time.Hour)))

		result, err := flow.Resume(ctx, "sess")
		require.NoError(t, err)
		assert.Equal(t, models.StepConfirming, result.Step)
		assert.Equal(t, "hold-1", result.Hold.ID)
		require.NotNil(t, result.Countdown)
		result.Countdown.Stop()
	})

	t.Run("ExpiredHold", func(t *testing.T) {
		backend := new(mockBackend)
		flow, drafts, _ := newFlow(backend)
		start := time.Now().Add(24 * time.Hour)
		seedSelection(t, drafts, start)
		hold := &models.Hold{ID: "hold-1", CourtID: "court-1", Start: start, ExpiresAt: time.Now().Add(-time.Minute)}
		require.NoError(t, drafts.SetHold(ctx, "sess", hold, start.Add(time.Hour)))

		result, err := flow.Resume(ctx, "sess")
		require.NoError(t, err)
		assert.Equal(t, models.StepSelecting, result.Step)
		assert.Equal(t, MsgHoldExpired, result.Message)
	})
}
