package service

import (
	"context"
	"time"

	"courtflow/internal/domain"
	"courtflow/internal/models"

	"github.com/rs/zerolog"
)

// DraftService is the single mutation surface of the draft aggregate.
// Each setter loads, mutates one field group and saves, so callers
// never overwrite a group they do not own.
type DraftService struct {
	repo   domain.DraftRepository
	logger *zerolog.Logger
	now    func() time.Time
}

func NewDraftService(repo domain.DraftRepository, logger *zerolog.Logger) *DraftService {
	return &DraftService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

func (s *DraftService) Get(ctx context.Context, sessionID string) (*models.Draft, error) {
	return s.repo.Get(ctx, sessionID)
}

func (s *DraftService) load(ctx context.Context, sessionID string) (*models.Draft, error) {
	draft, err := s.repo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		draft = models.NewDraft(sessionID)
	}
	return draft, nil
}

func (s *DraftService) save(ctx context.Context, draft *models.Draft) error {
	draft.UpdatedAt = s.now()
	return s.repo.Save(ctx, draft)
}

func (s *DraftService) SetMatch(ctx context.Context, sessionID, sportID, homeTeamID, awayTeamID, matchID string) error {
	draft, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	draft.SportID = sportID
	draft.HomeTeamID = homeTeamID
	draft.AwayTeamID = awayTeamID
	draft.MatchID = matchID
	return s.save(ctx, draft)
}

func (s *DraftService) SetVenueBooking(ctx context.Context, sessionID string, patch models.VenueBookingPatch) error {
	draft, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	patch.Apply(draft)
	return s.save(ctx, draft)
}

func (s *DraftService) SetHold(ctx context.Context, sessionID string, hold *models.Hold, selectedEnd time.Time) error {
	draft, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	draft.HoldID = hold.ID
	draft.HoldExpiresAt = hold.ExpiresAt
	draft.SelectedStart = hold.Start
	draft.SelectedEnd = selectedEnd
	return s.save(ctx, draft)
}

func (s *DraftService) ClearHold(ctx context.Context, sessionID string) error {
	draft, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	draft.ClearHoldGroup()
	return s.save(ctx, draft)
}

// ConfirmVenueBooking records the booking and drops the hold in one
// write, so a crash between the two cannot leave a draft pointing at
// both a consumed hold and its booking.
func (s *DraftService) ConfirmVenueBooking(ctx context.Context, sessionID string, patch models.VenueBookingPatch) error {
	draft, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	patch.Apply(draft)
	draft.ClearHoldGroup()
	return s.save(ctx, draft)
}

func (s *DraftService) SetPaymentState(ctx context.Context, sessionID, paymentID, state string) error {
	draft, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	draft.PaymentID = paymentID
	draft.PaymentStatus = state
	return s.save(ctx, draft)
}

func (s *DraftService) Reset(ctx context.Context, sessionID string) error {
	return s.repo.Clear(ctx, sessionID)
}
