package service

import (
	"context"
	"time"

	"courtflow/internal/domain"
	"courtflow/internal/models"
	"courtflow/internal/remote"

	"github.com/stretchr/testify/mock"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) GetAvailability(ctx context.Context, courtID string, date time.Time, durationMin int) (*models.AvailabilityResult, error) {
	args := m.Called(ctx, courtID, date, durationMin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AvailabilityResult), args.Error(1)
}
func (m *mockBackend) CreateHold(ctx context.Context, courtID string, req remote.CreateHoldRequest) (*models.Hold, error) {
	args := m.Called(ctx, courtID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Hold), args.Error(1)
}
func (m *mockBackend) CancelHold(ctx context.Context, courtID, holdID string) error {
	return m.Called(ctx, courtID, holdID).Error(0)
}
func (m *mockBackend) ConfirmBooking(ctx context.Context, req remote.ConfirmBookingRequest) (*models.Booking, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockBackend) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockBackend) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockBackend) CancelBooking(ctx context.Context, bookingID string) error {
	return m.Called(ctx, bookingID).Error(0)
}
func (m *mockBackend) CreatePaymentIntent(ctx context.Context, bookingID string) (*models.PaymentIntent, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntent), args.Error(1)
}
func (m *mockBackend) ConfirmPayment(ctx context.Context, paymentID string) (*models.PaymentConfirmation, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentConfirmation), args.Error(1)
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) ConfirmCardPayment(ctx context.Context, clientSecret string, card models.CardDetails) (*models.ProcessorResult, error) {
	args := m.Called(ctx, clientSecret, card)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProcessorResult), args.Error(1)
}

type mockQueue struct {
	mock.Mock
}

func (m *mockQueue) EnqueueConfirmTask(ctx context.Context, task *domain.ConfirmTask) error {
	return m.Called(ctx, task).Error(0)
}
func (m *mockQueue) GetPendingConfirmTasks(ctx context.Context, limit int) ([]domain.ConfirmTask, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ConfirmTask), args.Error(1)
}
func (m *mockQueue) UpdateConfirmTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	return m.Called(ctx, id, status, errMsg, nextRetryAt).Error(0)
}
