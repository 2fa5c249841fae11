package worker

import (
	"context"
	"errors"
	"time"

	"courtflow/internal/domain"
	"courtflow/internal/events"
	"courtflow/internal/metrics"
	"courtflow/internal/models"
	"courtflow/internal/remote"

	"github.com/rs/zerolog"
)

// PaymentConfirmer is the single backend call the retrier drives.
type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, paymentID string) (*models.PaymentConfirmation, error)
}

// DraftResetter finishes the session once its payment is confirmed.
type DraftResetter interface {
	Reset(ctx context.Context, sessionID string) error
}

// ConfirmRetrier re-drives backend payment confirmations whose charge
// the processor already captured. Tasks live in the durable queue; the
// retrier polls it and backs off per task, so a backend outage delays
// confirmations instead of losing them.
type ConfirmRetrier struct {
	backend      PaymentConfirmer
	queue        domain.ConfirmQueue
	drafts       DraftResetter
	eventBus     domain.EventPublisher
	retryPolicy  RetryPolicy
	wake         chan struct{}
	pollInterval time.Duration
	batchSize    int
	logger       *zerolog.Logger
}

// NewConfirmRetrier builds a retrier with sane defaults.
func NewConfirmRetrier(backend PaymentConfirmer, queue domain.ConfirmQueue, drafts DraftResetter, eventBus domain.EventPublisher, retry RetryPolicy, pollInterval time.Duration, logger *zerolog.Logger) *ConfirmRetrier {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = 1 * time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}

	return &ConfirmRetrier{
		backend:      backend,
		queue:        queue,
		drafts:       drafts,
		eventBus:     eventBus,
		retryPolicy:  retry,
		wake:         make(chan struct{}, 1),
		pollInterval: pollInterval,
		batchSize:    20,
		logger:       logger,
	}
}

// Notify nudges the loop to poll immediately after a new task was
// enqueued. Non-blocking; a pending nudge is enough.
func (w *ConfirmRetrier) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Start launches the main loop; stops when ctx is done.
func (w *ConfirmRetrier) Start(ctx context.Context) {
	w.logger.Info().Msg("confirm retrier started")
	defer w.logger.Info().Msg("confirm retrier stopped")

	for {
		tasks, err := w.queue.GetPendingConfirmTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending confirm tasks")
		}
		for i := range tasks {
			if ctx.Err() != nil {
				return
			}
			w.processTask(ctx, &tasks[i])
		}

		select {
		case <-ctx.Done():
			return
		case <-w.wake:
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *ConfirmRetrier) processTask(ctx context.Context, task *domain.ConfirmTask) {
	_, err := w.backend.ConfirmPayment(ctx, task.PaymentID)
	if err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.queue.UpdateConfirmTaskStatus(ctx, task.ID, "completed", "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark confirm task completed")
	}

	metrics.IncPayment("backend", "ok")
	w.publish(events.EventPaymentConfirmed, task, "")

	// The flow for this session is finished.
	if err := w.drafts.Reset(ctx, task.SessionID); err != nil {
		w.logger.Warn().Err(err).Str("session_id", task.SessionID).Msg("draft reset after confirm failed")
	}

	w.logger.Info().Str("payment_id", task.PaymentID).Int("attempts", task.RetryCount+1).Msg("payment confirmed after retry")
}

func (w *ConfirmRetrier) retryOrFail(ctx context.Context, task *domain.ConfirmTask, cause error) {
	// A conflict or missing payment will not resolve on its own.
	permanent := errors.Is(cause, remote.ErrConflict) ||
		errors.Is(cause, remote.ErrNotFound) ||
		errors.Is(cause, remote.ErrValidation)

	attempt := task.RetryCount + 1
	if permanent || w.retryPolicy.Exhausted(attempt) {
		if err := w.queue.UpdateConfirmTaskStatus(ctx, task.ID, "failed", cause.Error(), nil); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark confirm task failed")
		}
		metrics.IncPayment("backend", "error")
		w.publish(events.EventPaymentFailed, task, cause.Error())
		// Captured charge with no confirmed booking: this needs a human.
		w.logger.Error().Err(cause).Str("payment_id", task.PaymentID).Str("booking_id", task.BookingID).Int("attempts", attempt).Msg("payment confirm exhausted, manual reconciliation required")
		return
	}

	next := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.queue.UpdateConfirmTaskStatus(ctx, task.ID, "retry", cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("schedule confirm task retry")
	}
	w.logger.Warn().Err(cause).Str("payment_id", task.PaymentID).Int("attempt", attempt).Time("next_retry", next).Msg("payment confirm retry scheduled")
}

func (w *ConfirmRetrier) publish(eventType string, task *domain.ConfirmTask, reason string) {
	if w.eventBus == nil {
		return
	}
	payload := events.PaymentEventPayload{
		SessionID: task.SessionID,
		PaymentID: task.PaymentID,
		BookingID: task.BookingID,
		Stage:     "backend",
		Reason:    reason,
	}
	if err := w.eventBus.PublishJSON(eventType, payload); err != nil {
		w.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
