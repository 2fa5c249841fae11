package service

import (
	"context"

	"courtflow/internal/domain"
	"courtflow/internal/events"
	"courtflow/internal/metrics"
	"courtflow/internal/models"

	"github.com/rs/zerolog"
)

// PaymentCoordinator drives the two-phase payment: the processor
// captures the card against the intent's client secret, then the
// backend is told to mark the booking paid. Only the backend
// confirmation makes the payment durable; a processor success with a
// failed backend call goes to the confirm queue instead of being
// retried inline or silently dropped.
type PaymentCoordinator struct {
	backend     domain.BookingBackend
	processor   domain.CardProcessor
	drafts      domain.DraftManager
	queue       domain.ConfirmQueue
	eventBus    domain.EventPublisher
	queueNotify func()
	logger      *zerolog.Logger
}

func NewPaymentCoordinator(backend domain.BookingBackend, processor domain.CardProcessor, drafts domain.DraftManager, queue domain.ConfirmQueue, eventBus domain.EventPublisher, logger *zerolog.Logger) *PaymentCoordinator {
	return &PaymentCoordinator{
		backend:   backend,
		processor: processor,
		drafts:    drafts,
		queue:     queue,
		eventBus:  eventBus,
		logger:    logger,
	}
}

// OnConfirmQueued registers the hook invoked after a confirm task is
// enqueued, so the retrier can poll without waiting a full interval.
// The hook must not block.
func (p *PaymentCoordinator) OnConfirmQueued(fn func()) {
	p.queueNotify = fn
}

// PayResult reports where the payment landed. Message carries the
// user-facing Spanish text when State is not BACKEND_CONFIRMED.
type PayResult struct {
	State   string
	Message string
}

// CreateIntent asks the backend for a payment intent on the booking
// and records it in the draft.
func (p *PaymentCoordinator) CreateIntent(ctx context.Context, sessionID, bookingID string) (*models.PaymentIntent, error) {
	intent, err := p.backend.CreatePaymentIntent(ctx, bookingID)
	if err != nil {
		metrics.IncPayment("intent", "error")
		return nil, err
	}

	if err := p.drafts.SetPaymentState(ctx, sessionID, intent.ID, models.PaymentIntentCreated); err != nil {
		return nil, err
	}

	metrics.IncPayment("intent", "ok")
	return intent, nil
}

// Pay runs both phases. A card decline leaves the intent reusable; a
// backend confirm failure after a captured charge enqueues a retry
// task and reports the payment as pending.
func (p *PaymentCoordinator) Pay(ctx context.Context, sessionID string, intent *models.PaymentIntent, card models.CardDetails) (*PayResult, error) {
	result, err := p.processor.ConfirmCardPayment(ctx, intent.ClientSecret, card)
	if err != nil {
		metrics.IncPayment("processor", "error")
		return nil, err
	}

	if result.Status != models.ProcessorStatusSucceeded {
		metrics.IncPayment("processor", "declined")
		p.publishPayment(events.EventPaymentFailed, sessionID, intent, "processor", result.DeclineReason)
		msg := result.DeclineReason
		if msg == "" {
			msg = MsgPaymentRejected
		}
		return &PayResult{State: models.PaymentIntentCreated, Message: msg}, nil
	}

	metrics.IncPayment("processor", "ok")
	if err := p.drafts.SetPaymentState(ctx, sessionID, intent.ID, models.PaymentProcessorConfirmed); err != nil {
		return nil, err
	}

	if _, err := p.backend.ConfirmPayment(ctx, intent.ID); err != nil {
		// The charge is captured; losing it here is not an option.
		metrics.IncPayment("backend", "error")
		p.logger.Error().Err(err).Str("payment_id", intent.ID).Str("booking_id", intent.BookingID).Msg("backend payment confirm failed, enqueueing retry")

		task := &domain.ConfirmTask{
			PaymentID: intent.ID,
			BookingID: intent.BookingID,
			SessionID: sessionID,
			Status:    "pending",
			LastError: err.Error(),
		}
		if qErr := p.queue.EnqueueConfirmTask(ctx, task); qErr != nil {
			p.logger.Error().Err(qErr).Str("payment_id", intent.ID).Msg("confirm task enqueue failed")
			return nil, qErr
		}
		if p.queueNotify != nil {
			p.queueNotify()
		}

		p.publishPayment(events.EventPaymentFailed, sessionID, intent, "backend", "confirm pending retry")
		return &PayResult{State: models.PaymentProcessorConfirmed, Message: MsgConfirmPending}, nil
	}

	metrics.IncPayment("backend", "ok")
	p.publishPayment(events.EventPaymentConfirmed, sessionID, intent, "backend", "")

	// The flow is complete; the draft has nothing left to resume.
	if err := p.drafts.Reset(ctx, sessionID); err != nil {
		p.logger.Warn().Err(err).Str("session_id", sessionID).Msg("draft reset after payment failed")
	}

	return &PayResult{State: models.PaymentBackendConfirmed}, nil
}

func (p *PaymentCoordinator) publishPayment(eventType, sessionID string, intent *models.PaymentIntent, stage, reason string) {
	if p.eventBus == nil {
		return
	}
	payload := events.PaymentEventPayload{
		SessionID: sessionID,
		PaymentID: intent.ID,
		BookingID: intent.BookingID,
		Stage:     stage,
		Reason:    reason,
	}
	if err := p.eventBus.PublishJSON(eventType, payload); err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Msg("publish event error")
	}
}
