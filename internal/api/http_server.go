// Package api exposes the reservation flow over HTTP for local
// frontends. Sessions are addressed by an opaque identifier chosen by
// the caller; all state behind them lives in the draft store.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"courtflow/internal/config"
	"courtflow/internal/countdown"
	"courtflow/internal/models"
	"courtflow/internal/remote"
	"courtflow/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type HTTPServer struct {
	cfg      config.APIConfig
	flow     *service.ReservationFlow
	payments *service.PaymentCoordinator
	drafts   *service.DraftService
	backend  *remote.Client
	exporter BookingExporter
	auth     *HTTPAuth
	server   *http.Server
	timers   sync.Map // map[string]*countdown.Countdown
	logger   *zerolog.Logger
}

// BookingExporter writes a booking list to a file and returns its path.
type BookingExporter interface {
	ExportBookings(bookings []*models.Booking) (string, error)
}

func NewHTTPServer(cfg config.APIConfig, flow *service.ReservationFlow, payments *service.PaymentCoordinator, drafts *service.DraftService, backend *remote.Client, exporter BookingExporter, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		flow:     flow,
		payments: payments,
		drafts:   drafts,
		backend:  backend,
		exporter: exporter,
		auth:     NewHTTPAuth(cfg),
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/courts/", srv.handleAvailability)
	mux.HandleFunc("/api/v1/sessions/", srv.handleSession)
	mux.HandleFunc("/api/v1/bookings", srv.handleBookings)
	mux.HandleFunc("/api/v1/bookings/", srv.handleBooking)
	mux.HandleFunc("/api/v1/bookings/export", srv.handleExport)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.stopAllTimers()
	return s.server.Shutdown(ctx)
}

// GET /api/v1/courts/{id}/availability?date=YYYY-MM-DD&duration=90
func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	courtID, rest, ok := splitResource(r.URL.Path, "/api/v1/courts/")
	if !ok || rest != "availability" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "session is required")
		return
	}

	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	var duration int
	if _, err := fmt.Sscanf(r.URL.Query().Get("duration"), "%d", &duration); err != nil {
		writeError(w, http.StatusBadRequest, "duration is required")
		return
	}

	court := &models.Court{
		ID:       courtID,
		VenueID:  strings.TrimSpace(r.URL.Query().Get("venue")),
		Currency: strings.TrimSpace(r.URL.Query().Get("currency")),
	}
	if _, err := fmt.Sscanf(r.URL.Query().Get("hourly_rate"), "%d", &court.HourlyRate); err != nil {
		writeError(w, http.StatusBadRequest, "hourly_rate is required")
		return
	}

	result, err := s.flow.LoadAvailability(r.Context(), sessionID, court, date, duration)
	if err != nil {
		s.writeFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"court_id": result.CourtID,
		"date":     result.Date,
		"slots":    result.Slots,
		"periods":  models.GroupSlotsByPeriod(result.Slots),
	})
}

// Session subresources:
//
//	POST /api/v1/sessions/{id}/match
//	POST /api/v1/sessions/{id}/select
//	POST /api/v1/sessions/{id}/confirm
//	POST /api/v1/sessions/{id}/retry
//	POST /api/v1/sessions/{id}/abandon
//	POST /api/v1/sessions/{id}/payment-intent
//	POST /api/v1/sessions/{id}/pay
//	GET  /api/v1/sessions/{id}
func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	sessionID, action, ok := splitResource(r.URL.Path, "/api/v1/sessions/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if action == "" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleResume(w, r, sessionID)
		return
	}

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch action {
	case "match":
		s.handleSetMatch(w, r, sessionID)
	case "select":
		s.handleSelect(w, r, sessionID)
	case "confirm":
		s.handleConfirm(w, r, sessionID)
	case "retry":
		s.handleRetry(w, r, sessionID)
	case "abandon":
		s.handleAbandon(w, r, sessionID)
	case "payment-intent":
		s.handlePaymentIntent(w, r, sessionID)
	case "pay":
		s.handlePay(w, r, sessionID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleSetMatch(w http.ResponseWriter, r *http.Request, sessionID string) {
	var body struct {
		SportID    string `json:"sport_id"`
		HomeTeamID string `json:"home_team_id"`
		AwayTeamID string `json:"away_team_id"`
		MatchID    string `json:"match_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	if err := s.drafts.SetMatch(r.Context(), sessionID, body.SportID, body.HomeTeamID, body.AwayTeamID, body.MatchID); err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleSelect(w http.ResponseWriter, r *http.Request, sessionID string) {
	var body struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	if err := s.flow.SelectSlot(r.Context(), sessionID, models.Slot{Start: body.Start, End: body.End}); err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "step": models.StepSelecting})
}

func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request, sessionID string) {
	result, err := s.flow.AcquireAndConfirm(r.Context(), sessionID)
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	s.trackCountdown(sessionID, result)
	writeJSON(w, http.StatusOK, flowResponse(result))
}

func (s *HTTPServer) handleRetry(w http.ResponseWriter, r *http.Request, sessionID string) {
	result, err := s.flow.RetryConfirm(r.Context(), sessionID)
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	if result.Step != models.StepConfirming {
		s.stopTimer(sessionID)
	}
	writeJSON(w, http.StatusOK, flowResponse(result))
}

func (s *HTTPServer) handleAbandon(w http.ResponseWriter, r *http.Request, sessionID string) {
	s.stopTimer(sessionID)
	if err := s.flow.Abandon(r.Context(), sessionID); err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "step": models.StepSelecting})
}

func (s *HTTPServer) handleResume(w http.ResponseWriter, r *http.Request, sessionID string) {
	result, err := s.flow.Resume(r.Context(), sessionID)
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	s.trackCountdown(sessionID, result)
	writeJSON(w, http.StatusOK, flowResponse(result))
}

func (s *HTTPServer) handlePaymentIntent(w http.ResponseWriter, r *http.Request, sessionID string) {
	var body struct {
		BookingID string `json:"booking_id"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.BookingID == "" {
		writeError(w, http.StatusBadRequest, "booking_id is required")
		return
	}

	intent, err := s.payments.CreateIntent(r.Context(), sessionID, body.BookingID)
	if err != nil {
		s.writePaymentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

func (s *HTTPServer) handlePay(w http.ResponseWriter, r *http.Request, sessionID string) {
	var body struct {
		PaymentID    string `json:"payment_id"`
		BookingID    string `json:"booking_id"`
		ClientSecret string `json:"client_secret"`
		Card         struct {
			Name     string `json:"name"`
			Number   string `json:"number"`
			ExpMonth int    `json:"exp_month"`
			ExpYear  int    `json:"exp_year"`
			CVC      string `json:"cvc"`
		} `json:"card"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.PaymentID == "" || body.ClientSecret == "" {
		writeError(w, http.StatusBadRequest, "payment_id and client_secret are required")
		return
	}

	intent := &models.PaymentIntent{
		ID:           body.PaymentID,
		BookingID:    body.BookingID,
		ClientSecret: body.ClientSecret,
	}
	card := models.CardDetails{
		CardholderName: body.Card.Name,
		Number:         body.Card.Number,
		ExpMonth:       body.Card.ExpMonth,
		ExpYear:        body.Card.ExpYear,
		CVC:            body.Card.CVC,
	}

	result, err := s.payments.Pay(r.Context(), sessionID, intent, card)
	if err != nil {
		s.writePaymentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": result.State, "message": result.Message})
}

// GET /api/v1/bookings
func (s *HTTPServer) handleBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	bookings, err := s.backend.ListBookings(r.Context())
	if err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

// DELETE /api/v1/bookings/{id}
func (s *HTTPServer) handleBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, rest, ok := splitResource(r.URL.Path, "/api/v1/bookings/")
	if !ok || rest != "" || bookingID == "export" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.backend.CancelBooking(r.Context(), bookingID); err != nil {
		s.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /api/v1/bookings/export
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	bookings, err := s.backend.ListBookings(r.Context())
	if err != nil {
		s.writeFlowError(w, err)
		return
	}

	path, err := s.exporter.ExportBookings(bookings)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"file": path})
}

// trackCountdown owns the advisory timer for a session's hold: its
// expiry tick marks the hold gone in the draft. One timer per session;
// a newer hold replaces the older timer.
func (s *HTTPServer) trackCountdown(sessionID string, result *service.FlowResult) {
	if result.Countdown == nil {
		if result.Step != models.StepConfirming {
			s.stopTimer(sessionID)
		}
		return
	}

	s.stopTimer(sessionID)
	s.timers.Store(sessionID, result.Countdown)

	holdID := ""
	if result.Hold != nil {
		holdID = result.Hold.ID
	}

	go func(cd *countdown.Countdown) {
		for tick := range cd.Ticks() {
			if tick.Expired {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := s.flow.HandleExpiry(ctx, sessionID, holdID); err != nil {
					s.logger.Error().Err(err).Str("session_id", sessionID).Msg("hold expiry handling failed")
				}
				cancel()
			}
		}
		s.timers.CompareAndDelete(sessionID, cd)
	}(result.Countdown)
}

func (s *HTTPServer) stopTimer(sessionID string) {
	if v, ok := s.timers.LoadAndDelete(sessionID); ok {
		v.(*countdown.Countdown).Stop()
	}
}

func (s *HTTPServer) stopAllTimers() {
	s.timers.Range(func(key, value any) bool {
		value.(*countdown.Countdown).Stop()
		return true
	})
}

func flowResponse(result *service.FlowResult) map[string]any {
	resp := map[string]any{"step": result.Step}
	if result.Message != "" {
		resp["message"] = result.Message
	}
	if result.Booking != nil {
		resp["booking"] = result.Booking
	}
	if result.Hold != nil {
		resp["hold"] = result.Hold
		remaining := int(time.Until(result.Hold.ExpiresAt).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		resp["countdown"] = models.FormatCountdown(remaining)
	}
	return resp
}

func (s *HTTPServer) writeFlowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDuration),
		errors.Is(err, service.ErrPastDate),
		errors.Is(err, service.ErrDateTooFar),
		errors.Is(err, service.ErrNoSelection),
		errors.Is(err, service.ErrNoHold):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSlotUnavailable):
		writeErrorWithMessage(w, http.StatusBadRequest, err, service.MsgSlotUnavailable)
	case errors.Is(err, remote.ErrUnauthorized):
		writeBackendError(w, http.StatusUnauthorized, err, service.UserMessage(err))
	case errors.Is(err, remote.ErrConflict):
		writeBackendError(w, http.StatusConflict, err, service.UserMessage(err))
	case errors.Is(err, remote.ErrNotFound):
		writeBackendError(w, http.StatusNotFound, err, service.UserMessage(err))
	case errors.Is(err, remote.ErrForbidden):
		writeBackendError(w, http.StatusForbidden, err, service.UserMessage(err))
	case errors.Is(err, remote.ErrValidation):
		writeBackendError(w, http.StatusBadRequest, err, service.UserMessage(err))
	case errors.Is(err, remote.ErrTransient):
		writeBackendError(w, http.StatusBadGateway, err, service.UserMessage(err))
	default:
		s.logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// writePaymentError is writeFlowError with the payment reading of the
// status codes: 409 already paid, 403 ownership, 404 booking gone.
func (s *HTTPServer) writePaymentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, remote.ErrUnauthorized):
		writeBackendError(w, http.StatusUnauthorized, err, service.PaymentUserMessage(err))
	case errors.Is(err, remote.ErrConflict):
		writeBackendError(w, http.StatusConflict, err, service.PaymentUserMessage(err))
	case errors.Is(err, remote.ErrNotFound):
		writeBackendError(w, http.StatusNotFound, err, service.PaymentUserMessage(err))
	case errors.Is(err, remote.ErrForbidden):
		writeBackendError(w, http.StatusForbidden, err, service.PaymentUserMessage(err))
	case errors.Is(err, remote.ErrValidation):
		writeBackendError(w, http.StatusBadRequest, err, service.PaymentUserMessage(err))
	case errors.Is(err, remote.ErrTransient):
		writeBackendError(w, http.StatusBadGateway, err, service.PaymentUserMessage(err))
	default:
		s.logger.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// splitResource cuts "/prefix/{id}" and "/prefix/{id}/{rest}".
func splitResource(path, prefix string) (id, rest string, ok bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", "", false
	}
	trimmed := strings.TrimPrefix(path, prefix)
	id, rest, _ = strings.Cut(trimmed, "/")
	if id = strings.TrimSpace(id); id == "" {
		return "", "", false
	}
	return id, strings.TrimSpace(rest), true
}

const requestIDHeader = "X-Request-Id"

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

func writeErrorWithMessage(w http.ResponseWriter, statusCode int, err error, userMessage string) {
	writeJSON(w, statusCode, map[string]string{"error": err.Error(), "message": userMessage})
}

// writeBackendError reports a failed backend operation. The body carries
// the error step so clients can render the flow state directly.
func writeBackendError(w http.ResponseWriter, statusCode int, err error, userMessage string) {
	writeJSON(w, statusCode, map[string]string{
		"error":   err.Error(),
		"message": userMessage,
		"step":    models.StepError,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
