package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"courtflow/internal/config"
	"courtflow/internal/metrics"
	"courtflow/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Client is the HTTP client for the booking backend. Every request
// carries the bearer credential from the token source; a 401 anywhere
// except the logout call invalidates the session through the hook.
type Client struct {
	baseURL    string
	basePath   string
	token      oauth2.TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration

	onSessionExpired func()
}

// NewClient constructs a client from backend config. The static token
// is wrapped in an oauth2.TokenSource so a refreshing source can be
// swapped in without touching call sites.
func NewClient(cfg config.BackendConfig, logger *zerolog.Logger) *Client {
	basePath := ""
	if parsed, err := url.Parse(cfg.BaseURL); err == nil {
		basePath = parsed.Path
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		basePath: basePath,
		token:    oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}),
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst),
		logger:  logger,
	}
}

// UseRedisCache configures short-lived Redis caching for availability
// reads. Holds, bookings and payments are never cached.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// OnSessionExpired registers the hook invoked on a 401 outside the
// logout call. The hook must not block.
func (c *Client) OnSessionExpired(fn func()) {
	c.onSessionExpired = fn
}

// Wire shapes of the backend. These differ from the models, which are
// the client-side vocabulary; mapping happens at this boundary only.

type backendHold struct {
	ID          string    `json:"id"`
	CourtID     string    `json:"courtId"`
	VenueID     string    `json:"venueId"`
	MatchID     string    `json:"matchId,omitempty"`
	StartAt     time.Time `json:"startAt"`
	EndAt       time.Time `json:"endAt"`
	DurationMin int       `json:"durationMin"`
	Status      string    `json:"status"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type backendBooking struct {
	ID          string    `json:"id"`
	MatchID     string    `json:"matchId,omitempty"`
	CourtID     string    `json:"courtId"`
	VenueID     string    `json:"venueId"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	DurationMin int       `json:"durationMin"`
	Price       int64     `json:"price"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	PaidAt      time.Time `json:"paidAt,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (b backendBooking) toModel() *models.Booking {
	return &models.Booking{
		ID:          b.ID,
		MatchID:     b.MatchID,
		CourtID:     b.CourtID,
		VenueID:     b.VenueID,
		Start:       b.Start,
		End:         b.End,
		DurationMin: b.DurationMin,
		Price:       b.Price,
		Currency:    b.Currency,
		Status:      b.Status,
		PaidAt:      b.PaidAt,
		CreatedAt:   b.CreatedAt,
	}
}

type backendAvailability struct {
	CourtID     string        `json:"courtId"`
	VenueID     string        `json:"venueId"`
	Timezone    string        `json:"timezone"`
	Date        string        `json:"date"`
	DurationMin int           `json:"durationMin"`
	Slots       []backendSlot `json:"slots"`
}

type backendSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CreateHoldRequest carries the hold parameters. IdempotencyKey lets
// the server deduplicate a retried create after a transient failure.
type CreateHoldRequest struct {
	MatchID        string
	Start          time.Time
	DurationMin    int
	IdempotencyKey string
}

// ConfirmBookingRequest converts a hold into a booking at the given
// price.
type ConfirmBookingRequest struct {
	HoldID   string `json:"holdId"`
	Price    int64  `json:"price"`
	Currency string `json:"currency"`
}

// GetAvailability returns the free slots for a court/date/duration.
// Idempotent read; responses are cached briefly when Redis is wired.
func (c *Client) GetAvailability(ctx context.Context, courtID string, date time.Time, durationMin int) (*models.AvailabilityResult, error) {
	dateStr := models.ToYYYYMMDD(date)
	endpoint := fmt.Sprintf("%s/courts/%s/availability?date=%s&durationMin=%d",
		c.baseURL, url.PathEscape(courtID), url.QueryEscape(dateStr), durationMin)
	cacheKey := fmt.Sprintf("availability:%s:%s:%d", courtID, dateStr, durationMin)

	var wire backendAvailability
	if !c.readCache(ctx, cacheKey, &wire) {
		if err := c.doGet(ctx, endpoint, &wire); err != nil {
			return nil, err
		}
		c.writeCache(ctx, cacheKey, wire)
	}

	result := &models.AvailabilityResult{
		CourtID:     wire.CourtID,
		VenueID:     wire.VenueID,
		Timezone:    wire.Timezone,
		Date:        wire.Date,
		DurationMin: wire.DurationMin,
		Slots:       make([]models.Slot, 0, len(wire.Slots)),
	}
	for _, s := range wire.Slots {
		result.Slots = append(result.Slots, models.Slot{Start: s.Start, End: s.End})
	}
	return result, nil
}

// CreateHold claims a slot exclusively until the server-issued expiry.
// A 409 means another party took the slot; that is an expected outcome,
// not a failure of this client.
func (c *Client) CreateHold(ctx context.Context, courtID string, req CreateHoldRequest) (*models.Hold, error) {
	endpoint := fmt.Sprintf("%s/courts/%s/holds", c.baseURL, url.PathEscape(courtID))

	body := struct {
		MatchID     string    `json:"matchId,omitempty"`
		Start       time.Time `json:"start"`
		DurationMin int       `json:"durationMin"`
	}{req.MatchID, req.Start, req.DurationMin}

	var wire backendHold
	headers := map[string]string{}
	if req.IdempotencyKey != "" {
		headers["Idempotency-Key"] = req.IdempotencyKey
	}
	if err := c.doPost(ctx, endpoint, body, &wire, headers); err != nil {
		return nil, err
	}

	return &models.Hold{
		ID:          wire.ID,
		CourtID:     wire.CourtID,
		MatchID:     wire.MatchID,
		Start:       wire.StartAt,
		DurationMin: wire.DurationMin,
		ExpiresAt:   wire.ExpiresAt,
	}, nil
}

// CancelHold releases a hold early. Best-effort: callers treat failure
// as non-fatal since server-side expiry is the safety net.
func (c *Client) CancelHold(ctx context.Context, courtID, holdID string) error {
	endpoint := fmt.Sprintf("%s/courts/%s/holds/%s",
		c.baseURL, url.PathEscape(courtID), url.PathEscape(holdID))
	return c.doDelete(ctx, endpoint)
}

// ConfirmBooking converts a hold into a durable booking. A 409 means
// the hold expired or was already consumed.
func (c *Client) ConfirmBooking(ctx context.Context, req ConfirmBookingRequest) (*models.Booking, error) {
	endpoint := fmt.Sprintf("%s/bookings/confirm", c.baseURL)
	var wire backendBooking
	if err := c.doPost(ctx, endpoint, req, &wire, nil); err != nil {
		return nil, err
	}
	return wire.toModel(), nil
}

func (c *Client) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	endpoint := fmt.Sprintf("%s/bookings/%s", c.baseURL, url.PathEscape(bookingID))
	var wire backendBooking
	if err := c.doGet(ctx, endpoint, &wire); err != nil {
		return nil, err
	}
	return wire.toModel(), nil
}

func (c *Client) ListBookings(ctx context.Context) ([]*models.Booking, error) {
	endpoint := fmt.Sprintf("%s/bookings", c.baseURL)
	var wire []backendBooking
	if err := c.doGet(ctx, endpoint, &wire); err != nil {
		return nil, err
	}
	bookings := make([]*models.Booking, 0, len(wire))
	for _, b := range wire {
		bookings = append(bookings, b.toModel())
	}
	return bookings, nil
}

func (c *Client) CancelBooking(ctx context.Context, bookingID string) error {
	endpoint := fmt.Sprintf("%s/bookings/%s", c.baseURL, url.PathEscape(bookingID))
	return c.doDelete(ctx, endpoint)
}

// CreatePaymentIntent opens a payment intent for a booking. A 409
// means the booking is already paid.
func (c *Client) CreatePaymentIntent(ctx context.Context, bookingID string) (*models.PaymentIntent, error) {
	endpoint := fmt.Sprintf("%s/payments/create-intent", c.baseURL)
	body := struct {
		BookingID string `json:"bookingId"`
	}{bookingID}

	var wire struct {
		PaymentID    string `json:"paymentId"`
		ClientSecret string `json:"clientSecret"`
		Amount       int64  `json:"amount"`
		Currency     string `json:"currency"`
		Status       string `json:"status"`
	}
	if err := c.doPost(ctx, endpoint, body, &wire, nil); err != nil {
		return nil, err
	}

	return &models.PaymentIntent{
		ID:           wire.PaymentID,
		BookingID:    bookingID,
		ClientSecret: wire.ClientSecret,
		Amount:       wire.Amount,
		Currency:     wire.Currency,
		Status:       wire.Status,
	}, nil
}

// ConfirmPayment reports the processor-side success to the backend.
// Only after this call succeeds is the booking considered paid.
func (c *Client) ConfirmPayment(ctx context.Context, paymentID string) (*models.PaymentConfirmation, error) {
	endpoint := fmt.Sprintf("%s/payments/confirm", c.baseURL)
	body := struct {
		PaymentID string `json:"paymentId"`
	}{paymentID}

	var wire struct {
		PaymentID string `json:"paymentId"`
		Status    string `json:"status"`
		BookingID string `json:"bookingId"`
	}
	if err := c.doPost(ctx, endpoint, body, &wire, nil); err != nil {
		return nil, err
	}
	return &models.PaymentConfirmation{
		PaymentID: wire.PaymentID,
		BookingID: wire.BookingID,
		Status:    wire.Status,
	}, nil
}

// Logout ends the remote session. The only call where a 401 does not
// trigger the session-expired hook.
func (c *Client) Logout(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/auth/logout", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil, true)
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out, false)
}

func (c *Client) doPost(ctx context.Context, endpoint string, body, out any, headers map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req, out, false)
}

func (c *Client) doDelete(ctx context.Context, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil, false)
}

// endpointLabel reduces a request path to its resource group so the
// request counter stays low-cardinality: "courts", "bookings",
// "payments", "auth".
func (c *Client) endpointLabel(path string) string {
	trimmed := strings.Trim(strings.TrimPrefix(path, c.basePath), "/")
	if trimmed == "" {
		return "root"
	}
	if i := strings.IndexByte(trimmed, '/'); i > 0 {
		trimmed = trimmed[:i]
	}
	return trimmed
}

func (c *Client) do(req *http.Request, out any, isLogout bool) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return err
		}
	}
	if err := c.addAuth(req); err != nil {
		return err
	}
	metrics.IncBackendRequest(c.endpointLabel(req.URL.Path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errBody struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)

		if resp.StatusCode == http.StatusUnauthorized && !isLogout && c.onSessionExpired != nil {
			c.onSessionExpired()
		}

		apiErr := NewAPIError(resp.StatusCode, errBody.Message)
		c.logger.Debug().
			Int("status", resp.StatusCode).
			Str("method", req.Method).
			Str("url", req.URL.Path).
			Str("message", errBody.Message).
			Msg("backend error response")
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) addAuth(req *http.Request) error {
	if c.token == nil {
		return nil
	}
	tok, err := c.token.Token()
	if err != nil {
		return fmt.Errorf("token source: %w", err)
	}
	tok.SetAuthHeader(req)
	return nil
}
