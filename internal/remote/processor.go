package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"courtflow/internal/config"
	"courtflow/internal/models"

	"github.com/rs/zerolog"
)

// ProcessorClient confirms a payment intent against the card
// processor's API using the intent's client secret. A card decline is
// a result, not an error: the intent stays confirmable with another
// card.
type ProcessorClient struct {
	baseURL    string
	key        string
	httpClient *http.Client
	logger     *zerolog.Logger
}

func NewProcessorClient(cfg config.PaymentConfig, logger *zerolog.Logger) *ProcessorClient {
	return &ProcessorClient{
		baseURL: strings.TrimRight(cfg.ProcessorURL, "/"),
		key:     cfg.PublishableKey,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		logger: logger,
	}
}

type processorResponse struct {
	Status           string `json:"status"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *ProcessorClient) ConfirmCardPayment(ctx context.Context, clientSecret string, card models.CardDetails) (*models.ProcessorResult, error) {
	intentID, err := intentIDFromSecret(clientSecret)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("client_secret", clientSecret)
	form.Set("payment_method_data[type]", "card")
	form.Set("payment_method_data[card][number]", card.Number)
	form.Set("payment_method_data[card][exp_month]", strconv.Itoa(card.ExpMonth))
	form.Set("payment_method_data[card][exp_year]", strconv.Itoa(card.ExpYear))
	form.Set("payment_method_data[card][cvc]", card.CVC)
	form.Set("payment_method_data[billing_details][name]", card.CardholderName)

	endpoint := fmt.Sprintf("%s/v1/payment_intents/%s/confirm", c.baseURL, intentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("processor request failed: %w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	var body processorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("processor response decode: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		result := &models.ProcessorResult{Status: body.Status}
		if body.LastPaymentError != nil {
			result.DeclineReason = body.LastPaymentError.Message
		}
		return result, nil
	case resp.StatusCode == http.StatusPaymentRequired:
		// Declined card. The reason is shown to the user verbatim.
		reason := ""
		if body.Error != nil {
			reason = body.Error.Message
		}
		c.logger.Info().Str("intent_id", intentID).Str("reason", reason).Msg("card declined")
		return &models.ProcessorResult{
			Status:        models.ProcessorStatusRequiresPaymentMethod,
			DeclineReason: reason,
		}, nil
	default:
		message := ""
		if body.Error != nil {
			message = body.Error.Message
		}
		return nil, NewAPIError(resp.StatusCode, message)
	}
}

// intentIDFromSecret extracts the intent identifier from a client
// secret of the form "<intent_id>_secret_<nonce>".
func intentIDFromSecret(clientSecret string) (string, error) {
	id, _, found := strings.Cut(clientSecret, "_secret_")
	if !found || id == "" {
		return "", fmt.Errorf("malformed client secret: %w", ErrValidation)
	}
	return id, nil
}
