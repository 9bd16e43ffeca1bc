// Package payprovider provides a client for the card payment provider API.
// It encapsulates authenticated HTTP requests to the provider's endpoints,
// request body construction, and response parsing. Payment intents created
// here gate the disclosure of referral details until payment confirmation.
package payprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Intent statuses reported by the provider.
const (
	IntentStatusRequiresConfirmation = "requires_confirmation"
	IntentStatusProcessing           = "processing"
	IntentStatusSucceeded            = "succeeded"
	IntentStatusCanceled             = "canceled"
)

// Client is a client for the payment provider API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client

	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewClient creates a new payment provider client. Outbound calls are
// throttled to stay within the provider's documented request quota.
func NewClient(baseURL, apiKey string, logger zerolog.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(25), 50),
		logger:  logger.With().Str("component", "payprovider").Logger(),
	}
}

// PaymentMethodRequest is the payload for registering a tokenized card.
type PaymentMethodRequest struct {
	Type      string `json:"type"`
	CardToken string `json:"card_token"`
}

// PaymentMethod is the provider's representation of a stored payment method.
type PaymentMethod struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Last4    string `json:"last4"`
	Brand    string `json:"brand"`
	ExpMonth int    `json:"exp_month"`
	ExpYear  int    `json:"exp_year"`
}

// PaymentIntentRequest is the payload for creating a payment intent.
type PaymentIntentRequest struct {
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	PaymentMethodID string `json:"payment_method_id,omitempty"`
	Description     string `json:"description,omitempty"`
	IdempotencyKey  string `json:"idempotency_key,omitempty"`
}

// PaymentIntent is the provider's representation of a payment intent.
// ClientSecret is handed to the paying client to complete confirmation.
type PaymentIntent struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	ClientSecret string `json:"client_secret"`
}

// ErrorResponse represents an error from the provider API.
type ErrorResponse struct {
	Errors []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Status string `json:"status"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("payment provider error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return "unknown payment provider error"
}

// CreatePaymentMethod registers a tokenized card with the provider and
// returns the stored payment method.
func (c *Client) CreatePaymentMethod(ctx context.Context, cardToken string) (*PaymentMethod, error) {
	payload := PaymentMethodRequest{
		Type:      "card",
		CardToken: cardToken,
	}

	var method PaymentMethod
	if err := c.do(ctx, http.MethodPost, "/v1/payment_methods", payload, &method); err != nil {
		return nil, err
	}
	return &method, nil
}

// CreatePaymentIntent creates a payment intent for the given amount in minor
// units. The returned intent carries the client secret the payer needs to
// confirm the payment.
func (c *Client) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", req, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// RetrieveIntent fetches the current state of a payment intent. Callers use
// this to verify a confirmation webhook before marking a referral paid.
func (c *Client) RetrieveIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+intentID, nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// CancelIntent cancels a payment intent that has not yet succeeded.
func (c *Client) CancelIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	var intent PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents/"+intentID+"/cancel", nil, &intent); err != nil {
		return nil, err
	}
	return &intent, nil
}

// do executes a request against the provider and decodes the response into
// out. Non-2xx responses are decoded into ErrorResponse and returned as the
// error.
func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			c.logger.Warn().
				Str("method", method).
				Str("path", path).
				Int("status", resp.StatusCode).
				Msg("non- 2xx response with unparsable error body")
			return fmt.Errorf("failed to decode error response (status %d)", resp.StatusCode)
		}
		c.logger.Warn().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("title", firstErrorTitle(errResp)).
			Str("detail", firstErrorDetail(errResp)).
			Msg("provider request failed")
		return &errResp
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func firstErrorTitle(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Title
}

func firstErrorDetail(resp ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Detail
}
