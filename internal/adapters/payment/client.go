// Package payment is the client for the card payment processor. Card data
// never reaches the platform; clients tokenize with the processor's SDK and
// send the resulting source ID.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/telecare/platform/internal/shared/config"
	apperrors "github.com/telecare/platform/internal/shared/errors"
)

const providerName = "payment processor"

// Charge is the processor's view of a completed or pending payment
type Charge struct {
	ID         string `json:"id"`
	Status     string `json:"status"` // COMPLETED, PENDING, FAILED, ...
	ReceiptURL string `json:"receipt_url"`
	SourceType string `json:"source_type"`
}

// Client calls the payment processor REST API
type Client struct {
	baseURL       string
	accessToken   string
	applicationID string
	environment   string
	httpClient    *http.Client
}

// NewClient creates a new payment processor client
func NewClient(cfg config.PaymentConfig) *Client {
	baseURL := "https://connect.squareupsandbox.com/v2"
	if strings.EqualFold(cfg.Environment, "production") {
		baseURL = "https://connect.squareup.com/v2"
	}

	return &Client{
		baseURL:       baseURL,
		accessToken:   cfg.AccessToken,
		applicationID: cfg.ApplicationID,
		environment:   cfg.Environment,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Configured reports whether processor credentials are present. When false
// the session gate waives the payment requirement.
func (c *Client) Configured() bool {
	return c.accessToken != "" && c.applicationID != ""
}

// ApplicationID exposes the public application ID for client-side tokenization
func (c *Client) ApplicationID() string {
	return c.applicationID
}

// Environment returns the processor environment (sandbox, production)
func (c *Client) Environment() string {
	return c.environment
}

// CreatePayment charges a tokenized source. The idempotency key guarantees
// at-most-once execution on the processor side if the request is retried.
func (c *Client) CreatePayment(ctx context.Context, amountCents int64, currency, sourceID, idempotencyKey, reference string) (*Charge, error) {
	if !c.Configured() {
		return nil, apperrors.NotConfigured(providerName)
	}

	reqBody := map[string]any{
		"idempotency_key": idempotencyKey,
		"source_id":       sourceID,
		"amount_money": map[string]any{
			"amount":   amountCents,
			"currency": currency,
		},
		"reference_id": reference,
	}

	var result struct {
		Payment paymentBody `json:"payment"`
	}
	if err := c.do(ctx, http.MethodPost, "/payments", reqBody, &result); err != nil {
		return nil, err
	}

	return result.Payment.toCharge(), nil
}

// GetPayment fetches the current processor state of a payment
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Charge, error) {
	if !c.Configured() {
		return nil, apperrors.NotConfigured(providerName)
	}

	var result struct {
		Payment paymentBody `json:"payment"`
	}
	if err := c.do(ctx, http.MethodGet, "/payments/"+paymentID, nil, &result); err != nil {
		return nil, err
	}

	return result.Payment.toCharge(), nil
}

type paymentBody struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	ReceiptURL string `json:"receipt_url"`
	SourceType string `json:"source_type"`
}

func (p paymentBody) toCharge() *Charge {
	return &Charge{
		ID:         p.ID,
		Status:     p.Status,
		ReceiptURL: p.ReceiptURL,
		SourceType: p.SourceType,
	}
}

func (c *Client) do(ctx context.Context, method, path string, reqBody, out any) error {
	var body *bytes.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Dependency(providerName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Errors []struct {
				Code   string `json:"code"`
				Detail string `json:"detail"`
			} `json:"errors"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		detail := ""
		if len(apiErr.Errors) > 0 {
			detail = apiErr.Errors[0].Code + " " + apiErr.Errors[0].Detail
		}
		return apperrors.Dependency(providerName,
			fmt.Errorf("status %d: %s", resp.StatusCode, detail))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.Dependency(providerName, fmt.Errorf("failed to decode response: %w", err))
		}
	}

	return nil
}
