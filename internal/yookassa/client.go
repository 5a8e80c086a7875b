// Package yookassa is a minimal client for the YooKassa payments API,
// covering payment creation with an embedded confirmation widget and status
// lookup for webhook verification.
package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const apiBase = "https://api.yookassa.ru/v3"

type Client struct {
	shopID     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// Payment mirrors the subset of the YooKassa payment object the ledger needs.
type Payment struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Confirmation struct {
		Type              string `json:"type"`
		ConfirmationToken string `json:"confirmation_token"`
	} `json:"confirmation"`
	Amount struct {
		Value    string `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
}

func NewClient(shopID, secretKey string, log *slog.Logger) *Client {
	return &Client{
		shopID:    shopID,
		secretKey: secretKey,
		baseURL:   apiBase,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
}

// WithBaseURL overrides the API host, used by tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

// CreatePayment creates a payment with an embedded confirmation so the
// mini-app widget can complete it. Each call carries a fresh idempotence key.
func (c *Client) CreatePayment(ctx context.Context, amount, currency, description string, metadata map[string]string) (*Payment, error) {
	payload := map[string]any{
		"amount": map[string]string{
			"value":    amount,
			"currency": currency,
		},
		"confirmation": map[string]string{
			"type": "embedded",
		},
		"capture":     true,
		"description": description,
		"metadata":    metadata,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payment payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build yookassa request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", uuid.NewString())
	req.SetBasicAuth(c.shopID, c.secretKey)

	return c.do(req)
}

// GetPayment fetches the current upstream state of a payment.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/"+paymentID, nil)
	if err != nil {
		return nil, fmt.Errorf("build yookassa request: %w", err)
	}
	req.SetBasicAuth(c.shopID, c.secretKey)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Payment, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yookassa request: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read yookassa response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if c.log != nil {
			c.log.Error("yookassa error", "status", resp.StatusCode, "body", string(rawBody))
		}
		return nil, fmt.Errorf("yookassa error: status=%d", resp.StatusCode)
	}

	var payment Payment
	if err := json.Unmarshal(rawBody, &payment); err != nil {
		return nil, fmt.Errorf("decode yookassa response: %w", err)
	}
	if payment.ID == "" {
		return nil, fmt.Errorf("invalid yookassa response (missing id)")
	}
	return &payment, nil
}
