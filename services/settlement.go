package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SettlementStatus is the outcome reported by the settlement capability.
type SettlementStatus string

const (
	SettlementConfirmed SettlementStatus = "confirmed"
	SettlementPending   SettlementStatus = "pending"
	SettlementFailed    SettlementStatus = "failed"
)

// SettlementRequest carries everything the external capability needs to turn
// a token debit into real-world value.
type SettlementRequest struct {
	UserID         uint    `json:"user_id"`
	Amount         int64   `json:"amount"`
	Method         string  `json:"method"`
	ConversionRate float64 `json:"conversion_rate"`
	Reference      string  `json:"reference"`
}

// Settlement is the external capability that pays out cash or charity
// redemptions. Implementations must be safe for concurrent use.
type Settlement interface {
	Settle(ctx context.Context, req SettlementRequest) (SettlementStatus, error)
}

// HTTPSettlement posts settlement requests to a payout gateway. A 200 means
// settled, a 202 means accepted for asynchronous settlement (the redemption
// stays pending until confirmed or cancelled), anything else is a failure.
type HTTPSettlement struct {
	url    string
	client *http.Client
}

// NewHTTPSettlement creates a settlement client for the configured endpoint.
func NewHTTPSettlement(url string, timeout time.Duration) *HTTPSettlement {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSettlement{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Settle implements Settlement.
func (h *HTTPSettlement) Settle(ctx context.Context, req SettlementRequest) (SettlementStatus, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return SettlementFailed, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return SettlementFailed, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return SettlementFailed, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return SettlementConfirmed, nil
	case http.StatusAccepted:
		return SettlementPending, nil
	default:
		return SettlementFailed, fmt.Errorf("settlement gateway returned %d", resp.StatusCode)
	}
}
