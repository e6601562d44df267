// Package rest implements the broker gateway over the broker's HTTP API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gtrdotmcs/auto-trade/internal/contracts"
	"github.com/gtrdotmcs/auto-trade/pkg/config"
	"github.com/gtrdotmcs/auto-trade/pkg/httputil"
	"github.com/gtrdotmcs/auto-trade/pkg/logger"
)

// Gateway talks to the live broker REST API
// ⭐ SSOT: 브로커 REST 호출은 이 클라이언트에서만
//
// Submission retries are owned by the engine's submission worker, so
// the HTTP layer runs without automatic retry; a retried POST here
// could place the same order twice.
type Gateway struct {
	http   *httputil.Client
	cfg    config.BrokerConfig
	logger *logger.Logger
}

// New creates a REST broker gateway
func New(cfg config.BrokerConfig, log *logger.Logger) *Gateway {
	client := httputil.New(log, cfg.Timeout).DisableRetry()
	if cfg.RateLimit > 0 {
		client = client.WithRateLimit(cfg.RateLimit)
	}

	return &Gateway{
		http:   client,
		cfg:    cfg,
		logger: log,
	}
}

// brokerOrder is the wire form of an order
type brokerOrder struct {
	Instrument   string  `json:"instrument"`
	Side         string  `json:"side"`
	Quantity     int64   `json:"quantity"`
	Kind         string  `json:"order_type"`
	Price        float64 `json:"price,omitempty"`
	TriggerPrice float64 `json:"trigger_price,omitempty"`
	ClientRef    string  `json:"client_ref"`
	AccountNo    string  `json:"account_no"`
}

// brokerError is the broker's error envelope
type brokerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Submit implements gateway.Broker
func (g *Gateway) Submit(ctx context.Context, order contracts.Order) (string, error) {
	payload := brokerOrder{
		Instrument:   order.Instrument,
		Side:         string(order.Side),
		Quantity:     order.Quantity,
		Kind:         string(order.Kind),
		Price:        order.Price,
		TriggerPrice: order.TriggerPrice,
		ClientRef:    order.ID, // 브로커측 중복 제출 방지 키
		AccountNo:    g.cfg.AccountNo,
	}

	resp, err := g.do(ctx, http.MethodPost, "/v1/orders", payload)
	if err != nil {
		return "", fmt.Errorf("submit order: %w", err)
	}
	defer resp.Body.Close()

	if err := g.checkStatus(resp); err != nil {
		return "", err
	}

	var result struct {
		OrderID string `json:"order_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if result.OrderID == "" {
		return "", fmt.Errorf("broker returned no order ID")
	}

	return result.OrderID, nil
}

// Cancel implements gateway.Broker
func (g *Gateway) Cancel(ctx context.Context, brokerOrderID string) error {
	resp, err := g.do(ctx, http.MethodDelete, "/v1/orders/"+brokerOrderID, nil)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	defer resp.Body.Close()

	return g.checkStatus(resp)
}

// Modify implements gateway.Broker
func (g *Gateway) Modify(ctx context.Context, brokerOrderID string, changes contracts.OrderChanges) error {
	resp, err := g.do(ctx, http.MethodPatch, "/v1/orders/"+brokerOrderID, changes)
	if err != nil {
		return fmt.Errorf("modify order: %w", err)
	}
	defer resp.Body.Close()

	return g.checkStatus(resp)
}

// brokerSnapshot is the wire form of an order status
type brokerSnapshot struct {
	OrderID        string  `json:"order_id"`
	Status         string  `json:"status"`
	FilledQuantity int64   `json:"filled_quantity"`
	AveragePrice   float64 `json:"average_price"`
	Fills          []struct {
		FillID    string    `json:"fill_id"`
		TradeID   string    `json:"trade_id"`
		Quantity  int64     `json:"quantity"`
		Price     float64   `json:"price"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"fills"`
}

// PollStatus implements gateway.Broker
func (g *Gateway) PollStatus(ctx context.Context, brokerOrderID string) (contracts.StatusSnapshot, error) {
	resp, err := g.do(ctx, http.MethodGet, "/v1/orders/"+brokerOrderID, nil)
	if err != nil {
		return contracts.StatusSnapshot{}, fmt.Errorf("poll order status: %w", err)
	}
	defer resp.Body.Close()

	if err := g.checkStatus(resp); err != nil {
		return contracts.StatusSnapshot{}, err
	}

	var raw brokerSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return contracts.StatusSnapshot{}, fmt.Errorf("decode status response: %w", err)
	}

	return raw.toSnapshot(brokerOrderID), nil
}

// Positions implements gateway.Broker
func (g *Gateway) Positions(ctx context.Context) ([]contracts.PositionSnapshot, error) {
	resp, err := g.do(ctx, http.MethodGet, "/v1/positions?account_no="+g.cfg.AccountNo, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	defer resp.Body.Close()

	if err := g.checkStatus(resp); err != nil {
		return nil, err
	}

	var result struct {
		Positions []contracts.PositionSnapshot `json:"positions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode positions response: %w", err)
	}

	return result.Positions, nil
}

// do sends one authenticated request
func (g *Gateway) do(ctx context.Context, method, path string, payload interface{}) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", g.cfg.APIKey)
	req.Header.Set("X-API-SECRET", g.cfg.APISecret)

	return g.http.Do(req)
}

// checkStatus maps broker HTTP errors onto the engine error taxonomy.
// 4xx carries a broker decision and is definitive; everything else is
// transient and left to the submission worker's retry loop.
func (g *Gateway) checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		var envelope struct {
			Error brokerError `json:"error"`
		}
		reason := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error.Message != "" {
			reason = envelope.Error.Message
		}
		return &contracts.ExchangeRejection{Reason: reason}
	}

	return fmt.Errorf("broker API error status %d: %s", resp.StatusCode, string(data))
}

func (s brokerSnapshot) toSnapshot(brokerOrderID string) contracts.StatusSnapshot {
	out := contracts.StatusSnapshot{
		BrokerOrderID:  brokerOrderID,
		Status:         parseStatus(s.Status),
		FilledQuantity: s.FilledQuantity,
		AveragePrice:   s.AveragePrice,
	}

	for _, f := range s.Fills {
		out.Fills = append(out.Fills, contracts.Fill{
			BrokerOrderID: brokerOrderID,
			FillID:        f.FillID,
			TradeID:       f.TradeID,
			Quantity:      f.Quantity,
			Price:         f.Price,
			Timestamp:     f.Timestamp,
		})
	}

	return out
}

// parseStatus maps broker status strings onto the engine lifecycle
func parseStatus(s string) contracts.Status {
	switch s {
	case "NEW", "ACCEPTED", "OPEN", "PARTIALLY_FILLED":
		return contracts.StatusOpen
	case "FILLED", "COMPLETE":
		return contracts.StatusComplete
	case "CANCELLED", "CANCELED":
		return contracts.StatusCancelled
	case "REJECTED":
		return contracts.StatusRejected
	default:
		return contracts.StatusOpen
	}
}
