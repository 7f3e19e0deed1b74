// market/client.go
package market

import (
	"battery_dispatch_go/logs"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Ensure APIClient implements the Client interface
var _ Client = (*APIClient)(nil)

// APIClient is an HTTP client for an OPCOM-style market gateway. The same
// implementation serves both the day-ahead and the balancing venue; only the
// base URL, credentials and name differ.
type APIClient struct {
	name     string
	baseURL  string
	username string
	password string
	http     *http.Client

	mu    sync.Mutex
	token string
}

// venueError is the error body returned by the gateway.
type venueError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type authResponse struct {
	Token string `json:"token"`
}

type dayAheadPricesResponse struct {
	Date   string    `json:"date"`
	Prices []float64 `json:"prices"`
}

type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// NewAPIClient creates a venue client instance.
func NewAPIClient(name, baseURL, username, password string, timeoutSeconds int) *APIClient {
	return &APIClient{
		name:     name,
		baseURL:  baseURL,
		username: username,
		password: password,
		http:     &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
	}
}

func (c *APIClient) Name() string {
	return c.name
}

// Authenticate obtains a session token from the gateway.
func (c *APIClient) Authenticate(ctx context.Context) error {
	if c.baseURL == "" {
		return fmt.Errorf("no base URL configured for venue %s", c.name)
	}

	payload := map[string]string{
		"username": c.username,
		"password": c.password,
	}

	var resp authResponse
	if err := c.sendRequest(ctx, http.MethodPost, "/api/v1/auth", payload, &resp); err != nil {
		return fmt.Errorf("authentication against %s failed: %w", c.name, err)
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()

	logs.Infof("[%s] Authenticated against %s", c.name, c.baseURL)
	return nil
}

// sendRequest is the generic request function handling encoding, the auth
// header, sending and error handling.
func (c *APIClient) sendRequest(ctx context.Context, method, endpoint string, payload, target interface{}) error {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp venueError
		if json.Unmarshal(body, &errResp) == nil && errResp.Msg != "" {
			return fmt.Errorf("venue API error: %s (code: %d)", errResp.Msg, errResp.Code)
		}
		return fmt.Errorf("venue API error: HTTP %d, body: %s", resp.StatusCode, string(body))
	}

	if target != nil {
		if err := json.Unmarshal(body, target); err != nil {
			return fmt.Errorf("failed to decode JSON: %w, body: %s", err, string(body))
		}
	}

	return nil
}

// GetDayAheadPrices returns the 24 hourly prices for a delivery date.
func (c *APIClient) GetDayAheadPrices(ctx context.Context, deliveryDate time.Time) ([]float64, error) {
	endpoint := fmt.Sprintf("/api/v1/prices/day-ahead?date=%s", deliveryDate.Format("2006-01-02"))

	var resp dayAheadPricesResponse
	if err := c.sendRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Prices, nil
}

// PlaceOrder submits a new order to the venue.
func (c *APIClient) PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	// The wire status is free-form; re-parse it onto the closed enum so
	// downstream code never sees a string it does not know.
	var raw struct {
		Market    string  `json:"market"`
		OrderID   string  `json:"order_id"`
		Status    string  `json:"status"`
		Reason    string  `json:"reason"`
		FilledMWh float64 `json:"filled_volume_mwh"`
	}
	if err := c.sendRequest(ctx, http.MethodPost, "/api/v1/orders", req, &raw); err != nil {
		return nil, err
	}

	resp := &OrderResponse{
		Market:      c.name,
		OrderID:     raw.OrderID,
		Status:      ParseStatus(raw.Status),
		Reason:      raw.Reason,
		Side:        req.Side,
		VolumeMWh:   req.VolumeMWh,
		PriceEURMWh: req.PriceEURMWh,
		FilledMWh:   raw.FilledMWh,
	}
	if resp.Status == StatusUnknown {
		logs.Warnf("[%s] Venue returned unrecognized order status %q for order %q", c.name, raw.Status, raw.OrderID)
	}
	return resp, nil
}

// CancelOrder cancels an active order.
func (c *APIClient) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	var resp cancelResponse
	if err := c.sendRequest(ctx, http.MethodDelete, "/api/v1/orders/"+orderID, nil, &resp); err != nil {
		return false, err
	}
	return resp.Cancelled, nil
}

// GetOrderStatus queries the current state of an order.
func (c *APIClient) GetOrderStatus(ctx context.Context, orderID string) (*OrderResponse, error) {
	var raw struct {
		Market    string  `json:"market"`
		OrderID   string  `json:"order_id"`
		Status    string  `json:"status"`
		Side      string  `json:"side"`
		VolumeMWh float64 `json:"volume_mwh"`
		Price     float64 `json:"price"`
		FilledMWh float64 `json:"filled_volume_mwh"`
	}
	if err := c.sendRequest(ctx, http.MethodGet, "/api/v1/orders/"+orderID, nil, &raw); err != nil {
		return nil, err
	}
	return &OrderResponse{
		Market:      c.name,
		OrderID:     raw.OrderID,
		Status:      ParseStatus(raw.Status),
		Side:        OrderSide(raw.Side),
		VolumeMWh:   raw.VolumeMWh,
		PriceEURMWh: raw.Price,
		FilledMWh:   raw.FilledMWh,
	}, nil
}

// GetPositions queries the account's open orders and net positions.
func (c *APIClient) GetPositions(ctx context.Context) (*Positions, error) {
	var resp Positions
	if err := c.sendRequest(ctx, http.MethodGet, "/api/v1/positions", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
