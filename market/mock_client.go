package market

import (
	"battery_dispatch_go/logs"
	"context"
	"fmt"
	"sync"
	"time"
)

//
// Mock venue client for running backtests and tests without a real gateway.
//

// Ensure MockClient implements the Client interface
var _ Client = (*MockClient)(nil)

// MockClient accepts every order and hands out sequential ids. Behaviors can
// be scripted per call (reject, transport failure, missing order id, custom
// status) to exercise the execution engine's failure paths.
type MockClient struct {
	mu          sync.Mutex
	name        string
	nextOrderID int
	openOrders  map[string]*OrderResponse

	dayAheadPrices map[string][]float64 // keyed by YYYY-MM-DD

	// Scripted one-shot behaviors, consumed by the next PlaceOrder call.
	rejectNext    bool
	rejectReason  string
	failNext      error
	omitNextID    bool
	nextStatus    OrderStatus
	nextStatusSet bool
}

// NewMockClient creates a mock venue client.
func NewMockClient(name string) *MockClient {
	return &MockClient{
		name:           name,
		nextOrderID:    1,
		openOrders:     make(map[string]*OrderResponse),
		dayAheadPrices: make(map[string][]float64),
	}
}

func (c *MockClient) Name() string {
	return c.name
}

// Authenticate is a no-op for the mock venue.
func (c *MockClient) Authenticate(ctx context.Context) error {
	logs.Debugf("[Mock-%s] Skipping authentication.", c.name)
	return nil
}

// SetDayAheadPrices seeds the hourly price curve returned for a delivery date.
func (c *MockClient) SetDayAheadPrices(deliveryDate time.Time, prices []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dayAheadPrices[deliveryDate.Format("2006-01-02")] = prices
}

// RejectNextOrder makes the next PlaceOrder call return a REJECTED response.
func (c *MockClient) RejectNextOrder(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rejectNext = true
	c.rejectReason = reason
}

// FailNextOrder makes the next PlaceOrder call fail with the given error,
// simulating a transport failure.
func (c *MockClient) FailNextOrder(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = err
}

// OmitNextOrderID makes the next accepted response carry no order id.
func (c *MockClient) OmitNextOrderID() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.omitNextID = true
}

// SetNextStatus overrides the status of the next PlaceOrder response.
func (c *MockClient) SetNextStatus(status OrderStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextStatus = status
	c.nextStatusSet = true
}

func (c *MockClient) GetDayAheadPrices(ctx context.Context, deliveryDate time.Time) ([]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prices, ok := c.dayAheadPrices[deliveryDate.Format("2006-01-02")]
	if !ok {
		return nil, fmt.Errorf("mock venue %s has no prices for %s", c.name, deliveryDate.Format("2006-01-02"))
	}
	return prices, nil
}

func (c *MockClient) PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.failNext != nil {
		err := c.failNext
		c.failNext = nil
		return nil, err
	}

	if c.rejectNext {
		c.rejectNext = false
		reason := c.rejectReason
		c.rejectReason = ""
		logs.Debugf("[Mock-%s] Rejecting order: %s", c.name, reason)
		return &OrderResponse{
			Market: c.name,
			Status: Rejected,
			Reason: reason,
		}, nil
	}

	status := Accepted
	if c.nextStatusSet {
		status = c.nextStatus
		c.nextStatusSet = false
	}

	resp := &OrderResponse{
		Market:      c.name,
		Status:      status,
		Side:        req.Side,
		VolumeMWh:   req.VolumeMWh,
		PriceEURMWh: req.PriceEURMWh,
	}

	if c.omitNextID {
		c.omitNextID = false
	} else {
		resp.OrderID = fmt.Sprintf("%s-%d", c.name, c.nextOrderID)
		c.nextOrderID++
	}

	if resp.OrderID != "" && status.IsWorking() {
		stored := *resp
		c.openOrders[resp.OrderID] = &stored
	}

	logs.Debugf("[Mock-%s] Order placed: %s %.2f MWh @ %.2f EUR/MWh -> %s (%s)",
		c.name, req.Side, req.VolumeMWh, req.PriceEURMWh, resp.Status, resp.OrderID)
	return resp, nil
}

func (c *MockClient) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	order, ok := c.openOrders[orderID]
	if !ok {
		return false, nil
	}
	order.Status = Cancelled
	delete(c.openOrders, orderID)
	logs.Debugf("[Mock-%s] Order %s cancelled", c.name, orderID)
	return true, nil
}

func (c *MockClient) GetOrderStatus(ctx context.Context, orderID string) (*OrderResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	order, ok := c.openOrders[orderID]
	if !ok {
		return nil, fmt.Errorf("mock order %s not found", orderID)
	}
	copied := *order
	return &copied, nil
}

func (c *MockClient) GetPositions(ctx context.Context) (*Positions, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Positions{OpenOrders: len(c.openOrders)}, nil
}
