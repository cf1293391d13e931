package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"signalflow/models"
)

// orderFrame is the JSON frame sent to the broker for one order
type orderFrame struct {
	Type       string  `json:"type"`
	OrderID    string  `json:"order_id"`
	Asset      string  `json:"asset"`
	Action     string  `json:"action"`
	Amount     float64 `json:"amount"`
	Expiration int     `json:"expiration"`
}

// outcomeFrame is the frame the broker sends back when a trade closes
type outcomeFrame struct {
	Type       string  `json:"type"`
	OrderID    string  `json:"order_id"`
	TradeID    string  `json:"trade_id"`
	Success    bool    `json:"success"`
	Profit     float64 `json:"profit"`
	DurationMs int64   `json:"duration_ms"`
}

// WSClient places orders over a broker websocket connection and correlates
// outcome frames back to their orders. It implements models.BrokerSink.
type WSClient struct {
	url          string
	writeTimeout time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan *models.TradeOutcome

	logger zerolog.Logger
}

// NewWSClient creates a broker client for the given websocket URL
func NewWSClient(url string) *WSClient {
	return &WSClient{
		url:          url,
		writeTimeout: 10 * time.Second,
		pending:      make(map[string]chan *models.TradeOutcome),
		logger:       log.With().Str("component", "broker_ws").Logger(),
	}
}

// Connect dials the broker and starts the read pump
func (c *WSClient) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dialing broker %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.logger.Info().Str("url", c.url).Msg("Connected to broker")

	go c.readPump(ctx)
	return nil
}

// Close shuts the connection down
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// PlaceOrder sends the order frame and waits for the matching outcome.
// The call is at-most-once from the pipeline's perspective: a write or wait
// failure is returned as-is and never resubmitted here.
func (c *WSClient) PlaceOrder(ctx context.Context, order *models.TradeOrder) (*models.TradeOutcome, error) {
	frame := orderFrame{
		Type:       "place_order",
		OrderID:    order.ID,
		Asset:      order.Params.Asset,
		Action:     string(order.Params.Action),
		Amount:     order.Params.Amount,
		Expiration: order.Params.ExpirationSeconds,
	}

	wait := make(chan *models.TradeOutcome, 1)

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("broker connection not established")
	}
	c.pending[order.ID] = wait
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	err := c.conn.WriteJSON(frame)
	c.mu.Unlock()

	if err != nil {
		c.drop(order.ID)
		return nil, fmt.Errorf("writing order frame: %w", err)
	}

	select {
	case outcome, ok := <-wait:
		if !ok {
			return nil, fmt.Errorf("broker connection lost while waiting for outcome of %s", order.ID)
		}
		return outcome, nil
	case <-ctx.Done():
		c.drop(order.ID)
		return nil, fmt.Errorf("waiting for outcome of %s: %w", order.ID, ctx.Err())
	}
}

func (c *WSClient) readPump(ctx context.Context) {
	defer c.failPending()
	for {
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.logger.Error().Err(err).Msg("Broker read failed")
			return
		}

		var frame outcomeFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.logger.Warn().Err(err).Msg("Unparseable broker frame")
			continue
		}
		if frame.Type != "trade_closed" {
			continue
		}

		c.mu.Lock()
		wait, ok := c.pending[frame.OrderID]
		delete(c.pending, frame.OrderID)
		c.mu.Unlock()

		if !ok {
			c.logger.Warn().Str("order_id", frame.OrderID).Msg("Outcome for unknown order")
			continue
		}
		wait <- &models.TradeOutcome{
			Success:    frame.Success,
			TradeID:    frame.TradeID,
			Profit:     frame.Profit,
			DurationMs: frame.DurationMs,
		}
	}
}

// failPending closes every waiter channel so blocked PlaceOrder calls learn
// the connection is gone instead of waiting out their context.
func (c *WSClient) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, wait := range c.pending {
		close(wait)
		delete(c.pending, id)
	}
}

func (c *WSClient) drop(orderID string) {
	c.mu.Lock()
	delete(c.pending, orderID)
	c.mu.Unlock()
}
