// Package feed consumes the upstream change feed over WebSocket and turns
// its messages into typed bus events. Delivery is at least once and not
// necessarily in order; downstream components are built for both.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/absfi/vaultd/internal/events"
)

const (
	dialTimeout = 30 * time.Second

	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10
)

// message is the wire envelope of the change feed.
type message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Wire message types.
const (
	msgMarketData  = "market_data_update"
	msgLedgerEntry = "ledger_entry"
	msgVaultConfig = "vault_config_change"
)

// Client maintains the WebSocket connection to the change feed.
type Client struct {
	url     string
	manager *events.Manager
	log     zerolog.Logger

	mu         sync.RWMutex
	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	connected  bool

	reconnecting bool
	stopChan     chan struct{}
	stopped      bool
}

// NewClient creates a new change-feed client.
func NewClient(url string, manager *events.Manager, log zerolog.Logger) *Client {
	return &Client{
		url:      url,
		manager:  manager,
		log:      log.With().Str("component", "feed").Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start connects and launches the read loop. A failed initial connection is
// not fatal; the client keeps retrying in the background.
func (c *Client) Start() error {
	c.log.Info().Str("url", c.url).Msg("Starting change-feed client")

	if err := c.connect(); err != nil {
		c.log.Warn().Err(err).Msg("Initial feed connection failed, will retry in background")
		go c.reconnectLoop()
		return err
	}

	c.mu.RLock()
	ctx := c.connCtx
	c.mu.RUnlock()
	go c.readMessages(ctx)

	return nil
}

// Stop shuts the client down.
func (c *Client) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	close(c.stopChan)
	return c.disconnect()
}

// IsConnected reports the current connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial feed: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	c.conn = conn
	c.connCtx = connCtx
	c.cancelFunc = connCancel
	c.connected = true

	c.log.Info().Msg("Connected to change feed")
	return nil
}

func (c *Client) disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	if c.cancelFunc != nil {
		c.cancelFunc()
		c.cancelFunc = nil
	}

	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.conn = nil
	c.connCtx = nil
	c.connected = false

	if err != nil {
		return fmt.Errorf("error closing feed connection: %w", err)
	}
	return nil
}

func (c *Client) readMessages(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.connected = false
		stopped := c.stopped
		c.mu.Unlock()
		if !stopped {
			go c.reconnectLoop()
		}
	}()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return
		}

		msgType, payload, err := conn.Read(ctx)
		if err != nil {
			closeStatus := websocket.CloseStatus(err)
			if closeStatus == websocket.StatusNormalClosure || closeStatus == websocket.StatusGoingAway {
				c.log.Info().Msg("Feed connection closed normally")
			} else if ctx.Err() == nil {
				c.log.Error().Err(err).Msg("Feed read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		if err := c.handleMessage(payload); err != nil {
			// Keep reading; one malformed message must not kill the feed.
			c.log.Error().Err(err).Str("payload", string(payload)).Msg("Failed to handle feed message")
		}
	}
}

// handleMessage decodes one envelope and emits the typed event.
func (c *Client) handleMessage(payload []byte) error {
	var msg message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to parse feed envelope: %w", err)
	}

	switch msg.Type {
	case msgMarketData:
		var data events.MarketDataUpdateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return fmt.Errorf("failed to parse market data update: %w", err)
		}
		c.manager.Emit("feed", &data)

	case msgLedgerEntry:
		var data events.LedgerEntryData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return fmt.Errorf("failed to parse ledger entry: %w", err)
		}
		c.manager.Emit("feed", &data)

	case msgVaultConfig:
		var data events.VaultConfigData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return fmt.Errorf("failed to parse vault config change: %w", err)
		}
		c.manager.Emit("feed", &data)

	default:
		c.log.Debug().Str("type", msg.Type).Msg("Ignoring unknown feed message type")
	}

	return nil
}

func (c *Client) reconnectLoop() {
	c.mu.Lock()
	if c.reconnecting || c.stopped {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
	}()

	attempt := 0
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		attempt++
		delay := backoff(attempt)

		if attempt <= maxReconnectAttempts {
			c.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnecting to change feed")
		} else {
			c.log.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("Still reconnecting to change feed")
		}

		select {
		case <-time.After(delay):
		case <-c.stopChan:
			return
		}

		if err := c.connect(); err != nil {
			c.log.Error().Err(err).Int("attempt", attempt).Msg("Feed reconnection failed")
			continue
		}

		c.mu.RLock()
		ctx := c.connCtx
		c.mu.RUnlock()
		go c.readMessages(ctx)
		return
	}
}

// backoff is exponential from the base delay, capped at the max.
func backoff(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	return time.Duration(delay)
}
