package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// WSConfig configures websocket client behavior.
type WSConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the reconnect backoff.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout bounds a single message read.
	ReadTimeout time.Duration
	// WriteTimeout bounds a single message write.
	WriteTimeout time.Duration
	// CallTimeout bounds a request/response round trip.
	CallTimeout time.Duration
}

// DefaultWSConfig returns the default websocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		CallTimeout:       8 * time.Second,
	}
}

// Client is a JSON-RPC client over a single websocket connection. It serves
// both request/response calls (eth_call, eth_getCode) and push subscriptions
// (eth_subscribe "logs"), reconnecting and resubscribing on transport errors.
type Client struct {
	endpoint string
	cfg      WSConfig
	log      zerolog.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	closed    atomic.Bool
	requestID atomic.Uint64

	// pending maps request ID to the channel awaiting its response.
	pending   map[uint64]chan *wsResponse
	pendingMu sync.Mutex

	// subs maps server subscription ID to the live subscription.
	subs   map[string]*Subscription
	subsMu sync.RWMutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  *wsSubPayload   `json:"params,omitempty"`
}

type wsSubPayload struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Dial connects a new Client to endpoint.
func Dial(ctx context.Context, endpoint string, cfg *WSConfig, logger zerolog.Logger) (*Client, error) {
	c := &Client{
		endpoint: endpoint,
		cfg:      DefaultWSConfig(),
		log:      logger,
		pending:  make(map[uint64]chan *wsResponse),
		subs:     make(map[string]*Subscription),
		done:     make(chan struct{}),
	}
	if cfg != nil {
		c.cfg = *cfg
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

func (c *Client) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn
	return nil
}

// Call performs one JSON-RPC request and unmarshals the result into out.
func (c *Client) Call(ctx context.Context, out interface{}, method string, params ...interface{}) error {
	if c.closed.Load() {
		return fmt.Errorf("client closed")
	}

	reqID := c.requestID.Add(1)
	req := wsRequest{JSONRPC: "2.0", ID: reqID, Method: method, Params: params}

	respCh := make(chan *wsResponse, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = respCh
	c.pendingMu.Unlock()

	dropPending := func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		dropPending()
		return fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()
	if err != nil {
		dropPending()
		return fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case resp, ok := <-respCh:
		if !ok {
			return fmt.Errorf("client closed")
		}
		if resp.Error != nil {
			return resp.Error
		}
		if out != nil {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return fmt.Errorf("unmarshal %s result: %w", method, err)
			}
		}
		return nil
	case <-time.After(c.cfg.CallTimeout):
		dropPending()
		return fmt.Errorf("%s timeout after %s", method, c.cfg.CallTimeout)
	case <-ctx.Done():
		dropPending()
		return ctx.Err()
	case <-c.done:
		return fmt.Errorf("client closed")
	}
}

// CallContract implements Caller via eth_call at the latest block.
func (c *Client) CallContract(ctx context.Context, to string, data string) (string, error) {
	var out string
	err := c.Call(ctx, &out, "eth_call", map[string]string{"to": to, "data": data}, "latest")
	return out, err
}

// GetCode implements Caller via eth_getCode at the latest block.
func (c *Client) GetCode(ctx context.Context, addr string) (string, error) {
	var out string
	err := c.Call(ctx, &out, "eth_getCode", addr, "latest")
	return out, err
}

// Subscription is one live log subscription. Events arrive on C until
// Unsubscribe is called or the client closes.
type Subscription struct {
	c      *Client
	filter LogFilter

	mu      sync.Mutex
	id      string
	ch      chan Log
	stopped bool
}

// C returns the log delivery channel.
func (s *Subscription) C() <-chan Log { return s.ch }

// Unsubscribe tears the subscription down and closes the channel.
// Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	id := s.id
	s.mu.Unlock()

	s.c.subsMu.Lock()
	delete(s.c.subs, id)
	s.c.subsMu.Unlock()

	if !s.c.closed.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		var ok bool
		if err := s.c.Call(ctx, &ok, "eth_unsubscribe", id); err != nil {
			s.c.log.Debug().Err(err).Str("sub", id).Msg("eth_unsubscribe failed")
		}
	}

	close(s.ch)
}

// SubscribeLogs opens an eth_subscribe("logs") stream for filter.
func (c *Client) SubscribeLogs(ctx context.Context, filter LogFilter) (*Subscription, error) {
	id, err := c.subscribeRaw(ctx, filter)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		c:      c,
		filter: filter,
		id:     id,
		// Buffer absorbs bursts; overflow is dropped with a warning rather
		// than stalling the read loop.
		ch: make(chan Log, 4096),
	}

	c.subsMu.Lock()
	c.subs[id] = sub
	c.subsMu.Unlock()

	return sub, nil
}

func (c *Client) subscribeRaw(ctx context.Context, filter LogFilter) (string, error) {
	var id string
	if err := c.Call(ctx, &id, "eth_subscribe", "logs", filter); err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("empty subscription id")
	}
	return id, nil
}

// Close shuts the client down and closes every subscription channel.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.subsMu.Lock()
	for id, sub := range c.subs {
		sub.mu.Lock()
		if !sub.stopped {
			sub.stopped = true
			close(sub.ch)
		}
		sub.mu.Unlock()
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	c.wg.Wait()
	return nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.cfg.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay *= 2
			if reconnectDelay > c.cfg.MaxReconnectDelay {
				reconnectDelay = c.cfg.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.cfg.ReconnectDelay
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	var resp wsResponse
	if err := json.Unmarshal(message, &resp); err != nil {
		c.log.Warn().Err(err).Msg("unreadable ws message")
		return
	}

	// Push notification from an active subscription.
	if resp.Method == "eth_subscription" && resp.Params != nil {
		var lg Log
		if err := json.Unmarshal(resp.Params.Result, &lg); err != nil {
			c.log.Warn().Err(err).Msg("unreadable log notification")
			return
		}
		if lg.Removed {
			// Reorg removal; downstream inserts are idempotent, skip.
			return
		}

		c.subsMu.RLock()
		sub := c.subs[resp.Params.Subscription]
		c.subsMu.RUnlock()
		if sub == nil {
			return
		}

		select {
		case sub.ch <- lg:
		default:
			c.log.Warn().Str("sub", resp.Params.Subscription).Msg("subscription buffer full, dropping log")
		}
		return
	}

	// Response to an in-flight request.
	c.pendingMu.Lock()
	ch := c.pending[resp.ID]
	delete(c.pending, resp.ID)
	c.pendingMu.Unlock()

	if ch != nil {
		ch <- &resp
	}
}

func (c *Client) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		c.log.Warn().Err(err).Msg("reconnect failed, will retry on next read error")
		return
	}

	c.log.Info().Msg("websocket reconnected")
	c.resubscribeAll()
}

// resubscribeAll re-opens every live subscription on the fresh connection,
// re-keying the subs map with the new server IDs.
func (c *Client) resubscribeAll() {
	c.subsMu.RLock()
	live := make(map[string]*Subscription, len(c.subs))
	for id, sub := range c.subs {
		live[id] = sub
	}
	c.subsMu.RUnlock()

	for oldID, sub := range live {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		newID, err := c.subscribeRaw(ctx, sub.filter)
		cancel()
		if err != nil {
			c.log.Warn().Err(err).Str("sub", oldID).Msg("resubscribe failed")
			continue
		}

		sub.mu.Lock()
		sub.id = newID
		sub.mu.Unlock()

		c.subsMu.Lock()
		delete(c.subs, oldID)
		c.subs[newID] = sub
		c.subsMu.Unlock()
	}
}

func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			}
			c.connMu.Unlock()
		}
	}
}
