package evm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSConfig configures the head subscription.
type WSConfig struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for the subscription id.
	SubscribeTimeout time.Duration
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
	}
}

// HeadSubscriber follows eth_subscribe("newHeads") over WebSocket and
// publishes block numbers. It reconnects and resubscribes on read errors.
// A connection carries exactly one subscription, so notifications are not
// matched against the subscription id.
type HeadSubscriber struct {
	endpoint string
	config   WSConfig
	log      *zap.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// pendingSubs maps request ID to channel waiting for subscription ID
	pendingSubs   map[uint64]chan string
	pendingSubsMu sync.Mutex

	heads chan uint64

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// SubscribeHeads connects to endpoint and subscribes to new heads.
func SubscribeHeads(ctx context.Context, endpoint string, config *WSConfig, log *zap.Logger) (*HeadSubscriber, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	if log == nil {
		log = zap.NewNop()
	}

	h := &HeadSubscriber{
		endpoint:    endpoint,
		config:      cfg,
		log:         log.Named("heads"),
		pendingSubs: make(map[uint64]chan string),
		heads:       make(chan uint64, 64),
		done:        make(chan struct{}),
	}

	if err := h.connect(ctx); err != nil {
		return nil, err
	}

	h.wg.Add(2)
	go h.readLoop()
	go h.pingLoop()

	id, err := h.subscribe(ctx)
	if err != nil {
		h.Close()
		return nil, err
	}
	h.log.Debug("subscribed", zap.String("subscription", id))
	return h, nil
}

// Heads returns block numbers as they are announced. Delivery is
// best-effort: when the buffer is full a head is dropped. The channel is
// closed by Close.
func (h *HeadSubscriber) Heads() <-chan uint64 {
	return h.heads
}

func (h *HeadSubscriber) connect(ctx context.Context) error {
	h.connMu.Lock()
	defer h.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, h.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	h.conn = conn
	return nil
}

// subscribe sends eth_subscribe and waits for the subscription id.
func (h *HeadSubscriber) subscribe(ctx context.Context) (string, error) {
	if h.closed.Load() {
		return "", fmt.Errorf("client closed")
	}

	reqID := h.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "eth_subscribe",
		Params:  []any{"newHeads"},
	}

	confirmCh := make(chan string, 1)
	h.pendingSubsMu.Lock()
	h.pendingSubs[reqID] = confirmCh
	h.pendingSubsMu.Unlock()

	h.connMu.Lock()
	if h.conn == nil {
		h.connMu.Unlock()
		h.dropPending(reqID)
		return "", fmt.Errorf("not connected")
	}
	h.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
	err := h.conn.WriteJSON(req)
	h.connMu.Unlock()

	if err != nil {
		h.dropPending(reqID)
		return "", fmt.Errorf("write subscribe: %w", err)
	}

	timer := time.NewTimer(h.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case id, ok := <-confirmCh:
		if !ok {
			return "", fmt.Errorf("client closed")
		}
		return id, nil
	case <-timer.C:
		h.dropPending(reqID)
		return "", fmt.Errorf("subscription timeout after %s", h.config.SubscribeTimeout)
	case <-h.done:
		return "", fmt.Errorf("client closed")
	case <-ctx.Done():
		h.dropPending(reqID)
		return "", ctx.Err()
	}
}

func (h *HeadSubscriber) dropPending(reqID uint64) {
	h.pendingSubsMu.Lock()
	delete(h.pendingSubs, reqID)
	h.pendingSubsMu.Unlock()
}

// Close closes the WebSocket connection and the heads channel.
func (h *HeadSubscriber) Close() error {
	if h.closed.Swap(true) {
		return nil // Already closed
	}

	close(h.done)

	h.connMu.Lock()
	if h.conn != nil {
		h.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		h.conn.Close()
	}
	h.connMu.Unlock()

	h.pendingSubsMu.Lock()
	for id, ch := range h.pendingSubs {
		close(ch)
		delete(h.pendingSubs, id)
	}
	h.pendingSubsMu.Unlock()

	h.wg.Wait()
	close(h.heads)
	return nil
}

// readLoop reads messages and dispatches them.
func (h *HeadSubscriber) readLoop() {
	defer h.wg.Done()

	reconnectDelay := h.config.ReconnectDelay

	for !h.closed.Load() {
		h.connMu.Lock()
		conn := h.conn
		h.connMu.Unlock()

		if conn == nil {
			select {
			case <-h.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if h.closed.Load() {
				return
			}

			if !h.reconnecting.Swap(true) {
				h.log.Warn("connection lost, reconnecting", zap.Error(err), zap.Duration("delay", reconnectDelay))
				h.wg.Add(1)
				go h.reconnect(conn, reconnectDelay)
			}

			reconnectDelay *= 2
			if reconnectDelay > h.config.MaxReconnectDelay {
				reconnectDelay = h.config.MaxReconnectDelay
			}

			select {
			case <-h.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = h.config.ReconnectDelay
		h.handleMessage(message)
	}
}

// reconnect replaces a broken connection and resubscribes.
func (h *HeadSubscriber) reconnect(broken *websocket.Conn, delay time.Duration) {
	defer h.wg.Done()
	defer h.reconnecting.Store(false)

	select {
	case <-h.done:
		return
	case <-time.After(delay):
	}

	h.connMu.Lock()
	if h.conn == broken {
		h.conn.Close()
		h.conn = nil
	}
	h.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	go func() {
		select {
		case <-h.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := h.connect(ctx); err != nil {
		h.log.Warn("reconnect failed", zap.Error(err))
		return
	}

	id, err := h.subscribe(ctx)
	if err != nil {
		h.log.Warn("resubscribe failed", zap.Error(err))
		return
	}
	h.log.Info("resubscribed", zap.String("subscription", id))
}

func (h *HeadSubscriber) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		h.log.Debug("undecodable message", zap.Error(err))
		return
	}

	switch {
	case msg.Error != nil:
		h.log.Warn("error response", zap.Int("code", msg.Error.Code), zap.String("message", msg.Error.Message))
	case msg.Method == "eth_subscription" && msg.Params != nil:
		h.handleHead(msg.Params)
	case msg.ID != 0 && len(msg.Result) > 0:
		var id string
		if err := json.Unmarshal(msg.Result, &id); err != nil {
			return
		}
		h.pendingSubsMu.Lock()
		ch, ok := h.pendingSubs[msg.ID]
		if ok {
			delete(h.pendingSubs, msg.ID)
		}
		h.pendingSubsMu.Unlock()
		if ok {
			ch <- id
		}
	}
}

func (h *HeadSubscriber) handleHead(p *wsParams) {
	var head struct {
		Number hexutil.Uint64 `json:"number"`
	}
	if err := json.Unmarshal(p.Result, &head); err != nil {
		h.log.Debug("undecodable head", zap.Error(err))
		return
	}

	select {
	case h.heads <- uint64(head.Number):
	default:
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (h *HeadSubscriber) pingLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.connMu.Lock()
			if h.conn != nil {
				h.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
				if err := h.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					h.log.Debug("ping failed", zap.Error(err))
				}
			}
			h.connMu.Unlock()
		}
	}
}

// WebSocket message types

type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params,omitempty"`
}

// wsMessage covers responses and notifications.
type wsMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  *wsParams       `json:"params,omitempty"`
}

type wsParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}
