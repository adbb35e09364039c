package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"badgehub/internal/nostr"

	"github.com/gofrs/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conn is a single websocket connection to one relay. It dials lazily and
// redials on the next use after the connection drops.
type Conn struct {
	url         string
	dialer      *websocket.Dialer
	dialTimeout time.Duration
	logger      *zap.Logger

	mu     sync.Mutex
	ws     *websocket.Conn
	subs   map[string]*Subscription
	oks    map[string]chan okResult
	closed chan struct{}

	writeMu sync.Mutex
}

type okResult struct {
	accepted bool
	message  string
}

// NewConn creates an unconnected relay connection.
func NewConn(url string, dialTimeout time.Duration, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &Conn{
		url:         url,
		dialer:      websocket.DefaultDialer,
		dialTimeout: dialTimeout,
		logger:      logger.With(zap.String("relay", url)),
	}
}

// URL returns the relay address.
func (c *Conn) URL() string {
	return c.url
}

// Connected reports whether the websocket is currently open.
func (c *Conn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws != nil
}

func (c *Conn) connect(ctx context.Context) (*websocket.Conn, chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ws != nil {
		return c.ws, c.closed, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	ws, _, err := c.dialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.ws = ws
	c.subs = make(map[string]*Subscription)
	c.oks = make(map[string]chan okResult)
	c.closed = make(chan struct{})

	go c.readLoop(ws, c.closed)

	c.logger.Debug("Relay connected")
	return ws, c.closed, nil
}

func (c *Conn) write(ws *websocket.Conn, msg []interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteJSON(msg)
}

// Subscribe opens a subscription for filter on this relay.
func (c *Conn) Subscribe(ctx context.Context, filter nostr.Filter) (*Subscription, error) {
	ws, closed, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("subscription id: %w", err)
	}

	sub := newSubscription(id.String(), c)

	c.mu.Lock()
	if c.ws != ws {
		c.mu.Unlock()
		return nil, ErrConnClosed
	}
	c.subs[sub.id] = sub
	c.mu.Unlock()

	if err := c.write(ws, []interface{}{"REQ", sub.id, filter}); err != nil {
		c.unregister(sub.id)
		c.drop(ws, closed)
		return nil, fmt.Errorf("send REQ to %s: %w", c.url, err)
	}
	return sub, nil
}

// Publish sends a record and waits for the relay's OK.
func (c *Conn) Publish(ctx context.Context, event nostr.Event) error {
	ws, closed, err := c.connect(ctx)
	if err != nil {
		return err
	}

	ack := make(chan okResult, 1)
	c.mu.Lock()
	if c.ws != ws {
		c.mu.Unlock()
		return ErrConnClosed
	}
	c.oks[event.ID] = ack
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.oks != nil {
			delete(c.oks, event.ID)
		}
		c.mu.Unlock()
	}()

	if err := c.write(ws, []interface{}{"EVENT", event}); err != nil {
		c.drop(ws, closed)
		return fmt.Errorf("send EVENT to %s: %w", c.url, err)
	}

	select {
	case res := <-ack:
		if !res.accepted {
			return fmt.Errorf("%w: %s: %s", ErrPublishDenied, c.url, res.message)
		}
		return nil
	case <-closed:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the websocket down and ends every open subscription.
func (c *Conn) Close() error {
	c.mu.Lock()
	ws, closed := c.ws, c.closed
	c.mu.Unlock()
	if ws == nil {
		return nil
	}
	c.drop(ws, closed)
	return nil
}

func (c *Conn) drop(ws *websocket.Conn, closed chan struct{}) {
	c.mu.Lock()
	if c.ws != ws {
		c.mu.Unlock()
		return
	}
	subs := c.subs
	c.ws = nil
	c.subs = nil
	c.oks = nil
	close(closed)
	c.mu.Unlock()

	_ = ws.Close()
	for _, sub := range subs {
		sub.end()
	}
}

func (c *Conn) unregister(id string) {
	c.mu.Lock()
	if c.subs != nil {
		delete(c.subs, id)
	}
	c.mu.Unlock()
}

func (c *Conn) closeSubscription(sub *Subscription) {
	c.mu.Lock()
	ws := c.ws
	_, registered := c.subs[sub.id]
	if registered {
		delete(c.subs, sub.id)
	}
	c.mu.Unlock()

	if ws != nil && registered {
		if err := c.write(ws, []interface{}{"CLOSE", sub.id}); err != nil {
			c.logger.Debug("Failed to send CLOSE", zap.String("subscription", sub.id), zap.Error(err))
		}
	}
}

func (c *Conn) readLoop(ws *websocket.Conn, closed chan struct{}) {
	defer c.drop(ws, closed)

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-closed:
			default:
				c.logger.Debug("Relay read failed", zap.Error(err))
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Conn) dispatch(data []byte) {
	var msg []json.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil || len(msg) < 2 {
		c.logger.Debug("Ignoring malformed relay message", zap.ByteString("data", data))
		return
	}

	var label string
	if err := json.Unmarshal(msg[0], &label); err != nil {
		return
	}

	switch label {
	case "EVENT":
		if len(msg) < 3 {
			return
		}
		var subID string
		var event nostr.Event
		if json.Unmarshal(msg[1], &subID) != nil || json.Unmarshal(msg[2], &event) != nil {
			return
		}
		if sub := c.lookup(subID); sub != nil {
			sub.deliver(event)
		}

	case "EOSE":
		var subID string
		if json.Unmarshal(msg[1], &subID) == nil {
			if sub := c.lookup(subID); sub != nil {
				sub.markEOSE()
			}
		}

	case "CLOSED":
		var subID string
		if json.Unmarshal(msg[1], &subID) == nil {
			if sub := c.lookup(subID); sub != nil {
				c.unregister(subID)
				sub.end()
			}
		}

	case "OK":
		if len(msg) < 3 {
			return
		}
		var eventID string
		var res okResult
		if json.Unmarshal(msg[1], &eventID) != nil || json.Unmarshal(msg[2], &res.accepted) != nil {
			return
		}
		if len(msg) > 3 {
			_ = json.Unmarshal(msg[3], &res.message)
		}
		c.mu.Lock()
		ack := c.oks[eventID]
		c.mu.Unlock()
		if ack != nil {
			select {
			case ack <- res:
			default:
			}
		}

	case "NOTICE":
		var notice string
		_ = json.Unmarshal(msg[1], &notice)
		c.logger.Info("Relay notice", zap.String("notice", notice))
	}
}

func (c *Conn) lookup(id string) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[id]
}

// ===============================
// SUBSCRIPTION
// ===============================

// Subscription is an open REQ on one relay.
type Subscription struct {
	id     string
	conn   *Conn
	events chan nostr.Event
	eose   chan struct{}
	done   chan struct{}

	eoseOnce sync.Once
	endOnce  sync.Once
}

func newSubscription(id string, conn *Conn) *Subscription {
	return &Subscription{
		id:     id,
		conn:   conn,
		events: make(chan nostr.Event, 64),
		eose:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// ID returns the subscription id sent to the relay.
func (s *Subscription) ID() string { return s.id }

// Events yields matching records. It is never closed; use EOSE and Done.
func (s *Subscription) Events() <-chan nostr.Event { return s.events }

// EOSE is closed once the relay has sent all stored records.
func (s *Subscription) EOSE() <-chan struct{} { return s.eose }

// Done is closed when the subscription ends for any reason.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close ends the subscription and tells the relay.
func (s *Subscription) Close() {
	s.conn.closeSubscription(s)
	s.end()
}

func (s *Subscription) deliver(e nostr.Event) {
	select {
	case s.events <- e:
	case <-s.done:
	}
}

func (s *Subscription) markEOSE() {
	s.eoseOnce.Do(func() { close(s.eose) })
}

func (s *Subscription) end() {
	s.endOnce.Do(func() { close(s.done) })
}
