// file: internal/handlers/web/websocket.go
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"badgehub/internal/events"
	"badgehub/internal/metrics"
	"badgehub/internal/models"
	"badgehub/internal/nostr"
	"badgehub/internal/services"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 32
)

// Topics a client can subscribe to.
const (
	TopicAwards  = "awards"
	TopicDisplay = "display"
)

// Message types exchanged with clients.
const (
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"
	MsgAwards      = "awards"
	MsgDisplay     = "display"
	MsgEvent       = "event"
	MsgError       = "error"
)

// ClientMessage is sent by clients to manage subscriptions.
type ClientMessage struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	PubKey string `json:"pubkey"`
}

// ServerMessage is pushed to clients.
type ServerMessage struct {
	Type    string                     `json:"type"`
	Topic   string                     `json:"topic,omitempty"`
	PubKey  string                     `json:"pubkey,omitempty"`
	Awards  []*models.ResolvedAward    `json:"awards,omitempty"`
	Pending int                        `json:"pending,omitempty"`
	Final   bool                       `json:"final,omitempty"`
	List    *models.ProfileDisplayList `json:"list,omitempty"`
	State   string                     `json:"state,omitempty"`
	Event   events.Event               `json:"event,omitempty"`
	Error   string                     `json:"error,omitempty"`
}

type subscription struct {
	topic  string
	pubkey string
}

// ===============================
// HUB
// ===============================

// Hub tracks live clients and pushes award and display updates to them.
type Hub struct {
	services *services.ServiceCollection
	logger   *zap.Logger
	upgrader websocket.Upgrader
	handler  events.HandlerFunc

	mu      sync.Mutex
	clients map[*Client]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a live update hub. An empty origin list accepts any origin.
func NewHub(sc *services.ServiceCollection, allowedOrigins []string, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		services: sc,
		logger:   logger,
		clients:  make(map[*Client]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	h.handler = events.HandlerFunc{ID: "live-hub", Func: h.onEvent}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// Start subscribes the hub to domain events.
func (h *Hub) Start() error {
	if h.services.EventBus == nil {
		return nil
	}
	return h.services.EventBus.SubscribePattern("*", h.handler)
}

// Close disconnects every client and waits for in-flight resolutions.
func (h *Hub) Close() error {
	if h.services.EventBus != nil {
		_ = h.services.EventBus.Unsubscribe("*", h.handler)
	}
	h.cancel()

	h.mu.Lock()
	for c := range h.clients {
		c.close()
	}
	h.mu.Unlock()

	h.wg.Wait()
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the connection and serves one client until it leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(h.ctx)
	c := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan ServerMessage, sendBuffer),
		subs:   make(map[subscription]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.LiveClients.Inc()
	h.logger.Debug("Live client connected", zap.String("remote_addr", r.RemoteAddr))

	h.wg.Add(1)
	go c.writePump()
	c.readPump()
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		metrics.LiveClients.Dec()
	}
}

// interested returns the clients subscribed to topic for any of pubkeys.
func (h *Hub) interested(topic string, pubkeys ...string) []*Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []*Client
	for c := range h.clients {
		for _, pk := range pubkeys {
			if c.wants(subscription{topic: topic, pubkey: pk}) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// onEvent forwards domain events to the clients they concern.
func (h *Hub) onEvent(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case *events.DefinitionResolvedEvent:
		h.forward(TopicAwards, event, e.Recipient)
	case *events.AwardIssuedEvent:
		for _, c := range h.interested(TopicAwards, e.Recipients...) {
			c.push(ServerMessage{Type: MsgEvent, Topic: TopicAwards, Event: event})
			for _, pk := range e.Recipients {
				if c.wants(subscription{topic: TopicAwards, pubkey: pk}) {
					h.resolveAwards(c, pk)
				}
			}
		}
	case *events.DisplayEvent:
		h.forward(TopicDisplay, event, e.Owner)
	}
	return nil
}

func (h *Hub) forward(topic string, event events.Event, pubkey string) {
	for _, c := range h.interested(topic, pubkey) {
		c.push(ServerMessage{Type: MsgEvent, Topic: topic, PubKey: pubkey, Event: event})
	}
}

// resolveAwards pushes cached results first and upgrades pending awards
// in a second pass. Work runs on the hub context so it finishes even when
// the client leaves; results are dropped unless the client still wants
// them.
func (h *Hub) resolveAwards(c *Client, pubkey string) {
	sub := subscription{topic: TopicAwards, pubkey: pubkey}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		awardSvc := h.services.AwardService

		awards, batch := awardSvc.PreviewAwardsFor(h.ctx, pubkey)
		final := batch.Empty() && countPending(awards) == 0
		c.pushIfInterested(sub, awardsMessage(pubkey, awards, final))
		if final {
			return
		}

		awardSvc.UpgradePending(h.ctx, pubkey, awards)
		c.pushIfInterested(sub, awardsMessage(pubkey, awards, true))
	}()
}

func (h *Hub) resolveDisplay(c *Client, pubkey string) {
	sub := subscription{topic: TopicDisplay, pubkey: pubkey}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		displays := h.services.DisplayService

		list, err := displays.GetDisplayList(h.ctx, pubkey)
		if err != nil {
			c.pushIfInterested(sub, ServerMessage{Type: MsgError, Topic: TopicDisplay, PubKey: pubkey, Error: err.Error()})
			return
		}
		c.pushIfInterested(sub, ServerMessage{
			Type:   MsgDisplay,
			Topic:  TopicDisplay,
			PubKey: pubkey,
			List:   list,
			State:  displays.State(pubkey).String(),
			Final:  true,
		})
	}()
}

func awardsMessage(pubkey string, awards []*models.ResolvedAward, final bool) ServerMessage {
	// Copy so later upgrades do not race with encoding.
	snapshot := make([]*models.ResolvedAward, len(awards))
	for i, a := range awards {
		cp := *a
		snapshot[i] = &cp
	}
	return ServerMessage{
		Type:    MsgAwards,
		Topic:   TopicAwards,
		PubKey:  pubkey,
		Awards:  snapshot,
		Pending: countPending(snapshot),
		Final:   final,
	}
}

func countPending(awards []*models.ResolvedAward) int {
	n := 0
	for _, a := range awards {
		if a.Pending {
			n++
		}
	}
	return n
}

// ===============================
// CLIENT
// ===============================

// Client is one live websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan ServerMessage

	mu   sync.Mutex
	subs map[subscription]struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (c *Client) wants(sub subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[sub]
	return ok
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.conn.Close()
	})
}

// push queues a message without blocking. Slow clients lose messages.
func (c *Client) push(msg ServerMessage) {
	if c.ctx.Err() != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.hub.logger.Warn("Live client send buffer full, dropping message",
			zap.String("type", msg.Type),
			zap.String("pubkey", msg.PubKey),
		)
	}
}

func (c *Client) pushIfInterested(sub subscription, msg ServerMessage) {
	if !c.wants(sub) {
		return
	}
	c.push(msg)
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.close()
		c.hub.logger.Debug("Live client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("Live client read failed", zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.push(ServerMessage{Type: MsgError, Error: "malformed message"})
			continue
		}
		c.handle(msg)
	}
}

func (c *Client) handle(msg ClientMessage) {
	if msg.Topic != TopicAwards && msg.Topic != TopicDisplay {
		c.push(ServerMessage{Type: MsgError, Topic: msg.Topic, Error: "unknown topic"})
		return
	}
	pubkey, err := nostr.DecodePublicKey(msg.PubKey)
	if err != nil {
		c.push(ServerMessage{Type: MsgError, Topic: msg.Topic, PubKey: msg.PubKey, Error: "invalid pubkey"})
		return
	}
	sub := subscription{topic: msg.Topic, pubkey: pubkey}

	switch msg.Type {
	case MsgSubscribe:
		c.mu.Lock()
		c.subs[sub] = struct{}{}
		c.mu.Unlock()
		if msg.Topic == TopicAwards {
			c.hub.resolveAwards(c, pubkey)
		} else {
			c.hub.resolveDisplay(c, pubkey)
		}
	case MsgUnsubscribe:
		c.mu.Lock()
		delete(c.subs, sub)
		c.mu.Unlock()
	default:
		c.push(ServerMessage{Type: MsgError, Error: "unknown message type"})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		c.hub.wg.Done()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.hub.logger.Debug("Live client write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
