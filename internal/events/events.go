// Package events carries badge domain events between the services and
// the live update hub.
package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"badgehub/internal/metrics"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// ===============================
// EVENTS
// ===============================

// Event is something that happened to a badge, award or display list.
type Event interface {
	EventID() string
	EventType() string
	OccurredAt() time.Time
	// SubjectKey is the public key the event concerns.
	SubjectKey() string
}

// Envelope holds the fields every badge event shares.
type Envelope struct {
	ID      string    `json:"event_id"`
	Type    string    `json:"event_type"`
	At      time.Time `json:"timestamp"`
	Subject string    `json:"subject"`
}

func newEnvelope(eventType, subject string) Envelope {
	id, err := uuid.NewV4()
	eventID := id.String()
	if err != nil {
		eventID = fmt.Sprintf("evt-%d", time.Now().UnixNano())
	}
	return Envelope{ID: eventID, Type: eventType, At: time.Now(), Subject: subject}
}

func (e *Envelope) EventID() string       { return e.ID }
func (e *Envelope) EventType() string     { return e.Type }
func (e *Envelope) OccurredAt() time.Time { return e.At }
func (e *Envelope) SubjectKey() string    { return e.Subject }

// ===============================
// BUS
// ===============================

// EventBus fans events out to subscribers. Publish runs handlers on the
// caller's goroutine; PublishAsync hands the event to the bus workers.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	PublishAsync(ctx context.Context, event Event) error

	// Subscribe matches one event type exactly. SubscribePattern accepts
	// "*" or a prefix ending in "*", such as "display.*".
	Subscribe(eventType string, handler Handler) error
	SubscribePattern(pattern string, handler Handler) error
	Unsubscribe(key string, handler Handler) error

	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health() error
	Stats() *BusStats
}

// Handler receives events from the bus.
type Handler interface {
	Handle(ctx context.Context, event Event) error
	HandlerID() string
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc struct {
	ID   string
	Func func(ctx context.Context, event Event) error
}

func (f HandlerFunc) Handle(ctx context.Context, event Event) error { return f.Func(ctx, event) }
func (f HandlerFunc) HandlerID() string                             { return f.ID }

// BusStats is a snapshot of bus counters.
type BusStats struct {
	Published     int64         `json:"published"`
	Delivered     int64         `json:"delivered"`
	Failed        int64         `json:"failed"`
	Subscriptions int           `json:"subscriptions"`
	Queued        int           `json:"queued"`
	Uptime        time.Duration `json:"uptime"`
}

// BusConfig sizes the async queue and bounds handler time.
type BusConfig struct {
	QueueSize      int           `json:"queue_size"`
	Workers        int           `json:"workers"`
	HandlerTimeout time.Duration `json:"handler_timeout"`
}

// DefaultBusConfig returns the configuration used by the services.
func DefaultBusConfig() *BusConfig {
	return &BusConfig{
		QueueSize:      256,
		Workers:        2,
		HandlerTimeout: 10 * time.Second,
	}
}

var errBusStopped = errors.New("event bus is stopped")

type subscription struct {
	key     string
	prefix  bool
	handler Handler
}

func (s subscription) matches(eventType string) bool {
	if !s.prefix {
		return s.key == eventType
	}
	return strings.HasPrefix(eventType, s.key)
}

type queued struct {
	ctx   context.Context
	event Event
}

type memoryBus struct {
	mu     sync.RWMutex
	subs   []subscription
	queue  chan queued
	config *BusConfig
	logger *zap.Logger

	started   time.Time
	done      chan struct{}
	stopOnce  sync.Once
	running   atomic.Bool
	wg        sync.WaitGroup
	published atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
}

// NewInMemoryEventBus creates a process-local event bus.
func NewInMemoryEventBus(config *BusConfig, logger *zap.Logger) EventBus {
	if config == nil {
		config = DefaultBusConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &memoryBus{
		queue:   make(chan queued, config.QueueSize),
		config:  config,
		logger:  logger,
		started: time.Now(),
		done:    make(chan struct{}),
	}
}

func (b *memoryBus) Publish(ctx context.Context, event Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	b.published.Add(1)
	return b.dispatch(ctx, event)
}

func (b *memoryBus) PublishAsync(ctx context.Context, event Event) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	select {
	case <-b.done:
		return errBusStopped
	default:
	}

	select {
	case b.queue <- queued{ctx: context.WithoutCancel(ctx), event: event}:
		b.published.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("event queue is full (%d)", cap(b.queue))
	}
}

func (b *memoryBus) Subscribe(eventType string, handler Handler) error {
	return b.add(eventType, false, handler)
}

func (b *memoryBus) SubscribePattern(pattern string, handler Handler) error {
	if pattern == "*" {
		return b.add("", true, handler)
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return b.add(prefix, true, handler)
	}
	return b.add(pattern, false, handler)
}

func (b *memoryBus) add(key string, prefix bool, handler Handler) error {
	if key == "" && !prefix {
		return fmt.Errorf("event type cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	b.mu.Lock()
	b.subs = append(b.subs, subscription{key: key, prefix: prefix, handler: handler})
	b.mu.Unlock()

	b.logger.Debug("Event handler subscribed",
		zap.String("key", key),
		zap.Bool("prefix", prefix),
		zap.String("handler_id", handler.HandlerID()),
	)
	return nil
}

// Unsubscribe removes the handler registered under key, which is the
// event type or pattern it was subscribed with.
func (b *memoryBus) Unsubscribe(key string, handler Handler) error {
	prefix := false
	if k, ok := strings.CutSuffix(key, "*"); ok {
		key, prefix = k, true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s.key == key && s.prefix == prefix && s.handler.HandlerID() == handler.HandlerID() {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("handler %s not subscribed to %q", handler.HandlerID(), key)
}

func (b *memoryBus) Start(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return nil
	}
	b.logger.Info("Starting event bus", zap.Int("workers", b.config.Workers))
	for i := 0; i < b.config.Workers; i++ {
		b.wg.Add(1)
		go b.work(i)
	}
	return nil
}

func (b *memoryBus) Stop(ctx context.Context) error {
	b.stopOnce.Do(func() { close(b.done) })

	finished := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		b.logger.Info("Event bus stopped", zap.Int("dropped", len(b.queue)))
		return nil
	case <-ctx.Done():
		b.logger.Warn("Event bus stop timeout")
		return ctx.Err()
	}
}

func (b *memoryBus) Health() error {
	select {
	case <-b.done:
		return errBusStopped
	default:
	}
	if size := cap(b.queue); size > 0 && len(b.queue)*5 > size*4 {
		return fmt.Errorf("event queue is %d%% full", len(b.queue)*100/size)
	}
	return nil
}

func (b *memoryBus) Stats() *BusStats {
	b.mu.RLock()
	subs := len(b.subs)
	b.mu.RUnlock()

	return &BusStats{
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load(),
		Failed:        b.failed.Load(),
		Subscriptions: subs,
		Queued:        len(b.queue),
		Uptime:        time.Since(b.started),
	}
}

func (b *memoryBus) work(id int) {
	defer b.wg.Done()
	for {
		select {
		case msg := <-b.queue:
			if err := b.dispatch(msg.ctx, msg.event); err != nil {
				b.logger.Debug("Async event delivery failed", zap.Int("worker", id), zap.Error(err))
			}
		case <-b.done:
			return
		}
	}
}

// dispatch delivers the event to every matching handler. Handler errors
// and panics are counted and logged but never stop delivery to the rest.
func (b *memoryBus) dispatch(ctx context.Context, event Event) error {
	eventType := event.EventType()

	b.mu.RLock()
	var targets []Handler
	for _, s := range b.subs {
		if s.matches(eventType) {
			targets = append(targets, s.handler)
		}
	}
	b.mu.RUnlock()

	failed := 0
	for _, h := range targets {
		if err := b.deliver(ctx, h, event); err != nil {
			failed++
			b.logger.Error("Event handler failed",
				zap.String("handler_id", h.HandlerID()),
				zap.String("event_id", event.EventID()),
				zap.String("event_type", eventType),
				zap.Error(err),
			)
		}
	}

	if failed > 0 {
		b.failed.Add(1)
		metrics.DomainEventsTotal.WithLabelValues(eventType, "failed").Inc()
		return fmt.Errorf("failed to execute %d out of %d handlers", failed, len(targets))
	}
	b.delivered.Add(1)
	metrics.DomainEventsTotal.WithLabelValues(eventType, "delivered").Inc()
	return nil
}

func (b *memoryBus) deliver(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, b.config.HandlerTimeout)
	defer cancel()
	return h.Handle(ctx, event)
}
