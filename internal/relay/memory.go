package relay

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"badgehub/internal/nostr"
)

// ErrInjected is returned by MemorySource when a failure is injected.
var ErrInjected = errors.New("relay: injected failure")

// MemorySource is an in-process Source used in tests and in offline mode.
// Latency, failures and stalls can be injected to exercise bounded fetches.
type MemorySource struct {
	mu     sync.Mutex
	events []nostr.Event
	ids    map[string]struct{}

	// Latency delays each delivered record.
	Latency time.Duration
	// Stall keeps queries open without ever finishing.
	Stall bool
	// FailQueries rejects that many queries before succeeding.
	FailQueries int
	// RejectPublish makes every publish fail.
	RejectPublish bool
	// VisibleAfter delays when published records become queryable.
	VisibleAfter time.Duration

	queries   atomic.Int64
	publishes atomic.Int64
	filters   []nostr.Filter
}

// NewMemorySource creates a source preloaded with events.
func NewMemorySource(events ...nostr.Event) *MemorySource {
	m := &MemorySource{ids: make(map[string]struct{})}
	for _, e := range events {
		m.Add(e)
	}
	return m
}

// Add stores a record immediately.
func (m *MemorySource) Add(e nostr.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ids == nil {
		m.ids = make(map[string]struct{})
	}
	if _, ok := m.ids[e.ID]; ok {
		return
	}
	m.ids[e.ID] = struct{}{}
	m.events = append(m.events, e)
}

// Queries returns how many queries were made.
func (m *MemorySource) Queries() int { return int(m.queries.Load()) }

// Publishes returns how many publishes were made.
func (m *MemorySource) Publishes() int { return int(m.publishes.Load()) }

// Filters returns a copy of every filter queried so far.
func (m *MemorySource) Filters() []nostr.Filter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]nostr.Filter(nil), m.filters...)
}

// Query implements Source.
func (m *MemorySource) Query(ctx context.Context, filter nostr.Filter) (<-chan nostr.Event, error) {
	m.queries.Add(1)

	m.mu.Lock()
	m.filters = append(m.filters, filter)
	if m.FailQueries > 0 {
		m.FailQueries--
		m.mu.Unlock()
		return nil, ErrInjected
	}
	matched := make([]nostr.Event, 0)
	for _, e := range m.events {
		if filter.Matches(&e) {
			matched = append(matched, e)
		}
	}
	latency, stall := m.Latency, m.Stall
	m.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt > matched[j].CreatedAt
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	out := make(chan nostr.Event)
	go func() {
		defer close(out)
		for _, e := range matched {
			if latency > 0 {
				select {
				case <-time.After(latency):
				case <-ctx.Done():
					return
				}
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
		if stall {
			<-ctx.Done()
		}
	}()
	return out, nil
}

// Publish implements Source.
func (m *MemorySource) Publish(ctx context.Context, e nostr.Event) error {
	m.publishes.Add(1)

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	reject, delay := m.RejectPublish, m.VisibleAfter
	m.mu.Unlock()

	if reject {
		return ErrPublishDenied
	}
	if delay > 0 {
		time.AfterFunc(delay, func() { m.Add(e) })
		return nil
	}
	m.Add(e)
	return nil
}
