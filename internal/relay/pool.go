package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"badgehub/internal/nostr"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PoolOptions tunes a relay pool.
type PoolOptions struct {
	DialTimeout    time.Duration
	PublishTimeout time.Duration
	BufferSize     int
}

// DefaultPoolOptions returns sensible pool defaults.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		DialTimeout:    5 * time.Second,
		PublishTimeout: 5 * time.Second,
		BufferSize:     128,
	}
}

// Pool fans queries and publishes out to every configured relay. Records
// seen from more than one relay are delivered once.
type Pool struct {
	conns   []*Conn
	options PoolOptions
	logger  *zap.Logger
}

// NewPool creates a pool over the given relay URLs.
func NewPool(urls []string, options PoolOptions, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if options.BufferSize <= 0 {
		options.BufferSize = DefaultPoolOptions().BufferSize
	}
	if options.PublishTimeout <= 0 {
		options.PublishTimeout = DefaultPoolOptions().PublishTimeout
	}

	conns := make([]*Conn, 0, len(urls))
	for _, url := range urls {
		conns = append(conns, NewConn(url, options.DialTimeout, logger))
	}

	return &Pool{conns: conns, options: options, logger: logger}
}

// URLs lists the relays in the pool.
func (p *Pool) URLs() []string {
	urls := make([]string, len(p.conns))
	for i, c := range p.conns {
		urls[i] = c.URL()
	}
	return urls
}

// Query implements Source.
func (p *Pool) Query(ctx context.Context, filter nostr.Filter) (<-chan nostr.Event, error) {
	if len(p.conns) == 0 {
		return nil, ErrNoRelays
	}

	subs := make([]*Subscription, len(p.conns))
	errs := make([]error, len(p.conns))

	var g errgroup.Group
	for i, conn := range p.conns {
		g.Go(func() error {
			sub, err := conn.Subscribe(ctx, filter)
			if err != nil {
				p.logger.Debug("Subscription failed", zap.String("relay", conn.URL()), zap.Error(err))
				errs[i] = err
				return nil
			}
			subs[i] = sub
			return nil
		})
	}
	_ = g.Wait()

	open := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		if sub != nil {
			open = append(open, sub)
		}
	}
	if len(open) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrRejected, errors.Join(errs...))
	}

	out := make(chan nostr.Event, p.options.BufferSize)
	var (
		seenMu sync.Mutex
		seen   = make(map[string]struct{})
		wg     sync.WaitGroup
	)

	for _, sub := range open {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			defer sub.Close()
			for {
				select {
				case e := <-sub.Events():
					seenMu.Lock()
					_, dup := seen[e.ID]
					seen[e.ID] = struct{}{}
					seenMu.Unlock()
					if dup || !filter.Matches(&e) {
						continue
					}
					select {
					case out <- e:
					case <-ctx.Done():
						return
					}
				case <-sub.EOSE():
					p.drain(ctx, sub, filter, out, &seenMu, seen)
					return
				case <-sub.Done():
					return
				case <-ctx.Done():
					return
				}
			}
		}(sub)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out, nil
}

// drain forwards records buffered before EOSE was observed.
func (p *Pool) drain(ctx context.Context, sub *Subscription, filter nostr.Filter, out chan<- nostr.Event, mu *sync.Mutex, seen map[string]struct{}) {
	for {
		select {
		case e := <-sub.Events():
			mu.Lock()
			_, dup := seen[e.ID]
			seen[e.ID] = struct{}{}
			mu.Unlock()
			if dup || !filter.Matches(&e) {
				continue
			}
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		default:
			return
		}
	}
}

// Publish implements Source. It returns as soon as one relay accepts.
func (p *Pool) Publish(ctx context.Context, event nostr.Event) error {
	if len(p.conns) == 0 {
		return ErrNoRelays
	}

	ctx, cancel := context.WithTimeout(ctx, p.options.PublishTimeout)
	defer cancel()

	results := make(chan error, len(p.conns))
	for _, conn := range p.conns {
		go func(conn *Conn) {
			err := conn.Publish(ctx, event)
			if err != nil {
				p.logger.Debug("Publish failed", zap.String("relay", conn.URL()), zap.String("event_id", event.ID), zap.Error(err))
			}
			results <- err
		}(conn)
	}

	var errs []error
	for range p.conns {
		err := <-results
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return fmt.Errorf("%w: %w", ErrNotAccepted, errors.Join(errs...))
}

// Close closes every relay connection.
func (p *Pool) Close() error {
	var errs []error
	for _, c := range p.conns {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
