// Package fetch races relay queries against a wall-clock budget and
// returns whatever arrived, retrying transport rejections inside the same
// budget.
package fetch

import (
	"context"
	"errors"
	"time"

	"badgehub/internal/metrics"
	"badgehub/internal/nostr"
	"badgehub/internal/relay"
	"badgehub/internal/retry"

	"go.uber.org/zap"
)

// Result is the outcome of a bounded fetch. It is never nil.
type Result struct {
	Events   []nostr.Event
	Complete bool // every source signalled end of stored records
	TimedOut bool // the budget expired before completion
	Attempts int
	Err      error // last transport error, informational only
	Elapsed  time.Duration
}

// Scheduler runs bounded fetches against a source.
type Scheduler struct {
	source relay.Source
	policy retry.Policy
	logger *zap.Logger
}

// DefaultPolicy is the retry policy for transport rejections: three
// attempts spaced linearly by 250ms.
func DefaultPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, Interval: 250 * time.Millisecond, Strategy: retry.StrategyLinear}
}

// NewScheduler creates a scheduler. policy governs retries after a
// transport rejection.
func NewScheduler(source relay.Source, policy retry.Policy, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Scheduler{source: source, policy: policy, logger: logger}
}

// WithPolicy returns a scheduler on the same source with another retry
// policy.
func (s *Scheduler) WithPolicy(policy retry.Policy) *Scheduler {
	return NewScheduler(s.source, policy, s.logger)
}

// Source returns the underlying source.
func (s *Scheduler) Source() relay.Source {
	return s.source
}

// FetchBounded collects records matching filter until every source is done
// or budget elapses. Records are deduplicated by id across attempts.
func (s *Scheduler) FetchBounded(ctx context.Context, filter nostr.Filter, budget time.Duration) *Result {
	return s.fetch(ctx, "", filter, budget)
}

// FetchLabeled is FetchBounded with a purpose label for metrics and logs.
func (s *Scheduler) FetchLabeled(ctx context.Context, purpose string, filter nostr.Filter, budget time.Duration) *Result {
	return s.fetch(ctx, purpose, filter, budget)
}

func (s *Scheduler) fetch(ctx context.Context, purpose string, filter nostr.Filter, budget time.Duration) *Result {
	if purpose == "" {
		purpose = "query"
	}
	start := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	res := &Result{}
	seen := make(map[string]struct{})

	err := retry.Do(fetchCtx, s.policy, func(ctx context.Context) error {
		res.Attempts++
		metrics.FetchAttemptsTotal.WithLabelValues(purpose).Inc()

		ch, err := s.source.Query(ctx, filter)
		if err != nil {
			res.Err = err
			return err
		}
		for {
			select {
			case e, ok := <-ch:
				if !ok {
					res.Complete = ctx.Err() == nil
					return nil
				}
				if _, dup := seen[e.ID]; dup {
					continue
				}
				seen[e.ID] = struct{}{}
				res.Events = append(res.Events, e)
			case <-ctx.Done():
				// Drain so the source's sender can exit.
				go func() {
					for range ch {
					}
				}()
				return retry.Permanent(ctx.Err())
			}
		}
	}, func(err error, next time.Duration) {
		s.logger.Debug("Query rejected, retrying",
			zap.String("purpose", purpose),
			zap.Stringer("filter", filter),
			zap.Int("attempt", res.Attempts),
			zap.Duration("next", next),
			zap.Error(err),
		)
	})

	res.Elapsed = time.Since(start)
	outcome := metrics.OutcomeComplete
	switch {
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		res.TimedOut = true
		outcome = metrics.OutcomeTimeout
	case err != nil:
		if res.Err == nil {
			res.Err = err
		}
		outcome = metrics.OutcomeFailed
	}

	metrics.FetchesTotal.WithLabelValues(purpose, outcome).Inc()
	metrics.FetchDuration.WithLabelValues(purpose).Observe(res.Elapsed.Seconds())
	metrics.FetchRecords.WithLabelValues(purpose).Observe(float64(len(res.Events)))

	if res.TimedOut {
		s.logger.Debug("Fetch budget expired with partial results",
			zap.String("purpose", purpose),
			zap.Stringer("filter", filter),
			zap.Int("records", len(res.Events)),
			zap.Duration("budget", budget),
		)
	}
	return res
}
