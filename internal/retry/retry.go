// Package retry holds the single retry policy shared by every component
// that re-attempts work against relays.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Strategy selects how the delay grows between attempts.
type Strategy string

const (
	StrategyConstant    Strategy = "constant"
	StrategyLinear      Strategy = "linear"
	StrategyExponential Strategy = "exponential"
)

// Policy bounds attempts and shapes the delay between them.
type Policy struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	Interval    time.Duration `json:"interval" yaml:"interval"`
	MaxInterval time.Duration `json:"max_interval" yaml:"max_interval"`
	Strategy    Strategy      `json:"strategy" yaml:"strategy"`
}

// Validate checks the policy for usable values.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry: max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.Interval < 0 {
		return fmt.Errorf("retry: interval must not be negative")
	}
	switch p.Strategy {
	case StrategyConstant, StrategyLinear, StrategyExponential, "":
	default:
		return fmt.Errorf("retry: unknown strategy %q", p.Strategy)
	}
	return nil
}

// Delay returns the wait before attempt n+1, where n counts completed
// attempts starting at 1.
func (p Policy) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	var d time.Duration
	switch p.Strategy {
	case StrategyLinear:
		d = p.Interval * time.Duration(n)
	case StrategyExponential:
		d = p.Interval << uint(n-1)
	default:
		d = p.Interval
	}
	if p.MaxInterval > 0 && d > p.MaxInterval {
		d = p.MaxInterval
	}
	return d
}

// BackOff returns a backoff.BackOff that yields the policy's delays and
// stops after MaxAttempts attempts in total.
func (p Policy) BackOff() backoff.BackOff {
	return &policyBackOff{policy: p}
}

type policyBackOff struct {
	policy Policy
	n      int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	b.n++
	if b.n >= b.policy.MaxAttempts {
		return backoff.Stop
	}
	return b.policy.Delay(b.n)
}

func (b *policyBackOff) Reset() {
	b.n = 0
}

// Do runs op until it succeeds, the policy is exhausted or ctx is done.
// notify, when set, is called after each failed attempt with the delay
// before the next one.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, notify func(err error, next time.Duration)) error {
	b := backoff.WithContext(p.BackOff(), ctx)
	return backoff.RetryNotify(func() error {
		return op(ctx)
	}, b, notify)
}

// Poll calls check until it reports true, the policy is exhausted or ctx
// is done. Errors from check count as a miss. It returns whether check
// ever reported true.
func Poll(ctx context.Context, p Policy, check func(ctx context.Context) (bool, error)) bool {
	errMiss := fmt.Errorf("retry: not yet observed")
	err := Do(ctx, p, func(ctx context.Context) error {
		ok, err := check(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errMiss
		}
		return nil
	}, nil)
	return err == nil
}

// Permanent marks an error as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
