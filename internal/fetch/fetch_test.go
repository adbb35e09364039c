package fetch

import (
	"context"
	"testing"
	"time"

	"badgehub/internal/nostr"
	"badgehub/internal/relay"
	"badgehub/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testPolicy = retry.Policy{MaxAttempts: 3, Interval: 5 * time.Millisecond, Strategy: retry.StrategyLinear}

func awards(t *testing.T, n int) []nostr.Event {
	t.Helper()
	signer, err := nostr.GenerateKeySigner()
	require.NoError(t, err)
	out := make([]nostr.Event, 0, n)
	for i := 0; i < n; i++ {
		e, err := signer.Sign(nostr.Template{
			Kind:      nostr.KindBadgeAward,
			CreatedAt: int64(100 + i),
			Tags:      nostr.Tags{{"a", "30009:x:y"}, {"p", "bob"}},
		})
		require.NoError(t, err)
		out = append(out, *e)
	}
	return out
}

func TestFetchBoundedComplete(t *testing.T) {
	src := relay.NewMemorySource(awards(t, 3)...)
	s := NewScheduler(src, testPolicy, zap.NewNop())

	res := s.FetchBounded(context.Background(), nostr.Filter{Kinds: []int{nostr.KindBadgeAward}}, time.Second)

	assert.Len(t, res.Events, 3)
	assert.True(t, res.Complete)
	assert.False(t, res.TimedOut)
	assert.Equal(t, 1, res.Attempts)
	assert.NoError(t, res.Err)
}

func TestFetchBoundedTimeoutReturnsPartial(t *testing.T) {
	src := relay.NewMemorySource(awards(t, 2)...)
	src.Stall = true
	s := NewScheduler(src, testPolicy, zap.NewNop())

	res := s.FetchBounded(context.Background(), nostr.Filter{}, 50*time.Millisecond)

	assert.Len(t, res.Events, 2)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Complete)
	assert.NoError(t, res.Err)
}

func TestFetchBoundedSlowSourceTimesOut(t *testing.T) {
	src := relay.NewMemorySource(awards(t, 5)...)
	src.Latency = 30 * time.Millisecond
	s := NewScheduler(src, testPolicy, zap.NewNop())

	start := time.Now()
	res := s.FetchBounded(context.Background(), nostr.Filter{}, 80*time.Millisecond)

	assert.True(t, res.TimedOut)
	assert.Less(t, len(res.Events), 5)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestFetchBoundedRetriesRejection(t *testing.T) {
	src := relay.NewMemorySource(awards(t, 1)...)
	src.FailQueries = 2
	s := NewScheduler(src, testPolicy, zap.NewNop())

	res := s.FetchBounded(context.Background(), nostr.Filter{}, time.Second)

	assert.Len(t, res.Events, 1)
	assert.Equal(t, 3, res.Attempts)
	assert.True(t, res.Complete)
}

func TestFetchBoundedExhaustedRetries(t *testing.T) {
	src := relay.NewMemorySource(awards(t, 1)...)
	src.FailQueries = 10
	s := NewScheduler(src, testPolicy, zap.NewNop())

	res := s.FetchBounded(context.Background(), nostr.Filter{}, time.Second)

	assert.Empty(t, res.Events)
	assert.Equal(t, 3, res.Attempts)
	assert.ErrorIs(t, res.Err, relay.ErrInjected)
	assert.False(t, res.TimedOut)
}

func TestFetchBoundedParentCancelled(t *testing.T) {
	src := relay.NewMemorySource(awards(t, 1)...)
	src.Stall = true
	s := NewScheduler(src, testPolicy, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := s.FetchBounded(ctx, nostr.Filter{}, time.Second)
	assert.False(t, res.TimedOut)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestWithPolicy(t *testing.T) {
	src := relay.NewMemorySource()
	src.FailQueries = 10
	s := NewScheduler(src, testPolicy, zap.NewNop()).WithPolicy(retry.Policy{MaxAttempts: 1})

	res := s.FetchBounded(context.Background(), nostr.Filter{}, time.Second)
	assert.Equal(t, 1, res.Attempts)
	assert.Same(t, src, s.Source())
}
