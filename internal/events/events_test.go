package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func counter(id string, n *atomic.Int32) HandlerFunc {
	return HandlerFunc{ID: id, Func: func(ctx context.Context, e Event) error {
		n.Add(1)
		return nil
	}}
}

func TestPublishSyncDeliversToTypeAndPattern(t *testing.T) {
	bus := NewInMemoryEventBus(nil, zap.NewNop())

	var direct, display, all atomic.Int32
	require.NoError(t, bus.Subscribe(TypeDisplayPublished, counter("direct", &direct)))
	require.NoError(t, bus.SubscribePattern("display.*", counter("display", &display)))
	require.NoError(t, bus.SubscribePattern("*", counter("all", &all)))

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, NewDisplayPublishedEvent("alice", "rec", "30009:x:y", "add", 1)))
	require.NoError(t, bus.Publish(ctx, NewDisplayUnconfirmedEvent("alice", "rec")))
	require.NoError(t, bus.Publish(ctx, NewAwardIssuedEvent("a", "30009:x:y", "x", []string{"bob"})))

	assert.Equal(t, int32(1), direct.Load())
	assert.Equal(t, int32(2), display.Load())
	assert.Equal(t, int32(3), all.Load())

	stats := bus.Stats()
	assert.Equal(t, 3, stats.Subscriptions)
	assert.Equal(t, int64(3), stats.Published)
	assert.Equal(t, int64(3), stats.Delivered)
}

func TestPublishReportsHandlerFailureAndPanic(t *testing.T) {
	bus := NewInMemoryEventBus(nil, zap.NewNop())
	var after atomic.Int32
	require.NoError(t, bus.Subscribe(TypeAwardIssued, HandlerFunc{ID: "err", Func: func(ctx context.Context, e Event) error {
		return errors.New("boom")
	}}))
	require.NoError(t, bus.Subscribe(TypeAwardIssued, HandlerFunc{ID: "panic", Func: func(ctx context.Context, e Event) error {
		panic("boom")
	}}))
	require.NoError(t, bus.Subscribe(TypeAwardIssued, counter("after", &after)))

	err := bus.Publish(context.Background(), NewAwardIssuedEvent("a", "30009:x:y", "x", []string{"bob"}))
	assert.EqualError(t, err, "failed to execute 2 out of 3 handlers")
	assert.Equal(t, int32(1), after.Load())
	assert.Equal(t, int64(1), bus.Stats().Failed)
}

func TestPublishAsync(t *testing.T) {
	bus := NewInMemoryEventBus(nil, zap.NewNop())
	require.NoError(t, bus.Start(context.Background()))
	defer bus.Stop(context.Background())

	got := make(chan Event, 1)
	require.NoError(t, bus.Subscribe(TypeDefinitionResolved, HandlerFunc{ID: "h", Func: func(ctx context.Context, e Event) error {
		got <- e
		return nil
	}}))

	ev := NewDefinitionResolvedEvent("bob", []string{"30009:x:y"})
	require.NoError(t, bus.PublishAsync(context.Background(), ev))

	select {
	case e := <-got:
		assert.Equal(t, ev.ID, e.EventID())
		assert.Equal(t, "bob", e.SubjectKey())
		assert.Equal(t, TypeDefinitionResolved, e.EventType())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishAsyncAfterStop(t *testing.T) {
	bus := NewInMemoryEventBus(nil, zap.NewNop())
	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Stop(context.Background()))

	err := bus.PublishAsync(context.Background(), NewDisplayUnconfirmedEvent("alice", "rec"))
	assert.ErrorIs(t, err, errBusStopped)
	assert.ErrorIs(t, bus.Health(), errBusStopped)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewInMemoryEventBus(nil, zap.NewNop())
	var n atomic.Int32
	h := counter("h", &n)

	require.NoError(t, bus.Subscribe(TypeDisplayConfirmed, h))
	require.NoError(t, bus.SubscribePattern("display.*", h))
	require.NoError(t, bus.Unsubscribe(TypeDisplayConfirmed, h))
	assert.Error(t, bus.Unsubscribe(TypeDisplayConfirmed, h))
	assert.Equal(t, 1, bus.Stats().Subscriptions)

	require.NoError(t, bus.Unsubscribe("display.*", h))
	assert.Equal(t, 0, bus.Stats().Subscriptions)
}

func TestSubscriptionMatches(t *testing.T) {
	all := subscription{prefix: true}
	display := subscription{key: "display.", prefix: true}
	exact := subscription{key: "award.issued"}

	assert.True(t, all.matches("display.published"))
	assert.True(t, display.matches("display.published"))
	assert.True(t, exact.matches("award.issued"))
	assert.False(t, display.matches("award.issued"))
	assert.False(t, exact.matches("award.issued.late"))
}
