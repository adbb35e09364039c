package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"badgehub/internal/badgeid"
	"badgehub/internal/events"
	"badgehub/internal/fetch"
	"badgehub/internal/nostr"
	"badgehub/internal/records"
	"badgehub/internal/relay"
	"badgehub/internal/retry"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func testResolverConfig() *ResolverConfig {
	c := DefaultResolverConfig()
	c.AwardBudget = 500 * time.Millisecond
	c.DefinitionBudget = 300 * time.Millisecond
	c.FallbackBudget = 100 * time.Millisecond
	c.DisplayBudget = 300 * time.Millisecond
	c.ProfileBudget = 300 * time.Millisecond
	c.CatalogBudget = 300 * time.Millisecond
	c.ConfirmBudget = 100 * time.Millisecond
	c.PublishTimeout = time.Second
	c.FallbackPolicy = retry.Policy{MaxAttempts: 1, Interval: 10 * time.Millisecond, Strategy: retry.StrategyLinear}
	c.ConfirmPolicy = retry.Policy{MaxAttempts: 3, Interval: 20 * time.Millisecond, Strategy: retry.StrategyLinear}
	return c
}

// fixture is a service collection over an in-memory relay with two local
// signers: an issuer and a user.
type fixture struct {
	t      *testing.T
	source *relay.MemorySource
	issuer *nostr.KeySigner
	user   *nostr.KeySigner
	sc     *ServiceCollection
}

func newFixture(t *testing.T, nip05 *NIP05Resolver) *fixture {
	t.Helper()
	return newWrappedFixture(t, nip05, nil)
}

// newWrappedFixture lets a test put its own Source in front of the memory
// relay. Records stored through the fixture still land in the memory relay.
func newWrappedFixture(t *testing.T, nip05 *NIP05Resolver, wrap func(*relay.MemorySource) relay.Source) *fixture {
	t.Helper()

	issuer := mustSigner(t)
	user := mustSigner(t)
	source := relay.NewMemorySource()
	var served relay.Source = source
	if wrap != nil {
		served = wrap(source)
	}

	sc, err := NewServiceCollectionFrom(Dependencies{
		Source:   served,
		Keyring:  nostr.NewKeyring(issuer, user),
		Creator:  issuer.PublicKey(),
		Resolver: testResolverConfig(),
		Fetch:    fetch.NewScheduler(served, retry.Policy{MaxAttempts: 1, Interval: 10 * time.Millisecond}, nil),
		NIP05:    nip05,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, sc.Shutdown(context.Background()))
	})

	return &fixture{t: t, source: source, issuer: issuer, user: user, sc: sc}
}

func mustSigner(t *testing.T) *nostr.KeySigner {
	t.Helper()
	s, err := nostr.GenerateKeySigner()
	require.NoError(t, err)
	return s
}

func (f *fixture) store(signer nostr.Signer, tmpl nostr.Template) nostr.Event {
	f.t.Helper()
	e, err := signer.Sign(tmpl)
	require.NoError(f.t, err)
	f.source.Add(*e)
	return *e
}

func (f *fixture) badgeID(slug string) string {
	return badgeid.Build(nostr.KindBadgeDefinition, f.issuer.PublicKey(), slug)
}

func (f *fixture) define(slug, name string, createdAt int64) nostr.Event {
	return f.store(f.issuer, records.DefinitionTemplate(records.DefinitionInput{
		Slug:  slug,
		Name:  name,
		Image: "https://badges.example/" + slug + ".png",
	}, createdAt))
}

// award stores an award whose reference tag is written exactly as ref.
func (f *fixture) award(ref string, createdAt int64, recipients ...string) nostr.Event {
	tags := nostr.Tags{{"a", ref}}
	for _, p := range recipients {
		tags = append(tags, nostr.Tag{"p", p})
	}
	return f.store(f.issuer, nostr.Template{Kind: nostr.KindBadgeAward, CreatedAt: createdAt, Tags: tags})
}

// recorder collects bus events of one type.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (f *fixture) record(eventType string) *recorder {
	f.t.Helper()
	r := &recorder{}
	err := f.sc.EventBus.Subscribe(eventType, events.HandlerFunc{
		ID: "test-" + eventType,
		Func: func(ctx context.Context, e events.Event) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, e)
			return nil
		},
	})
	require.NoError(f.t, err)
	return r
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func waitConfirmed(t *testing.T, ch <-chan bool) bool {
	t.Helper()
	require.NotNil(t, ch)
	select {
	case ok := <-ch:
		return ok
	case <-time.After(5 * time.Second):
		t.Fatal("confirmation did not finish")
		return false
	}
}
