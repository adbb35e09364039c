// Package relay implements the source query layer: streaming queries and
// publishes against a set of independent relays.
package relay

import (
	"context"
	"errors"

	"badgehub/internal/nostr"
)

// Errors surfaced by sources.
var (
	ErrNoRelays      = errors.New("relay: no relays configured")
	ErrRejected      = errors.New("relay: subscription rejected by every relay")
	ErrNotAccepted   = errors.New("relay: record not accepted by any relay")
	ErrConnClosed    = errors.New("relay: connection closed")
	ErrPublishDenied = errors.New("relay: publish denied")
)

// Source is the capability the engine consumes from the transport.
type Source interface {
	// Query streams records matching filter. The channel is closed once
	// every source has sent its stored records or ctx is done. A non-nil
	// error means the query could not be started anywhere.
	Query(ctx context.Context, filter nostr.Filter) (<-chan nostr.Event, error)

	// Publish sends a signed record to every source and returns nil once
	// at least one acknowledged it.
	Publish(ctx context.Context, event nostr.Event) error
}
