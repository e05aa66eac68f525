package relay

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
)

// Relay is the subset of relay operations the daemon needs.
// *nostr.Relay satisfies it directly.
type Relay interface {
	QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
	Subscribe(ctx context.Context, filters nostr.Filters, opts ...nostr.SubscriptionOption) (*nostr.Subscription, error)
	Publish(ctx context.Context, event nostr.Event) error
	Close() error
}

// Connector opens a relay connection.
type Connector func(ctx context.Context, url string) (Relay, error)

// Connect dials url with nostr.RelayConnect.
func Connect(ctx context.Context, url string) (Relay, error) {
	r, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	return r, nil
}
