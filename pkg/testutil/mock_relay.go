package testutil

import (
	"context"
	"sync"

	"github.com/nbd-wtf/go-nostr"
)

// MockRelay implements relay.Relay for tests. Subscribe streams SubscribeEvents
// then EOSE; the event channel closes afterwards unless HoldOpen is set, in
// which case it stays open until the subscription context ends.
type MockRelay struct {
	mu sync.Mutex

	QuerySyncReturn []*nostr.Event
	QuerySyncError  error
	SubscribeEvents []*nostr.Event
	SubscribeReturn *nostr.Subscription
	SubscribeError  error
	PublishError    error
	CloseError      error
	HoldOpen        bool

	QuerySyncCalls []nostr.Filter
	SubscribeCalls []nostr.Filters
	PublishCalls   []nostr.Event
	CloseCalled    bool
}

func (m *MockRelay) QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QuerySyncCalls = append(m.QuerySyncCalls, filter)
	return m.QuerySyncReturn, m.QuerySyncError
}

func (m *MockRelay) Subscribe(ctx context.Context, filters nostr.Filters, opts ...nostr.SubscriptionOption) (*nostr.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SubscribeCalls = append(m.SubscribeCalls, filters)
	if m.SubscribeError != nil {
		return nil, m.SubscribeError
	}
	if m.SubscribeReturn != nil {
		return m.SubscribeReturn, nil
	}

	events := make(chan *nostr.Event, len(m.SubscribeEvents))
	eose := make(chan struct{}, 1)
	closed := make(chan string, 1)

	sub := &nostr.Subscription{
		Events:            events,
		EndOfStoredEvents: eose,
		ClosedReason:      closed,
	}

	stream := append([]*nostr.Event(nil), m.SubscribeEvents...)
	holdOpen := m.HoldOpen
	go func() {
		defer close(events)
		for _, event := range stream {
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
		select {
		case eose <- struct{}{}:
		case <-ctx.Done():
			return
		}
		if holdOpen {
			<-ctx.Done()
		}
	}()

	return sub, nil
}

func (m *MockRelay) Publish(ctx context.Context, event nostr.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishCalls = append(m.PublishCalls, event)
	return m.PublishError
}

func (m *MockRelay) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalled = true
	return m.CloseError
}

// SetPublishError swaps the publish error while the relay is in use.
func (m *MockRelay) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishError = err
}

func (m *MockRelay) Published() []nostr.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]nostr.Event, len(m.PublishCalls))
	copy(out, m.PublishCalls)
	return out
}

func (m *MockRelay) SubscribeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SubscribeCalls)
}

func (m *MockRelay) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CloseCalled
}
