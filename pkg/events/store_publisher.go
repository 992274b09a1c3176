package events

import (
	"context"
	"fmt"
)

const storePublisherLogPrefix = "events:store_publisher"

// EventStore persists command-handled events.
type EventStore interface {
	InsertHandledEvent(ctx context.Context, event *CommandHandledEvent) error
}

// StorePublisher writes events to an EventStore, giving an audit trail of the
// commands an agent has answered.
type StorePublisher struct {
	store EventStore
}

// NewStorePublisher creates a new StorePublisher.
func NewStorePublisher(store EventStore) *StorePublisher {
	return &StorePublisher{store: store}
}

// PublishHandled stores the event.
func (p *StorePublisher) PublishHandled(ctx context.Context, event *CommandHandledEvent) error {
	if err := p.store.InsertHandledEvent(ctx, event); err != nil {
		return fmt.Errorf("%s - failed to store event %s: %w", storePublisherLogPrefix, event.ID, err)
	}
	return nil
}
