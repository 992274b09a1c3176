package events

import (
	"context"
	"errors"
)

// EventPublisher is the interface for publishing command-handled events.
type EventPublisher interface {
	PublishHandled(ctx context.Context, event *CommandHandledEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing.
type NoOpPublisher struct{}

// PublishHandled is a no-op.
func (p *NoOpPublisher) PublishHandled(_ context.Context, _ *CommandHandledEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *CommandHandledEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *CommandHandledEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishHandled calls the callback.
func (p *CallbackPublisher) PublishHandled(ctx context.Context, event *CommandHandledEvent) error {
	return p.callback(ctx, event)
}

// MultiPublisher fans an event out to several publishers. Every publisher is
// called even if an earlier one fails; the errors are joined.
type MultiPublisher []EventPublisher

// PublishHandled publishes to every non-nil publisher.
func (m MultiPublisher) PublishHandled(ctx context.Context, event *CommandHandledEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.PublishHandled(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
