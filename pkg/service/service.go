// Package service binds command types to the services that answer them.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/morezero/agent-command-receiver/pkg/command"
)

const logPrefix = "service:registry"

var (
	// ErrNilService is returned when a nil service is registered.
	ErrNilService = errors.New("nil service")
	// ErrUnknownAcceptType is returned when a service does not declare the type it accepts.
	ErrUnknownAcceptType = errors.New("service does not declare an accepted command type")
	// ErrDuplicateService is returned when two services accept the same command type.
	ErrDuplicateService = errors.New("duplicate service for command type")
)

// Service answers one command type. Invoke may block; it returns the response
// message to send back, which may itself describe a failure.
type Service interface {
	Accepts() command.Type
	Invoke(ctx context.Context, msg command.Message) command.Message
}

// Registry maps command types to services. It is built once and read-only
// afterwards, so lookups need no locking.
type Registry struct {
	services map[command.Type]Service
}

// NewRegistry registers services in order. It fails on a nil service, a service
// whose accepted type is TypeUnknown, or a second service for an already bound type.
func NewRegistry(services ...Service) (*Registry, error) {
	r := &Registry{services: make(map[command.Type]Service, len(services))}
	for i, svc := range services {
		if svc == nil {
			return nil, fmt.Errorf("%s - service %d: %w", logPrefix, i, ErrNilService)
		}
		t := svc.Accepts()
		if t == command.TypeUnknown {
			return nil, fmt.Errorf("%s - service %d (%T): %w", logPrefix, i, svc, ErrUnknownAcceptType)
		}
		if existing, ok := r.services[t]; ok {
			return nil, fmt.Errorf("%s - %s already bound to %T, cannot bind %T: %w", logPrefix, t, existing, svc, ErrDuplicateService)
		}
		r.services[t] = svc
	}
	return r, nil
}

// Lookup returns the service bound to msg's type.
func (r *Registry) Lookup(msg command.Message) (Service, bool) {
	if msg == nil {
		return nil, false
	}
	svc, ok := r.services[msg.CommandType()]
	return svc, ok
}

// Types returns the bound command types in ascending order.
func (r *Registry) Types() []command.Type {
	types := make([]command.Type, 0, len(r.services))
	for t := range r.services {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Len returns the number of bound services.
func (r *Registry) Len() int {
	return len(r.services)
}
