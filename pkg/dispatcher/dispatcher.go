package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/morezero/agent-command-receiver/pkg/codec"
	"github.com/morezero/agent-command-receiver/pkg/command"
	"github.com/morezero/agent-command-receiver/pkg/events"
	"github.com/morezero/agent-command-receiver/pkg/service"
)

const logPrefix = "dispatcher:dispatch"

// publishTimeout bounds how long a handled event may take to publish.
const publishTimeout = 5 * time.Second

// Dispatcher routes command requests to services. Its registries are read-only
// and each request borrows its own codec context, so HandleRequest and
// HandleSend are safe to call from many goroutines.
type Dispatcher struct {
	codecs         *codec.Pool
	services       *service.Registry
	handlerTimeout time.Duration
	inFlight       *semaphore.Weighted
	publisher      events.EventPublisher
	agentID        string
}

// New creates a Dispatcher from a configuration returned by NewConfig.
func New(cfg Config) *Dispatcher {
	if cfg.serviceReg == nil {
		panic("dispatcher.New: configuration was not created by NewConfig")
	}
	d := &Dispatcher{
		codecs:         codec.NewPool(cfg.format, cfg.typeRegistry, cfg.maxPayloadSize),
		services:       cfg.serviceReg,
		handlerTimeout: cfg.handlerTimeout,
		publisher:      cfg.publisher,
		agentID:        cfg.agentID,
	}
	if cfg.maxInFlight > 0 {
		d.inFlight = semaphore.NewWeighted(cfg.maxInFlight)
	}
	return d
}

// Build validates opts and creates a Dispatcher.
func Build(opts ...Option) (*Dispatcher, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	return New(cfg), nil
}

// HandleSend observes a fire-and-forget message. Nothing is decoded, invoked or written.
func (d *Dispatcher) HandleSend(_ context.Context, env SendEnvelope, conn Conn) {
	slog.Info(fmt.Sprintf("%s - MessageReceive send payload=%dB remote=%s", logPrefix, len(env.Payload), conn.RemoteAddr()))
}

// HandleRequest answers one request. The peer always receives a response
// correlated by RequestID, unless the response cannot be encoded or written;
// both of those are logged and reported as events.
func (d *Dispatcher) HandleRequest(ctx context.Context, env RequestEnvelope, conn Conn) {
	start := time.Now()
	slog.Info(fmt.Sprintf("%s - MessageReceive request id=%d payload=%dB remote=%s", logPrefix, env.RequestID, len(env.Payload), conn.RemoteAddr()))

	c := d.codecs.Acquire()
	defer d.codecs.Release(c)

	response, typ, outcome := d.respond(ctx, c, env)

	payload, err := c.Encode(response)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - dropping response to request %d (%s): %v", logPrefix, env.RequestID, typ, err))
		d.publish(ctx, env, typ, events.OutcomeEncodeFailed, start, err)
		return
	}

	if err := conn.Write(ResponseEnvelope{RequestID: env.RequestID, Payload: payload}); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to write response to request %d on %s: %v", logPrefix, env.RequestID, conn.RemoteAddr(), err))
		d.publish(ctx, env, typ, events.OutcomeWriteFailed, start, err)
		return
	}
	d.publish(ctx, env, typ, outcome, start, nil)
}

// respond produces the response message for env, substituting a failed Result
// when the request cannot be decoded, routed, or answered in time.
func (d *Dispatcher) respond(ctx context.Context, c *codec.Context, env RequestEnvelope) (command.Message, command.Type, events.Outcome) {
	msg, err := c.Decode(env.Payload)
	if err != nil || msg == nil {
		slog.Warn(fmt.Sprintf("%s - request %d: %v", logPrefix, env.RequestID, err))
		return command.NewFailure(command.MessageUnsupportedType), command.TypeUnknown, events.OutcomeUnsupportedType
	}
	typ := msg.CommandType()

	svc, ok := d.services.Lookup(msg)
	if !ok {
		slog.Warn(fmt.Sprintf("%s - request %d: no service bound to %s", logPrefix, env.RequestID, typ))
		return command.NewFailure(command.MessageUnsupportedListener), typ, events.OutcomeUnsupportedListener
	}

	resp, ok := d.invoke(ctx, svc, msg)
	if !ok {
		slog.Warn(fmt.Sprintf("%s - request %d: %s service did not answer in time", logPrefix, env.RequestID, typ))
		return command.NewFailure(command.MessageRequestTimeout), typ, events.OutcomeTimeout
	}
	return resp, typ, events.OutcomeOK
}

// invoke calls svc. With neither a timeout nor an in-flight bound configured the
// call is synchronous. Otherwise the call runs under the deadline and ok is false
// when the deadline passes first; a slot in the in-flight bound is held until the
// service actually returns.
func (d *Dispatcher) invoke(ctx context.Context, svc service.Service, msg command.Message) (command.Message, bool) {
	if d.handlerTimeout <= 0 && d.inFlight == nil {
		return safeInvoke(ctx, svc, msg), true
	}

	if d.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.handlerTimeout)
		defer cancel()
	}

	release := func() {}
	if d.inFlight != nil {
		if err := d.inFlight.Acquire(ctx, 1); err != nil {
			return nil, false
		}
		release = func() { d.inFlight.Release(1) }
	}

	if d.handlerTimeout <= 0 {
		defer release()
		return safeInvoke(ctx, svc, msg), true
	}

	done := make(chan command.Message, 1)
	go func() {
		defer release()
		done <- safeInvoke(ctx, svc, msg)
	}()

	select {
	case resp := <-done:
		return resp, true
	case <-ctx.Done():
		return nil, false
	}
}

// safeInvoke converts a panicking service into a nil response, which is then
// dropped as unencodable.
func safeInvoke(ctx context.Context, svc service.Service, msg command.Message) (resp command.Message) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - %T panicked on %s: %v", logPrefix, svc, msg.CommandType(), r))
			resp = nil
		}
	}()
	return svc.Invoke(ctx, msg)
}

func (d *Dispatcher) publish(ctx context.Context, env RequestEnvelope, typ command.Type, outcome events.Outcome, start time.Time, cause error) {
	event := &events.CommandHandledEvent{
		ID:          uuid.NewString(),
		AgentID:     d.agentID,
		RequestID:   env.RequestID,
		CommandType: uint16(typ),
		CommandName: typ.String(),
		Outcome:     outcome,
		DurationMs:  time.Since(start).Milliseconds(),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	if cause != nil {
		event.Error = cause.Error()
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := d.publisher.PublishHandled(pubCtx, event); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to publish handled event for request %d: %v", logPrefix, env.RequestID, err))
	}
}

// ProtocolVersion returns the protocol version requests are decoded with.
func (d *Dispatcher) ProtocolVersion() command.ProtocolVersion {
	return d.codecs.Registry().Version()
}

// SupportedTypes returns the type codes the dispatcher can decode.
func (d *Dispatcher) SupportedTypes() []command.Type {
	return d.codecs.Registry().Types()
}

// BoundTypes returns the type codes that have a service.
func (d *Dispatcher) BoundTypes() []command.Type {
	return d.services.Types()
}
