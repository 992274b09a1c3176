// Package transport carries command packets over COMMS (NATS). The agent side
// is a Listener that feeds framed packets to the dispatcher; the control-plane
// side is a Client.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/agent-command-receiver/pkg/dispatcher"
	"github.com/morezero/agent-command-receiver/pkg/packet"
)

const logPrefix = "transport:listener"

// ErrNoReplySubject is returned when a response is written for a request that
// arrived without a reply subject.
var ErrNoReplySubject = errors.New("request has no reply subject")

// Handler receives decoded transport packets. *dispatcher.Dispatcher implements it.
type Handler interface {
	HandleRequest(ctx context.Context, env dispatcher.RequestEnvelope, conn dispatcher.Conn)
	HandleSend(ctx context.Context, env dispatcher.SendEnvelope, conn dispatcher.Conn)
}

// Listener subscribes to a command subject and hands every packet to a Handler
// on its own goroutine.
type Listener struct {
	nc      *comms.Conn
	subject string
	handler Handler

	mu     sync.Mutex
	sub    *comms.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
	wg     sync.WaitGroup
}

// NewListener creates a listener for subject. Call Start to subscribe.
func NewListener(nc *comms.Conn, subject string, handler Handler) *Listener {
	return &Listener{nc: nc, subject: subject, handler: handler}
}

// Subject returns the subscribed subject.
func (l *Listener) Subject() string {
	return l.subject
}

// Start subscribes to the subject. Handlers run with a context derived from ctx
// that is cancelled by Close.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub != nil || l.closed {
		return fmt.Errorf("%s - listener on %s already started", logPrefix, l.subject)
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	sub, err := l.nc.Subscribe(l.subject, l.receive)
	if err != nil {
		l.cancel()
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, l.subject, err)
	}
	l.sub = sub
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, l.subject))
	return nil
}

// Close unsubscribes, waits for in-flight handlers and then cancels their context.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	sub := l.sub
	l.mu.Unlock()

	var err error
	if sub != nil {
		if uerr := sub.Unsubscribe(); uerr != nil && !errors.Is(uerr, comms.ErrConnectionClosed) {
			err = fmt.Errorf("%s - failed to unsubscribe from %s: %w", logPrefix, l.subject, uerr)
		}
	}
	l.wg.Wait()
	if l.cancel != nil {
		l.cancel()
	}
	slog.Info(fmt.Sprintf("%s - Stopped listening on %s", logPrefix, l.subject))
	return err
}

func (l *Listener) receive(msg *comms.Msg) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.wg.Add(1)
	ctx := l.ctx
	l.mu.Unlock()

	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error(fmt.Sprintf("%s - handler panicked on %s: %v", logPrefix, msg.Subject, r))
			}
		}()
		l.dispatch(ctx, msg)
	}()
}

func (l *Listener) dispatch(ctx context.Context, msg *comms.Msg) {
	p, err := packet.Unmarshal(msg.Data)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping unreadable packet on %s: %v", logPrefix, msg.Subject, err))
		return
	}

	conn := &replyConn{msg: msg}
	switch v := p.(type) {
	case packet.Request:
		l.handler.HandleRequest(ctx, dispatcher.RequestEnvelope{RequestID: v.RequestID, Payload: v.Payload}, conn)
	case packet.Send:
		l.handler.HandleSend(ctx, dispatcher.SendEnvelope{Payload: v.Payload}, conn)
	default:
		slog.Warn(fmt.Sprintf("%s - ignoring %s packet on %s", logPrefix, p.PacketType(), msg.Subject))
	}
}

// replyConn answers a single COMMS message on its reply subject.
type replyConn struct {
	msg *comms.Msg
}

func (c *replyConn) Write(resp dispatcher.ResponseEnvelope) error {
	if c.msg.Reply == "" {
		return ErrNoReplySubject
	}
	data, err := packet.Marshal(packet.Response{RequestID: resp.RequestID, Payload: resp.Payload})
	if err != nil {
		return err
	}
	if err := c.msg.Respond(data); err != nil {
		return fmt.Errorf("%s - respond on %s: %w", logPrefix, c.msg.Reply, err)
	}
	return nil
}

func (c *replyConn) RemoteAddr() string {
	if c.msg.Reply == "" {
		return c.msg.Subject
	}
	return c.msg.Reply
}
