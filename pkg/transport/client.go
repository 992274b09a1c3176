package transport

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/agent-command-receiver/pkg/packet"
)

const clientLogPrefix = "transport:client"

// ErrMismatchedResponse is returned when a reply is not the Response to the
// request that was sent.
var ErrMismatchedResponse = errors.New("response does not match request")

// Client sends command packets to agents.
type Client struct {
	nc     *comms.Conn
	nextID atomic.Int32
}

// NewClient wraps an established connection.
func NewClient(nc *comms.Conn) *Client {
	return &Client{nc: nc}
}

// NextRequestID returns a request id unique for this client until it wraps.
func (c *Client) NextRequestID() int32 {
	return c.nextID.Add(1)
}

// Request frames payload as a Request, waits for the agent's Response and
// returns its payload. ctx must carry a deadline or be cancellable.
func (c *Client) Request(ctx context.Context, subject string, requestID int32, payload []byte) ([]byte, error) {
	data, err := packet.Marshal(packet.Request{RequestID: requestID, Payload: payload})
	if err != nil {
		return nil, err
	}

	reply, err := c.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, fmt.Errorf("%s - request %d on %s: %w", clientLogPrefix, requestID, subject, err)
	}

	p, err := packet.Unmarshal(reply.Data)
	if err != nil {
		return nil, fmt.Errorf("%s - request %d on %s: %w", clientLogPrefix, requestID, subject, err)
	}
	resp, ok := p.(packet.Response)
	if !ok {
		return nil, fmt.Errorf("%s - request %d answered with %s: %w", clientLogPrefix, requestID, p.PacketType(), ErrMismatchedResponse)
	}
	if resp.RequestID != requestID {
		return nil, fmt.Errorf("%s - request %d answered for %d: %w", clientLogPrefix, requestID, resp.RequestID, ErrMismatchedResponse)
	}
	return resp.Payload, nil
}

// Send frames payload as a Send and publishes it without waiting for an answer.
func (c *Client) Send(subject string, payload []byte) error {
	data, err := packet.Marshal(packet.Send{Payload: payload})
	if err != nil {
		return err
	}
	if err := c.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("%s - send on %s: %w", clientLogPrefix, subject, err)
	}
	return nil
}
