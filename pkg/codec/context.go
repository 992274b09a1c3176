package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/morezero/agent-command-receiver/pkg/command"
)

const logPrefix = "codec:context"

var (
	// ErrUnsupportedType means the type code (or message kind) is unknown to the
	// protocol version of the registry.
	ErrUnsupportedType = errors.New("unsupported command type")
	// ErrInvalidHeader means the payload does not start with a valid wire header.
	ErrInvalidHeader = errors.New("invalid wire header")
	// ErrMalformedBody means the body could not be encoded or decoded in the wire format.
	ErrMalformedBody = errors.New("malformed body")
	// ErrPayloadTooLarge means the encoded payload exceeds the configured limit.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Context owns the working buffer for encoding and decoding command messages.
// A Context must not be used by more than one goroutine at a time; obtain one
// per request from a Pool.
type Context struct {
	format   Format
	registry *command.TypeRegistry
	maxSize  int
	buf      bytes.Buffer
}

// NewContext returns a standalone context. Most callers should use a Pool.
func NewContext(format Format, registry *command.TypeRegistry, maxSize int) *Context {
	return &Context{format: format, registry: registry, maxSize: maxSize}
}

// Encode serializes msg as header + body. The returned slice is owned by the caller.
func (c *Context) Encode(msg command.Message) ([]byte, error) {
	t, ok := c.registry.TypeOf(msg)
	if !ok {
		return nil, fmt.Errorf("%s - encode %T for protocol %s: %w", logPrefix, msg, c.registry.Version(), ErrUnsupportedType)
	}

	c.buf.Reset()
	writeHeader(&c.buf, t)
	if err := c.format.Encode(&c.buf, msg); err != nil {
		return nil, fmt.Errorf("%s - encode %s body as %s: %w: %v", logPrefix, t, c.format.Name(), ErrMalformedBody, err)
	}
	if c.buf.Len() > c.maxSize {
		return nil, fmt.Errorf("%s - encode %s: %d bytes exceeds limit %d: %w", logPrefix, t, c.buf.Len(), c.maxSize, ErrPayloadTooLarge)
	}

	out := make([]byte, c.buf.Len())
	copy(out, c.buf.Bytes())
	return out, nil
}

// Decode reads the header, resolves the type code through the registry and
// decodes the body into a fresh message of that type.
func (c *Context) Decode(data []byte) (command.Message, error) {
	t, err := readHeader(data)
	if err != nil {
		return nil, fmt.Errorf("%s - decode: %w", logPrefix, err)
	}
	d, ok := c.registry.Resolve(t)
	if !ok {
		return nil, fmt.Errorf("%s - decode %s for protocol %s: %w", logPrefix, t, c.registry.Version(), ErrUnsupportedType)
	}

	msg := d.New()
	if err := c.format.Unmarshal(data[HeaderSize:], msg); err != nil {
		return nil, fmt.Errorf("%s - decode %s body as %s: %w: %v", logPrefix, t, c.format.Name(), ErrMalformedBody, err)
	}
	return msg, nil
}

// Format returns the body format of the context.
func (c *Context) Format() Format {
	return c.format
}
