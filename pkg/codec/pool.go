package codec

import (
	"bytes"
	"sync"

	"github.com/morezero/agent-command-receiver/pkg/command"
)

// Pool hands out Contexts bound to one format and one type registry. Contexts are
// created lazily and recycled, so concurrent requests never share a buffer while
// sequential requests on the same goroutine reuse one.
type Pool struct {
	format   Format
	registry *command.TypeRegistry
	maxSize  int
	contexts sync.Pool
}

// NewPool returns a pool of contexts. maxSize bounds encoded payloads in bytes.
func NewPool(format Format, registry *command.TypeRegistry, maxSize int) *Pool {
	p := &Pool{format: format, registry: registry, maxSize: maxSize}
	p.contexts.New = func() any {
		return NewContext(p.format, p.registry, p.maxSize)
	}
	return p
}

// Acquire returns a context owned exclusively by the caller until Release.
func (p *Pool) Acquire() *Context {
	return p.contexts.Get().(*Context)
}

// Release returns c to the pool. c must not be used afterwards.
func (p *Pool) Release(c *Context) {
	if c == nil {
		return
	}
	// Drop buffers that grew far past the limit so one huge response is not pinned.
	if c.buf.Cap() > 2*p.maxSize {
		c.buf = bytes.Buffer{}
	}
	p.contexts.Put(c)
}

// Registry returns the type registry the pool's contexts resolve against.
func (p *Pool) Registry() *command.TypeRegistry {
	return p.registry
}

// MaxSize returns the encoded payload limit in bytes.
func (p *Pool) MaxSize() int {
	return p.maxSize
}
