// Package dispatcher answers command requests arriving from the control plane:
// decode, route to a service, encode the response and reply on the connection.
package dispatcher

// RequestEnvelope is an inbound request. RequestID correlates the response.
type RequestEnvelope struct {
	RequestID int32
	Payload   []byte
}

// SendEnvelope is an inbound fire-and-forget message.
type SendEnvelope struct {
	Payload []byte
}

// ResponseEnvelope is the reply to a RequestEnvelope. RequestID is always the
// RequestID of the request that produced it.
type ResponseEnvelope struct {
	RequestID int32
	Payload   []byte
}

// Conn is the connection a request arrived on.
type Conn interface {
	Write(resp ResponseEnvelope) error
	RemoteAddr() string
}
