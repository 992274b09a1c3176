// Package packet frames command payloads for the transport. All integers are
// big-endian:
//
//	Send     = type:int16(1) payloadLen:int32 payload
//	Request  = type:int16(5) requestId:int32 payloadLen:int32 payload
//	Response = type:int16(6) requestId:int32 payloadLen:int32 payload
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const logPrefix = "packet:packet"

// Type identifies a frame.
type Type int16

const (
	TypeSend     Type = 1
	TypeRequest  Type = 5
	TypeResponse Type = 6
)

func (t Type) String() string {
	switch t {
	case TypeSend:
		return "SEND"
	case TypeRequest:
		return "REQUEST"
	case TypeResponse:
		return "RESPONSE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int16(t))
	}
}

// MaxPayloadLength bounds a single frame's payload.
const MaxPayloadLength = 16 * 1024 * 1024

var (
	// ErrTruncated means the frame ended before its declared length.
	ErrTruncated = errors.New("truncated packet")
	// ErrUnknownType means the frame type is not Send, Request or Response.
	ErrUnknownType = errors.New("unknown packet type")
	// ErrTooLarge means the declared payload length is negative or exceeds MaxPayloadLength.
	ErrTooLarge = errors.New("packet payload too large")
)

// Packet is one of Send, Request or Response.
type Packet interface {
	PacketType() Type
}

// Send carries a payload that expects no answer.
type Send struct {
	Payload []byte
}

// Request carries a payload that expects a Response with the same RequestID.
type Request struct {
	RequestID int32
	Payload   []byte
}

// Response answers the Request with the same RequestID.
type Response struct {
	RequestID int32
	Payload   []byte
}

func (Send) PacketType() Type     { return TypeSend }
func (Request) PacketType() Type  { return TypeRequest }
func (Response) PacketType() Type { return TypeResponse }

// Marshal returns the framed bytes of p. Payloads longer than MaxPayloadLength
// are rejected with ErrTooLarge, as Unmarshal would reject the frame.
func Marshal(p Packet) ([]byte, error) {
	if n := payloadLen(p); n > MaxPayloadLength {
		return nil, fmt.Errorf("%s - marshal %s payload of %d bytes: %w", logPrefix, p.PacketType(), n, ErrTooLarge)
	}
	switch v := p.(type) {
	case Send:
		buf := make([]byte, 6+len(v.Payload))
		binary.BigEndian.PutUint16(buf[0:2], uint16(TypeSend))
		binary.BigEndian.PutUint32(buf[2:6], uint32(len(v.Payload)))
		copy(buf[6:], v.Payload)
		return buf, nil
	case Request:
		return marshalCorrelated(TypeRequest, v.RequestID, v.Payload), nil
	case Response:
		return marshalCorrelated(TypeResponse, v.RequestID, v.Payload), nil
	default:
		return nil, fmt.Errorf("%s - marshal %T: %w", logPrefix, p, ErrUnknownType)
	}
}

func payloadLen(p Packet) int {
	switch v := p.(type) {
	case Send:
		return len(v.Payload)
	case Request:
		return len(v.Payload)
	case Response:
		return len(v.Payload)
	default:
		return 0
	}
}

func marshalCorrelated(t Type, requestID int32, payload []byte) []byte {
	buf := make([]byte, 10+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], uint16(t))
	binary.BigEndian.PutUint32(buf[2:6], uint32(requestID))
	binary.BigEndian.PutUint32(buf[6:10], uint32(len(payload)))
	copy(buf[10:], payload)
	return buf
}

// Unmarshal decodes exactly one frame from data. Bytes after the frame are an error.
func Unmarshal(data []byte) (Packet, error) {
	p, n, err := parse(data)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%s - %d trailing bytes after %s frame", logPrefix, len(data)-n, p.PacketType())
	}
	return p, nil
}

func parse(data []byte) (Packet, int, error) {
	if len(data) < 2 {
		return nil, 0, fmt.Errorf("%s - %d bytes, need 2 for the type: %w", logPrefix, len(data), ErrTruncated)
	}
	t := Type(int16(binary.BigEndian.Uint16(data[0:2])))

	switch t {
	case TypeSend:
		payload, n, err := readPayload(data, 2)
		if err != nil {
			return nil, 0, err
		}
		return Send{Payload: payload}, n, nil
	case TypeRequest, TypeResponse:
		if len(data) < 6 {
			return nil, 0, fmt.Errorf("%s - %s frame missing request id: %w", logPrefix, t, ErrTruncated)
		}
		id := int32(binary.BigEndian.Uint32(data[2:6]))
		payload, n, err := readPayload(data, 6)
		if err != nil {
			return nil, 0, err
		}
		if t == TypeRequest {
			return Request{RequestID: id, Payload: payload}, n, nil
		}
		return Response{RequestID: id, Payload: payload}, n, nil
	default:
		return nil, 0, fmt.Errorf("%s - %s: %w", logPrefix, t, ErrUnknownType)
	}
}

// readPayload reads the length-prefixed payload at off and returns a copy of it
// and the offset just past it.
func readPayload(data []byte, off int) ([]byte, int, error) {
	if len(data) < off+4 {
		return nil, 0, fmt.Errorf("%s - frame missing payload length: %w", logPrefix, ErrTruncated)
	}
	length := int32(binary.BigEndian.Uint32(data[off : off+4]))
	if length < 0 || length > MaxPayloadLength {
		return nil, 0, fmt.Errorf("%s - payload length %d: %w", logPrefix, length, ErrTooLarge)
	}
	start := off + 4
	end := start + int(length)
	if len(data) < end {
		return nil, 0, fmt.Errorf("%s - payload declares %d bytes, %d present: %w", logPrefix, length, len(data)-start, ErrTruncated)
	}
	payload := make([]byte, length)
	copy(payload, data[start:end])
	return payload, end, nil
}
