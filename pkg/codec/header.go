package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/morezero/agent-command-receiver/pkg/command"
)

// Wire header layout: signature, header version, big-endian type code.
const (
	Signature     byte = 0xEF
	HeaderVersion byte = 0x10
	HeaderSize         = 4
)

func writeHeader(buf *bytes.Buffer, t command.Type) {
	var h [HeaderSize]byte
	h[0] = Signature
	h[1] = HeaderVersion
	binary.BigEndian.PutUint16(h[2:], uint16(t))
	buf.Write(h[:])
}

func readHeader(data []byte) (command.Type, error) {
	if len(data) < HeaderSize {
		return command.TypeUnknown, fmt.Errorf("%w: %d bytes, need %d", ErrInvalidHeader, len(data), HeaderSize)
	}
	if data[0] != Signature {
		return command.TypeUnknown, fmt.Errorf("%w: signature 0x%02x", ErrInvalidHeader, data[0])
	}
	if data[1] != HeaderVersion {
		return command.TypeUnknown, fmt.Errorf("%w: header version 0x%02x", ErrInvalidHeader, data[1])
	}
	return command.Type(binary.BigEndian.Uint16(data[2:HeaderSize])), nil
}
