// Package codec encodes command messages to wire payloads and back: a fixed header
// carrying the type code, followed by a body in a pluggable wire format.
package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Format is a body encoding. Implementations must be safe for concurrent use;
// per-call state lives in Context.
type Format interface {
	Name() string
	Encode(w io.Writer, v any) error
	Unmarshal(data []byte, v any) error
}

// Format names accepted by FormatByName.
const (
	FormatCBOR = "cbor"
	FormatJSON = "json"
)

type cborFormat struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

var defaultCBOR Format

func init() {
	// Core Deterministic Encoding: the same message always yields the same bytes.
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
	defaultCBOR = cborFormat{enc: enc, dec: dec}
}

// CBOR returns the CBOR body format. Struct fields are keyed by their json tags.
func CBOR() Format { return defaultCBOR }

func (cborFormat) Name() string { return FormatCBOR }

func (f cborFormat) Encode(w io.Writer, v any) error { return f.enc.NewEncoder(w).Encode(v) }

func (f cborFormat) Unmarshal(data []byte, v any) error { return f.dec.Unmarshal(data, v) }

type jsonFormat struct{}

// JSON returns the JSON body format.
func JSON() Format { return jsonFormat{} }

func (jsonFormat) Name() string { return FormatJSON }

func (jsonFormat) Encode(w io.Writer, v any) error { return json.NewEncoder(w).Encode(v) }

func (jsonFormat) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// FormatByName returns the format registered under name (case-insensitive).
func FormatByName(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case FormatCBOR:
		return CBOR(), nil
	case FormatJSON:
		return JSON(), nil
	default:
		return nil, fmt.Errorf("codec:format - unknown wire format %q", name)
	}
}
