package codec

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/morezero/agent-command-receiver/pkg/command"
)

const codecTestPrefix = "codec:codec_test"

func newTestContext(format Format) *Context {
	return NewContext(format, command.NewTypeRegistry(command.Version1_0_3), 64*1024)
}

func TestContext_RoundTrip(t *testing.T) {
	messages := []command.Message{
		&command.Echo{Message: "ping"},
		&command.Result{Success: false, Message: command.MessageUnsupportedType},
		&command.Transfer{ApplicationName: "shop", AgentID: "agent-1", StartTime: 1700000000000, Payload: []byte{0xEF, 0x10, 0x02, 0xC6}},
		&command.ThreadDump{Type: command.ThreadDumpPending, Name: []string{"main"}, PendingTimeMillis: 500},
		&command.ThreadDumpResponse{Threads: []command.ThreadInfo{
			{ID: 1, Name: "main", State: "running", Frames: []string{"main.main()"}},
			{ID: 7, Name: "worker", State: "chan receive", WaitMillis: 60000},
		}},
	}

	for _, format := range []Format{CBOR(), JSON()} {
		for _, msg := range messages {
			t.Run(fmt.Sprintf("%s/%s", format.Name(), msg.CommandType()), func(t *testing.T) {
				c := newTestContext(format)
				data, err := c.Encode(msg)
				if err != nil {
					t.Fatalf("%s - Encode failed: %v", codecTestPrefix, err)
				}
				if data[0] != Signature || data[1] != HeaderVersion {
					t.Errorf("%s - header = % x, want ef 10 ..", codecTestPrefix, data[:2])
				}

				got, err := c.Decode(data)
				if err != nil {
					t.Fatalf("%s - Decode failed: %v", codecTestPrefix, err)
				}
				if !reflect.DeepEqual(got, msg) {
					t.Errorf("%s - round trip = %#v, want %#v", codecTestPrefix, got, msg)
				}
			})
		}
	}
}

func TestContext_EncodeIsDeterministic(t *testing.T) {
	c := newTestContext(CBOR())
	msg := &command.Echo{Message: "same"}
	a, err := c.Encode(msg)
	if err != nil {
		t.Fatalf("%s - Encode failed: %v", codecTestPrefix, err)
	}
	b, err := c.Encode(msg)
	if err != nil {
		t.Fatalf("%s - Encode failed: %v", codecTestPrefix, err)
	}
	if string(a) != string(b) {
		t.Errorf("%s - encodings differ: % x vs % x", codecTestPrefix, a, b)
	}
}

func TestContext_EncodeReturnsCallerOwnedBytes(t *testing.T) {
	c := newTestContext(CBOR())
	first, err := c.Encode(&command.Echo{Message: "first"})
	if err != nil {
		t.Fatalf("%s - Encode failed: %v", codecTestPrefix, err)
	}
	snapshot := string(first)
	if _, err := c.Encode(&command.Echo{Message: "second, and longer"}); err != nil {
		t.Fatalf("%s - Encode failed: %v", codecTestPrefix, err)
	}
	if string(first) != snapshot {
		t.Errorf("%s - earlier result was overwritten by buffer reuse", codecTestPrefix)
	}
}

func TestContext_DecodeErrors(t *testing.T) {
	c := newTestContext(CBOR())
	valid, err := c.Encode(&command.Echo{Message: "ok"})
	if err != nil {
		t.Fatalf("%s - Encode failed: %v", codecTestPrefix, err)
	}

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"nil", nil, ErrInvalidHeader},
		{"short", []byte{0xEF, 0x10}, ErrInvalidHeader},
		{"bad signature", []byte{0x00, 0x10, 0x02, 0xC6}, ErrInvalidHeader},
		{"bad header version", []byte{0xEF, 0x11, 0x02, 0xC6}, ErrInvalidHeader},
		{"unknown type", []byte{0xEF, 0x10, 0x27, 0x0F, 0xA0}, ErrUnsupportedType},
		{"truncated body", valid[:len(valid)-1], ErrMalformedBody},
		{"garbage body", append([]byte{0xEF, 0x10, 0x02, 0xC6}, 0xFF, 0xFF), ErrMalformedBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := c.Decode(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("%s - Decode error = %v, want %v", codecTestPrefix, err, tt.wantErr)
			}
			if msg != nil {
				t.Errorf("%s - expected nil message on error, got %#v", codecTestPrefix, msg)
			}
		})
	}
}

func TestContext_DecodeUnknownToOlderProtocol(t *testing.T) {
	newer := NewContext(CBOR(), command.NewTypeRegistry(command.Version1_0_3), 1024)
	older := NewContext(CBOR(), command.NewTypeRegistry(command.Version1_0_2), 1024)

	data, err := newer.Encode(&command.ThreadDump{})
	if err != nil {
		t.Fatalf("%s - Encode failed: %v", codecTestPrefix, err)
	}
	if _, err := older.Decode(data); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("%s - older protocol Decode error = %v, want ErrUnsupportedType", codecTestPrefix, err)
	}
	if _, err := older.Encode(&command.ThreadDumpResponse{}); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("%s - older protocol Encode error = %v, want ErrUnsupportedType", codecTestPrefix, err)
	}
}

func TestContext_EncodePayloadTooLarge(t *testing.T) {
	c := NewContext(JSON(), command.NewTypeRegistry(command.Version1_0_3), 32)
	_, err := c.Encode(&command.Echo{Message: strings.Repeat("x", 64)})
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("%s - Encode error = %v, want ErrPayloadTooLarge", codecTestPrefix, err)
	}
	if _, err := c.Encode(&command.Echo{Message: "ok"}); err != nil {
		t.Errorf("%s - small message after oversize failure: %v", codecTestPrefix, err)
	}
}

func TestFormatByName(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"cbor", FormatCBOR, false},
		{"CBOR", FormatCBOR, false},
		{" json ", FormatJSON, false},
		{"thrift", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		f, err := FormatByName(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s - FormatByName(%q) expected error", codecTestPrefix, tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s - FormatByName(%q) unexpected error: %v", codecTestPrefix, tt.input, err)
			continue
		}
		if f.Name() != tt.want {
			t.Errorf("%s - FormatByName(%q).Name() = %q, want %q", codecTestPrefix, tt.input, f.Name(), tt.want)
		}
	}
}

func TestPool_AcquireIsExclusive(t *testing.T) {
	p := NewPool(CBOR(), command.NewTypeRegistry(command.Version1_0_3), 1024)
	a := p.Acquire()
	b := p.Acquire()
	if a == b {
		t.Fatalf("%s - two outstanding acquisitions returned the same context", codecTestPrefix)
	}
	p.Release(a)
	p.Release(b)
	p.Release(nil)
}

func TestPool_ConcurrentEncodeDecode(t *testing.T) {
	p := NewPool(CBOR(), command.NewTypeRegistry(command.Version1_0_3), 64*1024)

	const workers = 32
	const iterations = 200

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				want := fmt.Sprintf("worker-%d-iteration-%d", w, i)
				c := p.Acquire()
				data, err := c.Encode(&command.Echo{Message: want})
				if err != nil {
					p.Release(c)
					errs <- err
					return
				}
				msg, err := c.Decode(data)
				p.Release(c)
				if err != nil {
					errs <- err
					return
				}
				if got := msg.(*command.Echo).Message; got != want {
					errs <- fmt.Errorf("got %q, want %q", got, want)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("%s - concurrent round trip: %v", codecTestPrefix, err)
	}
}
