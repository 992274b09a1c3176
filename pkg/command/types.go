// Package command defines the typed, versioned command messages exchanged between
// the control plane and the agent, and the registry that maps wire type codes to them.
package command

import "fmt"

// Type is the wire-level type code of a command message.
type Type uint16

// Type codes. Values are part of the wire contract with the control plane.
const (
	TypeUnknown            Type = 0
	TypeResult             Type = 320
	TypeTransfer           Type = 700
	TypeEcho               Type = 710
	TypeThreadDump         Type = 720
	TypeThreadDumpResponse Type = 721
)

var typeNames = map[Type]string{
	TypeResult:             "RESULT",
	TypeTransfer:           "TRANSFER",
	TypeEcho:               "ECHO",
	TypeThreadDump:         "THREAD_DUMP",
	TypeThreadDumpResponse: "THREAD_DUMP_RESPONSE",
}

// String returns the symbolic name of t, or UNKNOWN(n) for codes without one.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
}

// Message is implemented by every command message.
type Message interface {
	CommandType() Type
}

// Result is the generic success/message response. The dispatcher uses it as the
// fallback answer when it cannot route a request itself.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func (*Result) CommandType() Type { return TypeResult }

// Fallback messages written by the dispatcher.
const (
	MessageUnsupportedType     = "Unsupported Type."
	MessageUnsupportedListener = "Unsupported Listener."
	MessageRequestTimeout      = "Request Timeout."
)

// NewFailure returns a Result with Success=false and the given message.
func NewFailure(message string) *Result {
	return &Result{Success: false, Message: message}
}

// Transfer wraps an encoded command addressed to a specific agent instance.
type Transfer struct {
	ApplicationName string `json:"applicationName"`
	AgentID         string `json:"agentId"`
	StartTime       int64  `json:"startTime"`
	Payload         []byte `json:"payload"`
}

func (*Transfer) CommandType() Type { return TypeTransfer }

// Echo carries a message that the agent returns unchanged.
type Echo struct {
	Message string `json:"message"`
}

func (*Echo) CommandType() Type { return TypeEcho }

// ThreadDumpType selects which goroutines a ThreadDump request targets.
type ThreadDumpType int32

const (
	// ThreadDumpTarget dumps the goroutines whose names are listed in ThreadDump.Name,
	// or all goroutines when the list is empty.
	ThreadDumpTarget ThreadDumpType = 0
	// ThreadDumpPending dumps goroutines blocked for at least PendingTimeMillis.
	ThreadDumpPending ThreadDumpType = 1
)

// ThreadDump requests a dump of the agent's goroutines.
type ThreadDump struct {
	Type              ThreadDumpType `json:"type"`
	Name              []string       `json:"name,omitempty"`
	PendingTimeMillis int64          `json:"pendingTimeMillis,omitempty"`
}

func (*ThreadDump) CommandType() Type { return TypeThreadDump }

// ThreadInfo describes a single goroutine in a dump.
type ThreadInfo struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	State      string   `json:"state"`
	WaitMillis int64    `json:"waitMillis,omitempty"`
	Frames     []string `json:"frames,omitempty"`
}

// ThreadDumpResponse is the answer to a ThreadDump request.
type ThreadDumpResponse struct {
	Threads []ThreadInfo `json:"threads"`
}

func (*ThreadDumpResponse) CommandType() Type { return TypeThreadDumpResponse }
