// Package events defines the command-handled event and its publishers.
package events

// Outcome is how the dispatcher finished a request.
type Outcome string

const (
	OutcomeOK                  Outcome = "ok"
	OutcomeUnsupportedType     Outcome = "unsupported_type"
	OutcomeUnsupportedListener Outcome = "unsupported_listener"
	OutcomeTimeout             Outcome = "timeout"
	OutcomeEncodeFailed        Outcome = "encode_failed"
	OutcomeWriteFailed         Outcome = "write_failed"
)

// CommandHandledEvent is emitted after the dispatcher finishes a request.
type CommandHandledEvent struct {
	ID          string  `json:"id"`
	AgentID     string  `json:"agentId"`
	RequestID   int32   `json:"requestId"`
	CommandType uint16  `json:"commandType"`
	CommandName string  `json:"commandName"`
	Outcome     Outcome `json:"outcome"`
	DurationMs  int64   `json:"durationMs"`
	Error       string  `json:"error,omitempty"`
	Timestamp   string  `json:"timestamp"`
}
