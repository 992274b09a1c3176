package db

import "time"

// CommandEvent is a row in the command_events table.
type CommandEvent struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agent_id"`
	RequestID   int32     `json:"request_id"`
	CommandType int32     `json:"command_type"`
	CommandName string    `json:"command_name"`
	Outcome     string    `json:"outcome"`
	DurationMs  int64     `json:"duration_ms"`
	Error       *string   `json:"error,omitempty"`
	HandledAt   time.Time `json:"handled_at"`
	Created     time.Time `json:"created"`
}

// ListCommandEventsParams filters ListCommandEvents. Zero values mean no filter.
type ListCommandEventsParams struct {
	AgentID string
	Outcome string
	Since   time.Time
	Limit   int
}

// OutcomeCount is the number of audit rows with one outcome.
type OutcomeCount struct {
	Outcome string `json:"outcome"`
	Count   int64  `json:"count"`
}
