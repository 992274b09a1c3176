package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectCommandPrefix = "agent"
	SubjectHandledEvent  = "agent.commands.handled"
)

// BuildCommandSubject builds the subject an agent instance receives commands on.
// Dots inside the application name or agent id would add subject tokens, so they
// are replaced with underscores.
func BuildCommandSubject(applicationName, agentID string) string {
	return fmt.Sprintf("%s.%s.%s.command", SubjectCommandPrefix, subjectToken(applicationName), subjectToken(agentID))
}

// BuildHandledSubject builds the granular handled-event subject for one agent.
func BuildHandledSubject(agentID string) string {
	return fmt.Sprintf("%s.%s", SubjectHandledEvent, subjectToken(agentID))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "_"
	}
	return strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(s)
}
