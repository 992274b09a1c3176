package service

import (
	"context"
	"fmt"

	"github.com/morezero/agent-command-receiver/pkg/command"
)

// EchoService answers ECHO with the same message.
type EchoService struct{}

func (EchoService) Accepts() command.Type { return command.TypeEcho }

func (EchoService) Invoke(_ context.Context, msg command.Message) command.Message {
	echo, ok := msg.(*command.Echo)
	if !ok {
		return command.NewFailure(fmt.Sprintf("echo: unexpected message %T", msg))
	}
	return &command.Echo{Message: echo.Message}
}
