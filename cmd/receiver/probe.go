package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/morezero/agent-command-receiver/internal/config"
	"github.com/morezero/agent-command-receiver/pkg/codec"
	"github.com/morezero/agent-command-receiver/pkg/command"
	"github.com/morezero/agent-command-receiver/pkg/commsutil"
	"github.com/morezero/agent-command-receiver/pkg/transport"
)

// probe sends one command to an agent and returns the decoded answer.
func probe(subject string, msg command.Message) (command.Message, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForProbe(); err != nil {
		return nil, err
	}
	format, err := codec.FormatByName(cfg.WireFormat)
	if err != nil {
		return nil, err
	}
	c := codec.NewContext(format, command.NewTypeRegistry(command.ProtocolVersionFor(cfg.AgentVersion)), cfg.MaxPayloadSize)

	payload, err := c.Encode(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.CommandType(), err)
	}

	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName+"-probe")
	if err != nil {
		return nil, err
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	client := transport.NewClient(nc)
	reply, err := client.Request(ctx, subject, client.NextRequestID(), payload)
	if err != nil {
		return nil, err
	}
	answer, err := c.Decode(reply)
	if err != nil {
		return nil, fmt.Errorf("decode answer: %w", err)
	}
	return answer, nil
}

func runEcho(subject, message string) error {
	answer, err := probe(subject, &command.Echo{Message: message})
	if err != nil {
		return err
	}
	return printAnswer(os.Stdout, answer)
}

func runDump(subject string, names []string) error {
	answer, err := probe(subject, &command.ThreadDump{Type: command.ThreadDumpTarget, Name: names})
	if err != nil {
		return err
	}
	return printAnswer(os.Stdout, answer)
}

func printAnswer(w io.Writer, answer command.Message) error {
	switch v := answer.(type) {
	case *command.Echo:
		fmt.Fprintln(w, v.Message)
	case *command.Result:
		if !v.Success {
			return fmt.Errorf("agent answered: %s", v.Message)
		}
		fmt.Fprintf(w, "ok %s\n", v.Message)
	case *command.ThreadDumpResponse:
		for _, th := range v.Threads {
			fmt.Fprintf(w, "goroutine %d [%s] %s\n", th.ID, th.State, th.Name)
			for _, f := range th.Frames {
				fmt.Fprintf(w, "\t%s\n", f)
			}
		}
		fmt.Fprintf(w, "%d goroutines\n", len(v.Threads))
	default:
		fmt.Fprintf(w, "%s: %+v\n", answer.CommandType(), answer)
	}
	return nil
}
