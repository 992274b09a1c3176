package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"
)

// startTestServer starts an in-process NATS server for testing.
func startTestServer(t *testing.T, port int) (*comms.Conn, func()) {
	t.Helper()

	opts := &commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := commsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("events:comms_publisher_integration_test - failed to create server: %v", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("events:comms_publisher_integration_test - server failed to start")
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("events:comms_publisher_integration_test - failed to connect: %v", err)
	}

	cleanup := func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}

	return nc, cleanup
}

func subscribeEvents(t *testing.T, nc *comms.Conn, subject string) (chan *CommandHandledEvent, *comms.Subscription) {
	t.Helper()
	received := make(chan *CommandHandledEvent, 1)
	sub, err := nc.Subscribe(subject, func(msg *comms.Msg) {
		var event CommandHandledEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			t.Errorf("events:comms_publisher_integration_test - failed to unmarshal: %v", err)
			return
		}
		received <- &event
	})
	if err != nil {
		t.Fatalf("events:comms_publisher_integration_test - failed to subscribe to %s: %v", subject, err)
	}
	return received, sub
}

func TestCommsPublisher_PublishHandled_BothSubjects(t *testing.T) {
	nc, cleanup := startTestServer(t, 14230)
	defer cleanup()

	publisher := NewCommsPublisher(nc, nil)

	granular, sub1 := subscribeEvents(t, nc, "agent.commands.handled.agent-1")
	defer sub1.Unsubscribe()
	global, sub2 := subscribeEvents(t, nc, "agent.commands.handled")
	defer sub2.Unsubscribe()

	event := &CommandHandledEvent{
		ID:          "evt-1",
		AgentID:     "agent-1",
		RequestID:   7,
		CommandType: 710,
		CommandName: "ECHO",
		Outcome:     OutcomeOK,
		DurationMs:  2,
		Timestamp:   "2025-01-01T00:00:00Z",
	}

	if err := publisher.PublishHandled(context.Background(), event); err != nil {
		t.Fatalf("events:comms_publisher_integration_test - PublishHandled failed: %v", err)
	}
	nc.Flush()

	for _, ch := range []struct {
		name string
		ch   chan *CommandHandledEvent
	}{
		{"granular", granular},
		{"global", global},
	} {
		select {
		case got := <-ch.ch:
			if got.RequestID != 7 || got.Outcome != OutcomeOK || got.CommandName != "ECHO" {
				t.Errorf("events:comms_publisher_integration_test - %s event = %+v", ch.name, got)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("events:comms_publisher_integration_test - timeout waiting for %s event", ch.name)
		}
	}
}

func TestCommsPublisher_CustomGlobalSubject(t *testing.T) {
	nc, cleanup := startTestServer(t, 14231)
	defer cleanup()

	publisher := NewCommsPublisher(nc, &CommsPublisherOpts{GlobalSubject: "custom.handled"})

	received, sub := subscribeEvents(t, nc, "custom.handled")
	defer sub.Unsubscribe()

	err := publisher.PublishHandled(context.Background(), &CommandHandledEvent{
		AgentID:   "agent-2",
		RequestID: 9,
		Outcome:   OutcomeUnsupportedType,
	})
	if err != nil {
		t.Fatalf("events:comms_publisher_integration_test - PublishHandled failed: %v", err)
	}
	nc.Flush()

	select {
	case got := <-received:
		if got.Outcome != OutcomeUnsupportedType {
			t.Errorf("events:comms_publisher_integration_test - Outcome = %q, want %q", got.Outcome, OutcomeUnsupportedType)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("events:comms_publisher_integration_test - timeout waiting for custom subject event")
	}
}
