package commsutil

import "testing"

func TestBuildCommandSubject(t *testing.T) {
	tests := []struct {
		name    string
		app     string
		agentID string
		want    string
	}{
		{"basic", "shop", "agent-1", "agent.shop.agent-1.command"},
		{"dotted app", "shop.api", "agent-1", "agent.shop_api.agent-1.command"},
		{"wildcards", "shop", "a*>", "agent.shop.a__.command"},
		{"empty agent", "shop", "", "agent.shop._.command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildCommandSubject(tt.app, tt.agentID)
			if got != tt.want {
				t.Errorf("BuildCommandSubject(%q, %q) = %q, want %q", tt.app, tt.agentID, got, tt.want)
			}
		})
	}
}

func TestBuildHandledSubject(t *testing.T) {
	tests := []struct {
		name    string
		agentID string
		want    string
	}{
		{"simple", "agent-1", "agent.commands.handled.agent-1"},
		{"dotted", "host.local", "agent.commands.handled.host_local"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildHandledSubject(tt.agentID)
			if got != tt.want {
				t.Errorf("BuildHandledSubject(%q) = %q, want %q", tt.agentID, got, tt.want)
			}
		})
	}
}
