package ws

import "testing"

func TestEventOwner(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"order event", `{"event":"order_settled","user_id":"u1","order_id":"o1"}`, "u1"},
		{"no user field", `{"event":"heartbeat"}`, ""},
		{"not json", `ping`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := eventOwner([]byte(tt.payload)); got != tt.want {
				t.Errorf("eventOwner(%q) = %q, want %q", tt.payload, got, tt.want)
			}
		})
	}
}

func TestSessionSubscriptionControl(t *testing.T) {
	s := &session{subs: map[string]bool{
		"tradecore:orders":  true,
		"tradecore:wallets": true,
	}}

	s.applyControl(controlMsg{Action: "unsubscribe", Channels: []string{"tradecore:wallets"}})
	if s.wants("tradecore:wallets") {
		t.Error("still subscribed after unsubscribe")
	}
	if !s.wants("tradecore:orders") {
		t.Error("unsubscribe removed an unrelated channel")
	}

	s.applyControl(controlMsg{Action: "subscribe", Channels: []string{"tradecore:wallets"}})
	if !s.wants("tradecore:wallets") {
		t.Error("resubscribe did not take effect")
	}

	s.applyControl(controlMsg{Action: "noop", Channels: []string{"tradecore:orders"}})
	if !s.wants("tradecore:orders") {
		t.Error("unknown action mutated subscriptions")
	}
}
