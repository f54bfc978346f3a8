package agents

import "testing"

func TestResolveExplicitAgent(t *testing.T) {
	r := NewRegistry("chat")
	r.Register(&EchoAgent{}, true)
	r.Register(&ChatAgent{id: "chat"}, true)

	a, busErr := r.Resolve("echo", "")
	if busErr != nil {
		t.Fatalf("unexpected error: %v", busErr)
	}
	if a.ID() != "echo" {
		t.Fatalf("expected echo, got %s", a.ID())
	}
}

func TestResolveExplicitAgentNotEnabled(t *testing.T) {
	r := NewRegistry("chat")
	r.Register(&EchoAgent{}, false)

	_, busErr := r.Resolve("echo", "")
	if busErr == nil {
		t.Fatal("expected disabled agent to be rejected")
	}
}

func TestResolveChannelMap(t *testing.T) {
	r := NewRegistry("chat")
	r.Register(&EchoAgent{}, true)
	r.Register(&ChatAgent{id: "chat"}, true)
	r.MapChannel("signal", "echo")

	a, busErr := r.Resolve("", "signal")
	if busErr != nil {
		t.Fatalf("unexpected error: %v", busErr)
	}
	if a.ID() != "echo" {
		t.Fatalf("expected channel map to resolve echo, got %s", a.ID())
	}
}

func TestResolveFallsBackToDefault(t *testing.T) {
	r := NewRegistry("chat")
	r.Register(&EchoAgent{}, true)
	r.Register(&ChatAgent{id: "chat"}, true)

	a, busErr := r.Resolve("", "unmapped-channel")
	if busErr != nil {
		t.Fatalf("unexpected error: %v", busErr)
	}
	if a.ID() != "chat" {
		t.Fatalf("expected default agent chat, got %s", a.ID())
	}
}

func TestResolveNoUsableAgent(t *testing.T) {
	r := NewRegistry("chat")
	r.Register(&EchoAgent{}, true)

	_, busErr := r.Resolve("", "")
	if busErr == nil {
		t.Fatal("expected error when default agent is unregistered")
	}
}

func TestRegisterDuplicateIDPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected duplicate registration to panic")
		}
	}()
	r := NewRegistry("echo")
	r.Register(&EchoAgent{}, true)
	r.Register(&EchoAgent{}, true)
}
