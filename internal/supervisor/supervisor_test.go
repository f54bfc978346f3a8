package supervisor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/araliya/araliya-bot/internal/bus"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubHandler is a minimal bus.Handler used across supervisor tests.
type stubHandler struct {
	prefix  string
	healthy bool
	panics  bool
}

func (h *stubHandler) Prefix() string { return h.prefix }

func (h *stubHandler) HandleRequest(method string, payload bus.Payload, reply chan<- bus.Result) {
	if h.panics {
		panic("boom")
	}
	switch method {
	case "health":
		status := "ok"
		if !h.healthy {
			status = "degraded"
		}
		data, _ := json.Marshal(map[string]string{"status": status})
		bus.Reply(reply, bus.JSONResponse{Data: string(data)}, nil)
	case "echo":
		bus.Reply(reply, payload, nil)
	default:
		bus.Reply(reply, nil, bus.NotFound(h.prefix+"/"+method))
	}
}

func (h *stubHandler) HandleNotification(method string, payload bus.Payload) {}

func (h *stubHandler) ComponentInfo() bus.ComponentInfo {
	return bus.Leaf(h.prefix, bus.Capitalise(h.prefix))
}

func startSupervisor(t *testing.T, s *Supervisor) (bus.Handle, context.CancelFunc) {
	t.Helper()
	b := bus.New(8)
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx, s)
	h := b.Handle()
	s.SetBus(h)
	return h, cancel
}

func TestRegisterRejectsDuplicatePrefix(t *testing.T) {
	s := New(testLogger(), "deadbeef")
	if err := s.Register(&stubHandler{prefix: "agents", healthy: true}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := s.Register(&stubHandler{prefix: "agents", healthy: true}); err == nil {
		t.Fatal("expected duplicate prefix to be rejected")
	}
}

func TestRegisterRejectsReservedPrefix(t *testing.T) {
	s := New(testLogger(), "deadbeef")
	if err := s.Register(&stubHandler{prefix: "manage"}); err == nil {
		t.Fatal("expected reserved prefix to be rejected")
	}
}

func TestDispatchRoutesToHandler(t *testing.T) {
	s := New(testLogger(), "deadbeef")
	_ = s.Register(&stubHandler{prefix: "agents", healthy: true})
	h, cancel := startSupervisor(t, s)
	defer cancel()

	payload, busErr, err := h.Request(context.Background(), "agents/echo", bus.CommsMessage{Content: "hi"})
	if err != nil || busErr != nil {
		t.Fatalf("unexpected error: err=%v busErr=%v", err, busErr)
	}
	msg, ok := payload.(bus.CommsMessage)
	if !ok || msg.Content != "hi" {
		t.Fatalf("unexpected payload: %#v", payload)
	}
}

func TestDispatchUnknownPrefix(t *testing.T) {
	s := New(testLogger(), "deadbeef")
	h, cancel := startSupervisor(t, s)
	defer cancel()

	_, busErr, err := h.Request(context.Background(), "nope/thing", bus.Empty{})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if busErr == nil || busErr.Code != bus.ErrMethodNotFound {
		t.Fatalf("expected method-not-found, got %v", busErr)
	}
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	s := New(testLogger(), "deadbeef")
	_ = s.Register(&stubHandler{prefix: "agents", panics: true})
	h, cancel := startSupervisor(t, s)
	defer cancel()

	_, busErr, err := h.Request(context.Background(), "agents/echo", bus.Empty{})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if busErr == nil || busErr.Code != bus.ErrApplication {
		t.Fatalf("expected application error from recovered panic, got %v", busErr)
	}
}

func TestManageTreeAggregatesHandlers(t *testing.T) {
	s := New(testLogger(), "deadbeef")
	_ = s.Register(&stubHandler{prefix: "agents", healthy: true})
	_ = s.Register(&stubHandler{prefix: "cron", healthy: true})
	h, cancel := startSupervisor(t, s)
	defer cancel()

	payload, busErr, err := h.Request(context.Background(), "manage/tree", bus.Empty{})
	if err != nil || busErr != nil {
		t.Fatalf("unexpected error: err=%v busErr=%v", err, busErr)
	}
	jr := payload.(bus.JSONResponse)

	var tree treeNode
	if err := json.Unmarshal([]byte(jr.Data), &tree); err != nil {
		t.Fatalf("unmarshal tree: %v", err)
	}
	if tree.ID != "supervisor" || tree.Status != "running" {
		t.Fatalf("unexpected root: %+v", tree)
	}
	if len(tree.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(tree.Children))
	}
}

func TestManageHealthRefreshAggregatesAndReportsDegraded(t *testing.T) {
	s := New(testLogger(), "deadbeef")
	_ = s.Register(&stubHandler{prefix: "agents", healthy: true})
	_ = s.Register(&stubHandler{prefix: "tools", healthy: false})
	s.SetHealthConfig(HealthConfig{
		LLMProvider:       "anthropic",
		LLMModel:          "claude",
		LLMTimeoutSeconds: 60,
		EnabledTools:      []string{"search"},
		MaxToolRounds:     8,
		SessionCount:      func() int { return 3 },
	})
	h, cancel := startSupervisor(t, s)
	defer cancel()

	payload, busErr, err := h.Request(context.Background(), "manage/health/refresh", bus.Empty{})
	if err != nil || busErr != nil {
		t.Fatalf("unexpected error: err=%v busErr=%v", err, busErr)
	}
	jr := payload.(bus.JSONResponse)

	var body healthBody
	if err := json.Unmarshal([]byte(jr.Data), &body); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if body.Status != "degraded" {
		t.Fatalf("expected overall status degraded, got %q", body.Status)
	}
	if body.BotID != "deadbeef" || body.SessionCount != 3 || body.MaxToolRounds != 8 {
		t.Fatalf("unexpected health body: %+v", body)
	}
	if len(body.Subsystems) != 2 {
		t.Fatalf("expected 2 subsystem entries, got %d", len(body.Subsystems))
	}
}

// TestCancelDropsInFlightRequest dispatches directly against the
// Supervisor (bypassing the bus) so the test controls the request id
// and can deterministically observe the handler having started before
// issuing the cancel.
func TestCancelDropsInFlightRequest(t *testing.T) {
	s := New(testLogger(), "deadbeef")
	blocker := &blockingHandler{release: make(chan struct{}), started: make(chan struct{})}
	_ = s.Register(blocker)
	defer close(blocker.release)

	reply := make(chan bus.Result, 1)
	req := &bus.Request{ID: "req-1", Method: "slow/wait", Payload: bus.Empty{}, ReplyTo: reply}
	s.Dispatch(req)

	<-blocker.started

	cancelReply := make(chan bus.Result, 1)
	cancelReq := &bus.Request{ID: "cancel-1", Method: "$/cancel", Payload: bus.CancelRequest{ID: "req-1"}, ReplyTo: cancelReply}
	s.Dispatch(cancelReq)

	select {
	case res := <-cancelReply:
		if res.Err != nil {
			t.Fatalf("unexpected cancel error: %v", res.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancel request never replied")
	}

	select {
	case res := <-reply:
		if res.Err == nil || res.Err.Code != bus.ErrApplication {
			t.Fatalf("expected cancellation application error, got %v", res.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled request never returned")
	}
}

// blockingHandler blocks HandleRequest until release is closed, so
// tests can exercise cancellation of a genuinely in-flight request.
type blockingHandler struct {
	release chan struct{}
	started chan struct{}
}

func (h *blockingHandler) Prefix() string { return "slow" }

func (h *blockingHandler) HandleRequest(method string, payload bus.Payload, reply chan<- bus.Result) {
	close(h.started)
	<-h.release
	bus.Reply(reply, bus.Empty{}, nil)
}

func (h *blockingHandler) HandleNotification(method string, payload bus.Payload) {}

func (h *blockingHandler) ComponentInfo() bus.ComponentInfo { return bus.DefaultComponentInfo("slow") }
