// Package supervisor is the bus router: it owns the set of registered
// handlers, dispatches every inbound method to the handler whose
// prefix matches, and answers the "manage/*" introspection methods
// (tree, health refresh, cancel) itself rather than delegating them to
// a handler.
package supervisor

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/araliya/araliya-bot/internal/bus"
)

// managePrefix is reserved: no registered Handler may claim it.
const managePrefix = "manage"

// Supervisor implements bus.Router, fanning every dispatched request
// or notification out to the registered handler matching its method
// prefix. It is the single place that knows the full set of
// subsystems, so component-tree and health-refresh aggregation live
// here rather than in any one handler.
type Supervisor struct {
	logger *slog.Logger
	botID  string
	start  time.Time

	mu        sync.Mutex
	handlers  map[string]bus.Handler
	order     []string // registration order, for deterministic tree output
	inflight  map[string]chan struct{}
	health    HealthConfig
	busHandle bus.Handle
}

// New creates an empty Supervisor. Handlers are added with Register
// before Run/Dispatch sees any traffic.
func New(logger *slog.Logger, botID string) *Supervisor {
	return &Supervisor{
		logger:   logger,
		botID:    botID,
		start:    time.Now(),
		handlers: make(map[string]bus.Handler),
		inflight: make(map[string]chan struct{}),
	}
}

// Register adds h under its own Prefix(). Returns an error if the
// prefix is empty, reserved, or already claimed by another handler —
// the supervisor is meant to fail fast at startup wiring, not silently
// shadow one subsystem with another.
func (s *Supervisor) Register(h bus.Handler) error {
	prefix := h.Prefix()
	if prefix == "" {
		return fmt.Errorf("supervisor: handler registered with empty prefix")
	}
	if prefix == managePrefix || prefix == "$" {
		return fmt.Errorf("supervisor: prefix %q is reserved", prefix)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handlers[prefix]; exists {
		return fmt.Errorf("supervisor: prefix %q already registered", prefix)
	}
	s.handlers[prefix] = h
	s.order = append(s.order, prefix)
	return nil
}

// splitMethod splits "prefix/rest/of/method" into its first segment
// and the remainder, mirroring the handler dispatch contract: only
// the first "/" is significant, everything after it belongs to the
// handler's own secondary routing.
func splitMethod(method string) (prefix, rest string) {
	i := strings.IndexByte(method, '/')
	if i < 0 {
		return method, ""
	}
	return method[:i], method[i+1:]
}

func (s *Supervisor) handlerFor(prefix string) bus.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers[prefix]
}

func (s *Supervisor) trackInflight(id string) chan struct{} {
	cancel := make(chan struct{})
	s.mu.Lock()
	s.inflight[id] = cancel
	s.mu.Unlock()
	return cancel
}

func (s *Supervisor) clearInflight(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// Dispatch implements bus.Router. It never blocks the bus's own Run
// loop: every request is handed to a freshly spawned goroutine, which
// recovers from a handler panic and turns it into an application
// error reply rather than crashing the process.
func (s *Supervisor) Dispatch(req *bus.Request) {
	prefix, rest := splitMethod(req.Method)

	if prefix == "$" && rest == "cancel" {
		s.handleCancel(req)
		return
	}
	if prefix == managePrefix {
		go s.handleManage(rest, req)
		return
	}

	handler := s.handlerFor(prefix)
	if handler == nil {
		bus.Reply(req.ReplyTo, nil, bus.NotFound(req.Method))
		return
	}

	cancel := s.trackInflight(req.ID)
	proxy := make(chan bus.Result, 1)

	go func() {
		defer s.clearInflight(req.ID)
		go s.invoke(handler, prefix, rest, req, proxy)

		select {
		case res := <-proxy:
			bus.Reply(req.ReplyTo, res.Payload, res.Err)
		case <-cancel:
			bus.Reply(req.ReplyTo, nil, bus.Application("request cancelled"))
		}
	}()
}

// invoke calls handler.HandleRequest with panic isolation: a handler
// that panics mid-request turns into a logged application error reply
// instead of taking the whole supervisor down.
func (s *Supervisor) invoke(handler bus.Handler, prefix, rest string, req *bus.Request, proxy chan<- bus.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic", "prefix", prefix, "method", req.Method, "panic", r)
			bus.Reply(proxy, nil, bus.Application(fmt.Sprintf("internal error in %q: %v", prefix, r)))
		}
	}()
	handler.HandleRequest(rest, req.Payload, proxy)
}

// handleCancel drops the reply wait for an in-flight request, if it is
// still outstanding. Replies Empty{} either way: cancelling a request
// that has already completed or never existed is not an error.
func (s *Supervisor) handleCancel(req *bus.Request) {
	cr, ok := req.Payload.(bus.CancelRequest)
	if !ok {
		bus.Reply(req.ReplyTo, nil, bus.BadRequest("expected CancelRequest payload"))
		return
	}
	s.mu.Lock()
	cancel, found := s.inflight[cr.ID]
	if found {
		delete(s.inflight, cr.ID)
	}
	s.mu.Unlock()
	if found {
		close(cancel)
	}
	bus.Reply(req.ReplyTo, bus.Empty{}, nil)
}

// DispatchNotify implements bus.Router for fire-and-forget traffic.
// Notifications never carry a reply channel and are dropped silently
// if no handler owns the prefix (mirrors Handle.Notify's best-effort
// delivery).
func (s *Supervisor) DispatchNotify(n *bus.Notify) {
	prefix, rest := splitMethod(n.Method)
	handler := s.handlerFor(prefix)
	if handler == nil {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("handler panic (notification)", "prefix", prefix, "method", n.Method, "panic", r)
			}
		}()
		handler.HandleNotification(rest, n.Payload)
	}()
}

// Uptime reports how long this supervisor has been running.
func (s *Supervisor) Uptime() time.Duration {
	return time.Since(s.start)
}
