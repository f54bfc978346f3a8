package bus

import (
	"context"

	"github.com/google/uuid"

	"github.com/araliya/araliya-bot/internal/apperr"
)

// Errors returned when the bus cannot deliver a message at all. These
// are transport failures, distinct from an *Error reply carried on a
// successfully delivered request.
var (
	ErrSend = apperr.Transport("bus send", errSend)
	ErrRecv = apperr.Transport("bus recv", errRecv)
	ErrFull = apperr.Transport("bus notify", errFull)
)

var (
	errSend = sentinel("supervisor is not running")
	errRecv = sentinel("supervisor dropped reply sender")
	errFull = sentinel("notification dropped (back-pressure)")
)

type sentinel string

func (s sentinel) Error() string { return string(s) }

// Result is what a handler sends back on a Request's reply channel.
type Result struct {
	Payload Payload
	Err     *Error
}

// Request is a round-trip bus message awaiting exactly one reply.
type Request struct {
	ID      string
	Method  string
	Payload Payload
	ReplyTo chan Result
}

// Notify is a fire-and-forget bus message. No reply is expected and
// delivery is best-effort: a full bus drops it rather than blocking
// the sender.
type Notify struct {
	Method  string
	Payload Payload
}

type message interface{ isMessage() }

func (*Request) isMessage() {}
func (*Notify) isMessage()  {}

// Router receives messages pulled off the bus by Run. The supervisor
// package implements this by dispatching to its registered handlers;
// keeping the interface here avoids an import cycle between bus and
// supervisor.
type Router interface {
	Dispatch(req *Request)
	DispatchNotify(n *Notify)
}

// Bus is the shared channel subsystems send envelopes through. It is
// created once by the supervisor at startup; every subsystem talks to
// it only through a Handle.
type Bus struct {
	rx   chan message
	done chan struct{}
}

// New creates a Bus with the given inbound buffer size. The buffer
// bounds outstanding requests; once full, Handle.Request blocks the
// caller (back-pressure) while Handle.Notify drops (lossy).
func New(buffer int) *Bus {
	return &Bus{
		rx:   make(chan message, buffer),
		done: make(chan struct{}),
	}
}

// Handle returns a cloneable handle subsystems use to talk to the bus.
func (b *Bus) Handle() Handle {
	return Handle{tx: b.rx, done: b.done}
}

// Run pulls messages off the bus and dispatches them to router until
// ctx is cancelled. It is meant to be run from the supervisor's own
// goroutine; Run itself never spawns goroutines for routing, which
// keeps shutdown ordering simple (no handler runs after Run returns
// unless the handler spawned its own goroutine, which is allowed and
// expected for slow work).
func (b *Bus) Run(ctx context.Context, router Router) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.rx:
			switch m := msg.(type) {
			case *Request:
				router.Dispatch(m)
			case *Notify:
				router.DispatchNotify(m)
			}
		}
	}
}

// Handle is the cloneable client side of a Bus. Subsystems hold a
// Handle, never the Bus itself; the receiving end belongs to the
// supervisor alone.
type Handle struct {
	tx   chan message
	done chan struct{}
}

// Request sends method/payload and blocks for the single reply, or
// until ctx is cancelled. A closed bus (supervisor shut down) surfaces
// as ErrSend; a reply channel that never receives a value (handler
// panicked without recovering, or the handler dropped it) surfaces as
// ErrRecv when ctx is cancelled by the caller's own timeout.
func (h Handle) Request(ctx context.Context, method string, payload Payload) (Payload, *Error, error) {
	reply := make(chan Result, 1)
	req := &Request{ID: uuid.NewString(), Method: method, Payload: payload, ReplyTo: reply}

	select {
	case <-h.done:
		return nil, nil, ErrSend
	default:
	}

	select {
	case h.tx <- req:
	case <-h.done:
		return nil, nil, ErrSend
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.Payload, res.Err, nil
	case <-ctx.Done():
		return nil, nil, ErrRecv
	}
}

// Notify sends a fire-and-forget message. It never blocks: a full bus
// or a shut-down supervisor both result in the notification being
// dropped, with the distinction reported via the returned error.
func (h Handle) Notify(method string, payload Payload) error {
	select {
	case <-h.done:
		return ErrSend
	default:
	}

	select {
	case h.tx <- &Notify{Method: method, Payload: payload}:
		return nil
	default:
		return ErrFull
	}
}
