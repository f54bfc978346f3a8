package bus

// Handler is implemented by every subsystem that wants to receive
// bus traffic. The supervisor routes a message to the handler whose
// Prefix() matches the first "/"-delimited segment of the method
// string; everything after that segment is passed to the handler
// verbatim so it can do its own secondary routing.
type Handler interface {
	// Prefix is the method-namespace this handler owns (e.g. "agents",
	// "cron"). Must be unique across all registered handlers; the
	// supervisor refuses to start if two handlers collide.
	Prefix() string

	// HandleRequest must not block the caller. Resolve reply
	// synchronously or hand reply off to a spawned goroutine.
	HandleRequest(method string, payload Payload, reply chan<- Result)

	// HandleNotification handles a fire-and-forget message. No reply
	// is possible.
	HandleNotification(method string, payload Payload)

	// ComponentInfo reports this handler's current shape for the
	// management tree.
	ComponentInfo() ComponentInfo
}

// Reply is a small helper for the common case of answering a request
// synchronously from within HandleRequest. Non-blocking: the reply
// channel is always buffered for exactly one value, so a second Reply
// (e.g. racing a supervisor-issued cancellation) is dropped rather
// than leaking the sending goroutine.
func Reply(reply chan<- Result, payload Payload, err *Error) {
	select {
	case reply <- Result{Payload: payload, Err: err}:
	default:
	}
}
