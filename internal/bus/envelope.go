// Package bus implements the in-process supervisor message bus: a
// single-process, JSON-RPC-flavored request/reply and notification
// channel that every subsystem speaks instead of calling one another
// directly. It is deliberately not a durable or cross-process
// transport — see the module-level design notes for that boundary.
package bus

import "fmt"

// Payload is the closed set of message bodies that can ride an
// envelope: an interface with a private marker method, so the set
// stays closed to this package while each variant keeps its own
// concrete, strongly-typed struct.
type Payload interface {
	isPayload()
}

// CommsMessage carries a chat turn in either direction. Usage is
// populated on replies that consumed an LLM completion.
type CommsMessage struct {
	ChannelID string
	Content   string
	SessionID string
	Usage     *LlmUsage
}

// LlmUsage reports token counts for a single completion, consumed by
// the memory subsystem's spend ledger.
type LlmUsage struct {
	InputTokens       int
	OutputTokens      int
	CachedInputTokens int
}

// LlmRequest asks the llm subsystem to complete one prompt.
type LlmRequest struct {
	ChannelID string
	Content   string
	System    string
}

// CancelRequest asks the supervisor to drop an in-flight reply
// channel for the given request id, surfacing as ErrRecv on the
// caller side.
type CancelRequest struct {
	ID string
}

// ToolRequest asks a tool handler to execute one action.
type ToolRequest struct {
	Tool      string
	Action    string
	ArgsJSON  string
	ChannelID string
	SessionID string
}

// ToolResponse is the result of a ToolRequest.
type ToolResponse struct {
	Tool    string
	Action  string
	OK      bool
	DataJSON string
	Error   string
}

// CronSchedule asks the cron subsystem to register a new timer.
type CronSchedule struct {
	TargetMethod string
	PayloadJSON  string
	Spec         ScheduleSpec
}

// CronCancel asks the cron subsystem to cancel a timer by id.
type CronCancel struct {
	ScheduleID string
}

// CronList asks the cron subsystem to enumerate active timers.
type CronList struct{}

// CronScheduleResult replies to CronSchedule with the assigned id.
type CronScheduleResult struct {
	ScheduleID string
}

// CronEntryInfo describes one active timer for display purposes.
type CronEntryInfo struct {
	ScheduleID   string
	TargetMethod string
	NextFireUnixMs int64
	Kind         string // "once" or "interval"
}

// CronListResult replies to CronList.
type CronListResult struct {
	Entries []CronEntryInfo
}

// SessionQuery asks the memory or agents subsystem to operate on a
// specific bot-scoped session.
type SessionQuery struct {
	SessionID string
	AgentID   string
}

// JSONResponse wraps arbitrary structured data. Every bus method that
// returns JSON wraps the literal bytes here rather than inventing a
// bespoke payload type per endpoint.
type JSONResponse struct {
	Data string
}

// Empty carries no information; used for requests and notifications
// that need no body (health checks, cancel-all, etc).
type Empty struct{}

func (CommsMessage) isPayload()       {}
func (LlmRequest) isPayload()         {}
func (CancelRequest) isPayload()      {}
func (ToolRequest) isPayload()        {}
func (ToolResponse) isPayload()       {}
func (CronSchedule) isPayload()       {}
func (CronCancel) isPayload()         {}
func (CronList) isPayload()           {}
func (CronScheduleResult) isPayload() {}
func (CronListResult) isPayload()     {}
func (SessionQuery) isPayload()       {}
func (JSONResponse) isPayload()       {}
func (Empty) isPayload()              {}

// ScheduleSpec is a closed union of the two timer kinds the cron
// subsystem accepts. Exactly one of Once/Interval should be set;
// Kind disambiguates which.
type ScheduleSpec struct {
	Kind string // "once" or "interval"

	// Once: absolute fire time.
	AtUnixMs int64

	// Interval: seconds between fires. First fire is now+EverySecs.
	EverySecs int64
}

// Reserved JSON-RPC-style error codes.
const (
	ErrMethodNotFound int32 = -32601
	ErrBadRequest     int32 = -32600
	ErrApplication    int32 = -32000
)

// Error is the application-level failure returned on a reply
// envelope. It is distinct from the transport-level failures in
// bus.go (ErrSend, ErrRecv, ErrFull), which indicate the bus itself
// could not deliver the message at all.
type Error struct {
	Code    int32
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("bus error %d: %s", e.Code, e.Message)
}

// NotFound builds a method-not-found Error for the given method.
func NotFound(method string) *Error {
	return &Error{Code: ErrMethodNotFound, Message: "method not found: " + method}
}

// BadRequest builds a bad-request Error with a free-form message.
func BadRequest(msg string) *Error {
	return &Error{Code: ErrBadRequest, Message: msg}
}

// Application builds a generic application-error Error.
func Application(msg string) *Error {
	return &Error{Code: ErrApplication, Message: msg}
}
