// Package memory implements Araliya's bot-scoped session memory:
// capped key-value and transcript storage, a spend ledger, and the
// document/knowledge-graph stores layered on top of a shared session
// index. Each store method
// that touches disk is safe to call from a goroutine dedicated to the
// calling request; callers needing to stay off a hot path should wrap
// calls in their own goroutine/worker-pool dispatch).
package memory

import "time"

// StoreType names one of the pluggable store kinds a session can
// declare at creation time.
type StoreType string

const (
	StoreBasicSession StoreType = "basic_session"
	StoreTmp          StoreType = "tmp"
	StoreAgent        StoreType = "agent"
	StoreDocstore     StoreType = "docstore"
	StoreKGDocstore   StoreType = "kg_docstore"
)

// SessionMeta is the sessions.json index entry for one session.
type SessionMeta struct {
	SessionID  string      `json:"session_id"`
	CreatedAt  string      `json:"created_at"`
	StoreTypes []StoreType `json:"store_types"`
	LastAgent  string      `json:"last_agent,omitempty"`
}

// Usage reports token counts for one completion, the same shape the
// bus carries on CommsMessage replies.
type Usage struct {
	InputTokens       int
	OutputTokens      int
	CachedInputTokens int
}

// ModelRates is the per-million-token pricing used to compute a
// completion's cost in the spend ledger.
type ModelRates struct {
	RateIn       float64 // USD per million input tokens
	RateOut      float64 // USD per million output tokens
	RateCachedIn float64 // USD per million cached-input tokens
}

// CostUSD computes the dollar cost of one usage record at the given
// rates.
func (u Usage) CostUSD(rates ModelRates) float64 {
	const million = 1_000_000.0
	return float64(u.InputTokens)*rates.RateIn/million +
		float64(u.OutputTokens)*rates.RateOut/million +
		float64(u.CachedInputTokens)*rates.RateCachedIn/million
}

// SpendLedger is the running total stored at spend.json.
type SpendLedger struct {
	TotalInputTokens  int     `json:"total_input_tokens"`
	TotalOutputTokens int     `json:"total_output_tokens"`
	TotalCachedTokens int     `json:"total_cached_tokens"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
	LastUpdated       string  `json:"last_updated"`
}

// Add folds usage into the ledger at the given rates and refreshes
// LastUpdated to the current UTC time.
func (l *SpendLedger) Add(u Usage, rates ModelRates) {
	l.TotalInputTokens += u.InputTokens
	l.TotalOutputTokens += u.OutputTokens
	l.TotalCachedTokens += u.CachedInputTokens
	l.TotalCostUSD += u.CostUSD(rates)
	l.LastUpdated = nowISO8601()
}

// TranscriptEntry is one turn in a session's transcript.md.
type TranscriptEntry struct {
	Role      string
	Timestamp string
	Content   string
}

func nowISO8601() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}
