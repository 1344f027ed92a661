package model

import "time"

// Credential is the pairing credential exchanged for a viewer token.
// AgentID and ViewerToken are either both present or both absent; a record
// with only one of them is treated as no credential at all.
type Credential struct {
	AgentID     string    `json:"agent_id"`
	ViewerToken string    `json:"viewer_token"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"` // zero = no expiry
}

// Valid reports whether the credential satisfies the pairing invariant.
func (c Credential) Valid() bool {
	return c.AgentID != "" && c.ViewerToken != ""
}

// ViewerState is one full snapshot of everything the agent exposes to a
// viewer. Snapshots are immutable once received and replace each other
// wholesale; there is no field-level merging.
type ViewerState struct {
	AgentID        string         `json:"agent_id"`
	LastSeenAt     time.Time      `json:"last_seen_at,omitzero"`
	StateUpdatedAt time.Time      `json:"state_updated_at,omitzero"`
	Agent          AgentInfo      `json:"agent_info"`
	Telemetry      TelemetryState `json:"telemetry_state"`
}

// SeenWithin reports whether the agent checked in within d of now.
func (s *ViewerState) SeenWithin(d time.Duration, now time.Time) bool {
	if s == nil || s.LastSeenAt.IsZero() {
		return false
	}
	return now.Sub(s.LastSeenAt) <= d
}

// AgentInfo describes the agent identity and trading performance.
type AgentInfo struct {
	WalletPubkey string             `json:"wallet_pubkey"`
	Mainnet      bool               `json:"mainnet"`
	Performance  PerformanceMetrics `json:"performance"`
	RecentTrades []Trade            `json:"recent_trades"`
}

// PerformanceMetrics aggregates lifetime trading results.
type PerformanceMetrics struct {
	TotalTrades         int     `json:"total_trades"`
	WinRate             float64 `json:"win_rate"`
	RealizedPnlLamports int64   `json:"realized_pnl_lamports"`
}

// Trade is one executed trade as reported by the agent.
type Trade struct {
	Signature      string    `json:"signature"`
	TokenSymbol    string    `json:"token_symbol"`
	Side           string    `json:"side"` // "buy" or "sell"
	AmountLamports int64     `json:"amount_lamports"`
	PnlLamports    int64     `json:"pnl_lamports"`
	ExecutedAt     time.Time `json:"executed_at"`
}

// TelemetryState carries the live account and runtime view.
type TelemetryState struct {
	Balances   Balances   `json:"balances"`
	PnlHistory []PnlPoint `json:"pnl_history"`
	Sessions   []Session  `json:"sessions"`
	RPC        RPCMetrics `json:"rpc_metrics"`
}

// Balances holds wallet and equity balances in lamports.
type Balances struct {
	WalletLamports int64 `json:"wallet_lamports"`
	EquityLamports int64 `json:"equity_lamports"`
}

// PnlPoint is one point of the cumulative pnl history.
type PnlPoint struct {
	At       time.Time `json:"at"`
	Lamports int64     `json:"lamports"`
}

// Session is one trading session run by the agent.
type Session struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"` // "running", "stopped", "errored"
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at,omitzero"`
	TradeCount  int       `json:"trade_count"`
	PnlLamports int64     `json:"pnl_lamports"`
}

// RPCMetrics summarizes the health of the agent's RPC connection.
type RPCMetrics struct {
	Endpoint     string  `json:"endpoint"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	ErrorRate    float64 `json:"error_rate"`
	Healthy      bool    `json:"healthy"`
}

// PriceQuote is one SOL price observation in a fiat currency.
type PriceQuote struct {
	Currency  string    `json:"currency"`
	Rate      float64   `json:"rate"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}

// PollingStatus is the externally visible state of the poll loop.
type PollingStatus int

const (
	StatusIdle PollingStatus = iota // no credential, no loop running
	StatusLoading
	StatusLive
	StatusDegraded
	StatusUnauthorized
)

func (s PollingStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusLive:
		return "live"
	case StatusDegraded:
		return "degraded"
	case StatusUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}
