package model

import "time"

// Shared defaults used by the viewer and agent-sim binaries.
const (
	// DefaultWaitBudget is the server-side hold time requested on the
	// long-poll stream endpoint.
	DefaultWaitBudget = 8 * time.Second

	// DefaultBackoffFloor and DefaultBackoffCeiling bound the exponential
	// retry delay applied after non-auth poll failures.
	DefaultBackoffFloor   = 1 * time.Second
	DefaultBackoffCeiling = 8 * time.Second

	// DefaultRequestTimeout is the hard client deadline on non-stream
	// requests. Stream requests use the wait budget plus StreamTimeoutBuffer.
	DefaultRequestTimeout = 10 * time.Second

	// StreamTimeoutBuffer is added to the requested server wait so that a
	// legitimate empty long-poll is never misread as a client timeout.
	StreamTimeoutBuffer = 5 * time.Second

	// LivenessWindow is how recently the agent must have checked in for the
	// dashboard to show it as live.
	LivenessWindow = 15 * time.Second

	// DefaultPriceRefresh is how often the dashboard refreshes the fiat
	// price quote, independent of the poll loop.
	DefaultPriceRefresh = 60 * time.Second

	// LamportsPerSol converts the smallest balance unit to display SOL.
	LamportsPerSol = 1_000_000_000

	DefaultCurrency = "usd"
)
