// Package agentsim implements the viewer API surface of a trading agent
// for development and integration testing: pairing, state, long-poll
// streaming, prices, and disconnect. State evolves by replaying a scripted
// scenario so the dashboard has something live to render.
package agentsim

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario scripts the simulated agent: identity, starting balances, a
// trade timeline replayed on an interval, and failure injection knobs.
type Scenario struct {
	AgentID      string `yaml:"agent_id"`
	WalletPubkey string `yaml:"wallet_pubkey"`
	Mainnet      bool   `yaml:"mainnet"`
	RPCEndpoint  string `yaml:"rpc_endpoint"`

	// PairingCodes are accepted by POST /api/viewer/pair. Reusable so a
	// demo survives repeated re-pairing.
	PairingCodes []string `yaml:"pairing_codes"`

	InitialBalanceSol float64       `yaml:"initial_balance_sol"`
	TickInterval      time.Duration `yaml:"tick_interval"`

	// Trades are replayed cyclically, one per tick.
	Trades []ScenarioTrade `yaml:"trades"`

	// UnauthorizedAfter revokes every issued token after that many ticks,
	// to exercise the viewer's 401 fast path. Zero disables it.
	UnauthorizedAfter int `yaml:"unauthorized_after"`

	// ErrorRate is the probability (0..1) that a state request fails with
	// an injected 500.
	ErrorRate float64 `yaml:"error_rate"`

	// PriceUsd is the simulated SOL/USD price. FiatRates maps additional
	// currency codes to multipliers on the USD price.
	PriceUsd  float64            `yaml:"price_usd"`
	FiatRates map[string]float64 `yaml:"fiat_rates"`
}

// ScenarioTrade is one scripted trade.
type ScenarioTrade struct {
	TokenSymbol string  `yaml:"token_symbol"`
	Side        string  `yaml:"side"`
	AmountSol   float64 `yaml:"amount_sol"`
	PnlSol      float64 `yaml:"pnl_sol"`
}

// DefaultScenario is used when no scenario file is given.
func DefaultScenario() Scenario {
	return Scenario{
		AgentID:           "sim-agent",
		WalletPubkey:      "S1mAgentWa11etPubkey11111111111111111111111",
		Mainnet:           false,
		RPCEndpoint:       "https://api.devnet.solana.com",
		PairingCodes:      []string{"123456"},
		InitialBalanceSol: 5,
		TickInterval:      2 * time.Second,
		PriceUsd:          150,
		Trades: []ScenarioTrade{
			{TokenSymbol: "BONK", Side: "buy", AmountSol: 0.25},
			{TokenSymbol: "BONK", Side: "sell", AmountSol: 0.26, PnlSol: 0.01},
			{TokenSymbol: "WIF", Side: "buy", AmountSol: 0.4},
			{TokenSymbol: "WIF", Side: "sell", AmountSol: 0.38, PnlSol: -0.02},
		},
	}
}

// LoadScenario reads a scenario file, filling gaps from the default.
func LoadScenario(path string) (Scenario, error) {
	sc := DefaultScenario()
	data, err := os.ReadFile(path)
	if err != nil {
		return sc, fmt.Errorf("agentsim: read scenario: %w", err)
	}
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return sc, fmt.Errorf("agentsim: parse scenario: %w", err)
	}
	if err := sc.validate(); err != nil {
		return sc, err
	}
	return sc, nil
}

func (sc Scenario) validate() error {
	if sc.AgentID == "" {
		return errors.New("agentsim: agent_id is required")
	}
	if len(sc.PairingCodes) == 0 {
		return errors.New("agentsim: at least one pairing code is required")
	}
	if sc.TickInterval < 100*time.Millisecond {
		return fmt.Errorf("agentsim: tick_interval %v is below 100ms", sc.TickInterval)
	}
	if sc.ErrorRate < 0 || sc.ErrorRate > 1 {
		return fmt.Errorf("agentsim: error_rate %v outside [0,1]", sc.ErrorRate)
	}
	return nil
}
