package agentsim

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	mrand "math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lasersell/viewer/internal/model"
)

const (
	maxStreamHold = 25 * time.Second
	maxPnlPoints  = 120
	maxTrades     = 20
	tokenTTL      = 12 * time.Hour
)

// Server simulates one trading agent behind the viewer API.
type Server struct {
	addr     string
	scenario Scenario
	server   *http.Server

	mu      sync.Mutex
	state   model.ViewerState
	tokens  map[string]time.Time // token -> expiry
	changed chan struct{}        // closed and replaced on every state change
	ticks   int
	revoked bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewServer creates a simulated agent listening on addr.
func NewServer(addr string, sc Scenario) *Server {
	if addr == "" {
		addr = "127.0.0.1:48713"
	}
	s := &Server{
		addr:     addr,
		scenario: sc,
		tokens:   make(map[string]time.Time),
		changed:  make(chan struct{}),
	}
	s.state = s.initialState(time.Now().UTC())
	return s
}

// Start begins serving and ticking the scenario.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	s.server = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.addr = listener.Addr().String()

	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.tickLoop()

	go s.server.Serve(listener)
	return nil
}

// Addr returns the bound listen address, useful with port 0.
func (s *Server) Addr() string { return s.addr }

// Stop shuts the server and the scenario ticker down.
func (s *Server) Stop() error {
	if s.done != nil {
		close(s.done)
		s.wg.Wait()
	}
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// Handler exposes the route table for in-process tests.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.TestMode)
	return s.routes()
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/api/viewer/pair", s.handlePair)
	r.GET("/api/viewer/state", s.auth, s.handleState)
	r.GET("/api/viewer/state/stream", s.auth, s.handleStateStream)
	r.GET("/api/prices/sol-usd", s.handlePriceUSD)
	r.GET("/api/prices/sol/:currency", s.handlePrice)
	r.POST("/api/viewer/disconnect", s.handleDisconnect)
	return r
}

func (s *Server) tickLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.scenario.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Advance(time.Now().UTC())
		case <-s.done:
			return
		}
	}
}

// Advance applies the next scripted trade and bumps the state revision.
// Exported so tests can step the scenario without real time passing.
func (s *Server) Advance(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticks++
	if s.scenario.UnauthorizedAfter > 0 && s.ticks >= s.scenario.UnauthorizedAfter {
		s.tokens = make(map[string]time.Time)
		s.revoked = true
	}

	st := s.state
	if len(s.scenario.Trades) > 0 {
		scripted := s.scenario.Trades[(s.ticks-1)%len(s.scenario.Trades)]
		trade := model.Trade{
			Signature:      newToken()[:16],
			TokenSymbol:    scripted.TokenSymbol,
			Side:           scripted.Side,
			AmountLamports: solToLamports(scripted.AmountSol),
			PnlLamports:    solToLamports(scripted.PnlSol),
			ExecutedAt:     now,
		}

		st.Agent.RecentTrades = append([]model.Trade{trade}, st.Agent.RecentTrades...)
		if len(st.Agent.RecentTrades) > maxTrades {
			st.Agent.RecentTrades = st.Agent.RecentTrades[:maxTrades]
		}

		perf := &st.Agent.Performance
		perf.TotalTrades++
		perf.RealizedPnlLamports += trade.PnlLamports
		if perf.TotalTrades > 0 {
			wins := 0
			for _, tr := range st.Agent.RecentTrades {
				if tr.PnlLamports > 0 {
					wins++
				}
			}
			perf.WinRate = float64(wins) / float64(len(st.Agent.RecentTrades))
		}

		st.Telemetry.Balances.WalletLamports += trade.PnlLamports
		st.Telemetry.Balances.EquityLamports = st.Telemetry.Balances.WalletLamports

		if len(st.Telemetry.Sessions) > 0 {
			sess := &st.Telemetry.Sessions[0]
			sess.TradeCount++
			sess.PnlLamports += trade.PnlLamports
		}

		last := int64(0)
		if n := len(st.Telemetry.PnlHistory); n > 0 {
			last = st.Telemetry.PnlHistory[n-1].Lamports
		}
		st.Telemetry.PnlHistory = append(st.Telemetry.PnlHistory, model.PnlPoint{
			At:       now,
			Lamports: last + trade.PnlLamports,
		})
		if len(st.Telemetry.PnlHistory) > maxPnlPoints {
			st.Telemetry.PnlHistory = st.Telemetry.PnlHistory[len(st.Telemetry.PnlHistory)-maxPnlPoints:]
		}
	}

	st.LastSeenAt = now
	st.StateUpdatedAt = now
	st.Telemetry.RPC.AvgLatencyMs = 40 + 20*mrand.Float64()
	s.state = st

	close(s.changed)
	s.changed = make(chan struct{})
}

// Summary is a one-line status for periodic operator logging.
func (s *Server) Summary() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("ticks=%d viewers=%d wallet=%.4f sol trades=%d",
		s.ticks,
		len(s.tokens),
		float64(s.state.Telemetry.Balances.WalletLamports)/model.LamportsPerSol,
		s.state.Agent.Performance.TotalTrades)
}

func (s *Server) initialState(now time.Time) model.ViewerState {
	lamports := solToLamports(s.scenario.InitialBalanceSol)
	return model.ViewerState{
		AgentID:        s.scenario.AgentID,
		LastSeenAt:     now,
		StateUpdatedAt: now,
		Agent: model.AgentInfo{
			WalletPubkey: s.scenario.WalletPubkey,
			Mainnet:      s.scenario.Mainnet,
		},
		Telemetry: model.TelemetryState{
			Balances: model.Balances{WalletLamports: lamports, EquityLamports: lamports},
			Sessions: []model.Session{{
				ID:        "session-1",
				Status:    "running",
				StartedAt: now,
			}},
			RPC: model.RPCMetrics{
				Endpoint:     s.scenario.RPCEndpoint,
				AvgLatencyMs: 45,
				Healthy:      true,
			},
		},
	}
}

func (s *Server) handlePair(c *gin.Context) {
	var body struct {
		PairingCode string `json:"pairing_code"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.PairingCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "bad_request"})
		return
	}

	valid := false
	for _, code := range s.scenario.PairingCodes {
		if body.PairingCode == code {
			valid = true
			break
		}
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid_or_expired_pairing_code"})
		return
	}

	token := newToken()
	expiry := time.Now().UTC().Add(tokenTTL)
	s.mu.Lock()
	s.tokens[token] = expiry
	s.revoked = false
	agentID := s.scenario.AgentID
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"agent_id":     agentID,
		"viewer_token": token,
		"expires_at":   expiry.Format(time.RFC3339),
	})
}

// auth validates the bearer token on state endpoints.
func (s *Server) auth(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	s.mu.Lock()
	expiry, ok := s.tokens[token]
	s.mu.Unlock()

	if token == "" || !ok || time.Now().After(expiry) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
		return
	}
	c.Next()
}

func (s *Server) injectError(c *gin.Context) bool {
	if s.scenario.ErrorRate > 0 && mrand.Float64() < s.scenario.ErrorRate {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "request_failed"})
		return true
	}
	return false
}

func (s *Server) handleState(c *gin.Context) {
	if s.injectError(c) {
		return
	}
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleStateStream(c *gin.Context) {
	if s.injectError(c) {
		return
	}

	var since time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "bad_request"})
			return
		}
		since = parsed
	}

	hold := 8 * time.Second
	if raw := c.Query("timeout_ms"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "bad_request"})
			return
		}
		hold = time.Duration(ms) * time.Millisecond
	}
	if hold > maxStreamHold {
		hold = maxStreamHold
	}

	deadline := time.NewTimer(hold)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		st := s.state
		changed := s.changed
		s.mu.Unlock()

		// No cursor means "give me what you have now".
		if since.IsZero() || st.StateUpdatedAt.After(since) || st.LastSeenAt.After(since) {
			c.JSON(http.StatusOK, st)
			return
		}

		select {
		case <-changed:
		case <-deadline.C:
			c.Status(http.StatusNoContent)
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (s *Server) handlePriceUSD(c *gin.Context) {
	c.JSON(http.StatusOK, s.quote("usd"))
}

func (s *Server) handlePrice(c *gin.Context) {
	currency := strings.ToLower(c.Param("currency"))
	if currency != "usd" {
		if _, ok := s.scenario.FiatRates[currency]; !ok {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "bad_request"})
			return
		}
	}
	c.JSON(http.StatusOK, s.quote(currency))
}

func (s *Server) quote(currency string) model.PriceQuote {
	rate := s.scenario.PriceUsd
	if rate <= 0 {
		rate = 150
	}
	if currency != "usd" {
		rate *= s.scenario.FiatRates[currency]
	}
	return model.PriceQuote{
		Currency:  currency,
		Rate:      rate,
		Source:    "sim",
		FetchedAt: time.Now().UTC(),
	}
}

func (s *Server) handleDisconnect(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func newToken() string {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		log.Printf("agentsim: token entropy: %v", err)
	}
	return hex.EncodeToString(buf)
}

func solToLamports(sol float64) int64 {
	return int64(sol * model.LamportsPerSol)
}
