package tests

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lasersell/viewer/internal/agentsim"
	"github.com/lasersell/viewer/internal/credstore"
	"github.com/lasersell/viewer/internal/model"
	"github.com/lasersell/viewer/internal/poller"
	"github.com/lasersell/viewer/internal/telemetry"
)

type e2eStack struct {
	srv    *agentsim.Server
	client *telemetry.Client
	store  *credstore.Store
	path   string
}

// startE2EStack boots a real simulated agent on a loopback port plus a
// credential store in a temp dir.
func startE2EStack(t *testing.T, sc agentsim.Scenario) *e2eStack {
	t.Helper()

	srv := agentsim.NewServer("127.0.0.1:0", sc)
	if err := srv.Start(); err != nil {
		t.Fatalf("starting sim: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })

	path := filepath.Join(t.TempDir(), "credentials.json")
	store, err := credstore.New(path)
	if err != nil {
		t.Fatalf("credstore.New: %v", err)
	}

	return &e2eStack{
		srv:    srv,
		client: telemetry.New("http://" + srv.Addr()),
		store:  store,
		path:   path,
	}
}

func fastPollOpts() poller.Options {
	return poller.Options{
		WaitBudget:     2 * time.Second,
		BackoffFloor:   50 * time.Millisecond,
		BackoffCeiling: 400 * time.Millisecond,
	}
}

func (s *e2eStack) pair(t *testing.T, code string) model.Credential {
	t.Helper()
	result, err := s.client.Pair(context.Background(), code)
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	cred := model.Credential{
		AgentID:     result.AgentID,
		ViewerToken: result.ViewerToken,
		ExpiresAt:   result.ExpiresAt,
	}
	if err := s.store.Set(cred); err != nil {
		t.Fatalf("store.Set: %v", err)
	}
	return cred
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached within " + timeout.String())
}

func TestE2E_PairAndLiveUpdates(t *testing.T) {
	sc := agentsim.DefaultScenario()
	sc.TickInterval = 150 * time.Millisecond
	stack := startE2EStack(t, sc)
	stack.pair(t, sc.PairingCodes[0])

	sup := poller.NewSupervisor(stack.client, stack.store, fastPollOpts())
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop()

	waitFor(t, 5*time.Second, func() bool {
		u := sup.Current()
		return u.Status == model.StatusLive && u.State != nil
	})

	first := sup.Current().State.StateUpdatedAt

	// The scenario keeps ticking; the long poll must deliver a newer
	// snapshot without any client-side polling interval.
	waitFor(t, 5*time.Second, func() bool {
		u := sup.Current()
		return u.State != nil && u.State.StateUpdatedAt.After(first)
	})

	st := sup.Current().State
	if st.AgentID != sc.AgentID {
		t.Fatalf("agent id = %q", st.AgentID)
	}
	if len(st.Agent.RecentTrades) == 0 {
		t.Fatal("no trades after scenario ticks")
	}
}

func TestE2E_TokenRevocationClearsCredential(t *testing.T) {
	sc := agentsim.DefaultScenario()
	sc.TickInterval = 100 * time.Millisecond
	sc.UnauthorizedAfter = 2
	stack := startE2EStack(t, sc)
	stack.pair(t, sc.PairingCodes[0])

	sup := poller.NewSupervisor(stack.client, stack.store, fastPollOpts())
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop()

	waitFor(t, 5*time.Second, func() bool {
		return sup.Current().Status == model.StatusUnauthorized
	})

	// The rejected credential must be gone from disk.
	waitFor(t, 2*time.Second, func() bool {
		_, ok := stack.store.Get()
		return !ok
	})
	if _, err := os.Stat(stack.path); !os.IsNotExist(err) {
		t.Fatalf("credential file still present: %v", err)
	}
}

func TestE2E_ExternalPairingStartsLoop(t *testing.T) {
	sc := agentsim.DefaultScenario()
	sc.TickInterval = 150 * time.Millisecond
	stack := startE2EStack(t, sc)

	// No credential yet: the supervisor idles.
	sup := poller.NewSupervisor(stack.client, stack.store, fastPollOpts())
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop()

	if got := sup.Current().Status; got != model.StatusIdle {
		t.Fatalf("status before pairing = %v", got)
	}

	// Pairing through a second store instance writes the same file; the
	// filesystem watch must pick it up and start polling.
	other, err := credstore.New(stack.path)
	if err != nil {
		t.Fatalf("credstore.New: %v", err)
	}
	result, err := stack.client.Pair(context.Background(), sc.PairingCodes[0])
	if err != nil {
		t.Fatalf("Pair: %v", err)
	}
	if err := other.Set(model.Credential{
		AgentID:     result.AgentID,
		ViewerToken: result.ViewerToken,
		ExpiresAt:   result.ExpiresAt,
	}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		u := sup.Current()
		return u.Status == model.StatusLive && u.State != nil
	})
}
