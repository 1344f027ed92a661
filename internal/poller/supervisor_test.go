package poller

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/lasersell/viewer/internal/model"
	"github.com/lasersell/viewer/internal/telemetry"
)

// fakeStore is an in-memory CredentialStore. Watch callbacks fire on their
// own goroutine, matching the filesystem watcher's delivery.
type fakeStore struct {
	mu       sync.Mutex
	cred     model.Credential
	have     bool
	clears   int
	watchers []func()
}

func (f *fakeStore) Get() (model.Credential, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.have {
		return model.Credential{}, false
	}
	return f.cred, true
}

func (f *fakeStore) Set(cred model.Credential) error {
	f.mu.Lock()
	f.cred = cred
	f.have = true
	f.mu.Unlock()
	f.notify()
	return nil
}

func (f *fakeStore) Clear() error {
	f.mu.Lock()
	f.have = false
	f.cred = model.Credential{}
	f.clears++
	f.mu.Unlock()
	f.notify()
	return nil
}

func (f *fakeStore) Watch(onChange func()) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watchers = append(f.watchers, onChange)
	return func() {}, nil
}

func (f *fakeStore) notify() {
	f.mu.Lock()
	watchers := append(([]func())(nil), f.watchers...)
	f.mu.Unlock()
	go func() {
		for _, w := range watchers {
			w()
		}
	}()
}

func (f *fakeStore) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clears
}

func TestSupervisorStartsForExistingCredential(t *testing.T) {
	store := &fakeStore{}
	_ = store.Set(model.Credential{AgentID: "a1", ViewerToken: "t1"})

	fake := newFakeStreamer() // blocks every request until cancelled
	sup := NewSupervisor(fake, store, fastOpts())
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop()

	call := awaitCall(t, fake)
	if call.AgentID != "a1" || call.Token != "t1" || call.Since != nil {
		t.Fatalf("call = %+v", call)
	}
}

func TestSupervisorIdleWithoutCredential(t *testing.T) {
	store := &fakeStore{}
	fake := newFakeStreamer()
	sup := NewSupervisor(fake, store, fastOpts())
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop()

	if got := sup.Current().Status; got != model.StatusIdle {
		t.Fatalf("status = %v, want idle", got)
	}
	time.Sleep(20 * time.Millisecond)
	if fake.callCount() != 0 {
		t.Fatal("requests issued without a credential")
	}
}

func TestSupervisorRestartsOnCredentialSwap(t *testing.T) {
	store := &fakeStore{}
	_ = store.Set(model.Credential{AgentID: "a1", ViewerToken: "t1"})

	updated := time.Date(2024, 1, 1, 0, 0, 10, 0, time.UTC)
	fake := newFakeStreamer(step{state: snapshotAt(updated)}) // then blocks

	sup := NewSupervisor(fake, store, fastOpts())
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop()

	awaitCall(t, fake)
	second := awaitCall(t, fake)
	if second.Since == nil {
		t.Fatal("second call on first loop lost the watermark")
	}

	// Swap credentials: the old loop is cancelled and the fresh loop must
	// start over with no cursor.
	_ = store.Set(model.Credential{AgentID: "a2", ViewerToken: "t2"})

	deadline := time.After(2 * time.Second)
	for {
		var call streamCall
		select {
		case call = <-fake.callCh:
		case <-deadline:
			t.Fatal("no request from the fresh loop")
		}
		if call.AgentID != "a2" {
			continue // stragglers from the superseded loop
		}
		if call.Token != "t2" || call.Since != nil {
			t.Fatalf("fresh loop call = %+v, want a2/t2 with nil cursor", call)
		}
		return
	}
}

func TestSupervisorIdleAfterDisconnect(t *testing.T) {
	store := &fakeStore{}
	_ = store.Set(model.Credential{AgentID: "a1", ViewerToken: "t1"})

	fake := newFakeStreamer()
	sup := NewSupervisor(fake, store, fastOpts())
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop()

	awaitCall(t, fake)
	_ = store.Clear()

	waitFor(t, func() bool { return sup.Current().Status == model.StatusIdle })
}

func TestSupervisorUnauthorizedFlowAndRepair(t *testing.T) {
	store := &fakeStore{}
	_ = store.Set(model.Credential{AgentID: "a1", ViewerToken: "t1"})

	fake := newFakeStreamer(step{err: &telemetry.APIError{Status: http.StatusUnauthorized, Code: telemetry.CodeUnauthorized}})
	sup := NewSupervisor(fake, store, fastOpts())
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop()

	awaitCall(t, fake)
	waitFor(t, func() bool { return sup.Current().Status == model.StatusUnauthorized })

	if got := store.clearCount(); got != 1 {
		t.Fatalf("credential clears = %d, want 1", got)
	}
	if _, ok := store.Get(); ok {
		t.Fatal("store still holds the rejected credential")
	}
	// The Unauthorized verdict stays visible after the store empties out.
	time.Sleep(50 * time.Millisecond)
	if got := sup.Current().Status; got != model.StatusUnauthorized {
		t.Fatalf("status after clear = %v, want unauthorized", got)
	}

	// Re-pairing starts a brand-new loop with a nil watermark.
	_ = store.Set(model.Credential{AgentID: "a1", ViewerToken: "t2"})
	call := awaitCall(t, fake)
	if call.Token != "t2" || call.Since != nil {
		t.Fatalf("repaired loop call = %+v, want t2 with nil cursor", call)
	}
}

func TestSupervisorStopClosesUpdates(t *testing.T) {
	store := &fakeStore{}
	_ = store.Set(model.Credential{AgentID: "a1", ViewerToken: "t1"})

	fake := newFakeStreamer()
	sup := NewSupervisor(fake, store, fastOpts())
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	awaitCall(t, fake)
	sup.Stop()

	for range sup.Updates() {
	}
	// Stop is idempotent.
	sup.Stop()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}
