package poller

import (
	"sync"

	"github.com/lasersell/viewer/internal/model"
)

// Supervisor ties controller lifecycle to the credential store: any store
// change (local or from another process) stops the current controller and,
// when a valid credential remains, starts a fresh one with a fresh
// watermark. Subscribers read one merged updates channel across swaps.
type Supervisor struct {
	client model.StateStreamer
	store  model.CredentialStore
	opts   Options

	updates chan Update

	// syncMu serializes credential swaps so watcher callbacks and Stop
	// never interleave a half-finished swap.
	syncMu    sync.Mutex
	ctrl      *Controller
	fwdDone   chan struct{}
	cred      model.Credential
	haveCred  bool
	stopWatch func()

	mu      sync.Mutex
	current Update
	closed  bool
}

// NewSupervisor creates a supervisor. Call Start to begin watching the
// store and polling.
func NewSupervisor(client model.StateStreamer, store model.CredentialStore, opts Options) *Supervisor {
	return &Supervisor{
		client:  client,
		store:   store,
		opts:    opts,
		updates: make(chan Update, opts.updateBuffer()),
		current: Update{Status: model.StatusIdle},
	}
}

// Start wires the store watcher and starts a controller when a credential
// is already present.
func (s *Supervisor) Start() error {
	stop, err := s.store.Watch(s.sync)
	if err != nil {
		return err
	}
	s.stopWatch = stop
	s.sync()
	return nil
}

// Updates returns the merged publication channel, closed by Stop.
func (s *Supervisor) Updates() <-chan Update { return s.updates }

// Current returns the most recently published update.
func (s *Supervisor) Current() Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Retry forwards a manual retry to the active controller, if any.
func (s *Supervisor) Retry() {
	s.syncMu.Lock()
	ctrl := s.ctrl
	s.syncMu.Unlock()
	if ctrl != nil {
		ctrl.Retry()
	}
}

// Stop halts the watcher and the active controller. No updates are
// published after Stop returns; the updates channel is closed.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	// The watcher goroutine may be inside sync waiting on syncMu; it bails
	// out on the closed flag, so stopping it before taking syncMu is safe.
	if s.stopWatch != nil {
		s.stopWatch()
	}

	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	if s.ctrl != nil {
		s.ctrl.Stop()
		<-s.fwdDone
		s.ctrl = nil
	}
	close(s.updates)
}

// sync reconciles the running controller with the stored credential.
func (s *Supervisor) sync() {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	cred, ok := s.store.Get()
	if ok == s.haveCred && (!ok || credEqual(cred, s.cred)) {
		return
	}

	if s.ctrl != nil {
		s.ctrl.Stop()
		<-s.fwdDone // drain the old forwarder so updates stay ordered
		s.ctrl = nil
	}

	s.cred, s.haveCred = cred, ok
	if !ok {
		// Credential removed. Keep an Unauthorized verdict on screen; a
		// plain disconnect reads as Idle.
		if s.Current().Status != model.StatusUnauthorized {
			s.publish(Update{Status: model.StatusIdle})
		}
		return
	}

	ctrl := New(s.client, s.store, cred, s.opts)
	done := make(chan struct{})
	s.ctrl = ctrl
	s.fwdDone = done
	go s.forward(ctrl, done)
}

func (s *Supervisor) forward(ctrl *Controller, done chan struct{}) {
	defer close(done)
	for u := range ctrl.Updates() {
		s.publish(u)
	}
}

func (s *Supervisor) publish(u Update) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.current = u
	s.mu.Unlock()

	select {
	case s.updates <- u:
	default:
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- u:
		default:
		}
	}
}

func credEqual(a, b model.Credential) bool {
	return a.AgentID == b.AgentID &&
		a.ViewerToken == b.ViewerToken &&
		a.ExpiresAt.Equal(b.ExpiresAt)
}
