// Package poller owns the long-poll loop that keeps a resumable telemetry
// feed alive for one credential. One Controller instance serves one
// credential lifetime: it maintains the watermark cursor, applies
// exponential backoff on failure, invalidates the credential on a 401, and
// publishes every observable change through a single-writer channel. A
// credential swap never reuses an instance; the Supervisor starts a fresh
// one with a fresh watermark.
package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lasersell/viewer/internal/model"
	"github.com/lasersell/viewer/internal/telemetry"
)

// Options tune one poll loop. Zero values fall back to the shared defaults.
type Options struct {
	// WaitBudget is the server-side hold requested per stream call.
	WaitBudget time.Duration

	// BackoffFloor and BackoffCeiling bound the exponential retry delay.
	BackoffFloor   time.Duration
	BackoffCeiling time.Duration

	// UpdateBuffer sizes the Updates channel. When the subscriber lags, the
	// oldest buffered update is dropped; Current always holds the latest.
	UpdateBuffer int
}

func (o Options) waitBudget() time.Duration {
	if o.WaitBudget > 0 {
		return o.WaitBudget
	}
	return model.DefaultWaitBudget
}

func (o Options) floor() time.Duration {
	if o.BackoffFloor > 0 {
		return o.BackoffFloor
	}
	return model.DefaultBackoffFloor
}

func (o Options) ceiling() time.Duration {
	if o.BackoffCeiling > 0 {
		return o.BackoffCeiling
	}
	return model.DefaultBackoffCeiling
}

func (o Options) updateBuffer() int {
	if o.UpdateBuffer > 0 {
		return o.UpdateBuffer
	}
	return 64
}

// Update is one published observation. State carries the latest snapshot
// and survives failures: stale-but-present data beats blanking the UI.
type Update struct {
	State   *model.ViewerState
	Status  model.PollingStatus
	Err     error
	Loading bool // true only until the first success or failure
}

// Controller runs the poll loop for exactly one credential.
type Controller struct {
	client model.StateStreamer
	creds  model.CredentialClearer
	cred   model.Credential
	opts   Options

	ctx     context.Context
	cancel  context.CancelFunc
	retry   chan struct{}
	updates chan Update
	done    chan struct{}

	mu      sync.Mutex
	current Update
}

// New creates the controller and launches its loop. The loop issues one
// request at a time; creds.Clear is invoked exactly once if the server
// rejects the credential with a 401.
func New(client model.StateStreamer, creds model.CredentialClearer, cred model.Credential, opts Options) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		client:  client,
		creds:   creds,
		cred:    cred,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		retry:   make(chan struct{}, 1),
		updates: make(chan Update, opts.updateBuffer()),
		done:    make(chan struct{}),
	}
	c.current = Update{Status: model.StatusLoading, Loading: true}
	go c.run()
	return c
}

// Updates returns the publication channel. It is closed when the loop
// halts (Stop, or the unauthorized fast path).
func (c *Controller) Updates() <-chan Update { return c.updates }

// Current returns the most recently published update, for subscribers that
// attach late.
func (c *Controller) Current() Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Retry cuts the pending backoff wait short and re-issues the next
// request immediately. The watermark is untouched. A retry pressed while
// the loop is healthy is discarded on the next success, never banked
// against a later wait.
func (c *Controller) Retry() {
	select {
	case c.retry <- struct{}{}:
	default:
	}
}

// clearRetry drops a pending manual retry. A retry pressed before a
// success went stale with it; carrying the token forward would shorten a
// later, unrelated backoff wait.
func (c *Controller) clearRetry() {
	select {
	case <-c.retry:
	default:
	}
}

// Stop cancels the in-flight request and blocks until the loop has halted.
// After Stop returns, no further updates are published: a response that
// resolves later is discarded, never surfaced.
func (c *Controller) Stop() {
	c.cancel()
	<-c.done
}

func (c *Controller) run() {
	defer close(c.done)
	defer close(c.updates)

	var (
		watermark time.Time
		haveMark  bool
		lastState *model.ViewerState
		delay     = c.opts.floor()
	)

	c.publish(Update{Status: model.StatusLoading, Loading: true})

	for {
		var since *time.Time
		if haveMark {
			since = &watermark
		}

		state, err := c.client.FetchStateStream(c.ctx, c.cred.AgentID, c.cred.ViewerToken, since, c.opts.waitBudget())

		// The network call is the suspension point: re-check cancellation
		// before touching any state or publishing.
		if c.ctx.Err() != nil {
			return
		}

		switch {
		case err == nil && state != nil:
			c.clearRetry()
			if mark := watermarkOf(state, time.Now()); !haveMark || mark.After(watermark) {
				watermark = mark
				haveMark = true
			}
			lastState = state
			delay = c.opts.floor()
			c.publish(Update{State: lastState, Status: model.StatusLive})

		case err == nil:
			// 204 no-change: keep the published snapshot, clear the error,
			// reset backoff, go straight into the next long poll.
			c.clearRetry()
			delay = c.opts.floor()
			c.publish(Update{State: lastState, Status: model.StatusLive})

		case telemetry.IsUnauthorized(err):
			if clearErr := c.creds.Clear(); clearErr != nil {
				log.Printf("poller: clearing rejected credential: %v", clearErr)
			}
			c.publish(Update{State: lastState, Status: model.StatusUnauthorized, Err: err})
			return

		default:
			c.publish(Update{State: lastState, Status: model.StatusDegraded, Err: err})
			if !c.wait(retryWait(delay, err)) {
				return
			}
			delay = nextDelay(delay, c.opts.ceiling())
		}
	}
}

// wait sleeps for d, cut short by a manual retry. Returns false when the
// loop was cancelled during the wait.
func (c *Controller) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-c.retry:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Controller) publish(u Update) {
	c.mu.Lock()
	c.current = u
	c.mu.Unlock()

	select {
	case c.updates <- u:
	default:
		// Subscriber is lagging: drop the oldest buffered update so the
		// newest one always lands.
		select {
		case <-c.updates:
		default:
		}
		select {
		case c.updates <- u:
		default:
		}
	}
}

// watermarkOf picks the cursor a snapshot advances to:
// max(StateUpdatedAt, LastSeenAt), or now when the snapshot carries
// neither timestamp.
func watermarkOf(state *model.ViewerState, now time.Time) time.Time {
	mark := state.StateUpdatedAt
	if state.LastSeenAt.After(mark) {
		mark = state.LastSeenAt
	}
	if mark.IsZero() {
		return now
	}
	return mark
}

// retryWait picks the backoff wait for one failure: the local exponential
// delay, or the server's Retry-After when that is larger. Honoring the
// larger of the two respects an explicit server throttle without ever
// retrying faster than the local schedule.
func retryWait(delay time.Duration, err error) time.Duration {
	if apiErr, ok := telemetry.AsAPIError(err); ok && apiErr.RetryAfter > delay {
		return apiErr.RetryAfter
	}
	return delay
}

func nextDelay(delay, ceiling time.Duration) time.Duration {
	delay *= 2
	if delay > ceiling {
		return ceiling
	}
	return delay
}
