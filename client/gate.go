package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meridian-courier/device-trust/fingerprint"
	"github.com/meridian-courier/device-trust/models"
)

// State is the gate's view of the current device for the loaded account.
type State int

const (
	// StateUnknown: the device list has not resolved yet.
	StateUnknown State = iota
	// StateNoDevices: the account has no registered devices. Transient;
	// the gate immediately self-bootstraps this device as the primary.
	StateNoDevices
	StateApproved
	StatePending
	// StateBlocked: the device is present with a status outside the
	// allowed set, or absent after this session had registered it.
	StateBlocked
)

func (s State) String() string {
	switch s {
	case StateNoDevices:
		return "no_devices"
	case StateApproved:
		return "approved"
	case StatePending:
		return "pending"
	case StateBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Surfaces the gate redirects to when it denies access.
const (
	RedirectLogin            = "/login"
	RedirectAwaitingApproval = "/awaiting-approval"
)

// Decision is the gate's answer for protected routes. A pending device is
// denied content but not signed out: it is parked on the waiting surface
// with its transport session intact. Provisional marks the deliberate
// availability trade where the safety timeout resolved the gate before the
// session check did.
type Decision struct {
	Allowed     bool
	Redirect    string
	Provisional bool
}

var ErrNotSignedIn = errors.New("gate: not signed in")

type GateOptions struct {
	Resolver  *fingerprint.Resolver
	UserAgent string
	// ResolveTimeout bounds the initial session check. When it fires the
	// gate resolves provisionally instead of hanging on "loading"; this
	// can transiently present pre-authorization content and is a
	// deliberate, bounded-risk trade, not a bug.
	ResolveTimeout time.Duration
	// PollInterval drives the full-refetch fallback that repairs the
	// cache whenever the realtime feed is down or lossy.
	PollInterval time.Duration
	OnChange     func(State)
	Log          *logrus.Logger
}

// Gate owns the authorization decision for this device. It recomputes on
// every cache mutation, whichever of the three writers caused it.
type Gate struct {
	client *Client
	opts   GateOptions
	log    *logrus.Logger

	deviceID string
	runCtx   context.Context
	done     chan struct{}

	mu           sync.Mutex
	closed       bool
	state        State
	provisional  bool
	refreshed    bool // at least one fetch succeeded this session
	registered   bool // this session has (optimistically) registered its row
	loginLogged  bool
	stopRealtime func()
	stopStore    func()
}

func NewGate(c *Client, opts GateOptions) *Gate {
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = 4 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 30 * time.Second
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Gate{client: c, opts: opts, log: log, state: StateUnknown, done: make(chan struct{})}
}

// Run resolves the gate for the signed-in account and starts the background
// reconciliation (poll loop now, realtime once the device is registered).
// It returns once the initial resolution is done; Close or ctx cancellation
// tears the background work down.
func (g *Gate) Run(ctx context.Context) error {
	g.runCtx = ctx
	g.deviceID = g.opts.Resolver.DeviceID()

	sctx, cancel := context.WithTimeout(ctx, g.opts.ResolveTimeout)
	_, err := g.client.Session(sctx)
	cancel()
	if err != nil {
		if errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			g.mu.Lock()
			g.provisional = true
			g.mu.Unlock()
			g.log.Warn("gate: session check timed out, resolving provisionally")
		} else {
			return fmt.Errorf("%w: %v", ErrNotSignedIn, err)
		}
	}

	g.mu.Lock()
	g.stopStore = g.client.Store().Subscribe(g.recompute)
	g.mu.Unlock()

	if err := g.client.RefreshDevices(ctx); err != nil {
		// Ambiguous-empty guard: a failed fetch is not "no devices". The
		// gate stays unresolved rather than bootstrapping a primary off a
		// transient outage; polling retries.
		g.log.WithError(err).Warn("gate: initial device fetch failed")
	} else {
		g.mu.Lock()
		g.refreshed = true
		g.mu.Unlock()
		g.ensureRegistered()
	}
	g.recompute()

	go g.pollLoop(ctx)
	return nil
}

func (g *Gate) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(g.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			g.Close()
			return
		case <-g.done:
			return
		case <-ticker.C:
			if err := g.client.RefreshDevices(ctx); err != nil {
				g.log.WithError(err).Debug("gate: poll refetch failed")
				continue
			}
			g.mu.Lock()
			g.refreshed = true
			g.mu.Unlock()
			g.ensureRegistered()
		}
	}
}

// ensureRegistered makes sure this device has a registry row once the list
// has resolved. An empty account self-bootstraps as primary+approved,
// optimistically, without waiting for the write to land; otherwise the
// device registers as pending. Absence after a successful registration is
// revocation and is never repaired here.
func (g *Gate) ensureRegistered() {
	g.mu.Lock()
	if g.registered || !g.refreshed {
		g.mu.Unlock()
		return
	}
	if _, ok := g.client.Store().Get(g.deviceID); ok {
		g.registered = true
		g.mu.Unlock()
		return
	}
	g.registered = true
	g.mu.Unlock()

	meta := fingerprint.Sniff(g.opts.UserAgent)
	d := models.TrustedDevice{
		ID:         g.deviceID,
		AccountID:  g.client.Account().ID,
		DeviceName: meta.Name,
		DeviceType: meta.Kind,
		Browser:    meta.Browser,
		LastActive: "just now",
	}
	if len(g.client.Store().Snapshot()) == 0 {
		d.Status = models.StatusApproved
		d.IsPrimary = true
	} else {
		d.Status = models.StatusPending
	}

	// Immediate optimistic transition; the server write completes behind
	// it. On failure UpsertDevice reverts via refetch and registration is
	// re-armed for the next poll.
	g.client.Store().Upsert(d)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := g.client.UpsertDevice(ctx, d); err != nil {
			g.log.WithError(err).Warn("gate: device registration failed")
			g.mu.Lock()
			g.registered = false
			g.mu.Unlock()
			g.recompute()
		}
	}()
}

// recompute re-derives the state from the cache. Runs on every store
// mutation.
func (g *Gate) recompute() {
	d, present := g.client.Store().Get(g.deviceID)
	empty := len(g.client.Store().Snapshot()) == 0

	g.mu.Lock()
	prev := g.state
	var next State
	switch {
	case present && d.Status == models.StatusApproved:
		next = StateApproved
	case present && d.Status == models.StatusPending:
		next = StatePending
	case present:
		next = StateBlocked
	case g.registered:
		// Our row vanished: revoked. The device must not re-promote
		// itself.
		next = StateBlocked
	case g.refreshed && empty:
		next = StateNoDevices
	default:
		next = StateUnknown
	}
	g.state = next
	changed := next != prev
	g.mu.Unlock()

	if changed {
		g.onTransition(next, d)
		if g.opts.OnChange != nil {
			g.opts.OnChange(next)
		}
	}
}

func (g *Gate) onTransition(next State, d models.TrustedDevice) {
	switch next {
	case StateApproved:
		g.mu.Lock()
		firstApproval := !g.loginLogged
		g.loginLogged = true
		g.mu.Unlock()
		if firstApproval {
			g.client.AppendActivity(models.ActionLogin, "device trusted for session", d.DeviceName)
		}
		g.seedRealtime()
	case StatePending:
		// The waiting surface observes its own approval through the same
		// feed, so the subscription starts here too.
		g.seedRealtime()
	case StateBlocked:
		g.mu.Lock()
		stop := g.stopRealtime
		g.stopRealtime = nil
		g.mu.Unlock()
		if stop != nil {
			stop()
		}
	}
}

func (g *Gate) seedRealtime() {
	g.mu.Lock()
	if g.stopRealtime != nil || g.runCtx == nil {
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	cancel, err := g.client.SubscribeRealtime(g.runCtx)
	if err != nil {
		// Polling still reconciles; retry on a later transition.
		g.log.WithError(err).Debug("gate: realtime subscription failed")
		return
	}
	g.mu.Lock()
	if g.stopRealtime != nil {
		g.mu.Unlock()
		cancel()
		return
	}
	g.stopRealtime = cancel
	g.mu.Unlock()

	// The subscription starts after the state that triggered it was already
	// observable, so a write landing in that window never reached the feed.
	// One refetch now closes the window; the merge is idempotent by id, so
	// rows the feed also delivers cost nothing.
	go func() {
		rctx, rcancel := context.WithTimeout(g.runCtx, 10*time.Second)
		defer rcancel()
		if err := g.client.RefreshDevices(rctx); err != nil {
			g.log.WithError(err).Debug("gate: post-subscribe refetch failed")
			return
		}
		g.mu.Lock()
		g.refreshed = true
		g.mu.Unlock()
		g.recompute()
	}()
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gate) DeviceID() string { return g.deviceID }

// Decide answers whether the current device may enter protected routes.
func (g *Gate) Decide() Decision {
	g.mu.Lock()
	state := g.state
	provisional := g.provisional
	g.mu.Unlock()

	switch state {
	case StateApproved:
		return Decision{Allowed: true}
	case StatePending:
		return Decision{Redirect: RedirectAwaitingApproval}
	case StateBlocked:
		return Decision{Redirect: RedirectLogin}
	default:
		if provisional {
			return Decision{Allowed: true, Provisional: true}
		}
		// Still loading; no redirect yet.
		return Decision{}
	}
}

// Close stops reconciliation. Safe to call more than once.
func (g *Gate) Close() {
	g.mu.Lock()
	if !g.closed {
		g.closed = true
		close(g.done)
	}
	stopRT := g.stopRealtime
	g.stopRealtime = nil
	stopStore := g.stopStore
	g.stopStore = nil
	g.mu.Unlock()
	if stopRT != nil {
		stopRT()
	}
	if stopStore != nil {
		stopStore()
	}
}
