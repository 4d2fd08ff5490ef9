// Package state owns the coordinator's authoritative state machine. All
// mutations happen here; every other context reads and writes through the
// message dispatch surface.
package state

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gatorguard/coordinator/internal/cache"
	"github.com/gatorguard/coordinator/internal/gateway"
	"github.com/gatorguard/coordinator/internal/logging"
	"github.com/gatorguard/coordinator/internal/metrics"
	"github.com/gatorguard/coordinator/internal/types"
	"github.com/gatorguard/coordinator/internal/urlfilter"
)

// TabSource resolves the currently active tab. Enforcement re-resolves the
// target at instruction time, never trusting a tab captured earlier in the
// pipeline.
type TabSource interface {
	ActiveTab() (types.TabRef, bool)
}

// Pusher delivers enforcement instructions and broadcasts to connected
// contexts. All sends are fire-and-forget; a missing receiver never fails
// the triggering operation.
type Pusher interface {
	Blur(tab types.TabRef, mode types.Mode)
	Unblur(tab types.TabRef)
	Notify(n types.Notification)
	CloseTab(tabID int)
	Broadcast(frame types.Frame)
}

// Coordinator is the single writer of extension state and the local cache.
// Handlers lock around state access, so mutations never interleave even
// while remote calls are in flight.
type Coordinator struct {
	mu            sync.Mutex
	snap          types.Snapshot
	authenticated bool
	user          *gateway.User

	cache    *cache.Store
	gw       gateway.API
	filter   *urlfilter.Filter
	tabs     TabSource
	push     Pusher
	log      *logging.Logger
	metrics  *metrics.Metrics
	handlers map[types.MessageType]HandlerFunc
}

// New constructs the coordinator, hydrated from the local cache. The
// caller is expected to schedule an immediate auth check via
// RunAuthPolling.
func New(store *cache.Store, gw gateway.API, filter *urlfilter.Filter, tabs TabSource, push Pusher, log *logging.Logger, m *metrics.Metrics) *Coordinator {
	snap, err := store.Load()
	if err != nil {
		log.Warn("falling back to default state", zap.Error(err))
	}

	c := &Coordinator{
		snap:    snap,
		cache:   store,
		gw:      gw,
		filter:  filter,
		tabs:    tabs,
		push:    push,
		log:     log,
		metrics: m,
	}
	c.handlers = c.dispatchTable()
	return c
}

// Bind attaches the tab source and push surface. The bus hub and tab
// monitor are built after the coordinator, so startup wiring calls Bind
// once before any traffic is served.
func (c *Coordinator) Bind(tabs TabSource, push Pusher) {
	c.tabs = tabs
	c.push = push
}

// Announce broadcasts the initialization frame so already-open contexts
// learn the coordinator restarted.
func (c *Coordinator) Announce() {
	c.push.Broadcast(types.NewFrame("", types.MsgInitialized, map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}))
}

// RunAuthPolling checks authentication immediately and then every
// interval until ctx is cancelled.
func (c *Coordinator) RunAuthPolling(ctx context.Context, interval time.Duration) {
	c.checkAuth(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAuth(ctx)
		}
	}
}

// Snapshot returns a copy of the current durable state plus auth flag.
func (c *Coordinator) Snapshot() (types.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(), c.authenticated
}

func (c *Coordinator) snapshotLocked() types.Snapshot {
	snap := c.snap
	snap.RecentLinks = append([]types.LinkRecord(nil), c.snap.RecentLinks...)
	return snap
}

// checkAuth performs the remote authentication check, updates state, and
// broadcasts once if the value changed. The false-to-true edge also syncs
// mode data from the remote store before the broadcast.
func (c *Coordinator) checkAuth(ctx context.Context) bool {
	status, err := c.gw.CheckAuth(ctx)
	if err != nil {
		c.metrics.GatewayFailures.WithLabelValues("check_auth").Inc()
		c.log.Warn("auth check failed, treating as unauthenticated", zap.Error(err))
	}

	c.mu.Lock()
	was := c.authenticated
	c.authenticated = status.Authenticated
	if status.Authenticated {
		c.user = status.User
	} else {
		c.user = nil
	}
	c.mu.Unlock()

	if was == status.Authenticated {
		return status.Authenticated
	}

	if !was && status.Authenticated {
		// Remote mode data supersedes the cached value once a session
		// exists. Sync before broadcasting so the single broadcast
		// carries the final state.
		c.syncModeFromRemote(ctx)
	}
	c.broadcastState()
	return status.Authenticated
}

// syncModeFromRemote overwrites local mode state with the remote store's
// values. Returns false when the remote is unreachable; local state is
// left untouched in that case.
func (c *Coordinator) syncModeFromRemote(ctx context.Context) bool {
	settings, err := c.gw.FetchMode(ctx)
	if err != nil {
		c.metrics.GatewayFailures.WithLabelValues("fetch_mode").Inc()
		c.log.Warn("mode sync failed, keeping local mode", zap.Error(err))
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.CurrentMode = settings.Mode
	if settings.Mode == types.ModeStudy && settings.Submode != nil && settings.Submode.Valid() {
		sub := *settings.Submode
		c.snap.Submode = &sub
	} else {
		c.snap.Submode = nil
	}
	c.snap.LyricsEnabled = settings.Lyrics
	c.persistLocked()
	return true
}

// persistLocked flushes the snapshot to the local cache. Callers hold mu.
func (c *Coordinator) persistLocked() {
	if err := c.cache.Save(c.snap); err != nil {
		c.log.Error("failed to persist state", zap.Error(err))
	}
}

// broadcastState pushes the full state delta to every listening context.
func (c *Coordinator) broadcastState() {
	c.mu.Lock()
	payload := map[string]interface{}{
		"authenticated": c.authenticated,
		"currentMode":   c.snap.CurrentMode,
		"submode":       c.snap.Submode,
		"lyricsEnabled": c.snap.LyricsEnabled,
	}
	c.mu.Unlock()
	c.push.Broadcast(types.NewFrame("", types.MsgStateUpdated, payload))
}
