package state

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/gatorguard/coordinator/internal/gateway"
	"github.com/gatorguard/coordinator/internal/types"
)

// Sender identifies the context that issued a request. TabID is zero for
// popup senders.
type Sender struct {
	Role  string
	TabID int
	URL   string
}

// Request is one inbound RPC frame plus its sender.
type Request struct {
	Type    types.MessageType
	Payload json.RawMessage
	Sender  Sender
}

// HandlerFunc answers one message type. Handlers resolve with a flat
// response payload; failures use the {success:false, error} shape.
type HandlerFunc func(ctx context.Context, req Request) map[string]interface{}

// Dispatch routes a request to its handler. Exactly one handler exists
// per message type; unknown types get an error payload, mirroring what a
// popup calling an old coordinator should see.
func (c *Coordinator) Dispatch(ctx context.Context, req Request) map[string]interface{} {
	handler, ok := c.handlers[req.Type]
	if !ok {
		return map[string]interface{}{"error": "unknown message type"}
	}
	return handler(ctx, req)
}

func (c *Coordinator) dispatchTable() map[types.MessageType]HandlerFunc {
	return map[types.MessageType]HandlerFunc{
		types.MsgGetAuthStatus:   c.handleGetAuthStatus,
		types.MsgCheckAuth:       c.handleCheckAuth,
		types.MsgGetMode:         c.handleGetMode,
		types.MsgGetCurrentMode:  c.handleGetMode,
		types.MsgGetRecentLinks:  c.handleGetRecentLinks,
		types.MsgSetMode:         c.handleSetMode,
		types.MsgSyncMode:        c.handleSyncMode,
		types.MsgLogout:          c.handleLogout,
		types.MsgCloseTab:        c.handleCloseTab,
		types.MsgCheckShouldBlur: c.handleCheckShouldBlur,
	}
}

func (c *Coordinator) handleGetAuthStatus(ctx context.Context, req Request) map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]interface{}{"authenticated": c.authenticated}
}

func (c *Coordinator) handleCheckAuth(ctx context.Context, req Request) map[string]interface{} {
	return map[string]interface{}{"authenticated": c.checkAuth(ctx)}
}

func (c *Coordinator) handleGetMode(ctx context.Context, req Request) map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]interface{}{"mode": c.snap.CurrentMode}
}

func (c *Coordinator) handleGetRecentLinks(ctx context.Context, req Request) map[string]interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return map[string]interface{}{"links": c.snapshotLocked().RecentLinks}
}

func (c *Coordinator) handleSetMode(ctx context.Context, req Request) map[string]interface{} {
	var r types.SetModeRequest
	if err := json.Unmarshal(req.Payload, &r); err != nil {
		return failure("malformed SET_MODE payload")
	}
	if !r.Mode.Valid() {
		return failure(fmt.Sprintf("invalid mode: %q, must be one of work, study, leisure", r.Mode))
	}

	c.mu.Lock()
	oldMode := c.snap.CurrentMode
	c.snap.CurrentMode = r.Mode
	if r.Mode == types.ModeStudy && r.Submode != nil && r.Submode.Valid() {
		sub := *r.Submode
		c.snap.Submode = &sub
	} else {
		// Submode is study-scoped; it never survives a mode change.
		c.snap.Submode = nil
	}
	if r.Lyrics != nil {
		c.snap.LyricsEnabled = *r.Lyrics
	}
	c.persistLocked()
	settings := gateway.ModeSettings{
		Mode:    c.snap.CurrentMode,
		Submode: c.snap.Submode,
		Lyrics:  c.snap.LyricsEnabled,
	}
	authenticated := c.authenticated
	newSnap := c.snapshotLocked()
	c.mu.Unlock()

	// The local change is authoritative for enforcement; the remote
	// write is best effort and its failure is only logged.
	if authenticated {
		go func() {
			if err := c.gw.SetMode(context.Background(), settings); err != nil {
				c.metrics.GatewayFailures.WithLabelValues("set_mode").Inc()
				c.log.Warn("remote mode write failed", zap.Error(err))
			}
		}()
	}

	if newSnap.CurrentMode != oldMode {
		c.metrics.ModeChanges.Inc()
		go c.reclassifyActiveTab(context.Background())
	}
	c.broadcastState()

	return map[string]interface{}{
		"success":       true,
		"newMode":       newSnap.CurrentMode,
		"submode":       newSnap.Submode,
		"lyricsEnabled": newSnap.LyricsEnabled,
	}
}

func (c *Coordinator) handleSyncMode(ctx context.Context, req Request) map[string]interface{} {
	c.mu.Lock()
	authenticated := c.authenticated
	fallback := c.snap.CurrentMode
	c.mu.Unlock()

	if !authenticated || !c.syncModeFromRemote(ctx) {
		return map[string]interface{}{"success": false, "mode": fallback}
	}

	c.mu.Lock()
	mode := c.snap.CurrentMode
	c.mu.Unlock()
	return map[string]interface{}{"success": true, "mode": mode}
}

func (c *Coordinator) handleLogout(ctx context.Context, req Request) map[string]interface{} {
	c.mu.Lock()
	changed := c.authenticated
	c.authenticated = false
	c.user = nil
	c.mu.Unlock()

	if changed {
		c.broadcastState()
	}
	return map[string]interface{}{"success": true}
}

func (c *Coordinator) handleCloseTab(ctx context.Context, req Request) map[string]interface{} {
	tabID := req.Sender.TabID
	if tabID == 0 {
		tab, ok := c.tabs.ActiveTab()
		if !ok {
			return failure("no active tab")
		}
		tabID = tab.ID
	}
	c.push.CloseTab(tabID)
	return map[string]interface{}{"success": true}
}

// handleCheckShouldBlur answers a freshly injected overlay agent that has
// no push instruction yet, typically after a coordinator restart. With no
// classification cached the answer fails open, but a non-filtered URL is
// fed into the enforcement pipeline so a disallowed page still gets its
// push shortly after.
func (c *Coordinator) handleCheckShouldBlur(ctx context.Context, req Request) map[string]interface{} {
	c.mu.Lock()
	mode := c.snap.CurrentMode
	c.mu.Unlock()

	if !c.filter.ShouldProcess(req.Sender.URL) {
		return map[string]interface{}{"shouldBlur": false}
	}

	url, title := req.Sender.URL, ""
	go c.RecordAndClassify(context.Background(), url, title)
	return map[string]interface{}{"shouldBlur": false, "mode": mode}
}

func failure(msg string) map[string]interface{} {
	return map[string]interface{}{"success": false, "error": msg}
}
