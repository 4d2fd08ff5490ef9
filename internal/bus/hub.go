// Package bus hosts the message bus connecting popup views, overlay
// agents, and the browser bridge to the coordinator. Frames on a single
// connection are delivered in order; nothing is ordered across
// connections.
package bus

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gatorguard/coordinator/internal/logging"
	"github.com/gatorguard/coordinator/internal/metrics"
	"github.com/gatorguard/coordinator/internal/state"
	"github.com/gatorguard/coordinator/internal/types"
)

// Context roles a client may connect as.
const (
	RolePopup   = "popup"
	RoleOverlay = "overlay"
	RoleBrowser = "browser"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // all clients are local extension contexts
	},
}

// Dispatcher answers RPC frames.
type Dispatcher interface {
	Dispatch(ctx context.Context, req state.Request) map[string]interface{}
}

// TabEvents consumes tab lifecycle events from the browser bridge.
type TabEvents interface {
	OnActivated(tab types.TabRef)
	OnUpdated(tab types.TabRef, status string)
}

// Hub manages bus connections and implements the coordinator's push
// surface.
type Hub struct {
	dispatcher Dispatcher
	events     TabEvents
	log        *logging.Logger
	metrics    *metrics.Metrics

	mu    sync.RWMutex
	conns map[string]*Conn
	byTab map[int]*Conn
}

// NewHub creates a hub routing requests to dispatcher and tab events to
// events.
func NewHub(dispatcher Dispatcher, events TabEvents, log *logging.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		dispatcher: dispatcher,
		events:     events,
		log:        log,
		metrics:    m,
		conns:      make(map[string]*Conn),
		byTab:      make(map[int]*Conn),
	}
}

// HandleConnection upgrades an HTTP request to a bus connection. Clients
// declare their role, and overlay agents their tab and page URL, via
// query parameters.
func (h *Hub) HandleConnection(c *gin.Context) {
	role := c.Query("role")
	switch role {
	case RolePopup, RoleOverlay, RoleBrowser:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("bus upgrade failed", zap.Error(err))
		return
	}

	conn := newConn(h, ws, role, parseTabID(c.Query("tab")), c.Query("url"))
	h.register(conn)
	go conn.writeLoop()
	conn.readLoop(c.Request.Context())
}

func (h *Hub) register(conn *Conn) {
	h.mu.Lock()
	h.conns[conn.id] = conn
	if conn.role == RoleOverlay && conn.tabID != 0 {
		h.byTab[conn.tabID] = conn
	}
	h.mu.Unlock()
	h.metrics.BusConnections.Inc()
	h.log.Debug("bus client connected",
		zap.String("role", conn.role), zap.Int("tab", conn.tabID))
}

func (h *Hub) unregister(conn *Conn) {
	h.mu.Lock()
	if _, ok := h.conns[conn.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, conn.id)
	if h.byTab[conn.tabID] == conn {
		delete(h.byTab, conn.tabID)
	}
	h.mu.Unlock()
	h.metrics.BusConnections.Dec()
	close(conn.send)
}

// Blur instructs the overlay agent in the given tab to render its overlay.
func (h *Hub) Blur(tab types.TabRef, mode types.Mode) {
	h.sendToTab(tab.ID, types.NewFrame("", types.MsgBlurPage, types.BlurRequest{Mode: mode}))
}

// Unblur instructs the overlay agent in the given tab to remove its
// overlay.
func (h *Hub) Unblur(tab types.TabRef) {
	h.sendToTab(tab.ID, types.NewFrame("", types.MsgRemoveBlur, nil))
}

// Notify asks the browser bridge to raise a user-visible notification.
func (h *Hub) Notify(n types.Notification) {
	h.sendToRole(RoleBrowser, types.NewFrame("", types.MsgNotify, n))
}

// CloseTab asks the browser bridge to close a tab.
func (h *Hub) CloseTab(tabID int) {
	h.sendToRole(RoleBrowser, types.NewFrame("", types.MsgTabClose, map[string]int{"tabId": tabID}))
}

// Broadcast fans a frame out to every connected context.
func (h *Hub) Broadcast(frame types.Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.conns {
		conn.trySend(frame)
	}
}

func (h *Hub) sendToTab(tabID int, frame types.Frame) {
	h.mu.RLock()
	conn, ok := h.byTab[tabID]
	h.mu.RUnlock()
	if !ok {
		// The target context is gone; pushes are fire-and-forget.
		h.log.Debug("no overlay agent for tab", zap.Int("tab", tabID))
		return
	}
	conn.trySend(frame)
}

func (h *Hub) sendToRole(role string, frame types.Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.conns {
		if conn.role == role {
			conn.trySend(frame)
		}
	}
}
