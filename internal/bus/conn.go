package bus

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gatorguard/coordinator/internal/state"
	"github.com/gatorguard/coordinator/internal/types"
)

// sendBuffer bounds queued outbound frames per connection. A slow client
// loses pushes rather than stalling the coordinator.
const sendBuffer = 32

// Conn is one connected context: a popup, an overlay agent, or the
// browser bridge.
type Conn struct {
	id    string
	role  string
	tabID int
	url   string
	hub   *Hub
	ws    *websocket.Conn
	send  chan types.Frame
}

func newConn(hub *Hub, ws *websocket.Conn, role string, tabID int, url string) *Conn {
	return &Conn{
		id:    uuid.New().String(),
		role:  role,
		tabID: tabID,
		url:   url,
		hub:   hub,
		ws:    ws,
		send:  make(chan types.Frame, sendBuffer),
	}
}

// trySend queues a frame without blocking. Dropped frames are logged;
// every push on the bus is fire-and-forget.
func (c *Conn) trySend(frame types.Frame) {
	select {
	case c.send <- frame:
	default:
		c.hub.log.Warn("dropping frame for slow bus client",
			zap.String("role", c.role), zap.String("type", string(frame.Type)))
	}
}

func (c *Conn) writeLoop() {
	for frame := range c.send {
		if err := c.ws.WriteJSON(frame); err != nil {
			return
		}
	}
}

func (c *Conn) readLoop(ctx context.Context) {
	defer func() {
		c.hub.unregister(c)
		c.ws.Close()
	}()

	for {
		var frame types.Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("bus read error", zap.Error(err))
			}
			return
		}
		c.handle(ctx, frame)
	}
}

func (c *Conn) handle(ctx context.Context, frame types.Frame) {
	// Tab lifecycle events come only from the browser bridge and expect
	// no response.
	if c.role == RoleBrowser && (frame.Type == types.MsgTabActivated || frame.Type == types.MsgTabUpdated) {
		var event types.TabEvent
		if err := frame.Unmarshal(&event); err != nil {
			c.hub.log.Warn("malformed tab event", zap.Error(err))
			return
		}
		if frame.Type == types.MsgTabActivated {
			c.hub.events.OnActivated(event.Tab)
		} else {
			c.hub.events.OnUpdated(event.Tab, event.Status)
		}
		return
	}

	resp := c.hub.dispatcher.Dispatch(ctx, state.Request{
		Type:    frame.Type,
		Payload: frame.Payload,
		Sender: state.Sender{
			Role:  c.role,
			TabID: c.tabID,
			URL:   c.url,
		},
	})
	c.trySend(types.NewFrame(frame.ID, types.MsgResponse, resp))
}

func parseTabID(raw string) int {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return id
}
