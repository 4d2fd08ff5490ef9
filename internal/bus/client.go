package bus

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gatorguard/coordinator/internal/types"
)

// Client is a bus connection from a popup, overlay agent, or browser
// bridge process. Requests are correlated by frame ID; push frames are
// surfaced on Pushes.
type Client struct {
	ws     *websocket.Conn
	pushes chan types.Frame

	mu      sync.Mutex
	pending map[string]chan map[string]interface{}
	closed  bool
}

// DialOpts identify the connecting context.
type DialOpts struct {
	Role  string
	TabID int
	URL   string
}

// Dial connects to the coordinator's bus endpoint. baseURL is the ws://
// address of the /bus route.
func Dial(ctx context.Context, baseURL string, opts DialOpts) (*Client, error) {
	query := url.Values{}
	query.Set("role", opts.Role)
	if opts.TabID != 0 {
		query.Set("tab", strconv.Itoa(opts.TabID))
	}
	if opts.URL != "" {
		query.Set("url", opts.URL)
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("bus dial failed: %w", err)
	}

	c := &Client{
		ws:      ws,
		pushes:  make(chan types.Frame, sendBuffer),
		pending: make(map[string]chan map[string]interface{}),
	}
	go c.readLoop()
	return c, nil
}

// Request sends a frame and waits for its correlated response.
func (c *Client) Request(ctx context.Context, msgType types.MessageType, payload interface{}) (map[string]interface{}, error) {
	id := uuid.New().String()
	ch := make(chan map[string]interface{}, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("bus client closed")
	}
	c.pending[id] = ch
	err := c.ws.WriteJSON(types.NewFrame(id, msgType, payload))
	c.mu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("bus write failed: %w", err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

// Send fires a frame without waiting for a response.
func (c *Client) Send(msgType types.MessageType, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("bus client closed")
	}
	return c.ws.WriteJSON(types.NewFrame("", msgType, payload))
}

// Pushes delivers frames the coordinator sent unprompted. The channel
// closes when the connection drops.
func (c *Client) Pushes() <-chan types.Frame {
	return c.pushes
}

// Close tears the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.ws.Close()
}

func (c *Client) readLoop() {
	defer close(c.pushes)
	for {
		var frame types.Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			return
		}

		if frame.Type == types.MsgResponse {
			var payload map[string]interface{}
			if err := frame.Unmarshal(&payload); err != nil {
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[frame.ID]
			delete(c.pending, frame.ID)
			c.mu.Unlock()
			if ok {
				ch <- payload
			}
			continue
		}

		select {
		case c.pushes <- frame:
		default:
			// Push consumer fell behind; drop rather than block reads.
		}
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
