// Package overlay implements the per-page agent that renders the
// blocking overlay. It holds no classification logic: it obeys push
// instructions from the coordinator and, when it starts with no
// instruction on record, asks once whether its page should be blurred.
package overlay

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/gatorguard/coordinator/internal/logging"
	"github.com/gatorguard/coordinator/internal/types"
)

// Renderer owns the page-side overlay element. Render is called with the
// mode to name in the warning copy.
type Renderer interface {
	Render(mode types.Mode)
	Remove()
}

// Transport sends frames back to the coordinator.
type Transport interface {
	Request(ctx context.Context, msgType types.MessageType, payload interface{}) (map[string]interface{}, error)
	Send(msgType types.MessageType, payload interface{}) error
}

// Agent is the overlay actor for one page.
type Agent struct {
	url       string
	renderer  Renderer
	transport Transport
	log       *logging.Logger

	mu      sync.Mutex
	blurred bool
}

// New creates an agent for the page at url.
func New(url string, renderer Renderer, transport Transport, log *logging.Logger) *Agent {
	return &Agent{url: url, renderer: renderer, transport: transport, log: log}
}

// Start queries the coordinator for this page's blur state. Needed after
// a coordinator restart, when no push instruction will arrive on its own.
// The answer fails open, so any error leaves the page unblurred.
func (a *Agent) Start(ctx context.Context) {
	resp, err := a.transport.Request(ctx, types.MsgCheckShouldBlur, nil)
	if err != nil {
		a.log.Debug("blur check failed, leaving page unblurred", zap.Error(err))
		return
	}
	shouldBlur, _ := resp["shouldBlur"].(bool)
	if !shouldBlur {
		return
	}
	mode := types.ModeWork
	if m, ok := resp["mode"].(string); ok && types.Mode(m).Valid() {
		mode = types.Mode(m)
	}
	a.BlurPage(mode)
}

// Handle answers one push frame from the coordinator and returns the
// response payload.
func (a *Agent) Handle(frame types.Frame) map[string]interface{} {
	switch frame.Type {
	case types.MsgBlurPage:
		var req types.BlurRequest
		if err := frame.Unmarshal(&req); err != nil || !req.Mode.Valid() {
			return map[string]interface{}{"success": false, "error": "malformed BLUR_PAGE payload"}
		}
		a.BlurPage(req.Mode)
		return map[string]interface{}{"success": true}
	case types.MsgRemoveBlur:
		a.RemoveBlur()
		return map[string]interface{}{"success": true}
	case types.MsgIsBlurred:
		return map[string]interface{}{"blurred": a.IsPageBlurred()}
	default:
		return map[string]interface{}{"error": "unknown message type"}
	}
}

// Run consumes push frames from the client until it closes.
func (a *Agent) Run(pushes <-chan types.Frame) {
	for frame := range pushes {
		a.Handle(frame)
	}
}

// BlurPage renders the overlay for the given mode. Re-rendering replaces
// any existing overlay instead of stacking a second one.
func (a *Agent) BlurPage(mode types.Mode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.blurred {
		a.renderer.Remove()
	}
	a.renderer.Render(mode)
	a.blurred = true
}

// RemoveBlur detaches the overlay; no-op when none is present.
func (a *Agent) RemoveBlur() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.blurred {
		return
	}
	a.renderer.Remove()
	a.blurred = false
}

// IsPageBlurred reports the local blur flag.
func (a *Agent) IsPageBlurred() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.blurred
}

// ContinueAnyway is the overlay's dismiss affordance: local removal only,
// the coordinator is not consulted.
func (a *Agent) ContinueAnyway() {
	a.RemoveBlur()
}

// CloseSite asks the coordinator to close the owning tab.
func (a *Agent) CloseSite() {
	if err := a.transport.Send(types.MsgCloseTab, nil); err != nil {
		a.log.Debug("close request failed", zap.Error(err))
	}
}
