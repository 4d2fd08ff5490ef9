package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gatorguard/coordinator/internal/logging"
	"github.com/gatorguard/coordinator/internal/types"
)

type fakeRenderer struct {
	renders []types.Mode
	removes int
}

func (r *fakeRenderer) Render(mode types.Mode) { r.renders = append(r.renders, mode) }
func (r *fakeRenderer) Remove()                { r.removes++ }

type fakeTransport struct {
	requests  []types.MessageType
	sends     []types.MessageType
	response  map[string]interface{}
	requestFn func() (map[string]interface{}, error)
}

func (t *fakeTransport) Request(_ context.Context, msgType types.MessageType, _ interface{}) (map[string]interface{}, error) {
	t.requests = append(t.requests, msgType)
	if t.requestFn != nil {
		return t.requestFn()
	}
	return t.response, nil
}

func (t *fakeTransport) Send(msgType types.MessageType, _ interface{}) error {
	t.sends = append(t.sends, msgType)
	return nil
}

func newAgent(t *testing.T) (*Agent, *fakeRenderer, *fakeTransport) {
	t.Helper()
	r := &fakeRenderer{}
	tr := &fakeTransport{}
	return New("https://news.example.com/feed", r, tr, logging.Nop()), r, tr
}

func frame(t *testing.T, msgType types.MessageType, payload interface{}) types.Frame {
	t.Helper()
	return types.NewFrame("f-1", msgType, payload)
}

func TestBlurPageRerenderReplacesOverlay(t *testing.T) {
	agent, r, _ := newAgent(t)

	agent.BlurPage(types.ModeWork)
	agent.BlurPage(types.ModeStudy)

	assert.Equal(t, []types.Mode{types.ModeWork, types.ModeStudy}, r.renders)
	assert.Equal(t, 1, r.removes, "second render replaces the first overlay")
	assert.True(t, agent.IsPageBlurred())
}

func TestRemoveBlurIdempotent(t *testing.T) {
	agent, r, _ := newAgent(t)

	agent.RemoveBlur()
	assert.Zero(t, r.removes)

	agent.BlurPage(types.ModeWork)
	agent.RemoveBlur()
	agent.RemoveBlur()

	assert.Equal(t, 1, r.removes)
	assert.False(t, agent.IsPageBlurred())
}

func TestHandleBlurAndQuery(t *testing.T) {
	agent, r, _ := newAgent(t)

	resp := agent.Handle(frame(t, types.MsgBlurPage, types.BlurRequest{Mode: types.ModeLeisure}))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, []types.Mode{types.ModeLeisure}, r.renders)

	resp = agent.Handle(frame(t, types.MsgIsBlurred, nil))
	assert.Equal(t, true, resp["blurred"])

	resp = agent.Handle(frame(t, types.MsgRemoveBlur, nil))
	assert.Equal(t, true, resp["success"])

	resp = agent.Handle(frame(t, types.MsgIsBlurred, nil))
	assert.Equal(t, false, resp["blurred"])
}

func TestHandleRejectsMalformedBlur(t *testing.T) {
	agent, r, _ := newAgent(t)

	resp := agent.Handle(types.Frame{
		ID:      "f-1",
		Type:    types.MsgBlurPage,
		Payload: json.RawMessage(`{"mode":"party"}`),
	})

	assert.Equal(t, false, resp["success"])
	assert.Empty(t, r.renders)
}

func TestStartBlursWhenCoordinatorSaysSo(t *testing.T) {
	agent, r, tr := newAgent(t)
	tr.response = map[string]interface{}{"shouldBlur": true, "mode": "study"}

	agent.Start(context.Background())

	assert.Equal(t, []types.MessageType{types.MsgCheckShouldBlur}, tr.requests)
	assert.Equal(t, []types.Mode{types.ModeStudy}, r.renders)
}

func TestStartFailsOpen(t *testing.T) {
	agent, r, tr := newAgent(t)
	tr.requestFn = func() (map[string]interface{}, error) {
		return nil, errors.New("coordinator unreachable")
	}

	agent.Start(context.Background())

	assert.Empty(t, r.renders)
	assert.False(t, agent.IsPageBlurred())
}

func TestStartUnrecognizedModeFallsBackToWork(t *testing.T) {
	agent, r, tr := newAgent(t)
	tr.response = map[string]interface{}{"shouldBlur": true, "mode": "party"}

	agent.Start(context.Background())

	assert.Equal(t, []types.Mode{types.ModeWork}, r.renders)
}

func TestCloseSiteSendsCloseRequest(t *testing.T) {
	agent, _, tr := newAgent(t)

	agent.CloseSite()

	assert.Equal(t, []types.MessageType{types.MsgCloseTab}, tr.sends)
}

func TestContinueAnywayIsLocalOnly(t *testing.T) {
	agent, r, tr := newAgent(t)

	agent.BlurPage(types.ModeWork)
	agent.ContinueAnyway()

	assert.Equal(t, 1, r.removes)
	assert.Empty(t, tr.requests)
	assert.Empty(t, tr.sends)
}
