//go:build integration
// +build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatorguard/coordinator/internal/bus"
	"github.com/gatorguard/coordinator/internal/config"
	"github.com/gatorguard/coordinator/internal/logging"
	"github.com/gatorguard/coordinator/internal/overlay"
	"github.com/gatorguard/coordinator/internal/server"
	"github.com/gatorguard/coordinator/internal/types"
)

// fakeRemote plays the account and classification service. Pages whose
// URL contains "docs" are allowed, everything else is blocked.
type fakeRemote struct {
	mu            sync.Mutex
	authenticated bool
	mode          string
}

func (f *fakeRemote) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/checkauth", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if !f.authenticated {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]interface{}{"authenticated": false})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"authenticated": true,
			"user":          map[string]string{"id": "u-1", "email": "gator@example.com"},
		})
	})
	mux.HandleFunc("/api/user/mode", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			if m, ok := body["mode"].(string); ok {
				f.mode = m
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"success": true})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"mode":                 f.mode,
			"study_submode_select": nil,
			"lyrics_status":        false,
		})
	})
	mux.HandleFunc("/api/stagehand", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		json.NewDecoder(r.Body).Decode(&req)
		url, _ := req["url"].(string)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"allowed": strings.Contains(url, "docs"),
		})
	})
	return mux
}

type recordingRenderer struct {
	mu      sync.Mutex
	renders []types.Mode
	removes int
}

func (r *recordingRenderer) Render(mode types.Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renders = append(r.renders, mode)
}

func (r *recordingRenderer) Remove() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removes++
}

func (r *recordingRenderer) renderCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.renders)
}

func startDaemon(t *testing.T, remote *fakeRemote) (*server.Server, string) {
	t.Helper()

	remoteSrv := httptest.NewServer(remote.handler())
	t.Cleanup(remoteSrv.Close)

	cfg := config.Default()
	cfg.Remote.BaseURL = remoteSrv.URL
	cfg.Cache.Path = filepath.Join(t.TempDir(), "state.json")
	cfg.Tabs.SettleDelay = 20 * time.Millisecond
	cfg.Logging.Level = "error"
	cfg.RateLimit.Enabled = false

	srv, err := server.NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/bus"
}

func dial(t *testing.T, busURL string, opts bus.DialOpts) *bus.Client {
	t.Helper()
	client, err := bus.Dial(context.Background(), busURL, opts)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestNavigationEnforcementEndToEnd(t *testing.T) {
	remote := &fakeRemote{authenticated: true, mode: "work"}
	_, busURL := startDaemon(t, remote)

	browser := dial(t, busURL, bus.DialOpts{Role: bus.RoleBrowser})

	const tabID = 7
	renderer := &recordingRenderer{}
	overlayClient := dial(t, busURL, bus.DialOpts{
		Role:  bus.RoleOverlay,
		TabID: tabID,
		URL:   "https://feeds.example.com/for-you",
	})
	agent := overlay.New("https://feeds.example.com/for-you", renderer, overlayClient, logging.Nop())
	go agent.Run(overlayClient.Pushes())

	// The bridge reports the tab active, then the navigation settling.
	tab := types.TabRef{ID: tabID, URL: "https://feeds.example.com/for-you", Title: "For You"}
	require.NoError(t, browser.Send(types.MsgTabActivated, types.TabEvent{Tab: tab}))
	require.NoError(t, browser.Send(types.MsgTabUpdated, types.TabEvent{Tab: tab, Status: "complete"}))

	require.Eventually(t, func() bool {
		return agent.IsPageBlurred()
	}, 2*time.Second, 10*time.Millisecond, "disallowed page should be blurred")
	assert.GreaterOrEqual(t, renderer.renderCount(), 1)

	// The bridge also receives the focus notification.
	select {
	case frame := <-browser.Pushes():
		require.Equal(t, types.MsgNotify, frame.Type)
		var n types.Notification
		require.NoError(t, frame.Unmarshal(&n))
		assert.Equal(t, "Work Focus Mode", n.Title)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification reached the browser bridge")
	}

	// Navigating the same tab to an allowed page lifts the blur.
	allowed := types.TabRef{ID: tabID, URL: "https://docs.example.com/guide", Title: "Guide"}
	require.NoError(t, browser.Send(types.MsgTabUpdated, types.TabEvent{Tab: allowed, Status: "complete"}))

	require.Eventually(t, func() bool {
		return !agent.IsPageBlurred()
	}, 2*time.Second, 10*time.Millisecond, "allowed page should be unblurred")
}

func TestPopupModeChangeReachesRemoteAndClients(t *testing.T) {
	remote := &fakeRemote{authenticated: true, mode: "work"}
	srv, busURL := startDaemon(t, remote)

	// Authenticate so the mode write propagates to the remote.
	popup := dial(t, busURL, bus.DialOpts{Role: bus.RolePopup})
	resp, err := popup.Request(context.Background(), types.MsgCheckAuth, nil)
	require.NoError(t, err)
	require.Equal(t, true, resp["authenticated"])

	// Drain the state broadcast the auth edge produced.
	select {
	case frame := <-popup.Pushes():
		require.Equal(t, types.MsgStateUpdated, frame.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no state broadcast after auth edge")
	}

	resp, err = popup.Request(context.Background(), types.MsgSetMode, map[string]interface{}{"mode": "leisure"})
	require.NoError(t, err)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "leisure", resp["newMode"])

	select {
	case frame := <-popup.Pushes():
		require.Equal(t, types.MsgStateUpdated, frame.Type)
		var state map[string]interface{}
		require.NoError(t, frame.Unmarshal(&state))
		assert.Equal(t, "leisure", state["currentMode"])
	case <-time.After(2 * time.Second):
		t.Fatal("no state broadcast after mode change")
	}

	// The remote write is asynchronous and best effort.
	require.Eventually(t, func() bool {
		remote.mu.Lock()
		defer remote.mu.Unlock()
		return remote.mode == "leisure"
	}, 2*time.Second, 10*time.Millisecond)

	snap, _ := srv.Coordinator().Snapshot()
	assert.Equal(t, types.ModeLeisure, snap.CurrentMode)
}

func TestOverlayStartChecksBlurAfterRestart(t *testing.T) {
	remote := &fakeRemote{authenticated: true, mode: "study"}
	_, busURL := startDaemon(t, remote)

	// After a restart the bridge reconnects and reports the active tab
	// first; the overlay then connects with no prior instruction.
	browser := dial(t, busURL, bus.DialOpts{Role: bus.RoleBrowser})
	require.NoError(t, browser.Send(types.MsgTabActivated, types.TabEvent{
		Tab: types.TabRef{ID: 3, URL: "https://videos.example.com/watch", Title: "Watch"},
	}))

	renderer := &recordingRenderer{}
	overlayClient := dial(t, busURL, bus.DialOpts{
		Role:  bus.RoleOverlay,
		TabID: 3,
		URL:   "https://videos.example.com/watch",
	})
	agent := overlay.New("https://videos.example.com/watch", renderer, overlayClient, logging.Nop())
	go agent.Run(overlayClient.Pushes())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	agent.Start(ctx)

	// CHECK_SHOULD_BLUR answers false immediately but schedules
	// classification; the push instruction follows.
	require.Eventually(t, func() bool {
		return agent.IsPageBlurred()
	}, 2*time.Second, 10*time.Millisecond)
}
