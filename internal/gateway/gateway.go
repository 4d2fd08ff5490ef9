// Package gateway wraps the four remote operations the coordinator
// depends on. Every wrapper issues one request, parses one JSON body, and
// maps network or non-2xx failure to an error the caller degrades from;
// nothing here retries and nothing panics past this boundary.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/gatorguard/coordinator/internal/logging"
	"github.com/gatorguard/coordinator/internal/resilience"
	"github.com/gatorguard/coordinator/internal/types"
)

// API is the remote boundary consumed by the coordinator.
type API interface {
	CheckAuth(ctx context.Context) (AuthStatus, error)
	FetchMode(ctx context.Context) (ModeSettings, error)
	SetMode(ctx context.Context, settings ModeSettings) error
	Classify(ctx context.Context, req ClassifyRequest) (bool, error)
}

// AuthStatus is the check-authenticated response.
type AuthStatus struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user,omitempty"`
}

// User identifies the authenticated account.
type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
}

// ModeSettings is the remote mode record. Field names follow the account
// store's columns.
type ModeSettings struct {
	Mode    types.Mode     `json:"mode"`
	Submode *types.Submode `json:"study_submode_select"`
	Lyrics  bool           `json:"lyrics_status"`
}

// ClassifyRequest asks whether a page is appropriate for a mode.
type ClassifyRequest struct {
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	Timestamp time.Time  `json:"timestamp"`
	Mode      types.Mode `json:"mode"`
}

type classifyResponse struct {
	Allowed bool `json:"allowed"`
}

type setModeResponse struct {
	Success bool    `json:"success"`
	Error   *string `json:"error,omitempty"`
}

// Gateway talks to the remote account and classification service.
type Gateway struct {
	client  *resty.Client
	breaker *resilience.Breaker
	log     *logging.Logger
}

// New creates a gateway against the given base URL. The timeout bounds
// every request so a hung classifier cannot wedge enforcement.
func New(baseURL string, timeout time.Duration, log *logging.Logger) *Gateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")

	return &Gateway{
		client: client,
		breaker: resilience.New("classify", resilience.Settings{
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		}),
		log: log,
	}
}

// CheckAuth asks the remote service whether the session is valid. Any
// failure reads as unauthenticated.
func (g *Gateway) CheckAuth(ctx context.Context) (AuthStatus, error) {
	var status AuthStatus
	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&status).
		SetError(&status).
		Get("/api/checkauth")
	if err != nil {
		return AuthStatus{}, fmt.Errorf("auth check failed: %w", err)
	}
	// A 401 carries {authenticated:false} and is a definitive answer,
	// not a transport failure.
	if resp.IsError() && resp.StatusCode() != 401 {
		return AuthStatus{}, fmt.Errorf("auth check returned %d", resp.StatusCode())
	}
	return status, nil
}

// FetchMode reads the account's mode settings.
func (g *Gateway) FetchMode(ctx context.Context) (ModeSettings, error) {
	var settings ModeSettings
	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&settings).
		Get("/api/user/mode")
	if err != nil {
		return ModeSettings{}, fmt.Errorf("mode fetch failed: %w", err)
	}
	if resp.IsError() {
		return ModeSettings{}, fmt.Errorf("mode fetch returned %d", resp.StatusCode())
	}
	if !settings.Mode.Valid() {
		return ModeSettings{}, fmt.Errorf("mode fetch returned unknown mode %q", settings.Mode)
	}
	return settings, nil
}

// SetMode writes the account's mode settings. Best effort: the caller
// logs failures and keeps its local value authoritative.
func (g *Gateway) SetMode(ctx context.Context, settings ModeSettings) error {
	var result setModeResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(settings).
		SetResult(&result).
		Post("/api/user/mode")
	if err != nil {
		return fmt.Errorf("mode write failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("mode write returned %d", resp.StatusCode())
	}
	return nil
}

// Classify asks whether the page is allowed under the mode. The circuit
// breaker short-circuits calls while the classifier is down; callers treat
// any error as disallowed.
func (g *Gateway) Classify(ctx context.Context, req ClassifyRequest) (bool, error) {
	var result classifyResponse
	err := g.breaker.Execute(func() error {
		resp, err := g.client.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&result).
			Post("/api/stagehand")
		if err != nil {
			return fmt.Errorf("classify request failed: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("classify returned %d", resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		// Short-circuited calls never reach the wire; callers only see
		// the error, so the breaker state is surfaced here.
		if errors.Is(err, resilience.ErrCircuitOpen) {
			g.log.Warn("classifier circuit open, request skipped", zap.String("url", req.URL))
		}
		return false, err
	}
	return result.Allowed, nil
}
