package rhood

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
)

const (
	// Requested lifetime for password-grant tokens.
	authDuration = 24 * time.Hour

	// DefaultRefreshInterval is the minimum period between proactive
	// refreshes regardless of time until expiration.
	DefaultRefreshInterval = 24 * time.Hour

	// DefaultRefreshMargin is the minimum time before expiration at which
	// a token must be refreshed. Three days covers weekend inactivity.
	DefaultRefreshMargin = 3 * 24 * time.Hour

	authRetryDelay = time.Second
)

// Credentials is the process-lifetime credential material read once at
// startup. Either Username/Password or a token document (inline or via
// TokenFile) must be supplied alongside the device and client IDs.
type Credentials struct {
	DeviceID  string
	ClientID  string
	Username  string
	Password  string
	Token     string // raw token JSON
	TokenFile string // path to a token JSON file, rewritten on refresh
}

// Validate reports every missing credential at once so the operator can
// fix them in one pass.
func (c Credentials) Validate() error {
	var missing []string
	if c.DeviceID == "" {
		missing = append(missing, "device_id not set")
	}
	if c.ClientID == "" {
		missing = append(missing, "oauth_client_id not set")
	}
	if c.Token == "" && c.TokenFile == "" && (c.Username == "" || c.Password == "") {
		missing = append(missing, "must specify either username/password or an OAuth token")
	}
	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return nil
}

// AuthConfig assembles an Authenticator.
type AuthConfig struct {
	Credentials     Credentials
	TokenURL        string // fully-qualified token endpoint
	HTTP            *resty.Client
	RefreshMargin   time.Duration
	RefreshInterval time.Duration
	Attempts        int
	Logger          *slog.Logger
}

// Authenticator owns the bearer-credential lifecycle: initial acquisition,
// proactive and reactive refresh, and permanent-failure short-circuiting.
// Refreshes are single-flight: each refresh invalidates the prior token,
// so concurrent callers must share one outcome.
type Authenticator struct {
	creds           Credentials
	tokenURL        string
	httpc           *resty.Client
	refreshMargin   time.Duration
	refreshInterval time.Duration
	attempts        int
	log             *slog.Logger

	sf singleflight.Group

	mu      sync.RWMutex
	token   *OAuthToken
	permErr error
}

func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, err
	}
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = DefaultRefreshMargin
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.HTTP == nil {
		cfg.HTTP = NewHTTPClient()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	a := &Authenticator{
		creds:           cfg.Credentials,
		tokenURL:        cfg.TokenURL,
		httpc:           cfg.HTTP,
		refreshMargin:   cfg.RefreshMargin,
		refreshInterval: cfg.RefreshInterval,
		attempts:        cfg.Attempts,
		log:             cfg.Logger,
	}
	if err := a.loadInitialToken(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Authenticator) loadInitialToken() error {
	raw := a.creds.Token
	if raw == "" && a.creds.TokenFile != "" {
		data, err := os.ReadFile(a.creds.TokenFile)
		if err != nil {
			return fmt.Errorf("read token file %s: %w", a.creds.TokenFile, err)
		}
		raw = strings.TrimSpace(string(data))
	}
	if raw == "" {
		return nil
	}
	tok, err := ParseToken([]byte(raw), time.Time{})
	if err != nil {
		return err
	}
	a.token = tok
	return nil
}

// Apply attaches bearer credentials to an outgoing request, refreshing
// the token first if it is near expiry or was never issued.
func (a *Authenticator) Apply(ctx context.Context, req *resty.Request) error {
	access, err := a.Token(ctx)
	if err != nil {
		return err
	}
	req.SetHeader("Authorization", "Bearer "+access)
	return nil
}

// Token returns a usable access token, refreshing as needed.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	a.mu.RLock()
	perm := a.permErr
	tok := a.token
	a.mu.RUnlock()

	if perm != nil {
		return "", perm
	}
	if reason := a.refreshReason(tok); reason != "" {
		a.log.Info("refreshing token", "reason", reason)
		tok, err := a.refresh(ctx, false, false)
		if err != nil {
			return "", err
		}
		return tok.AccessToken, nil
	}
	return tok.AccessToken, nil
}

// ForceRefresh discards freshness checks and obtains a new token. The
// pipeline calls this after a 401/403 on an authenticated endpoint.
func (a *Authenticator) ForceRefresh(ctx context.Context) error {
	_, err := a.refresh(ctx, true, false)
	return err
}

func (a *Authenticator) refreshReason(tok *OAuthToken) string {
	if tok == nil || tok.AccessToken == "" {
		return "no token issued"
	}
	if tok.CreatedAt().IsZero() {
		return "token issue time unknown"
	}
	if tok.UntilExpiry() < a.refreshMargin {
		return "within minimum margin before expiry"
	}
	if time.Since(tok.CreatedAt()) > a.refreshInterval {
		return "scheduled refresh interval"
	}
	return ""
}

// refresh runs the token grant behind a single flight and returns the
// token it settled on. Callers must use the returned token, not re-read
// the shared field: a later flight may clear it at any time.
func (a *Authenticator) refresh(ctx context.Context, force, reauth bool) (*OAuthToken, error) {
	v, err, _ := a.sf.Do("refresh", func() (any, error) {
		a.mu.RLock()
		perm := a.permErr
		tok := a.token
		a.mu.RUnlock()
		if perm != nil {
			return nil, perm
		}
		if !force && a.refreshReason(tok) == "" {
			// Another caller refreshed while we waited for the flight.
			return tok, nil
		}
		if err := a.doRefresh(ctx, reauth); err != nil {
			return nil, err
		}
		a.mu.RLock()
		tok = a.token
		a.mu.RUnlock()
		return tok, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*OAuthToken), nil
}

// doRefresh runs one grant workflow. Callers hold the single-flight slot.
func (a *Authenticator) doRefresh(ctx context.Context, reauth bool) error {
	a.mu.RLock()
	refreshToken := ""
	scope := "internal"
	if a.token != nil {
		refreshToken = a.token.RefreshToken
		if a.token.Scope != "" {
			scope = a.token.Scope
		}
	}
	a.mu.RUnlock()

	var body map[string]any
	switch {
	case refreshToken != "" && !reauth:
		body = map[string]any{
			"grant_type":    "refresh_token",
			"refresh_token": refreshToken,
			"client_id":     a.creds.ClientID,
			"device_token":  a.creds.DeviceID,
			"scope":         scope,
		}
	case a.creds.Username != "" && a.creds.Password != "":
		body = map[string]any{
			"grant_type":   "password",
			"expires_in":   int64(authDuration.Seconds()),
			"username":     a.creds.Username,
			"password":     a.creds.Password,
			"client_id":    a.creds.ClientID,
			"device_token": a.creds.DeviceID,
			"scope":        scope,
		}
	default:
		err := &ForbiddenError{Message: "no remaining valid auth credentials"}
		a.setPermanent(err)
		return err
	}

	for attempt := a.attempts; attempt > 0; attempt-- {
		resp, err := a.httpc.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			Post(a.tokenURL)
		if err != nil {
			if attempt > 1 {
				a.log.Warn("token endpoint connection error, retrying", "error", err)
				time.Sleep(authRetryDelay)
				continue
			}
			return &InternalError{Message: fmt.Sprintf("repeated connection errors calling token endpoint: %v", err)}
		}

		status := resp.StatusCode()
		switch {
		case status == 200:
			tok, err := ParseToken(resp.Body(), time.Now())
			if err != nil {
				return err
			}
			a.mu.Lock()
			a.token = tok
			a.mu.Unlock()
			if a.creds.TokenFile != "" {
				if err := tok.WriteFile(a.creds.TokenFile); err != nil {
					a.log.Warn("could not persist refreshed token", "file", a.creds.TokenFile, "error", err)
				}
			}
			return nil
		case status >= 500:
			if attempt > 1 {
				time.Sleep(authRetryDelay)
				continue
			}
			return &InternalError{Status: status, Message: string(resp.Body())}
		case status == 429:
			return &ThrottledError{Message: string(resp.Body())}
		case status == 401:
			var payload struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(resp.Body(), &payload) == nil && payload.Error == "invalid_grant" && !reauth {
				// Refresh token is no longer valid; drop it and retry with
				// full re-authentication.
				a.log.Warn("refresh token is invalid, re-authenticating")
				a.clearToken()
				return a.doRefresh(ctx, true)
			}
			fallthrough
		default:
			a.clearToken()
			var perm error
			if status == 403 {
				perm = &ForbiddenError{Message: "credentials were not accepted, or 2FA is required"}
			} else {
				perm = &CallError{Status: status, Body: string(resp.Body()), URL: a.tokenURL}
			}
			a.setPermanent(perm)
			a.log.Error("authentication failed permanently", "status", status)
			return perm
		}
	}
	return &InternalError{Message: "token refresh attempts exhausted"}
}

func (a *Authenticator) clearToken() {
	a.mu.Lock()
	a.token = nil
	a.mu.Unlock()
}

func (a *Authenticator) setPermanent(err error) {
	a.mu.Lock()
	a.permErr = err
	a.mu.Unlock()
}
