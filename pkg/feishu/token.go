package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// tokenKind selects which Feishu access token a manager issues. Bitable
// operations authenticate with the tenant token; contact lookups use the app
// token.
type tokenKind string

const (
	tenantToken tokenKind = "tenant"
	appToken    tokenKind = "app"
)

const (
	// tokenExpiryBuffer refreshes tokens this long before the
	// server-declared expiry, so a token never goes stale mid-request.
	tokenExpiryBuffer = 5 * time.Minute

	// defaultTokenTTL is assumed when the issuance response omits an
	// expiry. Feishu tokens typically live 2 hours.
	defaultTokenTTL = 2 * time.Hour
)

// tokenManager caches a single access token and refreshes it lazily when a
// caller needs one past expiry. There is no background refresh. The slot is
// mutex-guarded so Token and Invalidate are atomic with respect to each
// other for multi-goroutine callers.
type tokenManager struct {
	kind       tokenKind
	appID      string
	appSecret  string
	baseURL    string
	ttl        time.Duration
	httpClient *http.Client
	logger     hclog.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func newTokenManager(kind tokenKind, cfg *Config, httpClient *http.Client) *tokenManager {
	return &tokenManager{
		kind:       kind,
		appID:      cfg.AppID,
		appSecret:  cfg.AppSecret,
		baseURL:    cfg.BaseURL,
		ttl:        cfg.TokenTTL,
		httpClient: httpClient,
		logger:     cfg.Logger.Named(string(kind) + "-token"),
	}
}

// tokenResponse is the issuance endpoint envelope. Exactly one of the token
// fields is populated depending on the endpoint.
type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	AppAccessToken    string `json:"app_access_token"`
	Expire            int    `json:"expire"`
}

// Token returns the cached token while it is valid, refreshing it from the
// issuance endpoint otherwise. Two consecutive calls within the token
// lifetime issue at most one network request.
func (m *tokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && time.Now().Before(m.expiresAt.Add(-tokenExpiryBuffer)) {
		return m.token, nil
	}

	token, expiresAt, err := m.refresh(ctx)
	if err != nil {
		return "", err
	}

	m.token = token
	m.expiresAt = expiresAt

	m.logger.Debug("refreshed access token", "expires_at", expiresAt)
	return token, nil
}

// Invalidate clears the cached slot so the next Token call refreshes. Called
// after a downstream request reports an authorization failure.
func (m *tokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiresAt = time.Time{}
}

// refresh exchanges the credential for a fresh token. Caller holds the lock.
func (m *tokenManager) refresh(ctx context.Context) (string, time.Time, error) {
	endpoint := fmt.Sprintf("%s/auth/v3/%s_access_token/internal", m.baseURL, m.kind)

	payload, err := json.Marshal(map[string]string{
		"app_id":     m.appID,
		"app_secret": m.appSecret,
	})
	if err != nil {
		return "", time.Time{}, &Error{Op: "Token", Err: err, Msg: "failed to marshal credential"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", time.Time{}, &Error{Op: "Token", Err: err, Msg: "failed to create request"}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, &Error{Op: "Token", Err: ErrAuthentication, Msg: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", time.Time{}, &Error{Op: "Token", Err: ErrAuthentication, Msg: "failed to read response"}
	}

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, &Error{
			Op:         "Token",
			Err:        ErrAuthentication,
			StatusCode: resp.StatusCode,
			Msg:        string(body),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", time.Time{}, &Error{Op: "Token", Err: ErrAuthentication, Msg: "malformed token response"}
	}

	if tr.Code != 0 {
		return "", time.Time{}, &Error{
			Op:         "Token",
			Err:        ErrAuthentication,
			StatusCode: resp.StatusCode,
			Code:       tr.Code,
			Msg:        tr.Msg,
		}
	}

	token := tr.TenantAccessToken
	if m.kind == appToken {
		token = tr.AppAccessToken
	}
	if token == "" {
		return "", time.Time{}, &Error{
			Op:  "Token",
			Err: ErrAuthentication,
			Msg: fmt.Sprintf("token response missing %s_access_token", m.kind),
		}
	}

	ttl := m.ttl
	if tr.Expire > 0 {
		ttl = time.Duration(tr.Expire) * time.Second
	}

	return token, time.Now().Add(ttl), nil
}
