package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// Vendor envelope codes reported for a stale or invalid access token.
const (
	codeAppTokenInvalid    = 99991661
	codeTenantTokenInvalid = 99991663

	// codeRateLimited is the envelope code for frequency-limit rejections.
	codeRateLimited = 99991400
)

// Client performs record-level operations against the Feishu open-platform
// API, authorizing each request through its token managers.
type Client struct {
	cfg          Config
	httpClient   *http.Client
	tenantTokens *tokenManager
	appTokens    *tokenManager
	logger       hclog.Logger
}

// New creates a Feishu client from the given configuration.
func New(cfg Config) (*Client, error) {
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	httpClient := cfg.newHTTPClient()

	return &Client{
		cfg:          cfg,
		httpClient:   httpClient,
		tenantTokens: newTokenManager(tenantToken, &cfg, httpClient),
		appTokens:    newTokenManager(appToken, &cfg, httpClient),
		logger:       cfg.Logger.Named("feishu"),
	}, nil
}

// envelope is the response wrapper every vendor endpoint returns. The code
// field is checked in addition to the HTTP status.
type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// do issues one authorized request and decodes the envelope data into
// result. An authorization failure invalidates the cached token and retries
// exactly once; rate-limited requests and, for idempotent operations,
// timeouts and server errors are retried with bounded exponential backoff.
func (c *Client) do(ctx context.Context, op, method, path string, tokens *tokenManager, body, result any, idempotent bool) error {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Err: err, Msg: "failed to marshal request body"}
		}
	}

	requestID := uuid.New().String()
	authRetried := false

	attempt := func() error {
		err := c.attempt(ctx, op, method, path, tokens, bodyBytes, result, requestID)
		if err == nil {
			return nil
		}

		// A failed credential exchange surfaces immediately; only a
		// downstream 401 earns the invalidate-and-retry below.
		var refreshErr *tokenRefreshError
		if errors.As(err, &refreshErr) {
			return backoff.Permanent(refreshErr.err)
		}

		if errors.Is(err, ErrAuthentication) {
			if authRetried {
				return backoff.Permanent(err)
			}
			authRetried = true
			tokens.Invalidate()
			c.logger.Debug("authorization failure, refreshing token and retrying once",
				"request_id", requestID, "op", op)
			return err
		}

		if errors.Is(err, ErrRateLimited) {
			return err
		}
		if idempotent && errors.Is(err, ErrTimeout) {
			return err
		}
		var apiErr *Error
		if idempotent && errors.As(err, &apiErr) && apiErr.StatusCode >= 500 {
			return err
		}

		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryDelay

	err := backoff.Retry(attempt, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(c.cfg.MaxRetries)), ctx))
	if err != nil {
		return err
	}
	return nil
}

// tokenRefreshError marks an error from the token issuance endpoint itself,
// as opposed to a downstream authorization failure.
type tokenRefreshError struct {
	err error
}

func (e *tokenRefreshError) Error() string { return e.err.Error() }
func (e *tokenRefreshError) Unwrap() error { return e.err }

// attempt performs a single HTTP round trip and classifies the outcome.
func (c *Client) attempt(ctx context.Context, op, method, path string, tokens *tokenManager, bodyBytes []byte, result any, requestID string) error {
	token, err := tokens.Token(ctx)
	if err != nil {
		return &tokenRefreshError{err: err}
	}

	var bodyReader io.Reader
	if bodyBytes != nil {
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return &Error{Op: op, Err: err, Msg: "failed to create request"}
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if bodyBytes != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("sending request",
		"request_id", requestID, "method", method, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return &Error{Op: op, Err: ErrTimeout, Msg: err.Error()}
		}
		return &Error{Op: op, Err: ErrAPIRequest, Msg: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, Err: ErrAPIRequest, Msg: "failed to read response"}
	}

	var env envelope
	if len(respBody) > 0 {
		// Leave env zero-valued on parse failure; the status checks below
		// still classify the error.
		_ = json.Unmarshal(respBody, &env)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		env.Code == codeAppTokenInvalid,
		env.Code == codeTenantTokenInvalid:
		return &Error{
			Op:         op,
			Err:        ErrAuthentication,
			StatusCode: resp.StatusCode,
			Code:       env.Code,
			Msg:        env.Msg,
		}

	case resp.StatusCode == http.StatusTooManyRequests, env.Code == codeRateLimited:
		return &Error{
			Op:         op,
			Err:        ErrRateLimited,
			StatusCode: resp.StatusCode,
			Code:       env.Code,
			Msg:        env.Msg,
		}

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg := env.Msg
		if msg == "" {
			msg = string(respBody)
		}
		return &Error{
			Op:         op,
			Err:        ErrAPIRequest,
			StatusCode: resp.StatusCode,
			Code:       env.Code,
			Msg:        msg,
		}

	case env.Code != 0:
		return &Error{
			Op:         op,
			Err:        ErrAPIRequest,
			StatusCode: resp.StatusCode,
			Code:       env.Code,
			Msg:        env.Msg,
		}
	}

	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return &Error{Op: op, Err: ErrAPIRequest, Msg: "failed to decode response data"}
		}
	}

	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// bitableRecordsPath builds the records endpoint path for one table.
func bitableRecordsPath(appToken, tableID, suffix string) string {
	path := fmt.Sprintf("/bitable/v1/apps/%s/tables/%s/records", appToken, tableID)
	if suffix != "" {
		path += "/" + suffix
	}
	return path
}
