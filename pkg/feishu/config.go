package feishu

import (
	"net/http"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultBaseURL is the Feishu open-platform API endpoint.
	DefaultBaseURL = "https://open.feishu.cn/open-apis"

	// DefaultTimeout bounds every HTTP request issued by the client.
	DefaultTimeout = 10 * time.Second

	// DefaultChunkSize is the number of records sent per batch request.
	DefaultChunkSize = 500

	// MaxChunkSize is the vendor ceiling on records per batch request.
	MaxChunkSize = 5000

	// DefaultMaxRetries bounds retries of rate-limited requests and of
	// timed-out idempotent requests.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the initial backoff interval between retries.
	DefaultRetryDelay = 1 * time.Second
)

// Config holds configuration for the Feishu client.
type Config struct {
	// AppID is the application id from the Feishu developer platform.
	AppID string

	// AppSecret is the application secret paired with AppID.
	// Never logged or serialized.
	AppSecret string

	// BaseURL overrides the open-platform endpoint. Mainly useful for
	// pointing the client at a mock server in tests.
	// Default: DefaultBaseURL
	BaseURL string

	// Timeout for each HTTP request.
	// Default: 10 seconds
	Timeout time.Duration

	// ChunkSize is the maximum number of records per batch request.
	// Default: 500, hard ceiling MaxChunkSize
	ChunkSize int

	// MaxRetries bounds retries for transient failures.
	// Default: 3
	MaxRetries int

	// RetryDelay is the initial backoff interval between retries.
	// Default: 1 second
	RetryDelay time.Duration

	// TokenTTL is the token lifetime assumed when the issuance response
	// omits one.
	// Default: 2 hours
	TokenTTL time.Duration

	// Logger (optional).
	Logger hclog.Logger
}

// applyDefaults fills zero-valued fields in place.
func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = defaultTokenTTL
	}
	if c.Logger == nil {
		c.Logger = hclog.NewNullLogger()
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.AppID, validation.Required),
		validation.Field(&c.AppSecret, validation.Required),
		validation.Field(&c.ChunkSize, validation.Min(1), validation.Max(MaxChunkSize)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(1))),
		validation.Field(&c.MaxRetries, validation.Min(0)),
	)
	if err != nil {
		return &Error{Op: "Validate", Err: ErrValidation, Msg: err.Error()}
	}

	parsed, err := url.Parse(c.BaseURL)
	if err != nil {
		return &Error{Op: "Validate", Err: ErrValidation, Msg: "invalid base URL: " + err.Error()}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return &Error{Op: "Validate", Err: ErrValidation, Msg: "base URL must use http or https scheme"}
	}

	return nil
}

// newHTTPClient creates the HTTP client shared by the token managers and the
// API client.
func (c *Config) newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: c.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
