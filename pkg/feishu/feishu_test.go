package feishu

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// mockVendor is a fake Feishu open-platform server. Token issuance is
// handled for both kinds; tests register bitable/contact handlers on mux.
type mockVendor struct {
	mux *http.ServeMux
	srv *httptest.Server

	tenantTokenRequests atomic.Int32
	appTokenRequests    atomic.Int32
}

func newMockVendor(t *testing.T) *mockVendor {
	t.Helper()

	m := &mockVendor{mux: http.NewServeMux()}

	m.mux.HandleFunc("/auth/v3/tenant_access_token/internal", func(w http.ResponseWriter, r *http.Request) {
		n := m.tenantTokenRequests.Add(1)
		writeJSON(w, map[string]any{
			"code":                0,
			"msg":                 "ok",
			"tenant_access_token": fmt.Sprintf("tenant-token-%d", n),
			"expire":              7200,
		})
	})
	m.mux.HandleFunc("/auth/v3/app_access_token/internal", func(w http.ResponseWriter, r *http.Request) {
		n := m.appTokenRequests.Add(1)
		writeJSON(w, map[string]any{
			"code":             0,
			"msg":              "ok",
			"app_access_token": fmt.Sprintf("app-token-%d", n),
			"expire":           7200,
		})
	})

	m.srv = httptest.NewServer(m.mux)
	t.Cleanup(m.srv.Close)
	return m
}

// newTestClient builds a client against the mock server with fast retries.
func newTestClient(t *testing.T, m *mockVendor) *Client {
	t.Helper()

	client, err := New(Config{
		AppID:      "cli_test",
		AppSecret:  "secret",
		BaseURL:    m.srv.URL,
		RetryDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeEnvelope writes a success envelope with the given data payload.
func writeEnvelope(w http.ResponseWriter, data any) {
	writeJSON(w, map[string]any{"code": 0, "msg": "success", "data": data})
}
