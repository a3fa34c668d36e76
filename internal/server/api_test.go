package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxpilot/internal/agent"
)

type stubHandler struct {
	lastQuery string
	response  *agent.Response
}

func (h *stubHandler) HandleQuery(_ context.Context, text string) *agent.Response {
	h.lastQuery = text
	if h.response != nil {
		return h.response
	}
	return &agent.Response{Text: "answer", ActionsTaken: []string{}}
}

func newTestServer(t *testing.T, handler QueryHandler, services []string) (*APIServer, *ServerContext) {
	t.Helper()
	sc := NewServerContext(context.Background(), handler)
	srv, err := NewAPIServer(sc, APIServerConfig{Services: services})
	require.NoError(t, err)
	return srv, sc
}

func TestNewAPIServerRequiresHandler(t *testing.T) {
	sc := NewServerContext(context.Background(), nil)
	_, err := NewAPIServer(sc, APIServerConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query handler")

	_, err = NewAPIServer(nil, APIServerConfig{})
	require.Error(t, err)
}

func TestQueryEndpointReturnsResponse(t *testing.T) {
	handler := &stubHandler{response: &agent.Response{
		Text:         "You have 2 Dependabot alerts.",
		ActionsTaken: []string{`Searched Gmail for "github"`, "Fetched Dependabot alerts for acme/api"},
	}}
	srv, _ := newTestServer(t, handler, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(`{"query": "any warnings from github?"}`))
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "any warnings from github?", handler.lastQuery)

	var resp agent.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "You have 2 Dependabot alerts.", resp.Text)
	assert.Len(t, resp.ActionsTaken, 2)
}

func TestQueryEndpointRejectsMalformedBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: "not json at all"},
		{name: "empty query", body: `{"query": ""}`},
		{name: "whitespace query", body: `{"query": "   "}`},
		{name: "missing query", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := &stubHandler{}
			srv, _ := newTestServer(t, handler, nil)

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(tt.body))
			srv.Handler().ServeHTTP(rec, req)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, handler.lastQuery)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Detail)
		})
	}
}

func TestServicesStatusReportsPerService(t *testing.T) {
	srv, sc := newTestServer(t, &stubHandler{}, []string{"gmail", "github", "openai"})
	sc.RegisterProbe("gmail", PingerFunc(func(context.Context) error { return nil }))
	sc.RegisterProbe("github", PingerFunc(func(context.Context) error {
		return errors.New("github: authentication failed")
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/services/status", nil)
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var statuses map[string]ServiceStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &statuses))
	require.Len(t, statuses, 3)

	assert.Equal(t, ServiceStatusConnected, statuses["gmail"].Status)
	assert.Empty(t, statuses["gmail"].Message)

	assert.Equal(t, ServiceStatusError, statuses["github"].Status)
	assert.Contains(t, statuses["github"].Message, "authentication failed")

	assert.Equal(t, ServiceStatusNotConfigured, statuses["openai"].Status)
}

func TestHealthEndpoints(t *testing.T) {
	srv, sc := newTestServer(t, &stubHandler{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// Readiness flips once shutdown begins.
	require.NoError(t, sc.Shutdown())
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDetailedHealthListsConfiguredServices(t *testing.T) {
	srv, sc := newTestServer(t, &stubHandler{}, []string{"gmail", "github"})
	sc.RegisterProbe("github", PingerFunc(func(context.Context) error { return nil }))
	sc.RegisterProbe("gmail", PingerFunc(func(context.Context) error { return nil }))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var detail DetailedHealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "ok", detail.Status)
	assert.NotEmpty(t, detail.Uptime)
	assert.Equal(t, []string{"gmail", "github"}, detail.Services)
}

func TestServerContextShutdownIsIdempotent(t *testing.T) {
	sc := NewServerContext(context.Background(), &stubHandler{})
	require.NoError(t, sc.Shutdown())
	require.NoError(t, sc.Shutdown())
	assert.True(t, sc.IsShutdown())

	select {
	case <-sc.Context().Done():
	default:
		t.Fatal("context not cancelled after shutdown")
	}
}
