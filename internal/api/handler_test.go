package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"askweb/internal/auth"
	"askweb/internal/backend"
	"askweb/internal/credit"
	"askweb/internal/history"
	"askweb/internal/ledger"
	"askweb/internal/progress"
	"askweb/internal/session"
	"askweb/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	auth   *auth.Manager
	ledger *ledger.LocalLedger
}

func newTestServer(t *testing.T, backendHandler http.HandlerFunc) *testServer {
	t.Helper()
	upstream := httptest.NewServer(backendHandler)
	t.Cleanup(upstream.Close)

	kv := storage.NewMemoryStorage()
	l := ledger.NewLocalLedger(kv)
	accounts := auth.NewManager(kv, l, 2, nil)
	sim := progress.New(progress.WithTickSource(func(time.Duration) (<-chan time.Time, func()) {
		return make(chan time.Time), func() {}
	}))
	orch := session.New(history.NewStore(kv, "", 50, nil), backend.NewClient(upstream.URL), accounts, credit.NewGate(l, nil), sim)

	logger := zaptest.NewLogger(t)
	h := NewHandler(orch, accounts, l, logger)
	return &testServer{
		router: NewRouter(h, []string{"http://localhost:3000"}),
		auth:   accounts,
		ledger: l,
	}
}

func okBackend(w http.ResponseWriter, r *http.Request) {
	var req backend.SearchRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(backend.SearchResponse{
		Summary:     "answer to " + req.Query,
		Sources:     []history.Source{{Link: "https://example.com", Title: "Example"}},
		QueriesUsed: []string{req.Query},
	})
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestSearchFlow(t *testing.T) {
	s := newTestServer(t, okBackend)

	w := s.do(http.MethodPost, "/api/search", `{"query":"capital of France"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "please login to use the search feature", decode(t, w)["error"])

	w = s.do(http.MethodPost, "/api/login", `{"email":"ada@example.com"}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api/search", `{"query":"capital of France"}`)
	require.Equal(t, http.StatusOK, w.Code)
	first := decode(t, w)["record"].(map[string]any)
	assert.Equal(t, "answer to capital of France", first["summary"])
	assert.Equal(t, false, first["is_followup"])

	w = s.do(http.MethodPost, "/api/followup", `{"query":"and its population?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	second := body["record"].(map[string]any)
	assert.Equal(t, true, second["is_followup"])
	assert.Equal(t, first["id"], second["parent_id"])
	assert.Equal(t, first["id"], body["parent"].(map[string]any)["id"])

	w = s.do(http.MethodGet, "/api/credits", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["credits"])

	w = s.do(http.MethodPost, "/api/search", `{"query":"one more"}`)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "You have no credits left. Please purchase more credits.", decode(t, w)["error"])

	w = s.do(http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, w.Code)
	state := decode(t, w)
	assert.Len(t, state["records"], 2)
	assert.Equal(t, second["id"], state["active_id"])
	assert.Equal(t, "and its population?", state["current_context"].(map[string]any)["query"])
	assert.Equal(t, "ada@example.com", state["user"].(map[string]any)["email"])
}

func TestRecordsAndClear(t *testing.T) {
	s := newTestServer(t, okBackend)
	s.do(http.MethodPost, "/api/login", `{"email":"ada@example.com"}`)

	w := s.do(http.MethodPost, "/api/search", `{"query":"capital of France"}`)
	require.Equal(t, http.StatusOK, w.Code)
	id := decode(t, w)["record"].(map[string]any)["id"].(string)

	w = s.do(http.MethodGet, "/api/records/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "capital of France", decode(t, w)["record"].(map[string]any)["query"])

	w = s.do(http.MethodGet, "/api/records/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodDelete, "/api/records", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(http.MethodGet, "/api/records/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBackendErrorIsBadGateway(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"timeout"}`))
	})
	s.do(http.MethodPost, "/api/login", `{"email":"ada@example.com"}`)

	w := s.do(http.MethodPost, "/api/search", `{"query":"capital of France"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "timeout", decode(t, w)["error"])

	w = s.do(http.MethodGet, "/api/credits", "")
	assert.Equal(t, float64(1), decode(t, w)["credits"])
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t, okBackend)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/search", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/login", `{"email":"nope"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/credits", "").Code)

	s.do(http.MethodPost, "/api/login", `{"email":"ada@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/search", `{"query":"  "}`).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/followup", `{"query":"why?"}`).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/followup", `{"query":"why?","parent_id":"missing"}`).Code)
}

func TestLogoutAndCancel(t *testing.T) {
	s := newTestServer(t, okBackend)
	s.do(http.MethodPost, "/api/login", `{"email":"ada@example.com"}`)
	require.NotNil(t, s.auth.CurrentUser())

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPost, "/api/logout", "").Code)
	assert.Nil(t, s.auth.CurrentUser())

	w := s.do(http.MethodPost, "/api/cancel", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["cancelled"])
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, okBackend)

	req := httptest.NewRequest(http.MethodOptions, "/api/search", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{session.ErrEmptyQuery, http.StatusBadRequest},
		{session.ErrNoContext, http.StatusBadRequest},
		{auth.ErrInvalidEmail, http.StatusBadRequest},
		{session.ErrAuthRequired, http.StatusUnauthorized},
		{&session.CreditDeniedError{Reason: credit.NoCreditsRemaining}, http.StatusPaymentRequired},
		{&session.CreditDeniedError{Reason: credit.ChargeFailed}, http.StatusServiceUnavailable},
		{session.ErrRecordNotFound, http.StatusNotFound},
		{session.ErrSuperseded, http.StatusConflict},
		{session.ErrCancelled, http.StatusConflict},
		{session.ErrTimeout, http.StatusGatewayTimeout},
		{errors.Wrap(&backend.Error{Status: 500, Message: "x"}, "search"), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", http.NotFoundHandler(), zaptest.NewLogger(t))
	}()

	cancel()
	assert.NoError(t, <-done)
}
