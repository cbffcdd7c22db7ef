package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
	"github.com/JakeFAU/dualsub-crawler/internal/storage/memory"
)

type fakeStatus struct {
	status crawler.Status
}

func (f fakeStatus) Status() crawler.Status {
	return f.status
}

type failingResults struct {
	crawler.ResultStore
}

func (failingResults) LoadResults(context.Context) ([]crawler.ResultEntry, error) {
	return nil, errors.New("disk gone")
}

func serve(t *testing.T, s *Server, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil, nil, Config{}, zap.NewNop())
	rec := serve(t, s, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = serve(t, s, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Status(t *testing.T) {
	t.Parallel()

	outcome := crawler.Outcome{Status: crawler.OutcomeTargetReached, Attempts: 2, Results: 6}
	status := fakeStatus{status: crawler.Status{
		RunID:   "run-1",
		State:   crawler.RunState{AttemptsUsed: 2, TargetCount: 5, MaxAttempts: 10},
		Cursor:  crawler.Cursor{Token: "CDIQAA", Profile: "egypt"},
		Results: 6,
		Outcome: &outcome,
	}}
	s := NewServer(status, nil, nil, nil, Config{}, nil)

	rec := serve(t, s, "/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "run-1", body["run_id"])
	require.Equal(t, "target_reached", body["outcome"].(map[string]any)["status"])
	require.Equal(t, "CDIQAA", body["cursor"].(map[string]any)["nextPageToken"])
}

func TestServer_Results(t *testing.T) {
	t.Parallel()

	results := memory.NewResultStore(crawler.ResultEntry{ID: "v1"}, crawler.ResultEntry{ID: "v2"})
	s := NewServer(fakeStatus{}, results, nil, nil, Config{}, nil)

	rec := serve(t, s, "/v1/results", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"count":2,"videos":[
		{"id":"v1","title":"","channel_title":"","published_at":"0001-01-01T00:00:00Z","url":""},
		{"id":"v2","title":"","channel_title":"","published_at":"0001-01-01T00:00:00Z","url":""}
	]}`, rec.Body.String())

	s = NewServer(fakeStatus{}, failingResults{}, nil, nil, Config{}, nil)
	rec = serve(t, s, "/v1/results", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_APIKey(t *testing.T) {
	t.Parallel()

	s := NewServer(fakeStatus{}, nil, nil, nil, Config{APIKey: "secret"}, nil)

	rec := serve(t, s, "/v1/status", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(t, s, "/v1/status", http.Header{"X-Api-Key": {"secret"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, s, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_MetricsAndMiddleware(t *testing.T) {
	t.Parallel()

	called := false
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("dualsub_results 3\n"))
	})
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			next.ServeHTTP(w, r)
		})
	}
	s := NewServer(fakeStatus{}, nil, metrics, mw, Config{}, nil)

	rec := serve(t, s, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "dualsub_results")
	require.True(t, called)
}

func TestServer_RecoversPanics(t *testing.T) {
	t.Parallel()

	s := NewServer(panicStatus{}, nil, nil, nil, Config{}, nil)
	rec := serve(t, s, "/v1/status", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

type panicStatus struct{}

func (panicStatus) Status() crawler.Status {
	panic("boom")
}
