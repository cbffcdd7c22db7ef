package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JakeFAU/dualsub-crawler/internal/crawler"
)

func TestRecorder(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePage("egypt", 3, false)
	m.ObservePage("egypt", 0, false)
	m.ObservePage("saudi", 0, true)
	m.ObserveClassification(true)
	m.ObserveClassification(false)
	m.ObserveClassification(false)
	m.ObserveSkipped()
	m.SetResults(7)
	m.ObserveOutcome(crawler.OutcomeTargetReached)
	m.ObserveLookup("tracks", true)
	m.ObserveRateLimitDelay("search.list", 200*time.Millisecond)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"ok pages", testutil.ToFloat64(m.pagesTotal.WithLabelValues("egypt", "ok")), 1},
		{"empty pages", testutil.ToFloat64(m.pagesTotal.WithLabelValues("egypt", "empty")), 1},
		{"failed pages", testutil.ToFloat64(m.pagesTotal.WithLabelValues("saudi", "error")), 1},
		{"candidates", testutil.ToFloat64(m.candidatesTotal.WithLabelValues("egypt")), 3},
		{"qualified", testutil.ToFloat64(m.classificationsTotal.WithLabelValues("qualified")), 1},
		{"rejected", testutil.ToFloat64(m.classificationsTotal.WithLabelValues("rejected")), 2},
		{"skipped", testutil.ToFloat64(m.skippedTotal), 1},
		{"results", testutil.ToFloat64(m.results), 7},
		{"outcomes", testutil.ToFloat64(m.outcomesTotal.WithLabelValues("target_reached")), 1},
		{"lookups", testutil.ToFloat64(m.lookupsTotal.WithLabelValues("tracks", "error")), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v; want %v", c.name, c.got, c.want)
		}
	}
	if n := testutil.CollectAndCount(m.rateLimitDelay); n != 1 {
		t.Errorf("expected one rate limit series, got %d", n)
	}
}

func TestNewWithNilRegistry(t *testing.T) {
	a := New(nil)
	b := New(nil)
	a.SetResults(1)
	b.SetResults(2)
	if testutil.ToFloat64(a.results) != 1 {
		t.Fatal("expected independent registries")
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New(prometheus.NewRegistry())
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/test", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/notfound", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	ts := httptest.NewServer(r)
	defer ts.Close()

	for _, path := range []string{"/test", "/notfound"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		if err := resp.Body.Close(); err != nil {
			t.Log(err)
		}
	}

	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "200")); got != 1 {
		t.Errorf("expected 1 request with code 200, got %f", got)
	}
	if got := testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "404")); got != 1 {
		t.Errorf("expected 1 request with code 404, got %f", got)
	}

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if errInner := resp.Body.Close(); errInner != nil {
			t.Log(errInner)
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "http_requests_total") {
		t.Errorf("expected metrics output to contain http_requests_total")
	}
}
