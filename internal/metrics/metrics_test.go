package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(actionsTotal.WithLabelValues("sent"))
	RecordAction("sent")
	RecordAction("sent")
	if got := testutil.ToFloat64(actionsTotal.WithLabelValues("sent")) - before; got != 2 {
		t.Errorf("sent delta = %v, want 2", got)
	}

	beforeErr := testutil.ToFloat64(schedulerCycles.WithLabelValues("error"))
	RecordCycle(errors.New("db locked"))
	if got := testutil.ToFloat64(schedulerCycles.WithLabelValues("error")) - beforeErr; got != 1 {
		t.Errorf("error cycles delta = %v, want 1", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	h := Middleware(func(*http.Request) string { return "/teapot" })(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/teapot", "418"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/teapot?x=1", nil))
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/teapot", "418")) - before; got != 1 {
		t.Errorf("requests delta = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "outreach_http_requests_total") {
		t.Error("metrics output missing outreach_http_requests_total")
	}
}
