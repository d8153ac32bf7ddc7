package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizeEndpoint(t *testing.T) {
	tests := map[string]string{
		"/api/session/status/ABC234":   "/api/session/status/:code",
		"/api/session/settings/abc234": "/api/session/settings/:code",
		"/api/session/text/X":          "/api/session/text/:code",
		"/api/tts":                     "/api/tts",
		"/health":                      "/health",
	}
	for path, want := range tests {
		if got := normalizeEndpoint(path); got != want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestMiddleware_RecordsStatus(t *testing.T) {
	counter := httpRequestsTotal.WithLabelValues("GET", "/api/session/status/:code", "404")
	before := testutil.ToFloat64(counter)

	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	for _, code := range []string{"AAAAAA", "BBBBBB"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session/status/"+code, nil))
	}

	if got := testutil.ToFloat64(counter) - before; got != 2 {
		t.Errorf("expected 2 requests under one label set, got %v", got)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	hits := cacheLookups.WithLabelValues("synthesis", "hit")
	misses := cacheLookups.WithLabelValues("synthesis", "miss")
	h0, m0 := testutil.ToFloat64(hits), testutil.ToFloat64(misses)

	RecordCacheLookup("synthesis", true)
	RecordCacheLookup("synthesis", false)
	RecordCacheLookup("synthesis", false)

	if d := testutil.ToFloat64(hits) - h0; d != 1 {
		t.Errorf("expected 1 hit, got %v", d)
	}
	if d := testutil.ToFloat64(misses) - m0; d != 2 {
		t.Errorf("expected 2 misses, got %v", d)
	}
}

func TestRecordProviderCall(t *testing.T) {
	failures := providerCalls.WithLabelValues("translate", "error")
	before := testutil.ToFloat64(failures)

	RecordProviderCall("translate", errors.New("boom"), 20*time.Millisecond)
	RecordProviderCall("translate", nil, 10*time.Millisecond)

	if d := testutil.ToFloat64(failures) - before; d != 1 {
		t.Errorf("expected 1 failed call, got %v", d)
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	SetActiveSessions(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(rec.Body.String(), "readingroom_active_sessions 3") {
		t.Error("active sessions gauge missing from exposition")
	}
}
