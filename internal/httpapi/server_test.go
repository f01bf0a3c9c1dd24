package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"engined/pkg/types"
)

type fakeService struct {
	status     types.StatusResponse
	entries    []types.CacheEntry
	entriesErr error
	purged     int
	purgeErr   error
}

func (f *fakeService) Status() types.StatusResponse { return f.status }

func (f *fakeService) CacheEntries() ([]types.CacheEntry, error) {
	return f.entries, f.entriesErr
}

func (f *fakeService) PurgeCache() error {
	f.purged++
	return f.purgeErr
}

func TestHealthz(t *testing.T) {
	h := NewMux(&fakeService{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "ok" {
		t.Fatalf("body = %q, want ok", got)
	}
}

func TestStatusEndpoint(t *testing.T) {
	svc := &fakeService{status: types.StatusResponse{
		CacheRoot:     "/var/cache/engined",
		FreeStorageGB: 42.5,
		Entries: []types.CacheEntry{
			{Fingerprint: strings.Repeat("a", 64), SizeBytes: 1024},
		},
	}}
	h := NewMux(svc)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
	var got types.StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.CacheRoot != svc.status.CacheRoot {
		t.Fatalf("cache root = %q, want %q", got.CacheRoot, svc.status.CacheRoot)
	}
	if len(got.Entries) != 1 || got.Entries[0].SizeBytes != 1024 {
		t.Fatalf("entries = %+v", got.Entries)
	}
}

func TestCacheList(t *testing.T) {
	svc := &fakeService{entries: []types.CacheEntry{
		{Fingerprint: strings.Repeat("b", 64), Path: "/cache/engines/b"},
	}}
	h := NewMux(svc)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cache", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got struct {
		Entries []types.CacheEntry `json:"entries"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].Path != "/cache/engines/b" {
		t.Fatalf("entries = %+v", got.Entries)
	}
}

func TestCacheListError(t *testing.T) {
	svc := &fakeService{entriesErr: errors.New("scan failed")}
	h := NewMux(svc)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/cache", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var got types.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Error != "scan failed" || got.Code != http.StatusInternalServerError {
		t.Fatalf("error payload = %+v", got)
	}
}

func TestCachePurge(t *testing.T) {
	svc := &fakeService{}
	h := NewMux(svc)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/cache", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if svc.purged != 1 {
		t.Fatalf("purged = %d, want 1", svc.purged)
	}
}

func TestCachePurgeError(t *testing.T) {
	svc := &fakeService{purgeErr: errors.New("busy")}
	h := NewMux(svc)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/cache", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewMux(&fakeService{})
	// Hit an instrumented route first so counters exist.
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "engined_http_requests_total") {
		t.Fatalf("metrics output missing request counter")
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	h := NewMux(&fakeService{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
