package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	s := NewServer(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want %q", body["status"], "ok")
	}
}

func TestStatusReportsDisabledLayers(t *testing.T) {
	s := NewServer(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["epidemic_enabled"] != false {
		t.Errorf("epidemic_enabled = %v, want false", body["epidemic_enabled"])
	}
	if body["craq_enabled"] != false {
		t.Errorf("craq_enabled = %v, want false", body["craq_enabled"])
	}
}

func TestMembersEndpointWithoutEpidemicLayer(t *testing.T) {
	s := NewServer(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/members", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestCraqChainEndpointWithoutCraqLayer(t *testing.T) {
	s := NewServer(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/craq/chain", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestMetricsEndpointOnlyMountedWhenEnabled(t *testing.T) {
	s := NewServer(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status before EnableMetrics = %d, want %d", w.Code, http.StatusNotFound)
	}

	s.EnableMetrics()
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status after EnableMetrics = %d, want %d", w.Code, http.StatusOK)
	}
}
