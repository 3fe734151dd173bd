package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPostJSON_Mock(t *testing.T) {
	m := &MockHTTPClient{}
	if err := PostJSON(m, "http://tracker/api/state", map[string]float64{"height_m": 30}); err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
	reqs := m.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if reqs[0].Method != http.MethodPost || reqs[0].URL != "http://tracker/api/state" {
		t.Errorf("unexpected request %+v", reqs[0])
	}
	if reqs[0].Body != `{"height_m":30}` {
		t.Errorf("unexpected body %q", reqs[0].Body)
	}
}

func TestPostJSON_ErrorStatus(t *testing.T) {
	m := &MockHTTPClient{StatusCode: http.StatusBadRequest, Body: `{"error":"bad"}`}
	err := PostJSON(m, "http://tracker/api/state", struct{}{})
	if err == nil || !strings.Contains(err.Error(), "400 Bad Request") {
		t.Errorf("expected 400 error, got %v", err)
	}
}

func TestPostJSON_TransportError(t *testing.T) {
	m := &MockHTTPClient{Err: errors.New("connection refused")}
	if err := PostJSON(m, "http://tracker/api/state", struct{}{}); err == nil {
		t.Error("expected transport error")
	}
}

func TestPostJSON_RealClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			http.Error(w, "wrong content type", http.StatusUnsupportedMediaType)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	if err := PostJSON(srv.Client(), srv.URL, map[string]int{"x": 1}); err != nil {
		t.Errorf("PostJSON: %v", err)
	}
}
