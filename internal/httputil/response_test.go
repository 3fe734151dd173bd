package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "test error")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["error"] != "test error" {
		t.Errorf("error = %s, want 'test error'", resp["error"])
	}
}

func TestStatusHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		write func(http.ResponseWriter)
		code  int
	}{
		{"ok", func(w http.ResponseWriter) { WriteJSONOK(w, map[string]int{"n": 1}) }, http.StatusOK},
		{"method", MethodNotAllowed, http.StatusMethodNotAllowed},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "nope") }, http.StatusBadRequest},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "gone") }, http.StatusNotFound},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d", rec.Code, tt.code)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type body struct {
		X int `json:"x"`
	}
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{"valid", `{"x": 3}`, 3, false},
		{"unknown field", `{"x": 3, "y": 4}`, 0, true},
		{"trailing", `{"x": 3}{"x": 4}`, 0, true},
		{"not json", `x=3`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.in))
			var b body
			err := DecodeJSON(req, &b)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && b.X != tt.want {
				t.Errorf("X = %d, want %d", b.X, tt.want)
			}
		})
	}
}
