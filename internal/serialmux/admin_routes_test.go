package serialmux

import (
	"bufio"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localHostRequest builds a request from a loopback address so tsweb's debug
// access check passes.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func newAdminMux(t *testing.T) (*SerialMux[*TestableSerialPort], *TestableSerialPort, *http.ServeMux) {
	t.Helper()
	port := NewTestableSerialPort()
	m := NewSerialMux(port)
	httpMux := http.NewServeMux()
	m.AttachAdminRoutes(httpMux)
	return m, port, httpMux
}

func TestAdminRoutes_SendCommandAPI(t *testing.T) {
	_, port, httpMux := newAdminMux(t)

	tests := []struct {
		name       string
		method     string
		form       url.Values
		wantStatus int
		wantBody   string
	}{
		{"valid", http.MethodPost, url.Values{"command": {"STREAM ATTITUDE 5"}}, http.StatusOK, `Wrote command "STREAM ATTITUDE 5"`},
		{"empty", http.MethodPost, url.Values{"command": {"  "}}, http.StatusBadRequest, "Missing command"},
		{"wrong method", http.MethodGet, nil, http.StatusMethodNotAllowed, "Method not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := localHostRequest(tt.method, "/debug/send-command-api", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			httpMux.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
	assert.Equal(t, "STREAM ATTITUDE 5\n", port.Written())
}

func TestAdminRoutes_SendCommandAPIWriteFailure(t *testing.T) {
	_, port, httpMux := newAdminMux(t)
	port.SetShortWrite(true)

	req := localHostRequest(http.MethodPost, "/debug/send-command-api", strings.NewReader("command=PING"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAdminRoutes_Pages(t *testing.T) {
	_, _, httpMux := newAdminMux(t)

	tests := []struct {
		path        string
		contentType string
		wantBody    string
	}{
		{"/debug/send-command", "text/html", "Telemetry link"},
		{"/debug/tail.js", "application/javascript", "EventSource"},
		{"/debug/serial-status", "text/plain", "lines: 0"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), tt.contentType)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func TestAdminRoutes_SerialStatusListsFields(t *testing.T) {
	CurrentStatus.Reset()
	t.Cleanup(CurrentStatus.Reset)
	require.NoError(t, CurrentStatus.Merge(`{"mode": "GUIDED"}`))

	_, _, httpMux := newAdminMux(t)
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodGet, "/debug/serial-status", nil))
	assert.Contains(t, rec.Body.String(), "mode: GUIDED")
}

func TestAdminRoutes_TailRejectsPost(t *testing.T) {
	_, _, httpMux := newAdminMux(t)
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, localHostRequest(http.MethodPost, "/debug/tail", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdminRoutes_TailStreamsLines(t *testing.T) {
	m, _, httpMux := newAdminMux(t)
	srv := httptest.NewServer(httpMux)
	defer srv.Close()

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(srv.URL + "/debug/tail")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	ping, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": ping\n", ping)

	// the handler subscribes before it writes the ping
	m.broadcast("(30, 90)")

	var data string
	for data == "" {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	assert.Equal(t, "(30, 90)", data)
}
