package httputil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// HTTPClient is the part of *http.Client used by callers of the API.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// PostJSON marshals body, posts it to url and fails on any non-2xx status.
func PostJSON(c HTTPClient, url string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("POST %s: %s: %s", url, resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}

// MockHTTPClient records requests and replies with StatusCode and Body.
type MockHTTPClient struct {
	mu         sync.Mutex
	StatusCode int
	Body       string
	Err        error
	requests   []RecordedRequest
}

// RecordedRequest is one request seen by MockHTTPClient.
type RecordedRequest struct {
	Method string
	URL    string
	Body   string
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil {
		body, _ = io.ReadAll(req.Body)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, RecordedRequest{Method: req.Method, URL: req.URL.String(), Body: string(body)})
	if m.Err != nil {
		return nil, m.Err
	}
	status := m.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return &http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Body:       io.NopCloser(bytes.NewBufferString(m.Body)),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

// Requests returns the method, URL and body of every request seen.
func (m *MockHTTPClient) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}
