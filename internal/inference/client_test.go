package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"photo-transform-go/config"
)

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(config.InferenceConfig{URL: server.URL + "/", APIKey: "test-key"}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCall_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/detect-faces" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["max_faces"] != float64(3) {
			t.Errorf("unexpected payload: %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{"value": "ok"})
	}))
	defer server.Close()

	var out struct {
		Value string `json:"value"`
	}
	err := newTestClient(t, server).Call(context.Background(), "/detect-faces", map[string]int{"max_faces": 3}, &out, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Value != "ok" {
		t.Errorf("expected ok, got %q", out.Value)
	}
}

func TestCall_StatusError(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"error field", `{"error":"model not loaded"}`, "model not loaded"},
		{"message field", `{"message":"overloaded"}`, "overloaded"},
		{"plain text", "gateway exploded", "gateway exploded"},
		{"empty", "", "empty response body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			var out map[string]any
			err := newTestClient(t, server).Call(context.Background(), "/validate", struct{}{}, &out, time.Second)

			var infErr *Error
			if !errors.As(err, &infErr) {
				t.Fatalf("expected *Error, got %T: %v", err, err)
			}
			if infErr.Endpoint != "/validate" || infErr.StatusCode != http.StatusServiceUnavailable {
				t.Errorf("unexpected error fields: %+v", infErr)
			}
			if infErr.Message != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, infErr.Message)
			}
			if out != nil {
				t.Errorf("output must stay untouched on failure, got %v", out)
			}
		})
	}
}

func TestCall_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer server.Close()

	var out map[string]any
	err := newTestClient(t, server).Call(context.Background(), "/style-transfer", struct{}{}, &out, time.Second)

	var infErr *Error
	if !errors.As(err, &infErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if infErr.Message != "malformed response" || infErr.Err == nil {
		t.Errorf("unexpected error: %+v", infErr)
	}
}

func TestCall_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	var out map[string]any
	start := time.Now()
	err := newTestClient(t, server).Call(context.Background(), "/style-transfer", struct{}{}, &out, 50*time.Millisecond)
	if time.Since(start) > time.Second {
		t.Errorf("timeout not honoured, took %s", time.Since(start))
	}

	var infErr *Error
	if !errors.As(err, &infErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if !infErr.Timeout() {
		t.Errorf("expected timeout error, got %v", infErr)
	}
}

func TestCall_NoRetry(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var out map[string]any
	_ = newTestClient(t, server).Call(context.Background(), "/detect-faces", struct{}{}, &out, time.Second)
	if calls != 1 {
		t.Errorf("expected exactly one request, got %d", calls)
	}
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	ok, err := newTestClient(t, server).Ping(context.Background())
	if err != nil || !ok {
		t.Errorf("expected healthy backend, got ok=%v err=%v", ok, err)
	}
}

func TestNewClient_EmptyURL(t *testing.T) {
	if _, err := NewClient(config.InferenceConfig{}); err == nil {
		t.Error("expected error for empty url")
	}
}
