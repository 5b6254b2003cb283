package tunnel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

const testSecret = "test-secret"

func newTestClient(baseURL string) *Client {
	return NewClient(Options{
		BaseURL:  baseURL,
		Secret:   testSecret,
		CallerID: "edge-worker",
	})
}

func TestCallSignsRequests(t *testing.T) {
	var captured struct {
		signature string
		timestamp string
		caller    string
		body      string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.signature = r.Header.Get(HeaderSignature)
		captured.timestamp = r.Header.Get(HeaderTimestamp)
		captured.caller = r.Header.Get(HeaderCaller)
		buf, _ := io.ReadAll(r.Body)
		captured.body = string(buf)
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	res := newTestClient(srv.URL).Call(context.Background(), "/internal/generate",
		map[string]string{"jobId": "j1"}, time.Second)
	if res.Failed() {
		t.Fatalf("Call failed: %+v", res)
	}

	ts, err := strconv.ParseInt(captured.timestamp, 10, 64)
	if err != nil {
		t.Fatalf("timestamp header not numeric: %q", captured.timestamp)
	}
	if captured.caller != "edge-worker" {
		t.Fatalf("caller header = %q", captured.caller)
	}
	if !VerifySignature(testSecret, ts, captured.caller, captured.body, captured.signature) {
		t.Fatal("signature does not verify against the sent body")
	}
}

func TestCallNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	res := newTestClient(srv.URL).Call(context.Background(), "/internal/generate", nil, time.Second)
	if !res.Failed() {
		t.Fatal("expected failure")
	}
	if res.Kind != KindHTTPStatus {
		t.Fatalf("Kind = %q, want %q", res.Kind, KindHTTPStatus)
	}
	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("StatusCode = %d", res.StatusCode)
	}
}

func TestCallTimeoutIsDistinguishable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	res := newTestClient(srv.URL).Call(context.Background(), "/internal/generate", nil, 50*time.Millisecond)
	if !res.Failed() {
		t.Fatal("expected failure")
	}
	if res.Kind != KindTimeout {
		t.Fatalf("Kind = %q, want %q", res.Kind, KindTimeout)
	}
	if !strings.Contains(res.Err, "timed out after 50ms") {
		t.Fatalf("Err = %q, want timeout message", res.Err)
	}
}

func TestCallNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	res := newTestClient(srv.URL).Call(context.Background(), "/internal/generate", nil, time.Second)
	if res.Kind != KindNetwork {
		t.Fatalf("Kind = %q, want %q", res.Kind, KindNetwork)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name string
		body any
		want bool
	}{
		{"ok", map[string]string{"status": "ok"}, true},
		{"degraded", map[string]string{"status": "degraded"}, false},
		{"not json", "plain text", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("health probe method = %s", r.Method)
				}
				if s, ok := tc.body.(string); ok {
					w.Write([]byte(s))
					return
				}
				_ = json.NewEncoder(w).Encode(tc.body)
			}))
			defer srv.Close()

			if got := newTestClient(srv.URL).Health(context.Background()); got != tc.want {
				t.Fatalf("Health() = %v, want %v", got, tc.want)
			}
		})
	}
}
