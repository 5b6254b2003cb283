package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/devcapsules/codecapsules-sub003/internal/tunnel"
)

const (
	tunnelSecret = "shared-secret"
	tunnelCaller = "edge-worker"
)

func signedRequest(t *testing.T, body string, mutate func(*http.Request)) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/internal/generate", bytes.NewReader([]byte(body)))
	ts := time.Now().UnixMilli()
	req.Header.Set(tunnel.HeaderSignature, tunnel.Sign(tunnelSecret, ts, tunnelCaller, body))
	req.Header.Set(tunnel.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(tunnel.HeaderCaller, tunnelCaller)
	if mutate != nil {
		mutate(req)
	}
	return req
}

func runTunnelAuth(req *http.Request) (*httptest.ResponseRecorder, string, string) {
	var gotCaller, gotBody string
	handler := TunnelAuth(tunnelSecret, []string{tunnelCaller}, "/internal/health", zerolog.New(io.Discard))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotCaller = CallerFromContext(r.Context())
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
			w.WriteHeader(http.StatusOK)
		}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, gotCaller, gotBody
}

func TestTunnelAuthAccepts(t *testing.T) {
	body := `{"jobId":"j1"}`
	rec, caller, gotBody := runTunnelAuth(signedRequest(t, body, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if caller != tunnelCaller {
		t.Fatalf("caller in context = %q, want %q", caller, tunnelCaller)
	}
	if gotBody != body {
		t.Fatalf("handler body = %q, want %q (body must be restored after verification)", gotBody, body)
	}
}

func TestTunnelAuthRejects(t *testing.T) {
	body := `{"jobId":"j1"}`
	tests := []struct {
		name   string
		mutate func(*http.Request)
	}{
		{"missing signature", func(r *http.Request) { r.Header.Del(tunnel.HeaderSignature) }},
		{"missing timestamp", func(r *http.Request) { r.Header.Del(tunnel.HeaderTimestamp) }},
		{"missing caller", func(r *http.Request) { r.Header.Del(tunnel.HeaderCaller) }},
		{"unknown caller", func(r *http.Request) {
			// Re-sign with a caller that is not allow-listed so only
			// the allow-list check can fail.
			ts := time.Now().UnixMilli()
			r.Header.Set(tunnel.HeaderCaller, "intruder")
			r.Header.Set(tunnel.HeaderTimestamp, strconv.FormatInt(ts, 10))
			r.Header.Set(tunnel.HeaderSignature, tunnel.Sign(tunnelSecret, ts, "intruder", body))
		}},
		{"stale timestamp", func(r *http.Request) {
			ts := time.Now().Add(-time.Minute).UnixMilli()
			r.Header.Set(tunnel.HeaderTimestamp, strconv.FormatInt(ts, 10))
			r.Header.Set(tunnel.HeaderSignature, tunnel.Sign(tunnelSecret, ts, tunnelCaller, body))
		}},
		{"future timestamp", func(r *http.Request) {
			ts := time.Now().Add(time.Minute).UnixMilli()
			r.Header.Set(tunnel.HeaderTimestamp, strconv.FormatInt(ts, 10))
			r.Header.Set(tunnel.HeaderSignature, tunnel.Sign(tunnelSecret, ts, tunnelCaller, body))
		}},
		{"bad signature", func(r *http.Request) {
			r.Header.Set(tunnel.HeaderSignature, "deadbeef")
		}},
		{"non-numeric timestamp", func(r *http.Request) {
			r.Header.Set(tunnel.HeaderTimestamp, "yesterday")
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec, _, _ := runTunnelAuth(signedRequest(t, body, tc.mutate))
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestTunnelAuthHealthExempt(t *testing.T) {
	handler := TunnelAuth(tunnelSecret, []string{tunnelCaller}, "/internal/health", zerolog.New(io.Discard))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
	req := httptest.NewRequest(http.MethodGet, "/internal/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("unsigned health probe status = %d, want 200", rec.Code)
	}
}
