package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/devcapsules/codecapsules-sub003/internal/tunnel"
)

type callerKey struct{}

// TunnelAuth verifies HMAC-signed requests on the receiving side of the
// tunnel. Every path except exemptPath (the liveness probe) must carry a
// valid signature, a fresh timestamp and an allow-listed caller. The
// specific rejection reason is logged for operators; callers only see a
// generic 401.
func TunnelAuth(secret string, allowedCallers []string, exemptPath string, logger zerolog.Logger) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedCallers))
	for _, c := range allowedCallers {
		allowed[c] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == exemptPath {
				next.ServeHTTP(w, r)
				return
			}

			reject := func(reason string) {
				logger.Warn().
					Str("path", r.URL.Path).
					Str("caller", r.Header.Get(tunnel.HeaderCaller)).
					Str("reason", reason).
					Msg("tunnel auth rejected")
				http.Error(w, "unauthorized", http.StatusUnauthorized)
			}

			signature := r.Header.Get(tunnel.HeaderSignature)
			timestamp := r.Header.Get(tunnel.HeaderTimestamp)
			caller := r.Header.Get(tunnel.HeaderCaller)
			if signature == "" || timestamp == "" || caller == "" {
				reject("missing signed headers")
				return
			}

			if _, ok := allowed[caller]; !ok {
				reject("caller not allow-listed")
				return
			}

			ts, err := strconv.ParseInt(timestamp, 10, 64)
			if err != nil {
				reject("timestamp not numeric")
				return
			}
			skew := time.Now().UnixMilli() - ts
			if skew < 0 {
				skew = -skew
			}
			if skew > tunnel.MaxClockSkew {
				reject("timestamp outside replay window")
				return
			}

			payload := r.URL.Path
			if r.Method != http.MethodGet {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					reject("unreadable body")
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				payload = string(body)
			}

			if !tunnel.VerifySignature(secret, ts, caller, payload, signature) {
				reject("signature mismatch")
				return
			}

			ctx := context.WithValue(r.Context(), callerKey{}, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFromContext returns the verified tunnel caller identity for
// downstream audit logging.
func CallerFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(callerKey{}).(string); ok {
		return v
	}
	return ""
}
