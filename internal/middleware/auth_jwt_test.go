package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestJWTRoundtrip(t *testing.T) {
	token, err := SignJWT("secret", TokenClaims{Sub: "u1", Plan: "pro", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}
	claims, err := VerifyJWT("secret", token)
	if err != nil {
		t.Fatalf("VerifyJWT: %v", err)
	}
	if claims.Sub != "u1" || claims.Plan != "pro" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerifyJWTRejects(t *testing.T) {
	valid, _ := SignJWT("secret", TokenClaims{Sub: "u1", Exp: time.Now().Add(time.Hour).Unix()})
	expired, _ := SignJWT("secret", TokenClaims{Sub: "u1", Exp: time.Now().Add(-time.Minute).Unix()})

	cases := []struct {
		name   string
		secret string
		token  string
	}{
		{"wrong secret", "other", valid},
		{"expired", "secret", expired},
		{"malformed", "secret", "not.a.token.at.all"},
		{"tampered", "secret", valid + "x"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := VerifyJWT(tc.secret, tc.token); err == nil {
				t.Fatal("expected verification error")
			}
		})
	}
}

func TestAuthOptional(t *testing.T) {
	var gotUser, gotPlan string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotPlan = PlanFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := AuthOptional("secret")(next)

	// Anonymous requests pass through without identity.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent || gotUser != "" {
		t.Fatalf("anonymous: code=%d user=%q", rec.Code, gotUser)
	}

	// Valid bearer attaches identity and plan.
	token, _ := SignJWT("secret", TokenClaims{Sub: "u7", Plan: "enterprise", Exp: time.Now().Add(time.Hour).Unix()})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if gotUser != "u7" || gotPlan != "enterprise" {
		t.Fatalf("authenticated: user=%q plan=%q", gotUser, gotPlan)
	}

	// A present-but-invalid token is rejected, not treated as anonymous.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("invalid token: code=%d, want 401", rec.Code)
	}
}
