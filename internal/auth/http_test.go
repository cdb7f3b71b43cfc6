// ABOUTME: Tests for HTTP authentication middleware
// ABOUTME: Covers token extraction, validation, query tokens, and the operator gate

package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func captureAuth(got **AuthContext) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestHTTPAuthMiddleware_ValidToken(t *testing.T) {
	verifier := newTestVerifier(t)
	token, _ := verifier.Generate("alice", RoleOperator, time.Hour)

	var gotAuthCtx *AuthContext
	handler := HTTPAuthMiddleware(verifier)(captureAuth(&gotAuthCtx))

	req := httptest.NewRequest(http.MethodGet, "/api/turtles", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if gotAuthCtx == nil {
		t.Fatal("expected AuthContext in context")
	}
	if gotAuthCtx.Subject != "alice" || gotAuthCtx.Role != RoleOperator {
		t.Errorf("AuthContext = %+v, want alice/operator", gotAuthCtx)
	}
}

func TestHTTPAuthMiddleware_QueryToken(t *testing.T) {
	verifier := newTestVerifier(t)
	token, _ := verifier.Generate("dashboard", RoleViewer, time.Hour)

	var gotAuthCtx *AuthContext
	handler := HTTPAuthMiddleware(verifier)(captureAuth(&gotAuthCtx))

	req := httptest.NewRequest(http.MethodGet, "/turtle_updates?token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if gotAuthCtx == nil || gotAuthCtx.Role != RoleViewer {
		t.Errorf("AuthContext = %+v, want viewer", gotAuthCtx)
	}
}

func TestHTTPAuthMiddleware_Rejections(t *testing.T) {
	verifier := newTestVerifier(t)
	expired, _ := verifier.Generate("alice", RoleOperator, -time.Hour)

	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"missing header", "", "missing authorization header"},
		{"basic auth", "Basic dXNlcjpwYXNz", "invalid authorization header format"},
		{"empty bearer", "Bearer ", "empty token"},
		{"garbage", "Bearer nope", "invalid token"},
		{"expired", "Bearer " + expired, "token expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := HTTPAuthMiddleware(verifier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/turtles", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if called {
				t.Error("handler should not be called")
			}
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.wantMsg) {
				t.Errorf("body = %q, want it to contain %q", rec.Body.String(), tt.wantMsg)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
		})
	}
}

func TestHTTPAuthMiddleware_NilVerifierIsOpen(t *testing.T) {
	var gotAuthCtx *AuthContext
	handler := HTTPAuthMiddleware(nil)(captureAuth(&gotAuthCtx))

	req := httptest.NewRequest(http.MethodPost, "/api/turtles/1/queue", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if !gotAuthCtx.CanOperate() {
		t.Error("anonymous request should be allowed to operate when auth is disabled")
	}
	if gotAuthCtx.Actor() != "anonymous" {
		t.Errorf("Actor() = %q, want anonymous", gotAuthCtx.Actor())
	}
}

func TestRequireOperatorHTTP(t *testing.T) {
	verifier := newTestVerifier(t)
	operatorToken, _ := verifier.Generate("alice", RoleOperator, time.Hour)
	viewerToken, _ := verifier.Generate("bob", RoleViewer, time.Hour)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	chain := HTTPAuthMiddleware(verifier)(RequireOperatorHTTP()(ok))

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"operator", operatorToken, http.StatusNoContent},
		{"viewer", viewerToken, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/turtles/1/goal", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rec := httptest.NewRecorder()
			chain.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected status %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestRequireOperatorHTTP_NoAuthContext(t *testing.T) {
	handler := RequireOperatorHTTP()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/turtles/1/goal", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}
