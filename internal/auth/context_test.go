// ABOUTME: Unit tests for authentication context functions
// ABOUTME: Tests AuthContext role checks and context propagation helpers

package auth

import (
	"context"
	"testing"
)

func TestAuthContext_CanOperate(t *testing.T) {
	tests := []struct {
		name string
		auth *AuthContext
		want bool
	}{
		{"operator", &AuthContext{Subject: "alice", Role: RoleOperator}, true},
		{"viewer", &AuthContext{Subject: "bob", Role: RoleViewer}, false},
		{"empty role", &AuthContext{Subject: "carol"}, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.auth.CanOperate(); got != tt.want {
				t.Errorf("CanOperate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuthContext_Actor(t *testing.T) {
	if got := (&AuthContext{Subject: "alice"}).Actor(); got != "alice" {
		t.Errorf("Actor() = %q, want %q", got, "alice")
	}
	if got := (&AuthContext{Role: RoleOperator}).Actor(); got != "anonymous" {
		t.Errorf("Actor() = %q, want %q", got, "anonymous")
	}
	var nilAuth *AuthContext
	if got := nilAuth.Actor(); got != "anonymous" {
		t.Errorf("nil Actor() = %q, want %q", got, "anonymous")
	}
}

func TestWithAuth_FromContext(t *testing.T) {
	auth := &AuthContext{Subject: "alice", Role: RoleOperator}
	ctx := WithAuth(context.Background(), auth)

	got := FromContext(ctx)
	if got == nil {
		t.Fatal("FromContext() returned nil")
	}
	if got != auth {
		t.Errorf("FromContext() = %p, want %p", got, auth)
	}
}

func TestFromContext_Missing(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext() = %+v, want nil", got)
	}
}

func TestFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), authContextKey{}, "not an auth context")
	if got := FromContext(ctx); got != nil {
		t.Errorf("FromContext() = %+v, want nil", got)
	}
}
