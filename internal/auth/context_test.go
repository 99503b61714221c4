package auth

import (
	"context"
	"testing"

	"github.com/dukerupert/village/internal/model"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{UserID: 1, HouseholdID: 2, Role: model.RoleAdmin, SessionID: 3}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got != ac {
		t.Errorf("FromContext = %+v, want %+v", got, ac)
	}
	if UserID(ctx) != 1 || HouseholdID(ctx) != 2 || SessionID(ctx) != 3 {
		t.Errorf("accessors = %d/%d/%d, want 1/2/3", UserID(ctx), HouseholdID(ctx), SessionID(ctx))
	}
}

func TestAccessorsWithoutAuth(t *testing.T) {
	ctx := context.Background()
	if _, ok := FromContext(ctx); ok {
		t.Error("expected false for missing AuthContext")
	}
	if HouseholdID(ctx) != 0 || UserID(ctx) != 0 {
		t.Error("expected zero ids without auth")
	}
	if IsAdmin(ctx) {
		t.Error("expected IsAdmin false without auth")
	}
}

func TestIsAdmin(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{model.RoleAdmin, true},
		{model.RoleMember, false},
		{"", false},
	}
	for _, tt := range tests {
		ctx := WithAuth(context.Background(), AuthContext{Role: tt.role})
		if got := IsAdmin(ctx); got != tt.want {
			t.Errorf("IsAdmin(%q) = %v, want %v", tt.role, got, tt.want)
		}
	}
}
