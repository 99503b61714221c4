package auth

import (
	"context"

	"github.com/dukerupert/village/internal/model"
)

type contextKey struct{}

// AuthContext identifies the caller of a request: the user, the household
// they are acting in, their role there and the session that authenticated
// them.
type AuthContext struct {
	UserID      int64
	HouseholdID int64
	Role        string
	SessionID   int64
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func HouseholdID(ctx context.Context) int64 {
	ac, _ := FromContext(ctx)
	return ac.HouseholdID
}

func UserID(ctx context.Context) int64 {
	ac, _ := FromContext(ctx)
	return ac.UserID
}

func SessionID(ctx context.Context) int64 {
	ac, _ := FromContext(ctx)
	return ac.SessionID
}

func IsAdmin(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	return ok && ac.Role == model.RoleAdmin
}
