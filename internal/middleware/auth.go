package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/village/internal/auth"
	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/store"
)

// SessionCookieName carries the opaque session token for browser clients.
const SessionCookieName = "village_session"

// RequireAuth resolves the caller from a bearer access token or the session
// cookie and populates AuthContext. The session row and household membership
// are checked on every request, so signing out or leaving a household takes
// effect immediately for both credentials. A bearer token is only honored
// while its household matches the session's; switching households issues a
// fresh token.
func RequireAuth(sessions *store.SessionStore, households *store.HouseholdStore, tokens *auth.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var sess *model.Session
			if bearer := bearerToken(r); bearer != "" {
				claims, err := tokens.Parse(bearer)
				if err != nil {
					unauthorized(w)
					return
				}
				sess, err = sessions.GetByID(ctx, claims.SessionID)
				if err != nil || sess == nil || sess.UserID != claims.UserID || sess.HouseholdID != claims.HouseholdID {
					unauthorized(w)
					return
				}
			} else {
				cookie, err := r.Cookie(SessionCookieName)
				if err != nil || cookie.Value == "" {
					unauthorized(w)
					return
				}
				sess, err = sessions.GetByToken(ctx, cookie.Value)
				if err != nil || sess == nil {
					unauthorized(w)
					return
				}
			}

			member, err := households.GetMember(ctx, sess.HouseholdID, sess.UserID)
			if err != nil || member == nil {
				unauthorized(w)
				return
			}

			ac := auth.AuthContext{
				UserID:      sess.UserID,
				HouseholdID: sess.HouseholdID,
				Role:        member.Role,
				SessionID:   sess.ID,
			}
			next.ServeHTTP(w, r.WithContext(auth.WithAuth(ctx, ac)))
		})
	}
}

// RequireAdmin checks that the authenticated user has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.IsAdmin(r.Context()) {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(w http.ResponseWriter) {
	writeError(w, http.StatusUnauthorized, "authentication required")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
