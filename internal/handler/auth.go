package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/village/internal/auth"
	"github.com/dukerupert/village/internal/middleware"
	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/store"
)

const maxCodeAttempts = 5

type AuthHandler struct {
	userStore      *store.UserStore
	householdStore *store.HouseholdStore
	sessionStore   *store.SessionStore
	codeStore      *store.AuthCodeStore
	tokens         *auth.TokenIssuer
	mailer         Mailer
	sockets        SessionDisconnector
	cookieSecure   bool
	logger         *slog.Logger
}

func NewAuthHandler(
	us *store.UserStore,
	hs *store.HouseholdStore,
	ss *store.SessionStore,
	cs *store.AuthCodeStore,
	tokens *auth.TokenIssuer,
	mailer Mailer,
	sockets SessionDisconnector,
	cookieSecure bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		userStore:      us,
		householdStore: hs,
		sessionStore:   ss,
		codeStore:      cs,
		tokens:         tokens,
		mailer:         mailer,
		sockets:        sockets,
		cookieSecure:   cookieSecure,
		logger:         logger,
	}
}

type sessionResponse struct {
	User        *model.User        `json:"user"`
	Household   *model.Household   `json:"household"`
	Role        string             `json:"role"`
	Households  []model.Membership `json:"households"`
	AccessToken string             `json:"access_token,omitempty"`
	ExpiresAt   *time.Time         `json:"token_expires_at,omitempty"`
}

// SignUp handles POST /auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email         string `json:"email"`
		Password      string `json:"password"`
		Name          string `json:"name"`
		HouseholdName string `json:"household_name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	req.HouseholdName = strings.TrimSpace(req.HouseholdName)
	if req.Email == "" || req.HouseholdName == "" {
		writeError(w, http.StatusBadRequest, "email and household_name are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	user, household, err := h.householdStore.Register(r.Context(), req.HouseholdName, req.Email, req.Name, hash)
	if errors.Is(err, store.ErrDuplicateEmail) {
		writeError(w, http.StatusConflict, "an account with that email already exists")
		return
	}
	if err != nil {
		h.logger.Error("register household", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create account")
		return
	}

	h.logger.Info("household registered", "household_id", household.ID, "user_id", user.ID)
	h.startSession(w, r, user, household.ID, http.StatusCreated)
}

// SignIn handles POST /auth/signin. Users with MFA enabled get a code by
// email and must finish with VerifyMFA.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = normalizeEmail(req.Email)

	user, err := h.userStore.GetByEmail(r.Context(), req.Email)
	if err != nil {
		h.logger.Error("sign in lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to sign in")
		return
	}
	// Same response for unknown email and wrong password.
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	if user.MFAEnabled {
		code, err := h.codeStore.Create(r.Context(), user.Email, model.CodePurposeMFA, nil)
		if err != nil {
			h.logger.Error("create mfa code", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to sign in")
			return
		}
		if err := h.mailer.SendCode(r.Context(), user.Email, code.Code, model.CodePurposeMFA, ""); err != nil {
			h.logger.Error("send mfa code", "user_id", user.ID, "error", err)
			writeError(w, http.StatusBadGateway, "failed to send verification code")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]bool{"mfa_required": true})
		return
	}

	h.startSessionDefault(w, r, user)
}

// VerifyMFA handles POST /auth/mfa/verify
func (h *AuthHandler) VerifyMFA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = normalizeEmail(req.Email)

	if _, ok := h.validateCode(w, r, req.Email, strings.TrimSpace(req.Code), model.CodePurposeMFA); !ok {
		return
	}

	user, err := h.userStore.GetByEmail(r.Context(), req.Email)
	if err != nil || user == nil {
		h.logger.Error("mfa user lookup", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid code")
		return
	}
	h.startSessionDefault(w, r, user)
}

// validateCode checks code against the latest live code for the email and
// purpose, burning it after too many wrong guesses. It writes the error
// response itself and reports whether the caller may continue.
func (h *AuthHandler) validateCode(w http.ResponseWriter, r *http.Request, emailAddr, code, purpose string) (*model.AuthCode, bool) {
	ctx := r.Context()
	if emailAddr == "" || code == "" {
		writeError(w, http.StatusBadRequest, "email and code are required")
		return nil, false
	}

	latest, err := h.codeStore.GetLatest(ctx, emailAddr, purpose)
	if err != nil {
		h.logger.Error("validate code lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to verify code")
		return nil, false
	}
	if latest == nil {
		writeError(w, http.StatusUnauthorized, "code has expired or already been used")
		return nil, false
	}

	if latest.Attempts >= maxCodeAttempts {
		h.codeStore.MarkUsed(ctx, latest.ID)
		writeError(w, http.StatusUnauthorized, "too many incorrect attempts, request a new code")
		return nil, false
	}

	if latest.Code != code {
		attempts, err := h.codeStore.IncrementAttempts(ctx, latest.ID)
		if err != nil {
			h.logger.Error("increment attempts", "error", err)
		}
		if attempts >= maxCodeAttempts {
			h.codeStore.MarkUsed(ctx, latest.ID)
			writeError(w, http.StatusUnauthorized, "too many incorrect attempts, request a new code")
			return nil, false
		}
		writeError(w, http.StatusUnauthorized, "incorrect code")
		return nil, false
	}

	if err := h.codeStore.MarkUsed(ctx, latest.ID); err != nil {
		h.logger.Error("mark code used", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to verify code")
		return nil, false
	}
	return latest, true
}

// EnableMFA handles POST /auth/mfa/enable
func (h *AuthHandler) EnableMFA(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if err := h.userStore.SetMFAEnabled(r.Context(), userID, true); err != nil {
		h.logger.Error("enable mfa", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to enable MFA")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"mfa_enabled": true})
}

// DisableMFA handles POST /auth/mfa/disable. The current password is required.
func (h *AuthHandler) DisableMFA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "incorrect password")
		return
	}
	if err := h.userStore.SetMFAEnabled(r.Context(), user.ID, false); err != nil {
		h.logger.Error("disable mfa", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to disable MFA")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"mfa_enabled": false})
}

// SignOut handles POST /auth/signout
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	sessionID := auth.SessionID(r.Context())
	if err := h.sessionStore.Delete(r.Context(), sessionID); err != nil {
		h.logger.Error("delete session", "error", err)
	}
	if h.sockets != nil {
		h.sockets.DisconnectSession(sessionID)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cookieSecure,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	resp, err := h.describe(r, ac.UserID, ac.HouseholdID)
	if err != nil {
		h.logger.Error("load session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// IssueToken handles POST /auth/token. The token is tied to the caller's
// session and stops working when the session is deleted.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	ac, _ := auth.FromContext(r.Context())
	token, expires, err := h.tokens.Issue(ac.SessionID, ac.UserID, ac.HouseholdID)
	if err != nil {
		h.logger.Error("issue token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"access_token": token, "token_type": "Bearer", "expires_at": expires})
}

// SwitchHousehold handles POST /auth/switch
func (h *AuthHandler) SwitchHousehold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HouseholdID int64 `json:"household_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	ac, _ := auth.FromContext(r.Context())

	member, err := h.householdStore.GetMember(r.Context(), req.HouseholdID, ac.UserID)
	if err != nil {
		h.logger.Error("check membership", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to switch household")
		return
	}
	if member == nil {
		writeError(w, http.StatusForbidden, "not a member of that household")
		return
	}

	if err := h.sessionStore.UpdateHousehold(r.Context(), ac.SessionID, req.HouseholdID); err != nil {
		h.logger.Error("update session household", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to switch household")
		return
	}
	// Open sockets still subscribe to the old household; clients reconnect.
	if h.sockets != nil {
		h.sockets.DisconnectSession(ac.SessionID)
	}

	resp, err := h.describe(r, ac.UserID, req.HouseholdID)
	if err != nil {
		h.logger.Error("load session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to switch household")
		return
	}
	// Tokens issued for the previous household no longer authenticate.
	if token, expires, err := h.tokens.Issue(ac.SessionID, ac.UserID, req.HouseholdID); err != nil {
		h.logger.Warn("issue access token", "error", err)
	} else {
		resp.AccessToken = token
		resp.ExpiresAt = &expires
	}
	writeJSON(w, http.StatusOK, resp)
}

// Invite handles POST /auth/invite (admin only)
func (h *AuthHandler) Invite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	householdID := auth.HouseholdID(r.Context())
	household, err := h.householdStore.GetByID(r.Context(), householdID)
	if err != nil || household == nil {
		h.logger.Error("invite household lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create invite")
		return
	}

	code, err := h.codeStore.Create(r.Context(), req.Email, model.CodePurposeInvite, &householdID)
	if err != nil {
		h.logger.Error("create invite code", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create invite")
		return
	}
	if err := h.mailer.SendCode(r.Context(), req.Email, code.Code, model.CodePurposeInvite, household.Name); err != nil {
		h.logger.Error("send invite", "error", err)
		writeError(w, http.StatusBadGateway, "failed to send invite email")
		return
	}

	h.logger.Info("invite sent", "household_id", householdID)
	writeJSON(w, http.StatusCreated, map[string]any{"email": code.Email, "expires_at": code.ExpiresAt})
}

// AcceptInvite handles POST /auth/invite/accept. New users are created with
// the given password; existing users must confirm theirs.
func (h *AuthHandler) AcceptInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Code     string `json:"code"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)

	existing, err := h.userStore.GetByEmail(r.Context(), req.Email)
	if err != nil {
		h.logger.Error("invite user lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to accept invite")
		return
	}
	var hash string
	if existing == nil {
		hash, err = auth.HashPassword(req.Password)
		if errors.Is(err, auth.ErrPasswordTooShort) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			h.logger.Error("hash password", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to accept invite")
			return
		}
	} else if !auth.CheckPassword(existing.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	code, ok := h.validateCode(w, r, req.Email, strings.TrimSpace(req.Code), model.CodePurposeInvite)
	if !ok {
		return
	}
	if code.HouseholdID == nil {
		writeError(w, http.StatusBadRequest, "invite is not bound to a household")
		return
	}

	user, err := h.householdStore.Join(r.Context(), *code.HouseholdID, req.Email, req.Name, hash)
	if err != nil {
		h.logger.Error("join household", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to accept invite")
		return
	}

	h.logger.Info("invite accepted", "household_id", *code.HouseholdID, "user_id", user.ID)
	h.startSession(w, r, user, *code.HouseholdID, http.StatusOK)
}

// ChangePassword handles POST /auth/password. Other sessions are revoked.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		writeError(w, http.StatusUnauthorized, "incorrect password")
		return
	}
	if !h.setPassword(w, r, user.ID, req.NewPassword, auth.SessionID(r.Context())) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RequestPasswordReset handles POST /auth/password/reset-request. The
// response never reveals whether the email has an account.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = normalizeEmail(req.Email)

	defer writeJSON(w, http.StatusAccepted, map[string]string{"status": "if the account exists, a code has been sent"})

	user, err := h.userStore.GetByEmail(r.Context(), req.Email)
	if err != nil {
		h.logger.Error("reset lookup", "error", err)
		return
	}
	if user == nil {
		return
	}
	code, err := h.codeStore.Create(r.Context(), user.Email, model.CodePurposeReset, nil)
	if err != nil {
		h.logger.Error("create reset code", "error", err)
		return
	}
	if err := h.mailer.SendCode(r.Context(), user.Email, code.Code, model.CodePurposeReset, ""); err != nil {
		h.logger.Error("send reset code", "user_id", user.ID, "error", err)
	}
}

// ResetPassword handles POST /auth/password/reset. Every session of the user
// is revoked.
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Email = normalizeEmail(req.Email)
	if len(req.Password) < auth.MinPasswordLength {
		writeError(w, http.StatusBadRequest, auth.ErrPasswordTooShort.Error())
		return
	}

	if _, ok := h.validateCode(w, r, req.Email, strings.TrimSpace(req.Code), model.CodePurposeReset); !ok {
		return
	}
	user, err := h.userStore.GetByEmail(r.Context(), req.Email)
	if err != nil || user == nil {
		h.logger.Error("reset user lookup", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid code")
		return
	}
	if !h.setPassword(w, r, user.ID, req.Password, 0) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) setPassword(w http.ResponseWriter, r *http.Request, userID int64, password string, keepSessionID int64) bool {
	hash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err != nil {
		h.logger.Error("hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update password")
		return false
	}
	if err := h.userStore.SetPasswordHash(r.Context(), userID, hash); err != nil {
		h.logger.Error("set password", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update password")
		return false
	}
	if err := h.sessionStore.DeleteOthersForUser(r.Context(), userID, keepSessionID); err != nil {
		h.logger.Error("revoke sessions", "user_id", userID, "error", err)
	}
	if h.sockets != nil {
		h.sockets.DisconnectUser(userID, keepSessionID)
	}
	return true
}

func (h *AuthHandler) currentUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, err := h.userStore.GetByID(r.Context(), auth.UserID(r.Context()))
	if err != nil || user == nil {
		h.logger.Error("current user lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return nil, false
	}
	return user, true
}

// startSessionDefault signs the user into their first household.
func (h *AuthHandler) startSessionDefault(w http.ResponseWriter, r *http.Request, user *model.User) {
	memberships, err := h.householdStore.ListMemberships(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("list memberships", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to sign in")
		return
	}
	if len(memberships) == 0 {
		writeError(w, http.StatusForbidden, "account has no household")
		return
	}
	h.startSession(w, r, user, memberships[0].Household.ID, http.StatusOK)
}

// startSession creates the session, sets the cookie and responds with the
// session description plus a bearer token.
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, user *model.User, householdID int64, status int) {
	sess, err := h.sessionStore.Create(r.Context(), user.ID, householdID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.cookieSecure,
	})

	resp, err := h.describe(r, user.ID, householdID)
	if err != nil {
		h.logger.Error("load session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	if token, expires, err := h.tokens.Issue(sess.ID, user.ID, householdID); err != nil {
		h.logger.Warn("issue access token", "error", err)
	} else {
		resp.AccessToken = token
		resp.ExpiresAt = &expires
	}
	writeJSON(w, status, resp)
}

func (h *AuthHandler) describe(r *http.Request, userID, householdID int64) (*sessionResponse, error) {
	ctx := r.Context()
	user, err := h.userStore.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	household, err := h.householdStore.GetByID(ctx, householdID)
	if err != nil {
		return nil, err
	}
	memberships, err := h.householdStore.ListMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := &sessionResponse{User: user, Household: household, Households: nonNil(memberships)}
	for _, m := range memberships {
		if m.Household.ID == householdID {
			resp.Role = m.Role
		}
	}
	return resp, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
