package handler

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/dukerupert/village/internal/auth"
	"github.com/dukerupert/village/internal/middleware"
	"github.com/dukerupert/village/internal/model"
)

func newAuthHandler(f *fixture, mailer Mailer) *AuthHandler {
	return newAuthHandlerWithHub(f, mailer, nil)
}

func newAuthHandlerWithHub(f *fixture, mailer Mailer, hub SessionDisconnector) *AuthHandler {
	return NewAuthHandler(f.users, f.households, f.sessions, f.codes, auth.NewTokenIssuer("test-secret", time.Hour), mailer, hub, false, testLogger)
}

func sessionCookie(t *testing.T, header http.Header) *http.Cookie {
	t.Helper()
	resp := http.Response{Header: header}
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

func TestSignUp(t *testing.T) {
	f := setup(t)
	h := newAuthHandler(f, &fakeMailer{})

	rec := call(t, h.SignUp, "POST", "/auth/signup", map[string]string{
		"email": "  Bob@Example.com ", "password": testPassword, "name": "Bob", "household_name": "Bob's",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	if c := sessionCookie(t, rec.Header()); c.Value == "" || !c.HttpOnly {
		t.Errorf("cookie = %+v, want http-only token", c)
	}
	resp := decode[sessionResponse](t, rec)
	if resp.User.Email != "bob@example.com" {
		t.Errorf("email = %q, want lowercased", resp.User.Email)
	}
	if resp.Role != model.RoleAdmin {
		t.Errorf("role = %q, want admin", resp.Role)
	}
	if resp.AccessToken == "" {
		t.Error("expected an access token")
	}

	rec = call(t, h.SignUp, "POST", "/auth/signup", map[string]string{
		"email": "bob@example.com", "password": testPassword, "household_name": "Again",
	}, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", rec.Code)
	}

	rec = call(t, h.SignUp, "POST", "/auth/signup", map[string]string{
		"email": "carol@example.com", "password": "short", "household_name": "Carol's",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("short password status = %d, want 400", rec.Code)
	}
}

func TestSignIn(t *testing.T) {
	f := setup(t)
	h := newAuthHandler(f, &fakeMailer{})

	tests := []struct {
		name     string
		email    string
		password string
		want     int
	}{
		{"correct", "alice@example.com", testPassword, http.StatusOK},
		{"case insensitive email", "ALICE@example.com", testPassword, http.StatusOK},
		{"wrong password", "alice@example.com", "incorrect horse", http.StatusUnauthorized},
		{"unknown email", "nobody@example.com", testPassword, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(t, h.SignIn, "POST", "/auth/signin", map[string]string{"email": tt.email, "password": tt.password}, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestSignInWithMFA(t *testing.T) {
	f := setup(t)
	mailer := &fakeMailer{}
	h := newAuthHandler(f, mailer)
	if err := f.users.SetMFAEnabled(context.Background(), f.userID, true); err != nil {
		t.Fatalf("enable mfa: %v", err)
	}

	rec := call(t, h.SignIn, "POST", "/auth/signin", map[string]string{"email": "alice@example.com", "password": testPassword}, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if !decode[map[string]bool](t, rec)["mfa_required"] {
		t.Error("expected mfa_required")
	}
	sent := mailer.all()
	if len(sent) != 1 || sent[0].Purpose != model.CodePurposeMFA {
		t.Fatalf("sent = %+v, want one mfa code", sent)
	}

	rec = call(t, h.VerifyMFA, "POST", "/auth/mfa/verify", map[string]string{"email": "alice@example.com", "code": "000000"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong code status = %d, want 401", rec.Code)
	}

	rec = call(t, h.VerifyMFA, "POST", "/auth/mfa/verify", map[string]string{"email": "alice@example.com", "code": sent[0].Code}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status = %d, want 200: %s", rec.Code, rec.Body)
	}
	sessionCookie(t, rec.Header())

	rec = call(t, h.VerifyMFA, "POST", "/auth/mfa/verify", map[string]string{"email": "alice@example.com", "code": sent[0].Code}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("reused code status = %d, want 401", rec.Code)
	}
}

func TestVerifyMFABurnsCodeAfterTooManyAttempts(t *testing.T) {
	f := setup(t)
	mailer := &fakeMailer{}
	h := newAuthHandler(f, mailer)
	code, err := f.codes.Create(context.Background(), "alice@example.com", model.CodePurposeMFA, nil)
	if err != nil {
		t.Fatalf("create code: %v", err)
	}

	for i := 0; i < maxCodeAttempts; i++ {
		call(t, h.VerifyMFA, "POST", "/auth/mfa/verify", map[string]string{"email": "alice@example.com", "code": "bad"}, nil)
	}
	rec := call(t, h.VerifyMFA, "POST", "/auth/mfa/verify", map[string]string{"email": "alice@example.com", "code": code.Code}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 after the code is burned", rec.Code)
	}
}

func TestInviteAndAccept(t *testing.T) {
	f := setup(t)
	mailer := &fakeMailer{}
	h := newAuthHandler(f, mailer)

	rec := call(t, h.Invite, "POST", "/auth/invite", map[string]string{"email": "Dana@Example.com"}, &f.admin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("invite status = %d, want 201: %s", rec.Code, rec.Body)
	}
	sent := mailer.all()
	if len(sent) != 1 || sent[0].To != "dana@example.com" || sent[0].Household != "The Parkers" {
		t.Fatalf("sent = %+v", sent)
	}

	rec = call(t, h.AcceptInvite, "POST", "/auth/invite/accept", map[string]string{
		"email": "dana@example.com", "code": sent[0].Code, "name": "Dana", "password": "tiny",
	}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short password status = %d, want 400", rec.Code)
	}

	rec = call(t, h.AcceptInvite, "POST", "/auth/invite/accept", map[string]string{
		"email": "dana@example.com", "code": sent[0].Code, "name": "Dana", "password": testPassword,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept status = %d, want 200: %s", rec.Code, rec.Body)
	}
	resp := decode[sessionResponse](t, rec)
	if resp.Household.ID != f.household || resp.Role != model.RoleMember {
		t.Errorf("joined household %d as %q, want %d as member", resp.Household.ID, resp.Role, f.household)
	}
}

func TestAcceptInviteExistingUserNeedsPassword(t *testing.T) {
	f := setup(t)
	mailer := &fakeMailer{}
	h := newAuthHandler(f, mailer)

	// Erin already runs her own household.
	hash, _ := auth.HashPassword(testPassword)
	if _, _, err := f.households.Register(context.Background(), "Erin's", "erin@example.com", "Erin", hash); err != nil {
		t.Fatalf("register: %v", err)
	}
	call(t, h.Invite, "POST", "/auth/invite", map[string]string{"email": "erin@example.com"}, &f.admin)
	code := mailer.all()[0].Code

	rec := call(t, h.AcceptInvite, "POST", "/auth/invite/accept", map[string]string{
		"email": "erin@example.com", "code": code, "password": "not her password",
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	rec = call(t, h.AcceptInvite, "POST", "/auth/invite/accept", map[string]string{
		"email": "erin@example.com", "code": code, "password": testPassword,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	if got := len(decode[sessionResponse](t, rec).Households); got != 2 {
		t.Errorf("memberships = %d, want 2", got)
	}
}

func TestInviteMailFailure(t *testing.T) {
	f := setup(t)
	h := newAuthHandler(f, &fakeMailer{err: errors.New("postmark down")})

	rec := call(t, h.Invite, "POST", "/auth/invite", map[string]string{"email": "dana@example.com"}, &f.admin)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestSwitchHousehold(t *testing.T) {
	f := setup(t)
	h := newAuthHandler(f, &fakeMailer{})

	_, other, err := f.households.Register(context.Background(), "Elsewhere", "zed@example.com", "Zed", "hash")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	rec := call(t, h.SwitchHousehold, "POST", "/auth/switch", map[string]int64{"household_id": other.ID}, &f.admin)
	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestSwitchHouseholdIssuesFreshToken(t *testing.T) {
	f := setup(t)
	hub := &fakeHub{}
	h := newAuthHandlerWithHub(f, &fakeMailer{}, hub)
	ctx := context.Background()

	_, other, err := f.households.Register(ctx, "Grandma's", "grandma@example.com", "Grandma", "hash")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := f.households.Join(ctx, other.ID, "alice@example.com", "Alice", "ignored"); err != nil {
		t.Fatalf("join: %v", err)
	}
	sess, err := f.sessions.Create(ctx, f.userID, f.household)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	ac := f.admin
	ac.SessionID = sess.ID

	rec := call(t, h.SwitchHousehold, "POST", "/auth/switch", map[string]int64{"household_id": other.ID}, &ac)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}
	resp := decode[sessionResponse](t, rec)
	if resp.Household == nil || resp.Household.ID != other.ID {
		t.Errorf("household = %+v, want %d", resp.Household, other.ID)
	}
	if resp.Role != model.RoleMember {
		t.Errorf("role = %q, want member", resp.Role)
	}
	if resp.AccessToken == "" {
		t.Fatal("switch returned no access token")
	}
	claims, err := auth.NewTokenIssuer("test-secret", time.Hour).Parse(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.HouseholdID != other.ID || claims.SessionID != sess.ID {
		t.Errorf("claims = %+v, want household %d session %d", claims, other.ID, sess.ID)
	}

	got, err := f.sessions.GetByID(ctx, sess.ID)
	if err != nil || got == nil {
		t.Fatalf("get session: %v", err)
	}
	if got.HouseholdID != other.ID {
		t.Errorf("session household = %d, want %d", got.HouseholdID, other.ID)
	}
	if want := []int64{sess.ID}; !reflect.DeepEqual(hub.endedSession, want) {
		t.Errorf("closed sockets for sessions %v, want %v", hub.endedSession, want)
	}
}

func TestPasswordReset(t *testing.T) {
	f := setup(t)
	mailer := &fakeMailer{}
	h := newAuthHandler(f, mailer)
	ctx := context.Background()

	sess, err := f.sessions.Create(ctx, f.userID, f.household)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	rec := call(t, h.RequestPasswordReset, "POST", "/auth/password/reset-request", map[string]string{"email": "nobody@example.com"}, nil)
	if rec.Code != http.StatusAccepted || len(mailer.all()) != 0 {
		t.Fatalf("unknown email: status %d, %d mails", rec.Code, len(mailer.all()))
	}

	rec = call(t, h.RequestPasswordReset, "POST", "/auth/password/reset-request", map[string]string{"email": "alice@example.com"}, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	code := mailer.all()[0].Code

	rec = call(t, h.ResetPassword, "POST", "/auth/password/reset", map[string]string{
		"email": "alice@example.com", "code": code, "password": "a brand new secret",
	}, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("reset status = %d, want 204: %s", rec.Code, rec.Body)
	}

	if got, _ := f.sessions.GetByID(ctx, sess.ID); got != nil {
		t.Error("expected existing sessions to be revoked")
	}
	user, _ := f.users.GetByID(ctx, f.userID)
	if !auth.CheckPassword(user.PasswordHash, "a brand new secret") {
		t.Error("password was not changed")
	}
}

func TestChangePasswordKeepsCurrentSession(t *testing.T) {
	f := setup(t)
	hub := &fakeHub{}
	h := newAuthHandlerWithHub(f, &fakeMailer{}, hub)
	ctx := context.Background()

	current, _ := f.sessions.Create(ctx, f.userID, f.household)
	other, _ := f.sessions.Create(ctx, f.userID, f.household)
	ac := f.admin
	ac.SessionID = current.ID

	rec := call(t, h.ChangePassword, "POST", "/auth/password", map[string]string{
		"current_password": "wrong", "new_password": "another good one",
	}, &ac)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong current password status = %d, want 401", rec.Code)
	}

	rec = call(t, h.ChangePassword, "POST", "/auth/password", map[string]string{
		"current_password": testPassword, "new_password": "another good one",
	}, &ac)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got, _ := f.sessions.GetByID(ctx, current.ID); got == nil {
		t.Error("current session was revoked")
	}
	if got, _ := f.sessions.GetByID(ctx, other.ID); got != nil {
		t.Error("other session survived")
	}
	if want := [][2]int64{{f.userID, current.ID}}; !reflect.DeepEqual(hub.endedUser, want) {
		t.Errorf("closed sockets = %v, want %v", hub.endedUser, want)
	}
}

func TestToggleMFA(t *testing.T) {
	f := setup(t)
	h := newAuthHandler(f, &fakeMailer{})
	ctx := context.Background()

	if rec := call(t, h.EnableMFA, "POST", "/auth/mfa/enable", nil, &f.admin); rec.Code != http.StatusOK {
		t.Fatalf("enable status = %d", rec.Code)
	}
	u, err := f.users.GetByID(ctx, f.userID)
	if err != nil || !u.MFAEnabled {
		t.Fatalf("after enable: user = %+v, err = %v", u, err)
	}

	rec := call(t, h.DisableMFA, "POST", "/auth/mfa/disable", map[string]string{"password": "wrong password"}, &f.admin)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong password status = %d, want 401", rec.Code)
	}
	rec = call(t, h.DisableMFA, "POST", "/auth/mfa/disable", map[string]string{"password": testPassword}, &f.admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("disable status = %d: %s", rec.Code, rec.Body)
	}
	if u, _ = f.users.GetByID(ctx, f.userID); u.MFAEnabled {
		t.Error("mfa still enabled")
	}
}

func TestSignOutDeletesSession(t *testing.T) {
	f := setup(t)
	hub := &fakeHub{}
	h := newAuthHandlerWithHub(f, &fakeMailer{}, hub)
	ctx := context.Background()

	sess, err := f.sessions.Create(ctx, f.userID, f.household)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	ac := f.admin
	ac.SessionID = sess.ID

	rec := call(t, h.SignOut, "POST", "/auth/signout", nil, &ac)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if c := sessionCookie(t, rec.Header()); c.MaxAge >= 0 {
		t.Errorf("cookie MaxAge = %d, want cleared", c.MaxAge)
	}
	if got, _ := f.sessions.GetByID(ctx, sess.ID); got != nil {
		t.Error("session still present after sign out")
	}
	if want := []int64{sess.ID}; !reflect.DeepEqual(hub.endedSession, want) {
		t.Errorf("closed sockets for sessions %v, want %v", hub.endedSession, want)
	}
}
