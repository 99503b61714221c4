package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukerupert/village/internal/model"
)

// rewriteTransport redirects all requests to a test server URL.
type rewriteTransport struct {
	base   http.RoundTripper
	target string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = "http"
	req.URL.Host = strings.TrimPrefix(t.target, "http://")
	return t.base.RoundTrip(req)
}

func testClient(server *httptest.Server) *Client {
	return NewClient("test-token", "noreply@example.com", "https://village.test",
		WithHTTPClient(&http.Client{Transport: &rewriteTransport{base: http.DefaultTransport, target: server.URL}}),
		WithRetry(time.Millisecond, 2),
	)
}

func TestSendCodeMFA(t *testing.T) {
	var received postmarkEmail
	var gotToken string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Postmark-Server-Token")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"MessageID": "test-id"}`))
	}))
	defer server.Close()

	err := testClient(server).SendCode(context.Background(), "alice@example.com", "123456", model.CodePurposeMFA, "")
	if err != nil {
		t.Fatalf("send code: %v", err)
	}

	if gotToken != "test-token" {
		t.Errorf("server token = %q, want %q", gotToken, "test-token")
	}
	if received.To != "alice@example.com" {
		t.Errorf("To = %q, want %q", received.To, "alice@example.com")
	}
	if received.From != "noreply@example.com" {
		t.Errorf("From = %q, want %q", received.From, "noreply@example.com")
	}
	if received.Subject != "Your Village sign-in code" {
		t.Errorf("Subject = %q", received.Subject)
	}
	if !strings.Contains(received.TextBody, "123456") {
		t.Errorf("TextBody %q missing code", received.TextBody)
	}
}

func TestSendCodeInvite(t *testing.T) {
	var received postmarkEmail
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
	}))
	defer server.Close()

	err := testClient(server).SendCode(context.Background(), "bob@example.com", "654321", model.CodePurposeInvite, "Smith Family")
	if err != nil {
		t.Fatalf("send code: %v", err)
	}
	if received.Subject != "You've been invited to Smith Family on Village" {
		t.Errorf("Subject = %q, want invite subject", received.Subject)
	}
	if !strings.Contains(received.TextBody, "https://village.test/join") {
		t.Errorf("TextBody %q missing join link", received.TextBody)
	}
}

func TestSendHelpRequestUrgent(t *testing.T) {
	var received postmarkEmail
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
	}))
	defer server.Close()

	req := model.HelpRequest{Title: "School pickup", Urgency: "urgent", NeededBy: "2026-03-02"}
	if err := testClient(server).SendHelpRequest(context.Background(), "gran@example.com", "Smiths", req); err != nil {
		t.Fatalf("send help request: %v", err)
	}
	if received.Subject != "Urgent: Smiths could use a hand: School pickup" {
		t.Errorf("Subject = %q", received.Subject)
	}
	if received.Tag != model.NotifTypeHelpRequest {
		t.Errorf("Tag = %q", received.Tag)
	}
}

func TestSendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	task := model.DelegationTask{Title: "Walk the dog"}
	if err := testClient(server).SendDelegation(context.Background(), "sam@example.com", "Smiths", task); err != nil {
		t.Fatalf("send delegation: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestSendGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := testClient(server).SendCode(context.Background(), "a@example.com", "1", model.CodePurposeMFA, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d, want 3 (1 attempt + 2 retries)", got)
	}
}

func TestSendDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	err := testClient(server).SendCode(context.Background(), "bad", "1", model.CodePurposeMFA, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
}

func TestSendNotConfigured(t *testing.T) {
	client := NewClient("", "noreply@example.com", "https://village.test")

	err := client.SendCode(context.Background(), "alice@example.com", "123456", model.CodePurposeMFA, "")
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}
