package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/village/internal/auth"
)

// fakeAuth stands in for RequireAuth, taking ids from test headers.
func fakeAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid, _ := strconv.ParseInt(r.Header.Get("X-Test-User"), 10, 64)
		hid, _ := strconv.ParseInt(r.Header.Get("X-Test-Household"), 10, 64)
		sid, _ := strconv.ParseInt(r.Header.Get("X-Test-Session"), 10, 64)
		if uid == 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx := auth.WithAuth(r.Context(), auth.AuthContext{UserID: uid, HouseholdID: hid, SessionID: sid})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func dial(t *testing.T, ctx context.Context, url string, hid, uid int64) *ws.Conn {
	t.Helper()
	return dialSession(t, ctx, url, hid, uid, 0)
}

func dialSession(t *testing.T, ctx context.Context, url string, hid, uid, sid int64) *ws.Conn {
	t.Helper()
	h := http.Header{}
	h.Set("X-Test-User", strconv.FormatInt(uid, 10))
	h.Set("X-Test-Household", strconv.FormatInt(hid, 10))
	h.Set("X-Test-Session", strconv.FormatInt(sid, 10))
	conn, _, err := ws.Dial(ctx, url, &ws.DialOptions{HTTPHeader: h})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *ws.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func TestHandleWebSocketTopics(t *testing.T) {
	hub := NewHub(slog.Default())
	srv := httptest.NewServer(fakeAuth(HandleWebSocket(hub, nil, slog.Default())))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	alice := dial(t, ctx, url, 1, 10)
	defer alice.Close(ws.StatusNormalClosure, "")
	bob := dial(t, ctx, url, 1, 11)
	defer bob.Close(ws.StatusNormalClosure, "")
	outsider := dial(t, ctx, url, 2, 20)
	defer outsider.Close(ws.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("clients registered = %d, want 3", hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.SendToUsers(1, []int64{11}, NewMessage("message", "created", 1, nil))
	hub.BroadcastHousehold(1, NewMessage("task", "created", 2, nil))
	hub.BroadcastHousehold(2, NewMessage("goal", "deleted", 3, nil))

	if got := readMessage(t, ctx, alice); got.Type != "task_created" {
		t.Errorf("alice got %q, want task_created", got.Type)
	}
	if got := readMessage(t, ctx, bob); got.Type != "message_created" {
		t.Errorf("bob first got %q, want message_created", got.Type)
	}
	if got := readMessage(t, ctx, bob); got.Type != "task_created" {
		t.Errorf("bob second got %q, want task_created", got.Type)
	}
	if got := readMessage(t, ctx, outsider); got.Type != "goal_deleted" {
		t.Errorf("outsider got %q, want goal_deleted", got.Type)
	}
}

func TestHandleWebSocketRequiresAuth(t *testing.T) {
	hub := NewHub(slog.Default())
	srv := httptest.NewServer(fakeAuth(HandleWebSocket(hub, nil, slog.Default())))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := &http.Client{Transport: &http.Transport{}}
	defer client.CloseIdleConnections()

	_, resp, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &ws.DialOptions{HTTPClient: client})
	if err == nil {
		t.Fatal("expected dial to fail without auth")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

func TestHandleWebSocketClosedWhenSessionEnds(t *testing.T) {
	hub := NewHub(slog.Default())
	srv := httptest.NewServer(fakeAuth(HandleWebSocket(hub, nil, slog.Default())))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ended := dialSession(t, ctx, url, 1, 10, 100)
	defer ended.CloseNow()
	kept := dialSession(t, ctx, url, 1, 10, 101)
	defer kept.Close(ws.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("clients registered = %d, want 2", hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if n := hub.DisconnectSession(100); n != 1 {
		t.Fatalf("closed %d connections, want 1", n)
	}
	_, _, err := ended.Read(ctx)
	if got := ws.CloseStatus(err); got != ws.StatusPolicyViolation {
		t.Errorf("close status = %v (err %v), want policy violation", got, err)
	}

	hub.BroadcastHousehold(1, NewMessage("task", "updated", 3, nil))
	if msg := readMessage(t, ctx, kept); msg.Type != "task_updated" {
		t.Errorf("type = %q, want task_updated", msg.Type)
	}

	deadline = time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want 1", hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
