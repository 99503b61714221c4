package handler

import (
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/store"
)

func TestConversationCreateRequiresHouseholdParticipants(t *testing.T) {
	f := setup(t)
	h := NewMessageHandler(store.NewConversationStore(f.db), f.users, nil, nil, testLogger)

	rec := call(t, h.Create, "POST", "/api/conversations", map[string]any{"participant_ids": []int64{}}, &f.admin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no participants status = %d, want 400", rec.Code)
	}

	outsider, _, err := f.households.Register(t.Context(), "Elsewhere", "zed@example.com", "Zed", "hash")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	rec = call(t, h.Create, "POST", "/api/conversations", map[string]any{"participant_ids": []int64{outsider.ID}}, &f.admin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("outsider status = %d, want 400", rec.Code)
	}
}

func TestSendMessage(t *testing.T) {
	f := setup(t)
	bob := f.member(t, "bob")
	carol := f.member(t, "carol")
	hub := &fakeHub{}
	notifier := &fakeNotifier{}
	h := NewMessageHandler(store.NewConversationStore(f.db), f.users, notifier, hub, testLogger)

	rec := call(t, h.Create, "POST", "/api/conversations", map[string]any{
		"title": "Pickup plans", "participant_ids": []int64{bob.UserID},
	}, &f.admin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	conv := decode[model.Conversation](t, rec)
	if len(conv.ParticipantIDs) != 2 {
		t.Fatalf("participants = %v, want creator and bob", conv.ParticipantIDs)
	}
	id := strconv.FormatInt(conv.ID, 10)
	path := "/api/conversations/" + id + "/messages"
	clientID := "6f1c2a57-3f5e-4c8e-9d0b-2a1f9e4b7c10"

	rec = call(t, h.Send, "POST", path, map[string]string{"body": "Can you grab the kids at 3?", "client_id": clientID}, &f.admin, "id", id)
	if rec.Code != http.StatusCreated {
		t.Fatalf("send status = %d: %s", rec.Code, rec.Body)
	}
	first := decode[model.Message](t, rec)

	rec = call(t, h.Send, "POST", path, map[string]string{"body": "Can you grab the kids at 3?", "client_id": clientID}, &f.admin, "id", id)
	if rec.Code != http.StatusOK {
		t.Fatalf("resend status = %d, want 200", rec.Code)
	}
	if again := decode[model.Message](t, rec); again.ID != first.ID {
		t.Errorf("resend created message %d, want existing %d", again.ID, first.ID)
	}

	var created int
	for _, ev := range hub.direct {
		if ev.Msg.Type == "message_created" {
			created++
			if ev.Msg.Data == nil {
				t.Error("message_created carries no message")
			}
			if len(ev.UserIDs) != 2 {
				t.Errorf("delivered to %v, want both participants", ev.UserIDs)
			}
		}
	}
	if created != 1 {
		t.Errorf("message_created events = %d, want 1", created)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.sent))
	}
	n := notifier.sent[0]
	if n.Type != model.NotifTypeMessage || len(n.UserIDs) != 1 || n.UserIDs[0] != bob.UserID || n.Payload.Title != "Alice" {
		t.Errorf("notification = %+v, want message from Alice to bob", n)
	}

	rec = call(t, h.Send, "POST", path, map[string]string{"body": "let me in"}, &carol, "id", id)
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-participant status = %d, want 403", rec.Code)
	}
	rec = call(t, h.Messages, "GET", path, nil, &carol, "id", id)
	if rec.Code != http.StatusForbidden {
		t.Errorf("non-participant read status = %d, want 403", rec.Code)
	}
}

func TestSendMessageValidation(t *testing.T) {
	f := setup(t)
	bob := f.member(t, "bob")
	h := NewMessageHandler(store.NewConversationStore(f.db), f.users, nil, nil, testLogger)

	rec := call(t, h.Create, "POST", "/api/conversations", map[string]any{"participant_ids": []int64{bob.UserID}}, &f.admin)
	id := strconv.FormatInt(decode[model.Conversation](t, rec).ID, 10)
	path := "/api/conversations/" + id + "/messages"

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"empty body", map[string]string{"body": "   "}, http.StatusBadRequest},
		{"too long", map[string]string{"body": strings.Repeat("é", model.MaxMessageLength+1)}, http.StatusBadRequest},
		{"at limit", map[string]string{"body": strings.Repeat("é", model.MaxMessageLength)}, http.StatusCreated},
		{"bad client id", map[string]string{"body": "hi", "client_id": "abc"}, http.StatusBadRequest},
		{"generated client id", map[string]string{"body": "hi"}, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(t, h.Send, "POST", path, tt.body, &f.admin, "id", id)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body)
			}
		})
	}

	rec = call(t, h.Send, "POST", "/api/conversations/999/messages", map[string]string{"body": "hi"}, &f.admin, "id", "999")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown conversation status = %d, want 404", rec.Code)
	}
}

func TestMessagesPagingAndUnread(t *testing.T) {
	f := setup(t)
	bob := f.member(t, "bob")
	h := NewMessageHandler(store.NewConversationStore(f.db), f.users, nil, nil, testLogger)

	rec := call(t, h.Create, "POST", "/api/conversations", map[string]any{"participant_ids": []int64{bob.UserID}}, &f.admin)
	id := strconv.FormatInt(decode[model.Conversation](t, rec).ID, 10)
	path := "/api/conversations/" + id + "/messages"

	var last model.Message
	for i := 1; i <= 5; i++ {
		rec := call(t, h.Send, "POST", path, map[string]string{"body": "message " + strconv.Itoa(i)}, &f.admin, "id", id)
		last = decode[model.Message](t, rec)
	}

	rec = call(t, h.Messages, "GET", path+"?limit=2", nil, &bob, "id", id)
	page := decode[[]model.Message](t, rec)
	if len(page) != 2 || page[0].Body != "message 4" || page[1].Body != "message 5" {
		t.Fatalf("newest page = %+v", page)
	}
	before := strconv.FormatInt(page[0].ID, 10)
	rec = call(t, h.Messages, "GET", path+"?limit=2&before="+before, nil, &bob, "id", id)
	page = decode[[]model.Message](t, rec)
	if len(page) != 2 || page[0].Body != "message 2" || page[1].Body != "message 3" {
		t.Errorf("older page = %+v", page)
	}

	rec = call(t, h.List, "GET", "/api/conversations", nil, &bob)
	convs := decode[[]model.Conversation](t, rec)
	if len(convs) != 1 || convs[0].UnreadCount != 5 {
		t.Fatalf("bob's conversations = %+v, want 5 unread", convs)
	}

	rec = call(t, h.MarkRead, "POST", "/api/conversations/"+id+"/read", map[string]int64{"message_id": last.ID}, &bob, "id", id)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("mark read status = %d", rec.Code)
	}
	rec = call(t, h.List, "GET", "/api/conversations", nil, &bob)
	if got := decode[[]model.Conversation](t, rec)[0].UnreadCount; got != 0 {
		t.Errorf("unread after mark read = %d, want 0", got)
	}
}
