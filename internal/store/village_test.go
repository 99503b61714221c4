package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/village/internal/model"
)

func TestHelpRequestTransitions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	uid, hid := registerHousehold(t, db, "help@example.com")
	vs := NewVillageMemberStore(db)
	hs := NewHelpRequestStore(db)

	neighbor, err := vs.Create(ctx, hid, model.VillageMember{Name: "Pat", Category: "neighbor"})
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	req, err := hs.Create(ctx, hid, model.HelpRequest{Title: "School pickup", Category: "kids", Urgency: "normal", CreatedBy: &uid})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if req.Status != model.HelpStatusOpen {
		t.Fatalf("status = %q, want open", req.Status)
	}

	if _, err := hs.Transition(ctx, hid, req.ID, model.HelpStatusCompleted, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("open->completed err = %v, want ErrInvalidTransition", err)
	}
	if _, err := hs.Transition(ctx, hid, req.ID, model.HelpStatusAccepted, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("accept without responder err = %v, want ErrInvalidTransition", err)
	}

	accepted, err := hs.Transition(ctx, hid, req.ID, model.HelpStatusAccepted, &neighbor.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if accepted.ResponderID == nil || *accepted.ResponderID != neighbor.ID {
		t.Errorf("responder = %v, want %d", accepted.ResponderID, neighbor.ID)
	}

	reopened, err := hs.Transition(ctx, hid, req.ID, model.HelpStatusOpen, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.ResponderID != nil {
		t.Error("reopening should drop the responder")
	}

	if _, err := hs.Transition(ctx, hid, req.ID, model.HelpStatusAccepted, &neighbor.ID); err != nil {
		t.Fatalf("accept again: %v", err)
	}
	done, err := hs.Transition(ctx, hid, req.ID, model.HelpStatusCompleted, nil)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != model.HelpStatusCompleted || done.ResponderID == nil {
		t.Errorf("done = %q responder %v", done.Status, done.ResponderID)
	}

	if _, err := hs.Transition(ctx, hid, req.ID, model.HelpStatusCancelled, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("completed->cancelled err = %v, want ErrInvalidTransition", err)
	}

	open, err := hs.List(ctx, hid, model.HelpStatusOpen)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 0 {
		t.Errorf("open = %d, want 0", len(open))
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{model.HelpStatusOpen, model.HelpStatusAccepted, true},
		{model.HelpStatusOpen, model.HelpStatusCancelled, true},
		{model.HelpStatusOpen, model.HelpStatusCompleted, false},
		{model.HelpStatusAccepted, model.HelpStatusOpen, true},
		{model.HelpStatusAccepted, model.HelpStatusCompleted, true},
		{model.HelpStatusCancelled, model.HelpStatusOpen, false},
		{model.HelpStatusCompleted, model.HelpStatusOpen, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCommunicationLogList(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, hid := registerHousehold(t, db, "logs@example.com")
	vs := NewVillageMemberStore(db)
	ls := NewCommunicationLogStore(db)

	grandma, _ := vs.Create(ctx, hid, model.VillageMember{Name: "Grandma", Category: "family"})
	coach, _ := vs.Create(ctx, hid, model.VillageMember{Name: "Coach", Category: "professional"})

	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := ls.Create(ctx, hid, grandma.ID, "call", "weekly call", base.AddDate(0, 0, i)); err != nil {
			t.Fatalf("create log: %v", err)
		}
	}
	if _, err := ls.Create(ctx, hid, coach.ID, "text", "practice moved", base.AddDate(0, 0, 5)); err != nil {
		t.Fatalf("create log: %v", err)
	}

	all, err := ls.List(ctx, hid, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 4 || all[0].VillageMemberID != coach.ID {
		t.Fatalf("all = %d entries, first member %d", len(all), all[0].VillageMemberID)
	}

	recent, _ := ls.List(ctx, hid, grandma.ID, 2)
	if len(recent) != 2 {
		t.Fatalf("recent = %d, want 2", len(recent))
	}
	if !recent[0].OccurredAt.Equal(base.AddDate(0, 0, 2)) {
		t.Errorf("newest = %v, want %v", recent[0].OccurredAt, base.AddDate(0, 0, 2))
	}

	if err := vs.Delete(ctx, hid, grandma.ID); err != nil {
		t.Fatalf("delete member: %v", err)
	}
	all, _ = ls.List(ctx, hid, 0, 0)
	if len(all) != 1 {
		t.Errorf("logs after member delete = %d, want 1", len(all))
	}
}

func TestDelegationStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, hid := registerHousehold(t, db, "deleg@example.com")
	vs := NewVillageMemberStore(db)
	ds := NewDelegationStore(db)

	aunt, _ := vs.Create(ctx, hid, model.VillageMember{Name: "Aunt Jo", Category: "family", Email: "jo@example.com"})
	d, err := ds.Create(ctx, hid, model.DelegationTask{VillageMemberID: aunt.ID, Title: "Friday dinner", DueDate: "2026-04-10"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.Status != model.DelegationPending {
		t.Errorf("status = %q, want pending", d.Status)
	}

	d, err = ds.SetStatus(ctx, hid, d.ID, model.DelegationInProgress)
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if d.Status != model.DelegationInProgress {
		t.Errorf("status = %q, want in_progress", d.Status)
	}

	list, err := ds.List(ctx, hid, aunt.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("list = %d, want 1", len(list))
	}
}
