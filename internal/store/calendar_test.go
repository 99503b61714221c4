package store

import (
	"context"
	"testing"
	"time"
)

func TestEventListRangeOverlap(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, hid := registerHousehold(t, db, "cal@example.com")
	es := NewEventStore(db)

	day := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	mk := func(title string, start, end time.Time) {
		t.Helper()
		if _, err := es.Create(ctx, hid, EventInput{Title: title, StartTime: start, EndTime: end}); err != nil {
			t.Fatalf("create %s: %v", title, err)
		}
	}
	mk("overnight", day.Add(-2*time.Hour), day.Add(time.Hour))
	mk("lunch", day.Add(12*time.Hour), day.Add(13*time.Hour))
	mk("tomorrow", day.Add(26*time.Hour), day.Add(27*time.Hour))
	mk("last week", day.AddDate(0, 0, -7), day.AddDate(0, 0, -7).Add(time.Hour))

	events, err := es.ListRange(ctx, hid, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Title != "overnight" || events[1].Title != "lunch" {
		t.Errorf("events = %q, %q", events[0].Title, events[1].Title)
	}
}

func TestEventListRangeBoundaries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, hid := registerHousehold(t, db, "edges@example.com")
	es := NewEventStore(db)

	day := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	for _, in := range []EventInput{
		{Title: "ends at midnight", StartTime: day.Add(-time.Hour), EndTime: day},
		{Title: "instant at midnight", StartTime: day, EndTime: day},
		{Title: "starts at next midnight", StartTime: day.AddDate(0, 0, 1), EndTime: day.AddDate(0, 0, 1).Add(time.Hour)},
	} {
		if _, err := es.Create(ctx, hid, in); err != nil {
			t.Fatalf("create %s: %v", in.Title, err)
		}
	}

	events, err := es.ListRange(ctx, hid, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if len(events) != 1 || events[0].Title != "instant at midnight" {
		t.Fatalf("events = %+v, want only the instant at midnight", events)
	}
}

func TestEventReminderCandidates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, hid := registerHousehold(t, db, "remind@example.com")
	es := NewEventStore(db)

	start := time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	fifteen := 15
	if _, err := es.Create(ctx, hid, EventInput{Title: "dentist", StartTime: start, EndTime: start.Add(time.Hour), ReminderMinutes: &fifteen}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := es.Create(ctx, hid, EventInput{Title: "no reminder", StartTime: start, EndTime: start.Add(time.Hour)}); err != nil {
		t.Fatalf("create: %v", err)
	}

	events, err := es.ListReminderCandidates(ctx, start.Add(-time.Hour), start.Add(time.Hour))
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(events) != 1 || events[0].ReminderMinutes == nil || *events[0].ReminderMinutes != 15 {
		t.Fatalf("candidates = %+v", events)
	}
}

func TestReminderDueAndSent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, hid := registerHousehold(t, db, "due@example.com")
	rs := NewReminderStore(db)

	now := time.Now().UTC()
	due, err := rs.Create(ctx, hid, "Call pharmacy", "", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := rs.Create(ctx, hid, "Later", "", now.Add(time.Hour)); err != nil {
		t.Fatalf("create later: %v", err)
	}

	list, err := rs.ListDue(ctx, now)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(list) != 1 || list[0].ID != due.ID {
		t.Fatalf("due = %+v, want only %d", list, due.ID)
	}

	ok, err := rs.MarkSent(ctx, due.ID, now)
	if err != nil || !ok {
		t.Fatalf("mark sent = %v, %v", ok, err)
	}
	ok, err = rs.MarkSent(ctx, due.ID, now)
	if err != nil {
		t.Fatalf("mark sent again: %v", err)
	}
	if ok {
		t.Error("second mark sent should report false")
	}

	list, _ = rs.ListDue(ctx, now)
	if len(list) != 0 {
		t.Errorf("due after send = %d, want 0", len(list))
	}

	moved, err := rs.Update(ctx, hid, due.ID, "Call pharmacy", "", now.Add(-30*time.Second))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if moved.SentAt != nil {
		t.Error("moving remind_at should re-arm the reminder")
	}

	if _, err := rs.SetCompleted(ctx, hid, due.ID, true); err != nil {
		t.Fatalf("complete: %v", err)
	}
	list, _ = rs.ListDue(ctx, now)
	if len(list) != 0 {
		t.Errorf("completed reminder still due")
	}
}
