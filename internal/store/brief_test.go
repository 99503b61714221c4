package store

import (
	"context"
	"testing"

	"github.com/dukerupert/village/internal/model"
)

func TestPriorityReorderAndToggle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, hid := registerHousehold(t, db, "prio@example.com")
	ps := NewPriorityStore(db)

	a, _ := ps.Create(ctx, hid, "Pay bills", "2026-06-01")
	b, _ := ps.Create(ctx, hid, "Book vet", "2026-06-01")
	c, _ := ps.Create(ctx, hid, "Other day", "2026-06-02")
	if a.SortOrder != 0 || b.SortOrder != 1 || c.SortOrder != 0 {
		t.Fatalf("sort orders = %d %d %d", a.SortOrder, b.SortOrder, c.SortOrder)
	}

	if err := ps.Reorder(ctx, hid, []int64{b.ID, a.ID}); err != nil {
		t.Fatalf("reorder: %v", err)
	}
	list, err := ps.ListByDate(ctx, hid, "2026-06-01")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != b.ID {
		t.Fatalf("list = %+v, want %d first", list, b.ID)
	}

	toggled, err := ps.Toggle(ctx, hid, a.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !toggled.Completed {
		t.Error("expected completed")
	}
}

func TestCelebrationListRange(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, hid := registerHousehold(t, db, "party@example.com")
	cs := NewCelebrationStore(db)

	for _, d := range []string{"2026-05-01", "2026-05-20", "2026-06-01"} {
		if _, err := cs.Create(ctx, hid, model.Celebration{Title: "win " + d, Date: d}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	list, err := cs.List(ctx, hid, "2026-05-15", "2026-06-01")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("list = %d, want 2", len(list))
	}
	if list[0].Date != "2026-06-01" {
		t.Errorf("first = %q, want newest first", list[0].Date)
	}

	all, _ := cs.List(ctx, hid, "", "")
	if len(all) != 3 {
		t.Errorf("all = %d, want 3", len(all))
	}
}
