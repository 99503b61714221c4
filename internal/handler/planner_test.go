package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"testing"

	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/store"
)

func TestFamilyMemberPrimaryCaregiverGuard(t *testing.T) {
	f := setup(t)
	hub := &fakeHub{}
	h := NewFamilyMemberHandler(store.NewFamilyMemberStore(f.db), hub, testLogger)

	rec := call(t, h.Create, "POST", "/api/family-members", map[string]any{
		"name": "Alice", "relationship": "parent", "is_primary_caregiver": true,
	}, &f.admin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	alice := decode[model.FamilyMember](t, rec)
	if alice.Color != model.DefaultMemberColor {
		t.Errorf("color = %q, want default", alice.Color)
	}
	id := strconv.FormatInt(alice.ID, 10)

	rec = call(t, h.Create, "POST", "/api/family-members", map[string]any{"name": "alice"}, &f.admin)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate name status = %d, want 409", rec.Code)
	}

	rec = call(t, h.Create, "POST", "/api/family-members", map[string]any{"name": "Sam", "color": "blue"}, &f.admin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad color status = %d, want 400", rec.Code)
	}

	rec = call(t, h.Delete, "DELETE", "/api/family-members/"+id, nil, &f.admin, "id", id)
	if rec.Code != http.StatusConflict {
		t.Errorf("delete caregiver status = %d, want 409", rec.Code)
	}

	rec = call(t, h.Update, "PUT", "/api/family-members/"+id, map[string]any{
		"name": "Alice", "is_primary_caregiver": false,
	}, &f.admin, "id", id)
	if rec.Code != http.StatusConflict {
		t.Errorf("unset last caregiver status = %d, want 409", rec.Code)
	}

	if len(hub.household) != 1 || hub.household[0].Type != "family_member_created" {
		t.Errorf("events = %+v, want one family_member_created", hub.household)
	}
}

func TestKidBirthDateValidation(t *testing.T) {
	f := setup(t)
	h := NewKidHandler(store.NewKidStore(f.db), nil, testLogger)

	rec := call(t, h.Create, "POST", "/api/kids", map[string]string{"name": "Milo", "birth_date": "2019-13-01"}, &f.admin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	rec = call(t, h.Create, "POST", "/api/kids", map[string]string{"name": "Milo", "birth_date": "2019-06-01"}, &f.admin)
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
}

func TestTaskListFilters(t *testing.T) {
	f := setup(t)
	h := NewTaskHandler(store.NewTaskStore(f.db), store.NewFamilyMemberStore(f.db), fixedCalendar{"2026-03-02"}, nil, testLogger)

	for _, body := range []map[string]any{
		{"title": "Pay water bill", "due_date": "2026-02-27", "priority": "high", "category": "household"},
		{"title": "Pack lunches", "due_date": "2026-03-02", "category": "kids"},
		{"title": "Book dentist", "due_date": "2026-03-09", "category": "health"},
		{"title": "Someday"},
	} {
		if rec := call(t, h.Create, "POST", "/api/tasks", body, &f.admin); rec.Code != http.StatusCreated {
			t.Fatalf("create %v: status %d: %s", body["title"], rec.Code, rec.Body)
		}
	}

	tests := []struct {
		filter string
		want   []string
	}{
		{"", []string{"Pay water bill", "Pack lunches", "Book dentist", "Someday"}},
		{"overdue", []string{"Pay water bill"}},
		{"today", []string{"Pack lunches"}},
		{"upcoming", []string{"Book dentist"}},
		{"high_priority", []string{"Pay water bill"}},
		{"kids", []string{"Pack lunches"}},
	}
	for _, tt := range tests {
		t.Run("filter="+tt.filter, func(t *testing.T) {
			rec := call(t, h.List, "GET", "/api/tasks?filter="+tt.filter, nil, &f.admin)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			got := map[string]bool{}
			for _, task := range decode[[]model.Task](t, rec) {
				got[task.Title] = true
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for _, title := range tt.want {
				if !got[title] {
					t.Errorf("missing %q in %v", title, got)
				}
			}
		})
	}
}

func TestTaskValidation(t *testing.T) {
	f := setup(t)
	h := NewTaskHandler(store.NewTaskStore(f.db), store.NewFamilyMemberStore(f.db), fixedCalendar{"2026-03-02"}, nil, testLogger)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing title", map[string]any{"title": "  "}},
		{"bad category", map[string]any{"title": "x", "category": "chores"}},
		{"bad priority", map[string]any{"title": "x", "priority": "critical"}},
		{"bad due date", map[string]any{"title": "x", "due_date": "tomorrow"}},
		{"unknown assignee", map[string]any{"title": "x", "assigned_to": 9999}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := call(t, h.Create, "POST", "/api/tasks", tt.body, &f.admin); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestGoalProgressAndCheckIn(t *testing.T) {
	f := setup(t)
	h := NewGoalHandler(store.NewGoalStore(f.db), fixedCalendar{"2026-03-02"}, nil, testLogger)

	rec := call(t, h.Create, "POST", "/api/goals", map[string]string{"title": "Walk daily"}, &f.admin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	goal := decode[model.Goal](t, rec)
	if goal.Category != "personal" || goal.Progress != 0 || goal.IsCompleted {
		t.Errorf("new goal = %+v", goal)
	}
	id := strconv.FormatInt(goal.ID, 10)

	rec = call(t, h.UpdateProgress, "PUT", "/api/goals/"+id+"/progress", map[string]int{"progress": 140}, &f.admin, "id", id)
	goal = decode[model.Goal](t, rec)
	if goal.Progress != 100 || !goal.IsCompleted {
		t.Errorf("after 140%%: progress %d completed %v, want clamped and complete", goal.Progress, goal.IsCompleted)
	}

	rec = call(t, h.UpdateProgress, "PUT", "/api/goals/"+id+"/progress", map[string]any{}, &f.admin, "id", id)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing progress status = %d, want 400", rec.Code)
	}

	for i, date := range []string{"2026-02-28", "2026-03-01", ""} {
		var body any
		if date != "" {
			body = map[string]string{"date": date}
		}
		rec = call(t, h.CheckIn, "POST", "/api/goals/"+id+"/checkin", body, &f.admin, "id", id)
		if rec.Code != http.StatusOK {
			t.Fatalf("check-in %d status = %d: %s", i, rec.Code, rec.Body)
		}
	}
	goal = decode[model.Goal](t, rec)
	if goal.StreakCount != 3 || goal.LastCheckinDate != "2026-03-02" {
		t.Errorf("streak %d last %q, want 3 on 2026-03-02", goal.StreakCount, goal.LastCheckinDate)
	}

	rec = call(t, h.List, "GET", "/api/goals?status=paused", nil, &f.admin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad status filter = %d, want 400", rec.Code)
	}

	rec = call(t, h.Get, "GET", "/api/goals/999", nil, &f.admin, "id", "999")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing goal status = %d, want 404", rec.Code)
	}
}

func TestPriorities(t *testing.T) {
	f := setup(t)
	h := NewPriorityHandler(store.NewPriorityStore(f.db), fixedCalendar{"2026-03-02"}, nil, testLogger)

	var ids []int64
	for i := 1; i <= 3; i++ {
		rec := call(t, h.Create, "POST", "/api/priorities", map[string]string{"title": fmt.Sprintf("Priority %d", i)}, &f.admin)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
		}
		p := decode[model.Priority](t, rec)
		if p.Date != "2026-03-02" {
			t.Errorf("date = %q, want today", p.Date)
		}
		ids = append(ids, p.ID)
	}

	reversed := []int64{ids[2], ids[1], ids[0]}
	if rec := call(t, h.Reorder, "PUT", "/api/priorities/reorder", map[string]any{"ids": reversed}, &f.admin); rec.Code != http.StatusNoContent {
		t.Fatalf("reorder status = %d", rec.Code)
	}

	first := strconv.FormatInt(ids[0], 10)
	rec := call(t, h.Toggle, "POST", "/api/priorities/"+first+"/toggle", nil, &f.admin, "id", first)
	if !decode[model.Priority](t, rec).Completed {
		t.Error("toggle did not complete priority")
	}

	rec = call(t, h.List, "GET", "/api/priorities", nil, &f.admin)
	got := decode[[]model.Priority](t, rec)
	if len(got) != 3 || got[0].ID != ids[2] || got[2].ID != ids[0] {
		t.Errorf("order = %+v, want reversed", got)
	}

	rec = call(t, h.List, "GET", "/api/priorities?date=March", nil, &f.admin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", rec.Code)
	}
}

func TestCelebrationRequiresKnownFamilyMember(t *testing.T) {
	f := setup(t)
	h := NewCelebrationHandler(store.NewCelebrationStore(f.db), store.NewFamilyMemberStore(f.db), nil, testLogger)

	rec := call(t, h.Create, "POST", "/api/celebrations", map[string]any{
		"title": "Lost first tooth", "date": "2026-03-01", "family_member_id": 42,
	}, &f.admin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown member status = %d, want 400", rec.Code)
	}
	rec = call(t, h.Create, "POST", "/api/celebrations", map[string]any{"title": "No date"}, &f.admin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing date status = %d, want 400", rec.Code)
	}
	rec = call(t, h.Create, "POST", "/api/celebrations", map[string]any{"title": "Rode a bike", "date": "2026-03-01"}, &f.admin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body)
	}
	rec = call(t, h.List, "GET", "/api/celebrations?from=2026-03-01&to=2026-03-31", nil, &f.admin)
	if got := decode[[]model.Celebration](t, rec); len(got) != 1 {
		t.Errorf("celebrations = %d, want 1", len(got))
	}
}
