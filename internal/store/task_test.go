package store

import (
	"context"
	"testing"

	"github.com/dukerupert/village/internal/model"
)

func TestTaskToggle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, hid := registerHousehold(t, db, "task@example.com")
	ts := NewTaskStore(db)

	task, err := ts.Create(ctx, hid, TaskInput{Title: "Laundry", Category: model.TaskCategoryHousehold, Priority: model.PriorityMedium})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Completed || task.CompletedAt != nil {
		t.Fatal("new task should be open")
	}

	done, err := ts.Toggle(ctx, hid, task.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !done.Completed || done.CompletedAt == nil {
		t.Errorf("toggled task = %v/%v, want completed with timestamp", done.Completed, done.CompletedAt)
	}

	reopened, err := ts.Toggle(ctx, hid, task.ID)
	if err != nil {
		t.Fatalf("toggle again: %v", err)
	}
	if reopened.Completed || reopened.CompletedAt != nil {
		t.Errorf("reopened task = %v/%v, want open without timestamp", reopened.Completed, reopened.CompletedAt)
	}
}

func TestTaskListOrdering(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, hid := registerHousehold(t, db, "order@example.com")
	ts := NewTaskStore(db)

	undated, _ := ts.Create(ctx, hid, TaskInput{Title: "Someday", Category: "other", Priority: "low"})
	later, _ := ts.Create(ctx, hid, TaskInput{Title: "Later", Category: "work", Priority: "medium", DueDate: "2026-05-10"})
	sooner, _ := ts.Create(ctx, hid, TaskInput{Title: "Sooner", Category: "work", Priority: "high", DueDate: "2026-05-01"})
	done, _ := ts.Create(ctx, hid, TaskInput{Title: "Done", Category: "work", Priority: "high", DueDate: "2026-04-01"})
	if _, err := ts.Toggle(ctx, hid, done.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	tasks, err := ts.List(ctx, hid)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []int64{sooner.ID, later.ID, undated.ID, done.ID}
	if len(tasks) != len(want) {
		t.Fatalf("tasks = %d, want %d", len(tasks), len(want))
	}
	for i, id := range want {
		if tasks[i].ID != id {
			t.Errorf("tasks[%d] = %q, want id %d", i, tasks[i].Title, id)
		}
	}

	due, err := ts.ListDueOnOrBefore(ctx, hid, "2026-05-01")
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 2 {
		t.Errorf("due = %d, want 2", len(due))
	}
}

func TestTaskAssignedMemberDeleted(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, hid := registerHousehold(t, db, "assign@example.com")
	ts := NewTaskStore(db)
	fs := NewFamilyMemberStore(db)

	m, _ := fs.Create(ctx, hid, FamilyMemberInput{Name: "Teen", Color: model.DefaultMemberColor})
	task, err := ts.Create(ctx, hid, TaskInput{Title: "Mow", Category: "household", Priority: "low", AssignedTo: &m.ID})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.AssignedTo == nil || *task.AssignedTo != m.ID {
		t.Fatalf("assigned = %v, want %d", task.AssignedTo, m.ID)
	}

	if err := fs.Delete(ctx, hid, m.ID); err != nil {
		t.Fatalf("delete member: %v", err)
	}
	got, _ := ts.GetByID(ctx, hid, task.ID)
	if got.AssignedTo != nil {
		t.Errorf("assigned = %v, want nil after member delete", *got.AssignedTo)
	}
}
