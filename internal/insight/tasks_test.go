package insight

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dukerupert/village/internal/model"
)

func sampleTasks() []model.Task {
	return []model.Task{
		{ID: 1, Title: "pay bills", Category: "household", Priority: "high", DueDate: "2026-03-01"},
		{ID: 2, Title: "dentist", Category: "health", Priority: "medium", DueDate: "2026-03-02"},
		{ID: 3, Title: "laundry", Category: "household", Priority: "low", DueDate: "2026-03-02", Completed: true},
		{ID: 4, Title: "permission slip", Category: "kids", Priority: "high", DueDate: "2026-03-05"},
		{ID: 5, Title: "read", Category: "self_care", Priority: "low"},
	}
}

func ids(tasks []model.Task) []int64 {
	out := []int64{}
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return out
}

func TestFilterTasks(t *testing.T) {
	tasks := sampleTasks()
	today := "2026-03-02"

	tests := []struct {
		filter string
		want   []int64
	}{
		{"all", []int64{1, 2, 3, 4, 5}},
		{"active", []int64{1, 2, 4, 5}},
		{"pending", []int64{1, 2, 4, 5}},
		{"completed", []int64{3}},
		{"today", []int64{2, 3}},
		{"overdue", []int64{1}},
		{"upcoming", []int64{4}},
		{"high_priority", []int64{1, 4}},
		{"household", []int64{1, 3}},
		{"work", []int64{}},
		{"bogus", []int64{1, 2, 3, 4, 5}},
		{"", []int64{1, 2, 3, 4, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(FilterTasks(tasks, tt.filter, today)))
		})
	}
}

func TestFilterTasksEmptyInput(t *testing.T) {
	got := FilterTasks(nil, "active", "2026-03-02")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(0, 0))
	assert.Equal(t, 33, Percent(1, 3))
	assert.Equal(t, 67, Percent(2, 3))
	assert.Equal(t, 100, Percent(4, 4))
}

func TestCategoryBreakdown(t *testing.T) {
	got := CategoryBreakdown(sampleTasks())
	assert.Equal(t, []CategoryStat{
		{Category: "health", Total: 1, Completed: 0, CompletionPct: 0},
		{Category: "household", Total: 2, Completed: 1, CompletionPct: 50},
		{Category: "kids", Total: 1, Completed: 0, CompletionPct: 0},
		{Category: "self_care", Total: 1, Completed: 0, CompletionPct: 0},
	}, got)
	assert.Empty(t, CategoryBreakdown(nil))
}

func TestMostCommonCategory(t *testing.T) {
	assert.Equal(t, "household", MostCommonCategory(sampleTasks()))
	assert.Equal(t, "", MostCommonCategory(nil))

	tied := []model.Task{{Category: "work"}, {Category: "errands"}, {Category: "work"}, {Category: "errands"}}
	assert.Equal(t, "errands", MostCommonCategory(tied))
}

func TestBusiestWeekday(t *testing.T) {
	// 2026-03-02 is a Monday.
	assert.Equal(t, "Monday", BusiestWeekday(sampleTasks()))
	assert.Equal(t, "", BusiestWeekday([]model.Task{{Title: "undated"}}))

	// One Sunday, one Tuesday: the earlier weekday wins.
	tied := []model.Task{{DueDate: "2026-03-03"}, {DueDate: "2026-03-01"}}
	assert.Equal(t, "Sunday", BusiestWeekday(tied))
}

func TestSummarizeGoals(t *testing.T) {
	goals := []model.Goal{
		{Progress: 20, StreakCount: 2},
		{Progress: 50, StreakCount: 5},
		{Progress: 100, IsCompleted: true, StreakCount: 9},
	}
	assert.Equal(t, GoalStats{Completed: 1, Active: 2, AverageProgress: 35, LongestStreak: 9}, SummarizeGoals(goals))
	assert.Equal(t, GoalStats{}, SummarizeGoals(nil))
}
