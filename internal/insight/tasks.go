// Package insight derives planner figures from already-loaded slices. It does
// no I/O.
package insight

import (
	"math"
	"sort"
	"time"

	"github.com/dukerupert/village/internal/model"
)

// Task filters accepted by FilterTasks. Any task category is also a filter.
const (
	FilterAll          = "all"
	FilterActive       = "active"
	FilterPending      = "pending"
	FilterCompleted    = "completed"
	FilterToday        = "today"
	FilterOverdue      = "overdue"
	FilterUpcoming     = "upcoming"
	FilterHighPriority = "high_priority"
)

// FilterTasks returns the tasks matching filter. today is a YYYY-MM-DD date.
// An unknown filter returns every task.
func FilterTasks(tasks []model.Task, filter, today string) []model.Task {
	var keep func(model.Task) bool
	switch filter {
	case FilterActive, FilterPending:
		keep = func(t model.Task) bool { return !t.Completed }
	case FilterCompleted:
		keep = func(t model.Task) bool { return t.Completed }
	case FilterToday:
		keep = func(t model.Task) bool { return t.DueDate == today }
	case FilterOverdue:
		keep = func(t model.Task) bool { return !t.Completed && t.DueDate != "" && t.DueDate < today }
	case FilterUpcoming:
		keep = func(t model.Task) bool { return !t.Completed && t.DueDate > today }
	case FilterHighPriority:
		keep = func(t model.Task) bool { return !t.Completed && t.Priority == model.PriorityHigh }
	default:
		if model.Contains(model.TaskCategories, filter) {
			keep = func(t model.Task) bool { return t.Category == filter }
		}
	}

	out := make([]model.Task, 0, len(tasks))
	for _, t := range tasks {
		if keep == nil || keep(t) {
			out = append(out, t)
		}
	}
	return out
}

// Percent returns part/total as a whole percentage, 0 when total is 0.
func Percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) * 100 / float64(total)))
}

type CategoryStat struct {
	Category      string `json:"category"`
	Total         int    `json:"total"`
	Completed     int    `json:"completed"`
	CompletionPct int    `json:"completion_pct"`
}

// CategoryBreakdown groups tasks by category, sorted by category name.
func CategoryBreakdown(tasks []model.Task) []CategoryStat {
	byCat := map[string]*CategoryStat{}
	for _, t := range tasks {
		st, ok := byCat[t.Category]
		if !ok {
			st = &CategoryStat{Category: t.Category}
			byCat[t.Category] = st
		}
		st.Total++
		if t.Completed {
			st.Completed++
		}
	}

	out := make([]CategoryStat, 0, len(byCat))
	for _, st := range byCat {
		st.CompletionPct = Percent(st.Completed, st.Total)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// MostCommonCategory returns the category with the most tasks, ties going
// to the alphabetically first. It returns "" for no tasks.
func MostCommonCategory(tasks []model.Task) string {
	counts := map[string]int{}
	for _, t := range tasks {
		counts[t.Category]++
	}
	best, bestN := "", 0
	for cat, n := range counts {
		if n > bestN || (n == bestN && cat < best) {
			best, bestN = cat, n
		}
	}
	return best
}

// BusiestWeekday returns the weekday on which the most tasks fall due.
// Ties go to the earlier day, Sunday first. Tasks without a due date are
// ignored and "" is returned when none have one.
func BusiestWeekday(tasks []model.Task) string {
	var counts [7]int
	seen := false
	for _, t := range tasks {
		d, err := time.Parse(model.DateLayout, t.DueDate)
		if err != nil {
			continue
		}
		counts[d.Weekday()]++
		seen = true
	}
	if !seen {
		return ""
	}
	best := time.Sunday
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if counts[wd] > counts[best] {
			best = wd
		}
	}
	return best.String()
}

type GoalStats struct {
	Completed       int `json:"completed"`
	Active          int `json:"active"`
	AverageProgress int `json:"average_progress"`
	LongestStreak   int `json:"longest_streak"`
}

// SummarizeGoals counts goals by state. AverageProgress covers active goals
// only; LongestStreak is the highest current streak among all goals.
func SummarizeGoals(goals []model.Goal) GoalStats {
	var st GoalStats
	sum := 0
	for _, g := range goals {
		if g.IsCompleted {
			st.Completed++
		} else {
			st.Active++
			sum += g.Progress
		}
		if g.StreakCount > st.LongestStreak {
			st.LongestStreak = g.StreakCount
		}
	}
	if st.Active > 0 {
		st.AverageProgress = int(math.Round(float64(sum) / float64(st.Active)))
	}
	return st
}
