// Package brief assembles the dashboard views. Each view loads its
// independent queries concurrently and derives summary figures from the
// results; the first failing query cancels the rest.
package brief

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/village/internal/insight"
	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/store"
)

const (
	recentContactLimit  = 10
	celebrationDays     = 7
	defaultCheckinDays  = 14
	plannerForecastDays = insight.DefaultForecastDays
	plannerSuggestLimit = insight.DefaultSuggestionLimit
)

// Stores groups the read dependencies of the aggregators.
type Stores struct {
	Tasks          *store.TaskStore
	Goals          *store.GoalStore
	Events         *store.EventStore
	VillageMembers *store.VillageMemberStore
	HelpRequests   *store.HelpRequestStore
	Logs           *store.CommunicationLogStore
	Delegations    *store.DelegationStore
	Priorities     *store.PriorityStore
	Celebrations   *store.CelebrationStore
	Settings       *store.SettingsStore
}

type Service struct {
	s   Stores
	now func() time.Time
}

func NewService(s Stores) *Service {
	return &Service{s: s, now: time.Now}
}

// Today returns the current date in the household's time zone.
func (svc *Service) Today(ctx context.Context, householdID int64) (string, *time.Location, error) {
	loc, err := svc.s.Settings.Location(ctx, householdID)
	if err != nil {
		return "", nil, err
	}
	return svc.now().In(loc).Format(model.DateLayout), loc, nil
}

// dayBounds returns [start, end) of date in loc.
func dayBounds(date string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(model.DateLayout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return start, start.AddDate(0, 0, 1), nil
}

type DailyBrief struct {
	Date           string                   `json:"date"`
	Tasks          []model.Task             `json:"tasks"`
	Goals          []model.Goal             `json:"goals"`
	VillageMembers []model.VillageMember    `json:"village_members"`
	Priorities     []model.Priority         `json:"priorities"`
	Celebrations   []model.Celebration      `json:"celebrations"`
	RecentContacts []model.CommunicationLog `json:"recent_contacts"`
	Events         []model.Event            `json:"events"`

	TasksDueToday        int `json:"tasks_due_today"`
	TasksCompletedToday  int `json:"tasks_completed_today"`
	OverdueCount         int `json:"overdue_count"`
	TaskCompletionPct    int `json:"task_completion_pct"`
	GoalsAverageProgress int `json:"goals_average_progress"`
	PrioritiesCompleted  int `json:"priorities_completed"`
	VillageSize          int `json:"village_size"`
}

// DailyBrief loads the dashboard for date (YYYY-MM-DD).
func (svc *Service) DailyBrief(ctx context.Context, householdID int64, date string) (*DailyBrief, error) {
	loc, err := svc.s.Settings.Location(ctx, householdID)
	if err != nil {
		return nil, err
	}
	dayStart, dayEnd, err := dayBounds(date, loc)
	if err != nil {
		return nil, err
	}
	since := dayStart.AddDate(0, 0, -(celebrationDays - 1)).Format(model.DateLayout)

	b := &DailyBrief{Date: date}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		b.Tasks, err = svc.s.Tasks.ListDueOnOrBefore(gctx, householdID, date)
		return err
	})
	g.Go(func() (err error) {
		b.Goals, err = svc.s.Goals.List(gctx, householdID, store.GoalStatusActive)
		return err
	})
	g.Go(func() (err error) {
		b.VillageMembers, err = svc.s.VillageMembers.List(gctx, householdID)
		return err
	})
	g.Go(func() (err error) {
		b.Priorities, err = svc.s.Priorities.ListByDate(gctx, householdID, date)
		return err
	})
	g.Go(func() (err error) {
		b.Celebrations, err = svc.s.Celebrations.List(gctx, householdID, since, date)
		return err
	})
	g.Go(func() (err error) {
		b.RecentContacts, err = svc.s.Logs.List(gctx, householdID, 0, recentContactLimit)
		return err
	})
	g.Go(func() (err error) {
		b.Events, err = svc.s.Events.ListRange(gctx, householdID, dayStart, dayEnd)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load daily brief: %w", err)
	}

	b.fillEmpty()
	b.derive()
	return b, nil
}

func (b *DailyBrief) fillEmpty() {
	if b.Tasks == nil {
		b.Tasks = []model.Task{}
	}
	if b.Goals == nil {
		b.Goals = []model.Goal{}
	}
	if b.VillageMembers == nil {
		b.VillageMembers = []model.VillageMember{}
	}
	if b.Priorities == nil {
		b.Priorities = []model.Priority{}
	}
	if b.Celebrations == nil {
		b.Celebrations = []model.Celebration{}
	}
	if b.RecentContacts == nil {
		b.RecentContacts = []model.CommunicationLog{}
	}
	if b.Events == nil {
		b.Events = []model.Event{}
	}
}

func (b *DailyBrief) derive() {
	for _, t := range b.Tasks {
		switch {
		case t.DueDate == b.Date:
			b.TasksDueToday++
			if t.Completed {
				b.TasksCompletedToday++
			}
		case t.DueDate < b.Date && !t.Completed:
			b.OverdueCount++
		}
	}
	b.TaskCompletionPct = insight.Percent(b.TasksCompletedToday, b.TasksDueToday)
	b.GoalsAverageProgress = insight.SummarizeGoals(b.Goals).AverageProgress
	for _, p := range b.Priorities {
		if p.Completed {
			b.PrioritiesCompleted++
		}
	}
	b.VillageSize = len(b.VillageMembers)
}

// Summary is the one-line digest pushed each morning.
func (b *DailyBrief) Summary() string {
	s := fmt.Sprintf("%d %s due today", b.TasksDueToday, plural(b.TasksDueToday, "task", "tasks"))
	if b.OverdueCount > 0 {
		s += fmt.Sprintf(", %d overdue", b.OverdueCount)
	}
	s += fmt.Sprintf(", %d %s", len(b.Events), plural(len(b.Events), "event", "events"))
	if n := len(b.Priorities); n > 0 {
		s += fmt.Sprintf(", %d %s", n, plural(n, "priority", "priorities"))
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
