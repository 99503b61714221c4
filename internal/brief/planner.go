package brief

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/village/internal/insight"
	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/store"
)

type PlannerInsights struct {
	Date               string                 `json:"date"`
	Categories         []insight.CategoryStat `json:"categories"`
	TotalTasks         int                    `json:"total_tasks"`
	CompletedTasks     int                    `json:"completed_tasks"`
	CompletionPct      int                    `json:"completion_pct"`
	MostCommonCategory string                 `json:"most_common_category"`
	BusiestWeekday     string                 `json:"busiest_weekday"`
	Goals              insight.GoalStats      `json:"goals"`
	Forecast           insight.Forecast       `json:"forecast"`
	Suggestions        []insight.Suggestion   `json:"suggestions"`
}

// PlannerInsights derives task, goal and workload figures as of date.
func (svc *Service) PlannerInsights(ctx context.Context, householdID int64, date string) (*PlannerInsights, error) {
	loc, err := svc.s.Settings.Location(ctx, householdID)
	if err != nil {
		return nil, err
	}
	start, _, err := dayBounds(date, loc)
	if err != nil {
		return nil, err
	}
	end := start.AddDate(0, 0, plannerForecastDays)

	var (
		tasks  []model.Task
		goals  []model.Goal
		events []model.Event
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		tasks, err = svc.s.Tasks.List(gctx, householdID)
		return err
	})
	g.Go(func() (err error) {
		goals, err = svc.s.Goals.List(gctx, householdID, store.GoalStatusAll)
		return err
	})
	g.Go(func() (err error) {
		events, err = svc.s.Events.ListRange(gctx, householdID, start, end)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load planner insights: %w", err)
	}

	catalog, err := insight.DefaultCatalog()
	if err != nil {
		return nil, err
	}

	p := &PlannerInsights{
		Date:               date,
		Categories:         insight.CategoryBreakdown(tasks),
		TotalTasks:         len(tasks),
		MostCommonCategory: insight.MostCommonCategory(tasks),
		BusiestWeekday:     insight.BusiestWeekday(tasks),
		Goals:              insight.SummarizeGoals(goals),
		Forecast:           insight.MentalLoadForecast(tasks, events, start, plannerForecastDays, loc),
		Suggestions:        catalog.Suggest(goals, plannerSuggestLimit),
	}
	for _, t := range tasks {
		if t.Completed {
			p.CompletedTasks++
		}
	}
	p.CompletionPct = insight.Percent(p.CompletedTasks, p.TotalTasks)
	return p, nil
}
