package insight

import (
	"math"
	"time"

	"github.com/dukerupert/village/internal/model"
)

// Load levels.
const (
	LoadLight    = "light"
	LoadModerate = "moderate"
	LoadHeavy    = "heavy"
)

// DefaultForecastDays is the horizon used by the planner insights.
const DefaultForecastDays = 7

type DayLoad struct {
	Date         string `json:"date"`
	Weekday      string `json:"weekday"`
	HighPriority int    `json:"high_priority_tasks"`
	OtherTasks   int    `json:"other_tasks"`
	Events       int    `json:"events"`
	Load         int    `json:"load"`
	Level        string `json:"level"`
}

type Forecast struct {
	Days        []DayLoad `json:"days"`
	PeakDay     string    `json:"peak_day"`
	PeakLoad    int       `json:"peak_load"`
	AverageLoad float64   `json:"average_load"`
}

// LoadLevel buckets a day's load score.
func LoadLevel(load int) string {
	switch {
	case load >= 8:
		return LoadHeavy
	case load >= 4:
		return LoadModerate
	default:
		return LoadLight
	}
}

// MentalLoadForecast scores each of the days starting at start. An open
// high-priority task due that day counts 2, any other open task due that
// day 1, and each event starting that day (in loc) 1.
func MentalLoadForecast(tasks []model.Task, events []model.Event, start time.Time, days int, loc *time.Location) Forecast {
	if days <= 0 {
		days = DefaultForecastDays
	}
	if loc == nil {
		loc = time.UTC
	}
	start = start.In(loc)
	first := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)

	index := make(map[string]int, days)
	f := Forecast{Days: make([]DayLoad, days)}
	for i := range f.Days {
		d := first.AddDate(0, 0, i)
		date := d.Format(model.DateLayout)
		f.Days[i] = DayLoad{Date: date, Weekday: d.Weekday().String()}
		index[date] = i
	}

	for _, t := range tasks {
		i, ok := index[t.DueDate]
		if !ok || t.Completed {
			continue
		}
		if t.Priority == model.PriorityHigh {
			f.Days[i].HighPriority++
		} else {
			f.Days[i].OtherTasks++
		}
	}
	for _, e := range events {
		if i, ok := index[e.StartTime.In(loc).Format(model.DateLayout)]; ok {
			f.Days[i].Events++
		}
	}

	total := 0
	for i := range f.Days {
		d := &f.Days[i]
		d.Load = 2*d.HighPriority + d.OtherTasks + d.Events
		d.Level = LoadLevel(d.Load)
		total += d.Load
		if i == 0 || d.Load > f.PeakLoad {
			f.PeakDay, f.PeakLoad = d.Date, d.Load
		}
	}
	f.AverageLoad = math.Round(float64(total)/float64(days)*10) / 10
	return f
}
