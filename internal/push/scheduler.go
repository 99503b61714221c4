package push

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/village/internal/brief"
	"github.com/dukerupert/village/internal/model"
	"github.com/dukerupert/village/internal/store"
)

// maxReminderLead bounds how far ahead of an event a reminder may fire.
const maxReminderLead = 7 * 24 * time.Hour

// SchedulerStores are the tables the background jobs read and clean up.
type SchedulerStores struct {
	Push       *store.PushStore
	Reminders  *store.ReminderStore
	Events     *store.EventStore
	Sessions   *store.SessionStore
	AuthCodes  *store.AuthCodeStore
	Households *store.HouseholdStore
	Settings   *store.SettingsStore
}

// Scheduler runs the per-minute reminder tick and the daily brief digest
// on cron schedules.
type Scheduler struct {
	cron      *cron.Cron
	service   *Service
	st        SchedulerStores
	briefs    *brief.Service
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewScheduler creates a scheduler. Notification log entries older than
// retention are purged on each tick.
func NewScheduler(svc *Service, st SchedulerStores, briefs *brief.Service, retention time.Duration, logger *slog.Logger) *Scheduler {
	cl := cronLogger{logger}
	return &Scheduler{
		cron:      cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)), cron.WithLogger(cl)),
		service:   svc,
		st:        st,
		briefs:    briefs,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Start registers the jobs and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context, tickSpec, digestSpec string) error {
	if _, err := s.cron.AddFunc(tickSpec, func() { s.Tick(ctx) }); err != nil {
		return fmt.Errorf("schedule tick %q: %w", tickSpec, err)
	}
	if _, err := s.cron.AddFunc(digestSpec, func() { s.Digest(ctx) }); err != nil {
		return fmt.Errorf("schedule digest %q: %w", digestSpec, err)
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Tick sends due reminders and event reminders, then purges expired rows.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now().UTC()
	s.sendDueReminders(ctx, now)
	s.sendEventReminders(ctx, now)
	s.cleanup(ctx, now)
}

func (s *Scheduler) sendDueReminders(ctx context.Context, now time.Time) {
	reminders, err := s.st.Reminders.ListDue(ctx, now)
	if err != nil {
		s.logger.Error("list due reminders", "error", err)
		return
	}
	for _, r := range reminders {
		claimed, err := s.st.Reminders.MarkSent(ctx, r.ID, now)
		if err != nil {
			s.logger.Error("mark reminder sent", "reminder_id", r.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		s.service.Notify(ctx, r.HouseholdID, nil, model.NotifTypeReminderDue, Payload{
			Title: "Reminder",
			Body:  r.Title,
			URL:   "/calendar",
			Tag:   fmt.Sprintf("reminder-%d", r.ID),
		})
	}
}

// sendEventReminders notifies once per event start time when the reminder
// lead time has been reached and the event has not yet started.
func (s *Scheduler) sendEventReminders(ctx context.Context, now time.Time) {
	events, err := s.st.Events.ListReminderCandidates(ctx, now, now.Add(maxReminderLead))
	if err != nil {
		s.logger.Error("list event reminder candidates", "error", err)
		return
	}
	for _, e := range events {
		lead := time.Duration(*e.ReminderMinutes) * time.Minute
		if e.StartTime.Add(-lead).After(now) {
			continue
		}

		refID := fmt.Sprintf("event-%d-%d", e.ID, e.StartTime.Unix())
		claimed, err := s.st.Push.RecordSent(ctx, e.HouseholdID, model.NotifTypeEventReminder, refID)
		if err != nil {
			s.logger.Error("record event reminder", "event_id", e.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		body := fmt.Sprintf("%s starts in %d minutes", e.Title, int(e.StartTime.Sub(now).Round(time.Minute).Minutes()))
		if e.Location != "" {
			body += " at " + e.Location
		}
		s.service.Notify(ctx, e.HouseholdID, nil, model.NotifTypeEventReminder, Payload{
			Title: "Upcoming event",
			Body:  body,
			URL:   "/calendar",
			Tag:   fmt.Sprintf("event-%d", e.ID),
		})
	}
}

func (s *Scheduler) cleanup(ctx context.Context, now time.Time) {
	if n, err := s.st.Sessions.DeleteExpired(ctx); err != nil {
		s.logger.Error("delete expired sessions", "error", err)
	} else if n > 0 {
		s.logger.Info("deleted expired sessions", "count", n)
	}
	if _, err := s.st.AuthCodes.DeleteExpired(ctx); err != nil {
		s.logger.Error("delete expired auth codes", "error", err)
	}
	if err := s.st.Push.CleanupLog(ctx, now.Add(-s.retention)); err != nil {
		s.logger.Error("cleanup notification log", "error", err)
	}
}

// Digest pushes the daily brief summary to each household whose local hour
// matches its brief_hour setting. A household gets one digest per local date.
func (s *Scheduler) Digest(ctx context.Context) {
	ids, err := s.st.Households.ListIDs(ctx)
	if err != nil {
		s.logger.Error("list households for digest", "error", err)
		return
	}
	now := s.now()
	for _, hid := range ids {
		if err := s.digestHousehold(ctx, hid, now); err != nil {
			s.logger.Error("send daily digest", "household_id", hid, "error", err)
		}
	}
}

func (s *Scheduler) digestHousehold(ctx context.Context, householdID int64, now time.Time) error {
	settings, err := s.st.Settings.Get(ctx, householdID)
	if err != nil {
		return err
	}
	if settings[model.SettingBriefEnabled] == "false" {
		return nil
	}
	hour, err := strconv.Atoi(settings[model.SettingBriefHour])
	if err != nil {
		hour = 7
	}
	loc, err := time.LoadLocation(settings[model.SettingTimezone])
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	if local.Hour() != hour {
		return nil
	}

	date := local.Format(model.DateLayout)
	b, err := s.briefs.DailyBrief(ctx, householdID, date)
	if err != nil {
		return err
	}
	claimed, err := s.st.Push.RecordSent(ctx, householdID, model.NotifTypeDailyBrief, "brief-"+date)
	if err != nil || !claimed {
		return err
	}
	s.service.Notify(ctx, householdID, nil, model.NotifTypeDailyBrief, Payload{
		Title: "Your daily brief",
		Body:  b.Summary(),
		URL:   "/",
		Tag:   "daily-brief",
	})
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
