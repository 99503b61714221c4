package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dukerupert/village/internal/auth"
	"github.com/dukerupert/village/internal/brief"
	"github.com/dukerupert/village/internal/config"
	"github.com/dukerupert/village/internal/email"
	"github.com/dukerupert/village/internal/handler"
	"github.com/dukerupert/village/internal/metrics"
	"github.com/dukerupert/village/internal/middleware"
	"github.com/dukerupert/village/internal/push"
	"github.com/dukerupert/village/internal/storage"
	"github.com/dukerupert/village/internal/store"
	ws "github.com/dukerupert/village/internal/websocket"
)

const (
	authRateLimit  = 10
	authRateWindow = time.Minute
)

type Server struct {
	db             *sql.DB
	hub            *ws.Hub
	authH          *handler.AuthHandler
	familyMemberH  *handler.FamilyMemberHandler
	kidH           *handler.KidHandler
	taskH          *handler.TaskHandler
	goalH          *handler.GoalHandler
	calendarEventH *handler.CalendarEventHandler
	reminderH      *handler.ReminderHandler
	priorityH      *handler.PriorityHandler
	celebrationH   *handler.CelebrationHandler
	briefH         *handler.BriefHandler
	villageH       *handler.VillageHandler
	messageH       *handler.MessageHandler
	toolkitH       *handler.ToolkitHandler
	onboardingH    *handler.OnboardingHandler
	pushH          *handler.PushHandler
	settingsH      *handler.SettingsHandler
	profileH       *handler.ProfileHandler
	sessionStore   *store.SessionStore
	householdStore *store.HouseholdStore
	tokens         *auth.TokenIssuer
	rateLimiter    *middleware.RateLimiter
	clientIP       func(*http.Request) string
	pushService    *push.Service
	pushScheduler  *push.Scheduler
	originPatterns []string
	logger         *slog.Logger
}

func New(db *sql.DB, cfg *config.Config, emailClient *email.Client, avatars *storage.Uploader, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	householdStore := store.NewHouseholdStore(db)
	sessionStore := store.NewSessionStore(db, cfg.Auth.SessionTTL)
	codeStore := store.NewAuthCodeStore(db)
	settingsStore := store.NewSettingsStore(db)

	familyMemberStore := store.NewFamilyMemberStore(db)
	kidStore := store.NewKidStore(db)
	taskStore := store.NewTaskStore(db)
	goalStore := store.NewGoalStore(db)
	eventStore := store.NewEventStore(db)
	reminderStore := store.NewReminderStore(db)
	priorityStore := store.NewPriorityStore(db)
	celebrationStore := store.NewCelebrationStore(db)

	villageMemberStore := store.NewVillageMemberStore(db)
	helpRequestStore := store.NewHelpRequestStore(db)
	logStore := store.NewCommunicationLogStore(db)
	delegationStore := store.NewDelegationStore(db)

	conversationStore := store.NewConversationStore(db)
	toolkitStore := store.NewToolkitStore(db)
	onboardingStore := store.NewOnboardingStore(db)
	pushStore := store.NewPushStore(db)

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)

	briefs := brief.NewService(brief.Stores{
		Tasks:          taskStore,
		Goals:          goalStore,
		Events:         eventStore,
		VillageMembers: villageMemberStore,
		HelpRequests:   helpRequestStore,
		Logs:           logStore,
		Delegations:    delegationStore,
		Priorities:     priorityStore,
		Celebrations:   celebrationStore,
		Settings:       settingsStore,
	})

	pushLogger := logger.With("component", "push")
	pushSvc := push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey, cfg.Push.Subject, pushStore, pushLogger)
	pushSched := push.NewScheduler(pushSvc, push.SchedulerStores{
		Push:       pushStore,
		Reminders:  reminderStore,
		Events:     eventStore,
		Sessions:   sessionStore,
		AuthCodes:  codeStore,
		Households: householdStore,
		Settings:   settingsStore,
	}, briefs, cfg.Scheduler.CleanupAfter, pushLogger.With("job", "scheduler"))

	return &Server{
		db:             db,
		hub:            hub,
		authH:          handler.NewAuthHandler(userStore, householdStore, sessionStore, codeStore, tokens, emailClient, hub, cfg.Auth.CookieSecure, logger.With("component", "auth")),
		familyMemberH:  handler.NewFamilyMemberHandler(familyMemberStore, hub, logger.With("component", "family_member")),
		kidH:           handler.NewKidHandler(kidStore, hub, logger.With("component", "kid")),
		taskH:          handler.NewTaskHandler(taskStore, familyMemberStore, briefs, hub, logger.With("component", "task")),
		goalH:          handler.NewGoalHandler(goalStore, briefs, hub, logger.With("component", "goal")),
		calendarEventH: handler.NewCalendarEventHandler(eventStore, briefs, hub, logger.With("component", "calendar")),
		reminderH:      handler.NewReminderHandler(reminderStore, hub, logger.With("component", "reminder")),
		priorityH:      handler.NewPriorityHandler(priorityStore, briefs, hub, logger.With("component", "priority")),
		celebrationH:   handler.NewCelebrationHandler(celebrationStore, familyMemberStore, hub, logger.With("component", "celebration")),
		briefH:         handler.NewBriefHandler(briefs, logger.With("component", "brief")),
		villageH: handler.NewVillageHandler(villageMemberStore, helpRequestStore, logStore, delegationStore, householdStore,
			emailClient, pushSvc, hub, logger.With("component", "village")),
		messageH:       handler.NewMessageHandler(conversationStore, userStore, pushSvc, hub, logger.With("component", "message")),
		toolkitH:       handler.NewToolkitHandler(toolkitStore, hub, logger.With("component", "toolkit")),
		onboardingH:    handler.NewOnboardingHandler(onboardingStore, logger.With("component", "onboarding")),
		pushH:          handler.NewPushHandler(pushStore, pushSvc, logger.With("component", "push_handler")),
		settingsH:      handler.NewSettingsHandler(settingsStore, householdStore, userStore, hub, logger.With("component", "settings")),
		profileH:       handler.NewProfileHandler(userStore, avatars, hub, logger.With("component", "profile")),
		sessionStore:   sessionStore,
		householdStore: householdStore,
		tokens:         tokens,
		rateLimiter:    middleware.NewRateLimiter(authRateLimit, authRateWindow),
		clientIP:       middleware.ClientIP(cfg.TrustedProxies),
		pushService:    pushSvc,
		pushScheduler:  pushSched,
		originPatterns: originPatterns(cfg),
		logger:         logger,
	}
}

// originPatterns allows websocket upgrades from the configured base URL, and
// from any localhost port in development.
func originPatterns(cfg *config.Config) []string {
	var patterns []string
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
		patterns = append(patterns, u.Host)
	}
	if cfg.IsDevelopment() {
		patterns = append(patterns, "localhost:*", "127.0.0.1:*")
	}
	return patterns
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// PushScheduler returns the reminder and digest scheduler.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushScheduler
}

// Hub returns the realtime hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("GET /health", s.healthHandler)
	outerMux.Handle("GET /metrics", metrics.Handler())
	outerMux.HandleFunc("POST /auth/signup", s.rateLimitedHandler(s.authH.SignUp))
	outerMux.HandleFunc("POST /auth/signin", s.rateLimitedHandler(s.authH.SignIn))
	outerMux.HandleFunc("POST /auth/mfa/verify", s.rateLimitedHandler(s.authH.VerifyMFA))
	outerMux.HandleFunc("POST /auth/invite/accept", s.rateLimitedHandler(s.authH.AcceptInvite))
	outerMux.HandleFunc("POST /auth/password/reset-request", s.rateLimitedHandler(s.authH.RequestPasswordReset))
	outerMux.HandleFunc("POST /auth/password/reset", s.rateLimitedHandler(s.authH.ResetPassword))

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.householdStore, s.tokens)
	outerMux.Handle("/", authMiddleware(metrics.Route(protectedMux)))

	h := metrics.Route(outerMux)
	h = metrics.Instrument(h)
	h = middleware.RequestLogger(s.logger.With("component", "http"))(h)
	return middleware.RequestID(h)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, s.clientIP)
	return rl(h).ServeHTTP
}

func adminOnly(h http.HandlerFunc) http.Handler {
	return middleware.RequireAdmin(h)
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Auth routes that require a session
	mux.HandleFunc("POST /auth/signout", s.authH.SignOut)
	mux.HandleFunc("GET /auth/session", s.authH.Session)
	mux.HandleFunc("POST /auth/token", s.authH.IssueToken)
	mux.HandleFunc("POST /auth/switch", s.authH.SwitchHousehold)
	mux.Handle("POST /auth/invite", adminOnly(s.authH.Invite))
	mux.HandleFunc("POST /auth/mfa/enable", s.authH.EnableMFA)
	mux.HandleFunc("POST /auth/mfa/disable", s.authH.DisableMFA)
	mux.HandleFunc("PUT /auth/password", s.authH.ChangePassword)

	// Family
	mux.HandleFunc("GET /api/family-members", s.familyMemberH.List)
	mux.HandleFunc("POST /api/family-members", s.familyMemberH.Create)
	mux.HandleFunc("PUT /api/family-members/sort", s.familyMemberH.UpdateSortOrder)
	mux.HandleFunc("PUT /api/family-members/{id}", s.familyMemberH.Update)
	mux.HandleFunc("DELETE /api/family-members/{id}", s.familyMemberH.Delete)

	mux.HandleFunc("GET /api/kids", s.kidH.List)
	mux.HandleFunc("POST /api/kids", s.kidH.Create)
	mux.HandleFunc("PUT /api/kids/{id}", s.kidH.Update)
	mux.HandleFunc("DELETE /api/kids/{id}", s.kidH.Delete)

	// Planner
	mux.HandleFunc("GET /api/tasks", s.taskH.List)
	mux.HandleFunc("POST /api/tasks", s.taskH.Create)
	mux.HandleFunc("PUT /api/tasks/{id}", s.taskH.Update)
	mux.HandleFunc("POST /api/tasks/{id}/toggle", s.taskH.Toggle)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.taskH.Delete)

	mux.HandleFunc("GET /api/goals", s.goalH.List)
	mux.HandleFunc("POST /api/goals", s.goalH.Create)
	mux.HandleFunc("GET /api/goals/{id}", s.goalH.Get)
	mux.HandleFunc("PUT /api/goals/{id}", s.goalH.Update)
	mux.HandleFunc("PUT /api/goals/{id}/progress", s.goalH.UpdateProgress)
	mux.HandleFunc("PUT /api/goals/{id}/complete", s.goalH.SetCompleted)
	mux.HandleFunc("POST /api/goals/{id}/checkin", s.goalH.CheckIn)
	mux.HandleFunc("DELETE /api/goals/{id}", s.goalH.Delete)

	mux.HandleFunc("GET /api/events", s.calendarEventH.List)
	mux.HandleFunc("POST /api/events", s.calendarEventH.Create)
	mux.HandleFunc("GET /api/events/{id}", s.calendarEventH.Get)
	mux.HandleFunc("PUT /api/events/{id}", s.calendarEventH.Update)
	mux.HandleFunc("DELETE /api/events/{id}", s.calendarEventH.Delete)

	mux.HandleFunc("GET /api/reminders", s.reminderH.List)
	mux.HandleFunc("POST /api/reminders", s.reminderH.Create)
	mux.HandleFunc("PUT /api/reminders/{id}", s.reminderH.Update)
	mux.HandleFunc("POST /api/reminders/{id}/complete", s.reminderH.Complete)
	mux.HandleFunc("DELETE /api/reminders/{id}", s.reminderH.Delete)

	mux.HandleFunc("GET /api/priorities", s.priorityH.List)
	mux.HandleFunc("POST /api/priorities", s.priorityH.Create)
	mux.HandleFunc("PUT /api/priorities/reorder", s.priorityH.Reorder)
	mux.HandleFunc("PUT /api/priorities/{id}", s.priorityH.Update)
	mux.HandleFunc("POST /api/priorities/{id}/toggle", s.priorityH.Toggle)
	mux.HandleFunc("DELETE /api/priorities/{id}", s.priorityH.Delete)

	mux.HandleFunc("GET /api/celebrations", s.celebrationH.List)
	mux.HandleFunc("POST /api/celebrations", s.celebrationH.Create)
	mux.HandleFunc("PUT /api/celebrations/{id}", s.celebrationH.Update)
	mux.HandleFunc("DELETE /api/celebrations/{id}", s.celebrationH.Delete)

	mux.HandleFunc("GET /api/brief", s.briefH.DailyBrief)
	mux.HandleFunc("GET /api/insights", s.briefH.PlannerInsights)

	// Village
	mux.HandleFunc("GET /api/village/overview", s.briefH.VillageOverview)
	mux.HandleFunc("GET /api/village/members", s.villageH.ListMembers)
	mux.HandleFunc("POST /api/village/members", s.villageH.CreateMember)
	mux.HandleFunc("GET /api/village/members/{id}", s.villageH.GetMember)
	mux.HandleFunc("PUT /api/village/members/{id}", s.villageH.UpdateMember)
	mux.HandleFunc("DELETE /api/village/members/{id}", s.villageH.DeleteMember)

	mux.HandleFunc("GET /api/village/help-requests", s.villageH.ListHelpRequests)
	mux.HandleFunc("POST /api/village/help-requests", s.villageH.CreateHelpRequest)
	mux.HandleFunc("PUT /api/village/help-requests/{id}", s.villageH.UpdateHelpRequest)
	mux.HandleFunc("POST /api/village/help-requests/{id}/status", s.villageH.TransitionHelpRequest)
	mux.HandleFunc("DELETE /api/village/help-requests/{id}", s.villageH.DeleteHelpRequest)

	mux.HandleFunc("GET /api/village/logs", s.villageH.ListLogs)
	mux.HandleFunc("POST /api/village/logs", s.villageH.CreateLog)
	mux.HandleFunc("DELETE /api/village/logs/{id}", s.villageH.DeleteLog)

	mux.HandleFunc("GET /api/village/delegations", s.villageH.ListDelegations)
	mux.HandleFunc("POST /api/village/delegations", s.villageH.CreateDelegation)
	mux.HandleFunc("PUT /api/village/delegations/{id}", s.villageH.UpdateDelegation)
	mux.HandleFunc("POST /api/village/delegations/{id}/status", s.villageH.SetDelegationStatus)
	mux.HandleFunc("DELETE /api/village/delegations/{id}", s.villageH.DeleteDelegation)

	// Messaging
	mux.HandleFunc("GET /api/conversations", s.messageH.List)
	mux.HandleFunc("POST /api/conversations", s.messageH.Create)
	mux.HandleFunc("GET /api/conversations/{id}/messages", s.messageH.Messages)
	mux.HandleFunc("POST /api/conversations/{id}/messages", s.messageH.Send)
	mux.HandleFunc("POST /api/conversations/{id}/read", s.messageH.MarkRead)

	// Toolkit
	mux.HandleFunc("GET /api/toolkit", s.toolkitH.List)
	mux.HandleFunc("POST /api/toolkit", s.toolkitH.Create)
	mux.HandleFunc("PUT /api/toolkit/{id}", s.toolkitH.Update)
	mux.HandleFunc("POST /api/toolkit/{id}/favorite", s.toolkitH.ToggleFavorite)
	mux.HandleFunc("DELETE /api/toolkit/{id}", s.toolkitH.Delete)

	// Onboarding
	mux.HandleFunc("GET /api/onboarding", s.onboardingH.Get)
	mux.HandleFunc("POST /api/onboarding/steps/{step}", s.onboardingH.CompleteStep)
	mux.HandleFunc("POST /api/onboarding/skip", s.onboardingH.Skip)

	// Push notifications
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("DELETE /api/push/subscriptions/{id}", s.pushH.Unsubscribe)
	mux.HandleFunc("GET /api/push/preferences", s.pushH.GetPreferences)
	mux.HandleFunc("PUT /api/push/preferences", s.pushH.UpdatePreferences)
	mux.HandleFunc("POST /api/push/test", s.pushH.TestNotification)

	// Settings and profile
	mux.HandleFunc("GET /api/settings", s.settingsH.Get)
	mux.HandleFunc("PUT /api/settings", s.settingsH.Update)
	mux.Handle("PUT /api/household", adminOnly(s.settingsH.UpdateHousehold))
	mux.HandleFunc("GET /api/household/users", s.settingsH.ListUsers)
	mux.HandleFunc("GET /api/profile", s.profileH.Get)
	mux.HandleFunc("PUT /api/profile", s.profileH.Update)
	mux.HandleFunc("POST /api/profile/avatar", s.profileH.UploadAvatar)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.originPatterns, s.logger.With("component", "websocket")))
}
