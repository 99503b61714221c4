package model

import "time"

// DateLayout is the format of date-only fields (due dates, check-ins).
const DateLayout = "2006-01-02"

type Goal struct {
	ID              int64     `json:"id"`
	HouseholdID     int64     `json:"household_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	Progress        int       `json:"progress"`
	IsCompleted     bool      `json:"is_completed"`
	TargetDate      string    `json:"target_date"`
	StreakCount     int       `json:"streak_count"`
	BestStreak      int       `json:"best_streak"`
	CompletionCount int       `json:"completion_count"`
	LastCheckinDate string    `json:"last_checkin_date"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Task categories.
const (
	TaskCategoryHousehold = "household"
	TaskCategoryKids      = "kids"
	TaskCategorySelfCare  = "self_care"
	TaskCategoryWork      = "work"
	TaskCategoryErrands   = "errands"
	TaskCategoryHealth    = "health"
	TaskCategoryOther     = "other"
)

var TaskCategories = []string{
	TaskCategoryHousehold,
	TaskCategoryKids,
	TaskCategorySelfCare,
	TaskCategoryWork,
	TaskCategoryErrands,
	TaskCategoryHealth,
	TaskCategoryOther,
}

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

type Task struct {
	ID          int64      `json:"id"`
	HouseholdID int64      `json:"household_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Priority    string     `json:"priority"`
	DueDate     string     `json:"due_date"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	AssignedTo  *int64     `json:"assigned_to"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Event struct {
	ID              int64     `json:"id"`
	HouseholdID     int64     `json:"household_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Location        string    `json:"location"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	AllDay          bool      `json:"all_day"`
	ReminderMinutes *int      `json:"reminder_minutes"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Reminder struct {
	ID          int64      `json:"id"`
	HouseholdID int64      `json:"household_id"`
	Title       string     `json:"title"`
	Notes       string     `json:"notes"`
	RemindAt    time.Time  `json:"remind_at"`
	Completed   bool       `json:"completed"`
	SentAt      *time.Time `json:"sent_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Priority struct {
	ID          int64     `json:"id"`
	HouseholdID int64     `json:"household_id"`
	Title       string    `json:"title"`
	Date        string    `json:"date"`
	SortOrder   int       `json:"sort_order"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
}

type Celebration struct {
	ID             int64     `json:"id"`
	HouseholdID    int64     `json:"household_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Date           string    `json:"date"`
	FamilyMemberID *int64    `json:"family_member_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type ToolkitItem struct {
	ID          int64     `json:"id"`
	HouseholdID int64     `json:"household_id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	IsFavorite  bool      `json:"is_favorite"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
