package model

import "time"

// Notification type constants
const (
	NotifTypeReminderDue   = "reminder_due"
	NotifTypeEventReminder = "event_reminder"
	NotifTypeHelpRequest   = "help_request"
	NotifTypeMessage       = "message"
	NotifTypeDailyBrief    = "daily_brief"
)

var NotificationTypes = []string{
	NotifTypeReminderDue,
	NotifTypeEventReminder,
	NotifTypeHelpRequest,
	NotifTypeMessage,
	NotifTypeDailyBrief,
}

type PushSubscription struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	HouseholdID int64     `json:"household_id"`
	Endpoint    string    `json:"endpoint"`
	P256dhKey   string    `json:"p256dh_key"`
	AuthKey     string    `json:"auth_key"`
	DeviceName  string    `json:"device_name"`
	CreatedAt   time.Time `json:"created_at"`
}

type NotificationPreference struct {
	NotificationType string `json:"notification_type"`
	Enabled          bool   `json:"enabled"`
}
