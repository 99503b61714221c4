package model

// Household setting keys.
const (
	SettingTimezone            = "timezone"
	SettingBriefEnabled        = "brief_enabled"
	SettingBriefHour           = "brief_hour"
	SettingCheckinReminderDays = "checkin_reminder_days"
)

// DefaultSettings are seeded for every new household and returned for
// keys that were never written.
var DefaultSettings = map[string]string{
	SettingTimezone:            "UTC",
	SettingBriefEnabled:        "true",
	SettingBriefHour:           "7",
	SettingCheckinReminderDays: "14",
}
