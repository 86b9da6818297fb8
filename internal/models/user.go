package models

import (
	"time"

	"github.com/google/uuid"
)

type DigestFrequency string

const (
	DigestImmediate DigestFrequency = "immediate"
	DigestDaily     DigestFrequency = "daily"
	DigestWeekly    DigestFrequency = "weekly"
)

type NotificationPreferences struct {
	Email          bool            `json:"email"`
	Push           bool            `json:"push"`
	Frequency      DigestFrequency `json:"frequency"`
	TelegramChatID int64           `json:"telegram_chat_id,omitempty"`
}

func DefaultPreferences() NotificationPreferences {
	return NotificationPreferences{Email: true, Push: true, Frequency: DigestImmediate}
}

type User struct {
	ID          uuid.UUID               `json:"id"`
	Email       string                  `json:"email"`
	Name        string                  `json:"name"`
	Phone       string                  `json:"phone,omitempty"`
	IsActive    bool                    `json:"is_active"`
	Preferences NotificationPreferences `json:"notification_preferences"`
	LastLogin   *time.Time              `json:"last_login,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

type InterestedSchool struct {
	SchoolNo   string    `json:"school_no"`
	SchoolName string    `json:"school_name"`
	AddedAt    time.Time `json:"added_at"`
}

type MonitoringStats struct {
	Total          int            `json:"total"`
	Active         int            `json:"active"`
	Inactive       int            `json:"inactive"`
	TotalErrors    int            `json:"total_errors"`
	TotalSuccess   int            `json:"total_success"`
	AvgErrors      float64        `json:"avg_errors"`
	AvgSuccess     float64        `json:"avg_success"`
	ByFrequency    map[string]int `json:"by_frequency"`
	OpenCount      int            `json:"open_count"`
	ClosedCount    int            `json:"closed_count"`
	RecentActivity []RecentCheck  `json:"recent_activity"`
}

type RecentCheck struct {
	SchoolNo     string     `json:"school_no"`
	SchoolName   string     `json:"school_name"`
	LastChecked  *time.Time `json:"last_checked,omitempty"`
	ErrorCount   int        `json:"error_count"`
	SuccessCount int        `json:"success_count"`
	IsOpen       bool       `json:"is_open"`
}
