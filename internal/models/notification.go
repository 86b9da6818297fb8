package models

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotifyApplicationOpen   NotificationType = "application_open"
	NotifyApplicationClosed NotificationType = "application_closed"
	NotifyDeadlineUpdate    NotificationType = "deadline_update"
	NotifyWebsiteUpdate     NotificationType = "website_update"
	NotifyDeadlineReminder  NotificationType = "deadline_reminder"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
	NotificationRead    NotificationStatus = "read"
)

type DeliveryMethod string

const (
	DeliveryEmail DeliveryMethod = "email"
	DeliveryPush  DeliveryMethod = "push"
)

type Notification struct {
	ID             uuid.UUID            `json:"id"`
	UserID         uuid.UUID            `json:"user_id"`
	SchoolNo       string               `json:"school_no"`
	SchoolName     string               `json:"school_name"`
	Type           NotificationType     `json:"type"`
	Title          string               `json:"title"`
	Message        string               `json:"message"`
	Priority       Priority             `json:"priority"`
	Status         NotificationStatus   `json:"status"`
	DeliveryMethod []DeliveryMethod     `json:"delivery_method"`
	Metadata       NotificationMetadata `json:"metadata"`
	SentAt         *time.Time           `json:"sent_at,omitempty"`
	ReadAt         *time.Time           `json:"read_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

type NotificationMetadata struct {
	WebsiteURL     string       `json:"website_url,omitempty"`
	ChangeDetected string       `json:"change_detected,omitempty"`
	Status         WindowStatus `json:"status,omitempty"`
	Deadline       *time.Time   `json:"deadline,omitempty"`
	Requirements   []string     `json:"requirements,omitempty"`
	Confidence     float64      `json:"confidence,omitempty"`
}
