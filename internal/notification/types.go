package notification

import (
	"time"
)

// FeedbackType is the device channel a feedback request targets
type FeedbackType string

const (
	FeedbackHaptic       FeedbackType = "haptic"
	FeedbackNotification FeedbackType = "notification"
)

// FeedbackStyle mirrors the platform haptic/notification styles
type FeedbackStyle string

const (
	StyleWarning FeedbackStyle = "Warning"
	StyleError   FeedbackStyle = "Error"
	StyleSuccess FeedbackStyle = "Success"
)

// Status represents feedback delivery status
type Status string

const (
	StatusPending   Status = "pending"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusDropped   Status = "dropped"
)

// Request asks the client platform to play a haptic pattern or show a local
// notification. It never carries user text.
type Request struct {
	ID        string        `json:"id"`
	Type      FeedbackType  `json:"type"`
	Style     FeedbackStyle `json:"style"`
	Title     string        `json:"title,omitempty"`
	Body      string        `json:"body,omitempty"`
	RiskLevel string        `json:"risk_level,omitempty"`
	Status    Status        `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Stats counts processed feedback requests
type Stats struct {
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}
