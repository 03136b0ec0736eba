package entity

import "time"

// Notification is a message queued for one recipient about an instance event
type Notification struct {
	ID           int64      `json:"id"`
	InstanceID   int64      `json:"instance_id"`
	EventType    string     `json:"event_type"`
	RecipientID  string     `json:"recipient_id"`
	Message      string     `json:"message"`
	Status       string     `json:"status"`
	Channel      string     `json:"channel"`
	ExternalID   string     `json:"external_id,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Attempts     int        `json:"attempts"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
