package models

import "time"

// Message modes for the notification audit log
const (
	MessageModeSMS   = "SMS"
	MessageModeEmail = "EMAIL"
)

// UserMessage is one notification attempt, recorded whether or not delivery
// succeeded. Delivered marks provider acceptance, not handset delivery.
type UserMessage struct {
	ID               int       `json:"id"`
	MessageMode      string    `json:"message_mode"`
	MessageRecipient string    `json:"message_recipient"`
	MessageSubject   string    `json:"message_subject,omitempty"`
	MessageBody      string    `json:"message_body"`
	Delivered        bool      `json:"delivered"`
	CreatedAt        time.Time `json:"created_at"`
}
