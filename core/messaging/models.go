package messaging

import (
	"time"

	"github.com/databayt/hogwarts-sub013/core"
)

type Participant struct {
	UserID     string     `json:"user_id"`
	Name       string     `json:"name"`
	LastReadAt *time.Time `json:"last_read_at"`
}

type Conversation struct {
	ID           string        `json:"id"`
	SchoolID     string        `json:"school_id"`
	Subject      string        `json:"subject"`
	CreatedBy    string        `json:"created_by"`
	Participants []Participant `json:"participants"`
	UnreadCount  int           `json:"unread_count"`
	LastMessage  *Message      `json:"last_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"` // time of the last message
}

func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

type Message struct {
	ID             string    `json:"id"`
	SchoolID       string    `json:"school_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

type NewConversation struct {
	Subject        string   `json:"subject" validate:"required,max=200"`
	ParticipantIDs []string `json:"participant_ids" validate:"required,min=1,dive,uuid"`
	Body           string   `json:"body" validate:"required,max=5000"`
}

func (nc *NewConversation) Validate() error {
	nc.Subject = core.CleanString(nc.Subject)
	nc.Body = core.CleanString(nc.Body)
	for i := range nc.ParticipantIDs {
		nc.ParticipantIDs[i] = core.CleanString(nc.ParticipantIDs[i])
	}
	return core.Validate.Struct(nc)
}

type NewMessage struct {
	Body string `json:"body" validate:"required,max=5000"`
}

func (nm *NewMessage) Validate() error {
	nm.Body = core.CleanString(nm.Body)
	return core.Validate.Struct(nm)
}

// preview shortens a message body for notifications.
func preview(body string) string {
	const limit = 140
	r := []rune(body)
	if len(r) <= limit {
		return body
	}
	return string(r[:limit-3]) + "..."
}
