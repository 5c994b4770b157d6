package types

import "time"

// DefaultTopic is the label recorded when no topic was selected.
const DefaultTopic = "General"

// SessionTicket is issued by POST /api/conversation.
type SessionTicket struct {
	SessionID   string `json:"conversationId"`
	StreamToken string `json:"sessionToken"`
	Voice       string `json:"voice,omitempty"`
	UserName    string `json:"userName,omitempty"`
	UserAge     int    `json:"userAge,omitempty"`
}

// OutcomeRequest is the body for PATCH /api/conversation/{id}/end.
type OutcomeRequest struct {
	DurationMinutes int    `json:"durationMinutes"`
	Topic           string `json:"topic"`
	PointsEarned    int    `json:"pointsEarned"`
}

// Conversation is the durable record of one tutoring session.
type Conversation struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Topic           string     `json:"topic,omitempty"`
	DurationMinutes int        `json:"durationMinutes"`
	PointsEarned    int        `json:"pointsEarned"`
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
}

// Ended reports whether an outcome has been recorded.
func (c Conversation) Ended() bool {
	return c.EndedAt != nil
}

// ConversationResponse is the envelope for PATCH /api/conversation/{id}/end.
type ConversationResponse struct {
	Conversation Conversation `json:"conversation"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// ConversationPage is the response for GET /api/conversations.
type ConversationPage struct {
	Conversations []Conversation `json:"conversations"`
	Pagination    Pagination     `json:"pagination"`
}
