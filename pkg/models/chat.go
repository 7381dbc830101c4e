package models

import "time"

// ChatSession groups a conversation and the documents attached to it.
type ChatSession struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	DocumentIDs  []string  `json:"document_ids"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// Clone returns a deep copy of the session.
func (s *ChatSession) Clone() *ChatSession {
	out := *s
	out.DocumentIDs = append([]string(nil), s.DocumentIDs...)
	return &out
}

// ChatRole is the author of a chat message.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one message within a session, ordered by CreatedAt.
type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	GraphData *Graph    `json:"graph_data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a deep copy of the message.
func (m *ChatMessage) Clone() *ChatMessage {
	out := *m
	if m.GraphData != nil {
		out.GraphData = m.GraphData.Clone()
	}
	return &out
}
