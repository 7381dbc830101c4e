package models

import "github.com/google/uuid"

// newID builds a prefixed identifier: prefix + "_" + 12 hex chars.
func newID(prefix string) string {
	u := uuid.New()
	hex := make([]byte, 0, 12)
	const digits = "0123456789abcdef"
	for _, b := range u[:6] {
		hex = append(hex, digits[b>>4], digits[b&0x0f])
	}
	return prefix + "_" + string(hex)
}

// NewDocumentID returns a fresh document identifier.
func NewDocumentID() string { return newID("doc") }

// NewGraphID returns a fresh graph identifier.
func NewGraphID() string { return newID("graph") }

// NewEntityID returns a fresh entity identifier.
func NewEntityID() string { return newID("ent") }

// NewEdgeID returns a fresh edge identifier.
func NewEdgeID() string { return newID("edge") }

// NewRiskID returns a fresh risk identifier.
func NewRiskID() string { return newID("risk") }

// NewJobID returns a fresh extraction-job identifier.
func NewJobID() string { return newID("job") }

// NewSessionID returns a fresh chat-session identifier.
func NewSessionID() string { return newID("session") }

// NewMessageID returns a fresh chat-message identifier.
func NewMessageID() string { return newID("msg") }
