package chat

import (
	"strings"
	"time"

	"github.com/telecare/platform/internal/shared/auth"
	"github.com/telecare/platform/internal/shared/errors"
	"github.com/telecare/platform/internal/shared/types"
)

// Kind distinguishes typed messages from transcription fragments and
// system notices
type Kind string

const (
	KindText          Kind = "text"
	KindTranscription Kind = "transcription"
	KindSystem        Kind = "system"
)

// ValidKind reports whether k names a known message kind
func ValidKind(k Kind) bool {
	switch k {
	case KindText, KindTranscription, KindSystem:
		return true
	}
	return false
}

// Message is one chat message. Body is PHI: encrypted in storage, plaintext
// in flight. The server-assigned ID is the identity clients de-duplicate on.
type Message struct {
	ID             types.ID  `json:"id"`
	ConsultationID types.ID  `json:"consultationId"`
	SenderID       types.ID  `json:"senderId"`
	SenderRole     auth.Role `json:"senderRole"`
	SenderName     string    `json:"senderName"`
	Kind           Kind      `json:"kind"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sentAt"`
}

// New creates a message with a server-assigned ID and timestamp
func New(consultationID types.ID, sender *auth.Principal, kind Kind, body string) (*Message, error) {
	if kind == "" {
		kind = KindText
	}
	if !ValidKind(kind) {
		return nil, errors.Validation("unknown message kind", map[string]string{"kind": string(kind)})
	}
	if strings.TrimSpace(body) == "" {
		return nil, errors.Validation("message body is empty", nil)
	}

	return &Message{
		ID:             types.NewID(),
		ConsultationID: consultationID,
		SenderID:       sender.ID,
		SenderRole:     sender.Role,
		SenderName:     sender.Name,
		Kind:           kind,
		Body:           body,
		SentAt:         time.Now().UTC(),
	}, nil
}
