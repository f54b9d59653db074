package domain

import "encoding/json"

type EnvelopeType string

const (
	EnvelopeOffer    EnvelopeType = "offer"
	EnvelopeAnswer   EnvelopeType = "answer"
	EnvelopeICE      EnvelopeType = "ice"
	EnvelopePresence EnvelopeType = "presence"
	EnvelopeRoster   EnvelopeType = "roster"
	EnvelopeError    EnvelopeType = "error"
)

// SignalEnvelope is the relay wire format. The relay routes on
// recipient_id without inspecting the payload.
type SignalEnvelope struct {
	Type        EnvelopeType    `json:"type"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	SenderID    ParticipantID   `json:"sender_id,omitempty"`
	RecipientID ParticipantID   `json:"recipient_id,omitempty"`
}

type PresencePayload struct {
	ParticipantID ParticipantID  `json:"participant_id"`
	SessionID     SessionID      `json:"session_id"`
	Role          Role           `json:"role"`
	Status        PresenceStatus `json:"status"`
}

type SessionMember struct {
	ParticipantID ParticipantID `json:"participant_id"`
	Role          Role          `json:"role"`
}

type RosterPayload struct {
	SessionID SessionID       `json:"session_id"`
	Members   []SessionMember `json:"members"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
