package ports

import (
	"context"

	"desklink/internal/core/domain"
)

// SessionDirectory tracks which participants belong to which session.
// Implementations back it with redis or process memory.
type SessionDirectory interface {
	Register(ctx context.Context, participant *domain.Participant) error
	Deregister(ctx context.Context, sessionID domain.SessionID, id domain.ParticipantID) error
	Get(ctx context.Context, sessionID domain.SessionID, id domain.ParticipantID) (*domain.Participant, error)
	Members(ctx context.Context, sessionID domain.SessionID) ([]*domain.Participant, error)
	Sessions(ctx context.Context) ([]domain.SessionID, error)
	Touch(ctx context.Context, sessionID domain.SessionID, id domain.ParticipantID) error
}
