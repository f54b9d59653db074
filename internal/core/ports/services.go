package ports

import (
	"context"

	"desklink/internal/core/domain"
)

// ConnectionService is the operations surface the local API exposes over
// the link table.
type ConnectionService interface {
	Connect(ctx context.Context, remoteID domain.ParticipantID) error
	Disconnect(ctx context.Context, remoteID domain.ParticipantID) error
	Links(ctx context.Context) []domain.LinkSnapshot
	Link(ctx context.Context, remoteID domain.ParticipantID) (domain.LinkSnapshot, error)
	SetPreset(ctx context.Context, remoteID domain.ParticipantID, name domain.PresetName) error
	ForcePreset(ctx context.Context, remoteID domain.ParticipantID, name domain.PresetName) error
	SetAutoAdjust(ctx context.Context, remoteID domain.ParticipantID, enabled bool) error
	SendFile(ctx context.Context, remoteID domain.ParticipantID, file domain.OutgoingFile) (string, error)
	SendClipboard(ctx context.Context, content string) error
	QualityHistory(ctx context.Context, remoteID domain.ParticipantID) ([]domain.QualityMetrics, error)
	ActiveTransfers(ctx context.Context) []domain.TransferProgress
}

// ControlToggles flips remote input and clipboard sharing at runtime.
type ControlToggles interface {
	SetControlEnabled(enabled bool)
	SetClipboardEnabled(enabled bool)
	ControlEnabled() bool
	ClipboardEnabled() bool
}

// ControlSender pushes one control frame to a connected remote.
type ControlSender interface {
	SendControl(ctx context.Context, remoteID domain.ParticipantID, msg domain.ControlMessage) error
}

type TokenService interface {
	IssueJoinToken(ctx context.Context, sessionID domain.SessionID, participantID domain.ParticipantID, role domain.Role) (string, error)
	ValidateJoinToken(ctx context.Context, token string) (domain.SessionID, domain.ParticipantID, domain.Role, error)
}

type RosterService interface {
	Join(ctx context.Context, participant *domain.Participant) error
	Leave(ctx context.Context, sessionID domain.SessionID, id domain.ParticipantID) error
	Members(ctx context.Context, sessionID domain.SessionID) ([]*domain.Participant, error)
	HandlePresence(ctx context.Context, event domain.PresenceEvent) error
}
