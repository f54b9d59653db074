package ports

import (
	"context"

	"desklink/internal/core/domain"
)

// LinkManager drives negotiation with remote participants and owns the
// per-remote link table.
type LinkManager interface {
	Connect(ctx context.Context, remoteID domain.ParticipantID) error
	Disconnect(ctx context.Context, remoteID domain.ParticipantID) error
	Links() []domain.LinkSnapshot
	Link(remoteID domain.ParticipantID) (domain.LinkSnapshot, error)
	SendControl(ctx context.Context, remoteID domain.ParticipantID, msg domain.ControlMessage) error
	ApplyPreset(ctx context.Context, remoteID domain.ParticipantID, preset domain.QualityPreset) error
	NoteAutoAdjust(remoteID domain.ParticipantID, enabled bool)
}
