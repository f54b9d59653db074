package services

import (
	"context"
	"time"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"

	"go.uber.org/zap"
)

// Roster keeps the session membership view in the directory and reacts
// to presence events from the relay.
type Roster struct {
	directory ports.SessionDirectory
	logger    *zap.SugaredLogger

	onJoined []func(*domain.Participant)
	onLeft   []func(domain.SessionID, domain.ParticipantID)
}

func NewRoster(directory ports.SessionDirectory, logger *zap.SugaredLogger) *Roster {
	return &Roster{
		directory: directory,
		logger:    logger,
	}
}

// OnJoined registers a callback for participants entering the session.
// Register callbacks before presence events start flowing.
func (r *Roster) OnJoined(fn func(*domain.Participant)) {
	r.onJoined = append(r.onJoined, fn)
}

// OnLeft registers a callback for participants leaving the session.
func (r *Roster) OnLeft(fn func(domain.SessionID, domain.ParticipantID)) {
	r.onLeft = append(r.onLeft, fn)
}

func (r *Roster) Join(ctx context.Context, participant *domain.Participant) error {
	if participant.JoinedAt.IsZero() {
		participant.JoinedAt = time.Now()
	}
	participant.LastSeen = participant.JoinedAt

	if err := r.directory.Register(ctx, participant); err != nil {
		return err
	}

	r.logger.Infow("participant joined",
		"session_id", participant.SessionID,
		"participant_id", participant.ID,
		"role", participant.Role,
	)
	for _, fn := range r.onJoined {
		fn(participant)
	}
	return nil
}

func (r *Roster) Leave(ctx context.Context, sessionID domain.SessionID, id domain.ParticipantID) error {
	if err := r.directory.Deregister(ctx, sessionID, id); err != nil {
		return err
	}

	r.logger.Infow("participant left",
		"session_id", sessionID,
		"participant_id", id,
	)
	for _, fn := range r.onLeft {
		fn(sessionID, id)
	}
	return nil
}

func (r *Roster) Members(ctx context.Context, sessionID domain.SessionID) ([]*domain.Participant, error) {
	return r.directory.Members(ctx, sessionID)
}

// HandlePresence applies one relay presence event to the roster.
func (r *Roster) HandlePresence(ctx context.Context, event domain.PresenceEvent) error {
	switch event.Status {
	case domain.PresenceJoined:
		p := event.Participant
		return r.Join(ctx, &p)
	case domain.PresenceLeft:
		return r.Leave(ctx, event.Participant.SessionID, event.Participant.ID)
	default:
		r.logger.Warnw("ignoring presence event with unknown status",
			"status", event.Status,
			"participant_id", event.Participant.ID,
		)
		return nil
	}
}
