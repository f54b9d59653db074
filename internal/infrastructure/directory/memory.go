package directory

import (
	"context"
	"sort"
	"sync"
	"time"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"
)

// MemoryDirectory keeps session membership in process memory. Single
// relay deployments need nothing more.
type MemoryDirectory struct {
	sessions map[domain.SessionID]map[domain.ParticipantID]*domain.Participant
	mu       sync.RWMutex
}

func NewMemoryDirectory() ports.SessionDirectory {
	return &MemoryDirectory{
		sessions: make(map[domain.SessionID]map[domain.ParticipantID]*domain.Participant),
	}
}

// Register upserts a participant. Re-registering after a reconnect
// replaces the previous record.
func (d *MemoryDirectory) Register(ctx context.Context, participant *domain.Participant) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	session, ok := d.sessions[participant.SessionID]
	if !ok {
		session = make(map[domain.ParticipantID]*domain.Participant)
		d.sessions[participant.SessionID] = session
	}
	stored := *participant
	if stored.LastSeen.IsZero() {
		stored.LastSeen = time.Now()
	}
	session[participant.ID] = &stored
	return nil
}

func (d *MemoryDirectory) Deregister(ctx context.Context, sessionID domain.SessionID, id domain.ParticipantID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	session, ok := d.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if _, ok := session[id]; !ok {
		return domain.ErrParticipantNotFound
	}
	delete(session, id)
	if len(session) == 0 {
		delete(d.sessions, sessionID)
	}
	return nil
}

func (d *MemoryDirectory) Get(ctx context.Context, sessionID domain.SessionID, id domain.ParticipantID) (*domain.Participant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	session, ok := d.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	participant, ok := session[id]
	if !ok {
		return nil, domain.ErrParticipantNotFound
	}
	copied := *participant
	return &copied, nil
}

// Members lists a session's participants ordered by ID. An unknown
// session is just empty.
func (d *MemoryDirectory) Members(ctx context.Context, sessionID domain.SessionID) ([]*domain.Participant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	session := d.sessions[sessionID]
	members := make([]*domain.Participant, 0, len(session))
	for _, participant := range session {
		copied := *participant
		members = append(members, &copied)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members, nil
}

func (d *MemoryDirectory) Sessions(ctx context.Context) ([]domain.SessionID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := make([]domain.SessionID, 0, len(d.sessions))
	for id := range d.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (d *MemoryDirectory) Touch(ctx context.Context, sessionID domain.SessionID, id domain.ParticipantID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	session, ok := d.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	participant, ok := session[id]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	participant.LastSeen = time.Now()
	return nil
}
