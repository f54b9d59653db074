package domain

import "time"

type ParticipantID string
type SessionID string

type Role string

const (
	RoleHost       Role = "host"
	RoleController Role = "controller"
)

type Participant struct {
	ID        ParticipantID
	SessionID SessionID
	Role      Role
	JoinedAt  time.Time
	LastSeen  time.Time
}

type PresenceStatus string

const (
	PresenceJoined PresenceStatus = "joined"
	PresenceLeft   PresenceStatus = "left"
)

type PresenceEvent struct {
	Participant Participant
	Status      PresenceStatus
}
