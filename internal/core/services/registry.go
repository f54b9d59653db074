package services

import (
	"sync"
	"time"

	"desklink/internal/core/domain"
)

// SessionRegistry aggregates per-session counters in memory. The health
// endpoint and the metrics exporter both read from it.
type SessionRegistry struct {
	mu sync.RWMutex

	sessionID domain.SessionID

	linksByState map[domain.LinkState]int
	latestScores map[domain.ParticipantID]int

	framesRouted       uint64
	framesDropped      uint64
	transfersCompleted uint64
	transfersFailed    uint64
	transfersEvicted   uint64
	transferBytes      uint64
	presetChanges      uint64
}

func NewSessionRegistry(sessionID domain.SessionID) *SessionRegistry {
	return &SessionRegistry{
		sessionID:    sessionID,
		linksByState: make(map[domain.LinkState]int),
		latestScores: make(map[domain.ParticipantID]int),
	}
}

// LinkOpened records a fresh link entering the table.
func (r *SessionRegistry) LinkOpened() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.linksByState[domain.LinkStateNew]++
}

// LinkStateMoved records a state transition for an existing link.
func (r *SessionRegistry) LinkStateMoved(prev, cur domain.LinkState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.linksByState[prev] > 0 {
		r.linksByState[prev]--
	}
	r.linksByState[cur]++
}

// LinkRemoved records a link leaving the table from the given state.
func (r *SessionRegistry) LinkRemoved(remoteID domain.ParticipantID, state domain.LinkState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.linksByState[state] > 0 {
		r.linksByState[state]--
	}
	delete(r.latestScores, remoteID)
}

func (r *SessionRegistry) FrameRouted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.framesRouted++
}

func (r *SessionRegistry) FrameDropped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.framesDropped++
}

func (r *SessionRegistry) QualityScored(remoteID domain.ParticipantID, score int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latestScores[remoteID] = score
}

func (r *SessionRegistry) PresetChanged() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presetChanges++
}

func (r *SessionRegistry) TransferCompleted(bytes int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfersCompleted++
	if bytes > 0 {
		r.transferBytes += uint64(bytes)
	}
}

func (r *SessionRegistry) TransferFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfersFailed++
}

func (r *SessionRegistry) TransfersEvicted(count int) {
	if count <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transfersEvicted += uint64(count)
}

// Snapshot copies the aggregate state at one instant.
func (r *SessionRegistry) Snapshot() domain.SessionMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byState := make(map[domain.LinkState]int, len(r.linksByState))
	total := 0
	for state, n := range r.linksByState {
		if n == 0 {
			continue
		}
		byState[state] = n
		total += n
	}

	avg := 0.0
	if len(r.latestScores) > 0 {
		sum := 0
		for _, s := range r.latestScores {
			sum += s
		}
		avg = float64(sum) / float64(len(r.latestScores))
	}

	connected := byState[domain.LinkStateConnected]

	return domain.SessionMetrics{
		SessionID:          r.sessionID,
		LinksByState:       byState,
		ConnectedLinks:     connected,
		FramesRouted:       r.framesRouted,
		FramesDropped:      r.framesDropped,
		TransfersCompleted: r.transfersCompleted,
		TransfersFailed:    r.transfersFailed,
		TransfersEvicted:   r.transfersEvicted,
		TransferBytes:      r.transferBytes,
		PresetChanges:      r.presetChanges,
		AverageScore:       avg,
		HealthScore:        healthScore(total, connected, avg),
		Timestamp:          time.Now(),
	}
}

// healthScore blends link availability with measured quality. A session
// with no links is healthy but idle.
func healthScore(total, connected int, avgQuality float64) float64 {
	if total == 0 {
		return 100.0
	}

	availability := float64(connected) / float64(total) * 60.0
	quality := 0.0
	if connected > 0 {
		quality = avgQuality / 100.0 * 40.0
	}

	score := availability + quality
	if score > 100.0 {
		return 100.0
	}
	return score
}
