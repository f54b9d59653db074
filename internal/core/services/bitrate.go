package services

import (
	"context"
	"sync"
	"time"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"

	"go.uber.org/zap"
)

const (
	moveUp   = 1
	moveDown = -1

	// recentMoves is how many past moves the hunting guard inspects
	// before allowing a step up.
	recentMoves = 3

	presetHistoryLimit = 50
)

// BitrateController walks each link along the preset ladder in response
// to measured quality, one rung at a time.
type BitrateController struct {
	applier ports.PresetApplier
	logger  *zap.SugaredLogger

	mu    sync.Mutex
	links map[domain.ParticipantID]*linkBitrate

	cooldown time.Duration
	onChange []func(domain.PresetChange)

	nowFn func() time.Time
}

type linkBitrate struct {
	rung     int
	auto     bool
	lastMove time.Time
	moves    []int
	history  []domain.PresetChange
}

func NewBitrateController(applier ports.PresetApplier, cooldown time.Duration, logger *zap.SugaredLogger) *BitrateController {
	if cooldown <= 0 {
		cooldown = 5 * time.Second
	}
	return &BitrateController{
		applier:  applier,
		logger:   logger,
		links:    make(map[domain.ParticipantID]*linkBitrate),
		cooldown: cooldown,
		nowFn:    time.Now,
	}
}

// OnPresetChange registers a callback for applied preset moves.
// Register callbacks before the first Track call.
func (b *BitrateController) OnPresetChange(fn func(domain.PresetChange)) {
	b.onChange = append(b.onChange, fn)
}

// Track starts managing a link at the given preset. The initial preset
// is applied by the caller, not by Track.
func (b *BitrateController) Track(remoteID domain.ParticipantID, initial domain.PresetName, auto bool) error {
	rung := domain.PresetIndex(initial)
	if rung < 0 {
		return domain.ErrUnknownPreset
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.links[remoteID] = &linkBitrate{rung: rung, auto: auto, lastMove: b.nowFn()}
	return nil
}

func (b *BitrateController) Untrack(remoteID domain.ParticipantID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.links, remoteID)
}

// Current returns the preset a link is running and whether automatic
// adjustment is on.
func (b *BitrateController) Current(remoteID domain.ParticipantID) (domain.PresetName, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	link, ok := b.links[remoteID]
	if !ok {
		return "", false, domain.ErrLinkNotFound
	}
	return domain.PresetLadder[link.rung].Name, link.auto, nil
}

// SetAuto toggles automatic adjustment for a link.
func (b *BitrateController) SetAuto(remoteID domain.ParticipantID, enabled bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	link, ok := b.links[remoteID]
	if !ok {
		return domain.ErrLinkNotFound
	}
	link.auto = enabled
	return nil
}

// SetPreset applies an operator-chosen preset immediately. Manual moves
// ignore the cooldown but reset it, so the next automatic move waits.
func (b *BitrateController) SetPreset(ctx context.Context, remoteID domain.ParticipantID, name domain.PresetName) error {
	target := domain.PresetIndex(name)
	if target < 0 {
		return domain.ErrUnknownPreset
	}

	b.mu.Lock()
	link, ok := b.links[remoteID]
	if !ok {
		b.mu.Unlock()
		return domain.ErrLinkNotFound
	}
	if link.rung == target {
		b.mu.Unlock()
		return nil
	}
	previous := domain.PresetLadder[link.rung].Name
	direction := moveUp
	if target > link.rung {
		direction = moveDown
	}
	b.mu.Unlock()

	if err := b.applier.ApplyPreset(ctx, remoteID, domain.PresetLadder[target]); err != nil {
		return err
	}

	change := domain.PresetChange{
		RemoteID: remoteID,
		Previous: previous,
		Current:  name,
		Reason:   "manual",
		Manual:   true,
	}

	b.mu.Lock()
	link, ok = b.links[remoteID]
	if ok {
		link.rung = target
		link.lastMove = b.nowFn()
		link.moves = appendMove(link.moves, direction)
		link.history = appendHistory(link.history, change)
	}
	b.mu.Unlock()

	b.notify(change)
	return nil
}

// ForcePreset pins a preset and switches automatic adjustment off. The
// link stays on the pinned preset until SetAuto re-enables adaptation.
func (b *BitrateController) ForcePreset(ctx context.Context, remoteID domain.ParticipantID, name domain.PresetName) error {
	if err := b.SetPreset(ctx, remoteID, name); err != nil {
		return err
	}
	return b.SetAuto(remoteID, false)
}

// HandleQuality is the monitor subscription entry. Each scored sample
// may produce at most one ladder move.
func (b *BitrateController) HandleQuality(ctx context.Context, metrics domain.QualityMetrics) {
	remoteID := metrics.RemoteID

	b.mu.Lock()
	link, ok := b.links[remoteID]
	if !ok || !link.auto {
		b.mu.Unlock()
		return
	}
	if b.nowFn().Sub(link.lastMove) < b.cooldown {
		b.mu.Unlock()
		return
	}

	target := b.targetRung(link.rung, metrics)
	direction := 0
	switch {
	case target > link.rung:
		direction = moveDown
	case target < link.rung:
		direction = moveUp
	}
	if direction == 0 {
		b.mu.Unlock()
		return
	}
	if direction == moveUp && (recentlyMovedDown(link.moves) || metrics.Category == domain.QualityFair || metrics.Category == domain.QualityPoor) {
		b.mu.Unlock()
		return
	}

	next := link.rung + 1
	reason := "congestion"
	if direction == moveUp {
		next = link.rung - 1
		reason = "recovered headroom"
	}
	previous := domain.PresetLadder[link.rung].Name
	b.mu.Unlock()

	if err := b.applier.ApplyPreset(ctx, remoteID, domain.PresetLadder[next]); err != nil {
		b.logger.Warnw("failed to apply preset",
			"remote_id", remoteID,
			"preset", domain.PresetLadder[next].Name,
			"error", err,
		)
		return
	}

	change := domain.PresetChange{
		RemoteID: remoteID,
		Previous: previous,
		Current:  domain.PresetLadder[next].Name,
		Reason:   reason,
	}

	b.mu.Lock()
	link, ok = b.links[remoteID]
	if ok {
		link.rung = next
		link.lastMove = b.nowFn()
		link.moves = appendMove(link.moves, direction)
		link.history = appendHistory(link.history, change)
	}
	b.mu.Unlock()

	b.logger.Infow("preset adjusted",
		"remote_id", remoteID,
		"from", change.Previous,
		"to", change.Current,
		"reason", reason,
		"bandwidth_bps", metrics.Stats.BandwidthBps,
		"score", metrics.Score,
	)
	b.notify(change)
}

// History returns the applied moves for a link, oldest first.
func (b *BitrateController) History(remoteID domain.ParticipantID) ([]domain.PresetChange, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	link, ok := b.links[remoteID]
	if !ok {
		return nil, domain.ErrLinkNotFound
	}
	history := make([]domain.PresetChange, len(link.history))
	copy(history, link.history)
	return history, nil
}

// targetRung picks the rung the link should drift toward. Poor
// quality, or fair quality with flagged issues, forces one rung down
// even when bandwidth alone would allow more.
func (b *BitrateController) targetRung(current int, metrics domain.QualityMetrics) int {
	degraded := metrics.Category == domain.QualityPoor ||
		(metrics.Category == domain.QualityFair && len(metrics.Issues) > 0)
	if degraded {
		if current < len(domain.PresetLadder)-1 {
			return current + 1
		}
		return current
	}

	target := domain.PresetIndex(domain.PresetForBandwidth(metrics.Stats.BandwidthBps).Name)
	if metrics.Category == domain.QualityFair && target < current {
		return current
	}
	return target
}

func (b *BitrateController) notify(change domain.PresetChange) {
	for _, fn := range b.onChange {
		fn(change)
	}
}

func appendMove(moves []int, direction int) []int {
	moves = append(moves, direction)
	if len(moves) > recentMoves {
		moves = moves[len(moves)-recentMoves:]
	}
	return moves
}

func appendHistory(history []domain.PresetChange, change domain.PresetChange) []domain.PresetChange {
	history = append(history, change)
	if len(history) > presetHistoryLimit {
		history = history[len(history)-presetHistoryLimit:]
	}
	return history
}

func recentlyMovedDown(moves []int) bool {
	for _, m := range moves {
		if m == moveDown {
			return true
		}
	}
	return false
}
