package services

import (
	"context"
	"sync"
	"time"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"

	"go.uber.org/zap"
)

// QualityMonitor samples transport counters for each tracked link,
// scores them, and emits category changes.
type QualityMonitor struct {
	provider ports.StatsProvider
	logger   *zap.SugaredLogger

	mu    sync.RWMutex
	links map[domain.ParticipantID]*trackedLink

	sampleInterval time.Duration
	windowSize     int

	onUpdate []func(domain.QualityMetrics)
	onChange []func(domain.QualityChange)

	nowFn func() time.Time
}

type trackedLink struct {
	prev        domain.TransportCounters
	hasPrev     bool
	window      []domain.QualityMetrics
	category    domain.QualityCategory
	categorized bool
	cancel      context.CancelFunc
}

func NewQualityMonitor(provider ports.StatsProvider, sampleInterval time.Duration, windowSize int, logger *zap.SugaredLogger) *QualityMonitor {
	if sampleInterval <= 0 {
		sampleInterval = time.Second
	}
	if windowSize <= 0 {
		windowSize = 10
	}
	return &QualityMonitor{
		provider:       provider,
		logger:         logger,
		links:          make(map[domain.ParticipantID]*trackedLink),
		sampleInterval: sampleInterval,
		windowSize:     windowSize,
		nowFn:          time.Now,
	}
}

// OnUpdate registers a callback for every scored sample. Register
// callbacks before the first Track call.
func (m *QualityMonitor) OnUpdate(fn func(domain.QualityMetrics)) {
	m.onUpdate = append(m.onUpdate, fn)
}

// OnCategoryChange registers a callback for windowed category
// transitions, including the first categorization of a link.
func (m *QualityMonitor) OnCategoryChange(fn func(domain.QualityChange)) {
	m.onChange = append(m.onChange, fn)
}

// Track starts periodic sampling for a link. Tracking an already
// tracked link restarts its window.
func (m *QualityMonitor) Track(ctx context.Context, remoteID domain.ParticipantID) {
	linkCtx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	if existing, ok := m.links[remoteID]; ok && existing.cancel != nil {
		existing.cancel()
	}
	m.links[remoteID] = &trackedLink{cancel: cancel}
	m.mu.Unlock()

	go m.sampleLoop(linkCtx, remoteID)
}

func (m *QualityMonitor) Untrack(remoteID domain.ParticipantID) {
	m.mu.Lock()
	link, ok := m.links[remoteID]
	if ok {
		delete(m.links, remoteID)
	}
	m.mu.Unlock()

	if ok && link.cancel != nil {
		link.cancel()
	}
}

func (m *QualityMonitor) sampleLoop(ctx context.Context, remoteID domain.ParticipantID) {
	ticker := time.NewTicker(m.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sample(ctx, remoteID)
		}
	}
}

// Sample performs one sampling step: read counters, derive the interval
// stats, score them, and roll the window. The first reading after Track
// only establishes the baseline.
func (m *QualityMonitor) Sample(ctx context.Context, remoteID domain.ParticipantID) {
	counters, err := m.provider.Counters(ctx, remoteID)
	if err != nil {
		m.logger.Debugw("skipping quality sample", "remote_id", remoteID, "error", err)
		return
	}
	if counters.Timestamp.IsZero() {
		counters.Timestamp = m.nowFn()
	}

	m.mu.Lock()
	link, ok := m.links[remoteID]
	if !ok {
		m.mu.Unlock()
		return
	}

	if !link.hasPrev {
		link.prev = counters
		link.hasPrev = true
		m.mu.Unlock()
		return
	}

	stats := deriveStats(link.prev, counters)
	link.prev = counters

	score, issues := ScoreSample(stats)
	metrics := domain.QualityMetrics{
		RemoteID:  remoteID,
		Score:     score,
		Category:  domain.CategoryForScore(score),
		Issues:    issues,
		Stats:     stats,
		SampledAt: counters.Timestamp,
	}

	link.window = append(link.window, metrics)
	if len(link.window) > m.windowSize {
		link.window = link.window[len(link.window)-m.windowSize:]
	}

	// The change event keys on the tick's own category against the
	// previous tick's. The first categorization sets the baseline
	// silently.
	var change *domain.QualityChange
	if link.categorized && metrics.Category != link.category {
		change = &domain.QualityChange{
			RemoteID: remoteID,
			Previous: link.category,
			Current:  metrics.Category,
			Metrics:  metrics,
		}
	}
	link.category = metrics.Category
	link.categorized = true
	m.mu.Unlock()

	for _, fn := range m.onUpdate {
		fn(metrics)
	}
	if change != nil {
		m.logger.Infow("link quality category changed",
			"remote_id", remoteID,
			"from", change.Previous,
			"to", change.Current,
			"score", score,
			"packet_loss", stats.PacketLossRate,
			"rtt_ms", stats.RTTSec*1000,
		)
		for _, fn := range m.onChange {
			fn(*change)
		}
	}
}

// Latest returns the most recent sample for a link.
func (m *QualityMonitor) Latest(remoteID domain.ParticipantID) (domain.QualityMetrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.links[remoteID]
	if !ok || len(link.window) == 0 {
		return domain.QualityMetrics{}, false
	}
	return link.window[len(link.window)-1], true
}

// History returns a copy of the current sample window, oldest first.
func (m *QualityMonitor) History(remoteID domain.ParticipantID) ([]domain.QualityMetrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.links[remoteID]
	if !ok {
		return nil, domain.ErrLinkNotFound
	}
	history := make([]domain.QualityMetrics, len(link.window))
	copy(history, link.window)
	return history, nil
}

// Category returns the category of the latest tick for a link.
func (m *QualityMonitor) Category(remoteID domain.ParticipantID) (domain.QualityCategory, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.links[remoteID]
	if !ok || !link.categorized {
		return "", false
	}
	return link.category, true
}

// WindowedScore averages the retained sample window, smoothing over
// single-tick spikes.
func (m *QualityMonitor) WindowedScore(remoteID domain.ParticipantID) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	link, ok := m.links[remoteID]
	if !ok || len(link.window) == 0 {
		return 0, false
	}
	return windowScore(link.window), true
}

// ScoreSample scores one interval sample, starting at 100 and deducting
// per degraded dimension. Returns the clamped score and the issues that
// contributed.
func ScoreSample(stats domain.NetworkStats) (int, []string) {
	score := 100
	var issues []string

	switch {
	case stats.PacketLossRate > 0.05:
		score -= 40
		issues = append(issues, "severe packet loss")
	case stats.PacketLossRate > 0.02:
		score -= 20
		issues = append(issues, "high packet loss")
	case stats.PacketLossRate > 0.005:
		score -= 10
		issues = append(issues, "packet loss")
	}

	switch {
	case stats.RTTSec > 0.300:
		score -= 30
		issues = append(issues, "very high latency")
	case stats.RTTSec > 0.150:
		score -= 15
		issues = append(issues, "high latency")
	case stats.RTTSec > 0.100:
		score -= 5
		issues = append(issues, "elevated latency")
	}

	switch {
	case stats.JitterSec > 0.050:
		score -= 20
		issues = append(issues, "severe jitter")
	case stats.JitterSec > 0.030:
		score -= 10
		issues = append(issues, "jitter")
	}

	if stats.BandwidthBps > 0 && stats.BandwidthBps < 500_000 {
		score -= 10
		issues = append(issues, "low bandwidth")
	}

	if score < 0 {
		score = 0
	}
	return score, issues
}

// deriveStats turns two cumulative readings into one interval sample.
// Counter regressions, which RTCP reports permit, clamp to zero.
func deriveStats(prev, cur domain.TransportCounters) domain.NetworkStats {
	stats := domain.NetworkStats{
		BytesSent:       cur.BytesSent,
		BytesReceived:   cur.BytesReceived,
		PacketsReceived: cur.PacketsReceived,
		PacketsLost:     cur.PacketsLost,
		JitterSec:       cur.JitterSec,
		RTTSec:          cur.RTTSec,
		Timestamp:       cur.Timestamp,
	}

	received := counterDelta(cur.PacketsReceived, prev.PacketsReceived)
	lost := counterDelta(cur.PacketsLost, prev.PacketsLost)
	if received+lost > 0 {
		stats.PacketLossRate = float64(lost) / float64(received+lost)
	}

	elapsed := cur.Timestamp.Sub(prev.Timestamp).Seconds()
	if elapsed > 0 {
		sent := counterDelta(cur.BytesSent, prev.BytesSent)
		recv := counterDelta(cur.BytesReceived, prev.BytesReceived)
		stats.BandwidthBps = float64(sent+recv) * 8 / elapsed
	}

	return stats
}

func counterDelta(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

func windowScore(window []domain.QualityMetrics) int {
	if len(window) == 0 {
		return 0
	}
	sum := 0
	for _, m := range window {
		sum += m.Score
	}
	return sum / len(window)
}
