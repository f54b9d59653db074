package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"desklink/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeStatsProvider struct {
	mu    sync.Mutex
	queue []domain.TransportCounters
	err   error
}

func (f *fakeStatsProvider) Counters(ctx context.Context, remoteID domain.ParticipantID) (domain.TransportCounters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.TransportCounters{}, f.err
	}
	if len(f.queue) == 0 {
		return domain.TransportCounters{}, errors.New("no counters queued")
	}
	c := f.queue[0]
	f.queue = f.queue[1:]
	return c, nil
}

func (f *fakeStatsProvider) push(c domain.TransportCounters) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, c)
}

func TestScoreSample(t *testing.T) {
	tests := []struct {
		name      string
		stats     domain.NetworkStats
		wantScore int
	}{
		{"clean sample", domain.NetworkStats{BandwidthBps: 2_000_000}, 100},
		{"mild loss", domain.NetworkStats{PacketLossRate: 0.01, BandwidthBps: 2_000_000}, 90},
		{"high loss", domain.NetworkStats{PacketLossRate: 0.03, BandwidthBps: 2_000_000}, 80},
		{"severe loss", domain.NetworkStats{PacketLossRate: 0.10, BandwidthBps: 2_000_000}, 60},
		{"elevated rtt", domain.NetworkStats{RTTSec: 0.120, BandwidthBps: 2_000_000}, 95},
		{"high rtt", domain.NetworkStats{RTTSec: 0.200, BandwidthBps: 2_000_000}, 85},
		{"very high rtt", domain.NetworkStats{RTTSec: 0.400, BandwidthBps: 2_000_000}, 70},
		{"jitter", domain.NetworkStats{JitterSec: 0.040, BandwidthBps: 2_000_000}, 90},
		{"severe jitter", domain.NetworkStats{JitterSec: 0.080, BandwidthBps: 2_000_000}, 80},
		{"low bandwidth", domain.NetworkStats{BandwidthBps: 300_000}, 90},
		{"no bandwidth measured", domain.NetworkStats{}, 100},
		{
			"everything degraded",
			domain.NetworkStats{PacketLossRate: 0.10, RTTSec: 0.400, JitterSec: 0.080, BandwidthBps: 100_000},
			0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, issues := ScoreSample(tt.stats)
			assert.Equal(t, tt.wantScore, score)
			if tt.wantScore == 100 {
				assert.Empty(t, issues)
			} else {
				assert.NotEmpty(t, issues)
			}
		})
	}
}

func TestDeriveStats(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := domain.TransportCounters{
		BytesSent:       1000,
		BytesReceived:   2000,
		PacketsReceived: 100,
		PacketsLost:     0,
		Timestamp:       base,
	}
	cur := domain.TransportCounters{
		BytesSent:       126_000,
		BytesReceived:   127_000,
		PacketsReceived: 190,
		PacketsLost:     10,
		JitterSec:       0.012,
		RTTSec:          0.045,
		Timestamp:       base.Add(2 * time.Second),
	}

	stats := deriveStats(prev, cur)

	assert.InDelta(t, 0.1, stats.PacketLossRate, 1e-9, "10 of 100 interval packets lost")
	assert.InDelta(t, 1_000_000, stats.BandwidthBps, 1e-6, "250000 bytes over 2s is 1 Mbps")
	assert.Equal(t, 0.012, stats.JitterSec)
	assert.Equal(t, 0.045, stats.RTTSec)
}

func TestDeriveStats_CounterRegression(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	prev := domain.TransportCounters{PacketsReceived: 500, PacketsLost: 20, BytesSent: 9000, Timestamp: base}
	cur := domain.TransportCounters{PacketsReceived: 600, PacketsLost: 5, BytesSent: 4000, Timestamp: base.Add(time.Second)}

	stats := deriveStats(prev, cur)

	assert.Zero(t, stats.PacketLossRate)
	assert.Zero(t, stats.BandwidthBps)
}

func counterSeq(base time.Time, step int, lost uint64) domain.TransportCounters {
	return domain.TransportCounters{
		BytesSent:       uint64(step) * 200_000,
		BytesReceived:   uint64(step) * 50_000,
		PacketsReceived: uint64(step) * 100,
		PacketsLost:     lost,
		Timestamp:       base.Add(time.Duration(step) * time.Second),
	}
}

func TestQualityMonitor_SampleAndWindow(t *testing.T) {
	provider := &fakeStatsProvider{}
	logger := zaptest.NewLogger(t).Sugar()
	monitor := NewQualityMonitor(provider, time.Hour, 3, logger)

	var updates []domain.QualityMetrics
	var changes []domain.QualityChange
	monitor.OnUpdate(func(m domain.QualityMetrics) { updates = append(updates, m) })
	monitor.OnCategoryChange(func(c domain.QualityChange) { changes = append(changes, c) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monitor.Track(ctx, "part_a")

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	provider.push(counterSeq(base, 0, 0))
	monitor.Sample(ctx, "part_a")
	assert.Empty(t, updates, "first reading only establishes the baseline")

	provider.push(counterSeq(base, 1, 0))
	monitor.Sample(ctx, "part_a")
	require.Len(t, updates, 1)
	assert.Equal(t, 100, updates[0].Score)
	assert.Equal(t, domain.QualityExcellent, updates[0].Category)
	assert.Empty(t, changes, "first categorization sets the baseline silently")

	// Sustained severe loss: the category flips once, then later ticks
	// in the same category stay silent.
	lost := uint64(0)
	for step := 2; step <= 4; step++ {
		lost += 30
		provider.push(counterSeq(base, step, lost))
		monitor.Sample(ctx, "part_a")
	}

	require.Len(t, updates, 4)
	history, err := monitor.History("part_a")
	require.NoError(t, err)
	assert.Len(t, history, 3, "window keeps the last three samples")

	require.Len(t, changes, 1)
	assert.Equal(t, domain.QualityExcellent, changes[0].Previous)

	category, ok := monitor.Category("part_a")
	require.True(t, ok)
	assert.Equal(t, changes[0].Current, category)

	avg, ok := monitor.WindowedScore("part_a")
	require.True(t, ok)
	assert.Equal(t, 60, avg, "windowed average over the retained samples")

	latest, ok := monitor.Latest("part_a")
	require.True(t, ok)
	assert.InDelta(t, 0.231, latest.Stats.PacketLossRate, 0.001)
}

func TestQualityMonitor_SingleEventAcrossSameCategoryTicks(t *testing.T) {
	provider := &fakeStatsProvider{}
	monitor := NewQualityMonitor(provider, time.Hour, 10, zaptest.NewLogger(t).Sugar())

	var changes []domain.QualityChange
	monitor.OnCategoryChange(func(c domain.QualityChange) { changes = append(changes, c) })

	ctx := context.Background()
	monitor.Track(ctx, "part_a")

	// Two excellent ticks (95, then 90) followed by a poor one (45):
	// exactly one event, on the transition into poor.
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ticks := []domain.TransportCounters{
		{Timestamp: base},
		{BytesSent: 250_000, PacketsReceived: 100, RTTSec: 0.120, Timestamp: base.Add(1 * time.Second)},
		{BytesSent: 500_000, PacketsReceived: 201, PacketsLost: 1, Timestamp: base.Add(2 * time.Second)},
		{BytesSent: 750_000, PacketsReceived: 301, PacketsLost: 31, RTTSec: 0.200, Timestamp: base.Add(3 * time.Second)},
	}
	for _, counters := range ticks {
		provider.push(counters)
		monitor.Sample(ctx, "part_a")
	}

	require.Len(t, changes, 1, "same-category ticks emit no change event")
	assert.Equal(t, domain.QualityExcellent, changes[0].Previous)
	assert.Equal(t, domain.QualityPoor, changes[0].Current)
	assert.Equal(t, domain.QualityPoor, changes[0].Metrics.Category)
}

func TestQualityMonitor_ProviderErrorSkipsSample(t *testing.T) {
	provider := &fakeStatsProvider{err: errors.New("stats not ready")}
	monitor := NewQualityMonitor(provider, time.Hour, 10, zaptest.NewLogger(t).Sugar())

	var updates int
	monitor.OnUpdate(func(domain.QualityMetrics) { updates++ })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	monitor.Track(ctx, "part_a")
	monitor.Sample(ctx, "part_a")

	assert.Zero(t, updates)
}

func TestQualityMonitor_Untrack(t *testing.T) {
	provider := &fakeStatsProvider{}
	monitor := NewQualityMonitor(provider, time.Hour, 10, zaptest.NewLogger(t).Sugar())

	ctx := context.Background()
	monitor.Track(ctx, "part_a")
	monitor.Untrack("part_a")

	provider.push(domain.TransportCounters{Timestamp: time.Now()})
	monitor.Sample(ctx, "part_a")

	_, err := monitor.History("part_a")
	assert.ErrorIs(t, err, domain.ErrLinkNotFound)

	_, ok := monitor.Latest("part_a")
	assert.False(t, ok)
}
