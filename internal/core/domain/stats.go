package domain

import "time"

// TransportCounters are cumulative counters read from the transport at
// one instant. Rates are derived by differencing consecutive readings.
type TransportCounters struct {
	BytesSent       uint64
	BytesReceived   uint64
	PacketsReceived uint64
	PacketsLost     uint64
	JitterSec       float64
	RTTSec          float64
	Timestamp       time.Time
}

// NetworkStats is one interval sample derived from two counter readings.
type NetworkStats struct {
	BytesSent       uint64
	BytesReceived   uint64
	PacketsReceived uint64
	PacketsLost     uint64
	PacketLossRate  float64
	JitterSec       float64
	RTTSec          float64
	BandwidthBps    float64
	Timestamp       time.Time
}

type QualityCategory string

const (
	QualityExcellent QualityCategory = "excellent"
	QualityGood      QualityCategory = "good"
	QualityFair      QualityCategory = "fair"
	QualityPoor      QualityCategory = "poor"
)

// QualityMetrics is a scored snapshot of link health. Score is 0..100,
// Issues names the deductions that applied.
type QualityMetrics struct {
	RemoteID  ParticipantID
	Score     int
	Category  QualityCategory
	Issues    []string
	Stats     NetworkStats
	SampledAt time.Time
}

type QualityChange struct {
	RemoteID ParticipantID
	Previous QualityCategory
	Current  QualityCategory
	Metrics  QualityMetrics
}

// SessionMetrics is the aggregate view of one agent's session, read by
// the health endpoint and the metrics exporter.
type SessionMetrics struct {
	SessionID          SessionID
	LinksByState       map[LinkState]int
	ConnectedLinks     int
	FramesRouted       uint64
	FramesDropped      uint64
	TransfersCompleted uint64
	TransfersFailed    uint64
	TransfersEvicted   uint64
	TransferBytes      uint64
	PresetChanges      uint64
	AverageScore       float64
	HealthScore        float64
	Timestamp          time.Time
}

// CategoryForScore buckets a 0..100 score into its display category.
func CategoryForScore(score int) QualityCategory {
	switch {
	case score >= 85:
		return QualityExcellent
	case score >= 70:
		return QualityGood
	case score >= 50:
		return QualityFair
	default:
		return QualityPoor
	}
}
