package domain

import "time"

type LinkState string

const (
	LinkStateNew          LinkState = "new"
	LinkStateConnecting   LinkState = "connecting"
	LinkStateConnected    LinkState = "connected"
	LinkStateDisconnected LinkState = "disconnected"
	LinkStateFailed       LinkState = "failed"
	LinkStateClosed       LinkState = "closed"
)

// Terminal reports whether a link in this state will never carry media
// again. Disconnected counts: a remote that wants back in negotiates a
// fresh link rather than resurrecting this one.
func (s LinkState) Terminal() bool {
	return s == LinkStateDisconnected || s == LinkStateFailed || s == LinkStateClosed
}

type QualityIndicator string

const (
	IndicatorOffline   QualityIndicator = "offline"
	IndicatorPoor      QualityIndicator = "poor"
	IndicatorFair      QualityIndicator = "fair"
	IndicatorGood      QualityIndicator = "good"
	IndicatorExcellent QualityIndicator = "excellent"
)

// IndicatorForState gives the coarse indicator for a link before any
// network samples have been collected.
func IndicatorForState(s LinkState) QualityIndicator {
	switch s {
	case LinkStateConnected:
		return IndicatorGood
	case LinkStateNew, LinkStateConnecting:
		return IndicatorFair
	default:
		return IndicatorOffline
	}
}

// IndicatorForCategory maps a measured quality category onto the
// indicator shown for the link.
func IndicatorForCategory(c QualityCategory) QualityIndicator {
	switch c {
	case QualityExcellent:
		return IndicatorExcellent
	case QualityGood:
		return IndicatorGood
	case QualityFair:
		return IndicatorFair
	case QualityPoor:
		return IndicatorPoor
	default:
		return IndicatorOffline
	}
}

type LinkSnapshot struct {
	RemoteID    ParticipantID
	Role        Role
	State       LinkState
	Indicator   QualityIndicator
	Offerer     bool
	Preset      string
	AutoAdjust  bool
	CreatedAt   time.Time
	ConnectedAt time.Time
}

type LinkStateChange struct {
	RemoteID ParticipantID
	Previous LinkState
	Current  LinkState
	At       time.Time
}
