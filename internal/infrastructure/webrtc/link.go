package webrtc

import (
	"context"
	"sync"
	"time"

	"desklink/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

const (
	controlChannelLabel = "control"

	// Outbound control frames pause while the SCTP buffer sits above
	// maxBufferedAmount and resume once it drains below the threshold.
	maxBufferedAmount       = 4 * 1024 * 1024
	bufferedAmountThreshold = 1 * 1024 * 1024
	bufferedAmountRecheck   = 200 * time.Millisecond

	receiveMTU            = 1500
	defaultVideoClockRate = 90000
)

// Link is one peer connection and its control channel. All fields
// except the channel guts are owned by the manager's event loop.
type Link struct {
	remoteID domain.ParticipantID
	role     domain.Role
	pc       *webrtc.PeerConnection
	offerer  bool

	state       domain.LinkState
	indicator   domain.QualityIndicator
	preset      domain.PresetName
	autoAdjust  bool
	createdAt   time.Time
	connectedAt time.Time

	// Remote candidates that arrived before the remote description.
	pendingCandidates []webrtc.ICECandidateInit

	videoSender *webrtc.RTPSender
	audioSender *webrtc.RTPSender

	channel  *controlChannel
	feedback *rtcpFeedback
}

func newLink(remoteID domain.ParticipantID, pc *webrtc.PeerConnection, offerer bool, preset domain.PresetName, autoAdjust bool) *Link {
	return &Link{
		remoteID:   remoteID,
		pc:         pc,
		offerer:    offerer,
		state:      domain.LinkStateNew,
		indicator:  domain.IndicatorForState(domain.LinkStateNew),
		preset:     preset,
		autoAdjust: autoAdjust,
		createdAt:  time.Now(),
		channel:    &controlChannel{},
		feedback:   &rtcpFeedback{},
	}
}

// setState applies one transition. Terminal states never come back.
func (l *Link) setState(next domain.LinkState) bool {
	if l.state == next || l.state.Terminal() {
		return false
	}
	l.state = next
	if next == domain.LinkStateConnected && l.connectedAt.IsZero() {
		l.connectedAt = time.Now()
	}
	if next != domain.LinkStateConnected {
		l.indicator = domain.IndicatorForState(next)
	} else if l.indicator == domain.IndicatorOffline || l.indicator == domain.IndicatorFair {
		l.indicator = domain.IndicatorForState(next)
	}
	return true
}

func (l *Link) snapshot() domain.LinkSnapshot {
	return domain.LinkSnapshot{
		RemoteID:    l.remoteID,
		Role:        l.role,
		State:       l.state,
		Indicator:   l.indicator,
		Offerer:     l.offerer,
		Preset:      string(l.preset),
		AutoAdjust:  l.autoAdjust,
		CreatedAt:   l.createdAt,
		ConnectedAt: l.connectedAt,
	}
}

// queueCandidate holds a remote candidate until the description lands.
func (l *Link) queueCandidate(c webrtc.ICECandidateInit) {
	l.pendingCandidates = append(l.pendingCandidates, c)
}

// drainCandidates applies candidates queued before the remote
// description was set.
func (l *Link) drainCandidates() []error {
	var errs []error
	for _, c := range l.pendingCandidates {
		if err := l.pc.AddICECandidate(c); err != nil {
			errs = append(errs, err)
		}
	}
	l.pendingCandidates = nil
	return errs
}

func (l *Link) close() {
	l.channel.detach()
	if l.pc != nil {
		_ = l.pc.Close()
	}
}

// controlChannel wraps the data channel so sends can happen off the
// manager loop. The loop attaches and detaches it; senders only read.
type controlChannel struct {
	mu   sync.Mutex
	dc   *webrtc.DataChannel
	open bool
	low  chan struct{}
}

func (c *controlChannel) attach(dc *webrtc.DataChannel) {
	c.mu.Lock()
	c.dc = dc
	c.low = make(chan struct{}, 1)
	c.mu.Unlock()

	dc.SetBufferedAmountLowThreshold(bufferedAmountThreshold)
	dc.OnBufferedAmountLow(func() {
		c.mu.Lock()
		low := c.low
		c.mu.Unlock()
		if low != nil {
			select {
			case low <- struct{}{}:
			default:
			}
		}
	})
}

func (c *controlChannel) setOpen(open bool) {
	c.mu.Lock()
	c.open = open
	c.mu.Unlock()
}

func (c *controlChannel) detach() {
	c.mu.Lock()
	dc := c.dc
	c.dc = nil
	c.open = false
	c.mu.Unlock()

	if dc != nil {
		_ = dc.Close()
	}
}

// send writes one frame, waiting out SCTP backpressure.
func (c *controlChannel) send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	dc, open, low := c.dc, c.open, c.low
	c.mu.Unlock()

	if dc == nil || !open {
		return domain.ErrChannelNotOpen
	}

	for dc.BufferedAmount() > maxBufferedAmount {
		select {
		case <-low:
		case <-time.After(bufferedAmountRecheck):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := dc.Send(data); err != nil {
		return domain.ErrChannelNotOpen
	}
	return nil
}

func (c *controlChannel) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}
