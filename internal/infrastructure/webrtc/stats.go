package webrtc

import (
	"context"
	"sync"
	"time"

	"desklink/internal/core/domain"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
)

// rtcpFeedback accumulates what the remote reports about the media we
// send it. Receiver reports carry cumulative loss and jitter in RTP
// clock units.
type rtcpFeedback struct {
	mu          sync.Mutex
	packetsLost uint64
	jitterSec   float64
	rttSec      float64
	lastReport  time.Time
}

func (f *rtcpFeedback) absorb(packets []rtcp.Packet, clockRate uint32) {
	if clockRate == 0 {
		clockRate = defaultVideoClockRate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, packet := range packets {
		rr, ok := packet.(*rtcp.ReceiverReport)
		if !ok {
			continue
		}
		for _, report := range rr.Reports {
			if uint64(report.TotalLost) > f.packetsLost {
				f.packetsLost = uint64(report.TotalLost)
			}
			f.jitterSec = float64(report.Jitter) / float64(clockRate)
			if report.LastSenderReport != 0 && report.Delay != 0 {
				f.rttSec = float64(report.Delay) / 65536.0
			}
			f.lastReport = time.Now()
		}
	}
}

func (f *rtcpFeedback) values() (packetsLost uint64, jitterSec, rttSec float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.packetsLost, f.jitterSec, f.rttSec
}

// readRTCPLoop drains receiver reports for one sender until the link
// goes away.
func (m *Manager) readRTCPLoop(remoteID domain.ParticipantID, sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		link := m.linkRef(remoteID)
		if link == nil {
			return
		}
		link.feedback.absorb(packets, m.clockRate)
	}
}

// Counters merges the selected candidate pair, the RTP stream stats,
// and RTCP feedback into one cumulative reading.
func (m *Manager) Counters(ctx context.Context, remoteID domain.ParticipantID) (domain.TransportCounters, error) {
	link := m.linkRef(remoteID)
	if link == nil {
		return domain.TransportCounters{}, domain.ErrLinkNotFound
	}

	counters := domain.TransportCounters{Timestamp: time.Now()}

	var packetsSent uint64
	for _, s := range link.pc.GetStats() {
		switch v := s.(type) {
		case webrtc.ICECandidatePairStats:
			if !v.Nominated {
				continue
			}
			counters.BytesSent += v.BytesSent
			counters.BytesReceived += v.BytesReceived
			if v.CurrentRoundTripTime > 0 {
				counters.RTTSec = v.CurrentRoundTripTime
			}
		case webrtc.OutboundRTPStreamStats:
			packetsSent += uint64(v.PacketsSent)
		case webrtc.InboundRTPStreamStats:
			counters.PacketsReceived += uint64(v.PacketsReceived)
			if v.PacketsLost > 0 {
				counters.PacketsLost += uint64(v.PacketsLost)
			}
			if v.Jitter > 0 {
				counters.JitterSec = v.Jitter
			}
		}
	}

	lost, jitter, rtt := link.feedback.values()
	if lost > counters.PacketsLost {
		counters.PacketsLost = lost
	}
	if jitter > 0 {
		counters.JitterSec = jitter
	}
	if counters.RTTSec == 0 && rtt > 0 {
		counters.RTTSec = rtt
	}

	// On the sending side there is no inbound media; delivery counts
	// derive from what went out minus what the remote reported lost.
	if counters.PacketsReceived == 0 && packetsSent > counters.PacketsLost {
		counters.PacketsReceived = packetsSent - counters.PacketsLost
	}

	return counters, nil
}
