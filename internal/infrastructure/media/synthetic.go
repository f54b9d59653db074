package media

import (
	"context"
	"time"

	"github.com/pion/rtp"
)

// SyntheticSource feeds generated RTP packets into a Capture without an
// encoder process. Dev sessions and tests use it; the payload is
// filler, only the packet flow matters.
type SyntheticSource struct {
	capture     *Capture
	payloadType uint8
	clockRate   uint32
	interval    time.Duration

	seq       uint16
	timestamp uint32
}

func NewSyntheticSource(capture *Capture, payloadType uint8, clockRate uint32, interval time.Duration) *SyntheticSource {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	if clockRate == 0 {
		clockRate = 90000
	}
	return &SyntheticSource{
		capture:     capture,
		payloadType: payloadType,
		clockRate:   clockRate,
		interval:    interval,
	}
}

// Run emits packets until the context ends.
func (s *SyntheticSource) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Emit()
		}
	}
}

// Emit injects one packet and advances the sequence and timestamp.
func (s *SyntheticSource) Emit() {
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    s.payloadType,
			SequenceNumber: s.seq,
			Timestamp:      s.timestamp,
			SSRC:           0x64736b6c,
		},
		Payload: make([]byte, 256),
	}
	s.seq++
	s.timestamp += s.clockRate / 30
	s.capture.InjectRTP(pkt)
}
