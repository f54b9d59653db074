package media

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"desklink/pkg/optimize"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const maxRTPPacketSize = 1500

// Capture receives the host's encoded screen and audio as RTP from a
// local encoder process and republishes it on the shared outbound
// tracks. The encoder demuxes by payload type: packets matching the
// configured video payload type go to the video track, everything else
// to audio.
type Capture struct {
	listenAddress string
	payloadType   uint8
	logger        *zap.SugaredLogger

	video *webrtc.TrackLocalStaticRTP
	audio *webrtc.TrackLocalStaticRTP

	pool *optimize.BytePool

	mu      sync.Mutex
	conn    net.PacketConn
	cancel  context.CancelFunc
	started bool

	packetsRead atomic.Uint64
	bytesRead   atomic.Uint64
}

// NewCapture builds the ingest side. The tracks are created here and
// handed to the peer connection manager as its media source.
func NewCapture(listenAddress string, videoPayloadType uint8, logger *zap.SugaredLogger) (*Capture, error) {
	video, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"video", "desklink-screen",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}
	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "desklink-audio",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}

	return &Capture{
		listenAddress: listenAddress,
		payloadType:   videoPayloadType,
		logger:        logger,
		video:         video,
		audio:         audio,
		pool:          optimize.NewBytePool(maxRTPPacketSize),
	}, nil
}

func (c *Capture) VideoTrack() *webrtc.TrackLocalStaticRTP { return c.video }
func (c *Capture) AudioTrack() *webrtc.TrackLocalStaticRTP { return c.audio }

// Start binds the RTP listen port and begins forwarding. Idempotent.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}
	conn, err := net.ListenPacket("udp", c.listenAddress)
	if err != nil {
		return fmt.Errorf("failed to bind RTP ingest address %s: %w", c.listenAddress, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.conn = conn
	c.cancel = cancel
	c.started = true

	go c.readLoop(runCtx, conn)

	c.logger.Infow("capture ingest started",
		"address", conn.LocalAddr().String(),
		"video_payload_type", c.payloadType,
	)
	return nil
}

// Stop closes the listener. Idempotent and safe before Start.
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return
	}
	c.cancel()
	c.conn.Close()
	c.conn = nil
	c.started = false
	c.logger.Info("capture ingest stopped")
}

// Running reports whether the ingest loop is live. The manager treats
// a running capture as "screen share started".
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// PacketsRead returns how many RTP packets were ingested so far.
func (c *Capture) PacketsRead() uint64 { return c.packetsRead.Load() }

// BytesRead returns how many payload bytes were ingested so far.
func (c *Capture) BytesRead() uint64 { return c.bytesRead.Load() }

func (c *Capture) readLoop(ctx context.Context, conn net.PacketConn) {
	for {
		buf := c.pool.Get()
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			c.pool.Put(buf)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			c.logger.Warnw("RTP read failed", "error", err)
			return
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			c.logger.Debugw("dropping malformed RTP packet", "bytes", n, "error", err)
			c.pool.Put(buf)
			continue
		}

		c.packetsRead.Add(1)
		c.bytesRead.Add(uint64(n))

		if err := c.forward(&pkt); err != nil {
			c.logger.Debugw("track write failed", "error", err)
		}
		c.pool.Put(buf)
	}
}

// forward writes one packet to the matching track. WriteRTP fans out to
// every bound sender; no bound sender is not an error.
func (c *Capture) forward(pkt *rtp.Packet) error {
	if pkt.PayloadType == c.payloadType {
		return c.video.WriteRTP(pkt)
	}
	return c.audio.WriteRTP(pkt)
}

// InjectRTP feeds one packet directly, bypassing the UDP socket. Test
// and synthetic sources use it.
func (c *Capture) InjectRTP(pkt *rtp.Packet) error {
	c.packetsRead.Add(1)
	return c.forward(pkt)
}
