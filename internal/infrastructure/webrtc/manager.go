package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const eventQueueSize = 256

// Config carries the transport settings for peer links.
type Config struct {
	ICEServers    []string
	PortMin       uint16
	PortMax       uint16
	InitialPreset domain.PresetName
	AutoAdjust    bool
	ClockRate     uint32
}

// MediaSource provides the outgoing media tracks shared by every link.
// Only hosts carry one; controllers negotiate receive-only.
type MediaSource struct {
	Video *webrtc.TrackLocalStaticRTP
	Audio *webrtc.TrackLocalStaticRTP
}

// Manager owns the per-remote link table and drives all negotiation.
//
// All mutation of the link table happens on a single goroutine started
// by Run. Pion callbacks and API methods never touch the table
// directly: callbacks post closures onto the event queue, API methods
// submit work with call and wait for the reply. Read paths (Links,
// Counters, SendControl) go through a snapshot mirror guarded by
// snapmu so they never contend with negotiation.
type Manager struct {
	cfg       Config
	localID   domain.ParticipantID
	sessionID domain.SessionID
	role      domain.Role
	bus       ports.SignalBus
	logger    *zap.SugaredLogger
	clockRate uint32

	media   *MediaSource
	encoder ports.EncoderControl

	events chan func()
	done   chan struct{}
	closed sync.Once
	runCtx context.Context

	// links is owned by the Run goroutine.
	links map[domain.ParticipantID]*Link

	// pendingOffers holds offers that arrived on a host before media
	// was live. Latest offer per sender wins; pendingOrder preserves
	// arrival order for the replay.
	pendingOffers map[domain.ParticipantID]webrtc.SessionDescription
	pendingOrder  []domain.ParticipantID

	snapmu    sync.RWMutex
	snapshots map[domain.ParticipantID]domain.LinkSnapshot
	refs      map[domain.ParticipantID]*Link

	onState    func(domain.LinkStateChange)
	onFrame    func(from domain.ParticipantID, frame []byte)
	onPresence func(domain.PresenceEvent)
	onRoster   func(domain.RosterPayload)
	onMedia    func(from domain.ParticipantID, kind string, pkt *rtp.Packet)
}

// NewManager builds a manager for one participant. Run must be called
// before any link can be established.
func NewManager(cfg Config, localID domain.ParticipantID, sessionID domain.SessionID, role domain.Role, bus ports.SignalBus, logger *zap.SugaredLogger) *Manager {
	if cfg.InitialPreset == "" {
		cfg.InitialPreset = domain.PresetMedium
	}
	clockRate := cfg.ClockRate
	if clockRate == 0 {
		clockRate = defaultVideoClockRate
	}
	return &Manager{
		cfg:           cfg,
		localID:       localID,
		sessionID:     sessionID,
		role:          role,
		bus:           bus,
		logger:        logger,
		clockRate:     clockRate,
		events:        make(chan func(), eventQueueSize),
		done:          make(chan struct{}),
		links:         make(map[domain.ParticipantID]*Link),
		pendingOffers: make(map[domain.ParticipantID]webrtc.SessionDescription),
		snapshots:     make(map[domain.ParticipantID]domain.LinkSnapshot),
		refs:          make(map[domain.ParticipantID]*Link),
	}
}

// SetMediaSource attaches the outgoing tracks added to every new link.
// Must be called before Run; use AttachMedia once the loop is running.
func (m *Manager) SetMediaSource(src *MediaSource)            { m.media = src }
func (m *Manager) SetEncoderControl(enc ports.EncoderControl) { m.encoder = enc }

// AttachMedia makes the outgoing tracks available while the loop is
// running. Existing links get the tracks added, then offers held back
// while media was missing are answered in arrival order.
func (m *Manager) AttachMedia(ctx context.Context, src *MediaSource) error {
	return m.call(ctx, func() error {
		m.media = src
		for _, link := range m.links {
			if err := m.attachMedia(link); err != nil {
				m.logger.Warnw("attach media to link failed", "remote_id", link.remoteID, "error", err)
			}
		}
		for _, from := range m.pendingOrder {
			offer, held := m.pendingOffers[from]
			if !held {
				continue
			}
			delete(m.pendingOffers, from)
			m.answerOffer(from, offer)
		}
		m.pendingOrder = nil
		return nil
	})
}

// OnLinkStateChange registers the state transition callback. Invoked
// from the manager goroutine; it must not call back into the manager.
func (m *Manager) OnLinkStateChange(fn func(domain.LinkStateChange)) { m.onState = fn }

// OnFrame registers the control frame callback. Invoked directly from
// the data channel read path.
func (m *Manager) OnFrame(fn func(from domain.ParticipantID, frame []byte)) { m.onFrame = fn }

func (m *Manager) OnPresence(fn func(domain.PresenceEvent)) { m.onPresence = fn }
func (m *Manager) OnRoster(fn func(domain.RosterPayload))   { m.onRoster = fn }

// OnMediaPacket registers the inbound RTP callback for controller
// links. When unset inbound media is drained and discarded.
func (m *Manager) OnMediaPacket(fn func(from domain.ParticipantID, kind string, pkt *rtp.Packet)) {
	m.onMedia = fn
}

// Run processes signaling envelopes and queued events until the
// context ends, Close is called, or the signal bus closes.
func (m *Manager) Run(ctx context.Context) error {
	m.runCtx = ctx
	defer m.shutdown()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return nil
		case fn := <-m.events:
			fn()
		case env, ok := <-m.bus.Receive():
			if !ok {
				return domain.ErrSignalingClosed
			}
			m.handleEnvelope(env)
		}
	}
}

// Close stops the manager. Safe to call more than once.
func (m *Manager) Close() {
	m.closed.Do(func() { close(m.done) })
}

// post queues work for the manager goroutine without waiting.
func (m *Manager) post(fn func()) {
	select {
	case m.events <- fn:
	case <-m.done:
	}
}

// call runs fn on the manager goroutine and returns its error.
func (m *Manager) call(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	select {
	case m.events <- func() { errc <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return domain.ErrManagerClosed
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return domain.ErrManagerClosed
	}
}

// Connect starts negotiation with a remote participant. Calling it for
// a remote with a live link is a no-op; a terminal link is replaced.
func (m *Manager) Connect(ctx context.Context, remoteID domain.ParticipantID) error {
	if remoteID == m.localID {
		return domain.ErrSelfConnection
	}
	if remoteID == "" {
		return domain.ErrParticipantNotFound
	}
	return m.call(ctx, func() error { return m.startOffer(remoteID) })
}

// Disconnect closes the link to a remote and removes it from the table.
func (m *Manager) Disconnect(ctx context.Context, remoteID domain.ParticipantID) error {
	return m.call(ctx, func() error {
		link, ok := m.links[remoteID]
		if !ok {
			return domain.ErrLinkNotFound
		}
		m.transition(link, domain.LinkStateClosed)
		m.removeLink(remoteID)
		return nil
	})
}

// Links returns snapshots of every tracked link, ordered by remote ID.
func (m *Manager) Links() []domain.LinkSnapshot {
	m.snapmu.RLock()
	out := make([]domain.LinkSnapshot, 0, len(m.snapshots))
	for _, snap := range m.snapshots {
		out = append(out, snap)
	}
	m.snapmu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].RemoteID < out[j].RemoteID })
	return out
}

// Link returns the snapshot for one remote.
func (m *Manager) Link(remoteID domain.ParticipantID) (domain.LinkSnapshot, error) {
	m.snapmu.RLock()
	defer m.snapmu.RUnlock()
	snap, ok := m.snapshots[remoteID]
	if !ok {
		return domain.LinkSnapshot{}, domain.ErrLinkNotFound
	}
	return snap, nil
}

// linkRef returns the live link for off-loop read paths, or nil.
func (m *Manager) linkRef(remoteID domain.ParticipantID) *Link {
	m.snapmu.RLock()
	defer m.snapmu.RUnlock()
	return m.refs[remoteID]
}

// SendControl encodes and sends one control message over the link's
// data channel. Blocks while the channel is over its buffer budget.
func (m *Manager) SendControl(ctx context.Context, remoteID domain.ParticipantID, msg domain.ControlMessage) error {
	data, err := domain.EncodeControlMessage(msg)
	if err != nil {
		return err
	}
	link := m.linkRef(remoteID)
	if link == nil {
		return domain.ErrLinkNotFound
	}
	return link.channel.send(ctx, data)
}

// ApplyPreset pushes encoder parameters for a preset and records it on
// the link. Hosts reconfigure the encoder; controllers only record.
func (m *Manager) ApplyPreset(ctx context.Context, remoteID domain.ParticipantID, preset domain.QualityPreset) error {
	if m.linkRef(remoteID) == nil {
		return domain.ErrLinkNotFound
	}
	if m.encoder != nil {
		if err := m.encoder.Apply(ctx, preset); err != nil {
			return fmt.Errorf("apply preset %s: %w", preset.Name, err)
		}
	}
	return m.call(ctx, func() error {
		link, ok := m.links[remoteID]
		if !ok {
			return domain.ErrLinkNotFound
		}
		link.preset = preset.Name
		m.publish(link)
		return nil
	})
}

// NoteAutoAdjust records the auto-adjust flag on the link snapshot.
func (m *Manager) NoteAutoAdjust(remoteID domain.ParticipantID, enabled bool) {
	m.post(func() {
		if link, ok := m.links[remoteID]; ok {
			link.autoAdjust = enabled
			m.publish(link)
		}
	})
}

// NoteIndicator overrides the link quality indicator, normally from
// monitor category changes on connected links.
func (m *Manager) NoteIndicator(remoteID domain.ParticipantID, indicator domain.QualityIndicator) {
	m.post(func() {
		if link, ok := m.links[remoteID]; ok && link.state == domain.LinkStateConnected {
			link.indicator = indicator
			m.publish(link)
		}
	})
}

// --- loop internals ---

func (m *Manager) startOffer(remoteID domain.ParticipantID) error {
	if existing, ok := m.links[remoteID]; ok {
		if !existing.state.Terminal() {
			return nil
		}
		m.removeLink(remoteID)
	}
	link, err := m.newOutboundLink(remoteID)
	if err != nil {
		return err
	}
	ordered := true
	dc, err := link.pc.CreateDataChannel(controlChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		link.close()
		return fmt.Errorf("create control channel: %w", err)
	}
	m.wireChannel(link, dc)

	offer, err := link.pc.CreateOffer(nil)
	if err != nil {
		link.close()
		return fmt.Errorf("create offer: %w", err)
	}
	if err := link.pc.SetLocalDescription(offer); err != nil {
		link.close()
		return fmt.Errorf("set local offer: %w", err)
	}
	m.links[remoteID] = link
	m.publish(link)
	m.transition(link, domain.LinkStateConnecting)

	if err := m.sendDescription(remoteID, domain.EnvelopeOffer, offer); err != nil {
		m.failLink(link, err)
		return fmt.Errorf("send offer: %w", err)
	}
	m.logger.Infow("offer sent", "remote_id", remoteID)
	return nil
}

func (m *Manager) newOutboundLink(remoteID domain.ParticipantID) (*Link, error) {
	pc, err := m.buildPeerConnection()
	if err != nil {
		return nil, err
	}
	link := newLink(remoteID, pc, true, m.cfg.InitialPreset, m.cfg.AutoAdjust)
	if err := m.attachMedia(link); err != nil {
		link.close()
		return nil, err
	}
	m.wirePeerConnection(link)
	return link, nil
}

func (m *Manager) newInboundLink(remoteID domain.ParticipantID) (*Link, error) {
	pc, err := m.buildPeerConnection()
	if err != nil {
		return nil, err
	}
	link := newLink(remoteID, pc, false, m.cfg.InitialPreset, m.cfg.AutoAdjust)
	if err := m.attachMedia(link); err != nil {
		link.close()
		return nil, err
	}
	m.wirePeerConnection(link)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != controlChannelLabel {
			m.logger.Warnw("unexpected data channel", "remote_id", remoteID, "label", dc.Label())
			return
		}
		m.post(func() {
			if live, ok := m.links[remoteID]; ok && live == link {
				m.wireChannel(link, dc)
			}
		})
	})
	return link, nil
}

func (m *Manager) buildPeerConnection() (*webrtc.PeerConnection, error) {
	settings := webrtc.SettingEngine{}
	if m.cfg.PortMin > 0 && m.cfg.PortMax > 0 {
		if err := settings.SetEphemeralUDPPortRange(m.cfg.PortMin, m.cfg.PortMax); err != nil {
			return nil, fmt.Errorf("set port range: %w", err)
		}
	}
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	api := webrtc.NewAPI(
		webrtc.WithSettingEngine(settings),
		webrtc.WithMediaEngine(mediaEngine),
	)
	config := webrtc.Configuration{
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	}
	if len(m.cfg.ICEServers) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: m.cfg.ICEServers}}
	}
	pc, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return pc, nil
}

func (m *Manager) attachMedia(link *Link) error {
	if m.media == nil {
		return nil
	}
	if m.media.Video != nil {
		sender, err := link.pc.AddTrack(m.media.Video)
		if err != nil {
			return fmt.Errorf("add video track: %w", err)
		}
		link.videoSender = sender
		go m.readRTCPLoop(link.remoteID, sender)
	}
	if m.media.Audio != nil {
		sender, err := link.pc.AddTrack(m.media.Audio)
		if err != nil {
			return fmt.Errorf("add audio track: %w", err)
		}
		link.audioSender = sender
		go m.readRTCPLoop(link.remoteID, sender)
	}
	return nil
}

func (m *Manager) wirePeerConnection(link *Link) {
	remoteID := link.remoteID
	link.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		m.post(func() {
			if live, ok := m.links[remoteID]; !ok || live != link {
				return
			}
			if err := m.sendCandidate(remoteID, init); err != nil {
				m.logger.Warnw("send candidate failed", "remote_id", remoteID, "error", err)
			}
		})
	})
	link.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		m.post(func() { m.handlePCState(link, s) })
	})
	link.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.logger.Infow("remote track",
			"remote_id", remoteID,
			"kind", track.Kind().String(),
			"codec", track.Codec().MimeType,
		)
		go m.drainTrack(remoteID, track)
	})
}

func (m *Manager) wireChannel(link *Link, dc *webrtc.DataChannel) {
	remoteID := link.remoteID
	link.channel.attach(dc)
	dc.OnOpen(func() {
		link.channel.setOpen(true)
		m.logger.Infow("control channel open", "remote_id", remoteID)
	})
	dc.OnClose(func() {
		link.channel.setOpen(false)
		m.logger.Debugw("control channel closed", "remote_id", remoteID)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if m.onFrame != nil {
			m.onFrame(remoteID, msg.Data)
		}
	})
}

// drainTrack pumps inbound RTP so receiver reports keep flowing, and
// hands packets to the media callback when one is registered.
func (m *Manager) drainTrack(remoteID domain.ParticipantID, track *webrtc.TrackRemote) {
	kind := track.Kind().String()
	buf := make([]byte, receiveMTU)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}
		if m.onMedia == nil {
			continue
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			m.logger.Debugw("drop malformed rtp", "remote_id", remoteID, "error", err)
			continue
		}
		m.onMedia(remoteID, kind, pkt)
	}
}

func (m *Manager) handlePCState(link *Link, s webrtc.PeerConnectionState) {
	if live, ok := m.links[link.remoteID]; !ok || live != link {
		return
	}
	next, ok := mapPeerConnectionState(s)
	if !ok {
		return
	}
	m.transition(link, next)
	if next.Terminal() {
		m.removeLink(link.remoteID)
	}
}

func mapPeerConnectionState(s webrtc.PeerConnectionState) (domain.LinkState, bool) {
	switch s {
	case webrtc.PeerConnectionStateNew:
		return domain.LinkStateNew, true
	case webrtc.PeerConnectionStateConnecting:
		return domain.LinkStateConnecting, true
	case webrtc.PeerConnectionStateConnected:
		return domain.LinkStateConnected, true
	case webrtc.PeerConnectionStateDisconnected:
		return domain.LinkStateDisconnected, true
	case webrtc.PeerConnectionStateFailed:
		return domain.LinkStateFailed, true
	case webrtc.PeerConnectionStateClosed:
		return domain.LinkStateClosed, true
	default:
		return "", false
	}
}

// transition applies a state change, refreshes the snapshot, and emits
// the change event. No-op when the state does not actually move.
func (m *Manager) transition(link *Link, next domain.LinkState) {
	prev := link.state
	if !link.setState(next) {
		return
	}
	m.publish(link)
	m.logger.Infow("link state",
		"remote_id", link.remoteID,
		"previous", prev,
		"current", next,
	)
	if m.onState != nil {
		m.onState(domain.LinkStateChange{
			RemoteID: link.remoteID,
			Previous: prev,
			Current:  next,
			At:       time.Now(),
		})
	}
}

func (m *Manager) failLink(link *Link, cause error) {
	m.logger.Warnw("link failed", "remote_id", link.remoteID, "error", cause)
	m.transition(link, domain.LinkStateFailed)
	m.removeLink(link.remoteID)
}

// removeLink closes the link and drops it from the table and mirror.
func (m *Manager) removeLink(remoteID domain.ParticipantID) {
	link, ok := m.links[remoteID]
	if !ok {
		return
	}
	link.close()
	delete(m.links, remoteID)
	m.snapmu.Lock()
	delete(m.snapshots, remoteID)
	delete(m.refs, remoteID)
	m.snapmu.Unlock()
}

// publish refreshes the read-only mirror for one link.
func (m *Manager) publish(link *Link) {
	snap := link.snapshot()
	m.snapmu.Lock()
	m.snapshots[link.remoteID] = snap
	m.refs[link.remoteID] = link
	m.snapmu.Unlock()
}

// --- signaling ---

func (m *Manager) handleEnvelope(env domain.SignalEnvelope) {
	switch env.Type {
	case domain.EnvelopeOffer:
		m.handleOffer(env.SenderID, env.Payload)
	case domain.EnvelopeAnswer:
		m.handleAnswer(env.SenderID, env.Payload)
	case domain.EnvelopeICE:
		m.handleCandidate(env.SenderID, env.Payload)
	case domain.EnvelopePresence:
		m.handlePresence(env.Payload)
	case domain.EnvelopeRoster:
		m.handleRoster(env.Payload)
	case domain.EnvelopeError:
		var errPayload domain.ErrorPayload
		if err := json.Unmarshal(env.Payload, &errPayload); err == nil {
			m.logger.Warnw("relay error", "code", errPayload.Code, "message", errPayload.Message)
		}
	default:
		m.logger.Warnw("unknown envelope type", "type", env.Type, "sender_id", env.SenderID)
	}
}

func (m *Manager) handleOffer(from domain.ParticipantID, payload json.RawMessage) {
	if from == "" || from == m.localID {
		return
	}
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		m.logger.Warnw("drop malformed offer", "sender_id", from, "error", err)
		return
	}
	// A host that cannot attach media yet holds the offer until the
	// capture tracks come live. A newer offer from the same sender
	// replaces the held one but keeps its place in line.
	if m.role == domain.RoleHost && m.media == nil {
		if _, queued := m.pendingOffers[from]; !queued {
			m.pendingOrder = append(m.pendingOrder, from)
		}
		m.pendingOffers[from] = offer
		m.logger.Infow("offer queued until media is live", "sender_id", from)
		return
	}
	m.answerOffer(from, offer)
}

func (m *Manager) answerOffer(from domain.ParticipantID, offer webrtc.SessionDescription) {
	link, ok := m.links[from]
	if ok && link.offerer && link.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		// Offer collision. The lower participant ID keeps its offer;
		// the higher one abandons its attempt and answers instead.
		if m.localID < from {
			m.logger.Debugw("ignoring colliding offer", "sender_id", from)
			return
		}
		m.logger.Debugw("yielding to colliding offer", "sender_id", from)
		m.removeLink(from)
		ok = false
	}
	if ok && link.state.Terminal() {
		m.removeLink(from)
		ok = false
	}
	if !ok {
		fresh, err := m.newInboundLink(from)
		if err != nil {
			m.logger.Errorw("build inbound link failed", "sender_id", from, "error", err)
			return
		}
		link = fresh
		m.links[from] = link
		m.publish(link)
		m.transition(link, domain.LinkStateConnecting)
	}
	if err := m.acceptOffer(link, offer); err != nil {
		m.failLink(link, err)
	}
}

func (m *Manager) acceptOffer(link *Link, offer webrtc.SessionDescription) error {
	if err := link.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	for _, err := range link.drainCandidates() {
		m.logger.Warnw("queued candidate rejected", "remote_id", link.remoteID, "error", err)
	}
	answer, err := link.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := link.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}
	if err := m.sendDescription(link.remoteID, domain.EnvelopeAnswer, answer); err != nil {
		return fmt.Errorf("send answer: %w", err)
	}
	m.logger.Infow("answer sent", "remote_id", link.remoteID)
	return nil
}

func (m *Manager) handleAnswer(from domain.ParticipantID, payload json.RawMessage) {
	link, ok := m.links[from]
	if !ok || !link.offerer {
		m.logger.Debugw("drop unexpected answer", "sender_id", from)
		return
	}
	if link.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		// Stale or duplicate answer after negotiation settled.
		m.logger.Debugw("drop stale answer", "sender_id", from, "signaling_state", link.pc.SignalingState().String())
		return
	}
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		m.logger.Warnw("drop malformed answer", "sender_id", from, "error", err)
		return
	}
	if err := link.pc.SetRemoteDescription(answer); err != nil {
		m.failLink(link, fmt.Errorf("set remote answer: %w", err))
		return
	}
	for _, err := range link.drainCandidates() {
		m.logger.Warnw("queued candidate rejected", "remote_id", from, "error", err)
	}
}

func (m *Manager) handleCandidate(from domain.ParticipantID, payload json.RawMessage) {
	link, ok := m.links[from]
	if !ok {
		m.logger.Debugw("drop candidate for unknown link", "sender_id", from)
		return
	}
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		m.logger.Warnw("drop malformed candidate", "sender_id", from, "error", err)
		return
	}
	if link.pc.RemoteDescription() == nil {
		link.queueCandidate(candidate)
		return
	}
	if err := link.pc.AddICECandidate(candidate); err != nil {
		m.logger.Warnw("add candidate failed", "sender_id", from, "error", err)
	}
}

func (m *Manager) handlePresence(payload json.RawMessage) {
	var presence domain.PresencePayload
	if err := json.Unmarshal(payload, &presence); err != nil {
		m.logger.Warnw("drop malformed presence", "error", err)
		return
	}
	if presence.ParticipantID == m.localID {
		return
	}
	if link, ok := m.links[presence.ParticipantID]; ok && presence.Role != "" {
		link.role = presence.Role
		m.publish(link)
	}
	if presence.Status == domain.PresenceLeft {
		delete(m.pendingOffers, presence.ParticipantID)
		if link, ok := m.links[presence.ParticipantID]; ok {
			m.transition(link, domain.LinkStateClosed)
			m.removeLink(presence.ParticipantID)
		}
	}
	if m.onPresence != nil {
		event := domain.PresenceEvent{
			Participant: domain.Participant{
				ID:        presence.ParticipantID,
				SessionID: m.sessionID,
				Role:      presence.Role,
			},
			Status: presence.Status,
		}
		go m.onPresence(event)
	}
}

func (m *Manager) handleRoster(payload json.RawMessage) {
	var roster domain.RosterPayload
	if err := json.Unmarshal(payload, &roster); err != nil {
		m.logger.Warnw("drop malformed roster", "error", err)
		return
	}
	for _, member := range roster.Members {
		if link, ok := m.links[member.ParticipantID]; ok && member.Role != "" {
			link.role = member.Role
			m.publish(link)
		}
	}
	if m.onRoster != nil {
		go m.onRoster(roster)
	}
}

func (m *Manager) sendDescription(remoteID domain.ParticipantID, kind domain.EnvelopeType, desc webrtc.SessionDescription) error {
	payload, err := json.Marshal(desc)
	if err != nil {
		return err
	}
	return m.bus.Send(m.sendContext(), domain.SignalEnvelope{
		Type:        kind,
		Payload:     payload,
		SenderID:    m.localID,
		RecipientID: remoteID,
	})
}

func (m *Manager) sendCandidate(remoteID domain.ParticipantID, candidate webrtc.ICECandidateInit) error {
	payload, err := json.Marshal(candidate)
	if err != nil {
		return err
	}
	return m.bus.Send(m.sendContext(), domain.SignalEnvelope{
		Type:        domain.EnvelopeICE,
		Payload:     payload,
		SenderID:    m.localID,
		RecipientID: remoteID,
	})
}

func (m *Manager) sendContext() context.Context {
	if m.runCtx != nil {
		return m.runCtx
	}
	return context.Background()
}

// shutdown closes every link on the way out of Run.
func (m *Manager) shutdown() {
	for remoteID, link := range m.links {
		m.transition(link, domain.LinkStateClosed)
		link.close()
		delete(m.links, remoteID)
	}
	m.snapmu.Lock()
	m.snapshots = make(map[domain.ParticipantID]domain.LinkSnapshot)
	m.refs = make(map[domain.ParticipantID]*Link)
	m.snapmu.Unlock()
}
