package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Relay routes envelopes between the participants of a session. It
// never inspects offer or answer payloads; it stamps the sender,
// checks the recipient is in the same session, and forwards.
type Relay struct {
	tokens    ports.TokenService
	roster    ports.RosterService
	directory ports.SessionDirectory

	sessions map[domain.SessionID]map[domain.ParticipantID]*relayClient
	mu       sync.RWMutex

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	logger *zap.SugaredLogger
}

// relayClient serializes writes to one websocket connection.
type relayClient struct {
	conn          *websocket.Conn
	mu            sync.Mutex
	participantID domain.ParticipantID
	sessionID     domain.SessionID
	role          domain.Role
}

func (c *relayClient) writeJSON(timeout time.Duration, v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(timeout))
	return c.conn.WriteJSON(v)
}

func (c *relayClient) ping(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout))
}

func NewRelay(tokens ports.TokenService, roster ports.RosterService, directory ports.SessionDirectory, logger *zap.SugaredLogger) *Relay {
	return &Relay{
		tokens:       tokens,
		roster:       roster,
		directory:    directory,
		sessions:     make(map[domain.SessionID]map[domain.ParticipantID]*relayClient),
		pingInterval: 30 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
}

// SetPingInterval sets ping interval for WebSocket connections
func (r *Relay) SetPingInterval(interval time.Duration) {
	r.pingInterval = interval
}

// SetReadTimeout sets the read deadline applied between messages
func (r *Relay) SetReadTimeout(timeout time.Duration) {
	r.readTimeout = timeout
}

func (r *Relay) HandleWebSocket(w http.ResponseWriter, req *http.Request) {
	token := req.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	sessionID, participantID, role, err := r.tokens.ValidateJoinToken(req.Context(), token)
	if err != nil {
		r.logger.Warnw("join token rejected", "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := &relayClient{
		conn:          conn,
		participantID: participantID,
		sessionID:     sessionID,
		role:          role,
	}

	r.mu.Lock()
	session, ok := r.sessions[sessionID]
	if !ok {
		session = make(map[domain.ParticipantID]*relayClient)
		r.sessions[sessionID] = session
	}
	if existing, reconnect := session[participantID]; reconnect {
		existing.conn.Close()
		r.logger.Infow("closing old connection for reconnecting participant",
			"session_id", sessionID, "participant_id", participantID)
	}
	session[participantID] = client
	r.mu.Unlock()

	r.logger.Infow("participant connected",
		"session_id", sessionID,
		"participant_id", participantID,
		"role", role,
	)

	ctx := context.Background()
	participant := &domain.Participant{ID: participantID, SessionID: sessionID, Role: role}
	if err := r.roster.Join(ctx, participant); err != nil {
		r.logger.Errorw("roster join failed", "participant_id", participantID, "error", err)
		r.detach(client)
		return
	}

	if err := r.sendRoster(ctx, client); err != nil {
		r.logger.Warnw("sending roster failed", "participant_id", participantID, "error", err)
	}
	r.broadcastPresence(client, domain.PresenceJoined)

	conn.SetReadDeadline(time.Now().Add(r.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(r.readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(r.pingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan domain.SignalEnvelope, 10)
	errorChan := make(chan error, 1)
	readerDone := make(chan struct{})
	defer close(readerDone)

	go func() {
		for {
			var env domain.SignalEnvelope
			if err := conn.ReadJSON(&env); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(r.readTimeout))
			select {
			case messageChan <- env:
			case <-readerDone:
				return
			}
		}
	}()

	for {
		select {
		case env := <-messageChan:
			if err := r.handleEnvelope(ctx, client, env); err != nil {
				r.logger.Infow("error handling envelope",
					"participant_id", participantID, "type", env.Type, "error", err)
				r.sendError(client, "routing_failed", err.Error())
			}

		case <-pingTicker.C:
			if err := client.ping(r.writeTimeout); err != nil {
				r.logger.Infow("error sending ping", "participant_id", participantID, "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				r.logger.Infow("error reading envelope", "participant_id", participantID, "error", err)
			}
			goto cleanup
		}
	}

cleanup:
	if r.detach(client) {
		if err := r.roster.Leave(ctx, sessionID, participantID); err != nil {
			r.logger.Infow("roster leave failed", "participant_id", participantID, "error", err)
		}
		r.broadcastPresence(client, domain.PresenceLeft)
	}
	r.logger.Infow("participant disconnected",
		"session_id", sessionID, "participant_id", participantID)
}

// detach removes the client from the session table. Returns false when
// a reconnect already replaced this connection.
func (r *Relay) detach(client *relayClient) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[client.sessionID]
	if !ok || session[client.participantID] != client {
		return false
	}
	delete(session, client.participantID)
	if len(session) == 0 {
		delete(r.sessions, client.sessionID)
	}
	return true
}

func (r *Relay) handleEnvelope(ctx context.Context, client *relayClient, env domain.SignalEnvelope) error {
	if env.Type == "" {
		return fmt.Errorf("envelope type is required")
	}
	if env.SenderID != "" && env.SenderID != client.participantID {
		return fmt.Errorf("sender_id mismatch: expected %s, got %s", client.participantID, env.SenderID)
	}
	env.SenderID = client.participantID

	if err := r.directory.Touch(ctx, client.sessionID, client.participantID); err != nil {
		r.logger.Debugw("touch failed", "participant_id", client.participantID, "error", err)
	}

	switch env.Type {
	case domain.EnvelopeOffer, domain.EnvelopeAnswer, domain.EnvelopeICE:
		return r.forward(client, env)
	case domain.EnvelopePresence, domain.EnvelopeRoster:
		return fmt.Errorf("%s envelopes are relay generated", env.Type)
	default:
		return fmt.Errorf("unknown envelope type: %s", env.Type)
	}
}

func (r *Relay) forward(from *relayClient, env domain.SignalEnvelope) error {
	if env.RecipientID == "" {
		return fmt.Errorf("recipient_id is required for %s", env.Type)
	}
	if env.RecipientID == from.participantID {
		return fmt.Errorf("cannot route %s to self", env.Type)
	}

	r.mu.RLock()
	target := r.sessions[from.sessionID][env.RecipientID]
	r.mu.RUnlock()
	if target == nil {
		return fmt.Errorf("recipient %s is not connected", env.RecipientID)
	}

	if env.Type == domain.EnvelopeICE {
		r.logger.Debugw("routing envelope",
			"type", env.Type, "from", env.SenderID, "to", env.RecipientID)
	} else {
		r.logger.Infow("routing envelope",
			"type", env.Type, "from", env.SenderID, "to", env.RecipientID,
			"payload_length", len(env.Payload))
	}
	return target.writeJSON(r.writeTimeout, env)
}

// sendRoster delivers the current member list to one participant.
func (r *Relay) sendRoster(ctx context.Context, client *relayClient) error {
	members, err := r.roster.Members(ctx, client.sessionID)
	if err != nil {
		return err
	}
	payload := domain.RosterPayload{SessionID: client.sessionID}
	for _, member := range members {
		payload.Members = append(payload.Members, domain.SessionMember{
			ParticipantID: member.ID,
			Role:          member.Role,
		})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return client.writeJSON(r.writeTimeout, domain.SignalEnvelope{
		Type:    domain.EnvelopeRoster,
		Payload: raw,
	})
}

// broadcastPresence tells everyone else in the session about a join or
// leave.
func (r *Relay) broadcastPresence(about *relayClient, status domain.PresenceStatus) {
	payload, err := json.Marshal(domain.PresencePayload{
		ParticipantID: about.participantID,
		SessionID:     about.sessionID,
		Role:          about.role,
		Status:        status,
	})
	if err != nil {
		return
	}
	env := domain.SignalEnvelope{
		Type:     domain.EnvelopePresence,
		Payload:  payload,
		SenderID: about.participantID,
	}

	r.mu.RLock()
	peers := make([]*relayClient, 0, len(r.sessions[about.sessionID]))
	for id, peer := range r.sessions[about.sessionID] {
		if id != about.participantID {
			peers = append(peers, peer)
		}
	}
	r.mu.RUnlock()

	for _, peer := range peers {
		if err := peer.writeJSON(r.writeTimeout, env); err != nil {
			r.logger.Infow("presence broadcast failed",
				"to", peer.participantID, "error", err)
		}
	}
}

func (r *Relay) sendError(client *relayClient, code, message string) {
	payload, err := json.Marshal(domain.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	env := domain.SignalEnvelope{Type: domain.EnvelopeError, Payload: payload}
	if err := client.writeJSON(r.writeTimeout, env); err != nil {
		r.logger.Debugw("error envelope not delivered", "to", client.participantID, "error", err)
	}
}

func (r *Relay) HealthCheck(w http.ResponseWriter, req *http.Request) {
	r.mu.RLock()
	sessionCount := len(r.sessions)
	connectionCount := 0
	for _, session := range r.sessions {
		connectionCount += len(session)
	}
	r.mu.RUnlock()

	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"sessions":    sessionCount,
		"connections": connectionCount,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// ConnectedParticipants lists who is attached for one session.
func (r *Relay) ConnectedParticipants(sessionID domain.SessionID) []domain.ParticipantID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]domain.ParticipantID, 0, len(r.sessions[sessionID]))
	for id := range r.sessions[sessionID] {
		ids = append(ids, id)
	}
	return ids
}

func (r *Relay) IsConnected(sessionID domain.SessionID, id domain.ParticipantID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.sessions[sessionID][id]
	return exists
}
