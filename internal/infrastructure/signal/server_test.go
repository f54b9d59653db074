package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"desklink/internal/core/domain"
	"desklink/internal/core/services"
	"desklink/internal/infrastructure/directory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func startRelay(t *testing.T) (*Relay, *httptest.Server, func(participantID string, role domain.Role) *websocket.Conn) {
	t.Helper()

	tokens := services.NewTokenService("relay-test-secret", time.Hour)
	dir := directory.NewMemoryDirectory()
	roster := services.NewRoster(dir, zaptest.NewLogger(t).Sugar())

	relay := NewRelay(tokens, roster, dir, zaptest.NewLogger(t).Sugar())
	server := httptest.NewServer(http.HandlerFunc(relay.HandleWebSocket))
	t.Cleanup(server.Close)

	dial := func(participantID string, role domain.Role) *websocket.Conn {
		t.Helper()
		token, err := tokens.IssueJoinToken(context.Background(), "sess_relay", domain.ParticipantID(participantID), role)
		require.NoError(t, err)

		wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + token
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	return relay, server, dial
}

func readEnvelope(t *testing.T, conn *websocket.Conn) domain.SignalEnvelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env domain.SignalEnvelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestRelay_RejectsMissingAndBadTokens(t *testing.T) {
	_, server, _ := startRelay(t)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestRelay_SendsRosterOnJoin(t *testing.T) {
	_, _, dial := startRelay(t)

	host := dial("part_host", domain.RoleHost)
	env := readEnvelope(t, host)
	require.Equal(t, domain.EnvelopeRoster, env.Type)

	var roster domain.RosterPayload
	require.NoError(t, json.Unmarshal(env.Payload, &roster))
	require.Len(t, roster.Members, 1)
	assert.Equal(t, domain.ParticipantID("part_host"), roster.Members[0].ParticipantID)
}

func TestRelay_BroadcastsPresence(t *testing.T) {
	_, _, dial := startRelay(t)

	host := dial("part_host", domain.RoleHost)
	readEnvelope(t, host) // roster

	controller := dial("part_ctl", domain.RoleController)
	readEnvelope(t, controller) // roster

	env := readEnvelope(t, host)
	require.Equal(t, domain.EnvelopePresence, env.Type)

	var presence domain.PresencePayload
	require.NoError(t, json.Unmarshal(env.Payload, &presence))
	assert.Equal(t, domain.ParticipantID("part_ctl"), presence.ParticipantID)
	assert.Equal(t, domain.PresenceJoined, presence.Status)
	assert.Equal(t, domain.RoleController, presence.Role)
}

func TestRelay_ForwardsOfferAndStampsSender(t *testing.T) {
	_, _, dial := startRelay(t)

	host := dial("part_host", domain.RoleHost)
	readEnvelope(t, host)

	controller := dial("part_ctl", domain.RoleController)
	readEnvelope(t, controller)
	readEnvelope(t, host) // presence for controller

	payload, _ := json.Marshal(map[string]string{"type": "offer", "sdp": "v=0..."})
	require.NoError(t, controller.WriteJSON(domain.SignalEnvelope{
		Type:        domain.EnvelopeOffer,
		Payload:     payload,
		RecipientID: "part_host",
	}))

	env := readEnvelope(t, host)
	require.Equal(t, domain.EnvelopeOffer, env.Type)
	assert.Equal(t, domain.ParticipantID("part_ctl"), env.SenderID)
	assert.Equal(t, domain.ParticipantID("part_host"), env.RecipientID)
}

func TestRelay_RoutingErrorsComeBackAsErrorEnvelopes(t *testing.T) {
	_, _, dial := startRelay(t)

	host := dial("part_host", domain.RoleHost)
	readEnvelope(t, host)

	// No recipient set
	require.NoError(t, host.WriteJSON(domain.SignalEnvelope{Type: domain.EnvelopeOffer}))
	env := readEnvelope(t, host)
	require.Equal(t, domain.EnvelopeError, env.Type)

	// Recipient not connected
	require.NoError(t, host.WriteJSON(domain.SignalEnvelope{
		Type:        domain.EnvelopeOffer,
		RecipientID: "part_ghost",
	}))
	env = readEnvelope(t, host)
	require.Equal(t, domain.EnvelopeError, env.Type)

	// Spoofed sender
	require.NoError(t, host.WriteJSON(domain.SignalEnvelope{
		Type:        domain.EnvelopeOffer,
		SenderID:    "part_other",
		RecipientID: "part_ghost",
	}))
	env = readEnvelope(t, host)
	require.Equal(t, domain.EnvelopeError, env.Type)

	// Relay-generated types cannot be injected
	require.NoError(t, host.WriteJSON(domain.SignalEnvelope{
		Type:        domain.EnvelopePresence,
		RecipientID: "part_ghost",
	}))
	env = readEnvelope(t, host)
	require.Equal(t, domain.EnvelopeError, env.Type)
}

func TestRelay_PresenceLeftOnDisconnect(t *testing.T) {
	relay, _, dial := startRelay(t)

	host := dial("part_host", domain.RoleHost)
	readEnvelope(t, host)

	controller := dial("part_ctl", domain.RoleController)
	readEnvelope(t, controller)
	readEnvelope(t, host) // presence joined

	controller.Close()

	env := readEnvelope(t, host)
	require.Equal(t, domain.EnvelopePresence, env.Type)
	var presence domain.PresencePayload
	require.NoError(t, json.Unmarshal(env.Payload, &presence))
	assert.Equal(t, domain.PresenceLeft, presence.Status)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !relay.IsConnected("sess_relay", "part_ctl") {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.False(t, relay.IsConnected("sess_relay", "part_ctl"))
}

func TestRelay_ConnectedParticipants(t *testing.T) {
	relay, _, dial := startRelay(t)

	host := dial("part_host", domain.RoleHost)
	readEnvelope(t, host)

	ids := relay.ConnectedParticipants("sess_relay")
	require.Len(t, ids, 1)
	assert.Equal(t, domain.ParticipantID("part_host"), ids[0])
}
