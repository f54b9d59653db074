package ports

import (
	"context"

	"desklink/internal/core/domain"
)

// SignalBus carries envelopes between this agent and the relay. Receive
// stays open across reconnects and closes only when the bus shuts down.
type SignalBus interface {
	Send(ctx context.Context, env domain.SignalEnvelope) error
	Receive() <-chan domain.SignalEnvelope
	Close() error
}
