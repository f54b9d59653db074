package control

import (
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"
	"desklink/pkg/circuitbreaker"

	"go.uber.org/zap"
)

const defaultDialTimeout = 500 * time.Millisecond

// agentCommand is one newline-delimited JSON command sent to the input
// helper. The helper owns the OS-level injection; this side only
// serializes events.
type agentCommand struct {
	Op        string   `json:"op"`
	X         float64  `json:"x,omitempty"`
	Y         float64  `json:"y,omitempty"`
	DX        float64  `json:"dx,omitempty"`
	DY        float64  `json:"dy,omitempty"`
	Button    string   `json:"button,omitempty"`
	Phase     string   `json:"phase,omitempty"`
	Key       string   `json:"key,omitempty"`
	Code      string   `json:"code,omitempty"`
	Modifiers []string `json:"modifiers,omitempty"`
	Content   string   `json:"content,omitempty"`
}

// NativeAdapter forwards input events to the privileged helper process
// over its unix socket. A helper that is down must never break the
// session: failed writes are dropped after a debug log, and a circuit
// breaker stops us hammering a dead socket.
type NativeAdapter struct {
	socketPath  string
	dialTimeout time.Duration
	breaker     *circuitbreaker.CircuitBreaker
	logger      *zap.SugaredLogger

	mu   sync.Mutex
	conn net.Conn
	enc  *json.Encoder
}

func NewNativeAdapter(socketPath string, dialTimeout time.Duration, logger *zap.SugaredLogger) *NativeAdapter {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	a := &NativeAdapter{
		socketPath:  socketPath,
		dialTimeout: dialTimeout,
		breaker:     circuitbreaker.New(circuitbreaker.DefaultConfig()),
		logger:      logger,
	}
	a.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("input helper circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})
	return a
}

func (a *NativeAdapter) Name() string { return "native" }

func (a *NativeAdapter) PointerMove(ctx context.Context, x, y float64) error {
	return a.send(ctx, agentCommand{Op: "pointer-move", X: x, Y: y})
}

func (a *NativeAdapter) PointerButton(ctx context.Context, x, y float64, button domain.PointerButtonName, phase domain.Phase) error {
	return a.send(ctx, agentCommand{Op: "pointer-button", X: x, Y: y, Button: string(button), Phase: string(phase)})
}

func (a *NativeAdapter) Scroll(ctx context.Context, dx, dy float64) error {
	return a.send(ctx, agentCommand{Op: "scroll", DX: dx, DY: dy})
}

func (a *NativeAdapter) Key(ctx context.Context, key, code string, phase domain.Phase, modifiers []string) error {
	return a.send(ctx, agentCommand{Op: "key", Key: key, Code: code, Phase: string(phase), Modifiers: modifiers})
}

func (a *NativeAdapter) SetClipboard(ctx context.Context, content string) error {
	return a.send(ctx, agentCommand{Op: "clipboard", Content: content})
}

// send writes one command, reconnecting once if the cached connection
// went away. Delivery is best effort; the caller never sees helper
// failures.
func (a *NativeAdapter) send(ctx context.Context, cmd agentCommand) error {
	err := a.breaker.Execute(ctx, func() error {
		return a.write(cmd)
	})
	if err != nil {
		a.logger.Debugw("dropping input event, helper unreachable",
			"op", cmd.Op,
			"socket", a.socketPath,
			"error", err,
		)
	}
	return nil
}

func (a *NativeAdapter) write(cmd agentCommand) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		if err := a.dialLocked(); err != nil {
			return err
		}
	}
	if err := a.enc.Encode(&cmd); err != nil {
		// Stale connection; one redial covers a restarted helper.
		a.dropLocked()
		if err := a.dialLocked(); err != nil {
			return err
		}
		return a.enc.Encode(&cmd)
	}
	return nil
}

func (a *NativeAdapter) dialLocked() error {
	conn, err := net.DialTimeout("unix", a.socketPath, a.dialTimeout)
	if err != nil {
		return err
	}
	a.conn = conn
	a.enc = json.NewEncoder(conn)
	return nil
}

func (a *NativeAdapter) dropLocked() {
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
		a.enc = nil
	}
}

func (a *NativeAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dropLocked()
	return nil
}

var _ ports.InputInjector = (*NativeAdapter)(nil)
