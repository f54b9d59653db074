package services

import (
	"context"
	"sync"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"
	"desklink/pkg/tracing"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ControlRouter dispatches decoded control frames to the input
// injector, clipboard, and transfer service. A malformed frame is an
// error to the caller, never a crash.
type ControlRouter struct {
	injector  ports.InputInjector
	transfers *TransferService
	logger    *zap.SugaredLogger

	pointerRate  rate.Limit
	pointerBurst int

	mu               sync.Mutex
	controlEnabled   bool
	clipboardEnabled bool
	limiters         map[domain.ParticipantID]*rate.Limiter

	onClipboard []func(from domain.ParticipantID, content string)
}

func NewControlRouter(
	injector ports.InputInjector,
	transfers *TransferService,
	controlEnabled, clipboardEnabled bool,
	pointerEventsPerSecond, pointerBurst int,
	logger *zap.SugaredLogger,
) *ControlRouter {
	if pointerEventsPerSecond <= 0 {
		pointerEventsPerSecond = 240
	}
	if pointerBurst <= 0 {
		pointerBurst = pointerEventsPerSecond * 2
	}
	return &ControlRouter{
		injector:         injector,
		transfers:        transfers,
		logger:           logger,
		controlEnabled:   controlEnabled,
		clipboardEnabled: clipboardEnabled,
		pointerRate:      rate.Limit(pointerEventsPerSecond),
		pointerBurst:     pointerBurst,
		limiters:         make(map[domain.ParticipantID]*rate.Limiter),
	}
}

// OnClipboard registers a callback for inbound clipboard content.
// Register callbacks before the first frame is routed.
func (r *ControlRouter) OnClipboard(fn func(from domain.ParticipantID, content string)) {
	r.onClipboard = append(r.onClipboard, fn)
}

// SetControlEnabled toggles remote input at runtime. Disabling takes
// effect on the next frame.
func (r *ControlRouter) SetControlEnabled(enabled bool) {
	r.mu.Lock()
	r.controlEnabled = enabled
	r.mu.Unlock()
}

// SetClipboardEnabled toggles clipboard sharing at runtime.
func (r *ControlRouter) SetClipboardEnabled(enabled bool) {
	r.mu.Lock()
	r.clipboardEnabled = enabled
	r.mu.Unlock()
}

// ControlEnabled reports whether remote input frames are honored.
func (r *ControlRouter) ControlEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controlEnabled
}

// ClipboardEnabled reports whether clipboard frames are honored.
func (r *ControlRouter) ClipboardEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clipboardEnabled
}

// HandleFrame decodes and dispatches one raw control frame from a
// remote.
func (r *ControlRouter) HandleFrame(ctx context.Context, from domain.ParticipantID, frame []byte) error {
	msg, err := domain.DecodeControlMessage(frame)
	if err != nil {
		r.logger.Warnw("dropping undecodable control frame",
			"from", from,
			"bytes", len(frame),
			"error", err,
		)
		return err
	}
	return r.Dispatch(ctx, from, msg)
}

// Dispatch routes one decoded message.
func (r *ControlRouter) Dispatch(ctx context.Context, from domain.ParticipantID, msg domain.ControlMessage) error {
	ctx, span := tracing.TraceControlMessage(ctx, string(msg.MessageType()), string(from))
	defer span.End()

	switch m := msg.(type) {
	case domain.PointerMove:
		if !r.ControlEnabled() {
			return domain.ErrControlDisabled
		}
		if !r.limiter(from).Allow() {
			// Position updates are idempotent, excess ones drop.
			return nil
		}
		return r.injector.PointerMove(ctx, m.X, m.Y)
	case domain.PointerButton:
		if !r.ControlEnabled() {
			return domain.ErrControlDisabled
		}
		return r.injector.PointerButton(ctx, m.X, m.Y, m.Button, m.Phase)
	case domain.Scroll:
		if !r.ControlEnabled() {
			return domain.ErrControlDisabled
		}
		return r.injector.Scroll(ctx, m.DX, m.DY)
	case domain.Key:
		if !r.ControlEnabled() {
			return domain.ErrControlDisabled
		}
		return r.injector.Key(ctx, m.Key, m.Code, m.Phase, m.Modifiers)
	case domain.Clipboard:
		if !r.ClipboardEnabled() {
			return domain.ErrClipboardDisabled
		}
		if err := r.injector.SetClipboard(ctx, m.Content); err != nil {
			return err
		}
		for _, fn := range r.onClipboard {
			fn(from, m.Content)
		}
		return nil
	case domain.FileMeta:
		return r.transfers.HandleMeta(from, m)
	case domain.FileChunk:
		return r.transfers.HandleChunk(m)
	case domain.FileComplete:
		_, err := r.transfers.HandleComplete(m)
		return err
	default:
		return domain.ErrUnknownMessageType
	}
}

// DropRemote releases per-remote routing state when a link closes.
func (r *ControlRouter) DropRemote(remoteID domain.ParticipantID) {
	r.mu.Lock()
	delete(r.limiters, remoteID)
	r.mu.Unlock()

	r.transfers.DropFrom(remoteID)
}

func (r *ControlRouter) limiter(remoteID domain.ParticipantID) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	lim, ok := r.limiters[remoteID]
	if !ok {
		lim = rate.NewLimiter(r.pointerRate, r.pointerBurst)
		r.limiters[remoteID] = lim
	}
	return lim
}
