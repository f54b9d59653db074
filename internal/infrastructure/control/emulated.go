package control

import (
	"context"
	"sync"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"

	"go.uber.org/zap"
)

// PointerState is the virtual cursor the emulated adapter maintains.
// Coordinates stay normalized; the UI overlay scales them for display.
type PointerState struct {
	X           float64
	Y           float64
	ButtonsDown map[domain.PointerButtonName]bool
}

// EmulatedEvent is what the overlay listener receives for each applied
// input event.
type EmulatedEvent struct {
	Kind      string
	X, Y      float64
	DX, DY    float64
	Button    domain.PointerButtonName
	Key       string
	Code      string
	Phase     domain.Phase
	Modifiers []string
	Clipboard string
}

// EmulatedAdapter simulates input without touching the OS. It tracks a
// virtual pointer, held buttons and modifiers, and the last clipboard
// content, and replays every event to an optional listener so the host
// UI can render remote activity.
type EmulatedAdapter struct {
	logger *zap.SugaredLogger

	mu        sync.Mutex
	pointer   PointerState
	modifiers map[string]bool
	clipboard string
	listener  func(EmulatedEvent)
}

func NewEmulatedAdapter(logger *zap.SugaredLogger) *EmulatedAdapter {
	return &EmulatedAdapter{
		logger:    logger,
		pointer:   PointerState{ButtonsDown: make(map[domain.PointerButtonName]bool)},
		modifiers: make(map[string]bool),
	}
}

func (a *EmulatedAdapter) Name() string { return "emulated" }

// SetListener installs the overlay hook. Pass nil to detach.
func (a *EmulatedAdapter) SetListener(fn func(EmulatedEvent)) {
	a.mu.Lock()
	a.listener = fn
	a.mu.Unlock()
}

func (a *EmulatedAdapter) PointerMove(_ context.Context, x, y float64) error {
	a.mu.Lock()
	a.pointer.X = x
	a.pointer.Y = y
	fn := a.listener
	a.mu.Unlock()

	if fn != nil {
		fn(EmulatedEvent{Kind: "pointer-move", X: x, Y: y})
	}
	return nil
}

func (a *EmulatedAdapter) PointerButton(_ context.Context, x, y float64, button domain.PointerButtonName, phase domain.Phase) error {
	a.mu.Lock()
	a.pointer.X = x
	a.pointer.Y = y
	a.pointer.ButtonsDown[button] = phase == domain.PhaseDown
	fn := a.listener
	a.mu.Unlock()

	if fn != nil {
		fn(EmulatedEvent{Kind: "pointer-button", X: x, Y: y, Button: button, Phase: phase})
	}
	return nil
}

func (a *EmulatedAdapter) Scroll(_ context.Context, dx, dy float64) error {
	a.mu.Lock()
	fn := a.listener
	a.mu.Unlock()

	if fn != nil {
		fn(EmulatedEvent{Kind: "scroll", DX: dx, DY: dy})
	}
	return nil
}

func (a *EmulatedAdapter) Key(_ context.Context, key, code string, phase domain.Phase, modifiers []string) error {
	a.mu.Lock()
	if isModifier(code) {
		a.modifiers[code] = phase == domain.PhaseDown
	}
	fn := a.listener
	a.mu.Unlock()

	if fn != nil {
		fn(EmulatedEvent{Kind: "key", Key: key, Code: code, Phase: phase, Modifiers: modifiers})
	}
	return nil
}

func (a *EmulatedAdapter) SetClipboard(_ context.Context, content string) error {
	a.mu.Lock()
	a.clipboard = content
	fn := a.listener
	a.mu.Unlock()

	if fn != nil {
		fn(EmulatedEvent{Kind: "clipboard", Clipboard: content})
	}
	return nil
}

// Pointer returns a copy of the virtual pointer state.
func (a *EmulatedAdapter) Pointer() PointerState {
	a.mu.Lock()
	defer a.mu.Unlock()

	state := PointerState{
		X:           a.pointer.X,
		Y:           a.pointer.Y,
		ButtonsDown: make(map[domain.PointerButtonName]bool, len(a.pointer.ButtonsDown)),
	}
	for button, down := range a.pointer.ButtonsDown {
		state.ButtonsDown[button] = down
	}
	return state
}

// Clipboard returns the last clipboard content pushed by a remote.
func (a *EmulatedAdapter) Clipboard() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.clipboard
}

// ModifiersDown lists the modifier codes currently held.
func (a *EmulatedAdapter) ModifiersDown() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var down []string
	for code, held := range a.modifiers {
		if held {
			down = append(down, code)
		}
	}
	return down
}

func (a *EmulatedAdapter) Close() error {
	a.SetListener(nil)
	return nil
}

func isModifier(code string) bool {
	switch code {
	case "ShiftLeft", "ShiftRight", "ControlLeft", "ControlRight",
		"AltLeft", "AltRight", "MetaLeft", "MetaRight":
		return true
	}
	return false
}

var _ ports.InputInjector = (*EmulatedAdapter)(nil)
