package ports

import (
	"context"

	"desklink/internal/core/domain"
)

// InputInjector applies remote input to the local desktop. Name reports
// which backend is active so probes and logs can distinguish them.
type InputInjector interface {
	Name() string
	PointerMove(ctx context.Context, x, y float64) error
	PointerButton(ctx context.Context, x, y float64, button domain.PointerButtonName, phase domain.Phase) error
	Scroll(ctx context.Context, dx, dy float64) error
	Key(ctx context.Context, key, code string, phase domain.Phase, modifiers []string) error
	SetClipboard(ctx context.Context, content string) error
	Close() error
}

// AdapterProber re-runs input backend selection at runtime, so an
// operator can promote a helper that came up after the agent started.
type AdapterProber interface {
	ActiveAdapter() string
	Reprobe(ctx context.Context) (string, error)
}
