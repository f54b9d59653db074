package control

import (
	"context"
	"sync"
	"time"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"

	"go.uber.org/zap"
)

// Selector wraps the active input adapter and allows re-running the
// native-helper probe at runtime. Input frames always go to whichever
// adapter is current at dispatch time.
type Selector struct {
	socketPath   string
	probeTimeout time.Duration
	logger       *zap.SugaredLogger

	mu     sync.RWMutex
	active ports.InputInjector
}

// NewSelector probes once at startup and holds the chosen adapter.
func NewSelector(socketPath string, probeTimeout time.Duration, logger *zap.SugaredLogger) *Selector {
	return &Selector{
		socketPath:   socketPath,
		probeTimeout: probeTimeout,
		logger:       logger,
		active:       Select(socketPath, probeTimeout, logger),
	}
}

// ActiveAdapter reports which backend currently receives input.
func (s *Selector) ActiveAdapter() string {
	return s.current().Name()
}

// Reprobe re-runs adapter selection. When the backend changes, the old
// adapter is closed after the swap so in-flight frames finish against
// a live connection.
func (s *Selector) Reprobe(ctx context.Context) (string, error) {
	next := Select(s.socketPath, s.probeTimeout, s.logger)

	s.mu.Lock()
	prev := s.active
	if prev.Name() == next.Name() {
		s.mu.Unlock()
		_ = next.Close()
		return prev.Name(), nil
	}
	s.active = next
	s.mu.Unlock()

	s.logger.Infow("input adapter switched",
		"previous", prev.Name(),
		"current", next.Name(),
	)
	if err := prev.Close(); err != nil {
		s.logger.Debugw("closing previous input adapter", "error", err)
	}
	return next.Name(), nil
}

func (s *Selector) current() ports.InputInjector {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *Selector) Name() string { return s.current().Name() }

func (s *Selector) PointerMove(ctx context.Context, x, y float64) error {
	return s.current().PointerMove(ctx, x, y)
}

func (s *Selector) PointerButton(ctx context.Context, x, y float64, button domain.PointerButtonName, phase domain.Phase) error {
	return s.current().PointerButton(ctx, x, y, button, phase)
}

func (s *Selector) Scroll(ctx context.Context, dx, dy float64) error {
	return s.current().Scroll(ctx, dx, dy)
}

func (s *Selector) Key(ctx context.Context, key, code string, phase domain.Phase, modifiers []string) error {
	return s.current().Key(ctx, key, code, phase, modifiers)
}

func (s *Selector) SetClipboard(ctx context.Context, content string) error {
	return s.current().SetClipboard(ctx, content)
}

func (s *Selector) Close() error {
	return s.current().Close()
}
