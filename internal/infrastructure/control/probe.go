package control

import (
	"net"
	"time"

	"desklink/internal/core/ports"

	"go.uber.org/zap"
)

// Probe dials the helper socket once. A reachable helper answers the
// dial; nothing is written.
func Probe(socketPath string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// Select probes the native helper and picks the adapter for this
// session: native when the helper answers, emulated otherwise. The
// fallback is a notice, not an error.
func Select(socketPath string, probeTimeout time.Duration, logger *zap.SugaredLogger) ports.InputInjector {
	if socketPath == "" {
		logger.Info("no input helper socket configured, using emulated input")
		return NewEmulatedAdapter(logger)
	}
	if err := Probe(socketPath, probeTimeout); err != nil {
		logger.Warnw("input helper unreachable, falling back to emulated input",
			"socket", socketPath,
			"error", err,
		)
		return NewEmulatedAdapter(logger)
	}
	logger.Infow("input helper reachable, using native input", "socket", socketPath)
	return NewNativeAdapter(socketPath, probeTimeout, logger)
}
