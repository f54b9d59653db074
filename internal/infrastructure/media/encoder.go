package media

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"desklink/internal/core/domain"
	"desklink/internal/core/ports"

	"go.uber.org/zap"
)

const encoderWriteTimeout = 2 * time.Second

// encoderCommand is the parameter update pushed to the local encoder
// process when a preset changes.
type encoderCommand struct {
	Op                    string  `json:"op"`
	Preset                string  `json:"preset"`
	VideoMaxBitrateBps    int     `json:"video_max_bitrate_bps"`
	VideoMaxFramerate     int     `json:"video_max_framerate"`
	ScaleResolutionDownBy float64 `json:"scale_resolution_down_by"`
	AudioMaxBitrateBps    int     `json:"audio_max_bitrate_bps"`
}

// EncoderClient applies quality presets to the encoder over its control
// socket. Each apply dials fresh; preset changes are rare enough that a
// persistent connection buys nothing.
type EncoderClient struct {
	socketPath string
	logger     *zap.SugaredLogger

	mu          sync.Mutex
	lastApplied domain.PresetName
}

func NewEncoderClient(socketPath string, logger *zap.SugaredLogger) *EncoderClient {
	return &EncoderClient{socketPath: socketPath, logger: logger}
}

func (e *EncoderClient) Apply(ctx context.Context, preset domain.QualityPreset) error {
	if e.socketPath == "" {
		// No encoder process attached (controller role, or tests).
		e.note(preset.Name)
		return nil
	}

	deadline := time.Now().Add(encoderWriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn, err := net.DialTimeout("unix", e.socketPath, time.Until(deadline))
	if err != nil {
		return fmt.Errorf("failed to reach encoder: %w", err)
	}
	defer conn.Close()
	conn.SetWriteDeadline(deadline)

	cmd := encoderCommand{
		Op:                    "set-params",
		Preset:                string(preset.Name),
		VideoMaxBitrateBps:    preset.Video.MaxBitrate,
		VideoMaxFramerate:     preset.Video.MaxFramerate,
		ScaleResolutionDownBy: preset.Video.ScaleDownBy,
		AudioMaxBitrateBps:    preset.Audio.MaxBitrate,
	}
	if err := json.NewEncoder(conn).Encode(&cmd); err != nil {
		return fmt.Errorf("failed to push encoder params: %w", err)
	}

	e.note(preset.Name)
	e.logger.Infow("encoder params applied",
		"preset", preset.Name,
		"video_bitrate_bps", preset.Video.MaxBitrate,
		"framerate", preset.Video.MaxFramerate,
	)
	return nil
}

// LastApplied returns the most recent preset pushed to the encoder.
func (e *EncoderClient) LastApplied() domain.PresetName {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastApplied
}

func (e *EncoderClient) note(name domain.PresetName) {
	e.mu.Lock()
	e.lastApplied = name
	e.mu.Unlock()
}

var _ ports.EncoderControl = (*EncoderClient)(nil)
