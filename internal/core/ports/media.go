package ports

import (
	"context"

	"desklink/internal/core/domain"
)

// StatsProvider reads cumulative transport counters for one link.
type StatsProvider interface {
	Counters(ctx context.Context, remoteID domain.ParticipantID) (domain.TransportCounters, error)
}

// EncoderControl pushes preset parameters to the local capture encoder.
type EncoderControl interface {
	Apply(ctx context.Context, preset domain.QualityPreset) error
}

// PresetApplier applies a preset to the media path of one link.
type PresetApplier interface {
	ApplyPreset(ctx context.Context, remoteID domain.ParticipantID, preset domain.QualityPreset) error
}
