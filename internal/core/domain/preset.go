package domain

type PresetName string

const (
	PresetUltra   PresetName = "ultra"
	PresetHigh    PresetName = "high"
	PresetMedium  PresetName = "medium"
	PresetLow     PresetName = "low"
	PresetMinimal PresetName = "minimal"
)

type VideoParams struct {
	MaxBitrate   int
	MaxFramerate int
	ScaleDownBy  float64
}

type AudioParams struct {
	MaxBitrate int
}

type QualityPreset struct {
	Name  PresetName
	Video VideoParams
	Audio AudioParams
}

// PresetLadder is ordered best to worst. Stepping down means moving to
// a higher index.
var PresetLadder = []QualityPreset{
	{
		Name:  PresetUltra,
		Video: VideoParams{MaxBitrate: 6_000_000, MaxFramerate: 60, ScaleDownBy: 1.0},
		Audio: AudioParams{MaxBitrate: 128_000},
	},
	{
		Name:  PresetHigh,
		Video: VideoParams{MaxBitrate: 3_000_000, MaxFramerate: 30, ScaleDownBy: 1.0},
		Audio: AudioParams{MaxBitrate: 96_000},
	},
	{
		Name:  PresetMedium,
		Video: VideoParams{MaxBitrate: 1_500_000, MaxFramerate: 30, ScaleDownBy: 1.5},
		Audio: AudioParams{MaxBitrate: 64_000},
	},
	{
		Name:  PresetLow,
		Video: VideoParams{MaxBitrate: 800_000, MaxFramerate: 15, ScaleDownBy: 2.0},
		Audio: AudioParams{MaxBitrate: 48_000},
	},
	{
		Name:  PresetMinimal,
		Video: VideoParams{MaxBitrate: 350_000, MaxFramerate: 10, ScaleDownBy: 4.0},
		Audio: AudioParams{MaxBitrate: 32_000},
	},
}

// PresetIndex returns the ladder position of a named preset, or -1 when
// the name is unknown.
func PresetIndex(name PresetName) int {
	for i, p := range PresetLadder {
		if p.Name == name {
			return i
		}
	}
	return -1
}

func PresetByName(name PresetName) (QualityPreset, error) {
	i := PresetIndex(name)
	if i < 0 {
		return QualityPreset{}, ErrUnknownPreset
	}
	return PresetLadder[i], nil
}

// PresetForBandwidth picks the ladder rung whose bitrate a measured
// bandwidth can sustain with headroom.
func PresetForBandwidth(bps float64) QualityPreset {
	switch {
	case bps >= 4_000_000:
		return PresetLadder[PresetIndex(PresetUltra)]
	case bps >= 2_500_000:
		return PresetLadder[PresetIndex(PresetHigh)]
	case bps >= 1_200_000:
		return PresetLadder[PresetIndex(PresetMedium)]
	case bps >= 600_000:
		return PresetLadder[PresetIndex(PresetLow)]
	default:
		return PresetLadder[PresetIndex(PresetMinimal)]
	}
}

type PresetChange struct {
	RemoteID ParticipantID
	Previous PresetName
	Current  PresetName
	Reason   string
	Manual   bool
}
