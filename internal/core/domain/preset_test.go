package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetLadder_OrderedBestToWorst(t *testing.T) {
	require.Len(t, PresetLadder, 5)
	assert.Equal(t, PresetUltra, PresetLadder[0].Name)
	assert.Equal(t, PresetMinimal, PresetLadder[len(PresetLadder)-1].Name)

	for i := 1; i < len(PresetLadder); i++ {
		assert.Less(t, PresetLadder[i].Video.MaxBitrate, PresetLadder[i-1].Video.MaxBitrate,
			"video bitrate must decrease down the ladder")
		assert.LessOrEqual(t, PresetLadder[i].Video.MaxFramerate, PresetLadder[i-1].Video.MaxFramerate)
		assert.GreaterOrEqual(t, PresetLadder[i].Video.ScaleDownBy, PresetLadder[i-1].Video.ScaleDownBy)
		assert.Less(t, PresetLadder[i].Audio.MaxBitrate, PresetLadder[i-1].Audio.MaxBitrate)
	}
}

func TestPresetByName(t *testing.T) {
	p, err := PresetByName(PresetMedium)
	require.NoError(t, err)
	assert.Equal(t, 1_500_000, p.Video.MaxBitrate)

	_, err = PresetByName("4k")
	assert.ErrorIs(t, err, ErrUnknownPreset)
}

func TestPresetForBandwidth(t *testing.T) {
	tests := []struct {
		bps  float64
		want PresetName
	}{
		{10_000_000, PresetUltra},
		{4_000_000, PresetUltra},
		{3_999_999, PresetHigh},
		{2_500_000, PresetHigh},
		{2_000_000, PresetMedium},
		{1_200_000, PresetMedium},
		{900_000, PresetLow},
		{600_000, PresetLow},
		{400_000, PresetMinimal},
		{0, PresetMinimal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, PresetForBandwidth(tt.bps).Name, "bandwidth %v", tt.bps)
	}
}
