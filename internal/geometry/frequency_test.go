package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEARFCNToFrequencyMHz(t *testing.T) {
	tests := []struct {
		earfcn int
		want   float64
		ok     bool
	}{
		{1800, 1800, true}, // already MHz
		{70, 70, true},
		{50, 2115, true},  // B1
		{6300, 806, true}, // B20
		{6449, 820.9, true},
		{7000, 0, false},
		{-5, 0, false},
	}
	for _, tt := range tests {
		got, ok := EARFCNToFrequencyMHz(tt.earfcn)
		assert.Equal(t, tt.ok, ok, "earfcn=%d", tt.earfcn)
		assert.InDelta(t, tt.want, got, 1e-9, "earfcn=%d", tt.earfcn)
	}
}

func TestEstimateRefLoss(t *testing.T) {
	got, ok := EstimateRefLoss(1800, DefaultLinkBudget)
	require.True(t, ok)
	assert.InDelta(t, 20*math.Log10(1800)+32.44-15+3, got, 1e-9)

	noGain := LinkBudget{}
	got2, ok := EstimateRefLoss(1800, noGain)
	require.True(t, ok)
	assert.InDelta(t, got+12, got2, 1e-9)

	_, ok = EstimateRefLoss(9999, DefaultLinkBudget)
	assert.False(t, ok)
}

func TestRefLossAtFrequency(t *testing.T) {
	fromEARFCN, ok := EstimateRefLoss(6200, DefaultLinkBudget)
	require.True(t, ok)
	assert.InDelta(t, fromEARFCN, RefLossAtFrequency(796, DefaultLinkBudget), 1e-9)
}
