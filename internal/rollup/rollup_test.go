package rollup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// S2 — Roll-up.
func TestRollUpScenarioS2(t *testing.T) {
	signed := []Instrument{
		{Gamma: 2, Vanna: 5, Charm: -3, Volga: 6, NotionalUSD: 1e6},
		{Gamma: -1, Vanna: 4, Charm: 2, Volga: 3, NotionalUSD: 8e5},
	}
	agg := RollUp(signed)
	require.InDelta(t, 12000.0, agg.NGI, 1e-6)
	require.InDelta(t, 82000.0, agg.VSS, 1e-6)
	require.InDelta(t, -3835.616438, agg.CHL24h, 1e-3)
	require.InDelta(t, 84000.0, agg.VOLG, 1e-6)
}

// S1 — Gamma Flip Basic.
func TestFlipPctScenarioS1(t *testing.T) {
	byStrike := map[float64]float64{
		9000:  -2,
		9500:  -1,
		10000: 0.5,
		10500: 1.2,
	}
	flip, ok := FlipPct(byStrike, 10000)
	require.True(t, ok)
	require.InDelta(t, 0.05, flip, 1e-9)
}

// Boundary: empty per-strike signed gamma -> flip_pct = null.
func TestFlipPctEmpty(t *testing.T) {
	_, ok := FlipPct(map[float64]float64{}, 10000)
	require.False(t, ok)
}

func TestFlipPctNoSignChange(t *testing.T) {
	byStrike := map[float64]float64{9000: 1, 9500: 2, 10000: 3}
	_, ok := FlipPct(byStrike, 10000)
	require.False(t, ok)
}

func TestGammaByStrikeGroupsBySum(t *testing.T) {
	signed := []Instrument{
		{Strike: 100, Gamma: 2},
		{Strike: 100, Gamma: -0.5},
		{Strike: 200, Gamma: 1},
	}
	got := GammaByStrike(signed)
	require.InDelta(t, 1.5, got[100], 1e-9)
	require.InDelta(t, 1.0, got[200], 1e-9)
}

func TestDealerSignDefaultsPositive(t *testing.T) {
	require.Equal(t, 1.0, DealerSign(""))
	require.Equal(t, 1.0, DealerSign("customer SHORT"))
	require.Equal(t, -1.0, DealerSign("customer long"))
}

func TestSpotMoveSignAndChangePct(t *testing.T) {
	require.Equal(t, 1, SpotMoveSign(101, 100))
	require.Equal(t, -1, SpotMoveSign(99, 100))
	require.Equal(t, 0, SpotMoveSign(100, 100))

	require.InDelta(t, 0.01, SpotChangePct(101, 100), 1e-9)
	require.Equal(t, 0.0, SpotChangePct(101, 0))
}

func TestADVPlaceholderFloor(t *testing.T) {
	require.Equal(t, 1.0, ADVPlaceholder(nil))
	got := ADVPlaceholder([]Instrument{{NotionalUSD: 1e9}})
	require.InDelta(t, 1e6, got, 1e-6)
}
