package rollup

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// S4 — Scenario precedence: Gamma Pin beats Vanna Squeeze.
func TestClassifyScenarioS4(t *testing.T) {
	flow := Flow{NGI: 1e-9, VSS: 100, CHL24h: 0, HPP: 0}
	got := Classify(flow, 1e6, 0)
	require.Equal(t, ScenarioGammaPin, got)
}

// S5 — Dealer sell material.
func TestClassifyScenarioS5(t *testing.T) {
	flow := Flow{NGI: -2e5}
	got := Classify(flow, 1e6, 0.002)
	require.Equal(t, ScenarioDealerSellMaterial, got)
}

func TestClassifyDealerSellImmaterial(t *testing.T) {
	flow := Flow{NGI: -1e3}
	got := Classify(flow, 1e6, 0.002)
	require.Equal(t, ScenarioDealerSellImmaterial, got)
}

func TestClassifyDealerBuyMaterial(t *testing.T) {
	flow := Flow{NGI: 2e5}
	got := Classify(flow, 1e6, -0.002)
	require.Equal(t, ScenarioDealerBuyMaterial, got)
}

func TestClassifyVannaSqueeze(t *testing.T) {
	flow := Flow{NGI: 10, VSS: 100}
	got := Classify(flow, 1e6, 0)
	require.Equal(t, ScenarioVannaSqueeze, got)
}

func TestClassifyNeutral(t *testing.T) {
	flow := Flow{NGI: 10, VSS: 5}
	got := Classify(flow, 1e6, 0)
	require.Equal(t, ScenarioNeutral, got)
}
