package blackscholes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

// S3 — BS sanity: S=K=100, r=0, sigma=0.1, T=0.5 -> gamma ~= 0.079788.
func TestComputeSanity(t *testing.T) {
	require.True(t, Valid(0.5, 0.1, 100))
	g := Compute(100, 100, 0.5, 0, 0.1)
	require.InDelta(t, 0.079788, g.Gamma, 1e-6)
}

func TestComputeNoNaN(t *testing.T) {
	g := Compute(100, 100, 1, 0, 0.5)
	require.False(t, math.IsNaN(g.Gamma))
	require.False(t, math.IsNaN(g.Vanna))
	require.False(t, math.IsNaN(g.Charm))
	require.False(t, math.IsNaN(g.Volga))
}

func TestValid(t *testing.T) {
	require.True(t, Valid(0.1, 0.2, 100))
	require.False(t, Valid(0, 0.2, 100))
	require.False(t, Valid(0.1, 0, 100))
	require.False(t, Valid(0.1, 0.2, 0))
	require.False(t, Valid(-1, 0.2, 100))
}

func TestComputeDeterministic(t *testing.T) {
	a := Compute(110, 100, 0.25, 0, 0.6)
	b := Compute(110, 100, 0.25, 0, 0.6)
	require.Equal(t, a, b)
}
