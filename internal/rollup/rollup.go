// Package rollup holds the pure aggregation functions the processor runs
// once per publish cycle: dealer-sign inference, dollar-weighted roll-up,
// gamma-flip distance, hedge-pressure projection and scenario classification.
// None of these functions touch the stream log, a clock, or shared state —
// they take a snapshot of the per-instrument map and return values.
package rollup

import (
	"sort"
	"strings"
)

// Instrument is one row of the processor's per-instrument risk map, taken as
// an immutable snapshot at publish time.
type Instrument struct {
	Gamma       float64
	Vanna       float64
	Charm       float64
	Volga       float64
	NotionalUSD float64
	Strike      float64
	// Side, when non-empty, is the customer-side descriptor used by
	// DealerSign. The live feed never populates it; it exists so a future
	// trade-flow source can plug in without changing this package.
	Side string
}

// DealerSign returns the dealer-side multiplier for an instrument's Side
// field: +1 when Side contains "short" (case-insensitive) or is empty, -1
// otherwise. The default of +1 assumes, absent trade-flow data, that all
// open interest must be hedged as if dealers were short gamma against it.
func DealerSign(side string) float64 {
	if side == "" {
		return 1
	}
	if strings.Contains(strings.ToLower(side), "short") {
		return 1
	}
	return -1
}

// Signed applies DealerSign to an Instrument's four sensitivities, returning
// a copy with Gamma/Vanna/Charm/Volga multiplied by the dealer sign.
func Signed(in Instrument) Instrument {
	mult := DealerSign(in.Side)
	out := in
	out.Gamma *= mult
	out.Vanna *= mult
	out.Charm *= mult
	out.Volga *= mult
	return out
}

// Aggregate is the set of dollar-weighted sums a roll-up produces.
type Aggregate struct {
	NGI     float64
	VSS     float64
	CHL24h  float64
	VOLG    float64
}

// RollUp sums the dealer-signed, notional-weighted sensitivities across every
// instrument in the snapshot.
//
//	NGI     = sum(gamma  * notional) * 0.01
//	VSS     = sum(vanna  * notional) * 0.01
//	CHL_24h = sum(charm  * notional) / 365
//	VOLG    = sum(volga  * notional) * 0.01
func RollUp(signed []Instrument) Aggregate {
	var agg Aggregate
	for _, ins := range signed {
		agg.NGI += ins.Gamma * ins.NotionalUSD
		agg.VSS += ins.Vanna * ins.NotionalUSD
		agg.CHL24h += ins.Charm * ins.NotionalUSD
		agg.VOLG += ins.Volga * ins.NotionalUSD
	}
	agg.NGI *= 0.01
	agg.VSS *= 0.01
	agg.CHL24h /= 365
	agg.VOLG *= 0.01
	return agg
}

// GammaByStrike groups dealer-signed gamma contributions by strike.
func GammaByStrike(signed []Instrument) map[float64]float64 {
	out := make(map[float64]float64, len(signed))
	for _, ins := range signed {
		out[ins.Strike] += ins.Gamma
	}
	return out
}

// FlipPct finds the first strike (in ascending order) where dealer-signed
// gamma changes sign and returns the distance from spot of the strike just
// beyond the flip, as strikes[i+1]/spot - 1. It returns (0, false) when the
// map is empty, spot is zero, or no sign change exists.
func FlipPct(gammaByStrike map[float64]float64, spot float64) (float64, bool) {
	if len(gammaByStrike) == 0 || spot == 0 {
		return 0, false
	}
	strikes := make([]float64, 0, len(gammaByStrike))
	for k := range gammaByStrike {
		strikes = append(strikes, k)
	}
	sort.Float64s(strikes)

	for i := 1; i < len(strikes); i++ {
		prevSign := signOf(gammaByStrike[strikes[i-1]])
		curSign := signOf(gammaByStrike[strikes[i]])
		if prevSign != curSign {
			if i+1 < len(strikes) {
				return strikes[i+1]/spot - 1.0, true
			}
			return strikes[i]/spot - 1.0, true
		}
	}
	return 0, false
}

func signOf(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// HPP computes the Hedge-Pressure Projection: sign(spot move)*NGI +
// alpha*VSS + beta*CHL_24h.
func HPP(spotMoveSign int, ngi, vss, chl24h, alpha, beta float64) float64 {
	return float64(spotMoveSign)*ngi + alpha*vss + beta*chl24h
}

// SpotMoveSign returns 1, -1 or 0 comparing spot to the last published price.
func SpotMoveSign(spot, lastPubPrice float64) int {
	switch {
	case spot > lastPubPrice:
		return 1
	case spot < lastPubPrice:
		return -1
	default:
		return 0
	}
}

// SpotChangePct returns (spot/lastPubPrice - 1), or 0 if lastPubPrice is not
// yet positive (first publish).
func SpotChangePct(spot, lastPubPrice float64) float64 {
	if lastPubPrice <= 0 {
		return 0
	}
	return spot/lastPubPrice - 1.0
}

// ADVPlaceholder derives a liquidity reference from total notional, floored
// at 1 to avoid a zero threshold in Classify. A real average-daily-volume
// signal would replace this (see spec open question iii).
func ADVPlaceholder(signed []Instrument) float64 {
	var total float64
	for _, ins := range signed {
		total += ins.NotionalUSD
	}
	adv := total * 0.001
	if adv < 1 {
		return 1
	}
	return adv
}
