package rollup

import "math"

// Scenario labels the dealer-positioning bucket a publish cycle falls into.
type Scenario string

const (
	ScenarioDealerSellMaterial   Scenario = "Dealer Sell Material"
	ScenarioDealerSellImmaterial Scenario = "Dealer Sell Immaterial"
	ScenarioDealerBuyMaterial    Scenario = "Dealer Buy Material"
	ScenarioDealerBuyImmaterial  Scenario = "Dealer Buy Immaterial"
	ScenarioGammaPin             Scenario = "Gamma Pin"
	ScenarioVannaSqueeze         Scenario = "Vanna Squeeze"
	ScenarioNeutral              Scenario = "Neutral"
)

// Flow is the subset of the aggregate record the classifier needs.
type Flow struct {
	NGI    float64
	VSS    float64
	CHL24h float64
	HPP    float64
}

// Classify buckets a publish cycle into a Scenario. Rules are evaluated in
// order; the first match wins.
func Classify(flow Flow, advUSD, spotChangePct float64) Scenario {
	material := math.Abs(flow.NGI) > 0.1*advUSD
	rising := spotChangePct > 0
	falling := spotChangePct < 0

	switch {
	case rising && flow.NGI < 0:
		if material {
			return ScenarioDealerSellMaterial
		}
		return ScenarioDealerSellImmaterial
	case falling && flow.NGI > 0:
		if material {
			return ScenarioDealerBuyMaterial
		}
		return ScenarioDealerBuyImmaterial
	case math.Abs(flow.NGI) < 1e-6:
		return ScenarioGammaPin
	case math.Abs(flow.VSS) > 2*math.Abs(flow.NGI):
		return ScenarioVannaSqueeze
	default:
		return ScenarioNeutral
	}
}
