// Package sizing implements EdgeSizer (spec.md §4.10): the cost model,
// net-edge side selection, and Kelly-fraction position sizing used to
// turn a calibrated win probability into a dollar stake.
package sizing

// CostEdge returns the round-trip cost as a fraction of stake:
// 2*(fee_bps+slippage_bps)/10_000.
func CostEdge(feeBps, slippageBps float64) float64 {
	return 2 * (feeBps + slippageBps) / 10_000
}

// LiquidityBuffer returns f(volume) per spec.md §4.10's step function.
func LiquidityBuffer(volume float64) float64 {
	switch {
	case volume >= 500_000:
		return 0
	case volume >= 100_000:
		return 0.005
	case volume >= 25_000:
		return 0.01
	default:
		return 0.02
	}
}

// Side is one candidate outcome for net-edge comparison.
type Side struct {
	Name  string // "YES" or "NO"
	Prob  float64
	Price float64
}

// Decision is the outcome of EdgeSizer's side selection.
type Decision struct {
	Chosen   Side
	RawEdge  float64
	NetEdge  float64
	Rejected bool
	Reason   string
}

// ChooseSide picks the side with the larger net edge and rejects if its
// raw edge fails the minimum-edge threshold, per spec.md §4.10.
func ChooseSide(yes, no Side, feeBps, slippageBps, volume, minEdge, edgeAddon float64) Decision {
	costEdge := CostEdge(feeBps, slippageBps)
	buffer := LiquidityBuffer(volume)

	yesRaw := yes.Prob/yes.Price - 1
	noRaw := no.Prob/no.Price - 1
	yesNet := yesRaw - costEdge - buffer
	noNet := noRaw - costEdge - buffer

	chosen, rawEdge, netEdge := yes, yesRaw, yesNet
	if noNet > yesNet {
		chosen, rawEdge, netEdge = no, noRaw, noNet
	}

	threshold := minEdge + edgeAddon + costEdge + buffer
	if rawEdge < threshold {
		return Decision{Chosen: chosen, RawEdge: rawEdge, NetEdge: netEdge, Rejected: true, Reason: "raw edge below min_edge + addon + cost + liquidity buffer"}
	}
	return Decision{Chosen: chosen, RawEdge: rawEdge, NetEdge: netEdge}
}

// KellyStake returns the fractional stake size for win probability p at
// price m, per spec.md §4.10: b = 1/m - 1; fraction =
// max(0, min(1, kellyMult*(b*p-(1-p))/b)).
func KellyStake(p, m, kellyMult float64) float64 {
	if m <= 0 || m >= 1 {
		return 0
	}
	b := 1/m - 1
	if b == 0 {
		return 0
	}
	fraction := kellyMult * (b*p - (1 - p)) / b
	if fraction < 0 {
		return 0
	}
	if fraction > 1 {
		return 1
	}
	return fraction
}

// StakeUSD converts a Kelly fraction into dollars given current cash.
func StakeUSD(p, m, kellyMult, cash float64) float64 {
	return cash * KellyStake(p, m, kellyMult)
}
