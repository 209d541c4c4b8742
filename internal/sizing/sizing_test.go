package sizing

import (
	"math"
	"testing"
)

func TestKellyStakeZeroAtFairPrice(t *testing.T) {
	for _, m := range []float64{0.3, 0.5, 0.7} {
		got := KellyStake(m, m, 1.0)
		if math.Abs(got) > 1e-9 {
			t.Errorf("kelly_stake(p=m=%v, m, 1.0) = %v, want 0", m, got)
		}
	}
}

func TestKellyStakeKnownValue(t *testing.T) {
	got := KellyStake(0.6, 0.5, 1.0)
	want := 0.20
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("kelly_stake(0.6, 0.5, 1.0) = %v, want %v", got, want)
	}
}

func TestKellyStakeClampedToZeroWhenNegative(t *testing.T) {
	got := KellyStake(0.3, 0.5, 1.0)
	if got != 0 {
		t.Errorf("expected negative edge to clamp to 0, got %v", got)
	}
}

func TestLiquidityBufferStepFunction(t *testing.T) {
	cases := []struct {
		volume float64
		want   float64
	}{
		{600_000, 0},
		{150_000, 0.005},
		{30_000, 0.01},
		{1_000, 0.02},
	}
	for _, c := range cases {
		if got := LiquidityBuffer(c.volume); got != c.want {
			t.Errorf("LiquidityBuffer(%v) = %v, want %v", c.volume, got, c.want)
		}
	}
}

func TestChooseSidePicksLargerNetEdge(t *testing.T) {
	yes := Side{Name: "YES", Prob: 0.70, Price: 0.55}
	no := Side{Name: "NO", Prob: 0.30, Price: 0.45}

	d := ChooseSide(yes, no, 100, 50, 200_000, 0.05, 0)
	if d.Chosen.Name != "YES" {
		t.Errorf("expected YES to have the larger net edge, got %s", d.Chosen.Name)
	}
	if d.Rejected {
		t.Errorf("expected this edge to clear the threshold, got rejected: %s", d.Reason)
	}
}

func TestChooseSideRejectsBelowThreshold(t *testing.T) {
	yes := Side{Name: "YES", Prob: 0.52, Price: 0.50}
	no := Side{Name: "NO", Prob: 0.48, Price: 0.50}

	d := ChooseSide(yes, no, 100, 50, 1_000, 0.10, 0)
	if !d.Rejected {
		t.Error("expected a thin edge with a high liquidity buffer to be rejected")
	}
}
