package calibration

import (
	"math/rand"
	"testing"

	"github.com/tradecore/inplay/internal/model"
)

// syntheticOverconfident builds samples where raw = sigmoid(1.8*logit(true)+0)
// for a ground-truth probability `true`, then samples a binary outcome from
// that true probability — the model in spec.md §8's testable property.
func syntheticOverconfident(n int, seed int64) []Sample {
	rng := rand.New(rand.NewSource(seed))
	samples := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		truth := 0.05 + rng.Float64()*0.90
		raw := sigmoid(1.8*logit(truth) + 0)
		outcome := rng.Float64() < truth
		samples = append(samples, Sample{PRaw: raw, Outcome: outcome})
	}
	return samples
}

func TestFitImprovesOverOverconfidentRaw(t *testing.T) {
	samples := syntheticOverconfident(400, 42)

	result, err := Fit(model.SportSoccer, samples, 500, 0.1, 0.001, 0.0)
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	if !(result.Model.LogLossAfter < result.Model.LogLossBefore) {
		t.Errorf("post-fit logloss %v should be less than pre-fit logloss %v",
			result.Model.LogLossAfter, result.Model.LogLossBefore)
	}
}

func TestFitRejectsTooFewSamples(t *testing.T) {
	samples := []Sample{
		{PRaw: 0.6, Outcome: true},
		{PRaw: 0.4, Outcome: false},
	}
	if _, err := Fit(model.SportSoccer, samples, 100, 0.1, 0.001, 0.0); err == nil {
		t.Error("expected error for fewer than 8 samples")
	}
}

func TestFitRejectsSingleClassLabels(t *testing.T) {
	samples := make([]Sample, 10)
	for i := range samples {
		samples[i] = Sample{PRaw: 0.3 + float64(i)*0.01, Outcome: true}
	}
	if _, err := Fit(model.SportSoccer, samples, 100, 0.1, 0.001, 0.0); err == nil {
		t.Error("expected error for single-class labels")
	}
}

func TestPromotionGatedByRelativeImprovement(t *testing.T) {
	samples := syntheticOverconfident(400, 7)

	result, err := Fit(model.SportBasketball, samples, 500, 0.1, 0.001, 1.0)
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	if result.Promoted {
		t.Error("a 100% relative-improvement threshold should never be met, expected no promotion")
	}

	result2, err := Fit(model.SportBasketball, samples, 500, 0.1, 0.001, 0.0001)
	if err != nil {
		t.Fatalf("Fit returned error: %v", err)
	}
	if !result2.Promoted {
		t.Error("a near-zero relative-improvement threshold should be met, expected promotion")
	}
}

func TestRegistryApplyIdentityWithoutModel(t *testing.T) {
	reg := NewRegistry()
	p := reg.Apply(model.SportSoccer, 0.8)
	if p != 0.8 {
		t.Errorf("Apply without a promoted model should be identity, got %v", p)
	}
}

func TestRegistryApplyUsesPromotedModel(t *testing.T) {
	reg := NewRegistry()
	reg.Promote(model.CalibrationModel{Sport: model.SportSoccer, A: 0.5, B: 0.1})

	p := reg.Apply(model.SportSoccer, 0.8)
	want := sigmoid(0.5*logit(0.8) + 0.1)
	if p != want {
		t.Errorf("Apply with promoted model = %v, want %v", p, want)
	}
}
