package forecast

import (
	"fmt"
	"math"
)

// EstimateTrust returns the weight given to the model when blending predicted
// against baseline. It decays linearly with the deviation between the two,
// from TrustCeiling at zero deviation to TrustFloor at DeviationScale and beyond.
func (p Params) EstimateTrust(predicted, baseline float64) float64 {
	deviation := math.Abs(predicted - baseline)
	decay := math.Min(1.0, deviation/p.DeviationScale)
	w := math.Max(p.TrustFloor, p.TrustCeiling-(p.TrustCeiling-p.TrustFloor)*decay)
	return roundTo(w, p.TrustDecimals)
}

// Blend reconciles a raw model forecast against the anchor value.
//
// Horizons are blended in order and each blended value becomes the baseline of
// the next horizon. A nil anchor bypasses blending: the raw forecast is
// returned with full trust.
func (p Params) Blend(raw []float64, anchor *float64) (BlendOutcome, error) {
	vals, err := checkVector("raw forecast", raw)
	if err != nil {
		return BlendOutcome{}, err
	}
	out := BlendOutcome{Raw: vals}

	if anchor == nil {
		out.Blended = vals
		for i := range out.Trust {
			out.Trust[i] = 1.0
		}
		return out, nil
	}
	if !isFinite(*anchor) {
		return BlendOutcome{}, fmt.Errorf("anchor: %w: %v", ErrNonFinite, *anchor)
	}

	out.Anchored = true
	baseline := *anchor
	for i, predicted := range vals {
		w := p.EstimateTrust(predicted, baseline)
		blended := w*predicted + (1-w)*baseline

		out.Baselines[i] = baseline
		out.Trust[i] = w
		out.Blended[i] = blended

		baseline = blended
	}
	return out, nil
}

// Stabilize bounds a forecast physically and, when the previous cycle's
// published vector is given, limits and smooths the change against it.
func (p Params) Stabilize(current [HorizonCount]float64, previous []float64) ([HorizonCount]float64, error) {
	var out [HorizonCount]float64
	for i, v := range current {
		out[i] = clamp(v, p.MinValue, p.MaxValue)
	}
	if previous == nil {
		return out, nil
	}

	prev, err := checkVector("previous forecast", previous)
	if err != nil {
		return out, err
	}
	for i := range out {
		// Out-of-range previous values are clamped before smoothing.
		prev[i] = clamp(prev[i], p.MinValue, p.MaxValue)
		diff := clamp(out[i]-prev[i], -p.MaxJump, p.MaxJump)
		limited := prev[i] + diff
		out[i] = p.Alpha*limited + (1-p.Alpha)*prev[i]
	}
	return out, nil
}

// Classify maps a non-negative value to its severity category.
func (p Params) Classify(v float64) Category {
	for _, b := range p.Bands {
		if v <= b.Upper {
			return b.Category
		}
	}
	return CategorySevere
}
