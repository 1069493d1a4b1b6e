package forecast

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTrust(t *testing.T) {
	p := DefaultParams()

	tests := []struct {
		name      string
		predicted float64
		baseline  float64
		want      float64
	}{
		{"agreement gives ceiling", 100, 100, 0.90},
		{"deviation of 30", 130, 100, 0.75},
		{"deviation of 60 below baseline", 40, 100, 0.60},
		{"deviation at scale gives floor", 150, 0, 0.15},
		{"deviation beyond scale stays at floor", 700, 0, 0.15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, p.EstimateTrust(tt.predicted, tt.baseline), 1e-9)
		})
	}
}

func TestEstimateTrustIsMonotoneAndBounded(t *testing.T) {
	p := DefaultParams()
	prev := p.EstimateTrust(50, 50)
	for d := 1.0; d <= 400; d++ {
		w := p.EstimateTrust(50+d, 50)
		assert.LessOrEqual(t, w, prev, "trust increased at deviation %v", d)
		assert.GreaterOrEqual(t, w, p.TrustFloor)
		assert.LessOrEqual(t, w, p.TrustCeiling)
		prev = w
	}
}

func TestBlendWithoutAnchorBypasses(t *testing.T) {
	p := DefaultParams()

	out, err := p.Blend([]float64{10, 50, 300}, nil)
	require.NoError(t, err)

	assert.False(t, out.Anchored)
	assert.Equal(t, [HorizonCount]float64{10, 50, 300}, out.Blended)
	assert.Equal(t, [HorizonCount]float64{1, 1, 1}, out.Trust)
	assert.Equal(t, [HorizonCount]float64{0, 0, 0}, out.Baselines)
}

func TestBlendAgreeingAnchorKeepsValue(t *testing.T) {
	p := DefaultParams()
	anchor := 50.0

	out, err := p.Blend([]float64{50, 50, 50}, &anchor)
	require.NoError(t, err)

	assert.True(t, out.Anchored)
	for i := range out.Blended {
		assert.InDelta(t, 50, out.Blended[i], 1e-9)
		assert.InDelta(t, 0.90, out.Trust[i], 1e-9)
		assert.InDelta(t, 50, out.Baselines[i], 1e-9)
	}
}

func TestBlendChainsBaselines(t *testing.T) {
	p := DefaultParams()
	anchor := 0.0

	out, err := p.Blend([]float64{300, 300, 300}, &anchor)
	require.NoError(t, err)

	assert.InDelta(t, 45, out.Blended[0], 1e-9)
	assert.InDelta(t, 83.25, out.Blended[1], 1e-9)
	assert.InDelta(t, 115.7625, out.Blended[2], 1e-9)

	// Each horizon is blended against the previous blended value.
	assert.InDelta(t, 0, out.Baselines[0], 1e-9)
	assert.InDelta(t, out.Blended[0], out.Baselines[1], 1e-9)
	assert.InDelta(t, out.Blended[1], out.Baselines[2], 1e-9)
	for _, w := range out.Trust {
		assert.InDelta(t, 0.15, w, 1e-9)
	}
}

func TestBlendRejectsBadInput(t *testing.T) {
	p := DefaultParams()
	anchor := 20.0

	_, err := p.Blend([]float64{1, 2}, &anchor)
	assert.ErrorIs(t, err, ErrForecastShape)

	_, err = p.Blend([]float64{1, 2, 3, 4}, nil)
	assert.ErrorIs(t, err, ErrForecastShape)

	_, err = p.Blend([]float64{1, math.NaN(), 3}, &anchor)
	assert.ErrorIs(t, err, ErrNonFinite)
	assert.Contains(t, err.Error(), "48h")

	_, err = p.Blend([]float64{1, 2, math.Inf(1)}, nil)
	assert.ErrorIs(t, err, ErrNonFinite)

	nan := math.NaN()
	_, err = p.Blend([]float64{1, 2, 3}, &nan)
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestStabilize(t *testing.T) {
	p := DefaultParams()

	t.Run("clamps without previous", func(t *testing.T) {
		out, err := p.Stabilize([HorizonCount]float64{900, -5, 400}, nil)
		require.NoError(t, err)
		assert.Equal(t, [HorizonCount]float64{800, 0, 400}, out)
	})

	t.Run("smooths toward previous", func(t *testing.T) {
		out, err := p.Stabilize([HorizonCount]float64{200, 200, 200}, []float64{100, 100, 100})
		require.NoError(t, err)
		for _, v := range out {
			assert.InDelta(t, 170, v, 1e-9)
		}
	})

	t.Run("limits jumps", func(t *testing.T) {
		out, err := p.Stabilize([HorizonCount]float64{800, 0, 50}, []float64{0, 700, 50})
		require.NoError(t, err)
		assert.InDelta(t, 210, out[0], 1e-9) // 0.7*300
		assert.InDelta(t, 490, out[1], 1e-9) // 0.7*400 + 0.3*700
		assert.InDelta(t, 50, out[2], 1e-9)
	})

	t.Run("clamps out-of-range previous", func(t *testing.T) {
		out, err := p.Stabilize([HorizonCount]float64{10, 10, 10}, []float64{-1000, -1000, -1000})
		require.NoError(t, err)
		for _, v := range out {
			assert.InDelta(t, 7, v, 1e-9) // previous floored to 0
		}

		out, err = p.Stabilize([HorizonCount]float64{900, 900, 900}, []float64{2000, 2000, 2000})
		require.NoError(t, err)
		for _, v := range out {
			assert.InDelta(t, 800, v, 1e-9)
		}
	})

	t.Run("rejects malformed previous", func(t *testing.T) {
		_, err := p.Stabilize([HorizonCount]float64{1, 2, 3}, []float64{1})
		assert.ErrorIs(t, err, ErrForecastShape)

		_, err = p.Stabilize([HorizonCount]float64{1, 2, 3}, []float64{1, math.NaN(), 3})
		assert.ErrorIs(t, err, ErrNonFinite)
	})
}

func TestClassify(t *testing.T) {
	p := DefaultParams()

	tests := []struct {
		value float64
		want  Category
	}{
		{0, CategoryGood},
		{30, CategoryGood},
		{30.01, CategorySatisfactory},
		{60, CategorySatisfactory},
		{90, CategoryModerate},
		{90.5, CategoryPoor},
		{120, CategoryPoor},
		{250, CategoryVeryPoor},
		{250.1, CategorySevere},
		{800, CategorySevere},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Classify(tt.value), "value %v", tt.value)
	}
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"floor above ceiling", func(p *Params) { p.TrustFloor = 0.95 }},
		{"ceiling above one", func(p *Params) { p.TrustCeiling = 1.2 }},
		{"zero deviation scale", func(p *Params) { p.DeviationScale = 0 }},
		{"inverted bounds", func(p *Params) { p.MinValue, p.MaxValue = 10, 5 }},
		{"negative jump", func(p *Params) { p.MaxJump = -1 }},
		{"zero alpha", func(p *Params) { p.Alpha = 0 }},
		{"unsorted bands", func(p *Params) { p.Bands = []Band{{Upper: 60}, {Upper: 30}} }},
		{"no bands", func(p *Params) { p.Bands = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidParams)
		})
	}
}
