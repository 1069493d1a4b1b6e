package forecast

import (
	"fmt"
	"math"
)

// Band is a category with an inclusive upper bound.
type Band struct {
	Upper    float64
	Category Category
}

// Params are the tunable constants of the reconciliation engine.
type Params struct {
	// Trust weight bounds and the deviation at which trust reaches the floor.
	TrustCeiling   float64
	TrustFloor     float64
	DeviationScale float64
	TrustDecimals  int

	// Physical bounds of a published value.
	MinValue float64
	MaxValue float64

	// Largest change allowed between two publishing cycles.
	MaxJump float64
	// Weight of the new value in cross-cycle smoothing.
	Alpha float64

	// Ascending category bands; anything above the last band is Severe.
	Bands []Band

	DefaultPollutant string
	OutputDecimals   int
}

// DefaultParams returns the production constants.
func DefaultParams() Params {
	return Params{
		TrustCeiling:   0.90,
		TrustFloor:     0.15,
		DeviationScale: 150.0,
		TrustDecimals:  2,
		MinValue:       0,
		MaxValue:       800,
		MaxJump:        300,
		Alpha:          0.7,
		Bands: []Band{
			{Upper: 30, Category: CategoryGood},
			{Upper: 60, Category: CategorySatisfactory},
			{Upper: 90, Category: CategoryModerate},
			{Upper: 120, Category: CategoryPoor},
			{Upper: 250, Category: CategoryVeryPoor},
		},
		DefaultPollutant: "PM2.5",
		OutputDecimals:   1,
	}
}

// Validate reports parameter combinations the engine cannot honour.
func (p Params) Validate() error {
	switch {
	case p.TrustFloor < 0 || p.TrustCeiling > 1 || p.TrustFloor > p.TrustCeiling:
		return fmt.Errorf("%w: trust bounds [%v, %v]", ErrInvalidParams, p.TrustFloor, p.TrustCeiling)
	case p.DeviationScale <= 0:
		return fmt.Errorf("%w: deviation scale %v must be positive", ErrInvalidParams, p.DeviationScale)
	case p.MinValue > p.MaxValue:
		return fmt.Errorf("%w: value bounds [%v, %v]", ErrInvalidParams, p.MinValue, p.MaxValue)
	case p.MinValue < 0:
		return fmt.Errorf("%w: min value %v must not be negative", ErrInvalidParams, p.MinValue)
	case p.MaxJump < 0:
		return fmt.Errorf("%w: max jump %v must not be negative", ErrInvalidParams, p.MaxJump)
	case p.Alpha <= 0 || p.Alpha > 1:
		return fmt.Errorf("%w: alpha %v must be in (0, 1]", ErrInvalidParams, p.Alpha)
	case p.TrustDecimals < 0 || p.OutputDecimals < 0:
		return fmt.Errorf("%w: negative rounding precision", ErrInvalidParams)
	case len(p.Bands) == 0:
		return fmt.Errorf("%w: no category bands", ErrInvalidParams)
	}
	for i := 1; i < len(p.Bands); i++ {
		if p.Bands[i].Upper <= p.Bands[i-1].Upper {
			return fmt.Errorf("%w: category bands must be strictly ascending", ErrInvalidParams)
		}
	}
	return nil
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(v*scale) / scale
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// checkVector validates a model or previous-cycle vector.
func checkVector(name string, v []float64) ([HorizonCount]float64, error) {
	var out [HorizonCount]float64
	if len(v) != HorizonCount {
		return out, fmt.Errorf("%s: %w, got %d", name, ErrForecastShape, len(v))
	}
	for i, x := range v {
		if !isFinite(x) {
			return out, fmt.Errorf("%s[%dh]: %w: %v", name, Horizons[i], ErrNonFinite, x)
		}
		out[i] = x
	}
	return out, nil
}
