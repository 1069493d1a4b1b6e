package forecast

import (
	"errors"
	"fmt"
)

var (
	// ErrForecastShape is returned when a forecast vector does not have one value per horizon.
	ErrForecastShape = errors.New("forecast vector must have exactly 3 values")
	// ErrNonFinite is returned when a forecast, anchor or previous value is NaN or infinite.
	ErrNonFinite = errors.New("non-finite value")
	// ErrInvalidParams is returned by Params.Validate.
	ErrInvalidParams = errors.New("invalid reconciliation params")
)

// StationError ties an engine error to the station it happened for.
type StationError struct {
	StationID string
	Err       error
}

func (e *StationError) Error() string {
	return fmt.Sprintf("station %s: %v", e.StationID, e.Err)
}

func (e *StationError) Unwrap() error {
	return e.Err
}
