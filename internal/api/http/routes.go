package httpapi

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/pm25-forecast/internal/forecast"
	"github.com/i474232898/pm25-forecast/internal/store"
)

var validate = validator.New()

// ForecastService is the part of forecast.Service the HTTP layer uses.
type ForecastService interface {
	Latest() (forecast.Document, error)
	LatestFor(stationID string) (forecast.Record, error)
	Reconcile(in forecast.StationInput, raw []float64, anchor *forecast.Anchor) (forecast.Record, error)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service ForecastService) {
	v1 := app.Group("/api/v1")

	v1.Get("/forecasts", func(c *fiber.Ctx) error {
		doc, err := service.Latest()
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no forecast published yet")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load forecasts")
		}
		return c.JSON(doc)
	})

	v1.Get("/forecasts/:stationID", func(c *fiber.Ctx) error {
		rec, err := service.LatestFor(c.Params("stationID"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) || errors.Is(err, forecast.ErrUnknownStation) {
				return fiber.NewError(fiber.StatusNotFound, "no forecast for requested station")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to load forecast")
		}
		return c.JSON(rec)
	})

	v1.Post("/reconcile", func(c *fiber.Ctx) error {
		var req reconcileRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		rec, err := service.Reconcile(req.stationInput(), req.Raw, req.anchor())
		if err != nil {
			if isContractViolation(err) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, "reconciliation failed")
		}
		return c.JSON(rec)
	})
}

// reconcileRequest is the body of an ad-hoc reconciliation.
type reconcileRequest struct {
	StationID string         `json:"station_id" validate:"required"`
	Lat       float64        `json:"lat" validate:"gte=-90,lte=90"`
	Lon       float64        `json:"lon" validate:"gte=-180,lte=180"`
	Raw       []float64      `json:"raw" validate:"required,len=3"`
	Anchor    *anchorRequest `json:"anchor"`
	Previous  []float64      `json:"previous" validate:"omitempty,len=3,dive,gte=0"`
}

type anchorRequest struct {
	CurrentValue      *float64 `json:"current_value" validate:"omitempty,gte=0"`
	Timestamp         string   `json:"timestamp"`
	DominantPollutant string   `json:"dominant_pollutant"`
	IndexValue        *float64 `json:"index_value"`
	SourceTag         string   `json:"source_tag"`
}

func (r reconcileRequest) stationInput() forecast.StationInput {
	return forecast.StationInput{
		Station:  forecast.Station{ID: r.StationID, Lat: r.Lat, Lon: r.Lon},
		Previous: r.Previous,
	}
}

func (r reconcileRequest) anchor() *forecast.Anchor {
	if r.Anchor == nil {
		return nil
	}
	return &forecast.Anchor{
		Value:             r.Anchor.CurrentValue,
		Timestamp:         r.Anchor.Timestamp,
		DominantPollutant: r.Anchor.DominantPollutant,
		Index:             r.Anchor.IndexValue,
		Source:            r.Anchor.SourceTag,
	}
}

func isContractViolation(err error) bool {
	return errors.Is(err, forecast.ErrForecastShape) ||
		errors.Is(err, forecast.ErrNonFinite) ||
		errors.Is(err, forecast.ErrMissingStationID)
}
