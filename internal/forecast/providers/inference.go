package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/pm25-forecast/internal/forecast"
)

// InferenceClient implements forecast.Model against an HTTP inference service.
//
// Request:  POST {baseURL}/predict {"station_id": "...", "history": [{"time": ..., "pm25": ...}]}
// Response: {"forecast": [f24, f48, f72]}
type InferenceClient struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

type predictRequest struct {
	StationID string                 `json:"station_id"`
	History   []forecast.Observation `json:"history"`
}

type predictResponse struct {
	Forecast []float64 `json:"forecast"`
}

// NewInferenceClient creates a client. requestsPerSec <= 0 disables rate limiting.
func NewInferenceClient(client *http.Client, baseURL string, requestsPerSec int) *InferenceClient {
	var limiter *rate.Limiter
	if requestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Second/time.Duration(requestsPerSec)), requestsPerSec)
	}
	return &InferenceClient{
		name:    "inference",
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
			Limiter: limiter,
		},
		circuit: newCircuitBreaker("inference"),
	}
}

func (c *InferenceClient) Name() string {
	return c.name
}

// Predict asks the inference service for a raw forecast. The vector is
// returned as received; shape checking is left to the engine.
func (c *InferenceClient) Predict(ctx context.Context, stationID string, history []forecast.Observation) ([]float64, error) {
	payload, err := json.Marshal(predictRequest{StationID: stationID, History: history})
	if err != nil {
		return nil, err
	}

	buildRequest := func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, c.baseURL+"/predict", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("inference request for %s: %w", stationID, err)
	}
	defer resp.Body.Close()

	var out predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode inference response for %s: %w", stationID, err)
	}
	if out.Forecast == nil {
		return nil, fmt.Errorf("inference response for %s has no forecast", stationID)
	}
	return out.Forecast, nil
}

var errNoHistory = errors.New("no observation history")

// PersistenceModel is a naive forecast that repeats the latest observation
// for every horizon. It stands in when no inference service is configured.
type PersistenceModel struct{}

func (PersistenceModel) Name() string {
	return "persistence"
}

func (PersistenceModel) Predict(_ context.Context, stationID string, history []forecast.Observation) ([]float64, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("%s: %w", stationID, errNoHistory)
	}
	last := history[len(history)-1].PM25
	out := make([]float64, forecast.HorizonCount)
	for i := range out {
		out[i] = last
	}
	return out, nil
}

var (
	_ forecast.Model = (*InferenceClient)(nil)
	_ forecast.Model = PersistenceModel{}
)
