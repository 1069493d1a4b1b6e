package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/pm25-forecast/internal/forecast"
)

func TestInferenceClientPredict(t *testing.T) {
	received := make(chan predictRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predict", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req predictRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		received <- req
		_, _ = w.Write([]byte(`{"forecast":[120.5,130,140]}`))
	}))
	defer srv.Close()

	client := NewInferenceClient(srv.Client(), srv.URL+"/", 0)
	history := []forecast.Observation{
		{Time: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC), PM25: 100},
		{Time: time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC), PM25: 110},
	}

	out, err := client.Predict(context.Background(), "Alipur_Delhi", history)
	require.NoError(t, err)
	assert.Equal(t, []float64{120.5, 130, 140}, out)
	got := <-received
	assert.Equal(t, "Alipur_Delhi", got.StationID)
	assert.Len(t, got.History, 2)
}

func TestInferenceClientErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"bad request", `{}`, http.StatusBadRequest},
		{"missing forecast", `{}`, http.StatusOK},
		{"malformed body", `{"forecast":`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewInferenceClient(srv.Client(), srv.URL, 10).Predict(context.Background(), "s", nil)
			assert.Error(t, err)
		})
	}
}

func TestInferenceClientPassesMalformedVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"forecast":[1,2]}`))
	}))
	defer srv.Close()

	out, err := NewInferenceClient(srv.Client(), srv.URL, 0).Predict(context.Background(), "s", nil)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestPersistenceModel(t *testing.T) {
	m := PersistenceModel{}

	out, err := m.Predict(context.Background(), "s", []forecast.Observation{{PM25: 10}, {PM25: 64}})
	require.NoError(t, err)
	assert.Equal(t, []float64{64, 64, 64}, out)

	_, err = m.Predict(context.Background(), "s", nil)
	assert.True(t, errors.Is(err, errNoHistory))
}

func TestDoRequestWithResilienceRejectsMissingClient(t *testing.T) {
	_, err := doRequestWithResilience(context.Background(), HTTPClientConfig{Backoff: defaultBackoff()}, newCircuitBreaker("t"),
		func() (*http.Request, error) { return http.NewRequest(http.MethodGet, "http://example.invalid", nil) })
	assert.ErrorIs(t, err, errNoHTTPClient)
}
