package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/i474232898/pm25-forecast/internal/forecast"
)

// ValkeyPrevious persists previous-cycle vectors in a Valkey-compatible database.
type ValkeyPrevious struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
}

type previousPayload struct {
	Values    []float64 `json:"values"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewValkeyClient builds a client from either a plain address or a valkey:// URL.
func NewValkeyClient(addr string) (valkey.Client, error) {
	var (
		opt valkey.ClientOption
		err error
	)
	if strings.Contains(addr, "://") {
		opt, err = valkey.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse valkey url: %w", err)
		}
	} else {
		opt = valkey.ClientOption{InitAddress: []string{addr}}
	}
	return valkey.NewClient(opt)
}

// NewValkeyPrevious constructs the store. A ttl of zero keeps entries forever.
func NewValkeyPrevious(client valkey.Client, prefix string, ttl time.Duration) *ValkeyPrevious {
	if prefix == "" {
		prefix = "pm25"
	}
	return &ValkeyPrevious{client: client, prefix: prefix, ttl: ttl}
}

func (s *ValkeyPrevious) LoadPrevious(ctx context.Context, stationID string) ([]float64, bool, error) {
	payload, err := s.client.Do(ctx, s.client.B().Get().Key(s.key(stationID)).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var p previousPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, false, fmt.Errorf("decode previous %q: %w", stationID, err)
	}
	if err := checkPrevious(p.Values); err != nil {
		return nil, false, fmt.Errorf("previous %q: %w", stationID, err)
	}
	return p.Values, true, nil
}

func (s *ValkeyPrevious) SavePrevious(ctx context.Context, stationID string, values []float64) error {
	if err := checkPrevious(values); err != nil {
		return err
	}
	payload, err := json.Marshal(previousPayload{Values: values, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	builder := s.client.B().Set().Key(s.key(stationID)).Value(string(payload))
	var cmd valkey.Completed
	if s.ttl > 0 {
		ttl := s.ttl
		if ttl < time.Second {
			ttl = time.Second
		}
		cmd = builder.Ex(ttl).Build()
	} else {
		cmd = builder.Build()
	}
	return s.client.Do(ctx, cmd).Error()
}

func (s *ValkeyPrevious) key(stationID string) string {
	return fmt.Sprintf("%s:previous:%s", s.prefix, stationID)
}

var _ forecast.PreviousStore = (*ValkeyPrevious)(nil)
