package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/pm25-forecast/internal/forecast"
)

type AppConfig struct {
	Port      string `validate:"required,numeric"`
	LogLevel  string `validate:"oneof=trace debug info warn warning error"`
	LogFormat string `validate:"oneof=json console"`

	// CycleInterval controls how often a forecast cycle runs.
	CycleInterval time.Duration `validate:"gt=0s"`
	// CycleTimeout bounds a whole cycle including model calls.
	CycleTimeout time.Duration `validate:"gt=0s"`
	HTTPTimeout  time.Duration `validate:"gt=0s"`

	// Observation history retention and the window handed to the model.
	HistoryWindow   int           `validate:"gte=1"`
	StoreMaxHistory int           `validate:"gte=0"` // 0 = unlimited
	StoreMaxAge     time.Duration `validate:"gte=0s"`

	// Anchor sources. SafetyFile replaces the live feed when CPCBFeedURL is "off".
	CPCBFeedURL  string `validate:"required"`
	CPCBState    string
	SnapshotPath string
	SafetyFile   string `validate:"required_if=CPCBFeedURL off"`
	StationsFile string

	// Model inference. An empty ModelURL selects the persistence fallback.
	ModelURL         string `validate:"omitempty,url"`
	ModelConcurrency int    `validate:"gte=1,lte=64"`
	ModelRPS         int    `validate:"gte=0"`

	// Stabilization and the store holding the previous cycle's vectors.
	Stabilize     bool
	PreviousStore string `validate:"oneof=memory sqlite valkey"`
	SQLitePath    string `validate:"required_if=PreviousStore sqlite"`
	ValkeyAddr    string `validate:"required_if=PreviousStore valkey"`
	ValkeyPrefix  string
	ValkeyTTL     time.Duration `validate:"gte=0s"`

	PublishDir string

	Params   forecast.Params `validate:"-"`
	Stations StationRegistry `validate:"-"`
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}
	var err error

	cfg.Port = getenvDefault("PORT", "8080")
	cfg.LogLevel = strings.ToLower(getenvDefault("LOG_LEVEL", "info"))
	cfg.LogFormat = strings.ToLower(getenvDefault("LOG_FORMAT", "json"))

	if cfg.CycleInterval, err = getenvDuration("CYCLE_INTERVAL", "1h"); err != nil {
		return nil, err
	}
	if cfg.CycleTimeout, err = getenvDuration("CYCLE_TIMEOUT", "5m"); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", "30s"); err != nil {
		return nil, err
	}

	if cfg.HistoryWindow, err = getenvInt("HISTORY_WINDOW", 48); err != nil {
		return nil, err
	}
	// a week of hourly readings
	if cfg.StoreMaxHistory, err = getenvInt("STORE_MAX_HISTORY", 168); err != nil {
		return nil, err
	}
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "168h"); err != nil {
		return nil, err
	}

	cfg.CPCBFeedURL = getenvDefault("CPCB_FEED_URL", "https://airquality.cpcb.gov.in/caaqms/rss_feed")
	cfg.CPCBState = getenvDefault("CPCB_STATE", "Delhi")
	cfg.SnapshotPath = os.Getenv("SAFETY_SNAPSHOT")
	cfg.SafetyFile = os.Getenv("SAFETY_FILE")
	cfg.StationsFile = os.Getenv("STATIONS_FILE")

	cfg.ModelURL = os.Getenv("MODEL_URL")
	if cfg.ModelConcurrency, err = getenvInt("MODEL_CONCURRENCY", 4); err != nil {
		return nil, err
	}
	if cfg.ModelRPS, err = getenvInt("MODEL_RPS", 5); err != nil {
		return nil, err
	}

	if cfg.Stabilize, err = getenvBool("STABILIZE", true); err != nil {
		return nil, err
	}
	cfg.PreviousStore = strings.ToLower(getenvDefault("PREVIOUS_STORE", "memory"))
	cfg.SQLitePath = getenvDefault("SQLITE_PATH", "data/previous.db")
	cfg.ValkeyAddr = os.Getenv("VALKEY_ADDR")
	cfg.ValkeyPrefix = getenvDefault("VALKEY_PREFIX", "pm25")
	if cfg.ValkeyTTL, err = getenvDuration("VALKEY_TTL", "168h"); err != nil {
		return nil, err
	}

	cfg.PublishDir = os.Getenv("PUBLISH_DIR")

	if cfg.Params, err = loadParams(); err != nil {
		return nil, err
	}

	if cfg.StationsFile != "" {
		cfg.Stations, err = LoadStations(cfg.StationsFile)
	} else {
		cfg.Stations, err = DefaultStations()
	}
	if err != nil {
		return nil, err
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// loadParams applies engine overrides on top of the default constants.
func loadParams() (forecast.Params, error) {
	p := forecast.DefaultParams()
	overrides := []struct {
		key string
		dst *float64
	}{
		{"TRUST_CEILING", &p.TrustCeiling},
		{"TRUST_FLOOR", &p.TrustFloor},
		{"DEVIATION_SCALE", &p.DeviationScale},
		{"PM25_MIN", &p.MinValue},
		{"PM25_MAX", &p.MaxValue},
		{"MAX_JUMP", &p.MaxJump},
		{"SMOOTHING_ALPHA", &p.Alpha},
	}
	for _, o := range overrides {
		v, err := getenvFloat(o.key, *o.dst)
		if err != nil {
			return p, err
		}
		*o.dst = v
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
