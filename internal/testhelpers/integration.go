//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/kjstillabower/weather-recorder/internal/client"
	"github.com/kjstillabower/weather-recorder/internal/config"
	"github.com/kjstillabower/weather-recorder/internal/ingest"
	"github.com/kjstillabower/weather-recorder/internal/store"
	"github.com/kjstillabower/weather-recorder/internal/units"
)

// IntegrationTestConfig holds configuration for integration tests against the live provider.
type IntegrationTestConfig struct {
	APIURL    string
	Latitude  float64
	Longitude float64
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test unless WEATHER_INTEGRATION=1, since it calls the real provider.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	if os.Getenv("WEATHER_INTEGRATION") != "1" {
		t.Skip("WEATHER_INTEGRATION not set, skipping integration test")
	}

	cfg := IntegrationTestConfig{
		APIURL:    config.DefaultWeatherAPIURL,
		Latitude:  config.DefaultLatitude,
		Longitude: config.DefaultLongitude,
	}
	if v := os.Getenv("WEATHER_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("WEATHER_LATITUDE"), 64); err == nil {
		cfg.Latitude = v
	}
	if v, err := strconv.ParseFloat(os.Getenv("WEATHER_LONGITUDE"), 64); err == nil {
		cfg.Longitude = v
	}
	return cfg
}

// SetupIntegrationClient creates a provider client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenMeteoClient {
	t.Helper()
	c, err := client.NewOpenMeteoClient(cfg.APIURL, cfg.Latitude, cfg.Longitude, 10*time.Second)
	if err != nil {
		t.Fatalf("NewOpenMeteoClient() error = %v", err)
	}
	return c
}

// SetupIntegrationTask wires the live client to a store in a temp directory.
// The store is closed when the test ends.
func SetupIntegrationTask(t *testing.T, cfg IntegrationTestConfig) (*ingest.Task, *store.Store) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "weather_data.db"), nil)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return ingest.NewTask(SetupIntegrationClient(t, cfg), st, units.RussianLabels, nil), st
}
