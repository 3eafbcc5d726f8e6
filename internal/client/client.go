package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kjstillabower/weather-recorder/internal/models"
	"github.com/kjstillabower/weather-recorder/internal/observability"
)

// CurrentFields are the current-conditions variables requested from Open-Meteo.
var CurrentFields = []string{
	"temperature_2m",
	"surface_pressure",
	"wind_speed_10m",
	"wind_direction_10m",
	"rain",
	"showers",
	"snowfall",
}

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 1 << 20

// OpenMeteoClient fetches current conditions for one fixed location.
// It makes exactly one request per call; there is no retry.
type OpenMeteoClient struct {
	apiURL    string
	latitude  float64
	longitude float64
	client    *http.Client
}

// NewOpenMeteoClient returns a client for apiURL. timeout bounds the whole request.
func NewOpenMeteoClient(apiURL string, latitude, longitude float64, timeout time.Duration) (*OpenMeteoClient, error) {
	u, err := url.Parse(apiURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API URL %q", apiURL)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive, got %v", timeout)
	}
	return &OpenMeteoClient{
		apiURL:    apiURL,
		latitude:  latitude,
		longitude: longitude,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// currentResponse uses pointers so absent fields can be told apart from zero values.
type currentResponse struct {
	Current *struct {
		Temperature     *float64 `json:"temperature_2m"`
		SurfacePressure *float64 `json:"surface_pressure"`
		WindSpeed       *float64 `json:"wind_speed_10m"`
		WindDirection   *float64 `json:"wind_direction_10m"`
		Rain            *float64 `json:"rain"`
		Showers         *float64 `json:"showers"`
		Snowfall        *float64 `json:"snowfall"`
	} `json:"current"`
}

// GetCurrent performs one request. Failures wrap models.ErrTransport (the request did not
// complete or returned a non-2xx status) or models.ErrMalformedResponse.
func (c *OpenMeteoClient) GetCurrent(ctx context.Context) (models.Conditions, error) {
	start := time.Now()

	req, err := c.buildRequest(ctx)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.Conditions{}, fmt.Errorf("%w: build request: %v", models.ErrTransport, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) {
			return models.Conditions{}, fmt.Errorf("%w: request timeout: %w", models.ErrTransport, err)
		}
		return models.Conditions{}, fmt.Errorf("%w: http request failed: %v", models.ErrTransport, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Conditions{}, fmt.Errorf("%w: HTTP %d", models.ErrTransport, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.Conditions{}, fmt.Errorf("%w: read response body: %v", models.ErrTransport, err)
	}

	var apiResp currentResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return models.Conditions{}, fmt.Errorf("%w: parse response: %v", models.ErrMalformedResponse, err)
	}
	return mapResponse(apiResp)
}

func (c *OpenMeteoClient) buildRequest(ctx context.Context) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := baseURL.Query()
	params.Set("latitude", strconv.FormatFloat(c.latitude, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(c.longitude, 'f', -1, 64))
	params.Set("current", strings.Join(CurrentFields, ","))
	params.Set("wind_speed_unit", "ms")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func mapResponse(apiResp currentResponse) (models.Conditions, error) {
	cur := apiResp.Current
	if cur == nil {
		return models.Conditions{}, fmt.Errorf("%w: missing current", models.ErrMalformedResponse)
	}
	fields := []struct {
		name string
		v    *float64
	}{
		{"temperature_2m", cur.Temperature},
		{"surface_pressure", cur.SurfacePressure},
		{"wind_speed_10m", cur.WindSpeed},
		{"wind_direction_10m", cur.WindDirection},
		{"rain", cur.Rain},
		{"showers", cur.Showers},
		{"snowfall", cur.Snowfall},
	}
	for _, f := range fields {
		if f.v == nil {
			return models.Conditions{}, fmt.Errorf("%w: missing current.%s", models.ErrMalformedResponse, f.name)
		}
	}

	return models.Conditions{
		Temperature:        *cur.Temperature,
		SurfacePressureHPa: *cur.SurfacePressure,
		WindSpeed:          *cur.WindSpeed,
		WindDirectionDeg:   *cur.WindDirection,
		Rain:               *cur.Rain,
		Showers:            *cur.Showers,
		Snowfall:           *cur.Snowfall,
	}, nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
