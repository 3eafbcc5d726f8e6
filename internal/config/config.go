package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Defaults reproduce the single-station setup the recorder was built for.
const (
	DefaultWeatherAPIURL = "https://api.open-meteo.com/v1/forecast"
	DefaultLatitude      = 55.691830566
	DefaultLongitude     = 37.354665248
	DefaultFetchInterval = 3 * time.Minute
	DefaultStorePath     = "weather_data.db"
	DefaultExportPath    = "weather_data.xlsx"
	DefaultExportSheet   = "weather_data"
	DefaultStatusAddr    = "127.0.0.1:8089"
)

// Config holds recorder configuration loaded from YAML and env.
type Config struct {
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	Latitude          float64
	Longitude         float64

	FetchInterval time.Duration
	RunOnStart    bool
	FetchTimeout  time.Duration

	StorePath string

	ExportPath  string
	ExportSheet string

	CompassLabels string // "ru" or "en"

	LogLevel  string
	LogFormat string
	LogFile   string

	StatusAddr           string // empty disables the status surface
	StatusRateLimitRPS   int
	StatusRateLimitBurst int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	ShutdownTimeout      time.Duration
}

type fileConfig struct {
	WeatherAPI struct {
		URL       string   `yaml:"url"`
		Timeout   string   `yaml:"timeout"`
		Latitude  *float64 `yaml:"latitude"`
		Longitude *float64 `yaml:"longitude"`
	} `yaml:"weather_api"`

	Schedule struct {
		Interval   string `yaml:"interval"`
		RunOnStart bool   `yaml:"run_on_start"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"schedule"`

	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`

	Export struct {
		Path  string `yaml:"path"`
		Sheet string `yaml:"sheet"`
	} `yaml:"export"`

	Compass struct {
		Labels string `yaml:"labels"`
	} `yaml:"compass"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"log"`

	Status struct {
		Addr             *string `yaml:"addr"`
		RateLimitRPS     int     `yaml:"rate_limit_rps"`
		RateLimitBurst   int     `yaml:"rate_limit_burst"`
		DegradedWindow   string  `yaml:"degraded_window"`
		DegradedErrorPct int     `yaml:"degraded_error_pct"`
		ShutdownTimeout  string  `yaml:"shutdown_timeout"`
	} `yaml:"status"`
}

// Load reads an optional .env, then CONFIG_FILE or config/{ENV_NAME}.yaml (default dev)
// relative to the working directory. A missing config file yields defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		env := os.Getenv("ENV_NAME")
		if env == "" {
			env = "dev"
		}
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: get working directory: %w", err)
		}
		path = filepath.Join(cwd, "config", env+".yaml")
	}
	return LoadFile(path)
}

// LoadFile reads configuration from path and applies env overrides and defaults.
func LoadFile(path string) (*Config, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// defaults only
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	cfg.WeatherAPIURL = firstNonEmpty(os.Getenv("WEATHER_API_URL"), fc.WeatherAPI.URL, DefaultWeatherAPIURL)
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 10*time.Second)
	cfg.Latitude = DefaultLatitude
	if fc.WeatherAPI.Latitude != nil {
		cfg.Latitude = *fc.WeatherAPI.Latitude
	}
	cfg.Longitude = DefaultLongitude
	if fc.WeatherAPI.Longitude != nil {
		cfg.Longitude = *fc.WeatherAPI.Longitude
	}

	cfg.FetchInterval = parseDuration(firstNonEmpty(os.Getenv("FETCH_INTERVAL"), fc.Schedule.Interval), DefaultFetchInterval)
	cfg.RunOnStart = fc.Schedule.RunOnStart
	cfg.FetchTimeout = parseDuration(fc.Schedule.Timeout, 30*time.Second)

	cfg.StorePath = firstNonEmpty(os.Getenv("WEATHER_DB_PATH"), fc.Store.Path, DefaultStorePath)
	cfg.ExportPath = firstNonEmpty(os.Getenv("WEATHER_EXPORT_PATH"), fc.Export.Path, DefaultExportPath)
	cfg.ExportSheet = firstNonEmpty(fc.Export.Sheet, DefaultExportSheet)

	cfg.CompassLabels = strings.ToLower(firstNonEmpty(fc.Compass.Labels, "ru"))

	cfg.LogLevel = firstNonEmpty(os.Getenv("LOG_LEVEL"), fc.Log.Level, "info")
	cfg.LogFormat = firstNonEmpty(fc.Log.Format, "json")
	cfg.LogFile = fc.Log.File

	cfg.StatusAddr = DefaultStatusAddr
	if fc.Status.Addr != nil {
		cfg.StatusAddr = strings.TrimSpace(*fc.Status.Addr)
	}
	if v, ok := os.LookupEnv("STATUS_ADDR"); ok {
		cfg.StatusAddr = strings.TrimSpace(v)
	}
	cfg.StatusRateLimitRPS = fc.Status.RateLimitRPS
	if cfg.StatusRateLimitRPS <= 0 {
		cfg.StatusRateLimitRPS = 10
	}
	cfg.StatusRateLimitBurst = fc.Status.RateLimitBurst
	if cfg.StatusRateLimitBurst <= 0 {
		cfg.StatusRateLimitBurst = 20
	}
	cfg.DegradedWindow = parseDuration(fc.Status.DegradedWindow, 30*time.Minute)
	cfg.DegradedErrorPct = fc.Status.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}
	cfg.ShutdownTimeout = parseDuration(fc.Status.ShutdownTimeout, 2*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (validate rejects them).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// FetchTimeout is raised to cover the provider timeout when it is shorter.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	u, err := url.Parse(cfg.WeatherAPIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("weather_api.url must be an absolute URL, got %q", cfg.WeatherAPIURL)
	}
	if cfg.Latitude < -90 || cfg.Latitude > 90 {
		return fmt.Errorf("weather_api.latitude must be within [-90, 90], got %v", cfg.Latitude)
	}
	if cfg.Longitude < -180 || cfg.Longitude > 180 {
		return fmt.Errorf("weather_api.longitude must be within [-180, 180], got %v", cfg.Longitude)
	}
	if cfg.FetchTimeout <= cfg.WeatherAPITimeout {
		cfg.FetchTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.CompassLabels {
	case "ru", "en":
	default:
		return fmt.Errorf("compass.labels must be ru or en, got %q", cfg.CompassLabels)
	}
	if cfg.DegradedErrorPct > 100 {
		return fmt.Errorf("status.degraded_error_pct must be <= 100, got %d", cfg.DegradedErrorPct)
	}
	return nil
}
