package ingest

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/kjstillabower/weather-recorder/internal/client"
	"github.com/kjstillabower/weather-recorder/internal/models"
	"github.com/kjstillabower/weather-recorder/internal/store"
	"github.com/kjstillabower/weather-recorder/internal/units"
)

const showersResponse = `{"current": {"temperature_2m": 5.0, "surface_pressure": 1000.0, "wind_speed_10m": 3.0,
	"wind_direction_10m": 200, "rain": 0.0, "showers": 1.2, "snowfall": 0.0}}`

type mockFetcher struct {
	cond  models.Conditions
	err   error
	calls int
}

func (m *mockFetcher) GetCurrent(ctx context.Context) (models.Conditions, error) {
	m.calls++
	return m.cond, m.err
}

type mockInserter struct {
	inserted []models.WeatherRecord
	err      error
}

func (m *mockInserter) Insert(ctx context.Context, rec models.WeatherRecord) (models.WeatherRecord, error) {
	if m.err != nil {
		return models.WeatherRecord{}, m.err
	}
	rec.ID = int64(len(m.inserted) + 1)
	rec.CapturedAt = time.Now().UTC()
	m.inserted = append(m.inserted, rec)
	return rec, nil
}

// newPipeline wires a real client and SQLite store against a fake provider.
func newPipeline(t *testing.T, status int, body string) (*Task, *store.Store) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	c, err := client.NewOpenMeteoClient(server.URL, 55.691830566, 37.354665248, 2*time.Second)
	if err != nil {
		t.Fatalf("NewOpenMeteoClient() error = %v", err)
	}
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "weather.db"), nil)
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return NewTask(c, s, units.RussianLabels, nil), s
}

func countRecords(t *testing.T, s *store.Store) int {
	t.Helper()
	n, err := s.Count(context.Background())
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	return n
}

func TestRun_EndToEnd_Showers(t *testing.T) {
	task, s := newPipeline(t, http.StatusOK, showersResponse)

	rec, err := task.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := countRecords(t, s); n != 1 {
		t.Fatalf("record count = %d, want 1", n)
	}

	all, err := s.All(context.Background())
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	stored := all[0]
	if stored != rec {
		t.Errorf("stored record = %+v, want returned record %+v", stored, rec)
	}
	if stored.Temperature != 5.0 {
		t.Errorf("Temperature = %v, want 5.0", stored.Temperature)
	}
	if math.Abs(stored.SurfacePressure-750.6) > 1e-9 {
		t.Errorf("SurfacePressure = %v, want 750.6", stored.SurfacePressure)
	}
	if stored.PrecipitationType != models.PrecipitationShowers || stored.PrecipitationAmount != 1.2 {
		t.Errorf("precipitation = (%v, %v), want (1.2, showers)", stored.PrecipitationAmount, stored.PrecipitationType)
	}
	if stored.WindDirectionLabel != "ЮЮЗ" {
		t.Errorf("WindDirectionLabel = %q, want ЮЮЗ", stored.WindDirectionLabel)
	}
	if stored.WindSpeed != 3.0 {
		t.Errorf("WindSpeed = %v, want 3.0", stored.WindSpeed)
	}
}

func TestRun_EndToEnd_MissingCurrentLeavesStoreUnchanged(t *testing.T) {
	task, s := newPipeline(t, http.StatusOK, `{"latitude": 55.69, "longitude": 37.35}`)

	_, err := task.Run(context.Background())
	if !errors.Is(err, models.ErrMalformedResponse) {
		t.Fatalf("Run() error = %v, want ErrMalformedResponse", err)
	}
	if n := countRecords(t, s); n != 0 {
		t.Errorf("record count = %d, want 0", n)
	}
}

func TestRun_EndToEnd_UpstreamErrorLeavesStoreUnchanged(t *testing.T) {
	task, s := newPipeline(t, http.StatusServiceUnavailable, ``)

	_, err := task.Run(context.Background())
	if !errors.Is(err, models.ErrTransport) {
		t.Fatalf("Run() error = %v, want ErrTransport", err)
	}
	if n := countRecords(t, s); n != 0 {
		t.Errorf("record count = %d, want 0", n)
	}
}

func TestRun_EachSuccessAddsExactlyOne(t *testing.T) {
	task, s := newPipeline(t, http.StatusOK, showersResponse)

	for i := 1; i <= 3; i++ {
		if _, err := task.Run(context.Background()); err != nil {
			t.Fatalf("Run() #%d error = %v", i, err)
		}
		if n := countRecords(t, s); n != i {
			t.Fatalf("record count after %d runs = %d, want %d", i, n, i)
		}
	}
}

func TestRun_FetchErrorSkipsInsert(t *testing.T) {
	fetcher := &mockFetcher{err: errors.New("boom")}
	inserter := &mockInserter{}
	task := NewTask(fetcher, inserter, units.RussianLabels, nil)

	if _, err := task.Run(context.Background()); err == nil {
		t.Fatal("Run() error = nil, want error")
	}
	if len(inserter.inserted) != 0 {
		t.Errorf("inserted = %d records, want 0", len(inserter.inserted))
	}
}

func TestRun_PersistenceErrorPropagates(t *testing.T) {
	fetcher := &mockFetcher{cond: models.Conditions{SurfacePressureHPa: 1000}}
	inserter := &mockInserter{err: models.ErrPersistence}
	task := NewTask(fetcher, inserter, units.RussianLabels, nil)

	_, err := task.Run(context.Background())
	if !errors.Is(err, models.ErrPersistence) {
		t.Errorf("Run() error = %v, want ErrPersistence", err)
	}
	if fetcher.calls != 1 {
		t.Errorf("fetcher calls = %d, want 1 (no retry)", fetcher.calls)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		cond models.Conditions
		want models.WeatherRecord
	}{
		{
			name: "dry north wind",
			cond: models.Conditions{Temperature: -2, SurfacePressureHPa: 1013.25, WindSpeed: 1.5, WindDirectionDeg: 5},
			want: models.WeatherRecord{Temperature: -2, WindSpeed: 1.5, PrecipitationType: models.PrecipitationNone,
				SurfacePressure: 760.55, WindDirectionLabel: "С"},
		},
		{
			name: "rain beats snowfall",
			cond: models.Conditions{SurfacePressureHPa: 990, WindDirectionDeg: 90, Rain: 0.3, Snowfall: 2},
			want: models.WeatherRecord{PrecipitationAmount: 0.3, PrecipitationType: models.PrecipitationRain,
				SurfacePressure: 743.09, WindDirectionLabel: "В"},
		},
		{
			name: "snowfall only",
			cond: models.Conditions{SurfacePressureHPa: 1000, WindDirectionDeg: 270, Snowfall: 0.7},
			want: models.WeatherRecord{PrecipitationAmount: 0.7, PrecipitationType: models.PrecipitationSnowfall,
				SurfacePressure: 750.6, WindDirectionLabel: "З"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.cond, units.RussianLabels)
			if got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNormalize_EnglishLabels(t *testing.T) {
	got := Normalize(models.Conditions{WindDirectionDeg: 200}, units.EnglishLabels)
	if got.WindDirectionLabel != "SSW" {
		t.Errorf("WindDirectionLabel = %q, want SSW", got.WindDirectionLabel)
	}
}
