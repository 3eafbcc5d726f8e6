// Package store persists weather records in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/kjstillabower/weather-recorder/internal/models"
	"github.com/kjstillabower/weather-recorder/internal/observability"
)

// timestampLayout matches strftime('%Y-%m-%d %H:%M:%f') used for captured_at.
const timestampLayout = "2006-01-02 15:04:05.000"

// Store is the single shared handle to the weather database. It is safe for
// concurrent use: the pool is capped at one connection, so SQLite access is serialized.
type Store struct {
	db        *sql.DB
	path      string
	logger    *zap.Logger
	closeOnce sync.Once
	closeErr  error
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("%w: opening sqlite database %s: %v", models.ErrPersistence, path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: pinging sqlite database %s: %v", models.ErrPersistence, path, err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	logger.Info("store opened", zap.String("path", path))
	return &Store{db: db, path: path, logger: logger}, nil
}

// dsn builds a modernc.org/sqlite DSN. synchronous=FULL makes every commit durable
// before Insert returns.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(FULL)")
	return path + "?" + q.Encode()
}

// Insert appends rec and returns it with the store-assigned ID and CapturedAt.
// Any ID or CapturedAt already set on rec is ignored.
func (s *Store) Insert(ctx context.Context, rec models.WeatherRecord) (models.WeatherRecord, error) {
	const q = `
		INSERT INTO weather_data (temperature, windspeed, precipitation, precipitation_type, surface_pressure, wind_direction)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id, captured_at
	`
	start := time.Now()
	var capturedAt string
	err := s.db.QueryRowContext(ctx, q,
		rec.Temperature,
		rec.WindSpeed,
		rec.PrecipitationAmount,
		string(rec.PrecipitationType),
		rec.SurfacePressure,
		rec.WindDirectionLabel,
	).Scan(&rec.ID, &capturedAt)
	observe("insert", start, err)
	if err != nil {
		return models.WeatherRecord{}, fmt.Errorf("%w: inserting weather record: %v", models.ErrPersistence, err)
	}

	rec.CapturedAt, err = parseTimestamp(capturedAt)
	if err != nil {
		return models.WeatherRecord{}, fmt.Errorf("%w: record %d: %v", models.ErrPersistence, rec.ID, err)
	}
	observability.RecordsInsertedTotal.Inc()
	return rec, nil
}

// All returns every record in insertion order. The result comes from a single
// SELECT, so it is a consistent snapshot even while inserts continue.
func (s *Store) All(ctx context.Context) ([]models.WeatherRecord, error) {
	const q = `
		SELECT id, temperature, windspeed, precipitation, precipitation_type, surface_pressure, wind_direction, captured_at
		FROM weather_data
		ORDER BY id
	`
	start := time.Now()
	records, err := s.query(ctx, q)
	observe("read_all", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: reading weather records: %v", models.ErrPersistence, err)
	}
	return records, nil
}

// Latest returns the newest record. ok is false when the store is empty.
func (s *Store) Latest(ctx context.Context) (rec models.WeatherRecord, ok bool, err error) {
	const q = `
		SELECT id, temperature, windspeed, precipitation, precipitation_type, surface_pressure, wind_direction, captured_at
		FROM weather_data
		ORDER BY id DESC
		LIMIT 1
	`
	start := time.Now()
	records, err := s.query(ctx, q)
	observe("latest", start, err)
	if err != nil {
		return models.WeatherRecord{}, false, fmt.Errorf("%w: reading latest record: %v", models.ErrPersistence, err)
	}
	if len(records) == 0 {
		return models.WeatherRecord{}, false, nil
	}
	return records[0], true, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	start := time.Now()
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM weather_data`).Scan(&n)
	observe("count", start, err)
	if err != nil {
		return 0, fmt.Errorf("%w: counting records: %v", models.ErrPersistence, err)
	}
	return n, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	return nil
}

// Close releases the database. Later calls return the first call's result.
// Operations after Close fail with ErrPersistence.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		if err := s.db.Close(); err != nil {
			s.closeErr = fmt.Errorf("%w: closing store: %v", models.ErrPersistence, err)
			return
		}
		s.logger.Info("store closed", zap.String("path", s.path))
	})
	return s.closeErr
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]models.WeatherRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.WeatherRecord
	for rows.Next() {
		var rec models.WeatherRecord
		var precipType, capturedAt string
		if err := rows.Scan(
			&rec.ID,
			&rec.Temperature,
			&rec.WindSpeed,
			&rec.PrecipitationAmount,
			&precipType,
			&rec.SurfacePressure,
			&rec.WindDirectionLabel,
			&capturedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning weather row: %w", err)
		}
		rec.PrecipitationType = models.PrecipitationType(precipType)
		if rec.CapturedAt, err = parseTimestamp(capturedAt); err != nil {
			return nil, fmt.Errorf("record %d: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating weather rows: %w", err)
	}
	return records, nil
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing captured_at %q: %w", s, err)
	}
	return t, nil
}

func observe(op string, start time.Time, err error) {
	observability.StoreOperationDuration.WithLabelValues(op, observability.StatusLabel(err)).Observe(time.Since(start).Seconds())
}
