// Package export writes every stored reading to a single-sheet XLSX workbook.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-recorder/internal/models"
	"github.com/kjstillabower/weather-recorder/internal/observability"
)

const (
	DefaultPath  = "weather_data.xlsx"
	DefaultSheet = "weather_data"

	dateFormat = "yyyy-mm-dd hh:mm:ss"
)

// Header is the first row of the sheet, in column order.
var Header = []string{
	"id",
	"temperature °C",
	"windspeed m/s",
	"wind_direction",
	"precipitation mm",
	"precipitation_type",
	"surface_pressure mmHg",
	"date",
}

// RecordReader returns every stored record in insertion order.
type RecordReader interface {
	All(ctx context.Context) ([]models.WeatherRecord, error)
}

// Result describes a finished export.
type Result struct {
	Path   string
	Rows   int
	Offset time.Duration
}

// Exporter snapshots the store into an XLSX file at a fixed path.
type Exporter struct {
	reader RecordReader
	path   string
	sheet  string
	logger *zap.Logger
	now    func() time.Time
}

// NewExporter creates an Exporter. Empty path or sheet fall back to the defaults.
func NewExporter(reader RecordReader, path, sheet string, logger *zap.Logger) *Exporter {
	if path == "" {
		path = DefaultPath
	}
	if sheet == "" {
		sheet = DefaultSheet
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{reader: reader, path: path, sheet: sheet, logger: logger, now: time.Now}
}

// Path returns the output file path.
func (e *Exporter) Path() string {
	return e.path
}

// Export reads all records and overwrites the output file with them. The local UTC offset is
// captured once and added to each capture time for display. Errors wrap models.ErrExport,
// or models.ErrPersistence when the read fails.
func (e *Exporter) Export(ctx context.Context) (res Result, err error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx, e.logger)
	defer func() {
		observability.ExportsTotal.WithLabelValues(observability.StatusLabel(err)).Inc()
		observability.ExportDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	records, err := e.reader.All(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read records: %w", err)
	}

	_, off := e.now().Zone()
	offset := time.Duration(off) * time.Second

	if err := e.write(BuildRows(records, offset)); err != nil {
		return Result{}, err
	}

	observability.ExportRowsLast.Set(float64(len(records)))
	logger.Info("export complete",
		zap.String("path", e.path),
		zap.Int("rows", len(records)),
		zap.Duration("utc_offset", offset),
		zap.Duration("duration", time.Since(start)))
	return Result{Path: e.path, Rows: len(records), Offset: offset}, nil
}

// BuildRows converts records to sheet rows in Header order. CapturedAt is shifted by offset
// and returned in UTC so the shifted wall clock is what the sheet shows.
func BuildRows(records []models.WeatherRecord, offset time.Duration) [][]any {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			r.ID,
			r.Temperature,
			r.WindSpeed,
			r.WindDirectionLabel,
			r.PrecipitationAmount,
			string(r.PrecipitationType),
			r.SurfacePressure,
			r.CapturedAt.UTC().Add(offset),
		})
	}
	return rows
}

func (e *Exporter) write(rows [][]any) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", e.sheet); err != nil {
		return fmt.Errorf("%w: sheet name %q: %w", models.ErrExport, e.sheet, err)
	}
	custom := dateFormat
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &custom})
	if err != nil {
		return fmt.Errorf("%w: date style: %w", models.ErrExport, err)
	}

	sw, err := f.NewStreamWriter(e.sheet)
	if err != nil {
		return fmt.Errorf("%w: stream writer: %w", models.ErrExport, err)
	}
	if err := sw.SetColWidth(1, len(Header), 20); err != nil {
		return fmt.Errorf("%w: column width: %w", models.ErrExport, err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("%w: header: %w", models.ErrExport, err)
	}

	dateCol := len(Header) - 1
	for i, row := range rows {
		row[dateCol] = excelize.Cell{StyleID: dateStyle, Value: row[dateCol]}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("%w: row %d: %w", models.ErrExport, i+2, err)
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("%w: row %d: %w", models.ErrExport, i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("%w: flush: %w", models.ErrExport, err)
	}
	if err := f.SaveAs(e.path); err != nil {
		return fmt.Errorf("%w: save %s: %w", models.ErrExport, e.path, err)
	}
	return nil
}
