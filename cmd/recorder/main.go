package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-recorder/internal/client"
	"github.com/kjstillabower/weather-recorder/internal/config"
	"github.com/kjstillabower/weather-recorder/internal/console"
	"github.com/kjstillabower/weather-recorder/internal/export"
	httphandler "github.com/kjstillabower/weather-recorder/internal/http"
	"github.com/kjstillabower/weather-recorder/internal/ingest"
	"github.com/kjstillabower/weather-recorder/internal/lifecycle"
	"github.com/kjstillabower/weather-recorder/internal/observability"
	"github.com/kjstillabower/weather-recorder/internal/scheduler"
	"github.com/kjstillabower/weather-recorder/internal/store"
	"github.com/kjstillabower/weather-recorder/internal/units"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	labels, err := units.LabelSetByName(cfg.CompassLabels)
	if err != nil {
		logger.Fatal("compass labels", zap.Error(err))
	}

	weatherClient, err := client.NewOpenMeteoClient(cfg.WeatherAPIURL, cfg.Latitude, cfg.Longitude, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	openCtx, openCancel := context.WithTimeout(context.Background(), 10*time.Second)
	st, err := store.Open(openCtx, cfg.StorePath, logger)
	openCancel()
	if err != nil {
		logger.Fatal("store", zap.Error(err), zap.String("path", cfg.StorePath))
	}

	task := ingest.NewTask(weatherClient, st, labels, logger)
	sched := scheduler.New(task, scheduler.Config{
		Interval:    cfg.FetchInterval,
		RunOnStart:  cfg.RunOnStart,
		TickTimeout: cfg.FetchTimeout,
	}, logger)

	// The scheduler is not awaited at exit; a tick in flight when the store closes fails and is logged.
	schedCtx, stopScheduler := context.WithCancel(context.Background())
	go func() {
		if err := sched.Run(schedCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler stopped", zap.Error(err))
		}
	}()

	var srv *http.Server
	if cfg.StatusAddr != "" {
		var limiter *rate.Limiter
		if cfg.StatusRateLimitRPS > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.StatusRateLimitRPS), cfg.StatusRateLimitBurst)
		}
		handler := httphandler.NewHandler(st, &httphandler.HealthConfig{
			DegradedWindow:   cfg.DegradedWindow,
			DegradedErrorPct: cfg.DegradedErrorPct,
			StartTime:        time.Now(),
		}, logger)
		srv = httphandler.NewServer(cfg.StatusAddr, httphandler.NewRouter(handler, logger, limiter))

		go func() {
			logger.Info("status server starting", zap.String("addr", cfg.StatusAddr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("status server", zap.Error(err))
			}
		}()
	}

	exporter := export.NewExporter(st, cfg.ExportPath, cfg.ExportSheet, logger)

	lifecycle.SetPhase(lifecycle.PhaseRunning)
	logger.Info("recorder running",
		zap.String("store", cfg.StorePath),
		zap.String("export", cfg.ExportPath),
		zap.Duration("interval", cfg.FetchInterval),
		zap.Float64("latitude", cfg.Latitude),
		zap.Float64("longitude", cfg.Longitude))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	loop := console.New(os.Stdin, os.Stdout, exporter, st, logger)
	exitCode := 0
	if err := loop.Run(ctx); err != nil {
		logger.Error("shutdown", zap.Error(err))
		exitCode = 1
	}
	stop()
	stopScheduler()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("status server shutdown", zap.Error(err))
		}
		cancel()
	}

	logger.Info("shutdown complete", zap.Int64("ticks", sched.Ticks()))
	if err := observability.FlushTelemetry(logger); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry flush: %v\n", err)
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}
