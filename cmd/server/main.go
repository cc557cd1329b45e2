package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"camgrid/internal/platform/config"
	"camgrid/internal/platform/logger"
	"camgrid/internal/platform/metrics"
	"camgrid/internal/snapshot"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		logger.New("error", "json").Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if cfg.IgnoredCameras > 0 {
		log.Warn("more than four cameras configured, extra entries ignored", "ignored", cfg.IgnoredCameras)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sources := sourcesFromConfig(cfg)
	met := metrics.New()
	status := snapshot.NewInMemoryStatus()
	httpClient := &http.Client{}

	fetcher := snapshot.NewFetcher(httpClient, snapshot.FetcherOptions{
		Timeout:  cfg.FetchTimeout,
		Retry:    snapshot.RetryPolicy{MaxRetries: cfg.FetchRetries, Delay: cfg.RetryDelay},
		MinBytes: cfg.MinImageBytes,
		MaxBytes: cfg.MaxImageBytes,
	}, log)
	geom := snapshot.Geometry{Size: cfg.CanvasSize, Border: cfg.BorderWidth}
	writer := snapshot.NewWriter(snapshot.WriterOptions{
		Dir:         cfg.OutputDir,
		Filename:    cfg.OutputFilename,
		Format:      cfg.OutputFormat,
		JPEGQuality: cfg.JPEGQuality,
	})

	var mirror snapshot.Mirror
	if cfg.S3Bucket != "" {
		mirror = snapshot.NewS3Mirror(ctx, cfg.S3Bucket, cfg.S3Region, cfg.S3Key)
	}

	pipeline := snapshot.NewPipeline(snapshot.PipelineDeps{
		Compositor: snapshot.NewCompositor(geom, sources, fetcher),
		Post:       snapshot.NewPostProcessor(cfg.CanvasSize, snapshot.DefaultTint, float64(cfg.TintOpacityPercent)/100, cfg.WatermarkText),
		Writer:     writer,
		Mirror:     mirror,
		Status:     status,
		Metrics:    met,
		Log:        log,
	})
	scheduler := snapshot.NewScheduler(pipeline, cfg.Interval, log, met)

	h := snapshot.NewHandler(snapshot.HandlerOptions{
		SnapshotPath: writer.Path(),
		ContentType:  writer.ContentType(),
		MetadataPath: cfg.MetadataPath,
		Prober:       snapshot.NewProber(httpClient, sources, cfg.HealthTimeout),
		Status:       status,
	}, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", met.Handler(nil).ServeHTTP)
	h.Mount(r, "/"+cfg.OutputFilename)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"cameras", configuredCount(sources),
		"interval", cfg.Interval.String(),
		"output", writer.Path(),
		"fetch_worst_case", fetcher.WorstCase().String(),
		"mirror", cfg.S3Bucket != "",
	)

	scheduler.Start(ctx)

	<-ctx.Done()
	log.Info("shutdown signal received, draining connections")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	scheduler.Wait()

	log.Info("server stopped")
}

func sourcesFromConfig(cfg config.Config) snapshot.Sources {
	entries := make([][2]string, 0, len(cfg.Cameras))
	for _, c := range cfg.Cameras {
		entries = append(entries, [2]string{c.URL, c.Location})
	}
	return snapshot.NewSources(entries...)
}

func configuredCount(s snapshot.Sources) int {
	n := 0
	for _, src := range s {
		if src.Configured() {
			n++
		}
	}
	return n
}
