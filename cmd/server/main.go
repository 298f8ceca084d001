// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/httplog/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tendant/newscast/internal/bus"
	"github.com/tendant/newscast/internal/converters"
	"github.com/tendant/newscast/internal/httpapi"
	"github.com/tendant/newscast/internal/jobs"
	"github.com/tendant/newscast/internal/metrics"
	"github.com/tendant/newscast/internal/mixer"
	"github.com/tendant/newscast/internal/process"
	"github.com/tendant/newscast/internal/render"
	"github.com/tendant/newscast/internal/script"
	"github.com/tendant/newscast/internal/speech"
	"github.com/tendant/newscast/internal/storage"
	"github.com/tendant/newscast/internal/upload"
)

func main() {
	_ = godotenv.Load()

	cfg, err := LoadConfig()
	if err != nil {
		fatal(slog.New(slog.NewTextHandler(os.Stderr, nil)), "load config", err)
	}
	logger := newLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("server starting", "port", cfg.Port, "storage_dir", cfg.StorageDir, "workers", cfg.Workers, "queue_size", cfg.QueueSize, "render_concurrency", cfg.RenderConcurrency, "stage_timeout", cfg.StageTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, hashtags, err := loadCatalog(cfg.CatalogFile)
	if err != nil {
		fatal(logger, "load catalog", err, "catalog_file", cfg.CatalogFile)
	}
	logger.Info("format catalog ready", "formats", len(catalog.Formats()), "default", catalog.Default().ID)

	layout := storage.NewLayout(cfg.StorageDir, cfg.PublicPrefix, cfg.VoiceSample)
	if err := layout.Ensure(); err != nil {
		fatal(logger, "ensure storage layout", err, "storage_dir", cfg.StorageDir)
	}

	runner := process.ExecRunner{}
	ff := converters.NewFFmpeg(runner, cfg.FFmpegPath, cfg.FFprobePath)

	backends, err := speech.BuildBackends(cfg.SpeechBackends, speech.Options{
		Runner:      runner,
		Transcoder:  ff,
		Language:    cfg.SpeechLang,
		PiperPath:   cfg.PiperPath,
		PiperModel:  cfg.PiperModel,
		EspeakPath:  cfg.EspeakPath,
		EspeakSpeed: cfg.EspeakSpeed,
		PythonPath:  cfg.PythonPath,
		CoquiPath:   cfg.CoquiPath,
		VoiceSample: layout.VoiceSamplePath(),
	})
	if err != nil {
		fatal(logger, "build speech backends", err, "backends", cfg.SpeechBackends)
	}
	synth := speech.NewSynthesizer(backends, layout.TempDir(), logger)
	logger.Info("speech backends ready", "order", synth.Backends())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	renderer := render.New(ff, catalog, render.Options{
		BackgroundDir:   layout.BackgroundDir(),
		BackgroundColor: cfg.BackgroundColor,
		Font:            cfg.RenderFont,
		TempDir:         layout.TempDir(),
	}, logger)

	deps := jobs.Deps{
		Composer:    script.New(script.WithHashtags(hashtags)),
		Synthesizer: synth,
		Mixer:       mixer.New(ff, layout.JingleDir(), logger),
		Renderer:    renderer,
		Catalog:     catalog,
		Paths:       layout,
		Store:       jobs.NewMemoryStore(cfg.MaxJobs),
		Metrics:     metrics.New(reg),
		Logger:      logger,
	}

	if cfg.NATSURL != "" {
		nc, err := bus.Connect(cfg.NATSURL, cfg.EventSubject)
		if err != nil {
			fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
		}
		defer nc.Close()
		deps.Publisher = nc
		logger.Info("connected to NATS", "nats_url", cfg.NATSURL, "lifecycle_subject", bus.LifecycleSubject(cfg.EventSubject), "done_subject", bus.DoneSubject(cfg.EventSubject))
	}

	if cfg.S3.Bucket != "" {
		mirror, err := upload.New(ctx, cfg.S3)
		if err != nil {
			fatal(logger, "build s3 client", err, "bucket", cfg.S3.Bucket)
		}
		deps.Mirror = mirror
		logger.Info("artifact mirroring enabled", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix, "endpoint", cfg.S3.Endpoint)
	}

	orch, err := jobs.New(deps, jobs.Config{
		Workers:           cfg.Workers,
		QueueSize:         cfg.QueueSize,
		StageTimeout:      cfg.StageTimeout,
		RenderConcurrency: cfg.RenderConcurrency,
	})
	if err != nil {
		fatal(logger, "build orchestrator", err)
	}
	orch.Start()

	requestLogger := httplog.NewLogger("newscast", httplog.Options{
		LogLevel:        cfg.LogLevel,
		JSON:            cfg.LogFormat == "json",
		Concise:         true,
		QuietDownRoutes: []string{"/api/health", "/metrics"},
		QuietDownPeriod: 30 * time.Second,
	})

	router := httpapi.NewRouter(orch, layout, httpapi.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Tools:          toolset(cfg),
		Registry:       reg,
		RequestLogger:  requestLogger,
		Logger:         logger,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "http server", err, "addr", srv.Addr)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Warn("jobs still running at shutdown", "err", err)
	}
	logger.Info("server stopped")
}

// toolset lists the external programs reported by the health endpoint.
func toolset(cfg config) map[string]string {
	return map[string]string{
		"ffmpeg":  cfg.FFmpegPath,
		"ffprobe": cfg.FFprobePath,
		"piper":   cfg.PiperPath,
		"espeak":  cfg.EspeakPath,
		"python3": cfg.PythonPath,
		"coqui":   cfg.CoquiPath,
	}
}
