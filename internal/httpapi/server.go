// Package httpapi exposes the production service over HTTP.
package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpmetrics "github.com/slok/go-http-metrics/metrics/prometheus"
	metricsmw "github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"

	"github.com/tendant/newscast/internal/jobs"
	"github.com/tendant/newscast/pkg/schema"
)

const DefaultMaxUploadBytes int64 = 50 << 20

// Service is the production API consumed by the handlers.
type Service interface {
	Submit(text string, formats []string) (jobs.Submission, error)
	Status(id string) (schema.Job, error)
	List() []schema.Job
	Formats() []schema.VideoFormat
	DefaultFormat() schema.VideoFormat
	QueueDepth() int
}

// Artifacts resolves stored files and replaces uploaded assets.
type Artifacts interface {
	Root() string
	PublicPrefix() string
	RadioPath(jobID string) string
	VideoPath(jobID, formatID string) string
	SaveAsset(role string, r io.Reader) (string, int64, error)
	URL(path string) string
}

// Options configures the router. Tools maps a diagnostic name to the
// executable reported by /api/health. A nil Registry disables /metrics.
type Options struct {
	Service        string
	AllowedOrigins []string
	MaxUploadBytes int64
	Tools          map[string]string
	Registry       *prometheus.Registry
	RequestLogger  *httplog.Logger
	Logger         *slog.Logger
}

type Server struct {
	svc       Service
	artifacts Artifacts
	opts      Options
	logger    *slog.Logger
}

// NewRouter builds the chi router with every route mounted.
func NewRouter(svc Service, artifacts Artifacts, opts Options) http.Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Service == "" {
		opts.Service = "newscast"
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{svc: svc, artifacts: artifacts, opts: opts, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if opts.RequestLogger != nil {
		r.Use(httplog.RequestLogger(opts.RequestLogger))
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	measure := func(string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.Registry != nil {
		mdlw := metricsmw.New(metricsmw.Config{
			Recorder: httpmetrics.NewRecorder(httpmetrics.Config{Registry: opts.Registry}),
		})
		measure = func(handlerID string) func(http.Handler) http.Handler {
			return std.HandlerProvider(handlerID, mdlw)
		}
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.With(measure("/api/health")).Get("/health", s.health)
		r.With(measure("/api/formats")).Get("/formats", s.formats)
		r.With(measure("/api/generate")).Post("/generate", s.generate)
		r.With(measure("/api/job")).Get("/job/{jobId}", s.job)
		r.With(measure("/api/jobs")).Get("/jobs", s.jobs)
		r.With(measure("/api/download")).Get("/download/{kind}/{jobId}", s.download)
		r.With(measure("/api/upload-voice")).Post("/upload-voice", s.uploadVoice)
		r.With(measure("/api/upload-jingle")).Post("/upload-jingle", s.uploadJingle)
	})

	prefix := artifacts.PublicPrefix()
	r.With(measure(prefix)).Handle(prefix+"/*", http.StripPrefix(prefix, noListing(http.FileServer(http.Dir(artifacts.Root())))))

	return r
}

// noListing hides directory indexes of the artifact tree.
func noListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, healthResponse{
		Status:     "ok",
		Service:    s.opts.Service,
		QueueDepth: s.svc.QueueDepth(),
		Tools:      diagnoseTools(s.opts.Tools),
		Time:       time.Now().UTC(),
	})
}

func (s *Server) formats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, formatsResponse{Formats: s.svc.Formats()})
}
