// cmd/server/config.go
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/tendant/newscast/internal/upload"
	"github.com/tendant/newscast/pkg/schema"
)

type config struct {
	Port              string
	StorageDir        string
	PublicPrefix      string
	Workers           int
	QueueSize         int
	MaxJobs           int
	RenderConcurrency int
	StageTimeout      time.Duration
	ShutdownTimeout   time.Duration

	SpeechBackends []string
	SpeechLang     string
	PiperModel     string
	EspeakSpeed    int
	VoiceSample    string
	FFmpegPath     string
	FFprobePath    string
	PiperPath      string
	EspeakPath     string
	PythonPath     string
	CoquiPath      string

	RenderFont      string
	BackgroundColor string
	CatalogFile     string

	NATSURL      string
	EventSubject string
	S3           upload.Config

	AllowedOrigins []string
	LogLevel       slog.Level
	LogFormat      string
}

// catalogFile is the optional YAML override for formats and hashtags.
type catalogFile struct {
	Default  string               `yaml:"default"`
	Formats  []schema.VideoFormat `yaml:"formats"`
	Hashtags []string             `yaml:"hashtags"`
}

func LoadConfig() (config, error) {
	cfg := config{
		Port:            getenv("PORT", "3001"),
		StorageDir:      getenv("STORAGE_DIR", "./storage"),
		PublicPrefix:    getenv("PUBLIC_PREFIX", "/storage"),
		SpeechBackends:  splitList(getenv("SPEECH_BACKENDS", "")),
		SpeechLang:      getenv("SPEECH_LANG", "ar"),
		PiperModel:      getenv("PIPER_MODEL", ""),
		VoiceSample:     getenv("VOICE_SAMPLE", "imad_nour"),
		FFmpegPath:      getenv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:     getenv("FFPROBE_PATH", "ffprobe"),
		PiperPath:       getenv("PIPER_PATH", "piper"),
		EspeakPath:      getenv("ESPEAK_PATH", "espeak-ng"),
		PythonPath:      getenv("PYTHON_PATH", "python3"),
		CoquiPath:       getenv("COQUI_TTS_PATH", "tts"),
		RenderFont:      getenv("RENDER_FONT", "Arial"),
		BackgroundColor: getenv("BACKGROUND_COLOR", "#1a1a2e"),
		CatalogFile:     getenv("CATALOG_FILE", ""),
		NATSURL:         getenv("NATS_URL", ""),
		EventSubject:    getenv("EVENT_SUBJECT", "newscast.jobs"),
		AllowedOrigins:  splitList(getenv("ALLOWED_ORIGINS", "*")),
		LogFormat:       strings.ToLower(getenv("LOG_FORMAT", "text")),
		S3: upload.Config{
			Bucket:          getenv("S3_BUCKET", ""),
			Region:          getenv("S3_REGION", "us-east-1"),
			Endpoint:        getenv("S3_ENDPOINT", ""),
			Prefix:          getenv("S3_PREFIX", "newscast"),
			AccessKeyID:     getenv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getenv("AWS_SECRET_ACCESS_KEY", ""),
			PublicBaseURL:   getenv("S3_PUBLIC_URL", ""),
		},
	}

	var err error
	if cfg.Workers, err = parsePositiveInt(getenv("WORKERS", "2"), "WORKERS"); err != nil {
		return config{}, err
	}
	if cfg.QueueSize, err = parsePositiveInt(getenv("QUEUE_SIZE", "100"), "QUEUE_SIZE"); err != nil {
		return config{}, err
	}
	if cfg.MaxJobs, err = parsePositiveInt(getenv("MAX_JOBS", "1000"), "MAX_JOBS"); err != nil {
		return config{}, err
	}
	if cfg.RenderConcurrency, err = parsePositiveInt(getenv("RENDER_CONCURRENCY", "2"), "RENDER_CONCURRENCY"); err != nil {
		return config{}, err
	}
	if cfg.EspeakSpeed, err = parsePositiveInt(getenv("ESPEAK_SPEED", "130"), "ESPEAK_SPEED"); err != nil {
		return config{}, err
	}
	if cfg.StageTimeout, err = parseDuration(getenv("STAGE_TIMEOUT", "10m"), "STAGE_TIMEOUT"); err != nil {
		return config{}, err
	}
	if cfg.ShutdownTimeout, err = parseDuration(getenv("SHUTDOWN_TIMEOUT", "30s"), "SHUTDOWN_TIMEOUT"); err != nil {
		return config{}, err
	}
	if cfg.S3.UsePathStyle, err = cast.ToBoolE(getenv("S3_USE_PATH_STYLE", "true")); err != nil {
		return config{}, fmt.Errorf("parse S3_USE_PATH_STYLE: %w", err)
	}

	switch cfg.LogFormat {
	case "text", "json", "tint":
	default:
		return config{}, fmt.Errorf("LOG_FORMAT must be text, json or tint (got %q)", cfg.LogFormat)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(getenv("LOG_LEVEL", "info"))); err != nil {
		return config{}, fmt.Errorf("parse LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

// loadCatalog builds the format catalog, applying CATALOG_FILE when set.
// The returned hashtags are nil unless the file overrides them.
func loadCatalog(path string) (*schema.Catalog, []string, error) {
	if path == "" {
		return schema.MustDefaultCatalog(), nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read catalog file: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	formats := file.Formats
	if len(formats) == 0 {
		formats = schema.DefaultFormats()
	}
	defaultID := file.Default
	if defaultID == "" && len(file.Formats) == 0 {
		defaultID = schema.DefaultFormatID
	}
	catalog, err := schema.NewCatalog(formats, defaultID)
	if err != nil {
		return nil, nil, fmt.Errorf("catalog file %s: %w", path, err)
	}
	return catalog, file.Hashtags, nil
}

func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	case "tint":
		return slog.New(tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.Kitchen}))
	default:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	}
}

func parsePositiveInt(value, key string) (int, error) {
	n, err := cast.ToIntE(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive (got %d)", key, n)
	}
	return n, nil
}

func parseDuration(value, key string) (time.Duration, error) {
	d, err := cast.ToDurationE(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive (got %s)", key, d)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
