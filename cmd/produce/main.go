// cmd/produce runs a single news production from the command line without
// the HTTP server, probes media files, or follows production events on NATS.
//
// Usage:
//
//	./produce -text news.txt -formats reels,square
//	echo "..." | ./produce -text - -storage ./out
//	./produce -probe storage/audio/radio_<id>.mp3
//	./produce -watch nats://127.0.0.1:4222
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"

	"github.com/tendant/newscast/internal/bus"
	"github.com/tendant/newscast/internal/converters"
	"github.com/tendant/newscast/internal/jobs"
	"github.com/tendant/newscast/internal/mixer"
	"github.com/tendant/newscast/internal/process"
	"github.com/tendant/newscast/internal/render"
	"github.com/tendant/newscast/internal/script"
	"github.com/tendant/newscast/internal/speech"
	"github.com/tendant/newscast/internal/storage"
	"github.com/tendant/newscast/pkg/schema"
)

func main() {
	_ = godotenv.Load()

	textPath := flag.String("text", "", "News text file to produce ('-' reads stdin)")
	formats := flag.String("formats", "", "Comma-separated video formats (default: catalog default)")
	storageDir := flag.String("storage", getenv("STORAGE_DIR", "./storage"), "Storage root for artifacts")
	backends := flag.String("backends", getenv("SPEECH_BACKENDS", ""), "Speech backend order")
	probe := flag.String("probe", "", "Show media metadata for a file and exit")
	watch := flag.String("watch", "", "NATS URL to follow production events")
	subject := flag.String("subject", getenv("EVENT_SUBJECT", bus.DefaultSubject), "Base event subject for -watch")
	timeout := flag.Duration("timeout", 15*time.Minute, "Production timeout")
	verbose := flag.Bool("v", false, "Verbose output")

	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level, TimeFormat: time.Kitchen}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ff := converters.NewFFmpeg(process.ExecRunner{}, getenv("FFMPEG_PATH", "ffmpeg"), getenv("FFPROBE_PATH", "ffprobe"))

	switch {
	case *probe != "":
		probeFile(ctx, ff, *probe)
	case *watch != "":
		watchEvents(ctx, *watch, *subject)
	case *textPath != "":
		text, err := readText(*textPath)
		if err != nil {
			log.Fatalf("❌ Failed to read news text: %v", err)
		}
		ctx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()
		produce(ctx, ff, text, *storageDir, splitList(*formats), splitList(*backends), logger)
	default:
		fmt.Println("Error: one of -text, -probe or -watch is required")
		flag.Usage()
		os.Exit(1)
	}
}

func produce(ctx context.Context, ff *converters.FFmpeg, text, storageDir string, formats, backendNames []string, logger *slog.Logger) {
	layout := storage.NewLayout(storageDir, "", getenv("VOICE_SAMPLE", ""))
	if err := layout.Ensure(); err != nil {
		log.Fatalf("❌ Failed to prepare storage: %v", err)
	}

	backends, err := speech.BuildBackends(backendNames, speech.Options{
		Runner:      process.ExecRunner{},
		Transcoder:  ff,
		Language:    getenv("SPEECH_LANG", ""),
		PiperModel:  getenv("PIPER_MODEL", ""),
		VoiceSample: layout.VoiceSamplePath(),
	})
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	catalog := schema.MustDefaultCatalog()
	orch, err := jobs.New(jobs.Deps{
		Composer:    script.New(),
		Synthesizer: speech.NewSynthesizer(backends, layout.TempDir(), logger),
		Mixer:       mixer.New(ff, layout.JingleDir(), logger),
		Renderer:    render.New(ff, catalog, render.Options{BackgroundDir: layout.BackgroundDir(), TempDir: layout.TempDir()}, logger),
		Catalog:     catalog,
		Paths:       layout,
		Logger:      logger,
	}, jobs.Config{Workers: 1, QueueSize: 1})
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	orch.Start()
	defer orch.Shutdown(context.Background())

	sub, err := orch.Submit(text, formats)
	if err != nil {
		log.Fatalf("❌ Job rejected: %v", err)
	}
	fmt.Printf("\n🎙️  Producing job %s (%s)\n", sub.JobID, strings.Join(sub.Formats, ", "))
	fmt.Println(strings.Repeat("-", 40))

	start := time.Now()
	last := schema.Stage("")
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Fatalf("❌ Production did not finish: %v (last stage: %s)", ctx.Err(), last)
		case <-ticker.C:
		}

		job, err := orch.Status(sub.JobID)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		if job.Stage != last {
			fmt.Printf("  %-10s %3d%%\n", job.Stage, job.Progress)
			last = job.Stage
		}
		if job.Stage.Terminal() {
			printJob(job, time.Since(start))
			if job.Stage == schema.StageError {
				os.Exit(1)
			}
			return
		}
	}
}

func printJob(job schema.Job, elapsed time.Duration) {
	if job.Stage == schema.StageError {
		fmt.Printf("\n❌ Production failed: %s (%s)\n", job.Error, job.FailureType)
		return
	}

	fmt.Printf("\n✅ Production complete in %v\n", elapsed.Round(time.Millisecond))
	fmt.Println(strings.Repeat("-", 40))
	if s := job.Outputs.Script; s != nil {
		fmt.Printf("📝 Script: %d words (truncated: %v)\n", s.WordCount, s.Truncated)
	}
	fmt.Printf("🗣️  Voice: %s (%s)\n", job.Outputs.VoicePath, job.Outputs.VoiceBackend)
	fmt.Printf("📻 Radio: %s (normalized: %v)\n", job.Outputs.RadioPath, job.Outputs.Normalized)
	for _, id := range job.RequestedFormats {
		if v, ok := job.Outputs.Videos[id]; ok {
			fmt.Printf("🎬 %-10s %dx%d %s\n", id, v.Width, v.Height, v.Path)
		} else if msg, ok := job.Outputs.VideoErrors[id]; ok {
			fmt.Printf("⚠️  %-10s failed: %s\n", id, msg)
		}
	}
	fmt.Println()
}

func probeFile(ctx context.Context, ff *converters.FFmpeg, path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Fatalf("❌ Input file not found: %s", path)
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	info, err := ff.Probe(ctx, path)
	if err != nil {
		log.Fatalf("❌ Failed to probe file: %v", err)
	}

	fmt.Println("\n📊 File Metadata:")
	fmt.Println(strings.Repeat("-", 40))
	if info.Width > 0 && info.Height > 0 {
		fmt.Printf("Dimensions: %dx%d pixels\n", info.Width, info.Height)
	}
	if info.Duration > 0 {
		fmt.Printf("Duration: %.2f seconds (%s)\n", info.Duration, formatDuration(info.Duration))
	}
	if info.Size > 0 {
		fmt.Printf("File Size: %s\n", formatBytes(info.Size))
	}
}

func watchEvents(ctx context.Context, url, subject string) {
	nc, err := bus.Connect(url, subject)
	if err != nil {
		log.Fatalf("❌ Failed to connect to NATS: %v", err)
	}
	defer nc.Close()

	if _, err := nc.SubscribeLifecycle(func(_ context.Context, ev schema.LifecycleEvent) {
		line := fmt.Sprintf("%s  %-10s %3d%%", ev.JobID, ev.Stage, ev.Progress)
		if ev.Artifact != "" {
			line += "  " + ev.Artifact
		}
		if ev.Error != "" {
			line += "  error=" + ev.Error
		}
		fmt.Println(line)
	}); err != nil {
		log.Fatalf("❌ Failed to subscribe: %v", err)
	}
	if _, err := nc.SubscribeDone(func(_ context.Context, done schema.ProductionDone) {
		fmt.Printf("%s  done stage=%s rendered=%d failed=%d in %dms\n", done.ID, done.Stage, done.TotalRendered, done.TotalFailed, done.ProcessingTimeMs)
	}); err != nil {
		log.Fatalf("❌ Failed to subscribe: %v", err)
	}

	fmt.Printf("👂 Watching %s and %s (Ctrl-C to stop)\n", bus.LifecycleSubject(subject), bus.DoneSubject(subject))
	<-ctx.Done()
}

func readText(path string) (string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
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

// formatBytes formats bytes into human-readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats seconds into MM:SS format
func formatDuration(seconds float64) string {
	mins := int(seconds) / 60
	secs := int(seconds) % 60
	return fmt.Sprintf("%02d:%02d", mins, secs)
}
