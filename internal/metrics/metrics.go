// Package metrics exposes Prometheus collectors for the production pipeline.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "newscast"

type Recorder struct {
	submitted    prometheus.Counter
	rejected     *prometheus.CounterVec
	finished     *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	stageSeconds *prometheus.HistogramVec
	speech       *prometheus.CounterVec
	mixes        *prometheus.CounterVec
	renders      *prometheus.CounterVec
	queueDepth   prometheus.Gauge
	inFlight     prometheus.Gauge
}

// New registers the pipeline collectors with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Productions accepted for processing.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_rejected_total",
			Help:      "Submissions rejected before a job was created.",
		}, []string{"reason"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Productions that reached a terminal stage.",
		}, []string{"stage"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time from job start to terminal stage.",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"stage"}),
		stageSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2.5, 10),
		}, []string{"stage", "outcome"}),
		speech: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_attempts_total",
			Help:      "Speech backend attempts by outcome.",
		}, []string{"backend", "outcome"}),
		mixes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "radio_mixes_total",
			Help:      "Radio mixes by loudness normalization.",
		}, []string{"normalized"}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "video_renders_total",
			Help:      "Video renders by format and path taken.",
		}, []string{"format", "result"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs waiting for a worker.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently being produced.",
		}),
	}
	if reg != nil {
		reg.MustRegister(r.submitted, r.rejected, r.finished, r.jobDuration, r.stageSeconds,
			r.speech, r.mixes, r.renders, r.queueDepth, r.inFlight)
	}
	return r
}

func (r *Recorder) JobSubmitted() {
	if r == nil {
		return
	}
	r.submitted.Inc()
}

func (r *Recorder) JobRejected(reason string) {
	if r == nil {
		return
	}
	r.rejected.WithLabelValues(reason).Inc()
}

func (r *Recorder) JobStarted() {
	if r == nil {
		return
	}
	r.inFlight.Inc()
}

func (r *Recorder) JobFinished(stage string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.inFlight.Dec()
	r.finished.WithLabelValues(stage).Inc()
	r.jobDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (r *Recorder) StageCompleted(stage string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.stageSeconds.WithLabelValues(stage, outcome).Observe(elapsed.Seconds())
}

func (r *Recorder) SpeechAttempt(backend string, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.speech.WithLabelValues(backend, outcome).Inc()
}

func (r *Recorder) RadioMixed(normalized bool) {
	if r == nil {
		return
	}
	r.mixes.WithLabelValues(strconv.FormatBool(normalized)).Inc()
}

// VideoRendered records one format outcome: primary, fallback or failed.
func (r *Recorder) VideoRendered(format, result string) {
	if r == nil {
		return
	}
	r.renders.WithLabelValues(format, result).Inc()
}

func (r *Recorder) SetQueueDepth(n int) {
	if r == nil {
		return
	}
	r.queueDepth.Set(float64(n))
}
