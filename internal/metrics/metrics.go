// Package metrics records run counters and latencies in a Prometheus
// registry and writes them in the node_exporter textfile format, so cron
// driven verification runs can be scraped.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ceremony/internal/syncer"
	"ceremony/internal/verify"
)

// Recorder holds the collectors of one run.
type Recorder struct {
	reg *prometheus.Registry

	downloads       *prometheus.CounterVec
	downloadBytes   prometheus.Counter
	contributions   *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	highestVerified prometheus.Gauge
	lastRun         prometheus.Gauge
	exitCode        prometheus.Gauge
}

// New returns a Recorder backed by a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		downloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ceremony", Subsystem: "sync", Name: "objects_total",
			Help: "Objects fetched from the remote store by class and outcome.",
		}, []string{"class", "outcome"}),
		downloadBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "ceremony", Subsystem: "sync", Name: "bytes_total",
			Help: "Bytes written into the local contribution store.",
		}),
		contributions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ceremony", Subsystem: "verify", Name: "contributions_total",
			Help: "Contributions judged, by status.",
		}, []string{"status"}),
		toolDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ceremony", Subsystem: "verify", Name: "tool_duration_seconds",
			Help:    "Wall time of one verifier invocation.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"result"}),
		highestVerified: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "ceremony", Subsystem: "verify", Name: "highest_verified_contribution",
			Help: "Highest contribution number that verified in this run.",
		}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "ceremony", Name: "last_run_timestamp_seconds",
			Help: "Unix time the run finished.",
		}),
		exitCode: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "ceremony", Name: "last_run_exit_code",
			Help: "Process exit code of the run.",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

// ObserveDownload counts one sync outcome.
func (r *Recorder) ObserveDownload(o syncer.Outcome) {
	outcome := "ok"
	if !o.OK() {
		outcome = "failed"
	}
	r.downloads.WithLabelValues(o.Class.String(), outcome).Inc()
	if o.OK() {
		r.downloadBytes.Add(float64(o.Bytes))
	}
}

// ObserveResult counts one contribution verdict and its tool timings.
func (r *Recorder) ObserveResult(res verify.Result) {
	r.contributions.WithLabelValues(string(res.Status)).Inc()
	for _, a := range res.Artifacts {
		if !a.Invoked {
			continue
		}
		label := "ok"
		switch {
		case a.Failure == verify.FailureTimeout:
			label = "timeout"
		case !a.OK:
			label = "rejected"
		}
		r.toolDuration.WithLabelValues(label).Observe(a.Duration.Seconds())
	}
	if res.Status == verify.StatusVerified {
		// Completion order is arbitrary; keep the maximum.
		cur := gaugeValue(r.highestVerified)
		if float64(res.Number) > cur {
			r.highestVerified.Set(float64(res.Number))
		}
	}
}

// Finish stamps the run end time and exit code.
func (r *Recorder) Finish(exitCode int) {
	r.lastRun.SetToCurrentTime()
	r.exitCode.Set(float64(exitCode))
}

// WriteTextfile atomically writes all metrics to path.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
