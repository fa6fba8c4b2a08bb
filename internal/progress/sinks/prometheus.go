package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/psl-catalog-crawler/internal/progress"
)

// PrometheusSink exports export-run progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	datasets        *prometheus.CounterVec
	datasetDuration prometheus.Histogram
	filesFound      *prometheus.CounterVec
	issues          *prometheus.CounterVec

	fetches       *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg. A nil reg means
// prometheus.DefaultRegisterer.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catalog_runs_started_total",
			Help: "Export runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_runs_completed_total",
			Help: "Export runs completed partitioned by result.",
		}, []string{"result"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_runs_active",
			Help: "Export runs currently in progress.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_run_duration_seconds",
			Help:    "Wall time per export run.",
			Buckets: []float64{10, 30, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"result"}),
		datasets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_datasets_total",
			Help: "Datasets processed partitioned by outcome.",
		}, []string{"outcome"}),
		datasetDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalog_dataset_crawl_duration_seconds",
			Help:    "Wall time spent crawling one dataset.",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 300, 900},
		}),
		filesFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_files_found_total",
			Help: "Data files added to the catalog per host.",
		}, []string{"host"}),
		issues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_crawl_issues_total",
			Help: "Skipped branches partitioned by issue kind.",
		}, []string{"kind"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_fetch_requests_total",
			Help: "Fetch completions partitioned by host and status class.",
		}, []string{"host", "status_class"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_fetch_bytes_total",
			Help: "Bytes downloaded per host.",
		}, []string{"host"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by host.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"host"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runDuration,
		s.datasets,
		s.datasetDuration,
		s.filesFound,
		s.issues,
		s.fetches,
		s.fetchBytes,
		s.fetchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consume(evt)
	}
	return nil
}

func (s *PrometheusSink) consume(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsActive.Inc()
		}
	case progress.StageRunDone:
		s.finishRun(evt, "success")
	case progress.StageRunError:
		s.finishRun(evt, "error")
	case progress.StageDatasetDone:
		s.datasets.WithLabelValues("crawled").Inc()
		if evt.Dur > 0 {
			s.datasetDuration.Observe(evt.Dur.Seconds())
		}
	case progress.StageDatasetSkipped:
		s.datasets.WithLabelValues("skipped").Inc()
	case progress.StageFileFound:
		files := evt.Files
		if files <= 0 {
			files = 1
		}
		s.filesFound.WithLabelValues(evt.HostLabel()).Add(float64(files))
	case progress.StageIssue:
		s.issues.WithLabelValues(evt.Kind).Inc()
	case progress.StageFetchDone:
		host := evt.HostLabel()
		s.fetches.WithLabelValues(host, string(evt.StatusClass)).Inc()
		if evt.Bytes > 0 {
			s.fetchBytes.WithLabelValues(host).Add(float64(evt.Bytes))
		}
		if evt.Dur > 0 {
			s.fetchDuration.WithLabelValues(host).Observe(evt.Dur.Seconds())
		}
	}
}

func (s *PrometheusSink) finishRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsActive.Dec()
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu     sync.Mutex
	active map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{active: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; ok {
		return false
	}
	t.active[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; !ok {
		return false
	}
	delete(t.active, id)
	return true
}
